package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quantfleet/quantfleet/pkg/market"
	"github.com/quantfleet/quantfleet/pkg/workflow"
)

// createRunRequest is the POST /api/v1/runs body.
type createRunRequest struct {
	TriggerTime string `json:"trigger_time" binding:"required"`
}

func (s *Server) createRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := time.ParseInLocation(market.TriggerTimeLayout, req.TriggerTime, time.Local); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trigger_time must be formatted as 2006-01-02 15:04:05"})
		return
	}

	// The run outlives the HTTP request on purpose.
	run, err := s.manager.Start(context.Background(), req.TriggerTime)
	if err != nil {
		var busy workflow.ErrRunInProgress
		if errors.As(err, &busy) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, run)
}

func (s *Server) listRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": s.manager.List()})
}

func (s *Server) getRun(c *gin.Context) {
	run, ok := s.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) getFactor(c *gin.Context) {
	triggerTime := c.Query("trigger_time")
	if triggerTime == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trigger_time query parameter is required"})
		return
	}
	factor, ok, err := s.store.LoadFactor(c.Param("agent"), triggerTime)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "factor not found"})
		return
	}
	c.JSON(http.StatusOK, factor)
}

func (s *Server) getReport(c *gin.Context) {
	triggerTime := c.Query("trigger_time")
	if triggerTime == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trigger_time query parameter is required"})
		return
	}
	report, ok, err := s.store.LoadReport(c.Param("agent"), triggerTime)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) latestResult(c *gin.Context) {
	result, ok, err := s.store.LatestFinalResult()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no final result yet"})
		return
	}
	c.JSON(http.StatusOK, result)
}
