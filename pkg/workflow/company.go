// Package workflow wires the agent pools into the company graph: data
// agents fan out first, research agents start only after every data agent
// has finished, and the contest finalizes the run. The graph emits
// chain-start/chain-end events for every node and forwards its children's
// streams.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/quantfleet/quantfleet/pkg/agent"
	"github.com/quantfleet/quantfleet/pkg/agent/dataagent"
	"github.com/quantfleet/quantfleet/pkg/agent/research"
	"github.com/quantfleet/quantfleet/pkg/config"
	"github.com/quantfleet/quantfleet/pkg/contest"
	"github.com/quantfleet/quantfleet/pkg/events"
	"github.com/quantfleet/quantfleet/pkg/models"
)

// Node names used in step results and events.
const (
	NodeDataTeam     = "data_team"
	NodeResearchTeam = "research_team"
	NodeContest      = "contest"
)

// Company runs the full pipeline for one trigger time.
type Company struct {
	runtime *agent.Runtime
	// maxParallel bounds each node's fan-out; 0 means "all agents at once".
	maxParallel int
	logger      *slog.Logger
}

// NewCompany creates the workflow over a validated runtime.
func NewCompany(runtime *agent.Runtime) *Company {
	return &Company{
		runtime: runtime,
		logger:  slog.Default().With("component", "company"),
	}
}

// Run executes data team → research team → contest for the trigger time.
// Node order is strict; partial agent failures degrade the result instead
// of aborting it.
func (c *Company) Run(ctx context.Context, triggerTime string) (*models.CompanyResult, error) {
	em := events.NewEmitter(c.runtime.Bus, "company", "", triggerTime)
	em.ChainStart(map[string]any{"trigger_time": triggerTime})

	result := &models.CompanyResult{
		TriggerTime: triggerTime,
		StepResults: make(map[string]models.StepResult),
	}

	result.StepResults[NodeDataTeam] = c.runNode(ctx, em, NodeDataTeam, triggerTime, c.dataRunners)
	c.loadFactors(result)

	result.StepResults[NodeResearchTeam] = c.runNode(ctx, em, NodeResearchTeam, triggerTime, c.researchRunners)
	c.loadSignals(result)

	result.StepResults[NodeContest] = c.runContest(ctx, em, triggerTime, result)

	em.ChainEnd(map[string]any{
		"factors_count": len(result.DataFactors),
		"signals_count": len(result.ResearchSignals),
	})
	return result, nil
}

func (c *Company) dataRunners(rt *agent.Runtime) []agent.Runner {
	runners := make([]agent.Runner, 0, len(rt.Config.DataAgents))
	for _, cfg := range rt.Config.DataAgents {
		runners = append(runners, dataagent.New(cfg, rt))
	}
	return runners
}

func (c *Company) researchRunners(rt *agent.Runtime) []agent.Runner {
	pool := rt.Config.Research
	runners := make([]agent.Runner, 0, len(pool.Agents))
	for _, cfg := range pool.Agents {
		runners = append(runners, research.New(cfg, pool, rt))
	}
	return runners
}

// runNode fans the runners out with bounded parallelism and waits for all
// of them. Agent failures are counted, not propagated. Children publish
// into a node-local bus; the node republishes their stream on the shared
// bus between its own chain-start and chain-end.
func (c *Company) runNode(ctx context.Context, parent *events.Emitter, node, triggerTime string, build func(*agent.Runtime) []agent.Runner) models.StepResult {
	em := parent.Named(node)

	childBus := events.NewBus()
	childCh, _ := childBus.Subscribe()
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for ev := range childCh {
			em.Forward(ev)
		}
	}()
	drain := func() {
		childBus.Close()
		<-forwarded
	}

	runners := build(c.runtime.WithBus(childBus))
	em.ChainStart(map[string]any{"agents": len(runners)})

	step := models.StepResult{AgentCount: len(runners)}
	if len(runners) == 0 {
		drain()
		step.Status = models.StepStatusSkipped
		em.ChainEnd(map[string]any{"status": step.Status})
		return step
	}

	limit := c.maxParallel
	if limit <= 0 {
		limit = len(runners)
	}

	results := make([]*agent.Result, len(runners))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, r := range runners {
		i, r := i, r
		g.Go(func() error {
			res, err := r.Run(gctx, triggerTime)
			if err != nil {
				c.logger.Error("agent infrastructure failure", "node", node, "agent", r.Name(), "error", err)
				res = &agent.Result{AgentName: r.Name(), Status: agent.StatusFromContext(gctx), Err: err}
			}
			results[i] = res
			return nil
		})
	}
	// Goroutines only return nil; Wait is a join.
	_ = g.Wait()
	drain()

	var failures []string
	for _, res := range results {
		switch res.Status {
		case agent.StatusFailed, agent.StatusTimedOut, agent.StatusCancelled:
			step.FailureCount++
			failures = append(failures, fmt.Sprintf("%s: %v", res.AgentName, res.Err))
		default:
			step.SuccessCount++
		}
	}
	if step.SuccessCount > 0 || step.FailureCount == 0 {
		step.Status = models.StepStatusCompleted
	} else {
		step.Status = models.StepStatusFailed
	}
	step.Error = strings.Join(failures, "; ")

	em.ChainEnd(map[string]any{"status": step.Status, "succeeded": step.SuccessCount, "failed": step.FailureCount})
	return step
}

// runContest executes the finalize node.
func (c *Company) runContest(ctx context.Context, parent *events.Emitter, triggerTime string, result *models.CompanyResult) models.StepResult {
	em := parent.Named(NodeContest)
	em.ChainStart(map[string]any{"signals": len(result.ResearchSignals)})

	step := models.StepResult{AgentCount: 1}
	var backfill contest.Backfill
	if c.runtime.Config.Contest.Backfill {
		backfill = c.backfillHistory
	}
	weightResult, err := contest.NewService(c.runtime, backfill).Run(ctx, triggerTime)
	if err != nil {
		c.logger.Error("contest failed", "error", err)
		step.Status = models.StepStatusFailed
		step.FailureCount = 1
		step.Error = err.Error()
		em.ChainEnd(map[string]any{"status": step.Status, "error": err.Error()})
		return step
	}
	result.WeightResult = weightResult
	step.Status = models.StepStatusCompleted
	step.SuccessCount = 1
	em.ChainEnd(map[string]any{"status": step.Status, "weights": len(weightResult.Weights)})
	return step
}

// loadFactors collects the stored factor artifacts into the result.
func (c *Company) loadFactors(result *models.CompanyResult) {
	for _, cfg := range c.runtime.Config.DataAgents {
		factor, ok, err := c.runtime.Store.LoadFactor(cfg.AgentName, result.TriggerTime)
		if err != nil {
			c.logger.Warn("factor load failed", "agent", cfg.AgentName, "error", err)
			continue
		}
		if ok {
			result.DataFactors = append(result.DataFactors, *factor)
		}
	}
}

// loadSignals parses the stored reports into the result.
func (c *Company) loadSignals(result *models.CompanyResult) {
	marketName := c.runtime.Config.Market.Name
	for _, cfg := range c.runtime.Config.Research.Agents {
		report, ok, err := c.runtime.Store.LoadReport(cfg.AgentName, result.TriggerTime)
		if err != nil || !ok {
			continue
		}
		signals, err := research.ParseSignals(cfg.AgentName, result.TriggerTime, report.FinalResult)
		if err != nil {
			c.logger.Warn("stored report unparseable", "agent", cfg.AgentName, "error", err)
			continue
		}
		signals = research.FixSignalSymbols(c.runtime.Market, marketName, signals)
		result.ResearchSignals = append(result.ResearchSignals, signals...)
	}
}

// backfillHistory re-runs the research agents for each trading day in the
// reward window so the contest can price missed days. Artifacts written by
// earlier runs short-circuit, so this is cheap when history is complete.
func (c *Company) backfillHistory(ctx context.Context, triggerTime string) error {
	windowDays := c.runtime.Config.Contest.WindowDays
	if windowDays <= 0 {
		windowDays = config.DefaultWindowDays
	}
	clock := "09:00:00"
	if _, rest, ok := strings.Cut(triggerTime, " "); ok {
		clock = rest
	}

	cursor := triggerTime
	for i := 0; i < windowDays; i++ {
		date, err := c.runtime.Market.PreviousTradingDate(cursor)
		if err != nil {
			return err
		}
		cursor = date + " " + clock
		em := events.NewEmitter(c.runtime.Bus, "backfill", "", cursor)
		c.runNode(ctx, em, NodeResearchTeam+"_backfill", cursor, c.researchRunners)
	}
	return nil
}
