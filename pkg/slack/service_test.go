package slack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfleet/quantfleet/pkg/models"
)

// newMockSlackAPI returns a server accepting chat.postMessage and a counter
// of received calls.
func newMockSlackAPI(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000000.000100"}`))
	})
	return httptest.NewServer(mux), &calls
}

func TestNilServiceIsNoOp(t *testing.T) {
	var s *Service
	assert.Empty(t, s.NotifyRunStarted(context.Background(), "2025-01-06 09:00:00"))
	s.NotifyRunCompleted(context.Background(), "2025-01-06 09:00:00", nil, "")
	s.NotifyRunFailed(context.Background(), "2025-01-06 09:00:00", "boom", "")
}

func TestNewServiceRequiresTokenAndChannel(t *testing.T) {
	assert.Nil(t, NewService(ServiceConfig{Token: "", Channel: "#contest"}))
	assert.Nil(t, NewService(ServiceConfig{Token: "xoxb-x", Channel: ""}))
	assert.NotNil(t, NewService(ServiceConfig{Token: "xoxb-x", Channel: "#contest"}))
}

func TestNotifyRunLifecycle(t *testing.T) {
	api, calls := newMockSlackAPI(t)
	defer api.Close()

	s := NewServiceWithClient(NewClientWithAPIURL("xoxb-test", "C123", api.URL+"/"))

	ts := s.NotifyRunStarted(context.Background(), "2025-01-06 09:00:00")
	assert.Equal(t, "1700000000.000100", ts)

	s.NotifyRunCompleted(context.Background(), "2025-01-06 09:00:00", &models.WeightResult{
		Weights: map[string]float64{"bull_agent": 1},
	}, ts)
	require.Equal(t, 2, *calls)
}

func TestBuildRunCompletedMessageOrdering(t *testing.T) {
	blocks := BuildRunCompletedMessage("2025-01-06 09:00:00", &models.WeightResult{
		Weights: map[string]float64{"b": 0.3, "a": 0.7},
	})
	require.Len(t, blocks, 1)
	// Heaviest first.
	assert.Regexp(t, `(?s)a.*70\.00%.*b.*30\.00%`, sectionText(t, blocks[0]))
}

func TestBuildRunCompletedMessageEmpty(t *testing.T) {
	text := sectionText(t, BuildRunCompletedMessage("2025-01-06 09:00:00", nil)[0])
	assert.Contains(t, text, "No weights allocated")
}

func sectionText(t *testing.T, block goslack.Block) string {
	t.Helper()
	section, ok := block.(*goslack.SectionBlock)
	require.True(t, ok)
	require.NotNil(t, section.Text)
	return section.Text.Text
}
