// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/quantfleet/quantfleet/pkg/llm"
)

// ScriptEntry defines a single scripted LLM response.
type ScriptEntry struct {
	// Response content (exactly one should be set)
	Chunks []llm.Chunk // Pre-built chunks to return
	Text   string      // Shorthand: auto-wrapped as TextChunk + UsageChunk
	Error  error       // Return error from Generate()

	// Test control
	BlockUntilCancelled bool            // Block Generate() until ctx is cancelled
	WaitCh              <-chan struct{} // Block Generate() until closed, then return normal response
}

// ScriptedClient implements llm.Client with a dual-dispatch mock:
// sequential fallback for single-agent stages, plus agent-aware routing for
// parallel stages where call order is non-deterministic.
type ScriptedClient struct {
	mu         sync.Mutex
	sequential []ScriptEntry
	seqIndex   int
	routes     map[string][]ScriptEntry
	routeIndex map[string]int
	captured   []*llm.GenerateInput
}

// NewScriptedClient creates an empty ScriptedClient.
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{
		routes:     make(map[string][]ScriptEntry),
		routeIndex: make(map[string]int),
	}
}

// AddSequential adds an entry consumed in order for non-routed calls.
func (c *ScriptedClient) AddSequential(entry ScriptEntry) {
	c.sequential = append(c.sequential, entry)
}

// AddText is shorthand for AddSequential with a plain text reply.
func (c *ScriptedClient) AddText(text string) {
	c.AddSequential(ScriptEntry{Text: text})
}

// AddRouted adds an entry consumed in order for calls tagged with the
// given agent name. Routed entries win over sequential ones.
func (c *ScriptedClient) AddRouted(agentName string, entry ScriptEntry) {
	c.routes[agentName] = append(c.routes[agentName], entry)
}

// Generate implements llm.Client.
func (c *ScriptedClient) Generate(ctx context.Context, input *llm.GenerateInput) (<-chan llm.Chunk, error) {
	c.mu.Lock()
	c.captured = append(c.captured, input)
	entry, err := c.nextEntry(input)
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if entry.BlockUntilCancelled {
		ch := make(chan llm.Chunk)
		go func() {
			<-ctx.Done()
			close(ch)
		}()
		return ch, nil
	}

	if entry.WaitCh != nil {
		select {
		case <-entry.WaitCh:
		case <-ctx.Done():
			ch := make(chan llm.Chunk)
			close(ch)
			return ch, nil
		}
	}

	if entry.Error != nil {
		return nil, entry.Error
	}

	chunks := entry.Chunks
	if len(chunks) == 0 && entry.Text != "" {
		chunks = []llm.Chunk{
			&llm.TextChunk{Content: entry.Text},
			&llm.UsageChunk{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		}
	}

	ch := make(chan llm.Chunk, len(chunks))
	for _, chunk := range chunks {
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

// Close implements llm.Client.
func (c *ScriptedClient) Close() error { return nil }

// CallCount returns the total number of Generate() calls made.
func (c *ScriptedClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.captured)
}

// CapturedInputs returns every GenerateInput seen so far.
func (c *ScriptedClient) CapturedInputs() []*llm.GenerateInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*llm.GenerateInput(nil), c.captured...)
}

// Registry wraps the client in an llm.Registry serving every purpose.
func (c *ScriptedClient) Registry() *llm.Registry {
	return llm.NewRegistry(map[string]llm.Client{
		llm.PurposeDefault:  c,
		llm.PurposeThinking: c,
		llm.PurposeVision:   c,
	})
}

// nextEntry selects the next entry: routed dispatch by agent name first,
// sequential fallback second. Must be called with c.mu held.
func (c *ScriptedClient) nextEntry(input *llm.GenerateInput) (*ScriptEntry, error) {
	if input.AgentName != "" {
		if entries, ok := c.routes[input.AgentName]; ok {
			idx := c.routeIndex[input.AgentName]
			if idx < len(entries) {
				c.routeIndex[input.AgentName] = idx + 1
				return &entries[idx], nil
			}
		}
	}
	if c.seqIndex < len(c.sequential) {
		entry := &c.sequential[c.seqIndex]
		c.seqIndex++
		return entry, nil
	}
	return nil, fmt.Errorf("ScriptedClient: no more entries (agent=%q, sequential=%d/%d)",
		input.AgentName, c.seqIndex, len(c.sequential))
}
