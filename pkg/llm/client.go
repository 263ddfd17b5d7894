// Package llm provides the process-wide LLM gateway: a channel-based
// streaming client over any OpenAI-compatible chat endpoint, with retries,
// timeouts, and an optional global in-flight cap.
package llm

import "context"

// Client is the interface all LLM callers use. Implementations stream the
// completion as chunks; the returned channel is closed when the stream
// completes. Errors are delivered as ErrorChunk values in the channel.
type Client interface {
	Generate(ctx context.Context, input *GenerateInput) (<-chan Chunk, error)
	Close() error
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// GenerateInput is a single generation request.
type GenerateInput struct {
	// AgentName tags the request for logging and test routing.
	AgentName string
	Messages  []Message
	// Thinking requests the provider's reasoning channel (served by the
	// thinking-enabled model when the registry routes by purpose).
	Thinking bool
	// Temperature overrides the provider default when non-nil.
	Temperature *float64
}

// Chunk is the interface for all streaming chunk types.
type Chunk interface {
	chunkType() ChunkType
}

// ChunkType identifies the kind of streaming chunk.
type ChunkType string

const (
	ChunkTypeText     ChunkType = "text"
	ChunkTypeThinking ChunkType = "thinking"
	ChunkTypeUsage    ChunkType = "usage"
	ChunkTypeError    ChunkType = "error"
)

// TextChunk is a chunk of the LLM's text response.
type TextChunk struct{ Content string }

// ThinkingChunk is a chunk of the LLM's reasoning channel.
type ThinkingChunk struct{ Content string }

// UsageChunk reports token consumption for this call.
type UsageChunk struct{ InputTokens, OutputTokens, TotalTokens int }

// ErrorChunk signals a provider error.
type ErrorChunk struct {
	Message   string
	Retryable bool
}

func (c *TextChunk) chunkType() ChunkType     { return ChunkTypeText }
func (c *ThinkingChunk) chunkType() ChunkType { return ChunkTypeThinking }
func (c *UsageChunk) chunkType() ChunkType    { return ChunkTypeUsage }
func (c *ErrorChunk) chunkType() ChunkType    { return ChunkTypeError }

// TokenUsage aggregates token consumption across multiple LLM calls.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Add accumulates another call's usage.
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}
