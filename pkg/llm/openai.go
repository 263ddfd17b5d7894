package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"golang.org/x/sync/semaphore"
)

// OpenAIClient speaks the OpenAI-compatible chat-completions protocol.
// Reasoning deltas (the provider's reasoning_content extension field) are
// surfaced as ThinkingChunk values so callers see a separate channel.
type OpenAIClient struct {
	api     openai.Client
	model   string
	timeout time.Duration

	// inflight caps concurrent calls process-wide when shared between
	// clients. Nil means uncapped.
	inflight *semaphore.Weighted
	logger   *slog.Logger
}

// OpenAIOptions configures an OpenAIClient.
type OpenAIOptions struct {
	Model   string
	APIKey  string
	BaseURL string
	// Timeout bounds a single call including stream drain. Zero means
	// DefaultCallTimeout.
	Timeout time.Duration
	// Inflight, when non-nil, is the shared cap on concurrent LLM calls.
	Inflight *semaphore.Weighted
}

// DefaultCallTimeout bounds one LLM call including the stream drain.
const DefaultCallTimeout = 60 * time.Second

// NewOpenAIClient creates a client for one configured model.
func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &OpenAIClient{
		api:      openai.NewClient(reqOpts...),
		model:    opts.Model,
		timeout:  timeout,
		inflight: opts.Inflight,
		logger:   slog.Default().With("component", "llm", "model", opts.Model),
	}
}

// Generate implements Client. The producer goroutine owns the HTTP stream
// and exits on context cancellation or stream end.
func (c *OpenAIClient) Generate(ctx context.Context, input *GenerateInput) (<-chan Chunk, error) {
	if c.inflight != nil {
		if err := c.inflight.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: toOpenAIMessages(input.Messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if input.Temperature != nil {
		params.Temperature = openai.Float(*input.Temperature)
	}

	ch := make(chan Chunk, 32)
	go func() {
		defer close(ch)
		if c.inflight != nil {
			defer c.inflight.Release(1)
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		stream := c.api.Chat.Completions.NewStreaming(callCtx, params)
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) > 0 {
				delta := chunk.Choices[0].Delta
				if delta.Content != "" {
					if !send(ctx, ch, &TextChunk{Content: delta.Content}) {
						return
					}
				}
				if reasoning := extractReasoning(delta); reasoning != "" {
					if !send(ctx, ch, &ThinkingChunk{Content: reasoning}) {
						return
					}
				}
			}
			if chunk.Usage.TotalTokens > 0 {
				send(ctx, ch, &UsageChunk{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:  int(chunk.Usage.TotalTokens),
				})
			}
		}
		if err := stream.Err(); err != nil {
			c.logger.Debug("stream error", "agent", input.AgentName, "error", err)
			send(ctx, ch, &ErrorChunk{Message: err.Error(), Retryable: isRetryable(err)})
		}
	}()

	return ch, nil
}

// Close implements Client. The underlying HTTP client needs no teardown.
func (c *OpenAIClient) Close() error { return nil }

func send(ctx context.Context, ch chan<- Chunk, chunk Chunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// extractReasoning pulls the reasoning_content extension field used by
// DeepSeek-style providers. Absent on plain OpenAI models.
func extractReasoning(delta openai.ChatCompletionChunkChoiceDelta) string {
	field, ok := delta.JSON.ExtraFields["reasoning_content"]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal([]byte(field.Raw()), &s); err != nil {
		return ""
	}
	return s
}
