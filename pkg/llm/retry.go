package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy controls the retrying client. Retries apply only to timeout
// and connection errors; malformed-output handling lives with the callers
// that can re-prompt.
type RetryPolicy struct {
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultRetryPolicy matches the pipeline-wide (60s, 3, 20s) call contract.
// The 60s timeout itself lives on the underlying client.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, RetryDelay: 20 * time.Second}
}

// RetryingClient wraps a Client with constant-delay retries on transient
// failures. The wrapped call is buffered: the full stream is collected
// before being replayed to the caller, so a mid-stream connection error can
// be retried without the caller seeing partial output twice.
type RetryingClient struct {
	inner  Client
	policy RetryPolicy
	logger *slog.Logger
}

// NewRetryingClient wraps inner with the given policy.
func NewRetryingClient(inner Client, policy RetryPolicy) *RetryingClient {
	return &RetryingClient{
		inner:  inner,
		policy: policy,
		logger: slog.Default().With("component", "llm-retry"),
	}
}

// Generate implements Client.
func (c *RetryingClient) Generate(ctx context.Context, input *GenerateInput) (<-chan Chunk, error) {
	ch := make(chan Chunk, 32)
	go func() {
		defer close(ch)

		var attempt int
		operation := func() error {
			attempt++
			resp, err := Call(ctx, c.inner, input)
			if err != nil {
				if ctx.Err() == nil && isRetryable(err) {
					c.logger.Warn("transient LLM failure, will retry",
						"agent", input.AgentName, "attempt", attempt, "error", err)
					return err
				}
				return backoff.Permanent(err)
			}
			replay(ctx, ch, resp)
			return nil
		}

		policy := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(c.policy.RetryDelay), uint64(c.policy.MaxRetries)),
			ctx,
		)
		if err := backoff.Retry(operation, policy); err != nil {
			send(ctx, ch, &ErrorChunk{Message: err.Error()})
		}
	}()
	return ch, nil
}

// Close implements Client.
func (c *RetryingClient) Close() error { return c.inner.Close() }

func replay(ctx context.Context, ch chan<- Chunk, resp *Response) {
	if resp.ThinkingText != "" {
		if !send(ctx, ch, &ThinkingChunk{Content: resp.ThinkingText}) {
			return
		}
	}
	if resp.Text != "" {
		if !send(ctx, ch, &TextChunk{Content: resp.Text}) {
			return
		}
	}
	if resp.Usage != nil {
		send(ctx, ch, &UsageChunk{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		})
	}
}

// isRetryable classifies timeout and connection errors. Everything else
// (auth failures, bad requests, malformed output) is permanent.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout")
}
