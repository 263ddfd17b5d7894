package llm

import (
	"context"
	"fmt"
	"strings"
)

// Response holds the fully-collected result of a streaming call.
type Response struct {
	Text         string
	ThinkingText string
	Usage        *TokenUsage
}

// Call performs a single LLM call and blocks until the stream is fully
// drained. It derives a cancellable context so the producer goroutine in
// Generate is always cleaned up when we return.
func Call(ctx context.Context, client Client, input *GenerateInput) (*Response, error) {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := client.Generate(callCtx, input)
	if err != nil {
		return nil, fmt.Errorf("LLM Generate failed: %w", err)
	}
	return CollectStream(stream)
}

// StreamCallback is invoked for each content delta during collection. Used
// to forward live chunks to the event bus. delta is the new content from
// this chunk only, not the accumulated text.
type StreamCallback func(chunkType ChunkType, delta string)

// CollectStream drains a chunk channel into a complete Response.
// Returns an error if an ErrorChunk is received.
func CollectStream(stream <-chan Chunk) (*Response, error) {
	return CollectStreamWithCallback(stream, nil)
}

// CollectStreamWithCallback collects a stream while calling back for each
// text or thinking delta. The callback is optional (nil = buffered mode).
func CollectStreamWithCallback(stream <-chan Chunk, callback StreamCallback) (*Response, error) {
	resp := &Response{}
	var textBuf, thinkingBuf strings.Builder

	for chunk := range stream {
		switch c := chunk.(type) {
		case *TextChunk:
			textBuf.WriteString(c.Content)
			if callback != nil {
				callback(ChunkTypeText, c.Content)
			}
		case *ThinkingChunk:
			thinkingBuf.WriteString(c.Content)
			if callback != nil {
				callback(ChunkTypeThinking, c.Content)
			}
		case *UsageChunk:
			// Providers may report usage per segment; accumulate.
			usage := &TokenUsage{
				InputTokens:  c.InputTokens,
				OutputTokens: c.OutputTokens,
				TotalTokens:  c.TotalTokens,
			}
			if resp.Usage == nil {
				resp.Usage = usage
			} else {
				resp.Usage.Add(usage)
			}
		case *ErrorChunk:
			return nil, fmt.Errorf("LLM error: %s (retryable: %v)", c.Message, c.Retryable)
		}
	}

	resp.Text = textBuf.String()
	resp.ThinkingText = thinkingBuf.String()
	return resp, nil
}
