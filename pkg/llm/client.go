// Package llm defines the capability interface the orchestrator consumes
// and its OpenAI-compatible implementation.
package llm

import (
	"context"

	"github.com/liliang-cn/gptsh/pkg/domain"
)

// ChunkKind tags the variants of a stream chunk.
type ChunkKind int

const (
	// ChunkText carries visible assistant text.
	ChunkText ChunkKind = iota
	// ChunkToolDelta carries a partial tool call keyed by index.
	ChunkToolDelta
	// ChunkUsage carries a usage record, typically on the final chunk.
	ChunkUsage
)

// Chunk is one tagged element of a model stream.
type Chunk struct {
	Kind  ChunkKind
	Text  string
	Delta ToolDelta
	Usage domain.Usage
}

// ToolDelta is a partial tool call; Arguments fragments are concatenated
// across deltas with the same Index.
type ToolDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// StreamInfo summarizes a finished stream for the transition decision.
type StreamInfo struct {
	FinishReason string
	SawToolDelta bool
}

// Request is one chat completion request.
type Request struct {
	Model             string
	Messages          []domain.Message
	Tools             []domain.ToolSpec
	ToolChoice        string // "", "auto", "required", "none", or a function name
	ParallelToolCalls bool
	Temperature       *float64
	MaxTokens         int
	ReasoningEffort   string
}

// Response is a completed (non-streaming) chat completion.
type Response struct {
	Content      string
	ToolCalls    []domain.ToolCall
	FinishReason string
	Usage        *domain.Usage
}

// Stream iterates chunks of one streaming completion. After Next returns
// false, Calls and Info expose the accumulated tool calls and the stream
// outcome.
type Stream interface {
	Next() bool
	Current() Chunk
	Err() error
	Close() error
	// Calls returns the complete tool calls accumulated from deltas, in
	// index order.
	Calls() []domain.ToolCall
	// Info returns the finish reason and whether any tool delta was seen.
	Info() StreamInfo
}

// Client is the LLM capability consumed by the orchestrator.
type Client interface {
	Stream(ctx context.Context, req Request) (Stream, error)
	Complete(ctx context.Context, req Request) (*Response, error)
}
