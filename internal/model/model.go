// Package model defines the provider-agnostic message and streaming types
// used by the planner and its provider adapters (SPEC_FULL.md §4.4, §6).
// Messages are modeled as typed parts (text, tool use, tool result, thinking)
// rather than flattened strings, so provider adapters can round-trip
// structured content without lossy reconstruction.
package model

import (
	"context"
	"encoding/json"
	"errors"
)

// ConversationRole is the role for a message in a conversation.
type ConversationRole string

const (
	RoleSystem    ConversationRole = "system"
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

// Part is a marker interface implemented by every message content block.
type Part interface{ isPart() }

// TextPart is plain assistant- or user-visible text.
type TextPart struct {
	Text string
}

// ThinkingPart carries provider-issued reasoning content.
type ThinkingPart struct {
	Text      string
	Signature string
}

// ToolUsePart declares a tool invocation requested by the assistant.
type ToolUsePart struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResultPart carries a tool result fed back to the model.
type ToolResultPart struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (TextPart) isPart()       {}
func (ThinkingPart) isPart()   {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}

// Message is a single chat message with ordered, typed content parts.
type Message struct {
	Role  ConversationRole
	Parts []Part
}

// ToolDefinition describes a tool exposed to the model, derived from
// internal/tools.Definition at call time (§4.3).
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema any
}

// ToolChoiceMode controls how the model uses tools for a request.
type ToolChoiceMode string

const (
	ToolChoiceAuto ToolChoiceMode = "auto"
	ToolChoiceNone ToolChoiceMode = "none"
	ToolChoiceAny  ToolChoiceMode = "any"
)

// ToolCall is a completed tool invocation requested by the model.
type ToolCall struct {
	ID      string
	Name    string
	Payload json.RawMessage
}

// ToolCallDelta is an incremental tool-call JSON fragment streamed while the
// provider is still constructing the call's input. Best-effort UX signal
// only; the canonical payload arrives on the final ToolCall.
type ToolCallDelta struct {
	ID    string
	Name  string
	Delta string
}

// TokenUsage tracks token counts for a single model call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ModelClass selects a model family when Request.Model is left empty.
type ModelClass string

const (
	ModelClassDefault        ModelClass = "default"
	ModelClassHighReasoning  ModelClass = "high-reasoning"
	ModelClassSmall          ModelClass = "small"
)

// Request captures the inputs to a single model invocation (one planner
// round, SPEC_FULL.md §4.4).
type Request struct {
	RunID       string
	Model       string
	ModelClass  ModelClass
	Messages    []*Message
	System      string
	Temperature float32
	Tools       []*ToolDefinition
	ToolChoice  ToolChoiceMode
	MaxTokens   int
	Stream      bool
}

// Response is the result of a non-streaming invocation.
type Response struct {
	Content    []Message
	ToolCalls  []ToolCall
	Usage      TokenUsage
	StopReason string
}

// ChunkType classifies a single streamed Chunk.
type ChunkType string

const (
	ChunkText          ChunkType = "text"
	ChunkToolCall      ChunkType = "tool_call"
	ChunkToolCallDelta ChunkType = "tool_call_delta"
	ChunkThinking      ChunkType = "thinking"
	ChunkUsage         ChunkType = "usage"
	ChunkStop          ChunkType = "stop"
)

// Chunk is a single streaming event from the model.
type Chunk struct {
	Type          ChunkType
	Text          string
	ToolCall      *ToolCall
	ToolCallDelta *ToolCallDelta
	UsageDelta    *TokenUsage
	StopReason    string
}

// Client is the provider-agnostic model client the planner depends on.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Stream(ctx context.Context, req *Request) (Streamer, error)
}

// Streamer delivers incremental model output. Callers must drain Recv until
// it returns io.EOF (or another terminal error), then call Close.
type Streamer interface {
	Recv() (Chunk, error)
	Close() error
}

// ErrStreamingUnsupported indicates the provider adapter does not implement
// streaming for this request shape.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting. Callers must not retry in a tight loop.
var ErrRateLimited = errors.New("model: rate limited")
