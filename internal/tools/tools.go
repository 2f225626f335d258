// Package tools implements the tool registry and dispatcher: a process-global
// catalog of callable tools, gated by profile and connected provider, plus a
// timed, isolated executor that routes a parsed tool call to its handler.
package tools

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/northflow/agentcore/internal/budget"
)

// Category determines a tool's dispatch kwargs and whether a call, successful
// or failed, re-enters the LLM loop (SPEC_FULL.md §4.3).
type Category string

const (
	CategoryBlock       Category = "block"
	CategoryEmail       Category = "email"
	CategoryRetrieval   Category = "retrieval"
	CategoryCalendar    Category = "calendar"
	CategoryIntegration Category = "integration"
	CategoryDelegation  Category = "delegation"
)

// ContinuesLoop reports whether a call of this category, successful or
// failed, re-enters the agent loop rather than terminating it with a UI block.
func (c Category) ContinuesLoop() bool {
	switch c {
	case CategoryRetrieval, CategoryCalendar, CategoryIntegration, CategoryDelegation:
		return true
	default:
		return false
	}
}

// Definition is an immutable registry entry. Definitions are registered once
// at process start; the registry never mutates them afterward, so reads are
// safe for any number of concurrent readers.
type Definition struct {
	Name                 string
	Category             Category
	Provider             string // required when Category == CategoryIntegration
	Description          string
	OpenAISchema         map[string]any
	BlockType            string // set for CategoryBlock definitions
	RequiresConfirmation bool
	TimeoutSeconds       int // 0 means the default of 30s applies
	MinProfile           string
}

func (d Definition) timeout() int {
	if d.TimeoutSeconds <= 0 {
		return 30
	}
	return d.TimeoutSeconds
}

// Result is the discriminated union a handler produces, matching the
// duck-typed result shapes the original dispatcher inspects at runtime
// (SPEC_FULL.md §9 "Duck-typed tool results"). Exactly one of the payload
// fields is meaningful, selected by Kind.
type Result struct {
	Kind ResultKind

	Chunks     []Chunk
	WebSearch  *WebSearchResult
	Block      *BlockPayload
	Delegation *DelegationResult
	Calendar   map[string]any
	ErrorMsg   string
}

// ResultKind tags which payload field of Result is populated.
type ResultKind string

const (
	ResultChunks     ResultKind = "chunks"
	ResultWebSearch  ResultKind = "web_search"
	ResultBlock      ResultKind = "block"
	ResultDelegation ResultKind = "delegation"
	ResultCalendar   ResultKind = "calendar"
	ResultError      ResultKind = "error"
)

// Chunk is one retrieved passage from internal RAG.
type Chunk struct {
	ChunkID            string
	DocumentID         string
	DocumentFilename   string
	PageNumber         *int
	Excerpt            string
	Score              float64
}

// WebSearchResult is a formatted web-search outcome, mirroring the
// `{_formatted,_web_results}` shape of the original dispatcher.
type WebSearchResult struct {
	Formatted string
	Results   []WebResult
}

// WebResult is one web search hit with its source URL for citation.
type WebResult struct {
	Title string
	URL   string
	Score float64
}

// BlockPayload is a structured UI block a BLOCK/EMAIL-category tool emits.
type BlockPayload struct {
	ID      string
	Type    string
	Payload map[string]any
}

// DelegationResult is the outcome of a bounded sub-run against another
// assistant (SPEC_FULL.md §4.3 Delegation).
type DelegationResult struct {
	AssistantName string
	AnswerText    string
	Citations     []Chunk
}

// ExecutionResult is the handler outcome surfaced to the agent loop
// (SPEC_FULL.md §3 ToolExecutionResult).
type ExecutionResult struct {
	ToolName string
	Category Category
	Success  bool
	Result   *Result
	Error    string
}

// ToolMessage renders the result as the content fed back to the LLM as a
// tool message, following the per-category formatting rules of
// SPEC_FULL.md §4.4 step 3.g. Citation accumulation and event emission are
// the caller's responsibility (the agent loop); ToolMessage only computes
// the text.
func (r *ExecutionResult) ToolMessage() string {
	if !r.Success {
		return errorJSON(r.Error)
	}
	if r.Result == nil {
		return "{}"
	}
	switch r.Result.Kind {
	case ResultWebSearch:
		return r.Result.WebSearch.Formatted
	case ResultDelegation:
		d := r.Result.Delegation
		return "[Réponse de l'assistant '" + d.AssistantName + "']\n" + d.AnswerText
	case ResultCalendar:
		return jsonOrError(r.Result.Calendar)
	case ResultError:
		return errorJSON(r.Result.ErrorMsg)
	default:
		return formatChunks(r.Result.Chunks)
	}
}

// errorJSON renders a tool error message as {"error": msg}, JSON-encoded so
// quotes or backslashes in msg can't break the LLM-facing tool message.
func errorJSON(msg string) string {
	b, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"internal error formatting tool result"}`
	}
	return string(b)
}

// HandlerArgs carries every field a handler of any category might need; the
// executor populates only the subset relevant to the tool's category before
// invoking the handler, per the kwargs-by-category table in
// SPEC_FULL.md §4.3. This stands in for keyword-argument expansion in a
// language without it.
type HandlerArgs struct {
	Arguments      map[string]any
	TenantID       uuid.UUID
	AssistantID    uuid.UUID
	ConversationID uuid.UUID
	CollectionIDs  []uuid.UUID
	Citations      []Chunk
	Budget         *budget.Manager
	Profile        string
	UserContext    map[string]any
	Query          string
}

// Handler executes one tool call. ctx carries the dispatcher's per-call
// deadline; handlers that honor ctx cancellation get the dispatcher's timeout
// semantics for free.
type Handler func(ctx context.Context, args HandlerArgs) (*Result, error)
