// Package runlog provides a durable, append-only event log for agent runs,
// distinct from the event stream fabric (internal/stream): the stream fabric
// is a live, expiring, consumer-facing feed; runlog is the permanent per-run
// introspection record. The audit rows and LLM traces of SPEC_FULL.md §4.1
// (log_audit/record_llm_trace) are kept by run.Store, not by this package.
package runlog

import (
	"context"
	"encoding/json"
	"time"
)

// EventType classifies a runlog entry.
type EventType string

const (
	EventPlanGenerated EventType = "plan_generated"
	EventRoundStarted  EventType = "round_started"
	EventToolCalled    EventType = "tool_called"
	EventToolResult    EventType = "tool_result"
	EventBudgetWarning EventType = "budget_warning"
	EventRunCompleted  EventType = "run_completed"
	EventRunFailed     EventType = "run_failed"
)

// Event is a single immutable run event appended to the log. Store
// implementations assign ID when persisting; IDs are opaque, monotonically
// ordered within a run, and suitable for cursor-based pagination.
type Event struct {
	ID          string
	RunID       string
	AssistantID string
	SessionID   string
	Type        EventType
	Payload     json.RawMessage
	Timestamp   time.Time
}

// Page is a forward page of run events, oldest first.
type Page struct {
	Events     []*Event
	NextCursor string
}

// Store is an append-only event store for run introspection.
type Store interface {
	// Append persists e verbatim. Append must be durable: failures are
	// surfaced to callers so the worker can fail fast when canonical logging
	// is unavailable.
	Append(ctx context.Context, e *Event) error
	// List returns the next forward page for runID. cursor is opaque and
	// empty to start from the beginning; limit must be greater than zero.
	List(ctx context.Context, runID string, cursor string, limit int) (Page, error)
}
