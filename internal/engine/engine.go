// Package engine defines the durable execution substrate the worker runtime
// runs on (SPEC_FULL.md §4.6): a thin workflow layer that wraps exactly one
// long-running activity per run, so the activity's own retry/heartbeat
// semantics give the worker its crash-recovery and watchdog guarantees.
//
// This is a deliberately narrower abstraction than a general workflow engine:
// this spec's runs are bounded-duration, single-pass executions, not
// suspendable multi-day workflows, so there is no need for
// ExecuteActivityAsync/Future (parallel activity fan-out) or child workflows.
// A run's only "durable step" is the one activity that drives the whole
// agent loop; Engine exists to register it, start it, and let a caller
// cancel or await it.
package engine

import (
	"context"
	"time"

	"github.com/northflow/agentcore/internal/telemetry"
)

// Engine abstracts workflow/activity registration and execution so adapters
// (Temporal, in-memory) can be swapped without touching the worker.
type Engine interface {
	// RegisterWorkflow registers the thin per-agent workflow wrapper. Called
	// once during process startup.
	RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error
	// RegisterActivity registers the long-running run-driving activity.
	// Called once during process startup.
	RegisterActivity(ctx context.Context, def ActivityDefinition) error
	// StartWorkflow launches one run's workflow execution.
	StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
}

// WorkflowFunc is the thin workflow entry point: in every implementation this
// spec ships, it does nothing but call wctx.ExecuteActivity exactly once and
// return the activity's result.
type WorkflowFunc func(wctx WorkflowContext, input any) (any, error)

// WorkflowDefinition binds a WorkflowFunc to a logical name and default
// queue.
type WorkflowDefinition struct {
	Name      string
	TaskQueue string
	Handler   WorkflowFunc
}

// WorkflowContext exposes the one operation a workflow handler needs:
// scheduling its single activity. Implementations must replay deterministic
// results when the workflow is deterministic-replayed (Temporal); the
// in-memory adapter has no replay concept and is a direct call-through.
type WorkflowContext interface {
	Context() context.Context
	WorkflowID() string
	RunID() string

	// ExecuteActivity schedules req and blocks until it completes, decoding
	// its result into result (a pointer).
	ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error

	// SignalChannel returns a channel for the given signal name, used by the
	// worker's abort hook to interrupt a running activity (SPEC_FULL.md §4.6
	// on_agent_job_abort).
	SignalChannel(name string) SignalChannel

	Logger() telemetry.Logger
	Metrics() telemetry.Metrics
	Tracer() telemetry.Tracer
	Now() time.Time
}

// ActivityContext is passed to the registered ActivityFunc. It is distinct
// from WorkflowContext because heartbeating — the watchdog liveness signal —
// is an activity-side concern (activity.RecordHeartbeat in Temporal terms),
// never a workflow-side one.
type ActivityContext interface {
	Context() context.Context
	// Heartbeat records liveness with optional progress details. The engine's
	// heartbeat timeout is the watchdog deadline of SPEC_FULL.md §4.6; a
	// worker that stops heartbeating (crash) lets the engine reschedule the
	// activity elsewhere.
	Heartbeat(details any)
	Logger() telemetry.Logger
	Metrics() telemetry.Metrics
	Tracer() telemetry.Tracer
}

// ActivityFunc drives one run to completion. Implementations must heartbeat
// periodically (at minimum once per agent-loop round) so engine-side
// watchdogs can detect a crashed worker.
type ActivityFunc func(actx ActivityContext, input any) (any, error)

// ActivityDefinition registers an ActivityFunc with its retry/timeout
// defaults.
type ActivityDefinition struct {
	Name    string
	Handler ActivityFunc
	Options ActivityOptions
}

// ActivityOptions configures retry, heartbeat, and timeout behavior for an
// activity.
type ActivityOptions struct {
	Queue           string
	RetryPolicy     RetryPolicy
	// StartToCloseTimeout bounds one attempt's wall-clock duration; it is the
	// watchdog timeout of SPEC_FULL.md §4.6.
	StartToCloseTimeout time.Duration
	// HeartbeatTimeout bounds the gap between heartbeats before the engine
	// considers the worker crashed and reschedules the activity.
	HeartbeatTimeout time.Duration
}

// RetryPolicy defines retry semantics for workflow start attempts and
// activities.
type RetryPolicy struct {
	MaxAttempts        int
	InitialInterval    time.Duration
	BackoffCoefficient float64
}

// WorkflowStartRequest describes how to launch one run's workflow.
type WorkflowStartRequest struct {
	ID               string
	Workflow         string
	TaskQueue        string
	Input            any
	Memo             map[string]any
	SearchAttributes map[string]any
	RetryPolicy      RetryPolicy
}

// ActivityRequest schedules the run-driving activity from within a workflow.
type ActivityRequest struct {
	Name    string
	Input   any
	Queue   string
	Options ActivityOptions
}

// WorkflowHandle lets callers await or cancel a running workflow.
type WorkflowHandle interface {
	Wait(ctx context.Context, result any) error
	Signal(ctx context.Context, name string, payload any) error
	Cancel(ctx context.Context) error
}

// SignalChannel exposes engine-agnostic signal delivery to workflow code.
type SignalChannel interface {
	Receive(ctx context.Context, dest any) error
	ReceiveAsync(dest any) bool
}
