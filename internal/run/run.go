// Package run implements the run lifecycle manager: the persistent state
// machine that tracks one agent execution from PENDING through a terminal
// status, plus the audit and LLM trace records attached to a run.
package run

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Run. Transitions are monotonic:
// Pending -> Running -> exactly one terminal status. No terminal status ever
// transitions to another.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
	StatusTimeout   Status = "timeout"
)

// Terminal reports whether s is one of the terminal statuses.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAborted, StatusTimeout:
		return true
	default:
		return false
	}
}

// Profile is the execution mode of a run. Profiles are ordered: Reactive is
// the least capable, Exec the most.
type Profile string

const (
	ProfileReactive Profile = "reactive"
	ProfileBalanced Profile = "balanced"
	ProfilePro      Profile = "pro"
	ProfileExec     Profile = "exec"
)

// Order returns the profile's position in the reactive < balanced < pro < exec
// ordering used for tool gating. Unknown profiles order as Reactive.
func (p Profile) Order() int {
	switch p {
	case ProfileBalanced:
		return 1
	case ProfilePro:
		return 2
	case ProfileExec:
		return 3
	default:
		return 0
	}
}

// Record is one persisted run. Fields are immutable once Status is terminal.
type Record struct {
	ID                   uuid.UUID
	TenantID             uuid.UUID
	AssistantID          uuid.UUID
	ConversationID       uuid.UUID
	Profile              Profile
	Status               Status
	InputText            string
	OutputText           string
	TokensInput          int
	TokensOutput         int
	ToolRounds           int
	BudgetTokens         int
	BudgetTokensRemaining int
	ErrorCode            string
	ErrorMessage         string
	Metadata             map[string]any
	StartedAt            *time.Time
	CompletedAt          *time.Time
	CreatedAt            time.Time
}

// AuditLog is an immutable action trace row (§3, §4.1 log_audit).
type AuditLog struct {
	ID         uuid.UUID
	TenantID   *uuid.UUID
	RunID      *uuid.UUID
	UserID     *uuid.UUID
	Action     string
	EntityType string
	EntityID   string
	Detail     map[string]any
	Level      AuditLevel
	Message    string
	CreatedAt  time.Time
}

// AuditLevel is the severity of an AuditLog entry.
type AuditLevel string

const (
	AuditInfo  AuditLevel = "info"
	AuditWarn  AuditLevel = "warn"
	AuditError AuditLevel = "error"
)

// LLMTrace is a per-call telemetry row (§3, §4.1 record_llm_trace).
type LLMTrace struct {
	ID               uuid.UUID
	TenantID         *uuid.UUID
	RunID            *uuid.UUID
	Model            string
	Provider         string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	LatencyMS        int64
	Status           string
	ErrorMessage     string
	RequestMetadata  map[string]any
	CreatedAt        time.Time
}

// ErrNotFound indicates a run, assistant, or other lookup target does not
// exist or is not visible to the caller's tenant.
var ErrNotFound = errors.New("run: not found")

// ErrNotPending indicates start_run was called on a run that is not PENDING.
var ErrNotPending = errors.New("run: not pending")

// CreateInput is the input to Store.CreateRun.
type CreateInput struct {
	TenantID       uuid.UUID
	AssistantID    uuid.UUID
	ConversationID uuid.UUID
	InputText      string
	Profile        Profile
	BudgetTokens   int
	Metadata       map[string]any
}

// CompleteInput is the input to Store.CompleteRun.
type CompleteInput struct {
	OutputText            string
	TokensInput           int
	TokensOutput          int
	ToolRounds            int
	BudgetTokensRemaining int
}

// ListFilter narrows Store.ListRuns.
type ListFilter struct {
	ConversationID *uuid.UUID
	Status         *Status
	Limit          int
}

// Store persists Run records and their associated audit/trace rows.
//
// Implementations must filter every read by TenantID when one is supplied, and
// must make FailRun idempotent: calling it on an already-terminal run is a
// no-op that preserves the existing terminal status rather than overwriting
// it (see SPEC_FULL.md §9 on the abort/complete race).
type Store interface {
	CreateRun(ctx context.Context, in CreateInput) (*Record, error)
	StartRun(ctx context.Context, runID uuid.UUID) error
	CompleteRun(ctx context.Context, runID uuid.UUID, in CompleteInput) error
	FailRun(ctx context.Context, runID uuid.UUID, errorCode, errorMessage string, status Status) error
	GetRun(ctx context.Context, runID uuid.UUID, tenantID *uuid.UUID) (*Record, error)
	ListRuns(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]*Record, error)
	FindStuckRuns(ctx context.Context, runningSinceBefore time.Time) ([]*Record, error)
	LogAudit(ctx context.Context, entry AuditLog) error
	RecordLLMTrace(ctx context.Context, trace LLMTrace) error
}
