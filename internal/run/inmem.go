package run

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a Store backed by a process-local map. It is intended for
// unit tests and local development, not production use.
type InMemoryStore struct {
	mu     sync.Mutex
	runs   map[uuid.UUID]*Record
	audits []AuditLog
	traces []LLMTrace
	now    func() time.Time
}

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		runs: make(map[uuid.UUID]*Record),
		now:  time.Now,
	}
}

func (s *InMemoryStore) CreateRun(_ context.Context, in CreateInput) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &Record{
		ID:                    uuid.New(),
		TenantID:              in.TenantID,
		AssistantID:           in.AssistantID,
		ConversationID:        in.ConversationID,
		Profile:               in.Profile,
		Status:                StatusPending,
		InputText:             in.InputText,
		BudgetTokens:          in.BudgetTokens,
		BudgetTokensRemaining: in.BudgetTokens,
		Metadata:              in.Metadata,
		CreatedAt:             s.now(),
	}
	s.runs[rec.ID] = rec
	cp := *rec
	return &cp, nil
}

func (s *InMemoryStore) StartRun(_ context.Context, runID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != StatusPending {
		return ErrNotPending
	}
	now := s.now()
	rec.Status = StatusRunning
	rec.StartedAt = &now
	return nil
}

func (s *InMemoryStore) CompleteRun(_ context.Context, runID uuid.UUID, in CompleteInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	if !ok {
		return ErrNotFound
	}
	if rec.Status.Terminal() {
		return nil
	}
	now := s.now()
	rec.Status = StatusCompleted
	rec.OutputText = in.OutputText
	rec.TokensInput = in.TokensInput
	rec.TokensOutput = in.TokensOutput
	rec.ToolRounds = in.ToolRounds
	rec.BudgetTokensRemaining = in.BudgetTokensRemaining
	rec.CompletedAt = &now
	return nil
}

func (s *InMemoryStore) FailRun(_ context.Context, runID uuid.UUID, errorCode, errorMessage string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	if !ok {
		return ErrNotFound
	}
	if rec.Status.Terminal() {
		// Idempotent: a prior terminal transition (e.g. complete_run racing
		// the abort hook) always wins.
		return nil
	}
	now := s.now()
	rec.Status = status
	rec.ErrorCode = errorCode
	rec.ErrorMessage = errorMessage
	rec.CompletedAt = &now
	return nil
}

func (s *InMemoryStore) GetRun(_ context.Context, runID uuid.UUID, tenantID *uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	if tenantID != nil && rec.TenantID != *tenantID {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemoryStore) ListRuns(_ context.Context, tenantID uuid.UUID, filter ListFilter) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for _, rec := range s.runs {
		if rec.TenantID != tenantID {
			continue
		}
		if filter.ConversationID != nil && rec.ConversationID != *filter.ConversationID {
			continue
		}
		if filter.Status != nil && rec.Status != *filter.Status {
			continue
		}
		cp := *rec
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) FindStuckRuns(_ context.Context, runningSinceBefore time.Time) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for _, rec := range s.runs {
		if rec.Status != StatusRunning || rec.StartedAt == nil {
			continue
		}
		if rec.StartedAt.Before(runningSinceBefore) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryStore) LogAudit(_ context.Context, entry AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.audits = append(s.audits, entry)
	return nil
}

func (s *InMemoryStore) RecordLLMTrace(_ context.Context, trace LLMTrace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if trace.ID == uuid.Nil {
		trace.ID = uuid.New()
	}
	trace.TotalTokens = trace.PromptTokens + trace.CompletionTokens
	if trace.CreatedAt.IsZero() {
		trace.CreatedAt = s.now()
	}
	s.traces = append(s.traces, trace)
	return nil
}
