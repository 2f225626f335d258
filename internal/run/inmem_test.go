package run

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	rec, err := s.CreateRun(ctx, CreateInput{
		TenantID:     uuid.New(),
		AssistantID:  uuid.New(),
		Profile:      ProfileBalanced,
		BudgetTokens: 30000,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, rec.Status)
	require.Equal(t, 30000, rec.BudgetTokensRemaining)

	require.NoError(t, s.StartRun(ctx, rec.ID))
	require.ErrorIs(t, s.StartRun(ctx, rec.ID), ErrNotPending)

	got, err := s.GetRun(ctx, rec.ID, nil)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, got.Status)
	require.NotNil(t, got.StartedAt)

	require.NoError(t, s.CompleteRun(ctx, rec.ID, CompleteInput{
		OutputText: "done", TokensInput: 10, TokensOutput: 5, ToolRounds: 1,
		BudgetTokensRemaining: 29985,
	}))

	got, err = s.GetRun(ctx, rec.ID, nil)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, "done", got.OutputText)
}

func TestInMemoryStore_FailRunIsIdempotentAgainstTerminal(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	rec, err := s.CreateRun(ctx, CreateInput{TenantID: uuid.New(), Profile: ProfileReactive})
	require.NoError(t, err)
	require.NoError(t, s.StartRun(ctx, rec.ID))
	require.NoError(t, s.CompleteRun(ctx, rec.ID, CompleteInput{OutputText: "ok"}))

	// A racing abort hook must not clobber the prior terminal state.
	require.NoError(t, s.FailRun(ctx, rec.ID, "worker_aborted", "aborted", StatusFailed))

	got, err := s.GetRun(ctx, rec.ID, nil)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Empty(t, got.ErrorCode)
}

func TestInMemoryStore_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	tenantA, tenantB := uuid.New(), uuid.New()
	rec, err := s.CreateRun(ctx, CreateInput{TenantID: tenantA, Profile: ProfileReactive})
	require.NoError(t, err)

	_, err = s.GetRun(ctx, rec.ID, &tenantB)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetRun(ctx, rec.ID, &tenantA)
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, tenantB, ListFilter{})
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestInMemoryStore_FindStuckRuns(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	rec, err := s.CreateRun(ctx, CreateInput{TenantID: uuid.New(), Profile: ProfileReactive})
	require.NoError(t, err)
	require.NoError(t, s.StartRun(ctx, rec.ID))

	stuck, err := s.FindStuckRuns(ctx, fixed.Add(-1*time.Second))
	require.NoError(t, err)
	require.Empty(t, stuck)

	stuck, err = s.FindStuckRuns(ctx, fixed.Add(1*time.Second))
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	require.Equal(t, rec.ID, stuck[0].ID)
}

func TestProfile_Order(t *testing.T) {
	require.Less(t, ProfileReactive.Order(), ProfileBalanced.Order())
	require.Less(t, ProfileBalanced.Order(), ProfilePro.Order())
	require.Less(t, ProfilePro.Order(), ProfileExec.Order())
	require.Equal(t, ProfileReactive.Order(), Profile("unknown").Order())
}
