package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_CreateSessionIsIdempotent(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()
	a, err := s.CreateSession(context.Background(), "sess-1", now)
	require.NoError(t, err)
	b, err := s.CreateSession(context.Background(), "sess-1", now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestInMemoryStore_CreateSessionAfterEndFails(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()
	_, err := s.CreateSession(context.Background(), "sess-1", now)
	require.NoError(t, err)
	_, err = s.EndSession(context.Background(), "sess-1", now.Add(time.Minute))
	require.NoError(t, err)

	_, err = s.CreateSession(context.Background(), "sess-1", now.Add(2*time.Minute))
	require.ErrorIs(t, err, ErrSessionEnded)
}

func TestInMemoryStore_EndSessionIsIdempotent(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()
	_, err := s.CreateSession(context.Background(), "sess-1", now)
	require.NoError(t, err)
	first, err := s.EndSession(context.Background(), "sess-1", now.Add(time.Minute))
	require.NoError(t, err)
	second, err := s.EndSession(context.Background(), "sess-1", now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestInMemoryStore_LoadSessionNotFound(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.LoadSession(context.Background(), "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestInMemoryStore_RunLifecycle(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()
	require.NoError(t, s.UpsertRun(context.Background(), RunMeta{RunID: "r1", SessionID: "sess-1", Status: RunStatusRunning, StartedAt: now}))
	require.NoError(t, s.UpsertRun(context.Background(), RunMeta{RunID: "r2", SessionID: "sess-1", Status: RunStatusCompleted, StartedAt: now}))
	require.NoError(t, s.UpsertRun(context.Background(), RunMeta{RunID: "r3", SessionID: "sess-2", Status: RunStatusRunning, StartedAt: now}))

	all, err := s.ListRunsBySession(context.Background(), "sess-1", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	running, err := s.ListRunsBySession(context.Background(), "sess-1", []RunStatus{RunStatusRunning})
	require.NoError(t, err)
	require.Len(t, running, 1)
	require.Equal(t, "r1", running[0].RunID)

	_, err = s.LoadRun(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}
