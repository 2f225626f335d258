package runlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_AppendAndList(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(context.Background(), &Event{
			RunID: "r1", Type: EventRoundStarted, Timestamp: now,
		}))
	}
	require.NoError(t, s.Append(context.Background(), &Event{
		RunID: "r2", Type: EventRunCompleted, Timestamp: now,
	}))

	page, err := s.List(context.Background(), "r1", "", 100)
	require.NoError(t, err)
	require.Len(t, page.Events, 5)
	require.Empty(t, page.NextCursor)
}

func TestInMemoryStore_ListPaginatesWithCursor(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(context.Background(), &Event{
			RunID: "r1", Type: EventRoundStarted, Timestamp: now,
		}))
	}

	first, err := s.List(context.Background(), "r1", "", 2)
	require.NoError(t, err)
	require.Len(t, first.Events, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := s.List(context.Background(), "r1", first.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, second.Events, 2)
	require.NotEmpty(t, second.NextCursor)

	third, err := s.List(context.Background(), "r1", second.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, third.Events, 1)
	require.Empty(t, third.NextCursor)
}

func TestInMemoryStore_ListUnknownRunReturnsEmptyPage(t *testing.T) {
	s := NewInMemoryStore()
	page, err := s.List(context.Background(), "missing", "", 10)
	require.NoError(t, err)
	require.Empty(t, page.Events)
	require.Empty(t, page.NextCursor)
}

func TestInMemoryStore_ListRejectsNonPositiveLimit(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.List(context.Background(), "r1", "", 0)
	require.Error(t, err)
}

func TestInMemoryStore_ListRejectsInvalidCursor(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.List(context.Background(), "r1", "not-a-number", 10)
	require.Error(t, err)
}
