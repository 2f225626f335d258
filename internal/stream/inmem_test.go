package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInMemoryPublisher_AssignsIncrementingSeq(t *testing.T) {
	p := NewInMemoryPublisher()
	require.NoError(t, p.Status("starting"))
	require.NoError(t, p.Delta("hello"))
	require.NoError(t, p.Done(10, 20, 1, 0, 0))

	require.Len(t, p.Events, 3)
	require.Equal(t, int64(1), p.Events[0].Seq)
	require.Equal(t, int64(2), p.Events[1].Seq)
	require.Equal(t, int64(3), p.Events[2].Seq)
	require.Equal(t, []EventType{EventStatus, EventDelta, EventDone}, p.Types())
}

func TestInMemoryPublisher_Last(t *testing.T) {
	p := NewInMemoryPublisher()
	require.Equal(t, Event{}, p.Last())
	require.NoError(t, p.Status("starting"))
	require.Equal(t, EventStatus, p.Last().Type)
}

func TestEventType_Terminal(t *testing.T) {
	require.True(t, EventDone.Terminal())
	require.True(t, EventError.Terminal())
	require.False(t, EventDelta.Terminal())
	require.False(t, EventStatus.Terminal())
}

func TestDefaultConsumerOptions(t *testing.T) {
	opts := DefaultConsumerOptions()
	require.Equal(t, "0-0", opts.LastID)
	require.Greater(t, opts.HardTimeout, opts.HeartbeatInterval)
}
