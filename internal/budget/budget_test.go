package budget

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManager_ConsumeBoundary(t *testing.T) {
	m := New(1000)
	require.NoError(t, m.Consume(1000))
	require.Equal(t, 0, m.Remaining())

	err := m.Consume(1)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 1, exhausted.Requested)
	require.Equal(t, 0, exhausted.Remaining)
}

func TestManager_ConsumeSafe(t *testing.T) {
	m := New(100)
	require.True(t, m.ConsumeSafe(50))
	require.False(t, m.ConsumeSafe(51))
	require.True(t, m.ConsumeSafe(50))
}

func TestManager_ReserveAndRelease(t *testing.T) {
	m := New(1000)
	res, err := m.Reserve("delegation-1", 300)
	require.NoError(t, err)
	require.Equal(t, 700, m.Remaining())

	require.NoError(t, res.Consume(120))
	require.Equal(t, 180, res.Remaining())

	returned, err := res.Release()
	require.NoError(t, err)
	require.Equal(t, 180, returned)
	require.Equal(t, 880, m.Remaining())
	require.Equal(t, 120, m.consumed)
}

func TestManager_ReserveDuplicateLabel(t *testing.T) {
	m := New(1000)
	_, err := m.Reserve("x", 100)
	require.NoError(t, err)
	_, err = m.Reserve("x", 100)
	var resErr *ReservationError
	require.ErrorAs(t, err, &resErr)
}

func TestManager_DoubleReleaseFails(t *testing.T) {
	m := New(1000)
	res, err := m.Reserve("x", 100)
	require.NoError(t, err)
	_, err = res.Release()
	require.NoError(t, err)
	_, err = res.Release()
	require.True(t, errors.As(err, new(*ReservationError)))
}

func TestManager_ReserveThenReleaseWithNoConsumptionIsNoOp(t *testing.T) {
	m := New(1000)
	before := m.Snapshot()
	res, err := m.Reserve("noop", 250)
	require.NoError(t, err)
	_, err = res.Release()
	require.NoError(t, err)
	after := m.Snapshot()
	require.Equal(t, before, after)
}

func TestManager_ReserveExceedsRemainingFails(t *testing.T) {
	m := New(100)
	_, err := m.Reserve("big", 101)
	require.Error(t, err)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
}

func TestManager_Snapshot(t *testing.T) {
	m := New(1000)
	require.NoError(t, m.Consume(200))
	_, err := m.Reserve("label", 100)
	require.NoError(t, err)

	snap := m.Snapshot()
	require.Equal(t, 1000, snap.Total)
	require.Equal(t, 200, snap.Consumed)
	require.Equal(t, 700, snap.Remaining)
	require.Equal(t, 800, snap.HardRemaining)
	require.Equal(t, 100, snap.Reservations["label"].Remaining)
}

func TestDefaultForProfile(t *testing.T) {
	require.Equal(t, DefaultReactive, DefaultForProfile("reactive"))
	require.Equal(t, DefaultBalanced, DefaultForProfile("balanced"))
	require.Equal(t, DefaultPro, DefaultForProfile("pro"))
	require.Equal(t, DefaultExec, DefaultForProfile("exec"))
	require.Equal(t, DefaultReactive, DefaultForProfile("unknown"))
}

func TestDelegationCapsForProfile(t *testing.T) {
	require.Equal(t, DelegationCaps{}, DelegationCapsForProfile("reactive"))
	require.Equal(t, DelegationCaps{MaxDelegations: 1, MaxTokensPer: 800}, DelegationCapsForProfile("balanced"))
	require.Equal(t, DelegationCaps{MaxDelegations: 2, MaxTokensPer: 1200}, DelegationCapsForProfile("pro"))
	require.Equal(t, DelegationCaps{MaxDelegations: 2, MaxTokensPer: 1200}, DelegationCapsForProfile("exec"))
}
