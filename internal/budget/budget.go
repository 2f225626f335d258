// Package budget implements the run-scoped token budget: an overall ceiling
// plus named sub-budgets ("reservations") carved out for delegation or heavy
// tool calls and folded back on release.
//
// A Manager is owned by exactly one goroutine for the lifetime of a run (the
// worker driving that run's agent loop); it holds no internal lock, the same
// single-owner contract the teacher's policy.CapsState snapshot relies on.
package budget

import (
	"fmt"
)

// ExhaustedError reports that a consume or reserve call would exceed the
// remaining budget. It implements error and carries the requested and
// available amounts for callers that want to log or surface them.
type ExhaustedError struct {
	Requested int
	Remaining int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("budget exhausted: requested %d, remaining %d", e.Requested, e.Remaining)
}

// ReservationError reports a misuse of the reservation API: creating a
// reservation under a label that already exists, or releasing a reservation
// twice.
type ReservationError struct {
	Label string
	Msg   string
}

func (e *ReservationError) Error() string {
	return fmt.Sprintf("reservation %q: %s", e.Label, e.Msg)
}

// Reservation is a labeled sub-budget carved from a Manager. It is consumed
// against independently of the parent and returns its unused remainder to the
// parent on Release.
type Reservation struct {
	Label     string
	Allocated int
	Consumed  int
	mgr       *Manager
	released  bool
}

// Remaining returns the unconsumed portion of the reservation.
func (r *Reservation) Remaining() int {
	return r.Allocated - r.Consumed
}

// Consume charges n tokens against the reservation. Fails with
// *ExhaustedError if n exceeds the reservation's remaining allowance.
func (r *Reservation) Consume(n int) error {
	if n > r.Remaining() {
		return &ExhaustedError{Requested: n, Remaining: r.Remaining()}
	}
	r.Consumed += n
	return nil
}

// Release folds the reservation's consumed amount into the parent Manager's
// consumed total and returns the unused remainder to the parent's pool. It
// must be called exactly once per reservation; a second call fails with
// *ReservationError. Callers should defer Release immediately after Reserve
// succeeds so it still runs on error paths (SPEC_FULL.md §9 "scoped
// resources").
func (r *Reservation) Release() (returned int, err error) {
	if r.released {
		return 0, &ReservationError{Label: r.Label, Msg: "already released"}
	}
	r.released = true
	r.mgr.consumed += r.Consumed
	delete(r.mgr.reservations, r.Label)
	return r.Remaining(), nil
}

// Manager is the per-run token ledger described in SPEC_FULL.md §4.2.
type Manager struct {
	total           int
	consumed        int
	reservations    map[string]*Reservation
	delegationsUsed int
}

// Defaults by AgentProfile, per SPEC_FULL.md §4.2. Keyed by the profile
// string so callers in internal/run can pass run.Profile values directly
// without an import cycle.
const (
	DefaultReactive = 8000
	DefaultBalanced = 30000
	DefaultPro      = 80000
	DefaultExec     = 200000
)

// DefaultForProfile returns the default token budget for a profile name.
// Unknown profiles default to the reactive ceiling.
func DefaultForProfile(profile string) int {
	switch profile {
	case "balanced":
		return DefaultBalanced
	case "pro":
		return DefaultPro
	case "exec":
		return DefaultExec
	default:
		return DefaultReactive
	}
}

// New constructs a Manager with the given total token ceiling.
func New(total int) *Manager {
	return &Manager{total: total, reservations: make(map[string]*Reservation)}
}

func (m *Manager) reservedRemaining() int {
	sum := 0
	for _, r := range m.reservations {
		sum += r.Remaining()
	}
	return sum
}

// Remaining returns total - consumed - sum(reservation.remaining).
func (m *Manager) Remaining() int {
	return m.total - m.consumed - m.reservedRemaining()
}

// HardRemaining returns total - consumed, ignoring outstanding reservations.
func (m *Manager) HardRemaining() int {
	return m.total - m.consumed
}

// Check reports whether n tokens could currently be consumed without error.
func (m *Manager) Check(n int) bool {
	return n <= m.Remaining()
}

// Consume charges n tokens directly against the manager. Fails with
// *ExhaustedError if n exceeds Remaining().
func (m *Manager) Consume(n int) error {
	if n > m.Remaining() {
		return &ExhaustedError{Requested: n, Remaining: m.Remaining()}
	}
	m.consumed += n
	return nil
}

// ConsumeSafe behaves like Consume but reports failure via the bool return
// instead of an error, for call sites (the agent loop's round-end accounting)
// that want to degrade gracefully rather than branch on an error type.
func (m *Manager) ConsumeSafe(n int) bool {
	return m.Consume(n) == nil
}

// Reserve carves out a labeled sub-budget of n tokens. Fails with
// *ReservationError if the label is already in use, or *ExhaustedError if n
// exceeds Remaining().
func (m *Manager) Reserve(label string, n int) (*Reservation, error) {
	if _, exists := m.reservations[label]; exists {
		return nil, &ReservationError{Label: label, Msg: "label already reserved"}
	}
	if n > m.Remaining() {
		return nil, &ExhaustedError{Requested: n, Remaining: m.Remaining()}
	}
	r := &Reservation{Label: label, Allocated: n, mgr: m}
	m.reservations[label] = r
	return r, nil
}

// Snapshot is a serializable, point-in-time copy of a Manager's state, safe
// to hand to telemetry or to embed in a Run's persisted metadata.
type Snapshot struct {
	Total         int                      `json:"total"`
	Consumed      int                      `json:"consumed"`
	Remaining     int                      `json:"remaining"`
	HardRemaining int                      `json:"hard_remaining"`
	Reservations  map[string]ReservationView `json:"reservations"`
}

// ReservationView is the serializable view of one outstanding Reservation.
type ReservationView struct {
	Allocated int `json:"allocated"`
	Consumed  int `json:"consumed"`
	Remaining int `json:"remaining"`
}

// Snapshot returns a copy of the manager's current accounting state.
func (m *Manager) Snapshot() Snapshot {
	views := make(map[string]ReservationView, len(m.reservations))
	for label, r := range m.reservations {
		views[label] = ReservationView{
			Allocated: r.Allocated,
			Consumed:  r.Consumed,
			Remaining: r.Remaining(),
		}
	}
	return Snapshot{
		Total:         m.total,
		Consumed:      m.consumed,
		Remaining:     m.Remaining(),
		HardRemaining: m.HardRemaining(),
		Reservations:  views,
	}
}

// DelegationCaps describes the per-profile delegation budget ceiling
// (SPEC_FULL.md §4.3): how many delegation calls a run may make and the
// token reservation each one is allowed.
type DelegationCaps struct {
	MaxDelegations int
	MaxTokensPer   int
}

// DelegationCapsForProfile returns the delegation caps for a profile name.
// Reactive runs may not delegate at all.
func DelegationCapsForProfile(profile string) DelegationCaps {
	switch profile {
	case "balanced":
		return DelegationCaps{MaxDelegations: 1, MaxTokensPer: 800}
	case "pro", "exec":
		return DelegationCaps{MaxDelegations: 2, MaxTokensPer: 1200}
	default:
		return DelegationCaps{}
	}
}

// UseDelegation reports whether one more delegation call is allowed under
// cap and, if so, counts it. A Reservation's Release removes it from
// m.reservations, so the reservation map can't answer "how many delegation
// calls has this run made" on its own; this counter is the run-lifetime
// record Reserve/Release don't keep.
func (m *Manager) UseDelegation(cap int) bool {
	if m.delegationsUsed >= cap {
		return false
	}
	m.delegationsUsed++
	return true
}
