// Package lifecycle owns the trade-phase state machine for one strategy
// instance: signal detection → bracket submission → fill monitoring → exit →
// reset, plus the forced paths driven by the trading window gate.
//
// Exactly one phase is active at a time. CLOSED is never a resting state:
// every path through it resets to IDLE within the same call, so external
// readers only ever see the CLOSED transition event, not a CLOSED machine.
package lifecycle

import (
	"fmt"
	"time"

	"intraday-botv1/internal/model"
)

// Phase is the trade lifecycle phase.
type Phase string

const (
	PhaseIdle          Phase = "IDLE"
	PhaseSignalPending Phase = "SIGNAL_PENDING"
	PhaseBracketSent   Phase = "BRACKET_SENT"
	PhaseActive        Phase = "ACTIVE"
	PhaseExiting       Phase = "EXITING"
	PhaseClosed        Phase = "CLOSED"
)

// Transition is the observability record emitted for every phase change.
type Transition struct {
	From       Phase         `json:"from"`
	To         Phase         `json:"to"`
	Reason     string        `json:"reason"`
	At         time.Time     `json:"at"`
	InPrevious time.Duration `json:"in_previous"` // time spent in From
}

// PendingSignal is a detected entry signal waiting out its delay window.
type PendingSignal struct {
	Action model.Action
	Reason string
	At     time.Time
}

// Machine tracks the phase and bracket bookkeeping for one instrument.
// Single-goroutine by design; the caller supplies every timestamp, so the
// machine never reads the wall clock.
type Machine struct {
	phase     Phase
	enteredAt time.Time

	pending   PendingSignal
	hasSignal bool

	handles    model.BracketHandles
	hasBracket bool
	direction  model.Direction
	stopPrice  float64

	emit func(Transition)
}

// New creates a machine in IDLE. emit receives every transition event and
// may be nil.
func New(start time.Time, emit func(Transition)) *Machine {
	if emit == nil {
		emit = func(Transition) {}
	}
	return &Machine{phase: PhaseIdle, enteredAt: start, emit: emit}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// EnteredAt returns when the current phase was entered.
func (m *Machine) EnteredAt() time.Time { return m.enteredAt }

// Pending returns the waiting signal, if any.
func (m *Machine) Pending() (PendingSignal, bool) { return m.pending, m.hasSignal }

// Bracket returns the outstanding bracket handles, if any.
func (m *Machine) Bracket() (model.BracketHandles, bool) { return m.handles, m.hasBracket }

// Direction returns the open (or opening) position direction; empty when
// none.
func (m *Machine) Direction() model.Direction { return m.direction }

// StopPrice returns the stored stop level for manual breach monitoring.
// Zero when no bracket is outstanding.
func (m *Machine) StopPrice() float64 { return m.stopPrice }

// set moves to a new phase, emitting one transition event.
func (m *Machine) set(to Phase, now time.Time, reason string) {
	m.emit(Transition{
		From:       m.phase,
		To:         to,
		Reason:     reason,
		At:         now,
		InPrevious: now.Sub(m.enteredAt),
	})
	m.phase = to
	m.enteredAt = now
}

// closeAndReset passes through CLOSED and immediately resets to IDLE,
// clearing all bracket bookkeeping. Emits exactly two events.
func (m *Machine) closeAndReset(now time.Time, reason string) {
	m.set(PhaseClosed, now, reason)
	m.clear()
	m.set(PhaseIdle, now, "reset after close")
}

func (m *Machine) clear() {
	m.pending = PendingSignal{}
	m.hasSignal = false
	m.handles = model.BracketHandles{}
	m.hasBracket = false
	m.direction = ""
	m.stopPrice = 0
}

func (m *Machine) badPhase(op string) error {
	return fmt.Errorf("lifecycle: %s not valid in phase %s", op, m.phase)
}

// SignalDetected records a qualified entry signal: IDLE → SIGNAL_PENDING.
func (m *Machine) SignalDetected(now time.Time, action model.Action, reason string) error {
	if m.phase != PhaseIdle {
		return m.badPhase("signal")
	}
	m.pending = PendingSignal{Action: action, Reason: reason, At: now}
	m.hasSignal = true
	m.set(PhaseSignalPending, now, reason)
	return nil
}

// DelayElapsed reports whether the mandated signal delay has passed.
func (m *Machine) DelayElapsed(now time.Time, delay time.Duration) bool {
	return m.hasSignal && now.Sub(m.pending.At) >= delay
}

// DiscardSignal drops the waiting signal: SIGNAL_PENDING → IDLE. Used when
// the gate blocks new orders before the delay elapses.
func (m *Machine) DiscardSignal(now time.Time, reason string) error {
	if m.phase != PhaseSignalPending {
		return m.badPhase("discard")
	}
	m.pending = PendingSignal{}
	m.hasSignal = false
	m.set(PhaseIdle, now, reason)
	return nil
}

// BracketSubmitted records a successful bracket submission:
// SIGNAL_PENDING → BRACKET_SENT. A failed submission is NOT reported here;
// the machine simply stays in SIGNAL_PENDING and the next tick retries.
func (m *Machine) BracketSubmitted(now time.Time, h model.BracketHandles, dir model.Direction, stop float64) error {
	if m.phase != PhaseSignalPending {
		return m.badPhase("bracket submission")
	}
	m.handles = h
	m.hasBracket = true
	m.direction = dir
	m.stopPrice = stop
	m.pending = PendingSignal{}
	m.hasSignal = false
	m.set(PhaseBracketSent, now, "bracket submitted")
	return nil
}

// EntryFilled records the entry leg fill: BRACKET_SENT → ACTIVE.
func (m *Machine) EntryFilled(now time.Time) error {
	if m.phase != PhaseBracketSent {
		return m.badPhase("entry fill")
	}
	m.set(PhaseActive, now, "entry filled")
	return nil
}

// ExitFilled records a TP or SL fill: ACTIVE → CLOSED → IDLE.
func (m *Machine) ExitFilled(now time.Time, reason string) error {
	if m.phase != PhaseActive {
		return m.badPhase("exit fill")
	}
	m.closeAndReset(now, reason)
	return nil
}

// StopBreached records a manual stop-level breach detected independently of
// the broker SL order: ACTIVE → EXITING.
func (m *Machine) StopBreached(now time.Time) error {
	if m.phase != PhaseActive {
		return m.badPhase("stop breach")
	}
	m.set(PhaseExiting, now, "manual stop breach")
	return nil
}

// FlattenConfirmed records the flatten fill: EXITING → CLOSED → IDLE.
func (m *Machine) FlattenConfirmed(now time.Time) error {
	if m.phase != PhaseExiting {
		return m.badPhase("flatten confirmation")
	}
	m.closeAndReset(now, "flatten filled")
	return nil
}

// ForceClose handles the gate's daily force-close: any in-flight phase
// resets to IDLE, passing through CLOSED only when a position was open.
// A no-op in IDLE.
func (m *Machine) ForceClose(now time.Time, positionOpen bool) {
	m.gateReset(now, positionOpen, "force close")
}

// Shutdown handles the gate's shutdown: same reset as force-close, after
// which the caller terminates the loop.
func (m *Machine) Shutdown(now time.Time, positionOpen bool) {
	m.gateReset(now, positionOpen, "shutdown")
}

func (m *Machine) gateReset(now time.Time, positionOpen bool, reason string) {
	if m.phase == PhaseIdle {
		return
	}
	if positionOpen {
		m.closeAndReset(now, reason)
		return
	}
	m.clear()
	m.set(PhaseIdle, now, reason)
}
