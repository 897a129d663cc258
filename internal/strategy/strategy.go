// Package strategy provides the signal policies the tick orchestrator
// evaluates while idle.
//
// A Policy receives one Context per tick and emits a Signal when its entry
// conditions hold, or nil to skip. Policies are stateful (crossover
// detection needs the previous tick) and single-goroutine, like the rest of
// an instance.
package strategy

import (
	"fmt"
	"time"

	"intraday-botv1/internal/model"
)

// Context is the per-tick input to a policy. Indicator fields carry an OK
// flag; a policy must not act on a value whose flag is clear.
type Context struct {
	Price float64

	CCI     float64
	PrevCCI float64
	CCIOK   bool
	HasPrev bool

	FastEMA float64
	SlowEMA float64
	FastOK  bool
	SlowOK  bool
}

// Signal is a qualified entry signal.
type Signal struct {
	Action model.Action
	Reason string
}

// Policy evaluates entry conditions. Delay is the mandated wait between
// signal detection and bracket submission (zero = submit on the same tick).
type Policy interface {
	Name() string
	Delay() time.Duration
	Evaluate(Context) *Signal
}

// New builds a policy by kind. Kinds: cci200, cci-cross, cci120, ema-cross.
func New(kind string) (Policy, error) {
	switch kind {
	case "cci200":
		return NewCCI200(), nil
	case "cci-cross":
		return NewCCICross(), nil
	case "cci120":
		return NewCCI120(), nil
	case "ema-cross":
		return NewEMACross(), nil
	default:
		return nil, fmt.Errorf("strategy: unknown policy kind %q", kind)
	}
}
