package schedule

import "time"

// Decision is the gate's verdict for one tick.
type Decision struct {
	// TradingAllowed permits new entries. Existing positions are monitored
	// regardless.
	TradingAllowed bool

	// ForceClose orders an immediate flatten of any open position; the
	// polling loop continues.
	ForceClose bool

	// Shutdown orders a final cancel + flatten; the loop terminates after
	// this tick.
	Shutdown bool
}

// Gate evaluates a schedule against the current time. The only mutable
// state is the next force-close deadline, which rolls forward one calendar
// day each time it fires: force-close never fires twice on the same day.
type Gate struct {
	cfg Config
	loc *time.Location

	nextForceClose time.Time
}

// NewGate validates the config and builds a gate.
func NewGate(cfg Config) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.location()
	if err != nil {
		return nil, err
	}
	return &Gate{cfg: cfg, loc: loc}, nil
}

// Evaluate returns the gate decision for now. The checks run in a fixed
// order (force-close, pause window, new-order cutoff, shutdown) so that
// a tick where force-close and shutdown coincide actions force-close first.
func (g *Gate) Evaluate(now time.Time) Decision {
	local := now.In(g.loc)
	hm := local.Hour()*60 + local.Minute()
	d := Decision{TradingAllowed: true}

	// 1. Force-close: at most once per day, then roll to the same wall
	// clock on the next calendar day.
	if g.cfg.ForceClose != nil {
		if g.nextForceClose.IsZero() {
			// First evaluation: today's occurrence. A start after the
			// trigger time still fires once for today.
			g.nextForceClose = time.Date(local.Year(), local.Month(), local.Day(),
				g.cfg.ForceClose.Hour, g.cfg.ForceClose.Minute, 0, 0, g.loc)
		}
		if !local.Before(g.nextForceClose) {
			d.ForceClose = true
			// Roll from the current day, not the fired deadline: after a
			// tick gap spanning days the deadline may be far behind, and
			// rolling it one day at a time would fire once per lagging day.
			g.nextForceClose = time.Date(local.Year(), local.Month(), local.Day()+1,
				g.cfg.ForceClose.Hour, g.cfg.ForceClose.Minute, 0, 0, g.loc)
		}
	}

	// 2. Pause window: no new entries while inside it.
	if g.cfg.Pause != nil && g.cfg.Pause.Contains(hm) {
		d.TradingAllowed = false
	}

	// 3. New-order cutoff.
	if g.cfg.Cutoff != nil && hm >= g.cfg.Cutoff.Minutes() {
		d.TradingAllowed = false
	}

	// 4. Shutdown window.
	if g.cfg.ShutdownAt != nil && hm >= g.cfg.ShutdownAt.Minutes() {
		d.Shutdown = true
	}

	return d
}

// NextForceClose exposes the pending deadline for diagnostics. Zero until
// the first evaluation.
func (g *Gate) NextForceClose() time.Time { return g.nextForceClose }
