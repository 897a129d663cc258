// Package engine runs the per-tick decision loop for one strategy instance:
// trading-window gate, bounded price fetch, indicator update, trade lifecycle
// maintenance, and signal-policy evaluation.
//
// One tick is fully processed before the next is considered. An instance is
// single-goroutine; instances share nothing mutable except the process-wide
// observability sinks, which are safe for concurrent use.
package engine

import (
	"fmt"
	"time"

	"intraday-botv1/internal/indicator"
	"intraday-botv1/internal/model"
	"intraday-botv1/internal/schedule"
)

// Config describes one strategy instance.
type Config struct {
	// Name identifies the instance in logs, events, and metrics.
	Name string

	Contract model.Contract

	// Interval is the tick cadence. The price fetch is bounded by it: a
	// fetch that outlives the interval is a skipped tick.
	Interval time.Duration

	// Bracket sizing. TP/SL prices are EntryRef ± TickSize × ticks,
	// direction-aware.
	Quantity     int64
	TickSize     float64
	SLTicks      int
	TPTicksLong  int
	TPTicksShort int

	// SnapshotEvery emits an indicator snapshot every N ticks (0 = off).
	SnapshotEvery int

	// AnnotateEMAs attaches current EMA readings to every tick record.
	AnnotateEMAs bool

	Indicators indicator.Config
	Schedule   schedule.Config
}

// Validate fails fast on a config no tick should ever run with.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("engine: instance name required")
	}
	if err := c.Contract.Validate(); err != nil {
		return fmt.Errorf("engine: %s: %w", c.Name, err)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("engine: %s: non-positive check interval %v", c.Name, c.Interval)
	}
	if c.Quantity <= 0 {
		return fmt.Errorf("engine: %s: non-positive quantity %d", c.Name, c.Quantity)
	}
	if c.TickSize <= 0 {
		return fmt.Errorf("engine: %s: non-positive tick size %v", c.Name, c.TickSize)
	}
	if c.SLTicks <= 0 || c.TPTicksLong <= 0 || c.TPTicksShort <= 0 {
		return fmt.Errorf("engine: %s: bracket tick counts must be positive", c.Name)
	}
	if err := c.Schedule.Validate(); err != nil {
		return fmt.Errorf("engine: %s: %w", c.Name, err)
	}
	return nil
}

// TickContext is what one tick produced. Price and CCI carry OK flags: a
// blocked or skipped tick has neither, a warm-up tick has a price but no CCI.
type TickContext struct {
	Price   float64
	PriceOK bool
	CCI     float64
	CCIOK   bool
}

// bracketSpec prices the three legs off the reference price.
func bracketSpec(cfg Config, action model.Action, ref float64) model.BracketSpec {
	spec := model.BracketSpec{
		Contract: cfg.Contract,
		Action:   action,
		Qty:      cfg.Quantity,
		EntryRef: ref,
	}
	if action == model.ActionBuy {
		spec.TakeProfit = ref + cfg.TickSize*float64(cfg.TPTicksLong)
		spec.StopLoss = ref - cfg.TickSize*float64(cfg.SLTicks)
	} else {
		spec.TakeProfit = ref - cfg.TickSize*float64(cfg.TPTicksShort)
		spec.StopLoss = ref + cfg.TickSize*float64(cfg.SLTicks)
	}
	return spec
}
