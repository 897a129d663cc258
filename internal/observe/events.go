// Package observe defines the structured observability events the decision
// engine emits (phase transitions, per-tick records, indicator snapshots,
// and gate actions) and the sinks that deliver them (console log, Redis
// streams). The engine emits exactly one record per transition and per
// detected gate action; sinks decide the destination.
package observe

import "time"

// PhaseChange records one trade-phase transition.
type PhaseChange struct {
	Instance   string        `json:"instance"`
	From       string        `json:"from"`
	To         string        `json:"to"`
	Reason     string        `json:"reason"`
	At         time.Time     `json:"at"`
	InPrevious time.Duration `json:"in_previous"`
}

// TickRecord is the per-tick price/CCI record, with optional diagnostic
// annotations (EMA readings and similar) attached via the annotation hook.
type TickRecord struct {
	Instance    string             `json:"instance"`
	At          time.Time          `json:"at"`
	Price       float64            `json:"price"`
	CCI         float64            `json:"cci,omitempty"`
	CCIOK       bool               `json:"cci_ok"`
	Annotations map[string]float64 `json:"annotations,omitempty"`
}

// Snapshot is a periodic indicator snapshot.
type Snapshot struct {
	Instance   string             `json:"instance"`
	At         time.Time          `json:"at"`
	EMAs       map[string]float64 `json:"emas,omitempty"`
	CCI        float64            `json:"cci,omitempty"`
	CCIOK      bool               `json:"cci_ok"`
	HistoryLen int                `json:"history_len"`
}

// GateAction records a detected force-close or shutdown.
type GateAction struct {
	Instance string    `json:"instance"`
	At       time.Time `json:"at"`
	Action   string    `json:"action"` // force_close | shutdown
}

// Skip records a skipped tick (fetch failure/timeout, invalid sample).
type Skip struct {
	Instance string    `json:"instance"`
	At       time.Time `json:"at"`
	Reason   string    `json:"reason"`
}

// Sink receives structured events. Implementations must tolerate being
// called from multiple instance goroutines concurrently.
type Sink interface {
	PhaseChange(PhaseChange)
	Tick(TickRecord)
	Snapshot(Snapshot)
	GateAction(GateAction)
	Skip(Skip)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) PhaseChange(PhaseChange) {}
func (NopSink) Tick(TickRecord)         {}
func (NopSink) Snapshot(Snapshot)       {}
func (NopSink) GateAction(GateAction)   {}
func (NopSink) Skip(Skip)               {}

// MultiSink fans events out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) PhaseChange(e PhaseChange) {
	for _, s := range m {
		s.PhaseChange(e)
	}
}

func (m MultiSink) Tick(e TickRecord) {
	for _, s := range m {
		s.Tick(e)
	}
}

func (m MultiSink) Snapshot(e Snapshot) {
	for _, s := range m {
		s.Snapshot(e)
	}
}

func (m MultiSink) GateAction(e GateAction) {
	for _, s := range m {
		s.GateAction(e)
	}
}

func (m MultiSink) Skip(e Skip) {
	for _, s := range m {
		s.Skip(e)
	}
}
