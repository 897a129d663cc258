package strategy

import (
	"time"

	"intraday-botv1/internal/model"
)

// CCI120 is the ±120 reversal policy.
//
// Long pattern over the last three CCI values: dipped below −120, recovered
// above −120, and still rising. Short pattern mirrored around +120. A trend
// filter confirms each side: long needs fast EMA > slow EMA, short the
// opposite.
//
// The policy keeps its own history of defined CCI values; undefined ticks
// (warm-up, zero dispersion) do not enter the pattern.
type CCI120 struct {
	hist [3]float64
	n    int
}

// NewCCI120 creates the reversal policy.
func NewCCI120() *CCI120 { return &CCI120{} }

func (*CCI120) Name() string        { return "cci120" }
func (*CCI120) Delay() time.Duration { return 0 }

func (p *CCI120) Evaluate(ctx Context) *Signal {
	if !ctx.CCIOK {
		return nil
	}
	p.hist[0], p.hist[1] = p.hist[1], p.hist[2]
	p.hist[2] = ctx.CCI
	if p.n < 3 {
		p.n++
	}
	if p.n < 3 || !ctx.FastOK || !ctx.SlowOK {
		return nil
	}

	v := p.hist
	longPattern := v[0] < -120 && v[1] > -120 && v[2] > v[1]
	shortPattern := v[0] >= 120 && v[1] < 120 && v[2] < v[1]

	if longPattern && ctx.FastEMA > ctx.SlowEMA {
		return &Signal{Action: model.ActionBuy, Reason: "CCI -120 reversal, uptrend confirmed"}
	}
	if shortPattern && ctx.FastEMA < ctx.SlowEMA {
		return &Signal{Action: model.ActionSell, Reason: "CCI +120 reversal, downtrend confirmed"}
	}
	return nil
}
