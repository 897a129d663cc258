package strategy

import (
	"time"

	"intraday-botv1/internal/model"
)

// EMACross is the fast/slow EMA crossover policy.
//
// Buy signal: fast EMA crosses above slow EMA (golden cross)
// Sell signal: fast EMA crosses below slow EMA (death cross)
type EMACross struct {
	prevFast float64
	prevSlow float64
	ready    bool
}

// NewEMACross creates the crossover policy.
func NewEMACross() *EMACross { return &EMACross{} }

func (*EMACross) Name() string        { return "ema-cross" }
func (*EMACross) Delay() time.Duration { return 0 }

func (p *EMACross) Evaluate(ctx Context) *Signal {
	if !ctx.FastOK || !ctx.SlowOK {
		return nil
	}
	defer func() {
		p.prevFast = ctx.FastEMA
		p.prevSlow = ctx.SlowEMA
		p.ready = true
	}()
	if !p.ready {
		return nil
	}

	if p.prevFast <= p.prevSlow && ctx.FastEMA > ctx.SlowEMA {
		return &Signal{Action: model.ActionBuy, Reason: "EMA golden cross (fast > slow)"}
	}
	if p.prevFast >= p.prevSlow && ctx.FastEMA < ctx.SlowEMA {
		return &Signal{Action: model.ActionSell, Reason: "EMA death cross (fast < slow)"}
	}
	return nil
}
