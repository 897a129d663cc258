package strategy

import (
	"time"

	"intraday-botv1/internal/model"
)

// CCICross is the zero-cross policy with a fast-EMA price filter.
//
// Buy signal: CCI crosses from below zero to above zero AND price > fast EMA.
// Sell signal: CCI crosses from above zero to below zero AND price < fast EMA.
//
// Every signal waits out a 3-minute delay before the bracket is submitted;
// the orchestrator holds the signal in SIGNAL_PENDING for that window.
type CCICross struct{}

// NewCCICross creates the zero-cross policy.
func NewCCICross() *CCICross { return &CCICross{} }

func (*CCICross) Name() string        { return "cci-cross" }
func (*CCICross) Delay() time.Duration { return 3 * time.Minute }

func (*CCICross) Evaluate(ctx Context) *Signal {
	if !ctx.CCIOK || !ctx.HasPrev || !ctx.FastOK {
		return nil
	}
	if ctx.PrevCCI < 0 && ctx.CCI > 0 && ctx.Price > ctx.FastEMA {
		return &Signal{Action: model.ActionBuy, Reason: "CCI crossed above zero, price above fast EMA"}
	}
	if ctx.PrevCCI > 0 && ctx.CCI < 0 && ctx.Price < ctx.FastEMA {
		return &Signal{Action: model.ActionSell, Reason: "CCI crossed below zero, price below fast EMA"}
	}
	return nil
}
