package strategy

import (
	"time"

	"intraday-botv1/internal/model"
)

// CCI200 is the mean-reversion threshold policy: SELL the moment CCI
// exceeds +200, BUY the moment it drops below −200. No entry delay.
type CCI200 struct{}

// NewCCI200 creates the ±200 threshold policy.
func NewCCI200() *CCI200 { return &CCI200{} }

func (*CCI200) Name() string        { return "cci200" }
func (*CCI200) Delay() time.Duration { return 0 }

func (*CCI200) Evaluate(ctx Context) *Signal {
	if !ctx.CCIOK {
		return nil
	}
	switch {
	case ctx.CCI > 200:
		return &Signal{Action: model.ActionSell, Reason: "CCI above +200"}
	case ctx.CCI < -200:
		return &Signal{Action: model.ActionBuy, Reason: "CCI below -200"}
	}
	return nil
}
