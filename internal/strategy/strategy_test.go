package strategy

import (
	"testing"
	"time"

	"intraday-botv1/internal/model"
)

func TestNew_Kinds(t *testing.T) {
	for _, kind := range []string{"cci200", "cci-cross", "cci120", "ema-cross"} {
		p, err := New(kind)
		if err != nil {
			t.Fatalf("New(%q): %v", kind, err)
		}
		if p.Name() != kind {
			t.Errorf("New(%q).Name()=%q", kind, p.Name())
		}
	}
	if _, err := New("fibonacci"); err == nil {
		t.Error("unknown kind accepted")
	}
}

func TestCCI200_Thresholds(t *testing.T) {
	p := NewCCI200()
	cases := []struct {
		cci  float64
		ok   bool
		want model.Action
	}{
		{250, true, model.ActionSell},
		{-250, true, model.ActionBuy},
		{200, true, ""},   // boundary not crossed
		{-200, true, ""},  // boundary not crossed
		{150, true, ""},
		{500, false, ""},  // undefined CCI never trades
	}
	for _, tc := range cases {
		sig := p.Evaluate(Context{Price: 80, CCI: tc.cci, CCIOK: tc.ok})
		got := model.Action("")
		if sig != nil {
			got = sig.Action
		}
		if got != tc.want {
			t.Errorf("cci=%v ok=%v: action=%q, want %q", tc.cci, tc.ok, got, tc.want)
		}
	}
	if p.Delay() != 0 {
		t.Errorf("Delay()=%v, want 0", p.Delay())
	}
}

func TestCCICross_ZeroCrossWithEMAFilter(t *testing.T) {
	p := NewCCICross()
	base := Context{Price: 81, PrevCCI: -10, CCI: 15, CCIOK: true, HasPrev: true, FastEMA: 80, FastOK: true}

	if sig := p.Evaluate(base); sig == nil || sig.Action != model.ActionBuy {
		t.Fatalf("upward cross above fast EMA: sig=%+v, want BUY", sig)
	}

	// Same cross but price below fast EMA: filtered.
	blocked := base
	blocked.Price = 79
	if sig := p.Evaluate(blocked); sig != nil {
		t.Errorf("upward cross below fast EMA produced %+v", sig)
	}

	down := Context{Price: 79, PrevCCI: 10, CCI: -15, CCIOK: true, HasPrev: true, FastEMA: 80, FastOK: true}
	if sig := p.Evaluate(down); sig == nil || sig.Action != model.ActionSell {
		t.Fatalf("downward cross below fast EMA: sig=%+v, want SELL", sig)
	}

	// No previous CCI yet: never a cross.
	first := base
	first.HasPrev = false
	if sig := p.Evaluate(first); sig != nil {
		t.Errorf("signal without previous CCI: %+v", sig)
	}

	if p.Delay() != 3*time.Minute {
		t.Errorf("Delay()=%v, want 3m", p.Delay())
	}
}

func feed(p *CCI120, ccis []float64, last Context) *Signal {
	var sig *Signal
	for i, c := range ccis {
		ctx := last
		ctx.CCI = c
		ctx.CCIOK = true
		if i < len(ccis)-1 {
			ctx.FastOK, ctx.SlowOK = false, false // trend only checked on the final tick
		}
		sig = p.Evaluate(ctx)
	}
	return sig
}

func TestCCI120_LongReversal(t *testing.T) {
	base := Context{Price: 80, FastEMA: 81, SlowEMA: 79, FastOK: true, SlowOK: true}

	sig := feed(NewCCI120(), []float64{-150, -100, -90}, base)
	if sig == nil || sig.Action != model.ActionBuy {
		t.Fatalf("long reversal in uptrend: sig=%+v, want BUY", sig)
	}

	// Same pattern, downtrend: filtered.
	down := base
	down.FastEMA, down.SlowEMA = 79, 81
	if sig := feed(NewCCI120(), []float64{-150, -100, -90}, down); sig != nil {
		t.Errorf("long reversal in downtrend produced %+v", sig)
	}

	// Last value not rising: no pattern.
	if sig := feed(NewCCI120(), []float64{-150, -100, -110}, base); sig != nil {
		t.Errorf("non-rising tail produced %+v", sig)
	}
}

func TestCCI120_ShortReversal(t *testing.T) {
	base := Context{Price: 80, FastEMA: 79, SlowEMA: 81, FastOK: true, SlowOK: true}

	sig := feed(NewCCI120(), []float64{150, 100, 90}, base)
	if sig == nil || sig.Action != model.ActionSell {
		t.Fatalf("short reversal in downtrend: sig=%+v, want SELL", sig)
	}

	// Fewer than three defined CCI values: never a pattern.
	if sig := feed(NewCCI120(), []float64{150, 100}, base); sig != nil {
		t.Errorf("two-value history produced %+v", sig)
	}
}

func TestCCI120_UndefinedTicksDoNotEnterPattern(t *testing.T) {
	p := NewCCI120()
	base := Context{Price: 80, FastEMA: 81, SlowEMA: 79, FastOK: true, SlowOK: true}

	for _, c := range []float64{-150, -100} {
		ctx := base
		ctx.CCI = c
		ctx.CCIOK = true
		p.Evaluate(ctx)
	}
	// Undefined tick in the middle must not displace the pattern.
	undef := base
	undef.CCIOK = false
	p.Evaluate(undef)

	final := base
	final.CCI = -90
	final.CCIOK = true
	if sig := p.Evaluate(final); sig == nil || sig.Action != model.ActionBuy {
		t.Fatalf("pattern broken by undefined tick: sig=%+v, want BUY", sig)
	}
}

func TestEMACross_GoldenAndDeathCross(t *testing.T) {
	p := NewEMACross()
	tick := func(fast, slow float64) *Signal {
		return p.Evaluate(Context{Price: 80, FastEMA: fast, SlowEMA: slow, FastOK: true, SlowOK: true})
	}

	if sig := tick(79, 80); sig != nil {
		t.Fatalf("first tick produced %+v", sig)
	}
	if sig := tick(81, 80); sig == nil || sig.Action != model.ActionBuy {
		t.Fatalf("golden cross: sig=%+v, want BUY", sig)
	}
	if sig := tick(82, 80); sig != nil {
		t.Errorf("staying above produced %+v", sig)
	}
	if sig := tick(79, 80); sig == nil || sig.Action != model.ActionSell {
		t.Fatalf("death cross: sig=%+v, want SELL", sig)
	}
}
