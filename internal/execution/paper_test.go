package execution

import (
	"context"
	"testing"

	"intraday-botv1/internal/model"
)

var mes = model.Contract{Symbol: "MES", Exchange: "CME", Currency: "USD"}

func longSpec(ref float64) model.BracketSpec {
	return model.BracketSpec{
		Contract:   mes,
		Action:     model.ActionBuy,
		Qty:        1,
		EntryRef:   ref,
		TakeProfit: ref + 2.5,
		StopLoss:   ref - 1.75,
	}
}

func TestPaperGateway_EntryFillsImmediately(t *testing.T) {
	gw := NewPaperGateway(0)
	ctx := context.Background()

	h, err := gw.SubmitBracket(ctx, longSpec(80))
	if err != nil {
		t.Fatal(err)
	}

	filled, err := gw.OrderFilled(ctx, h.Entry)
	if err != nil || !filled {
		t.Errorf("entry filled=%v err=%v, want true", filled, err)
	}
	for _, leg := range []model.OrderID{h.TakeProfit, h.StopLoss} {
		if filled, _ := gw.OrderFilled(ctx, leg); filled {
			t.Errorf("leg %s filled before any price", leg)
		}
	}
	if open, _ := gw.PositionOpen(ctx, mes); !open {
		t.Error("no position after entry fill")
	}
}

func TestPaperGateway_TakeProfitFill(t *testing.T) {
	gw := NewPaperGateway(0)
	ctx := context.Background()
	h, _ := gw.SubmitBracket(ctx, longSpec(80))

	gw.Observe(81.0) // below TP 82.5
	if filled, _ := gw.OrderFilled(ctx, h.TakeProfit); filled {
		t.Fatal("TP filled below its level")
	}

	gw.Observe(82.5) // at TP
	if filled, _ := gw.OrderFilled(ctx, h.TakeProfit); !filled {
		t.Fatal("TP not filled at its level")
	}
	if open, _ := gw.PositionOpen(ctx, mes); open {
		t.Error("position survived the TP fill")
	}
}

func TestPaperGateway_StopLossFillShort(t *testing.T) {
	gw := NewPaperGateway(0)
	ctx := context.Background()
	spec := model.BracketSpec{
		Contract: mes, Action: model.ActionSell, Qty: 1,
		EntryRef: 80, TakeProfit: 77.5, StopLoss: 81.75,
	}
	h, _ := gw.SubmitBracket(ctx, spec)

	gw.Observe(81.80) // above short SL
	if filled, _ := gw.OrderFilled(ctx, h.StopLoss); !filled {
		t.Fatal("short SL not filled above its level")
	}
	if open, _ := gw.PositionOpen(ctx, mes); open {
		t.Error("position survived the SL fill")
	}
}

func TestPaperGateway_PositionSnapshot(t *testing.T) {
	gw := NewPaperGateway(0)
	ctx := context.Background()

	if _, open := gw.Position(); open {
		t.Fatal("position reported before any bracket")
	}

	gw.SubmitBracket(ctx, longSpec(80))
	gw.Observe(80.5) // inside the bracket, marks the position

	pos, open := gw.Position()
	if !open {
		t.Fatal("no position after entry fill")
	}
	if pos.AvgPrice != 80 || pos.LastPrice != 80.5 {
		t.Errorf("position %+v, want avg=80 last=80.5", pos)
	}
	if got := pos.UnrealizedPnL(); got != 0.5 {
		t.Errorf("unrealized=%v, want 0.5 on a long up half a point", got)
	}

	// Only the held contract reports an open position.
	if open, _ := gw.PositionOpen(ctx, mes); !open {
		t.Error("held contract reported flat")
	}
	other := model.Contract{Symbol: "NQ", Exchange: "CME", Currency: "USD"}
	if open, _ := gw.PositionOpen(ctx, other); open {
		t.Error("different contract reported a position")
	}
}

func TestPaperGateway_RejectsSecondBracket(t *testing.T) {
	gw := NewPaperGateway(0)
	ctx := context.Background()
	gw.SubmitBracket(ctx, longSpec(80))

	if _, err := gw.SubmitBracket(ctx, longSpec(80)); err == nil {
		t.Error("second bracket accepted while position open")
	}
}

func TestPaperGateway_Flatten(t *testing.T) {
	gw := NewPaperGateway(0)
	ctx := context.Background()
	gw.SubmitBracket(ctx, longSpec(80))
	gw.Observe(80.5)

	var fills []model.Fill
	gw.OnFill(func(f model.Fill) { fills = append(fills, f) })

	if err := gw.Flatten(ctx, mes); err != nil {
		t.Fatal(err)
	}
	if open, _ := gw.PositionOpen(ctx, mes); open {
		t.Error("position survived flatten")
	}
	if len(fills) != 1 || fills[0].Reason != "flatten" {
		t.Fatalf("fills=%+v, want one flatten", fills)
	}
	if fills[0].Action != model.ActionSell {
		t.Errorf("flatten action=%s, want SELL to close a long", fills[0].Action)
	}
	if fills[0].Price != 80.5 {
		t.Errorf("flatten price=%v, want last observed 80.5", fills[0].Price)
	}
}

func TestPaperGateway_Slippage(t *testing.T) {
	gw := NewPaperGateway(5) // 5 bps
	var fills []model.Fill
	gw.OnFill(func(f model.Fill) { fills = append(fills, f) })

	gw.SubmitBracket(context.Background(), longSpec(10000))

	want := 10000 + 10000*5.0/10000 // buy fills higher
	if len(fills) != 1 || fills[0].Price != want {
		t.Errorf("entry fill=%+v, want price %v", fills, want)
	}
}

func TestPaperGateway_CancelAllDropsRestingOrders(t *testing.T) {
	gw := NewPaperGateway(0)
	ctx := context.Background()
	h, _ := gw.SubmitBracket(ctx, longSpec(80))

	if err := gw.CancelAll(ctx, mes); err != nil {
		t.Fatal(err)
	}
	if _, err := gw.OrderFilled(ctx, h.TakeProfit); err == nil {
		t.Error("cancelled TP still known to the gateway")
	}
	// The filled entry stays on the books for audit.
	if filled, err := gw.OrderFilled(ctx, h.Entry); err != nil || !filled {
		t.Errorf("entry lost by cancel all: filled=%v err=%v", filled, err)
	}
}
