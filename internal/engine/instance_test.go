package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"intraday-botv1/internal/indicator"
	"intraday-botv1/internal/lifecycle"
	"intraday-botv1/internal/model"
	"intraday-botv1/internal/observe"
	"intraday-botv1/internal/schedule"
	"intraday-botv1/internal/strategy"
)

var start = time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Name:         "es-test",
		Contract:     model.Contract{Symbol: "MES", Exchange: "CME", Currency: "USD"},
		Interval:     time.Minute,
		Quantity:     1,
		TickSize:     0.25,
		SLTicks:      7,
		TPTicksLong:  10,
		TPTicksShort: 10,
		Indicators:   indicator.Config{FastSpan: 10, SlowSpan: 200},
	}
}

// fakeSource returns scripted prices in order, then repeats the last one.
type fakeSource struct {
	prices []float64
	calls  int
	err    error
}

func (s *fakeSource) FetchPrice(ctx context.Context, c model.Contract) (model.PriceSample, error) {
	s.calls++
	if s.err != nil {
		return model.PriceSample{}, s.err
	}
	i := s.calls - 1
	if i >= len(s.prices) {
		i = len(s.prices) - 1
	}
	return model.PriceSample{Time: time.Now(), Price: s.prices[i]}, nil
}

// fakeGateway records every call and lets the test script fills.
type fakeGateway struct {
	submits   []model.BracketSpec
	submitErr error
	nextID    int

	filled   map[model.OrderID]bool
	position bool

	cancels  int
	flattens int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{filled: make(map[model.OrderID]bool)}
}

func (g *fakeGateway) SubmitBracket(ctx context.Context, spec model.BracketSpec) (model.BracketHandles, error) {
	if g.submitErr != nil {
		return model.BracketHandles{}, g.submitErr
	}
	g.submits = append(g.submits, spec)
	g.nextID++
	return model.BracketHandles{
		Entry:      model.OrderID(fmt.Sprintf("E%d", g.nextID)),
		TakeProfit: model.OrderID(fmt.Sprintf("T%d", g.nextID)),
		StopLoss:   model.OrderID(fmt.Sprintf("S%d", g.nextID)),
	}, nil
}

func (g *fakeGateway) OrderFilled(ctx context.Context, id model.OrderID) (bool, error) {
	return g.filled[id], nil
}

func (g *fakeGateway) PositionOpen(ctx context.Context, c model.Contract) (bool, error) {
	return g.position, nil
}

func (g *fakeGateway) CancelAll(ctx context.Context, c model.Contract) error {
	g.cancels++
	return nil
}

func (g *fakeGateway) Flatten(ctx context.Context, c model.Contract) error {
	g.flattens++
	g.position = false
	return nil
}

// scriptPolicy emits a scripted signal on given evaluation numbers (1-based).
type scriptPolicy struct {
	delay   time.Duration
	signals map[int]*strategy.Signal
	evals   int
}

func (p *scriptPolicy) Name() string          { return "script" }
func (p *scriptPolicy) Delay() time.Duration  { return p.delay }
func (p *scriptPolicy) Evaluate(strategy.Context) *strategy.Signal {
	p.evals++
	return p.signals[p.evals]
}

// recordSink captures every observability event in order.
type recordSink struct {
	phases  []observe.PhaseChange
	ticks   []observe.TickRecord
	snaps   []observe.Snapshot
	gates   []observe.GateAction
	skips   []observe.Skip
}

func (r *recordSink) PhaseChange(e observe.PhaseChange) { r.phases = append(r.phases, e) }
func (r *recordSink) Tick(e observe.TickRecord)         { r.ticks = append(r.ticks, e) }
func (r *recordSink) Snapshot(e observe.Snapshot)       { r.snaps = append(r.snaps, e) }
func (r *recordSink) GateAction(e observe.GateAction)   { r.gates = append(r.gates, e) }
func (r *recordSink) Skip(e observe.Skip)               { r.skips = append(r.skips, e) }

func (r *recordSink) phasePairs() [][2]string {
	out := make([][2]string, len(r.phases))
	for i, p := range r.phases {
		out[i] = [2]string{p.From, p.To}
	}
	return out
}

func buy(reason string) *strategy.Signal {
	return &strategy.Signal{Action: model.ActionBuy, Reason: reason}
}

func newTestInstance(t *testing.T, cfg Config, deps Deps) *Instance {
	t.Helper()
	in, err := NewInstance(cfg, deps, start)
	if err != nil {
		t.Fatal(err)
	}
	return in
}

func TestInstance_BlockedTickSkipsFetch(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule = schedule.Config{
		Pause: &schedule.Window{Start: schedule.WallClock{Hour: 9}, End: schedule.WallClock{Hour: 23}},
	}
	src := &fakeSource{prices: []float64{80}}
	in := newTestInstance(t, cfg, Deps{Source: src, Gateway: newFakeGateway(), Policy: &scriptPolicy{}})

	tc := in.Tick(context.Background(), start)

	if tc.PriceOK {
		t.Error("blocked tick produced a price")
	}
	if src.calls != 0 {
		t.Errorf("blocked tick fetched %d times, want 0", src.calls)
	}
}

func TestInstance_FetchFailureSkipsTick(t *testing.T) {
	src := &fakeSource{err: errors.New("bridge unreachable")}
	sink := &recordSink{}
	in := newTestInstance(t, testConfig(), Deps{Source: src, Gateway: newFakeGateway(), Policy: &scriptPolicy{}, Sink: sink})

	tc := in.Tick(context.Background(), start)

	if tc.PriceOK {
		t.Error("failed fetch produced a price")
	}
	if len(sink.skips) != 1 || sink.skips[0].Reason != "fetch_failed" {
		t.Errorf("skips=%+v, want one fetch_failed", sink.skips)
	}
	if len(sink.ticks) != 0 {
		t.Error("failed fetch still emitted a tick record")
	}
}

func TestInstance_FullTradeRoundTrip(t *testing.T) {
	gw := newFakeGateway()
	sink := &recordSink{}
	policy := &scriptPolicy{signals: map[int]*strategy.Signal{3: buy("test entry")}}
	in := newTestInstance(t, testConfig(), Deps{
		Source:  &fakeSource{prices: []float64{80, 80.5, 81, 81.5, 84, 84}},
		Gateway: gw,
		Policy:  policy,
		Sink:    sink,
	})

	ctx := context.Background()
	// Ticks 1-2: no signal. Tick 3: BUY signal, zero delay, bracket out.
	in.Tick(ctx, start)
	in.Tick(ctx, start.Add(time.Minute))
	in.Tick(ctx, start.Add(2*time.Minute))

	if in.Phase() != lifecycle.PhaseBracketSent {
		t.Fatalf("phase=%s after signal tick, want BRACKET_SENT", in.Phase())
	}
	if len(gw.submits) != 1 {
		t.Fatalf("submits=%d, want 1", len(gw.submits))
	}
	spec := gw.submits[0]
	if spec.TakeProfit != 81+0.25*10 || spec.StopLoss != 81-0.25*7 {
		t.Errorf("bracket priced tp=%v sl=%v off ref %v", spec.TakeProfit, spec.StopLoss, spec.EntryRef)
	}

	// Entry fills.
	gw.filled["E1"] = true
	gw.position = true
	in.Tick(ctx, start.Add(3*time.Minute))
	if in.Phase() != lifecycle.PhaseActive {
		t.Fatalf("phase=%s after entry fill, want ACTIVE", in.Phase())
	}

	// Take profit fills; remaining stop is cancelled, machine resets.
	gw.filled["T1"] = true
	in.Tick(ctx, start.Add(4*time.Minute))
	if in.Phase() != lifecycle.PhaseIdle {
		t.Fatalf("phase=%s after TP fill, want IDLE", in.Phase())
	}
	if gw.cancels != 1 {
		t.Errorf("cancels=%d, want 1 (remaining stop leg)", gw.cancels)
	}

	want := [][2]string{
		{"IDLE", "SIGNAL_PENDING"},
		{"SIGNAL_PENDING", "BRACKET_SENT"},
		{"BRACKET_SENT", "ACTIVE"},
		{"ACTIVE", "CLOSED"},
		{"CLOSED", "IDLE"},
	}
	if !reflect.DeepEqual(sink.phasePairs(), want) {
		t.Errorf("transitions=%v, want %v", sink.phasePairs(), want)
	}
}

func TestInstance_DelayedSubmission(t *testing.T) {
	gw := newFakeGateway()
	policy := &scriptPolicy{delay: 3 * time.Minute, signals: map[int]*strategy.Signal{1: buy("cross")}}
	in := newTestInstance(t, testConfig(), Deps{
		Source:  &fakeSource{prices: []float64{80}},
		Gateway: gw,
		Policy:  policy,
	})

	ctx := context.Background()
	in.Tick(ctx, start)                    // signal detected
	in.Tick(ctx, start.Add(time.Minute))   // 1m: still waiting
	in.Tick(ctx, start.Add(2*time.Minute)) // 2m: still waiting

	if len(gw.submits) != 0 {
		t.Fatalf("bracket submitted before the delay elapsed")
	}
	if in.Phase() != lifecycle.PhaseSignalPending {
		t.Fatalf("phase=%s, want SIGNAL_PENDING", in.Phase())
	}

	in.Tick(ctx, start.Add(3*time.Minute)) // exactly at the delay
	if len(gw.submits) != 1 {
		t.Fatalf("bracket not submitted at the delay boundary")
	}
}

func TestInstance_SubmissionFailureRetriesNextTick(t *testing.T) {
	gw := newFakeGateway()
	gw.submitErr = errors.New("rejected")
	policy := &scriptPolicy{signals: map[int]*strategy.Signal{1: buy("sig")}}
	in := newTestInstance(t, testConfig(), Deps{
		Source:  &fakeSource{prices: []float64{80}},
		Gateway: gw,
		Policy:  policy,
	})

	ctx := context.Background()
	in.Tick(ctx, start)
	if in.Phase() != lifecycle.PhaseSignalPending {
		t.Fatalf("phase=%s after failed submission, want SIGNAL_PENDING", in.Phase())
	}

	gw.submitErr = nil
	in.Tick(ctx, start.Add(time.Minute))
	if in.Phase() != lifecycle.PhaseBracketSent {
		t.Fatalf("phase=%s after retry, want BRACKET_SENT", in.Phase())
	}
	if len(gw.submits) != 1 {
		t.Errorf("submits=%d, want 1", len(gw.submits))
	}
}

func TestInstance_ManualStopBreach(t *testing.T) {
	gw := newFakeGateway()
	policy := &scriptPolicy{signals: map[int]*strategy.Signal{1: buy("sig")}}
	// Long entry at 80: stop at 80 - 0.25*7 = 78.25. Price collapses through it.
	in := newTestInstance(t, testConfig(), Deps{
		Source:  &fakeSource{prices: []float64{80, 80, 78.00, 78.00}},
		Gateway: gw,
		Policy:  policy,
	})

	ctx := context.Background()
	in.Tick(ctx, start) // signal + bracket
	gw.filled["E1"] = true
	gw.position = true
	in.Tick(ctx, start.Add(time.Minute)) // entry filled → ACTIVE

	in.Tick(ctx, start.Add(2*time.Minute)) // 78.00 <= 78.25 → breach
	if in.Phase() != lifecycle.PhaseExiting {
		t.Fatalf("phase=%s after breach, want EXITING", in.Phase())
	}
	if gw.flattens != 1 {
		t.Errorf("flattens=%d, want 1", gw.flattens)
	}

	in.Tick(ctx, start.Add(3*time.Minute)) // position gone → reset
	if in.Phase() != lifecycle.PhaseIdle {
		t.Fatalf("phase=%s after flatten confirmation, want IDLE", in.Phase())
	}
}

func TestInstance_ForceCloseAndShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule = schedule.Config{
		ForceClose: &schedule.WallClock{Hour: 21, Minute: 45},
		ShutdownAt: &schedule.WallClock{Hour: 22, Minute: 50},
	}
	gw := newFakeGateway()
	gw.position = true
	sink := &recordSink{}
	policy := &scriptPolicy{signals: map[int]*strategy.Signal{1: buy("sig")}}
	in := newTestInstance(t, cfg, Deps{
		Source:  &fakeSource{prices: []float64{80}},
		Gateway: gw,
		Policy:  policy,
		Sink:    sink,
	})

	ctx := context.Background()
	day := time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)

	in.Tick(ctx, day.Add(10*time.Hour)) // trade opens
	in.Tick(ctx, day.Add(21*time.Hour+45*time.Minute))

	if len(sink.gates) != 1 || sink.gates[0].Action != "force_close" {
		t.Fatalf("gates=%+v, want one force_close", sink.gates)
	}
	if gw.flattens != 1 {
		t.Errorf("flattens=%d, want 1", gw.flattens)
	}
	if in.Phase() != lifecycle.PhaseIdle {
		t.Errorf("phase=%s after force close, want IDLE", in.Phase())
	}
	if in.Stopped() {
		t.Error("force close stopped the loop")
	}

	in.Tick(ctx, day.Add(22*time.Hour+50*time.Minute))
	if !in.Stopped() {
		t.Fatal("shutdown did not stop the loop")
	}
	last := sink.gates[len(sink.gates)-1]
	if last.Action != "shutdown" {
		t.Errorf("last gate action=%s, want shutdown", last.Action)
	}
}

func TestInstance_ForceCloseAndShutdownSameTick(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule = schedule.Config{
		ForceClose: &schedule.WallClock{Hour: 21, Minute: 45},
		ShutdownAt: &schedule.WallClock{Hour: 22, Minute: 50},
	}
	gw := newFakeGateway()
	gw.position = true
	sink := &recordSink{}
	in := newTestInstance(t, cfg, Deps{
		Source:  &fakeSource{prices: []float64{80}},
		Gateway: gw,
		Policy:  &scriptPolicy{},
		Sink:    sink,
	})

	// First tick lands past both triggers: one tick, both flags.
	day := time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)
	in.Tick(context.Background(), day.Add(22*time.Hour+50*time.Minute))

	if len(sink.gates) != 2 {
		t.Fatalf("gates=%+v, want exactly two actions", sink.gates)
	}
	if sink.gates[0].Action != "force_close" || sink.gates[1].Action != "shutdown" {
		t.Errorf("gate order=[%s %s], want [force_close shutdown]",
			sink.gates[0].Action, sink.gates[1].Action)
	}
	if !in.Stopped() {
		t.Error("shutdown did not stop the loop")
	}
}

func TestInstance_GateBlockDiscardsPendingSignal(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule = schedule.Config{
		Cutoff: &schedule.WallClock{Hour: 10, Minute: 2},
	}
	gw := newFakeGateway()
	policy := &scriptPolicy{delay: 10 * time.Minute, signals: map[int]*strategy.Signal{1: buy("sig")}}
	in := newTestInstance(t, cfg, Deps{
		Source:  &fakeSource{prices: []float64{80}},
		Gateway: gw,
		Policy:  policy,
	})

	ctx := context.Background()
	in.Tick(ctx, start) // 10:00: signal detected, 10m delay pending
	if in.Phase() != lifecycle.PhaseSignalPending {
		t.Fatalf("phase=%s, want SIGNAL_PENDING", in.Phase())
	}

	in.Tick(ctx, start.Add(3*time.Minute)) // 10:03: past cutoff
	if in.Phase() != lifecycle.PhaseIdle {
		t.Fatalf("phase=%s after cutoff, want IDLE (signal discarded)", in.Phase())
	}
	if len(gw.submits) != 0 {
		t.Error("bracket submitted despite cutoff")
	}
}

// run feeds the same 20 samples through a fresh instance and returns the
// tick contexts plus the phase-transition sequence.
func runDeterministic(t *testing.T, prices []float64) ([]TickContext, [][2]string) {
	t.Helper()
	sink := &recordSink{}
	policy := &scriptPolicy{}
	in := newTestInstance(t, testConfig(), Deps{
		Source:  &fakeSource{prices: prices},
		Gateway: newFakeGateway(),
		Policy:  policy,
		Sink:    sink,
	})

	var out []TickContext
	for i := range prices {
		out = append(out, in.Tick(context.Background(), start.Add(time.Duration(i)*time.Minute)))
	}
	return out, sink.phasePairs()
}

func TestInstance_DeterministicReplay(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		// Deterministic non-trivial path.
		prices[i] = 80 + float64(i%7)*0.25 - float64(i%3)*0.1
	}

	first, firstPhases := runDeterministic(t, prices)
	second, secondPhases := runDeterministic(t, prices)

	if !reflect.DeepEqual(first, second) {
		t.Error("replaying the same samples produced different tick contexts")
	}
	if !reflect.DeepEqual(firstPhases, secondPhases) {
		t.Error("replaying the same samples produced different transitions")
	}

	// CCI defined exactly from the 14th sample on.
	for i, tc := range first {
		if i < 13 && tc.CCIOK {
			t.Errorf("tick %d: CCI defined with only %d samples", i+1, i+1)
		}
		if i >= 13 && !tc.CCIOK {
			t.Errorf("tick %d: CCI undefined with %d samples", i+1, i+1)
		}
	}
}
