package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"intraday-botv1/internal/indicator"
	"intraday-botv1/internal/lifecycle"
	"intraday-botv1/internal/metrics"
	"intraday-botv1/internal/model"
	"intraday-botv1/internal/notification"
	"intraday-botv1/internal/observe"
	"intraday-botv1/internal/schedule"
	"intraday-botv1/internal/strategy"
)

// Deps are the collaborators one instance runs against. Source, Gateway and
// Policy are required; the rest default to no-ops.
type Deps struct {
	Source  model.PriceSource
	Gateway model.OrderGateway
	Policy  strategy.Policy

	Sink     observe.Sink
	Metrics  *metrics.Metrics
	Notifier notification.Notifier
	Log      *slog.Logger

	// Annotate may add diagnostic values to every tick record. Called after
	// the built-in EMA annotation.
	Annotate func(*observe.TickRecord)
}

// Instance is one strategy instance: an indicator engine, a gate, a
// lifecycle machine, and a policy, driven tick by tick.
type Instance struct {
	cfg  Config
	deps Deps

	ind  *indicator.Engine
	gate *schedule.Gate
	sm   *lifecycle.Machine

	ticks   int
	stopped bool
}

// NewInstance validates the config and wires the instance. start anchors the
// lifecycle machine's first IDLE phase (inject a synthetic clock in replays).
func NewInstance(cfg Config, deps Deps, start time.Time) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil || deps.Gateway == nil || deps.Policy == nil {
		return nil, fmt.Errorf("engine: %s: source, gateway, and policy are required", cfg.Name)
	}
	if deps.Sink == nil {
		deps.Sink = observe.NopSink{}
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	deps.Log = deps.Log.With(slog.String("instance", cfg.Name))

	gate, err := schedule.NewGate(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("engine: %s: %w", cfg.Name, err)
	}

	in := &Instance{
		cfg:  cfg,
		deps: deps,
		ind:  indicator.NewEngine(cfg.Indicators),
		gate: gate,
	}
	in.sm = lifecycle.New(start, in.onTransition)
	return in, nil
}

// Name returns the instance name.
func (in *Instance) Name() string { return in.cfg.Name }

// Interval returns the tick cadence.
func (in *Instance) Interval() time.Duration { return in.cfg.Interval }

// Phase returns the current lifecycle phase.
func (in *Instance) Phase() lifecycle.Phase { return in.sm.Phase() }

// Stopped reports whether the gate's shutdown fired; the loop exits after
// the tick that set it.
func (in *Instance) Stopped() bool { return in.stopped }

func (in *Instance) onTransition(tr lifecycle.Transition) {
	in.deps.Sink.PhaseChange(observe.PhaseChange{
		Instance:   in.cfg.Name,
		From:       string(tr.From),
		To:         string(tr.To),
		Reason:     tr.Reason,
		At:         tr.At,
		InPrevious: tr.InPrevious,
	})
	if in.deps.Metrics != nil {
		in.deps.Metrics.PhaseTransitions.WithLabelValues(in.cfg.Name, string(tr.To)).Inc()
	}
}

// Tick processes one tick: gate, bounded fetch, indicator update, lifecycle
// maintenance, policy evaluation. Never returns an error: every failure is
// absorbed within the tick and surfaced as a skip record.
func (in *Instance) Tick(ctx context.Context, now time.Time) TickContext {
	d := in.gate.Evaluate(now)

	// Force-close is ordered before shutdown when both fire on one tick.
	if d.ForceClose {
		in.gateAction(ctx, now, "force_close")
	}
	if d.Shutdown {
		in.gateAction(ctx, now, "shutdown")
		in.stopped = true
		return TickContext{}
	}

	if !d.TradingAllowed && !in.inFlight() {
		// Blocked with nothing at risk: no fetch, no indicator update.
		if in.sm.Phase() == lifecycle.PhaseSignalPending {
			in.sm.DiscardSignal(now, "trading window closed")
		}
		return TickContext{}
	}

	sample, ok := in.fetch(ctx, now)
	if !ok {
		return TickContext{}
	}

	computeStart := time.Now()
	if err := in.ind.Update(sample); err != nil {
		in.skip(now, "invalid_sample")
		return TickContext{}
	}

	pctx := in.policyContext(sample.Price)
	sig := in.deps.Policy.Evaluate(pctx)
	in.maintain(ctx, now, d, sample.Price, sig)

	tc := TickContext{Price: sample.Price, PriceOK: true, CCI: pctx.CCI, CCIOK: pctx.CCIOK}
	in.record(now, tc)
	if in.deps.Metrics != nil {
		in.deps.Metrics.TickComputeDur.Observe(time.Since(computeStart).Seconds())
	}
	return tc
}

// inFlight reports whether orders or a position are outstanding.
func (in *Instance) inFlight() bool {
	switch in.sm.Phase() {
	case lifecycle.PhaseBracketSent, lifecycle.PhaseActive, lifecycle.PhaseExiting:
		return true
	}
	return false
}

// fetch gets one price sample, bounded by the tick interval. A fetch that
// does not complete in time is a skipped tick, never queued.
func (in *Instance) fetch(ctx context.Context, now time.Time) (model.PriceSample, bool) {
	fctx, cancel := context.WithTimeout(ctx, in.cfg.Interval)
	defer cancel()

	start := time.Now()
	sample, err := in.deps.Source.FetchPrice(fctx, in.cfg.Contract)
	if in.deps.Metrics != nil {
		in.deps.Metrics.FetchDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		reason := "fetch_failed"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "fetch_timeout"
		}
		in.deps.Log.Warn("price fetch skipped", slog.String("reason", reason), slog.String("error", err.Error()))
		in.skip(now, reason)
		return model.PriceSample{}, false
	}
	return sample, true
}

func (in *Instance) skip(now time.Time, reason string) {
	in.deps.Sink.Skip(observe.Skip{Instance: in.cfg.Name, At: now, Reason: reason})
	if in.deps.Metrics != nil {
		in.deps.Metrics.SkippedTicks.WithLabelValues(in.cfg.Name, reason).Inc()
	}
}

func (in *Instance) policyContext(price float64) strategy.Context {
	r := in.ind.EMAs()
	pctx := strategy.Context{
		Price:   price,
		FastEMA: r.Fast,
		SlowEMA: r.Slow,
		FastOK:  r.FastOK,
		SlowOK:  r.SlowOK,
	}
	if cci, err := in.ind.CCI(); err == nil {
		pctx.CCI = cci.Value
		pctx.PrevCCI = cci.Previous
		pctx.CCIOK = true
		pctx.HasPrev = cci.HasPrevious
	}
	return pctx
}

// maintain drives the lifecycle machine for this tick. sig is this tick's
// policy output; it is acted on only from IDLE.
func (in *Instance) maintain(ctx context.Context, now time.Time, d schedule.Decision, price float64, sig *strategy.Signal) {
	switch in.sm.Phase() {
	case lifecycle.PhaseIdle:
		if !d.TradingAllowed || sig == nil {
			return
		}
		if err := in.sm.SignalDetected(now, sig.Action, sig.Reason); err != nil {
			return
		}
		in.deps.Log.Info("signal detected",
			slog.String("action", string(sig.Action)),
			slog.String("reason", sig.Reason),
			slog.Duration("delay", in.deps.Policy.Delay()),
		)
		// Zero-delay policies submit on the same tick.
		if in.sm.DelayElapsed(now, in.deps.Policy.Delay()) {
			in.submitBracket(ctx, now, price)
		}

	case lifecycle.PhaseSignalPending:
		if !d.TradingAllowed {
			in.sm.DiscardSignal(now, "trading window closed")
			return
		}
		if in.sm.DelayElapsed(now, in.deps.Policy.Delay()) {
			in.submitBracket(ctx, now, price)
		}

	case lifecycle.PhaseBracketSent:
		h, _ := in.sm.Bracket()
		filled, err := in.deps.Gateway.OrderFilled(ctx, h.Entry)
		if err != nil {
			in.deps.Log.Warn("entry fill check failed", slog.String("error", err.Error()))
			return
		}
		if filled {
			in.sm.EntryFilled(now)
			in.countFill("entry")
		}

	case lifecycle.PhaseActive:
		in.maintainActive(ctx, now, price)

	case lifecycle.PhaseExiting:
		open, err := in.deps.Gateway.PositionOpen(ctx, in.cfg.Contract)
		if err != nil {
			in.deps.Log.Warn("position check failed", slog.String("error", err.Error()))
			return
		}
		if !open {
			in.sm.FlattenConfirmed(now)
			in.countFill("flatten")
		}
	}
}

func (in *Instance) maintainActive(ctx context.Context, now time.Time, price float64) {
	h, _ := in.sm.Bracket()

	if filled, err := in.deps.Gateway.OrderFilled(ctx, h.TakeProfit); err == nil && filled {
		in.cancelRemaining(ctx)
		in.sm.ExitFilled(now, "take profit filled")
		in.countFill("take_profit")
		return
	}
	if filled, err := in.deps.Gateway.OrderFilled(ctx, h.StopLoss); err == nil && filled {
		in.cancelRemaining(ctx)
		in.sm.ExitFilled(now, "stop loss filled")
		in.countFill("stop_loss")
		return
	}

	// Manual stop monitoring, independent of the broker's stop order.
	if in.stopBreached(price) {
		in.deps.Log.Warn("manual stop breach",
			slog.Float64("price", price),
			slog.Float64("stop", in.sm.StopPrice()),
		)
		in.cancelRemaining(ctx)
		if err := in.deps.Gateway.Flatten(ctx, in.cfg.Contract); err != nil {
			in.deps.Log.Warn("flatten failed", slog.String("error", err.Error()))
			in.countOrderFailure()
			return
		}
		in.sm.StopBreached(now)
	}
}

func (in *Instance) stopBreached(price float64) bool {
	stop := in.sm.StopPrice()
	if stop == 0 {
		return false
	}
	switch in.sm.Direction() {
	case model.DirLong:
		return price <= stop
	case model.DirShort:
		return price >= stop
	}
	return false
}

func (in *Instance) cancelRemaining(ctx context.Context) {
	if err := in.deps.Gateway.CancelAll(ctx, in.cfg.Contract); err != nil {
		in.deps.Log.Warn("cancel all failed", slog.String("error", err.Error()))
	}
}

// submitBracket prices and places the bracket for the pending signal. On
// failure the machine stays in SIGNAL_PENDING and the next tick retries.
func (in *Instance) submitBracket(ctx context.Context, now time.Time, ref float64) {
	p, ok := in.sm.Pending()
	if !ok {
		return
	}
	spec := bracketSpec(in.cfg, p.Action, ref)
	h, err := in.deps.Gateway.SubmitBracket(ctx, spec)
	if err != nil {
		in.deps.Log.Warn("bracket submission failed, retrying next tick",
			slog.String("action", string(p.Action)),
			slog.String("error", err.Error()),
		)
		in.countOrderFailure()
		in.notify(notification.AlertWarning, "bracket submission failed",
			fmt.Sprintf("%s %s rejected: %v", p.Action, in.cfg.Contract.Symbol, err))
		return
	}
	in.sm.BracketSubmitted(now, h, model.DirectionFor(p.Action), spec.StopLoss)
	in.deps.Log.Info("bracket submitted",
		slog.String("action", string(p.Action)),
		slog.Float64("entry_ref", spec.EntryRef),
		slog.Float64("take_profit", spec.TakeProfit),
		slog.Float64("stop_loss", spec.StopLoss),
	)
}

// gateAction flattens and cancels for a detected force-close or shutdown,
// drives the machine, and surfaces exactly one observability record.
func (in *Instance) gateAction(ctx context.Context, now time.Time, action string) {
	open, err := in.deps.Gateway.PositionOpen(ctx, in.cfg.Contract)
	if err != nil {
		in.deps.Log.Warn("position check failed during gate action", slog.String("error", err.Error()))
		open = in.inFlight()
	}
	if err := in.deps.Gateway.CancelAll(ctx, in.cfg.Contract); err != nil {
		in.deps.Log.Warn("cancel all failed during gate action", slog.String("error", err.Error()))
	}
	if open {
		if err := in.deps.Gateway.Flatten(ctx, in.cfg.Contract); err != nil {
			in.deps.Log.Warn("flatten failed during gate action", slog.String("error", err.Error()))
			in.countOrderFailure()
		}
	}

	if action == "force_close" {
		in.sm.ForceClose(now, open)
	} else {
		in.sm.Shutdown(now, open)
	}

	in.deps.Sink.GateAction(observe.GateAction{Instance: in.cfg.Name, At: now, Action: action})
	if in.deps.Metrics != nil {
		in.deps.Metrics.GateActions.WithLabelValues(in.cfg.Name, action).Inc()
	}
	in.notify(notification.AlertCritical, action,
		fmt.Sprintf("%s triggered for %s (position open: %v)", action, in.cfg.Contract.Symbol, open))
}

// record emits the per-tick observability record and updates gauges.
func (in *Instance) record(now time.Time, tc TickContext) {
	rec := observe.TickRecord{Instance: in.cfg.Name, At: now, Price: tc.Price, CCI: tc.CCI, CCIOK: tc.CCIOK}
	if in.cfg.AnnotateEMAs {
		r := in.ind.EMAs()
		rec.Annotations = make(map[string]float64)
		if r.SingleOK {
			rec.Annotations["ema"] = r.Single
		}
		if r.FastOK {
			rec.Annotations["ema_fast"] = r.Fast
		}
		if r.SlowOK {
			rec.Annotations["ema_slow"] = r.Slow
		}
		for span, v := range r.Multi {
			rec.Annotations[fmt.Sprintf("ema_%d", span)] = v
		}
	}
	if in.deps.Annotate != nil {
		in.deps.Annotate(&rec)
	}
	in.deps.Sink.Tick(rec)

	if in.deps.Metrics != nil {
		in.deps.Metrics.TicksTotal.WithLabelValues(in.cfg.Name).Inc()
		in.deps.Metrics.LastPrice.WithLabelValues(in.cfg.Name).Set(tc.Price)
		if tc.CCIOK {
			in.deps.Metrics.LastCCI.WithLabelValues(in.cfg.Name).Set(tc.CCI)
		}
	}

	in.ticks++
	if in.cfg.SnapshotEvery > 0 && in.ticks%in.cfg.SnapshotEvery == 0 {
		in.snapshot(now)
	}
}

func (in *Instance) snapshot(now time.Time) {
	r := in.ind.EMAs()
	snap := observe.Snapshot{Instance: in.cfg.Name, At: now, HistoryLen: in.ind.HistoryLen()}
	snap.EMAs = make(map[string]float64)
	if r.SingleOK {
		snap.EMAs["ema"] = r.Single
	}
	if r.FastOK {
		snap.EMAs["ema_fast"] = r.Fast
	}
	if r.SlowOK {
		snap.EMAs["ema_slow"] = r.Slow
	}
	for span, v := range r.Multi {
		snap.EMAs[fmt.Sprintf("ema_%d", span)] = v
	}
	if cci, err := in.ind.CCI(); err == nil {
		snap.CCI = cci.Value
		snap.CCIOK = true
	}
	in.deps.Sink.Snapshot(snap)
}

func (in *Instance) countFill(reason string) {
	if in.deps.Metrics != nil {
		in.deps.Metrics.FillsTotal.WithLabelValues(in.cfg.Name, reason).Inc()
	}
}

func (in *Instance) countOrderFailure() {
	if in.deps.Metrics != nil {
		in.deps.Metrics.OrderFailures.WithLabelValues(in.cfg.Name).Inc()
	}
}

// notify fires an alert without blocking the tick.
func (in *Instance) notify(level notification.AlertLevel, title, msg string) {
	if in.deps.Notifier == nil {
		return
	}
	alert := notification.Alert{Level: level, Instance: in.cfg.Name, Title: title, Message: msg}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := in.deps.Notifier.Send(ctx, alert); err != nil {
			in.deps.Log.Warn("alert delivery failed", slog.String("error", err.Error()))
		}
	}()
}
