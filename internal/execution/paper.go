// Package execution provides the order gateways (paper simulation, broker
// bridge) and the SQLite trade journal.
package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"intraday-botv1/internal/model"
)

// PaperGateway simulates bracket execution without real broker calls: the
// entry leg fills immediately at the reference price plus slippage, the TP
// and SL legs fill when an observed price crosses their level.
//
// Wire it into the price path with Tap so every fetched sample drives the
// fill simulation.
type PaperGateway struct {
	mu sync.Mutex

	orders   map[model.OrderID]*paperOrder
	bracket  *paperBracket
	position *model.Position
	lastSeen float64

	slippageBps float64
	onFill      func(model.Fill)
}

type paperOrder struct {
	id     model.OrderID
	filled bool
}

type paperBracket struct {
	spec    model.BracketSpec
	handles model.BracketHandles
	dir     model.Direction
}

// NewPaperGateway creates a paper gateway. slippageBps is the simulated
// slippage in basis points applied against the trader on market fills.
func NewPaperGateway(slippageBps float64) *PaperGateway {
	return &PaperGateway{
		orders:      make(map[model.OrderID]*paperOrder),
		slippageBps: slippageBps,
	}
}

// OnFill registers a hook invoked for every simulated fill (e.g. the trade
// journal). Must be set before trading starts.
func (p *PaperGateway) OnFill(fn func(model.Fill)) { p.onFill = fn }

// Tap wraps a price source so every fetched sample is observed for fill
// simulation before being returned.
func (p *PaperGateway) Tap(src model.PriceSource) model.PriceSource {
	return tapSource{src: src, gw: p}
}

type tapSource struct {
	src model.PriceSource
	gw  *PaperGateway
}

func (t tapSource) FetchPrice(ctx context.Context, c model.Contract) (model.PriceSample, error) {
	sample, err := t.src.FetchPrice(ctx, c)
	if err != nil {
		return sample, err
	}
	t.gw.Observe(sample.Price)
	return sample, nil
}

// SubmitBracket places a simulated bracket. The market entry fills
// immediately with slippage; TP and SL rest until a price crosses them.
func (p *PaperGateway) SubmitBracket(ctx context.Context, spec model.BracketSpec) (model.BracketHandles, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.position != nil {
		return model.BracketHandles{}, fmt.Errorf("paper: position already open for %s", spec.Contract.Symbol)
	}

	h := model.BracketHandles{
		Entry:      model.OrderID("PAPER-" + uuid.NewString()),
		TakeProfit: model.OrderID("PAPER-" + uuid.NewString()),
		StopLoss:   model.OrderID("PAPER-" + uuid.NewString()),
	}
	dir := model.DirectionFor(spec.Action)

	fillPrice, slip := p.slip(spec.EntryRef, spec.Action)
	p.orders[h.Entry] = &paperOrder{id: h.Entry, filled: true}
	p.orders[h.TakeProfit] = &paperOrder{id: h.TakeProfit}
	p.orders[h.StopLoss] = &paperOrder{id: h.StopLoss}
	p.bracket = &paperBracket{spec: spec, handles: h, dir: dir}
	p.position = &model.Position{
		Contract:  spec.Contract,
		Direction: dir,
		Qty:       spec.Qty,
		AvgPrice:  fillPrice,
	}

	p.emitFill(model.Fill{
		OrderID:  h.Entry,
		Contract: spec.Contract,
		Action:   spec.Action,
		Qty:      spec.Qty,
		Price:    fillPrice,
		Slippage: slip,
		Reason:   "entry",
		FilledAt: time.Now(),
	})

	log.Printf("[paper] %s %s qty=%d entry=%.4f tp=%.4f sl=%.4f (slip=%.4f)",
		spec.Action, spec.Contract.Symbol, spec.Qty, fillPrice, spec.TakeProfit, spec.StopLoss, slip)
	return h, nil
}

// Observe feeds one price into the fill simulation.
func (p *PaperGateway) Observe(price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastSeen = price
	if p.bracket == nil || p.position == nil {
		return
	}

	b := p.bracket
	var (
		leg    model.OrderID
		reason string
		at     float64
	)
	switch b.dir {
	case model.DirLong:
		if price >= b.spec.TakeProfit {
			leg, reason, at = b.handles.TakeProfit, "take_profit", b.spec.TakeProfit
		} else if price <= b.spec.StopLoss {
			leg, reason, at = b.handles.StopLoss, "stop_loss", b.spec.StopLoss
		}
	case model.DirShort:
		if price <= b.spec.TakeProfit {
			leg, reason, at = b.handles.TakeProfit, "take_profit", b.spec.TakeProfit
		} else if price >= b.spec.StopLoss {
			leg, reason, at = b.handles.StopLoss, "stop_loss", b.spec.StopLoss
		}
	}
	if leg == "" {
		return
	}

	if o := p.orders[leg]; o != nil {
		o.filled = true
	}
	p.emitFill(model.Fill{
		OrderID:  leg,
		Contract: b.spec.Contract,
		Action:   b.spec.Action.Opposite(),
		Qty:      b.spec.Qty,
		Price:    at,
		Reason:   reason,
		FilledAt: time.Now(),
	})
	log.Printf("[paper] %s filled at %.4f (%s)", leg, at, reason)
	p.position = nil
	p.bracket = nil
}

// OrderFilled reports whether the simulated order has filled.
func (p *PaperGateway) OrderFilled(ctx context.Context, id model.OrderID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[id]
	if !ok {
		return false, fmt.Errorf("paper: unknown order %s", id)
	}
	return o.filled, nil
}

// PositionOpen reports whether a simulated position exists for the contract.
func (p *PaperGateway) PositionOpen(ctx context.Context, c model.Contract) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position != nil && p.position.Contract.Key() == c.Key(), nil
}

// Position returns a snapshot of the open position, marked at the last
// observed price, or false when flat.
func (p *PaperGateway) Position() (model.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.position == nil {
		return model.Position{}, false
	}
	pos := *p.position
	pos.LastPrice = p.lastSeen
	return pos, true
}

// CancelAll drops every resting (unfilled) order.
func (p *PaperGateway) CancelAll(ctx context.Context, c model.Contract) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, o := range p.orders {
		if !o.filled {
			delete(p.orders, id)
		}
	}
	if p.position == nil {
		p.bracket = nil
	}
	return nil
}

// Flatten closes any open simulated position at the last observed price.
func (p *PaperGateway) Flatten(ctx context.Context, c model.Contract) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.position == nil {
		return nil
	}
	exit := model.ActionSell
	if p.position.Direction == model.DirShort {
		exit = model.ActionBuy
	}
	price, slip := p.slip(p.lastSeen, exit)
	p.emitFill(model.Fill{
		OrderID:  model.OrderID("PAPER-" + uuid.NewString()),
		Contract: p.position.Contract,
		Action:   exit,
		Qty:      p.position.Qty,
		Price:    price,
		Slippage: slip,
		Reason:   "flatten",
		FilledAt: time.Now(),
	})
	log.Printf("[paper] flattened %s at %.4f", p.position.Contract.Symbol, price)
	p.position = nil
	p.bracket = nil
	return nil
}

// slip applies slippage against the trader: buys fill higher, sells lower.
func (p *PaperGateway) slip(ref float64, action model.Action) (price, slip float64) {
	if p.slippageBps <= 0 || ref <= 0 {
		return ref, 0
	}
	slip = ref * p.slippageBps / 10000
	if action == model.ActionBuy {
		return ref + slip, slip
	}
	return ref - slip, slip
}

func (p *PaperGateway) emitFill(f model.Fill) {
	if p.onFill != nil {
		p.onFill(f)
	}
}
