package execution

import (
	"context"
	"fmt"

	"intraday-botv1/internal/model"
	"intraday-botv1/pkg/brokerlink"
)

// BridgeGateway adapts the broker bridge client to the order gateway port.
type BridgeGateway struct {
	client *brokerlink.Client
}

// NewBridgeGateway wraps a logged-in bridge client.
func NewBridgeGateway(client *brokerlink.Client) *BridgeGateway {
	return &BridgeGateway{client: client}
}

func (g *BridgeGateway) SubmitBracket(ctx context.Context, spec model.BracketSpec) (model.BracketHandles, error) {
	resp, err := g.client.PlaceBracket(ctx, brokerlink.BracketRequest{
		Symbol:     spec.Contract.Symbol,
		Exchange:   spec.Contract.Exchange,
		Action:     string(spec.Action),
		Qty:        spec.Qty,
		TakeProfit: spec.TakeProfit,
		StopLoss:   spec.StopLoss,
	})
	if err != nil {
		return model.BracketHandles{}, err
	}
	return model.BracketHandles{
		Entry:      model.OrderID(resp.EntryID),
		TakeProfit: model.OrderID(resp.TakeProfitID),
		StopLoss:   model.OrderID(resp.StopLossID),
	}, nil
}

func (g *BridgeGateway) OrderFilled(ctx context.Context, id model.OrderID) (bool, error) {
	status, err := g.client.OrderStatus(ctx, string(id))
	if err != nil {
		return false, err
	}
	return status == "filled", nil
}

func (g *BridgeGateway) PositionOpen(ctx context.Context, c model.Contract) (bool, error) {
	positions, err := g.client.Positions(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range positions {
		if p.Symbol == c.Symbol && p.Exchange == c.Exchange && p.Qty != 0 {
			return true, nil
		}
	}
	return false, nil
}

func (g *BridgeGateway) CancelAll(ctx context.Context, c model.Contract) error {
	return g.client.CancelAll(ctx, c.Symbol, c.Exchange)
}

func (g *BridgeGateway) Flatten(ctx context.Context, c model.Contract) error {
	return g.client.Flatten(ctx, c.Symbol, c.Exchange)
}

// SnapshotSource fetches prices with one snapshot quote request per tick.
type SnapshotSource struct {
	client *brokerlink.Client
}

// NewSnapshotSource creates a snapshot-quote price source.
func NewSnapshotSource(client *brokerlink.Client) *SnapshotSource {
	return &SnapshotSource{client: client}
}

func (s *SnapshotSource) FetchPrice(ctx context.Context, c model.Contract) (model.PriceSample, error) {
	q, err := s.client.GetQuote(ctx, c.Symbol, c.Exchange)
	if err != nil {
		return model.PriceSample{}, err
	}
	return quoteSample(q), nil
}

// FeedSource serves prices from the streaming feed's quote cache; a stale
// or missing quote is an error and the tick is skipped.
type FeedSource struct {
	feed *brokerlink.Feed
}

// NewFeedSource creates a feed-backed price source.
func NewFeedSource(feed *brokerlink.Feed) *FeedSource {
	return &FeedSource{feed: feed}
}

func (s *FeedSource) FetchPrice(ctx context.Context, c model.Contract) (model.PriceSample, error) {
	q, err := s.feed.LastQuote(c.Symbol)
	if err != nil {
		return model.PriceSample{}, fmt.Errorf("feed fetch %s: %w", c.Symbol, err)
	}
	return quoteSample(q), nil
}

// FallbackSource serves from Primary and falls back to Fallback when the
// primary errors. Used in bridge mode so a stale feed cache degrades to a
// snapshot quote request instead of a skipped tick.
type FallbackSource struct {
	Primary  model.PriceSource
	Fallback model.PriceSource
}

func (s FallbackSource) FetchPrice(ctx context.Context, c model.Contract) (model.PriceSample, error) {
	sample, err := s.Primary.FetchPrice(ctx, c)
	if err == nil {
		return sample, nil
	}
	return s.Fallback.FetchPrice(ctx, c)
}

func quoteSample(q brokerlink.Quote) model.PriceSample {
	return model.PriceSample{
		Time:  q.At,
		Price: q.Last,
		High:  q.High,
		Low:   q.Low,
		Close: q.Close,
	}
}
