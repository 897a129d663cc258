package model

import "context"

// ── Collaborator Port Interfaces ──
// These interfaces decouple the per-tick decision engine from concrete
// broker connectivity (paper gateway, bridge API, websocket feed).

// PriceSource produces one price sample per request. Implementations may
// block; callers bound the call with the context deadline (one tick
// interval at most).
type PriceSource interface {
	// FetchPrice returns the latest price sample for the contract.
	FetchPrice(ctx context.Context, c Contract) (PriceSample, error)
}

// OrderGateway places and manages orders for one contract at a time.
// The engine polls fill state once per tick; no push event stream is
// required from implementations.
type OrderGateway interface {
	// SubmitBracket places an entry + take-profit + stop-loss set.
	SubmitBracket(ctx context.Context, spec BracketSpec) (BracketHandles, error)

	// OrderFilled reports whether the order with the given handle has filled.
	OrderFilled(ctx context.Context, id OrderID) (bool, error)

	// PositionOpen reports whether a non-zero position exists for the contract.
	PositionOpen(ctx context.Context, c Contract) (bool, error)

	// CancelAll cancels every outstanding order for the contract.
	CancelAll(ctx context.Context, c Contract) error

	// Flatten closes any open position for the contract at market.
	Flatten(ctx context.Context, c Contract) error
}
