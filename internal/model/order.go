package model

import "time"

// Action is the side of an entry order.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Opposite returns the exit side for this entry side.
func (a Action) Opposite() Action {
	if a == ActionBuy {
		return ActionSell
	}
	return ActionBuy
}

// Direction of an open position.
type Direction string

const (
	DirLong  Direction = "LONG"
	DirShort Direction = "SHORT"
)

// DirectionFor maps an entry action to the resulting position direction.
func DirectionFor(a Action) Direction {
	if a == ActionBuy {
		return DirLong
	}
	return DirShort
}

// OrderID is an opaque order handle assigned by the gateway.
type OrderID string

// BracketSpec describes a bracket order: a market entry paired with a
// take-profit limit and a stop-loss order, submitted together.
type BracketSpec struct {
	Contract   Contract `json:"contract"`
	Action     Action   `json:"action"`
	Qty        int64    `json:"qty"`
	EntryRef   float64  `json:"entry_ref"`   // reference price at submission
	TakeProfit float64  `json:"take_profit"` // absolute TP price
	StopLoss   float64  `json:"stop_loss"`   // absolute SL price
}

// BracketHandles holds the gateway order IDs for the three legs of a
// submitted bracket.
type BracketHandles struct {
	Entry      OrderID `json:"entry"`
	TakeProfit OrderID `json:"take_profit"`
	StopLoss   OrderID `json:"stop_loss"`
}

// Fill reports an executed order leg.
type Fill struct {
	OrderID  OrderID   `json:"order_id"`
	Contract Contract  `json:"contract"`
	Action   Action    `json:"action"`
	Qty      int64     `json:"qty"`
	Price    float64   `json:"price"`
	Slippage float64   `json:"slippage"`
	Reason   string    `json:"reason"` // entry, take_profit, stop_loss, flatten
	FilledAt time.Time `json:"filled_at"`
}
