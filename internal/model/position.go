package model

// Position represents the single tracked position of a strategy instance.
type Position struct {
	Contract  Contract  `json:"contract"`
	Direction Direction `json:"direction"`
	Qty       int64     `json:"qty"` // always positive; Direction carries the sign
	AvgPrice  float64   `json:"avg_price"`
	LastPrice float64   `json:"last_price"`
}

// UnrealizedPnL computes unrealized profit/loss per contract unit times Qty.
func (p *Position) UnrealizedPnL() float64 {
	diff := p.LastPrice - p.AvgPrice
	if p.Direction == DirShort {
		diff = -diff
	}
	return diff * float64(p.Qty)
}
