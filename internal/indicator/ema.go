package indicator

// EMA calculates an Exponential Moving Average incrementally.
// O(1) per update: no window storage needed.
//
// The first sample seeds the EMA directly (ema = price); smoothing applies
// from the second sample on. Until seeded, the value is undefined rather
// than zero, so early readings never bias diagnostics.
type EMA struct {
	span   int
	alpha  float64
	value  float64
	seeded bool
}

// NewEMA creates an EMA for the given span. alpha = 2 / (span + 1).
func NewEMA(span int) *EMA {
	return &EMA{
		span:  span,
		alpha: 2.0 / float64(span+1),
	}
}

// NewSeededEMA creates an EMA pre-seeded with an initial value, used when a
// configured starting estimate is available before any samples arrive.
func NewSeededEMA(span int, initial float64) *EMA {
	e := NewEMA(span)
	e.value = initial
	e.seeded = true
	return e
}

// Span returns the configured span.
func (e *EMA) Span() int { return e.span }

// Update feeds the next price.
func (e *EMA) Update(price float64) {
	if !e.seeded {
		e.value = price
		e.seeded = true
		return
	}
	e.value = e.alpha*price + (1-e.alpha)*e.value
}

// Value returns the current EMA. ok is false before the first sample.
func (e *EMA) Value() (v float64, ok bool) {
	return e.value, e.seeded
}
