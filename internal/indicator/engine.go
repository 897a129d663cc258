package indicator

import (
	"intraday-botv1/internal/model"
)

// Config specifies the indicator set for one strategy instance.
type Config struct {
	// SingleSpan enables a standalone EMA (0 = disabled).
	SingleSpan int

	// FastSpan/SlowSpan enable the fast/slow EMA pair (0 = disabled).
	FastSpan int
	SlowSpan int

	// Spans enables the multi-span diagnostic EMA set, evaluated per span
	// in isolation.
	Spans []int

	// InitialEMA optionally pre-seeds the fast/slow pair with a configured
	// starting estimate (0 = seed from the first sample instead).
	InitialEMA float64

	// ClassicCCI selects the mean-absolute-deviation CCI formula; the
	// default is the sample-stdev formula.
	ClassicCCI bool

	// HistoryCap bounds the price history. Zero means "as large as the
	// largest enabled window" (at least the CCI period).
	HistoryCap int
}

// maxWindow returns the largest window any enabled indicator needs.
func (c Config) maxWindow() int {
	max := cciPeriod
	for _, s := range []int{c.SingleSpan, c.FastSpan, c.SlowSpan} {
		if s > max {
			max = s
		}
	}
	for _, s := range c.Spans {
		if s > max {
			max = s
		}
	}
	return max
}

// Readings holds the current EMA values. A value is present only after the
// corresponding EMA has seen its first sample (or was pre-seeded).
type Readings struct {
	Single float64
	Fast   float64
	Slow   float64

	SingleOK bool
	FastOK   bool
	SlowOK   bool

	// Multi maps span → value for every multi-span EMA that is defined.
	Multi map[int]float64
}

// Engine maintains the price history and all enabled indicators for one
// strategy instance. Exactly one updater mutates it, once per tick.
type Engine struct {
	hist   *Window
	single *EMA
	fast   *EMA
	slow   *EMA
	multi  []*EMA
	cci    *CCI
}

// NewEngine creates an indicator engine from the given config.
func NewEngine(cfg Config) *Engine {
	cap := cfg.HistoryCap
	if cap <= 0 {
		cap = cfg.maxWindow()
	}

	e := &Engine{hist: NewWindow(cap)}

	if cfg.SingleSpan > 0 {
		e.single = NewEMA(cfg.SingleSpan)
	}
	if cfg.FastSpan > 0 {
		if cfg.InitialEMA > 0 {
			e.fast = NewSeededEMA(cfg.FastSpan, cfg.InitialEMA)
		} else {
			e.fast = NewEMA(cfg.FastSpan)
		}
	}
	if cfg.SlowSpan > 0 {
		if cfg.InitialEMA > 0 {
			e.slow = NewSeededEMA(cfg.SlowSpan, cfg.InitialEMA)
		} else {
			e.slow = NewEMA(cfg.SlowSpan)
		}
	}
	for _, span := range cfg.Spans {
		if span > 0 {
			e.multi = append(e.multi, NewEMA(span))
		}
	}

	mode := CCIStdev
	if cfg.ClassicCCI {
		mode = CCIClassic
	}
	e.cci = NewCCI(mode)

	return e
}

// Update feeds one price sample through every enabled indicator. Invalid
// samples (non-finite or non-positive) are rejected with ErrInvalidSample
// and mutate nothing.
func (e *Engine) Update(s model.PriceSample) error {
	if !s.Valid() {
		return ErrInvalidSample
	}

	e.hist.Push(s.TypicalPrice())

	price := s.Price
	if e.single != nil {
		e.single.Update(price)
	}
	if e.fast != nil {
		e.fast.Update(price)
	}
	if e.slow != nil {
		e.slow.Update(price)
	}
	for _, m := range e.multi {
		m.Update(price)
	}

	e.cci.Update(e.hist)
	return nil
}

// EMAs returns the current EMA readings.
func (e *Engine) EMAs() Readings {
	var r Readings
	if e.single != nil {
		r.Single, r.SingleOK = e.single.Value()
	}
	if e.fast != nil {
		r.Fast, r.FastOK = e.fast.Value()
	}
	if e.slow != nil {
		r.Slow, r.SlowOK = e.slow.Value()
	}
	if len(e.multi) > 0 {
		r.Multi = make(map[int]float64, len(e.multi))
		for _, m := range e.multi {
			if v, ok := m.Value(); ok {
				r.Multi[m.Span()] = v
			}
		}
	}
	return r
}

// CCI returns the current CCI-14 reading, or ErrUnavailable while the value
// is undefined.
func (e *Engine) CCI() (CCIReading, error) {
	return e.cci.Reading()
}

// HistoryLen returns the current price-history length.
func (e *Engine) HistoryLen() int { return e.hist.Len() }
