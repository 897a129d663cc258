package indicator

import "math"

// CCIMode selects the dispersion formula for CCI. The two modes are mutually
// exclusive per instance, chosen at construction.
type CCIMode int

const (
	// CCIStdev normalizes by the sample standard deviation of the window.
	CCIStdev CCIMode = iota
	// CCIClassic normalizes by the mean absolute deviation (the textbook
	// Lambert formula).
	CCIClassic
)

// cciPeriod is fixed: CCI-14 over the last 14 typical prices.
const cciPeriod = 14

// CCIReading is one computed CCI value with its working terms.
type CCIReading struct {
	Value      float64 `json:"value"`
	Previous   float64 `json:"previous"`
	Mean       float64 `json:"mean"`
	Dispersion float64 `json:"dispersion"`
	// HasPrevious is false until a second defined value exists.
	HasPrevious bool `json:"has_previous"`
}

// Rising reports whether the latest value is above the previous one.
// Meaningless (false) until HasPrevious.
func (r CCIReading) Rising() bool {
	return r.HasPrevious && r.Value > r.Previous
}

// CCI computes the Commodity Channel Index over a 14-sample typical-price
// window. The value is undefined (ErrUnavailable) while fewer than 14
// samples exist or when the window has zero dispersion: never a divide by
// zero, never a default zero.
type CCI struct {
	mode    CCIMode
	reading CCIReading
	defined bool
	ever    bool // at least one defined value has existed
	scratch []float64
}

// NewCCI creates a CCI calculator in the given mode.
func NewCCI(mode CCIMode) *CCI {
	return &CCI{mode: mode, scratch: make([]float64, cciPeriod)}
}

// Mode returns the configured dispersion mode.
func (c *CCI) Mode() CCIMode { return c.mode }

// Update recomputes CCI from the window. Call once per tick, after the
// window has been updated.
func (c *CCI) Update(w *Window) {
	tp := w.Tail(cciPeriod, c.scratch)
	if tp == nil {
		return // insufficient history; last defined value stands as Previous
	}

	sum := 0.0
	for _, v := range tp {
		sum += v
	}
	mean := sum / cciPeriod

	var disp float64
	switch c.mode {
	case CCIClassic:
		for _, v := range tp {
			disp += math.Abs(v - mean)
		}
		disp /= cciPeriod
	default: // CCIStdev: sample standard deviation (n-1)
		var ss float64
		for _, v := range tp {
			d := v - mean
			ss += d * d
		}
		disp = math.Sqrt(ss / (cciPeriod - 1))
	}

	if disp == 0 {
		// Zero dispersion: CCI is undefined this tick. Previous is kept so
		// the trend annotation survives a flat stretch.
		c.defined = false
		return
	}

	value := (tp[cciPeriod-1] - mean) / (0.015 * disp)
	if c.ever {
		// Previous always tracks the last defined value, surviving
		// undefined stretches in between.
		c.reading.Previous = c.reading.Value
		c.reading.HasPrevious = true
	}
	c.reading.Value = value
	c.reading.Mean = mean
	c.reading.Dispersion = disp
	c.defined = true
	c.ever = true
}

// Reading returns the current CCI. Returns ErrUnavailable while undefined
// (insufficient history or zero dispersion on the latest tick).
func (c *CCI) Reading() (CCIReading, error) {
	if !c.defined {
		return CCIReading{}, ErrUnavailable
	}
	return c.reading, nil
}
