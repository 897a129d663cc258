package model

import (
	"math"
	"time"
)

// PriceSample is one timestamped price observation, produced once per tick.
// High/Low/Close are optional (OHLC is only available from some sources);
// when absent, the raw price stands in for the typical price.
type PriceSample struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
	High  float64   `json:"high,omitempty"`
	Low   float64   `json:"low,omitempty"`
	Close float64   `json:"close,omitempty"`
}

// HasOHLC reports whether the sample carries a full high/low/close set.
func (s PriceSample) HasOHLC() bool {
	return s.High > 0 && s.Low > 0 && s.Close > 0
}

// TypicalPrice returns (high+low+close)/3 when OHLC is available,
// otherwise the raw price.
func (s PriceSample) TypicalPrice() float64 {
	if s.HasOHLC() {
		return (s.High + s.Low + s.Close) / 3
	}
	return s.Price
}

// Valid reports whether the price is finite and positive, and any OHLC
// field that is set is too. Samples failing this check must never enter a
// price history.
func (s PriceSample) Valid() bool {
	if !finitePositive(s.Price) {
		return false
	}
	for _, v := range []float64{s.High, s.Low, s.Close} {
		if v != 0 && !finitePositive(v) {
			return false
		}
	}
	return true
}

func finitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
