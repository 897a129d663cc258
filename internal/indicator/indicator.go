// Package indicator provides the incremental indicator engine: a bounded
// typical-price history, EMA variants (single, fast/slow pair, multi-span)
// and CCI-14 in two dispersion modes.
//
// The engine is pure with respect to time (it never reads the wall clock)
// and is owned by exactly one strategy instance: no internal locking.
package indicator

import "errors"

var (
	// ErrInvalidSample is returned when a non-finite or non-positive price
	// is fed to the engine. The sample is rejected without mutating state.
	ErrInvalidSample = errors.New("indicator: invalid price sample")

	// ErrUnavailable is returned when an indicator has insufficient history
	// (or zero dispersion, for CCI). A normal condition, not a failure.
	ErrUnavailable = errors.New("indicator: not enough data")
)
