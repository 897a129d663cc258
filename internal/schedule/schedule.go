// Package schedule implements the trading window gate: a pure function of
// wall-clock time and a per-instance schedule configuration that decides
// whether new entries are allowed and whether force-close or shutdown must
// act on this tick.
package schedule

import (
	"fmt"
	"time"
)

// WallClock is a time of day (hour, minute) in the instance's trading
// timezone.
type WallClock struct {
	Hour   int `json:"hour" yaml:"hour"`
	Minute int `json:"minute" yaml:"minute"`
}

// Minutes returns the minute-of-day value.
func (w WallClock) Minutes() int { return w.Hour*60 + w.Minute }

func (w WallClock) String() string {
	return fmt.Sprintf("%02d:%02d", w.Hour, w.Minute)
}

func (w WallClock) validate(name string) error {
	if w.Hour < 0 || w.Hour > 23 || w.Minute < 0 || w.Minute > 59 {
		return fmt.Errorf("schedule: %s %q out of range", name, w.String())
	}
	return nil
}

// Window is a daily wall-clock interval [Start, End). Start after End means
// the window wraps midnight (e.g. 22:30 → 07:00 for the overnight pause).
type Window struct {
	Start WallClock `json:"start" yaml:"start"`
	End   WallClock `json:"end" yaml:"end"`
}

// Contains reports whether the minute-of-day m falls inside the window.
func (w Window) Contains(m int) bool {
	s, e := w.Start.Minutes(), w.End.Minutes()
	if s < e {
		return m >= s && m < e
	}
	return m >= s || m < e // wraps midnight
}

// Config is the immutable per-instance schedule. All times are wall clock
// in Timezone.
type Config struct {
	// Pause blocks new entries while active; open positions are still
	// monitored. Optional.
	Pause *Window `yaml:"pause"`

	// Cutoff blocks new brackets from this time on; existing positions are
	// unaffected. Optional.
	Cutoff *WallClock `yaml:"cutoff"`

	// ForceClose flattens any open position once per day at this time; the
	// loop continues. Optional.
	ForceClose *WallClock `yaml:"force_close"`

	// ShutdownAt flattens, cancels, and terminates the loop. Optional.
	ShutdownAt *WallClock `yaml:"shutdown_at"`

	// Timezone is the IANA zone the wall-clock times are evaluated in.
	// Empty means UTC.
	Timezone string `yaml:"timezone"`
}

// Validate checks the configuration. Errors here are fatal at construction;
// no tick may run on an invalid schedule.
func (c Config) Validate() error {
	if c.Pause != nil {
		if err := c.Pause.Start.validate("pause start"); err != nil {
			return err
		}
		if err := c.Pause.End.validate("pause end"); err != nil {
			return err
		}
		if c.Pause.Start == c.Pause.End {
			return fmt.Errorf("schedule: pause window start equals end (%s)", c.Pause.Start)
		}
	}
	if c.Cutoff != nil {
		if err := c.Cutoff.validate("cutoff"); err != nil {
			return err
		}
	}
	if c.ForceClose != nil {
		if err := c.ForceClose.validate("force_close"); err != nil {
			return err
		}
	}
	if c.ShutdownAt != nil {
		if err := c.ShutdownAt.validate("shutdown_at"); err != nil {
			return err
		}
	}
	if _, err := c.location(); err != nil {
		return fmt.Errorf("schedule: bad timezone %q: %w", c.Timezone, err)
	}
	return nil
}

func (c Config) location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}
