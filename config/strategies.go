package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"intraday-botv1/internal/engine"
	"intraday-botv1/internal/indicator"
	"intraday-botv1/internal/model"
	"intraday-botv1/internal/schedule"
)

// StrategyFile is the YAML document defining the strategy instances to run.
type StrategyFile struct {
	Instances []InstanceDef `yaml:"instances"`
}

// Duration decodes YAML strings like "1m" or "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// InstanceDef is one strategy instance as written in strategies.yaml.
type InstanceDef struct {
	Name     string         `yaml:"name"`
	Policy   string         `yaml:"policy"`
	Contract model.Contract `yaml:"contract"`

	Interval Duration `yaml:"interval"`
	Quantity int64    `yaml:"quantity"`

	TickSize     float64 `yaml:"tick_size"`
	SLTicks      int     `yaml:"sl_ticks"`
	TPTicksLong  int     `yaml:"tp_ticks_long"`
	TPTicksShort int     `yaml:"tp_ticks_short"`

	SnapshotEvery int  `yaml:"snapshot_every"`
	AnnotateEMAs  bool `yaml:"annotate_emas"`

	Indicators IndicatorDef    `yaml:"indicators"`
	Schedule   schedule.Config `yaml:"schedule"`
}

// IndicatorDef configures the per-instance indicator engine.
type IndicatorDef struct {
	SingleSpan int     `yaml:"single_span"`
	FastSpan   int     `yaml:"fast_span"`
	SlowSpan   int     `yaml:"slow_span"`
	Spans      []int   `yaml:"spans"`
	InitialEMA float64 `yaml:"initial_ema"`
	ClassicCCI bool    `yaml:"classic_cci"`
	HistoryCap int     `yaml:"history_cap"`
}

// LoadStrategies parses and validates the strategy instance definitions.
func LoadStrategies(path string) (*StrategyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var sf StrategyFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if len(sf.Instances) == 0 {
		return nil, fmt.Errorf("config: %s defines no instances", path)
	}

	seen := make(map[string]bool, len(sf.Instances))
	for i, def := range sf.Instances {
		if def.Name == "" {
			return nil, fmt.Errorf("config: instance %d has no name", i)
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("config: duplicate instance name %q", def.Name)
		}
		seen[def.Name] = true
		if def.Policy == "" {
			return nil, fmt.Errorf("config: instance %q has no policy", def.Name)
		}
		if err := def.EngineConfig().Validate(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return &sf, nil
}

// EngineConfig maps the YAML definition onto the engine's instance config.
func (d InstanceDef) EngineConfig() engine.Config {
	return engine.Config{
		Name:          d.Name,
		Contract:      d.Contract,
		Interval:      time.Duration(d.Interval),
		Quantity:      d.Quantity,
		TickSize:      d.TickSize,
		SLTicks:       d.SLTicks,
		TPTicksLong:   d.TPTicksLong,
		TPTicksShort:  d.TPTicksShort,
		SnapshotEvery: d.SnapshotEvery,
		AnnotateEMAs:  d.AnnotateEMAs,
		Indicators: indicator.Config{
			SingleSpan: d.Indicators.SingleSpan,
			FastSpan:   d.Indicators.FastSpan,
			SlowSpan:   d.Indicators.SlowSpan,
			Spans:      d.Indicators.Spans,
			InitialEMA: d.Indicators.InitialEMA,
			ClassicCCI: d.Indicators.ClassicCCI,
			HistoryCap: d.Indicators.HistoryCap,
		},
		Schedule: d.Schedule,
	}
}
