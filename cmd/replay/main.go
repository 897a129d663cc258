// Command replay runs one strategy instance over a CSV price file with a
// synthetic clock, one tick per row. Fills are simulated by the paper
// gateway; nothing touches a broker, Redis, or the wall clock.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"intraday-botv1/config"
	"intraday-botv1/internal/engine"
	"intraday-botv1/internal/execution"
	"intraday-botv1/internal/feed"
	"intraday-botv1/internal/logger"
	"intraday-botv1/internal/model"
	"intraday-botv1/internal/observe"
	"intraday-botv1/internal/strategy"
)

func main() {
	var (
		csvPath    = flag.String("csv", "", "price CSV file (time,price[,high,low,close])")
		strategies = flag.String("strategies", "strategies.yaml", "strategy definitions")
		instance   = flag.String("instance", "", "instance name to replay (default: first)")
		slippage   = flag.Float64("slippage-bps", 0, "simulated fill slippage in basis points")
		level      = flag.String("log-level", "warn", "log level during the run")
	)
	flag.Parse()
	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "replay: -csv is required")
		os.Exit(2)
	}

	log := logger.Init("replay", logger.ParseLevel(*level))

	sf, err := config.LoadStrategies(*strategies)
	if err != nil {
		fatal(err)
	}
	def, err := pickInstance(sf, *instance)
	if err != nil {
		fatal(err)
	}

	src, err := feed.OpenCSV(*csvPath)
	if err != nil {
		fatal(err)
	}

	gw := execution.NewPaperGateway(*slippage)
	var fills []model.Fill
	gw.OnFill(func(f model.Fill) { fills = append(fills, f) })

	policy, err := strategy.New(def.Policy)
	if err != nil {
		fatal(err)
	}

	start := src.Start()
	in, err := engine.NewInstance(def.EngineConfig(), engine.Deps{
		Source:  gw.Tap(src),
		Gateway: gw,
		Policy:  policy,
		Sink:    observe.NewLogSink(log, observe.NewConsoleStore(nil)),
		Log:     log,
	}, start)
	if err != nil {
		fatal(err)
	}

	cfg := def.EngineConfig()
	ctx := context.Background()
	ticks := 0
	for now := start; src.Remaining() > 0 && !in.Stopped(); now = now.Add(cfg.Interval) {
		in.Tick(ctx, now)
		ticks++
	}

	log.Info("replay finished",
		slog.String("instance", cfg.Name),
		slog.Int("ticks", ticks),
		slog.Int("fills", len(fills)),
	)
	printSummary(cfg.Name, ticks, fills)

	// A position still open at the end of the file is marked at the last
	// observed price.
	if pos, open := gw.Position(); open {
		fmt.Printf("  open position: %s %s qty=%d avg=%.2f last=%.2f unrealized=%.2f\n",
			pos.Direction, pos.Contract.Key(), pos.Qty, pos.AvgPrice, pos.LastPrice, pos.UnrealizedPnL())
	}
}

func pickInstance(sf *config.StrategyFile, name string) (config.InstanceDef, error) {
	if name == "" {
		return sf.Instances[0], nil
	}
	for _, def := range sf.Instances {
		if def.Name == name {
			return def, nil
		}
	}
	return config.InstanceDef{}, fmt.Errorf("replay: no instance named %q", name)
}

func printSummary(name string, ticks int, fills []model.Fill) {
	fmt.Printf("\n%s: %d ticks, %d fills\n", name, ticks, len(fills))

	// Realized PnL from paired entry/exit fills, sign by side.
	var pnl float64
	var entry *model.Fill
	for i := range fills {
		f := fills[i]
		fmt.Printf("  %s  %-5s %-12s qty=%d price=%.2f slip=%.4f\n",
			f.FilledAt.Format(time.RFC3339), f.Action, f.Reason, f.Qty, f.Price, f.Slippage)
		if f.Reason == "entry" {
			entry = &fills[i]
			continue
		}
		if entry == nil {
			continue
		}
		diff := f.Price - entry.Price
		if entry.Action == model.ActionSell {
			diff = -diff
		}
		pnl += diff * float64(f.Qty)
		entry = nil
	}
	fmt.Printf("  realized PnL (points x qty): %.2f\n", pnl)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "replay:", err)
	os.Exit(1)
}
