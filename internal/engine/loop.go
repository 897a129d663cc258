package engine

import (
	"context"
	"log/slog"
	"time"
)

// RunLoop drives one instance at its configured cadence until the gate's
// shutdown fires or ctx is cancelled.
//
// The first tick waits for the next whole interval boundary so every tick
// lands on a round wall-clock instant; subsequent ticks follow the ticker.
// Cancellation is cooperative: an in-progress tick always completes.
func RunLoop(ctx context.Context, in *Instance, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("instance", in.Name()))

	interval := in.Interval()
	wait := time.Until(time.Now().Truncate(interval).Add(interval))
	log.Info("waiting for round interval boundary",
		slog.Duration("interval", interval),
		slog.Duration("wait", wait),
	)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		in.Tick(ctx, time.Now())
		if in.Stopped() {
			log.Info("shutdown window reached, loop exiting")
			return nil
		}
		select {
		case <-ctx.Done():
			log.Info("context cancelled, loop exiting")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
