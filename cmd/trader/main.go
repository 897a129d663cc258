package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"intraday-botv1/config"
	"intraday-botv1/internal/engine"
	"intraday-botv1/internal/execution"
	"intraday-botv1/internal/logger"
	"intraday-botv1/internal/metrics"
	"intraday-botv1/internal/model"
	"intraday-botv1/internal/notification"
	"intraday-botv1/internal/observe"
	"intraday-botv1/internal/strategy"
	"intraday-botv1/pkg/brokerlink"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.Init("trader", logger.ParseLevel(cfg.LogLevel))
	log.Info("starting", slog.String("mode", cfg.Mode))

	sf, err := config.LoadStrategies(cfg.StrategiesPath)
	if err != nil {
		log.Error("strategy config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	names := make([]string, 0, len(sf.Instances))
	symbols := make([]string, 0, len(sf.Instances))
	for _, def := range sf.Instances {
		names = append(names, def.Name)
		symbols = append(symbols, def.Contract.Symbol)
	}
	log.Info("strategies loaded", slog.Int("instances", len(names)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Metrics and health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetInstances(names)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()
	log.Info("metrics server up", slog.String("addr", cfg.MetricsAddr))

	// ---- Trade journal ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	journal, err := execution.NewJournal(cfg.SQLitePath)
	if err != nil {
		log.Error("journal init", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer journal.Close()
	health.SetJournalOK(true)

	// ---- Event sinks: console + journal, redis when reachable ----
	store := observe.NewConsoleStore(cfg.ParseConsoleInstances())
	sinks := observe.MultiSink{
		observe.NewLogSink(log, store),
		execution.NewJournalSink(journal),
	}
	redisSink, err := observe.NewRedisSink(observe.RedisSinkConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, log)
	if err != nil {
		log.Warn("redis unavailable, continuing without stream sink", slog.String("error", err.Error()))
		health.SetRedisConnected(false)
	} else {
		defer redisSink.Close()
		redisSink.OnBreakerChange(func(_, to observe.BreakerState) {
			prom.RedisBreakerState.Set(float64(to))
			if to == observe.BreakerOpen {
				prom.RedisBreakerTrips.Inc()
			}
		})
		sinks = append(sinks, redisSink)
		health.SetRedisConnected(true)
	}

	if redisSink != nil {
		health.StartLivenessChecker(ctx, redisSink.Client(), journal.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, journal.DB(), 10*time.Second)
	}

	// ---- Alerts ----
	notifier := buildNotifier(cfg)

	// ---- Price source and order gateway ----
	feed := brokerlink.NewFeed(brokerlink.FeedConfig{URL: cfg.FeedURL, Symbols: symbols})
	feed.OnConnect = func() { health.SetFeedConnected(true) }
	go func() {
		if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("quote feed terminated", slog.String("error", err.Error()))
		}
		health.SetFeedConnected(false)
	}()
	var source model.PriceSource = execution.NewFeedSource(feed)

	var bridge *brokerlink.Client
	if cfg.Mode == "bridge" {
		bridge, err = brokerlink.NewClient(brokerlink.Config{
			BaseURL:    cfg.BridgeBaseURL,
			APIKey:     cfg.BridgeAPIKey,
			ClientID:   cfg.BridgeClientID,
			TOTPSecret: cfg.BridgeTOTPSecret,
		})
		if err == nil {
			err = bridge.Login(ctx)
		}
		if err != nil {
			log.Error("bridge login", slog.String("error", err.Error()))
			os.Exit(1)
		}
		log.Info("bridge session ready", slog.String("base_url", cfg.BridgeBaseURL))

		// A stale feed cache degrades to a snapshot quote request.
		source = execution.FallbackSource{
			Primary:  source,
			Fallback: execution.NewSnapshotSource(bridge),
		}
	}

	// ---- Instances, one goroutine each ----
	var wg sync.WaitGroup
	for _, def := range sf.Instances {
		policy, err := strategy.New(def.Policy)
		if err != nil {
			log.Error("policy", slog.String("instance", def.Name), slog.String("error", err.Error()))
			os.Exit(1)
		}

		deps := engine.Deps{
			Source:   source,
			Policy:   policy,
			Sink:     sinks,
			Metrics:  prom,
			Notifier: notifier,
			Log:      log,
			Annotate: func(rec *observe.TickRecord) { health.SetLastTickTime(rec.At) },
		}
		if cfg.Mode == "bridge" {
			deps.Gateway = execution.NewBridgeGateway(bridge)
		} else {
			name := def.Name
			gw := execution.NewPaperGateway(cfg.SlippageBps)
			gw.OnFill(func(f model.Fill) {
				if err := journal.RecordFill(name, f); err != nil {
					log.Warn("fill journaling failed", slog.String("instance", name), slog.String("error", err.Error()))
				}
			})
			deps.Gateway = gw
			deps.Source = gw.Tap(source)
		}

		in, err := engine.NewInstance(def.EngineConfig(), deps, time.Now())
		if err != nil {
			log.Error("instance init", slog.String("error", err.Error()))
			os.Exit(1)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.RunLoop(ctx, in, log)
		}()
		log.Info("instance started",
			slog.String("instance", in.Name()),
			slog.String("policy", def.Policy),
			slog.Duration("interval", in.Interval()),
		)
	}

	// ---- Graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	log.Info("shutdown complete")
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	n := notification.MultiNotifier{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		n = append(n, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		n = append(n, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	return n
}
