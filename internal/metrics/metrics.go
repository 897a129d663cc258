package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading engine.
type Metrics struct {
	TicksTotal   *prometheus.CounterVec // labels: instance
	SkippedTicks *prometheus.CounterVec // labels: instance, reason

	PhaseTransitions *prometheus.CounterVec // labels: instance, to
	GateActions      *prometheus.CounterVec // labels: instance, action
	OrderFailures    *prometheus.CounterVec // labels: instance
	FillsTotal       *prometheus.CounterVec // labels: instance, reason

	LastPrice *prometheus.GaugeVec // labels: instance
	LastCCI   *prometheus.GaugeVec // labels: instance

	TickComputeDur prometheus.Histogram
	FetchDur       prometheus.Histogram

	// Redis sink circuit breaker
	RedisBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisBreakerTrips prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_ticks_total",
			Help: "Total ticks processed per instance",
		}, []string{"instance"}),
		SkippedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_skipped_ticks_total",
			Help: "Ticks skipped (fetch failure, timeout, invalid sample)",
		}, []string{"instance", "reason"}),

		PhaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_phase_transitions_total",
			Help: "Trade lifecycle phase transitions by destination phase",
		}, []string{"instance", "to"}),
		GateActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_gate_actions_total",
			Help: "Trading window gate actions (force_close, shutdown)",
		}, []string{"instance", "action"}),
		OrderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_order_failures_total",
			Help: "Bracket/flatten submissions rejected by the gateway",
		}, []string{"instance"}),
		FillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_fills_total",
			Help: "Order fills by reason (entry, take_profit, stop_loss, flatten)",
		}, []string{"instance", "reason"}),

		LastPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trader_last_price",
			Help: "Most recent valid price sample",
		}, []string{"instance"}),
		LastCCI: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trader_last_cci",
			Help: "Most recent defined CCI-14 value",
		}, []string{"instance"}),

		TickComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_tick_compute_duration_seconds",
			Help:    "Per-tick decision latency excluding the price fetch",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_fetch_duration_seconds",
			Help:    "Price fetch latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_redis_breaker_state",
			Help: "Redis sink circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_redis_breaker_trips_total",
			Help: "Times the Redis sink circuit breaker tripped open",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.SkippedTicks,
		m.PhaseTransitions,
		m.GateActions,
		m.OrderFailures,
		m.FillsTotal,
		m.LastPrice,
		m.LastCCI,
		m.TickComputeDur,
		m.FetchDur,
		m.RedisBreakerState,
		m.RedisBreakerTrips,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastTickTime   time.Time `json:"last_tick_time"`
	RedisConnected bool      `json:"redis_connected"`
	JournalOK      bool      `json:"journal_ok"`
	Instances      []string  `json:"instances"`

	// Liveness probe results
	RedisLatencyMs   float64   `json:"redis_latency_ms"`
	JournalLatencyMs float64   `json:"journal_latency_ms"`
	LastCheckAt      time.Time `json:"last_check_at"`
	StartedAt        time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetJournalOK(v bool) {
	h.mu.Lock()
	h.JournalOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetInstances(names []string) {
	h.mu.Lock()
	h.Instances = names
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckJournal runs a trivial query against the journal DB and records
// latency + health.
func (h *HealthStatus) CheckJournal(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.JournalOK = err == nil
	h.JournalLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, journalDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if journalDB != nil {
					h.CheckJournal(probeCtx, journalDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Determine overall status
	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.FeedConnected || !h.RedisConnected || !h.JournalOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.JournalOK {
		overallStatus = "unhealthy"
	}

	// Tick age
	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status           string   `json:"status"`
		Uptime           string   `json:"uptime"`
		FeedConnected    bool     `json:"feed_connected"`
		LastTickTime     string   `json:"last_tick_time"`
		TickAge          string   `json:"tick_age"`
		RedisConnected   bool     `json:"redis_connected"`
		RedisLatencyMs   float64  `json:"redis_latency_ms"`
		JournalOK        bool     `json:"journal_ok"`
		JournalLatencyMs float64  `json:"journal_latency_ms"`
		Instances        []string `json:"instances"`
		LastCheckAt      string   `json:"last_check_at"`
	}{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:    h.FeedConnected,
		LastTickTime:     h.LastTickTime.Format(time.RFC3339),
		TickAge:          tickAge,
		RedisConnected:   h.RedisConnected,
		RedisLatencyMs:   h.RedisLatencyMs,
		JournalOK:        h.JournalOK,
		JournalLatencyMs: h.JournalLatencyMs,
		Instances:        h.Instances,
		LastCheckAt:      h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
