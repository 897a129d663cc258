package observe

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const (
	streamPhase    = "events:phase"
	streamTick     = "events:tick"
	streamSnapshot = "events:snapshot"
	streamGate     = "events:gate"
	streamSkip     = "events:skip"
)

// RedisSinkConfig configures the Redis stream sink.
type RedisSinkConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxStreamLen int64         // approximate XADD trim length, 0 = no trim
	WriteTimeout time.Duration // per-XADD deadline
	MaxFailures  int           // breaker trip threshold
	ResetTimeout time.Duration // breaker probe interval
}

func (c *RedisSinkConfig) defaults() {
	if c.MaxStreamLen == 0 {
		c.MaxStreamLen = 100000
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 2 * time.Second
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = 30 * time.Second
	}
}

// RedisSink appends events to per-kind Redis streams as JSON payloads.
// Writes go through a circuit breaker: when Redis is down the sink sheds
// events instead of stalling the tick loop.
type RedisSink struct {
	client  *goredis.Client
	cfg     RedisSinkConfig
	breaker *Breaker
	log     *slog.Logger

	onChange func(from, to BreakerState)
}

// NewRedisSink connects to Redis and verifies it with a ping.
func NewRedisSink(cfg RedisSinkConfig, log *slog.Logger) (*RedisSink, error) {
	cfg.defaults()
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	s := &RedisSink{
		client:  client,
		cfg:     cfg,
		breaker: NewBreaker(cfg.MaxFailures, cfg.ResetTimeout),
		log:     log,
	}
	s.breaker.OnStateChange = func(from, to BreakerState) {
		s.log.Warn("redis sink breaker state change",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
		if s.onChange != nil {
			s.onChange(from, to)
		}
	}
	return s, nil
}

// OnBreakerChange registers a callback fired on every breaker transition,
// in addition to the sink's own logging.
func (s *RedisSink) OnBreakerChange(fn func(from, to BreakerState)) { s.onChange = fn }

// Close releases the Redis connection.
func (s *RedisSink) Close() error { return s.client.Close() }

// Client exposes the underlying connection for liveness checks.
func (s *RedisSink) Client() *goredis.Client { return s.client }

func (s *RedisSink) append(stream string, payload any) {
	err := s.breaker.Execute(func() error {
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		defer cancel()
		return s.client.XAdd(ctx, &goredis.XAddArgs{
			Stream: stream,
			MaxLen: s.cfg.MaxStreamLen,
			Approx: true,
			Values: map[string]interface{}{"data": string(body)},
		}).Err()
	})
	if err != nil && err != ErrBreakerOpen {
		s.log.Warn("redis sink write failed",
			slog.String("stream", stream),
			slog.String("error", err.Error()),
		)
	}
}

func (s *RedisSink) PhaseChange(e PhaseChange) { s.append(streamPhase, e) }
func (s *RedisSink) Tick(e TickRecord)         { s.append(streamTick, e) }
func (s *RedisSink) Snapshot(e Snapshot)       { s.append(streamSnapshot, e) }
func (s *RedisSink) GateAction(e GateAction)   { s.append(streamGate, e) }
func (s *RedisSink) Skip(e Skip)               { s.append(streamSkip, e) }
