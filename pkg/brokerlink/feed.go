package brokerlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrStale is returned when the cached quote for a symbol is older than the
// feed's staleness bound.
var ErrStale = errors.New("brokerlink: cached quote is stale")

// ErrNoQuote is returned before the first quote for a symbol arrives.
var ErrNoQuote = errors.New("brokerlink: no quote received yet")

// FeedConfig configures the streaming quote feed.
type FeedConfig struct {
	URL      string   // e.g. ws://localhost:7497/v1/stream
	Symbols  []string // symbols to subscribe on connect
	MaxStale time.Duration // quote age bound, default 30s

	// Reconnect backoff.
	RetryDelay time.Duration // default 2s
	MaxRetries int           // per connection loss, default 10
}

// Feed keeps a websocket connection to the bridge's quote stream and caches
// the latest quote per symbol. Reads never block on the network: LastQuote
// serves from the cache and rejects stale entries.
type Feed struct {
	cfg FeedConfig

	mu     sync.RWMutex
	quotes map[string]Quote

	// OnConnect is invoked after every successful (re)connect.
	OnConnect func()
}

// NewFeed creates a quote feed. Run starts it.
func NewFeed(cfg FeedConfig) *Feed {
	if cfg.MaxStale == 0 {
		cfg.MaxStale = 30 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 10
	}
	return &Feed{cfg: cfg, quotes: make(map[string]Quote)}
}

// Run connects and consumes quotes until ctx is cancelled, reconnecting
// with backoff on connection loss. Returns when ctx ends or retries are
// exhausted.
func (f *Feed) Run(ctx context.Context) error {
	retries := 0
	for {
		err := f.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		retries++
		if retries > f.cfg.MaxRetries {
			return fmt.Errorf("brokerlink: feed gave up after %d reconnect attempts: %w", f.cfg.MaxRetries, err)
		}
		log.Printf("[feed] connection lost (%v), reconnecting in %s (attempt %d/%d)",
			err, f.cfg.RetryDelay, retries, f.cfg.MaxRetries)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.cfg.RetryDelay):
		}
	}
}

func (f *Feed) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]any{"action": "subscribe", "symbols": f.cfg.Symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	log.Printf("[feed] connected to %s, subscribed %v", f.cfg.URL, f.cfg.Symbols)
	if f.OnConnect != nil {
		f.OnConnect()
	}

	// Close the socket when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var q Quote
		if err := json.Unmarshal(msg, &q); err != nil {
			log.Printf("[feed] bad quote frame: %v", err)
			continue
		}
		if q.Symbol == "" {
			continue
		}
		if q.At.IsZero() {
			q.At = time.Now()
		}
		f.mu.Lock()
		f.quotes[q.Symbol] = q
		f.mu.Unlock()
	}
}

// LastQuote returns the cached quote for the symbol, rejecting entries
// older than the staleness bound.
func (f *Feed) LastQuote(symbol string) (Quote, error) {
	f.mu.RLock()
	q, ok := f.quotes[symbol]
	f.mu.RUnlock()

	if !ok {
		return Quote{}, ErrNoQuote
	}
	if time.Since(q.At) > f.cfg.MaxStale {
		return Quote{}, fmt.Errorf("%w: %s is %s old", ErrStale, symbol, time.Since(q.At).Round(time.Second))
	}
	return q, nil
}
