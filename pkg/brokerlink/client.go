// Package brokerlink is a small SDK for the broker bridge: session login
// with TOTP, snapshot quotes, bracket order placement, and a streaming
// quote feed over websocket.
//
// The bridge exposes a plain JSON REST API; this package owns the routes,
// headers, and session handling so callers only deal in typed requests.
package brokerlink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
)

// Config configures the bridge client.
type Config struct {
	BaseURL    string // e.g. http://localhost:7497
	APIKey     string
	ClientID   string
	TOTPSecret string        // base32 secret for session login
	Timeout    time.Duration // default: 7s
}

// Client talks to the broker bridge REST API. Safe for concurrent use; the
// session token is refreshed on 401 with a single retry.
type Client struct {
	cfg  Config
	http *http.Client

	mu    sync.Mutex
	token string
}

var routes = map[string]string{
	"session.login": "/v1/session",
	"quote":         "/v1/quote",
	"order.bracket": "/v1/orders/bracket",
	"order.status":  "/v1/orders/%s",
	"order.cancel":  "/v1/orders/cancel_all",
	"position":      "/v1/positions",
	"flatten":       "/v1/positions/flatten",
}

// NewClient creates a bridge client. Call Login before trading.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("brokerlink: base URL required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Login opens a session: the TOTP code is generated from the configured
// secret and exchanged for a bearer token.
func (c *Client) Login(ctx context.Context) error {
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("brokerlink: totp: %w", err)
	}

	var out struct {
		Token string `json:"token"`
	}
	err = c.do(ctx, http.MethodPost, routes["session.login"], map[string]any{
		"client_id": c.cfg.ClientID,
		"totp":      code,
	}, &out, false)
	if err != nil {
		return fmt.Errorf("brokerlink: login: %w", err)
	}
	if out.Token == "" {
		return fmt.Errorf("brokerlink: login returned no token")
	}

	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()
	log.Printf("[brokerlink] session opened for %s", c.cfg.ClientID)
	return nil
}

// Quote is a snapshot quote from the bridge.
type Quote struct {
	Symbol   string    `json:"symbol"`
	Exchange string    `json:"exchange"`
	Last     float64   `json:"last"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	At       time.Time `json:"at"`
}

// GetQuote fetches a snapshot quote.
func (c *Client) GetQuote(ctx context.Context, symbol, exchange string) (Quote, error) {
	var q Quote
	path := fmt.Sprintf("%s?symbol=%s&exchange=%s", routes["quote"], symbol, exchange)
	if err := c.do(ctx, http.MethodGet, path, nil, &q, true); err != nil {
		return Quote{}, fmt.Errorf("brokerlink: quote %s: %w", symbol, err)
	}
	return q, nil
}

// BracketRequest describes a bracket order to the bridge.
type BracketRequest struct {
	Symbol     string  `json:"symbol"`
	Exchange   string  `json:"exchange"`
	Action     string  `json:"action"` // BUY or SELL
	Qty        int64   `json:"qty"`
	TakeProfit float64 `json:"take_profit"`
	StopLoss   float64 `json:"stop_loss"`
}

// BracketResponse carries the three leg order IDs.
type BracketResponse struct {
	EntryID      string `json:"entry_id"`
	TakeProfitID string `json:"take_profit_id"`
	StopLossID   string `json:"stop_loss_id"`
}

// PlaceBracket submits a market entry with attached TP and SL orders.
func (c *Client) PlaceBracket(ctx context.Context, req BracketRequest) (BracketResponse, error) {
	var out BracketResponse
	if err := c.do(ctx, http.MethodPost, routes["order.bracket"], req, &out, true); err != nil {
		return BracketResponse{}, fmt.Errorf("brokerlink: place bracket: %w", err)
	}
	if out.EntryID == "" {
		return BracketResponse{}, fmt.Errorf("brokerlink: bracket response missing entry id")
	}
	return out, nil
}

// OrderStatus returns the bridge-side status of one order: "open",
// "filled", or "cancelled".
func (c *Client) OrderStatus(ctx context.Context, orderID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	path := fmt.Sprintf(routes["order.status"], orderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, true); err != nil {
		return "", fmt.Errorf("brokerlink: order status %s: %w", orderID, err)
	}
	return out.Status, nil
}

// PositionInfo is one open position reported by the bridge.
type PositionInfo struct {
	Symbol   string  `json:"symbol"`
	Exchange string  `json:"exchange"`
	Qty      int64   `json:"qty"` // signed: negative for short
	AvgPrice float64 `json:"avg_price"`
}

// Positions lists open positions.
func (c *Client) Positions(ctx context.Context) ([]PositionInfo, error) {
	var out []PositionInfo
	if err := c.do(ctx, http.MethodGet, routes["position"], nil, &out, true); err != nil {
		return nil, fmt.Errorf("brokerlink: positions: %w", err)
	}
	return out, nil
}

// CancelAll cancels every open order for the symbol.
func (c *Client) CancelAll(ctx context.Context, symbol, exchange string) error {
	err := c.do(ctx, http.MethodPost, routes["order.cancel"], map[string]any{
		"symbol": symbol, "exchange": exchange,
	}, nil, true)
	if err != nil {
		return fmt.Errorf("brokerlink: cancel all %s: %w", symbol, err)
	}
	return nil
}

// Flatten closes any open position for the symbol at market.
func (c *Client) Flatten(ctx context.Context, symbol, exchange string) error {
	err := c.do(ctx, http.MethodPost, routes["flatten"], map[string]any{
		"symbol": symbol, "exchange": exchange,
	}, nil, true)
	if err != nil {
		return fmt.Errorf("brokerlink: flatten %s: %w", symbol, err)
	}
	return nil
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// do issues one request. Authenticated calls retry once after a re-login on
// 401.
func (c *Client) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	err := c.doOnce(ctx, method, path, body, out, authed)
	if err == nil || !authed || !isUnauthorized(err) {
		return err
	}
	log.Printf("[brokerlink] session expired, re-logging in")
	if lerr := c.Login(ctx); lerr != nil {
		return lerr
	}
	return c.doOnce(ctx, method, path, body, out, authed)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func isUnauthorized(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusUnauthorized
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any, authed bool) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.currentToken())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
