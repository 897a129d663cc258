// Command feedsim is a demo quote server for running the trader without a
// broker bridge. It speaks the same websocket protocol as the bridge's
// stream endpoint: clients send a subscribe frame, the server pushes quote
// JSON for the subscribed symbols on a random walk.
//
// Config (env vars):
//
//	FEEDSIM_ADDR        : listen address (default ":8081")
//	FEEDSIM_SYMBOLS     : comma-separated SYMBOL:EXCHANGE:PRICE triples
//	                       (default "MES:CME:5000")
//	FEEDSIM_INTERVAL_MS : broadcast interval milliseconds (default 1000)
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// quoteMsg mirrors the bridge's quote frame.
type quoteMsg struct {
	Symbol   string    `json:"symbol"`
	Exchange string    `json:"exchange"`
	Last     float64   `json:"last"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	At       time.Time `json:"at"`
}

type subscribeMsg struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// instrument holds per-symbol simulation state. High/Low track the session,
// Close is the previous broadcast price.
type instrument struct {
	Symbol   string
	Exchange string
	Price    float64
	High     float64
	Low      float64
	Close    float64
}

type client struct {
	ch      chan []byte
	symbols map[string]bool // empty after subscribe = everything
}

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]*client)}
}

func (h *hub) register(conn *websocket.Conn, symbols []string) *client {
	c := &client{ch: make(chan []byte, 256), symbols: make(map[string]bool)}
	for _, s := range symbols {
		c.symbols[s] = true
	}
	h.mu.Lock()
	h.clients[conn] = c
	h.mu.Unlock()
	return c
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if c, ok := h.clients[conn]; ok {
		close(c.ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(symbol string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if len(c.symbols) > 0 && !c.symbols[symbol] {
			continue
		}
		select {
		case c.ch <- msg:
		default: // slow client, drop quote
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[feedsim] upgrade error: %v", err)
			return
		}
		log.Printf("[feedsim] client connected: %s", r.RemoteAddr)

		// First frame must be the subscribe request.
		var sub subscribeMsg
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		if err := conn.ReadJSON(&sub); err != nil || sub.Action != "subscribe" {
			log.Printf("[feedsim] bad subscribe from %s: %v", r.RemoteAddr, err)
			conn.Close()
			return
		}
		conn.SetReadDeadline(time.Time{})
		log.Printf("[feedsim] %s subscribed: %v", r.RemoteAddr, sub.Symbols)

		c := h.register(conn, sub.Symbols)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[feedsim] client disconnected: %s", r.RemoteAddr)
		}()

		// Drain further reads so pings and closes are processed.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for msg := range c.ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// walkPrice applies a tiny random walk (up to ±0.1%) each broadcast.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	next := price * (1 + pct)
	if next < 0.01 {
		next = 0.01
	}
	return next
}

func runGenerator(h *hub, instruments []instrument, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		for i := range instruments {
			ins := &instruments[i]
			ins.Close = ins.Price
			ins.Price = walkPrice(ins.Price)
			if ins.Price > ins.High {
				ins.High = ins.Price
			}
			if ins.Price < ins.Low {
				ins.Low = ins.Price
			}
			msg := quoteMsg{
				Symbol:   ins.Symbol,
				Exchange: ins.Exchange,
				Last:     ins.Price,
				High:     ins.High,
				Low:      ins.Low,
				Close:    ins.Close,
				At:       time.Now().UTC(),
			}
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			h.broadcast(ins.Symbol, b)
		}
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedsim] starting demo quote server...")

	addr := envOrDefault("FEEDSIM_ADDR", ":8081")
	symbolsEnv := envOrDefault("FEEDSIM_SYMBOLS", "MES:CME:5000")
	intervalMs := envIntOrDefault("FEEDSIM_INTERVAL_MS", 1000)

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[feedsim] no instruments configured via FEEDSIM_SYMBOLS")
	}
	log.Printf("[feedsim] instruments: %+v", instruments)
	log.Printf("[feedsim] broadcast interval: %dms", intervalMs)

	h := newHub()
	go runGenerator(h, instruments, intervalMs)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})

	log.Printf("[feedsim] listening on %s (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[feedsim] server error: %v", err)
	}
}

func parseInstruments(s string) []instrument {
	var result []instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		seg := strings.SplitN(part, ":", 3)
		if len(seg) != 3 {
			log.Printf("[feedsim] skipping invalid symbol spec: %q", part)
			continue
		}
		price, err := strconv.ParseFloat(seg[2], 64)
		if err != nil || price <= 0 {
			log.Printf("[feedsim] skipping symbol with bad price: %q", part)
			continue
		}
		result = append(result, instrument{
			Symbol:   strings.TrimSpace(seg[0]),
			Exchange: strings.TrimSpace(seg[1]),
			Price:    price,
			High:     price,
			Low:      price,
			Close:    price,
		})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
