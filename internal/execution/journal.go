package execution

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"intraday-botv1/internal/model"
	"intraday-botv1/internal/observe"
)

// Journal persists fills and phase transitions to SQLite for audit. It is
// write-only from the engine's point of view: nothing is ever read back into
// engine state.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		instance    TEXT NOT NULL,
		action      TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		exchange    TEXT NOT NULL,
		qty         INTEGER NOT NULL,
		price       REAL NOT NULL,
		slippage    REAL DEFAULT 0,
		reason      TEXT,
		filled_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_instance ON trades(instance);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, exchange);
	CREATE INDEX IF NOT EXISTS idx_trades_filled_at ON trades(filled_at);

	CREATE TABLE IF NOT EXISTS phase_transitions (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		instance     TEXT NOT NULL,
		from_phase   TEXT NOT NULL,
		to_phase     TEXT NOT NULL,
		reason       TEXT,
		at           DATETIME NOT NULL,
		in_previous  INTEGER NOT NULL,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_transitions_instance ON phase_transitions(instance);
	CREATE INDEX IF NOT EXISTS idx_transitions_at ON phase_transitions(at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// DB exposes the underlying handle for health probes.
func (j *Journal) DB() *sql.DB { return j.db }

// RecordFill persists a fill to the journal.
func (j *Journal) RecordFill(instance string, fill model.Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO trades (order_id, instance, action, symbol, exchange, qty, price, slippage, reason, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(fill.OrderID),
		instance,
		string(fill.Action),
		fill.Contract.Symbol,
		fill.Contract.Exchange,
		fill.Qty,
		fill.Price,
		fill.Slippage,
		fill.Reason,
		fill.FilledAt.Format(time.RFC3339),
	)
	return err
}

// RecordTransition persists a lifecycle phase transition.
func (j *Journal) RecordTransition(e observe.PhaseChange) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO phase_transitions (instance, from_phase, to_phase, reason, at, in_previous)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Instance,
		e.From,
		e.To,
		e.Reason,
		e.At.Format(time.RFC3339),
		e.InPrevious.Nanoseconds(),
	)
	return err
}

// TradeRecord represents a row from the trades table.
type TradeRecord struct {
	ID       int64   `json:"id"`
	OrderID  string  `json:"order_id"`
	Instance string  `json:"instance"`
	Action   string  `json:"action"`
	Symbol   string  `json:"symbol"`
	Exchange string  `json:"exchange"`
	Qty      int64   `json:"qty"`
	Price    float64 `json:"price"`
	Slippage float64 `json:"slippage"`
	Reason   string  `json:"reason"`
	FilledAt string  `json:"filled_at"`
}

// GetTrades returns the last N trades, newest first.
func (j *Journal) GetTrades(limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, instance, action, symbol, exchange, qty, price, slippage, reason, filled_at
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Instance, &t.Action, &t.Symbol,
			&t.Exchange, &t.Qty, &t.Price, &t.Slippage, &t.Reason, &t.FilledAt); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// TransitionRecord represents a row from the phase_transitions table.
type TransitionRecord struct {
	ID       int64  `json:"id"`
	Instance string `json:"instance"`
	From     string `json:"from_phase"`
	To       string `json:"to_phase"`
	Reason   string `json:"reason"`
	At       string `json:"at"`
}

// GetTransitions returns the last N phase transitions, newest first.
func (j *Journal) GetTransitions(limit int) ([]TransitionRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, instance, from_phase, to_phase, reason, at
		 FROM phase_transitions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var t TransitionRecord
		if err := rows.Scan(&t.ID, &t.Instance, &t.From, &t.To, &t.Reason, &t.At); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// JournalSink adapts the journal to the observability sink interface: phase
// transitions are persisted, everything else is ignored. Write failures are
// logged, never propagated into the tick.
type JournalSink struct {
	j *Journal
}

// NewJournalSink wraps a journal as a sink.
func NewJournalSink(j *Journal) *JournalSink { return &JournalSink{j: j} }

func (s *JournalSink) PhaseChange(e observe.PhaseChange) {
	if err := s.j.RecordTransition(e); err != nil {
		log.Printf("[journal] transition write failed: %v", err)
	}
}

func (s *JournalSink) Tick(observe.TickRecord)       {}
func (s *JournalSink) Snapshot(observe.Snapshot)     {}
func (s *JournalSink) GateAction(observe.GateAction) {}
func (s *JournalSink) Skip(observe.Skip)             {}
