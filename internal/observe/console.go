package observe

import (
	"log/slog"
	"sync"
)

// ConsoleStore is the process-wide allow-list deciding which instances'
// events surface on the console. Read-mostly: populated once at startup,
// read concurrently by every instance goroutine afterwards.
//
// An empty allow-list means every instance is surfaced.
type ConsoleStore struct {
	mu      sync.RWMutex
	allowed map[string]bool
}

// NewConsoleStore creates a store allowing the given instances. nil or
// empty allows all.
func NewConsoleStore(instances []string) *ConsoleStore {
	cs := &ConsoleStore{}
	cs.SetAllowed(instances)
	return cs
}

// SetAllowed replaces the allow-list. Intended for startup only.
func (cs *ConsoleStore) SetAllowed(instances []string) {
	m := make(map[string]bool, len(instances))
	for _, in := range instances {
		if in != "" {
			m[in] = true
		}
	}
	cs.mu.Lock()
	cs.allowed = m
	cs.mu.Unlock()
}

// Allowed reports whether events from the instance surface on the console.
func (cs *ConsoleStore) Allowed(instance string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.allowed) == 0 || cs.allowed[instance]
}

// LogSink writes events as structured slog records, gated per instance by
// the console store.
type LogSink struct {
	log   *slog.Logger
	store *ConsoleStore
}

// NewLogSink creates a console sink. store may be nil (all instances
// surfaced).
func NewLogSink(log *slog.Logger, store *ConsoleStore) *LogSink {
	if store == nil {
		store = NewConsoleStore(nil)
	}
	return &LogSink{log: log, store: store}
}

func (s *LogSink) PhaseChange(e PhaseChange) {
	if !s.store.Allowed(e.Instance) {
		return
	}
	s.log.Info("phase change",
		slog.String("instance", e.Instance),
		slog.String("from", e.From),
		slog.String("to", e.To),
		slog.String("reason", e.Reason),
		slog.Duration("in_previous", e.InPrevious),
	)
}

func (s *LogSink) Tick(e TickRecord) {
	if !s.store.Allowed(e.Instance) {
		return
	}
	attrs := []any{
		slog.String("instance", e.Instance),
		slog.Float64("price", e.Price),
	}
	if e.CCIOK {
		attrs = append(attrs, slog.Float64("cci", e.CCI))
	}
	for k, v := range e.Annotations {
		attrs = append(attrs, slog.Float64(k, v))
	}
	s.log.Info("tick", attrs...)
}

func (s *LogSink) Snapshot(e Snapshot) {
	if !s.store.Allowed(e.Instance) {
		return
	}
	attrs := []any{
		slog.String("instance", e.Instance),
		slog.Int("history_len", e.HistoryLen),
	}
	if e.CCIOK {
		attrs = append(attrs, slog.Float64("cci", e.CCI))
	}
	for k, v := range e.EMAs {
		attrs = append(attrs, slog.Float64(k, v))
	}
	s.log.Info("indicator snapshot", attrs...)
}

func (s *LogSink) GateAction(e GateAction) {
	// Gate actions are always surfaced, allow-list or not: a flatten is
	// never silent.
	s.log.Warn("gate action",
		slog.String("instance", e.Instance),
		slog.String("action", e.Action),
	)
}

func (s *LogSink) Skip(e Skip) {
	if !s.store.Allowed(e.Instance) {
		return
	}
	s.log.Warn("tick skipped",
		slog.String("instance", e.Instance),
		slog.String("reason", e.Reason),
	)
}
