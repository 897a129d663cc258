package indicator

// Window is a bounded, append-only price history backed by a preallocated
// circular buffer. When full, the oldest entry is evicted. Single-writer by
// design (one strategy instance), so no synchronization is needed.
type Window struct {
	buf   []float64
	idx   int // next write position
	count int // total values written, saturates at cap
}

// NewWindow creates a window holding at most capacity values.
// capacity must be at least 1.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]float64, capacity)}
}

// Push appends a value, evicting the oldest one if the window is full.
func (w *Window) Push(v float64) {
	w.buf[w.idx] = v
	w.idx = (w.idx + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// Len returns the number of values currently held.
func (w *Window) Len() int { return w.count }

// Cap returns the maximum number of values the window can hold.
func (w *Window) Cap() int { return len(w.buf) }

// Last returns the most recently pushed value. ok is false when empty.
func (w *Window) Last() (v float64, ok bool) {
	if w.count == 0 {
		return 0, false
	}
	return w.buf[(w.idx-1+len(w.buf))%len(w.buf)], true
}

// Tail copies the newest n values into dst (oldest first) and returns the
// filled slice. Returns nil if fewer than n values are held. dst may be nil
// or undersized; it is grown as needed so callers can reuse a scratch slice.
func (w *Window) Tail(n int, dst []float64) []float64 {
	if n <= 0 || w.count < n {
		return nil
	}
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]
	start := (w.idx - n + len(w.buf)) % len(w.buf)
	for i := 0; i < n; i++ {
		dst[i] = w.buf[(start+i)%len(w.buf)]
	}
	return dst
}
