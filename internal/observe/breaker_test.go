package observe

import (
	"errors"
	"testing"
	"time"
)

var errDown = errors.New("connection refused")

func failN(n int) func() error {
	calls := 0
	return func() error {
		calls++
		if calls <= n {
			return errDown
		}
		return nil
	}
}

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	fn := func() error { return errDown }

	for i := 0; i < 3; i++ {
		if err := b.Execute(fn); !errors.Is(err, errDown) {
			t.Fatalf("call %d: err=%v, want %v", i, err, errDown)
		}
	}
	if b.State() != BreakerOpen {
		t.Fatalf("state=%s after 3 failures, want open", b.State())
	}

	// Further calls are rejected without invoking fn.
	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("err=%v, want ErrBreakerOpen", err)
	}
	if called {
		t.Error("fn invoked while breaker open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	b.Execute(func() error { return errDown })
	b.Execute(func() error { return errDown })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return errDown })
	b.Execute(func() error { return errDown })

	if b.State() != BreakerClosed {
		t.Errorf("state=%s, want closed (failures are not consecutive)", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)
	b.Execute(func() error { return errDown })
	if b.State() != BreakerOpen {
		t.Fatalf("state=%s, want open", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	// First probe fails: straight back to open.
	if err := b.Execute(func() error { return errDown }); !errors.Is(err, errDown) {
		t.Fatalf("probe err=%v", err)
	}
	if b.State() != BreakerOpen {
		t.Fatalf("state=%s after failed probe, want open", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	// Successful probe closes the breaker.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe err=%v", err)
	}
	if b.State() != BreakerClosed {
		t.Fatalf("state=%s after successful probe, want closed", b.State())
	}
}

func TestBreaker_StateChangeHook(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	var changes [][2]BreakerState
	b.OnStateChange = func(from, to BreakerState) {
		changes = append(changes, [2]BreakerState{from, to})
	}

	b.Execute(func() error { return errDown })

	if len(changes) != 1 || changes[0] != [2]BreakerState{BreakerClosed, BreakerOpen} {
		t.Errorf("changes=%v, want one closed→open", changes)
	}
}
