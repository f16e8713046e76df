package resilience

import (
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("test error")

func TestNewBreaker_Defaults(t *testing.T) {
	b := NewBreaker(Settings{Name: "test"})
	if b.threshold != 5 {
		t.Errorf("threshold = %d, want 5", b.threshold)
	}
	if b.coolDown != 30*time.Second {
		t.Errorf("coolDown = %v, want 30s", b.coolDown)
	}
	if b.probeCount != 3 {
		t.Errorf("probeCount = %d, want 3", b.probeCount)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_ClosedAllowsCalls(t *testing.T) {
	b := NewBreaker(Settings{Name: "test", Threshold: 3})
	called := false
	err := b.Do(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestBreaker_ClosedToOpen(t *testing.T) {
	b := NewBreaker(Settings{
		Name:      "test",
		Threshold: 3,
		CoolDown:  time.Hour, // long cool-down so it stays open
	})

	for i := 0; i < 3; i++ {
		_ = b.Do(func() error { return errTest })
	}

	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 failures", b.State())
	}

	err := b.Do(func() error { return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(Settings{Name: "test", Threshold: 3})

	// 2 failures, then a success. Should not open.
	_ = b.Do(func() error { return errTest })
	_ = b.Do(func() error { return errTest })
	_ = b.Do(func() error { return nil })

	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed (success should reset counter)", b.State())
	}

	_ = b.Do(func() error { return errTest })
	_ = b.Do(func() error { return errTest })
	if b.State() != StateClosed {
		t.Fatal("should still be closed after 2 failures post-reset")
	}
}

func TestBreaker_OpenToHalfOpenToClosed(t *testing.T) {
	b := NewBreaker(Settings{
		Name:       "test",
		Threshold:  2,
		CoolDown:   10 * time.Millisecond,
		ProbeCount: 2,
	})

	_ = b.Do(func() error { return errTest })
	_ = b.Do(func() error { return errTest })
	if b.State() != StateOpen {
		t.Fatal("expected open")
	}

	time.Sleep(20 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after cool-down", b.State())
	}

	// Two successful probes close the breaker.
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe 1: %v", err)
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe 2: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probes", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(Settings{
		Name:       "test",
		Threshold:  1,
		CoolDown:   10 * time.Millisecond,
		ProbeCount: 3,
	})

	_ = b.Do(func() error { return errTest })
	time.Sleep(20 * time.Millisecond)

	// Failed probe re-opens immediately.
	_ = b.Do(func() error { return errTest })
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(Settings{Name: "test", Threshold: 1, CoolDown: time.Hour})

	_ = b.Do(func() error { return errTest })
	if b.State() != StateOpen {
		t.Fatal("expected open")
	}

	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after Reset", b.State())
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("call after Reset: %v", err)
	}
}

func TestFallbackGroup_PrimaryFirst(t *testing.T) {
	g := NewFallbackGroup("primary", "p", Settings{})
	g.AddFallback("f", "fallback")

	var used string
	err := g.Do(func(v string) error {
		used = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if used != "primary" {
		t.Errorf("used = %q, want primary", used)
	}
}

func TestFallbackGroup_FallsBack(t *testing.T) {
	g := NewFallbackGroup("primary", "p", Settings{})
	g.AddFallback("f", "fallback")

	result, err := DoWithResult(g, func(v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return v + " ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "fallback ok" {
		t.Errorf("result = %q, want %q", result, "fallback ok")
	}
}

func TestFallbackGroup_AllFailed(t *testing.T) {
	g := NewFallbackGroup("primary", "p", Settings{})

	err := g.Do(func(string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
