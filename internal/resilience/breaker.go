// Package resilience provides circuit breaker and provider failover
// primitives for the enrichment stages of the pipeline.
//
// The central type is [Breaker], a classic three-state breaker
// (closed → open → half-open). The polishing stage wraps its LLM provider in
// one so that a misbehaving model endpoint degrades requests to raw ASR text
// instead of stalling every transcription on a timeout.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] when the breaker is open and the
// cool-down has not yet elapsed.
var ErrOpen = errors.New("breaker is open")

// State represents the current operating mode of a [Breaker].
type State int

const (
	// StateClosed is the normal operating state. All calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped. Calls are rejected
	// immediately with [ErrOpen] until the cool-down elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the cool-down. A limited
	// number of calls are allowed through; if they succeed the breaker
	// closes, otherwise it re-opens.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Settings holds tuning knobs for a [Breaker].
type Settings struct {
	// Name is a human-readable label used in log messages.
	Name string

	// Threshold is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	Threshold int

	// CoolDown is how long the breaker stays open before transitioning to
	// half-open. Default: 30s.
	CoolDown time.Duration

	// ProbeCount is the number of successful probe calls required in the
	// half-open state before the breaker closes. Default: 3.
	ProbeCount int
}

// Breaker implements the three-state circuit breaker pattern.
type Breaker struct {
	name       string
	threshold  int
	coolDown   time.Duration
	probeCount int

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probes      int
	probeFails  int
}

// NewBreaker creates a [Breaker] with the supplied settings. Zero-value
// fields are replaced with defaults.
func NewBreaker(s Settings) *Breaker {
	if s.Threshold <= 0 {
		s.Threshold = 5
	}
	if s.CoolDown <= 0 {
		s.CoolDown = 30 * time.Second
	}
	if s.ProbeCount <= 0 {
		s.ProbeCount = 3
	}
	return &Breaker{
		name:       s.Name,
		threshold:  s.Threshold,
		coolDown:   s.CoolDown,
		probeCount: s.ProbeCount,
		state:      StateClosed,
	}
}

// Do runs fn if the breaker allows it. In the open state it returns [ErrOpen]
// without calling fn. In the half-open state a limited number of probe calls
// are permitted.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) < b.coolDown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.probes = 0
		b.probeFails = 0
		slog.Info("breaker transitioning to half-open", "name", b.name)

	case StateHalfOpen:
		if b.probes >= b.probeCount {
			// Probe budget exhausted, stay open.
			b.mu.Unlock()
			return ErrOpen
		}
	}

	probing := b.state == StateHalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure handles failure accounting. Must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.lastFailure = time.Now()

	if probing {
		// Any failure in half-open immediately re-opens.
		b.probeFails++
		b.state = StateOpen
		b.failures = b.threshold
		slog.Warn("breaker re-opened from half-open", "name", b.name)
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = StateOpen
		slog.Warn("breaker opened",
			"name", b.name,
			"consecutive_failures", b.failures)
	}
}

// onSuccess handles success accounting. Must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probes-b.probeFails >= b.probeCount {
			b.state = StateClosed
			b.failures = 0
			b.probes = 0
			b.probeFails = 0
			slog.Info("breaker closed after successful probes", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State returns the current [State] of the breaker. If the breaker is open
// and the cool-down has elapsed, the returned state is [StateHalfOpen] (the
// actual transition happens on the next [Do] call).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.lastFailure) >= b.coolDown {
		return StateHalfOpen
	}
	return b.state
}

// Reset manually forces the breaker back to [StateClosed], clearing all
// failure counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.probes = 0
	b.probeFails = 0
	slog.Info("breaker manually reset", "name", b.name)
}
