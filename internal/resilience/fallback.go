package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has
// an open breaker.
var ErrAllFailed = errors.New("all providers failed")

// fallbackEntry pairs a provider value with its dedicated breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the
// same provider type, each behind its own [Breaker]. When the primary fails
// (or its breaker is open), the next healthy fallback is tried in
// registration order.
//
// Used to chain LLM backends for polishing: a hosted model as primary with a
// local one as fallback keeps enrichment running through provider outages.
type FallbackGroup[T any] struct {
	entries  []fallbackEntry[T]
	settings Settings
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
// settings configures the per-entry breakers; its Name field is overridden
// per entry.
func NewFallbackGroup[T any](primary T, primaryName string, settings Settings) *FallbackGroup[T] {
	g := &FallbackGroup[T]{settings: settings}
	g.add(primaryName, primary)
	return g
}

// AddFallback appends a fallback provider. Fallbacks are tried in the order
// they are added, after the primary.
func (g *FallbackGroup[T]) AddFallback(name string, fallback T) {
	g.add(name, fallback)
}

func (g *FallbackGroup[T]) add(name string, value T) {
	s := g.settings
	s.Name = name
	g.entries = append(g.entries, fallbackEntry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(s),
	})
}

// Do tries fn against each entry in order until one succeeds. Entries with an
// open breaker are skipped. Returns [ErrAllFailed] wrapped with the last
// error if every entry fails.
func (g *FallbackGroup[T]) Do(fn func(T) error) error {
	var lastErr error
	for i := range g.entries {
		entry := &g.entries[i]
		err := entry.breaker.Do(func() error {
			return fn(entry.value)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping provider (breaker open)", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next",
				"provider", entry.name, "error", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// DoWithResult tries fn against each entry in the group until one succeeds,
// returning both the result value and error. This is a package-level function
// because Go does not support method-level type parameters.
func DoWithResult[T any, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range g.entries {
		entry := &g.entries[i]
		var result R
		err := entry.breaker.Do(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping provider (breaker open)", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next",
				"provider", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
