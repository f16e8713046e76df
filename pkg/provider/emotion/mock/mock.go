// Package mock provides a test double for the emotion package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/nocturneflow/voxalign/pkg/provider/emotion"
)

// ClassifyCall records a single invocation of Classify.
type ClassifyCall struct {
	Path  string
	Spans []emotion.Span
}

// Classifier is a mock implementation of emotion.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Labels is returned from every Classify call when Err is nil. When nil,
	// one "neutral" label per requested span is synthesized.
	Labels []emotion.Label

	// Err, if non-nil, is returned from every Classify call.
	Err error

	// Calls records every invocation.
	Calls []ClassifyCall
}

var _ emotion.Classifier = (*Classifier)(nil)

// Classify records the call and returns Labels, Err.
func (c *Classifier) Classify(_ context.Context, path string, spans []emotion.Span) ([]emotion.Label, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, ClassifyCall{Path: path, Spans: append([]emotion.Span(nil), spans...)})
	c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	if c.Labels != nil {
		return c.Labels, nil
	}
	n := len(spans)
	if n == 0 {
		n = 1
	}
	labels := make([]emotion.Label, n)
	for i := range labels {
		labels[i] = emotion.Label{Emotion: "neutral", Confidence: 1}
	}
	return labels, nil
}
