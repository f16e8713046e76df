// Package emotion defines the emotion-classification provider contract.
//
// A classifier labels audio spans with a dominant emotion ("neutral",
// "happy", "sad", "angry", ...). Classification is a best-effort enrichment:
// a Classifier error never fails a transcription request, the affected
// segments simply carry no emotion label.
package emotion

import "context"

// Span is an audio region to classify, in seconds from the start of the file.
type Span struct {
	Start float64
	End   float64
}

// Label is a classified emotion for the span at the same index in the request.
type Label struct {
	// Emotion is the dominant emotion class name.
	Emotion string

	// Confidence is the classifier's score for that class in [0, 1].
	Confidence float64
}

// Classifier labels audio spans with their dominant emotion.
//
// Implementations must be safe for concurrent use.
type Classifier interface {
	// Classify returns one Label per span, in span order. An empty spans
	// slice classifies the whole file as a single span.
	Classify(ctx context.Context, path string, spans []Span) ([]Label, error)
}
