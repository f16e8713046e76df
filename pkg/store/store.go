// Package store defines the persistence contracts for finished
// transcriptions and polishing exemplars.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nocturneflow/voxalign/internal/transcript"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: record not found")

// Record is a persisted transcription.
type Record struct {
	ID             int64                `json:"id"`
	Filename       string               `json:"filename"`
	Language       string               `json:"language"`
	Duration       float64              `json:"duration"`
	FullText       string               `json:"full_text"`
	FormattedText  string               `json:"formatted_text"`
	PolishedText   string               `json:"polished_text,omitempty"`
	OverallEmotion string               `json:"overall_emotion,omitempty"`
	Speakers       []string             `json:"speakers"`
	Segments       []transcript.Segment `json:"segments"`
	CreatedAt      time.Time            `json:"created_at"`
}

// Exemplar is a stored raw/polished text pair with its embedding, used for
// few-shot retrieval during polishing.
type Exemplar struct {
	ID        int64
	Language  string
	Raw       string
	Polished  string
	Embedding []float32
}

// TranscriptionStore persists finished transcriptions.
//
// Implementations must be safe for concurrent use.
type TranscriptionStore interface {
	// Save persists rec and returns its assigned ID.
	Save(ctx context.Context, rec *Record) (int64, error)

	// Get returns the record with the given ID, or ErrNotFound.
	Get(ctx context.Context, id int64) (*Record, error)

	// List returns up to limit records ordered newest first, skipping offset.
	List(ctx context.Context, limit, offset int) ([]Record, error)
}

// ExemplarStore persists and retrieves polishing exemplars by vector
// similarity.
//
// Implementations must be safe for concurrent use.
type ExemplarStore interface {
	// AddExemplar persists ex. The embedding must have the dimensionality the
	// store was created with.
	AddExemplar(ctx context.Context, ex *Exemplar) error

	// SimilarExemplars returns up to k exemplars for language, ranked by
	// cosine distance to embedding.
	SimilarExemplars(ctx context.Context, embedding []float32, language string, k int) ([]Exemplar, error)
}
