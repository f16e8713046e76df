// Package diar defines the speaker-diarization provider contract.
//
// A diarization engine maps an audio file to an unordered collection of
// speaker turns. Turns come back raw — overlapping, fragmented, and noisy —
// and are cleaned by the diarize package before any downstream use.
//
// Unlike recognition, diarization is optional: an Engine error never fails a
// request, it downgrades it to a transcript without speaker labels.
package diar

import (
	"context"

	"github.com/nocturneflow/voxalign/internal/diarize"
)

// Engine produces raw speaker turns for an audio file.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// Diarize returns the raw speaker turns detected in the audio file at
	// path. Order is not guaranteed.
	Diarize(ctx context.Context, path string) ([]diarize.Turn, error)
}
