// Package diarize defines the diarization turn model and the turn
// normalization pass that cleans raw diarizer output before alignment.
//
// Raw turns arriving from a diarization engine are noisy: speakers are split
// into many short fragments, sub-word chatter produces turns a few hundred
// milliseconds long, and emission order is not guaranteed. [Normalize] turns
// that raw collection into a sorted, merged sequence suitable for building a
// speaker timeline:
//
//  1. malformed turns (End before Start) are rejected outright;
//  2. turns shorter than a minimum length are dropped as diarizer noise;
//  3. the survivors are stable-sorted by start time;
//  4. adjacent turns of the same speaker separated by at most a small gap are
//     merged into one.
//
// Normalization is idempotent: feeding its output back in yields the same
// sequence.
package diarize

import (
	"fmt"
	"sort"
)

// Default normalization parameters. Both are tunable via configuration; the
// defaults match the diarizer noise profile observed in production recordings.
const (
	// DefaultMinTurn is the minimum turn length in seconds. Shorter turns are
	// discarded as diarization artifacts.
	DefaultMinTurn = 0.5

	// DefaultMergeGap is the maximum silence in seconds between two turns of
	// the same speaker that still merges them into one turn.
	DefaultMergeGap = 0.2
)

// Turn is a time interval attributed to a single speaker by the diarization
// engine. Times are in seconds from the start of the recording.
type Turn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Duration returns the turn length in seconds.
func (t Turn) Duration() float64 { return t.End - t.Start }

// InvalidTurnError reports a malformed turn received from the diarization
// engine. Malformed turns are never silently reordered or coerced — the whole
// batch is rejected so the caller can fall back to non-diarized transcription.
type InvalidTurnError struct {
	// Index is the position of the offending turn in the input slice.
	Index int

	// Turn is the offending turn as received.
	Turn Turn
}

func (e *InvalidTurnError) Error() string {
	return fmt.Sprintf("diarize: turn %d malformed: end %.3f before start %.3f (speaker %q)",
		e.Index, e.Turn.End, e.Turn.Start, e.Turn.Speaker)
}

// Normalize cleans raw diarization turns into a sorted, merged sequence.
//
// Turns shorter than minLen seconds are dropped. The remainder is sorted by
// start time (stable, so emission order is preserved on ties) and swept left
// to right: a turn whose speaker matches the previous turn and whose start is
// within mergeGap seconds of the previous end extends the previous turn
// instead of opening a new one.
//
// The input slice is not modified. An empty input yields an empty (non-nil)
// result. A turn with End < Start causes the whole call to fail with an
// [*InvalidTurnError].
func Normalize(turns []Turn, minLen, mergeGap float64) ([]Turn, error) {
	for i, t := range turns {
		if t.End < t.Start {
			return nil, &InvalidTurnError{Index: i, Turn: t}
		}
	}

	kept := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.Duration() >= minLen {
			kept = append(kept, t)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Start < kept[j].Start
	})

	merged := make([]Turn, 0, len(kept))
	for _, t := range kept {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.Speaker == t.Speaker && t.Start-last.End <= mergeGap {
				if t.End > last.End {
					last.End = t.End
				}
				continue
			}
		}
		merged = append(merged, t)
	}

	return merged, nil
}

// Speakers returns the distinct speaker labels of turns in first-seen order.
func Speakers(turns []Turn) []string {
	var out []string
	seen := make(map[string]struct{}, 4)
	for _, t := range turns {
		if _, ok := seen[t.Speaker]; ok {
			continue
		}
		seen[t.Speaker] = struct{}{}
		out = append(out, t.Speaker)
	}
	return out
}
