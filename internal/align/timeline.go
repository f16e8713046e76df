// Package align reconciles speech-recognition segments with diarization turns.
//
// The two engines segment audio independently, so their boundaries rarely
// coincide. The package builds a [Timeline] — a dense, quantized time→speaker
// index — from normalized diarization turns, then resolves each transcript
// segment to a speaker by looking up the segment midpoint, widening the search
// around it when the midpoint falls into a diarization gap.
package align

import (
	"math"

	"github.com/nocturneflow/voxalign/internal/diarize"
)

const (
	// DefaultResolution is the timeline quantization step in seconds.
	DefaultResolution = 0.01

	// DefaultSearchRadius is the number of timeline instants inspected on each
	// side of an unassigned midpoint before giving up.
	DefaultSearchRadius = 50

	// Unknown is the placeholder speaker label assigned when no diarization
	// turn lies within the search radius of a segment midpoint. It is distinct
	// from an absent label, which means diarization was disabled or failed for
	// the whole request.
	Unknown = "unknown"
)

// unassigned marks a timeline cell not covered by any turn.
const unassigned = -1

// Timeline is an immutable, dense mapping from quantized time instants to
// speaker labels, built once per recording from normalized diarization turns.
// Lookups are O(1) slice indexing. A nil or zero-length Timeline resolves
// every instant to "no speaker".
type Timeline struct {
	resolution float64
	speakers   []string // label table
	cells      []int16  // index into speakers, or unassigned
}

// BuildTimeline constructs a [Timeline] at the given resolution (seconds per
// instant; non-positive values fall back to [DefaultResolution]). Every
// quantized instant inside a turn's [start, end) is marked with that turn's
// speaker. Turns are applied in slice order, so on (unexpected) overlap the
// later turn deterministically wins.
func BuildTimeline(turns []diarize.Turn, resolution float64) *Timeline {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	tl := &Timeline{resolution: resolution}
	if len(turns) == 0 {
		return tl
	}

	var maxEnd float64
	for _, t := range turns {
		if t.End > maxEnd {
			maxEnd = t.End
		}
	}
	tl.cells = make([]int16, tl.index(maxEnd))
	for i := range tl.cells {
		tl.cells[i] = unassigned
	}

	labels := make(map[string]int16, 4)
	for _, t := range turns {
		id, ok := labels[t.Speaker]
		if !ok {
			id = int16(len(tl.speakers))
			labels[t.Speaker] = id
			tl.speakers = append(tl.speakers, t.Speaker)
		}
		for i := tl.index(t.Start); i < tl.index(t.End) && i < len(tl.cells); i++ {
			tl.cells[i] = id
		}
	}
	return tl
}

// Resolution returns the quantization step in seconds.
func (tl *Timeline) Resolution() float64 { return tl.resolution }

// Len returns the number of quantized instants covered by the timeline.
func (tl *Timeline) Len() int { return len(tl.cells) }

// index quantizes a time in seconds to an instant index.
func (tl *Timeline) index(sec float64) int {
	return int(math.Round(sec / tl.resolution))
}

// at returns the speaker at instant i, or ok=false when i is out of range or
// falls in a diarization gap.
func (tl *Timeline) at(i int) (string, bool) {
	if i < 0 || i >= len(tl.cells) || tl.cells[i] == unassigned {
		return "", false
	}
	return tl.speakers[tl.cells[i]], true
}

// SpeakerAt returns the speaker active at the given time in seconds, or
// ok=false when the instant is not covered by any turn.
func (tl *Timeline) SpeakerAt(sec float64) (string, bool) {
	return tl.at(tl.index(sec))
}
