package align_test

import (
	"testing"

	"github.com/nocturneflow/voxalign/internal/align"
	"github.com/nocturneflow/voxalign/internal/diarize"
)

func TestBuildTimeline_Totality(t *testing.T) {
	t.Parallel()

	turns := []diarize.Turn{
		{Start: 0, End: 3, Speaker: "S1"},
		{Start: 3, End: 4, Speaker: "S2"},
		{Start: 6, End: 7, Speaker: "S1"},
	}
	tl := align.BuildTimeline(turns, 0.01)

	// Every instant inside a turn resolves to that turn's speaker.
	for _, tc := range []struct {
		sec  float64
		want string
	}{
		{0, "S1"}, {1.5, "S1"}, {2.99, "S1"},
		{3.0, "S2"}, {3.99, "S2"},
		{6.0, "S1"}, {6.5, "S1"},
	} {
		got, ok := tl.SpeakerAt(tc.sec)
		if !ok || got != tc.want {
			t.Errorf("SpeakerAt(%.2f) = %q, %v; want %q, true", tc.sec, got, ok, tc.want)
		}
	}

	// Instants outside all turns are unassigned.
	for _, sec := range []float64{4.5, 5.0, 5.99, 7.5} {
		if got, ok := tl.SpeakerAt(sec); ok {
			t.Errorf("SpeakerAt(%.2f) = %q, true; want unassigned", sec, got)
		}
	}
}

func TestBuildTimeline_Empty(t *testing.T) {
	t.Parallel()

	tl := align.BuildTimeline(nil, 0.01)
	if tl.Len() != 0 {
		t.Errorf("Len = %d, want 0", tl.Len())
	}
	if _, ok := tl.SpeakerAt(1); ok {
		t.Error("SpeakerAt(1) on empty timeline = assigned, want unassigned")
	}
}

func TestBuildTimeline_OverlapLaterTurnWins(t *testing.T) {
	t.Parallel()

	// Overlap should not happen post-normalization, but when it does the
	// later-processed turn wins deterministically.
	turns := []diarize.Turn{
		{Start: 0, End: 2, Speaker: "S1"},
		{Start: 1, End: 3, Speaker: "S2"},
	}
	tl := align.BuildTimeline(turns, 0.01)

	if got, _ := tl.SpeakerAt(0.5); got != "S1" {
		t.Errorf("SpeakerAt(0.5) = %q, want S1", got)
	}
	if got, _ := tl.SpeakerAt(1.5); got != "S2" {
		t.Errorf("SpeakerAt(1.5) = %q, want S2", got)
	}
}

func TestAssignSpeaker_Midpoint(t *testing.T) {
	t.Parallel()

	turns := []diarize.Turn{
		{Start: 0, End: 3, Speaker: "S1"},
		{Start: 3, End: 4, Speaker: "S2"},
	}
	tl := align.BuildTimeline(turns, 0.01)

	// Midpoint 1.0 → S1; midpoint 3.0 → S2.
	if got := tl.AssignSpeaker(0, 2, 50); got != "S1" {
		t.Errorf("AssignSpeaker(0,2) = %q, want S1", got)
	}
	if got := tl.AssignSpeaker(2, 4, 50); got != "S2" {
		t.Errorf("AssignSpeaker(2,4) = %q, want S2", got)
	}
}

func TestAssignSpeaker_WideningPrefersEarlier(t *testing.T) {
	t.Parallel()

	// The midpoint instant at 1.05 is exactly one instant away from both the
	// last S1 cell (1.04) and the first S2 cell (1.06); the earlier instant
	// must win at equal distance.
	turns := []diarize.Turn{
		{Start: 0, End: 1.05, Speaker: "S1"},
		{Start: 1.06, End: 2.0, Speaker: "S2"},
	}
	tl := align.BuildTimeline(turns, 0.01)

	if got := tl.AssignSpeaker(1.0, 1.1, 50); got != "S1" {
		t.Errorf("AssignSpeaker midpoint in gap = %q, want S1 (earlier wins at equal distance)", got)
	}
}

func TestAssignSpeaker_GapBeyondRadius(t *testing.T) {
	t.Parallel()

	turns := []diarize.Turn{{Start: 0, End: 1, Speaker: "S1"}}
	tl := align.BuildTimeline(turns, 0.01)

	// Midpoint 10s is 900 instants past the end of the only turn.
	if got := tl.AssignSpeaker(9, 11, 50); got != align.Unknown {
		t.Errorf("AssignSpeaker far from all turns = %q, want %q", got, align.Unknown)
	}
}

func TestAssignSpeaker_Deterministic(t *testing.T) {
	t.Parallel()

	turns := []diarize.Turn{
		{Start: 0, End: 2.5, Speaker: "S1"},
		{Start: 2.8, End: 5, Speaker: "S2"},
	}
	tl := align.BuildTimeline(turns, 0.01)

	first := tl.AssignSpeaker(2.4, 2.9, 50)
	for range 10 {
		if got := tl.AssignSpeaker(2.4, 2.9, 50); got != first {
			t.Fatalf("AssignSpeaker not deterministic: %q then %q", first, got)
		}
	}
}
