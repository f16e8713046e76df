package diarize_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/nocturneflow/voxalign/internal/diarize"
)

func TestNormalize_MergesSameSpeakerWithinGap(t *testing.T) {
	t.Parallel()

	turns := []diarize.Turn{
		{Start: 0, End: 1, Speaker: "A"},
		{Start: 1.1, End: 2, Speaker: "A"},
		{Start: 5, End: 6, Speaker: "B"},
	}

	got, err := diarize.Normalize(turns, 0.5, 0.2)
	if err != nil {
		t.Fatalf("Normalize: unexpected error: %v", err)
	}

	want := []diarize.Turn{
		{Start: 0, End: 2, Speaker: "A"},
		{Start: 5, End: 6, Speaker: "B"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}
}

func TestNormalize_DropsShortTurns(t *testing.T) {
	t.Parallel()

	got, err := diarize.Normalize([]diarize.Turn{{Start: 0, End: 0.3, Speaker: "A"}}, 0.5, 0.2)
	if err != nil {
		t.Fatalf("Normalize: unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Normalize kept %d turns, want 0", len(got))
	}
}

func TestNormalize_EmptyInput(t *testing.T) {
	t.Parallel()

	got, err := diarize.Normalize(nil, 0.5, 0.2)
	if err != nil {
		t.Fatalf("Normalize: unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Normalize(nil) = %v, want empty non-nil slice", got)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	raw := []diarize.Turn{
		{Start: 3.4, End: 3.6, Speaker: "B"}, // dropped: too short
		{Start: 0, End: 1.2, Speaker: "A"},
		{Start: 1.3, End: 2.5, Speaker: "A"},
		{Start: 2.6, End: 4.1, Speaker: "B"},
		{Start: 6, End: 7, Speaker: "A"},
	}

	once, err := diarize.Normalize(raw, 0.5, 0.2)
	if err != nil {
		t.Fatalf("first Normalize: %v", err)
	}
	twice, err := diarize.Normalize(once, 0.5, 0.2)
	if err != nil {
		t.Fatalf("second Normalize: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Normalize not idempotent:\n once = %v\ntwice = %v", once, twice)
	}
}

func TestNormalize_SingleSpeakerCollapses(t *testing.T) {
	t.Parallel()

	turns := []diarize.Turn{
		{Start: 0, End: 2, Speaker: "A"},
		{Start: 2.1, End: 4, Speaker: "A"},
		{Start: 4.05, End: 6, Speaker: "A"},
	}

	got, err := diarize.Normalize(turns, 0.5, 0.2)
	if err != nil {
		t.Fatalf("Normalize: unexpected error: %v", err)
	}
	want := []diarize.Turn{{Start: 0, End: 6, Speaker: "A"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}
}

func TestNormalize_UnsortedInput(t *testing.T) {
	t.Parallel()

	turns := []diarize.Turn{
		{Start: 5, End: 6, Speaker: "B"},
		{Start: 1.1, End: 2, Speaker: "A"},
		{Start: 0, End: 1, Speaker: "A"},
	}

	got, err := diarize.Normalize(turns, 0.5, 0.2)
	if err != nil {
		t.Fatalf("Normalize: unexpected error: %v", err)
	}
	want := []diarize.Turn{
		{Start: 0, End: 2, Speaker: "A"},
		{Start: 5, End: 6, Speaker: "B"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}
}

func TestNormalize_RejectsMalformedTurn(t *testing.T) {
	t.Parallel()

	turns := []diarize.Turn{
		{Start: 0, End: 1, Speaker: "A"},
		{Start: 4, End: 3, Speaker: "B"},
	}

	_, err := diarize.Normalize(turns, 0.5, 0.2)
	var ite *diarize.InvalidTurnError
	if !errors.As(err, &ite) {
		t.Fatalf("Normalize error = %v, want *InvalidTurnError", err)
	}
	if ite.Index != 1 {
		t.Errorf("InvalidTurnError.Index = %d, want 1", ite.Index)
	}
}

func TestSpeakers_FirstSeenOrder(t *testing.T) {
	t.Parallel()

	turns := []diarize.Turn{
		{Start: 0, End: 1, Speaker: "S2"},
		{Start: 1, End: 2, Speaker: "S1"},
		{Start: 2, End: 3, Speaker: "S2"},
	}
	got := diarize.Speakers(turns)
	want := []string{"S2", "S1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Speakers = %v, want %v", got, want)
	}
}
