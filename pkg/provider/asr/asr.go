// Package asr defines the speech-recognition provider contract.
//
// An ASR engine is consumed as a black box: given an audio file (optionally
// restricted to a time range), it returns an ordered sequence of time-stamped
// text segments plus language and duration metadata. Implementations live in
// subpackages (whisper HTTP server, native whisper.cpp bindings) and a test
// double lives in asr/mock.
//
// An error from a Provider is fatal to the request that issued it — there is
// no useful transcript without recognition. This is the only collaborator
// with that property; see the pipeline package for the degradation policy of
// the others.
package asr

import "context"

// Task selects the recognition mode.
type Task string

const (
	// TaskTranscribe emits text in the spoken language.
	TaskTranscribe Task = "transcribe"

	// TaskTranslate emits an English translation.
	TaskTranslate Task = "translate"
)

// IsValid reports whether t is a recognised task.
func (t Task) IsValid() bool {
	return t == TaskTranscribe || t == TaskTranslate
}

// TimeRange restricts recognition to [Start, End] seconds of the recording.
type TimeRange struct {
	Start float64
	End   float64
}

// Options carries per-request recognition settings.
type Options struct {
	// Language is the expected language code (e.g. "kk", "en"). Empty lets the
	// engine detect it.
	Language string

	// Task selects transcription or translation. Empty means transcribe.
	Task Task
}

// Segment is one time-stamped span of recognized text. Times are in seconds
// from the start of the recording (not the start of a requested range).
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the outcome of one recognition call.
type Result struct {
	// Segments in emission order, monotonic in Start.
	Segments []Segment

	// Language is the detected (or echoed) language code. May be empty.
	Language string

	// Duration is the engine-reported audio duration in seconds. Zero when the
	// engine does not report one.
	Duration float64
}

// Provider transcribes audio files.
//
// Implementations must be safe for concurrent use; callers that wrap
// non-reentrant engines serialize access externally.
type Provider interface {
	// Transcribe recognizes speech in the audio file at path. A non-nil rng
	// restricts recognition to that time range; segment timestamps in the
	// result remain absolute (recording-relative) either way.
	Transcribe(ctx context.Context, path string, rng *TimeRange, opts Options) (*Result, error)
}
