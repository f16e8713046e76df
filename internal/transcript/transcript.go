// Package transcript defines the transcript data model and the deterministic
// assembly of per-segment recognition results into the final document.
//
// A [Segment] is the atomic transcript unit: a time-bounded span of
// recognized text, optionally annotated with a speaker label, an emotion
// label, and a polished variant of the text. Segment order is fixed at
// creation and is the canonical transcript order — nothing downstream may
// reorder it.
//
// [Assemble] folds an ordered segment slice into a [Result]. Assembly is a
// pure function: the same segment slice always produces byte-identical text
// fields.
package transcript

// Segment is one time-bounded unit of recognized text.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`

	// Speaker is empty when diarization was disabled or failed for the whole
	// request — never for just some segments of a request.
	Speaker string `json:"speaker,omitempty"`

	// Emotion is the optional emotion label for this span.
	Emotion string `json:"emotion,omitempty"`

	// Polished is the optional refined variant of Text. Equal to Text when the
	// refinement pass was attempted but unavailable.
	Polished string `json:"polished_text,omitempty"`
}

// Result is the terminal artifact of a pipeline run: the ordered segments
// plus the derived text views and metadata. Persistence and API response
// shaping layer on top of this without modifying it.
type Result struct {
	Segments []Segment `json:"segments"`

	// FullText is all segment texts joined with single spaces, in order.
	FullText string `json:"full_text"`

	// FormattedText prefixes a speaker label on every speaker change.
	FormattedText string `json:"formatted_text"`

	// Speakers lists distinct speaker labels in first-seen order.
	Speakers []string `json:"speakers"`

	// Duration is the recording length in seconds.
	Duration float64 `json:"duration"`

	// Language is the detected or requested language code.
	Language string `json:"language"`

	// PolishedText joins the polished segment texts (or a whole-text polish in
	// the non-diarized path). Empty when refinement is disabled.
	PolishedText string `json:"polished_text,omitempty"`

	// OverallEmotion is the whole-recording emotion label. Empty when
	// emotion annotation is disabled.
	OverallEmotion string `json:"overall_emotion,omitempty"`
}

// Assemble builds a [Result] from ordered segments.
//
// duration is the engine-reported recording length; when non-positive, the
// end timestamp of the final segment is used instead. The input slice is
// referenced, not copied — callers must not mutate it afterwards.
func Assemble(segments []Segment, language string, duration float64) *Result {
	r := &Result{
		Segments: segments,
		Language: language,
		Duration: duration,
	}

	var full, formatted []byte
	var prevSpeaker string
	seen := make(map[string]struct{}, 4)

	for i, s := range segments {
		if i > 0 {
			full = append(full, ' ')
			formatted = append(formatted, ' ')
		}
		full = append(full, s.Text...)

		if s.Speaker != "" && (i == 0 || s.Speaker != prevSpeaker) {
			formatted = append(formatted, s.Speaker...)
			formatted = append(formatted, ':', ' ')
		}
		formatted = append(formatted, s.Text...)
		prevSpeaker = s.Speaker

		if s.Speaker != "" {
			if _, ok := seen[s.Speaker]; !ok {
				seen[s.Speaker] = struct{}{}
				r.Speakers = append(r.Speakers, s.Speaker)
			}
		}
	}

	r.FullText = string(full)
	r.FormattedText = string(formatted)

	if r.Duration <= 0 && len(segments) > 0 {
		r.Duration = segments[len(segments)-1].End
	}
	return r
}
