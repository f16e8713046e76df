package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nocturneflow/voxalign/internal/diarize"
	"github.com/nocturneflow/voxalign/internal/pipeline"
	"github.com/nocturneflow/voxalign/internal/polish"
	"github.com/nocturneflow/voxalign/internal/resilience"
	"github.com/nocturneflow/voxalign/pkg/provider/asr"
	asrmock "github.com/nocturneflow/voxalign/pkg/provider/asr/mock"
	diarmock "github.com/nocturneflow/voxalign/pkg/provider/diar/mock"
	"github.com/nocturneflow/voxalign/pkg/provider/emotion"
	emomock "github.com/nocturneflow/voxalign/pkg/provider/emotion/mock"
	"github.com/nocturneflow/voxalign/pkg/provider/llm"
	llmmock "github.com/nocturneflow/voxalign/pkg/provider/llm/mock"
)

func TestRun_PerTurn(t *testing.T) {
	t.Parallel()

	diarizer := &diarmock.Engine{Turns: []diarize.Turn{
		{Start: 0, End: 3, Speaker: "S1"},
		{Start: 3, End: 4, Speaker: "S2"},
	}}
	recognizer := &asrmock.Provider{Results: []*asr.Result{
		{Segments: []asr.Segment{{Start: 0, End: 3, Text: "hello"}}, Language: "en"},
		{Segments: []asr.Segment{{Start: 3, End: 4, Text: "world"}}, Language: "en"},
	}}

	p := pipeline.New(recognizer, pipeline.Config{}, pipeline.WithDiarizer(diarizer))
	result, err := p.Run(context.Background(), pipeline.Request{
		AudioPath: "a.wav",
		Diarize:   true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.FullText != "hello world" {
		t.Errorf("FullText = %q, want %q", result.FullText, "hello world")
	}
	if result.FormattedText != "S1: hello S2: world" {
		t.Errorf("FormattedText = %q, want %q", result.FormattedText, "S1: hello S2: world")
	}
	if len(result.Speakers) != 2 || result.Speakers[0] != "S1" || result.Speakers[1] != "S2" {
		t.Errorf("Speakers = %v, want [S1 S2]", result.Speakers)
	}
	if result.Duration != 4.0 {
		t.Errorf("Duration = %v, want 4.0", result.Duration)
	}
	if result.Language != "en" {
		t.Errorf("Language = %q, want en", result.Language)
	}

	// One ASR call per normalized turn, each with that turn's range.
	if len(recognizer.Calls) != 2 {
		t.Fatalf("got %d ASR calls, want 2", len(recognizer.Calls))
	}
	if recognizer.Calls[0].Range == nil || recognizer.Calls[0].Range.End != 3 {
		t.Errorf("first call range = %+v, want [0, 3)", recognizer.Calls[0].Range)
	}
}

func TestRun_AlignStrategy(t *testing.T) {
	t.Parallel()

	diarizer := &diarmock.Engine{Turns: []diarize.Turn{
		{Start: 0, End: 3, Speaker: "S1"},
		{Start: 3, End: 4, Speaker: "S2"},
	}}
	recognizer := &asrmock.Provider{Result: &asr.Result{
		Segments: []asr.Segment{
			{Start: 0, End: 2, Text: "hello"},
			{Start: 2.5, End: 3.5, Text: "world"},
		},
		Language: "en",
		Duration: 4.0,
	}}

	p := pipeline.New(recognizer, pipeline.Config{Strategy: pipeline.StrategyAlign},
		pipeline.WithDiarizer(diarizer))
	result, err := p.Run(context.Background(), pipeline.Request{
		AudioPath: "a.wav",
		Diarize:   true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Single whole-file ASR call; speakers from timeline midpoints
	// (midpoint 1.0 → S1, midpoint 3.0 → S2).
	if len(recognizer.Calls) != 1 || recognizer.Calls[0].Range != nil {
		t.Fatalf("calls = %+v, want one whole-file call", recognizer.Calls)
	}
	if result.Segments[0].Speaker != "S1" || result.Segments[1].Speaker != "S2" {
		t.Errorf("speakers = %q, %q, want S1, S2",
			result.Segments[0].Speaker, result.Segments[1].Speaker)
	}
	if result.Duration != 4.0 {
		t.Errorf("Duration = %v, want engine-reported 4.0", result.Duration)
	}
}

func TestRun_DiarizerFailureDowngrades(t *testing.T) {
	t.Parallel()

	diarizer := &diarmock.Engine{Err: errors.New("gpu exploded")}
	recognizer := &asrmock.Provider{Result: &asr.Result{
		Segments: []asr.Segment{{Start: 0, End: 4, Text: "hello world"}},
		Language: "en",
		Duration: 4.0,
	}}

	p := pipeline.New(recognizer, pipeline.Config{}, pipeline.WithDiarizer(diarizer))
	result, err := p.Run(context.Background(), pipeline.Request{
		AudioPath: "a.wav",
		Diarize:   true,
	})
	if err != nil {
		t.Fatalf("Run: diarizer failure must not fail the request: %v", err)
	}

	if result.FullText != "hello world" {
		t.Errorf("FullText = %q, want %q", result.FullText, "hello world")
	}
	// Whole-file path: no speaker on any segment, no speaker list.
	for _, s := range result.Segments {
		if s.Speaker != "" {
			t.Errorf("segment %+v has a speaker on the fallback path", s)
		}
	}
	if len(result.Speakers) != 0 {
		t.Errorf("Speakers = %v, want empty", result.Speakers)
	}
}

func TestRun_MalformedTurnsDowngrade(t *testing.T) {
	t.Parallel()

	// end < start is malformed collaborator output; the run degrades instead
	// of failing.
	diarizer := &diarmock.Engine{Turns: []diarize.Turn{
		{Start: 5, End: 2, Speaker: "S1"},
	}}
	recognizer := &asrmock.Provider{Result: &asr.Result{
		Segments: []asr.Segment{{Start: 0, End: 1, Text: "ok"}},
	}}

	p := pipeline.New(recognizer, pipeline.Config{}, pipeline.WithDiarizer(diarizer))
	result, err := p.Run(context.Background(), pipeline.Request{AudioPath: "a.wav", Diarize: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Speakers) != 0 {
		t.Errorf("Speakers = %v, want empty after downgrade", result.Speakers)
	}
}

func TestRun_ASRFailureIsFatal(t *testing.T) {
	t.Parallel()

	recognizer := &asrmock.Provider{Err: errors.New("model not loaded")}
	p := pipeline.New(recognizer, pipeline.Config{})

	result, err := p.Run(context.Background(), pipeline.Request{AudioPath: "a.wav"})
	if err == nil {
		t.Fatal("Run: expected error on ASR failure")
	}
	if result != nil {
		t.Fatalf("result = %+v, want nil (no partial results)", result)
	}
}

func TestRun_PerTurnASRFailureIsFatal(t *testing.T) {
	t.Parallel()

	diarizer := &diarmock.Engine{Turns: []diarize.Turn{
		{Start: 0, End: 3, Speaker: "S1"},
		{Start: 3, End: 4, Speaker: "S2"},
	}}
	calls := 0
	recognizer := &asrmock.Provider{
		TranscribeFunc: func(context.Context, string, *asr.TimeRange, asr.Options) (*asr.Result, error) {
			calls++
			if calls == 2 {
				return nil, errors.New("decode error")
			}
			return &asr.Result{Segments: []asr.Segment{{End: 3, Text: "hello"}}}, nil
		},
	}

	p := pipeline.New(recognizer, pipeline.Config{}, pipeline.WithDiarizer(diarizer))
	if _, err := p.Run(context.Background(), pipeline.Request{AudioPath: "a.wav", Diarize: true}); err == nil {
		t.Fatal("Run: expected error when a turn transcription fails")
	}
}

func TestRun_PolishBestEffort(t *testing.T) {
	t.Parallel()

	diarizer := &diarmock.Engine{Turns: []diarize.Turn{
		{Start: 0, End: 2, Speaker: "S1"},
	}}
	recognizer := &asrmock.Provider{Result: &asr.Result{
		Segments: []asr.Segment{{Start: 0, End: 2, Text: "helo wrld"}},
		Language: "en",
	}}
	llmProv := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "hello world"}}
	pol := polish.New(
		resilience.NewFallbackGroup[llm.Provider](llmProv, "mock", resilience.Settings{}),
		polish.WithMinSimilarity(0),
	)

	p := pipeline.New(recognizer, pipeline.Config{},
		pipeline.WithDiarizer(diarizer),
		pipeline.WithPolisher(pol))
	result, err := p.Run(context.Background(), pipeline.Request{
		AudioPath: "a.wav",
		Diarize:   true,
		Polish:    true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Segments[0].Polished != "hello world" {
		t.Errorf("segment Polished = %q, want polished text", result.Segments[0].Polished)
	}
	if result.PolishedText != "hello world" {
		t.Errorf("PolishedText = %q, want polished full text", result.PolishedText)
	}
	// Raw text untouched.
	if result.FullText != "helo wrld" {
		t.Errorf("FullText = %q, want raw text preserved", result.FullText)
	}
}

func TestRun_PolishFailureKeepsRawText(t *testing.T) {
	t.Parallel()

	recognizer := &asrmock.Provider{Result: &asr.Result{
		Segments: []asr.Segment{{Start: 0, End: 2, Text: "hello"}},
	}}
	llmProv := &llmmock.Provider{Err: errors.New("llm down")}
	pol := polish.New(resilience.NewFallbackGroup[llm.Provider](llmProv, "mock", resilience.Settings{}))

	p := pipeline.New(recognizer, pipeline.Config{}, pipeline.WithPolisher(pol))
	result, err := p.Run(context.Background(), pipeline.Request{AudioPath: "a.wav", Polish: true})
	if err != nil {
		t.Fatalf("Run: polish failure must not fail the request: %v", err)
	}
	if result.PolishedText != "hello" {
		t.Errorf("PolishedText = %q, want raw text substituted", result.PolishedText)
	}
}

func TestRun_EmotionAnnotation(t *testing.T) {
	t.Parallel()

	diarizer := &diarmock.Engine{Turns: []diarize.Turn{
		{Start: 0, End: 2, Speaker: "S1"},
		{Start: 2, End: 4, Speaker: "S2"},
	}}
	recognizer := &asrmock.Provider{Results: []*asr.Result{
		{Segments: []asr.Segment{{Start: 0, End: 2, Text: "hi"}}},
		{Segments: []asr.Segment{{Start: 2, End: 4, Text: "hey"}}},
	}}
	classifier := &emomock.Classifier{Labels: []emotion.Label{
		{Emotion: "happy", Confidence: 0.9},
		{Emotion: "neutral", Confidence: 0.8},
	}}

	p := pipeline.New(recognizer, pipeline.Config{},
		pipeline.WithDiarizer(diarizer),
		pipeline.WithClassifier(classifier))
	result, err := p.Run(context.Background(), pipeline.Request{
		AudioPath: "a.wav",
		Diarize:   true,
		Emotion:   true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Segments[0].Emotion != "happy" || result.Segments[1].Emotion != "neutral" {
		t.Errorf("segment emotions = %q, %q",
			result.Segments[0].Emotion, result.Segments[1].Emotion)
	}
	// Overall label comes from a separate whole-file classification. The
	// mock returns its scripted labels again; the first one wins.
	if result.OverallEmotion != "happy" {
		t.Errorf("OverallEmotion = %q, want happy", result.OverallEmotion)
	}
}

func TestRun_EmotionFailureIsAbsorbed(t *testing.T) {
	t.Parallel()

	recognizer := &asrmock.Provider{Result: &asr.Result{
		Segments: []asr.Segment{{Start: 0, End: 2, Text: "hi"}},
	}}
	classifier := &emomock.Classifier{Err: errors.New("sidecar down")}

	p := pipeline.New(recognizer, pipeline.Config{}, pipeline.WithClassifier(classifier))
	result, err := p.Run(context.Background(), pipeline.Request{AudioPath: "a.wav", Emotion: true})
	if err != nil {
		t.Fatalf("Run: emotion failure must not fail the request: %v", err)
	}
	if result.OverallEmotion != "" {
		t.Errorf("OverallEmotion = %q, want empty", result.OverallEmotion)
	}
}

func TestRun_EmotionShortLabelListIsRejected(t *testing.T) {
	t.Parallel()

	diarizer := &diarmock.Engine{Turns: []diarize.Turn{
		{Start: 0, End: 2, Speaker: "S1"},
		{Start: 2, End: 4, Speaker: "S2"},
	}}
	recognizer := &asrmock.Provider{Results: []*asr.Result{
		{Segments: []asr.Segment{{Start: 0, End: 2, Text: "hi"}}},
		{Segments: []asr.Segment{{Start: 2, End: 4, Text: "hey"}}},
	}}
	// One label for two segments: malformed, must not be applied (and must
	// not panic the run).
	classifier := &emomock.Classifier{Labels: []emotion.Label{
		{Emotion: "happy", Confidence: 0.9},
	}}

	p := pipeline.New(recognizer, pipeline.Config{},
		pipeline.WithDiarizer(diarizer),
		pipeline.WithClassifier(classifier))
	result, err := p.Run(context.Background(), pipeline.Request{
		AudioPath: "a.wav",
		Diarize:   true,
		Emotion:   true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Segments[0].Emotion != "" || result.Segments[1].Emotion != "" {
		t.Errorf("segment emotions = %q, %q; want unlabeled on short label list",
			result.Segments[0].Emotion, result.Segments[1].Emotion)
	}
	// The whole-file call needs only one label, so the overall still lands.
	if result.OverallEmotion != "happy" {
		t.Errorf("OverallEmotion = %q, want happy", result.OverallEmotion)
	}
}

func TestRun_EmotionEmptyLabelListIsRejected(t *testing.T) {
	t.Parallel()

	recognizer := &asrmock.Provider{Result: &asr.Result{
		Segments: []asr.Segment{{Start: 0, End: 2, Text: "hi"}},
	}}
	classifier := &emomock.Classifier{Labels: []emotion.Label{}}

	p := pipeline.New(recognizer, pipeline.Config{}, pipeline.WithClassifier(classifier))
	result, err := p.Run(context.Background(), pipeline.Request{AudioPath: "a.wav", Emotion: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.OverallEmotion != "" {
		t.Errorf("OverallEmotion = %q, want empty on empty label list", result.OverallEmotion)
	}
}

func TestRun_DiarizeDisabledSkipsEngine(t *testing.T) {
	t.Parallel()

	diarizer := &diarmock.Engine{Turns: []diarize.Turn{{Start: 0, End: 1, Speaker: "S1"}}}
	recognizer := &asrmock.Provider{Result: &asr.Result{
		Segments: []asr.Segment{{Start: 0, End: 1, Text: "hi"}},
	}}

	p := pipeline.New(recognizer, pipeline.Config{}, pipeline.WithDiarizer(diarizer))
	if _, err := p.Run(context.Background(), pipeline.Request{AudioPath: "a.wav"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(diarizer.Calls) != 0 {
		t.Errorf("diarizer called %d times, want 0 when disabled", len(diarizer.Calls))
	}
}
