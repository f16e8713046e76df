// Package pipeline sequences diarization, recognition, speaker alignment,
// and enrichment into a single transcription run.
//
// The orchestrator is a linear state machine. The diarized path transcribes
// either one ASR call per speaker turn or one whole-file call reconciled
// against the speaker timeline, depending on the configured strategy. A
// diarizer failure is never a request failure: the run downgrades to plain
// whole-file transcription and continues. Polishing and emotion annotation
// are best-effort. Only ASR and resource errors propagate to the caller, and
// a run never yields a partial result.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/nocturneflow/voxalign/internal/align"
	"github.com/nocturneflow/voxalign/internal/diarize"
	"github.com/nocturneflow/voxalign/internal/observe"
	"github.com/nocturneflow/voxalign/internal/polish"
	"github.com/nocturneflow/voxalign/internal/transcript"
	"github.com/nocturneflow/voxalign/pkg/provider/asr"
	"github.com/nocturneflow/voxalign/pkg/provider/diar"
	"github.com/nocturneflow/voxalign/pkg/provider/emotion"
)

// Diarization strategies for the diarized path.
const (
	// StrategyPerTurn issues one ASR call per normalized speaker turn. The
	// speaker is carried from the turn itself; no timeline query is needed.
	StrategyPerTurn = "per_turn"

	// StrategyAlign issues a single whole-file ASR call and assigns each
	// returned segment a speaker via the timeline midpoint search.
	StrategyAlign = "align"
)

// Run path labels, used in logs and metrics.
const (
	pathPerTurn  = "diarized_per_turn"
	pathAlign    = "diarized_align"
	pathWhole    = "whole"
	pathFallback = "whole_fallback"
)

// Config holds the orchestrator tuning knobs.
type Config struct {
	// Strategy selects the diarized transcription strategy. Default:
	// StrategyPerTurn.
	Strategy string

	// MinTurn is the minimum speaker-turn length in seconds; shorter turns
	// are dropped during normalization. Default: diarize.DefaultMinTurn.
	MinTurn float64

	// MergeGap is the maximum same-speaker gap in seconds merged during
	// normalization. Default: diarize.DefaultMergeGap.
	MergeGap float64

	// Resolution is the timeline cell width in seconds. Default:
	// align.DefaultResolution.
	Resolution float64

	// SearchRadius is the widening-search radius in timeline cells. Default:
	// align.DefaultSearchRadius.
	SearchRadius int

	// Budget is the wall-clock budget for one full run. Zero means no
	// deadline beyond the caller's context.
	Budget time.Duration
}

// withDefaults returns cfg with zero values replaced.
func (c Config) withDefaults() Config {
	if c.Strategy == "" {
		c.Strategy = StrategyPerTurn
	}
	if c.MinTurn <= 0 {
		c.MinTurn = diarize.DefaultMinTurn
	}
	if c.MergeGap <= 0 {
		c.MergeGap = diarize.DefaultMergeGap
	}
	if c.Resolution <= 0 {
		c.Resolution = align.DefaultResolution
	}
	if c.SearchRadius <= 0 {
		c.SearchRadius = align.DefaultSearchRadius
	}
	return c
}

// Request describes one transcription run. The caller owns AudioPath and is
// responsible for deleting it after Run returns.
type Request struct {
	// AudioPath is the audio file to transcribe.
	AudioPath string

	// Filename is the original upload name, used only for logging.
	Filename string

	// Language is the expected language code ("" = auto-detect).
	Language string

	// Task selects transcription or translation. Default: asr.TaskTranscribe.
	Task asr.Task

	// Diarize requests speaker attribution.
	Diarize bool

	// Polish requests LLM refinement of the transcript text.
	Polish bool

	// Emotion requests emotion annotation.
	Emotion bool

	// Progress, when non-nil, is invoked at the start of each stage with one
	// of "diarizing", "transcribing", "analyzing_emotion", "polishing". It is
	// called from the goroutine running the request.
	Progress func(stage string)
}

func (r Request) notify(stage string) {
	if r.Progress != nil {
		r.Progress(stage)
	}
}

// Option is a functional option for configuring a Pipeline.
type Option func(*Pipeline)

// WithDiarizer attaches a diarization engine. Without one, every run takes
// the whole-file path regardless of Request.Diarize.
func WithDiarizer(e diar.Engine) Option {
	return func(p *Pipeline) { p.diarizer = e }
}

// WithPolisher attaches a polisher for the optional refinement stage.
func WithPolisher(pol *polish.Polisher) Option {
	return func(p *Pipeline) { p.polisher = pol }
}

// WithClassifier attaches an emotion classifier.
func WithClassifier(c emotion.Classifier) Option {
	return func(p *Pipeline) { p.classifier = c }
}

// WithMetrics overrides the metrics instance (tests use a manual reader).
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline is the transcription orchestrator. It is safe for concurrent use
// provided the underlying providers are.
type Pipeline struct {
	asr        asr.Provider
	diarizer   diar.Engine
	polisher   *polish.Polisher
	classifier emotion.Classifier
	metrics    *observe.Metrics
	cfg        Config
}

// New creates a Pipeline. The ASR provider is the only required
// collaborator.
func New(asrProvider asr.Provider, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		asr: asrProvider,
		cfg: cfg.withDefaults(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Run executes one transcription request and returns the assembled result.
// The returned error is non-nil only for ASR or resource failures; every
// other collaborator failure degrades the run instead.
func (p *Pipeline) Run(ctx context.Context, req Request) (*transcript.Result, error) {
	if p.cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Budget)
		defer cancel()
	}

	ctx, span := observe.StartSpan(ctx, "pipeline.run")
	defer span.End()
	log := observe.Logger(ctx).With("filename", req.Filename)

	p.metrics.ActiveRequests.Add(ctx, 1)
	defer p.metrics.ActiveRequests.Add(ctx, -1)

	path := pathWhole
	var turns []diarize.Turn
	if req.Diarize && p.diarizer != nil {
		req.notify("diarizing")
		var err error
		turns, err = p.diarizeStage(ctx, req.AudioPath)
		switch {
		case err != nil:
			// Recoverable: a transcript without speaker labels is still
			// useful. Downgrade and continue.
			log.Warn("diarization failed, falling back to whole-file transcription",
				"error", err)
			p.metrics.RecordFallback(ctx)
			p.metrics.RecordProviderError(ctx, "diarizer", "diarize")
			path = pathFallback
		case len(turns) == 0:
			log.Warn("diarization produced no usable turns, falling back to whole-file transcription")
			p.metrics.RecordFallback(ctx)
			path = pathFallback
		case p.cfg.Strategy == StrategyAlign:
			path = pathAlign
		default:
			path = pathPerTurn
		}
		if len(turns) > 0 {
			log.Info("diarization complete",
				"turns", len(turns),
				"speakers", len(diarize.Speakers(turns)))
		}
	}

	req.notify("transcribing")
	result, err := p.transcribeAndAssemble(ctx, req, path, turns)
	if err != nil {
		p.metrics.RecordRun(ctx, path, "error")
		p.metrics.RecordProviderError(ctx, "asr", "transcribe")
		return nil, err
	}

	p.enrich(ctx, req, path, result)

	p.metrics.RecordRun(ctx, path, "ok")
	log.Info("pipeline run complete",
		"path", path,
		"segments", len(result.Segments),
		"speakers", len(result.Speakers),
		"duration", result.Duration)
	return result, nil
}

// diarizeStage runs the diarizer and normalizes its output. Any error —
// engine failure or malformed turns — is returned for the caller to consume
// as an explicit downgrade transition.
func (p *Pipeline) diarizeStage(ctx context.Context, audioPath string) ([]diarize.Turn, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.diarize")
	defer span.End()
	start := time.Now()
	defer func() { p.metrics.RecordStage(ctx, "diarize", time.Since(start)) }()

	raw, err := p.diarizer.Diarize(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: diarize: %w", err)
	}
	turns, err := diarize.Normalize(raw, p.cfg.MinTurn, p.cfg.MergeGap)
	if err != nil {
		return nil, fmt.Errorf("pipeline: normalize turns: %w", err)
	}
	return turns, nil
}

// transcribeAndAssemble runs the recognition stage for the selected path and
// assembles the raw result.
func (p *Pipeline) transcribeAndAssemble(ctx context.Context, req Request, path string, turns []diarize.Turn) (*transcript.Result, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.transcribe")
	defer span.End()
	start := time.Now()
	defer func() { p.metrics.RecordStage(ctx, "transcribe", time.Since(start)) }()

	opts := asr.Options{Language: req.Language, Task: req.Task}

	var (
		segments []transcript.Segment
		language = req.Language
		duration float64
	)

	switch path {
	case pathPerTurn:
		for _, t := range turns {
			res, err := p.asr.Transcribe(ctx, req.AudioPath, &asr.TimeRange{Start: t.Start, End: t.End}, opts)
			if err != nil {
				return nil, fmt.Errorf("pipeline: transcribe turn [%.2f, %.2f): %w", t.Start, t.End, err)
			}
			for _, s := range res.Segments {
				segments = append(segments, transcript.Segment{
					Start:   s.Start,
					End:     s.End,
					Text:    s.Text,
					Speaker: t.Speaker,
				})
			}
			if language == "" {
				language = res.Language
			}
		}

	case pathAlign:
		res, err := p.asr.Transcribe(ctx, req.AudioPath, nil, opts)
		if err != nil {
			return nil, fmt.Errorf("pipeline: transcribe: %w", err)
		}
		tl := align.BuildTimeline(turns, p.cfg.Resolution)
		for _, s := range res.Segments {
			segments = append(segments, transcript.Segment{
				Start:   s.Start,
				End:     s.End,
				Text:    s.Text,
				Speaker: tl.AssignSpeaker(s.Start, s.End, p.cfg.SearchRadius),
			})
		}
		if language == "" {
			language = res.Language
		}
		duration = res.Duration

	default:
		res, err := p.asr.Transcribe(ctx, req.AudioPath, nil, opts)
		if err != nil {
			return nil, fmt.Errorf("pipeline: transcribe: %w", err)
		}
		for _, s := range res.Segments {
			segments = append(segments, transcript.Segment{
				Start: s.Start,
				End:   s.End,
				Text:  s.Text,
			})
		}
		if language == "" {
			language = res.Language
		}
		duration = res.Duration
	}

	return transcript.Assemble(segments, language, duration), nil
}

// enrich applies the optional best-effort stages: emotion annotation and
// polishing. Failures are logged and absorbed.
func (p *Pipeline) enrich(ctx context.Context, req Request, path string, result *transcript.Result) {
	log := observe.Logger(ctx)

	if req.Emotion && p.classifier != nil {
		req.notify("analyzing_emotion")
		start := time.Now()
		p.annotateEmotion(ctx, req.AudioPath, path, result)
		p.metrics.RecordStage(ctx, "emotion", time.Since(start))
	}

	if req.Polish && p.polisher != nil {
		req.notify("polishing")
		ctx, span := observe.StartSpan(ctx, "pipeline.polish")
		start := time.Now()

		if path == pathPerTurn || path == pathAlign {
			result.Segments = p.polisher.PolishSegments(ctx, result.Segments, result.Language)
		}
		polished, err := p.polisher.PolishText(ctx, result.FullText, result.Language)
		if err != nil {
			log.Warn("polish failed, keeping raw text", "error", err)
			p.metrics.RecordProviderError(ctx, "llm", "polish")
		}
		result.PolishedText = polished

		p.metrics.RecordStage(ctx, "polish", time.Since(start))
		span.End()
	}
}

// annotateEmotion labels each diarized segment and the recording overall.
func (p *Pipeline) annotateEmotion(ctx context.Context, audioPath, path string, result *transcript.Result) {
	ctx, span := observe.StartSpan(ctx, "pipeline.emotion")
	defer span.End()
	log := observe.Logger(ctx)

	if (path == pathPerTurn || path == pathAlign) && len(result.Segments) > 0 {
		spans := make([]emotion.Span, len(result.Segments))
		for i, s := range result.Segments {
			spans[i] = emotion.Span{Start: s.Start, End: s.End}
		}
		labels, err := p.classifier.Classify(ctx, audioPath, spans)
		switch {
		case err != nil:
			log.Warn("segment emotion classification failed", "error", err)
			p.metrics.RecordProviderError(ctx, "emotion", "classify")
		case len(labels) < len(spans):
			// Malformed collaborator output degrades the stage, never the run.
			log.Warn("segment emotion classification returned too few labels",
				"got", len(labels), "want", len(spans))
			p.metrics.RecordProviderError(ctx, "emotion", "classify")
		default:
			for i := range result.Segments {
				result.Segments[i].Emotion = labels[i].Emotion
			}
		}
	}

	labels, err := p.classifier.Classify(ctx, audioPath, nil)
	if err != nil {
		log.Warn("overall emotion classification failed", "error", err)
		p.metrics.RecordProviderError(ctx, "emotion", "classify")
		return
	}
	if len(labels) == 0 {
		log.Warn("overall emotion classification returned no label")
		p.metrics.RecordProviderError(ctx, "emotion", "classify")
		return
	}
	result.OverallEmotion = labels[0].Emotion
}
