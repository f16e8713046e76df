// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/nocturneflow/voxalign/pkg/provider/asr"
)

// Compile-time assertion that NativeProvider satisfies asr.Provider.
var _ asr.Provider = (*NativeProvider)(nil)

// NativeProvider implements asr.Provider using whisper.cpp Go bindings
// (CGO). The model is loaded once at startup and shared across requests;
// each Transcribe call creates its own whisper context, so concurrent calls
// do not interfere.
//
// Audio files must be RIFF/WAV containers holding 16-bit PCM at the model's
// expected sample rate (16 kHz). Anything else is rejected — resampling is
// the recording producer's job, not this provider's.
type NativeProvider struct {
	language string

	mu    sync.Mutex
	model whisperlib.Model
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the default language code used when a request does
// not carry one. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model != nil {
		err := p.model.Close()
		p.model = nil
		return err
	}
	return nil
}

// Transcribe implements asr.Provider. The WAV file at path is decoded to
// float32 mono samples; a non-nil rng slices the sample window before
// inference and segment timestamps are shifted back to recording time.
func (p *NativeProvider) Transcribe(ctx context.Context, path string, rng *asr.TimeRange, opts asr.Options) (*asr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if rng != nil && rng.End < rng.Start {
		return nil, fmt.Errorf("whisper: invalid time range [%.3f, %.3f]", rng.Start, rng.End)
	}

	samples, sampleRate, err := readWAVMono(path)
	if err != nil {
		return nil, err
	}

	var offset float64
	if rng != nil {
		lo := int(rng.Start * float64(sampleRate))
		hi := int(rng.End * float64(sampleRate))
		if lo < 0 {
			lo = 0
		}
		if hi > len(samples) {
			hi = len(samples)
		}
		if lo >= hi {
			return &asr.Result{Language: p.effectiveLanguage(opts)}, nil
		}
		samples = samples[lo:hi]
		offset = rng.Start
	}

	p.mu.Lock()
	model := p.model
	p.mu.Unlock()
	if model == nil {
		return nil, errors.New("whisper: provider is closed")
	}

	// Each inference gets a fresh context; contexts are not thread-safe but
	// the model is shareable.
	wctx, err := model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := p.effectiveLanguage(opts)
	if err := wctx.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("whisper: set language %q: %w", lang, err)
	}
	wctx.SetTranslate(opts.Task == asr.TaskTranslate)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	res := &asr.Result{
		Language: lang,
		Duration: float64(len(samples)) / float64(sampleRate),
	}
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		res.Segments = append(res.Segments, asr.Segment{
			Start: segment.Start.Seconds() + offset,
			End:   segment.End.Seconds() + offset,
			Text:  text,
		})
	}
	return res, nil
}

func (p *NativeProvider) effectiveLanguage(opts asr.Options) string {
	if opts.Language != "" {
		return opts.Language
	}
	return p.language
}
