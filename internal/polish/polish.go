// Package polish implements LLM-assisted cleanup of raw ASR text.
//
// Polishing fixes recognition errors, grammar, and formatting without
// changing what was said. It is a best-effort enrichment stage: every
// failure path — provider errors, open breakers, runaway rewrites — falls
// back to the raw text, so a broken model endpoint can never lose a
// transcription.
package polish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/nocturneflow/voxalign/internal/resilience"
	"github.com/nocturneflow/voxalign/internal/transcript"
	"github.com/nocturneflow/voxalign/pkg/provider/llm"
)

const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 2048

	// defaultMinSimilarity is the Jaro-Winkler floor below which a polished
	// candidate is treated as a rewrite and discarded. Legitimate cleanup
	// keeps most of the original words; a low score means the model answered
	// something else entirely.
	defaultMinSimilarity = 0.55
)

// Exemplar is a stored raw/polished pair used as a few-shot example.
type Exemplar struct {
	Raw      string
	Polished string
}

// ExemplarSource retrieves polishing exemplars similar to a given text.
type ExemplarSource interface {
	// Similar returns up to k exemplars ranked by semantic similarity to text.
	Similar(ctx context.Context, text string, language string, k int) ([]Exemplar, error)
}

// Option is a functional option for configuring a [Polisher].
type Option func(*Polisher)

// WithTemperature sets the sampling temperature for polish requests.
// Default: 0.3.
func WithTemperature(t float64) Option {
	return func(p *Polisher) { p.temperature = t }
}

// WithMaxTokens caps the completion length of polish requests. Default: 2048.
func WithMaxTokens(n int) Option {
	return func(p *Polisher) { p.maxTokens = n }
}

// WithMinSimilarity sets the Jaro-Winkler similarity floor for the
// divergence guard. Candidates scoring below it are discarded in favour of
// the raw text. Default: 0.55.
func WithMinSimilarity(s float64) Option {
	return func(p *Polisher) { p.minSimilarity = s }
}

// WithPromptTemplate overrides the per-request user prompt. The template must
// contain exactly one %s verb, which receives the text to polish.
func WithPromptTemplate(tmpl string) Option {
	return func(p *Polisher) { p.promptTemplate = tmpl }
}

// WithExemplarSource attaches a few-shot exemplar source. When set, up to
// exemplarCount similar raw/polished pairs are prepended to each request as
// example turns.
func WithExemplarSource(src ExemplarSource, count int) Option {
	return func(p *Polisher) {
		p.exemplars = src
		if count > 0 {
			p.exemplarCount = count
		}
	}
}

// Polisher cleans up transcription text via a chain of LLM backends.
// It is safe for concurrent use.
type Polisher struct {
	llms *resilience.FallbackGroup[llm.Provider]

	temperature    float64
	maxTokens      int
	minSimilarity  float64
	promptTemplate string
	exemplars      ExemplarSource
	exemplarCount  int
}

// New creates a Polisher backed by the given provider chain.
func New(llms *resilience.FallbackGroup[llm.Provider], opts ...Option) *Polisher {
	p := &Polisher{
		llms:          llms,
		temperature:   defaultTemperature,
		maxTokens:     defaultMaxTokens,
		minSimilarity: defaultMinSimilarity,
		exemplarCount: 3,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PolishText polishes a complete transcription. On any failure the raw text
// is returned along with the error; callers may log and continue.
func (p *Polisher) PolishText(ctx context.Context, text, language string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	prompt := fmt.Sprintf(p.userTemplate(language), text)
	polished, err := p.complete(ctx, language, text, prompt)
	if err != nil {
		return text, err
	}
	return p.guard(text, polished), nil
}

// PolishSegments polishes each segment individually, giving the model the
// neighbouring segments as conversational context. The returned slice has
// the same length and order as segments, with Polished populated where a
// usable candidate came back. Failures are logged and skipped; the method
// never returns an error.
func (p *Polisher) PolishSegments(ctx context.Context, segments []transcript.Segment, language string) []transcript.Segment {
	out := make([]transcript.Segment, len(segments))
	copy(out, segments)

	for i := range out {
		if strings.TrimSpace(out[i].Text) == "" {
			continue
		}

		var prev, next string
		if i > 0 {
			prev = out[i-1].Text
		}
		if i < len(out)-1 {
			next = out[i+1].Text
		}

		prompt := segmentPrompt(prev, out[i].Text, next)
		polished, err := p.complete(ctx, language, out[i].Text, prompt)
		if err != nil {
			slog.Warn("segment polish failed, keeping raw text",
				"segment", i, "error", err)
			continue
		}
		out[i].Polished = p.guard(out[i].Text, polished)
	}
	return out
}

// complete runs one polish request through the provider chain, with few-shot
// exemplars when a source is configured.
func (p *Polisher) complete(ctx context.Context, language, rawText, prompt string) (string, error) {
	var messages []llm.Message
	if p.exemplars != nil {
		ex, err := p.exemplars.Similar(ctx, rawText, language, p.exemplarCount)
		if err != nil {
			slog.Debug("exemplar lookup failed, polishing without few-shot examples",
				"error", err)
		}
		for _, e := range ex {
			messages = append(messages,
				llm.Message{Role: "user", Content: e.Raw},
				llm.Message{Role: "assistant", Content: e.Polished},
			)
		}
	}
	messages = append(messages, llm.Message{Role: "user", Content: prompt})

	resp, err := resilience.DoWithResult(p.llms, func(prov llm.Provider) (*llm.CompletionResponse, error) {
		return prov.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: fmt.Sprintf("You are a helpful assistant improving %s transcriptions.", language),
			Messages:     messages,
			Temperature:  p.temperature,
			MaxTokens:    p.maxTokens,
		})
	})
	if err != nil {
		return "", fmt.Errorf("polish: complete: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// guard applies the divergence check: a candidate that is empty or too far
// from the original is discarded.
func (p *Polisher) guard(original, candidate string) string {
	if candidate == "" {
		return original
	}
	if matchr.JaroWinkler(original, candidate, false) < p.minSimilarity {
		slog.Warn("polished text diverged too far from original, keeping raw text")
		return original
	}
	return candidate
}

// userTemplate returns the per-language polish prompt.
func (p *Polisher) userTemplate(language string) string {
	if p.promptTemplate != "" {
		return p.promptTemplate
	}
	if language == "kk" {
		return "Мына транскрипцияны тексерiп, қателерді түзетіңіз және форматтаңыз: %s"
	}
	return "Check and correct this transcription, fix grammar and formatting: %s"
}

// segmentPrompt builds the contextual prompt for a single segment. The model
// sees the neighbouring segments but must return only the current one.
func segmentPrompt(prev, curr, next string) string {
	var b strings.Builder
	b.WriteString("You are given dialogue context:\n")
	if prev != "" {
		fmt.Fprintf(&b, "Previous segment: «%s»\n", prev)
	}
	fmt.Fprintf(&b, "Current segment: «%s»\n", curr)
	if next != "" {
		fmt.Fprintf(&b, "Next segment: «%s»\n", next)
	}
	b.WriteString("\nPolish only the text of the current segment and return exclusively that text, without labels or extra context.")
	return b.String()
}
