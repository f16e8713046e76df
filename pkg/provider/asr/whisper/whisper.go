// Package whisper provides ASR providers backed by whisper.cpp.
//
// Two implementations are available:
//
//   - [Provider] talks to a running whisper-server binary over its REST API
//     (POST /inference with a multipart audio upload), requesting verbose
//     JSON so that time-stamped segments come back with the text.
//   - [NativeProvider] (native.go) loads a whisper.cpp model in-process via
//     the CGO bindings, avoiding HTTP overhead entirely.
//
// Both accept an optional time range so that a single recording can be
// transcribed turn by turn against diarization boundaries.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nocturneflow/voxalign/pkg/provider/asr"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 120 * time.Second
)

// Compile-time assertion that Provider implements asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the default language code sent to the server when a
// request does not carry one. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithModel sets the model identifier forwarded to the server (e.g.
// "large-v2"). When empty the server uses whichever model it was started
// with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 120 s — whole
// recordings can take a while on CPU inference.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements asr.Provider against a whisper-server REST endpoint.
// It is safe for concurrent use; concurrency limits belong to the server.
type Provider struct {
	serverURL  string
	language   string
	model      string
	httpClient *http.Client
}

// New creates a Provider talking to the whisper-server at serverURL
// (e.g. "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// inferenceResponse is the verbose JSON shape returned by whisper-server.
type inferenceResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe implements asr.Provider. The audio file is uploaded as-is; when
// rng is non-nil the server is asked to process only that window via the
// offset_t/duration_t millisecond parameters. whisper.cpp implements offset_t
// as a seek, so returned segment timestamps already include the offset and
// are recording-relative without further shifting.
func (p *Provider) Transcribe(ctx context.Context, path string, rng *asr.TimeRange, opts asr.Options) (*asr.Result, error) {
	if rng != nil && rng.End < rng.Start {
		return nil, fmt.Errorf("whisper: invalid time range [%.3f, %.3f]", rng.Start, rng.End)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("whisper: open audio %q: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("whisper: read audio %q: %w", path, err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
	}
	lang := opts.Language
	if lang == "" {
		lang = p.language
	}
	if lang != "" {
		fields["language"] = lang
	}
	if p.model != "" {
		fields["model"] = p.model
	}
	if opts.Task == asr.TaskTranslate {
		fields["translate"] = "true"
	}
	if rng != nil {
		fields["offset_t"] = strconv.Itoa(int(rng.Start * 1000))
		fields["duration_t"] = strconv.Itoa(int((rng.End - rng.Start) * 1000))
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("whisper: write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}

	var ir inferenceResponse
	if err := json.Unmarshal(data, &ir); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return convertResponse(&ir, rng, lang), nil
}

// convertResponse maps the server response to an asr.Result. Segment
// timestamps pass through unchanged: offset_t seeks into the audio, so the
// server stamps segments in recording time already. Only the synthesized
// fallback segment needs explicit placement inside the requested window.
func convertResponse(ir *inferenceResponse, rng *asr.TimeRange, fallbackLang string) *asr.Result {
	res := &asr.Result{
		Language: ir.Language,
		Duration: ir.Duration,
	}
	if res.Language == "" {
		res.Language = fallbackLang
	}

	if len(ir.Segments) == 0 && ir.Text != "" {
		// Older servers omit segments in non-verbose replies; synthesize a
		// single segment spanning the processed window.
		start, end := 0.0, ir.Duration
		if rng != nil {
			start, end = rng.Start, rng.End
		}
		res.Segments = []asr.Segment{{Start: start, End: end, Text: trimText(ir.Text)}}
		return res
	}

	res.Segments = make([]asr.Segment, 0, len(ir.Segments))
	for _, s := range ir.Segments {
		text := trimText(s.Text)
		if text == "" {
			continue
		}
		res.Segments = append(res.Segments, asr.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  text,
		})
	}
	return res
}
