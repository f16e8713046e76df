// Package pyannote provides a diar.Engine backed by a pyannote speaker
// diarization sidecar service.
//
// The sidecar wraps the pyannote/speaker-diarization model behind a small
// REST API: POST /diarize with a multipart audio upload returns the detected
// turns as JSON. Model loading, GPU placement, and auth tokens are the
// sidecar's concern.
package pyannote

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
	"time"

	"github.com/nocturneflow/voxalign/internal/diarize"
	"github.com/nocturneflow/voxalign/pkg/provider/diar"
)

const defaultTimeout = 300 * time.Second

// Compile-time assertion that Engine implements diar.Engine.
var _ diar.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithTimeout sets the per-request HTTP timeout. Defaults to 300 s —
// diarization of long recordings is slow.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.httpClient.Timeout = d }
}

// Engine implements diar.Engine against a pyannote sidecar REST endpoint.
// It is safe for concurrent use.
type Engine struct {
	serverURL  string
	httpClient *http.Client
}

// New creates an Engine talking to the diarization sidecar at serverURL
// (e.g. "http://localhost:9090").
func New(serverURL string, opts ...Option) (*Engine, error) {
	if serverURL == "" {
		return nil, errors.New("pyannote: serverURL must not be empty")
	}
	e := &Engine{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// diarizeResponse is the JSON shape returned by the sidecar.
type diarizeResponse struct {
	Turns []struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Speaker string  `json:"speaker"`
	} `json:"turns"`
}

// Diarize implements diar.Engine.
func (e *Engine) Diarize(ctx context.Context, path string) ([]diarize.Turn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pyannote: open audio %q: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("pyannote: create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("pyannote: read audio %q: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("pyannote: close multipart writer: %w", err)
	}

	endpoint := e.serverURL + "/diarize"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("pyannote: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pyannote: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pyannote: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("pyannote: read response body: %w", err)
	}

	var dr diarizeResponse
	if err := json.Unmarshal(data, &dr); err != nil {
		return nil, fmt.Errorf("pyannote: parse JSON response: %w", err)
	}

	turns := make([]diarize.Turn, 0, len(dr.Turns))
	for _, t := range dr.Turns {
		turns = append(turns, diarize.Turn{Start: t.Start, End: t.End, Speaker: t.Speaker})
	}
	return turns, nil
}
