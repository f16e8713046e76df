// Package sidecar provides an emotion.Classifier backed by a speech emotion
// recognition sidecar service.
//
// The sidecar wraps a speech emotion model (e.g. wav2vec2-based SER) behind a
// small REST API: POST /classify with a multipart audio upload and a JSON
// spans field returns one label per span.
package sidecar

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

	"github.com/nocturneflow/voxalign/pkg/provider/emotion"
)

const defaultTimeout = 120 * time.Second

var _ emotion.Classifier = (*Classifier)(nil)

// Option is a functional option for configuring a Classifier.
type Option func(*Classifier)

// WithTimeout sets the per-request HTTP timeout. Defaults to 120 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) { c.httpClient.Timeout = d }
}

// Classifier implements emotion.Classifier against a SER sidecar REST
// endpoint. It is safe for concurrent use.
type Classifier struct {
	serverURL  string
	httpClient *http.Client
}

// New creates a Classifier talking to the emotion sidecar at serverURL
// (e.g. "http://localhost:9091").
func New(serverURL string, opts ...Option) (*Classifier, error) {
	if serverURL == "" {
		return nil, errors.New("emotion sidecar: serverURL must not be empty")
	}
	c := &Classifier{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// classifyResponse is the JSON shape returned by the sidecar.
type classifyResponse struct {
	Labels []struct {
		Emotion    string  `json:"emotion"`
		Confidence float64 `json:"confidence"`
	} `json:"labels"`
}

// Classify implements emotion.Classifier.
func (c *Classifier) Classify(ctx context.Context, path string, spans []emotion.Span) ([]emotion.Label, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("emotion sidecar: open audio %q: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("emotion sidecar: create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("emotion sidecar: read audio %q: %w", path, err)
	}
	if len(spans) > 0 {
		raw, err := json.Marshal(spans)
		if err != nil {
			return nil, fmt.Errorf("emotion sidecar: marshal spans: %w", err)
		}
		if err := mw.WriteField("spans", string(raw)); err != nil {
			return nil, fmt.Errorf("emotion sidecar: write spans field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("emotion sidecar: close multipart writer: %w", err)
	}

	endpoint := c.serverURL + "/classify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("emotion sidecar: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("emotion sidecar: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("emotion sidecar: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("emotion sidecar: read response body: %w", err)
	}

	var cr classifyResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return nil, fmt.Errorf("emotion sidecar: parse JSON response: %w", err)
	}

	want := len(spans)
	if want == 0 {
		want = 1
	}
	if len(cr.Labels) != want {
		return nil, fmt.Errorf("emotion sidecar: expected %d labels, got %d", want, len(cr.Labels))
	}

	labels := make([]emotion.Label, 0, len(cr.Labels))
	for _, l := range cr.Labels {
		labels = append(labels, emotion.Label{Emotion: l.Emotion, Confidence: l.Confidence})
	}
	return labels, nil
}
