// Package server exposes the transcription pipeline over HTTP.
//
// The API surface:
//
//   - POST /v1/transcriptions     — multipart upload, synchronous JSON result
//   - GET  /v1/transcriptions     — list persisted transcriptions
//   - GET  /v1/transcriptions/{id} — fetch one persisted transcription
//   - GET  /v1/transcriptions/ws  — websocket variant with stage progress events
//   - GET  /healthz, /readyz      — probes (see the health package)
//   - GET  /metrics               — Prometheus scrape endpoint
//
// Concurrent pipeline runs are bounded by a weighted semaphore; requests
// beyond the bound queue until a slot frees or the client gives up.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sync/semaphore"

	"github.com/nocturneflow/voxalign/internal/health"
	"github.com/nocturneflow/voxalign/internal/observe"
	"github.com/nocturneflow/voxalign/internal/pipeline"
	"github.com/nocturneflow/voxalign/internal/transcript"
	"github.com/nocturneflow/voxalign/pkg/provider/asr"
	"github.com/nocturneflow/voxalign/pkg/store"
)

// Runner executes one transcription request. Satisfied by
// [pipeline.Pipeline]; tests substitute a scripted implementation.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*transcript.Result, error)
}

var _ Runner = (*pipeline.Pipeline)(nil)

// Config holds the request-handling knobs.
type Config struct {
	// MaxConcurrent bounds simultaneous pipeline runs. Default 4.
	MaxConcurrent int

	// MaxUploadMB caps the accepted audio upload size. Default 512.
	MaxUploadMB int

	// Default stage toggles, applied when a request omits the field.
	DefaultDiarize bool
	DefaultPolish  bool
	DefaultEmotion bool
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = 512
	}
	return c
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithStore attaches a transcription store. Without one, results are only
// returned inline and the lookup endpoints answer 404.
func WithStore(s store.TranscriptionStore) Option {
	return func(srv *Server) { srv.store = s }
}

// WithHealth attaches the health handler serving /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(srv *Server) { srv.health = h }
}

// WithMetricsHandler attaches the handler serving /metrics (usually
// promhttp.Handler()).
func WithMetricsHandler(h http.Handler) Option {
	return func(srv *Server) { srv.metricsHandler = h }
}

// WithMetrics overrides the request metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(srv *Server) { srv.metrics = m }
}

// Server routes API requests to the pipeline and the store.
type Server struct {
	runner         Runner
	store          store.TranscriptionStore
	health         *health.Handler
	metricsHandler http.Handler
	metrics        *observe.Metrics
	sem            *semaphore.Weighted
	cfg            Config
}

// New creates a Server around runner.
func New(runner Runner, cfg Config, opts ...Option) *Server {
	srv := &Server{
		runner: runner,
		cfg:    cfg.withDefaults(),
	}
	for _, o := range opts {
		o(srv)
	}
	if srv.metrics == nil {
		srv.metrics = observe.DefaultMetrics()
	}
	srv.sem = semaphore.NewWeighted(int64(srv.cfg.MaxConcurrent))
	return srv
}

// Handler returns the routed HTTP handler, instrumented with tracing and
// request metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/transcriptions", s.handleCreate)
	mux.HandleFunc("GET /v1/transcriptions", s.handleList)
	mux.HandleFunc("GET /v1/transcriptions/{id}", s.handleGet)
	mux.HandleFunc("GET /v1/transcriptions/ws", s.handleWS)
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return observe.Middleware(s.metrics)(mux)
}

// transcriptionResponse is the JSON body returned for a finished run. ID is
// present only when the result was persisted.
type transcriptionResponse struct {
	ID int64 `json:"id,omitempty"`
	*transcript.Result
}

// errorResponse is the JSON body for every non-2xx answer.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.cfg.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d MB", s.cfg.MaxUploadMB))
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	req, err := s.requestFromForm(r, header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	audioPath, err := spoolUpload(file, header.Filename)
	if err != nil {
		observe.Logger(r.Context()).Error("spooling upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storing upload failed")
		return
	}
	defer os.Remove(audioPath)
	req.AudioPath = audioPath

	result, status, errMsg := s.run(r.Context(), req)
	if errMsg != "" {
		writeError(w, status, errMsg)
		return
	}

	resp := transcriptionResponse{Result: result}
	resp.ID = s.persist(r.Context(), req, result)
	writeJSON(w, http.StatusOK, resp)
}

// requestFromForm builds a pipeline request from the multipart form fields.
// Absent toggle fields fall back to the configured defaults.
func (s *Server) requestFromForm(r *http.Request, filename string) (pipeline.Request, error) {
	req := pipeline.Request{
		Filename: filename,
		Language: r.FormValue("language"),
	}

	if v := r.FormValue("task"); v != "" {
		task := asr.Task(v)
		if !task.IsValid() {
			return req, fmt.Errorf("task %q is invalid; valid values: transcribe, translate", v)
		}
		req.Task = task
	}

	var err error
	if req.Diarize, err = formBool(r, "diarization", s.cfg.DefaultDiarize); err != nil {
		return req, err
	}
	if req.Polish, err = formBool(r, "polish", s.cfg.DefaultPolish); err != nil {
		return req, err
	}
	if req.Emotion, err = formBool(r, "emotion", s.cfg.DefaultEmotion); err != nil {
		return req, err
	}
	return req, nil
}

func formBool(r *http.Request, field string, def bool) (bool, error) {
	v := r.FormValue(field)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("field %q: %q is not a boolean", field, v)
	}
	return b, nil
}

// run executes the pipeline under the concurrency semaphore. It returns the
// result, or an HTTP status and message describing the failure.
func (s *Server) run(ctx context.Context, req pipeline.Request) (*transcript.Result, int, string) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, statusFromContext(err), "request cancelled while queued"
	}
	defer s.sem.Release(1)

	result, err := s.runner.Run(ctx, req)
	if err != nil {
		observe.Logger(ctx).Error("pipeline run failed",
			"filename", req.Filename, "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, http.StatusGatewayTimeout, "transcription exceeded the time budget"
		}
		return nil, http.StatusBadGateway, "transcription failed"
	}
	return result, 0, ""
}

// persist saves the result when a store is configured. Persistence is
// best-effort: a storage failure is logged, and the response simply carries
// no ID.
func (s *Server) persist(ctx context.Context, req pipeline.Request, result *transcript.Result) int64 {
	if s.store == nil {
		return 0
	}
	rec := &store.Record{
		Filename:       req.Filename,
		Language:       result.Language,
		Duration:       result.Duration,
		FullText:       result.FullText,
		FormattedText:  result.FormattedText,
		PolishedText:   result.PolishedText,
		OverallEmotion: result.OverallEmotion,
		Speakers:       result.Speakers,
		Segments:       result.Segments,
	}
	id, err := s.store.Save(ctx, rec)
	if err != nil {
		observe.Logger(ctx).Warn("persisting transcription failed",
			"filename", req.Filename, "error", err)
		return 0
	}
	return id
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "persistence is not configured")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return
	}
	rec, err := s.store.Get(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "transcription not found")
	case err != nil:
		observe.Logger(r.Context()).Error("fetching transcription failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "fetching transcription failed")
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []store.Record{})
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	recs, err := s.store.List(r.Context(), limit, offset)
	if err != nil {
		observe.Logger(r.Context()).Error("listing transcriptions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "listing transcriptions failed")
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// spoolUpload copies the uploaded audio to a temp file the pipeline and the
// sidecars can read by path. The caller removes it when the run finishes.
func spoolUpload(src io.Reader, filename string) (string, error) {
	f, err := os.CreateTemp("", "voxalign-*"+filepath.Ext(filename))
	if err != nil {
		return "", fmt.Errorf("server: create temp file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("server: spool upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("server: close temp file: %w", err)
	}
	return f.Name(), nil
}

func statusFromContext(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return 499 // client closed request
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding response failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
