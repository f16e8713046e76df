// Package health provides the liveness and readiness endpoints for the
// VoxAlign server.
//
//   - /healthz — liveness; answers 200 whenever the process serves HTTP.
//   - /readyz  — readiness; answers 200 only when every registered
//     [Checker] passes, 503 otherwise.
//
// The transcription pipeline depends on out-of-process services (the
// whisper.cpp server, the pyannote and emotion sidecars, Postgres), so
// readiness is the aggregate of probes against those dependencies.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness probe.
const checkTimeout = 5 * time.Second

// Checker is one named readiness probe. Check returns nil when the
// dependency is usable and an error describing the failure otherwise.
type Checker struct {
	// Name keys the probe result in the JSON response ("postgres",
	// "whisper", "diarizer", ...).
	Name string

	// Check probes the dependency. It must honor context cancellation.
	Check func(ctx context.Context) error
}

// HTTPChecker builds a [Checker] that probes a sidecar by issuing a GET
// against its base URL. Any HTTP response counts as healthy; only transport
// failures and 5xx statuses fail the probe. client may be nil, in which
// case [http.DefaultClient] is used.
func HTTPChecker(name, url string, client *http.Client) Checker {
	if client == nil {
		client = http.DefaultClient
	}
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return fmt.Errorf("health: build request for %q: %w", url, err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("health: probe %q: %w", url, err)
			}
			resp.Body.Close()
			if resp.StatusCode >= http.StatusInternalServerError {
				return fmt.Errorf("health: probe %q: status %d", url, resp.StatusCode)
			}
			return nil
		},
	}
}

// result is the response body shared by both endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the health endpoints. The checker list is fixed at
// construction, so the handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] evaluating the given checkers, sequentially and
// in order, on each /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always answers 200. A process able to run this handler is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs every registered checker under a [checkTimeout] deadline and
// answers 503 as soon as any of them reports a failure.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the health routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
