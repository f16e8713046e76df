package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/nocturneflow/voxalign/internal/observe"
	"github.com/nocturneflow/voxalign/internal/pipeline"
	"github.com/nocturneflow/voxalign/pkg/provider/asr"
)

// wsReadTimeout bounds how long the server waits for the initial request
// message after the websocket handshake.
const wsReadTimeout = 30 * time.Second

// wsRequest is the single message a client sends after connecting. Audio is
// base64-encoded by encoding/json on the wire. Nil toggles fall back to the
// configured defaults.
type wsRequest struct {
	Audio       []byte `json:"audio"`
	Filename    string `json:"filename"`
	Language    string `json:"language,omitempty"`
	Task        string `json:"task,omitempty"`
	Diarization *bool  `json:"diarization,omitempty"`
	Polish      *bool  `json:"polish,omitempty"`
	Emotion     *bool  `json:"emotion,omitempty"`
}

// wsEvent is a server-to-client message. Type is "stage" while the run
// progresses, then "result" or "error" exactly once.
type wsEvent struct {
	Type   string                 `json:"type"`
	Stage  string                 `json:"stage,omitempty"`
	Error  string                 `json:"error,omitempty"`
	Result *transcriptionResponse `json:"result,omitempty"`
}

// handleWS runs one transcription over a websocket, streaming stage
// transitions as they happen. The connection closes after the final result
// or error event.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	conn.SetReadLimit(int64(s.cfg.MaxUploadMB) << 20)

	readCtx, cancel := context.WithTimeout(ctx, wsReadTimeout)
	var wsReq wsRequest
	err = wsjson.Read(readCtx, conn, &wsReq)
	cancel()
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "expected a JSON request message")
		return
	}

	req, errMsg := s.requestFromWS(wsReq)
	if errMsg == "" && len(wsReq.Audio) == 0 {
		errMsg = "field \"audio\" is required"
	}
	if errMsg != "" {
		wsjson.Write(ctx, conn, wsEvent{Type: "error", Error: errMsg})
		conn.Close(websocket.StatusUnsupportedData, "invalid request")
		return
	}

	audioPath, err := writeUpload(wsReq.Audio, wsReq.Filename)
	if err != nil {
		observe.Logger(ctx).Error("spooling websocket upload failed", "error", err)
		wsjson.Write(ctx, conn, wsEvent{Type: "error", Error: "storing upload failed"})
		conn.Close(websocket.StatusInternalError, "storing upload failed")
		return
	}
	defer os.Remove(audioPath)
	req.AudioPath = audioPath

	// Progress fires on this goroutine, so writes never interleave.
	req.Progress = func(stage string) {
		wsjson.Write(ctx, conn, wsEvent{Type: "stage", Stage: stage})
	}

	result, _, runErr := s.run(ctx, req)
	if runErr != "" {
		wsjson.Write(ctx, conn, wsEvent{Type: "error", Error: runErr})
		conn.Close(websocket.StatusInternalError, "transcription failed")
		return
	}

	resp := &transcriptionResponse{Result: result}
	resp.ID = s.persist(ctx, req, result)
	wsjson.Write(ctx, conn, wsEvent{Type: "result", Result: resp})
	conn.Close(websocket.StatusNormalClosure, "")
}

// requestFromWS maps the websocket request onto a pipeline request,
// validating the task and applying configured defaults to absent toggles.
func (s *Server) requestFromWS(wsReq wsRequest) (pipeline.Request, string) {
	req := pipeline.Request{
		Filename: wsReq.Filename,
		Language: wsReq.Language,
		Diarize:  toggled(wsReq.Diarization, s.cfg.DefaultDiarize),
		Polish:   toggled(wsReq.Polish, s.cfg.DefaultPolish),
		Emotion:  toggled(wsReq.Emotion, s.cfg.DefaultEmotion),
	}
	if wsReq.Task != "" {
		task := asr.Task(wsReq.Task)
		if !task.IsValid() {
			return req, fmt.Sprintf("task %q is invalid; valid values: transcribe, translate", wsReq.Task)
		}
		req.Task = task
	}
	return req, ""
}

func toggled(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// writeUpload persists decoded audio bytes to a temp file for the pipeline.
func writeUpload(audio []byte, filename string) (string, error) {
	f, err := os.CreateTemp("", "voxalign-*"+filepath.Ext(filename))
	if err != nil {
		return "", fmt.Errorf("server: create temp file: %w", err)
	}
	if _, err := f.Write(audio); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("server: write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("server: close temp file: %w", err)
	}
	return f.Name(), nil
}
