package pyannote_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/nocturneflow/voxalign/pkg/provider/diar/pyannote"
)

func TestEngine_Diarize(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/diarize" {
			t.Errorf("path = %q, want /diarize", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file field: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"turns": [
			{"start": 0.0, "end": 1.4, "speaker": "SPEAKER_00"},
			{"start": 1.6, "end": 3.0, "speaker": "SPEAKER_01"}
		]}`))
	}))
	defer srv.Close()

	audio := filepath.Join(t.TempDir(), "a.wav")
	if err := os.WriteFile(audio, []byte("wav"), 0o600); err != nil {
		t.Fatal(err)
	}

	e, err := pyannote.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	turns, err := e.Diarize(context.Background(), audio)
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Speaker != "SPEAKER_00" || turns[1].Speaker != "SPEAKER_01" {
		t.Errorf("speakers = %q, %q", turns[0].Speaker, turns[1].Speaker)
	}
}

func TestEngine_DiarizeServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no gpu", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	audio := filepath.Join(t.TempDir(), "a.wav")
	if err := os.WriteFile(audio, []byte("wav"), 0o600); err != nil {
		t.Fatal(err)
	}

	e, err := pyannote.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Diarize(context.Background(), audio); err == nil {
		t.Fatal("Diarize: expected error on HTTP 503")
	}
}

func TestNew_EmptyURL(t *testing.T) {
	t.Parallel()

	if _, err := pyannote.New(""); err == nil {
		t.Fatal("New(\"\"): expected error")
	}
}
