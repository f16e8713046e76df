package sidecar_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/nocturneflow/voxalign/pkg/provider/emotion"
	"github.com/nocturneflow/voxalign/pkg/provider/emotion/sidecar"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.wav")
	if err := os.WriteFile(path, []byte("wav"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestClassifier_Classify(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/classify" {
			t.Errorf("path = %q, want /classify", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if r.FormValue("spans") == "" {
			t.Error("missing spans field")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"labels": [
			{"emotion": "neutral", "confidence": 0.91},
			{"emotion": "happy", "confidence": 0.66}
		]}`))
	}))
	defer srv.Close()

	c, err := sidecar.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	labels, err := c.Classify(context.Background(), writeAudio(t), []emotion.Span{
		{Start: 0, End: 2},
		{Start: 2, End: 5},
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(labels) != 2 {
		t.Fatalf("got %d labels, want 2", len(labels))
	}
	if labels[1].Emotion != "happy" {
		t.Errorf("labels[1].Emotion = %q, want happy", labels[1].Emotion)
	}
}

func TestClassifier_LabelCountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"labels": [{"emotion": "neutral", "confidence": 1.0}]}`))
	}))
	defer srv.Close()

	c, err := sidecar.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Classify(context.Background(), writeAudio(t), []emotion.Span{
		{Start: 0, End: 2},
		{Start: 2, End: 5},
	})
	if err == nil {
		t.Fatal("Classify: expected error on label count mismatch")
	}
}

func TestNew_EmptyURL(t *testing.T) {
	t.Parallel()

	if _, err := sidecar.New(""); err == nil {
		t.Fatal("New(\"\"): expected error")
	}
}
