package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nocturneflow/voxalign/internal/retrieval"
	embmock "github.com/nocturneflow/voxalign/pkg/provider/embeddings/mock"
	"github.com/nocturneflow/voxalign/pkg/store"
)

// fakeExemplarStore is an in-memory store.ExemplarStore.
type fakeExemplarStore struct {
	exemplars []store.Exemplar
	err       error
}

func (f *fakeExemplarStore) AddExemplar(_ context.Context, ex *store.Exemplar) error {
	if f.err != nil {
		return f.err
	}
	ex.ID = int64(len(f.exemplars) + 1)
	f.exemplars = append(f.exemplars, *ex)
	return nil
}

func (f *fakeExemplarStore) SimilarExemplars(_ context.Context, _ []float32, language string, k int) ([]store.Exemplar, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []store.Exemplar
	for _, ex := range f.exemplars {
		if language != "" && ex.Language != language {
			continue
		}
		out = append(out, ex)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func TestRetriever_AddAndSimilar(t *testing.T) {
	t.Parallel()

	emb := &embmock.Provider{DimensionsValue: 4}
	st := &fakeExemplarStore{}
	r := retrieval.New(emb, st)
	ctx := context.Background()

	if err := r.Add(ctx, "helo wrld", "Hello, world.", "en"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(st.exemplars) != 1 {
		t.Fatalf("got %d stored exemplars, want 1", len(st.exemplars))
	}
	if len(st.exemplars[0].Embedding) != 4 {
		t.Errorf("embedding length = %d, want 4", len(st.exemplars[0].Embedding))
	}

	got, err := r.Similar(ctx, "helo", "en", 3)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(got) != 1 || got[0].Polished != "Hello, world." {
		t.Errorf("Similar = %+v, want the stored pair", got)
	}
	if len(emb.EmbedCalls) != 2 {
		t.Errorf("embed calls = %d, want 2 (add + query)", len(emb.EmbedCalls))
	}
}

func TestRetriever_EmbedErrorPropagates(t *testing.T) {
	t.Parallel()

	emb := &embmock.Provider{EmbedErr: errors.New("quota exceeded")}
	r := retrieval.New(emb, &fakeExemplarStore{})

	if _, err := r.Similar(context.Background(), "text", "en", 3); err == nil {
		t.Fatal("Similar: expected error")
	}
	if err := r.Add(context.Background(), "a", "b", "en"); err == nil {
		t.Fatal("Add: expected error")
	}
}
