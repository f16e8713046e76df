// Package retrieval looks up stored polishing exemplars by semantic
// similarity.
//
// An exemplar is a raw/polished text pair saved from earlier, reviewed
// transcriptions. Before a segment is polished, its text is embedded and the
// nearest stored pairs are attached to the prompt as few-shot examples,
// which anchors the model to this deployment's vocabulary and formatting
// conventions.
package retrieval

import (
	"context"
	"fmt"

	"github.com/nocturneflow/voxalign/internal/polish"
	"github.com/nocturneflow/voxalign/pkg/provider/embeddings"
	"github.com/nocturneflow/voxalign/pkg/store"
)

// Compile-time assertion that Retriever satisfies polish.ExemplarSource.
var _ polish.ExemplarSource = (*Retriever)(nil)

// Retriever implements [polish.ExemplarSource] on top of an embedding
// provider and an exemplar store. It is safe for concurrent use.
type Retriever struct {
	embedder embeddings.Provider
	store    store.ExemplarStore
}

// New creates a Retriever.
func New(embedder embeddings.Provider, st store.ExemplarStore) *Retriever {
	return &Retriever{embedder: embedder, store: st}
}

// Similar implements polish.ExemplarSource.
func (r *Retriever) Similar(ctx context.Context, text, language string, k int) ([]polish.Exemplar, error) {
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	stored, err := r.store.SimilarExemplars(ctx, vec, language, k)
	if err != nil {
		return nil, fmt.Errorf("retrieval: similarity search: %w", err)
	}

	out := make([]polish.Exemplar, 0, len(stored))
	for _, ex := range stored {
		out = append(out, polish.Exemplar{Raw: ex.Raw, Polished: ex.Polished})
	}
	return out, nil
}

// Add embeds and persists a new exemplar pair.
func (r *Retriever) Add(ctx context.Context, raw, polished, language string) error {
	vec, err := r.embedder.Embed(ctx, raw)
	if err != nil {
		return fmt.Errorf("retrieval: embed exemplar: %w", err)
	}
	ex := &store.Exemplar{
		Language:  language,
		Raw:       raw,
		Polished:  polished,
		Embedding: vec,
	}
	if err := r.store.AddExemplar(ctx, ex); err != nil {
		return fmt.Errorf("retrieval: store exemplar: %w", err)
	}
	return nil
}
