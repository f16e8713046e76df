// Package mock provides a test double for the embeddings.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/nocturneflow/voxalign/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// EmbedResult is returned by Embed. If nil, a zero vector of
	// DimensionsValue length is returned.
	EmbedResult []float32

	// EmbedErr, if non-nil, is returned as the error from Embed.
	EmbedErr error

	// EmbedBatchResult is returned by EmbedBatch. If nil, one zero vector per
	// input text is returned.
	EmbedBatchResult [][]float32

	// EmbedBatchErr, if non-nil, is returned as the error from EmbedBatch.
	EmbedBatchErr error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// EmbedCalls records the texts passed to Embed.
	EmbedCalls []string

	// EmbedBatchCalls records the text slices passed to EmbedBatch.
	EmbedBatchCalls [][]string
}

var _ embeddings.Provider = (*Provider)(nil)

// Embed records the call and returns EmbedResult, EmbedErr.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	p.mu.Unlock()

	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	if p.EmbedResult != nil {
		return p.EmbedResult, nil
	}
	return make([]float32, p.DimensionsValue), nil
}

// EmbedBatch records the call and returns EmbedBatchResult, EmbedBatchErr.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, append([]string(nil), texts...))
	p.mu.Unlock()

	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	if p.EmbedBatchResult != nil {
		return p.EmbedBatchResult, nil
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, p.DimensionsValue)
	}
	return out, nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int { return p.DimensionsValue }

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string { return p.ModelIDValue }
