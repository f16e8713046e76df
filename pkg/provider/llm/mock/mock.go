// Package mock provides a test double for the llm package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/nocturneflow/voxalign/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses is consumed one per Complete call. When exhausted,
	// Response is returned instead.
	Responses []*llm.CompletionResponse

	// Response is the fallback returned when Responses is exhausted.
	Response *llm.CompletionResponse

	// Err, if non-nil, is returned from every Complete call.
	Err error

	// CompleteFunc, if non-nil, overrides all other behavior.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Requests records every request passed to Complete.
	Requests []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the request and replies per the configured fields.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	var next *llm.CompletionResponse
	if len(p.Responses) > 0 {
		next = p.Responses[0]
		p.Responses = p.Responses[1:]
	}
	p.mu.Unlock()

	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, req)
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if next != nil {
		return next, nil
	}
	if p.Response != nil {
		return p.Response, nil
	}
	return &llm.CompletionResponse{}, nil
}

// Reset clears recorded requests and scripted responses.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = nil
	p.Responses = nil
	p.Response = nil
	p.Err = nil
	p.CompleteFunc = nil
}
