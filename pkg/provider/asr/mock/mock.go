// Package mock provides a test double for the asr package interfaces.
//
// Use Provider to script recognition results per call and to inspect the
// ranges the caller requested:
//
//	p := &mock.Provider{
//	    Results: []*asr.Result{{Segments: []asr.Segment{{End: 2, Text: "hello"}}}},
//	}
//	res, _ := p.Transcribe(ctx, "a.wav", nil, asr.Options{})
package mock

import (
	"context"
	"sync"

	"github.com/nocturneflow/voxalign/pkg/provider/asr"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	Path  string
	Range *asr.TimeRange
	Opts  asr.Options
}

// Provider is a mock implementation of asr.Provider.
type Provider struct {
	mu sync.Mutex

	// Results are returned in order, one per call. When exhausted (or empty),
	// Result is returned instead.
	Results []*asr.Result

	// Result is the fallback result when Results is exhausted. When nil too,
	// an empty result is returned.
	Result *asr.Result

	// Err, if non-nil, is returned from every Transcribe call.
	Err error

	// TranscribeFunc, if non-nil, overrides all other fields.
	TranscribeFunc func(ctx context.Context, path string, rng *asr.TimeRange, opts asr.Options) (*asr.Result, error)

	// Calls records every invocation.
	Calls []TranscribeCall

	next int
}

var _ asr.Provider = (*Provider)(nil)

// Transcribe records the call and returns the next scripted result.
func (p *Provider) Transcribe(ctx context.Context, path string, rng *asr.TimeRange, opts asr.Options) (*asr.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranscribeCall{Path: path, Range: rng, Opts: opts})
	fn := p.TranscribeFunc
	err := p.Err
	var res *asr.Result
	if fn == nil && err == nil {
		switch {
		case p.next < len(p.Results):
			res = p.Results[p.next]
			p.next++
		case p.Result != nil:
			res = p.Result
		default:
			res = &asr.Result{}
		}
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, path, rng, opts)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Reset clears recorded calls and the scripted-result cursor.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
	p.next = 0
}
