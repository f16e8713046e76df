// Package mock provides a test double for the diar package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/nocturneflow/voxalign/internal/diarize"
	"github.com/nocturneflow/voxalign/pkg/provider/diar"
)

// Engine is a mock implementation of diar.Engine.
type Engine struct {
	mu sync.Mutex

	// Turns is returned from every Diarize call when Err is nil.
	Turns []diarize.Turn

	// Err, if non-nil, is returned from every Diarize call.
	Err error

	// Calls records the audio paths passed to Diarize.
	Calls []string
}

var _ diar.Engine = (*Engine)(nil)

// Diarize records the call and returns Turns, Err.
func (e *Engine) Diarize(_ context.Context, path string) ([]diarize.Turn, error) {
	e.mu.Lock()
	e.Calls = append(e.Calls, path)
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	return e.Turns, nil
}
