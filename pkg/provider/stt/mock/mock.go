// Package mock provides a mock implementation of stt.Transcriber for testing.
package mock

import (
	"context"
	"sync"

	"github.com/kaigi-app/kaigi/pkg/provider/stt"
)

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber is a configurable mock. Set Results (consumed in order, last
// one repeating) or Err before use; recorded calls can be inspected after.
type Transcriber struct {
	mu sync.Mutex

	// Results are returned in order by successive Transcribe calls. When
	// exhausted the last entry repeats. When empty, the zero Result is
	// returned.
	Results []stt.Result

	// Err, when set, is returned by every Transcribe call instead of a
	// Result.
	Err error

	// Chunks records every chunk passed to Transcribe.
	Chunks []stt.Chunk

	calls int
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, chunk stt.Chunk) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.Chunks = append(t.Chunks, chunk)
	idx := t.calls
	t.calls++

	if t.Err != nil {
		return stt.Result{}, t.Err
	}
	if len(t.Results) == 0 {
		return stt.Result{}, nil
	}
	if idx >= len(t.Results) {
		idx = len(t.Results) - 1
	}
	return t.Results[idx], nil
}

// CallCount returns how many times Transcribe has been invoked.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
