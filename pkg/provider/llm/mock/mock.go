// Package mock provides a mock implementation of llm.Provider for testing.
package mock

import (
	"context"
	"sync"

	"github.com/kaigi-app/kaigi/pkg/provider/llm"
)

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Provider is a configurable mock. Responses are consumed in order, with the
// last entry repeating once exhausted. CompleteFunc, when set, takes
// precedence over the canned responses.
type Provider struct {
	mu sync.Mutex

	// Responses are returned in order by successive Complete calls.
	Responses []string

	// Err, when set, is returned by every Complete call.
	Err error

	// CompleteFunc, when non-nil, handles calls entirely. Useful for tests
	// that need per-call behaviour (blocking, inspecting the request).
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Requests records every request passed to Complete.
	Requests []llm.CompletionRequest

	calls int
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	idx := p.calls
	p.calls++
	fn := p.CompleteFunc
	err := p.Err
	var content string
	if len(p.Responses) > 0 {
		if idx >= len(p.Responses) {
			idx = len(p.Responses) - 1
		}
		content = p.Responses[idx]
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: content}, nil
}

// CallCount returns how many times Complete has been invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
