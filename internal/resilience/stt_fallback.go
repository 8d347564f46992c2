package resilience

import (
	"context"
	"errors"

	"github.com/kaigi-app/kaigi/pkg/provider/stt"
)

// STTFallback implements [stt.Transcriber] with automatic failover across
// multiple transcription backends. Each backend has its own circuit breaker.
//
// Invalid audio and bad credentials are permanent: they fail the request
// without trying other backends or tripping breakers, because retrying the
// same payload elsewhere cannot help.
type STTFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.Permanent == nil {
		cfg.Permanent = func(err error) bool {
			return errors.Is(err, stt.ErrInvalidAudio) || errors.Is(err, stt.ErrAuth)
		}
	}
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcription backend as a fallback.
func (f *STTFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe sends the chunk to the first healthy backend and returns its
// transcript. If the primary fails or its breaker is open, fallbacks are tried.
func (f *STTFallback) Transcribe(ctx context.Context, chunk stt.Chunk) (stt.Result, error) {
	return ExecuteWithResult(f.group, func(t stt.Transcriber) (stt.Result, error) {
		return t.Transcribe(ctx, chunk)
	})
}
