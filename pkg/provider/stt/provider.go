// Package stt defines the Transcriber interface for speech-to-text backends.
//
// An STT provider wraps a batch transcription service (e.g., the OpenAI
// Whisper API or a self-hosted compatible server) and exposes a uniform
// chunk-at-a-time interface: the recorder hands over one complete WAV-encoded
// audio chunk and receives the transcribed text back. There is no streaming;
// the meeting pipeline records fixed-length chunks and submits them
// sequentially.
//
// Implementations must be safe for concurrent use, though the recorder only
// ever has one request in flight.
package stt

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors that callers can test with errors.Is to distinguish
// actionable failure classes. Providers wrap these with backend detail.
var (
	// ErrAuth indicates the API credential was rejected. The session should
	// surface this to the user; retrying will not help until the key changes.
	ErrAuth = errors.New("stt: authentication failed")

	// ErrRateLimited indicates the backend refused the request due to rate
	// limits or quota exhaustion. The chunk is lost; subsequent chunks may
	// still succeed.
	ErrRateLimited = errors.New("stt: rate limited")

	// ErrInvalidAudio indicates the backend rejected the audio payload itself
	// (truncated container, unsupported format, empty data).
	ErrInvalidAudio = errors.New("stt: invalid audio")
)

// TransportError reports a non-success HTTP response that does not map to one
// of the sentinel classes. It wraps the status code and a truncated response
// body for logging.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stt: unexpected status %d: %s", e.Status, e.Body)
}

// Chunk is one complete audio segment ready for transcription.
type Chunk struct {
	// Data is the encoded audio, container and all. The recorder produces
	// RIFF/WAV; see audio.EncodeWAV.
	Data []byte

	// MIME is the content type of Data (e.g., "audio/wav").
	MIME string

	// Duration is the audio length, used for logging and metrics. Zero when
	// unknown.
	Duration time.Duration
}

// Result is the transcription of one chunk.
type Result struct {
	// Text is the transcribed speech, already whitespace-trimmed.
	Text string

	// Language is the language the backend detected or was told to expect.
	// May be empty.
	Language string
}

// Transcriber is the abstraction over any batch STT backend.
type Transcriber interface {
	// Transcribe submits one audio chunk and blocks until the backend returns
	// text or fails. The context bounds the whole request; cancelling it
	// aborts the upload.
	Transcribe(ctx context.Context, chunk Chunk) (Result, error)
}
