// Package audio defines the interfaces and types for audio capture within
// kaigi.
//
// The two primary abstractions are:
//
//   - [CaptureSource] — acquires a device-backed audio stream for a given
//     [SourceKind] (microphone or loopback).
//   - [Stream] — an open capture session delivering [Frame] values until the
//     device is released via Close.
//
// Implementations are provided by backend-specific adapter packages (e.g.,
// audio/portaudio). The interfaces are intentionally narrow so the recorder
// stays decoupled from device details, and so tests can substitute scripted
// sources (audio/mock).
package audio

import (
	"context"
	"errors"
	"time"
)

// SourceKind selects which class of input device a capture session uses.
type SourceKind string

const (
	// SourceMicrophone captures from a physical microphone. Echo cancellation
	// and noise suppression are enabled for this kind.
	SourceMicrophone SourceKind = "microphone"

	// SourceLoopback captures system output routed through a virtual audio
	// device (BlackHole, VB-Cable, …). The signal passes through unaltered:
	// no echo cancellation, no noise suppression.
	SourceLoopback SourceKind = "loopback"
)

// IsValid reports whether k is a recognised source kind.
func (k SourceKind) IsValid() bool {
	return k == SourceMicrophone || k == SourceLoopback
}

// Capture errors. Backends wrap these so callers can classify failures with
// errors.Is regardless of the underlying device API.
var (
	// ErrDeviceNotFound indicates that no input device suitable for the
	// requested SourceKind exists. For SourceLoopback this usually means the
	// virtual-audio-cable software is not installed or not configured; the
	// wrapping error carries remediation text.
	ErrDeviceNotFound = errors.New("audio: no suitable input device found")

	// ErrPermissionDenied indicates the OS refused access to the device.
	ErrPermissionDenied = errors.New("audio: device access denied")
)

// Frame is a single block of captured audio flowing from a [Stream] to the
// recorder. Data is 16-bit signed little-endian PCM.
type Frame struct {
	// Data holds the PCM samples.
	Data []byte

	// SampleRate in Hz. The capture layer targets 16000 for speech input.
	SampleRate int

	// Channels is the channel count; 1 for all kaigi capture sessions.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// CaptureConfig describes the audio format requested from a backend.
type CaptureConfig struct {
	// SampleRate in Hz. Zero means the kaigi default of 16000.
	SampleRate int

	// Channels is the requested channel count. Zero means mono.
	Channels int

	// EchoCancellation enables acoustic echo cancellation where the backend
	// supports it. Must be false for loopback capture.
	EchoCancellation bool

	// NoiseSuppression enables noise suppression where the backend supports
	// it. Must be false for loopback capture.
	NoiseSuppression bool
}

// DefaultCaptureConfig returns the capture constraints for a source kind:
// 16 kHz mono, with echo cancellation and noise suppression enabled only for
// microphone capture.
func DefaultCaptureConfig(kind SourceKind) CaptureConfig {
	mic := kind == SourceMicrophone
	return CaptureConfig{
		SampleRate:       16000,
		Channels:         1,
		EchoCancellation: mic,
		NoiseSuppression: mic,
	}
}

// Stream is an open capture session on a single device.
//
// The caller owns the stream and must call Close when the session ends to
// release the device handle. All methods are safe for concurrent use.
type Stream interface {
	// Frames returns the read-only channel delivering captured audio. The
	// channel is closed when the stream ends — either because Close was
	// called or because the device became unavailable. After an unexpected
	// closure, Err reports the cause.
	Frames() <-chan Frame

	// Device returns the name of the device backing this stream.
	Device() string

	// Err returns the terminal error of the stream, or nil if the stream is
	// still live or was closed deliberately via Close.
	Err() error

	// Close stops capture and releases the device. Calling Close more than
	// once is safe and returns nil.
	Close() error
}

// CaptureSource acquires device-backed audio streams.
//
// Implementations must be safe for concurrent use, though kaigi opens at most
// one stream per recording session.
type CaptureSource interface {
	// Acquire enumerates input devices, selects one appropriate for kind (see
	// [SelectMicrophone] and [SelectLoopback] for the selection rules), and
	// opens a capture stream on it with [DefaultCaptureConfig] constraints.
	//
	// Fails with an error wrapping [ErrDeviceNotFound] when no suitable
	// device remains after filtering, or [ErrPermissionDenied] when the OS
	// refuses access. The caller owns the returned Stream and must Close it.
	Acquire(ctx context.Context, kind SourceKind) (Stream, error)
}
