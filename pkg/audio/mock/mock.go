// Package mock provides in-memory mock implementations of the
// [audio.CaptureSource] and [audio.Stream] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	stream := mock.NewStream("Built-in Microphone")
//	source := &mock.Source{AcquireResult: stream}
//	got, err := source.Acquire(ctx, audio.SourceMicrophone)
//	stream.Push(audio.Frame{Data: pcm})
//	stream.Close()
package mock

import (
	"context"
	"sync"

	"github.com/kaigi-app/kaigi/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Compile-time interface check.
var _ audio.CaptureSource = (*Source)(nil)

// Source is a mock implementation of [audio.CaptureSource].
// Set the exported Result fields before use; inspect the Call* fields after.
type Source struct {
	mu sync.Mutex

	// AcquireResult is returned by [Source.Acquire] when AcquireError is nil.
	AcquireResult *Stream

	// AcquireError is returned by [Source.Acquire] when non-nil.
	AcquireError error

	// CallCountAcquire records how many times Acquire was called.
	CallCountAcquire int

	// RecordedKinds holds the kinds passed to Acquire, in order.
	RecordedKinds []audio.SourceKind
}

// Acquire implements [audio.CaptureSource].
func (s *Source) Acquire(_ context.Context, kind audio.SourceKind) (audio.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountAcquire++
	s.RecordedKinds = append(s.RecordedKinds, kind)
	if s.AcquireError != nil {
		return nil, s.AcquireError
	}
	return s.AcquireResult, nil
}

// ─── Stream ───────────────────────────────────────────────────────────────────

// Compile-time interface check.
var _ audio.Stream = (*Stream)(nil)

// Stream is a mock implementation of [audio.Stream]. Tests drive it by
// calling [Stream.Push] to deliver frames and [Stream.Fail] to simulate the
// device becoming unavailable.
type Stream struct {
	mu sync.Mutex

	device string
	frames chan audio.Frame
	err    error
	closed bool

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewStream creates a mock stream reporting the given device name.
func NewStream(device string) *Stream {
	return &Stream{
		device: device,
		frames: make(chan audio.Frame, 64),
	}
}

// Frames implements [audio.Stream].
func (s *Stream) Frames() <-chan audio.Frame { return s.frames }

// Device implements [audio.Stream].
func (s *Stream) Device() string { return s.device }

// Err implements [audio.Stream].
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements [audio.Stream]. The frame channel is closed on the first
// call; later calls only bump the counter.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return nil
}

// Push delivers a frame to the stream's consumer. It blocks if the buffer is
// full and panics if the stream has been closed, surfacing a test bug rather
// than hiding it.
func (s *Stream) Push(frame audio.Frame) {
	s.frames <- frame
}

// Fail simulates the device disappearing mid-session: the terminal error is
// set and the frame channel is closed.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.frames)
}
