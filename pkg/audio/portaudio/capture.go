// Package portaudio provides a PortAudio-backed implementation of
// [audio.CaptureSource].
//
// Device enumeration and selection follow the kaigi heuristics: microphone
// capture excludes virtual/loopback device names and prefers a built-in
// device; loopback capture requires a device matching the virtual-audio-cable
// pattern set. Captured float32 samples are converted to 16-bit signed
// little-endian PCM frames.
//
// PortAudio is initialised once per Source and terminated on [Source.Close].
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/kaigi-app/kaigi/pkg/audio"
)

// framesPerBuffer is the PortAudio read size: 1024 frames ≈ 64 ms at 16 kHz.
const framesPerBuffer = 1024

// Compile-time interface check.
var _ audio.CaptureSource = (*Source)(nil)

// Source implements [audio.CaptureSource] on top of PortAudio.
type Source struct {
	loopbackMatch audio.NameMatcher
	builtinMatch  audio.NameMatcher

	mu        sync.Mutex
	closeOnce sync.Once
}

// Option is a functional option for [New].
type Option func(*Source)

// WithLoopbackMatcher overrides the virtual-device name patterns used to
// classify loopback devices.
func WithLoopbackMatcher(m audio.NameMatcher) Option {
	return func(s *Source) { s.loopbackMatch = m }
}

// WithBuiltinMatcher overrides the built-in microphone name patterns.
func WithBuiltinMatcher(m audio.NameMatcher) Option {
	return func(s *Source) { s.builtinMatch = m }
}

// New initialises PortAudio and returns a Source. The caller must call
// [Source.Close] when capture is no longer needed.
func New(opts ...Option) (*Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialise: %w", err)
	}
	s := &Source{
		loopbackMatch: audio.DefaultLoopbackMatcher(),
		builtinMatch:  audio.DefaultBuiltinMatcher(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close terminates the PortAudio runtime. Safe to call more than once.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = portaudio.Terminate()
	})
	return err
}

// Acquire implements [audio.CaptureSource]. It enumerates input devices,
// selects one per the kind's heuristics, and opens a 16 kHz mono stream.
func (s *Source) Acquire(ctx context.Context, kind audio.SourceKind) (audio.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("portaudio: context already cancelled: %w", err)
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("portaudio: unknown source kind %q", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: enumerate devices: %w", err)
	}
	defaultIn, _ := portaudio.DefaultInputDevice()

	candidates := make([]audio.Device, 0, len(devices))
	byName := make(map[string]*portaudio.DeviceInfo, len(devices))
	for _, d := range devices {
		candidates = append(candidates, audio.Device{
			Name:    d.Name,
			Inputs:  d.MaxInputChannels,
			Default: defaultIn != nil && d.Name == defaultIn.Name,
		})
		byName[d.Name] = d
	}

	var picked audio.Device
	switch kind {
	case audio.SourceMicrophone:
		picked, err = audio.SelectMicrophone(candidates, s.loopbackMatch, s.builtinMatch)
	case audio.SourceLoopback:
		picked, err = audio.SelectLoopback(candidates, s.loopbackMatch)
	}
	if err != nil {
		return nil, err
	}

	cfg := audio.DefaultCaptureConfig(kind)
	return openStream(byName[picked.Name], cfg)
}

// openStream opens the PortAudio stream on dev and starts the reader
// goroutine that converts samples to PCM frames.
func openStream(dev *portaudio.DeviceInfo, cfg audio.CaptureConfig) (audio.Stream, error) {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: cfg.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: framesPerBuffer,
	}

	buf := make([]float32, framesPerBuffer*cfg.Channels)
	pa, err := portaudio.OpenStream(params, buf)
	if err != nil {
		if isPermissionError(err) {
			return nil, fmt.Errorf("portaudio: open %q: %w", dev.Name, audio.ErrPermissionDenied)
		}
		return nil, fmt.Errorf("portaudio: open %q: %w", dev.Name, err)
	}
	if err := pa.Start(); err != nil {
		_ = pa.Close()
		return nil, fmt.Errorf("portaudio: start %q: %w", dev.Name, err)
	}

	st := &stream{
		device: dev.Name,
		pa:     pa,
		buf:    buf,
		cfg:    cfg,
		frames: make(chan audio.Frame, 32),
		done:   make(chan struct{}),
	}
	st.wg.Add(1)
	go st.readLoop()
	return st, nil
}

// stream is a live PortAudio capture session implementing [audio.Stream].
type stream struct {
	device string
	pa     *portaudio.Stream
	buf    []float32
	cfg    audio.CaptureConfig

	frames chan audio.Frame
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	mu  sync.Mutex
	err error
}

// Frames implements [audio.Stream].
func (s *stream) Frames() <-chan audio.Frame { return s.frames }

// Device implements [audio.Stream].
func (s *stream) Device() string { return s.device }

// Err implements [audio.Stream].
func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements [audio.Stream]. It stops the reader, stops and closes the
// PortAudio stream, and closes the frame channel. Safe to call more than once.
func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		_ = s.pa.Stop()
		_ = s.pa.Close()
	})
	return nil
}

// readLoop blocks on PortAudio reads and forwards PCM frames. A read error
// (device unplugged, host API failure) terminates the stream with that error.
func (s *stream) readLoop() {
	defer s.wg.Done()
	defer close(s.frames)

	start := time.Now()
	for {
		select {
		case <-s.done:
			return
		default:
		}

		if err := s.pa.Read(); err != nil {
			s.mu.Lock()
			s.err = fmt.Errorf("portaudio: read %q: %w", s.device, err)
			s.mu.Unlock()
			slog.Warn("audio device read failed, ending stream", "device", s.device, "error", err)
			return
		}

		frame := audio.Frame{
			Data:       float32ToPCM16(s.buf),
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
			Timestamp:  time.Since(start),
		}

		select {
		case s.frames <- frame:
		case <-s.done:
			return
		default:
			// Consumer lagging; drop rather than block the device callback.
			slog.Debug("audio frame buffer full, dropping frame", "device", s.device)
		}
	}
}

// float32ToPCM16 converts normalised float32 samples to 16-bit signed
// little-endian PCM, clamping out-of-range values.
func float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		v := f * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		n := int16(v)
		out[i*2] = byte(n)
		out[i*2+1] = byte(uint16(n) >> 8)
	}
	return out
}

// isPermissionError reports whether err looks like an OS permission refusal.
// PortAudio does not expose a typed error for this, so the check is textual.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission") || strings.Contains(msg, "access denied") ||
		errors.Is(err, audio.ErrPermissionDenied)
}
