// Package recorder implements the chunked recording cycle at the heart of a
// meeting session.
//
// A Recorder acquires a capture stream, accumulates PCM audio into
// fixed-length chunks, and submits each completed chunk for transcription.
// Submission is strictly sequential: one chunk is in flight at a time, in
// recording order, while capture continues uninterrupted in the background.
//
// The Recorder moves through a fixed set of states:
//
//	Idle → Armed → Recording ⇄ Paused → Stopped
//
// Armed covers device acquisition; a capture failure at any later point moves
// the Recorder to Stopped and surfaces the error through the fatal callback.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kaigi-app/kaigi/internal/observe"
	"github.com/kaigi-app/kaigi/pkg/audio"
	"github.com/kaigi-app/kaigi/pkg/provider/stt"
	"github.com/kaigi-app/kaigi/pkg/types"
)

// State is the recorder lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateArmed     State = "armed"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
)

const (
	// defaultChunkPeriod is how much audio one chunk holds.
	defaultChunkPeriod = 20 * time.Second

	// cycleSeam is how much the cut spacing exceeds the chunk period. The
	// deliberate seam means consecutive chunks never share a frame.
	cycleSeam = 100 * time.Millisecond

	// defaultCycleInterval is the spacing between chunk cuts.
	defaultCycleInterval = 20*time.Second + cycleSeam

	// defaultMinFlushBytes is the smallest partial chunk worth submitting
	// when recording stops mid-cycle.
	defaultMinFlushBytes = 1024

	// chunkQueueDepth bounds the transcription backlog. At 20 s per chunk
	// this is over ten minutes of audio; hitting the cap means the STT
	// backend has been unresponsive for that long.
	chunkQueueDepth = 32
)

// ErrInvalidState is returned when an operation is not legal in the
// recorder's current state.
var ErrInvalidState = errors.New("recorder: invalid state for operation")

// Processor consumes completed audio chunks. internal/transcribe.Client is
// the production implementation.
type Processor interface {
	Process(ctx context.Context, chunk stt.Chunk) (*types.TranscriptEntry, error)
	Reset()
}

// Option is a functional option for [New].
type Option func(*Recorder)

// WithChunkPeriod overrides the audio length of one chunk.
func WithChunkPeriod(d time.Duration) Option {
	return func(r *Recorder) { r.chunkPeriod = d }
}

// WithCycleInterval overrides the spacing between chunk cuts. It should
// exceed the chunk period by a small seam.
func WithCycleInterval(d time.Duration) Option {
	return func(r *Recorder) { r.cycleInterval = d }
}

// WithMinFlushBytes overrides the smallest partial chunk submitted on stop.
func WithMinFlushBytes(n int) Option {
	return func(r *Recorder) { r.minFlushBytes = n }
}

// WithLevelMonitor taps captured frames into m for volume feedback.
func WithLevelMonitor(m *audio.LevelMonitor) Option {
	return func(r *Recorder) { r.monitor = m }
}

// WithEntryHandler sets the callback invoked for every transcript entry the
// processor produces. Called from the submission goroutine.
func WithEntryHandler(fn func(types.TranscriptEntry)) Option {
	return func(r *Recorder) { r.onEntry = fn }
}

// WithFatalHandler sets the callback invoked when the capture stream fails
// and the recorder stops on its own.
func WithFatalHandler(fn func(error)) Option {
	return func(r *Recorder) { r.onFatal = fn }
}

// Recorder drives the capture-chunk-transcribe cycle. All exported methods
// are safe for concurrent use.
type Recorder struct {
	source    audio.CaptureSource
	processor Processor
	monitor   *audio.LevelMonitor
	onEntry   func(types.TranscriptEntry)
	onFatal   func(error)

	chunkPeriod   time.Duration
	cycleInterval time.Duration
	minFlushBytes int

	mu           sync.Mutex
	state        State
	stream       audio.Stream
	paused       bool
	pauseSeq     uint64
	fatalErr     error
	recorded     time.Duration
	segmentStart time.Time

	chunks   chan pcmChunk
	pauses   chan struct{}
	done     chan struct{}
	stopOnce *sync.Once
	wg       sync.WaitGroup
}

// New creates a Recorder capturing from source and submitting chunks to
// processor.
func New(source audio.CaptureSource, processor Processor, opts ...Option) *Recorder {
	r := &Recorder{
		source:        source,
		processor:     processor,
		chunkPeriod:   defaultChunkPeriod,
		cycleInterval: defaultCycleInterval,
		minFlushBytes: defaultMinFlushBytes,
		state:         StateIdle,
	}
	for _, o := range opts {
		o(r)
	}
	// A custom chunk period keeps its seam unless the cycle was set directly.
	if r.cycleInterval == defaultCycleInterval && r.chunkPeriod != defaultChunkPeriod {
		r.cycleInterval = r.chunkPeriod + cycleSeam
	}
	return r
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the fatal capture error that stopped the recorder, or nil.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatalErr
}

// Elapsed returns total recorded time, excluding pauses.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRecording {
		return r.recorded + time.Since(r.segmentStart)
	}
	return r.recorded
}

// Start acquires a capture stream of the given kind and begins the chunk
// cycle. Legal only from Idle; use [Recorder.Reset] to reuse a stopped
// Recorder.
func (r *Recorder) Start(ctx context.Context, kind audio.SourceKind) error {
	r.mu.Lock()
	if r.state != StateIdle {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("start from %s: %w", state, ErrInvalidState)
	}
	r.state = StateArmed
	r.mu.Unlock()

	stream, err := r.source.Acquire(ctx, kind)
	if err != nil {
		r.mu.Lock()
		r.state = StateIdle
		r.mu.Unlock()
		return fmt.Errorf("recorder: acquire %s: %w", kind, err)
	}

	r.processor.Reset()

	r.mu.Lock()
	r.state = StateRecording
	r.stream = stream
	r.paused = false
	r.fatalErr = nil
	r.recorded = 0
	r.segmentStart = time.Now()
	r.chunks = make(chan pcmChunk, chunkQueueDepth)
	r.pauses = make(chan struct{}, 1)
	r.done = make(chan struct{})
	r.stopOnce = &sync.Once{}
	r.mu.Unlock()

	slog.Info("recording started", "kind", kind, "device", stream.Device(),
		"chunk_period", r.chunkPeriod, "cycle_interval", r.cycleInterval)

	r.wg.Add(2)
	go r.captureLoop(stream)
	go r.submitLoop(ctx)
	return nil
}

// Pause suspends chunk accumulation. The partial chunk in progress is
// finalized at the boundary: submitted when it clears the minimum flush
// size, discarded otherwise. Frames captured while paused are dropped, and
// Resume starts a brand-new chunk. Legal only from Recording.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return fmt.Errorf("pause from %s: %w", r.state, ErrInvalidState)
	}
	r.state = StatePaused
	r.paused = true
	r.pauseSeq++
	r.recorded += time.Since(r.segmentStart)
	select {
	case r.pauses <- struct{}{}:
	default:
	}
	slog.Info("recording paused", "recorded", r.recorded)
	return nil
}

// Resume continues chunk accumulation after a pause. Legal only from Paused.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePaused {
		return fmt.Errorf("resume from %s: %w", r.state, ErrInvalidState)
	}
	r.state = StateRecording
	r.paused = false
	r.segmentStart = time.Now()
	slog.Info("recording resumed")
	return nil
}

// Stop ends the session: the partial chunk is flushed when it clears the
// minimum size, queued chunks drain through transcription, and the capture
// stream is released. Stop blocks until the last transcription completes.
// Stop is legal from any state: stopping an Idle recorder or stopping twice
// is a no-op.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	switch r.state {
	case StateRecording:
		r.recorded += time.Since(r.segmentStart)
	case StateIdle:
		r.mu.Unlock()
		return nil
	case StateArmed, StatePaused, StateStopped:
	}
	stream := r.stream
	once := r.stopOnce
	r.mu.Unlock()

	if once == nil {
		return nil
	}
	once.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
	if stream != nil {
		_ = stream.Close()
	}

	r.mu.Lock()
	r.state = StateStopped
	recorded := r.recorded
	r.mu.Unlock()

	slog.Info("recording stopped", "recorded", recorded)
	return nil
}

// Reset returns a stopped recorder to Idle so it can start a new session.
func (r *Recorder) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateStopped && r.state != StateIdle {
		return fmt.Errorf("reset from %s: %w", r.state, ErrInvalidState)
	}
	r.state = StateIdle
	r.stream = nil
	r.fatalErr = nil
	r.recorded = 0
	return nil
}

// captureLoop accumulates frames into the chunk buffer and cuts a chunk
// every cycle interval. It owns the buffer; nothing else touches it.
func (r *Recorder) captureLoop(stream audio.Stream) {
	defer r.wg.Done()
	defer close(r.chunks)

	var (
		buffer     []byte
		sampleRate = 16000
		channels   = 1
	)
	maxChunkBytes := func() int {
		bps := sampleRate * channels * 2
		return int(r.chunkPeriod.Seconds() * float64(bps))
	}

	flush := func(min int) {
		if len(buffer) < min {
			if len(buffer) > 0 {
				slog.Debug("discarding undersized partial chunk", "bytes", len(buffer))
			}
			buffer = nil
			return
		}
		r.enqueue(pcmChunk{pcm: buffer, sampleRate: sampleRate, channels: channels})
		buffer = nil
	}

	ticker := time.NewTicker(r.cycleInterval)
	defer ticker.Stop()

	epoch := r.pauseEpoch()
	for {
		select {
		case <-r.done:
			flush(r.minFlushBytes)
			return

		case <-r.pauses:
			// Finalize the in-flight chunk at the pause boundary so the
			// first post-resume frame starts a fresh one. Skip when the
			// frame path already cut for this pause.
			if e := r.pauseEpoch(); e != epoch {
				flush(r.minFlushBytes)
				epoch = e
			}

		case frame, ok := <-stream.Frames():
			if !ok {
				// Stream ended on its own: device unplugged or backend
				// failure. Flush what we have and stop.
				flush(r.minFlushBytes)
				r.fail(stream.Err())
				return
			}
			if r.isPaused() {
				continue
			}
			// A pause we have not flushed for yet means this frame is the
			// first after a resume; cut the pre-pause chunk first.
			if e := r.pauseEpoch(); e != epoch {
				flush(r.minFlushBytes)
				epoch = e
			}
			if frame.SampleRate > 0 {
				sampleRate = frame.SampleRate
			}
			if frame.Channels > 0 {
				channels = frame.Channels
			}
			if r.monitor != nil {
				r.monitor.Feed(frame)
			}
			if room := maxChunkBytes() - len(buffer); room > 0 {
				data := frame.Data
				if len(data) > room {
					data = data[:room]
				}
				buffer = append(buffer, data...)
			}

		case <-ticker.C:
			if r.isPaused() {
				continue
			}
			flush(1)
		}
	}
}

// pcmChunk is one cut chunk awaiting submission, with the format it was
// captured in.
type pcmChunk struct {
	pcm        []byte
	sampleRate int
	channels   int
}

// enqueue hands a completed PCM chunk to the submission queue. A full queue
// drops the chunk: losing one beats stalling capture.
func (r *Recorder) enqueue(c pcmChunk) {
	select {
	case r.chunks <- c:
	default:
		slog.Warn("transcription backlog full, dropping chunk",
			"bytes", len(c.pcm), "depth", chunkQueueDepth)
	}
}

// submitLoop drains the chunk queue one at a time, in order. Chunk N+1 is
// not submitted until chunk N's transcription has completed.
func (r *Recorder) submitLoop(ctx context.Context) {
	defer r.wg.Done()

	for c := range r.chunks {
		chunk := stt.Chunk{
			Data: audio.EncodeWAV(c.pcm, c.sampleRate, c.channels),
			MIME: "audio/wav",
			Duration: time.Duration(audio.PCMDuration(c.pcm, c.sampleRate, c.channels)) *
				time.Millisecond,
		}

		start := time.Now()
		entry, err := r.processor.Process(ctx, chunk)
		met := observe.DefaultMetrics()
		met.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
		switch {
		case err != nil:
			// The chunk's audio is gone either way; log and move on to
			// keep the rest of the session flowing.
			met.RecordChunk(ctx, "error")
			slog.Error("chunk transcription failed", "error", err, "bytes", len(c.pcm))
			continue
		case entry == nil:
			// Undersized or screened out as a generic filler.
			met.RecordChunk(ctx, "skipped")
			continue
		}
		met.RecordChunk(ctx, "ok")
		if r.onEntry != nil {
			r.onEntry(*entry)
		}
	}
}

// fail records a fatal capture error and moves the recorder to Stopped.
func (r *Recorder) fail(err error) {
	r.mu.Lock()
	if r.state == StateRecording {
		r.recorded += time.Since(r.segmentStart)
	}
	r.state = StateStopped
	r.fatalErr = err
	r.mu.Unlock()

	if err != nil {
		slog.Error("capture stream failed, recording stopped", "error", err)
		if r.onFatal != nil {
			r.onFatal(err)
		}
	}
}

func (r *Recorder) isPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// pauseEpoch counts completed pauses. The capture loop compares it against
// the epoch it last flushed at, so a pause boundary is honoured even when
// the pause signal has not been drained yet.
func (r *Recorder) pauseEpoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pauseSeq
}
