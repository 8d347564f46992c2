// Package transcribe turns raw audio chunks into transcript entries.
//
// It wraps an stt.Transcriber with the policy the recorder relies on: chunks
// below a minimum size are skipped without a network call, transcription
// output is screened against known filler phrases the model hallucinates on
// silence, and a sustained run of such output raises a single warning so the
// user can check their audio routing.
package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kaigi-app/kaigi/pkg/provider/stt"
	"github.com/kaigi-app/kaigi/pkg/types"
)

const (
	// defaultMinChunkBytes is the smallest audio payload worth submitting.
	// Anything below this is header-plus-noise and reliably transcribes to
	// nothing useful.
	defaultMinChunkBytes = 1024

	// genericStreakLimit is how many consecutive filler results arm the
	// silence warning.
	genericStreakLimit = 5

	// silenceWindow is how long the pipeline must go without a valid
	// transcript before the armed warning fires.
	silenceWindow = 30 * time.Second

	// minValidRunes is the rune count a transcript must exceed to reset the
	// filler streak. Single-word acknowledgements do not count as signal.
	minValidRunes = 3
)

// genericPhrases are transcripts Whisper produces for silent or noise-only
// audio. Matching is exact after trimming.
var genericPhrases = []string{
	"ご視聴ありがとうございました",
	"ご視聴ありがとうございました。",
	"ありがとうございました",
	"ありがとうございました。",
	"ご清聴ありがとうございました",
	"ご清聴ありがとうございました。",
	"お疲れ様でした",
	"お疲れ様でした。",
	"チャンネル登録お願いします",
	"Thank you for watching",
	"Thanks for watching",
	"you",
}

// Client screens transcription results and produces transcript entries.
//
// Client is not safe for concurrent use; the recorder submits chunks one at
// a time from a single goroutine.
type Client struct {
	transcriber   stt.Transcriber
	minChunkBytes int
	speaker       string
	onWarning     func(msg string)
	now           func() time.Time

	genericStreak int
	lastValidAt   time.Time
	warned        bool
}

// Option is a functional option for [New].
type Option func(*Client)

// WithMinChunkBytes overrides the minimum submittable chunk size.
func WithMinChunkBytes(n int) Option {
	return func(c *Client) { c.minChunkBytes = n }
}

// WithSpeaker labels every produced entry with the given speaker, typically
// derived from the capture source the client serves.
func WithSpeaker(label string) Option {
	return func(c *Client) { c.speaker = label }
}

// WithWarningHandler sets the callback invoked when the silence warning
// fires. The default only logs.
func WithWarningHandler(fn func(msg string)) Option {
	return func(c *Client) { c.onWarning = fn }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Client submitting chunks to t.
func New(t stt.Transcriber, opts ...Option) *Client {
	c := &Client{
		transcriber:   t,
		minChunkBytes: defaultMinChunkBytes,
		now:           time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.lastValidAt = c.now()
	return c
}

// Process submits one chunk and returns the resulting transcript entry.
// A nil entry with nil error means the chunk was skipped: too small, or the
// transcription came back as filler. Transcription failures are returned as
// errors; the chunk's audio is gone either way.
func (c *Client) Process(ctx context.Context, chunk stt.Chunk) (*types.TranscriptEntry, error) {
	if len(chunk.Data) < c.minChunkBytes {
		slog.Debug("skipping undersized audio chunk", "bytes", len(chunk.Data), "min", c.minChunkBytes)
		return nil, nil
	}

	res, err := c.transcriber.Transcribe(ctx, chunk)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	text := strings.TrimSpace(res.Text)
	if !isValid(text) {
		c.recordGeneric(text)
		return nil, nil
	}

	c.genericStreak = 0
	c.lastValidAt = c.now()
	c.warned = false

	return &types.TranscriptEntry{
		ID:        uuid.NewString(),
		Text:      text,
		Speaker:   c.speaker,
		Timestamp: c.now(),
		Duration:  chunk.Duration,
		Language:  res.Language,
	}, nil
}

// Reset clears the filler streak and warning state. The recorder calls it
// when a new recording starts.
func (c *Client) Reset() {
	c.genericStreak = 0
	c.lastValidAt = c.now()
	c.warned = false
}

// recordGeneric counts a filler result and fires the silence warning when
// the streak and the quiet period both exceed their thresholds. The warning
// fires once; a later valid transcript re-arms it.
func (c *Client) recordGeneric(text string) {
	c.genericStreak++
	quiet := c.now().Sub(c.lastValidAt)
	slog.Debug("discarded filler transcription",
		"text", text, "streak", c.genericStreak, "quiet", quiet)

	if c.warned || c.genericStreak < genericStreakLimit || quiet < silenceWindow {
		return
	}
	c.warned = true

	msg := "no speech detected recently; check that the microphone or system-audio device is routed correctly"
	slog.Warn(msg, "streak", c.genericStreak, "quiet", quiet)
	if c.onWarning != nil {
		c.onWarning(msg)
	}
}

// isValid reports whether text is a usable transcript: non-empty, longer
// than the acknowledgement threshold, and not a known filler phrase.
func isValid(text string) bool {
	if utf8.RuneCountInString(text) <= minValidRunes {
		return false
	}
	for _, p := range genericPhrases {
		if text == p {
			return false
		}
	}
	return true
}
