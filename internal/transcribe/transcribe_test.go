package transcribe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kaigi-app/kaigi/pkg/provider/stt"
	sttmock "github.com/kaigi-app/kaigi/pkg/provider/stt/mock"
)

func validChunk() stt.Chunk {
	return stt.Chunk{Data: make([]byte, 4096), MIME: "audio/wav", Duration: 20 * time.Second}
}

func TestProcessValidTranscript(t *testing.T) {
	m := &sttmock.Transcriber{Results: []stt.Result{{Text: "  次のスプリントの計画を確認しましょう  ", Language: "ja"}}}
	c := New(m)

	entry, err := c.Process(context.Background(), validChunk())
	if err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}
	if entry == nil {
		t.Fatal("Process() returned nil entry for valid transcript")
	}
	if entry.Text != "次のスプリントの計画を確認しましょう" {
		t.Errorf("text = %q, want trimmed transcript", entry.Text)
	}
	if entry.ID == "" {
		t.Error("entry ID is empty")
	}
	if entry.Duration != 20*time.Second {
		t.Errorf("duration = %v, want 20s", entry.Duration)
	}
	if entry.Speaker != "" {
		t.Errorf("speaker = %q, want empty without WithSpeaker", entry.Speaker)
	}
}

func TestProcessLabelsSpeaker(t *testing.T) {
	m := &sttmock.Transcriber{Results: []stt.Result{{Text: "先方の質問に答えます", Language: "ja"}}}
	c := New(m, WithSpeaker("相手"))

	entry, err := c.Process(context.Background(), validChunk())
	if err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}
	if entry == nil {
		t.Fatal("Process() returned nil entry")
	}
	if entry.Speaker != "相手" {
		t.Errorf("speaker = %q, want 相手", entry.Speaker)
	}
}

func TestProcessSkipsUndersizedChunk(t *testing.T) {
	m := &sttmock.Transcriber{}
	c := New(m)

	entry, err := c.Process(context.Background(), stt.Chunk{Data: make([]byte, 512)})
	if err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}
	if entry != nil {
		t.Error("Process() should skip undersized chunks")
	}
	if m.CallCount() != 0 {
		t.Error("undersized chunk must not reach the transcriber")
	}
}

func TestProcessDiscardsFiller(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"known hallucination", "ご視聴ありがとうございました"},
		{"short acknowledgement", "はい"},
		{"empty", ""},
		{"whitespace only", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &sttmock.Transcriber{Results: []stt.Result{{Text: tt.text}}}
			c := New(m)

			entry, err := c.Process(context.Background(), validChunk())
			if err != nil {
				t.Fatalf("Process() unexpected error: %v", err)
			}
			if entry != nil {
				t.Errorf("Process() = %+v, want discarded filler", entry)
			}
		})
	}
}

func TestProcessPropagatesTranscriberError(t *testing.T) {
	m := &sttmock.Transcriber{Err: stt.ErrRateLimited}
	c := New(m)

	_, err := c.Process(context.Background(), validChunk())
	if !errors.Is(err, stt.ErrRateLimited) {
		t.Errorf("Process() error = %v, want ErrRateLimited", err)
	}
}

// The silence warning needs five consecutive filler results and thirty quiet
// seconds, and fires exactly once until a valid transcript re-arms it.
func TestSilenceWarning(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	var warnings []string
	m := &sttmock.Transcriber{Results: []stt.Result{{Text: "ありがとうございました"}}}
	c := New(m,
		WithClock(clock),
		WithWarningHandler(func(msg string) { warnings = append(warnings, msg) }),
	)

	// Four fillers inside the quiet window: no warning yet.
	for i := 0; i < 4; i++ {
		now = now.Add(20 * time.Second)
		if _, err := c.Process(context.Background(), validChunk()); err != nil {
			t.Fatalf("Process() unexpected error: %v", err)
		}
	}
	if len(warnings) != 0 {
		t.Fatalf("warning fired after %d fillers, want none before the fifth", 4)
	}

	// Fifth filler, well past the thirty-second window.
	now = now.Add(20 * time.Second)
	if _, err := c.Process(context.Background(), validChunk()); err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %d, want exactly 1", len(warnings))
	}

	// Further fillers must not repeat the warning.
	for i := 0; i < 3; i++ {
		now = now.Add(20 * time.Second)
		if _, err := c.Process(context.Background(), validChunk()); err != nil {
			t.Fatalf("Process() unexpected error: %v", err)
		}
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %d after repeat fillers, want still 1", len(warnings))
	}

	// A valid transcript re-arms the warning.
	m.Results = []stt.Result{{Text: "本日の議題を確認します"}}
	m.Err = nil
	now = now.Add(20 * time.Second)
	entry, err := c.Process(context.Background(), validChunk())
	if err != nil || entry == nil {
		t.Fatalf("Process() = (%v, %v), want valid entry", entry, err)
	}

	m.Results = []stt.Result{{Text: "ありがとうございました"}}
	for i := 0; i < 5; i++ {
		now = now.Add(20 * time.Second)
		if _, err := c.Process(context.Background(), validChunk()); err != nil {
			t.Fatalf("Process() unexpected error: %v", err)
		}
	}
	if len(warnings) != 2 {
		t.Fatalf("warnings = %d after re-arm, want 2", len(warnings))
	}
}

// Five quick fillers right after a valid transcript stay silent because the
// thirty-second quiet window has not elapsed.
func TestSilenceWarningRespectsQuietWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	var warnings int
	m := &sttmock.Transcriber{Results: []stt.Result{{Text: "ありがとうございました"}}}
	c := New(m,
		WithClock(clock),
		WithWarningHandler(func(string) { warnings++ }),
	)

	for i := 0; i < 6; i++ {
		now = now.Add(2 * time.Second)
		if _, err := c.Process(context.Background(), validChunk()); err != nil {
			t.Fatalf("Process() unexpected error: %v", err)
		}
	}
	if warnings != 0 {
		t.Errorf("warnings = %d inside quiet window, want 0", warnings)
	}
}

func TestResetClearsStreak(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	var warnings int
	m := &sttmock.Transcriber{Results: []stt.Result{{Text: "ありがとうございました"}}}
	c := New(m,
		WithClock(clock),
		WithWarningHandler(func(string) { warnings++ }),
	)

	for i := 0; i < 4; i++ {
		now = now.Add(20 * time.Second)
		if _, err := c.Process(context.Background(), validChunk()); err != nil {
			t.Fatalf("Process() unexpected error: %v", err)
		}
	}

	c.Reset()

	now = now.Add(40 * time.Second)
	if _, err := c.Process(context.Background(), validChunk()); err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}
	if warnings != 0 {
		t.Errorf("warnings = %d after Reset, want 0", warnings)
	}
}
