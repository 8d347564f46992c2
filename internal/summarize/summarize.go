// Package summarize maintains a rolling summary of the meeting transcript.
//
// A Scheduler wakes on a fixed interval, snapshots the transcript, and asks
// the LLM for an updated summary. Ticks are skipped while a generation is
// still in flight and when there is nothing new to summarise, so a slow
// model or a quiet meeting never queues redundant work. Published summaries
// are monotonic: a late result from an older snapshot is discarded rather
// than overwriting a newer one.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kaigi-app/kaigi/internal/observe"
	"github.com/kaigi-app/kaigi/pkg/provider/llm"
	"github.com/kaigi-app/kaigi/pkg/types"
)

const (
	// defaultInterval is the spacing between summary updates.
	defaultInterval = 2 * time.Minute

	summaryTemperature = 0.3
	summaryMaxTokens   = 1000
)

const systemPrompt = `あなたは会議の書記担当です。これまでの会議の文字起こしを読み、現時点までの要点を簡潔にまとめてください。

- 議論された主なトピックを箇条書きでまとめる
- 決定事項や合意点があれば明記する
- 未解決の論点があれば挙げる
- 推測や文字起こしにない情報を加えない

要約のみを出力してください。`

// Option is a functional option for [New].
type Option func(*Scheduler)

// WithInterval overrides the summary update interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithMeetingContext attaches meeting background that is included in every
// summary prompt.
func WithMeetingContext(mc types.MeetingContext) Option {
	return func(s *Scheduler) { s.meetingCtx = mc }
}

// Scheduler periodically regenerates the meeting summary.
type Scheduler struct {
	provider llm.Provider
	entries  func() []types.TranscriptEntry
	publish  func(types.Summary)

	interval   time.Duration
	meetingCtx types.MeetingContext
	resumed    chan struct{}

	mu             sync.Mutex
	inFlight       bool
	paused         bool
	lastSummarised int
	latest         *types.Summary
	lastSnapshotAt time.Time
}

// New creates a Scheduler. entries must return the transcript log in order;
// publish receives each accepted summary and must not block.
func New(provider llm.Provider, entries func() []types.TranscriptEntry, publish func(types.Summary), opts ...Option) *Scheduler {
	s := &Scheduler{
		provider: provider,
		entries:  entries,
		publish:  publish,
		interval: defaultInterval,
		resumed:  make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Latest returns the most recently accepted summary, or nil.
func (s *Scheduler) Latest() *types.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Run ticks until ctx is cancelled. Call it in its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.resumed:
			// A resumed recording gets a full interval before its first
			// summary, not the remainder of the pre-pause one.
			ticker.Reset(s.interval)
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Pause suspends scheduled summarization while the recording is paused.
// Flush is unaffected.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume restarts scheduled summarization with a fresh interval.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	select {
	case s.resumed <- struct{}{}:
	default:
	}
}

// Flush generates a final summary synchronously, regardless of the tick
// schedule. Used when the meeting stops. Returns the accepted summary, which
// may be a previous one when the transcript has not grown since.
func (s *Scheduler) Flush(ctx context.Context) (*types.Summary, error) {
	snapshot, at, ok := s.claim(true)
	if !ok {
		return s.Latest(), nil
	}
	if err := s.generate(ctx, snapshot, at); err != nil {
		return s.Latest(), err
	}
	return s.Latest(), nil
}

// tick starts one background generation when the transcript has grown and
// no generation is in flight.
func (s *Scheduler) tick(ctx context.Context) {
	snapshot, at, ok := s.claim(false)
	if !ok {
		return
	}
	go func() {
		if err := s.generate(ctx, snapshot, at); err != nil {
			slog.Error("summary generation failed", "error", err)
		}
	}()
}

// claim snapshots the transcript and marks a generation in flight. It
// returns ok=false when a generation is already running, when the transcript
// is empty, or (unless force) when the recording is paused or nothing was
// added since the last summary.
func (s *Scheduler) claim(force bool) ([]types.TranscriptEntry, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused && !force {
		slog.Debug("summary tick skipped, recording paused")
		return nil, time.Time{}, false
	}
	if s.inFlight {
		slog.Debug("summary tick skipped, generation in flight")
		return nil, time.Time{}, false
	}
	snapshot := s.entries()
	if len(snapshot) == 0 {
		slog.Debug("summary tick skipped, empty transcript")
		return nil, time.Time{}, false
	}
	if !force && len(snapshot) == s.lastSummarised {
		slog.Debug("summary tick skipped, no new transcript entries")
		return nil, time.Time{}, false
	}
	s.inFlight = true
	return snapshot, time.Now(), true
}

// generate runs one summary completion for the given snapshot and publishes
// the result if it is still the newest.
func (s *Scheduler) generate(ctx context.Context, snapshot []types.TranscriptEntry, at time.Time) error {
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	start := time.Now()
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: s.buildPrompt(snapshot)},
		},
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
	observe.DefaultMetrics().SummaryDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("summarize: completion: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return fmt.Errorf("summarize: model returned empty summary")
	}

	summary := types.Summary{
		Text:            text,
		GeneratedAt:     time.Now(),
		TranscriptCount: len(snapshot),
	}

	s.mu.Lock()
	if at.Before(s.lastSnapshotAt) {
		s.mu.Unlock()
		slog.Debug("discarding stale summary", "snapshot_at", at)
		return nil
	}
	s.lastSnapshotAt = at
	s.lastSummarised = len(snapshot)
	s.latest = &summary
	s.mu.Unlock()

	if s.publish != nil {
		s.publish(summary)
	}
	slog.Info("summary updated", "entries", len(snapshot), "chars", len(text))
	return nil
}

// buildPrompt renders the meeting context and transcript into the user
// message.
func (s *Scheduler) buildPrompt(snapshot []types.TranscriptEntry) string {
	var b strings.Builder

	if !s.meetingCtx.IsEmpty() {
		b.WriteString("## 会議情報\n")
		if s.meetingCtx.Title != "" {
			fmt.Fprintf(&b, "タイトル: %s\n", s.meetingCtx.Title)
		}
		if s.meetingCtx.BackgroundInfo != "" {
			fmt.Fprintf(&b, "背景: %s\n", s.meetingCtx.BackgroundInfo)
		}
		if len(s.meetingCtx.Agenda) > 0 {
			fmt.Fprintf(&b, "アジェンダ: %s\n", strings.Join(s.meetingCtx.Agenda, " / "))
		}
		if len(s.meetingCtx.Participants) > 0 {
			fmt.Fprintf(&b, "参加者: %s\n", strings.Join(s.meetingCtx.Participants, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("## 文字起こし\n")
	for _, e := range snapshot {
		if e.Speaker != "" {
			fmt.Fprintf(&b, "[%s] %s: %s\n", e.Timestamp.Format("15:04:05"), e.Speaker, e.Text)
		} else {
			fmt.Fprintf(&b, "[%s] %s\n", e.Timestamp.Format("15:04:05"), e.Text)
		}
	}
	return b.String()
}
