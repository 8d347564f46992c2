// Package meeting wires the recording, transcription, suggestion, and summary
// subsystems into a running meeting session.
//
// The Session struct owns the full lifecycle: New creates and connects all
// subsystems, Start begins capture, and Stop tears everything down in order
// and persists the finished session.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaigi-app/kaigi/internal/extract"
	"github.com/kaigi-app/kaigi/internal/observe"
	"github.com/kaigi-app/kaigi/internal/recorder"
	"github.com/kaigi-app/kaigi/internal/suggest"
	"github.com/kaigi-app/kaigi/internal/summarize"
	"github.com/kaigi-app/kaigi/internal/transcribe"
	"github.com/kaigi-app/kaigi/pkg/audio"
	"github.com/kaigi-app/kaigi/pkg/provider/llm"
	"github.com/kaigi-app/kaigi/pkg/provider/stt"
	"github.com/kaigi-app/kaigi/pkg/store"
	"github.com/kaigi-app/kaigi/pkg/types"
)

// Session status values persisted in [store.Record].
const (
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// ErrNotRunning is returned by Stop and Abort when the session never started.
var ErrNotRunning = errors.New("meeting: session is not running")

// Config collects the collaborators and tuning for a session. Source and
// Transcriber are required; everything else degrades gracefully when absent.
type Config struct {
	// Source acquires audio streams. Required.
	Source audio.CaptureSource

	// Transcriber turns audio chunks into text. Required.
	Transcriber stt.Transcriber

	// LLM powers suggestions, summaries, and extraction. Nil disables all three.
	LLM llm.Provider

	// Store persists finished sessions. Nil disables persistence.
	Store store.Store

	// Meeting describes the meeting to the model prompts.
	Meeting types.MeetingContext

	// Sources lists the capture sources to record. Empty means microphone only.
	Sources []audio.SourceKind

	// SuggestionEngine handles suggestion refresh. Nil disables suggestions.
	SuggestionEngine *suggest.Engine

	ChunkPeriod     time.Duration
	MinFlushBytes   int
	MinChunkBytes   int
	SummaryInterval time.Duration

	// LevelListener receives normalised input levels in [0, 1]. Optional.
	LevelListener func(level float64)

	// OnEntry is called for every transcript entry in log order. Optional.
	OnEntry func(types.TranscriptEntry)

	// OnWarning receives user-facing warnings such as repeated silence. Optional.
	OnWarning func(msg string)

	// OnSuggestions receives the active suggestion set after each refresh. Optional.
	OnSuggestions func([]types.Suggestion)

	// OnSummary receives each regenerated summary. Optional.
	OnSummary func(types.Summary)

	// OnFatal is called when capture fails and the session cannot continue. Optional.
	OnFatal func(error)
}

// Session coordinates one meeting recording from start to persisted record.
type Session struct {
	id  string
	cfg Config

	log       *TranscriptLog
	recorders []*recorder.Recorder
	kinds     []audio.SourceKind
	monitor   *audio.LevelMonitor
	suggester *suggest.Engine
	scheduler *summarize.Scheduler

	mu          sync.Mutex
	running     bool
	paused      bool
	startedAt   time.Time
	summaryStop context.CancelFunc
	summaryDone chan struct{}
	lastSummary *types.Summary
	suggestWG   sync.WaitGroup
}

// New creates a session from cfg. The session does not capture anything
// until Start is called.
func New(cfg Config) (*Session, error) {
	if cfg.Source == nil {
		return nil, errors.New("meeting: capture source is required")
	}
	if cfg.Transcriber == nil {
		return nil, errors.New("meeting: transcriber is required")
	}

	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		log:       NewTranscriptLog(),
		suggester: cfg.SuggestionEngine,
	}

	s.kinds = cfg.Sources
	if len(s.kinds) == 0 {
		s.kinds = []audio.SourceKind{audio.SourceMicrophone}
	}

	if cfg.LevelListener != nil {
		s.monitor = audio.NewLevelMonitor(cfg.LevelListener)
	}

	for _, kind := range s.kinds {
		s.recorders = append(s.recorders, s.buildRecorder(kind))
	}

	if cfg.LLM != nil {
		sumOpts := []summarize.Option{summarize.WithMeetingContext(cfg.Meeting)}
		if cfg.SummaryInterval > 0 {
			sumOpts = append(sumOpts, summarize.WithInterval(cfg.SummaryInterval))
		}
		s.scheduler = summarize.New(cfg.LLM, s.log.Snapshot, s.publishSummary, sumOpts...)
	}

	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Transcript returns a snapshot of the transcript so far.
func (s *Session) Transcript() []types.TranscriptEntry { return s.log.Snapshot() }

// Summary returns the most recent summary, nil before the first cycle.
func (s *Session) Summary() *types.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSummary
}

// Suggestions returns the currently active suggestion set.
func (s *Session) Suggestions() []types.Suggestion {
	if s.suggester == nil {
		return nil
	}
	return s.suggester.Active()
}

// SavedSuggestions returns the suggestions the user marked as saved.
func (s *Session) SavedSuggestions() []types.Suggestion {
	if s.suggester == nil {
		return nil
	}
	return s.suggester.Saved()
}

// SaveSuggestion marks the active suggestion with the given ID as saved.
func (s *Session) SaveSuggestion(id string) error {
	if s.suggester == nil {
		return suggest.ErrNotActive
	}
	return s.suggester.Save(id)
}

// RejectSuggestion removes the active suggestion with the given ID.
func (s *Session) RejectSuggestion(id string) error {
	if s.suggester == nil {
		return suggest.ErrNotActive
	}
	return s.suggester.Reject(id)
}

// Elapsed returns total recorded time, excluding pauses.
func (s *Session) Elapsed() time.Duration {
	if len(s.recorders) == 0 {
		return 0
	}
	return s.recorders[0].Elapsed()
}

// buildRecorder assembles the capture-to-transcript chain for one source kind.
// Each recorder gets its own transcription client; the client tracks
// per-source filler streaks and is not safe for concurrent submitters.
func (s *Session) buildRecorder(kind audio.SourceKind) *recorder.Recorder {
	tOpts := []transcribe.Option{transcribe.WithSpeaker(speakerLabel(kind))}
	if s.cfg.MinChunkBytes > 0 {
		tOpts = append(tOpts, transcribe.WithMinChunkBytes(s.cfg.MinChunkBytes))
	}
	if s.cfg.OnWarning != nil && kind == audio.SourceMicrophone {
		tOpts = append(tOpts, transcribe.WithWarningHandler(s.cfg.OnWarning))
	}
	client := transcribe.New(s.cfg.Transcriber, tOpts...)

	rOpts := []recorder.Option{
		recorder.WithEntryHandler(s.handleEntry),
		recorder.WithFatalHandler(func(err error) { s.handleFatal(kind, err) }),
	}
	if s.cfg.ChunkPeriod > 0 {
		rOpts = append(rOpts, recorder.WithChunkPeriod(s.cfg.ChunkPeriod))
	}
	if s.cfg.MinFlushBytes > 0 {
		rOpts = append(rOpts, recorder.WithMinFlushBytes(s.cfg.MinFlushBytes))
	}
	if s.monitor != nil {
		rOpts = append(rOpts, recorder.WithLevelMonitor(s.monitor))
	}
	return recorder.New(s.cfg.Source, client, rOpts...)
}

// speakerLabel maps a capture source to the transcript speaker label:
// microphone audio is the user's own voice, loopback is the other side.
func speakerLabel(kind audio.SourceKind) string {
	switch kind {
	case audio.SourceMicrophone:
		return "自分"
	case audio.SourceLoopback:
		return "相手"
	default:
		return ""
	}
}

// Start acquires all configured sources and begins the chunked recording
// cycle. Already-started recorders are stopped again if a later one fails.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return recorder.ErrInvalidState
	}
	s.mu.Unlock()

	for i, rec := range s.recorders {
		if err := rec.Start(ctx, s.kinds[i]); err != nil {
			for _, started := range s.recorders[:i] {
				started.Stop()
			}
			return fmt.Errorf("meeting: start %s capture: %w", s.kinds[i], err)
		}
		slog.Info("capture started", "session", s.id, "source", s.kinds[i])
	}

	s.mu.Lock()
	s.running = true
	s.startedAt = time.Now()
	if s.scheduler != nil {
		runCtx, cancel := context.WithCancel(context.Background())
		s.summaryStop = cancel
		s.summaryDone = make(chan struct{})
		go func() {
			defer close(s.summaryDone)
			s.scheduler.Run(runCtx)
		}()
	}
	s.mu.Unlock()

	observe.DefaultMetrics().ActiveRecordings.Add(ctx, 1)
	return nil
}

// Pause suspends chunking on all recorders and stops the summary schedule.
// In-flight chunks are finalized at the boundary.
func (s *Session) Pause() error {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()

	for _, rec := range s.recorders {
		if err := rec.Pause(); err != nil {
			return err
		}
	}
	if s.scheduler != nil {
		s.scheduler.Pause()
	}
	return nil
}

// Resume continues a paused session. The summary schedule restarts with a
// fresh interval.
func (s *Session) Resume() error {
	for _, rec := range s.recorders {
		if err := rec.Resume(); err != nil {
			return err
		}
	}
	if s.scheduler != nil {
		s.scheduler.Resume()
	}

	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	return nil
}

// Stop ends the session normally: recorders flush their partial chunks, the
// suggestion engine is stopped, a final summary is generated, decisions and
// action items are extracted, and the session is persisted with status
// "completed". The returned record is also returned when persistence is
// disabled.
func (s *Session) Stop(ctx context.Context) (*store.Record, error) {
	return s.finish(ctx, StatusCompleted)
}

// Abort ends the session after an unrecoverable failure. No final summary or
// extraction is attempted; what was transcribed so far is persisted with
// status "aborted".
func (s *Session) Abort(ctx context.Context) (*store.Record, error) {
	return s.finish(ctx, StatusAborted)
}

func (s *Session) finish(ctx context.Context, status string) (*store.Record, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, ErrNotRunning
	}
	s.running = false
	startedAt := s.startedAt
	s.mu.Unlock()

	duration := s.Elapsed()
	for i, rec := range s.recorders {
		if err := rec.Stop(); err != nil && !errors.Is(err, recorder.ErrInvalidState) {
			slog.Warn("recorder stop failed", "session", s.id, "source", s.kinds[i], "err", err)
		}
	}
	duration = max(duration, s.Elapsed())

	if s.suggester != nil {
		s.suggester.Stop()
	}
	s.suggestWG.Wait()

	s.mu.Lock()
	if s.summaryStop != nil {
		s.summaryStop()
		s.summaryStop = nil
	}
	done := s.summaryDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}

	if s.monitor != nil {
		s.monitor.Close()
	}

	rec := store.Record{
		ID:               s.id,
		Title:            s.cfg.Meeting.Title,
		Status:           status,
		StartedAt:        startedAt,
		EndedAt:          time.Now(),
		Duration:         duration,
		ParticipantCount: len(s.cfg.Meeting.Participants),
		HasMaterials:     len(s.cfg.Meeting.Materials) > 0,
		Transcriptions:   s.log.Snapshot(),
	}
	if rec.Title == "" {
		rec.Title = "会議 " + startedAt.Format("2006-01-02 15:04")
	}
	if !s.cfg.Meeting.IsEmpty() {
		mc := s.cfg.Meeting
		rec.Context = &mc
	}

	if status == StatusCompleted {
		s.finalize(ctx, &rec)
	} else if latest := s.Summary(); latest != nil {
		rec.Summary = latest
		rec.HasSummary = true
	}

	if s.suggester != nil {
		saved := s.suggester.Saved()
		slog.Info("session finished", "session", s.id, "status", status,
			"entries", len(rec.Transcriptions), "saved_suggestions", len(saved))
	}

	observe.DefaultMetrics().ActiveRecordings.Add(ctx, -1)

	if s.cfg.Store != nil {
		if err := s.cfg.Store.Save(ctx, rec); err != nil {
			return &rec, fmt.Errorf("meeting: persist session: %w", err)
		}
	}
	return &rec, nil
}

// finalize produces the final summary and runs decision extraction. Failures
// degrade to warnings so a model outage cannot lose the transcript.
func (s *Session) finalize(ctx context.Context, rec *store.Record) {
	if s.scheduler != nil {
		// Flush publishes the accepted summary through publishSummary.
		if _, err := s.scheduler.Flush(ctx); err != nil {
			slog.Warn("final summary failed", "session", s.id, "err", err)
		}
	}
	if latest := s.Summary(); latest != nil {
		rec.Summary = latest
		rec.HasSummary = true
	}

	if s.cfg.LLM != nil && len(rec.Transcriptions) > 0 {
		result, err := extract.Run(ctx, s.cfg.LLM, rec.Transcriptions)
		if err != nil {
			slog.Warn("decision extraction failed", "session", s.id, "err", err)
		} else {
			rec.Decisions = result.Decisions
			rec.ActionItems = result.ActionItems
		}
	}
}

// handleEntry runs on a recorder's submit goroutine for every transcript
// entry. It appends to the log and notifies the listener.
func (s *Session) handleEntry(entry types.TranscriptEntry) {
	s.log.Append(entry)

	if s.cfg.OnEntry != nil {
		s.cfg.OnEntry(entry)
	}
}

// publishSummary records the latest summary, notifies the listener, and —
// while the session is recording — kicks off a suggestion refresh with it.
func (s *Session) publishSummary(summary types.Summary) {
	s.mu.Lock()
	s.lastSummary = &summary
	refresh := s.suggester != nil && s.running && !s.paused
	if refresh {
		// Registered under the lock so finish cannot pass its Wait between
		// the running check and the refresh starting.
		s.suggestWG.Add(1)
	}
	s.mu.Unlock()

	observe.DefaultMetrics().RecordSummaryCycle(context.Background(), "ok")
	if s.cfg.OnSummary != nil {
		s.cfg.OnSummary(summary)
	}

	if !refresh {
		return
	}
	go func() {
		defer s.suggestWG.Done()
		start := time.Now()
		err := s.suggester.Update(context.Background(), summary)
		observe.DefaultMetrics().SuggestionDuration.Record(context.Background(), time.Since(start).Seconds())
		switch {
		case err == nil:
			observe.DefaultMetrics().RecordSuggestionRefresh(context.Background(), "ok")
			if s.cfg.OnSuggestions != nil {
				s.cfg.OnSuggestions(s.suggester.Active())
			}
		case errors.Is(err, suggest.ErrSuperseded):
			observe.DefaultMetrics().RecordSuggestionRefresh(context.Background(), "superseded")
		default:
			observe.DefaultMetrics().RecordSuggestionRefresh(context.Background(), "error")
			slog.Warn("suggestion refresh failed", "session", s.id, "err", err)
		}
	}()
}

// handleFatal runs when a capture stream dies mid-session.
func (s *Session) handleFatal(kind audio.SourceKind, err error) {
	slog.Error("capture failed", "session", s.id, "source", kind, "err", err)
	if s.cfg.OnFatal != nil {
		s.cfg.OnFatal(fmt.Errorf("%s capture failed: %w", kind, err))
	}
}
