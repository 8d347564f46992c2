package meeting

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kaigi-app/kaigi/internal/feedback"
	"github.com/kaigi-app/kaigi/internal/suggest"
	"github.com/kaigi-app/kaigi/pkg/audio"
	audiomock "github.com/kaigi-app/kaigi/pkg/audio/mock"
	llmprovider "github.com/kaigi-app/kaigi/pkg/provider/llm"
	llmmock "github.com/kaigi-app/kaigi/pkg/provider/llm/mock"
	"github.com/kaigi-app/kaigi/pkg/provider/stt"
	sttmock "github.com/kaigi-app/kaigi/pkg/provider/stt/mock"
	storemock "github.com/kaigi-app/kaigi/pkg/store/mock"
	"github.com/kaigi-app/kaigi/pkg/types"
)

// memRecorder collects feedback events in memory.
type memRecorder struct {
	mu     sync.Mutex
	events []feedback.Event
}

func (r *memRecorder) Record(e feedback.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// pushAudio delivers roughly one chunk period of 10ms PCM frames.
func pushAudio(stream *audiomock.Stream, frames int) {
	data := make([]byte, 320)
	for i := range data {
		data[i] = byte(i)
	}
	for i := 0; i < frames; i++ {
		stream.Push(audio.Frame{Data: data, SampleRate: 16000, Channels: 1})
	}
}

// testSession builds a session around mocks with a fast chunk cycle.
func testSession(t *testing.T, cfg Config) (*Session, *audiomock.Stream) {
	t.Helper()
	stream := audiomock.NewStream("Built-in Microphone")
	if cfg.Source == nil {
		cfg.Source = &audiomock.Source{AcquireResult: stream}
	}
	if cfg.Transcriber == nil {
		cfg.Transcriber = &sttmock.Transcriber{
			Results: []stt.Result{{Text: "これはテスト発言です", Language: "ja"}},
		}
	}
	if cfg.ChunkPeriod == 0 {
		cfg.ChunkPeriod = 100 * time.Millisecond
	}
	if cfg.MinFlushBytes == 0 {
		cfg.MinFlushBytes = 1
	}
	if cfg.MinChunkBytes == 0 {
		cfg.MinChunkBytes = 1
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, stream
}

func waitForEntries(t *testing.T, entries <-chan types.TranscriptEntry, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-entries:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for transcript entry %d of %d", i+1, n)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	entries := make(chan types.TranscriptEntry, 16)
	s, stream := testSession(t, Config{
		OnEntry: func(e types.TranscriptEntry) { entries <- e },
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pushAudio(stream, 12)
	waitForEntries(t, entries, 1)

	rec, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if rec.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", rec.Status)
	}
	if len(rec.Transcriptions) == 0 {
		t.Error("expected at least one transcription")
	}
	if rec.Transcriptions[0].Text != "これはテスト発言です" {
		t.Errorf("transcript text = %q", rec.Transcriptions[0].Text)
	}
	if rec.Transcriptions[0].Speaker != "自分" {
		t.Errorf("speaker = %q, want 自分 for microphone capture", rec.Transcriptions[0].Speaker)
	}
	if !strings.HasPrefix(rec.Title, "会議 ") {
		t.Errorf("default title = %q", rec.Title)
	}
	if rec.EndedAt.Before(rec.StartedAt) {
		t.Error("EndedAt before StartedAt")
	}
}

func TestSessionPersistsCompletedRecord(t *testing.T) {
	db := storemock.New()
	model := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, req llmprovider.CompletionRequest) (*llmprovider.CompletionResponse, error) {
			if strings.Contains(req.SystemPrompt, "抽出") {
				return &llmprovider.CompletionResponse{
					Content: `{"decisions":[{"text":"予算を承認する"}],"action_items":[{"text":"見積もりを送る","assignee":"田中"}]}`,
				}, nil
			}
			return &llmprovider.CompletionResponse{Content: "会議の要約です。"}, nil
		},
	}
	entries := make(chan types.TranscriptEntry, 16)
	s, stream := testSession(t, Config{
		LLM:   model,
		Store: db,
		Meeting: types.MeetingContext{
			Title:        "四半期レビュー",
			Participants: []string{"田中", "鈴木"},
			Materials:    []types.Material{{ID: "m1", Name: "予算案", Content: "..."}},
		},
		OnEntry: func(e types.TranscriptEntry) { entries <- e },
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pushAudio(stream, 12)
	waitForEntries(t, entries, 1)

	rec, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if db.Len() != 1 {
		t.Fatalf("stored sessions = %d, want 1", db.Len())
	}
	if rec.Title != "四半期レビュー" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.ParticipantCount != 2 {
		t.Errorf("participant count = %d, want 2", rec.ParticipantCount)
	}
	if !rec.HasMaterials {
		t.Error("expected HasMaterials")
	}
	if rec.Summary == nil || rec.Summary.Text != "会議の要約です。" {
		t.Errorf("summary = %+v", rec.Summary)
	}
	if !rec.HasSummary {
		t.Error("expected HasSummary")
	}
	if len(rec.Decisions) != 1 || rec.Decisions[0].Text != "予算を承認する" {
		t.Errorf("decisions = %+v", rec.Decisions)
	}
	if len(rec.ActionItems) != 1 || rec.ActionItems[0].Assignee != "田中" {
		t.Errorf("action items = %+v", rec.ActionItems)
	}
	if rec.Context == nil || rec.Context.Title != "四半期レビュー" {
		t.Errorf("context = %+v", rec.Context)
	}
}

func TestSessionAbortSkipsFinalization(t *testing.T) {
	model := &llmmock.Provider{Responses: []string{"should not be called"}}
	db := storemock.New()
	entries := make(chan types.TranscriptEntry, 16)
	s, stream := testSession(t, Config{
		LLM:     model,
		Store:   db,
		OnEntry: func(e types.TranscriptEntry) { entries <- e },
		// Long summary interval so no tick fires during the test.
		SummaryInterval: time.Hour,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pushAudio(stream, 12)
	waitForEntries(t, entries, 1)

	rec, err := s.Abort(context.Background())
	if err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if rec.Status != StatusAborted {
		t.Errorf("status = %q, want aborted", rec.Status)
	}
	if model.CallCount() != 0 {
		t.Errorf("llm calls = %d, want 0", model.CallCount())
	}
	if rec.Summary != nil {
		t.Error("aborted session should have no summary")
	}
	if db.Len() != 1 {
		t.Errorf("stored sessions = %d, want 1", db.Len())
	}
	if len(rec.Transcriptions) == 0 {
		t.Error("aborted session should keep its transcript")
	}
}

func TestSessionSuggestionFlow(t *testing.T) {
	model := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, req llmprovider.CompletionRequest) (*llmprovider.CompletionResponse, error) {
			if strings.Contains(req.SystemPrompt, "生成") {
				return &llmprovider.CompletionResponse{
					Content: `[{"text":"コスト削減案を深掘りしては","type":"提案","confidence":0.9}]`,
				}, nil
			}
			return &llmprovider.CompletionResponse{Content: "会議の要約です。"}, nil
		},
	}
	fb := &memRecorder{}
	engine := suggest.New(model, fb, suggest.WithSessionID("test-session"))

	refreshed := make(chan []types.Suggestion, 16)
	entries := make(chan types.TranscriptEntry, 16)
	s, stream := testSession(t, Config{
		LLM:              model,
		SuggestionEngine: engine,
		// Short interval so a published summary triggers the refresh.
		SummaryInterval: 150 * time.Millisecond,
		OnEntry:         func(e types.TranscriptEntry) { entries <- e },
		OnSuggestions:   func(sug []types.Suggestion) { refreshed <- sug },
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pushAudio(stream, 12)
	waitForEntries(t, entries, 1)

	var active []types.Suggestion
	select {
	case active = <-refreshed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for suggestion refresh")
	}
	if len(active) != 1 {
		t.Fatalf("active suggestions = %d, want 1", len(active))
	}

	if err := s.SaveSuggestion(active[0].ID); err != nil {
		t.Fatalf("SaveSuggestion: %v", err)
	}
	saved := s.SavedSuggestions()
	if len(saved) != 1 || saved[0].Kind != types.SuggestionProposal {
		t.Errorf("saved = %+v", saved)
	}

	fb.mu.Lock()
	events := len(fb.events)
	fb.mu.Unlock()
	if events != 1 {
		t.Errorf("feedback events = %d, want 1", events)
	}

	if _, err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestSessionStopWithoutStart(t *testing.T) {
	s, _ := testSession(t, Config{})
	if _, err := s.Stop(context.Background()); err != ErrNotRunning {
		t.Fatalf("Stop = %v, want ErrNotRunning", err)
	}
}

func TestSessionPauseResume(t *testing.T) {
	entries := make(chan types.TranscriptEntry, 16)
	s, stream := testSession(t, Config{
		OnEntry: func(e types.TranscriptEntry) { entries <- e },
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	pushAudio(stream, 12)
	waitForEntries(t, entries, 1)
	if _, err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// While paused, no summary cycles run and no suggestion refreshes fire;
// resuming brings them back.
func TestSessionPauseStopsSummaries(t *testing.T) {
	model := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, req llmprovider.CompletionRequest) (*llmprovider.CompletionResponse, error) {
			return &llmprovider.CompletionResponse{Content: "会議の要約です。"}, nil
		},
	}
	summaries := make(chan types.Summary, 16)
	entries := make(chan types.TranscriptEntry, 16)
	s, stream := testSession(t, Config{
		LLM:             model,
		SummaryInterval: 150 * time.Millisecond,
		OnEntry:         func(e types.TranscriptEntry) { entries <- e },
		OnSummary:       func(sum types.Summary) { summaries <- sum },
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pushAudio(stream, 12)
	waitForEntries(t, entries, 1)

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	// Let a cycle claimed just before the pause land, then drain.
	time.Sleep(100 * time.Millisecond)
	for {
		select {
		case <-summaries:
			continue
		default:
		}
		break
	}

	time.Sleep(500 * time.Millisecond)
	select {
	case sum := <-summaries:
		t.Fatalf("summary published while paused: %+v", sum)
	default:
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	pushAudio(stream, 12)
	waitForEntries(t, entries, 1)
	select {
	case <-summaries:
	case <-time.After(5 * time.Second):
		t.Fatal("no summary after resume")
	}

	if _, err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestSessionRequiresSourceAndTranscriber(t *testing.T) {
	if _, err := New(Config{Transcriber: &sttmock.Transcriber{}}); err == nil {
		t.Error("expected error without capture source")
	}
	if _, err := New(Config{Source: &audiomock.Source{}}); err == nil {
		t.Error("expected error without transcriber")
	}
}

func TestTranscriptLog(t *testing.T) {
	t.Parallel()
	log := NewTranscriptLog()
	for i := 0; i < 3; i++ {
		log.Append(types.TranscriptEntry{ID: string(rune('a' + i))})
	}
	if log.Len() != 3 {
		t.Fatalf("len = %d, want 3", log.Len())
	}
	snap := log.Snapshot()
	snap[0].ID = "mutated"
	if log.Snapshot()[0].ID != "a" {
		t.Error("snapshot must be a copy")
	}
}
