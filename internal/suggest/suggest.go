// Package suggest generates speech suggestions from the rolling meeting
// summary.
//
// The Engine maintains an active set of up to three proposals (提案) and
// three questions (質問). Each newly published summary runs a two-stage
// refresh:
//
//  1. Validation: the model reviews the active set against the new and the
//     previous summary and reports which suggestions still apply. When it
//     sees no need for new material and at least two suggestions carry
//     over, the refresh stops there and spares a generation call.
//  2. Generation: otherwise the model produces replacements, and the active
//     set becomes the valid carryovers plus new suggestions, capped per
//     kind. When the carryovers already fill both kinds, generation is
//     skipped too.
//
// Updates supersede each other: starting a refresh aborts the previous one's
// in-flight model call, and a completion that returns after a newer refresh
// has started is discarded. Saved and rejected suggestions are reported to
// the feedback store.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaigi-app/kaigi/internal/feedback"
	"github.com/kaigi-app/kaigi/internal/modeljson"
	"github.com/kaigi-app/kaigi/pkg/provider/llm"
	"github.com/kaigi-app/kaigi/pkg/types"
)

const (
	// targetPerKind is how many suggestions of each kind the engine keeps
	// active.
	targetPerKind = 3

	// minCarryover is the fewest surviving suggestions that allow the
	// validation stage to skip generation.
	minCarryover = 2

	generateTemperature = 0.7
	generateMaxTokens   = 1000
	validateTemperature = 0.3
	validateMaxTokens   = 500
)

// ErrSuperseded is returned by Update when a newer update started while this
// one was waiting on the model.
var ErrSuperseded = errors.New("suggest: update superseded")

// ErrNotActive is returned by Save and Reject when the suggestion is not in
// the active set.
var ErrNotActive = errors.New("suggest: suggestion not active")

// Option is a functional option for [New].
type Option func(*Engine)

// WithMeetingContext attaches meeting background included in every prompt.
func WithMeetingContext(mc types.MeetingContext) Option {
	return func(e *Engine) { e.meetingCtx = mc }
}

// WithSessionID tags feedback events with the session they belong to.
func WithSessionID(id string) Option {
	return func(e *Engine) { e.sessionID = id }
}

// Engine maintains the active and saved suggestion sets. All exported
// methods are safe for concurrent use.
type Engine struct {
	provider   llm.Provider
	recorder   feedback.Recorder
	meetingCtx types.MeetingContext
	sessionID  string

	mu         sync.Mutex
	active     []types.Suggestion
	saved      []types.Suggestion
	generation uint64
	lastSeen   time.Time
	prev       types.Summary
	cancel     context.CancelFunc
}

// New creates an Engine. recorder may be nil when feedback capture is
// disabled.
func New(provider llm.Provider, recorder feedback.Recorder, opts ...Option) *Engine {
	e := &Engine{provider: provider, recorder: recorder}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Active returns a copy of the current active suggestions.
func (e *Engine) Active() []types.Suggestion {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.Suggestion, len(e.active))
	copy(out, e.active)
	return out
}

// Saved returns a copy of the suggestions the user has saved.
func (e *Engine) Saved() []types.Suggestion {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.Suggestion, len(e.saved))
	copy(out, e.saved)
	return out
}

// Save moves an active suggestion to the saved set and records the feedback.
func (e *Engine) Save(id string) error {
	e.mu.Lock()
	s, ok := e.remove(id)
	if ok {
		e.saved = append(e.saved, s)
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("save %s: %w", id, ErrNotActive)
	}
	e.record(s, feedback.ActionSaved)
	return nil
}

// Reject drops an active suggestion and records the feedback.
func (e *Engine) Reject(id string) error {
	e.mu.Lock()
	s, ok := e.remove(id)
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("reject %s: %w", id, ErrNotActive)
	}
	e.record(s, feedback.ActionRejected)
	return nil
}

// Update refreshes the active set against a newly published summary. A
// summary whose timestamp does not advance past the last one processed is
// ignored, so duplicate triggers cost nothing. It blocks for the model
// calls; callers run it from their own goroutine. A newer Update aborts
// this one, which then returns ErrSuperseded.
func (e *Engine) Update(ctx context.Context, summary types.Summary) error {
	if strings.TrimSpace(summary.Text) == "" {
		return nil
	}

	e.mu.Lock()
	if !summary.GeneratedAt.After(e.lastSeen) {
		e.mu.Unlock()
		return nil
	}
	e.lastSeen = summary.GeneratedAt
	prev := e.prev
	e.prev = summary
	e.generation++
	gen := e.generation
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	carry := make([]types.Suggestion, len(e.active))
	copy(carry, e.active)
	e.mu.Unlock()
	defer cancel()

	// Stage 1: with an existing active set, ask the model what survives.
	needsUpdate := true
	if len(carry) > 0 {
		var err error
		carry, needsUpdate, err = e.validate(ctx, summary.Text, prev.Text, carry)
		if err != nil {
			return err
		}
		if !e.live(gen) {
			return ErrSuperseded
		}
		if !needsUpdate && len(carry) >= minCarryover {
			e.commit(gen, carry)
			slog.Debug("suggestion refresh short-circuited", "carryover", len(carry))
			return nil
		}
	}

	// Stage 2: generate replacements for what the discussion moved past.
	// A full carryover set needs nothing generated.
	needProposals, needQuestions := deficits(carry)
	if needProposals == 0 && needQuestions == 0 {
		e.commit(gen, carry)
		slog.Debug("suggestion set already full, skipping generation")
		return nil
	}
	fresh, err := e.generate(ctx, summary.Text, carry, needProposals, needQuestions)
	if err != nil {
		return err
	}
	if !e.live(gen) {
		return ErrSuperseded
	}

	e.commit(gen, mergeSuggestions(carry, fresh))
	return nil
}

// deficits reports how many suggestions of each kind are missing from the
// per-kind target.
func deficits(carry []types.Suggestion) (proposals, questions int) {
	p, q := 0, 0
	for _, s := range carry {
		switch s.Kind {
		case types.SuggestionProposal:
			p++
		case types.SuggestionQuestion:
			q++
		}
	}
	return max(targetPerKind-p, 0), max(targetPerKind-q, 0)
}

// Stop aborts any in-flight refresh.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++ // invalidate in-flight results
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// remove unlinks id from the active set. Caller holds e.mu.
func (e *Engine) remove(id string) (types.Suggestion, bool) {
	for i, s := range e.active {
		if s.ID == id {
			e.active = append(e.active[:i], e.active[i+1:]...)
			return s, true
		}
	}
	return types.Suggestion{}, false
}

// live reports whether gen is still the newest refresh.
func (e *Engine) live(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return gen == e.generation
}

// commit installs the new active set if gen is still the newest refresh.
func (e *Engine) commit(gen uint64, active []types.Suggestion) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return
	}
	e.active = active
}

func (e *Engine) record(s types.Suggestion, action feedback.Action) {
	if e.recorder == nil {
		return
	}
	err := e.recorder.Record(feedback.Event{
		SessionID:    e.sessionID,
		SuggestionID: s.ID,
		Kind:         s.Kind,
		Text:         s.Text,
		Action:       action,
	})
	if err != nil {
		slog.Warn("recording suggestion feedback failed", "error", err)
	}
}

// validationResult is the Stage 1 response shape.
type validationResult struct {
	NeedsUpdate bool     `json:"needs_update"`
	ValidIDs    []string `json:"valid_ids"`
}

// validate asks the model which active suggestions still fit the discussion,
// given the new summary and the one before it.
func (e *Engine) validate(ctx context.Context, newSummary, prevSummary string, active []types.Suggestion) ([]types.Suggestion, bool, error) {
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: validateSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: e.buildValidatePrompt(newSummary, prevSummary, active)},
		},
		Temperature: validateTemperature,
		MaxTokens:   validateMaxTokens,
	})
	if err != nil {
		return nil, false, fmt.Errorf("suggest: validate: %w", err)
	}

	var result validationResult
	if err := modeljson.Unmarshal(resp.Content, &result); err != nil {
		// An unparseable verdict means we cannot trust any carryover.
		slog.Warn("suggestion validation response unparseable, regenerating all", "error", err)
		return nil, true, nil
	}

	validSet := make(map[string]bool, len(result.ValidIDs))
	for _, id := range result.ValidIDs {
		validSet[id] = true
	}
	var carry []types.Suggestion
	for _, s := range active {
		if validSet[s.ID] {
			carry = append(carry, s)
		}
	}
	return carry, result.NeedsUpdate, nil
}

// generatedSuggestion is the Stage 2 response element shape.
type generatedSuggestion struct {
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context"`
	Reasoning  string  `json:"reasoning"`
}

// generate asks the model for new suggestions to refill the active set.
func (e *Engine) generate(ctx context.Context, summary string, carry []types.Suggestion, needProposals, needQuestions int) ([]types.Suggestion, error) {
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: generateSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: e.buildGeneratePrompt(summary, carry, needProposals, needQuestions)},
		},
		Temperature: generateTemperature,
		MaxTokens:   generateMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("suggest: generate: %w", err)
	}

	var raw []generatedSuggestion
	if err := modeljson.Unmarshal(resp.Content, &raw); err != nil {
		return nil, fmt.Errorf("suggest: parse generation response: %w", err)
	}

	now := time.Now()
	var out []types.Suggestion
	for _, g := range raw {
		kind := types.SuggestionKind(g.Type)
		text := strings.TrimSpace(g.Text)
		if text == "" || !kind.IsValid() {
			slog.Debug("dropping malformed generated suggestion", "type", g.Type, "text", g.Text)
			continue
		}
		out = append(out, types.Suggestion{
			ID:         uuid.NewString(),
			Text:       text,
			Kind:       kind,
			Confidence: g.Confidence,
			Context:    strings.TrimSpace(g.Context),
			Reasoning:  strings.TrimSpace(g.Reasoning),
			CreatedAt:  now,
		})
	}
	return out, nil
}

// mergeSuggestions combines carryovers with fresh suggestions, keeping at
// most targetPerKind of each kind. Carryovers win ties.
func mergeSuggestions(carry, fresh []types.Suggestion) []types.Suggestion {
	counts := map[types.SuggestionKind]int{}
	var out []types.Suggestion
	for _, s := range carry {
		if counts[s.Kind] < targetPerKind {
			out = append(out, s)
			counts[s.Kind]++
		}
	}
	for _, s := range fresh {
		if counts[s.Kind] < targetPerKind {
			out = append(out, s)
			counts[s.Kind]++
		}
	}
	return out
}
