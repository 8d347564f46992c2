// Package types defines the shared types used across all kaigi packages.
//
// These types form the lingua franca between the recorder, the transcription
// pipeline, the suggestion and summary engines, and the session store. They
// are intentionally minimal — each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
//
// JSON tags follow the camelCase convention of the session store's JSONB
// payloads, so a stored session round-trips without field mapping.
package types

import "time"

// TranscriptEntry is one transcribed audio chunk appended to the session
// transcript log.
type TranscriptEntry struct {
	// ID uniquely identifies the entry (UUID).
	ID string `json:"id"`

	// Text is the transcribed speech, whitespace-trimmed.
	Text string `json:"text"`

	// Speaker labels who the audio came from, derived from the capture
	// source: 自分 for the microphone, 相手 for loopback. Empty when the
	// source is unknown.
	Speaker string `json:"speaker,omitempty"`

	// Timestamp is when the chunk's transcription completed.
	Timestamp time.Time `json:"timestamp"`

	// Duration is the audio length of the source chunk.
	Duration time.Duration `json:"duration,omitempty"`

	// Language is the language the transcriber reported, when known.
	Language string `json:"language,omitempty"`
}

// SuggestionKind classifies a speech suggestion.
type SuggestionKind string

// The two suggestion kinds the engine produces. The literal values appear
// verbatim in model prompts and responses.
const (
	SuggestionProposal SuggestionKind = "提案"
	SuggestionQuestion SuggestionKind = "質問"
)

// IsValid reports whether k is a known suggestion kind.
func (k SuggestionKind) IsValid() bool {
	return k == SuggestionProposal || k == SuggestionQuestion
}

// Suggestion is one candidate utterance the assistant proposes to the user
// during a meeting.
type Suggestion struct {
	// ID uniquely identifies the suggestion (UUID).
	ID string `json:"id"`

	// Text is the suggested utterance, phrased for the user to speak.
	Text string `json:"text"`

	// Kind is 提案 (proposal) or 質問 (question).
	Kind SuggestionKind `json:"type"`

	// Confidence is the model's self-reported relevance score (0.0–1.0).
	Confidence float64 `json:"confidence"`

	// Context is the transcript excerpt the suggestion responds to.
	Context string `json:"context,omitempty"`

	// Reasoning is the model's one-line rationale for offering it.
	Reasoning string `json:"reasoning,omitempty"`

	// CreatedAt is when the suggestion was generated.
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Summary is a rolling meeting summary produced by the summary scheduler.
type Summary struct {
	// Text is the summary content.
	Text string `json:"text"`

	// GeneratedAt is when the summary was produced.
	GeneratedAt time.Time `json:"generatedAt"`

	// TranscriptCount is how many transcript entries the summary covers.
	TranscriptCount int `json:"transcriptCount"`
}

// Material is a reference document attached to the meeting context.
type Material struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// MeetingContext is the user-provided background for a meeting. All fields
// are optional; the suggestion and summary prompts include whatever is set.
type MeetingContext struct {
	// Title is the meeting title.
	Title string `json:"title,omitempty"`

	// BackgroundInfo is free-form context about the meeting's purpose.
	BackgroundInfo string `json:"backgroundInfo,omitempty"`

	// Agenda lists the planned discussion items in order.
	Agenda []string `json:"agenda,omitempty"`

	// Participants lists attendee names or roles.
	Participants []string `json:"participants,omitempty"`

	// Materials are reference documents to ground suggestions on.
	Materials []Material `json:"materials,omitempty"`
}

// IsEmpty reports whether no context field is set.
func (c MeetingContext) IsEmpty() bool {
	return c.Title == "" && c.BackgroundInfo == "" &&
		len(c.Agenda) == 0 && len(c.Participants) == 0 && len(c.Materials) == 0
}

// Decision is one decision extracted from a finished meeting.
type Decision struct {
	// ID uniquely identifies the decision (UUID).
	ID string `json:"id"`

	// Text states what was decided.
	Text string `json:"text"`
}

// ActionItem is one follow-up task extracted from a finished meeting.
type ActionItem struct {
	// ID uniquely identifies the action item (UUID).
	ID string `json:"id"`

	// Text states the task.
	Text string `json:"text"`

	// Assignee is the responsible person, when the discussion named one.
	Assignee string `json:"assignee,omitempty"`

	// DueDate is the deadline, when the discussion named one.
	DueDate string `json:"dueDate,omitempty"`
}
