// Package extract pulls decisions and action items out of a finished
// meeting's transcript.
//
// Extraction runs once, when the meeting stops, and its output lands in the
// session record alongside the transcript and the final summary.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kaigi-app/kaigi/internal/modeljson"
	"github.com/kaigi-app/kaigi/pkg/provider/llm"
	"github.com/kaigi-app/kaigi/pkg/types"
)

const (
	extractTemperature = 0.3
	extractMaxTokens   = 2000
)

const systemPrompt = `あなたは会議の書記担当です。会議全体の文字起こしを読み、決定事項とアクションアイテムを抽出してください。

以下のJSON形式のみで回答してください:
{
  "decisions": [{"text": "決定した内容"}],
  "action_items": [{"text": "タスク内容", "assignee": "担当者(不明なら空)", "due_date": "期限(不明なら空)"}]
}

- 文字起こしで明確に合意・決定された事項のみをdecisionsに入れる
- 誰かが実行すると合意されたタスクのみをaction_itemsに入れる
- 該当がなければ空配列を返す`

// Result holds what was extracted from one meeting.
type Result struct {
	Decisions   []types.Decision
	ActionItems []types.ActionItem
}

// response is the model's JSON shape.
type response struct {
	Decisions []struct {
		Text string `json:"text"`
	} `json:"decisions"`
	ActionItems []struct {
		Text     string `json:"text"`
		Assignee string `json:"assignee"`
		DueDate  string `json:"due_date"`
	} `json:"action_items"`
}

// Run extracts decisions and action items from the transcript. An empty
// transcript yields an empty Result without a model call.
func Run(ctx context.Context, provider llm.Provider, entries []types.TranscriptEntry) (Result, error) {
	if len(entries) == 0 {
		return Result{}, nil
	}

	var b strings.Builder
	for _, e := range entries {
		if e.Speaker != "" {
			fmt.Fprintf(&b, "[%s] %s: %s\n", e.Timestamp.Format("15:04:05"), e.Speaker, e.Text)
		} else {
			fmt.Fprintf(&b, "[%s] %s\n", e.Timestamp.Format("15:04:05"), e.Text)
		}
	}

	resp, err := provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: b.String()},
		},
		Temperature: extractTemperature,
		MaxTokens:   extractMaxTokens,
	})
	if err != nil {
		return Result{}, fmt.Errorf("extract: completion: %w", err)
	}

	var parsed response
	if err := modeljson.Unmarshal(resp.Content, &parsed); err != nil {
		return Result{}, fmt.Errorf("extract: parse response: %w", err)
	}

	var out Result
	for _, d := range parsed.Decisions {
		text := strings.TrimSpace(d.Text)
		if text == "" {
			continue
		}
		out.Decisions = append(out.Decisions, types.Decision{
			ID:   uuid.NewString(),
			Text: text,
		})
	}
	for _, a := range parsed.ActionItems {
		text := strings.TrimSpace(a.Text)
		if text == "" {
			continue
		}
		out.ActionItems = append(out.ActionItems, types.ActionItem{
			ID:       uuid.NewString(),
			Text:     text,
			Assignee: strings.TrimSpace(a.Assignee),
			DueDate:  strings.TrimSpace(a.DueDate),
		})
	}
	return out, nil
}
