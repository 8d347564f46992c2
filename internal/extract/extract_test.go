package extract

import (
	"context"
	"testing"
	"time"

	llmmock "github.com/kaigi-app/kaigi/pkg/provider/llm/mock"
	"github.com/kaigi-app/kaigi/pkg/types"
)

func TestRunExtracts(t *testing.T) {
	m := &llmmock.Provider{Responses: []string{"```json\n" + `{
		"decisions": [
			{"text": "リリースは4月15日に実施する"},
			{"text": "  "}
		],
		"action_items": [
			{"text": "QA計画を作成する", "assignee": "佐藤", "due_date": "4月1日"},
			{"text": "依存チームへ連絡する", "assignee": "", "due_date": ""}
		]
	}` + "\n```"}}

	entries := []types.TranscriptEntry{
		{ID: "t1", Text: "リリース日は4月15日で決定します", Timestamp: time.Now()},
	}

	got, err := Run(context.Background(), m, entries)
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if len(got.Decisions) != 1 {
		t.Fatalf("decisions = %d, want 1 (blank entry dropped)", len(got.Decisions))
	}
	if got.Decisions[0].Text != "リリースは4月15日に実施する" || got.Decisions[0].ID == "" {
		t.Errorf("decision = %+v, want text with assigned ID", got.Decisions[0])
	}
	if len(got.ActionItems) != 2 {
		t.Fatalf("action items = %d, want 2", len(got.ActionItems))
	}
	if got.ActionItems[0].Assignee != "佐藤" || got.ActionItems[0].DueDate != "4月1日" {
		t.Errorf("action item = %+v, want assignee and due date kept", got.ActionItems[0])
	}
}

func TestRunEmptyTranscript(t *testing.T) {
	m := &llmmock.Provider{Responses: []string{"should not be called"}}

	got, err := Run(context.Background(), m, nil)
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if len(got.Decisions) != 0 || len(got.ActionItems) != 0 {
		t.Errorf("Run() = %+v, want empty result", got)
	}
	if m.CallCount() != 0 {
		t.Errorf("model calls = %d, want 0 for empty transcript", m.CallCount())
	}
}

func TestRunMalformedResponse(t *testing.T) {
	m := &llmmock.Provider{Responses: []string{"no json here"}}

	entries := []types.TranscriptEntry{{ID: "t1", Text: "発言", Timestamp: time.Now()}}
	if _, err := Run(context.Background(), m, entries); err == nil {
		t.Error("Run() expected error for malformed response")
	}
}
