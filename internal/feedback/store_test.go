package feedback

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kaigi-app/kaigi/pkg/types"
)

func TestFileStoreAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	fs := NewFileStore(path)

	events := []Event{
		{SessionID: "s1", SuggestionID: "a", Kind: types.SuggestionProposal, Text: "先に進めましょう", Action: ActionSaved},
		{SessionID: "s1", SuggestionID: "b", Kind: types.SuggestionQuestion, Text: "期限はいつですか", Action: ActionRejected},
	}
	for _, ev := range events {
		if err := fs.Record(ev); err != nil {
			t.Fatalf("Record() unexpected error: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open store file: %v", err)
	}
	defer f.Close()

	var got []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		got = append(got, ev)
	}

	if len(got) != 2 {
		t.Fatalf("stored events = %d, want 2", len(got))
	}
	if got[0].SuggestionID != "a" || got[0].Action != ActionSaved {
		t.Errorf("first event = %+v, want saved suggestion a", got[0])
	}
	if got[1].Kind != types.SuggestionQuestion {
		t.Errorf("second event kind = %s, want question", got[1].Kind)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("timestamp not filled in")
	}
}
