package modeljson

import "testing"

type payload struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

func TestUnmarshal(t *testing.T) {
	tests := []struct {
		name       string
		completion string
		wantText   string
		wantErr    bool
	}{
		{
			name:       "plain JSON",
			completion: `{"text": "hello", "count": 1}`,
			wantText:   "hello",
		},
		{
			name:       "json fence",
			completion: "```json\n{\"text\": \"fenced\", \"count\": 2}\n```",
			wantText:   "fenced",
		},
		{
			name:       "bare fence",
			completion: "```\n{\"text\": \"bare\", \"count\": 3}\n```",
			wantText:   "bare",
		},
		{
			name:       "prose before and after",
			completion: "Here is the result:\n{\"text\": \"prose\", \"count\": 4}\nLet me know if you need more.",
			wantText:   "prose",
		},
		{
			name:       "fence with trailing prose",
			completion: "```json\n{\"text\": \"mixed\", \"count\": 5}\n```\nThat covers everything.",
			wantText:   "mixed",
		},
		{
			name:       "no JSON at all",
			completion: "I could not produce a result.",
			wantErr:    true,
		},
		{
			name:       "empty completion",
			completion: "",
			wantErr:    true,
		},
		{
			name:       "malformed JSON",
			completion: `{"text": "broken`,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p payload
			err := Unmarshal(tt.completion, &p)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Unmarshal() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal() unexpected error: %v", err)
			}
			if p.Text != tt.wantText {
				t.Errorf("text = %q, want %q", p.Text, tt.wantText)
			}
		})
	}
}

func TestUnmarshalArray(t *testing.T) {
	var items []payload
	completion := "```json\n[{\"text\": \"a\", \"count\": 1}, {\"text\": \"b\", \"count\": 2}]\n```"
	if err := Unmarshal(completion, &items); err != nil {
		t.Fatalf("Unmarshal() unexpected error: %v", err)
	}
	if len(items) != 2 || items[1].Text != "b" {
		t.Errorf("items = %+v, want two entries ending with b", items)
	}
}
