package config_test

import (
	"testing"

	"github.com/kaigi-app/kaigi/internal/config"
)

func TestDiff_LogLevelChange(t *testing.T) {
	t.Parallel()
	old := &config.Config{Log: config.LogConfig{Level: config.LogInfo}}
	new := &config.Config{Log: config.LogConfig{Level: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
	if d.MeetingChanged {
		t.Error("meeting should be unchanged")
	}
}

func TestDiff_MeetingChange(t *testing.T) {
	t.Parallel()
	old := &config.Config{Meeting: config.MeetingConfig{Title: "定例", Participants: []string{"田中"}}}

	tests := []struct {
		name string
		new  config.MeetingConfig
		want bool
	}{
		{"identical", config.MeetingConfig{Title: "定例", Participants: []string{"田中"}}, false},
		{"title changed", config.MeetingConfig{Title: "臨時", Participants: []string{"田中"}}, true},
		{"participant added", config.MeetingConfig{Title: "定例", Participants: []string{"田中", "鈴木"}}, true},
		{"agenda set", config.MeetingConfig{Title: "定例", Participants: []string{"田中"}, Agenda: "予算"}, true},
		{"material added", config.MeetingConfig{Title: "定例", Participants: []string{"田中"}, Materials: []config.MaterialConfig{{Name: "a", Path: "a.txt"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := config.Diff(old, &config.Config{Meeting: tt.new})
			if d.MeetingChanged != tt.want {
				t.Errorf("MeetingChanged = %v, want %v", d.MeetingChanged, tt.want)
			}
		})
	}
}
