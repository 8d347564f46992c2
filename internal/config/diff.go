package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// MeetingChanged is true if any field of the meeting section changed.
	// The running session can pick up the new context for future prompts.
	MeetingChanged bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restarting a session.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Log.Level != new.Log.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Log.Level
	}

	if meetingChanged(old.Meeting, new.Meeting) {
		d.MeetingChanged = true
	}

	return d
}

func meetingChanged(old, new MeetingConfig) bool {
	if old.Title != new.Title ||
		old.BackgroundInfo != new.BackgroundInfo ||
		old.Agenda != new.Agenda {
		return true
	}
	if !slices.Equal(old.Participants, new.Participants) {
		return true
	}
	return !slices.Equal(old.Materials, new.Materials)
}
