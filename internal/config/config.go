// Package config provides the configuration schema, loader, and provider
// registry for the kaigi meeting assistant.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kaigi-app/kaigi/pkg/types"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// AudioSource names a capture source that can be enabled in the audio section.
type AudioSource string

const (
	// SourceMicrophone captures the physical microphone.
	SourceMicrophone AudioSource = "microphone"

	// SourceLoopback captures system playback audio through a virtual
	// loopback device such as BlackHole.
	SourceLoopback AudioSource = "loopback"
)

// IsValid reports whether s is a recognised audio source.
func (s AudioSource) IsValid() bool {
	return s == SourceMicrophone || s == SourceLoopback
}

// Config is the root configuration structure for kaigi.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Log           LogConfig           `yaml:"log"`
	Audio         AudioConfig         `yaml:"audio"`
	Recorder      RecorderConfig      `yaml:"recorder"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Summary       SummaryConfig       `yaml:"summary"`
	Suggest       SuggestConfig       `yaml:"suggest"`
	Store         StoreConfig         `yaml:"store"`
	Feedback      FeedbackConfig      `yaml:"feedback"`
	Meeting       MeetingConfig       `yaml:"meeting"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level controls verbosity. Empty means "info".
	Level LogLevel `yaml:"level"`
}

// AudioConfig selects which capture sources are recorded during a session.
type AudioConfig struct {
	// Sources lists the enabled capture sources. When empty only the
	// microphone is captured.
	Sources []AudioSource `yaml:"sources"`

	// LoopbackKeywords overrides the device-name substrings used to
	// recognise virtual loopback devices. Leave empty for the defaults.
	LoopbackKeywords []string `yaml:"loopback_keywords"`
}

// EnabledSources returns the configured sources, defaulting to microphone only.
func (a AudioConfig) EnabledSources() []AudioSource {
	if len(a.Sources) == 0 {
		return []AudioSource{SourceMicrophone}
	}
	return a.Sources
}

// RecorderConfig tunes the chunked recording cycle.
type RecorderConfig struct {
	// ChunkSeconds is the length of each audio chunk sent to transcription.
	// Zero means the default of 20 seconds.
	ChunkSeconds int `yaml:"chunk_seconds"`

	// MinFlushBytes is the smallest partial chunk worth transcribing on
	// stop. Zero means the default of 1024 bytes.
	MinFlushBytes int `yaml:"min_flush_bytes"`
}

// ProvidersConfig declares which provider implementation to use for each
// model-backed stage. Each Name selects a constructor registered in the
// [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API. Usually left
	// empty so the key is resolved from the OS keychain or the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1", "gpt-4o").
	Model string `yaml:"model"`
}

// TranscriptionConfig tunes transcript post-processing.
type TranscriptionConfig struct {
	// Language is the expected spoken language passed to the STT provider.
	// Empty means Japanese.
	Language string `yaml:"language"`

	// MinChunkBytes is the smallest audio payload submitted for
	// transcription. Zero means the default of 1024 bytes.
	MinChunkBytes int `yaml:"min_chunk_bytes"`
}

// SummaryConfig tunes the periodic summary cycle.
type SummaryConfig struct {
	// IntervalSeconds is how often a summary is regenerated. Zero means the
	// default of 120 seconds.
	IntervalSeconds int `yaml:"interval_seconds"`
}

// SuggestConfig controls the suggestion engine.
type SuggestConfig struct {
	// Disabled turns off suggestion generation entirely.
	Disabled bool `yaml:"disabled"`
}

// StoreConfig holds session persistence settings.
type StoreConfig struct {
	// PostgresDSN is the connection string for session storage. When empty,
	// finished sessions are not persisted.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// FeedbackConfig holds suggestion feedback logging settings.
type FeedbackConfig struct {
	// Path is the JSONL file that suggestion save/reject events are
	// appended to. Empty disables feedback logging.
	Path string `yaml:"path"`
}

// MeetingConfig describes the meeting to the model prompts.
type MeetingConfig struct {
	Title          string           `yaml:"title"`
	BackgroundInfo string           `yaml:"background_info"`
	Agenda         string           `yaml:"agenda"`
	Participants   []string         `yaml:"participants"`
	Materials      []MaterialConfig `yaml:"materials"`
}

// MaterialConfig references a document whose content is injected into prompts.
type MaterialConfig struct {
	// Name labels the material in prompts.
	Name string `yaml:"name"`

	// Path points at a local text file to read the content from.
	Path string `yaml:"path"`
}

// Context builds a [types.MeetingContext] from the meeting section, reading
// each material file from disk.
func (m MeetingConfig) Context() (types.MeetingContext, error) {
	mc := types.MeetingContext{
		Title:          strings.TrimSpace(m.Title),
		BackgroundInfo: strings.TrimSpace(m.BackgroundInfo),
		Agenda:         strings.TrimSpace(m.Agenda),
		Participants:   m.Participants,
	}
	for i, mat := range m.Materials {
		data, err := os.ReadFile(mat.Path)
		if err != nil {
			return types.MeetingContext{}, fmt.Errorf("config: read meeting.materials[%d] %q: %w", i, mat.Path, err)
		}
		mc.Materials = append(mc.Materials, types.Material{
			ID:      fmt.Sprintf("material-%d", i+1),
			Name:    mat.Name,
			Content: string(data),
		})
	}
	return mc, nil
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled turns on the metrics HTTP listener.
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the TCP address the metrics endpoint listens on.
	// Empty means "localhost:9464".
	ListenAddr string `yaml:"listen_addr"`
}
