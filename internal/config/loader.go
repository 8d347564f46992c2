package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper"},
	"llm": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Log.Level != "" && !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}

	// Audio sources
	sourcesSeen := make(map[AudioSource]int, len(cfg.Audio.Sources))
	for i, src := range cfg.Audio.Sources {
		prefix := fmt.Sprintf("audio.sources[%d]", i)
		if !src.IsValid() {
			errs = append(errs, fmt.Errorf("%s %q is invalid; valid values: microphone, loopback", prefix, src))
			continue
		}
		if prev, ok := sourcesSeen[src]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of audio.sources[%d]", prefix, src, prev))
		}
		sourcesSeen[src] = i
	}

	if cfg.Recorder.ChunkSeconds < 0 {
		errs = append(errs, fmt.Errorf("recorder.chunk_seconds %d must not be negative", cfg.Recorder.ChunkSeconds))
	}
	if cfg.Recorder.MinFlushBytes < 0 {
		errs = append(errs, fmt.Errorf("recorder.min_flush_bytes %d must not be negative", cfg.Recorder.MinFlushBytes))
	}
	if cfg.Transcription.MinChunkBytes < 0 {
		errs = append(errs, fmt.Errorf("transcription.min_chunk_bytes %d must not be negative", cfg.Transcription.MinChunkBytes))
	}
	if cfg.Summary.IntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("summary.interval_seconds %d must not be negative", cfg.Summary.IntervalSeconds))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		if !cfg.Suggest.Disabled {
			slog.Warn("providers.llm is not configured; suggestions, summaries, and extraction will be unavailable")
		}
	}
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; finished sessions will not be persisted")
	}

	// Meeting materials
	for i, mat := range cfg.Meeting.Materials {
		prefix := fmt.Sprintf("meeting.materials[%d]", i)
		if mat.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if mat.Path == "" {
			errs = append(errs, fmt.Errorf("%s.path is required", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
