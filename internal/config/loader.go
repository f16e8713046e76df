package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if !cfg.ASR.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("asr.backend %q is invalid; valid values: whisper-http, whisper-native", cfg.ASR.Backend))
	}
	switch cfg.ASR.Backend {
	case ASRWhisperHTTP:
		if cfg.ASR.ServerURL == "" {
			errs = append(errs, errors.New("asr.server_url is required for the whisper-http backend"))
		}
	case ASRWhisperNative:
		if cfg.ASR.ModelPath == "" {
			errs = append(errs, errors.New("asr.model_path is required for the whisper-native backend"))
		}
	}

	if !cfg.Diarization.Strategy.IsValid() {
		errs = append(errs, fmt.Errorf("diarization.strategy %q is invalid; valid values: per_turn, align", cfg.Diarization.Strategy))
	}
	if cfg.Diarization.Enabled && cfg.Diarization.ServerURL == "" {
		errs = append(errs, errors.New("diarization.server_url is required when diarization.enabled is true"))
	}
	if cfg.Diarization.SearchRadius < 0 {
		errs = append(errs, fmt.Errorf("diarization.search_radius %d must not be negative", cfg.Diarization.SearchRadius))
	}

	if cfg.Polish.Enabled && cfg.Polish.Primary.Provider == "" {
		errs = append(errs, errors.New("polish.primary.provider is required when polish.enabled is true"))
	}
	if cfg.Polish.MinSimilarity < 0 || cfg.Polish.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("polish.min_similarity %.2f is out of range [0, 1]", cfg.Polish.MinSimilarity))
	}

	if cfg.Emotion.Enabled && cfg.Emotion.ServerURL == "" {
		errs = append(errs, errors.New("emotion.server_url is required when emotion.enabled is true"))
	}

	if cfg.Retrieval.Enabled && cfg.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("retrieval.enabled requires storage.postgres_dsn"))
	}

	if cfg.Limits.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("limits.max_concurrent %d must be at least 1", cfg.Limits.MaxConcurrent))
	}

	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; transcriptions will not be persisted")
	}

	return errors.Join(errs...)
}
