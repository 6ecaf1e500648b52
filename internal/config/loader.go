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
	"stt": {"deepgram", "mock"},
	"ai":  {"openai"},
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

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation, warn for unknown names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("ai", cfg.Providers.AI.Name)
	for _, entry := range cfg.Providers.AIFallbacks {
		validateProviderName("ai", entry.Name)
	}

	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; dictation sessions will not be available")
	}
	if cfg.Providers.AI.Name == "" {
		slog.Warn("providers.ai is not configured; suggestions will be produced without tags or translations")
	}

	// Database ↔ embeddings
	if cfg.Database.PostgresDSN == "" {
		slog.Warn("database.postgres_dsn is empty; records will not survive a restart")
	}
	if cfg.Providers.AI.Name != "" && cfg.Database.EmbeddingDimensions <= 0 {
		slog.Warn("providers.ai is configured but database.embedding_dimensions is not set; defaulting to 1536")
	}

	// Pool
	if cfg.Pool.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("pool.max_connections %d must not be negative", cfg.Pool.MaxConnections))
	}
	if cfg.Pool.BackoffMultiplier != 0 && cfg.Pool.BackoffMultiplier <= 1 {
		errs = append(errs, fmt.Errorf("pool.backoff_multiplier %.2f must be greater than 1", cfg.Pool.BackoffMultiplier))
	}
	if cfg.Pool.HeartbeatTimeout != 0 && cfg.Pool.HeartbeatTimeout < cfg.Pool.HeartbeatInterval {
		errs = append(errs, fmt.Errorf("pool.heartbeat_timeout %v must not be shorter than pool.heartbeat_interval %v",
			cfg.Pool.HeartbeatTimeout.Std(), cfg.Pool.HeartbeatInterval.Std()))
	}

	// Capture
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must not be negative", cfg.Capture.SampleRate))
	}
	if cfg.Capture.Channels < 0 || cfg.Capture.Channels > 2 {
		errs = append(errs, fmt.Errorf("capture.channels %d must be 0 (default), 1, or 2", cfg.Capture.Channels))
	}

	// Enrichment
	if t := cfg.Enrichment.AutoApplyThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("enrichment.auto_apply_threshold %.2f is out of range [0, 1]", t))
	}
	if cfg.Enrichment.MaxKeywordDistance < 0 {
		errs = append(errs, fmt.Errorf("enrichment.max_keyword_distance %d must not be negative", cfg.Enrichment.MaxKeywordDistance))
	}
	seenTargets := make(map[string]int, len(cfg.Enrichment.TargetLanguages))
	for i, lang := range cfg.Enrichment.TargetLanguages {
		if lang == "" {
			errs = append(errs, fmt.Errorf("enrichment.target_languages[%d] must not be empty", i))
			continue
		}
		if prev, ok := seenTargets[lang]; ok {
			errs = append(errs, fmt.Errorf("enrichment.target_languages[%d] %q is a duplicate of target_languages[%d]", i, lang, prev))
		}
		seenTargets[lang] = i
	}

	// Usage
	if cfg.Usage.Token != "" && cfg.Usage.BaseURL == "" {
		errs = append(errs, errors.New("usage.base_url is required when usage.token is set"))
	}
	if cfg.Usage.BaseURL == "" {
		slog.Warn("usage.base_url is empty; quota validation is disabled")
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
