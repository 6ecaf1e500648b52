package config_test

import (
	"testing"

	"github.com/mise-kitchen/mise/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Enrichment: config.EnrichmentConfig{
			DefaultLanguage:    "de",
			TargetLanguages:    []string{"en"},
			AutoApplyThreshold: 0.95,
			ReviewKeywords:     []string{"löschen"},
		},
	}
	d := config.Diff(cfg, cfg)
	if d.Any() {
		t.Errorf("identical configs must produce an empty diff, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.PolicyChanged || d.TargetsChanged {
		t.Error("only the log level changed")
	}
}

func TestDiff_PolicyChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Enrichment: config.EnrichmentConfig{
		AutoApplyThreshold: 0.95,
		ReviewKeywords:     []string{"löschen"},
	}}

	threshold := *old
	threshold.Enrichment.AutoApplyThreshold = 0.90
	if d := config.Diff(old, &threshold); !d.PolicyChanged {
		t.Error("threshold change must set PolicyChanged")
	}

	keywords := *old
	keywords.Enrichment.ReviewKeywords = []string{"löschen", "alle"}
	if d := config.Diff(old, &keywords); !d.PolicyChanged {
		t.Error("keyword change must set PolicyChanged")
	}

	distance := *old
	distance.Enrichment.MaxKeywordDistance = 2
	if d := config.Diff(old, &distance); !d.PolicyChanged {
		t.Error("distance change must set PolicyChanged")
	}
}

func TestDiff_TargetsChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Enrichment: config.EnrichmentConfig{
		DefaultLanguage: "de",
		TargetLanguages: []string{"en"},
	}}

	targets := *old
	targets.Enrichment.TargetLanguages = []string{"en", "fr"}
	d := config.Diff(old, &targets)
	if !d.TargetsChanged {
		t.Error("target language change must set TargetsChanged")
	}
	if d.PolicyChanged {
		t.Error("policy did not change")
	}

	lang := *old
	lang.Enrichment.DefaultLanguage = "en"
	if d := config.Diff(old, &lang); !d.TargetsChanged {
		t.Error("default language change must set TargetsChanged")
	}
}

func TestDiff_PoolChangesAreNotHotReloadable(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	updated := &config.Config{}
	updated.Pool.MaxConnections = 8

	if d := config.Diff(old, updated); d.Any() {
		t.Errorf("pool changes require a restart and must not appear in the diff, got %+v", d)
	}
}
