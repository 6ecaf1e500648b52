package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PolicyChanged is true when the auto-apply threshold, review keywords,
	// or keyword distance changed.
	PolicyChanged bool

	// TargetsChanged is true when the translation target languages or the
	// default language changed.
	TargetsChanged bool
}

// Any reports whether the diff carries at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.PolicyChanged || d.TargetsChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart: the log level
// and the enrichment settings. Pool, capture, provider, and server changes
// require a restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldE, newE := old.Enrichment, new.Enrichment
	if oldE.AutoApplyThreshold != newE.AutoApplyThreshold ||
		oldE.MaxKeywordDistance != newE.MaxKeywordDistance ||
		!slices.Equal(oldE.ReviewKeywords, newE.ReviewKeywords) {
		d.PolicyChanged = true
	}
	if oldE.DefaultLanguage != newE.DefaultLanguage ||
		!slices.Equal(oldE.TargetLanguages, newE.TargetLanguages) {
		d.TargetsChanged = true
	}

	return d
}
