package enrich

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/mise-kitchen/mise/internal/observe"
	"github.com/mise-kitchen/mise/internal/resilience"
)

// otelStage labels an enrichment duration sample with its pipeline stage.
func otelStage(stage string) metric.MeasurementOption {
	return metric.WithAttributes(observe.Attr("stage", stage))
}

// degradedConfidence caps the confidence of results whose AI enrichment
// failed, so the apply policy always queues them for review.
const degradedConfidence = 0.5

// Tagger produces dietary tags for an ingredient name.
type Tagger interface {
	Tags(ctx context.Context, name, language string) ([]string, error)
}

// Translator translates menu terms between languages.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// ImageGenerator produces a menu item image and returns its URL.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, description string) (string, error)
}

// Embedder produces an embedding vector for a text, used by the semantic
// duplicate index.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Enrichment is the full result of enriching one dictated ingredient phrase.
type Enrichment struct {
	// Parsed is the structured form of the dictation.
	Parsed ParsedIngredient

	// Language is the detected (or configured default) language hint.
	Language string

	// Tags are the AI-produced dietary tags. Empty when enrichment degraded.
	Tags []string

	// Translations maps target language codes to translated names. Empty
	// when enrichment degraded.
	Translations map[string]string

	// Confidence is the effective confidence after degradation caps.
	Confidence float64

	// Decision is the apply policy verdict.
	Decision Decision

	// MatchedKeyword is the review keyword that forced queueing, when one
	// did.
	MatchedKeyword string

	// Degraded reports that AI enrichment failed and only raw parsed values
	// are present.
	Degraded bool
}

// Config tunes an [Enricher].
type Config struct {
	// DefaultLanguage is used when detection finds no signal. Default: "de".
	DefaultLanguage string

	// TargetLanguages are the translation targets for ingredient names.
	TargetLanguages []string

	// Policy configures the apply policy.
	Policy PolicyConfig

	// Breaker configures the per-provider circuit breakers in the fallback
	// groups.
	Breaker resilience.CircuitBreakerConfig
}

// Option is a functional option for [Enricher].
type Option func(*Enricher)

// WithMetrics replaces the metrics instance. Used in tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Enricher) {
		e.metrics = m
	}
}

// Enricher runs the enrichment pipeline: parse, detect language, AI tag and
// translate, then evaluate the apply policy. AI providers sit behind
// circuit-breaker-protected fallback groups; when every provider fails the
// enricher falls back to the raw parsed values with a low confidence flag
// instead of failing the workflow.
type Enricher struct {
	taggers     *resilience.FallbackGroup[Tagger]
	translators *resilience.FallbackGroup[Translator]
	metrics     *observe.Metrics

	// mu guards the hot-reloadable fields below.
	mu              sync.RWMutex
	policy          *Policy
	defaultLanguage string
	targetLanguages []string
}

// New creates an [Enricher] with the given primary providers.
func New(cfg Config, tagger Tagger, translator Translator, opts ...Option) *Enricher {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "de"
	}
	fbCfg := resilience.FallbackConfig{CircuitBreaker: cfg.Breaker}
	e := &Enricher{
		taggers:         resilience.NewFallbackGroup[Tagger](tagger, "tagger-primary", fbCfg),
		translators:     resilience.NewFallbackGroup[Translator](translator, "translator-primary", fbCfg),
		policy:          NewPolicy(cfg.Policy),
		defaultLanguage: cfg.DefaultLanguage,
		targetLanguages: cfg.TargetLanguages,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// AddFallbackTagger registers an additional tagging provider, tried when the
// primary fails or its breaker is open.
func (e *Enricher) AddFallbackTagger(name string, t Tagger) {
	e.taggers.AddFallback(name, t)
}

// AddFallbackTranslator registers an additional translation provider.
func (e *Enricher) AddFallbackTranslator(name string, t Translator) {
	e.translators.AddFallback(name, t)
}

// Policy returns the apply policy, for server handlers that re-evaluate
// manual accepts.
func (e *Enricher) Policy() *Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

// UpdatePolicy swaps in a new apply policy. Safe to call while enrichment is
// running; in-flight enrichments finish with the policy they started with.
func (e *Enricher) UpdatePolicy(cfg PolicyConfig) {
	p := NewPolicy(cfg)
	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()
}

// UpdateLanguages swaps the default language and translation targets.
func (e *Enricher) UpdateLanguages(defaultLanguage string, targets []string) {
	if defaultLanguage == "" {
		defaultLanguage = "de"
	}
	e.mu.Lock()
	e.defaultLanguage = defaultLanguage
	e.targetLanguages = append([]string(nil), targets...)
	e.mu.Unlock()
}

// EnrichIngredient enriches one dictated phrase with the transcription
// confidence it arrived with. It never returns an error for AI failures;
// those degrade the result instead.
func (e *Enricher) EnrichIngredient(ctx context.Context, text string, confidence float64) Enrichment {
	out := Enrichment{Confidence: confidence}

	parsed, err := ParseIngredient(text)
	if err != nil {
		// Nothing to structure; carry the raw text as the name so the
		// dictation is never lost.
		out.Parsed = ParsedIngredient{Name: strings.TrimSpace(text)}
		out.Degraded = true
	} else {
		out.Parsed = parsed
	}

	e.mu.RLock()
	policy := e.policy
	fallbackLang := e.defaultLanguage
	targets := e.targetLanguages
	e.mu.RUnlock()

	lang, _ := DetectLanguage(text)
	if lang == "" {
		lang = fallbackLang
	}
	out.Language = lang

	if !out.Degraded {
		e.runAI(ctx, &out, targets)
	}

	if out.Degraded && out.Confidence > degradedConfidence {
		out.Confidence = degradedConfidence
	}

	out.Decision, out.MatchedKeyword = policy.Evaluate(out.Confidence, text)
	e.metrics.RecordSuggestion(ctx, decisionOutcome(out.Decision))
	return out
}

// runAI performs the tagging and translation stages, marking the result
// degraded when all providers fail.
func (e *Enricher) runAI(ctx context.Context, out *Enrichment, targets []string) {
	name := out.Parsed.Name

	start := time.Now()
	tags, err := resilience.ExecuteWithResult(e.taggers, func(t Tagger) ([]string, error) {
		return t.Tags(ctx, name, out.Language)
	})
	e.metrics.EnrichmentDuration.Record(ctx, time.Since(start).Seconds(),
		otelStage("tag"))
	if err != nil {
		slog.Warn("dietary tagging failed, using raw values", "name", name, "error", err)
		out.Degraded = true
		return
	}
	out.Tags = tags

	if len(targets) == 0 {
		return
	}
	out.Translations = make(map[string]string, len(targets))
	for _, target := range targets {
		if target == out.Language {
			continue
		}
		start = time.Now()
		translated, err := resilience.ExecuteWithResult(e.translators, func(t Translator) (string, error) {
			return t.Translate(ctx, name, out.Language, target)
		})
		e.metrics.EnrichmentDuration.Record(ctx, time.Since(start).Seconds(),
			otelStage("translate"))
		if err != nil {
			slog.Warn("translation failed, using raw values",
				"name", name, "target", target, "error", err)
			out.Degraded = true
			out.Translations = nil
			return
		}
		out.Translations[target] = translated
	}
}

func decisionOutcome(d Decision) string {
	if d == DecisionAutoApply {
		return "auto_applied"
	}
	return "queued"
}
