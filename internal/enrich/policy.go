package enrich

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Decision is the apply policy's verdict for one enrichment result.
type Decision int

const (
	// DecisionAutoApply: confidence is high enough and no review keyword
	// matched; the result may be written directly.
	DecisionAutoApply Decision = iota

	// DecisionQueue: the result must wait for a human accept/reject.
	DecisionQueue
)

// String returns the decision name for logging and persistence.
func (d Decision) String() string {
	if d == DecisionAutoApply {
		return "auto_apply"
	}
	return "queue"
}

// Default policy parameters.
const (
	defaultThreshold   = 0.95
	defaultMaxDistance = 1
)

// PolicyConfig tunes the [Policy]. Zero values are replaced with defaults.
type PolicyConfig struct {
	// Threshold is the minimum confidence for auto-apply. Default: 0.95.
	Threshold float64

	// ReviewKeywords are words that force review regardless of confidence,
	// matched fuzzily so dictation slips still trigger them.
	ReviewKeywords []string

	// MaxDistance is the Levenshtein distance up to which a token counts as
	// a review-keyword match. Default: 1.
	MaxDistance int
}

// Policy decides whether an enrichment result is applied directly or queued
// for review. The policy is conservative: auto-apply requires BOTH the
// confidence threshold AND the absence of any review-keyword match.
type Policy struct {
	threshold   float64
	keywords    []string
	maxDistance int
}

// NewPolicy creates a [Policy] from cfg.
func NewPolicy(cfg PolicyConfig) *Policy {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = defaultMaxDistance
	}
	keywords := make([]string, 0, len(cfg.ReviewKeywords))
	for _, k := range cfg.ReviewKeywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			keywords = append(keywords, k)
		}
	}
	return &Policy{
		threshold:   cfg.Threshold,
		keywords:    keywords,
		maxDistance: cfg.MaxDistance,
	}
}

// Threshold returns the configured auto-apply confidence threshold.
func (p *Policy) Threshold() float64 { return p.threshold }

// Evaluate returns the verdict for a result with the given confidence and
// source text, plus the review keyword that matched, when one did.
func (p *Policy) Evaluate(confidence float64, text string) (Decision, string) {
	if kw := p.matchKeyword(text); kw != "" {
		return DecisionQueue, kw
	}
	if confidence < p.threshold {
		return DecisionQueue, ""
	}
	return DecisionAutoApply, ""
}

// matchKeyword returns the first review keyword that a token of text matches
// within the configured Levenshtein distance.
func (p *Policy) matchKeyword(text string) string {
	if len(p.keywords) == 0 {
		return ""
	}
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		tok := strings.Trim(raw, ".,;:!?")
		if tok == "" {
			continue
		}
		for _, kw := range p.keywords {
			if tok == kw {
				return kw
			}
			// Very short tokens produce spurious fuzzy hits.
			if len(tok) < 3 || len(kw) < 3 {
				continue
			}
			if matchr.Levenshtein(tok, kw) <= p.maxDistance {
				return kw
			}
		}
	}
	return ""
}
