package enrich

import "testing"

func TestPolicy_AutoApplyAboveThreshold(t *testing.T) {
	p := NewPolicy(PolicyConfig{Threshold: 0.95})

	d, kw := p.Evaluate(0.96, "Avocado 2 Euro")
	if d != DecisionAutoApply {
		t.Errorf("decision = %v, want auto_apply at 0.96", d)
	}
	if kw != "" {
		t.Errorf("matched keyword = %q, want none", kw)
	}
}

func TestPolicy_QueueBelowThreshold(t *testing.T) {
	p := NewPolicy(PolicyConfig{Threshold: 0.95})

	if d, _ := p.Evaluate(0.80, "Avocado 2 Euro"); d != DecisionQueue {
		t.Errorf("decision = %v, want queue at 0.80", d)
	}
	// Exactly at the threshold is high enough.
	if d, _ := p.Evaluate(0.95, "Avocado 2 Euro"); d != DecisionAutoApply {
		t.Error("confidence equal to the threshold must auto-apply")
	}
}

func TestPolicy_ReviewKeywordForcesQueue(t *testing.T) {
	p := NewPolicy(PolicyConfig{
		Threshold:      0.95,
		ReviewKeywords: []string{"löschen", "delete", "alle"},
	})

	d, kw := p.Evaluate(0.99, "alle Preise löschen")
	if d != DecisionQueue {
		t.Errorf("decision = %v, want queue on keyword match", d)
	}
	if kw == "" {
		t.Error("matched keyword must be reported")
	}
}

func TestPolicy_FuzzyKeywordMatch(t *testing.T) {
	p := NewPolicy(PolicyConfig{
		Threshold:      0.95,
		ReviewKeywords: []string{"delete"},
		MaxDistance:    1,
	})

	// One substitution away from "delete".
	d, kw := p.Evaluate(0.99, "please delede everything")
	if d != DecisionQueue || kw != "delete" {
		t.Errorf("decision = %v keyword = %q, want queue/delete for fuzzy match", d, kw)
	}

	// Distance 2 is past the limit.
	if d, _ := p.Evaluate(0.99, "please dalada everything"); d != DecisionAutoApply {
		t.Error("tokens past the distance limit must not match")
	}
}

func TestPolicy_ShortTokensNeverFuzzyMatch(t *testing.T) {
	p := NewPolicy(PolicyConfig{
		Threshold:      0.95,
		ReviewKeywords: []string{"all"},
	})

	// "al" would be distance 1 from "all" but is too short for fuzzy rules.
	if d, _ := p.Evaluate(0.99, "al dente"); d != DecisionAutoApply {
		t.Error("short tokens must only match exactly")
	}
	if d, _ := p.Evaluate(0.99, "all prices"); d != DecisionQueue {
		t.Error("exact short-token matches still count")
	}
}

func TestPolicy_Defaults(t *testing.T) {
	p := NewPolicy(PolicyConfig{})
	if p.Threshold() != 0.95 {
		t.Errorf("default threshold = %v, want 0.95", p.Threshold())
	}
}
