package assembler

import (
	"testing"
	"time"

	"github.com/mise-kitchen/mise/pkg/stt"
)

func final(text string, conf float64) stt.Transcript {
	return stt.Transcript{Text: text, IsFinal: true, Confidence: conf}
}

func interim(text string) stt.Transcript {
	return stt.Transcript{Text: text}
}

func TestApply_InterimReplacesOnly(t *testing.T) {
	a := New()

	s := a.Apply(interim("Avo"))
	if s.Interim != "Avo" || s.Final != "" {
		t.Errorf("snapshot = %+v, want interim only", s)
	}

	s = a.Apply(interim("Avocado zwei"))
	if s.Interim != "Avocado zwei" {
		t.Errorf("Interim = %q, want replacement", s.Interim)
	}
	if s.Final != "" {
		t.Errorf("Final = %q, interim results must not touch final", s.Final)
	}
	if got := len(a.Finals()); got != 0 {
		t.Errorf("finals = %d, want 0", got)
	}
}

func TestApply_FinalAppendsExactlyOnceAndClearsInterim(t *testing.T) {
	a := New()

	a.Apply(interim("Avocado zwei"))
	s := a.Apply(final("Avocado zwei Euro", 0.97))

	if s.Final != "Avocado zwei Euro" {
		t.Errorf("Final = %q", s.Final)
	}
	if s.Interim != "" {
		t.Errorf("Interim = %q, want cleared after final", s.Interim)
	}
	if _, ok := a.Interim(); ok {
		t.Error("interim must be cleared after a final result")
	}
	if got := len(a.Finals()); got != 1 {
		t.Fatalf("finals = %d, want exactly 1", got)
	}
}

func TestApply_AccumulatesFinalsInOrder(t *testing.T) {
	a := New()

	a.Apply(final("Avocado 2 Euro", 0.96))
	a.Apply(interim("drei Ki"))
	s := a.Apply(final("drei Kilo Tomaten", 0.91))

	if s.Final != "Avocado 2 Euro drei Kilo Tomaten" {
		t.Errorf("Final = %q", s.Final)
	}
	finals := a.Finals()
	if len(finals) != 2 {
		t.Fatalf("finals = %d, want 2", len(finals))
	}
	if finals[0].Confidence != 0.96 || finals[1].Confidence != 0.91 {
		t.Error("confidence must be carried through")
	}
}

func TestApply_EmptyFinalClearsInterimWithoutAppend(t *testing.T) {
	a := New()

	a.Apply(interim("noise"))
	s := a.Apply(final("  ", 0.2))

	if s.Final != "" {
		t.Errorf("Final = %q, want empty", s.Final)
	}
	if s.Interim != "" {
		t.Error("empty final must still clear the interim segment")
	}
	if got := len(a.Finals()); got != 0 {
		t.Errorf("finals = %d, want 0", got)
	}
}

func TestApply_CarriesWordTimings(t *testing.T) {
	a := New()

	tr := stt.Transcript{
		Text:       "Avocado",
		IsFinal:    true,
		Confidence: 0.99,
		Words: []stt.WordDetail{
			{Word: "Avocado", Start: 100 * time.Millisecond, End: 600 * time.Millisecond, Confidence: 0.99},
		},
	}
	a.Apply(tr)

	finals := a.Finals()
	if len(finals) != 1 || len(finals[0].Words) != 1 {
		t.Fatalf("word detail not carried: %+v", finals)
	}
	if finals[0].Words[0].End != 600*time.Millisecond {
		t.Errorf("word end = %v", finals[0].Words[0].End)
	}
}

func TestSubscribe_NotifiedPerResultAndCancelable(t *testing.T) {
	a := New()

	var updates []Update
	sub := a.Subscribe(func(u Update) { updates = append(updates, u) })

	a.Apply(interim("Av"))
	a.Apply(final("Avocado", 0.98))

	if len(updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(updates))
	}
	if !updates[1].Result.IsFinal {
		t.Error("second update must carry the final result")
	}
	if updates[1].Snapshot.Final != "Avocado" {
		t.Errorf("snapshot final = %q", updates[1].Snapshot.Final)
	}

	sub.Cancel()
	a.Apply(final("Tomaten", 0.9))
	if len(updates) != 2 {
		t.Error("cancelled subscription must not receive updates")
	}
}

func TestReset(t *testing.T) {
	a := New()
	a.Apply(final("Avocado", 0.98))
	a.Apply(interim("To"))

	a.Reset()

	s := a.Snapshot()
	if s.Final != "" || s.Interim != "" {
		t.Errorf("snapshot after reset = %+v, want empty", s)
	}
}
