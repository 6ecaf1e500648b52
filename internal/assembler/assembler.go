// Package assembler turns the stream of interim and final transcription
// results into a coherent dictation transcript.
//
// The assembler is pure state: an interim ("currently being spoken") segment
// that each interim result replaces, and an accumulated final transcript that
// each final result appends to exactly once. It performs no retries and no
// I/O; transport concerns live in the connection pool.
package assembler

import (
	"strings"
	"sync"

	"github.com/mise-kitchen/mise/pkg/stt"
)

// Snapshot is a point-in-time view of the assembled transcript.
type Snapshot struct {
	// Final is the accumulated final transcript, segments joined by single
	// spaces.
	Final string

	// Interim is the current in-flight segment, empty when the last result
	// was final.
	Interim string
}

// Update is delivered to subscribers after each applied result.
type Update struct {
	// Result is the transcription result that was applied.
	Result stt.Transcript

	// Snapshot is the assembled state after applying Result.
	Snapshot Snapshot
}

// Subscription is the handle returned by [Assembler.Subscribe]. Cancel it to
// stop receiving updates.
type Subscription struct {
	id uint64
	a  *Assembler
}

// Cancel removes the subscription. Safe to call multiple times.
func (s *Subscription) Cancel() {
	if s == nil || s.a == nil {
		return
	}
	s.a.mu.Lock()
	delete(s.a.subs, s.id)
	s.a.mu.Unlock()
}

// Assembler accumulates transcription results. All methods are safe for
// concurrent use.
type Assembler struct {
	mu         sync.Mutex
	finals     []stt.Transcript
	interim    stt.Transcript
	hasInterim bool
	next       uint64
	subs       map[uint64]func(Update)
}

// New creates an empty [Assembler].
func New() *Assembler {
	return &Assembler{subs: make(map[uint64]func(Update))}
}

// Apply folds one transcription result into the assembled state and returns
// the resulting snapshot.
//
// A final result is appended to the accumulated transcript exactly once and
// clears the interim segment, even when its text is empty. An interim result
// only replaces the interim segment. Confidence and word timings are kept on
// the stored results.
func (a *Assembler) Apply(tr stt.Transcript) Snapshot {
	a.mu.Lock()
	if tr.IsFinal {
		if strings.TrimSpace(tr.Text) != "" {
			a.finals = append(a.finals, tr)
		}
		a.interim = stt.Transcript{}
		a.hasInterim = false
	} else {
		a.interim = tr
		a.hasInterim = true
	}
	snap := a.snapshotLocked()
	subs := make([]func(Update), 0, len(a.subs))
	for _, fn := range a.subs {
		subs = append(subs, fn)
	}
	a.mu.Unlock()

	for _, fn := range subs {
		fn(Update{Result: tr, Snapshot: snap})
	}
	return snap
}

// Snapshot returns the current assembled state.
func (a *Assembler) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Assembler) snapshotLocked() Snapshot {
	parts := make([]string, 0, len(a.finals))
	for _, f := range a.finals {
		parts = append(parts, strings.TrimSpace(f.Text))
	}
	s := Snapshot{Final: strings.Join(parts, " ")}
	if a.hasInterim {
		s.Interim = a.interim.Text
	}
	return s
}

// Finals returns a copy of the final results in arrival order, with their
// confidence scores and word timings.
func (a *Assembler) Finals() []stt.Transcript {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]stt.Transcript, len(a.finals))
	copy(out, a.finals)
	return out
}

// Interim returns the current interim result and whether one is pending.
func (a *Assembler) Interim() (stt.Transcript, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interim, a.hasInterim
}

// Reset clears all assembled state, keeping subscriptions.
func (a *Assembler) Reset() {
	a.mu.Lock()
	a.finals = nil
	a.interim = stt.Transcript{}
	a.hasInterim = false
	a.mu.Unlock()
}

// Subscribe registers fn to be called after every applied result and returns
// its subscription handle. fn runs synchronously on the applying goroutine.
func (a *Assembler) Subscribe(fn func(Update)) *Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	a.subs[a.next] = fn
	return &Subscription{id: a.next, a: a}
}
