package stt

import "time"

// Transcript is a single transcription result streamed back from a speech
// recognition service. Interim transcripts (IsFinal == false) are revisions
// of the utterance currently in flight and may be replaced by later results;
// final transcripts are stable and will not change.
type Transcript struct {
	// Text is the recognised text of the utterance (or the current guess at
	// it for interim results).
	Text string

	// IsFinal reports whether this result is stable. A downstream consumer
	// must treat every non-final result as replaceable.
	IsFinal bool

	// Confidence is the service's confidence in Text, in [0, 1].
	Confidence float64

	// Words carries optional word-level timing detail. May be empty when the
	// service does not provide it.
	Words []WordDetail

	// Received is the local time the result arrived on the socket.
	Received time.Time
}

// WordDetail is per-word timing and confidence information within a transcript.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}
