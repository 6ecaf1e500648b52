// Package capture defines the abstract audio capture layer for Mise.
//
// The two primary abstractions are:
//
//   - [Device] is an audio source that can be opened with a set of
//     [Constraints] and yields a [Stream] of raw audio.
//   - [Recorder] wraps an open stream and segments it into time-sliced
//     chunks that are handed to a caller-supplied sink.
//
// Implementations of [Device] are provided by backend packages (e.g.
// capture/pcm for io.Reader-backed sources; the browser path enters the
// system as a WebSocket relay and never touches a local device). The
// interfaces are intentionally narrow so the dictation pipeline stays
// decoupled from how audio is acquired.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Terminal capture errors. Permission and capability failures are not
// retryable; callers should surface them to the user with guidance instead
// of attempting fallback constraints.
var (
	// ErrPermissionDenied indicates the user or OS refused microphone access.
	ErrPermissionDenied = errors.New("capture: permission denied")

	// ErrUnsupported indicates the device cannot satisfy the constraints at
	// all (missing hardware, unsupported encoding).
	ErrUnsupported = errors.New("capture: unsupported")
)

// Constraints describes the audio parameters requested from a [Device].
type Constraints struct {
	// SampleRate in Hz. Transcription accuracy is best at 16000.
	SampleRate int

	// Channels is the channel count; 1 (mono) for transcription.
	Channels int

	// EchoCancellation requests acoustic echo cancellation when available.
	EchoCancellation bool

	// NoiseSuppression requests noise suppression when available.
	NoiseSuppression bool
}

// Stream is an open audio source delivering raw audio in the negotiated
// format. Read blocks until data is available or the stream ends.
type Stream interface {
	// Read fills p with raw audio bytes, returning io.EOF when the source is
	// exhausted or closed.
	Read(p []byte) (int, error)

	// Constraints reports the constraints the stream actually satisfied,
	// which may be weaker than requested after fallback.
	Constraints() Constraints

	// Close releases the underlying source. Safe to call multiple times.
	Close() error
}

// Device is an audio capture backend.
type Device interface {
	// Name returns a short backend label for logging.
	Name() string

	// Open acquires the audio source with the given constraints. It returns
	// [ErrPermissionDenied] when access is refused and [ErrUnsupported] when
	// the constraints cannot be satisfied.
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// DefaultConstraints is the preferred constraint set for dictation:
// 16 kHz mono with echo cancellation and noise suppression.
var DefaultConstraints = Constraints{
	SampleRate:       16000,
	Channels:         1,
	EchoCancellation: true,
	NoiseSuppression: true,
}

// FallbackLadder is the ordered list of constraint sets tried by [Negotiate]
// after the preferred set fails. Each step asks for less until only a bare
// mono stream remains.
var FallbackLadder = []Constraints{
	{SampleRate: 16000, Channels: 1},
	{SampleRate: 44100, Channels: 1},
	{Channels: 1},
}

// Negotiate opens dev with the preferred constraints, walking down
// [FallbackLadder] when the device rejects a set. A permission error is
// terminal immediately; [ErrUnsupported] from every rung is terminal too.
func Negotiate(ctx context.Context, dev Device, preferred Constraints) (Stream, error) {
	attempts := append([]Constraints{preferred}, FallbackLadder...)

	var lastErr error
	for i, c := range attempts {
		s, err := dev.Open(ctx, c)
		if err == nil {
			if i > 0 {
				slog.Warn("audio constraints degraded",
					"device", dev.Name(),
					"fallback_step", i,
					"sample_rate", c.SampleRate,
					"channels", c.Channels,
				)
			}
			return s, nil
		}
		if errors.Is(err, ErrPermissionDenied) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("capture: no constraint set accepted by %s: %w", dev.Name(), lastErr)
}

// FormatPreference is the ordered list of recording formats, uncompressed
// first because lossless audio transcribes more accurately.
var FormatPreference = []string{"linear16", "flac", "opus", "webm"}

// SelectFormat picks the most preferred entry of [FormatPreference] that the
// backend supports. It returns [ErrUnsupported] when none match.
func SelectFormat(supported []string) (string, error) {
	set := make(map[string]bool, len(supported))
	for _, f := range supported {
		set[f] = true
	}
	for _, f := range FormatPreference {
		if set[f] {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: no usable recording format in %v", ErrUnsupported, supported)
}
