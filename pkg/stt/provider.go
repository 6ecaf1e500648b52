// Package stt defines the vendor-agnostic interfaces for streaming
// speech-to-text within Mise.
//
// The two primary abstractions are:
//
//   - [Provider] opens a streaming recognition session for a given
//     [StreamConfig].
//   - [SessionHandle] is an open session: audio goes in as raw chunks,
//     transcripts come out on a channel, and the transport can be probed
//     with a liveness ping.
//
// Implementations are provided by vendor-specific packages (e.g.
// stt/deepgram). The interfaces are intentionally narrow so the connection
// pool stays decoupled from vendor details.
package stt

import (
	"context"
	"errors"
	"time"
)

// ErrSessionClosed is returned by [SessionHandle.SendAudio] after the session
// has been closed, either explicitly or because the transport failed.
var ErrSessionClosed = errors.New("stt: session is closed")

// StreamConfig describes one streaming recognition session.
type StreamConfig struct {
	// Model selects the recognition model (e.g. "nova-2").
	Model string

	// Language is the BCP-47 language code for recognition (e.g. "de", "en-US").
	Language string

	// SampleRate is the audio sample rate in Hz. Zero selects the provider
	// default (16000).
	SampleRate int

	// Channels is the audio channel count. Zero means mono.
	Channels int

	// Encoding names the raw audio encoding sent over the session
	// (e.g. "linear16", "flac"). Empty selects the provider default.
	Encoding string

	// Interim requests interim (non-final) results in addition to finals.
	Interim bool
}

// Provider opens streaming transcription sessions against one vendor.
type Provider interface {
	// Name returns a short provider label for logging and metrics.
	Name() string

	// StartStream opens a new streaming session. ctx governs only the dial;
	// the returned handle is independent of it and stays live until Close is
	// called or the transport fails.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}

// SessionHandle is one open streaming recognition session.
//
// Results are delivered in receipt order on a single channel; the channel is
// closed when the session ends. SendAudio never blocks on the network: chunks
// are queued internally and written by a dedicated goroutine.
type SessionHandle interface {
	// SendAudio queues one audio chunk for delivery. Returns
	// [ErrSessionClosed] once the session has ended.
	SendAudio(chunk []byte) error

	// Results returns the channel of transcription results. The channel is
	// closed when the session terminates for any reason.
	Results() <-chan Transcript

	// Ping measures a transport round trip. Used by the pool's heartbeat to
	// detect silent stalls and to record latency.
	Ping(ctx context.Context) (time.Duration, error)

	// Close terminates the session, flushing any queued audio first.
	// Safe to call multiple times.
	Close() error
}
