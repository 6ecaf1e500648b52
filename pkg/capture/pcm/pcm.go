// Package pcm provides an io.Reader-backed capture.Device.
//
// It is the backend used on servers (replaying raw PCM from files or network
// buffers) and in tests. Browser microphones never reach this package; their
// audio arrives pre-encoded over the dictation WebSocket.
package pcm

import (
	"context"
	"io"
	"sync"

	"github.com/mise-kitchen/mise/pkg/capture"
)

// Option is a functional option for configuring a [Device].
type Option func(*Device)

// WithMinSampleRate rejects constraint sets below the given rate with
// capture.ErrUnsupported. Used in tests to exercise fallback negotiation.
func WithMinSampleRate(rate int) Option {
	return func(d *Device) {
		d.minSampleRate = rate
	}
}

// WithPermissionDenied makes every Open fail with capture.ErrPermissionDenied.
func WithPermissionDenied() Option {
	return func(d *Device) {
		d.denied = true
	}
}

// Device is a capture.Device that serves raw 16-bit PCM from an io.Reader
// factory. Each Open call obtains a fresh reader, so a single Device can
// back multiple consecutive recording sessions.
type Device struct {
	source func() (io.Reader, error)

	minSampleRate int
	denied        bool
}

var _ capture.Device = (*Device)(nil)

// NewDevice creates a [Device]. source is called once per Open and must
// return a reader yielding raw PCM matching the accepted constraints.
func NewDevice(source func() (io.Reader, error), opts ...Option) *Device {
	d := &Device{source: source}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Name implements capture.Device.
func (d *Device) Name() string { return "pcm" }

// Open implements capture.Device.
func (d *Device) Open(_ context.Context, c capture.Constraints) (capture.Stream, error) {
	if d.denied {
		return nil, capture.ErrPermissionDenied
	}
	if d.minSampleRate > 0 && c.SampleRate < d.minSampleRate {
		return nil, capture.ErrUnsupported
	}
	r, err := d.source()
	if err != nil {
		return nil, err
	}
	return &stream{r: r, constraints: c}, nil
}

// stream adapts an io.Reader to capture.Stream.
type stream struct {
	r           io.Reader
	constraints capture.Constraints

	mu     sync.Mutex
	closed bool
}

func (s *stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, io.EOF
	}
	return s.r.Read(p)
}

func (s *stream) Constraints() capture.Constraints { return s.constraints }

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
