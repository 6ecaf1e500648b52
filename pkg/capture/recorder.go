package capture

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Default recorder parameters.
const (
	defaultChunkInterval = 250 * time.Millisecond
	defaultMaxDuration   = 5 * time.Minute
)

// Sink receives one audio chunk per chunk interval. A sink error does not
// stop the recording; the recorder counts it and keeps capturing so a
// transient transport failure never loses the user's dictation.
type Sink func(chunk []byte) error

// RecorderConfig configures a [Recorder].
type RecorderConfig struct {
	// ChunkInterval is the time slice per emitted chunk. Default: 250ms.
	ChunkInterval time.Duration

	// MaxDuration is the recording cap. When it elapses the recorder stops
	// itself, flushes, and invokes OnMaxDuration. Default: 5m.
	MaxDuration time.Duration

	// OnMaxDuration is called (once, from the recorder goroutine) when the
	// recording is stopped by the MaxDuration cap. The recorder has already
	// stopped and flushed by then, so the callback must not call Stop from
	// within itself. May be nil.
	OnMaxDuration func()
}

// readEvent is one message from the reader goroutine: a complete (or, at
// stream end, partial) chunk and/or the error that terminated reading.
type readEvent struct {
	chunk []byte
	err   error
}

// Recorder pulls raw audio from a [Stream] and emits fixed-duration chunks
// to a [Sink]. The chunk size in bytes is derived from the stream's
// negotiated sample rate, so byte slicing and time slicing coincide for
// 16-bit PCM.
//
// All methods are safe for concurrent use.
type Recorder struct {
	stream Stream
	sink   Sink
	cfg    RecorderConfig

	mu        sync.Mutex
	running   bool
	sinkErrs  int
	bytesRead int64

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRecorder creates a [Recorder] reading from stream and delivering chunks
// to sink. Zero-value config fields are replaced with defaults.
func NewRecorder(stream Stream, sink Sink, cfg RecorderConfig) *Recorder {
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = defaultChunkInterval
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = defaultMaxDuration
	}
	return &Recorder{
		stream: stream,
		sink:   sink,
		cfg:    cfg,
		done:   make(chan struct{}),
	}
}

// chunkBytes returns the chunk size in bytes for one chunk interval of
// 16-bit PCM at the stream's negotiated rate.
func (r *Recorder) chunkBytes() int {
	c := r.stream.Constraints()
	rate := c.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	ch := c.Channels
	if ch <= 0 {
		ch = 1
	}
	n := int(float64(rate*ch*2) * r.cfg.ChunkInterval.Seconds())
	if n <= 0 {
		n = 2
	}
	return n
}

// Start begins capturing in a background goroutine. It returns an error when
// the recorder was already started or stopped.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("capture: recorder already started")
	}
	select {
	case <-r.done:
		return errors.New("capture: recorder already stopped")
	default:
	}
	r.running = true

	r.wg.Add(1)
	go r.captureLoop()
	return nil
}

// Stop halts capture, flushes any buffered partial chunk to the sink, and
// closes the stream. Blocks until the capture goroutines have exited. Safe
// to call multiple times.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		// Unblock a reader stuck in Stream.Read.
		_ = r.stream.Close()
	})
	r.wg.Wait()
}

// SinkErrors returns the number of chunk deliveries that failed. Monitoring
// only; failed chunks are dropped, not retried.
func (r *Recorder) SinkErrors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sinkErrs
}

// BytesRead returns the total bytes captured so far.
func (r *Recorder) BytesRead() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytesRead
}

// deliver hands one chunk to the sink, recording failures.
func (r *Recorder) deliver(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	r.mu.Lock()
	r.bytesRead += int64(len(chunk))
	r.mu.Unlock()

	if err := r.sink(chunk); err != nil {
		r.mu.Lock()
		r.sinkErrs++
		r.mu.Unlock()
		slog.Warn("audio chunk delivery failed", "size", len(chunk), "error", err)
	}
}

// captureLoop runs the reader goroutine and dispatches its chunks until the
// stream ends, Stop is called, or MaxDuration elapses.
func (r *Recorder) captureLoop() {
	defer r.wg.Done()
	defer r.stream.Close()

	maxTimer := time.NewTimer(r.cfg.MaxDuration)
	defer maxTimer.Stop()

	// The reader goroutine owns the accumulation buffer; completed chunks
	// cross to this goroutine as copies. Capacity 2 leaves room for a final
	// partial chunk plus the terminating error event.
	events := make(chan readEvent, 2)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		size := r.chunkBytes()
		buf := make([]byte, size)
		fill := 0
		for {
			n, err := r.stream.Read(buf[fill:])
			fill += n
			if fill == size {
				chunk := make([]byte, size)
				copy(chunk, buf)
				fill = 0
				select {
				case events <- readEvent{chunk: chunk}:
				case <-r.done:
					return
				}
			}
			if err != nil {
				var partial []byte
				if fill > 0 {
					partial = make([]byte, fill)
					copy(partial, buf[:fill])
				}
				select {
				case events <- readEvent{chunk: partial, err: err}:
				case <-r.done:
					// Best effort: the channel has spare capacity, so a
					// non-blocking send preserves the tail for flushing.
					select {
					case events <- readEvent{chunk: partial, err: err}:
					default:
					}
				}
				return
			}
		}
	}()

	drain := func() {
		for {
			select {
			case ev := <-events:
				r.deliver(ev.chunk)
			default:
				return
			}
		}
	}

	for {
		select {
		case <-r.done:
			drain()
			return
		case <-maxTimer.C:
			r.stopOnce.Do(func() {
				close(r.done)
				_ = r.stream.Close()
			})
			drain()
			if r.cfg.OnMaxDuration != nil {
				r.cfg.OnMaxDuration()
			}
			return
		case ev := <-events:
			r.deliver(ev.chunk)
			if ev.err != nil {
				if !errors.Is(ev.err, io.EOF) {
					slog.Warn("audio stream read failed", "error", ev.err)
				}
				r.stopOnce.Do(func() { close(r.done) })
				return
			}
		}
	}
}
