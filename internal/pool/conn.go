package pool

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mise-kitchen/mise/internal/observe"
	"github.com/mise-kitchen/mise/pkg/stt"
)

// backoffDelay returns the wait after the given failed attempt (1-based):
// base times multiplier^(attempt-1), capped at the configured maximum.
func backoffDelay(cfg Config, attempt int) time.Duration {
	d := float64(cfg.BackoffBase) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if d > float64(cfg.BackoffMax) {
		return cfg.BackoffMax
	}
	return time.Duration(d)
}

// ErrNotConnected is returned by [Conn.Send] while the connection is not in
// [StateConnected]. Sending while reconnecting triggers no data loss upstream;
// callers keep capturing and retry on the next chunk.
var ErrNotConnected = errors.New("pool: connection not established")

// State is the connection lifecycle state.
type State int

const (
	// StateIdle: created but not yet dialed.
	StateIdle State = iota

	// StateConnecting: a dial attempt is in flight.
	StateConnecting

	// StateBackoff: waiting between reconnection attempts.
	StateBackoff

	// StateConnected: the transport is live.
	StateConnected

	// StateFailed: reconnection attempts exhausted. Terminal.
	StateFailed
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateBackoff:
		return "backoff"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time snapshot of a connection's counters.
type Stats struct {
	Key          string
	State        State
	StartedAt    time.Time
	LastActivity time.Time
	LastUsed     time.Time
	Messages     int64
	Errors       int64
	BytesSent    int64
	LastPing     time.Duration
}

// Conn is one pooled transcription connection. It owns the underlying
// [stt.SessionHandle], a heartbeat goroutine, and the reconnection state
// machine. The results channel returned by [Conn.Results] stays stable across
// reconnects.
//
// All methods are safe for concurrent use.
type Conn struct {
	key  string
	cfg  stt.StreamConfig
	pool *Pool

	mu           sync.Mutex
	state        State
	session      stt.SessionHandle
	startedAt    time.Time
	lastActivity time.Time
	lastUsed     time.Time
	messages     int64
	errors       int64
	bytesSent    int64
	lastPing     time.Duration

	results     chan stt.Transcript
	reconnectCh chan struct{} // signalled when a disconnect is detected
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

func newConn(p *Pool, key string, cfg stt.StreamConfig) *Conn {
	now := time.Now()
	return &Conn{
		key:          key,
		cfg:          cfg,
		pool:         p,
		state:        StateIdle,
		startedAt:    now,
		lastActivity: now,
		lastUsed:     now,
		results:      make(chan stt.Transcript, 16),
		reconnectCh:  make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Key returns the pool key of this connection.
func (c *Conn) Key() string { return c.key }

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the connection counters.
func (c *Conn) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Key:          c.key,
		State:        c.state,
		StartedAt:    c.startedAt,
		LastActivity: c.lastActivity,
		LastUsed:     c.lastUsed,
		Messages:     c.messages,
		Errors:       c.errors,
		BytesSent:    c.bytesSent,
		LastPing:     c.lastPing,
	}
}

// Results returns the transcript channel. It remains valid across
// reconnections and is closed when the connection leaves the pool.
func (c *Conn) Results() <-chan stt.Transcript {
	return c.results
}

// Send forwards one audio chunk to the speech service. When the connection is
// not established it returns [ErrNotConnected] and signals the reconnection
// machinery; the caller should keep capturing and retry with later chunks.
func (c *Conn) Send(chunk []byte) error {
	c.mu.Lock()
	sess := c.session
	connected := c.state == StateConnected
	c.lastUsed = time.Now()
	c.mu.Unlock()

	if !connected || sess == nil {
		c.notifyDisconnect()
		return ErrNotConnected
	}

	if err := sess.SendAudio(chunk); err != nil {
		c.mu.Lock()
		c.errors++
		c.mu.Unlock()
		c.pool.metrics.RecordConnError(context.Background(), c.key, "send")
		c.notifyDisconnect()
		return err
	}

	c.mu.Lock()
	c.bytesSent += int64(len(chunk))
	c.mu.Unlock()
	c.pool.metrics.AudioBytesSent.Add(context.Background(), int64(len(chunk)),
		otelAttrs(observe.Attr("conn_key", c.key)))
	return nil
}

// Close removes the connection from the pool and releases its resources.
// Safe to call multiple times. Heartbeat-timeout cleanup, pool eviction, and
// explicit Close all funnel through this path.
func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

// shutdown is the single cleanup path: stop the lifecycle goroutine, close
// the transport, drop the entry from the pool, and emit Disconnected.
func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		sess := c.session
		c.session = nil
		if c.state != StateFailed {
			c.state = StateIdle
		}
		c.mu.Unlock()

		if sess != nil {
			_ = sess.Close()
		}

		c.pool.remove(c.key)
		c.pool.events.publish(Event{Kind: EventDisconnected, Key: c.key, Err: cause})

		go func() {
			c.wg.Wait()
			close(c.results)
		}()
	})
}

// touch refreshes the last-used timestamp. Called by the pool when an
// existing entry is handed out again.
func (c *Conn) touch() {
	c.mu.Lock()
	c.lastUsed = time.Now()
	c.mu.Unlock()
}

// notifyDisconnect signals the lifecycle loop that the transport is gone.
// Only the first signal per reconnection cycle has effect.
func (c *Conn) notifyDisconnect() {
	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}

// connect performs the initial dial. Runs synchronously inside pool.Get so
// the caller observes dial errors directly.
func (c *Conn) connect(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateConnecting
	c.mu.Unlock()

	sess, err := c.pool.provider.StartStream(ctx, c.cfg)
	if err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		return err
	}

	c.adopt(sess)
	c.pool.events.publish(Event{Kind: EventConnected, Key: c.key})

	c.wg.Add(1)
	go c.lifecycleLoop()
	return nil
}

// adopt installs a new session, resets the error counter, and starts the
// result pump for it. Config and key are untouched; the socket is swapped in
// place.
func (c *Conn) adopt(sess stt.SessionHandle) {
	c.mu.Lock()
	c.session = sess
	c.state = StateConnected
	c.errors = 0
	c.lastActivity = time.Now()
	c.mu.Unlock()

	c.wg.Add(1)
	go c.pump(sess)
}

// pump forwards one session's transcripts into the stable results channel.
// When the session channel closes the transport is gone; the lifecycle loop
// is signalled to reconnect.
func (c *Conn) pump(sess stt.SessionHandle) {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case tr, ok := <-sess.Results():
			if !ok {
				c.notifyDisconnect()
				return
			}
			c.mu.Lock()
			c.messages++
			c.lastActivity = tr.Received
			if c.lastActivity.IsZero() {
				c.lastActivity = time.Now()
			}
			c.mu.Unlock()
			c.pool.metrics.RecordTranscript(context.Background(), c.key, tr.IsFinal)

			select {
			case c.results <- tr:
			case <-c.done:
				return
			}
		}
	}
}

// lifecycleLoop runs heartbeats and serves reconnect signals. Because all
// reconnection runs on this single goroutine, the terminal
// ReconnectionFailed event can only ever fire once.
func (c *Conn) lifecycleLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pool.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.heartbeat()
		case <-c.reconnectCh:
			if !c.reconnect() {
				return
			}
		}
	}
}

// heartbeat pings the transport and records round-trip latency. A failed
// ping combined with no inbound activity within the stall timeout marks the
// connection stalled and triggers reconnection.
func (c *Conn) heartbeat() {
	c.mu.Lock()
	sess := c.session
	connected := c.state == StateConnected
	last := c.lastActivity
	c.mu.Unlock()

	if !connected || sess == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.pool.cfg.HeartbeatInterval)
	rtt, err := sess.Ping(ctx)
	cancel()

	if err == nil {
		c.mu.Lock()
		c.lastPing = rtt
		c.lastActivity = time.Now()
		c.mu.Unlock()
		c.pool.metrics.ConnLatency.Record(context.Background(), rtt.Seconds(),
			otelAttrs(observe.Attr("conn_key", c.key)))
		return
	}

	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
	c.pool.metrics.RecordConnError(context.Background(), c.key, "heartbeat")

	if time.Since(last) > c.pool.cfg.HeartbeatTimeout {
		slog.Warn("connection stalled, reconnecting",
			"conn_key", c.key,
			"last_activity", last,
			"error", err,
		)
		c.notifyDisconnect()
	}
}

// reconnect attempts to re-establish the transport with exponential backoff.
// Returns false when attempts are exhausted and the connection is terminally
// failed.
func (c *Conn) reconnect() bool {
	// Drop the dead session before dialing anew.
	c.mu.Lock()
	if c.state == StateFailed {
		c.mu.Unlock()
		return false
	}
	old := c.session
	c.session = nil
	c.state = StateConnecting
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	cfg := c.pool.cfg

	for attempt := 1; attempt <= cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-c.done:
			return false
		default:
		}

		c.pool.events.publish(Event{Kind: EventReconnecting, Key: c.key, Attempt: attempt})
		slog.Info("attempting reconnection",
			"conn_key", c.key,
			"attempt", attempt,
			"max_attempts", cfg.MaxReconnectAttempts,
		)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
		sess, err := c.pool.provider.StartStream(ctx, c.cfg)
		cancel()
		if err == nil {
			select {
			case <-c.done:
				_ = sess.Close()
				return false
			default:
			}
			// Drain any disconnect signal raised while we were dialing so the
			// fresh session is not immediately torn down.
			select {
			case <-c.reconnectCh:
			default:
			}
			c.adopt(sess)
			c.pool.events.publish(Event{Kind: EventConnected, Key: c.key})
			c.pool.metrics.RecordReconnect(context.Background(), c.key, "success")
			slog.Info("reconnection successful", "conn_key", c.key, "attempt", attempt)
			return true
		}

		delay := backoffDelay(cfg, attempt)
		c.pool.metrics.RecordReconnect(context.Background(), c.key, "retry")
		slog.Warn("reconnection attempt failed",
			"conn_key", c.key,
			"attempt", attempt,
			"backoff", delay,
			"error", err,
		)

		if attempt == cfg.MaxReconnectAttempts {
			break
		}

		c.mu.Lock()
		c.state = StateBackoff
		c.mu.Unlock()

		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}
	}

	c.mu.Lock()
	c.state = StateFailed
	c.mu.Unlock()

	c.pool.metrics.RecordReconnect(context.Background(), c.key, "exhausted")
	slog.Error("reconnection failed after max attempts",
		"conn_key", c.key,
		"max_attempts", cfg.MaxReconnectAttempts,
	)
	c.pool.events.publish(Event{
		Kind: EventReconnectionFailed,
		Key:  c.key,
		Err:  ErrReconnectFailed,
	})
	c.shutdown(ErrReconnectFailed)
	return false
}
