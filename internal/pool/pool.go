// Package pool manages keyed, reusable speech-to-text streaming connections.
//
// A [Pool] hands out at most one live connection per key, where the key is
// derived from the stream's model, language, and instance number. Entries are
// reused with a last-used refresh; at capacity the least-recently-used idle
// entry is evicted before a new connection is created. Creation validates the
// caller's quota through the usage client first.
//
// Each connection runs its own heartbeat and an explicit reconnection state
// machine (Idle, Connecting, Backoff, Connected, Failed) with capped
// exponential backoff. Lifecycle transitions are published to observers
// registered via [Pool.Subscribe].
package pool

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/mise-kitchen/mise/internal/observe"
	"github.com/mise-kitchen/mise/pkg/stt"
)

// Sentinel errors returned by [Pool.Get].
var (
	// ErrPoolClosed is returned after [Pool.Close].
	ErrPoolClosed = errors.New("pool: closed")

	// ErrPoolFull is returned when the pool is at capacity and no idle entry
	// can be evicted.
	ErrPoolFull = errors.New("pool: at capacity with no idle connections")

	// ErrReconnectFailed marks a connection whose reconnection attempts are
	// exhausted.
	ErrReconnectFailed = errors.New("pool: reconnection attempts exhausted")
)

// Default pool parameters.
const (
	defaultMaxConnections       = 4
	defaultIdleTimeout          = 2 * time.Minute
	defaultHeartbeatInterval    = 15 * time.Second
	defaultHeartbeatTimeout     = 45 * time.Second
	defaultBackoffBase          = 1 * time.Second
	defaultBackoffMultiplier    = 2.0
	defaultBackoffMax           = 30 * time.Second
	defaultMaxReconnectAttempts = 5
	defaultDialTimeout          = 10 * time.Second
)

// Config holds the pool tuning knobs. Zero values are replaced with defaults.
type Config struct {
	// MaxConnections caps the number of live connections. Default: 4.
	MaxConnections int

	// IdleTimeout is how long an entry must be unused before it becomes an
	// eviction candidate. Default: 2m.
	IdleTimeout time.Duration

	// HeartbeatInterval is how often each connection is pinged. Default: 15s.
	HeartbeatInterval time.Duration

	// HeartbeatTimeout is the inbound-activity window after which a
	// connection with failing pings is considered stalled. Default: 45s.
	HeartbeatTimeout time.Duration

	// BackoffBase is the delay before the second reconnection attempt.
	// Default: 1s.
	BackoffBase time.Duration

	// BackoffMultiplier grows the delay each attempt. Default: 2.
	BackoffMultiplier float64

	// BackoffMax caps the per-attempt delay. Default: 30s.
	BackoffMax time.Duration

	// MaxReconnectAttempts bounds reconnection before the connection is
	// terminally failed. Default: 5.
	MaxReconnectAttempts int

	// DialTimeout bounds each individual dial. Default: 10s.
	DialTimeout time.Duration
}

func (c *Config) normalize() {
	if c.MaxConnections <= 0 {
		c.MaxConnections = defaultMaxConnections
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = defaultBackoffMultiplier
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = defaultBackoffMax
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
}

// QuotaValidator gates connection creation on the caller's remaining
// transcription allowance. Implemented by the usage client.
type QuotaValidator interface {
	Validate(ctx context.Context) error
}

// Option is a functional option for configuring a [Pool].
type Option func(*Pool)

// WithQuotaValidator installs a quota check run before every connection
// creation. Without it, creation is not gated.
func WithQuotaValidator(v QuotaValidator) Option {
	return func(p *Pool) {
		p.quota = v
	}
}

// WithMetrics replaces the metrics instance. Used in tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}

// Pool manages keyed streaming connections to a speech-to-text provider.
// All methods are safe for concurrent use.
type Pool struct {
	cfg      Config
	provider stt.Provider
	quota    QuotaValidator
	metrics  *observe.Metrics
	events   *broadcaster

	group singleflight.Group

	mu     sync.Mutex
	conns  map[string]*Conn
	closed bool
}

// New creates a [Pool] backed by the given provider.
func New(provider stt.Provider, cfg Config, opts ...Option) *Pool {
	cfg.normalize()
	p := &Pool{
		cfg:      cfg,
		provider: provider,
		events:   newBroadcaster(),
		conns:    make(map[string]*Conn),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Key derives the pool key for a stream config and instance number. Repeated
// calls with equal config and instance yield the same key.
func Key(cfg stt.StreamConfig, instance int) string {
	model := cfg.Model
	if model == "" {
		model = "default"
	}
	lang := cfg.Language
	if lang == "" {
		lang = "default"
	}
	return strings.Join([]string{model, lang, strconv.Itoa(instance)}, "/")
}

// Subscribe registers a lifecycle event handler and returns its subscription
// handle. Cancel the handle to stop receiving events.
func (p *Pool) Subscribe(h Handler) *Subscription {
	return p.events.subscribe(h)
}

// Get returns the pooled connection for cfg at instance 0, creating it when
// absent. See [Pool.GetInstance].
func (p *Pool) Get(ctx context.Context, cfg stt.StreamConfig) (*Conn, error) {
	return p.GetInstance(ctx, cfg, 0)
}

// GetInstance returns the pooled connection for the given config and instance
// number. An existing live entry is reused with a last-used refresh.
// Concurrent callers for the same key are collapsed into a single creation.
//
// At capacity, the least-recently-used idle entry is evicted first; when no
// entry is idle, [ErrPoolFull] is returned. Creation validates quota and may
// return an error wrapping the usage client's quota-exceeded sentinel.
func (p *Pool) GetInstance(ctx context.Context, cfg stt.StreamConfig, instance int) (*Conn, error) {
	key := Key(cfg, instance)

	if c, ok := p.lookup(key); ok {
		return c, nil
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		if c, ok := p.lookup(key); ok {
			return c, nil
		}
		return p.create(ctx, key, cfg)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Conn), nil
}

// lookup returns the live entry for key, refreshing its last-used timestamp.
func (p *Pool) lookup(key string) (*Conn, bool) {
	p.mu.Lock()
	c, ok := p.conns[key]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	if c.State() == StateFailed {
		return nil, false
	}
	c.touch()
	return c, true
}

// create builds, dials, and registers a new connection for key.
func (p *Pool) create(ctx context.Context, key string, cfg stt.StreamConfig) (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	if p.quota != nil {
		if err := p.quota.Validate(ctx); err != nil {
			p.events.publish(Event{Kind: EventQuotaExceeded, Key: key, Err: err})
			return nil, fmt.Errorf("pool: create connection %q: %w", key, err)
		}
	}

	if err := p.makeRoom(); err != nil {
		return nil, err
	}

	c := newConn(p, key, cfg)
	if err := c.connect(ctx); err != nil {
		return nil, fmt.Errorf("pool: create connection %q: %w", key, err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		c.shutdown(ErrPoolClosed)
		return nil, ErrPoolClosed
	}
	p.conns[key] = c
	p.mu.Unlock()

	p.metrics.PoolConnections.Add(context.Background(), 1)
	return c, nil
}

// makeRoom evicts the least-recently-used idle entry when the pool is at
// capacity. Returns [ErrPoolFull] when every entry is busy.
func (p *Pool) makeRoom() error {
	p.mu.Lock()
	if len(p.conns) < p.cfg.MaxConnections {
		p.mu.Unlock()
		return nil
	}

	var victim *Conn
	var oldest time.Time
	for _, c := range p.conns {
		st := c.Stats()
		if time.Since(st.LastUsed) < p.cfg.IdleTimeout {
			continue
		}
		if victim == nil || st.LastUsed.Before(oldest) {
			victim = c
			oldest = st.LastUsed
		}
	}
	p.mu.Unlock()

	if victim == nil {
		return ErrPoolFull
	}
	victim.shutdown(nil)
	return nil
}

// remove drops key from the pool map. Called from the connection's shutdown
// path only.
func (p *Pool) remove(key string) {
	p.mu.Lock()
	_, ok := p.conns[key]
	delete(p.conns, key)
	p.mu.Unlock()
	if ok {
		p.metrics.PoolConnections.Add(context.Background(), -1)
	}
}

// Len returns the number of live connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// StatsAll returns snapshots of every live connection, for diagnostics.
func (p *Pool) StatsAll() []Stats {
	p.mu.Lock()
	conns := make([]*Conn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	out := make([]Stats, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Stats())
	}
	return out
}

// Close shuts down every connection and rejects further Get calls. Safe to
// call multiple times.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := make([]*Conn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	for _, c := range conns {
		c.shutdown(nil)
	}
	return nil
}

// otelAttrs wraps attributes for metric recording.
func otelAttrs(attrs ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributes(attrs...)
}
