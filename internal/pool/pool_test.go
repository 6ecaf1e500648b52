package pool

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mise-kitchen/mise/internal/usage"
	"github.com/mise-kitchen/mise/pkg/stt"
	"github.com/mise-kitchen/mise/pkg/stt/deepgram"
	"github.com/mise-kitchen/mise/pkg/stt/mock"
)

// fastConfig keeps timers short so lifecycle tests finish quickly.
func fastConfig() Config {
	return Config{
		MaxConnections:       4,
		IdleTimeout:          time.Millisecond,
		HeartbeatInterval:    10 * time.Millisecond,
		HeartbeatTimeout:     20 * time.Millisecond,
		BackoffBase:          2 * time.Millisecond,
		BackoffMultiplier:    2,
		BackoffMax:           8 * time.Millisecond,
		MaxReconnectAttempts: 3,
		DialTimeout:          time.Second,
	}
}

// seqProvider serves a scripted sequence of session handles. A nil entry, or
// an exhausted script, yields a dial error.
type seqProvider struct {
	mu      sync.Mutex
	handles []stt.SessionHandle
	calls   int
}

func (p *seqProvider) Name() string { return "seq" }

func (p *seqProvider) StartStream(_ context.Context, _ stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.handles) == 0 {
		return nil, errors.New("seq: dial refused")
	}
	h := p.handles[0]
	p.handles = p.handles[1:]
	if h == nil {
		return nil, errors.New("seq: dial refused")
	}
	return h, nil
}

func (p *seqProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// quotaFunc adapts a function to QuotaValidator.
type quotaFunc func(context.Context) error

func (f quotaFunc) Validate(ctx context.Context) error { return f(ctx) }

// eventRecorder collects published events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *eventRecorder) attempts() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, ev := range r.events {
		if ev.Kind == EventReconnecting {
			out = append(out, ev.Attempt)
		}
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestKey_Deterministic(t *testing.T) {
	cfg := stt.StreamConfig{Model: "nova-2", Language: "de"}
	a := Key(cfg, 0)
	b := Key(cfg, 0)
	if a != b {
		t.Errorf("Key not deterministic: %q vs %q", a, b)
	}
	if a != "nova-2/de/0" {
		t.Errorf("Key = %q, want nova-2/de/0", a)
	}
	if Key(cfg, 1) == a {
		t.Error("instance must distinguish keys")
	}
}

func TestGet_ReusesConnectionForSameKey(t *testing.T) {
	prov := &mock.Provider{}
	p := New(prov, fastConfig())
	defer p.Close()

	cfg := stt.StreamConfig{Model: "nova-2", Language: "de"}
	a, err := p.Get(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := p.Get(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a != b {
		t.Error("repeated Get for the same config must return the same connection")
	}
	if got := prov.CallCount(); got != 1 {
		t.Errorf("StartStream calls = %d, want 1", got)
	}
	if p.Len() != 1 {
		t.Errorf("pool size = %d, want 1", p.Len())
	}
}

func TestGet_DistinctKeysDistinctConnections(t *testing.T) {
	prov := &mock.Provider{}
	p := New(prov, fastConfig())
	defer p.Close()

	a, err := p.Get(context.Background(), stt.StreamConfig{Model: "nova-2", Language: "de"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := p.Get(context.Background(), stt.StreamConfig{Model: "nova-2", Language: "en"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a == b {
		t.Error("distinct languages must map to distinct connections")
	}
	if p.Len() != 2 {
		t.Errorf("pool size = %d, want 2", p.Len())
	}
}

func TestGet_ConcurrentCallersCollapsed(t *testing.T) {
	prov := &mock.Provider{}
	p := New(prov, fastConfig())
	defer p.Close()

	cfg := stt.StreamConfig{Model: "nova-2", Language: "de"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Get(context.Background(), cfg); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := prov.CallCount(); got != 1 {
		t.Errorf("StartStream calls = %d, want 1 (singleflight)", got)
	}
}

func TestGet_QuotaExceeded(t *testing.T) {
	prov := &mock.Provider{}
	rec := &eventRecorder{}
	p := New(prov, fastConfig(), WithQuotaValidator(quotaFunc(func(context.Context) error {
		return usage.ErrQuotaExceeded
	})))
	defer p.Close()
	sub := p.Subscribe(rec.handle)
	defer sub.Cancel()

	_, err := p.Get(context.Background(), stt.StreamConfig{Model: "nova-2", Language: "de"})
	if !errors.Is(err, usage.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	if prov.CallCount() != 0 {
		t.Error("no connection may be dialed when quota is exhausted")
	}
	if rec.count(EventQuotaExceeded) != 1 {
		t.Errorf("QuotaExceeded events = %d, want 1", rec.count(EventQuotaExceeded))
	}
}

func TestGet_EvictsIdleLRUAtCapacity(t *testing.T) {
	prov := &mock.Provider{}
	cfg := fastConfig()
	cfg.MaxConnections = 2
	cfg.IdleTimeout = time.Millisecond
	rec := &eventRecorder{}
	p := New(prov, cfg)
	defer p.Close()
	sub := p.Subscribe(rec.handle)
	defer sub.Cancel()

	oldest, err := p.Get(context.Background(), stt.StreamConfig{Model: "nova-2", Language: "de"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(3 * time.Millisecond)
	if _, err := p.Get(context.Background(), stt.StreamConfig{Model: "nova-2", Language: "en"}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(3 * time.Millisecond)

	if _, err := p.Get(context.Background(), stt.StreamConfig{Model: "nova-2", Language: "fr"}); err != nil {
		t.Fatalf("Get: %v", err)
	}

	if p.Len() != 2 {
		t.Errorf("pool size = %d, want 2 after eviction", p.Len())
	}
	waitFor(t, func() bool { return rec.count(EventDisconnected) == 1 })
	rec.mu.Lock()
	var evictedKey string
	for _, ev := range rec.events {
		if ev.Kind == EventDisconnected {
			evictedKey = ev.Key
		}
	}
	rec.mu.Unlock()
	if evictedKey != oldest.Key() {
		t.Errorf("evicted %q, want least-recently-used %q", evictedKey, oldest.Key())
	}
}

func TestGet_PoolFullWhenNothingIdle(t *testing.T) {
	prov := &mock.Provider{}
	cfg := fastConfig()
	cfg.MaxConnections = 1
	cfg.IdleTimeout = time.Hour
	p := New(prov, cfg)
	defer p.Close()

	if _, err := p.Get(context.Background(), stt.StreamConfig{Model: "nova-2", Language: "de"}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	_, err := p.Get(context.Background(), stt.StreamConfig{Model: "nova-2", Language: "en"})
	if !errors.Is(err, ErrPoolFull) {
		t.Fatalf("err = %v, want ErrPoolFull", err)
	}
}

func TestSend_RecordsBytesAndRefreshesUsage(t *testing.T) {
	sess := &mock.Session{ResultsCh: make(chan stt.Transcript, 1)}
	prov := &mock.Provider{Session: sess}
	p := New(prov, fastConfig())
	defer p.Close()

	c, err := p.Get(context.Background(), stt.StreamConfig{Model: "nova-2", Language: "de"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := c.Send(make([]byte, 320)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := c.Stats().BytesSent; got != 320 {
		t.Errorf("BytesSent = %d, want 320", got)
	}
	if sess.SendAudioCallCount() != 1 {
		t.Errorf("SendAudio calls = %d, want 1", sess.SendAudioCallCount())
	}
}

func TestResults_StableAcrossReconnect(t *testing.T) {
	s1 := &mock.Session{ResultsCh: make(chan stt.Transcript, 1)}
	s2 := &mock.Session{ResultsCh: make(chan stt.Transcript, 1)}
	prov := &seqProvider{handles: []stt.SessionHandle{s1, s2}}
	p := New(prov, fastConfig())
	defer p.Close()

	c, err := p.Get(context.Background(), stt.StreamConfig{Model: "nova-2", Language: "de"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	results := c.Results()

	s1.ResultsCh <- stt.Transcript{Text: "before", IsFinal: true}
	if tr := <-results; tr.Text != "before" {
		t.Errorf("Text = %q, want before", tr.Text)
	}

	// Dropping the session's channel simulates a transport loss.
	close(s1.ResultsCh)
	waitFor(t, func() bool { return c.State() == StateConnected && prov.callCount() == 2 })

	s2.ResultsCh <- stt.Transcript{Text: "after", IsFinal: true}
	if tr := <-results; tr.Text != "after" {
		t.Errorf("Text = %q, want after (same channel after reconnect)", tr.Text)
	}
	if got := c.Stats().Errors; got != 0 {
		t.Errorf("Errors = %d, want 0 after successful reconnect", got)
	}
}

func TestHeartbeat_StallTriggersReconnect(t *testing.T) {
	s1 := &mock.Session{ResultsCh: make(chan stt.Transcript), PingErr: errors.New("ping timeout")}
	s2 := &mock.Session{ResultsCh: make(chan stt.Transcript, 1)}
	prov := &seqProvider{handles: []stt.SessionHandle{s1, s2}}
	p := New(prov, fastConfig())
	defer p.Close()

	c, err := p.Get(context.Background(), stt.StreamConfig{Model: "nova-2", Language: "de"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	waitFor(t, func() bool { return prov.callCount() == 2 && c.State() == StateConnected })
}

func TestReconnect_ExhaustionEmitsSingleTerminalEvent(t *testing.T) {
	s1 := &mock.Session{ResultsCh: make(chan stt.Transcript)}
	prov := &seqProvider{handles: []stt.SessionHandle{s1}}
	cfg := fastConfig()
	cfg.MaxReconnectAttempts = 5
	rec := &eventRecorder{}
	p := New(prov, cfg)
	defer p.Close()
	sub := p.Subscribe(rec.handle)
	defer sub.Cancel()

	c, err := p.Get(context.Background(), stt.StreamConfig{Model: "nova-2", Language: "de"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	close(s1.ResultsCh)
	waitFor(t, func() bool { return rec.count(EventReconnectionFailed) >= 1 })
	// Give any stray duplicate a chance to surface.
	time.Sleep(20 * time.Millisecond)

	if got := rec.count(EventReconnectionFailed); got != 1 {
		t.Fatalf("terminal events = %d, want exactly 1", got)
	}
	if got := rec.attempts(); len(got) != 5 {
		t.Errorf("Reconnecting events = %v, want attempts 1..5", got)
	} else {
		for i, a := range got {
			if a != i+1 {
				t.Errorf("attempt[%d] = %d, want %d", i, a, i+1)
			}
		}
	}
	if c.State() != StateFailed {
		t.Errorf("state = %v, want failed", c.State())
	}
	if p.Len() != 0 {
		t.Errorf("pool size = %d, want 0 after terminal failure", p.Len())
	}
	if !errors.Is(c.Send(nil), ErrNotConnected) {
		t.Error("Send after terminal failure must report not connected")
	}
}

func TestReconnect_SingleDialAfterTransportDrop(t *testing.T) {
	// Real transport, not the mock: the first upgrade is cut server-side,
	// every later one stays open. One drop must cost exactly one extra dial.
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			ws.Close(websocket.StatusAbnormalClosure, "transport cut")
			return
		}
		defer ws.Close(websocket.StatusNormalClosure, "")
		for {
			typ, data, err := ws.Read(r.Context())
			if err != nil {
				return
			}
			if typ == websocket.MessageText && strings.Contains(string(data), "CloseStream") {
				return
			}
		}
	}))
	defer srv.Close()

	prov, err := deepgram.New("test-key",
		deepgram.WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("deepgram.New: %v", err)
	}

	cfg := fastConfig()
	cfg.HeartbeatInterval = time.Hour
	p := New(prov, cfg)
	defer p.Close()

	c, err := p.Get(context.Background(), stt.StreamConfig{Model: "nova-2", Language: "de"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	waitFor(t, func() bool { return dials.Load() == 2 && c.State() == StateConnected })

	// The adopted session must stay up once the server behaves.
	time.Sleep(50 * time.Millisecond)
	if got := dials.Load(); got != 2 {
		t.Fatalf("dial count = %d, want exactly 2 (initial + one reconnect)", got)
	}
	if c.State() != StateConnected {
		t.Errorf("state = %v, want connected", c.State())
	}
}

func TestBackoffDelay_CappedNonDecreasing(t *testing.T) {
	cfg := Config{BackoffBase: time.Second, BackoffMultiplier: 2, BackoffMax: 30 * time.Second}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	prev := time.Duration(0)
	for i, w := range want {
		got := backoffDelay(cfg, i+1)
		if got != w {
			t.Errorf("backoffDelay(%d) = %v, want %v", i+1, got, w)
		}
		if got < prev {
			t.Errorf("backoff decreased at attempt %d: %v < %v", i+1, got, prev)
		}
		prev = got
	}
}

func TestClose_RejectsFurtherGets(t *testing.T) {
	sess := &mock.Session{ResultsCh: make(chan stt.Transcript)}
	prov := &mock.Provider{Session: sess}
	p := New(prov, fastConfig())

	if _, err := p.Get(context.Background(), stt.StreamConfig{Model: "nova-2", Language: "de"}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := p.Get(context.Background(), stt.StreamConfig{Model: "nova-2", Language: "en"})
	if !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("err = %v, want ErrPoolClosed", err)
	}
	if p.Len() != 0 {
		t.Errorf("pool size = %d, want 0 after Close", p.Len())
	}
	waitFor(t, func() bool { return sess.CloseCount() >= 1 })
}

func TestSubscription_CancelStopsDelivery(t *testing.T) {
	prov := &mock.Provider{}
	rec := &eventRecorder{}
	p := New(prov, fastConfig())
	defer p.Close()

	sub := p.Subscribe(rec.handle)
	if _, err := p.Get(context.Background(), stt.StreamConfig{Model: "nova-2", Language: "de"}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.count(EventConnected) != 1 {
		t.Fatalf("Connected events = %d, want 1", rec.count(EventConnected))
	}

	sub.Cancel()
	if _, err := p.Get(context.Background(), stt.StreamConfig{Model: "nova-2", Language: "en"}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.count(EventConnected) != 1 {
		t.Error("cancelled subscription must not receive further events")
	}
}
