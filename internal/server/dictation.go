package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mise-kitchen/mise/internal/assembler"
	"github.com/mise-kitchen/mise/internal/enrich"
	"github.com/mise-kitchen/mise/internal/pool"
	"github.com/mise-kitchen/mise/internal/store"
	"github.com/mise-kitchen/mise/internal/usage"
	"github.com/mise-kitchen/mise/pkg/stt"
)

// dictationSession is one dictation workflow: a stream configuration, an
// assembler accumulating its transcript, and (while a browser is attached)
// a pooled STT connection.
type dictationSession struct {
	ID        string
	Config    stt.StreamConfig
	instance  int
	asm       *assembler.Assembler
	createdAt time.Time

	mu       sync.Mutex
	conn     *pool.Conn
	attached bool
	lastSeen time.Time
}

// sessionManager tracks dictation sessions and sweeps abandoned ones.
type sessionManager struct {
	pool *pool.Pool
	ttl  time.Duration

	mu           sync.Mutex
	sessions     map[string]*dictationSession
	nextInstance int

	done     chan struct{}
	stopOnce sync.Once
}

func newSessionManager(p *pool.Pool, ttl time.Duration) *sessionManager {
	return &sessionManager{
		pool:     p,
		ttl:      ttl,
		sessions: make(map[string]*dictationSession),
		done:     make(chan struct{}),
	}
}

// start launches the background sweeper.
func (m *sessionManager) start() {
	go func() {
		ticker := time.NewTicker(m.ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

// stop halts the sweeper and closes every session.
func (m *sessionManager) stop() {
	m.stopOnce.Do(func() { close(m.done) })

	m.mu.Lock()
	sessions := make([]*dictationSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*dictationSession)
	m.mu.Unlock()

	for _, s := range sessions {
		s.closeConn()
	}
}

func (m *sessionManager) create(cfg stt.StreamConfig) *dictationSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &dictationSession{
		ID:        uuid.NewString(),
		Config:    cfg,
		instance:  m.nextInstance,
		asm:       assembler.New(),
		createdAt: time.Now(),
		lastSeen:  time.Now(),
	}
	m.nextInstance++
	m.sessions[s.ID] = s
	return s
}

func (m *sessionManager) get(id string) *dictationSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *sessionManager) remove(id string) *dictationSession {
	m.mu.Lock()
	s := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if s != nil {
		s.closeConn()
	}
	return s
}

// sweep closes sessions that have been unattached longer than the TTL.
func (m *sessionManager) sweep() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*dictationSession
	for id, s := range m.sessions {
		s.mu.Lock()
		stale := !s.attached && s.lastSeen.Before(cutoff)
		s.mu.Unlock()
		if stale {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		slog.Info("dictation session expired", "session_id", s.ID)
		s.closeConn()
	}
}

// attach acquires the pooled connection for the session. Each session gets
// its own pool instance so concurrent dictations never share a stream.
func (m *sessionManager) attach(ctx context.Context, s *dictationSession) (*pool.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached {
		return nil, fmt.Errorf("server: session %s already has an active stream", s.ID)
	}

	conn, err := m.pool.GetInstance(ctx, s.Config, s.instance)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	s.attached = true
	s.lastSeen = time.Now()
	return conn, nil
}

func (s *dictationSession) detach() {
	s.mu.Lock()
	s.attached = false
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *dictationSession) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.attached = false
	s.mu.Unlock()
	if conn != nil {
		if err := conn.Close(); err != nil {
			slog.Warn("session connection close failed", "session_id", s.ID, "err", err)
		}
	}
}

// --- HTTP handlers ---

// createSessionRequest is the POST /v1/dictation/sessions body.
type createSessionRequest struct {
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
	Interim  bool   `json:"interim,omitempty"`
}

// createSessionResponse returns the session ID and the WebSocket path the
// browser should connect to.
type createSessionResponse struct {
	ID           string `json:"id"`
	WebSocketURL string `json:"websocket_url"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	sess := s.sessions.create(stt.StreamConfig{
		Model:    req.Model,
		Language: req.Language,
		Interim:  req.Interim,
	})

	slog.Info("dictation session created",
		"session_id", sess.ID,
		"model", req.Model,
		"language", req.Language,
	)

	writeJSON(w, http.StatusCreated, createSessionResponse{
		ID:           sess.ID,
		WebSocketURL: "/v1/dictation/sessions/" + sess.ID + "/ws",
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions.remove(r.PathValue("id")) == nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// transcriptEvent is streamed to the browser for every recognition result.
type transcriptEvent struct {
	Type       string  `json:"type"` // "transcript"
	Text       string  `json:"text"`
	Final      bool    `json:"final"`
	Confidence float64 `json:"confidence"`

	// Assembled is the full final transcript accumulated so far.
	Assembled string `json:"assembled"`
}

// suggestionEvent is streamed after each final result has been enriched.
type suggestionEvent struct {
	Type       string                    `json:"type"` // "suggestion"
	Suggestion store.Suggestion          `json:"suggestion"`
	Similar    []store.SimilarIngredient `json:"similar,omitempty"`
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(r.PathValue("id"))
	if sess == nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	conn, err := s.sessions.attach(r.Context(), sess)
	if err != nil {
		switch {
		case errors.Is(err, usage.ErrQuotaExceeded):
			writeError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, pool.ErrPoolFull):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusConflict, err.Error())
		}
		return
	}
	defer sess.detach()

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", sess.ID, "err", err)
		return
	}
	defer ws.Close(websocket.StatusInternalError, "stream ended")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.metrics.DictationSessions.Add(ctx, 1)
	defer s.metrics.DictationSessions.Add(context.WithoutCancel(ctx), -1)

	slog.Info("dictation stream attached", "session_id", sess.ID, "conn_key", conn.Key())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.relayAudio(ctx, ws, conn) })
	g.Go(func() error { return s.relayResults(ctx, ws, sess, conn) })

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errDictationEnded) &&
		websocket.CloseStatus(err) == -1 {
		slog.Warn("dictation stream ended with error", "session_id", sess.ID, "err", err)
		ws.Close(websocket.StatusInternalError, err.Error())
		return
	}
	ws.Close(websocket.StatusNormalClosure, "")
}

// errDictationEnded reports that the pooled connection went away without a
// terminal failure: pool eviction, explicit session deletion, or shutdown.
// It closes the browser stream normally instead of as an internal error.
var errDictationEnded = errors.New("server: dictation stream ended")

// relayAudio forwards binary frames from the browser into the pooled
// connection. Text frames are ignored.
func (s *Server) relayAudio(ctx context.Context, ws *websocket.Conn, conn *pool.Conn) error {
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageBinary {
			continue
		}
		if err := conn.Send(data); err != nil {
			return fmt.Errorf("server: forward audio: %w", err)
		}
	}
}

// relayResults streams transcript events to the browser and, for each final
// result, runs enrichment and streams the resulting suggestion.
func (s *Server) relayResults(ctx context.Context, ws *websocket.Conn, sess *dictationSession, conn *pool.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tr, ok := <-conn.Results():
			if !ok {
				if conn.State() == pool.StateFailed {
					return pool.ErrReconnectFailed
				}
				return errDictationEnded
			}

			snap := sess.asm.Apply(tr)
			ev := transcriptEvent{
				Type:       "transcript",
				Text:       tr.Text,
				Final:      tr.IsFinal,
				Confidence: tr.Confidence,
				Assembled:  snap.Final,
			}
			if err := writeWS(ctx, ws, ev); err != nil {
				return err
			}

			if !tr.IsFinal || tr.Text == "" {
				continue
			}
			sug, similar := s.processFinal(ctx, tr.Text, tr.Confidence)
			if sug == nil {
				continue
			}
			if err := writeWS(ctx, ws, suggestionEvent{Type: "suggestion", Suggestion: *sug, Similar: similar}); err != nil {
				return err
			}
		}
	}
}

// processFinal enriches one final utterance and persists the outcome. High
// confidence results are applied directly; everything else lands in the
// review queue. Returns nil when persistence failed.
func (s *Server) processFinal(ctx context.Context, text string, confidence float64) (*store.Suggestion, []store.SimilarIngredient) {
	enr := s.enricher.EnrichIngredient(ctx, text, confidence)

	ing := store.Ingredient{
		Name:         enr.Parsed.Name,
		Quantity:     enr.Parsed.Quantity,
		Unit:         enr.Parsed.Unit,
		Price:        enr.Parsed.Price,
		Currency:     enr.Parsed.Currency,
		Tags:         enr.Tags,
		Translations: enr.Translations,
	}

	status := store.SuggestionPending
	if enr.Decision == enrich.DecisionAutoApply {
		if err := s.store.CreateIngredient(ctx, &ing); err != nil {
			slog.Warn("auto-apply failed, queueing for review", "name", ing.Name, "err", err)
		} else {
			status = store.SuggestionAutoApplied
			s.indexIngredient(ctx, &ing)
		}
	}

	sug := store.Suggestion{
		SourceText:     text,
		Ingredient:     ing,
		Confidence:     enr.Confidence,
		Status:         status,
		MatchedKeyword: enr.MatchedKeyword,
		Degraded:       enr.Degraded,
	}
	if err := s.store.CreateSuggestion(ctx, &sug); err != nil {
		slog.Error("suggestion persistence failed", "source_text", text, "err", err)
		return nil, nil
	}

	var similar []store.SimilarIngredient
	if s.semantic != nil && ing.Name != "" {
		found, err := s.semantic.FindSimilar(ctx, ing.Name, 3)
		if err != nil {
			slog.Warn("similarity lookup failed", "name", ing.Name, "err", err)
		} else {
			similar = found
		}
	}
	return &sug, similar
}

func writeWS(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("server: encode event: %w", err)
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
