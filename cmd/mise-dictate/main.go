// Command mise-dictate streams raw PCM audio from a file or stdin into a
// running Mise server and prints the transcript and suggestion events as
// they arrive. It drives the same dictation WebSocket the browser uses, so
// it doubles as a smoke test for the whole pipeline:
//
//	sox kitchen.wav -t raw -r 16000 -c 1 -b 16 -e signed - | mise-dictate
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"

	"github.com/mise-kitchen/mise/internal/config"
	"github.com/mise-kitchen/mise/internal/store"
	"github.com/mise-kitchen/mise/pkg/capture"
	"github.com/mise-kitchen/mise/pkg/capture/pcm"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	serverURL := flag.String("server", "http://localhost:8080", "base URL of the Mise server")
	configPath := flag.String("config", "mise.yaml", "YAML config file; its capture block shapes the audio chunks")
	inputPath := flag.String("file", "-", "raw 16-bit PCM input file, \"-\" for stdin")
	model := flag.String("model", "", "recognition model override")
	language := flag.String("language", "", "recognition language override")
	linger := flag.Duration("linger", 3*time.Second, "how long to wait for trailing results after the audio ends")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Capture settings ───────────────────────────────────────────────────────
	// The capture block of the server config also shapes the client's chunks.
	// Without a config file the defaults apply, so the command works against a
	// stock server with no setup.
	constraints, recCfg := captureSettings(*configPath)

	// ── Audio source ───────────────────────────────────────────────────────────
	input, name, err := openInput(*inputPath)
	if err != nil {
		slog.Error("cannot open audio input", "file", *inputPath, "err", err)
		return 1
	}
	source := &eofReader{r: input, drained: make(chan struct{})}

	device := pcm.NewDevice(func() (io.Reader, error) { return source, nil })
	stream, err := capture.Negotiate(ctx, device, constraints)
	if err != nil {
		slog.Error("audio negotiation failed", "device", device.Name(), "err", err)
		return 1
	}

	// ── Dictation session ──────────────────────────────────────────────────────
	sessionID, wsURL, err := createSession(ctx, *serverURL, *model, *language)
	if err != nil {
		slog.Error("cannot create dictation session", "server", *serverURL, "err", err)
		return 1
	}
	defer deleteSession(*serverURL, sessionID)

	slog.Info("dictation session created", "session_id", sessionID, "source", name)

	ws, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		slog.Error("websocket dial failed", "url", wsURL, "err", err)
		return 1
	}
	defer ws.Close(websocket.StatusInternalError, "client exiting")

	// ── Stream audio, print events ─────────────────────────────────────────────
	rec := capture.NewRecorder(stream, func(chunk []byte) error {
		return ws.Write(ctx, websocket.MessageBinary, chunk)
	}, recCfg)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		printEvents(ctx, ws)
	}()

	if err := rec.Start(); err != nil {
		slog.Error("recorder start failed", "err", err)
		return 1
	}

	select {
	case <-ctx.Done():
		slog.Info("interrupted, stopping")
	case <-source.drained:
		// Give the recognizer a moment to emit the trailing finals.
		slog.Info("audio exhausted, waiting for trailing results", "linger", *linger)
		select {
		case <-time.After(*linger):
		case <-ctx.Done():
		}
	}
	rec.Stop()

	ws.Close(websocket.StatusNormalClosure, "")
	wg.Wait()

	slog.Info("dictation finished",
		"session_id", sessionID,
		"bytes_sent", rec.BytesRead(),
		"chunk_errors", rec.SinkErrors(),
	)
	return 0
}

// ── Capture configuration ─────────────────────────────────────────────────────

// captureSettings derives the audio constraints and recorder config from the
// config file. A missing or unreadable file falls back to the defaults.
func captureSettings(path string) (capture.Constraints, capture.RecorderConfig) {
	constraints := capture.DefaultConstraints
	var recCfg capture.RecorderConfig

	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("config unreadable, using capture defaults", "config", path, "err", err)
		}
		return constraints, recCfg
	}

	if cfg.Capture.SampleRate > 0 {
		constraints.SampleRate = cfg.Capture.SampleRate
	}
	if cfg.Capture.Channels > 0 {
		constraints.Channels = cfg.Capture.Channels
	}
	recCfg.ChunkInterval = cfg.Capture.ChunkInterval.Std()
	recCfg.MaxDuration = cfg.Capture.MaxDuration.Std()
	recCfg.OnMaxDuration = func() {
		slog.Warn("recording cap reached, capture stopped", "max_duration", recCfg.MaxDuration)
	}
	return constraints, recCfg
}

// openInput opens the PCM source named on the command line.
func openInput(path string) (io.Reader, string, error) {
	if path == "-" {
		return os.Stdin, "stdin", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

// eofReader signals on drained once the underlying reader is exhausted, so
// the client knows when to stop waiting for new audio.
type eofReader struct {
	r       io.Reader
	once    sync.Once
	drained chan struct{}
}

func (e *eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil {
		e.once.Do(func() { close(e.drained) })
	}
	return n, err
}

// ── Session lifecycle ─────────────────────────────────────────────────────────

// createSession registers a dictation session with the server and returns its
// ID plus the absolute WebSocket URL to stream against.
func createSession(ctx context.Context, serverURL, model, language string) (id, wsURL string, err error) {
	body, err := json.Marshal(map[string]any{
		"model":    model,
		"language": language,
		"interim":  true,
	})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(serverURL, "/")+"/v1/dictation/sessions", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", "", fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var created struct {
		ID           string `json:"id"`
		WebSocketURL string `json:"websocket_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", "", fmt.Errorf("decode session response: %w", err)
	}

	wsURL, err = toWebSocketURL(serverURL, created.WebSocketURL)
	if err != nil {
		return "", "", err
	}
	return created.ID, wsURL, nil
}

// deleteSession releases the session on the server. Best effort on exit.
func deleteSession(serverURL, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		strings.TrimSuffix(serverURL, "/")+"/v1/dictation/sessions/"+id, nil)
	if err != nil {
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Warn("session cleanup failed", "session_id", id, "err", err)
		return
	}
	resp.Body.Close()
}

// toWebSocketURL resolves the session's WebSocket path against the server
// base URL, switching the scheme to ws/wss.
func toWebSocketURL(serverURL, path string) (string, error) {
	base, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid websocket path %q: %w", path, err)
	}
	resolved := base.ResolveReference(ref)
	switch resolved.Scheme {
	case "http":
		resolved.Scheme = "ws"
	case "https":
		resolved.Scheme = "wss"
	}
	return resolved.String(), nil
}

// ── Event printing ────────────────────────────────────────────────────────────

// serverEvent is the superset of the event messages the server streams:
// transcripts for every recognition result and suggestions after enrichment.
type serverEvent struct {
	Type string `json:"type"`

	// transcript
	Text       string  `json:"text"`
	Final      bool    `json:"final"`
	Confidence float64 `json:"confidence"`
	Assembled  string  `json:"assembled"`

	// suggestion
	Suggestion store.Suggestion          `json:"suggestion"`
	Similar    []store.SimilarIngredient `json:"similar"`
}

// printEvents reads event frames until the socket closes and renders them to
// stdout, one line per event.
func printEvents(ctx context.Context, ws *websocket.Conn) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return
			}
			slog.Warn("event stream ended", "err", err)
			return
		}

		var ev serverEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("undecodable event frame", "err", err)
			continue
		}

		switch ev.Type {
		case "transcript":
			if ev.Final {
				fmt.Printf("[final %.2f] %s\n", ev.Confidence, ev.Text)
			} else {
				fmt.Printf("[interim]    %s\n", ev.Text)
			}
		case "suggestion":
			printSuggestion(ev.Suggestion, ev.Similar)
		default:
			slog.Debug("unknown event type", "type", ev.Type)
		}
	}
}

func printSuggestion(s store.Suggestion, similar []store.SimilarIngredient) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", s.Status)
	fmt.Fprintf(&b, " %s", s.Ingredient.Name)
	if s.Ingredient.Quantity > 0 {
		fmt.Fprintf(&b, " %g %s", s.Ingredient.Quantity, s.Ingredient.Unit)
	}
	if s.Ingredient.Price > 0 {
		fmt.Fprintf(&b, " @ %.2f %s", s.Ingredient.Price, s.Ingredient.Currency)
	}
	if len(s.Ingredient.Tags) > 0 {
		fmt.Fprintf(&b, " tags=%s", strings.Join(s.Ingredient.Tags, ","))
	}
	if s.MatchedKeyword != "" {
		fmt.Fprintf(&b, " review-keyword=%q", s.MatchedKeyword)
	}
	if s.Degraded {
		b.WriteString(" (degraded)")
	}
	fmt.Println(b.String())

	for _, sim := range similar {
		fmt.Printf("  similar: %s (distance %.2f)\n", sim.Name, sim.Distance)
	}
}
