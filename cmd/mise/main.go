// Command mise is the main entry point for the Mise back-office server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mise-kitchen/mise/internal/config"
	"github.com/mise-kitchen/mise/internal/enrich"
	"github.com/mise-kitchen/mise/internal/health"
	"github.com/mise-kitchen/mise/internal/observe"
	"github.com/mise-kitchen/mise/internal/pool"
	"github.com/mise-kitchen/mise/internal/server"
	"github.com/mise-kitchen/mise/internal/store"
	"github.com/mise-kitchen/mise/internal/usage"
	"github.com/mise-kitchen/mise/pkg/stt"
	"github.com/mise-kitchen/mise/pkg/stt/deepgram"
	"github.com/mise-kitchen/mise/pkg/stt/mock"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "mise.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mise: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mise: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config hot reload can adjust it without
	// swapping the handler.
	levelVar := new(slog.LevelVar)
	levelVar.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("mise starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "mise",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Usage/auth collaborator ───────────────────────────────────────────────
	var usageClient *usage.Client
	if cfg.Usage.BaseURL != "" {
		usageClient, err = usage.New(cfg.Usage.BaseURL, cfg.Usage.Token,
			usage.WithTimeout(cfg.Usage.Timeout.Std()),
			usage.WithCacheTTL(cfg.Usage.CacheTTL.Std()),
		)
		if err != nil {
			slog.Error("failed to create usage client", "err", err)
			return 1
		}
		slog.Info("usage collaborator configured", "base_url", cfg.Usage.BaseURL)
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	sttProvider, err := buildSTTProvider(ctx, cfg, reg, usageClient)
	if err != nil {
		slog.Error("failed to build stt provider", "err", err)
		return 1
	}

	aiClient, err := buildAIClient(cfg, reg)
	if err != nil {
		slog.Error("failed to build ai provider", "err", err)
		return 1
	}

	// ── Store ─────────────────────────────────────────────────────────────────
	var (
		st     store.Store
		dbpool *pgxpool.Pool
	)
	if cfg.Database.PostgresDSN != "" {
		dbpool, err = pgxpool.New(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer dbpool.Close()

		pgStore := store.NewPostgresStore(dbpool)
		if err := pgStore.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "err", err)
			return 1
		}
		st = pgStore
		slog.Info("postgres store ready")
	} else {
		st = store.NewMemStore()
		slog.Warn("no postgres_dsn configured, using in-memory store; data is lost on restart")
	}

	// ── Semantic duplicate index ──────────────────────────────────────────────
	var semantic *store.SemanticIndex
	if dbpool != nil && aiClient != nil {
		semantic = store.NewSemanticIndex(dbpool, aiClient)
		if err := semantic.Migrate(ctx); err != nil {
			// The vector extension may be missing on the server. Duplicate
			// warnings are advisory, so run without them.
			slog.Warn("semantic index unavailable", "err", err)
			semantic = nil
		} else {
			slog.Info("semantic duplicate index ready")
		}
	}

	// ── Connection pool ───────────────────────────────────────────────────────
	var poolOpts []pool.Option
	if usageClient != nil {
		poolOpts = append(poolOpts, pool.WithQuotaValidator(usageClient))
	}
	connPool := pool.New(sttProvider, cfg.Pool.ToPool(), poolOpts...)
	defer connPool.Close()

	sub := connPool.Subscribe(func(ev pool.Event) {
		switch ev.Kind {
		case pool.EventReconnectionFailed, pool.EventQuotaExceeded:
			slog.Error("pool event", "kind", ev.Kind.String(), "key", ev.Key, "err", ev.Err)
		case pool.EventReconnecting:
			slog.Warn("pool event", "kind", ev.Kind.String(), "key", ev.Key, "attempt", ev.Attempt, "err", ev.Err)
		default:
			slog.Debug("pool event", "kind", ev.Kind.String(), "key", ev.Key)
		}
	})
	defer sub.Cancel()

	// ── Enrichment pipeline ───────────────────────────────────────────────────
	enricher := buildEnricher(cfg, reg, aiClient)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srvCfg := server.Config{ListenAddr: cfg.Server.ListenAddr}
	if cfg.Server.TLS != nil {
		srvCfg.CertFile = cfg.Server.TLS.CertFile
		srvCfg.KeyFile = cfg.Server.TLS.KeyFile
	}

	checkers := []health.Checker{health.STT(sttProvider)}
	if dbpool != nil {
		checkers = append(checkers, health.Database(dbpool))
	}
	if usageClient != nil {
		checkers = append(checkers, health.Usage(usageClient))
	}

	srvOpts := []server.Option{server.WithHealthCheckers(checkers...)}
	if semantic != nil {
		srvOpts = append(srvOpts, server.WithSemanticIndex(semantic))
	}
	if aiClient != nil {
		srvOpts = append(srvOpts, server.WithImageGenerator(aiClient))
	}
	srv := server.New(srvCfg, st, connPool, enricher, srvOpts...)

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigChange(old, new, levelVar, enricher)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with Mise
// into reg. Each factory receives a config.ProviderEntry and constructs the
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// mock streams nothing but lets the whole surface run without a speech
	// service account, for local development.
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return &mock.Provider{}, nil
	})

	reg.RegisterAI("openai", func(entry config.ProviderEntry) (*enrich.AIClient, error) {
		var opts []enrich.AIOption
		if entry.BaseURL != "" {
			opts = append(opts, enrich.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, enrich.WithChatModel(entry.Model))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, enrich.WithOrganization(org))
		}
		if m := optString(entry.Options, "image_model"); m != "" {
			opts = append(opts, enrich.WithImageModel(m))
		}
		if m := optString(entry.Options, "embedding_model"); m != "" {
			opts = append(opts, enrich.WithEmbeddingModel(m))
		}
		return enrich.NewAIClient(entry.APIKey, opts...)
	})
}

// buildSTTProvider instantiates the configured speech provider. When the entry
// carries no API key and a usage collaborator is configured, the key is
// fetched from the collaborator so it never has to live in the config file.
func buildSTTProvider(ctx context.Context, cfg *config.Config, reg *config.Registry, usageClient *usage.Client) (stt.Provider, error) {
	entry := cfg.Providers.STT
	if entry.Name == "" {
		slog.Warn("no stt provider configured, dictation uses the mock provider")
		entry.Name = "mock"
	}

	if entry.APIKey == "" && usageClient != nil {
		key, err := usageClient.APIKey(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch stt api key from usage collaborator: %w", err)
		}
		entry.APIKey = key
	}

	p, err := reg.CreateSTT(entry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", entry.Name, "model", entry.Model)
	return p, nil
}

// buildAIClient instantiates the primary enrichment provider, or nil when
// none is configured.
func buildAIClient(cfg *config.Config, reg *config.Registry) (*enrich.AIClient, error) {
	entry := cfg.Providers.AI
	if entry.Name == "" {
		return nil, nil
	}
	c, err := reg.CreateAI(entry)
	if err != nil {
		return nil, fmt.Errorf("create ai provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "ai", "name", entry.Name, "model", entry.Model)
	return c, nil
}

// buildEnricher assembles the enrichment pipeline with the primary AI client
// and any configured fallbacks. Without an AI provider the pipeline runs in
// permanently degraded mode: suggestions still flow, all queued for review.
func buildEnricher(cfg *config.Config, reg *config.Registry, aiClient *enrich.AIClient) *enrich.Enricher {
	var tagger enrich.Tagger = unconfiguredAI{}
	var translator enrich.Translator = unconfiguredAI{}
	if aiClient != nil {
		tagger = aiClient
		translator = aiClient
	} else {
		slog.Warn("no ai provider configured, all suggestions will be queued for review")
	}

	enricher := enrich.New(enrich.Config{
		DefaultLanguage: cfg.Enrichment.DefaultLanguage,
		TargetLanguages: cfg.Enrichment.TargetLanguages,
		Policy: enrich.PolicyConfig{
			Threshold:      cfg.Enrichment.AutoApplyThreshold,
			ReviewKeywords: cfg.Enrichment.ReviewKeywords,
			MaxDistance:    cfg.Enrichment.MaxKeywordDistance,
		},
	}, tagger, translator)

	for _, entry := range cfg.Providers.AIFallbacks {
		fb, err := reg.CreateAI(entry)
		if err != nil {
			slog.Warn("skipping ai fallback", "name", entry.Name, "err", err)
			continue
		}
		enricher.AddFallbackTagger(entry.Name, fb)
		enricher.AddFallbackTranslator(entry.Name, fb)
		slog.Info("ai fallback registered", "name", entry.Name, "model", entry.Model)
	}
	return enricher
}

// unconfiguredAI stands in for the enrichment provider when none is
// configured. Every call fails, which the enricher turns into a degraded,
// review-queued suggestion.
type unconfiguredAI struct{}

var errNoAIProvider = errors.New("mise: no ai provider configured")

func (unconfiguredAI) Tags(context.Context, string, string) ([]string, error) {
	return nil, errNoAIProvider
}

func (unconfiguredAI) Translate(context.Context, string, string, string) (string, error) {
	return "", errNoAIProvider
}

// ── Hot reload ────────────────────────────────────────────────────────────────

// applyConfigChange applies the hot-reloadable subset of a config change.
// Pool, capture, provider, and server settings require a restart.
func applyConfigChange(old, new *config.Config, levelVar *slog.LevelVar, enricher *enrich.Enricher) {
	diff := config.Diff(old, new)
	if !diff.Any() {
		slog.Info("config changed, but no hot-reloadable settings differ")
		return
	}
	if diff.LogLevelChanged {
		levelVar.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level updated", "log_level", diff.NewLogLevel)
	}
	if diff.PolicyChanged {
		enricher.UpdatePolicy(enrich.PolicyConfig{
			Threshold:      new.Enrichment.AutoApplyThreshold,
			ReviewKeywords: new.Enrichment.ReviewKeywords,
			MaxDistance:    new.Enrichment.MaxKeywordDistance,
		})
		slog.Info("apply policy updated", "threshold", new.Enrichment.AutoApplyThreshold)
	}
	if diff.TargetsChanged {
		enricher.UpdateLanguages(new.Enrichment.DefaultLanguage, new.Enrichment.TargetLanguages)
		slog.Info("translation targets updated", "targets", new.Enrichment.TargetLanguages)
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
