package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/learnpath/internal/ai"
	"github.com/p-n-ai/learnpath/internal/curriculum"
	"github.com/p-n-ai/learnpath/internal/events"
	"github.com/p-n-ai/learnpath/internal/generator"
	"github.com/p-n-ai/learnpath/internal/platform/cache"
	"github.com/p-n-ai/learnpath/internal/platform/config"
	"github.com/p-n-ai/learnpath/internal/platform/database"
	"github.com/p-n-ai/learnpath/internal/server"
	"github.com/p-n-ai/learnpath/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	catalog, err := curriculum.LoadCatalog(cfg.CurriculumPath)
	if err != nil {
		return fmt.Errorf("load grade levels: %w", err)
	}

	router := newAIRouter(cfg.AI)
	slog.Info("AI providers configured", "providers", router.Names())

	gen, err := generator.New(generator.Config{AI: router})
	if err != nil {
		return err
	}

	checks := map[string]server.HealthChecker{}

	var store session.Store = session.NewMemoryStore(cfg.Session.TTL())
	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return fmt.Errorf("connect cache: %w", err)
		}
		defer c.Close()
		store = session.NewRedisStore(c, cfg.Session.TTL())
		checks["cache"] = c
		slog.Info("sessions stored in redis")
	} else {
		slog.Info("sessions stored in memory")
	}

	var logger events.Logger = events.NopLogger{}
	if cfg.Database.URL != "" {
		db, err := database.New(ctx, cfg.Database.URL, database.Options{
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
		pg := events.NewPostgresLogger(db.Pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("create event schema: %w", err)
		}
		logger = pg
		checks["database"] = db
		slog.Info("wizard events logged to postgres")
	}

	sessions := session.NewManager(session.Config{
		Store:       store,
		Generator:   gen,
		Catalog:     catalog,
		Events:      logger,
		IdleTimeout: cfg.Session.TTL(),
	})
	go sessions.Run(ctx, time.Minute)

	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: server.New(server.Config{
			Sessions:   sessions,
			Checks:     checks,
			SessionTTL: cfg.Session.TTL(),
		}).Handler(),
		ReadTimeout: 10 * time.Second,
		// Generation requests block until the model answers.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	return shutdown(srv, shutdownTimeout)
}

// shutdownTimeout lets an in-flight generation finish its provider call.
const shutdownTimeout = ai.RequestTimeout + 5*time.Second

// shutdown drains srv. Requests still running after timeout are cut off and
// logged; that is not a shutdown failure.
func shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("requests still running at shutdown, closing connections", "timeout", timeout)
		err = srv.Close()
	}
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newLogger builds the process logger from the log config. Unknown levels
// fall back to info.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// newAIRouter registers every configured provider, each behind its own
// guard, in fallback order.
func newAIRouter(cfg config.AIConfig) *ai.Router {
	router := ai.NewRouter()
	register := func(name string, p ai.Provider) {
		router.Register(name, ai.NewGuardedProvider(p, ai.GuardConfig{
			Name:            name,
			MaxConcurrent:   cfg.MaxConcurrent,
			BreakerFailures: cfg.BreakerFailures,
		}))
	}

	if cfg.Google.APIKey != "" {
		register("google", ai.NewGoogleProvider(cfg.Google.APIKey, ai.WithGoogleModel(cfg.Google.Model)))
	}
	if cfg.OpenAI.APIKey != "" {
		register("openai", ai.NewOpenAIProvider(cfg.OpenAI.APIKey, ai.WithModel(cfg.OpenAI.Model)))
	}
	if cfg.DeepSeek.APIKey != "" {
		register("deepseek", ai.NewDeepSeekProvider(cfg.DeepSeek.APIKey))
	}
	if cfg.OpenRouter.APIKey != "" {
		register("openrouter", ai.NewOpenRouterProvider(cfg.OpenRouter.APIKey))
	}
	if cfg.Ollama.Enabled {
		register("ollama", ai.NewOllamaProvider(cfg.Ollama.URL, ai.WithModel(cfg.Ollama.Model)))
	}
	return router
}
