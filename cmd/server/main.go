package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/p-n-ai/curriculum-ai/internal/ai"
	"github.com/p-n-ai/curriculum-ai/internal/api"
	"github.com/p-n-ai/curriculum-ai/internal/generator"
	"github.com/p-n-ai/curriculum-ai/internal/lesson"
	"github.com/p-n-ai/curriculum-ai/internal/platform/cache"
	"github.com/p-n-ai/curriculum-ai/internal/platform/config"
	"github.com/p-n-ai/curriculum-ai/internal/platform/database"
	"github.com/p-n-ai/curriculum-ai/internal/platform/logger"
	"github.com/p-n-ai/curriculum-ai/internal/tutor"
)

const providerTimeout = 2 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log.Zap())

	if err := run(cfg, log); err != nil {
		log.Error("server failed", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", srv.Addr, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	if err := a.generator.Wait(shutdownCtx); err != nil {
		log.Warn("background generations still running at exit", "error", err)
	}
	return nil
}

// app holds the wired components of the server.
type app struct {
	handler   http.Handler
	generator *generator.Generator
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	checks := map[string]api.ReadinessCheck{}

	var (
		lessons       lesson.Store
		conversations tutor.ConversationStore
		events        generator.EventLogger
	)
	switch cfg.Storage {
	case "postgres":
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		checks["database"] = db.HealthCheck

		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				return nil, err
			}
			log.Info("database schema applied")
		}

		pgLessons, err := lesson.NewPostgresStore(db.Pool)
		if err != nil {
			return nil, err
		}
		pgConversations, err := tutor.NewPostgresStore(db.Pool)
		if err != nil {
			return nil, err
		}
		lessons, conversations, events = pgLessons, pgConversations, generator.NewPostgresEventLogger(db.Pool)
	default:
		log.Warn("using in-memory storage; data is lost on restart")
		lessons, conversations, events = lesson.NewMemoryStore(), tutor.NewMemoryStore(), generator.NopEventLogger{}
	}

	var budget ai.BudgetChecker = ai.NewInMemoryBudget(cfg.AI.DailyTokenBudget)
	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL, cache.WithPrefix(cfg.Cache.Prefix))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		checks["cache"] = c.HealthCheck
		budget = ai.NewSharedBudget(c, cfg.AI.DailyTokenBudget)
	}

	router, err := newAIRouter(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	prompts, err := generator.LoadPrompts(cfg.Generation.PromptsPath)
	if err != nil {
		return nil, err
	}

	gen, err := generator.New(generator.Config{
		Model:            router,
		Store:            lessons,
		Prompts:          prompts,
		Events:           events,
		Logger:           log,
		ContentMaxTokens: cfg.Generation.ContentMaxTokens,
		QuizMaxTokens:    cfg.Generation.QuizMaxTokens,
		StaleAfter:       cfg.Generation.StaleAfter,
		RegenerateMode:   generator.RegenerateMode(cfg.Generation.RegenerateMode),
	})
	if err != nil {
		return nil, err
	}
	a.generator = gen

	engine, err := tutor.NewEngine(tutor.Config{
		Model:            router,
		Lessons:          lessons,
		Store:            conversations,
		Budget:           budget,
		Logger:           log,
		MaxTokens:        cfg.Tutor.MaxTokens,
		CompactThreshold: cfg.Tutor.CompactThreshold,
		KeepRecent:       cfg.Tutor.KeepRecent,
	})
	if err != nil {
		return nil, err
	}

	a.handler, err = api.NewRouter(api.Options{
		Lessons:         lessons,
		Generator:       gen,
		Tutor:           engine,
		JWTSecret:       cfg.Auth.JWTSecret,
		Logger:          log,
		ReadinessChecks: checks,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newAIRouter registers every configured provider in fallback order.
func newAIRouter(ctx context.Context, cfg *config.Config, log *logger.Logger) (*ai.Router, error) {
	router := ai.NewRouter(log)
	httpClient := &http.Client{Timeout: providerTimeout}

	if key := cfg.AI.OpenAI.APIKey; key != "" {
		opts := []ai.OpenAIOption{ai.WithHTTPClient(httpClient), ai.WithDefaultModel(cfg.AI.OpenAI.Model)}
		if cfg.AI.OpenAI.BaseURL != "" {
			opts = append(opts, ai.WithBaseURL(cfg.AI.OpenAI.BaseURL))
		}
		router.Register("openai", ai.NewOpenAIProvider(key, opts...))
	}
	if key := cfg.AI.Anthropic.APIKey; key != "" {
		p, err := ai.NewAnthropicProvider(key,
			ai.WithAnthropicModel(cfg.AI.Anthropic.Model),
			ai.WithAnthropicHTTPClient(httpClient),
		)
		if err != nil {
			return nil, err
		}
		router.Register("anthropic", p)
	}
	if key := cfg.AI.Google.APIKey; key != "" {
		p, err := ai.NewGeminiProvider(ctx, key,
			ai.WithGeminiModel(cfg.AI.Google.Model),
			ai.WithGeminiHTTPClient(httpClient),
		)
		if err != nil {
			return nil, err
		}
		router.Register("google", p)
	}
	if key := cfg.AI.DeepSeek.APIKey; key != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(key,
			ai.WithHTTPClient(httpClient),
			ai.WithDefaultModel(cfg.AI.DeepSeek.Model),
		))
	}
	if key := cfg.AI.OpenRouter.APIKey; key != "" {
		router.Register("openrouter", ai.NewOpenRouterProvider(key,
			ai.WithHTTPClient(httpClient),
			ai.WithDefaultModel(cfg.AI.OpenRouter.Model),
		))
	}
	if cfg.AI.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.AI.Ollama.URL,
			ai.WithHTTPClient(httpClient),
			ai.WithDefaultModel(cfg.AI.Ollama.Model),
		))
	}

	if !router.HasProvider() {
		return nil, fmt.Errorf("no AI provider configured")
	}
	log.Info("AI providers registered", "providers", router.Providers())
	return router, nil
}
