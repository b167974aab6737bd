// Package app wires configuration, storage, model providers and the HTTP
// server into a runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recall-chat/recall/db"
	"github.com/recall-chat/recall/internal/assistant"
	"github.com/recall-chat/recall/internal/config"
	"github.com/recall-chat/recall/internal/conversation"
	"github.com/recall-chat/recall/internal/embedding"
	"github.com/recall-chat/recall/internal/memory"
	"github.com/recall-chat/recall/internal/preference"
	"github.com/recall-chat/recall/internal/rag"
	"github.com/recall-chat/recall/internal/search"
	"github.com/recall-chat/recall/internal/web"
)

// App holds all initialized services for one process.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool          *pgxpool.Pool
	Genkit        *genkit.Genkit
	Embeddings    *embedding.Generator
	Memories      *memory.Store
	Conversations *conversation.Store
	Preferences   *preference.Store
	Assistant     *assistant.Assistant
	Enricher      *rag.Enricher
	Extractor     *memory.Extractor
	Searcher      *search.Client
	Server        *web.Server

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New builds the application. Migrations run before the pool opens for
// serving.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	g, embedderResolve, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		Pool:   pool,
		Genkit: g,
	}
	a.bgCtx, a.bgCancel = context.WithCancel(context.Background())

	a.Embeddings, err = embedding.NewGenerator(embedderResolve, logger)
	if err != nil {
		return nil, a.closeWith(err)
	}
	a.Memories, err = memory.NewStore(pool, a.Embeddings, logger)
	if err != nil {
		return nil, a.closeWith(err)
	}
	a.Conversations, err = conversation.NewStore(pool, logger)
	if err != nil {
		return nil, a.closeWith(err)
	}
	a.Preferences, err = preference.NewStore(pool, logger)
	if err != nil {
		return nil, a.closeWith(err)
	}

	a.Assistant, err = assistant.New(g, assistant.Config{
		ModelName:         fullModelName(cfg),
		Temperature:       float64(cfg.Temperature),
		MaxTokens:         cfg.MaxTokens,
		RequestsPerMinute: cfg.ModelRequestsPerMinute,
	}, logger)
	if err != nil {
		return nil, a.closeWith(err)
	}

	a.Enricher, err = rag.NewEnricher(a.Memories, logger)
	if err != nil {
		return nil, a.closeWith(err)
	}
	a.Extractor, err = memory.NewExtractor(a.Memories, a.Assistant, logger)
	if err != nil {
		return nil, a.closeWith(err)
	}
	a.Searcher = search.NewClient(cfg.SearchAPIKey, cfg.SearchBaseURL, logger)

	a.Server, err = web.NewServer(web.ServerConfig{
		Logger:        logger,
		Assistant:     a.Assistant,
		Conversations: a.Conversations,
		Memories:      a.Memories,
		Preferences:   a.Preferences,
		Enricher:      a.Enricher,
		Extractor:     a.Extractor,
		Searcher:      a.Searcher,
		Pool:          pool,
		HistoryLimit:  cfg.HistoryMessages,
		BackgroundCtx: a.bgCtx,
		BackgroundWG:  &a.bgWG,
	})
	if err != nil {
		return nil, a.closeWith(err)
	}

	return a, nil
}

// Run serves HTTP until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	return a.Server.Run(ctx, a.Config.ServerAddr, a.Logger)
}

// Close drains background work and releases resources. Safe to call after a
// partial New failure.
func (a *App) Close() {
	if a.bgCancel != nil {
		a.bgCancel()
	}
	done := make(chan struct{})
	go func() {
		a.bgWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		a.Logger.Warn("background work did not drain before timeout")
	}

	if a.Pool != nil {
		a.Pool.Close()
	}
}

func (a *App) closeWith(err error) error {
	a.Close()
	return err
}

func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// provideGenkit initializes genkit for the configured provider and returns
// the lazy embedder resolver alongside it. Ollama needs explicit model and
// embedder registration; Gemini models are discovered automatically.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, embedding.ResolveFunc, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with ollama provider")
		}
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

		resolve := func() (ai.Embedder, error) {
			e := ollama.Embedder(g, cfg.OllamaHost)
			if e == nil {
				return nil, fmt.Errorf("ollama embedder %q not registered", cfg.EmbedderModel)
			}
			return e, nil
		}
		return g, resolve, nil

	default: // gemini
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit with gemini provider", "model", cfg.ModelName)

		resolve := func() (ai.Embedder, error) {
			e := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
			if e == nil {
				return nil, fmt.Errorf("gemini embedder %q not available", cfg.EmbedderModel)
			}
			return e, nil
		}
		return g, resolve, nil
	}
}

func fullModelName(cfg *config.Config) string {
	switch cfg.Provider {
	case config.ProviderOllama:
		return "ollama/" + cfg.ModelName
	default:
		return "googleai/" + cfg.ModelName
	}
}
