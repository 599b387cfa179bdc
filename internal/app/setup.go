package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkwell-ai/inkwell/db"
	"github.com/inkwell-ai/inkwell/internal/artifact"
	"github.com/inkwell-ai/inkwell/internal/assist"
	"github.com/inkwell-ai/inkwell/internal/budget"
	"github.com/inkwell-ai/inkwell/internal/config"
	"github.com/inkwell-ai/inkwell/internal/dispatch"
	"github.com/inkwell-ai/inkwell/internal/gateway"
	"github.com/inkwell-ai/inkwell/internal/log"
	"github.com/inkwell-ai/inkwell/internal/observability"
	"github.com/inkwell-ai/inkwell/internal/router"
	"github.com/inkwell-ai/inkwell/internal/tools"
)

// Setup builds the application from configuration. On error everything
// already initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		Logger: log.New(log.Config{Level: slog.LevelInfo}),
	}
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				a.Logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing registers with Genkit's TracerProvider, so it must come
	// before genkit.Init.
	a.otelCleanup = provideOtelShutdown(ctx, cfg, a.Logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool
	a.Artifacts = artifact.NewStore(pool, a.Logger)

	g, err := provideGenkit(ctx, cfg, a.Logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	dispatcher, err := dispatch.New(dispatch.Config{
		Genkit:          g,
		ModelName:       cfg.FullModelName(),
		Temperature:     float64(cfg.Temperature),
		MaxTokens:       cfg.MaxTokens,
		MaxHistoryTurns: cfg.MaxHistoryTurns,
		Logger:          a.Logger,
	})
	if err != nil {
		return nil, err
	}

	rt, err := provideRouter(cfg, a.Logger)
	if err != nil {
		return nil, err
	}

	assistant, err := assist.New(assist.Config{
		Router:      rt,
		Dispatcher:  dispatcher,
		Artifacts:   a.Artifacts,
		Permissions: tools.Permissions(cfg.ToolPermissions),
		Logger:      a.Logger,
	})
	if err != nil {
		return nil, err
	}
	a.Assistant = assistant

	return a, nil
}

// provideOtelShutdown configures OTLP trace export when a collector
// host is set. Returns a no-op cleanup when tracing is disabled.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	if cfg.OTLPHost == "" {
		return func() {}
	}

	shutdown, err := observability.Setup(ctx, observability.Config{
		CollectorHost: cfg.OTLPHost,
		Environment:   cfg.Environment,
		ServiceName:   cfg.ServiceName,
	})
	if err != nil {
		logger.Warn("tracing setup failed, continuing without it", "error", err)
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := shutdownContext()
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and opens the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// provideGenkit initializes Genkit with the configured provider
// plugin. Gemini and OpenAI read their API keys from the environment;
// Ollama needs explicit model registration.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		logger.Info("initialized genkit", "provider", cfg.Provider, "model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, nil

	case config.ProviderOpenAI:
		g := genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized genkit", "provider", cfg.Provider, "model", cfg.ModelName)
		return g, nil

	default: // gemini
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit", "provider", cfg.Provider, "model", cfg.ModelName)
		return g, nil
	}
}

// provideRouter builds the tool router. Without a gateway URL the
// router runs with a nil-call client stand-in that reports external
// tools as unconfigured.
func provideRouter(cfg *config.Config, logger *slog.Logger) (*router.Router, error) {
	var invoker router.Invoker
	if cfg.Gateway.BaseURL != "" {
		client, err := gateway.New(gateway.Config{
			BaseURL:    cfg.Gateway.BaseURL,
			AuthHeader: cfg.Gateway.AuthHeader,
			AuthValue:  cfg.Gateway.AuthToken,
			Timeout:    cfg.Gateway.Timeout(),
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating gateway client: %w", err)
		}
		invoker = client
	} else {
		invoker = unconfiguredGateway{}
	}

	b := budget.New(budget.Config{
		SuccessTTL:       time.Duration(cfg.Budget.SuccessTTLSeconds) * time.Second,
		PartialTTL:       time.Duration(cfg.Budget.PartialTTLSeconds) * time.Second,
		FailureTTL:       time.Duration(cfg.Budget.FailureTTLSeconds) * time.Second,
		FailureThreshold: cfg.Budget.FailureThreshold,
	})

	return router.New(router.Config{
		Gateway: invoker,
		Budget:  b,
		Logger:  logger,
	})
}

// unconfiguredGateway fails every call with a stable error so external
// tools degrade to a clear user-facing message when no gateway is set.
type unconfiguredGateway struct{}

func (unconfiguredGateway) Call(context.Context, string, map[string]any) (*gateway.Result, error) {
	return nil, errors.New("no workflow gateway configured")
}
