package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/shaharz/lumen/internal/config"
	"github.com/shaharz/lumen/internal/contextbuilder"
	"github.com/shaharz/lumen/internal/domain"
	"github.com/shaharz/lumen/internal/history"
	"github.com/shaharz/lumen/internal/httpserver"
	"github.com/shaharz/lumen/internal/httpserver/middleware"
	"github.com/shaharz/lumen/internal/notify"
	"github.com/shaharz/lumen/internal/observability"
	"github.com/shaharz/lumen/internal/provider/echo"
	"github.com/shaharz/lumen/internal/provider/gemini"
	"github.com/shaharz/lumen/internal/provider/mistral"
	"github.com/shaharz/lumen/internal/provider/openai"
	"github.com/shaharz/lumen/internal/provider/openrouter"
	"github.com/shaharz/lumen/internal/provider/together"
	"github.com/shaharz/lumen/internal/routing"
)

const shutdownTimeout = 10 * time.Second

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *httpserver.Server, logger *zap.Logger) {
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil {
				log.Fatalf("Server failed to start: %v", err)
			}
		case sig := <-stop:
			logger.Info("shutdown signal received", zap.String("signal", sig.String()))

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := server.Shutdown(ctx); err != nil {
				log.Fatalf("Server shutdown failed: %v", err)
			}
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}

	// Providers. A missing API key yields a nil provider; the router reports
	// routing.ErrProviderNotConfigured if a rule still lands on it.
	if err := container.Provide(func(cfg *gemini.Config) (*gemini.Provider, error) {
		if cfg.APIKey == "" {
			return nil, nil
		}
		return gemini.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide Gemini provider: %v", err)
	}
	if err := container.Provide(func(cfg *mistral.Config) (*mistral.Provider, error) {
		if cfg.APIKey == "" {
			return nil, nil
		}
		return mistral.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide Mistral provider: %v", err)
	}
	if err := container.Provide(func(cfg *together.Config) (*together.Provider, error) {
		if cfg.APIKey == "" {
			return nil, nil
		}
		return together.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide Together provider: %v", err)
	}
	if err := container.Provide(func(cfg *openrouter.Config) (*openrouter.Provider, error) {
		if cfg.APIKey == "" {
			return nil, nil
		}
		return openrouter.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide OpenRouter provider: %v", err)
	}
	if err := container.Provide(func(cfg *openai.Config) (*openai.Provider, error) {
		if cfg.APIKey == "" {
			return nil, nil
		}
		return openai.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide OpenAI provider: %v", err)
	}

	// Direct-model directory
	if err := container.Provide(buildDirectory); err != nil {
		log.Fatalf("Failed to provide model directory: %v", err)
	}

	// Optional route override rules
	if err := container.Provide(func(cfg *config.RoutingConfig) (*routing.RuleSet, error) {
		if cfg.RulesFile == "" {
			return nil, nil
		}
		return routing.LoadRules(cfg.RulesFile)
	}); err != nil {
		log.Fatalf("Failed to provide routing rules: %v", err)
	}

	// Router
	if err := container.Provide(buildRouter); err != nil {
		log.Fatalf("Failed to provide router: %v", err)
	}

	// History, notifications, context
	if err := container.Provide(buildHistoryStore); err != nil {
		log.Fatalf("Failed to provide history store: %v", err)
	}
	if err := container.Provide(func() domain.Notifier {
		return notify.NewHub()
	}); err != nil {
		log.Fatalf("Failed to provide notifier: %v", err)
	}
	if err := container.Provide(func(cfg *config.ContextConfig, store domain.HistoryStore) domain.ContextBuilder {
		return contextbuilder.NewBuilder(store, cfg.Turns)
	}); err != nil {
		log.Fatalf("Failed to provide context builder: %v", err)
	}

	// Domain Services
	if err := container.Provide(domain.NewGenerateService); err != nil {
		log.Fatalf("Failed to provide generate service: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(httpserver.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(httpserver.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

// buildDirectory registers every directly-addressable one-shot model.
func buildDirectory(
	openaiProvider *openai.Provider,
	geminiProvider *gemini.Provider,
	logger *zap.Logger,
) (*routing.Directory, error) {
	directory := routing.NewDirectory()

	if err := directory.Register(echo.NewProvider(), echo.Model); err != nil {
		return nil, fmt.Errorf("failed to register echo provider: %w", err)
	}

	if openaiProvider != nil {
		if err := directory.Register(openaiProvider, openai.SupportedModels()...); err != nil {
			return nil, fmt.Errorf("failed to register OpenAI provider: %w", err)
		}
	}

	if geminiProvider != nil {
		if err := directory.Register(gemini.NewGrounded(geminiProvider), gemini.GroundedModel); err != nil {
			return nil, fmt.Errorf("failed to register grounded Gemini provider: %w", err)
		}
	}

	logger.Info("model directory built", zap.Strings("models", directory.Models()))
	return directory, nil
}

// buildRouter wires the rule table over the configured providers. Nil
// concrete providers must stay nil interfaces, so each slot is assigned
// only when the provider exists.
func buildRouter(
	geminiProvider *gemini.Provider,
	mistralProvider *mistral.Provider,
	togetherProvider *together.Provider,
	openrouterProvider *openrouter.Provider,
	directory *routing.Directory,
	overrides *routing.RuleSet,
) domain.Dispatcher {
	var streaming domain.StreamProvider
	if geminiProvider != nil {
		streaming = geminiProvider
	}

	var vision domain.Provider
	if mistralProvider != nil {
		vision = mistralProvider
	}

	var bulk domain.Provider
	if togetherProvider != nil {
		bulk = togetherProvider
	}

	var aggregator domain.Provider
	if openrouterProvider != nil {
		aggregator = openrouterProvider
	}

	opts := routing.Options{
		FreeStreamingModel: gemini.FreeStreamingModel,
		VisionPrefix:       mistral.VisionPrefix,
		BulkNamespace:      together.Namespace,
	}

	return routing.NewRouter(opts, streaming, vision, bulk, aggregator, directory, overrides)
}

// buildHistoryStore connects to Redis, falling back to the in-memory store
// when Redis is unreachable so local development works without it.
func buildHistoryStore(cfg *history.Config, logger *zap.Logger) (domain.HistoryStore, error) {
	store, err := history.NewRedisStore(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if pingErr := store.Ping(ctx); pingErr != nil {
		logger.Warn("redis unreachable, using in-memory history",
			zap.String("addr", cfg.Addr),
			zap.Error(pingErr))
		return history.NewMemoryStore(cfg.KeepLast), nil
	}

	logger.Info("history store connected", zap.String("addr", cfg.Addr))
	return store, nil
}
