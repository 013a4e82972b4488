// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kainult/price-platform/internal/catalog"
	"github.com/kainult/price-platform/internal/config"
	"github.com/kainult/price-platform/internal/handler"
	"github.com/kainult/price-platform/internal/llm"
	natsclient "github.com/kainult/price-platform/internal/nats"
	"github.com/kainult/price-platform/internal/service"
	"github.com/kainult/price-platform/internal/session"
	"github.com/kainult/price-platform/pkg/logger"
	"github.com/kainult/price-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var (
		log *logger.Logger
		err error
	)
	if cfg.IsDevelopment() {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server", zap.String("env", cfg.Environment))

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "price-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Load the catalog
	store, err := loadCatalog(cfg)
	if err != nil {
		log.Error("failed to load catalog", zap.Error(err))
		os.Exit(1)
	}
	log.Info("catalog loaded", zap.Int("products", store.Len()))

	if cfg.CatalogFile != "" && cfg.CatalogWatch {
		watcher, err := catalog.Watch(cfg.CatalogFile, store, log)
		if err != nil {
			log.Warn("catalog hot reload disabled", zap.Error(err))
		} else {
			defer watcher.Close()
		}
	}

	// Initialize LLM client
	generator := newGenerator(cfg, log)

	// Connect to NATS if configured
	var (
		natsClient *natsclient.Client
		publisher  service.EventPublisher
	)
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", zap.Error(err))
			os.Exit(1)
		}
		publisher = streamManager
	} else {
		log.Info("NATS_URL not set, session events are not published")
	}

	// Initialize services
	catalogSvc := service.NewCatalogService(store, log)
	chatSvc := service.NewChatService(service.ChatConfig{
		Session: session.Config{
			Generator:        generator,
			SystemPrompt:     cfg.SystemPrompt,
			Model:            cfg.LLMModel,
			MaxTokens:        cfg.LLMMaxTokens,
			Temperature:      cfg.LLMTemperature,
			Greeting:         cfg.Greeting,
			FallbackText:     cfg.FallbackText,
			SubscriberBuffer: cfg.SubscriberBuffer,
		},
		IdleTTL:       cfg.SessionIdleTTL,
		SweepInterval: cfg.SessionSweepInterval,
	}, publisher, log)
	chatSvc.Start()

	// Initialize handlers
	router := handler.NewRouter(handler.RouterConfig{
		Health:            handler.NewHealthHandler(natsClient, store),
		Products:          handler.NewProductHandler(catalogSvc, log),
		Sessions:          handler.NewSessionHandler(chatSvc, log),
		Stream:            handler.NewStreamHandler(chatSvc, cfg.HeartbeatInterval, log),
		WS:                handler.NewWSHandler(chatSvc, cfg.AllowedOrigins, log),
		JWTSecret:         cfg.JWTSecret,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		SubmitRateLimit:   cfg.SubmitRateLimit,
		AllowedOrigins:    cfg.AllowedOrigins,
		Logger:            log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Streams are long-lived, so close sessions first to end them.
	chatSvc.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func loadCatalog(cfg *config.Config) (*catalog.Store, error) {
	var (
		c   *catalog.Catalog
		err error
	)
	if cfg.CatalogFile != "" {
		c, err = catalog.LoadFile(cfg.CatalogFile)
	} else {
		c, err = catalog.Seed()
	}
	if err != nil {
		return nil, err
	}
	return catalog.NewStore(c), nil
}

// newGenerator picks the configured provider and falls back to the offline
// generator when it cannot be created.
func newGenerator(cfg *config.Config, log *logger.Logger) llm.Client {
	provider := llm.Provider(cfg.LLMProvider)

	var apiKey string
	switch provider {
	case llm.ProviderAnthropic:
		apiKey = cfg.AnthropicAPIKey
	case llm.ProviderOpenAI:
		apiKey = cfg.OpenAIAPIKey
	}

	client, err := llm.NewClient(provider, apiKey)
	if err != nil {
		log.Warn("LLM provider unavailable, using offline replies",
			zap.String("provider", cfg.LLMProvider), zap.Error(err))
		return llm.NewOfflineClient()
	}

	if !llm.SupportsModel(client, cfg.LLMModel) {
		log.Warn("model not listed by provider", zap.String("provider", client.Name()), zap.String("model", cfg.LLMModel))
	}
	log.Info("LLM provider ready", zap.String("provider", client.Name()), zap.String("model", cfg.LLMModel))
	return client
}
