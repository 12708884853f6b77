package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/miradorstack/mirador-insights/internal/api"
	"github.com/miradorstack/mirador-insights/internal/assistant"
	"github.com/miradorstack/mirador-insights/internal/cache"
	"github.com/miradorstack/mirador-insights/internal/config"
	"github.com/miradorstack/mirador-insights/internal/ingest"
	"github.com/miradorstack/mirador-insights/internal/metrics"
	"github.com/miradorstack/mirador-insights/internal/patterns"
	"github.com/miradorstack/mirador-insights/internal/repo"
	"github.com/miradorstack/mirador-insights/internal/services"
	"github.com/miradorstack/mirador-insights/internal/stream"
	"github.com/miradorstack/mirador-insights/internal/utils"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	pflag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-insights", slog.String("grpc_address", cfg.Server.Address), slog.String("http_address", cfg.Server.HTTPAddress))

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			logger.Warn("sentry init failed", slog.Any("error", err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cacheProvider cache.Provider = cache.NewMemoryProvider()
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(ctx, cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			PoolSize:     cfg.Cache.PoolSize,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable, using in-process cache", slog.Any("error", err))
		} else {
			cacheProvider = provider
		}
	}
	defer cacheProvider.Close()

	var store services.LogStore
	if len(cfg.Storage.Addresses) > 0 {
		osStore, err := repo.NewOpenSearchStore(repo.OpenSearchConfig{
			Addresses:          cfg.Storage.Addresses,
			Username:           cfg.Storage.Username,
			Password:           cfg.Storage.Password,
			IndexPattern:       cfg.Storage.IndexPattern,
			InsecureSkipVerify: cfg.Storage.InsecureSkipVerify,
			DefaultLimit:       cfg.Storage.QueryLimit,
		}, cacheProvider, cfg.Storage.QueryTTL, logger)
		if err != nil {
			logger.Error("failed to create log store", slog.Any("error", err))
			os.Exit(1)
		}
		store = osStore
	} else {
		logger.Warn("no storage addresses configured; query operations are disabled")
	}

	rules, err := assistant.LoadActionRules(cfg.Assistant.RulesPath, logger)
	if err != nil {
		logger.Error("failed to load action rules", slog.String("path", cfg.Assistant.RulesPath), slog.Any("error", err))
		os.Exit(1)
	}

	var textGen assistant.TextGenerator
	if cfg.Assistant.BaseURL != "" {
		textGen = repo.NewTextGenClient(cfg.Assistant.BaseURL, cfg.Assistant.ExecutePath, cfg.Assistant.StatusPath, cfg.Assistant.Timeout)
	}
	orchestrator := assistant.NewOrchestrator(textGen, assistant.Settings{
		Provider:    cfg.Assistant.Provider,
		Model:       cfg.Assistant.Model,
		Temperature: cfg.Assistant.Temperature,
		MaxTokens:   cfg.Assistant.MaxTokens,
		Verbose:     cfg.Assistant.Verbose,
	}, cfg.Limits, rules, logger)

	broadcaster := stream.NewBroadcaster(cfg.Stream.HeartbeatInterval, logger)
	go broadcaster.Run(ctx)

	service := services.NewLogIntelligenceService(logger, store, orchestrator, patterns.NewGrouper(cfg.Limits), broadcaster, services.Options{
		QueryLimit:   cfg.Storage.QueryLimit,
		BroaderLimit: cfg.Storage.BroaderLimit,
		TailBuffer:   cfg.Stream.SubscriberBuffer,
	})

	server, err := api.NewServer(cfg.Server, service, logger)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	mux := http.NewServeMux()
	stream.NewHandler(broadcaster, cfg.Stream.SubscriberBuffer, logger).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	// Streams hold their connection open, so only the header read is bounded.
	// Request contexts derive from ctx so open streams end on shutdown.
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		logger.Info("http server listening", slog.String("address", cfg.Server.HTTPAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", slog.Any("error", err))
			stop()
		}
	}()

	if len(cfg.Ingest.Brokers) > 0 {
		consumer := ingest.NewConsumer(ingest.Config{
			Brokers:       cfg.Ingest.Brokers,
			Topic:         cfg.Ingest.Topic,
			GroupID:       cfg.Ingest.GroupID,
			BatchSize:     cfg.Ingest.BatchSize,
			FlushInterval: cfg.Ingest.FlushInterval,
		}, broadcaster, logger)
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("ingest consumer exited", slog.Any("error", err))
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("mirador-insights stopped")
}
