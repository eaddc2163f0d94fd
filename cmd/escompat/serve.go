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

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/escompat/internal/config"
	"github.com/kailas-cloud/escompat/internal/domain/query"
	"github.com/kailas-cloud/escompat/internal/engine/elastic"
	"github.com/kailas-cloud/escompat/internal/events"
	eventsRedis "github.com/kailas-cloud/escompat/internal/events/redis"
	logpkg "github.com/kailas-cloud/escompat/internal/logger"
	"github.com/kailas-cloud/escompat/internal/mapping"
	"github.com/kailas-cloud/escompat/internal/metrics"
	"github.com/kailas-cloud/escompat/internal/retry"
	chiTransport "github.com/kailas-cloud/escompat/internal/transport/chi"
	documentuc "github.com/kailas-cloud/escompat/internal/usecase/document"
	healthuc "github.com/kailas-cloud/escompat/internal/usecase/health"
	indexuc "github.com/kailas-cloud/escompat/internal/usecase/index"
	"github.com/kailas-cloud/escompat/internal/version"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts.Env)
		},
	}
}

func runServe(ctx context.Context, env string) error {
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting escompat API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("engine_addrs", cfg.Engine.Addrs),
		zap.String("events_driver", cfg.Events.Driver),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEngineMetrics()
	metrics.RegisterHTTPMetrics()

	store, err := elastic.NewStore(elastic.Config{Addrs: cfg.Engine.Addrs})
	if err != nil {
		return fmt.Errorf("create engine client: %w", err)
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Engine.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("engine not ready: %w", err)
	}
	logger.Info("Connected to engine")

	registry, err := mapping.Load(cfg.Mapping.Dir)
	if err != nil {
		return fmt.Errorf("load mappings: %w", err)
	}
	logger.Info("Mappings loaded", zap.Strings("categories", registry.Categories()))

	codec, err := newCodec(cfg.Alias)
	if err != nil {
		return err
	}
	compiler := query.NewCompiler(codec)

	exec := retry.NewExecutor(retry.Policy{
		MaxAttempts: *cfg.Retry.MaxAttempts,
		Interval:    time.Duration(cfg.Retry.IntervalMS) * time.Millisecond,
	}, nil, logger)

	var sink events.Sink = events.NopSink{}
	// Stays a nil interface (not a typed nil pointer!) when no sink is configured.
	var sinkPinger healthuc.Pinger
	if cfg.Events.Driver == "redis" {
		rs, err := eventsRedis.NewSink(eventsRedis.Config{
			Addrs:    cfg.Events.Addrs,
			Username: cfg.Events.Username,
			Password: cfg.Events.Password,
			DB:       cfg.Events.DB,
			Stream:   cfg.Events.Stream,
			MaxLen:   cfg.Events.MaxLen,
		})
		if err != nil {
			return fmt.Errorf("create event sink: %w", err)
		}
		defer rs.Close()
		sink, sinkPinger = rs, rs
	}
	publisher := events.NewPublisher(sink, logger)

	docSvc := documentuc.New(store, compiler, codec, exec).
		WithEvents(publisher).
		WithMarkerField(cfg.Create.MarkerField)
	indexSvc := indexuc.New(store, registry, compiler, codec, exec).
		WithEvents(publisher).
		WithSettings(cfg.Index.Settings()).
		WithParallelism(cfg.Index.CreateParallel)
	healthSvc := healthuc.New(store, sinkPinger)

	server := chiTransport.NewServer(docSvc, indexSvc, healthSvc, compiler, logger)
	handler := server.Handler(
		jsonRecoverer(logger),
		chiMiddleware.RequestID,
		requestLogMiddleware(logger),
		chiTransport.APIKeyMiddleware(cfg.Auth.APIKeys),
		metrics.Middleware(),
	)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}
