// Package main provides the entrypoint for the scene API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/urbanscope/urbanscope/internal/api"
	"github.com/urbanscope/urbanscope/internal/api/middleware"
	"github.com/urbanscope/urbanscope/internal/config"
	"github.com/urbanscope/urbanscope/internal/database"
	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/internal/dataset/pgstore"
	"github.com/urbanscope/urbanscope/internal/dataset/urbanapi"
	"github.com/urbanscope/urbanscope/internal/engine"
	"github.com/urbanscope/urbanscope/internal/featureflags"
	"github.com/urbanscope/urbanscope/internal/provider/resilience"
	"github.com/urbanscope/urbanscope/internal/telemetry"
	"github.com/urbanscope/urbanscope/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "urbanscope-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("data_source", cfg.DataSource).
		Msg("starting scene API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TelemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.TelemetryEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}
	frameMetrics, err := engine.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize frame metrics")
	}

	// The pool backs the Postgres data source and the flag store.
	var pool *pgxpool.Pool
	if cfg.DataSource == config.SourcePostgres {
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to prepare database schema")
		}
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
	}

	registry := resilience.NewRegistry()
	provider, details, err := newProvider(cfg, pool, registry, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create dataset provider")
	}

	datasetService := dataset.NewService(dataset.ServiceConfig{
		Provider:        provider,
		Logger:          log,
		CacheTTL:        cfg.DatasetCacheTTL,
		StaleIfErrorTTL: cfg.DatasetStaleTTL,
	})

	var flagRepo featureflags.Repository = featureflags.NewMemoryRepository()
	if pool != nil {
		flagRepo = featureflags.NewPostgresRepository(pool)
	}
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: flagRepo,
		Logger:     log,
		CacheTTL:   time.Minute,
	})

	sessions := engine.NewManager(engine.ManagerConfig{
		Dataset:       datasetService,
		Details:       details,
		Scene:         cfg.Scene.Geometry,
		Camera:        cfg.Scene.Camera,
		Flags:         flags,
		Limiter:       flags,
		Metrics:       frameMetrics,
		Logger:        log,
		FrameInterval: cfg.FrameInterval,
		PlayInterval:  cfg.PlayInterval,
		IdleTTL:       cfg.SessionIdleTTL,
	})
	managerDone := make(chan struct{})
	go func() {
		sessions.Run(ctx)
		close(managerDone)
	}()

	refresh := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Concurrency: config.Int("REFRESH_CONCURRENCY", 2),
			Interval:    cfg.DatasetRefreshInterval,
		},
		Targets: []worker.RefreshTarget{
			worker.DatasetTarget(datasetService),
			worker.FlagsTarget(flags),
		},
		Flags:  flags,
		Logger: log.With().Str("component", "refresh").Logger(),
	})
	go refresh.Loop(ctx)

	if cfg.PubSubProjectID != "" && cfg.PubSubSubscription != "" {
		startPubSub(ctx, cfg, refresh, datasetService, log)
	}

	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        httpMetrics,
		Sessions:       sessions,
		Dataset:        datasetService,
		Flags:          flags,
		Registry:       registry,
		Refresh:        refresh,
		RequireTLS:     cfg.RequireTLS,
		AllowAnyOrigin: !cfg.IsProduction(),
	})

	// No write timeout: frame streams are long-lived.
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	// Closing the sessions ends their frame streams so Shutdown can drain.
	<-managerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

// newProvider builds the dataset provider for DATA_SOURCE. A nil detail
// fetcher makes sessions read details from their snapshot.
func newProvider(cfg config.Config, pool *pgxpool.Pool, registry *resilience.Registry, log zerolog.Logger) (dataset.Provider, dataset.DetailFetcher, error) {
	switch cfg.DataSource {
	case config.SourceAPI:
		client, err := urbanapi.NewClient(urbanapi.Config{
			BaseURL:  cfg.UrbanAPIBaseURL,
			APIKey:   cfg.UrbanAPIKey,
			Registry: registry,
			Logger:   log.With().Str("provider", "urban-api").Logger(),
		})
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	case config.SourcePostgres:
		return pgstore.NewProvider(pool, log), nil, nil
	default:
		return dataset.NewBundledProvider(), nil, nil
	}
}

func startPubSub(ctx context.Context, cfg config.Config, refresh *worker.RefreshJob, ds *dataset.Service, log zerolog.Logger) {
	jobs := worker.NewJobHandler(worker.JobHandlerConfig{
		Refresh: refresh,
		Dataset: ds,
		Status:  ds,
		Logger:  log,
	})
	handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        cfg.PubSubProjectID,
		SubscriptionName: cfg.PubSubSubscription,
		Jobs:             jobs,
		Logger:           log.With().Str("component", "pubsub").Logger(),
	})
	if err != nil {
		log.Error().Err(err).Msg("pubsub disabled")
		return
	}

	go func() {
		defer handler.Close()
		if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("pubsub handler stopped")
		}
	}()
}
