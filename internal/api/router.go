// Package api provides the HTTP API of the scene engine.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/urbanscope/urbanscope/internal/api/handler"
	"github.com/urbanscope/urbanscope/internal/api/middleware"
	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/internal/engine"
	"github.com/urbanscope/urbanscope/internal/featureflags"
	"github.com/urbanscope/urbanscope/internal/provider/resilience"
	"github.com/urbanscope/urbanscope/internal/worker"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	Sessions *engine.Manager
	Dataset  *dataset.Service
	Flags    *featureflags.Service
	Registry *resilience.Registry

	// Refresh runs admin dataset refreshes. When nil a job refreshing
	// only Dataset is built.
	Refresh *worker.RefreshJob

	RequireTLS     bool
	AllowAnyOrigin bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "urbanscope-api"
	}

	refresh := cfg.Refresh
	if refresh == nil {
		refresh = worker.NewRefreshJob(worker.RefreshJobConfig{
			Targets: []worker.RefreshTarget{worker.DatasetTarget(cfg.Dataset)},
			Flags:   cfg.Flags,
			Logger:  cfg.Logger,
		})
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Dataset:   cfg.Dataset,
		Sessions:  cfg.Sessions,
		Registry:  cfg.Registry,
		Refresh:   refresh,
		Flags:     cfg.Flags,
	})
	sessionsHandler := handler.NewSessionsHandler(cfg.Sessions, cfg.Logger)
	streamHandler := handler.NewStreamHandler(handler.StreamConfig{
		Manager:        cfg.Sessions,
		Metrics:        cfg.Metrics,
		Logger:         cfg.Logger,
		AllowAnyOrigin: cfg.AllowAnyOrigin,
	})
	metadataHandler := handler.NewMetadataHandler(cfg.Dataset, cfg.Logger)
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.Flags, cfg.Logger)
	adminHandler := handler.NewAdminHandler(refresh, cfg.Dataset, cfg.Logger)

	adminRateLimit := middleware.RateLimitByIP(middleware.AdminRateLimit)                 // 30 req/min
	sessionCreateRateLimit := middleware.RateLimitByIP(middleware.SessionCreateRateLimit) // 20 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)           // 100 req/min

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/metadata", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/layers", metadataHandler.ListLayers)
			r.Get("/series", metadataHandler.GetSeries)
			r.Get("/enums", metadataHandler.GetEnums)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.With(sessionCreateRateLimit, middleware.RequireJSON).Post("/", sessionsHandler.CreateSession)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Use(middleware.RateLimitBySession(middleware.ControlRateLimit)) // 1200 req/min per session
				r.Use(middleware.RequireJSON)

				r.Get("/", sessionsHandler.GetSession)
				r.Delete("/", sessionsHandler.CloseSession)
				r.Get("/stream", streamHandler.ServeStream)

				// Timeline
				r.Post("/play", sessionsHandler.Play)
				r.Post("/pause", sessionsHandler.Pause)
				r.Post("/step", sessionsHandler.Step)
				r.Put("/speed", sessionsHandler.SetSpeed)
				r.Put("/year", sessionsHandler.SetYear)
				r.Put("/forecast-playback", sessionsHandler.SetForecastPlayback)
				r.Post("/prediction", sessionsHandler.EnterPrediction)
				r.Delete("/prediction", sessionsHandler.ExitPrediction)

				// Layers
				r.Patch("/toggles", sessionsHandler.SetToggles)
				r.Put("/mode", sessionsHandler.SetVisualMode)

				// Camera
				r.Post("/camera/fly-to", sessionsHandler.FlyTo)
				r.Post("/camera/reset", sessionsHandler.ResetCamera)
				r.Post("/camera/zoom", sessionsHandler.Zoom)
				r.Post("/focus", sessionsHandler.EnterFocus)
				r.Delete("/focus", sessionsHandler.ExitFocus)

				// Selection
				r.Post("/pick/hover", sessionsHandler.Hover)
				r.Post("/pick/click", sessionsHandler.Click)
				r.Get("/selection", sessionsHandler.GetSelection)
				r.Delete("/selection", sessionsHandler.ClearSelection)
				r.Post("/selection/retry", sessionsHandler.RetryDetail)

				// Renderer fallback
				r.Post("/renderer", sessionsHandler.ReportRendererFailure)
				r.Delete("/renderer", sessionsHandler.RetryRenderer)
			})
		})

		// Admin endpoints are unauthenticated and must only be reachable
		// from the operator network.
		r.Route("/admin", func(r chi.Router) {
			r.Use(adminRateLimit)
			r.Use(middleware.RequireJSON)

			r.Route("/feature-flags", func(r chi.Router) {
				r.Get("/", featureFlagsHandler.ListFeatureFlags)
				r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
				r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
				r.Delete("/{key}", featureFlagsHandler.ResetFeatureFlag)
			})
			r.Post("/dataset/refresh", adminHandler.RefreshDataset)
		})
	})

	return r
}
