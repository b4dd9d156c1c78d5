package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/vitalsync/vitalsync/internal/api/handler"
	"github.com/vitalsync/vitalsync/internal/config"
	"github.com/vitalsync/vitalsync/internal/store"
	"github.com/vitalsync/vitalsync/internal/token"
	"github.com/vitalsync/vitalsync/internal/window"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(pool *pgxpool.Pool, st *store.Store, syncer handler.Syncer, tokens token.Store, windows *window.Resolver, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg, logger))
	}

	// --- Handler dependencies ---
	h := handler.New(pool, st, syncer, tokens, windows, cfg, logger)

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
	})

	// Swagger UI
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Thresholds
		r.Get("/users/{userID}/thresholds", h.GetThresholds)
		r.Put("/users/{userID}/thresholds", h.PutThresholds)

		// Metrics reads
		r.Get("/metrics/{userID}/latest", h.GetLatest)
		r.Get("/metrics/{userID}/{provider}/daily/{date}", h.GetDaily)
		r.Get("/metrics/{userID}/{provider}/intraday/{metric}/{date}", h.GetIntraday)

		// Manual sync
		r.Post("/sync/{userID}/{provider}", h.TriggerSync)

		// Provider link flow
		r.Post("/link/{userID}/{provider}/start", h.StartLink)
		r.Post("/link/complete", h.CompleteLink)
	})

	return r
}
