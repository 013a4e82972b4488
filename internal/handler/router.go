package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kainult/price-platform/internal/middleware"
	"github.com/kainult/price-platform/pkg/logger"
)

// RouterConfig carries the handlers and HTTP policy of the API.
type RouterConfig struct {
	Health   *HealthHandler
	Products *ProductHandler
	Sessions *SessionHandler
	Stream   *StreamHandler
	WS       *WSHandler

	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	SubmitRateLimit   int
	AllowedOrigins    []string

	Logger *logger.Logger
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Catalog
		r.Get("/categories", cfg.Products.Categories)
		r.Get("/deals", cfg.Products.Deals)
		r.Route("/products", func(r chi.Router) {
			r.Get("/", cfg.Products.List)
			r.Get("/{id}", cfg.Products.Get)
		})

		// Chat sessions
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", cfg.Sessions.Create)
			r.Get("/", cfg.Sessions.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.Sessions.Get)
				r.Delete("/", cfg.Sessions.Delete)
				r.Post("/cancel", cfg.Sessions.Cancel)

				r.With(middleware.UserRateLimit(cfg.SubmitRateLimit, time.Minute)).
					Post("/messages", cfg.Sessions.SendMessage)

				// Streaming
				r.Get("/stream", cfg.Stream.Stream)
				r.Get("/ws", cfg.WS.Serve)
			})
		})
	})

	return r
}
