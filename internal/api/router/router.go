package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-scheduling/internal/clinic"
	"github.com/wolfman30/clinic-scheduling/internal/health"
	httpmiddleware "github.com/wolfman30/clinic-scheduling/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduling/internal/slots"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	SlotsHandler       *slots.Handler
	ClinicHandler      *clinic.Handler
	Health             *health.Checker
	MetricsHandler     http.Handler
	RateLimiter        *httpmiddleware.RateLimiter
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		checker := cfg.Health
		if checker == nil {
			checker = health.NewChecker(cfg.Logger)
		}
		public.Get("/health", checker.Live)
		public.Get("/ready", checker.Ready)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Group(func(api chi.Router) {
		if cfg.RateLimiter != nil {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}
		api.Route("/api/v1/clinics/{clinicID}", func(clinicRoutes chi.Router) {
			if cfg.SlotsHandler != nil {
				cfg.SlotsHandler.RegisterRoutes(clinicRoutes)
			}
			if cfg.ClinicHandler != nil {
				cfg.ClinicHandler.RegisterRoutes(clinicRoutes)
			}
		})
	})

	return r
}
