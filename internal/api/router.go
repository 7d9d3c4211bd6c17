package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/replypilot/replypilot/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Auth
	Register http.HandlerFunc
	Login    http.HandlerFunc
	Me       http.HandlerFunc
	Logout   http.HandlerFunc

	// Generation
	GenerateResponse http.HandlerFunc
	Usage            http.HandlerFunc
	Models           http.HandlerFunc

	// Billing
	CheckoutSession http.HandlerFunc
	PortalSession   http.HandlerFunc
	Webhook         http.HandlerFunc
	Plans           http.HandlerFunc

	// Account
	Profile      http.HandlerFunc
	Subscription http.HandlerFunc
	Activity     http.HandlerFunc

	AuthMiddleware         func(http.Handler) http.Handler
	OptionalAuthMiddleware func(http.Handler) http.Handler
}

// HealthCheck reports one dependency's readiness.
type HealthCheck func(ctx context.Context) error

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	// RateLimiter applies to every /api route when set.
	RateLimiter func(http.Handler) http.Handler
	// HealthChecks are run by the readiness probe, keyed by dependency name.
	HealthChecks map[string]HealthCheck
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONErrorMessage(w, http.StatusNotFound, "Endpoint not found")
	})

	// Liveness probe, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readiness := readinessHandler(cfg.HealthChecks)
	r.Get("/health/ready", readiness)
	r.Get("/health", readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter)
		}

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)

			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Get("/me", h.Me)
				r.Post("/logout", h.Logout)
			})
		})

		r.Route("/ai", func(r chi.Router) {
			r.With(h.OptionalAuthMiddleware).Get("/models", h.Models)

			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/generate-response", h.GenerateResponse)
				r.Get("/usage", h.Usage)
			})
		})

		r.Route("/billing", func(r chi.Router) {
			r.Get("/plans", h.Plans)
			r.Post("/webhook", h.Webhook)

			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/checkout-session", h.CheckoutSession)
				r.Post("/portal-session", h.PortalSession)
			})
		})

		r.Route("/user", func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			r.Get("/profile", h.Profile)
			r.Get("/subscription", h.Subscription)
			r.Get("/activity", h.Activity)
		})
	})

	return r
}

func readinessHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{"status": "healthy"}
		status := http.StatusOK

		for _, name := range names {
			if checks[name] == nil {
				health[name] = "not configured"
				continue
			}
			if err := checks[name](r.Context()); err != nil {
				slog.Warn("readiness check failed", "dependency", name, "error", err)
				health[name] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			health[name] = "healthy"
		}

		JSON(w, status, health)
	}
}
