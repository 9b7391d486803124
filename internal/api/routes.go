package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured. limiter may be
// nil to disable rate limiting.
func NewRouter(h *Handler, limiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Health)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))
			r.Use(IdentityMiddleware(h.defaultUser))
			if limiter != nil {
				r.Use(limiter.Middleware)
			}

			r.Get("/metrics", h.GetMetrics)
			r.Post("/metrics", h.PostMetricEntry)

			r.Get("/anchor-metrics", h.ListAnchorMetrics)
			r.Post("/anchor-metrics", h.SaveAnchorMetric)
			r.Delete("/anchor-metrics/{id}", h.DeleteAnchorMetric)
			r.Post("/anchor-metrics/seed", h.SeedAnchorMetrics)

			r.Get("/radar", h.Radar)
			r.Post("/radar/addressed", h.SetAddressed)

			r.Get("/alerts", h.Alerts)
			r.Post("/alerts/{id}/dismiss", h.DismissAlert)

			r.Get("/daily-checks", h.GetDailyChecks)
			r.Put("/daily-checks", h.PutDailyCheck)
			r.Delete("/daily-checks/{date}", h.DeleteDailyCheck)
			r.Get("/weekly-plans", h.GetWeeklyPlans)
			r.Put("/weekly-plans", h.PutWeeklyPlan)
			r.Get("/impact-logs", h.GetImpactLogs)
			r.Put("/impact-logs", h.PutImpactLog)
			r.Get("/preferences", h.GetPreferences)
			r.Put("/preferences", h.PutPreferences)

			r.Get("/export", h.Export)
			r.Post("/export/archive", h.ArchiveExport)
			r.Post("/import", h.Import)

			r.Get("/sync", h.Sync)
			r.Post("/sync", h.Sync)

			r.Post("/chat", h.Chat)
			r.Post("/commands", h.ExecuteCommand)
		})
	})

	return r
}
