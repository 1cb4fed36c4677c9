package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/kmccarthy/riskgate/internal/handlers"
	"github.com/kmccarthy/riskgate/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, riskHandler *handlers.RiskHandler) {
	rateLimitConfig := middleware.DefaultAssessRateLimit()

	router.Route("/v1", func(r chi.Router) {
		r.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/assess", riskHandler.Assess)

		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Get("/events", riskHandler.AccountEvents)
			r.Get("/summary", riskHandler.AccountSummary)
		})
	})
}
