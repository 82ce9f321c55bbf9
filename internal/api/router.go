// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the full route tree.
func NewRouter(handler *Handler, mw *Middleware) http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(PrometheusMetrics())

		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimit())

			r.Get("/recommendations/{userID}", handler.Recommendations)
			r.Post("/feedback", handler.SubmitFeedback)
			r.Get("/search", handler.Search)
			r.Get("/health", handler.Health)
			r.Get("/sync/status", handler.SyncStatus)
		})

		// Sync triggers are expensive; they get their own stricter limit.
		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimitSync())
			r.Post("/sync", handler.TriggerSync)
		})
	})

	r.Get("/healthz", handler.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
