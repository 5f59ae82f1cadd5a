package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(
		s.deps.Gatherer, promhttp.HandlerOpts{},
	))

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.Server.RateLimit.Enabled {
			r.Use(s.rateLimitMiddleware(
				s.cfg.Server.RateLimit.RequestsPerMinute,
			))
		}

		// Public endpoints.
		r.Get("/algorithms", s.handleListAlgorithms)
		r.Get("/algorithms/categories", s.handleAlgorithmCategories)
		r.Get("/algorithms/{identity}", s.handleGetAlgorithm)
		r.Get("/reports/kinds", s.handleReportKinds)

		// Everything else acts on behalf of a user.
		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)

			r.Post("/trials", s.handleRunTrial)
			r.Post("/trials/batch", s.handleRunBatch)

			r.Get("/records", s.handleListRecords)
			r.Get("/records/export", s.handleExportRecords)
			r.Post("/records/import", s.handleImportRecords)
			r.Post("/records/delete", s.handleDeleteRecords)
			r.Get("/records/{id}", s.handleGetRecord)
			r.Delete("/records/{id}", s.handleDeleteRecord)

			r.Get("/statistics/summary", s.handleSummary)
			r.Get("/statistics/trend", s.handleTrend)
			r.Get("/statistics/overview", s.handleOverview)

			r.Post("/reports", s.handleGenerateReport)
			r.Get("/reports", s.handleListReports)
			r.Get("/reports/{id}", s.handleGetReport)
			r.Get("/reports/{id}/markdown", s.handleReportMarkdown)
			r.Post("/reports/{id}/publish", s.handlePublishReport)
			r.Delete("/reports/{id}", s.handleDeleteReport)
		})
	})

	return r
}

// corsMiddleware returns a CORS handler configured from the server config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{"GET", "HEAD", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", s.cfg.Server.UserHeader},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
