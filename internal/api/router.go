// Package api wires the HTTP surface of the sync service.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dvloznov/openfinance-sync/internal/api/handlers"
	"github.com/dvloznov/openfinance-sync/internal/api/middleware"
)

// Deps are the handlers and collaborators of the router.
type Deps struct {
	Pluggy   *handlers.PluggyHandler
	Jobs     *handlers.JobsHandler
	Verifier middleware.TokenVerifier
	Log      zerolog.Logger
}

// NewRouter builds the HTTP handler. /health and /metrics are public;
// everything under /pluggy requires a bearer token.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/pluggy", func(r chi.Router) {
		r.Use(middleware.Auth(d.Verifier))

		r.Post("/create-token", d.Pluggy.CreateToken)
		r.Get("/items", d.Pluggy.ListItems)
		r.Post("/trigger-sync", d.Pluggy.TriggerSync)
		r.Post("/sync", d.Pluggy.Sync)
		r.Delete("/item/{itemId}", d.Pluggy.DeleteItem)
		r.Get("/items-status", d.Pluggy.ItemsStatus)
		r.Get("/webhook-worker", d.Pluggy.WebhookWorker)

		r.Get("/sync-jobs", d.Jobs.ListJobs)
		r.Get("/sync-jobs/{jobId}", d.Jobs.GetJob)
	})

	return r
}
