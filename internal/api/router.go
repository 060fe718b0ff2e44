package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(ChiMiddleware.RequestID)
	r.Use(ChiMiddleware.Logger)
	r.Use(ChiMiddleware.Recoverer)

	r.Get("/health", h.Health)

	r.Route("/inventory", func(r chi.Router) {
		r.Get("/", h.ListStock)
		// Cached for one second when redis is configured
		r.Get("/{item}", h.GetStock)
	})

	r.Route("/ledger", func(r chi.Router) {
		r.Get("/", h.LedgerSummary)
		r.Get("/{eventID}", h.GetLedgerRecord)
	})

	r.Get("/queues", h.GetQueues)

	// Runtime fault injection
	r.Get("/configure", h.GetFaults)
	r.Post("/configure", h.Configure)

	r.Handle("/metrics", promhttp.Handler())

	return r
}
