package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(recoverer)

	// K8s probes
	r.Get("/health", s.health.HandleHealth)
	r.Get("/ready", s.health.HandleReadiness)

	r.Route("/api/crypto", func(r chi.Router) {
		r.Post("/update-prices", s.handleUpdatePrices)
		r.Get("/latest-prices", s.handleLatestPrices)
		r.Get("/history/{symbol}", s.handleHistory)
	})

	return r
}
