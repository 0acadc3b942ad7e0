package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter creates the router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(withRequestID, s.accessLog, s.recoverPanics)
	r.Use(s.corsPolicy().Handler)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5, "application/json"))

			r.Route("/readings", func(r chi.Router) {
				r.Post("/", s.handleIngest)
				r.Get("/", s.handleListReadings)
				r.Get("/{id}", s.handleGetReading)
			})

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Patch("/status", s.handleUpdateDeviceStatus)
				})
			})

			r.Route("/items/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetItem)
				r.Get("/movements", s.handleListMovements)
			})
		})
	})

	path := s.wsCfg.Path
	if path == "" {
		path = "/ws"
	}
	r.Get(path, s.handleWebSocket)

	return r
}
