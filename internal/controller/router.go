package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(c.requestIdMw)

	r.Get("/ws/rooms/{room-id}", c.joinRoom)

	r.Route("/api", func(r chi.Router) {
		r.Use(c.requestLoggingMw)
		r.Get("/healthz", c.healthCheck)
		r.Get("/rooms/{room-id}", c.getRoom)
		r.Put("/rooms/url", c.setMediaURL)
		r.Get("/videos", c.getVideo)
	})

	if c.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
