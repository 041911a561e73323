// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/middleware"
)

// Router sets up HTTP routes using Chi router.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware

	// pages answers every request no route matched: documents and assets
	// through the cache controller.
	pages http.Handler
}

// NewRouter creates a router. pages may be nil, in which case unmatched
// requests get 404.
func NewRouter(handler *Handler, mw *ChiMiddleware, pages http.Handler) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw, pages: pages}
}

// chiMiddleware adapts http.HandlerFunc middleware to Chi's func(http.Handler) http.Handler.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Global Middleware Stack
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	h := router.handler

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.CORS())
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.CORS())
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Get("/status", h.Status)
		r.Get("/pending", h.Pending)
		r.Post("/connectivity", h.Connectivity)
		r.With(router.chiMiddleware.RateLimitSync()).Post("/sync", h.Sync)

		r.Route("/collections/{collection}/records", func(r chi.Router) {
			r.Get("/", h.ListRecords)
			r.Get("/{id}", h.GetRecord)
			r.Group(func(r chi.Router) {
				r.Use(router.chiMiddleware.RateLimitWrite())
				r.Post("/", h.CreateRecord)
				r.Put("/{id}", h.UpdateRecord)
				r.Delete("/{id}", h.DeleteRecord)
			})
		})

		r.Post("/update/check", h.UpdateCheck)
		r.Post("/update/skip-waiting", h.SkipWaiting)

		r.Get("/purge", h.PurgePreview)
		r.With(router.chiMiddleware.RateLimitSync()).Post("/purge", h.Purge)

		r.NotFound(h.NotFound)
		r.MethodNotAllowed(h.MethodNotAllowed)
	})

	// The upgrade hijacks the connection, so the socket stays outside the
	// metrics wrapper.
	r.With(router.chiMiddleware.RateLimitWebSocket()).Get("/ws", h.WebSocket)
	r.Handle("/metrics", promhttp.Handler())

	if router.pages != nil {
		pages := chiMiddleware(middleware.PrometheusMetrics)(router.pages)
		r.NotFound(pages.ServeHTTP)
		r.MethodNotAllowed(pages.ServeHTTP)
	}
	return r
}
