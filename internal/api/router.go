package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/technosupport/ts-eventfeed/internal/middleware"
)

type RouterDeps struct {
	Events  *EventHandler
	Facets  *FacetHandler
	Media   *MediaHandler
	Ws      *FeedWsHandler
	Refresh *middleware.RateLimitMiddleware
}

func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.CORS)

	r.Route("/api/v1", func(r chi.Router) {
		// Long-lived, no request timeout.
		r.Get("/ws", deps.Ws.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(60 * time.Second))

			r.Get("/events", deps.Events.ListCompleted)
			r.Get("/events/live", deps.Events.ListInProgress)
			r.Get("/events/{id}/{media}", deps.Media.Serve)
			r.Get("/facets", deps.Facets.Get)
			r.Put("/facets/{facet}/selection", deps.Facets.PutSelection)
			r.Get("/cameras", deps.Events.ListCameras)
			r.Get("/server/version", deps.Events.ServerVersion)
			r.Get("/healthz", deps.Events.Healthz)

			if deps.Refresh != nil {
				r.With(deps.Refresh.Limit).Post("/refresh", deps.Events.Refresh)
			} else {
				r.Post("/refresh", deps.Events.Refresh)
			}
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}
