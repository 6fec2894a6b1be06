/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/strategies/*     Stored strategies
  /api/session/*        The active strategy and its allocators
  /api/export, /import  Bulk interchange
  /api/libraries/*      Advertiser and audience lookups
  /api/templates/*      Strategy templates

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/planner/serve.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. origins lists
// the browser origins allowed by CORS.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/strategies", func(r chi.Router) {
			r.Get("/", h.ListStrategies)
			r.Post("/", h.CreateStrategy)
			r.Get("/{id}", h.GetStrategy)
			r.Delete("/{id}", h.DeleteStrategy)
			r.Post("/{id}/duplicate", h.DuplicateStrategy)
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Patch("/", h.PatchSession)
			r.Post("/load", h.LoadSession)
			r.Post("/close", h.CloseSession)
			r.Post("/save", h.SaveSession)
			r.Put("/autosave", h.SetAutoSave)
			r.Put("/dates", h.SetDates)
			r.Get("/validation", h.GetValidation)
			r.Get("/calculations", h.GetCalculations)

			r.Get("/attachment", h.DownloadAttachment)
			r.Put("/attachment", h.UploadAttachment)
			r.Delete("/attachment", h.DeleteAttachment)

			r.Get("/export.json", h.ExportSessionJSON)
			r.Get("/export.csv", h.ExportSessionCSV)

			r.Route("/line-items", func(r chi.Router) {
				r.Get("/", h.ListLineItems)
				r.Post("/", h.AddLineItems)
				r.Post("/rebalance", h.RebalanceLineItems)
				r.Get("/pending", h.GetPendingEdit)
				r.Post("/pending", h.ResolvePendingEdit)
				r.Delete("/pending", h.DiscardPendingEdit)
				r.Patch("/{itemID}", h.EditLineItem)
				r.Delete("/{itemID}", h.DeleteLineItem)
				r.Post("/{itemID}/duplicate", h.DuplicateLineItem)
				r.Put("/{itemID}/tactic", h.MoveLineItem)
			})

			r.Route("/flights", func(r chi.Router) {
				r.Get("/", h.ListFlights)
				r.Post("/regenerate", h.RegenerateFlights)
				r.Patch("/{flightID}", h.EditFlight)
				r.Delete("/{flightID}", h.DeleteFlight)
			})
		})

		r.Get("/export", h.ExportAll)
		r.Post("/import", h.Import)

		r.Route("/libraries", func(r chi.Router) {
			r.Get("/advertisers", h.ListAdvertisers)
			r.Post("/advertisers", h.AddAdvertiser)
			r.Delete("/advertisers", h.RemoveAdvertiser)
			r.Get("/agencies", h.ListAgencies)
			r.Get("/audiences", h.ListAudiences)
			r.Post("/audiences", h.AddAudience)
			r.Delete("/audiences", h.RemoveAudience)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
			r.Get("/{id}", h.GetTemplate)
			r.Delete("/{id}", h.DeleteTemplate)
			r.Post("/{id}/instantiate", h.InstantiateTemplate)
		})
	})

	return r
}
