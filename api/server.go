/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests, origins from config

ROUTE GROUPS:
  /api/teachers/*       Teacher management, statement creation
  /api/subjects/*       Subject catalog
  /api/statements/*     Listing, details, PDF, bulk delete
  /api/line-items/*     Line item edits
  /api/exports/*        ZIP and XLSX downloads
  /api/notifications    Publish + notify
  /api/config/*         Formula and rate tables
  /api/scenarios/*      Demo scenarios
  /pdfs/{name}          Published PDFs (notification links)

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	origins := h.Config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition", "X-Skipped-Statements"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/teachers", func(r chi.Router) {
			r.Get("/", h.ListTeachers)
			r.Post("/", h.CreateTeacher)
			r.Get("/{id}", h.GetTeacher)
			r.Put("/{id}", h.UpdateTeacher)
			r.Delete("/{id}", h.DeleteTeacher)
			r.Get("/{id}/hourly-rate", h.GetHourlyRate)
			r.Get("/{id}/statements/previous", h.GetPreviousStatement)
			r.Post("/{id}/statements", h.CreateStatement)
		})

		r.Route("/subjects", func(r chi.Router) {
			r.Get("/", h.ListSubjects)
			r.Post("/", h.CreateSubject)
			r.Put("/{id}", h.UpdateSubject)
			r.Delete("/{id}", h.DeleteSubject)
		})

		r.Route("/statements", func(r chi.Router) {
			r.Get("/", h.ListStatements)
			r.Delete("/", h.DeleteStatements)
			r.Get("/{id}", h.GetStatement)
			r.Delete("/{id}", h.DeleteStatement)
			r.Get("/{id}/pdf", h.DownloadStatementPDF)
			r.Post("/{id}/line-items", h.CreateLineItem)
		})

		r.Route("/line-items", func(r chi.Router) {
			r.Put("/{id}", h.UpdateLineItem)
			r.Delete("/{id}", h.DeleteLineItem)
		})

		r.Route("/exports", func(r chi.Router) {
			r.Post("/zip", h.ExportSelectedZip)
			r.Get("/zip", h.ExportFilteredZip)
			r.Get("/xlsx", h.ExportListingXLSX)
		})

		r.Post("/notifications", h.SendNotifications)

		r.Route("/config", func(r chi.Router) {
			r.Get("/formula", h.GetFormula)
			r.Put("/formula", h.UpdateFormula)
			r.Get("/rates", h.GetRates)
			r.Put("/rates", h.ReplaceRates)
			r.Put("/base-rates", h.UpdateBaseRates)
			r.Put("/student-bands", h.UpdateBandRates)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.Get("/pdfs/{name}", h.DownloadPublishedPDF)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found", nil)
	})

	return r
}
