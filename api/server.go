/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Dashboard origin(s) from config

ROUTE GROUPS:
  /api/health, /api/months, /api/import/log   Status
  /api/orders, /api/stats, /api/open-orders   Raw data lookups
  /api/reports/*                              Reports and discrepancies
  /api/fetch, /api/import/open-orders         Imports
  /api/officers/*                             Officer directory
  /api/scenarios/*                            Demo datasets

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. An empty
// origins list allows any origin.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/months", h.ListMonths)
		r.Get("/import/log", h.ImportLog)

		r.Get("/orders/{fileNumber}", h.GetOrder)
		r.Get("/stats/{yearMonth}", h.MonthStats)
		r.Get("/open-orders/summary", h.OpenOrderSummary)

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/discrepancies", h.Discrepancies)
			r.Get("/{name}", h.GetReport)
		})

		// Import routes
		r.Post("/fetch/{yearMonth}", h.FetchMonth)
		r.Post("/import/open-orders", h.ImportOpenOrders)

		// Officer directory
		r.Route("/officers", func(r chi.Router) {
			r.Get("/", h.ListOfficers)
			r.Post("/", h.SaveOfficer)
			r.Delete("/{name}", h.DeactivateOfficer)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
