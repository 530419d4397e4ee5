/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/projects/*       Projects, their WBEs, reports, baselines
  /api/wbes/*           WBEs, their cost elements, reports
  /api/cost-elements/*  Record streams, reports, forecasts
  /api/forecasts/*      Forecast lifecycle (promote, delete)
  /api/baselines/*      Stored baseline lookup
  /api/audit            Audit trail
  /api/admin/*          Admin operations (reset)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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

// NewRouter creates a new router with all routes configured. With no
// allowed origins given, local dev frontends are assumed.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Project routes
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", h.ListProjects)
			r.Post("/", h.CreateProject)
			r.Get("/{id}", h.GetProject)
			r.Get("/{id}/wbes", h.ListWBEs)
			r.Post("/{id}/wbes", h.CreateWBE)
			r.Get("/{id}/planned-value", h.ProjectPlannedValue)
			r.Get("/{id}/evm-metrics", h.ProjectEVM)
			r.Get("/{id}/baselines", h.ListBaselines)
			r.Post("/{id}/baselines", h.CreateBaseline)
		})

		// WBE routes
		r.Route("/wbes", func(r chi.Router) {
			r.Get("/{id}", h.GetWBE)
			r.Get("/{id}/cost-elements", h.ListCostElements)
			r.Post("/{id}/cost-elements", h.CreateCostElement)
			r.Get("/{id}/planned-value", h.WBEPlannedValue)
			r.Get("/{id}/evm-metrics", h.WBEEVM)
		})

		// Cost element routes
		r.Route("/cost-elements", func(r chi.Router) {
			r.Get("/{id}", h.GetCostElement)
			r.Get("/{id}/schedules", h.ListSchedules)
			r.Post("/{id}/schedules", h.CreateSchedule)
			r.Get("/{id}/cost-registrations", h.ListCostRegistrations)
			r.Post("/{id}/cost-registrations", h.CreateCostRegistration)
			r.Get("/{id}/earned-value", h.ListEarnedValue)
			r.Post("/{id}/earned-value", h.CreateEarnedValue)
			r.Get("/{id}/planned-value", h.CostElementPlannedValue)
			r.Get("/{id}/evm-metrics", h.CostElementEVM)
			r.Get("/{id}/forecasts", h.ListForecasts)
			r.Post("/{id}/forecasts", h.SubmitForecast)
		})

		// Forecast lifecycle routes
		r.Route("/forecasts", func(r chi.Router) {
			r.Put("/{id}/current", h.SetCurrentForecast)
			r.Delete("/{id}", h.DeleteForecast)
		})

		// Baseline lookup
		r.Route("/baselines", func(r chi.Router) {
			r.Get("/{id}", h.GetBaseline)
		})

		// Audit trail
		r.Get("/audit", h.GetAuditTrail)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/reset", h.ResetDatabase)
		})
	})

	// Landing page: a minimal API index
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>EVM Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>EVM Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/projects">/api/projects</a> - List projects</li>
<li>/api/projects/{id}/evm-metrics?control_date=YYYY-MM-DD - Project EVM report</li>
<li>/api/cost-elements/{id}/planned-value?control_date=YYYY-MM-DD - Planned value</li>
<li><a href="/api/audit">/api/audit</a> - Audit trail</li>
</ul>
</body>
</html>`))
	})

	return r
}
