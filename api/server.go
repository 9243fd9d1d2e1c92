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
  /api/students/*      Student directory, balances, payments
  /api/fee-items/*     Fee catalog
  /api/fee-rates/*     Scoped pricing
  /api/assessments/*   Generation and preview
  /api/payments/*      Payment lookup, correction, allocation
  /api/terms/*         Term calendar
  /api/admin/*         Import, seed, reset (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Student routes
		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.ListStudents)
			r.Post("/", h.CreateStudent)
			r.Get("/{id}", h.GetStudent)
			r.Get("/{id}/balance", h.GetQuickBalance)
			r.Get("/{id}/statement", h.GetStatement)
			r.Get("/{id}/outstanding", h.GetOutstanding)
			r.Post("/{id}/payments", h.CreatePayment)
		})

		// Fee catalog routes
		r.Route("/fee-items", func(r chi.Router) {
			r.Get("/", h.ListFeeItems)
			r.Post("/", h.CreateFeeItem)
			r.Delete("/{id}", h.DeleteFeeItem)
		})
		r.Route("/fee-rates", func(r chi.Router) {
			r.Get("/", h.ListFeeRates)
			r.Post("/", h.CreateFeeRate)
			r.Delete("/{id}", h.DeleteFeeRate)
		})
		r.Post("/fee-assignments", h.CreateAssignment)

		// Assessment routes
		r.Route("/assessments", func(r chi.Router) {
			r.Post("/generate", h.GenerateAssessments)
			r.Post("/preview", h.PreviewAssessments)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Get("/{id}", h.GetPayment)
			r.Put("/{id}", h.UpdatePayment)
			r.Delete("/{id}", h.DeletePayment)
			r.Post("/{id}/allocations", h.AllocatePayment)
		})

		// Term routes
		r.Route("/terms", func(r chi.Router) {
			r.Get("/", h.ListTerms)
			r.Post("/", h.CreateTerm)
			r.Post("/{id}/current", h.SetCurrentTerm)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/import", h.ImportStructure)
			r.Post("/seed", h.SeedDemo)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
