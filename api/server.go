/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zap request log plus Prometheus counters (middleware.go)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the console frontend
  5. Auth:       HS256 bearer token with an admin role, on /api except /api/health

ROUTE GROUPS:
  /api/health             Liveness (no auth)
  /api/billing/*          KPIs
  /api/payments/*         Transactions, refunds, reconciliation
  /api/earnings/*         Driver earnings and payouts
  /api/compliance/*       BIR, DPA, LTFRB
  /api/ui/*               Badges and alert banners
  /api/audit              Audit trail
  /api/admin/*            Sweep and reset
  /api/scenarios/*        Demo scenarios
  /metrics                Prometheus
  /*                      Static files (console frontend)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configures the HTTP layer.
type RouterOptions struct {
	CORSOrigins []string
	JWTSecret   string   // empty disables auth
	AdminRoles  []string // roles allowed into the console
	StaticDir   string   // built frontend; defaults to ./web/dist
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			if opts.JWTSecret != "" {
				r.Use(requireRole([]byte(opts.JWTSecret), opts.AdminRoles, h.log.Named("auth")))
			}

			// Billing routes
			r.Route("/billing", func(r chi.Router) {
				r.Get("/kpis", h.GetKPIs)
				r.Get("/kpis/compare", h.CompareKPIs)
			})

			// Payment routes
			r.Route("/payments", func(r chi.Router) {
				r.Get("/transactions", h.ListTransactions)
				r.Post("/transactions", h.RecordTransaction)
				r.Get("/transactions/{id}", h.GetTransaction)

				r.Get("/refunds", h.ListRefunds)
				r.Post("/refunds", h.RequestRefund)
				r.Post("/refunds/{id}/approve", h.ApproveRefund)
				r.Post("/refunds/{id}/reject", h.RejectRefund)

				r.Get("/reconciliations", h.ListReconciliations)
				r.Post("/reconciliations", h.Reconcile)
				r.Get("/reconciliations/{id}", h.GetReconciliation)
			})

			// Earnings routes
			r.Route("/earnings", func(r chi.Router) {
				r.Post("/", h.RecordEarning)
				r.Get("/top", h.TopEarners)
				r.Get("/drivers/{id}", h.GetDriverBreakdown)
				r.Get("/drivers/{id}/payouts", h.ListPayouts)
				r.Post("/drivers/{id}/payouts", h.CreatePayout)
				r.Post("/payouts/{id}/status", h.UpdatePayoutStatus)
			})

			// Compliance routes
			r.Route("/compliance", func(r chi.Router) {
				r.Route("/bir", func(r chi.Router) {
					r.Get("/receipts", h.ListReceipts)
					r.Post("/receipts", h.IssueReceipt)
					r.Get("/receipts/{id}", h.GetReceipt)
					r.Post("/receipts/{id}/void", h.VoidReceipt)
					r.Get("/summary", h.GetReceiptSummary)
				})
				r.Route("/dpa", func(r chi.Router) {
					r.Get("/requests", h.ListSubjectRequests)
					r.Post("/requests", h.SubmitSubjectRequest)
					r.Get("/requests/{id}", h.GetSubjectRequest)
					r.Post("/requests/{id}/transition", h.TransitionSubjectRequest)
					r.Get("/requests/{id}/export", h.ExportSubjectData)
				})
				r.Route("/ltfrb", func(r chi.Router) {
					r.Get("/vehicles", h.ListVehicles)
					r.Post("/vehicles", h.RegisterVehicle)
					r.Get("/vehicles/{id}", h.GetVehicle)
					r.Post("/vehicles/{id}/insurance", h.VerifyInsurance)
					r.Get("/drivers", h.ListDrivers)
					r.Post("/drivers", h.RegisterDriver)
					r.Get("/drivers/{id}", h.GetDriver)
					r.Post("/trips/check", h.CheckTrip)
					r.Get("/report", h.GetComplianceReport)
				})
			})

			// Widget routes
			r.Route("/ui", func(r chi.Router) {
				r.Get("/alerts", h.ListAlerts)
				r.Post("/alerts", h.RaiseAlert)
				r.Post("/alerts/{id}/dismiss", h.DismissAlert)
				r.Get("/badges", h.GetBadges)
			})

			r.Get("/audit", h.ListAudit)

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Post("/sweep", h.RunSweep)
				r.Post("/reset", h.ResetDatabase)
			})

			// Scenario routes
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		})
	})

	mountStatic(r, opts.StaticDir)
	return r
}

// mountStatic serves the built console. Unknown paths fall back to
// index.html for client-side routing.
func mountStatic(r chi.Router, staticDir string) {
	if staticDir == "" {
		staticDir = "./web/dist"
		if _, err := os.Stat(staticDir); os.IsNotExist(err) {
			exe, _ := os.Executable()
			staticDir = filepath.Join(filepath.Dir(exe), "web", "dist")
		}
	}

	if _, err := os.Stat(staticDir); err != nil {
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Ops Console</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Ops Console API</h1>
<p>The console frontend is not built. API endpoints:</p>
<ul>
<li><a href="/api/health">/api/health</a></li>
<li><a href="/api/billing/kpis">/api/billing/kpis</a></li>
<li><a href="/api/compliance/ltfrb/report">/api/compliance/ltfrb/report</a></li>
<li><a href="/api/scenarios">/api/scenarios</a></li>
<li><a href="/metrics">/metrics</a></li>
</ul>
</body>
</html>`))
		})
		return
	}

	fileServer := http.FileServer(http.Dir(staticDir))
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		fullPath := filepath.Join(staticDir, filepath.Clean(r.URL.Path))
		if _, err := os.Stat(fullPath); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}
