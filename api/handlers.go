/*
handlers.go - HTTP API handlers for the back-office console

PURPOSE:
  Exposes the console services via REST API. Handles HTTP request and
  response, JSON serialization, and delegates to the domain packages.

ENDPOINTS:
  Billing:
    GET    /api/billing/kpis                       KPIs for ?from&to
    GET    /api/billing/kpis/compare               KPIs against the previous period

  Payments:
    GET    /api/payments/transactions              List transactions
    POST   /api/payments/transactions              Record a transaction
    GET    /api/payments/transactions/{id}         Transaction with refunds and receipts
    GET    /api/payments/refunds                   List refunds
    POST   /api/payments/refunds                   Request a refund
    POST   /api/payments/refunds/{id}/approve      Approve
    POST   /api/payments/refunds/{id}/reject       Reject
    GET    /api/payments/reconciliations           List runs
    POST   /api/payments/reconciliations           Reconcile a settlement report
    GET    /api/payments/reconciliations/{id}      Run with discrepancies

  Earnings:
    POST   /api/earnings                           Record an earning
    GET    /api/earnings/top                       Top earners
    GET    /api/earnings/drivers/{id}              Driver breakdown
    GET    /api/earnings/drivers/{id}/payouts      Payout history
    POST   /api/earnings/drivers/{id}/payouts      Create payout
    POST   /api/earnings/payouts/{id}/status       Move payout status

  Compliance:
    /api/compliance/bir/...                        Official receipts (compliance.go)
    /api/compliance/dpa/...                        Data-subject requests
    /api/compliance/ltfrb/...                      Fleet registry and checks

  Widgets:
    GET    /api/ui/alerts                          Active banners
    POST   /api/ui/alerts                          Raise a manual banner
    POST   /api/ui/alerts/{id}/dismiss             Dismiss
    GET    /api/ui/badges                          Badge lookup

  Admin:
    GET    /api/health                             Liveness and database ping
    GET    /api/audit                              Audit trail
    POST   /api/admin/sweep                        Run the compliance sweep now
    POST   /api/admin/reset                        Wipe all data (dev only)
    GET    /api/scenarios                          List demo scenarios
    POST   /api/scenarios/load                     Load a demo scenario

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: the persistence backend (SQLite or Postgres)
  - One service per console area, built over the same store
  - Alerts and the compliance sweep

REQUEST FLOW:
  1. Parse HTTP request (decode validates struct tags)
  2. Convert to domain types
  3. Call the service
  4. Convert to DTO and write the envelope
  5. Map errors (handleError in respond.go)

ERROR HANDLING:
  - 400: Validation errors, invalid input
  - 401/403: Missing token or role (auth.go)
  - 404: Record not found
  - 409: Conflict or invalid status transition
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - respond.go: Envelope and error mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/ops-console/billing"
	"github.com/warp/ops-console/compliance/bir"
	"github.com/warp/ops-console/compliance/dpa"
	"github.com/warp/ops-console/compliance/ltfrb"
	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/earnings"
	"github.com/warp/ops-console/events"
	"github.com/warp/ops-console/payments"
	"github.com/warp/ops-console/widgets"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is everything the console persists. Both store/sqlite and
// store/postgres implement it.
type Store interface {
	payments.Store
	earnings.Store
	bir.Store
	dpa.Store
	ltfrb.Store
	widgets.AlertStore
	core.AuditLog

	Ping(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Options carries the business settings from config.
type Options struct {
	TakeRate     decimal.Decimal
	Rates        earnings.Rates
	BIR          bir.Options
	ResponseDays int
	LTFRB        ltfrb.Options
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Store
	Payments *payments.Service
	Billing  *billing.Service
	Earnings *earnings.Service
	Receipts *bir.Service
	Privacy  *dpa.Service
	Fleet    *ltfrb.Service
	Alerts   *widgets.Alerts
	Sweep    *ComplianceSweep

	log      *zap.Logger
	validate *validator.Validate
	now      func() time.Time

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler wires every service over the given store.
func NewHandler(store Store, pub events.Publisher, opts Options, log *zap.Logger) *Handler {
	paymentsSvc := payments.NewService(store, pub, store, log)
	h := &Handler{
		Store:    store,
		Payments: paymentsSvc,
		Billing:  billing.NewService(store, opts.TakeRate),
		Earnings: earnings.NewService(store, opts.Rates, pub, store, log),
		Receipts: bir.NewService(store, store, opts.BIR, pub, store, log),
		Privacy:  dpa.NewService(store, store, opts.ResponseDays, pub, store, log),
		Fleet:    ltfrb.NewService(store, opts.LTFRB, store, log),
		Alerts:   widgets.NewAlerts(store, pub, log),
		log:      log.Named("api"),
		validate: newValidator(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	h.Sweep = NewComplianceSweep(h)
	return h
}

// actor is the console user behind the request, set by the auth middleware.
func actor(r *http.Request) string {
	if c := claimsFrom(r.Context()); c != nil && c.Subject != "" {
		return c.Subject
	}
	return "console"
}

// =============================================================================
// HEALTH, AUDIT, ADMIN
// =============================================================================

// Health handles GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.Store.Ping(ctx); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeData(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   formatInstant(h.now()),
	}, "")
}

// ListAudit handles GET /api/audit?actor=&subject=&action=&limit=
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	q := r.URL.Query()
	entries, err := h.Store.QueryAudit(r.Context(), core.AuditFilter{
		Actor:   q.Get("actor"),
		Subject: q.Get("subject"),
		Action:  core.AuditAction(q.Get("action")),
		Limit:   limit,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:      e.ID,
			Actor:   e.Actor,
			Action:  string(e.Action),
			Subject: e.Subject,
			Detail:  e.Detail,
			At:      formatInstant(e.At),
		}
	}
	writeData(w, http.StatusOK, dtos, "")
}

// RunSweep handles POST /api/admin/sweep
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	res := h.Sweep.RunNow(r.Context())
	writeData(w, http.StatusOK, SweepResultDTO{
		RanAt:   formatInstant(res.RanAt),
		Checked: res.Checked,
		Raised:  res.Raised,
	}, "compliance sweep completed")
}

// ResetDatabase handles POST /api/admin/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.currentScenario = ""
	h.log.Info("database reset", zap.String("actor", actor(r)))
	writeData(w, http.StatusOK, nil, "database reset")
}
