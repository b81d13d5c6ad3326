package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/earnings"
)

// RecordEarning handles POST /api/earnings
func (h *Handler) RecordEarning(w http.ResponseWriter, r *http.Request) {
	var req RecordEarningRequest
	if err := h.decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	earnedAt, err := parseInstant("earned_at", req.EarnedAt, h.now())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	e, err := h.Earnings.Record(r.Context(), earnings.Earning{
		ID:          req.ID,
		DriverID:    req.DriverID,
		RideID:      req.RideID,
		Type:        earnings.Type(req.Type),
		Amount:      core.PHP(req.Amount),
		Description: req.Description,
		EarnedAt:    earnedAt,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toEarningDTO(*e), "earning recorded")
}

// TopEarners handles GET /api/earnings/top?from&to&limit
func (h *Handler) TopEarners(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodFrom(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	totals, err := h.Earnings.TopEarners(r.Context(), period, limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	dtos := make([]DriverTotalDTO, len(totals))
	for i, t := range totals {
		dtos[i] = DriverTotalDTO{
			DriverID:  t.DriverID,
			Gross:     t.Gross.Float64(),
			Net:       t.Net.Float64(),
			TripCount: t.TripCount,
		}
	}
	writeData(w, http.StatusOK, dtos, "")
}

// GetDriverBreakdown handles GET /api/earnings/drivers/{id}?from&to
func (h *Handler) GetDriverBreakdown(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodFrom(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	b, err := h.Earnings.Breakdown(r.Context(), chi.URLParam(r, "id"), period)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toBreakdownDTO(*b), "")
}

// =============================================================================
// PAYOUTS
// =============================================================================

// ListPayouts handles GET /api/earnings/drivers/{id}/payouts
func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	payouts, err := h.Earnings.ListPayouts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	dtos := make([]PayoutDTO, len(payouts))
	for i, p := range payouts {
		dtos[i] = toPayoutDTO(p)
	}
	writeData(w, http.StatusOK, dtos, "")
}

// CreatePayout handles POST /api/earnings/drivers/{id}/payouts
// Sweeps the driver's unpaid earnings between from and to into one payout.
func (h *Handler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	var req CreatePayoutRequest
	if err := h.decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	period, err := core.ParsePeriod(req.From, req.To, h.now())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	p, err := h.Earnings.CreatePayout(r.Context(), chi.URLParam(r, "id"),
		earnings.PayoutMethod(req.Method), period, actor(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toPayoutDTO(*p), "payout created")
}

// UpdatePayoutStatus handles POST /api/earnings/payouts/{id}/status
func (h *Handler) UpdatePayoutStatus(w http.ResponseWriter, r *http.Request) {
	var req PayoutStatusRequest
	if err := h.decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	p, err := h.Earnings.MarkPayout(r.Context(), chi.URLParam(r, "id"),
		earnings.PayoutStatus(req.Status), actor(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toPayoutDTO(*p), "payout "+string(p.Status))
}
