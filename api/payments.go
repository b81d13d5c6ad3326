package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/ops-console/compliance/bir"
	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/payments"
)

// =============================================================================
// TRANSACTIONS
// =============================================================================

// ListTransactions handles GET /api/payments/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	period, err := h.optionalPeriod(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	q := r.URL.Query()
	txs, err := h.Payments.ListTransactions(r.Context(), payments.TransactionFilter{
		Status:   payments.Status(q.Get("status")),
		Method:   payments.Method(q.Get("method")),
		Provider: q.Get("provider"),
		DriverID: q.Get("driver_id"),
		RiderID:  q.Get("rider_id"),
		Period:   period,
		Limit:    limit,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toTransactionDTOs(txs), "")
}

// RecordTransaction handles POST /api/payments/transactions
func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req RecordTransactionRequest
	if err := h.decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	createdAt, err := parseInstant("created_at", req.CreatedAt, h.now())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	tx, err := h.Payments.RecordTransaction(r.Context(), payments.Transaction{
		ID:          req.ID,
		RideID:      req.RideID,
		RiderID:     req.RiderID,
		DriverID:    req.DriverID,
		Method:      payments.Method(req.Method),
		Status:      payments.Status(req.Status),
		Amount:      core.NewMoney(req.Amount, req.Currency),
		Provider:    req.Provider,
		ProviderRef: req.ProviderRef,
		CreatedAt:   createdAt,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toTransactionDTO(*tx), "transaction recorded")
}

// GetTransaction handles GET /api/payments/transactions/{id}
// The response includes the transaction's refunds and receipts.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	tx, err := h.Payments.GetTransaction(ctx, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	refunds, err := h.Payments.ListRefunds(ctx, payments.RefundFilter{TransactionID: id})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	receipts, err := h.Receipts.ListReceipts(ctx, bir.ReceiptFilter{TransactionID: id})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	dto := toTransactionDTO(*tx)
	dto.Refunds = toRefundDTOs(refunds)
	for _, rc := range receipts {
		dto.Receipts = append(dto.Receipts, toReceiptDTO(rc))
	}
	writeData(w, http.StatusOK, dto, "")
}

// =============================================================================
// REFUNDS
// =============================================================================

// ListRefunds handles GET /api/payments/refunds
func (h *Handler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	period, err := h.optionalPeriod(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	q := r.URL.Query()
	refunds, err := h.Payments.ListRefunds(r.Context(), payments.RefundFilter{
		TransactionID: q.Get("transaction_id"),
		Status:        payments.RefundStatus(q.Get("status")),
		Period:        period,
		Limit:         limit,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toRefundDTOs(refunds), "")
}

// RequestRefund handles POST /api/payments/refunds
func (h *Handler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	var req RequestRefundRequest
	if err := h.decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	refund, err := h.Payments.RequestRefund(r.Context(), req.TransactionID,
		core.PHP(req.Amount), req.Reason, actor(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toRefundDTO(*refund), "refund requested")
}

// ApproveRefund handles POST /api/payments/refunds/{id}/approve
func (h *Handler) ApproveRefund(w http.ResponseWriter, r *http.Request) {
	h.decideRefund(w, r, true)
}

// RejectRefund handles POST /api/payments/refunds/{id}/reject
func (h *Handler) RejectRefund(w http.ResponseWriter, r *http.Request) {
	h.decideRefund(w, r, false)
}

func (h *Handler) decideRefund(w http.ResponseWriter, r *http.Request, approve bool) {
	var req DecideRefundRequest
	if r.ContentLength != 0 {
		if err := h.decode(r, &req); err != nil {
			h.handleError(w, r, err)
			return
		}
	}

	var (
		refund *payments.Refund
		err    error
	)
	id := chi.URLParam(r, "id")
	if approve {
		refund, err = h.Payments.ApproveRefund(r.Context(), id, actor(r), req.Note)
	} else {
		refund, err = h.Payments.RejectRefund(r.Context(), id, actor(r), req.Note)
	}
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toRefundDTO(*refund), "refund "+string(refund.Status))
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// ListReconciliations handles GET /api/payments/reconciliations?provider=&limit=
func (h *Handler) ListReconciliations(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	runs, err := h.Payments.ListReconciliationRuns(r.Context(), r.URL.Query().Get("provider"), limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	dtos := make([]ReconciliationRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeData(w, http.StatusOK, dtos, "")
}

// Reconcile handles POST /api/payments/reconciliations
// Matches a provider settlement report against captured transactions.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := h.decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	period, err := core.ParsePeriod(req.From, req.To, h.now())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	lines := make([]payments.SettlementLine, len(req.Lines))
	for i, l := range req.Lines {
		settledAt, err := parseInstant("settled_at", l.SettledAt, h.now())
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		lines[i] = payments.SettlementLine{
			ProviderRef: l.ProviderRef,
			Amount:      core.PHP(l.Amount),
			SettledAt:   settledAt,
		}
	}

	run, err := h.Payments.Reconcile(r.Context(), req.Provider, period, lines, actor(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	message := "reconciliation clean"
	if !run.Clean() {
		message = "reconciliation found discrepancies"
	}
	writeData(w, http.StatusCreated, toRunDTO(*run), message)
}

// GetReconciliation handles GET /api/payments/reconciliations/{id}
func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	run, err := h.Payments.GetReconciliationRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toRunDTO(*run), "")
}
