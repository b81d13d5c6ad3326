package api

import "net/http"

// GetKPIs handles GET /api/billing/kpis?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) GetKPIs(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodFrom(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	k, err := h.Billing.KPIs(r.Context(), period)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toKPIsDTO(*k), "")
}

// CompareKPIs handles GET /api/billing/kpis/compare
// Changes are percentages against the previous period of equal length,
// null when the previous value was zero.
func (h *Handler) CompareKPIs(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodFrom(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	c, err := h.Billing.Compare(r.Context(), period)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ComparisonDTO{
		Current:     toKPIsDTO(c.Current),
		Previous:    toKPIsDTO(c.Previous),
		GrossChange: c.GrossChange,
		NetChange:   c.NetChange,
		CountChange: c.CountChange,
	}, "")
}
