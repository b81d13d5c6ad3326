package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/ops-console/widgets"
)

// ListAlerts handles GET /api/ui/alerts
// Returns active banners, most severe first.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	active, err := h.Alerts.Active(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	activeAlerts.Set(float64(len(active)))

	dtos := make([]AlertDTO, len(active))
	for i, a := range active {
		dtos[i] = toAlertDTO(a)
	}
	writeData(w, http.StatusOK, dtos, "")
}

// RaiseAlert handles POST /api/ui/alerts
// Staff-raised banners use source "manual".
func (h *Handler) RaiseAlert(w http.ResponseWriter, r *http.Request) {
	var req RaiseAlertRequest
	if err := h.decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	alert := widgets.Alert{
		DedupeKey: req.DedupeKey,
		Severity:  widgets.Severity(req.Severity),
		Title:     req.Title,
		Message:   req.Message,
		Source:    "manual",
		Link:      req.Link,
	}
	created, err := h.Alerts.Raise(r.Context(), alert)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.refreshAlertGauge(r.Context())

	status, message := http.StatusCreated, "alert raised"
	if !created {
		status, message = http.StatusOK, "alert already shown"
	}
	writeData(w, status, map[string]bool{"created": created}, message)
}

// DismissAlert handles POST /api/ui/alerts/{id}/dismiss
func (h *Handler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.Alerts.Dismiss(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.refreshAlertGauge(r.Context())
	writeData(w, http.StatusOK, toAlertDTO(*a), "alert dismissed")
}

// GetBadges handles GET /api/ui/badges
// With ?kind=&status= it returns one badge, otherwise the whole catalogue.
func (h *Handler) GetBadges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if status := q.Get("status"); status != "" {
		writeData(w, http.StatusOK, widgets.BadgeFor(widgets.Kind(q.Get("kind")), status), "")
		return
	}
	writeData(w, http.StatusOK, widgets.Catalogue(), "")
}

func (h *Handler) refreshAlertGauge(ctx context.Context) {
	active, err := h.Alerts.Active(ctx)
	if err != nil {
		h.log.Warn("failed to count active alerts", zap.Error(err))
		return
	}
	activeAlerts.Set(float64(len(active)))
}
