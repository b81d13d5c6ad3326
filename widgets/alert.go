package widgets

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/events"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	return s == SeverityInfo || s == SeverityWarning || s == SeverityCritical
}

// Alert is a dashboard banner.
type Alert struct {
	ID          string
	DedupeKey   string // same condition, same banner
	Severity    Severity
	Title       string
	Message     string
	Source      string // "ltfrb", "dpa", "payments", "manual"
	Link        string // console route the banner points to
	CreatedAt   time.Time
	DismissedAt *time.Time
}

// Rank orders severities, most severe first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	}
	return 2
}

// AlertStore persists banners.
type AlertStore interface {
	// UpsertAlert inserts the alert unless one with the same dedupe key exists,
	// in which case it refreshes title, message and severity of the existing one.
	// It reports whether a new alert was created.
	UpsertAlert(ctx context.Context, a Alert) (bool, error)
	GetAlert(ctx context.Context, id string) (*Alert, error)
	ListActiveAlerts(ctx context.Context) ([]Alert, error)
	DismissAlert(ctx context.Context, id string, at time.Time) error
}

// Alerts manages banners.
type Alerts struct {
	store  AlertStore
	events events.Publisher
	log    *zap.Logger
	now    func() time.Time
}

func NewAlerts(store AlertStore, pub events.Publisher, log *zap.Logger) *Alerts {
	return &Alerts{
		store:  store,
		events: pub,
		log:    log.Named("alerts"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Raise shows a banner unless the same condition is already shown or was dismissed.
func (a *Alerts) Raise(ctx context.Context, alert Alert) (bool, error) {
	var missing []string
	if alert.Title == "" {
		missing = append(missing, "title")
	}
	if alert.Severity == "" {
		missing = append(missing, "severity")
	}
	if len(missing) > 0 {
		return false, core.Missing(missing...)
	}
	if !alert.Severity.Valid() {
		return false, core.Invalid("unknown severity %q", alert.Severity)
	}
	if alert.ID == "" {
		alert.ID = core.NewID("alr")
	}
	if alert.DedupeKey == "" {
		alert.DedupeKey = alert.ID
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = a.now()
	}

	created, err := a.store.UpsertAlert(ctx, alert)
	if err != nil {
		return false, err
	}
	if created {
		events.Emit(ctx, a.events, a.log, events.New(events.AlertRaised, alert.ID, map[string]any{
			"severity": string(alert.Severity),
			"title":    alert.Title,
			"source":   alert.Source,
		}))
	}
	return created, nil
}

// Active returns banners that have not been dismissed, most severe first.
func (a *Alerts) Active(ctx context.Context) ([]Alert, error) {
	return a.store.ListActiveAlerts(ctx)
}

// Dismiss hides a banner.
func (a *Alerts) Dismiss(ctx context.Context, id string) (*Alert, error) {
	alert, err := a.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, core.NotFound("alert", id)
	}
	if alert.DismissedAt != nil {
		return nil, &core.InvalidTransitionError{Kind: "alert", ID: id, From: "dismissed", To: "dismissed"}
	}
	now := a.now()
	if err := a.store.DismissAlert(ctx, id, now); err != nil {
		return nil, err
	}
	alert.DismissedAt = &now
	return alert, nil
}
