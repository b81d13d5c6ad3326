/*
scheduler.go - Automated compliance sweep

PURPOSE:
  Periodically looks for conditions the console should shout about and
  raises dashboard banners for them.

CONDITIONS:
  - Vehicle franchise or insurance expired / expiring, vehicle suspended or too old
  - Driver license expired / expiring, non-professional license
  - DPA requests past their response deadline
  - Recent reconciliation runs with discrepancies

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Every condition has a stable dedupe key, so repeated sweeps refresh
    the same banner instead of stacking new ones, and a dismissed banner
    stays dismissed

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  sweep := handler.Sweep
  sweep.CheckInterval = cfg.SweepInterval
  sweep.Start()
  // ... later
  sweep.Stop()

SEE ALSO:
  - handlers.go: RunSweep endpoint (manual trigger)
  - widgets/alert.go: Banner storage and dedupe
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/ops-console/compliance/ltfrb"
	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/widgets"
)

// reconciliationLookback is how many recent runs per sweep are checked for discrepancies.
const reconciliationLookback = 20

// SweepResult summarizes one sweep.
type SweepResult struct {
	RanAt   time.Time
	Checked int // records examined
	Raised  int // new banners
}

// ComplianceSweep raises alert banners for compliance problems.
type ComplianceSweep struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	runMu  sync.Mutex // one sweep at a time, ticker or manual
	log    *zap.Logger
}

// NewComplianceSweep creates a new sweep over the handler's services.
func NewComplianceSweep(h *Handler) *ComplianceSweep {
	return &ComplianceSweep{
		Handler:       h,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
		log:           h.log.Named("sweep"),
	}
}

// Start begins the scheduler.
func (cs *ComplianceSweep) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.Enabled || cs.CheckInterval <= 0 {
		cs.log.Info("compliance sweep disabled")
		return
	}
	if cs.ticker != nil {
		return
	}

	cs.ticker = time.NewTicker(cs.CheckInterval)
	cs.wg.Add(1)

	go cs.run()

	cs.log.Info("compliance sweep started", zap.Duration("interval", cs.CheckInterval))
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (cs *ComplianceSweep) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker != nil {
		cs.ticker.Stop()
		close(cs.stop)
		cs.wg.Wait()
		cs.ticker = nil
		cs.stop = make(chan struct{})
		cs.log.Info("compliance sweep stopped")
	}
}

func (cs *ComplianceSweep) run() {
	defer cs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-cs.stop
		cancel()
	}()

	// Run immediately on start
	cs.RunNow(ctx)

	for {
		select {
		case <-cs.ticker.C:
			cs.RunNow(ctx)
		case <-cs.stop:
			return
		}
	}
}

// RunNow performs one sweep. A failing check is logged and the others still run.
func (cs *ComplianceSweep) RunNow(ctx context.Context) SweepResult {
	cs.runMu.Lock()
	defer cs.runMu.Unlock()

	h := cs.Handler
	res := SweepResult{RanAt: h.now()}
	failed := false

	for _, check := range []struct {
		name string
		fn   func(context.Context, time.Time) ([]widgets.Alert, int, error)
	}{
		{"fleet", cs.fleetAlerts},
		{"dpa", cs.dsrAlerts},
		{"reconciliation", cs.reconciliationAlerts},
	} {
		alerts, checked, err := check.fn(ctx, res.RanAt)
		if err != nil {
			failed = true
			cs.log.Error("sweep check failed", zap.String("check", check.name), zap.Error(err))
			continue
		}
		res.Checked += checked
		for _, a := range alerts {
			created, err := h.Alerts.Raise(ctx, a)
			if err != nil {
				failed = true
				cs.log.Error("failed to raise alert", zap.String("dedupe_key", a.DedupeKey), zap.Error(err))
				continue
			}
			if created {
				res.Raised++
			}
		}
	}

	outcome := "ok"
	if failed {
		outcome = "error"
	}
	sweepRuns.WithLabelValues(outcome).Inc()
	h.refreshAlertGauge(ctx)

	cs.log.Info("compliance sweep completed",
		zap.Int("checked", res.Checked),
		zap.Int("raised", res.Raised))
	return res
}

// =============================================================================
// CHECKS
// =============================================================================

func (cs *ComplianceSweep) fleetAlerts(ctx context.Context, now time.Time) ([]widgets.Alert, int, error) {
	rep, err := cs.Handler.Fleet.Report(ctx, now)
	if err != nil {
		return nil, 0, err
	}

	var alerts []widgets.Alert
	for _, group := range [][]ltfrb.Result{rep.NonCompliantVehicles, rep.NonCompliantDrivers, rep.ExpiringSoon} {
		for _, r := range group {
			for _, f := range r.Findings {
				alerts = append(alerts, widgets.Alert{
					DedupeKey: fmt.Sprintf("ltfrb:%s:%s:%s", r.Kind, r.SubjectID, f.Code),
					Severity:  alertSeverity(f.Severity),
					Title:     fmt.Sprintf("%s %s: %s", r.Kind, r.SubjectID, widgets.Label(f.Code)),
					Message:   f.Message,
					Source:    "ltfrb",
					Link:      fmt.Sprintf("/compliance/ltfrb/%ss/%s", r.Kind, r.SubjectID),
				})
			}
		}
	}
	return alerts, rep.Vehicles + rep.Drivers, nil
}

func (cs *ComplianceSweep) dsrAlerts(ctx context.Context, now time.Time) ([]widgets.Alert, int, error) {
	overdue, err := cs.Handler.Privacy.Overdue(ctx)
	if err != nil {
		return nil, 0, err
	}

	alerts := make([]widgets.Alert, 0, len(overdue))
	for _, r := range overdue {
		alerts = append(alerts, widgets.Alert{
			DedupeKey: "dpa:overdue:" + r.ID,
			Severity:  widgets.SeverityCritical,
			Title:     fmt.Sprintf("Data subject request %s is overdue", r.ID),
			Message: fmt.Sprintf("%s request from %s %s was due %s (%d days ago)",
				r.Type, r.SubjectType, r.SubjectID, core.FormatDate(r.DueAt), -r.DaysLeft(now)),
			Source: "dpa",
			Link:   "/compliance/dpa/requests/" + r.ID,
		})
	}
	return alerts, len(overdue), nil
}

func (cs *ComplianceSweep) reconciliationAlerts(ctx context.Context, _ time.Time) ([]widgets.Alert, int, error) {
	runs, err := cs.Handler.Payments.ListReconciliationRuns(ctx, "", reconciliationLookback)
	if err != nil {
		return nil, 0, err
	}

	var alerts []widgets.Alert
	for _, run := range runs {
		if run.Clean() {
			continue
		}
		alerts = append(alerts, widgets.Alert{
			DedupeKey: "payments:reconciliation:" + run.ID,
			Severity:  widgets.SeverityWarning,
			Title:     fmt.Sprintf("%s settlement %s has discrepancies", run.Provider, run.Period),
			Message: fmt.Sprintf("%d missing internally, %d missing at provider, %d amount mismatches",
				run.MissingInternal, run.MissingProvider, run.Mismatched),
			Source: "payments",
			Link:   "/payments/reconciliations/" + run.ID,
		})
	}
	return alerts, len(runs), nil
}

func alertSeverity(s ltfrb.Severity) widgets.Severity {
	switch s {
	case ltfrb.SeverityCritical:
		return widgets.SeverityCritical
	case ltfrb.SeverityWarning:
		return widgets.SeverityWarning
	}
	return widgets.SeverityInfo
}
