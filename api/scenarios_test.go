/*
scenarios_test.go - Tests for the demo scenarios

Tests for:
- Listing and loading scenarios
- Console demo: billing KPIs and records across every module
- Compliance audit: alerts raised by the sweep after loading
- Reloading starts from an empty database
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *testServer) loadScenario(id string) {
	s.t.Helper()
	rec, env := s.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(s.t, map[string]string{"status": "loaded", "scenario": id}, decodeData[map[string]string](s.t, env))
}

func getList[T any](s *testServer, path string) []T {
	s.t.Helper()
	rec, env := s.do(http.MethodGet, path, nil)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeData[[]T](s.t, env)
}

func TestListScenarios(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	list := getList[ScenarioDTO](s, "/api/scenarios/")

	require.Len(t, list, 2)
	assert.Equal(t, "console-demo", list[0].ID)
	assert.Equal(t, "compliance-audit", list[1].ID)
}

func TestLoadScenario_Errors(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	rec, env := s.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "rush-hour"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown scenario rush-hour", env.Error)

	rec, env = s.do(http.MethodPost, "/api/scenarios/load", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing required fields: scenario_id", env.Error)

	rec, env = s.do(http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no scenario loaded", env.Message)
	assert.Empty(t, env.Data)
}

func TestConsoleDemoScenario(t *testing.T) {
	// GIVEN
	s := newTestServer(t, RouterOptions{})

	// WHEN
	s.loadScenario("console-demo")

	// THEN: two weeks of rides show up in the KPIs
	from := s.h.daysAgo(13).Format("2006-01-02")
	to := s.h.now().Format("2006-01-02")
	rec, env := s.do(http.MethodGet, "/api/billing/kpis?from="+from+"&to="+to, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	kpis := decodeData[KPIsDTO](t, env)
	assert.Equal(t, 13, kpis.TransactionCount)
	assert.Equal(t, 1, kpis.FailedCount)
	assert.InDelta(t, 3533.50, kpis.GrossBookings, 0.001)
	assert.InDelta(t, 100.0, kpis.Refunds, 0.001)
	assert.Len(t, kpis.Daily, 14)

	assert.Len(t, getList[TransactionDTO](s, "/api/payments/transactions"), 14)
	assert.Len(t, getList[TransactionDTO](s, "/api/payments/transactions?status=failed"), 1)
	assert.Len(t, getList[RefundDTO](s, "/api/payments/refunds"), 3)
	assert.Len(t, getList[ReceiptDTO](s, "/api/compliance/bir/receipts"), 6)
	assert.Len(t, getList[ReceiptDTO](s, "/api/compliance/bir/receipts?status=void"), 1)
	assert.Len(t, getList[DSRDTO](s, "/api/compliance/dpa/requests"), 3)

	payouts := getList[PayoutDTO](s, "/api/earnings/drivers/drv-001/payouts")
	require.Len(t, payouts, 1)
	assert.Equal(t, "processing", payouts[0].Status)

	// a compliant fleet and a clean settlement leave no banners
	assert.Empty(t, getList[AlertDTO](s, "/api/ui/alerts"))

	rec, env = s.do(http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console-demo", decodeData[ScenarioDTO](t, env).ID)
}

func TestComplianceAuditScenario(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	s.loadScenario("compliance-audit")

	// the sweep after loading raised every banner
	alerts := getList[AlertDTO](s, "/api/ui/alerts")
	require.Len(t, alerts, 13)
	bySeverity := map[string]int{}
	for _, a := range alerts {
		bySeverity[a.Severity]++
	}
	assert.Equal(t, map[string]int{"critical": 8, "warning": 5}, bySeverity)
	assert.Equal(t, "critical", alerts[0].Severity, "most severe first")

	rec, env := s.do(http.MethodGet, "/api/compliance/ltfrb/report", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeData[ReportDTO](t, env)
	assert.Equal(t, 5, report.Vehicles)
	assert.Equal(t, 1, report.CompliantVehicles)
	assert.Len(t, report.NonCompliantVehicles, 4)
	assert.Equal(t, 4, report.Drivers)
	assert.Equal(t, 2, report.CompliantDrivers)
	assert.Len(t, report.NonCompliantDrivers, 2)
	assert.Len(t, report.ExpiringSoon, 2)

	assert.Len(t, getList[DSRDTO](s, "/api/compliance/dpa/requests?overdue=true"), 2)

	runs := getList[ReconciliationRunDTO](s, "/api/payments/reconciliations?provider=maya")
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Clean)
	assert.Equal(t, 1, runs[0].Mismatched)
	assert.Equal(t, 1, runs[0].MissingInternal)
}

func TestLoadScenario_ResetsFirst(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.recordTransaction("txn-mine", 99)

	s.loadScenario("compliance-audit")
	s.loadScenario("console-demo")

	rec, _ := s.do(http.MethodGet, "/api/payments/transactions/txn-mine", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, getList[AlertDTO](s, "/api/ui/alerts"), "audit banners are gone")
	assert.Len(t, getList[TransactionDTO](s, "/api/payments/transactions"), 14)
}
