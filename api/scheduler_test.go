package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_Endpoint(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.loadScenario("compliance-audit")

	// the load already swept, so a manual run finds nothing new
	rec, env := s.do(http.MethodPost, "/api/admin/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "compliance sweep completed", env.Message)
	res := decodeData[SweepResultDTO](t, env)
	assert.Zero(t, res.Raised)
	assert.Positive(t, res.Checked)
	assert.NotEmpty(t, res.RanAt)
}

func TestSweep_RaisesOncePerCondition(t *testing.T) {
	// GIVEN: the audit data with its banners raised
	s := newTestServer(t, RouterOptions{})
	s.loadScenario("compliance-audit")
	alerts := getList[AlertDTO](s, "/api/ui/alerts")
	require.NotEmpty(t, alerts)

	// WHEN: one banner is dismissed and the sweep runs again
	rec, _ := s.do(http.MethodPost, "/api/ui/alerts/"+alerts[0].ID+"/dismiss", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := s.h.Sweep.RunNow(context.Background())

	// THEN: nothing is raised twice and the dismissed one stays hidden
	assert.Zero(t, res.Raised)
	assert.Len(t, getList[AlertDTO](s, "/api/ui/alerts"), len(alerts)-1)
}

func TestSweep_DedupeKeys(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.loadScenario("compliance-audit")

	alerts, err := s.h.Store.ListActiveAlerts(context.Background())
	require.NoError(t, err)

	sources := map[string]int{}
	for _, a := range alerts {
		sources[a.Source]++
		switch a.Source {
		case "ltfrb":
			assert.Regexp(t, `^ltfrb:(vehicle|driver):[a-z]+-\d+:[a-z_]+$`, a.DedupeKey)
		case "dpa":
			assert.Regexp(t, `^dpa:overdue:dsr-`, a.DedupeKey)
			assert.Equal(t, "critical", string(a.Severity))
		case "payments":
			assert.Regexp(t, `^payments:reconciliation:rec-`, a.DedupeKey)
			assert.Equal(t, "warning", string(a.Severity))
		}
	}
	assert.Equal(t, map[string]int{"ltfrb": 10, "dpa": 2, "payments": 1}, sources)
}

func TestSweep_StartStop(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		sweep := setupTestHandler(t).Sweep
		sweep.Enabled = false

		sweep.Start()
		sweep.Stop()
	})

	t.Run("zero interval", func(t *testing.T) {
		sweep := setupTestHandler(t).Sweep
		sweep.CheckInterval = 0

		sweep.Start()
		sweep.Stop()
	})

	t.Run("running", func(t *testing.T) {
		sweep := setupTestHandler(t).Sweep
		sweep.CheckInterval = time.Hour

		sweep.Start()
		sweep.Start() // second start is a no-op

		done := make(chan struct{})
		go func() {
			sweep.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Stop did not return")
		}
		sweep.Stop()
	})
}
