/*
service_test.go - Driver earnings against an in-memory SQLite store

Tests for:
- Recording earnings (validation, negative adjustments)
- Breakdown (deductions, type totals, unpaid)
- Payouts (sweep, double payout guard, status flow)
- Top earners ranking
*/
package earnings_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/earnings"
	"github.com/warp/ops-console/store/sqlite"
)

func newService(t *testing.T) (*earnings.Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return earnings.NewService(store, earnings.DefaultRates, nil, store, zap.NewNop()), store
}

func lastWeek() core.Period {
	today := core.Day(time.Now())
	return core.Period{Start: today.AddDate(0, 0, -6), End: today}
}

func credit(t *testing.T, svc *earnings.Service, driverID, rideID string, typ earnings.Type, amount float64, daysAgo int) *earnings.Earning {
	t.Helper()
	e, err := svc.Record(context.Background(), earnings.Earning{
		DriverID: driverID,
		RideID:   rideID,
		Type:     typ,
		Amount:   core.PHP(amount),
		EarnedAt: core.Day(time.Now()).AddDate(0, 0, -daysAgo).Add(10 * time.Hour),
	})
	require.NoError(t, err)
	return e
}

func TestRecord_Validation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, earnings.Earning{Amount: core.PHP(10)})
	var fe *core.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, []string{"driver_id", "type"}, fe.Fields)

	_, err = svc.Record(ctx, earnings.Earning{DriverID: "drv-1", Type: "salary", Amount: core.PHP(10)})
	assert.True(t, core.IsClientError(err))

	_, err = svc.Record(ctx, earnings.Earning{DriverID: "drv-1", Type: earnings.TypeTip, Amount: core.PHP(0)})
	assert.True(t, core.IsClientError(err))

	_, err = svc.Record(ctx, earnings.Earning{DriverID: "drv-1", Type: earnings.TypeTip, Amount: core.PHP(-5)})
	assert.True(t, core.IsClientError(err), "only adjustments may be negative")

	_, err = svc.Record(ctx, earnings.Earning{DriverID: "drv-1", Type: earnings.TypeTip, Amount: core.PHP(20.005)})
	assert.True(t, core.IsClientError(err), "fractions of a centavo")

	e, err := svc.Record(ctx, earnings.Earning{DriverID: "drv-1", Type: earnings.TypeAdjustment, Amount: core.PHP(-5)})
	require.NoError(t, err)
	assert.Contains(t, e.ID, "ern-")
	assert.False(t, e.EarnedAt.IsZero())
}

func TestBreakdown_Deductions(t *testing.T) {
	// GIVEN: two fares and a tip
	svc, _ := newService(t)
	credit(t, svc, "drv-1", "ride-1", earnings.TypeRideFare, 600, 2)
	credit(t, svc, "drv-1", "ride-2", earnings.TypeRideFare, 400, 1)
	credit(t, svc, "drv-1", "ride-2", earnings.TypeTip, 100, 1)
	credit(t, svc, "drv-2", "ride-3", earnings.TypeRideFare, 999, 1)

	// WHEN
	b, err := svc.Breakdown(context.Background(), "drv-1", lastWeek())
	require.NoError(t, err)

	// THEN: commission only on fares, withholding on what is left
	assert.True(t, b.Gross.Equal(core.PHP(1100)))
	assert.True(t, b.Commission.Equal(core.PHP(200)))
	assert.True(t, b.Withholding.Equal(core.PHP(9)))
	assert.True(t, b.Net.Equal(core.PHP(891)), b.Net.String())
	assert.True(t, b.Unpaid.Equal(core.PHP(891)), b.Unpaid.String())
	assert.Equal(t, 2, b.TripCount)

	require.Len(t, b.ByType, 2)
	assert.Equal(t, earnings.TypeRideFare, b.ByType[0].Type)
	assert.Equal(t, 2, b.ByType[0].Count)
	assert.Equal(t, earnings.TypeTip, b.ByType[1].Type)

	require.Len(t, b.Daily, 7)
	assert.True(t, b.Daily[4].Gross.Equal(core.PHP(600)))
	assert.True(t, b.Daily[5].Gross.Equal(core.PHP(500)))
}

func TestBreakdown_RequiresDriver(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Breakdown(context.Background(), "", lastWeek())
	assert.True(t, core.IsClientError(err))
}

func TestBreakdown_RejectsUnboundedPeriod(t *testing.T) {
	svc, _ := newService(t)
	wide := core.Period{Start: time.Date(1000, 1, 1, 0, 0, 0, 0, time.UTC), End: core.Day(time.Now())}

	_, err := svc.Breakdown(context.Background(), "drv-001", wide)
	assert.ErrorIs(t, err, core.ErrInvalidPeriod)

	_, err = svc.TopEarners(context.Background(), wide, 5)
	assert.ErrorIs(t, err, core.ErrInvalidPeriod)
}

func TestNewService_ZeroRatesUseDefaults(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()
	svc := earnings.NewService(store, earnings.Rates{}, nil, nil, zap.NewNop())

	credit(t, svc, "drv-1", "ride-1", earnings.TypeRideFare, 100, 0)
	b, err := svc.Breakdown(context.Background(), "drv-1", lastWeek())
	require.NoError(t, err)
	assert.True(t, b.Commission.Equal(core.PHP(20)))
}

func TestCreatePayout_SweepsUnpaidEarnings(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	credit(t, svc, "drv-1", "ride-1", earnings.TypeRideFare, 500, 3)
	credit(t, svc, "drv-1", "ride-1", earnings.TypeBonus, 100, 3)

	p, err := svc.CreatePayout(ctx, "drv-1", earnings.PayoutGCash, lastWeek(), "finance-marco")
	require.NoError(t, err)

	assert.Equal(t, earnings.PayoutPending, p.Status)
	assert.Equal(t, 2, p.EarningCount)
	assert.True(t, p.Gross.Equal(core.PHP(600)))
	assert.True(t, p.Commission.Equal(core.PHP(100)))
	assert.True(t, p.Withholding.Equal(core.PHP(5)))
	assert.True(t, p.Net.Equal(core.PHP(495)))

	// a second sweep finds nothing to pay
	_, err = svc.CreatePayout(ctx, "drv-1", earnings.PayoutGCash, lastWeek(), "finance-marco")
	assert.True(t, core.IsClientError(err))

	b, err := svc.Breakdown(ctx, "drv-1", lastWeek())
	require.NoError(t, err)
	assert.True(t, b.Unpaid.IsZero())

	entries, err := store.QueryAudit(ctx, core.AuditFilter{Subject: p.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, core.AuditPayoutCreated, entries[0].Action)
}

func TestCreatePayout_Validation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CreatePayout(ctx, "", "", lastWeek(), "finance")
	var fe *core.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, []string{"driver_id", "method"}, fe.Fields)

	_, err = svc.CreatePayout(ctx, "drv-1", "cheque", lastWeek(), "finance")
	assert.True(t, core.IsClientError(err))

	credit(t, svc, "drv-1", "", earnings.TypeAdjustment, -50, 1)
	_, err = svc.CreatePayout(ctx, "drv-1", earnings.PayoutMaya, lastWeek(), "finance")
	assert.ErrorContains(t, err, "not positive")
}

func TestMarkPayout_StatusFlow(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	credit(t, svc, "drv-1", "ride-1", earnings.TypeRideFare, 300, 1)
	p, err := svc.CreatePayout(ctx, "drv-1", earnings.PayoutBankTransfer, lastWeek(), "finance")
	require.NoError(t, err)

	_, err = svc.MarkPayout(ctx, p.ID, earnings.PayoutCompleted, "finance")
	assert.True(t, core.IsConflict(err), "pending cannot jump to completed")

	got, err := svc.MarkPayout(ctx, p.ID, earnings.PayoutProcessing, "finance")
	require.NoError(t, err)
	assert.Equal(t, earnings.PayoutProcessing, got.Status)

	got, err = svc.MarkPayout(ctx, p.ID, earnings.PayoutCompleted, "finance")
	require.NoError(t, err)
	assert.Equal(t, earnings.PayoutCompleted, got.Status)

	_, err = svc.MarkPayout(ctx, p.ID, earnings.PayoutFailed, "finance")
	assert.True(t, core.IsConflict(err), "completed is final")

	list, err := svc.ListPayouts(ctx, "drv-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, earnings.PayoutCompleted, list[0].Status)

	_, err = svc.MarkPayout(ctx, "pay-missing", earnings.PayoutFailed, "finance")
	assert.True(t, core.IsNotFound(err))
}

func TestMarkPayout_ConcurrentMarksLeaveOneWinner(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	credit(t, svc, "drv-1", "ride-1", earnings.TypeRideFare, 300, 1)
	p, err := svc.CreatePayout(ctx, "drv-1", earnings.PayoutGCash, lastWeek(), "finance")
	require.NoError(t, err)

	// GIVEN: two operators both pick up the same pending payout
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.MarkPayout(ctx, p.ID, earnings.PayoutProcessing, "finance")
		}(i)
	}
	wg.Wait()

	// THEN: exactly one write lands and the other sees a conflict
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, core.IsConflict(err), err.Error())
	}
	assert.Equal(t, 1, succeeded)

	list, err := svc.ListPayouts(ctx, "drv-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, earnings.PayoutProcessing, list[0].Status)
}

func TestPayoutStatus_CanMoveTo(t *testing.T) {
	assert.True(t, earnings.PayoutPending.CanMoveTo(earnings.PayoutFailed))
	assert.True(t, earnings.PayoutProcessing.CanMoveTo(earnings.PayoutFailed))
	assert.False(t, earnings.PayoutFailed.CanMoveTo(earnings.PayoutPending))
	assert.False(t, earnings.PayoutPending.CanMoveTo(earnings.PayoutPending))
}

func TestTopEarners(t *testing.T) {
	svc, _ := newService(t)
	credit(t, svc, "drv-a", "ride-1", earnings.TypeRideFare, 300, 1)
	credit(t, svc, "drv-b", "ride-2", earnings.TypeRideFare, 500, 1)
	credit(t, svc, "drv-b", "ride-3", earnings.TypeRideFare, 100, 2)
	credit(t, svc, "drv-c", "ride-4", earnings.TypeRideFare, 300, 1)
	credit(t, svc, "drv-d", "ride-5", earnings.TypeRideFare, 900, 30) // outside the week

	top, err := svc.TopEarners(context.Background(), lastWeek(), 2)
	require.NoError(t, err)

	require.Len(t, top, 2)
	assert.Equal(t, "drv-b", top[0].DriverID)
	assert.Equal(t, 2, top[0].TripCount)
	assert.True(t, top[0].Gross.Equal(core.PHP(600)))
	// drv-a and drv-c tie; ids break the tie
	assert.Equal(t, "drv-a", top[1].DriverID)
}

func TestType_Commissionable(t *testing.T) {
	for _, typ := range earnings.Types {
		want := typ == earnings.TypeRideFare || typ == earnings.TypeSurge || typ == earnings.TypeCancellationFee
		assert.Equal(t, want, typ.Commissionable(), string(typ))
	}
	assert.Equal(t, "0.2", earnings.DefaultRates.Commission.String())
	assert.True(t, earnings.DefaultRates.Withholding.Equal(decimal.RequireFromString("0.01")))
}
