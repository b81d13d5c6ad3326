/*
service_test.go - Payments service against an in-memory SQLite store

Tests for:
- Recording transactions (defaults, validation)
- Refund lifecycle (request, approve, reject, over-refund guard)
- Reconciliation runs (stored, audited)
*/
package payments_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/events"
	"github.com/warp/ops-console/payments"
	"github.com/warp/ops-console/store/sqlite"
)

func newService(t *testing.T) (*payments.Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := zap.NewNop()
	return payments.NewService(store, events.NewLogPublisher(log), store, log), store
}

func recordCapture(t *testing.T, svc *payments.Service, amount float64) *payments.Transaction {
	t.Helper()
	tx, err := svc.RecordTransaction(context.Background(), payments.Transaction{
		RideID:      "ride-" + core.NewID("r"),
		RiderID:     "rdr-ana",
		DriverID:    "drv-001",
		Method:      payments.MethodGCash,
		Amount:      core.PHP(amount),
		ProviderRef: core.NewID("gcash"),
	})
	require.NoError(t, err)
	return tx
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestRecordTransaction_Defaults(t *testing.T) {
	svc, _ := newService(t)

	tx := recordCapture(t, svc, 245.50)

	assert.Contains(t, tx.ID, "txn-")
	assert.Equal(t, payments.StatusCaptured, tx.Status)
	assert.Equal(t, "gcash", tx.Provider)
	require.NotNil(t, tx.CapturedAt)
	assert.Equal(t, tx.CreatedAt, *tx.CapturedAt)

	got, err := svc.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(core.PHP(245.50)))
}

func TestRecordTransaction_CashHasNoProvider(t *testing.T) {
	svc, _ := newService(t)

	tx, err := svc.RecordTransaction(context.Background(), payments.Transaction{
		RideID: "ride-1", RiderID: "rdr-1", Method: payments.MethodCash, Amount: core.PHP(120),
	})
	require.NoError(t, err)
	assert.Empty(t, tx.Provider)
}

func TestRecordTransaction_Validation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.RecordTransaction(ctx, payments.Transaction{Amount: core.PHP(1)})
	var fe *core.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, []string{"ride_id", "rider_id", "method"}, fe.Fields)

	_, err = svc.RecordTransaction(ctx, payments.Transaction{RideID: "r", RiderID: "u", Method: "bitcoin", Amount: core.PHP(1)})
	assert.True(t, core.IsClientError(err))

	_, err = svc.RecordTransaction(ctx, payments.Transaction{RideID: "r", RiderID: "u", Method: payments.MethodCard, Amount: core.PHP(0)})
	assert.True(t, core.IsClientError(err))

	_, err = svc.RecordTransaction(ctx, payments.Transaction{RideID: "r", RiderID: "u", Method: payments.MethodCard, Amount: core.PHP(99.999)})
	assert.True(t, core.IsClientError(err), "fractions of a centavo")

	_, err = svc.RecordTransaction(ctx, payments.Transaction{RideID: "r", RiderID: "u", Method: payments.MethodCard, Amount: core.NewMoney(10, "USD")})
	assert.True(t, core.IsClientError(err), "pesos only")
}

func TestRecordTransaction_DuplicateIDConflicts(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	tx := payments.Transaction{ID: "txn-1", RideID: "r", RiderID: "u", Method: payments.MethodCard, Amount: core.PHP(10)}

	_, err := svc.RecordTransaction(ctx, tx)
	require.NoError(t, err)
	_, err = svc.RecordTransaction(ctx, tx)
	assert.True(t, core.IsConflict(err))
}

func TestGetTransaction_NotFound(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.GetTransaction(context.Background(), "txn-missing")
	assert.True(t, core.IsNotFound(err))
}

func TestListTransactions_Filters(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	old := time.Now().UTC().AddDate(0, 0, -40)

	recordCapture(t, svc, 100)
	_, err := svc.RecordTransaction(ctx, payments.Transaction{
		RideID: "ride-old", RiderID: "rdr-ben", Method: payments.MethodCard, Amount: core.PHP(50), CreatedAt: old,
	})
	require.NoError(t, err)

	all, err := svc.ListTransactions(ctx, payments.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	cards, err := svc.ListTransactions(ctx, payments.TransactionFilter{Method: payments.MethodCard})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "ride-old", cards[0].RideID)

	recent, err := core.ParsePeriod("", "", time.Now())
	require.NoError(t, err)
	inPeriod, err := svc.ListTransactions(ctx, payments.TransactionFilter{Period: &recent})
	require.NoError(t, err)
	require.Len(t, inPeriod, 1)
	assert.Equal(t, "rdr-ana", inPeriod[0].RiderID)
}

// =============================================================================
// REFUNDS
// =============================================================================

func TestRefund_PartialApprovalThenFull(t *testing.T) {
	// GIVEN: a captured PHP 300 ride
	svc, _ := newService(t)
	ctx := context.Background()
	tx := recordCapture(t, svc, 300)

	// WHEN: PHP 100 is refunded and approved
	r1, err := svc.RequestRefund(ctx, tx.ID, core.PHP(100), "Longer route", "support-lea")
	require.NoError(t, err)
	assert.Equal(t, payments.RefundPending, r1.Status)

	approved, err := svc.ApproveRefund(ctx, r1.ID, "finance-marco", "GPS confirms")
	require.NoError(t, err)

	// THEN: the transaction is partially refunded
	assert.Equal(t, payments.RefundApproved, approved.Status)
	assert.Equal(t, "finance-marco", approved.DecidedBy)
	require.NotNil(t, approved.DecidedAt)

	got, err := svc.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusPartiallyRefunded, got.Status)

	// WHEN: the rest is refunded
	r2, err := svc.RequestRefund(ctx, tx.ID, core.PHP(200), "Rider complaint", "support-lea")
	require.NoError(t, err)
	_, err = svc.ApproveRefund(ctx, r2.ID, "finance-marco", "")
	require.NoError(t, err)

	// THEN: fully refunded, and no further refund is possible
	got, err = svc.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusRefunded, got.Status)

	_, err = svc.RequestRefund(ctx, tx.ID, core.PHP(1), "again", "support-lea")
	assert.True(t, core.IsConflict(err))
}

func TestRefund_PendingCountsTowardsLimit(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	tx := recordCapture(t, svc, 200)

	_, err := svc.RequestRefund(ctx, tx.ID, core.PHP(150), "first", "support")
	require.NoError(t, err)

	_, err = svc.RequestRefund(ctx, tx.ID, core.PHP(60), "second", "support")
	var exceeds *payments.RefundExceedsError
	require.ErrorAs(t, err, &exceeds)
	assert.True(t, exceeds.Committed.Equal(core.PHP(150)))
	assert.True(t, core.IsConflict(err))
	assert.Equal(t, "refund of PHP 60.00 exceeds remaining PHP 50.00 on transaction "+tx.ID, err.Error())
}

func TestRefund_ConcurrentRequestsStayWithinCapture(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	tx := recordCapture(t, svc, 100)

	// GIVEN: four agents each asking for 80 back at the same moment
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.RequestRefund(ctx, tx.ID, core.PHP(80), "double charge", "support")
		}(i)
	}
	wg.Wait()

	// THEN: one is accepted, the rest exceed the capture
	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		var exceeds *payments.RefundExceedsError
		assert.ErrorAs(t, err, &exceeds)
	}
	assert.Equal(t, 1, accepted)

	refunds, err := svc.ListRefunds(ctx, payments.RefundFilter{TransactionID: tx.ID})
	require.NoError(t, err)
	assert.Len(t, refunds, 1)
}

func TestRefund_RejectedFreesTheAmount(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	tx := recordCapture(t, svc, 200)

	r, err := svc.RequestRefund(ctx, tx.ID, core.PHP(200), "duplicate charge", "support")
	require.NoError(t, err)

	_, err = svc.RejectRefund(ctx, r.ID, "finance", "")
	assert.True(t, core.IsClientError(err), "rejection needs a note")

	rejected, err := svc.RejectRefund(ctx, r.ID, "finance", "only charged once")
	require.NoError(t, err)
	assert.Equal(t, payments.RefundRejected, rejected.Status)

	got, err := svc.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusCaptured, got.Status)

	_, err = svc.RequestRefund(ctx, tx.ID, core.PHP(200), "re-filed", "support")
	assert.NoError(t, err)
}

func TestRefund_DecidedTwiceConflicts(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	tx := recordCapture(t, svc, 100)

	r, err := svc.RequestRefund(ctx, tx.ID, core.PHP(10), "x", "support")
	require.NoError(t, err)
	_, err = svc.ApproveRefund(ctx, r.ID, "finance", "")
	require.NoError(t, err)

	_, err = svc.RejectRefund(ctx, r.ID, "finance", "changed my mind")
	var te *core.InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "approved", te.From)
}

func TestRefund_Validation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.RequestRefund(ctx, "", core.PHP(10), "", "support")
	var fe *core.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, []string{"transaction_id", "reason"}, fe.Fields)

	_, err = svc.RequestRefund(ctx, "txn-missing", core.PHP(10), "x", "support")
	assert.True(t, core.IsNotFound(err))

	tx := recordCapture(t, svc, 100)
	_, err = svc.RequestRefund(ctx, tx.ID, core.PHP(0.001), "rounding", "support")
	assert.True(t, core.IsClientError(err), "fractions of a centavo")

	_, err = svc.ApproveRefund(ctx, "rfd-missing", "finance", "")
	assert.True(t, core.IsNotFound(err))
}

func TestRefund_FailedPaymentNotRefundable(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	tx, err := svc.RecordTransaction(ctx, payments.Transaction{
		RideID: "r", RiderID: "u", Method: payments.MethodCard, Amount: core.PHP(100), Status: payments.StatusFailed,
	})
	require.NoError(t, err)

	_, err = svc.RequestRefund(ctx, tx.ID, core.PHP(10), "x", "support")
	assert.True(t, core.IsConflict(err))
}

func TestRefund_AuditTrail(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	tx := recordCapture(t, svc, 100)

	r, err := svc.RequestRefund(ctx, tx.ID, core.PHP(10), "x", "support-lea")
	require.NoError(t, err)
	_, err = svc.ApproveRefund(ctx, r.ID, "finance-marco", "ok")
	require.NoError(t, err)

	entries, err := store.QueryAudit(ctx, core.AuditFilter{Subject: r.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	actions := []core.AuditAction{entries[0].Action, entries[1].Action}
	assert.ElementsMatch(t, []core.AuditAction{core.AuditRefundRequested, core.AuditRefundApproved}, actions)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestReconcile_StoresRun(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	a := recordCapture(t, svc, 100)
	b := recordCapture(t, svc, 250)

	period, err := core.ParsePeriod("", "", time.Now())
	require.NoError(t, err)
	run, err := svc.Reconcile(ctx, "gcash", period, []payments.SettlementLine{
		{ProviderRef: a.ProviderRef, Amount: core.PHP(100)},
		{ProviderRef: b.ProviderRef, Amount: core.PHP(240)},
	}, "finance-marco")
	require.NoError(t, err)

	assert.Equal(t, 1, run.Matched)
	assert.Equal(t, 1, run.Mismatched)
	assert.False(t, run.Clean())

	got, err := svc.GetReconciliationRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Mismatched, got.Mismatched)
	require.Len(t, got.Discrepancies, 1)
	assert.Equal(t, payments.AmountMismatch, got.Discrepancies[0].Kind)
	assert.Equal(t, period.String(), got.Period.String())

	runs, err := svc.ListReconciliationRuns(ctx, "gcash", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	runs, err = svc.ListReconciliationRuns(ctx, "maya", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestReconcile_OnlyProviderTransactionsInPeriod(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	recordCapture(t, svc, 100)

	// a maya capture is not part of a gcash settlement
	_, err := svc.RecordTransaction(ctx, payments.Transaction{
		RideID: "r", RiderID: "u", Method: payments.MethodMaya, Amount: core.PHP(70), ProviderRef: "maya-1",
	})
	require.NoError(t, err)

	lastYear := core.MonthPeriod(time.Now().Year()-1, time.January)
	run, err := svc.Reconcile(ctx, "gcash", lastYear, nil, "finance")
	require.NoError(t, err)
	assert.True(t, run.Clean())
	assert.True(t, run.InternalTotal.IsZero())
}

func TestReconcile_RequiresProvider(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Reconcile(context.Background(), "", core.Period{}, nil, "finance")
	assert.True(t, core.IsClientError(err))

	_, err = svc.GetReconciliationRun(context.Background(), "rec-missing")
	assert.True(t, core.IsNotFound(err))
}
