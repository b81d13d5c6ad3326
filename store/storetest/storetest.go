/*
Package storetest is a conformance suite for the console's storage backends.

USAGE:
  func TestConformance(t *testing.T) {
      storetest.Run(t, func(t *testing.T) storetest.Store {
          s, err := sqlite.New(":memory:")
          require.NoError(t, err)
          t.Cleanup(func() { s.Close() })
          return s
      })
  }

Every backend must behave the same way on not-found lookups, unique keys,
the atomic multi-row writes and list ordering. Service-level rules are
tested in the domain packages against sqlite only.
*/
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ops-console/compliance/bir"
	"github.com/warp/ops-console/compliance/dpa"
	"github.com/warp/ops-console/compliance/ltfrb"
	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/earnings"
	"github.com/warp/ops-console/payments"
	"github.com/warp/ops-console/widgets"
)

// Store is what a backend must implement.
type Store interface {
	payments.Store
	earnings.Store
	bir.Store
	dpa.Store
	ltfrb.Store
	widgets.AlertStore
	core.AuditLog

	Ping(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Run executes the suite. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"Transactions", testTransactions},
		{"RefundDecision", testRefundDecision},
		{"RefundLimit", testRefundLimit},
		{"ConcurrentRefunds", testConcurrentRefunds},
		{"ReconciliationRuns", testReconciliationRuns},
		{"Payouts", testPayouts},
		{"ReceiptNumbering", testReceiptNumbering},
		{"SubjectRequests", testSubjectRequests},
		{"Registry", testRegistry},
		{"Alerts", testAlerts},
		{"Audit", testAudit},
		{"Reset", testReset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			require.NoError(t, s.Ping(context.Background()))
			tt.fn(t, s)
		})
	}
}

var base = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

func at(day, hour int) time.Time { return base.AddDate(0, 0, day-1).Add(time.Duration(hour) * time.Hour) }

func september() *core.Period {
	p := core.Period{Start: base, End: time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)}
	return &p
}

func saveTx(t *testing.T, s Store, id string, method payments.Method, status payments.Status, amount float64, created time.Time) {
	t.Helper()
	tx := payments.Transaction{
		ID: id, RideID: "ride-" + id, RiderID: "rdr-ana", DriverID: "drv-001",
		Method: method, Status: status, Amount: core.PHP(amount),
		Provider: string(method), ProviderRef: string(method) + "-" + id, CreatedAt: created,
	}
	if status.Settled() {
		captured := created.Add(time.Minute)
		tx.CapturedAt = &captured
	}
	require.NoError(t, s.SaveTransaction(context.Background(), tx))
}

// =============================================================================
// PAYMENTS
// =============================================================================

func testTransactions(t *testing.T, s Store) {
	ctx := context.Background()
	saveTx(t, s, "txn-1", payments.MethodGCash, payments.StatusCaptured, 245.50, at(2, 9))
	saveTx(t, s, "txn-2", payments.MethodMaya, payments.StatusFailed, 100, at(3, 9))
	saveTx(t, s, "txn-3", payments.MethodGCash, payments.StatusCaptured, 80, at(5, 9))
	saveTx(t, s, "txn-4", payments.MethodGCash, payments.StatusCaptured, 60, at(40, 9))

	got, err := s.GetTransaction(ctx, "txn-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Amount.Equal(core.PHP(245.50)))
	assert.Equal(t, "PHP", got.Amount.Currency)
	assert.True(t, at(2, 9).Equal(got.CreatedAt))
	require.NotNil(t, got.CapturedAt)
	assert.Equal(t, "gcash-txn-1", got.ProviderRef)

	missing, err := s.GetTransaction(ctx, "txn-missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = s.SaveTransaction(ctx, payments.Transaction{ID: "txn-1", RideID: "r", RiderID: "r",
		Method: payments.MethodCash, Status: payments.StatusCaptured, Amount: core.PHP(1), CreatedAt: at(1, 1)})
	assert.True(t, core.IsConflict(err))

	list, err := s.ListTransactions(ctx, payments.TransactionFilter{Provider: "gcash", Period: september()})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "txn-3", list[0].ID, "newest first")

	list, err = s.ListTransactions(ctx, payments.TransactionFilter{Status: payments.StatusFailed})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = s.ListTransactions(ctx, payments.TransactionFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func testRefundDecision(t *testing.T, s Store) {
	ctx := context.Background()
	saveTx(t, s, "txn-1", payments.MethodCard, payments.StatusCaptured, 300, at(2, 9))

	r := payments.Refund{
		ID: "rfd-1", TransactionID: "txn-1", Amount: core.PHP(100), Reason: "Driver took a longer route",
		Status: payments.RefundPending, RequestedBy: "support-lea", CreatedAt: at(3, 9),
	}
	require.NoError(t, s.InsertRefund(ctx, r))

	orphan := r
	orphan.ID, orphan.TransactionID = "rfd-2", "txn-missing"
	assert.True(t, core.IsNotFound(s.InsertRefund(ctx, orphan)), "refunds reference a transaction")

	decided := at(4, 9)
	r.Status, r.DecidedBy, r.DecisionNote, r.DecidedAt = payments.RefundApproved, "finance-marco", "ok", &decided
	status, err := s.DecideRefund(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusPartiallyRefunded, status)

	got, err := s.GetRefund(ctx, "rfd-1")
	require.NoError(t, err)
	assert.Equal(t, payments.RefundApproved, got.Status)
	require.NotNil(t, got.DecidedAt)
	assert.True(t, decided.Equal(*got.DecidedAt))

	tx, err := s.GetTransaction(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, payments.StatusPartiallyRefunded, tx.Status)

	// a decided refund cannot be decided again, and the transaction is untouched
	r.Status = payments.RefundRejected
	_, err = s.DecideRefund(ctx, r)
	assert.True(t, core.IsConflict(err))
	tx, err = s.GetTransaction(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, payments.StatusPartiallyRefunded, tx.Status)

	approved, err := s.ListRefunds(ctx, payments.RefundFilter{Status: payments.RefundApproved, Period: september()})
	require.NoError(t, err)
	assert.Len(t, approved, 1)
}

func testRefundLimit(t *testing.T, s Store) {
	ctx := context.Background()
	saveTx(t, s, "txn-1", payments.MethodGCash, payments.StatusCaptured, 100, at(2, 9))
	saveTx(t, s, "txn-2", payments.MethodGCash, payments.StatusFailed, 100, at(2, 9))

	refund := func(id, txID string, amount float64) payments.Refund {
		return payments.Refund{ID: id, TransactionID: txID, Amount: core.PHP(amount), Reason: "overcharge",
			Status: payments.RefundPending, CreatedAt: at(3, 9)}
	}

	// GIVEN: 80 of a 100 capture already pending
	require.NoError(t, s.InsertRefund(ctx, refund("rfd-1", "txn-1", 80)))

	// WHEN: another 30 is asked for
	err := s.InsertRefund(ctx, refund("rfd-2", "txn-1", 30))

	// THEN
	var exceeds *payments.RefundExceedsError
	require.ErrorAs(t, err, &exceeds)
	assert.True(t, exceeds.Committed.Equal(core.PHP(80)))
	require.NoError(t, s.InsertRefund(ctx, refund("rfd-3", "txn-1", 20)), "exactly the remainder fits")

	err = s.InsertRefund(ctx, refund("rfd-4", "txn-2", 10))
	assert.True(t, core.IsConflict(err), "failed payments take no refunds")
}

func testConcurrentRefunds(t *testing.T, s Store) {
	ctx := context.Background()
	saveTx(t, s, "txn-1", payments.MethodGCash, payments.StatusCaptured, 100, at(2, 9))

	// GIVEN: four staff asking for 80 back on the same 100 capture at once
	const workers = 4
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		refused  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.InsertRefund(ctx, payments.Refund{
				ID: fmt.Sprintf("rfd-%d", i), TransactionID: "txn-1", Amount: core.PHP(80), Reason: "double charge",
				Status: payments.RefundPending, CreatedAt: at(3, 9),
			})
			mu.Lock()
			defer mu.Unlock()
			var exceeds *payments.RefundExceedsError
			switch {
			case err == nil:
				accepted++
			case errors.As(err, &exceeds):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	// THEN: exactly one fits
	assert.Equal(t, 1, accepted)
	assert.Equal(t, workers-1, refused)
	list, err := s.ListRefunds(ctx, payments.RefundFilter{TransactionID: "txn-1"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// WHEN: two refunds that together cover the rest are approved at once
	saveTx(t, s, "txn-2", payments.MethodCard, payments.StatusCaptured, 100, at(2, 9))
	halves := []payments.Refund{
		{ID: "rfd-a", TransactionID: "txn-2", Amount: core.PHP(50), Reason: "a", Status: payments.RefundPending, CreatedAt: at(3, 9)},
		{ID: "rfd-b", TransactionID: "txn-2", Amount: core.PHP(50), Reason: "b", Status: payments.RefundPending, CreatedAt: at(3, 9)},
	}
	for _, r := range halves {
		require.NoError(t, s.InsertRefund(ctx, r))
	}
	decided := at(4, 9)
	for _, r := range halves {
		wg.Add(1)
		go func(r payments.Refund) {
			defer wg.Done()
			r.Status, r.DecidedBy, r.DecidedAt = payments.RefundApproved, "finance", &decided
			_, err := s.DecideRefund(ctx, r)
			assert.NoError(t, err)
		}(r)
	}
	wg.Wait()

	// THEN: the payment ends fully refunded whichever approval landed last
	tx, err := s.GetTransaction(ctx, "txn-2")
	require.NoError(t, err)
	assert.Equal(t, payments.StatusRefunded, tx.Status)
}

func testReconciliationRuns(t *testing.T, s Store) {
	ctx := context.Background()
	for i, id := range []string{"rec-1", "rec-2"} {
		run := payments.ReconciliationRun{
			ID: id, Provider: "gcash", Period: *september(),
			Matched: 10 + i, InternalTotal: core.PHP(1000), ProviderTotal: core.PHP(985),
			Discrepancies: []payments.Discrepancy{{
				Kind: payments.AmountMismatch, TransactionID: "txn-2", ProviderRef: "gcash-txn-2",
				InternalAmount: "100.00", ProviderAmount: "85.00",
			}},
			Mismatched: 1, RunBy: "finance", CreatedAt: at(10+i, 9),
		}
		require.NoError(t, s.SaveReconciliationRun(ctx, run))
	}

	got, err := s.GetReconciliationRun(ctx, "rec-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Discrepancies, 1)
	assert.Equal(t, "85.00", got.Discrepancies[0].ProviderAmount)
	assert.Equal(t, september().String(), got.Period.String())

	runs, err := s.ListReconciliationRuns(ctx, "gcash", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "rec-2", runs[0].ID)

	runs, err = s.ListReconciliationRuns(ctx, "maya", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

// =============================================================================
// EARNINGS
// =============================================================================

func testPayouts(t *testing.T, s Store) {
	ctx := context.Background()
	for i, id := range []string{"ern-1", "ern-2", "ern-3"} {
		require.NoError(t, s.SaveEarning(ctx, earnings.Earning{
			ID: id, DriverID: "drv-001", RideID: "ride-1", Type: earnings.TypeRideFare,
			Amount: core.PHP(100), EarnedAt: at(i+1, 10),
		}))
	}

	p := earnings.Payout{
		ID: "pay-1", DriverID: "drv-001", Period: *september(),
		Gross: core.PHP(200), Commission: core.PHP(40), Withholding: core.PHP(1.6), Net: core.PHP(158.4),
		EarningCount: 2, Method: earnings.PayoutGCash, Status: earnings.PayoutPending,
		CreatedAt: at(5, 9), UpdatedAt: at(5, 9),
	}
	require.NoError(t, s.CreatePayout(ctx, p, []string{"ern-1", "ern-2"}))

	unpaid, err := s.ListEarnings(ctx, earnings.EarningFilter{DriverID: "drv-001", UnpaidOnly: true})
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, "ern-3", unpaid[0].ID)

	// WHEN: a second payout claims an already paid earning
	p2 := p
	p2.ID = "pay-2"
	err = s.CreatePayout(ctx, p2, []string{"ern-3", "ern-1"})

	// THEN: nothing of it is kept
	assert.True(t, core.IsConflict(err))
	missing, err := s.GetPayout(ctx, "pay-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
	unpaid, err = s.ListEarnings(ctx, earnings.EarningFilter{UnpaidOnly: true})
	require.NoError(t, err)
	assert.Len(t, unpaid, 1)

	require.NoError(t, s.UpdatePayoutStatus(ctx, "pay-1", earnings.PayoutPending, earnings.PayoutProcessing, at(6, 9)))

	// WHEN: a second writer still believes the payout is pending
	err = s.UpdatePayoutStatus(ctx, "pay-1", earnings.PayoutPending, earnings.PayoutFailed, at(6, 10))

	// THEN: the first write stands
	assert.True(t, core.IsConflict(err))
	assert.True(t, core.IsNotFound(s.UpdatePayoutStatus(ctx, "pay-missing", earnings.PayoutPending, earnings.PayoutProcessing, at(6, 9))))

	got, err := s.GetPayout(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, earnings.PayoutProcessing, got.Status)
	assert.True(t, got.Net.Equal(core.PHP(158.4)))
	assert.Equal(t, september().String(), got.Period.String())

	list, err := s.ListPayouts(ctx, "drv-001")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// =============================================================================
// COMPLIANCE
// =============================================================================

func receipt(id, txID string) *bir.Receipt {
	return &bir.Receipt{
		ID: id, Series: "OR-2026", TransactionID: txID, TaxType: bir.TaxVatable,
		Total: core.PHP(112), VatableSales: core.PHP(100), VAT: core.PHP(12),
		VATExempt: core.PHP(0), ZeroRated: core.PHP(0), Status: bir.StatusIssued, IssuedAt: at(3, 9),
	}
}

func testReceiptNumbering(t *testing.T, s Store) {
	ctx := context.Background()

	r1 := receipt("rct-1", "txn-1")
	require.NoError(t, s.IssueReceipt(ctx, r1))
	assert.Equal(t, int64(1), r1.Sequence)
	assert.Equal(t, "OR-2026-000001", r1.Number)

	// a second live receipt for the same payment does not use up a number
	assert.True(t, core.IsConflict(s.IssueReceipt(ctx, receipt("rct-2", "txn-1"))))

	r3 := receipt("rct-3", "txn-2")
	require.NoError(t, s.IssueReceipt(ctx, r3))
	assert.Equal(t, "OR-2026-000002", r3.Number)

	require.NoError(t, s.VoidReceipt(ctx, "rct-1", "Wrong buyer", at(4, 9)))
	assert.True(t, core.IsConflict(s.VoidReceipt(ctx, "rct-1", "again", at(4, 10))))

	r4 := receipt("rct-4", "txn-1")
	require.NoError(t, s.IssueReceipt(ctx, r4))
	assert.Equal(t, "OR-2026-000003", r4.Number)

	got, err := s.GetReceipt(ctx, "rct-1")
	require.NoError(t, err)
	assert.Equal(t, bir.StatusVoid, got.Status)
	assert.Equal(t, "Wrong buyer", got.VoidReason)
	require.NotNil(t, got.VoidedAt)

	live, err := s.ListReceipts(ctx, bir.ReceiptFilter{TransactionID: "txn-1", Status: bir.StatusIssued})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "rct-4", live[0].ID)

	missing, err := s.GetReceipt(ctx, "rct-missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testSubjectRequests(t *testing.T, s Store) {
	ctx := context.Background()
	for _, r := range []dpa.Request{
		{ID: "dsr-1", SubjectID: "rdr-ana", SubjectType: dpa.SubjectRider, Type: dpa.TypeAccess,
			Status: dpa.StatusReceived, ReceivedAt: at(1, 9), DueAt: at(31, 9), UpdatedAt: at(1, 9)},
		{ID: "dsr-2", SubjectID: "rdr-ana", SubjectType: dpa.SubjectRider, Type: dpa.TypeErasure,
			Status: dpa.StatusCompleted, Resolution: "done", ReceivedAt: at(2, 9), DueAt: at(32, 9), UpdatedAt: at(3, 9)},
		{ID: "dsr-3", SubjectID: "drv-001", SubjectType: dpa.SubjectDriver, Type: dpa.TypeAccess,
			Status: dpa.StatusInProgress, ReceivedAt: at(3, 9), DueAt: at(33, 9), UpdatedAt: at(3, 9)},
	} {
		require.NoError(t, s.SaveSubjectRequest(ctx, r))
	}

	open, err := s.ListSubjectRequests(ctx, dpa.Filter{OpenOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	ana, err := s.ListSubjectRequests(ctx, dpa.Filter{SubjectID: "rdr-ana"})
	require.NoError(t, err)
	assert.Len(t, ana, 2)

	got, err := s.GetSubjectRequest(ctx, "dsr-2")
	require.NoError(t, err)
	assert.Equal(t, "done", got.Resolution)
	assert.True(t, at(32, 9).Equal(got.DueAt))

	// saving again updates in place
	got.Status = dpa.StatusRejected
	require.NoError(t, s.SaveSubjectRequest(ctx, *got))
	again, err := s.GetSubjectRequest(ctx, "dsr-2")
	require.NoError(t, err)
	assert.Equal(t, dpa.StatusRejected, again.Status)

	// WHEN: two handlers act on dsr-1 from the same snapshot
	done := at(5, 9)
	first, err := s.GetSubjectRequest(ctx, "dsr-1")
	require.NoError(t, err)
	second := *first
	first.Status, first.HandledBy, first.UpdatedAt = dpa.StatusInProgress, "dpo-lea", done
	second.Status, second.Resolution, second.HandledBy, second.UpdatedAt, second.CompletedAt =
		dpa.StatusRejected, "duplicate", "dpo-marco", done, &done
	require.NoError(t, s.UpdateSubjectRequest(ctx, *first, dpa.StatusReceived))
	err = s.UpdateSubjectRequest(ctx, second, dpa.StatusReceived)

	// THEN: only the first lands
	assert.True(t, core.IsConflict(err))
	again, err = s.GetSubjectRequest(ctx, "dsr-1")
	require.NoError(t, err)
	assert.Equal(t, dpa.StatusInProgress, again.Status)
	assert.Equal(t, "dpo-lea", again.HandledBy)
	assert.Nil(t, again.CompletedAt)

	missing := second
	missing.ID = "dsr-missing"
	assert.True(t, core.IsNotFound(s.UpdateSubjectRequest(ctx, missing, dpa.StatusReceived)))
}

func testRegistry(t *testing.T, s Store) {
	ctx := context.Background()
	v := ltfrb.Vehicle{
		ID: "veh-1", PlateNumber: "NAB 1234", CaseNumber: "2023-11-00123", Make: "Toyota", Model: "Vios",
		YearModel: 2022, FranchiseExpiry: time.Date(2027, 3, 31, 0, 0, 0, 0, time.UTC),
		Status: ltfrb.VehicleActive, CreatedAt: at(1, 9),
	}
	require.NoError(t, s.SaveVehicle(ctx, v))

	dup := v
	dup.ID = "veh-2"
	assert.True(t, core.IsConflict(s.SaveVehicle(ctx, dup)), "plates are unique")

	coverage := time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveInsuranceVerification(ctx, ltfrb.InsuranceVerification{
		ID: "ins-1", VehicleID: "veh-1", Provider: "Malayan", PolicyNumber: "PPAI-1",
		CoverageEnd: coverage, Status: ltfrb.InsuranceVerified, VerifiedBy: "compliance", VerifiedAt: at(2, 9),
	}))
	require.NoError(t, s.SetVehicleInsuranceExpiry(ctx, "veh-1", coverage))

	got, err := s.GetVehicle(ctx, "veh-1")
	require.NoError(t, err)
	require.NotNil(t, got.InsuranceExpiry)
	assert.True(t, coverage.Equal(*got.InsuranceExpiry))
	assert.True(t, v.FranchiseExpiry.Equal(got.FranchiseExpiry))
	assert.Equal(t, "Vios", got.Model)

	history, err := s.ListInsuranceVerifications(ctx, "veh-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	d := ltfrb.Driver{
		ID: "drv-001", Name: "Juan Dela Cruz", LicenseNumber: "N01-19-123456", LicenseType: ltfrb.LicenseProfessional,
		LicenseExpiry: time.Date(2028, 5, 1, 0, 0, 0, 0, time.UTC), TrainingCompleted: true, VehicleID: "veh-1",
		CreatedAt: at(1, 9),
	}
	require.NoError(t, s.SaveDriver(ctx, d))
	other := d
	other.ID = "drv-002"
	assert.True(t, core.IsConflict(s.SaveDriver(ctx, other)), "licenses are unique")

	gotDriver, err := s.GetDriver(ctx, "drv-001")
	require.NoError(t, err)
	assert.True(t, gotDriver.TrainingCompleted)
	assert.Equal(t, "veh-1", gotDriver.VehicleID)

	none, err := s.GetDriver(ctx, "drv-missing")
	require.NoError(t, err)
	assert.Nil(t, none)
}

// =============================================================================
// WIDGETS AND AUDIT
// =============================================================================

func testAlerts(t *testing.T, s Store) {
	ctx := context.Background()
	a := widgets.Alert{ID: "alr-1", DedupeKey: "dpa:overdue", Severity: widgets.SeverityWarning,
		Title: "1 request overdue", Source: "dpa", CreatedAt: at(1, 9)}

	created, err := s.UpsertAlert(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)

	a.ID, a.Title = "alr-2", "2 requests overdue"
	created, err = s.UpsertAlert(ctx, a)
	require.NoError(t, err)
	assert.False(t, created)

	active, err := s.ListActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "alr-1", active[0].ID)
	assert.Equal(t, "2 requests overdue", active[0].Title)

	require.NoError(t, s.DismissAlert(ctx, "alr-1", at(2, 9)))
	assert.True(t, core.IsConflict(s.DismissAlert(ctx, "alr-1", at(2, 10))))

	got, err := s.GetAlert(ctx, "alr-1")
	require.NoError(t, err)
	require.NotNil(t, got.DismissedAt)
}

func testAudit(t *testing.T, s Store) {
	ctx := context.Background()
	for i, action := range []core.AuditAction{core.AuditRefundRequested, core.AuditRefundApproved, core.AuditReceiptIssued} {
		require.NoError(t, s.AppendAudit(ctx, core.AuditEntry{
			ID: core.NewID("aud"), Actor: "finance-marco", Action: action, Subject: "rfd-1", At: at(1, 9+i),
		}))
	}

	entries, err := s.QueryAudit(ctx, core.AuditFilter{Subject: "rfd-1"})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, core.AuditReceiptIssued, entries[0].Action, "newest first")

	entries, err = s.QueryAudit(ctx, core.AuditFilter{Action: core.AuditRefundApproved, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func testReset(t *testing.T, s Store) {
	ctx := context.Background()
	saveTx(t, s, "txn-1", payments.MethodCard, payments.StatusCaptured, 100, at(1, 9))
	require.NoError(t, s.IssueReceipt(ctx, receipt("rct-1", "txn-1")))

	require.NoError(t, s.Reset(ctx))

	list, err := s.ListTransactions(ctx, payments.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	// numbering starts over
	r := receipt("rct-2", "txn-1")
	require.NoError(t, s.IssueReceipt(ctx, r))
	assert.Equal(t, int64(1), r.Sequence)
}
