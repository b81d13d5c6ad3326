package bir_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/ops-console/compliance/bir"
	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/payments"
	"github.com/warp/ops-console/store/sqlite"
)

type fixture struct {
	receipts *bir.Service
	payments *payments.Service
	store    *sqlite.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := zap.NewNop()
	return &fixture{
		receipts: bir.NewService(store, store, bir.Options{SellerTIN: "009-876-543-000"}, nil, store, log),
		payments: payments.NewService(store, nil, store, log),
		store:    store,
	}
}

func (f *fixture) capture(t *testing.T, amount float64) *payments.Transaction {
	t.Helper()
	tx, err := f.payments.RecordTransaction(context.Background(), payments.Transaction{
		RideID: core.NewID("ride"), RiderID: "rdr-ana", Method: payments.MethodCard, Amount: core.PHP(amount),
	})
	require.NoError(t, err)
	return tx
}

func TestSplitVAT(t *testing.T) {
	tests := []struct {
		total   float64
		vatable string
		vat     string
	}{
		{112, "100.00", "12.00"},
		{245.50, "219.20", "26.30"},
		{0.01, "0.01", "0.00"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.total), func(t *testing.T) {
			vatable, vat := bir.SplitVAT(core.PHP(tt.total), bir.DefaultVATRate)
			assert.Equal(t, tt.vatable, vatable.Amount.StringFixed(2))
			assert.Equal(t, tt.vat, vat.Amount.StringFixed(2))
			assert.True(t, vatable.Add(vat).Equal(core.PHP(tt.total)), "parts add up to the total")
		})
	}
}

func TestNumbering(t *testing.T) {
	assert.Equal(t, "OR-2026", bir.SeriesFor(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "OR-2026-000042", bir.FormatNumber("OR-2026", 42))
}

func TestIssueReceipt_SequentialNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	series := bir.SeriesFor(time.Now().UTC())

	var numbers []string
	for i := 0; i < 3; i++ {
		r, err := f.receipts.IssueReceipt(ctx, f.capture(t, 112).ID, "", "", "", "finance")
		require.NoError(t, err)
		numbers = append(numbers, r.Number)

		assert.Equal(t, bir.TaxVatable, r.TaxType)
		assert.Equal(t, "009-876-543-000", r.SellerTIN)
		assert.True(t, r.VatableSales.Equal(core.PHP(100)))
		assert.True(t, r.VAT.Equal(core.PHP(12)))
		assert.True(t, r.VATExempt.IsZero())
	}
	assert.Equal(t, []string{series + "-000001", series + "-000002", series + "-000003"}, numbers)
}

func TestIssueReceipt_TaxTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	exempt, err := f.receipts.IssueReceipt(ctx, f.capture(t, 150).ID, "Senior Citizen", "", bir.TaxVATExempt, "finance")
	require.NoError(t, err)
	assert.True(t, exempt.VATExempt.Equal(core.PHP(150)))
	assert.True(t, exempt.VAT.IsZero())

	zero, err := f.receipts.IssueReceipt(ctx, f.capture(t, 80).ID, "", "", bir.TaxZeroRated, "finance")
	require.NoError(t, err)
	assert.True(t, zero.ZeroRated.Equal(core.PHP(80)))

	_, err = f.receipts.IssueReceipt(ctx, f.capture(t, 80).ID, "", "", "luxury", "finance")
	assert.True(t, core.IsClientError(err))
}

func TestIssueReceipt_OnePerPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.capture(t, 200)

	first, err := f.receipts.IssueReceipt(ctx, tx.ID, "", "", bir.TaxVatable, "finance")
	require.NoError(t, err)

	_, err = f.receipts.IssueReceipt(ctx, tx.ID, "", "", bir.TaxVatable, "finance")
	assert.True(t, core.IsConflict(err))

	// WHEN: the first one is voided, a replacement may be issued with a new number
	voided, err := f.receipts.VoidReceipt(ctx, first.ID, "Wrong buyer name", "finance")
	require.NoError(t, err)
	assert.Equal(t, bir.StatusVoid, voided.Status)
	require.NotNil(t, voided.VoidedAt)

	second, err := f.receipts.IssueReceipt(ctx, tx.ID, "Acme Logistics Inc.", "123-456-789-000", bir.TaxVatable, "finance")
	require.NoError(t, err)
	assert.NotEqual(t, first.Number, second.Number)
	assert.Equal(t, first.Sequence+1, second.Sequence)

	list, err := f.receipts.ListReceipts(ctx, bir.ReceiptFilter{TransactionID: tx.ID})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestIssueReceipt_RequiresSettledPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	failed, err := f.payments.RecordTransaction(ctx, payments.Transaction{
		RideID: "ride-x", RiderID: "rdr-x", Method: payments.MethodCard, Amount: core.PHP(100), Status: payments.StatusFailed,
	})
	require.NoError(t, err)

	_, err = f.receipts.IssueReceipt(ctx, failed.ID, "", "", bir.TaxVatable, "finance")
	assert.True(t, core.IsClientError(err))

	_, err = f.receipts.IssueReceipt(ctx, "txn-missing", "", "", bir.TaxVatable, "finance")
	assert.True(t, core.IsNotFound(err))

	_, err = f.receipts.IssueReceipt(ctx, "", "", "", bir.TaxVatable, "finance")
	assert.True(t, core.IsClientError(err))
}

func TestVoidReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.receipts.IssueReceipt(ctx, f.capture(t, 100).ID, "", "", bir.TaxVatable, "finance")
	require.NoError(t, err)

	_, err = f.receipts.VoidReceipt(ctx, r.ID, "", "finance")
	assert.True(t, core.IsClientError(err), "a reason is required")

	_, err = f.receipts.VoidReceipt(ctx, r.ID, "Ride disputed", "finance")
	require.NoError(t, err)

	_, err = f.receipts.VoidReceipt(ctx, r.ID, "again", "finance")
	assert.True(t, core.IsConflict(err))

	_, err = f.receipts.VoidReceipt(ctx, "rct-missing", "x", "finance")
	assert.True(t, core.IsNotFound(err))

	got, err := f.receipts.GetReceipt(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ride disputed", got.VoidReason)
	assert.Equal(t, r.Number, got.Number, "the number stays used")

	entries, err := f.store.QueryAudit(ctx, core.AuditFilter{Subject: r.ID})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestListReceipts_RejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.receipts.ListReceipts(context.Background(), bir.ReceiptFilter{Status: "draft"})
	assert.True(t, core.IsClientError(err))
}

func TestMonthlySummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a, err := f.receipts.IssueReceipt(ctx, f.capture(t, 112).ID, "", "", bir.TaxVatable, "finance")
	require.NoError(t, err)
	_, err = f.receipts.IssueReceipt(ctx, f.capture(t, 50).ID, "", "", bir.TaxVATExempt, "finance")
	require.NoError(t, err)
	c, err := f.receipts.IssueReceipt(ctx, f.capture(t, 224).ID, "", "", bir.TaxVatable, "finance")
	require.NoError(t, err)
	_, err = f.receipts.VoidReceipt(ctx, c.ID, "duplicate", "finance")
	require.NoError(t, err)

	sum, err := f.receipts.MonthlySummary(ctx, now.Year(), now.Month())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Issued)
	assert.Equal(t, 1, sum.Voided)
	assert.Equal(t, a.Number, sum.FirstNumber)
	assert.Equal(t, c.Number, sum.LastNumber)
	assert.True(t, sum.VatableSales.Equal(core.PHP(100)))
	assert.True(t, sum.VAT.Equal(core.PHP(12)))
	assert.True(t, sum.VATExempt.Equal(core.PHP(50)))
	assert.True(t, sum.Gross.Equal(core.PHP(162)))

	_, err = f.receipts.MonthlySummary(ctx, now.Year(), 13)
	assert.True(t, core.IsClientError(err))

	empty, err := f.receipts.MonthlySummary(ctx, now.Year()-1, now.Month())
	require.NoError(t, err)
	assert.Zero(t, empty.Issued)
	assert.Empty(t, empty.FirstNumber)
}

func TestSummarize_CustomRate(t *testing.T) {
	// Summarize works on receipts as stored; the rate only matters at issue time
	vatable, vat := bir.SplitVAT(core.PHP(105), decimal.RequireFromString("0.05"))
	receipts := []bir.Receipt{
		{Number: "OR-2026-000007", Status: bir.StatusIssued, Total: core.PHP(105), VatableSales: vatable, VAT: vat},
	}

	sum := bir.Summarize(2026, time.March, receipts)
	assert.Equal(t, "OR-2026-000007", sum.FirstNumber)
	assert.True(t, sum.VAT.Equal(core.PHP(5)))
	assert.True(t, sum.ZeroRated.IsZero())
}
