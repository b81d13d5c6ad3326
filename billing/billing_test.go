package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/payments"
)

var september = core.Period{
	Start: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
}

func at(day, hour int) time.Time {
	return time.Date(2026, 9, day, hour, 0, 0, 0, time.UTC)
}

func tx(id string, method payments.Method, status payments.Status, amount float64, created time.Time) payments.Transaction {
	return payments.Transaction{ID: id, Method: method, Status: status, Amount: core.PHP(amount), CreatedAt: created}
}

func approvedRefund(amount float64, decided time.Time) payments.Refund {
	return payments.Refund{Status: payments.RefundApproved, Amount: core.PHP(amount), DecidedAt: &decided}
}

func TestCompute_Figures(t *testing.T) {
	txs := []payments.Transaction{
		tx("t1", payments.MethodGCash, payments.StatusCaptured, 200, at(1, 9)),
		tx("t2", payments.MethodGCash, payments.StatusPartiallyRefunded, 300, at(2, 9)),
		tx("t3", payments.MethodCash, payments.StatusCaptured, 100, at(2, 18)),
		tx("t4", payments.MethodCard, payments.StatusFailed, 400, at(3, 9)),
		tx("t5", payments.MethodCard, payments.StatusPending, 150, at(3, 10)),
		tx("t6", payments.MethodCard, payments.StatusCaptured, 999, at(8, 9)), // outside
	}
	refunds := []payments.Refund{
		approvedRefund(60, at(4, 12)),
		approvedRefund(500, at(9, 12)), // decided outside
		{Status: payments.RefundPending, Amount: core.PHP(30)},
	}

	k := Compute(september, txs, refunds, DefaultTakeRate)

	assert.Equal(t, 3, k.TransactionCount)
	assert.Equal(t, 1, k.FailedCount)
	assert.True(t, k.GrossBookings.Equal(core.PHP(600)), k.GrossBookings.String())
	assert.True(t, k.Refunds.Equal(core.PHP(60)))
	assert.True(t, k.NetRevenue.Equal(core.PHP(540)))
	assert.True(t, k.Commission.Equal(core.PHP(108)))
	assert.True(t, k.AverageFare.Equal(core.PHP(200)))
	assert.Equal(t, 75.0, k.SuccessRate)
	assert.Equal(t, 10.0, k.RefundRate)
}

func TestCompute_ByMethodSortedByGross(t *testing.T) {
	txs := []payments.Transaction{
		tx("t1", payments.MethodGCash, payments.StatusCaptured, 200, at(1, 9)),
		tx("t2", payments.MethodGCash, payments.StatusCaptured, 300, at(2, 9)),
		tx("t3", payments.MethodCash, payments.StatusCaptured, 250, at(2, 18)),
		tx("t4", payments.MethodMaya, payments.StatusCaptured, 250, at(3, 9)),
	}

	k := Compute(september, txs, nil, DefaultTakeRate)

	require.Len(t, k.ByMethod, 3)
	assert.Equal(t, payments.MethodGCash, k.ByMethod[0].Method)
	assert.Equal(t, 2, k.ByMethod[0].Count)
	assert.Equal(t, 50.0, k.ByMethod[0].Share)
	// ties break on method name
	assert.Equal(t, payments.MethodCash, k.ByMethod[1].Method)
	assert.Equal(t, payments.MethodMaya, k.ByMethod[2].Method)
}

func TestCompute_DailySeriesCoversEveryDay(t *testing.T) {
	txs := []payments.Transaction{
		tx("t1", payments.MethodGCash, payments.StatusCaptured, 200, at(2, 9)),
		tx("t2", payments.MethodCard, payments.StatusCaptured, 50, at(2, 23)),
	}

	k := Compute(september, txs, []payments.Refund{approvedRefund(20, at(5, 1))}, DefaultTakeRate)

	require.Len(t, k.Daily, 7)
	assert.Equal(t, september.Start, k.Daily[0].Date)
	assert.Equal(t, 0, k.Daily[0].Count)
	assert.True(t, k.Daily[0].Gross.IsZero())

	assert.Equal(t, 2, k.Daily[1].Count)
	assert.True(t, k.Daily[1].Gross.Equal(core.PHP(250)))
	assert.True(t, k.Daily[4].Refunds.Equal(core.PHP(20)))
}

func TestCompute_EmptyPeriod(t *testing.T) {
	k := Compute(september, nil, nil, DefaultTakeRate)

	assert.Zero(t, k.TransactionCount)
	assert.True(t, k.GrossBookings.IsZero())
	assert.True(t, k.AverageFare.IsZero())
	assert.Equal(t, 0.0, k.SuccessRate)
	assert.Equal(t, 0.0, k.RefundRate)
	assert.Empty(t, k.ByMethod)
	assert.Len(t, k.Daily, 7)
}

func TestCompute_CommissionRounded(t *testing.T) {
	txs := []payments.Transaction{tx("t1", payments.MethodCard, payments.StatusCaptured, 100.05, at(1, 9))}

	k := Compute(september, txs, nil, decimal.RequireFromString("0.15"))

	// 100.05 * 0.15 = 15.0075
	assert.Equal(t, "15.01", k.Commission.Amount.StringFixed(2))
	assert.True(t, k.Commission.Equal(core.PHP(15.01)))
}

// =============================================================================
// SERVICE
// =============================================================================

type fakeSource struct {
	txs     []payments.Transaction
	refunds []payments.Refund
	err     error
}

func (f *fakeSource) ListTransactions(_ context.Context, filter payments.TransactionFilter) ([]payments.Transaction, error) {
	var out []payments.Transaction
	for _, t := range f.txs {
		if filter.Period == nil || filter.Period.Contains(t.CreatedAt) {
			out = append(out, t)
		}
	}
	return out, f.err
}

func (f *fakeSource) ListRefunds(context.Context, payments.RefundFilter) ([]payments.Refund, error) {
	return f.refunds, nil
}

func TestService_Compare(t *testing.T) {
	src := &fakeSource{txs: []payments.Transaction{
		tx("prev", payments.MethodGCash, payments.StatusCaptured, 200, time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)),
		tx("cur1", payments.MethodGCash, payments.StatusCaptured, 200, at(1, 9)),
		tx("cur2", payments.MethodGCash, payments.StatusCaptured, 100, at(3, 9)),
	}}
	svc := NewService(src, decimal.Zero)

	cmp, err := svc.Compare(context.Background(), september)
	require.NoError(t, err)

	assert.Equal(t, 2, cmp.Current.TransactionCount)
	assert.Equal(t, 1, cmp.Previous.TransactionCount)
	require.NotNil(t, cmp.GrossChange)
	assert.Equal(t, 50.0, *cmp.GrossChange)
	require.NotNil(t, cmp.CountChange)
	assert.Equal(t, 100.0, *cmp.CountChange)
	// zero take rate falls back to the default
	assert.True(t, cmp.Current.Commission.Equal(core.PHP(60)))
}

func TestService_CompareWithEmptyPrevious(t *testing.T) {
	src := &fakeSource{txs: []payments.Transaction{
		tx("cur", payments.MethodCard, payments.StatusCaptured, 100, at(2, 9)),
	}}

	cmp, err := NewService(src, DefaultTakeRate).Compare(context.Background(), september)
	require.NoError(t, err)
	assert.Nil(t, cmp.GrossChange)
	assert.Nil(t, cmp.NetChange)
}

func TestService_SourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("db down")}

	_, err := NewService(src, DefaultTakeRate).KPIs(context.Background(), september)
	assert.ErrorContains(t, err, "failed to load transactions")
}

func TestService_RejectsUnboundedPeriod(t *testing.T) {
	src := &fakeSource{}
	wide := core.Period{
		Start: time.Date(1000, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC),
	}

	_, err := NewService(src, DefaultTakeRate).Compare(context.Background(), wide)

	assert.ErrorIs(t, err, core.ErrInvalidPeriod)
}
