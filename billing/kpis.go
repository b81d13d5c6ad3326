/*
Package billing computes the billing KPIs shown on the console dashboard.

PURPOSE:
  Finance wants one glance at how much riders paid, how much went back as
  refunds and what the platform kept. KPIs are derived on request from the
  payments store; nothing is cached or stored.

DEFINITIONS (for a period):
  gross bookings  = sum of settled transactions (captured, partially refunded, refunded)
  refunds         = sum of approved refunds decided in the period
  net revenue     = gross bookings - refunds
  commission      = net revenue * take rate
  success rate    = settled / (settled + failed), in percent
  average fare    = gross bookings / settled count
  refund rate     = refunds / gross bookings, in percent

SEE ALSO:
  - payments/types.go: Transaction and refund statuses
  - api/billing.go: HTTP endpoints
*/
package billing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/payments"
)

// DefaultTakeRate is the platform's share of net revenue.
var DefaultTakeRate = decimal.RequireFromString("0.20")

// Source is the read side of the payments store.
type Source interface {
	ListTransactions(ctx context.Context, filter payments.TransactionFilter) ([]payments.Transaction, error)
	ListRefunds(ctx context.Context, filter payments.RefundFilter) ([]payments.Refund, error)
}

// KPIs is the dashboard summary for a period.
type KPIs struct {
	Period           core.Period
	GrossBookings    core.Money
	Refunds          core.Money
	NetRevenue       core.Money
	Commission       core.Money
	TransactionCount int
	FailedCount      int
	SuccessRate      float64
	AverageFare      core.Money
	RefundRate       float64
	ByMethod         []MethodTotal
	Daily            []DailyTotal
}

// MethodTotal is gross bookings for one payment method.
type MethodTotal struct {
	Method payments.Method
	Count  int
	Gross  core.Money
	Share  float64 // percent of gross bookings
}

// DailyTotal is one point of the dashboard chart.
type DailyTotal struct {
	Date    time.Time
	Count   int
	Gross   core.Money
	Refunds core.Money
}

// Comparison holds a period and its predecessor.
type Comparison struct {
	Current     KPIs
	Previous    KPIs
	GrossChange *float64 // percent, nil when the previous value is zero
	NetChange   *float64
	CountChange *float64
}

// Service computes KPIs.
type Service struct {
	source   Source
	takeRate decimal.Decimal
}

func NewService(source Source, takeRate decimal.Decimal) *Service {
	if takeRate.IsZero() {
		takeRate = DefaultTakeRate
	}
	return &Service{source: source, takeRate: takeRate}
}

// KPIs computes the dashboard figures for a period.
func (s *Service) KPIs(ctx context.Context, period core.Period) (*KPIs, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	txs, err := s.source.ListTransactions(ctx, payments.TransactionFilter{Period: &period})
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	refunds, err := s.source.ListRefunds(ctx, payments.RefundFilter{Status: payments.RefundApproved, Period: &period})
	if err != nil {
		return nil, fmt.Errorf("failed to load refunds: %w", err)
	}
	k := Compute(period, txs, refunds, s.takeRate)
	return &k, nil
}

// Compare computes KPIs for the period and the one right before it.
func (s *Service) Compare(ctx context.Context, period core.Period) (*Comparison, error) {
	cur, err := s.KPIs(ctx, period)
	if err != nil {
		return nil, err
	}
	prev, err := s.KPIs(ctx, period.Previous())
	if err != nil {
		return nil, err
	}
	return &Comparison{
		Current:     *cur,
		Previous:    *prev,
		GrossChange: change(cur.GrossBookings.Amount, prev.GrossBookings.Amount),
		NetChange:   change(cur.NetRevenue.Amount, prev.NetRevenue.Amount),
		CountChange: change(decimal.NewFromInt(int64(cur.TransactionCount)), decimal.NewFromInt(int64(prev.TransactionCount))),
	}, nil
}

// Compute derives KPIs from already-loaded records. Records outside the period are ignored.
func Compute(period core.Period, txs []payments.Transaction, refunds []payments.Refund, takeRate decimal.Decimal) KPIs {
	zero := core.ZeroMoney(core.DefaultCurrency)
	k := KPIs{Period: period, GrossBookings: zero, Refunds: zero}

	daily := make(map[time.Time]*DailyTotal)
	for _, d := range period.Days() {
		daily[d] = &DailyTotal{Date: d, Gross: zero, Refunds: zero}
	}
	methods := make(map[payments.Method]*MethodTotal)

	for _, tx := range txs {
		if !period.Contains(tx.CreatedAt) {
			continue
		}
		if tx.Status == payments.StatusFailed {
			k.FailedCount++
			continue
		}
		if !tx.Status.Settled() {
			continue
		}
		k.TransactionCount++
		k.GrossBookings = k.GrossBookings.Add(tx.Amount)

		day := daily[core.Day(tx.CreatedAt)]
		day.Count++
		day.Gross = day.Gross.Add(tx.Amount)

		m, ok := methods[tx.Method]
		if !ok {
			m = &MethodTotal{Method: tx.Method, Gross: zero}
			methods[tx.Method] = m
		}
		m.Count++
		m.Gross = m.Gross.Add(tx.Amount)
	}

	for _, r := range refunds {
		if r.Status != payments.RefundApproved || r.DecidedAt == nil || !period.Contains(*r.DecidedAt) {
			continue
		}
		k.Refunds = k.Refunds.Add(r.Amount)
		day := daily[core.Day(*r.DecidedAt)]
		day.Refunds = day.Refunds.Add(r.Amount)
	}

	k.NetRevenue = k.GrossBookings.Sub(k.Refunds)
	k.Commission = k.NetRevenue.Mul(takeRate).Round2()
	k.SuccessRate = core.Percent(decimal.NewFromInt(int64(k.TransactionCount)), decimal.NewFromInt(int64(k.TransactionCount+k.FailedCount)))
	k.RefundRate = core.Percent(k.Refunds.Amount, k.GrossBookings.Amount)
	k.AverageFare = zero
	if k.TransactionCount > 0 {
		k.AverageFare = k.GrossBookings.Div(decimal.NewFromInt(int64(k.TransactionCount))).Round2()
	}

	for _, m := range methods {
		m.Share = core.Percent(m.Gross.Amount, k.GrossBookings.Amount)
		k.ByMethod = append(k.ByMethod, *m)
	}
	sort.Slice(k.ByMethod, func(i, j int) bool {
		if !k.ByMethod[i].Gross.Equal(k.ByMethod[j].Gross) {
			return k.ByMethod[i].Gross.GreaterThan(k.ByMethod[j].Gross)
		}
		return k.ByMethod[i].Method < k.ByMethod[j].Method
	})

	for _, d := range period.Days() {
		k.Daily = append(k.Daily, *daily[d])
	}
	return k
}

func change(cur, prev decimal.Decimal) *float64 {
	if prev.IsZero() {
		return nil
	}
	f, _ := cur.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return &f
}
