/*
Package bir issues and reports BIR official receipts for ride payments.

PURPOSE:
  The Bureau of Internal Revenue requires a sequentially numbered receipt
  for every sale and a monthly sales summary for filing. The console issues
  receipts for captured payments, voids them when a ride is disputed and
  produces the summary.

NUMBERING:
  Receipts use one series per calendar year: OR-<year>-<000001>. Numbers are
  allocated by the store inside a database transaction, never reused, and a
  voided receipt keeps its number.

VAT:
  Fares are VAT-inclusive. For a vatable sale of total T at rate r:
    vatable sales = round2(T / (1 + r))
    vat           = T - vatable sales
  vat_exempt and zero_rated sales put the whole total into their bucket.

SEE ALSO:
  - payments/types.go: Source transactions
  - api/compliance.go: HTTP endpoints
*/
package bir

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/events"
	"github.com/warp/ops-console/payments"
)

// DefaultVATRate is the Philippine VAT rate.
var DefaultVATRate = decimal.RequireFromString("0.12")

type TaxType string

const (
	TaxVatable   TaxType = "vatable"
	TaxVATExempt TaxType = "vat_exempt"
	TaxZeroRated TaxType = "zero_rated"
)

func (t TaxType) Valid() bool {
	return t == TaxVatable || t == TaxVATExempt || t == TaxZeroRated
}

type Status string

const (
	StatusIssued Status = "issued"
	StatusVoid   Status = "void"
)

type Receipt struct {
	ID            string
	Number        string
	Series        string
	Sequence      int64
	TransactionID string
	SellerTIN     string
	BuyerName     string
	BuyerTIN      string
	TaxType       TaxType
	Total         core.Money
	VatableSales  core.Money
	VAT           core.Money
	VATExempt     core.Money
	ZeroRated     core.Money
	Status        Status
	VoidReason    string
	IssuedAt      time.Time
	VoidedAt      *time.Time
}

// Summary is the monthly sales summary used for filing.
type Summary struct {
	Year         int
	Month        time.Month
	Issued       int
	Voided       int
	FirstNumber  string
	LastNumber   string
	VatableSales core.Money
	VAT          core.Money
	VATExempt    core.Money
	ZeroRated    core.Money
	Gross        core.Money
}

type ReceiptFilter struct {
	Period        *core.Period // on issued_at
	Status        Status
	TransactionID string
	Limit         int // 0 = no limit
}

// Store persists receipts.
type Store interface {
	// IssueReceipt allocates the next sequence of r.Series, fills Sequence and Number,
	// and saves r atomically. It returns core.ErrConflict if the transaction already
	// has an issued receipt.
	IssueReceipt(ctx context.Context, r *Receipt) error
	GetReceipt(ctx context.Context, id string) (*Receipt, error)
	ListReceipts(ctx context.Context, filter ReceiptFilter) ([]Receipt, error)
	VoidReceipt(ctx context.Context, id, reason string, at time.Time) error
}

// TransactionSource looks up the payment a receipt is issued for.
type TransactionSource interface {
	GetTransaction(ctx context.Context, id string) (*payments.Transaction, error)
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store     Store
	txs       TransactionSource
	vatRate   decimal.Decimal
	sellerTIN string
	events    events.Publisher
	audit     core.AuditLog
	log       *zap.Logger
	now       func() time.Time
}

type Options struct {
	VATRate   decimal.Decimal
	SellerTIN string
}

func NewService(store Store, txs TransactionSource, opts Options, pub events.Publisher, audit core.AuditLog, log *zap.Logger) *Service {
	if opts.VATRate.IsZero() {
		opts.VATRate = DefaultVATRate
	}
	return &Service{
		store:     store,
		txs:       txs,
		vatRate:   opts.VATRate,
		sellerTIN: opts.SellerTIN,
		events:    pub,
		audit:     audit,
		log:       log.Named("bir"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SeriesFor returns the receipt series for an issue date.
func SeriesFor(t time.Time) string {
	return fmt.Sprintf("OR-%d", t.Year())
}

// FormatNumber renders a receipt number within a series.
func FormatNumber(series string, seq int64) string {
	return fmt.Sprintf("%s-%06d", series, seq)
}

// SplitVAT breaks a VAT-inclusive total into vatable sales and VAT.
func SplitVAT(total core.Money, rate decimal.Decimal) (vatable, vat core.Money) {
	vatable = total.Div(decimal.NewFromInt(1).Add(rate)).Round2()
	vat = total.Sub(vatable)
	return vatable, vat
}

// IssueReceipt issues the official receipt for a captured payment.
func (s *Service) IssueReceipt(ctx context.Context, txID, buyerName, buyerTIN string, taxType TaxType, actor string) (*Receipt, error) {
	if txID == "" {
		return nil, core.Missing("transaction_id")
	}
	if taxType == "" {
		taxType = TaxVatable
	}
	if !taxType.Valid() {
		return nil, core.Invalid("unknown tax type %q", taxType)
	}

	tx, err := s.txs.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, core.NotFound("transaction", txID)
	}
	if !tx.Status.Settled() {
		return nil, core.Invalid("transaction %s is %s; only settled payments get a receipt", tx.ID, tx.Status)
	}

	now := s.now()
	zero := core.ZeroMoney(tx.Amount.Currency)
	r := &Receipt{
		ID:            core.NewID("rct"),
		Series:        SeriesFor(now),
		TransactionID: tx.ID,
		SellerTIN:     s.sellerTIN,
		BuyerName:     buyerName,
		BuyerTIN:      buyerTIN,
		TaxType:       taxType,
		Total:         tx.Amount.Round2(),
		VatableSales:  zero,
		VAT:           zero,
		VATExempt:     zero,
		ZeroRated:     zero,
		Status:        StatusIssued,
		IssuedAt:      now,
	}
	switch taxType {
	case TaxVatable:
		r.VatableSales, r.VAT = SplitVAT(r.Total, s.vatRate)
	case TaxVATExempt:
		r.VATExempt = r.Total
	case TaxZeroRated:
		r.ZeroRated = r.Total
	}

	if err := s.store.IssueReceipt(ctx, r); err != nil {
		return nil, err
	}

	if err := core.Audit(ctx, s.audit, actor, core.AuditReceiptIssued, r.ID, r.Number+" for "+tx.ID); err != nil {
		s.log.Error("audit append failed", zap.Error(err))
	}
	events.Emit(ctx, s.events, s.log, events.New(events.ReceiptIssued, r.ID, map[string]any{
		"number":         r.Number,
		"transaction_id": tx.ID,
		"total":          r.Total.Amount.StringFixed(2),
	}))
	return r, nil
}

// GetReceipt returns a receipt or a not-found error.
func (s *Service) GetReceipt(ctx context.Context, id string) (*Receipt, error) {
	r, err := s.store.GetReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, core.NotFound("receipt", id)
	}
	return r, nil
}

// ListReceipts returns receipts ordered by number.
func (s *Service) ListReceipts(ctx context.Context, filter ReceiptFilter) ([]Receipt, error) {
	if filter.Status != "" && filter.Status != StatusIssued && filter.Status != StatusVoid {
		return nil, core.Invalid("unknown receipt status %q", filter.Status)
	}
	return s.store.ListReceipts(ctx, filter)
}

// VoidReceipt cancels an issued receipt. The number stays used.
func (s *Service) VoidReceipt(ctx context.Context, id, reason, actor string) (*Receipt, error) {
	if reason == "" {
		return nil, core.Missing("reason")
	}
	r, err := s.GetReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status == StatusVoid {
		return nil, &core.InvalidTransitionError{Kind: "receipt", ID: id, From: string(r.Status), To: string(StatusVoid)}
	}

	now := s.now()
	if err := s.store.VoidReceipt(ctx, id, reason, now); err != nil {
		return nil, err
	}
	r.Status = StatusVoid
	r.VoidReason = reason
	r.VoidedAt = &now

	if err := core.Audit(ctx, s.audit, actor, core.AuditReceiptVoided, r.ID, r.Number+": "+reason); err != nil {
		s.log.Error("audit append failed", zap.Error(err))
	}
	events.Emit(ctx, s.events, s.log, events.New(events.ReceiptVoided, r.ID, map[string]any{
		"number": r.Number,
		"reason": reason,
	}))
	return r, nil
}

// MonthlySummary totals the receipts issued in a calendar month. Void receipts are
// counted but excluded from the amounts.
func (s *Service) MonthlySummary(ctx context.Context, year int, month time.Month) (*Summary, error) {
	if month < time.January || month > time.December {
		return nil, core.Invalid("month must be 1-12")
	}
	period := core.MonthPeriod(year, month)
	receipts, err := s.store.ListReceipts(ctx, ReceiptFilter{Period: &period})
	if err != nil {
		return nil, fmt.Errorf("failed to load receipts: %w", err)
	}
	sum := Summarize(year, month, receipts)
	return &sum, nil
}

// Summarize totals receipts already ordered by number.
func Summarize(year int, month time.Month, receipts []Receipt) Summary {
	zero := core.ZeroMoney(core.DefaultCurrency)
	sum := Summary{
		Year: year, Month: month,
		VatableSales: zero, VAT: zero, VATExempt: zero, ZeroRated: zero, Gross: zero,
	}
	for i, r := range receipts {
		if i == 0 {
			sum.FirstNumber = r.Number
		}
		sum.LastNumber = r.Number
		if r.Status == StatusVoid {
			sum.Voided++
			continue
		}
		sum.Issued++
		sum.VatableSales = sum.VatableSales.Add(r.VatableSales)
		sum.VAT = sum.VAT.Add(r.VAT)
		sum.VATExempt = sum.VATExempt.Add(r.VATExempt)
		sum.ZeroRated = sum.ZeroRated.Add(r.ZeroRated)
		sum.Gross = sum.Gross.Add(r.Total)
	}
	return sum
}
