/*
Package payments manages ride payment transactions, refunds and settlement
reconciliation for the back-office console.

PURPOSE:
  Support and finance staff look up what a rider paid, issue refunds and
  check that what the payment providers settled matches what the platform
  captured. This package owns those records and their status rules.

KEY CONCEPTS:
  - Transaction: one rider payment for a ride
  - Refund: a request to return part or all of a captured payment
  - ReconciliationRun: comparison of captured payments against a provider's
    settlement report for a period

STATUS RULES:
  Transaction: pending -> captured | failed
               captured -> partially_refunded -> refunded
               captured -> refunded
  Refund:      pending -> approved | rejected

INVARIANT:
  Approved + pending refunds never exceed the transaction amount. The
  store enforces it in the transaction that inserts the refund.

SEE ALSO:
  - service.go: Operations
  - reconcile.go: Settlement matching
  - store/sqlite: Persistence
*/
package payments

import (
	"context"
	"time"

	"github.com/warp/ops-console/core"
)

// =============================================================================
// TRANSACTION
// =============================================================================

type Method string

const (
	MethodCash   Method = "cash"
	MethodCard   Method = "card"
	MethodGCash  Method = "gcash"
	MethodMaya   Method = "maya"
	MethodWallet Method = "wallet"
)

// Methods lists every accepted payment method.
var Methods = []Method{MethodCash, MethodCard, MethodGCash, MethodMaya, MethodWallet}

func (m Method) Valid() bool {
	for _, v := range Methods {
		if v == m {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusPending           Status = "pending"
	StatusCaptured          Status = "captured"
	StatusFailed            Status = "failed"
	StatusPartiallyRefunded Status = "partially_refunded"
	StatusRefunded          Status = "refunded"
	StatusVoided            Status = "voided"
)

// Settled reports whether money actually moved for this status.
func (s Status) Settled() bool {
	return s == StatusCaptured || s == StatusPartiallyRefunded || s == StatusRefunded
}

// Refundable reports whether a new refund may be requested.
func (s Status) Refundable() bool {
	return s == StatusCaptured || s == StatusPartiallyRefunded
}

type Transaction struct {
	ID          string
	RideID      string
	RiderID     string
	DriverID    string
	Method      Method
	Status      Status
	Amount      core.Money
	Provider    string // "gcash", "maya", "stripe", "" for cash
	ProviderRef string
	CreatedAt   time.Time
	CapturedAt  *time.Time
}

// TransactionFilter narrows ListTransactions. Zero values match everything.
type TransactionFilter struct {
	Status   Status
	Method   Method
	Provider string
	DriverID string
	RiderID  string
	Period   *core.Period // on created_at
	Limit    int          // 0 = no limit
}

// =============================================================================
// REFUND
// =============================================================================

type RefundStatus string

const (
	RefundPending  RefundStatus = "pending"
	RefundApproved RefundStatus = "approved"
	RefundRejected RefundStatus = "rejected"
)

type Refund struct {
	ID            string
	TransactionID string
	Amount        core.Money
	Reason        string
	Status        RefundStatus
	RequestedBy   string
	DecidedBy     string
	DecisionNote  string
	CreatedAt     time.Time
	DecidedAt     *time.Time
}

// CheckRefund reports whether a refund of requested may be opened on tx when
// committed is already approved or pending against it. Stores call it inside
// the database transaction that inserts the refund.
func CheckRefund(tx Transaction, committed, requested core.Money) error {
	if !tx.Status.Refundable() {
		return &core.InvalidTransitionError{Kind: "transaction", ID: tx.ID, From: string(tx.Status), To: "refund"}
	}
	if committed.Add(requested).GreaterThan(tx.Amount) {
		return &RefundExceedsError{TransactionID: tx.ID, Captured: tx.Amount, Committed: committed, Requested: requested}
	}
	return nil
}

// StatusAfterRefunds is the status of a capture once approved refunds total approved.
func StatusAfterRefunds(captured, approved core.Money) Status {
	if approved.LessThan(captured) {
		return StatusPartiallyRefunded
	}
	return StatusRefunded
}

// RefundFilter narrows ListRefunds.
type RefundFilter struct {
	TransactionID string
	Status        RefundStatus
	Period        *core.Period // on decided_at for approved refunds, created_at otherwise
	Limit         int
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// SettlementLine is one row of a provider's settlement report.
type SettlementLine struct {
	ProviderRef string
	Amount      core.Money
	SettledAt   time.Time
}

type DiscrepancyKind string

const (
	MissingInternal DiscrepancyKind = "missing_internal" // provider settled, we have no capture
	MissingProvider DiscrepancyKind = "missing_provider" // we captured, provider did not settle
	AmountMismatch  DiscrepancyKind = "amount_mismatch"
)

type Discrepancy struct {
	Kind           DiscrepancyKind `json:"kind"`
	ProviderRef    string          `json:"provider_ref"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	InternalAmount string          `json:"internal_amount,omitempty"`
	ProviderAmount string          `json:"provider_amount,omitempty"`
}

type ReconciliationRun struct {
	ID              string
	Provider        string
	Period          core.Period
	Matched         int
	MissingInternal int
	MissingProvider int
	Mismatched      int
	InternalTotal   core.Money
	ProviderTotal   core.Money
	Discrepancies   []Discrepancy
	RunBy           string
	CreatedAt       time.Time
}

// Clean reports whether the run found nothing to follow up.
func (r ReconciliationRun) Clean() bool {
	return r.MissingInternal == 0 && r.MissingProvider == 0 && r.Mismatched == 0
}

// =============================================================================
// STORE
// =============================================================================

// Store persists payments data.
type Store interface {
	SaveTransaction(ctx context.Context, tx Transaction) error
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)

	// InsertRefund stores a pending refund. In the same database transaction it
	// sums the approved and pending refunds of the payment and rejects the
	// insert with CheckRefund's error when the new one does not fit.
	InsertRefund(ctx context.Context, r Refund) error
	GetRefund(ctx context.Context, id string) (*Refund, error)
	ListRefunds(ctx context.Context, filter RefundFilter) ([]Refund, error)

	// DecideRefund moves a pending refund to its decision. On approval the
	// transaction status is recomputed from the approved refunds inside the
	// same database transaction. It returns the transaction's status after the
	// decision, and ErrConflict when the refund is no longer pending.
	DecideRefund(ctx context.Context, r Refund) (Status, error)

	SaveReconciliationRun(ctx context.Context, run ReconciliationRun) error
	GetReconciliationRun(ctx context.Context, id string) (*ReconciliationRun, error)
	ListReconciliationRuns(ctx context.Context, provider string, limit int) ([]ReconciliationRun, error)
}
