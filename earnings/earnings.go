/*
Package earnings tracks driver earnings and turns them into payouts.

PURPOSE:
  Drivers and ops staff ask "how did I earn this week, and what will I be
  paid?". An earning is one credit to a driver (fare, tip, bonus...). The
  breakdown groups them by type and applies platform commission and
  withholding tax. A payout sweeps unpaid earnings into one transfer.

MONEY RULES:
  commissionable = ride_fare + surge + cancellation_fee
  commission     = commissionable * commission rate       (default 20%)
  withholding    = (gross - commission) * withholding rate (default 1%)
  net            = gross - commission - withholding
  Tips, bonuses and adjustments are never commissioned.

PAYOUT STATUS:
  pending -> processing -> completed | failed
  pending -> failed

SEE ALSO:
  - api/earnings.go: HTTP endpoints
*/
package earnings

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ops-console/core"
)

// =============================================================================
// TYPES
// =============================================================================

type Type string

const (
	TypeRideFare        Type = "ride_fare"
	TypeSurge           Type = "surge"
	TypeTip             Type = "tip"
	TypeBonus           Type = "bonus"
	TypeCancellationFee Type = "cancellation_fee"
	TypeAdjustment      Type = "adjustment"
)

// Types lists earning types in display order.
var Types = []Type{TypeRideFare, TypeSurge, TypeTip, TypeBonus, TypeCancellationFee, TypeAdjustment}

func (t Type) Valid() bool {
	for _, v := range Types {
		if v == t {
			return true
		}
	}
	return false
}

// Commissionable reports whether the platform takes a cut of this type.
func (t Type) Commissionable() bool {
	return t == TypeRideFare || t == TypeSurge || t == TypeCancellationFee
}

type Earning struct {
	ID          string
	DriverID    string
	RideID      string
	Type        Type
	Amount      core.Money
	Description string
	PayoutID    string // empty until swept into a payout
	EarnedAt    time.Time
}

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutPending:    {PayoutProcessing, PayoutFailed},
	PayoutProcessing: {PayoutCompleted, PayoutFailed},
}

// CanMoveTo reports whether a payout may change from s to next.
func (s PayoutStatus) CanMoveTo(next PayoutStatus) bool {
	for _, allowed := range payoutTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PayoutMethod string

const (
	PayoutBankTransfer PayoutMethod = "bank_transfer"
	PayoutGCash        PayoutMethod = "gcash"
	PayoutMaya         PayoutMethod = "maya"
)

func (m PayoutMethod) Valid() bool {
	return m == PayoutBankTransfer || m == PayoutGCash || m == PayoutMaya
}

type Payout struct {
	ID           string
	DriverID     string
	Period       core.Period
	Gross        core.Money
	Commission   core.Money
	Withholding  core.Money
	Net          core.Money
	EarningCount int
	Method       PayoutMethod
	Status       PayoutStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Rates are the deductions applied to earnings.
type Rates struct {
	Commission  decimal.Decimal
	Withholding decimal.Decimal
}

// DefaultRates: 20% commission, 1% withholding.
var DefaultRates = Rates{
	Commission:  decimal.RequireFromString("0.20"),
	Withholding: decimal.RequireFromString("0.01"),
}

// =============================================================================
// STORE
// =============================================================================

type EarningFilter struct {
	DriverID   string
	Period     *core.Period // on earned_at
	UnpaidOnly bool
}

type Store interface {
	SaveEarning(ctx context.Context, e Earning) error
	ListEarnings(ctx context.Context, filter EarningFilter) ([]Earning, error)

	// CreatePayout saves the payout and stamps the listed earnings with its id atomically.
	// It fails with core.ErrConflict if any of them was already paid out.
	CreatePayout(ctx context.Context, p Payout, earningIDs []string) error
	GetPayout(ctx context.Context, id string) (*Payout, error)
	ListPayouts(ctx context.Context, driverID string) ([]Payout, error)
	// UpdatePayoutStatus moves a payout from one status to another. It fails
	// with core.ErrConflict when the payout is no longer in from.
	UpdatePayoutStatus(ctx context.Context, id string, from, to PayoutStatus, at time.Time) error
}
