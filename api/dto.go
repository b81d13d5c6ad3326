/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain packages from the external API contract the console frontend
  depends on.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - Envelope: Wrapper around every /api response

ENVELOPE:
  {"success": true, "data": ..., "message": "..."}
  {"success": false, "error": "...", "details": ["..."]}

MONEY AND TIME:
  - Amounts are JSON numbers rounded to centavos, currency alongside
  - Calendar dates are "YYYY-MM-DD", instants are RFC 3339 UTC

VALIDATION:
  Request types carry go-playground/validator tags. decodeAndValidate in
  handlers.go turns failures into a 400 envelope listing the fields.

SEE ALSO:
  - handlers.go: Envelope helpers and error mapping
*/
package api

import (
	"time"

	"github.com/warp/ops-console/billing"
	"github.com/warp/ops-console/compliance/bir"
	"github.com/warp/ops-console/compliance/dpa"
	"github.com/warp/ops-console/compliance/ltfrb"
	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/earnings"
	"github.com/warp/ops-console/payments"
	"github.com/warp/ops-console/widgets"
)

// Envelope wraps every /api response.
type Envelope struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
	Details []string `json:"details,omitempty"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

type RecordTransactionRequest struct {
	ID          string  `json:"id"`
	RideID      string  `json:"ride_id" validate:"required"`
	RiderID     string  `json:"rider_id" validate:"required"`
	DriverID    string  `json:"driver_id"`
	Method      string  `json:"method" validate:"required"`
	Status      string  `json:"status"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Currency    string  `json:"currency" validate:"omitempty,oneof=PHP"`
	Provider    string  `json:"provider"`
	ProviderRef string  `json:"provider_ref"`
	CreatedAt   string  `json:"created_at"` // RFC 3339, defaults to now
}

type TransactionDTO struct {
	ID          string        `json:"id"`
	RideID      string        `json:"ride_id"`
	RiderID     string        `json:"rider_id"`
	DriverID    string        `json:"driver_id,omitempty"`
	Method      string        `json:"method"`
	Status      string        `json:"status"`
	Badge       widgets.Badge `json:"badge"`
	Amount      float64       `json:"amount"`
	Currency    string        `json:"currency"`
	Provider    string        `json:"provider,omitempty"`
	ProviderRef string        `json:"provider_ref,omitempty"`
	CreatedAt   string        `json:"created_at"`
	CapturedAt  string        `json:"captured_at,omitempty"`
	Refunds     []RefundDTO   `json:"refunds,omitempty"`
	Receipts    []ReceiptDTO  `json:"receipts,omitempty"`
}

type RequestRefundRequest struct {
	TransactionID string  `json:"transaction_id" validate:"required"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	Reason        string  `json:"reason" validate:"required"`
}

type DecideRefundRequest struct {
	Note string `json:"note"`
}

type RefundDTO struct {
	ID            string        `json:"id"`
	TransactionID string        `json:"transaction_id"`
	Amount        float64       `json:"amount"`
	Currency      string        `json:"currency"`
	Reason        string        `json:"reason"`
	Status        string        `json:"status"`
	Badge         widgets.Badge `json:"badge"`
	RequestedBy   string        `json:"requested_by,omitempty"`
	DecidedBy     string        `json:"decided_by,omitempty"`
	DecisionNote  string        `json:"decision_note,omitempty"`
	CreatedAt     string        `json:"created_at"`
	DecidedAt     string        `json:"decided_at,omitempty"`
}

type SettlementLineRequest struct {
	ProviderRef string  `json:"provider_ref" validate:"required"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	SettledAt   string  `json:"settled_at"`
}

type ReconcileRequest struct {
	Provider string                  `json:"provider" validate:"required"`
	From     string                  `json:"from" validate:"required"`
	To       string                  `json:"to" validate:"required"`
	Lines    []SettlementLineRequest `json:"lines" validate:"dive"`
}

type ReconciliationRunDTO struct {
	ID              string                 `json:"id"`
	Provider        string                 `json:"provider"`
	From            string                 `json:"from"`
	To              string                 `json:"to"`
	Matched         int                    `json:"matched"`
	MissingInternal int                    `json:"missing_internal"`
	MissingProvider int                    `json:"missing_provider"`
	Mismatched      int                    `json:"mismatched"`
	InternalTotal   float64                `json:"internal_total"`
	ProviderTotal   float64                `json:"provider_total"`
	Clean           bool                   `json:"clean"`
	Badge           widgets.Badge          `json:"badge"`
	Discrepancies   []payments.Discrepancy `json:"discrepancies"`
	RunBy           string                 `json:"run_by,omitempty"`
	CreatedAt       string                 `json:"created_at"`
}

// =============================================================================
// BILLING
// =============================================================================

type KPIsDTO struct {
	From             string           `json:"from"`
	To               string           `json:"to"`
	Currency         string           `json:"currency"`
	GrossBookings    float64          `json:"gross_bookings"`
	Refunds          float64          `json:"refunds"`
	NetRevenue       float64          `json:"net_revenue"`
	Commission       float64          `json:"commission"`
	TransactionCount int              `json:"transaction_count"`
	FailedCount      int              `json:"failed_count"`
	SuccessRate      float64          `json:"success_rate"`
	AverageFare      float64          `json:"average_fare"`
	RefundRate       float64          `json:"refund_rate"`
	ByMethod         []MethodTotalDTO `json:"by_method"`
	Daily            []DailyTotalDTO  `json:"daily"`
}

type MethodTotalDTO struct {
	Method string  `json:"method"`
	Count  int     `json:"count"`
	Gross  float64 `json:"gross"`
	Share  float64 `json:"share"`
}

type DailyTotalDTO struct {
	Date    string  `json:"date"`
	Count   int     `json:"count"`
	Gross   float64 `json:"gross"`
	Refunds float64 `json:"refunds"`
}

type ComparisonDTO struct {
	Current     KPIsDTO  `json:"current"`
	Previous    KPIsDTO  `json:"previous"`
	GrossChange *float64 `json:"gross_change"`
	NetChange   *float64 `json:"net_change"`
	CountChange *float64 `json:"count_change"`
}

// =============================================================================
// EARNINGS
// =============================================================================

type RecordEarningRequest struct {
	ID          string  `json:"id"`
	DriverID    string  `json:"driver_id" validate:"required"`
	RideID      string  `json:"ride_id"`
	Type        string  `json:"type" validate:"required"`
	Amount      float64 `json:"amount" validate:"required"`
	Description string  `json:"description"`
	EarnedAt    string  `json:"earned_at"`
}

type EarningDTO struct {
	ID          string  `json:"id"`
	DriverID    string  `json:"driver_id"`
	RideID      string  `json:"ride_id,omitempty"`
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description,omitempty"`
	PayoutID    string  `json:"payout_id,omitempty"`
	EarnedAt    string  `json:"earned_at"`
}

type BreakdownDTO struct {
	DriverID    string         `json:"driver_id"`
	From        string         `json:"from"`
	To          string         `json:"to"`
	Currency    string         `json:"currency"`
	ByType      []TypeTotalDTO `json:"by_type"`
	Gross       float64        `json:"gross"`
	Commission  float64        `json:"commission"`
	Withholding float64        `json:"withholding"`
	Net         float64        `json:"net"`
	Unpaid      float64        `json:"unpaid"`
	TripCount   int            `json:"trip_count"`
	Daily       []DailyNetDTO  `json:"daily"`
}

type TypeTotalDTO struct {
	Type   string  `json:"type"`
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

type DailyNetDTO struct {
	Date  string  `json:"date"`
	Gross float64 `json:"gross"`
	Net   float64 `json:"net"`
}

type DriverTotalDTO struct {
	DriverID  string  `json:"driver_id"`
	Gross     float64 `json:"gross"`
	Net       float64 `json:"net"`
	TripCount int     `json:"trip_count"`
}

type CreatePayoutRequest struct {
	Method string `json:"method" validate:"required"`
	From   string `json:"from"`
	To     string `json:"to"`
}

type PayoutStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type PayoutDTO struct {
	ID           string        `json:"id"`
	DriverID     string        `json:"driver_id"`
	From         string        `json:"from"`
	To           string        `json:"to"`
	Currency     string        `json:"currency"`
	Gross        float64       `json:"gross"`
	Commission   float64       `json:"commission"`
	Withholding  float64       `json:"withholding"`
	Net          float64       `json:"net"`
	EarningCount int           `json:"earning_count"`
	Method       string        `json:"method"`
	Status       string        `json:"status"`
	Badge        widgets.Badge `json:"badge"`
	CreatedAt    string        `json:"created_at"`
	UpdatedAt    string        `json:"updated_at"`
}

// =============================================================================
// COMPLIANCE - BIR
// =============================================================================

type IssueReceiptRequest struct {
	TransactionID string `json:"transaction_id" validate:"required"`
	BuyerName     string `json:"buyer_name"`
	BuyerTIN      string `json:"buyer_tin"`
	TaxType       string `json:"tax_type"`
}

type VoidReceiptRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type ReceiptDTO struct {
	ID            string        `json:"id"`
	Number        string        `json:"number"`
	TransactionID string        `json:"transaction_id"`
	SellerTIN     string        `json:"seller_tin,omitempty"`
	BuyerName     string        `json:"buyer_name,omitempty"`
	BuyerTIN      string        `json:"buyer_tin,omitempty"`
	TaxType       string        `json:"tax_type"`
	Currency      string        `json:"currency"`
	Total         float64       `json:"total"`
	VatableSales  float64       `json:"vatable_sales"`
	VAT           float64       `json:"vat"`
	VATExempt     float64       `json:"vat_exempt"`
	ZeroRated     float64       `json:"zero_rated"`
	Status        string        `json:"status"`
	Badge         widgets.Badge `json:"badge"`
	VoidReason    string        `json:"void_reason,omitempty"`
	IssuedAt      string        `json:"issued_at"`
	VoidedAt      string        `json:"voided_at,omitempty"`
}

type SummaryDTO struct {
	Year         int     `json:"year"`
	Month        int     `json:"month"`
	Issued       int     `json:"issued"`
	Voided       int     `json:"voided"`
	FirstNumber  string  `json:"first_number,omitempty"`
	LastNumber   string  `json:"last_number,omitempty"`
	Currency     string  `json:"currency"`
	VatableSales float64 `json:"vatable_sales"`
	VAT          float64 `json:"vat"`
	VATExempt    float64 `json:"vat_exempt"`
	ZeroRated    float64 `json:"zero_rated"`
	Gross        float64 `json:"gross"`
}

// =============================================================================
// COMPLIANCE - DPA
// =============================================================================

type SubmitDSRRequest struct {
	SubjectID   string `json:"subject_id" validate:"required"`
	SubjectType string `json:"subject_type" validate:"required,oneof=rider driver"`
	Type        string `json:"type" validate:"required"`
	Details     string `json:"details"`
}

type TransitionDSRRequest struct {
	Status     string `json:"status" validate:"required"`
	Resolution string `json:"resolution"`
}

type DSRDTO struct {
	ID          string        `json:"id"`
	SubjectID   string        `json:"subject_id"`
	SubjectType string        `json:"subject_type"`
	Type        string        `json:"type"`
	Status      string        `json:"status"`
	Badge       widgets.Badge `json:"badge"`
	Details     string        `json:"details,omitempty"`
	Resolution  string        `json:"resolution,omitempty"`
	HandledBy   string        `json:"handled_by,omitempty"`
	ReceivedAt  string        `json:"received_at"`
	DueAt       string        `json:"due_at"`
	DaysLeft    int           `json:"days_left"`
	Overdue     bool          `json:"overdue"`
	UpdatedAt   string        `json:"updated_at"`
	CompletedAt string        `json:"completed_at,omitempty"`
}

type ExportDTO struct {
	Request       DSRDTO           `json:"request"`
	GeneratedAt   string           `json:"generated_at"`
	Transactions  []TransactionDTO `json:"transactions"`
	PriorRequests []DSRDTO         `json:"prior_requests"`
}

// =============================================================================
// COMPLIANCE - LTFRB
// =============================================================================

type RegisterVehicleRequest struct {
	ID              string `json:"id"`
	PlateNumber     string `json:"plate_number" validate:"required"`
	CaseNumber      string `json:"case_number" validate:"required"`
	Operator        string `json:"operator"`
	Make            string `json:"make"`
	Model           string `json:"model"`
	YearModel       int    `json:"year_model" validate:"required,gte=1990"`
	FranchiseExpiry string `json:"franchise_expiry" validate:"required"`
	InsuranceExpiry string `json:"insurance_expiry"`
	Status          string `json:"status"`
}

type VehicleDTO struct {
	ID              string    `json:"id"`
	PlateNumber     string    `json:"plate_number"`
	CaseNumber      string    `json:"case_number"`
	Operator        string    `json:"operator,omitempty"`
	Make            string    `json:"make,omitempty"`
	Model           string    `json:"model,omitempty"`
	YearModel       int       `json:"year_model"`
	FranchiseExpiry string    `json:"franchise_expiry"`
	InsuranceExpiry string    `json:"insurance_expiry,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       string    `json:"created_at"`
	Check           *CheckDTO `json:"check,omitempty"`

	Insurance []InsuranceVerificationDTO `json:"insurance,omitempty"`
}

type VerifyInsuranceRequest struct {
	Provider     string `json:"provider" validate:"required"`
	PolicyNumber string `json:"policy_number" validate:"required"`
	CoverageEnd  string `json:"coverage_end" validate:"required"`
}

type InsuranceVerificationDTO struct {
	ID           string `json:"id"`
	VehicleID    string `json:"vehicle_id"`
	Provider     string `json:"provider"`
	PolicyNumber string `json:"policy_number"`
	CoverageEnd  string `json:"coverage_end"`
	Status       string `json:"status"`
	VerifiedBy   string `json:"verified_by,omitempty"`
	VerifiedAt   string `json:"verified_at"`
}

type RegisterDriverRequest struct {
	ID                string `json:"id"`
	Name              string `json:"name" validate:"required"`
	LicenseNumber     string `json:"license_number" validate:"required"`
	LicenseType       string `json:"license_type" validate:"required"`
	LicenseExpiry     string `json:"license_expiry" validate:"required"`
	TrainingCompleted bool   `json:"training_completed"`
	VehicleID         string `json:"vehicle_id"`
}

type DriverDTO struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	LicenseNumber     string    `json:"license_number"`
	LicenseType       string    `json:"license_type"`
	LicenseExpiry     string    `json:"license_expiry"`
	TrainingCompleted bool      `json:"training_completed"`
	VehicleID         string    `json:"vehicle_id,omitempty"`
	CreatedAt         string    `json:"created_at"`
	Check             *CheckDTO `json:"check,omitempty"`
}

type TripCheckRequest struct {
	TripID          string  `json:"trip_id"`
	VehicleID       string  `json:"vehicle_id"`
	DriverID        string  `json:"driver_id"`
	DistanceKm      float64 `json:"distance_km" validate:"gte=0"`
	DurationMinutes float64 `json:"duration_minutes" validate:"gte=0"`
	SurgeMultiplier float64 `json:"surge_multiplier" validate:"gte=0"`
	Fare            float64 `json:"fare" validate:"required,gt=0"`
}

type CheckDTO struct {
	SubjectID string          `json:"subject_id"`
	Kind      string          `json:"kind"`
	CheckedAt string          `json:"checked_at"`
	Compliant bool            `json:"compliant"`
	Badge     widgets.Badge   `json:"badge"`
	Findings  []ltfrb.Finding `json:"findings"`
}

type ReportDTO struct {
	AsOf                 string     `json:"as_of"`
	Vehicles             int        `json:"vehicles"`
	CompliantVehicles    int        `json:"compliant_vehicles"`
	NonCompliantVehicles []CheckDTO `json:"non_compliant_vehicles"`
	Drivers              int        `json:"drivers"`
	CompliantDrivers     int        `json:"compliant_drivers"`
	NonCompliantDrivers  []CheckDTO `json:"non_compliant_drivers"`
	ExpiringSoon         []CheckDTO `json:"expiring_soon"`
}

// =============================================================================
// WIDGETS, AUDIT, SCENARIOS
// =============================================================================

type RaiseAlertRequest struct {
	Severity  string `json:"severity" validate:"required,oneof=info warning critical"`
	Title     string `json:"title" validate:"required"`
	Message   string `json:"message"`
	Link      string `json:"link"`
	DedupeKey string `json:"dedupe_key"`
}

type AlertDTO struct {
	ID        string        `json:"id"`
	Severity  string        `json:"severity"`
	Badge     widgets.Badge `json:"badge"`
	Title     string        `json:"title"`
	Message   string        `json:"message,omitempty"`
	Source    string        `json:"source,omitempty"`
	Link      string        `json:"link,omitempty"`
	CreatedAt string        `json:"created_at"`
	Dismissed bool          `json:"dismissed"`
}

type AuditEntryDTO struct {
	ID      string `json:"id"`
	Actor   string `json:"actor"`
	Action  string `json:"action"`
	Subject string `json:"subject"`
	Detail  string `json:"detail,omitempty"`
	At      string `json:"at"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type SweepResultDTO struct {
	RanAt   string `json:"ran_at"`
	Checked int    `json:"checked"`
	Raised  int    `json:"raised"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func currencyOf(m core.Money) string {
	if m.Currency == "" {
		return core.DefaultCurrency
	}
	return m.Currency
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func toTransactionDTO(tx payments.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          tx.ID,
		RideID:      tx.RideID,
		RiderID:     tx.RiderID,
		DriverID:    tx.DriverID,
		Method:      string(tx.Method),
		Status:      string(tx.Status),
		Badge:       widgets.BadgeFor(widgets.KindTransaction, string(tx.Status)),
		Amount:      tx.Amount.Float64(),
		Currency:    currencyOf(tx.Amount),
		Provider:    tx.Provider,
		ProviderRef: tx.ProviderRef,
		CreatedAt:   formatInstant(tx.CreatedAt),
		CapturedAt:  core.FormatTime(tx.CapturedAt),
	}
}

func toTransactionDTOs(txs []payments.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toRefundDTO(r payments.Refund) RefundDTO {
	return RefundDTO{
		ID:            r.ID,
		TransactionID: r.TransactionID,
		Amount:        r.Amount.Float64(),
		Currency:      currencyOf(r.Amount),
		Reason:        r.Reason,
		Status:        string(r.Status),
		Badge:         widgets.BadgeFor(widgets.KindRefund, string(r.Status)),
		RequestedBy:   r.RequestedBy,
		DecidedBy:     r.DecidedBy,
		DecisionNote:  r.DecisionNote,
		CreatedAt:     formatInstant(r.CreatedAt),
		DecidedAt:     core.FormatTime(r.DecidedAt),
	}
}

func toRefundDTOs(refunds []payments.Refund) []RefundDTO {
	dtos := make([]RefundDTO, len(refunds))
	for i, r := range refunds {
		dtos[i] = toRefundDTO(r)
	}
	return dtos
}

func toRunDTO(run payments.ReconciliationRun) ReconciliationRunDTO {
	status := "compliant"
	if !run.Clean() {
		status = "non_compliant"
	}
	discrepancies := run.Discrepancies
	if discrepancies == nil {
		discrepancies = []payments.Discrepancy{}
	}
	return ReconciliationRunDTO{
		ID:              run.ID,
		Provider:        run.Provider,
		From:            core.FormatDate(run.Period.Start),
		To:              core.FormatDate(run.Period.End),
		Matched:         run.Matched,
		MissingInternal: run.MissingInternal,
		MissingProvider: run.MissingProvider,
		Mismatched:      run.Mismatched,
		InternalTotal:   run.InternalTotal.Float64(),
		ProviderTotal:   run.ProviderTotal.Float64(),
		Clean:           run.Clean(),
		Badge:           widgets.BadgeFor(widgets.KindCompliance, status),
		Discrepancies:   discrepancies,
		RunBy:           run.RunBy,
		CreatedAt:       formatInstant(run.CreatedAt),
	}
}

func toKPIsDTO(k billing.KPIs) KPIsDTO {
	dto := KPIsDTO{
		From:             core.FormatDate(k.Period.Start),
		To:               core.FormatDate(k.Period.End),
		Currency:         currencyOf(k.GrossBookings),
		GrossBookings:    k.GrossBookings.Float64(),
		Refunds:          k.Refunds.Float64(),
		NetRevenue:       k.NetRevenue.Float64(),
		Commission:       k.Commission.Float64(),
		TransactionCount: k.TransactionCount,
		FailedCount:      k.FailedCount,
		SuccessRate:      k.SuccessRate,
		AverageFare:      k.AverageFare.Float64(),
		RefundRate:       k.RefundRate,
		ByMethod:         make([]MethodTotalDTO, len(k.ByMethod)),
		Daily:            make([]DailyTotalDTO, len(k.Daily)),
	}
	for i, m := range k.ByMethod {
		dto.ByMethod[i] = MethodTotalDTO{Method: string(m.Method), Count: m.Count, Gross: m.Gross.Float64(), Share: m.Share}
	}
	for i, d := range k.Daily {
		dto.Daily[i] = DailyTotalDTO{Date: core.FormatDate(d.Date), Count: d.Count, Gross: d.Gross.Float64(), Refunds: d.Refunds.Float64()}
	}
	return dto
}

func toEarningDTO(e earnings.Earning) EarningDTO {
	return EarningDTO{
		ID:          e.ID,
		DriverID:    e.DriverID,
		RideID:      e.RideID,
		Type:        string(e.Type),
		Amount:      e.Amount.Float64(),
		Currency:    currencyOf(e.Amount),
		Description: e.Description,
		PayoutID:    e.PayoutID,
		EarnedAt:    formatInstant(e.EarnedAt),
	}
}

func toBreakdownDTO(b earnings.Breakdown) BreakdownDTO {
	dto := BreakdownDTO{
		DriverID:    b.DriverID,
		From:        core.FormatDate(b.Period.Start),
		To:          core.FormatDate(b.Period.End),
		Currency:    currencyOf(b.Gross),
		ByType:      make([]TypeTotalDTO, len(b.ByType)),
		Gross:       b.Gross.Float64(),
		Commission:  b.Commission.Float64(),
		Withholding: b.Withholding.Float64(),
		Net:         b.Net.Float64(),
		Unpaid:      b.Unpaid.Float64(),
		TripCount:   b.TripCount,
		Daily:       make([]DailyNetDTO, len(b.Daily)),
	}
	for i, t := range b.ByType {
		dto.ByType[i] = TypeTotalDTO{Type: string(t.Type), Count: t.Count, Amount: t.Amount.Float64()}
	}
	for i, d := range b.Daily {
		dto.Daily[i] = DailyNetDTO{Date: core.FormatDate(d.Date), Gross: d.Gross.Float64(), Net: d.Net.Float64()}
	}
	return dto
}

func toPayoutDTO(p earnings.Payout) PayoutDTO {
	return PayoutDTO{
		ID:           p.ID,
		DriverID:     p.DriverID,
		From:         core.FormatDate(p.Period.Start),
		To:           core.FormatDate(p.Period.End),
		Currency:     currencyOf(p.Net),
		Gross:        p.Gross.Float64(),
		Commission:   p.Commission.Float64(),
		Withholding:  p.Withholding.Float64(),
		Net:          p.Net.Float64(),
		EarningCount: p.EarningCount,
		Method:       string(p.Method),
		Status:       string(p.Status),
		Badge:        widgets.BadgeFor(widgets.KindPayout, string(p.Status)),
		CreatedAt:    formatInstant(p.CreatedAt),
		UpdatedAt:    formatInstant(p.UpdatedAt),
	}
}

func toReceiptDTO(r bir.Receipt) ReceiptDTO {
	return ReceiptDTO{
		ID:            r.ID,
		Number:        r.Number,
		TransactionID: r.TransactionID,
		SellerTIN:     r.SellerTIN,
		BuyerName:     r.BuyerName,
		BuyerTIN:      r.BuyerTIN,
		TaxType:       string(r.TaxType),
		Currency:      currencyOf(r.Total),
		Total:         r.Total.Float64(),
		VatableSales:  r.VatableSales.Float64(),
		VAT:           r.VAT.Float64(),
		VATExempt:     r.VATExempt.Float64(),
		ZeroRated:     r.ZeroRated.Float64(),
		Status:        string(r.Status),
		Badge:         widgets.BadgeFor(widgets.KindReceipt, string(r.Status)),
		VoidReason:    r.VoidReason,
		IssuedAt:      formatInstant(r.IssuedAt),
		VoidedAt:      core.FormatTime(r.VoidedAt),
	}
}

func toSummaryDTO(s bir.Summary) SummaryDTO {
	return SummaryDTO{
		Year:         s.Year,
		Month:        int(s.Month),
		Issued:       s.Issued,
		Voided:       s.Voided,
		FirstNumber:  s.FirstNumber,
		LastNumber:   s.LastNumber,
		Currency:     currencyOf(s.Gross),
		VatableSales: s.VatableSales.Float64(),
		VAT:          s.VAT.Float64(),
		VATExempt:    s.VATExempt.Float64(),
		ZeroRated:    s.ZeroRated.Float64(),
		Gross:        s.Gross.Float64(),
	}
}

func toDSRDTO(r dpa.Request, now time.Time) DSRDTO {
	status := string(r.Status)
	overdue := r.Overdue(now)
	badge := widgets.BadgeFor(widgets.KindDSR, status)
	if overdue {
		badge = widgets.BadgeFor(widgets.KindDSR, "overdue")
	}
	return DSRDTO{
		ID:          r.ID,
		SubjectID:   r.SubjectID,
		SubjectType: string(r.SubjectType),
		Type:        string(r.Type),
		Status:      status,
		Badge:       badge,
		Details:     r.Details,
		Resolution:  r.Resolution,
		HandledBy:   r.HandledBy,
		ReceivedAt:  formatInstant(r.ReceivedAt),
		DueAt:       formatInstant(r.DueAt),
		DaysLeft:    r.DaysLeft(now),
		Overdue:     overdue,
		UpdatedAt:   formatInstant(r.UpdatedAt),
		CompletedAt: core.FormatTime(r.CompletedAt),
	}
}

func toDSRDTOs(reqs []dpa.Request, now time.Time) []DSRDTO {
	dtos := make([]DSRDTO, len(reqs))
	for i, r := range reqs {
		dtos[i] = toDSRDTO(r, now)
	}
	return dtos
}

func toVehicleDTO(v ltfrb.Vehicle) VehicleDTO {
	dto := VehicleDTO{
		ID:              v.ID,
		PlateNumber:     v.PlateNumber,
		CaseNumber:      v.CaseNumber,
		Operator:        v.Operator,
		Make:            v.Make,
		Model:           v.Model,
		YearModel:       v.YearModel,
		FranchiseExpiry: core.FormatDate(v.FranchiseExpiry),
		Status:          string(v.Status),
		CreatedAt:       formatInstant(v.CreatedAt),
	}
	if v.InsuranceExpiry != nil {
		dto.InsuranceExpiry = core.FormatDate(*v.InsuranceExpiry)
	}
	return dto
}

func toInsuranceDTO(v ltfrb.InsuranceVerification) InsuranceVerificationDTO {
	return InsuranceVerificationDTO{
		ID:           v.ID,
		VehicleID:    v.VehicleID,
		Provider:     v.Provider,
		PolicyNumber: v.PolicyNumber,
		CoverageEnd:  core.FormatDate(v.CoverageEnd),
		Status:       string(v.Status),
		VerifiedBy:   v.VerifiedBy,
		VerifiedAt:   formatInstant(v.VerifiedAt),
	}
}

func toDriverDTO(d ltfrb.Driver) DriverDTO {
	return DriverDTO{
		ID:                d.ID,
		Name:              d.Name,
		LicenseNumber:     d.LicenseNumber,
		LicenseType:       string(d.LicenseType),
		LicenseExpiry:     core.FormatDate(d.LicenseExpiry),
		TrainingCompleted: d.TrainingCompleted,
		VehicleID:         d.VehicleID,
		CreatedAt:         formatInstant(d.CreatedAt),
	}
}

func toCheckDTO(r ltfrb.Result) CheckDTO {
	status := "compliant"
	switch {
	case !r.Compliant():
		status = "non_compliant"
	case len(r.Findings) > 0:
		status = "expiring"
	}
	findings := r.Findings
	if findings == nil {
		findings = []ltfrb.Finding{}
	}
	return CheckDTO{
		SubjectID: r.SubjectID,
		Kind:      r.Kind,
		CheckedAt: formatInstant(r.CheckedAt),
		Compliant: r.Compliant(),
		Badge:     widgets.BadgeFor(widgets.KindCompliance, status),
		Findings:  findings,
	}
}

func toCheckDTOs(results []ltfrb.Result) []CheckDTO {
	dtos := make([]CheckDTO, len(results))
	for i, r := range results {
		dtos[i] = toCheckDTO(r)
	}
	return dtos
}

func toAlertDTO(a widgets.Alert) AlertDTO {
	return AlertDTO{
		ID:        a.ID,
		Severity:  string(a.Severity),
		Badge:     widgets.BadgeFor(widgets.KindCompliance, string(a.Severity)),
		Title:     a.Title,
		Message:   a.Message,
		Source:    a.Source,
		Link:      a.Link,
		CreatedAt: formatInstant(a.CreatedAt),
		Dismissed: a.DismissedAt != nil,
	}
}
