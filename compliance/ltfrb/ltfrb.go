/*
Package ltfrb checks drivers, vehicles and trips against LTFRB rules for
Transport Network Vehicle Services (TNVS).

PURPOSE:
  A TNVS vehicle needs a valid franchise (certificate of public convenience),
  passenger insurance and must not exceed the maximum age; its driver needs a
  valid professional license and the TNVS seminar. Fares may not exceed the
  approved fare matrix. The console registry keeps the documents and the
  checks here produce findings for the compliance dashboard.

CHECKS:
  Vehicle: franchise expired / expiring, insurance missing / expired / expiring,
           year model older than the maximum age
  Driver:  license expired / expiring, non-professional license, no TNVS training
  Trip:    fare above ceiling, vehicle or driver non-compliant

  "Expiring" means within ExpiryWarningDays of the check date.

FARE CEILING:
  (base + per_km * km + per_minute * minutes) * min(surge, surge_cap)

SEE ALSO:
  - insurance.go: Insurance verification records
  - service.go: Registry and checks
*/
package ltfrb

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ops-console/core"
)

const (
	DefaultMaxVehicleAge = 7
	ExpiryWarningDays    = 30
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Finding is one compliance observation.
type Finding struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Result is the outcome of a check.
type Result struct {
	SubjectID string
	Kind      string // "vehicle", "driver", "trip"
	CheckedAt time.Time
	Findings  []Finding
}

// Compliant reports whether no finding is critical.
func (r Result) Compliant() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityCritical {
			return false
		}
	}
	return true
}

// =============================================================================
// REGISTRY RECORDS
// =============================================================================

type VehicleStatus string

const (
	VehicleActive    VehicleStatus = "active"
	VehicleSuspended VehicleStatus = "suspended"
)

type Vehicle struct {
	ID              string
	PlateNumber     string
	CaseNumber      string // franchise case number
	Operator        string
	Make            string
	Model           string
	YearModel       int
	FranchiseExpiry time.Time
	InsuranceExpiry *time.Time
	Status          VehicleStatus
	CreatedAt       time.Time
}

type LicenseType string

const (
	LicenseProfessional    LicenseType = "professional"
	LicenseNonProfessional LicenseType = "non_professional"
)

type Driver struct {
	ID                string
	Name              string
	LicenseNumber     string
	LicenseType       LicenseType
	LicenseExpiry     time.Time
	TrainingCompleted bool
	VehicleID         string
	CreatedAt         time.Time
}

// Trip is the data needed to check a completed trip.
type Trip struct {
	TripID          string
	VehicleID       string
	DriverID        string
	DistanceKm      decimal.Decimal
	DurationMinutes decimal.Decimal
	SurgeMultiplier decimal.Decimal
	FareCharged     core.Money
}

// FareMatrix is the approved TNVS fare structure.
type FareMatrix struct {
	BaseFare  decimal.Decimal
	PerKm     decimal.Decimal
	PerMinute decimal.Decimal
	SurgeCap  decimal.Decimal
}

// DefaultFareMatrix is the sedan TNVS matrix.
var DefaultFareMatrix = FareMatrix{
	BaseFare:  decimal.NewFromInt(40),
	PerKm:     decimal.NewFromInt(15),
	PerMinute: decimal.NewFromInt(2),
	SurgeCap:  decimal.NewFromInt(2),
}

// Ceiling returns the maximum allowed fare for a trip.
func (m FareMatrix) Ceiling(km, minutes, surge decimal.Decimal) core.Money {
	if surge.LessThan(decimal.NewFromInt(1)) {
		surge = decimal.NewFromInt(1)
	}
	if surge.GreaterThan(m.SurgeCap) {
		surge = m.SurgeCap
	}
	base := m.BaseFare.Add(m.PerKm.Mul(km)).Add(m.PerMinute.Mul(minutes))
	return core.Money{Amount: base.Mul(surge).Round(2), Currency: core.DefaultCurrency}
}

// Report summarizes the fleet's compliance.
type Report struct {
	AsOf                 time.Time
	Vehicles             int
	CompliantVehicles    int
	NonCompliantVehicles []Result
	Drivers              int
	CompliantDrivers     int
	NonCompliantDrivers  []Result
	ExpiringSoon         []Result // compliant subjects with warnings
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	SaveVehicle(ctx context.Context, v Vehicle) error
	GetVehicle(ctx context.Context, id string) (*Vehicle, error)
	ListVehicles(ctx context.Context) ([]Vehicle, error)
	SetVehicleInsuranceExpiry(ctx context.Context, id string, expiry time.Time) error

	SaveDriver(ctx context.Context, d Driver) error
	GetDriver(ctx context.Context, id string) (*Driver, error)
	ListDrivers(ctx context.Context) ([]Driver, error)

	SaveInsuranceVerification(ctx context.Context, v InsuranceVerification) error
	ListInsuranceVerifications(ctx context.Context, vehicleID string) ([]InsuranceVerification, error)
}
