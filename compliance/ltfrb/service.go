package ltfrb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/ops-console/core"
)

type Options struct {
	MaxVehicleAge int
	Fares         FareMatrix
}

type Service struct {
	store         Store
	maxVehicleAge int
	fares         FareMatrix
	audit         core.AuditLog
	log           *zap.Logger
	now           func() time.Time
}

func NewService(store Store, opts Options, audit core.AuditLog, log *zap.Logger) *Service {
	if opts.MaxVehicleAge <= 0 {
		opts.MaxVehicleAge = DefaultMaxVehicleAge
	}
	if opts.Fares.BaseFare.IsZero() && opts.Fares.PerKm.IsZero() {
		opts.Fares = DefaultFareMatrix
	}
	return &Service{
		store:         store,
		maxVehicleAge: opts.MaxVehicleAge,
		fares:         opts.Fares,
		audit:         audit,
		log:           log.Named("ltfrb"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// MaxVehicleAge is the configured age limit in years.
func (s *Service) MaxVehicleAge() int { return s.maxVehicleAge }

// =============================================================================
// REGISTRY
// =============================================================================

// RegisterVehicle adds or replaces a vehicle record.
func (s *Service) RegisterVehicle(ctx context.Context, v Vehicle) (*Vehicle, error) {
	var missing []string
	if v.PlateNumber == "" {
		missing = append(missing, "plate_number")
	}
	if v.CaseNumber == "" {
		missing = append(missing, "case_number")
	}
	if v.YearModel == 0 {
		missing = append(missing, "year_model")
	}
	if v.FranchiseExpiry.IsZero() {
		missing = append(missing, "franchise_expiry")
	}
	if len(missing) > 0 {
		return nil, core.Missing(missing...)
	}
	v.PlateNumber = strings.ToUpper(strings.TrimSpace(v.PlateNumber))
	if v.ID == "" {
		v.ID = core.NewID("veh")
	}
	if v.Status == "" {
		v.Status = VehicleActive
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now()
	}
	if err := s.store.SaveVehicle(ctx, v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Service) GetVehicle(ctx context.Context, id string) (*Vehicle, error) {
	v, err := s.store.GetVehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, core.NotFound("vehicle", id)
	}
	return v, nil
}

func (s *Service) ListVehicles(ctx context.Context) ([]Vehicle, error) {
	return s.store.ListVehicles(ctx)
}

// RegisterDriver adds or replaces a driver record.
func (s *Service) RegisterDriver(ctx context.Context, d Driver) (*Driver, error) {
	var missing []string
	if d.Name == "" {
		missing = append(missing, "name")
	}
	if d.LicenseNumber == "" {
		missing = append(missing, "license_number")
	}
	if d.LicenseExpiry.IsZero() {
		missing = append(missing, "license_expiry")
	}
	if len(missing) > 0 {
		return nil, core.Missing(missing...)
	}
	if d.LicenseType == "" {
		d.LicenseType = LicenseProfessional
	}
	if d.LicenseType != LicenseProfessional && d.LicenseType != LicenseNonProfessional {
		return nil, core.Invalid("license_type must be professional or non_professional")
	}
	if d.ID == "" {
		d.ID = core.NewID("drv")
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	if err := s.store.SaveDriver(ctx, d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Service) GetDriver(ctx context.Context, id string) (*Driver, error) {
	d, err := s.store.GetDriver(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, core.NotFound("driver", id)
	}
	return d, nil
}

func (s *Service) ListDrivers(ctx context.Context) ([]Driver, error) {
	return s.store.ListDrivers(ctx)
}

// =============================================================================
// INSURANCE
// =============================================================================

// VerifyInsurance records a policy check. A policy whose coverage already ended is
// recorded as expired and does not update the vehicle.
func (s *Service) VerifyInsurance(ctx context.Context, vehicleID, provider, policyNumber string, coverageEnd time.Time, actor string) (*InsuranceVerification, error) {
	var missing []string
	if vehicleID == "" {
		missing = append(missing, "vehicle_id")
	}
	if provider == "" {
		missing = append(missing, "provider")
	}
	if policyNumber == "" {
		missing = append(missing, "policy_number")
	}
	if coverageEnd.IsZero() {
		missing = append(missing, "coverage_end")
	}
	if len(missing) > 0 {
		return nil, core.Missing(missing...)
	}
	if _, err := s.GetVehicle(ctx, vehicleID); err != nil {
		return nil, err
	}

	now := s.now()
	v := InsuranceVerification{
		ID:           core.NewID("ins"),
		VehicleID:    vehicleID,
		Provider:     provider,
		PolicyNumber: policyNumber,
		CoverageEnd:  core.Day(coverageEnd),
		Status:       InsuranceVerified,
		VerifiedBy:   actor,
		VerifiedAt:   now,
	}
	if v.CoverageEnd.Before(core.Day(now)) {
		v.Status = InsuranceExpired
	}
	if err := s.store.SaveInsuranceVerification(ctx, v); err != nil {
		return nil, err
	}
	if v.Status == InsuranceVerified {
		if err := s.store.SetVehicleInsuranceExpiry(ctx, vehicleID, v.CoverageEnd); err != nil {
			return nil, err
		}
	}

	if err := core.Audit(ctx, s.audit, actor, core.AuditInsuranceVerified, vehicleID,
		fmt.Sprintf("%s %s until %s: %s", provider, policyNumber, core.FormatDate(v.CoverageEnd), v.Status)); err != nil {
		s.log.Error("audit append failed", zap.Error(err))
	}
	return &v, nil
}

// InsuranceHistory lists a vehicle's verifications, newest first.
func (s *Service) InsuranceHistory(ctx context.Context, vehicleID string) ([]InsuranceVerification, error) {
	return s.store.ListInsuranceVerifications(ctx, vehicleID)
}

// =============================================================================
// CHECKS
// =============================================================================

// CheckVehicle evaluates a registered vehicle as of a date.
func (s *Service) CheckVehicle(ctx context.Context, id string, asOf time.Time) (*Result, error) {
	v, err := s.GetVehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	r := EvaluateVehicle(*v, asOf, s.maxVehicleAge)
	return &r, nil
}

// CheckDriver evaluates a registered driver as of a date.
func (s *Service) CheckDriver(ctx context.Context, id string, asOf time.Time) (*Result, error) {
	d, err := s.GetDriver(ctx, id)
	if err != nil {
		return nil, err
	}
	r := EvaluateDriver(*d, asOf)
	return &r, nil
}

// CheckTrip evaluates a completed trip's fare and the compliance of its vehicle and driver.
func (s *Service) CheckTrip(ctx context.Context, t Trip) (*Result, error) {
	var missing []string
	if t.VehicleID == "" {
		missing = append(missing, "vehicle_id")
	}
	if t.DriverID == "" {
		missing = append(missing, "driver_id")
	}
	if len(missing) > 0 {
		return nil, core.Missing(missing...)
	}
	if t.DistanceKm.IsNegative() || t.DurationMinutes.IsNegative() {
		return nil, core.Invalid("distance and duration must not be negative")
	}

	now := s.now()
	r := Result{SubjectID: t.TripID, Kind: "trip", CheckedAt: now}

	ceiling := s.fares.Ceiling(t.DistanceKm, t.DurationMinutes, t.SurgeMultiplier)
	if t.FareCharged.GreaterThan(ceiling) {
		r.Findings = append(r.Findings, Finding{
			Code:     "fare_above_ceiling",
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("fare %s exceeds allowed %s", t.FareCharged.Round2(), ceiling),
		})
	}
	if t.SurgeMultiplier.GreaterThan(s.fares.SurgeCap) {
		r.Findings = append(r.Findings, Finding{
			Code:     "surge_above_cap",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("surge %s exceeds cap %s", t.SurgeMultiplier, s.fares.SurgeCap),
		})
	}

	vr, err := s.CheckVehicle(ctx, t.VehicleID, now)
	if err != nil {
		return nil, err
	}
	if !vr.Compliant() {
		r.Findings = append(r.Findings, Finding{Code: "vehicle_non_compliant", Severity: SeverityCritical,
			Message: "vehicle " + t.VehicleID + " is not compliant"})
	}
	dr, err := s.CheckDriver(ctx, t.DriverID, now)
	if err != nil {
		return nil, err
	}
	if !dr.Compliant() {
		r.Findings = append(r.Findings, Finding{Code: "driver_non_compliant", Severity: SeverityCritical,
			Message: "driver " + t.DriverID + " is not compliant"})
	}
	return &r, nil
}

// Report checks the whole registry.
func (s *Service) Report(ctx context.Context, asOf time.Time) (*Report, error) {
	vehicles, err := s.store.ListVehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	drivers, err := s.store.ListDrivers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", err)
	}

	rep := &Report{AsOf: core.Day(asOf), Vehicles: len(vehicles), Drivers: len(drivers)}
	for _, v := range vehicles {
		r := EvaluateVehicle(v, asOf, s.maxVehicleAge)
		switch {
		case !r.Compliant():
			rep.NonCompliantVehicles = append(rep.NonCompliantVehicles, r)
		case len(r.Findings) > 0:
			rep.CompliantVehicles++
			rep.ExpiringSoon = append(rep.ExpiringSoon, r)
		default:
			rep.CompliantVehicles++
		}
	}
	for _, d := range drivers {
		r := EvaluateDriver(d, asOf)
		switch {
		case !r.Compliant():
			rep.NonCompliantDrivers = append(rep.NonCompliantDrivers, r)
		case len(r.Findings) > 0:
			rep.CompliantDrivers++
			rep.ExpiringSoon = append(rep.ExpiringSoon, r)
		default:
			rep.CompliantDrivers++
		}
	}
	return rep, nil
}

// =============================================================================
// RULES
// =============================================================================

// EvaluateVehicle applies the vehicle rules.
func EvaluateVehicle(v Vehicle, asOf time.Time, maxAge int) Result {
	r := Result{SubjectID: v.ID, Kind: "vehicle", CheckedAt: asOf}

	if v.Status == VehicleSuspended {
		r.Findings = append(r.Findings, Finding{Code: "vehicle_suspended", Severity: SeverityCritical,
			Message: "vehicle " + v.PlateNumber + " is suspended"})
	}
	if f, ok := expiryFinding("franchise", v.FranchiseExpiry, asOf); ok {
		r.Findings = append(r.Findings, f)
	}
	if v.InsuranceExpiry == nil {
		r.Findings = append(r.Findings, Finding{Code: "insurance_missing", Severity: SeverityCritical,
			Message: "no verified passenger insurance on file"})
	} else if f, ok := expiryFinding("insurance", *v.InsuranceExpiry, asOf); ok {
		r.Findings = append(r.Findings, f)
	}
	if age := asOf.Year() - v.YearModel; age > maxAge {
		r.Findings = append(r.Findings, Finding{Code: "vehicle_too_old", Severity: SeverityCritical,
			Message: fmt.Sprintf("year model %d is %d years old; maximum is %d", v.YearModel, age, maxAge)})
	}
	return r
}

// EvaluateDriver applies the driver rules.
func EvaluateDriver(d Driver, asOf time.Time) Result {
	r := Result{SubjectID: d.ID, Kind: "driver", CheckedAt: asOf}

	if f, ok := expiryFinding("license", d.LicenseExpiry, asOf); ok {
		r.Findings = append(r.Findings, f)
	}
	if d.LicenseType != LicenseProfessional {
		r.Findings = append(r.Findings, Finding{Code: "license_not_professional", Severity: SeverityCritical,
			Message: "TNVS drivers need a professional license"})
	}
	if !d.TrainingCompleted {
		r.Findings = append(r.Findings, Finding{Code: "training_missing", Severity: SeverityWarning,
			Message: "TNVS driver seminar not completed"})
	}
	return r
}

// expiryFinding reports an expired (critical) or soon-expiring (warning) document.
func expiryFinding(doc string, expiry, asOf time.Time) (Finding, bool) {
	days := core.DaysBetween(asOf, expiry)
	switch {
	case days < 0:
		return Finding{Code: doc + "_expired", Severity: SeverityCritical,
			Message: fmt.Sprintf("%s expired on %s", doc, core.FormatDate(expiry))}, true
	case days <= ExpiryWarningDays:
		return Finding{Code: doc + "_expiring", Severity: SeverityWarning,
			Message: fmt.Sprintf("%s expires in %d days (%s)", doc, days, core.FormatDate(expiry))}, true
	}
	return Finding{}, false
}
