package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warp/ops-console/compliance/ltfrb"
	"github.com/warp/ops-console/core"
)

// =============================================================================
// VEHICLES
// =============================================================================

const vehicleColumns = `id, plate_number, case_number, operator, make, model, year_model,
	franchise_expiry, insurance_expiry, status, created_at`

// SaveVehicle inserts or updates a vehicle. Plate numbers are unique.
func (s *Store) SaveVehicle(ctx context.Context, v ltfrb.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var insurance sql.NullString
	if v.InsuranceExpiry != nil {
		insurance = sql.NullString{String: formatDate(*v.InsuranceExpiry), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vehicles (`+vehicleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			plate_number = excluded.plate_number,
			case_number = excluded.case_number,
			operator = excluded.operator,
			make = excluded.make,
			model = excluded.model,
			year_model = excluded.year_model,
			franchise_expiry = excluded.franchise_expiry,
			insurance_expiry = excluded.insurance_expiry,
			status = excluded.status`,
		v.ID, v.PlateNumber, v.CaseNumber, nullString(v.Operator), nullString(v.Make), nullString(v.Model),
		v.YearModel, formatDate(v.FranchiseExpiry), insurance, string(v.Status), formatTime(v.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("plate %s is already registered: %w", v.PlateNumber, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to save vehicle: %w", err)
	}
	return nil
}

// GetVehicle retrieves a vehicle by ID.
func (s *Store) GetVehicle(ctx context.Context, id string) (*ltfrb.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = ?`, id)
	v, err := scanVehicle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return v, nil
}

// ListVehicles returns every vehicle ordered by plate.
func (s *Store) ListVehicles(ctx context.Context) ([]ltfrb.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles ORDER BY plate_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	defer rows.Close()

	var result []ltfrb.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		result = append(result, *v)
	}
	return result, rows.Err()
}

// SetVehicleInsuranceExpiry records the coverage end of a verified policy.
func (s *Store) SetVehicleInsuranceExpiry(ctx context.Context, id string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE vehicles SET insurance_expiry = ? WHERE id = ?`, formatDate(expiry), id)
	if err != nil {
		return fmt.Errorf("failed to update insurance expiry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("vehicle", id)
	}
	return nil
}

func scanVehicle(row scanner) (*ltfrb.Vehicle, error) {
	var (
		v                   ltfrb.Vehicle
		operator, mk, model sql.NullString
		franchise, status   string
		insurance           sql.NullString
		createdAt           string
	)
	err := row.Scan(&v.ID, &v.PlateNumber, &v.CaseNumber, &operator, &mk, &model, &v.YearModel,
		&franchise, &insurance, &status, &createdAt)
	if err != nil {
		return nil, err
	}
	v.Operator = operator.String
	v.Make = mk.String
	v.Model = model.String
	v.FranchiseExpiry = parseDate(franchise)
	if insurance.Valid && insurance.String != "" {
		t := parseDate(insurance.String)
		v.InsuranceExpiry = &t
	}
	v.Status = ltfrb.VehicleStatus(status)
	v.CreatedAt = parseTime(createdAt)
	return &v, nil
}

// =============================================================================
// DRIVERS
// =============================================================================

const driverColumns = `id, name, license_number, license_type, license_expiry,
	training_completed, vehicle_id, created_at`

// SaveDriver inserts or updates a driver. License numbers are unique.
func (s *Store) SaveDriver(ctx context.Context, d ltfrb.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drivers (`+driverColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			license_number = excluded.license_number,
			license_type = excluded.license_type,
			license_expiry = excluded.license_expiry,
			training_completed = excluded.training_completed,
			vehicle_id = excluded.vehicle_id`,
		d.ID, d.Name, d.LicenseNumber, string(d.LicenseType), formatDate(d.LicenseExpiry),
		d.TrainingCompleted, nullString(d.VehicleID), formatTime(d.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("license %s is already registered: %w", d.LicenseNumber, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to save driver: %w", err)
	}
	return nil
}

// GetDriver retrieves a driver by ID.
func (s *Store) GetDriver(ctx context.Context, id string) (*ltfrb.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = ?`, id)
	d, err := scanDriver(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get driver: %w", err)
	}
	return d, nil
}

// ListDrivers returns every driver ordered by name.
func (s *Store) ListDrivers(ctx context.Context) ([]ltfrb.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+driverColumns+` FROM drivers ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", err)
	}
	defer rows.Close()

	var result []ltfrb.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan driver: %w", err)
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func scanDriver(row scanner) (*ltfrb.Driver, error) {
	var (
		d                          ltfrb.Driver
		licenseType, licenseExpiry string
		vehicleID                  sql.NullString
		createdAt                  string
	)
	err := row.Scan(&d.ID, &d.Name, &d.LicenseNumber, &licenseType, &licenseExpiry,
		&d.TrainingCompleted, &vehicleID, &createdAt)
	if err != nil {
		return nil, err
	}
	d.LicenseType = ltfrb.LicenseType(licenseType)
	d.LicenseExpiry = parseDate(licenseExpiry)
	d.VehicleID = vehicleID.String
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}

// =============================================================================
// INSURANCE VERIFICATIONS
// =============================================================================

// SaveInsuranceVerification appends a verification record.
func (s *Store) SaveInsuranceVerification(ctx context.Context, v ltfrb.InsuranceVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO insurance_verifications
			(id, vehicle_id, provider, policy_number, coverage_end, status, verified_by, verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.VehicleID, v.Provider, v.PolicyNumber, formatDate(v.CoverageEnd),
		string(v.Status), nullString(v.VerifiedBy), formatTime(v.VerifiedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save insurance verification: %w", err)
	}
	return nil
}

// ListInsuranceVerifications returns a vehicle's verifications, newest first.
func (s *Store) ListInsuranceVerifications(ctx context.Context, vehicleID string) ([]ltfrb.InsuranceVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vehicle_id, provider, policy_number, coverage_end, status, verified_by, verified_at
		FROM insurance_verifications
		WHERE vehicle_id = ?
		ORDER BY verified_at DESC, id`, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list insurance verifications: %w", err)
	}
	defer rows.Close()

	var result []ltfrb.InsuranceVerification
	for rows.Next() {
		var (
			v                   ltfrb.InsuranceVerification
			coverageEnd, status string
			verifiedBy          sql.NullString
			verifiedAt          string
		)
		if err := rows.Scan(&v.ID, &v.VehicleID, &v.Provider, &v.PolicyNumber,
			&coverageEnd, &status, &verifiedBy, &verifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan insurance verification: %w", err)
		}
		v.CoverageEnd = parseDate(coverageEnd)
		v.Status = ltfrb.InsuranceStatus(status)
		v.VerifiedBy = verifiedBy.String
		v.VerifiedAt = parseTime(verifiedAt)
		result = append(result, v)
	}
	return result, rows.Err()
}
