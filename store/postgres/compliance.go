package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/warp/ops-console/compliance/bir"
	"github.com/warp/ops-console/compliance/dpa"
	"github.com/warp/ops-console/compliance/ltfrb"
	"github.com/warp/ops-console/core"
)

// =============================================================================
// BIR RECEIPTS
// =============================================================================

const receiptColumns = `id, number, series, seq, transaction_id, seller_tin, buyer_name, buyer_tin,
	tax_type, total::text, vatable_sales::text, vat::text, vat_exempt::text, zero_rated::text,
	currency, status, void_reason, issued_at, voided_at`

func (s *Store) IssueReceipt(ctx context.Context, r *bir.Receipt) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var existing string
	err = tx.QueryRow(ctx,
		`SELECT number FROM receipts WHERE transaction_id = $1 AND status = $2`,
		r.TransactionID, string(bir.StatusIssued)).Scan(&existing)
	if err == nil {
		return fmt.Errorf("transaction %s already has receipt %s: %w", r.TransactionID, existing, core.ErrConflict)
	}
	if !isNoRows(err) {
		return fmt.Errorf("failed to check existing receipt: %w", err)
	}

	if err := tx.QueryRow(ctx, `
		INSERT INTO receipt_series (series, last_seq) VALUES ($1, 1)
		ON CONFLICT (series) DO UPDATE SET last_seq = receipt_series.last_seq + 1
		RETURNING last_seq`, r.Series).Scan(&r.Sequence); err != nil {
		return fmt.Errorf("failed to allocate receipt number: %w", err)
	}
	r.Number = bir.FormatNumber(r.Series, r.Sequence)

	_, err = tx.Exec(ctx, `
		INSERT INTO receipts (id, number, series, seq, transaction_id, seller_tin, buyer_name, buyer_tin,
			tax_type, total, vatable_sales, vat, vat_exempt, zero_rated, currency, status,
			void_reason, issued_at, voided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		r.ID, r.Number, r.Series, r.Sequence, r.TransactionID,
		nullable(r.SellerTIN), nullable(r.BuyerName), nullable(r.BuyerTIN),
		string(r.TaxType), r.Total.Amount.String(), r.VatableSales.Amount.String(), r.VAT.Amount.String(),
		r.VATExempt.Amount.String(), r.ZeroRated.Amount.String(), currencyOf(r.Total), string(r.Status),
		nullable(r.VoidReason), r.IssuedAt, r.VoidedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("receipt for transaction %s: %w", r.TransactionID, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) GetReceipt(ctx context.Context, id string) (*bir.Receipt, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1`, id)
	r, err := scanReceipt(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return r, nil
}

func (s *Store) ListReceipts(ctx context.Context, filter bir.ReceiptFilter) ([]bir.Receipt, error) {
	var w where
	if filter.Period != nil {
		from, to := filter.Period.Bounds()
		w.add("issued_at >= ? AND issued_at < ?", from, to)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if filter.TransactionID != "" {
		w.add("transaction_id = ?", filter.TransactionID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+receiptColumns+` FROM receipts`+w.String()+` ORDER BY series, seq`+limitClause(filter.Limit),
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var result []bir.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating receipt rows: %w", err)
	}
	return result, nil
}

func (s *Store) VoidReceipt(ctx context.Context, id, reason string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE receipts SET status = $1, void_reason = $2, voided_at = $3 WHERE id = $4 AND status = $5`,
		string(bir.StatusVoid), reason, at, id, string(bir.StatusIssued))
	if err != nil {
		return fmt.Errorf("failed to void receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("receipt %s is not issued: %w", id, core.ErrConflict)
	}
	return nil
}

func scanReceipt(row pgx.Row) (*bir.Receipt, error) {
	var (
		r                                   bir.Receipt
		sellerTIN, buyerName, buyerTIN      *string
		taxType, total, vatable, vat        string
		exempt, zeroRated, currency, status string
		voidReason                          *string
	)
	err := row.Scan(&r.ID, &r.Number, &r.Series, &r.Sequence, &r.TransactionID,
		&sellerTIN, &buyerName, &buyerTIN,
		&taxType, &total, &vatable, &vat, &exempt, &zeroRated, &currency, &status,
		&voidReason, &r.IssuedAt, &r.VoidedAt)
	if err != nil {
		return nil, err
	}
	r.SellerTIN = deref(sellerTIN)
	r.BuyerName = deref(buyerName)
	r.BuyerTIN = deref(buyerTIN)
	r.TaxType = bir.TaxType(taxType)
	r.Total = parseMoney(total, currency)
	r.VatableSales = parseMoney(vatable, currency)
	r.VAT = parseMoney(vat, currency)
	r.VATExempt = parseMoney(exempt, currency)
	r.ZeroRated = parseMoney(zeroRated, currency)
	r.Status = bir.Status(status)
	r.VoidReason = deref(voidReason)
	r.IssuedAt = r.IssuedAt.UTC()
	r.VoidedAt = utcPtr(r.VoidedAt)
	return &r, nil
}

// =============================================================================
// DPA SUBJECT REQUESTS
// =============================================================================

const subjectRequestColumns = `id, subject_id, subject_type, type, status, details, resolution,
	handled_by, received_at, due_at, updated_at, completed_at`

func (s *Store) SaveSubjectRequest(ctx context.Context, r dpa.Request) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subject_requests (`+subjectRequestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			details = EXCLUDED.details,
			resolution = EXCLUDED.resolution,
			handled_by = EXCLUDED.handled_by,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at`,
		r.ID, r.SubjectID, string(r.SubjectType), string(r.Type), string(r.Status),
		nullable(r.Details), nullable(r.Resolution), nullable(r.HandledBy),
		r.ReceivedAt, r.DueAt, r.UpdatedAt, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save subject request: %w", err)
	}
	return nil
}

func (s *Store) UpdateSubjectRequest(ctx context.Context, r dpa.Request, from dpa.Status) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subject_requests
		SET status = $1, resolution = $2, handled_by = $3, updated_at = $4, completed_at = $5
		WHERE id = $6 AND status = $7`,
		string(r.Status), nullable(r.Resolution), nullable(r.HandledBy), r.UpdatedAt, r.CompletedAt,
		r.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update subject request: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM subject_requests WHERE id = $1`, r.ID).Scan(&current)
	if isNoRows(err) {
		return core.NotFound("data subject request", r.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to get subject request: %w", err)
	}
	return fmt.Errorf("data subject request %s is %s, not %s: %w", r.ID, current, from, core.ErrConflict)
}

func (s *Store) GetSubjectRequest(ctx context.Context, id string) (*dpa.Request, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+subjectRequestColumns+` FROM subject_requests WHERE id = $1`, id)
	r, err := scanSubjectRequest(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subject request: %w", err)
	}
	return r, nil
}

func (s *Store) ListSubjectRequests(ctx context.Context, filter dpa.Filter) ([]dpa.Request, error) {
	var w where
	if filter.SubjectID != "" {
		w.add("subject_id = ?", filter.SubjectID)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if filter.OpenOnly {
		w.add("status IN (?, ?)", string(dpa.StatusReceived), string(dpa.StatusInProgress))
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+subjectRequestColumns+` FROM subject_requests`+w.String()+` ORDER BY due_at, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subject requests: %w", err)
	}
	defer rows.Close()

	var result []dpa.Request
	for rows.Next() {
		r, err := scanSubjectRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subject request row: %w", err)
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subject request rows: %w", err)
	}
	return result, nil
}

func scanSubjectRequest(row pgx.Row) (*dpa.Request, error) {
	var (
		r                              dpa.Request
		subjectType, typ, status       string
		details, resolution, handledBy *string
	)
	err := row.Scan(&r.ID, &r.SubjectID, &subjectType, &typ, &status, &details, &resolution, &handledBy,
		&r.ReceivedAt, &r.DueAt, &r.UpdatedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	r.SubjectType = dpa.SubjectType(subjectType)
	r.Type = dpa.RequestType(typ)
	r.Status = dpa.Status(status)
	r.Details = deref(details)
	r.Resolution = deref(resolution)
	r.HandledBy = deref(handledBy)
	r.ReceivedAt = r.ReceivedAt.UTC()
	r.DueAt = r.DueAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	r.CompletedAt = utcPtr(r.CompletedAt)
	return &r, nil
}

// =============================================================================
// LTFRB REGISTRY
// =============================================================================

const vehicleColumns = `id, plate_number, case_number, operator, make, model, year_model,
	franchise_expiry, insurance_expiry, status, created_at`

func (s *Store) SaveVehicle(ctx context.Context, v ltfrb.Vehicle) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vehicles (`+vehicleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			plate_number = EXCLUDED.plate_number,
			case_number = EXCLUDED.case_number,
			operator = EXCLUDED.operator,
			make = EXCLUDED.make,
			model = EXCLUDED.model,
			year_model = EXCLUDED.year_model,
			franchise_expiry = EXCLUDED.franchise_expiry,
			insurance_expiry = EXCLUDED.insurance_expiry,
			status = EXCLUDED.status`,
		v.ID, v.PlateNumber, v.CaseNumber, nullable(v.Operator), nullable(v.Make), nullable(v.Model),
		v.YearModel, v.FranchiseExpiry, v.InsuranceExpiry, string(v.Status), v.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("plate %s is already registered: %w", v.PlateNumber, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to save vehicle: %w", err)
	}
	return nil
}

func (s *Store) GetVehicle(ctx context.Context, id string) (*ltfrb.Vehicle, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id)
	v, err := scanVehicle(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return v, nil
}

func (s *Store) ListVehicles(ctx context.Context) ([]ltfrb.Vehicle, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+vehicleColumns+` FROM vehicles ORDER BY plate_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	defer rows.Close()

	var result []ltfrb.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle row: %w", err)
		}
		result = append(result, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vehicle rows: %w", err)
	}
	return result, nil
}

func (s *Store) SetVehicleInsuranceExpiry(ctx context.Context, id string, expiry time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE vehicles SET insurance_expiry = $1 WHERE id = $2`, expiry, id)
	if err != nil {
		return fmt.Errorf("failed to update insurance expiry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("vehicle", id)
	}
	return nil
}

func scanVehicle(row pgx.Row) (*ltfrb.Vehicle, error) {
	var (
		v                   ltfrb.Vehicle
		operator, mk, model *string
		status              string
	)
	err := row.Scan(&v.ID, &v.PlateNumber, &v.CaseNumber, &operator, &mk, &model, &v.YearModel,
		&v.FranchiseExpiry, &v.InsuranceExpiry, &status, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.Operator = deref(operator)
	v.Make = deref(mk)
	v.Model = deref(model)
	v.Status = ltfrb.VehicleStatus(status)
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

const driverColumns = `id, name, license_number, license_type, license_expiry,
	training_completed, vehicle_id, created_at`

func (s *Store) SaveDriver(ctx context.Context, d ltfrb.Driver) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO drivers (`+driverColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			license_number = EXCLUDED.license_number,
			license_type = EXCLUDED.license_type,
			license_expiry = EXCLUDED.license_expiry,
			training_completed = EXCLUDED.training_completed,
			vehicle_id = EXCLUDED.vehicle_id`,
		d.ID, d.Name, d.LicenseNumber, string(d.LicenseType), d.LicenseExpiry,
		d.TrainingCompleted, nullable(d.VehicleID), d.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("license %s is already registered: %w", d.LicenseNumber, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to save driver: %w", err)
	}
	return nil
}

func (s *Store) GetDriver(ctx context.Context, id string) (*ltfrb.Driver, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, id)
	d, err := scanDriver(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get driver: %w", err)
	}
	return d, nil
}

func (s *Store) ListDrivers(ctx context.Context) ([]ltfrb.Driver, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+driverColumns+` FROM drivers ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", err)
	}
	defer rows.Close()

	var result []ltfrb.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan driver row: %w", err)
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating driver rows: %w", err)
	}
	return result, nil
}

func scanDriver(row pgx.Row) (*ltfrb.Driver, error) {
	var (
		d           ltfrb.Driver
		licenseType string
		vehicleID   *string
	)
	err := row.Scan(&d.ID, &d.Name, &d.LicenseNumber, &licenseType, &d.LicenseExpiry,
		&d.TrainingCompleted, &vehicleID, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.LicenseType = ltfrb.LicenseType(licenseType)
	d.VehicleID = deref(vehicleID)
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}

func (s *Store) SaveInsuranceVerification(ctx context.Context, v ltfrb.InsuranceVerification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO insurance_verifications
			(id, vehicle_id, provider, policy_number, coverage_end, status, verified_by, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ID, v.VehicleID, v.Provider, v.PolicyNumber, v.CoverageEnd,
		string(v.Status), nullable(v.VerifiedBy), v.VerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save insurance verification: %w", err)
	}
	return nil
}

func (s *Store) ListInsuranceVerifications(ctx context.Context, vehicleID string) ([]ltfrb.InsuranceVerification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, vehicle_id, provider, policy_number, coverage_end, status, verified_by, verified_at
		FROM insurance_verifications
		WHERE vehicle_id = $1
		ORDER BY verified_at DESC, id`, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list insurance verifications: %w", err)
	}
	defer rows.Close()

	var result []ltfrb.InsuranceVerification
	for rows.Next() {
		var (
			v          ltfrb.InsuranceVerification
			status     string
			verifiedBy *string
		)
		if err := rows.Scan(&v.ID, &v.VehicleID, &v.Provider, &v.PolicyNumber, &v.CoverageEnd,
			&status, &verifiedBy, &v.VerifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan insurance verification row: %w", err)
		}
		v.Status = ltfrb.InsuranceStatus(status)
		v.VerifiedBy = deref(verifiedBy)
		v.VerifiedAt = v.VerifiedAt.UTC()
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating insurance verification rows: %w", err)
	}
	return result, nil
}
