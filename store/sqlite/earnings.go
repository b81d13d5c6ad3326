package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/earnings"
)

// =============================================================================
// EARNINGS
// =============================================================================

const earningColumns = `id, driver_id, ride_id, type, amount, currency, description, payout_id, earned_at`

// SaveEarning inserts an earning.
func (s *Store) SaveEarning(ctx context.Context, e earnings.Earning) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO earnings (`+earningColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DriverID, nullString(e.RideID), string(e.Type),
		amountString(e.Amount), currencyOf(e.Amount), nullString(e.Description),
		nullString(e.PayoutID), formatTime(e.EarnedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("earning %s already exists: %w", e.ID, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to save earning: %w", err)
	}
	return nil
}

// ListEarnings returns earnings matching the filter in chronological order.
func (s *Store) ListEarnings(ctx context.Context, filter earnings.EarningFilter) ([]earnings.Earning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var w where
	if filter.DriverID != "" {
		w.add("driver_id = ?", filter.DriverID)
	}
	if filter.Period != nil {
		from, to := periodArgs(filter.Period)
		w.add("earned_at >= ? AND earned_at < ?", from, to)
	}
	if filter.UnpaidOnly {
		w.add("payout_id IS NULL")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+earningColumns+` FROM earnings`+w.String()+` ORDER BY earned_at, id`,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list earnings: %w", err)
	}
	defer rows.Close()

	var result []earnings.Earning
	for rows.Next() {
		var (
			e                             earnings.Earning
			typ, amount, currency         string
			rideID, description, payoutID sql.NullString
			earnedAt                      string
		)
		if err := rows.Scan(&e.ID, &e.DriverID, &rideID, &typ, &amount, &currency,
			&description, &payoutID, &earnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan earning: %w", err)
		}
		e.RideID = rideID.String
		e.Type = earnings.Type(typ)
		e.Amount = parseMoney(amount, currency)
		e.Description = description.String
		e.PayoutID = payoutID.String
		e.EarnedAt = parseTime(earnedAt)
		result = append(result, e)
	}
	return result, rows.Err()
}

// =============================================================================
// PAYOUTS
// =============================================================================

const payoutColumns = `id, driver_id, period_start, period_end, gross, commission, withholding, net,
	currency, earning_count, method, status, created_at, updated_at`

// CreatePayout saves the payout and stamps its earnings in one SQL transaction.
// An earning that is already paid out aborts the whole payout.
func (s *Store) CreatePayout(ctx context.Context, p earnings.Payout, earningIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO payouts (`+payoutColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DriverID, formatDate(p.Period.Start), formatDate(p.Period.End),
		amountString(p.Gross), amountString(p.Commission), amountString(p.Withholding), amountString(p.Net),
		currencyOf(p.Net), p.EarningCount, string(p.Method), string(p.Status),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert payout: %w", err)
	}

	for _, id := range earningIDs {
		res, err := sqlTx.ExecContext(ctx,
			`UPDATE earnings SET payout_id = ? WHERE id = ? AND payout_id IS NULL`,
			p.ID, id)
		if err != nil {
			return fmt.Errorf("failed to stamp earning %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("earning %s is already paid out: %w", id, core.ErrConflict)
		}
	}

	return sqlTx.Commit()
}

// GetPayout retrieves a payout by ID.
func (s *Store) GetPayout(ctx context.Context, id string) (*earnings.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = ?`, id)
	p, err := scanPayout(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return p, nil
}

// ListPayouts returns a driver's payouts (every driver when empty), newest first.
func (s *Store) ListPayouts(ctx context.Context, driverID string) ([]earnings.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var w where
	if driverID != "" {
		w.add("driver_id = ?", driverID)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+payoutColumns+` FROM payouts`+w.String()+` ORDER BY created_at DESC, id`,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	var result []earnings.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

// UpdatePayoutStatus sets a payout's status if it is still in from.
func (s *Store) UpdatePayoutStatus(ctx context.Context, id string, from, to earnings.PayoutStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE payouts SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), formatTime(at), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update payout: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM payouts WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return core.NotFound("payout", id)
	}
	if err != nil {
		return fmt.Errorf("failed to get payout: %w", err)
	}
	return fmt.Errorf("payout %s is %s, not %s: %w", id, current, from, core.ErrConflict)
}

func scanPayout(row scanner) (*earnings.Payout, error) {
	var (
		p                                   earnings.Payout
		start, end                          string
		gross, commission, withholding, net string
		currency, method, status            string
		createdAt, updatedAt                string
	)
	err := row.Scan(&p.ID, &p.DriverID, &start, &end, &gross, &commission, &withholding, &net,
		&currency, &p.EarningCount, &method, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Period = core.Period{Start: parseDate(start), End: parseDate(end)}
	p.Gross = parseMoney(gross, currency)
	p.Commission = parseMoney(commission, currency)
	p.Withholding = parseMoney(withholding, currency)
	p.Net = parseMoney(net, currency)
	p.Method = earnings.PayoutMethod(method)
	p.Status = earnings.PayoutStatus(status)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
