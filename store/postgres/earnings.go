package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/earnings"
)

const earningColumns = `id, driver_id, ride_id, type, amount::text, currency, description, payout_id, earned_at`

func (s *Store) SaveEarning(ctx context.Context, e earnings.Earning) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO earnings (id, driver_id, ride_id, type, amount, currency, description, payout_id, earned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.DriverID, nullable(e.RideID), string(e.Type), e.Amount.Amount.String(), currencyOf(e.Amount),
		nullable(e.Description), nullable(e.PayoutID), e.EarnedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("earning %s already exists: %w", e.ID, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to save earning: %w", err)
	}
	return nil
}

func (s *Store) ListEarnings(ctx context.Context, filter earnings.EarningFilter) ([]earnings.Earning, error) {
	var w where
	if filter.DriverID != "" {
		w.add("driver_id = ?", filter.DriverID)
	}
	if filter.Period != nil {
		from, to := filter.Period.Bounds()
		w.add("earned_at >= ? AND earned_at < ?", from, to)
	}
	if filter.UnpaidOnly {
		w.add("payout_id IS NULL")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+earningColumns+` FROM earnings`+w.String()+` ORDER BY earned_at, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list earnings: %w", err)
	}
	defer rows.Close()

	var result []earnings.Earning
	for rows.Next() {
		var (
			e                             earnings.Earning
			typ, amount, currency         string
			rideID, description, payoutID *string
		)
		if err := rows.Scan(&e.ID, &e.DriverID, &rideID, &typ, &amount, &currency,
			&description, &payoutID, &e.EarnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan earning row: %w", err)
		}
		e.RideID = deref(rideID)
		e.Type = earnings.Type(typ)
		e.Amount = parseMoney(amount, currency)
		e.Description = deref(description)
		e.PayoutID = deref(payoutID)
		e.EarnedAt = e.EarnedAt.UTC()
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating earning rows: %w", err)
	}
	return result, nil
}

// =============================================================================
// PAYOUTS
// =============================================================================

const payoutColumns = `id, driver_id, period_start, period_end, gross::text, commission::text,
	withholding::text, net::text, currency, earning_count, method, status, created_at, updated_at`

func (s *Store) CreatePayout(ctx context.Context, p earnings.Payout, earningIDs []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO payouts (id, driver_id, period_start, period_end, gross, commission, withholding, net,
			currency, earning_count, method, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.DriverID, p.Period.Start, p.Period.End,
		p.Gross.Amount.String(), p.Commission.Amount.String(), p.Withholding.Amount.String(), p.Net.Amount.String(),
		currencyOf(p.Net), p.EarningCount, string(p.Method), string(p.Status), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payout: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE earnings SET payout_id = $1 WHERE id = ANY($2) AND payout_id IS NULL`,
		p.ID, earningIDs)
	if err != nil {
		return fmt.Errorf("failed to stamp earnings: %w", err)
	}
	if int(tag.RowsAffected()) != len(earningIDs) {
		return fmt.Errorf("some earnings are already paid out: %w", core.ErrConflict)
	}
	return tx.Commit(ctx)
}

func (s *Store) GetPayout(ctx context.Context, id string) (*earnings.Payout, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id)
	p, err := scanPayout(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return p, nil
}

func (s *Store) ListPayouts(ctx context.Context, driverID string) ([]earnings.Payout, error) {
	var w where
	if driverID != "" {
		w.add("driver_id = ?", driverID)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+payoutColumns+` FROM payouts`+w.String()+` ORDER BY created_at DESC, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	var result []earnings.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout row: %w", err)
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payout rows: %w", err)
	}
	return result, nil
}

func (s *Store) UpdatePayoutStatus(ctx context.Context, id string, from, to earnings.PayoutStatus, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payouts SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), at, id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update payout: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM payouts WHERE id = $1`, id).Scan(&current)
	if isNoRows(err) {
		return core.NotFound("payout", id)
	}
	if err != nil {
		return fmt.Errorf("failed to get payout: %w", err)
	}
	return fmt.Errorf("payout %s is %s, not %s: %w", id, current, from, core.ErrConflict)
}

func scanPayout(row pgx.Row) (*earnings.Payout, error) {
	var (
		p                                   earnings.Payout
		gross, commission, withholding, net string
		currency, method, status            string
	)
	err := row.Scan(&p.ID, &p.DriverID, &p.Period.Start, &p.Period.End,
		&gross, &commission, &withholding, &net,
		&currency, &p.EarningCount, &method, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Gross = parseMoney(gross, currency)
	p.Commission = parseMoney(commission, currency)
	p.Withholding = parseMoney(withholding, currency)
	p.Net = parseMoney(net, currency)
	p.Method = earnings.PayoutMethod(method)
	p.Status = earnings.PayoutStatus(status)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}
