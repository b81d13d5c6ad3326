package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/payments"
)

const transactionColumns = `id, ride_id, rider_id, driver_id, method, status, amount::text, currency,
	provider, provider_ref, created_at, captured_at`

func (s *Store) SaveTransaction(ctx context.Context, tx payments.Transaction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payment_transactions (id, ride_id, rider_id, driver_id, method, status, amount, currency,
			provider, provider_ref, created_at, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		tx.ID, tx.RideID, tx.RiderID, nullable(tx.DriverID), string(tx.Method), string(tx.Status),
		tx.Amount.Amount.String(), currencyOf(tx.Amount), nullable(tx.Provider), nullable(tx.ProviderRef),
		tx.CreatedAt, tx.CapturedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("transaction %s already exists: %w", tx.ID, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*payments.Transaction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM payment_transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter payments.TransactionFilter) ([]payments.Transaction, error) {
	var w where
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if filter.Method != "" {
		w.add("method = ?", string(filter.Method))
	}
	if filter.Provider != "" {
		w.add("provider = ?", filter.Provider)
	}
	if filter.DriverID != "" {
		w.add("driver_id = ?", filter.DriverID)
	}
	if filter.RiderID != "" {
		w.add("rider_id = ?", filter.RiderID)
	}
	if filter.Period != nil {
		from, to := filter.Period.Bounds()
		w.add("created_at >= ? AND created_at < ?", from, to)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions`+w.String()+
			` ORDER BY created_at DESC, id`+limitClause(filter.Limit),
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var result []payments.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		result = append(result, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return result, nil
}

func scanTransaction(row pgx.Row) (*payments.Transaction, error) {
	var (
		tx                               payments.Transaction
		method, status, amount, currency string
		driverID, provider, providerRef  *string
	)
	err := row.Scan(&tx.ID, &tx.RideID, &tx.RiderID, &driverID, &method, &status, &amount, &currency,
		&provider, &providerRef, &tx.CreatedAt, &tx.CapturedAt)
	if err != nil {
		return nil, err
	}
	tx.DriverID = deref(driverID)
	tx.Method = payments.Method(method)
	tx.Status = payments.Status(status)
	tx.Amount = parseMoney(amount, currency)
	tx.Provider = deref(provider)
	tx.ProviderRef = deref(providerRef)
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.CapturedAt = utcPtr(tx.CapturedAt)
	return &tx, nil
}

// =============================================================================
// REFUNDS
// =============================================================================

const refundColumns = `id, transaction_id, amount::text, currency, reason, status,
	requested_by, decided_by, decision_note, created_at, decided_at`

// InsertRefund locks the transaction row, checks the refund still fits and
// inserts it, all in one database transaction.
func (s *Store) InsertRefund(ctx context.Context, r payments.Refund) error {
	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	tx, err := scanTransaction(dbTx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE id = $1 FOR UPDATE`, r.TransactionID))
	if isNoRows(err) {
		return core.NotFound("transaction", r.TransactionID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock transaction: %w", err)
	}
	committed, err := refundTotal(ctx, dbTx, tx, `status <> $2`, string(payments.RefundRejected))
	if err != nil {
		return err
	}
	if err := payments.CheckRefund(*tx, committed, r.Amount); err != nil {
		return err
	}

	_, err = dbTx.Exec(ctx, `
		INSERT INTO refunds (id, transaction_id, amount, currency, reason, status,
			requested_by, decided_by, decision_note, created_at, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.TransactionID, r.Amount.Amount.String(), currencyOf(r.Amount), r.Reason, string(r.Status),
		nullable(r.RequestedBy), nullable(r.DecidedBy), nullable(r.DecisionNote), r.CreatedAt, r.DecidedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("refund %s already exists: %w", r.ID, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to save refund: %w", err)
	}
	return dbTx.Commit(ctx)
}

// refundTotal sums the refunds of tx matching cond, whose placeholders start at $2.
func refundTotal(ctx context.Context, dbTx pgx.Tx, tx *payments.Transaction, cond string, args ...any) (core.Money, error) {
	var sum string
	err := dbTx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM refunds WHERE transaction_id = $1 AND `+cond,
		append([]any{tx.ID}, args...)...).Scan(&sum)
	if err != nil {
		return core.Money{}, fmt.Errorf("failed to sum refunds: %w", err)
	}
	return parseMoney(sum, tx.Amount.Currency), nil
}

func (s *Store) GetRefund(ctx context.Context, id string) (*payments.Refund, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id = $1`, id)
	r, err := scanRefund(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}
	return r, nil
}

func (s *Store) ListRefunds(ctx context.Context, filter payments.RefundFilter) ([]payments.Refund, error) {
	var w where
	if filter.TransactionID != "" {
		w.add("transaction_id = ?", filter.TransactionID)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if filter.Period != nil {
		from, to := filter.Period.Bounds()
		w.add("COALESCE(decided_at, created_at) >= ?", from)
		w.add("COALESCE(decided_at, created_at) < ?", to)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+refundColumns+` FROM refunds`+w.String()+
			` ORDER BY created_at DESC, id`+limitClause(filter.Limit),
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	defer rows.Close()

	var result []payments.Refund
	for rows.Next() {
		r, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refund row: %w", err)
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refund rows: %w", err)
	}
	return result, nil
}

func (s *Store) DecideRefund(ctx context.Context, r payments.Refund) (payments.Status, error) {
	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	// Lock the payment first so concurrent decisions on its refunds queue up.
	tx, err := scanTransaction(dbTx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE id = $1 FOR UPDATE`, r.TransactionID))
	if err != nil {
		return "", fmt.Errorf("failed to lock transaction: %w", err)
	}

	tag, err := dbTx.Exec(ctx, `
		UPDATE refunds SET status = $1, decided_by = $2, decision_note = $3, decided_at = $4
		WHERE id = $5 AND status = $6`,
		string(r.Status), nullable(r.DecidedBy), nullable(r.DecisionNote), r.DecidedAt,
		r.ID, string(payments.RefundPending))
	if err != nil {
		return "", fmt.Errorf("failed to update refund: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return "", fmt.Errorf("refund %s is no longer pending: %w", r.ID, core.ErrConflict)
	}
	if r.Status != payments.RefundApproved {
		return tx.Status, dbTx.Commit(ctx)
	}

	approved, err := refundTotal(ctx, dbTx, tx, `status = $2`, string(payments.RefundApproved))
	if err != nil {
		return "", err
	}
	status := payments.StatusAfterRefunds(tx.Amount, approved)
	if _, err := dbTx.Exec(ctx,
		`UPDATE payment_transactions SET status = $1 WHERE id = $2`,
		string(status), r.TransactionID); err != nil {
		return "", fmt.Errorf("failed to update transaction status: %w", err)
	}
	return status, dbTx.Commit(ctx)
}

func scanRefund(row pgx.Row) (*payments.Refund, error) {
	var (
		r                            payments.Refund
		amount, currency, status     string
		requestedBy, decidedBy, note *string
	)
	err := row.Scan(&r.ID, &r.TransactionID, &amount, &currency, &r.Reason, &status,
		&requestedBy, &decidedBy, &note, &r.CreatedAt, &r.DecidedAt)
	if err != nil {
		return nil, err
	}
	r.Amount = parseMoney(amount, currency)
	r.Status = payments.RefundStatus(status)
	r.RequestedBy = deref(requestedBy)
	r.DecidedBy = deref(decidedBy)
	r.DecisionNote = deref(note)
	r.CreatedAt = r.CreatedAt.UTC()
	r.DecidedAt = utcPtr(r.DecidedAt)
	return &r, nil
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

const runColumns = `id, provider, period_start, period_end, matched, missing_internal,
	missing_provider, mismatched, internal_total::text, provider_total::text, currency,
	discrepancies, run_by, created_at`

func (s *Store) SaveReconciliationRun(ctx context.Context, run payments.ReconciliationRun) error {
	discrepancies, err := json.Marshal(run.Discrepancies)
	if err != nil {
		return fmt.Errorf("failed to encode discrepancies: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO reconciliation_runs (id, provider, period_start, period_end, matched, missing_internal,
			missing_provider, mismatched, internal_total, provider_total, currency, discrepancies, run_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		run.ID, run.Provider, run.Period.Start, run.Period.End,
		run.Matched, run.MissingInternal, run.MissingProvider, run.Mismatched,
		run.InternalTotal.Amount.String(), run.ProviderTotal.Amount.String(), currencyOf(run.InternalTotal),
		discrepancies, nullable(run.RunBy), run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save reconciliation run: %w", err)
	}
	return nil
}

func (s *Store) GetReconciliationRun(ctx context.Context, id string) (*payments.ReconciliationRun, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM reconciliation_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reconciliation run: %w", err)
	}
	return run, nil
}

func (s *Store) ListReconciliationRuns(ctx context.Context, provider string, limit int) ([]payments.ReconciliationRun, error) {
	var w where
	if provider != "" {
		w.add("provider = ?", provider)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM reconciliation_runs`+w.String()+
			` ORDER BY created_at DESC, id`+limitClause(limit),
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation runs: %w", err)
	}
	defer rows.Close()

	var result []payments.ReconciliationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation run row: %w", err)
		}
		result = append(result, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reconciliation run rows: %w", err)
	}
	return result, nil
}

func scanRun(row pgx.Row) (*payments.ReconciliationRun, error) {
	var (
		run                                    payments.ReconciliationRun
		internalTotal, providerTotal, currency string
		discrepancies                          []byte
		runBy                                  *string
	)
	err := row.Scan(&run.ID, &run.Provider, &run.Period.Start, &run.Period.End,
		&run.Matched, &run.MissingInternal, &run.MissingProvider, &run.Mismatched,
		&internalTotal, &providerTotal, &currency, &discrepancies, &runBy, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	run.InternalTotal = parseMoney(internalTotal, currency)
	run.ProviderTotal = parseMoney(providerTotal, currency)
	if len(discrepancies) > 0 {
		if err := json.Unmarshal(discrepancies, &run.Discrepancies); err != nil {
			return nil, fmt.Errorf("failed to decode discrepancies: %w", err)
		}
	}
	run.RunBy = deref(runBy)
	run.CreatedAt = run.CreatedAt.UTC()
	return &run, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
