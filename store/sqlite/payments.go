package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/payments"
)

// =============================================================================
// TRANSACTIONS
// =============================================================================

const transactionColumns = `id, ride_id, rider_id, driver_id, method, status, amount, currency,
	provider, provider_ref, created_at, captured_at`

// SaveTransaction inserts a payment transaction.
func (s *Store) SaveTransaction(ctx context.Context, tx payments.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.RideID, tx.RiderID, nullString(tx.DriverID),
		string(tx.Method), string(tx.Status),
		amountString(tx.Amount), currencyOf(tx.Amount),
		nullString(tx.Provider), nullString(tx.ProviderRef),
		formatTime(tx.CreatedAt), formatTimePtr(tx.CapturedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("transaction %s already exists: %w", tx.ID, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves a transaction by ID.
func (s *Store) GetTransaction(ctx context.Context, id string) (*payments.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM payment_transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// ListTransactions returns transactions matching the filter, newest first.
func (s *Store) ListTransactions(ctx context.Context, filter payments.TransactionFilter) ([]payments.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

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
		from, to := periodArgs(filter.Period)
		w.add("created_at >= ? AND created_at < ?", from, to)
	}

	rows, err := s.db.QueryContext(ctx,
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
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, *tx)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*payments.Transaction, error) {
	var (
		tx                               payments.Transaction
		method, status, amount, currency string
		driverID, provider, providerRef  sql.NullString
		createdAt                        string
		capturedAt                       sql.NullString
	)
	err := row.Scan(&tx.ID, &tx.RideID, &tx.RiderID, &driverID, &method, &status, &amount, &currency,
		&provider, &providerRef, &createdAt, &capturedAt)
	if err != nil {
		return nil, err
	}
	tx.DriverID = driverID.String
	tx.Method = payments.Method(method)
	tx.Status = payments.Status(status)
	tx.Amount = parseMoney(amount, currency)
	tx.Provider = provider.String
	tx.ProviderRef = providerRef.String
	tx.CreatedAt = parseTime(createdAt)
	tx.CapturedAt = parseTimePtr(capturedAt)
	return &tx, nil
}

// =============================================================================
// REFUNDS
// =============================================================================

const refundColumns = `id, transaction_id, amount, currency, reason, status,
	requested_by, decided_by, decision_note, created_at, decided_at`

// InsertRefund inserts a refund request if approved and pending refunds
// still leave room for it on the transaction.
func (s *Store) InsertRefund(ctx context.Context, r payments.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	tx, err := scanTransaction(sqlTx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE id = ?`, r.TransactionID))
	if err == sql.ErrNoRows {
		return core.NotFound("transaction", r.TransactionID)
	}
	if err != nil {
		return fmt.Errorf("failed to get transaction: %w", err)
	}
	committed, err := refundTotal(ctx, sqlTx, tx, `status != ?`, string(payments.RefundRejected))
	if err != nil {
		return err
	}
	if err := payments.CheckRefund(*tx, committed, r.Amount); err != nil {
		return err
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO refunds (`+refundColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TransactionID, amountString(r.Amount), currencyOf(r.Amount), r.Reason, string(r.Status),
		nullString(r.RequestedBy), nullString(r.DecidedBy), nullString(r.DecisionNote),
		formatTime(r.CreatedAt), formatTimePtr(r.DecidedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("refund %s already exists: %w", r.ID, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to save refund: %w", err)
	}
	return sqlTx.Commit()
}

// refundTotal sums the refunds of tx matching cond. Amounts are TEXT, so the
// sum is done in decimal rather than by SQLite's floating point SUM.
func refundTotal(ctx context.Context, sqlTx *sql.Tx, tx *payments.Transaction, cond string, args ...any) (core.Money, error) {
	rows, err := sqlTx.QueryContext(ctx,
		`SELECT amount, currency FROM refunds WHERE transaction_id = ? AND `+cond,
		append([]any{tx.ID}, args...)...)
	if err != nil {
		return core.Money{}, fmt.Errorf("failed to sum refunds: %w", err)
	}
	defer rows.Close()

	total := core.ZeroMoney(tx.Amount.Currency)
	for rows.Next() {
		var amount, currency string
		if err := rows.Scan(&amount, &currency); err != nil {
			return core.Money{}, fmt.Errorf("failed to scan refund: %w", err)
		}
		total = total.Add(parseMoney(amount, currency))
	}
	return total, rows.Err()
}

// GetRefund retrieves a refund by ID.
func (s *Store) GetRefund(ctx context.Context, id string) (*payments.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id = ?`, id)
	r, err := scanRefund(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}
	return r, nil
}

// ListRefunds returns refunds matching the filter, newest first.
func (s *Store) ListRefunds(ctx context.Context, filter payments.RefundFilter) ([]payments.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var w where
	if filter.TransactionID != "" {
		w.add("transaction_id = ?", filter.TransactionID)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if filter.Period != nil {
		from, to := periodArgs(filter.Period)
		w.add("COALESCE(decided_at, created_at) >= ? AND COALESCE(decided_at, created_at) < ?", from, to)
	}

	rows, err := s.db.QueryContext(ctx,
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
			return nil, fmt.Errorf("failed to scan refund: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

// DecideRefund records an approval or rejection. An approval also moves the
// transaction to the status its approved refunds now call for.
func (s *Store) DecideRefund(ctx context.Context, r payments.Refund) (payments.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx, `
		UPDATE refunds
		SET status = ?, decided_by = ?, decision_note = ?, decided_at = ?
		WHERE id = ? AND status = ?`,
		string(r.Status), nullString(r.DecidedBy), nullString(r.DecisionNote), formatTimePtr(r.DecidedAt),
		r.ID, string(payments.RefundPending),
	)
	if err != nil {
		return "", fmt.Errorf("failed to update refund: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return "", fmt.Errorf("refund %s is no longer pending: %w", r.ID, core.ErrConflict)
	}

	tx, err := scanTransaction(sqlTx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE id = ?`, r.TransactionID))
	if err != nil {
		return "", fmt.Errorf("failed to get transaction: %w", err)
	}
	if r.Status != payments.RefundApproved {
		return tx.Status, sqlTx.Commit()
	}

	approved, err := refundTotal(ctx, sqlTx, tx, `status = ?`, string(payments.RefundApproved))
	if err != nil {
		return "", err
	}
	status := payments.StatusAfterRefunds(tx.Amount, approved)
	if _, err := sqlTx.ExecContext(ctx,
		`UPDATE payment_transactions SET status = ? WHERE id = ?`,
		string(status), r.TransactionID,
	); err != nil {
		return "", fmt.Errorf("failed to update transaction status: %w", err)
	}
	return status, sqlTx.Commit()
}

func scanRefund(row scanner) (*payments.Refund, error) {
	var (
		r                            payments.Refund
		amount, currency, status     string
		requestedBy, decidedBy, note sql.NullString
		createdAt                    string
		decidedAt                    sql.NullString
	)
	err := row.Scan(&r.ID, &r.TransactionID, &amount, &currency, &r.Reason, &status,
		&requestedBy, &decidedBy, &note, &createdAt, &decidedAt)
	if err != nil {
		return nil, err
	}
	r.Amount = parseMoney(amount, currency)
	r.Status = payments.RefundStatus(status)
	r.RequestedBy = requestedBy.String
	r.DecidedBy = decidedBy.String
	r.DecisionNote = note.String
	r.CreatedAt = parseTime(createdAt)
	r.DecidedAt = parseTimePtr(decidedAt)
	return &r, nil
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

const runColumns = `id, provider, period_start, period_end, matched, missing_internal,
	missing_provider, mismatched, internal_total, provider_total, currency,
	discrepancies_json, run_by, created_at`

// SaveReconciliationRun stores a completed reconciliation run.
func (s *Store) SaveReconciliationRun(ctx context.Context, run payments.ReconciliationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	discrepancies, err := json.Marshal(run.Discrepancies)
	if err != nil {
		return fmt.Errorf("failed to encode discrepancies: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Provider, formatDate(run.Period.Start), formatDate(run.Period.End),
		run.Matched, run.MissingInternal, run.MissingProvider, run.Mismatched,
		amountString(run.InternalTotal), amountString(run.ProviderTotal), currencyOf(run.InternalTotal),
		string(discrepancies), nullString(run.RunBy), formatTime(run.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save reconciliation run: %w", err)
	}
	return nil
}

// GetReconciliationRun retrieves a run by ID.
func (s *Store) GetReconciliationRun(ctx context.Context, id string) (*payments.ReconciliationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM reconciliation_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reconciliation run: %w", err)
	}
	return run, nil
}

// ListReconciliationRuns returns runs for a provider (all providers when empty), newest first.
func (s *Store) ListReconciliationRuns(ctx context.Context, provider string, limit int) ([]payments.ReconciliationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var w where
	if provider != "" {
		w.add("provider = ?", provider)
	}
	rows, err := s.db.QueryContext(ctx,
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
			return nil, fmt.Errorf("failed to scan reconciliation run: %w", err)
		}
		result = append(result, *run)
	}
	return result, rows.Err()
}

func scanRun(row scanner) (*payments.ReconciliationRun, error) {
	var (
		run                                    payments.ReconciliationRun
		start, end                             string
		internalTotal, providerTotal, currency string
		discrepancies, runBy                   sql.NullString
		createdAt                              string
	)
	err := row.Scan(&run.ID, &run.Provider, &start, &end,
		&run.Matched, &run.MissingInternal, &run.MissingProvider, &run.Mismatched,
		&internalTotal, &providerTotal, &currency, &discrepancies, &runBy, &createdAt)
	if err != nil {
		return nil, err
	}
	run.Period = core.Period{Start: parseDate(start), End: parseDate(end)}
	run.InternalTotal = parseMoney(internalTotal, currency)
	run.ProviderTotal = parseMoney(providerTotal, currency)
	if discrepancies.Valid && discrepancies.String != "" {
		if err := json.Unmarshal([]byte(discrepancies.String), &run.Discrepancies); err != nil {
			return nil, fmt.Errorf("failed to decode discrepancies: %w", err)
		}
	}
	run.RunBy = runBy.String
	run.CreatedAt = parseTime(createdAt)
	return &run, nil
}
