/*
Package postgres provides a PostgreSQL implementation of the console's storage
interfaces on top of a pgx connection pool.

PURPOSE:
  Production deployments share one database with the ride backend's reporting
  replica. This package implements the same interfaces as store/sqlite so the
  server can switch with the db_driver setting.

DIFFERENCES FROM SQLITE:
  - Money columns are NUMERIC; they are read back as text to keep exact decimals
  - Instants are TIMESTAMPTZ and calendar dates DATE
  - Receipt numbers are allocated with an upsert ... RETURNING on receipt_series,
    which row-locks the series until the transaction commits
  - Alert upserts report insertion through the xmax system column

SEE ALSO:
  - store/sqlite: Development and test implementation
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/ops-console/core"
)

// Store implements all storage interfaces using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL, checks the connection and creates the schema.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	store := &Store{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS payment_transactions (
		id TEXT PRIMARY KEY,
		ride_id TEXT NOT NULL,
		rider_id TEXT NOT NULL,
		driver_id TEXT,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		provider TEXT,
		provider_ref TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		captured_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_payment_transactions_created ON payment_transactions(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_payment_transactions_provider ON payment_transactions(provider, created_at);

	CREATE TABLE IF NOT EXISTS refunds (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL REFERENCES payment_transactions(id),
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		requested_by TEXT,
		decided_by TEXT,
		decision_note TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		decided_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_refunds_transaction ON refunds(transaction_id);

	CREATE TABLE IF NOT EXISTS reconciliation_runs (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		period_start DATE NOT NULL,
		period_end DATE NOT NULL,
		matched INTEGER NOT NULL,
		missing_internal INTEGER NOT NULL,
		missing_provider INTEGER NOT NULL,
		mismatched INTEGER NOT NULL,
		internal_total NUMERIC NOT NULL,
		provider_total NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		discrepancies JSONB,
		run_by TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS earnings (
		id TEXT PRIMARY KEY,
		driver_id TEXT NOT NULL,
		ride_id TEXT,
		type TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		description TEXT,
		payout_id TEXT,
		earned_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_earnings_driver_date ON earnings(driver_id, earned_at);

	CREATE TABLE IF NOT EXISTS payouts (
		id TEXT PRIMARY KEY,
		driver_id TEXT NOT NULL,
		period_start DATE NOT NULL,
		period_end DATE NOT NULL,
		gross NUMERIC NOT NULL,
		commission NUMERIC NOT NULL,
		withholding NUMERIC NOT NULL,
		net NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		earning_count INTEGER NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS receipt_series (
		series TEXT PRIMARY KEY,
		last_seq BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS receipts (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		series TEXT NOT NULL,
		seq BIGINT NOT NULL,
		transaction_id TEXT NOT NULL,
		seller_tin TEXT,
		buyer_name TEXT,
		buyer_tin TEXT,
		tax_type TEXT NOT NULL,
		total NUMERIC NOT NULL,
		vatable_sales NUMERIC NOT NULL,
		vat NUMERIC NOT NULL,
		vat_exempt NUMERIC NOT NULL,
		zero_rated NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		void_reason TEXT,
		issued_at TIMESTAMPTZ NOT NULL,
		voided_at TIMESTAMPTZ
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_receipts_live_transaction
		ON receipts(transaction_id) WHERE status = 'issued';

	CREATE TABLE IF NOT EXISTS subject_requests (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		subject_type TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		details TEXT,
		resolution TEXT,
		handled_by TEXT,
		received_at TIMESTAMPTZ NOT NULL,
		due_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS vehicles (
		id TEXT PRIMARY KEY,
		plate_number TEXT NOT NULL UNIQUE,
		case_number TEXT NOT NULL,
		operator TEXT,
		make TEXT,
		model TEXT,
		year_model INTEGER NOT NULL,
		franchise_expiry DATE NOT NULL,
		insurance_expiry DATE,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS drivers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		license_number TEXT NOT NULL UNIQUE,
		license_type TEXT NOT NULL,
		license_expiry DATE NOT NULL,
		training_completed BOOLEAN NOT NULL DEFAULT FALSE,
		vehicle_id TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS insurance_verifications (
		id TEXT PRIMARY KEY,
		vehicle_id TEXT NOT NULL REFERENCES vehicles(id),
		provider TEXT NOT NULL,
		policy_number TEXT NOT NULL,
		coverage_end DATE NOT NULL,
		status TEXT NOT NULL,
		verified_by TEXT,
		verified_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		dedupe_key TEXT NOT NULL UNIQUE,
		severity TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT,
		source TEXT,
		link TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		dismissed_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		subject TEXT NOT NULL,
		detail TEXT,
		at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_subject ON audit_log(subject);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Reset clears all data. Used by demo scenarios and tests.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE
		refunds, reconciliation_runs, payment_transactions,
		earnings, payouts, receipts, receipt_series, subject_requests,
		insurance_verifications, drivers, vehicles, alerts, audit_log`)
	if err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// where accumulates AND-ed conditions, numbering "?" placeholders as $n.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	var b strings.Builder
	for _, r := range clause {
		if r == '?' {
			w.args = append(w.args, nil)
			b.WriteString("$" + strconv.Itoa(len(w.args)))
			continue
		}
		b.WriteRune(r)
	}
	copy(w.args[len(w.args)-len(args):], args)
	w.clauses = append(w.clauses, b.String())
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parseMoney(amount, currency string) core.Money {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		d = decimal.Zero
	}
	return core.Money{Amount: d, Currency: currency}
}

func currencyOf(m core.Money) string {
	if m.Currency == "" {
		return core.DefaultCurrency
	}
	return m.Currency
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
