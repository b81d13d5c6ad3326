/*
Package sqlite provides a SQLite-backed implementation of the console's storage interfaces.

PURPOSE:
  Implements every persistence interface the console services need using
  SQLite. It is the default store for development, demos and tests; the
  postgres package implements the same interfaces for production.

INTERFACES IMPLEMENTED:
  payments.Store:     Transactions, refunds, reconciliation runs
  earnings.Store:     Earnings and payouts
  bir.Store:          Official receipts and receipt series
  dpa.Store:          Data-subject requests
  ltfrb.Store:        Vehicles, drivers, insurance verifications
  widgets.AlertStore: Dashboard banners
  core.AuditLog:      Audit trail

KEY TABLES:
  payment_transactions, refunds, reconciliation_runs
  earnings, payouts
  receipts, receipt_series
  subject_requests
  vehicles, drivers, insurance_verifications
  alerts, audit_log

STORAGE CONVENTIONS:
  - Money is two columns: <name> TEXT (decimal string) and currency TEXT
  - Instants are TEXT in a fixed-width UTC layout so string order is time order
  - Calendar dates are TEXT YYYY-MM-DD
  - Not-found lookups return (nil, nil); services turn that into core.ErrNotFound

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Multi-row writes (refund decisions,
  payouts, receipt numbering) run in one SQL transaction. An in-memory
  database is pinned to a single connection so every query sees the same data.

USAGE:
  store, err := sqlite.New("./data/console.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - store/postgres: Production implementation
  - payments.go, earnings.go, bir.go, dpa.go, ltfrb.go, alerts.go, audit.go
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/ops-console/core"
)

// timeLayout is fixed-width so lexical order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Payments
	CREATE TABLE IF NOT EXISTS payment_transactions (
		id TEXT PRIMARY KEY,
		ride_id TEXT NOT NULL,
		rider_id TEXT NOT NULL,
		driver_id TEXT,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		provider TEXT,
		provider_ref TEXT,
		created_at TEXT NOT NULL,
		captured_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_payment_transactions_created
		ON payment_transactions(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_payment_transactions_provider
		ON payment_transactions(provider, created_at);
	CREATE INDEX IF NOT EXISTS idx_payment_transactions_rider
		ON payment_transactions(rider_id);
	CREATE INDEX IF NOT EXISTS idx_payment_transactions_driver
		ON payment_transactions(driver_id);

	CREATE TABLE IF NOT EXISTS refunds (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL REFERENCES payment_transactions(id),
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		requested_by TEXT,
		decided_by TEXT,
		decision_note TEXT,
		created_at TEXT NOT NULL,
		decided_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_refunds_transaction
		ON refunds(transaction_id);
	CREATE INDEX IF NOT EXISTS idx_refunds_status
		ON refunds(status);

	CREATE TABLE IF NOT EXISTS reconciliation_runs (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		matched INTEGER NOT NULL DEFAULT 0,
		missing_internal INTEGER NOT NULL DEFAULT 0,
		missing_provider INTEGER NOT NULL DEFAULT 0,
		mismatched INTEGER NOT NULL DEFAULT 0,
		internal_total TEXT NOT NULL,
		provider_total TEXT NOT NULL,
		currency TEXT NOT NULL,
		discrepancies_json TEXT,
		run_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reconciliation_runs_provider
		ON reconciliation_runs(provider, created_at DESC);

	-- Earnings
	CREATE TABLE IF NOT EXISTS earnings (
		id TEXT PRIMARY KEY,
		driver_id TEXT NOT NULL,
		ride_id TEXT,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		description TEXT,
		payout_id TEXT,
		earned_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_earnings_driver_date
		ON earnings(driver_id, earned_at);
	CREATE INDEX IF NOT EXISTS idx_earnings_payout
		ON earnings(payout_id) WHERE payout_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS payouts (
		id TEXT PRIMARY KEY,
		driver_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		gross TEXT NOT NULL,
		commission TEXT NOT NULL,
		withholding TEXT NOT NULL,
		net TEXT NOT NULL,
		currency TEXT NOT NULL,
		earning_count INTEGER NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payouts_driver
		ON payouts(driver_id, created_at DESC);

	-- BIR receipts
	CREATE TABLE IF NOT EXISTS receipt_series (
		series TEXT PRIMARY KEY,
		last_seq INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS receipts (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		series TEXT NOT NULL,
		seq INTEGER NOT NULL,
		transaction_id TEXT NOT NULL,
		seller_tin TEXT,
		buyer_name TEXT,
		buyer_tin TEXT,
		tax_type TEXT NOT NULL,
		total TEXT NOT NULL,
		vatable_sales TEXT NOT NULL,
		vat TEXT NOT NULL,
		vat_exempt TEXT NOT NULL,
		zero_rated TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		void_reason TEXT,
		issued_at TEXT NOT NULL,
		voided_at TEXT
	);

	-- One live receipt per payment
	CREATE UNIQUE INDEX IF NOT EXISTS idx_receipts_live_transaction
		ON receipts(transaction_id) WHERE status = 'issued';
	CREATE INDEX IF NOT EXISTS idx_receipts_issued
		ON receipts(issued_at);

	-- DPA data-subject requests
	CREATE TABLE IF NOT EXISTS subject_requests (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		subject_type TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		details TEXT,
		resolution TEXT,
		handled_by TEXT,
		received_at TEXT NOT NULL,
		due_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_subject_requests_subject
		ON subject_requests(subject_id);
	CREATE INDEX IF NOT EXISTS idx_subject_requests_status_due
		ON subject_requests(status, due_at);

	-- LTFRB registry
	CREATE TABLE IF NOT EXISTS vehicles (
		id TEXT PRIMARY KEY,
		plate_number TEXT NOT NULL UNIQUE,
		case_number TEXT NOT NULL,
		operator TEXT,
		make TEXT,
		model TEXT,
		year_model INTEGER NOT NULL,
		franchise_expiry TEXT NOT NULL,
		insurance_expiry TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS drivers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		license_number TEXT NOT NULL UNIQUE,
		license_type TEXT NOT NULL,
		license_expiry TEXT NOT NULL,
		training_completed BOOLEAN NOT NULL DEFAULT FALSE,
		vehicle_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS insurance_verifications (
		id TEXT PRIMARY KEY,
		vehicle_id TEXT NOT NULL REFERENCES vehicles(id),
		provider TEXT NOT NULL,
		policy_number TEXT NOT NULL,
		coverage_end TEXT NOT NULL,
		status TEXT NOT NULL,
		verified_by TEXT,
		verified_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_insurance_verifications_vehicle
		ON insurance_verifications(vehicle_id, verified_at DESC);

	-- Dashboard banners
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		dedupe_key TEXT NOT NULL UNIQUE,
		severity TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT,
		source TEXT,
		link TEXT,
		created_at TEXT NOT NULL,
		dismissed_at TEXT
	);

	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		subject TEXT NOT NULL,
		detail TEXT,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_subject
		ON audit_log(subject);
	CREATE INDEX IF NOT EXISTS idx_audit_log_at
		ON audit_log(at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"refunds", "reconciliation_runs", "payment_transactions",
		"earnings", "payouts",
		"receipts", "receipt_series",
		"subject_requests",
		"insurance_verifications", "drivers", "vehicles",
		"alerts", "audit_log",
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("failed to clear %s: %w", t, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t.UTC()
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func formatDate(t time.Time) string {
	return t.UTC().Format(core.DateLayout)
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(core.DateLayout, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseMoney(amount, currency string) core.Money {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		d = decimal.Zero
	}
	return core.Money{Amount: d, Currency: currency}
}

func amountString(m core.Money) string {
	return m.Amount.String()
}

func currencyOf(m core.Money) string {
	if m.Currency == "" {
		return core.DefaultCurrency
	}
	return m.Currency
}

// periodArgs renders a period as [start, end) instant bounds.
func periodArgs(p *core.Period) (string, string) {
	from, to := p.Bounds()
	return formatTime(from), formatTime(to)
}

// where accumulates AND-ed conditions.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
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

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
