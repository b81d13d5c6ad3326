package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warp/ops-console/compliance/bir"
	"github.com/warp/ops-console/core"
)

const receiptColumns = `id, number, series, seq, transaction_id, seller_tin, buyer_name, buyer_tin,
	tax_type, total, vatable_sales, vat, vat_exempt, zero_rated, currency, status,
	void_reason, issued_at, voided_at`

// IssueReceipt allocates the next number in the receipt's series and saves it
// in one SQL transaction, so numbers are gapless and never reused.
func (s *Store) IssueReceipt(ctx context.Context, r *bir.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	var existing string
	err = sqlTx.QueryRowContext(ctx,
		`SELECT number FROM receipts WHERE transaction_id = ? AND status = ?`,
		r.TransactionID, string(bir.StatusIssued),
	).Scan(&existing)
	if err == nil {
		return fmt.Errorf("transaction %s already has receipt %s: %w", r.TransactionID, existing, core.ErrConflict)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check existing receipt: %w", err)
	}

	seq, err := nextSequence(ctx, sqlTx, r.Series)
	if err != nil {
		return err
	}
	r.Sequence = seq
	r.Number = bir.FormatNumber(r.Series, seq)

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO receipts (`+receiptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Number, r.Series, r.Sequence, r.TransactionID,
		nullString(r.SellerTIN), nullString(r.BuyerName), nullString(r.BuyerTIN),
		string(r.TaxType), amountString(r.Total), amountString(r.VatableSales), amountString(r.VAT),
		amountString(r.VATExempt), amountString(r.ZeroRated), currencyOf(r.Total), string(r.Status),
		nullString(r.VoidReason), formatTime(r.IssuedAt), formatTimePtr(r.VoidedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("receipt for transaction %s: %w", r.TransactionID, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}

	return sqlTx.Commit()
}

// nextSequence bumps and returns the last number used in a series.
func nextSequence(ctx context.Context, q interface {
	execer
	queryer
}, series string) (int64, error) {
	if _, err := q.ExecContext(ctx,
		`INSERT INTO receipt_series (series, last_seq) VALUES (?, 0) ON CONFLICT(series) DO NOTHING`,
		series); err != nil {
		return 0, fmt.Errorf("failed to open series %s: %w", series, err)
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE receipt_series SET last_seq = last_seq + 1 WHERE series = ?`, series); err != nil {
		return 0, fmt.Errorf("failed to advance series %s: %w", series, err)
	}
	var seq int64
	if err := q.QueryRowContext(ctx,
		`SELECT last_seq FROM receipt_series WHERE series = ?`, series).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to read series %s: %w", series, err)
	}
	return seq, nil
}

// GetReceipt retrieves a receipt by ID.
func (s *Store) GetReceipt(ctx context.Context, id string) (*bir.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = ?`, id)
	r, err := scanReceipt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return r, nil
}

// ListReceipts returns receipts matching the filter ordered by number.
func (s *Store) ListReceipts(ctx context.Context, filter bir.ReceiptFilter) ([]bir.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var w where
	if filter.Period != nil {
		from, to := periodArgs(filter.Period)
		w.add("issued_at >= ? AND issued_at < ?", from, to)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if filter.TransactionID != "" {
		w.add("transaction_id = ?", filter.TransactionID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+receiptColumns+` FROM receipts`+w.String()+
			` ORDER BY series, seq`+limitClause(filter.Limit),
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var result []bir.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

// VoidReceipt marks an issued receipt void.
func (s *Store) VoidReceipt(ctx context.Context, id, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE receipts SET status = ?, void_reason = ?, voided_at = ? WHERE id = ? AND status = ?`,
		string(bir.StatusVoid), reason, formatTime(at), id, string(bir.StatusIssued))
	if err != nil {
		return fmt.Errorf("failed to void receipt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("receipt %s is not issued: %w", id, core.ErrConflict)
	}
	return nil
}

func scanReceipt(row scanner) (*bir.Receipt, error) {
	var (
		r                                   bir.Receipt
		sellerTIN, buyerName, buyerTIN      sql.NullString
		taxType, total, vatable, vat        string
		exempt, zeroRated, currency, status string
		voidReason                          sql.NullString
		issuedAt                            string
		voidedAt                            sql.NullString
	)
	err := row.Scan(&r.ID, &r.Number, &r.Series, &r.Sequence, &r.TransactionID,
		&sellerTIN, &buyerName, &buyerTIN,
		&taxType, &total, &vatable, &vat, &exempt, &zeroRated, &currency, &status,
		&voidReason, &issuedAt, &voidedAt)
	if err != nil {
		return nil, err
	}
	r.SellerTIN = sellerTIN.String
	r.BuyerName = buyerName.String
	r.BuyerTIN = buyerTIN.String
	r.TaxType = bir.TaxType(taxType)
	r.Total = parseMoney(total, currency)
	r.VatableSales = parseMoney(vatable, currency)
	r.VAT = parseMoney(vat, currency)
	r.VATExempt = parseMoney(exempt, currency)
	r.ZeroRated = parseMoney(zeroRated, currency)
	r.Status = bir.Status(status)
	r.VoidReason = voidReason.String
	r.IssuedAt = parseTime(issuedAt)
	r.VoidedAt = parseTimePtr(voidedAt)
	return &r, nil
}
