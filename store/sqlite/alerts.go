package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/widgets"
)

const alertColumns = `id, dedupe_key, severity, title, message, source, link, created_at, dismissed_at`

// UpsertAlert inserts a banner, or refreshes the one already raised for the
// same dedupe key. A dismissed banner stays dismissed.
func (s *Store) UpsertAlert(ctx context.Context, a widgets.Alert) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET severity = ?, title = ?, message = ?, link = ?
		WHERE dedupe_key = ?`,
		string(a.Severity), a.Title, nullString(a.Message), nullString(a.Link), a.DedupeKey)
	if err != nil {
		return false, fmt.Errorf("failed to refresh alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DedupeKey, string(a.Severity), a.Title, nullString(a.Message),
		nullString(a.Source), nullString(a.Link), formatTime(a.CreatedAt), formatTimePtr(a.DismissedAt),
	)
	if isUniqueConstraintError(err) {
		return false, fmt.Errorf("alert %s already exists: %w", a.ID, core.ErrConflict)
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert alert: %w", err)
	}
	return true, nil
}

// GetAlert retrieves a banner by ID.
func (s *Store) GetAlert(ctx context.Context, id string) (*widgets.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// ListActiveAlerts returns undismissed banners, most severe first, then newest.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]widgets.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE dismissed_at IS NULL
		ORDER BY CASE severity WHEN 'critical' THEN 0 WHEN 'warning' THEN 1 ELSE 2 END,
			created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var result []widgets.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// DismissAlert hides a banner.
func (s *Store) DismissAlert(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET dismissed_at = ? WHERE id = ? AND dismissed_at IS NULL`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to dismiss alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %s is not active: %w", id, core.ErrConflict)
	}
	return nil
}

func scanAlert(row scanner) (*widgets.Alert, error) {
	var (
		a                     widgets.Alert
		severity              string
		message, source, link sql.NullString
		createdAt             string
		dismissedAt           sql.NullString
	)
	err := row.Scan(&a.ID, &a.DedupeKey, &severity, &a.Title, &message, &source, &link, &createdAt, &dismissedAt)
	if err != nil {
		return nil, err
	}
	a.Severity = widgets.Severity(severity)
	a.Message = message.String
	a.Source = source.String
	a.Link = link.String
	a.CreatedAt = parseTime(createdAt)
	a.DismissedAt = parseTimePtr(dismissedAt)
	return &a, nil
}
