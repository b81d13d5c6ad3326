package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/widgets"
)

const alertColumns = `id, dedupe_key, severity, title, message, source, link, created_at, dismissed_at`

// UpsertAlert inserts a banner or refreshes the one with the same dedupe key.
// xmax is zero only for a freshly inserted row.
func (s *Store) UpsertAlert(ctx context.Context, a widgets.Alert) (bool, error) {
	var inserted bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (dedupe_key) DO UPDATE SET
			severity = EXCLUDED.severity,
			title = EXCLUDED.title,
			message = EXCLUDED.message,
			link = EXCLUDED.link
		RETURNING (xmax = 0)`,
		a.ID, a.DedupeKey, string(a.Severity), a.Title, nullable(a.Message),
		nullable(a.Source), nullable(a.Link), a.CreatedAt, a.DismissedAt,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert alert: %w", err)
	}
	return inserted, nil
}

func (s *Store) GetAlert(ctx context.Context, id string) (*widgets.Alert, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	a, err := scanAlert(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

func (s *Store) ListActiveAlerts(ctx context.Context) ([]widgets.Alert, error) {
	rows, err := s.pool.Query(ctx, `
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
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}
	return result, nil
}

func (s *Store) DismissAlert(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET dismissed_at = $1 WHERE id = $2 AND dismissed_at IS NULL`, at, id)
	if err != nil {
		return fmt.Errorf("failed to dismiss alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert %s is not active: %w", id, core.ErrConflict)
	}
	return nil
}

func scanAlert(row pgx.Row) (*widgets.Alert, error) {
	var (
		a                     widgets.Alert
		severity              string
		message, source, link *string
	)
	err := row.Scan(&a.ID, &a.DedupeKey, &severity, &a.Title, &message, &source, &link, &a.CreatedAt, &a.DismissedAt)
	if err != nil {
		return nil, err
	}
	a.Severity = widgets.Severity(severity)
	a.Message = deref(message)
	a.Source = deref(source)
	a.Link = deref(link)
	a.CreatedAt = a.CreatedAt.UTC()
	a.DismissedAt = utcPtr(a.DismissedAt)
	return &a, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, e core.AuditEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, actor, action, subject, detail, at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Actor, string(e.Action), e.Subject, nullable(e.Detail), e.At)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) QueryAudit(ctx context.Context, filter core.AuditFilter) ([]core.AuditEntry, error) {
	var w where
	if filter.Actor != "" {
		w.add("actor = ?", filter.Actor)
	}
	if filter.Subject != "" {
		w.add("subject = ?", filter.Subject)
	}
	if filter.Action != "" {
		w.add("action = ?", string(filter.Action))
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, actor, action, subject, detail, at FROM audit_log`+w.String()+
			` ORDER BY at DESC, id`+limitClause(filter.Limit),
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var result []core.AuditEntry
	for rows.Next() {
		var (
			e      core.AuditEntry
			action string
			detail *string
		)
		if err := rows.Scan(&e.ID, &e.Actor, &action, &e.Subject, &detail, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		e.Action = core.AuditAction(action)
		e.Detail = deref(detail)
		e.At = e.At.UTC()
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}
	return result, nil
}
