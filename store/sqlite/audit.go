package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/ops-console/core"
)

// AppendAudit adds an entry to the audit trail.
func (s *Store) AppendAudit(ctx context.Context, e core.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor, action, subject, detail, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Actor, string(e.Action), e.Subject, nullString(e.Detail), formatTime(e.At),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// QueryAudit returns entries matching the filter, newest first.
func (s *Store) QueryAudit(ctx context.Context, filter core.AuditFilter) ([]core.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

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

	rows, err := s.db.QueryContext(ctx,
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
			e          core.AuditEntry
			action, at string
			detail     sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Actor, &action, &e.Subject, &detail, &at); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = core.AuditAction(action)
		e.Detail = detail.String
		e.At = parseTime(at)
		result = append(result, e)
	}
	return result, rows.Err()
}
