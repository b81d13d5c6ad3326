package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/ops-console/compliance/dpa"
	"github.com/warp/ops-console/core"
)

const subjectRequestColumns = `id, subject_id, subject_type, type, status, details, resolution,
	handled_by, received_at, due_at, updated_at, completed_at`

// SaveSubjectRequest inserts or updates a data-subject request.
func (s *Store) SaveSubjectRequest(ctx context.Context, r dpa.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subject_requests (`+subjectRequestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			details = excluded.details,
			resolution = excluded.resolution,
			handled_by = excluded.handled_by,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at`,
		r.ID, r.SubjectID, string(r.SubjectType), string(r.Type), string(r.Status),
		nullString(r.Details), nullString(r.Resolution), nullString(r.HandledBy),
		formatTime(r.ReceivedAt), formatTime(r.DueAt), formatTime(r.UpdatedAt), formatTimePtr(r.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save subject request: %w", err)
	}
	return nil
}

// UpdateSubjectRequest applies a status change if the request is still in from.
func (s *Store) UpdateSubjectRequest(ctx context.Context, r dpa.Request, from dpa.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE subject_requests
		SET status = ?, resolution = ?, handled_by = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(r.Status), nullString(r.Resolution), nullString(r.HandledBy),
		formatTime(r.UpdatedAt), formatTimePtr(r.CompletedAt),
		r.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update subject request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM subject_requests WHERE id = ?`, r.ID).Scan(&current)
	if err == sql.ErrNoRows {
		return core.NotFound("data subject request", r.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to get subject request: %w", err)
	}
	return fmt.Errorf("data subject request %s is %s, not %s: %w", r.ID, current, from, core.ErrConflict)
}

// GetSubjectRequest retrieves a request by ID.
func (s *Store) GetSubjectRequest(ctx context.Context, id string) (*dpa.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+subjectRequestColumns+` FROM subject_requests WHERE id = ?`, id)
	r, err := scanSubjectRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subject request: %w", err)
	}
	return r, nil
}

// ListSubjectRequests returns requests matching the filter, earliest due first.
func (s *Store) ListSubjectRequests(ctx context.Context, filter dpa.Filter) ([]dpa.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var w where
	if filter.SubjectID != "" {
		w.add("subject_id = ?", filter.SubjectID)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if filter.OpenOnly {
		w.add("status IN (?, ?)", string(dpa.StatusReceived), string(dpa.StatusInProgress))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subjectRequestColumns+` FROM subject_requests`+w.String()+` ORDER BY due_at, id`,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subject requests: %w", err)
	}
	defer rows.Close()

	var result []dpa.Request
	for rows.Next() {
		r, err := scanSubjectRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subject request: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

func scanSubjectRequest(row scanner) (*dpa.Request, error) {
	var (
		r                              dpa.Request
		subjectType, typ, status       string
		details, resolution, handledBy sql.NullString
		receivedAt, dueAt, updatedAt   string
		completedAt                    sql.NullString
	)
	err := row.Scan(&r.ID, &r.SubjectID, &subjectType, &typ, &status,
		&details, &resolution, &handledBy, &receivedAt, &dueAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	r.SubjectType = dpa.SubjectType(subjectType)
	r.Type = dpa.RequestType(typ)
	r.Status = dpa.Status(status)
	r.Details = details.String
	r.Resolution = resolution.String
	r.HandledBy = handledBy.String
	r.ReceivedAt = parseTime(receivedAt)
	r.DueAt = parseTime(dueAt)
	r.UpdatedAt = parseTime(updatedAt)
	r.CompletedAt = parseTimePtr(completedAt)
	return &r, nil
}
