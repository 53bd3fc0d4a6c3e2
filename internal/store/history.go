package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ActivityRecord is one persisted activity.
type ActivityRecord struct {
	ID        string
	UserID    string
	Type      string
	Mode      string
	Success   bool
	Data      []byte
	CreatedAt time.Time
}

// OperationRecord is the persisted view of an AI operation.
type OperationRecord struct {
	ID          string
	UserID      string
	Type        string
	Status      string
	Progress    int
	Error       string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// SaveActivities inserts activities that are not stored yet. Activities
// are immutable, so existing ids are skipped.
func (s *Store) SaveActivities(ctx context.Context, records []ActivityRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO activities (id, user_id, type, mode, success, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare activity insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		var data sql.NullString
		if len(r.Data) > 0 {
			data = sql.NullString{String: string(r.Data), Valid: true}
		}
		res, err := stmt.ExecContext(ctx, r.ID, r.UserID, r.Type, r.Mode, boolToInt(r.Success), data, r.CreatedAt.UnixMilli())
		if err != nil {
			return 0, fmt.Errorf("failed to insert activity %s: %w", r.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit activities: %w", err)
	}
	return inserted, nil
}

// ListActivities returns up to limit activities for userID, newest first.
func (s *Store) ListActivities(ctx context.Context, userID string, limit int) ([]ActivityRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, mode, success, data, created_at
		FROM activities WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var out []ActivityRecord
	for rows.Next() {
		var r ActivityRecord
		var success int
		var data sql.NullString
		var created int64
		if err := rows.Scan(&r.ID, &r.UserID, &r.Type, &r.Mode, &success, &data, &created); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		r.Success = success != 0
		if data.Valid {
			r.Data = []byte(data.String)
		}
		r.CreatedAt = time.UnixMilli(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveOperations upserts operation records.
func (s *Store) SaveOperations(ctx context.Context, records []OperationRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO operations (id, user_id, type, status, progress, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			error = excluded.error,
			completed_at = excluded.completed_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare operation upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var completed sql.NullInt64
		if r.CompletedAt != nil {
			completed = sql.NullInt64{Int64: r.CompletedAt.UnixMilli(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.UserID, r.Type, r.Status, r.Progress, r.Error, r.CreatedAt.UnixMilli(), completed); err != nil {
			return fmt.Errorf("failed to upsert operation %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit operations: %w", err)
	}
	return nil
}

// ListOperations returns up to limit operations for userID, newest first.
func (s *Store) ListOperations(ctx context.Context, userID string, limit int) ([]OperationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, status, progress, error, created_at, completed_at
		FROM operations WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var out []OperationRecord
	for rows.Next() {
		var r OperationRecord
		var created int64
		var completed sql.NullInt64
		if err := rows.Scan(&r.ID, &r.UserID, &r.Type, &r.Status, &r.Progress, &r.Error, &created, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		r.CreatedAt = time.UnixMilli(created)
		if completed.Valid {
			t := time.UnixMilli(completed.Int64)
			r.CompletedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
