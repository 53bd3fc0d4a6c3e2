package store

import (
	"context"
	"fmt"
	"time"
)

// RetentionResult counts the rows a retention run removed.
type RetentionResult struct {
	Activities int64
	Operations int64
	Snapshots  int64
}

// RunRetention deletes history older than maxAge: activities by creation
// time, finished operations by completion time and snapshots that have not
// been synced within the window.
func (s *Store) RunRetention(ctx context.Context, maxAge time.Duration) (RetentionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res RetentionResult
	cutoff := time.Now().Add(-maxAge).UnixMilli()

	r, err := s.db.ExecContext(ctx, "DELETE FROM activities WHERE created_at < ?", cutoff)
	if err != nil {
		return res, fmt.Errorf("failed to delete old activities: %w", err)
	}
	res.Activities, _ = r.RowsAffected()

	r, err = s.db.ExecContext(ctx,
		"DELETE FROM operations WHERE completed_at IS NOT NULL AND completed_at < ?", cutoff)
	if err != nil {
		return res, fmt.Errorf("failed to delete old operations: %w", err)
	}
	res.Operations, _ = r.RowsAffected()

	r, err = s.db.ExecContext(ctx, "DELETE FROM workspace_snapshots WHERE synced_at < ?", cutoff)
	if err != nil {
		return res, fmt.Errorf("failed to delete stale snapshots: %w", err)
	}
	res.Snapshots, _ = r.RowsAffected()

	s.logger.Info().
		Int64("activities", res.Activities).
		Int64("operations", res.Operations).
		Int64("snapshots", res.Snapshots).
		Msg("retention completed")
	return res, nil
}

// DBSizeBytes returns the database size in bytes.
func (s *Store) DBSizeBytes() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pageCount, pageSize int64
	if err := s.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := s.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("failed to get page size: %w", err)
	}
	return pageCount * pageSize, nil
}
