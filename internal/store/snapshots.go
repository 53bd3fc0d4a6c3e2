package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	perrors "github.com/nclamvn/prismy-production-sub002/internal/errors"
)

// Snapshot is the last synced state of one user's workspace. Payload is
// the JSON-encoded state.
type Snapshot struct {
	UserID   string
	Locale   string
	Mode     string
	Payload  []byte
	SyncedAt time.Time
}

// SaveSnapshot stores snap, replacing the user's previous snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_snapshots (user_id, locale, mode, payload, synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			locale = excluded.locale,
			mode = excluded.mode,
			payload = excluded.payload,
			synced_at = excluded.synced_at
	`, snap.UserID, snap.Locale, snap.Mode, string(snap.Payload), snap.SyncedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the snapshot for userID, or an error wrapping
// errors.ErrNotFound.
func (s *Store) GetSnapshot(ctx context.Context, userID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{}
	var payload string
	var syncedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, locale, mode, payload, synced_at
		FROM workspace_snapshots WHERE user_id = ?
	`, userID).Scan(&snap.UserID, &snap.Locale, &snap.Mode, &payload, &syncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %q: %w", userID, perrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	snap.Payload = []byte(payload)
	snap.SyncedAt = time.UnixMilli(syncedAt)
	return snap, nil
}

// CountSnapshots returns the number of stored snapshots.
func (s *Store) CountSnapshots(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workspace_snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}
