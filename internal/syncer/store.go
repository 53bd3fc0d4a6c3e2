package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	perrors "github.com/nclamvn/prismy-production-sub002/internal/errors"
	"github.com/nclamvn/prismy-production-sub002/internal/store"
	"github.com/nclamvn/prismy-production-sub002/internal/workspace"
)

// Store persists sync payloads to the local database: the full state as a
// snapshot plus the activity and operation history it carries. It also
// restores workspaces from those snapshots.
type Store struct {
	store  *store.Store
	logger zerolog.Logger
}

// NewStore creates a store-backed syncer.
func NewStore(s *store.Store, logger zerolog.Logger) *Store {
	return &Store{
		store:  s,
		logger: logger.With().Str("component", "syncer").Str("backend", "store").Logger(),
	}
}

// Sync writes p.
func (s *Store) Sync(ctx context.Context, p workspace.SyncPayload) error {
	payload, err := json.Marshal(p.State)
	if err != nil {
		return fmt.Errorf("marshaling workspace state: %w", err)
	}

	if err := s.store.SaveSnapshot(ctx, &store.Snapshot{
		UserID:   p.UserID,
		Locale:   p.Locale,
		Mode:     string(p.State.CurrentMode),
		Payload:  payload,
		SyncedAt: p.SentAt,
	}); err != nil {
		return err
	}

	inserted, err := s.store.SaveActivities(ctx, activityRecords(p.UserID, p.State.Activities))
	if err != nil {
		return err
	}

	ops := make([]workspace.AIOperation, 0, len(p.State.ActiveOperations)+len(p.State.CompletedOperations))
	ops = append(ops, p.State.ActiveOperations...)
	ops = append(ops, p.State.CompletedOperations...)
	if err := s.store.SaveOperations(ctx, operationRecords(p.UserID, ops)); err != nil {
		return err
	}

	s.logger.Debug().
		Str("user_id", p.UserID).
		Int("new_activities", inserted).
		Int("operations", len(ops)).
		Msg("workspace persisted")
	return nil
}

// Restore returns the state from userID's last snapshot.
func (s *Store) Restore(ctx context.Context, userID string) (workspace.State, bool, error) {
	snap, err := s.store.GetSnapshot(ctx, userID)
	if errors.Is(err, perrors.ErrNotFound) {
		return workspace.State{}, false, nil
	}
	if err != nil {
		return workspace.State{}, false, err
	}

	var state workspace.State
	if err := json.Unmarshal(snap.Payload, &state); err != nil {
		return workspace.State{}, false, fmt.Errorf("decoding snapshot for %q: %w", userID, err)
	}
	return state, true, nil
}

func activityRecords(userID string, acts []workspace.Activity) []store.ActivityRecord {
	out := make([]store.ActivityRecord, 0, len(acts))
	for _, a := range acts {
		out = append(out, store.ActivityRecord{
			ID:        a.ID,
			UserID:    userID,
			Type:      string(a.Type),
			Mode:      string(a.Mode),
			Success:   a.Success,
			Data:      a.Data,
			CreatedAt: a.Timestamp,
		})
	}
	return out
}

func operationRecords(userID string, ops []workspace.AIOperation) []store.OperationRecord {
	out := make([]store.OperationRecord, 0, len(ops))
	for _, op := range ops {
		out = append(out, store.OperationRecord{
			ID:          op.ID,
			UserID:      userID,
			Type:        op.Type,
			Status:      string(op.Status),
			Progress:    op.Progress,
			Error:       op.Error,
			CreatedAt:   op.CreatedAt,
			CompletedAt: op.CompletedAt,
		})
	}
	return out
}
