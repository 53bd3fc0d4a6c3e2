package workspace

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSyncInProgress is returned by SyncNow while another sync is running.
var ErrSyncInProgress = errors.New("workspace: sync already in progress")

// SyncPayload is what a Syncer pushes to the backend.
type SyncPayload struct {
	UserID string    `json:"user_id"`
	Locale string    `json:"locale"`
	State  State     `json:"state"`
	SentAt time.Time `json:"sent_at"`
}

// Syncer pushes workspace state to a backend.
type Syncer interface {
	Sync(ctx context.Context, p SyncPayload) error
}

// SyncFunc adapts a function to the Syncer interface.
type SyncFunc func(ctx context.Context, p SyncPayload) error

// Sync calls f.
func (f SyncFunc) Sync(ctx context.Context, p SyncPayload) error {
	return f(ctx, p)
}

// syncTick is the periodic sync loop body. Ticks are skipped unless the
// workspace is connected.
func (t *Tracker) syncTick(ctx context.Context) {
	if t.current().ConnectionStatus != StatusConnected {
		return
	}
	if err := t.runSync(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		t.logger.Warn().Err(err).Msg("workspace sync failed")
	}
}

// SyncNow runs one sync cycle regardless of the connection status. A
// disconnected workspace reconnects this way.
func (t *Tracker) SyncNow(ctx context.Context) error {
	return t.runSync(ctx)
}

func (t *Tracker) runSync(ctx context.Context) error {
	if !t.syncing.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer t.syncing.Store(false)

	payload := SyncPayload{
		UserID: t.identity.UserID,
		Locale: t.identity.Locale,
		State:  t.Snapshot(),
		SentAt: t.reducer.Now(),
	}
	t.dispatch(SetConnectionStatus{Status: StatusReconnecting})

	if err := t.syncer.Sync(ctx, payload); err != nil {
		t.dispatch(SetConnectionStatus{Status: StatusDisconnected})
		t.recorder.SyncFinished(false)
		return fmt.Errorf("workspace: sync: %w", err)
	}

	t.dispatch(SetConnectionStatus{Status: StatusConnected})
	t.dispatch(SyncComplete{At: t.reducer.Now()})
	t.recorder.SyncFinished(true)
	t.logger.Debug().Msg("workspace synced")
	return nil
}
