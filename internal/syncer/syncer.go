package syncer

import (
	"context"
	"errors"

	"github.com/nclamvn/prismy-production-sub002/internal/workspace"
)

// Nop accepts every payload without doing anything.
type Nop struct{}

// Sync returns nil.
func (Nop) Sync(context.Context, workspace.SyncPayload) error { return nil }

// Multi syncs to every backend in order and joins their errors. A failing
// backend does not stop the others.
type Multi []workspace.Syncer

// Sync pushes p to every backend.
func (m Multi) Sync(ctx context.Context, p workspace.SyncPayload) error {
	var errs []error
	for _, s := range m {
		if err := s.Sync(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
