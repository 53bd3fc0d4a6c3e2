package workspace

import (
	"context"
	"errors"
)

// ErrNoTracker is returned when no tracker is attached to a context.
var ErrNoTracker = errors.New("workspace: tracker must be used within a provider")

type trackerKey struct{}

// WithTracker returns a copy of ctx carrying t.
func WithTracker(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// FromContext returns the tracker attached to ctx.
func FromContext(ctx context.Context) (*Tracker, error) {
	t, ok := ctx.Value(trackerKey{}).(*Tracker)
	if !ok || t == nil {
		return nil, ErrNoTracker
	}
	return t, nil
}

// MustFromContext is like FromContext but panics when no tracker is attached.
func MustFromContext(ctx context.Context) *Tracker {
	t, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return t
}
