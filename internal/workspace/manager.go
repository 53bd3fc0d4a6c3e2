package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nclamvn/prismy-production-sub002/lru"
)

// ErrManagerClosed is returned by Get after Close.
var ErrManagerClosed = errors.New("workspace: manager closed")

// DefaultFlushTimeout bounds the final sync of an evicted tracker and the
// snapshot lookup of a new one.
const DefaultFlushTimeout = 10 * time.Second

// Restorer loads the last synced state of a user's workspace. ok is false
// when nothing was stored.
type Restorer interface {
	Restore(ctx context.Context, userID string) (s State, ok bool, err error)
}

// Manager owns one running Tracker per user. The number of live trackers
// is bounded; the least recently used one is stopped to make room.
type Manager struct {
	ctx      context.Context
	cfg      Config
	syncer   Syncer
	recorder Recorder
	restorer Restorer
	logger   zerolog.Logger

	// FlushTimeout overrides DefaultFlushTimeout when positive.
	FlushTimeout time.Duration

	cache *lru.Cache[string, *Tracker]

	mu      sync.RWMutex
	closed  bool
	closing atomic.Bool
}

// NewManager creates a manager holding at most size trackers. Trackers are
// started with ctx.
func NewManager(ctx context.Context, size int, cfg Config, syncer Syncer, logger zerolog.Logger) *Manager {
	m := &Manager{
		ctx:      ctx,
		cfg:      cfg,
		syncer:   syncer,
		recorder: nopRecorder{},
		logger:   logger.With().Str("component", "workspace-manager").Logger(),
	}
	m.cache = lru.New[string, *Tracker](size, m.evict)
	return m
}

// SetRecorder installs a metrics recorder on the manager and every tracker
// it creates afterwards.
func (m *Manager) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	m.recorder = r
}

// SetRestorer makes new trackers start from the user's stored snapshot.
func (m *Manager) SetRestorer(r Restorer) {
	m.restorer = r
}

// Get returns the running tracker for id.UserID, creating and starting it
// on first use.
func (m *Manager) Get(id Identity) (*Tracker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrManagerClosed
	}

	t, found, err := m.cache.GetOrAdd(id.UserID, func() (*Tracker, error) {
		t := NewTracker(id, m.cfg, m.syncer, m.logger)
		t.SetRecorder(m.recorder)
		m.restore(t)
		if err := t.Start(m.ctx); err != nil {
			return nil, err
		}
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("workspace: starting tracker for %q: %w", id.UserID, err)
	}
	if !found {
		m.logger.Debug().Str("user_id", id.UserID).Msg("workspace created")
		m.recorder.WorkspacesLive(m.cache.Len())
	}
	return t, nil
}

// Lookup returns the tracker for userID without creating one.
func (m *Manager) Lookup(userID string) (*Tracker, bool) {
	return m.cache.Get(userID)
}

// Len returns the number of live trackers.
func (m *Manager) Len() int {
	return m.cache.Len()
}

// ConnectionSummary counts live trackers by connection status.
func (m *Manager) ConnectionSummary() map[ConnectionStatus]int {
	out := make(map[ConnectionStatus]int)
	for _, t := range m.cache.Values() {
		out[t.current().ConnectionStatus]++
	}
	return out
}

// SyncAll runs one sync cycle on every live tracker and joins the errors.
func (m *Manager) SyncAll(ctx context.Context) error {
	var errs []error
	for _, t := range m.cache.Values() {
		if err := t.SyncNow(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
			errs = append(errs, fmt.Errorf("%s: %w", t.Identity().UserID, err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes and stops every tracker. Get fails afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.closing.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), m.flushTimeout())
	if err := m.SyncAll(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("final workspace sync incomplete")
	}
	cancel()
	m.cache.Purge()
	m.logger.Info().Msg("workspace manager closed")
}

func (m *Manager) restore(t *Tracker) {
	if m.restorer == nil {
		return
	}
	userID := t.Identity().UserID
	ctx, cancel := context.WithTimeout(m.ctx, m.flushTimeout())
	defer cancel()

	s, ok, err := m.restorer.Restore(ctx, userID)
	if err != nil {
		m.logger.Warn().Err(err).Str("user_id", userID).Msg("workspace restore failed, starting empty")
		return
	}
	if !ok {
		return
	}
	if err := t.Restore(s); err != nil {
		m.logger.Warn().Err(err).Str("user_id", userID).Msg("workspace restore rejected")
		return
	}
	m.logger.Debug().Str("user_id", userID).Int("activities", len(s.Activities)).Msg("workspace restored")
}

func (m *Manager) flushTimeout() time.Duration {
	if m.FlushTimeout > 0 {
		return m.FlushTimeout
	}
	return DefaultFlushTimeout
}

// evict flushes the tracker's state to the syncer, then stops it. Close
// flushes every tracker itself before purging.
func (m *Manager) evict(userID string, t *Tracker) {
	if !m.closing.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), m.flushTimeout())
		if err := t.SyncNow(ctx); err != nil {
			m.logger.Warn().Err(err).Str("user_id", userID).Msg("final workspace sync failed")
		}
		cancel()
	}
	t.Stop()
	m.recorder.WorkspacesLive(m.cache.Len())
	m.logger.Debug().Str("user_id", userID).Msg("workspace evicted")
}
