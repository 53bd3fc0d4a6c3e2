package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/nclamvn/prismy-production-sub002/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "workspace.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_CreatesSchema(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"workspace_snapshots", "activities", "operations", "meta"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}

	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestNew_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspace.db")
	s, err := New(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestMigrate_FailsOnCorruptVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspace.db")
	s, err := New(path, zerolog.Nop())
	require.NoError(t, err)
	_, err = s.db.Exec(`UPDATE meta SET value = 'two' WHERE key = 'schema_version'`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = New(path, zerolog.Nop())
	assert.ErrorContains(t, err, "invalid schema version")
}

func TestMigrate_ComparesVersionsNumerically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspace.db")
	s, err := New(path, zerolog.Nop())
	require.NoError(t, err)
	_, err = s.db.Exec(`UPDATE meta SET value = '10' WHERE key = 'schema_version'`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, v, "a newer schema is left untouched")
}

func TestSnapshot_UpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetSnapshot(ctx, "alice")
	assert.ErrorIs(t, err, perrors.ErrNotFound)

	at := time.Now().Truncate(time.Millisecond)
	require.NoError(t, s.SaveSnapshot(ctx, &Snapshot{
		UserID: "alice", Locale: "en", Mode: "workspace", Payload: []byte(`{"a":1}`), SyncedAt: at,
	}))
	require.NoError(t, s.SaveSnapshot(ctx, &Snapshot{
		UserID: "alice", Locale: "vi", Mode: "translation", Payload: []byte(`{"a":2}`), SyncedAt: at.Add(time.Second),
	}))

	snap, err := s.GetSnapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "vi", snap.Locale)
	assert.Equal(t, "translation", snap.Mode)
	assert.JSONEq(t, `{"a":2}`, string(snap.Payload))
	assert.True(t, snap.SyncedAt.Equal(at.Add(time.Second)))

	n, err := s.CountSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestActivities_InsertIgnoreAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	var recs []ActivityRecord
	for i := 0; i < 5; i++ {
		recs = append(recs, ActivityRecord{
			ID:        fmt.Sprintf("activity_%d", i),
			UserID:    "alice",
			Type:      "translation",
			Mode:      "translation",
			Success:   i%2 == 0,
			Data:      []byte(fmt.Sprintf(`{"n":%d}`, i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	n, err := s.SaveActivities(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = s.SaveActivities(ctx, recs[3:])
	require.NoError(t, err)
	assert.Equal(t, 0, n, "activities are immutable once stored")

	_, err = s.SaveActivities(ctx, []ActivityRecord{{ID: "other_1", UserID: "bob", Type: "search", Mode: "workspace", CreatedAt: base}})
	require.NoError(t, err)

	got, err := s.ListActivities(ctx, "alice", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "activity_4", got[0].ID)
	assert.True(t, got[0].Success)
	assert.JSONEq(t, `{"n":4}`, string(got[0].Data))
	assert.Equal(t, "activity_2", got[2].ID)

	got, err = s.ListActivities(ctx, "bob", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Data)
}

func TestOperations_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := time.Now().Add(-time.Minute)

	require.NoError(t, s.SaveOperations(ctx, []OperationRecord{
		{ID: "op_1", UserID: "alice", Type: "translate", Status: "processing", Progress: 10, CreatedAt: created},
	}))
	done := time.Now()
	require.NoError(t, s.SaveOperations(ctx, []OperationRecord{
		{ID: "op_1", UserID: "alice", Type: "translate", Status: "completed", Progress: 100, CreatedAt: created, CompletedAt: &done},
	}))

	ops, err := s.ListOperations(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "completed", ops[0].Status)
	assert.Equal(t, 100, ops[0].Progress)
	require.NotNil(t, ops[0].CompletedAt)
}

func TestRunRetention(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-40 * 24 * time.Hour)
	fresh := time.Now()

	_, err := s.SaveActivities(ctx, []ActivityRecord{
		{ID: "a_old", UserID: "alice", Type: "search", Mode: "workspace", CreatedAt: old},
		{ID: "a_new", UserID: "alice", Type: "search", Mode: "workspace", CreatedAt: fresh},
	})
	require.NoError(t, err)
	require.NoError(t, s.SaveOperations(ctx, []OperationRecord{
		{ID: "op_old", UserID: "alice", Type: "ocr", Status: "completed", CreatedAt: old, CompletedAt: &old},
		{ID: "op_running", UserID: "alice", Type: "ocr", Status: "processing", CreatedAt: old},
	}))
	require.NoError(t, s.SaveSnapshot(ctx, &Snapshot{UserID: "ghost", Mode: "workspace", Payload: []byte(`{}`), SyncedAt: old}))
	require.NoError(t, s.SaveSnapshot(ctx, &Snapshot{UserID: "alice", Mode: "workspace", Payload: []byte(`{}`), SyncedAt: fresh}))

	res, err := s.RunRetention(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, RetentionResult{Activities: 1, Operations: 1, Snapshots: 1}, res)

	acts, err := s.ListActivities(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "a_new", acts[0].ID)

	ops, err := s.ListOperations(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "op_running", ops[0].ID, "unfinished operations are kept")

	_, err = s.GetSnapshot(ctx, "ghost")
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

func TestDBSizeBytes(t *testing.T) {
	s := newTestStore(t)
	size, err := s.DBSizeBytes()
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))
}
