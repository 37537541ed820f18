package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/hexarena/internal/domain"
)

func record(id, status string) Record {
	return Record{
		BattleID:   id,
		Status:     status,
		Blob:       json.RawMessage(`{"epoch":3}`),
		NumericIDs: map[string]int{"p1": 1, "p2": 2},
		UpdatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func stores(t *testing.T) map[string]SnapshotStore {
	t.Helper()
	fileStore, err := NewFileStore(afero.NewMemMapFs(), "/snapshots")
	require.NoError(t, err)
	return map[string]SnapshotStore{
		"file":   fileStore,
		"memory": NewMemoryStore(),
	}
}

func TestSnapshotStores(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Load(ctx, "b1")
			assert.ErrorIs(t, err, domain.ErrNotFound)

			require.NoError(t, store.Save(ctx, record("b1", "LOBBY")))
			require.NoError(t, store.Save(ctx, record("b1", "ACTIVE")))
			require.NoError(t, store.Save(ctx, record("a0", "COMPLETED")))

			got, err := store.Load(ctx, "b1")
			require.NoError(t, err)
			assert.Equal(t, "ACTIVE", got.Status)
			assert.JSONEq(t, `{"epoch":3}`, string(got.Blob))
			assert.Equal(t, 2, got.NumericIDs["p2"])

			all, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "a0", all[0].BattleID)

			require.NoError(t, store.Delete(ctx, "b1"))
			require.NoError(t, store.Delete(ctx, "b1"))
			_, err = store.Load(ctx, "b1")
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewFileStore(fs, "/snapshots")
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), record("b1", "ACTIVE")))

	entries, err := afero.ReadDir(fs, "/snapshots")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b1.json", entries[0].Name())
}

func TestFileStore_RejectsUnsafeIDs(t *testing.T) {
	store, err := NewFileStore(afero.NewMemMapFs(), "/snapshots")
	require.NoError(t, err)

	err = store.Save(context.Background(), record("../escape", "LOBBY"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFileStore_ReadOnlyFsFails(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll("/snapshots", 0o755))
	_, err := NewFileStore(afero.NewReadOnlyFs(base), "/snapshots")
	assert.Error(t, err, "MkdirAll is refused on a read-only fs")

	store := &FileStore{fs: afero.NewReadOnlyFs(base), dir: "/snapshots"}
	assert.Error(t, store.Save(context.Background(), record("b1", "LOBBY")))
}

func TestMemoryStore_FailSaves(t *testing.T) {
	store := NewMemoryStore()
	boom := errors.New("disk full")
	store.FailSaves(boom)
	assert.ErrorIs(t, store.Save(context.Background(), record("b1", "LOBBY")), boom)
	assert.Equal(t, 0, store.Saves())

	store.FailSaves(nil)
	require.NoError(t, store.Save(context.Background(), record("b1", "LOBBY")))
	assert.Equal(t, 1, store.Saves())
}
