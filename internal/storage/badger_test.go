package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
)

func TestBadgerRoundTrip(t *testing.T) {
	store, err := NewBadgerStorage(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.NoError(t, store.Save(ctx, testSession()))

	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "autumn-batch", loaded.Label)
	assert.Equal(t, models.JobStatusProcessing, loaded.Workers[0].Queue.Jobs[1].Status)

	require.NoError(t, store.Clear(ctx))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)
	require.NoError(t, store.Clear(ctx))
}

func TestMemoryStorageIsolatesSnapshots(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	session := testSession()
	require.NoError(t, store.Save(ctx, session))
	session.Label = "mutated after save"

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "autumn-batch", loaded.Label)
	assert.Equal(t, 1, store.Saves())

	require.NoError(t, store.Clear(ctx))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestOpenSelectsBackend(t *testing.T) {
	repo, err := Open("memory", "", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, repo)

	repo, err = Open("sqlite", t.TempDir()+"/pq.db", "")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStorage{}, repo)
	require.NoError(t, repo.Close())
}
