package snapshot_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/eenlars/evoflow/pkg/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot(runID string) snapshot.Snapshot {
	return snapshot.Snapshot{
		RunID:            runID,
		GenerationID:     "gen-3",
		GenerationNumber: 3,
		BestScore:        0.81,
		TotalCostUSD:     2.35,
		VersionIDs:       []string{"v1", "v2", "v3"},
		SavedAt:          time.Now().UTC().Truncate(time.Second),
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewMemoryStore()

	t.Run("load of unknown run reports not found", func(t *testing.T) {
		_, err := store.Load(ctx, "missing")
		assert.ErrorIs(t, err, snapshot.ErrNotFound)
	})

	t.Run("save then load round-trips", func(t *testing.T) {
		snap := sampleSnapshot("run-1")
		require.NoError(t, store.Save(ctx, snap))

		got, err := store.Load(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, snap, got)
	})

	t.Run("save overwrites the previous generation", func(t *testing.T) {
		snap := sampleSnapshot("run-1")
		snap.GenerationNumber = 4
		require.NoError(t, store.Save(ctx, snap))

		got, err := store.Load(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, 4, got.GenerationNumber)
	})

	t.Run("delete removes the snapshot", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "run-1"))
		_, err := store.Load(ctx, "run-1")
		assert.ErrorIs(t, err, snapshot.ErrNotFound)
	})

	t.Run("cancelled context is honored", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		assert.Error(t, store.Save(cancelled, sampleSnapshot("run-2")))
	})
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping Redis snapshot tests")
	}

	store, err := snapshot.NewRedisStore(snapshot.RedisOptions{Addr: addr})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	snap := sampleSnapshot("redis-test-run")
	defer func() { _ = store.Delete(ctx, "redis-test-run") }()

	require.NoError(t, store.Save(ctx, snap))
	got, err := store.Load(ctx, "redis-test-run")
	require.NoError(t, err)
	assert.Equal(t, snap.VersionIDs, got.VersionIDs)
	assert.Equal(t, snap.GenerationNumber, got.GenerationNumber)

	require.NoError(t, store.Delete(ctx, "redis-test-run"))
	_, err = store.Load(ctx, "redis-test-run")
	assert.ErrorIs(t, err, snapshot.ErrNotFound)
}
