package subscription

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upgrade-alerts/internal/storage"
)

type failingStore struct {
	*storage.MemoryStore
	failSave bool
}

func (f *failingStore) Save(ctx context.Context, subs storage.Subscriptions) error {
	if f.failSave {
		return errors.New("disk full")
	}
	return f.MemoryStore.Save(ctx, subs)
}

func TestSubscribeReportsAdded(t *testing.T) {
	ctx := context.Background()
	reg, err := Open(ctx, storage.NewMemoryStore(), zerolog.Nop())
	require.NoError(t, err)

	added, err := reg.Subscribe(ctx, 7, []string{"Osmosis", " cosmos ", "osmosis"})
	require.NoError(t, err)
	assert.Equal(t, []string{"osmosis", "cosmos"}, added)

	added, err = reg.Subscribe(ctx, 7, []string{"cosmos"})
	require.NoError(t, err)
	assert.Empty(t, added)

	assert.Equal(t, []string{"cosmos", "osmosis"}, reg.Networks(7))
	assert.Equal(t, []int64{7}, reg.Recipients("osmosis"))
	assert.Empty(t, reg.Recipients("juno"))
}

func TestUnsubscribeReportsRemoved(t *testing.T) {
	ctx := context.Background()
	reg, err := Open(ctx, storage.NewMemoryStore(), zerolog.Nop())
	require.NoError(t, err)

	_, err = reg.Subscribe(ctx, 1, []string{"cosmos", "osmosis"})
	require.NoError(t, err)

	removed, err := reg.Unsubscribe(ctx, 1, []string{"juno", "COSMOS"})
	require.NoError(t, err)
	assert.Equal(t, []string{"cosmos"}, removed)
	assert.Equal(t, []string{"osmosis"}, reg.Networks(1))

	removed, err = reg.Unsubscribe(ctx, 1, []string{"osmosis"})
	require.NoError(t, err)
	assert.Equal(t, []string{"osmosis"}, removed)
	assert.Zero(t, reg.Len(), "recipients without networks are dropped")
}

func TestRegistryPersistsThroughFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "subs.json")
	store, err := storage.NewFileStore(path)
	require.NoError(t, err)

	reg, err := Open(ctx, store, zerolog.Nop())
	require.NoError(t, err)
	_, err = reg.Subscribe(ctx, 100, []string{"cosmos"})
	require.NoError(t, err)
	_, err = reg.Subscribe(ctx, -200, []string{"osmosis", "cosmos"})
	require.NoError(t, err)

	reopened, err := Open(ctx, store, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, reg.Snapshot(), reopened.Snapshot())
	assert.Equal(t, []int64{-200, 100}, reopened.Recipients("cosmos"))
}

func TestSaveFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: storage.NewMemoryStore()}
	reg, err := Open(ctx, store, zerolog.Nop())
	require.NoError(t, err)

	_, err = reg.Subscribe(ctx, 1, []string{"cosmos"})
	require.NoError(t, err)

	store.failSave = true
	_, err = reg.Subscribe(ctx, 1, []string{"osmosis"})
	require.Error(t, err)
	assert.Equal(t, []string{"cosmos"}, reg.Networks(1))

	_, err = reg.Unsubscribe(ctx, 1, []string{"cosmos"})
	require.Error(t, err)
	assert.Equal(t, []int64{1}, reg.Recipients("cosmos"))
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	ctx := context.Background()
	reg, err := Open(ctx, storage.NewMemoryStore(), zerolog.Nop())
	require.NoError(t, err)
	_, err = reg.Subscribe(ctx, 1, []string{"cosmos"})
	require.NoError(t, err)

	snap := reg.Snapshot()
	snap[1][0] = "mutated"
	assert.Equal(t, []string{"cosmos"}, reg.Networks(1))
}
