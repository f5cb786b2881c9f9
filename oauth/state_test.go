package oauth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateStores(t *testing.T) map[string]StateStore {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return map[string]StateStore{
		"memory": NewMemoryStateStore(),
		"redis":  NewRedisStateStore(rdb, "ac"),
	}
}

func TestStateStoreRoundtrip(t *testing.T) {
	for name, store := range stateStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := State{Provider: "google", Nonce: "n-1", IssuedAt: time.Now().UTC()}

			require.NoError(t, store.Save(ctx, "state-1", st, time.Minute))

			got, err := store.Consume(ctx, "state-1")
			require.NoError(t, err)
			assert.Equal(t, "google", got.Provider)
			assert.Equal(t, "n-1", got.Nonce)
		})
	}
}

func TestStateStoreSingleUse(t *testing.T) {
	for name, store := range stateStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Save(ctx, "state-1", State{Provider: "github"}, time.Minute))

			_, err := store.Consume(ctx, "state-1")
			require.NoError(t, err)

			_, err = store.Consume(ctx, "state-1")
			assert.ErrorIs(t, err, ErrStateNotFound)
		})
	}
}

func TestStateStoreUnknownState(t *testing.T) {
	for name, store := range stateStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Consume(context.Background(), "never-saved")
			assert.ErrorIs(t, err, ErrStateNotFound)
		})
	}
}

func TestStateStoreRejectsInvalidEntries(t *testing.T) {
	for name, store := range stateStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.Error(t, store.Save(ctx, "", State{}, time.Minute))
			assert.Error(t, store.Save(ctx, "id", State{}, 0))
		})
	}
}

func TestMemoryStateStoreExpiry(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "state-1", State{Provider: "google"}, 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	_, err := store.Consume(ctx, "state-1")
	assert.ErrorIs(t, err, ErrStateNotFound)
}
