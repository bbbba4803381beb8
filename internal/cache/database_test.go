package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/linkcard/internal/database/testutil"
	"github.com/charlesng35/linkcard/internal/models"
)

func newTestDatabaseStore(t *testing.T) *DatabaseStore {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	return NewDatabaseStore(db)
}

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	store := newTestDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "card:abc", []byte(`{"title":"x"}`), time.Hour))
	value, ok, err := store.Get(ctx, "card:abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"title":"x"}`, string(value))

	require.NoError(t, store.Set(ctx, "card:abc", []byte(`{"title":"y"}`), time.Hour))
	value, _, err = store.Get(ctx, "card:abc")
	require.NoError(t, err)
	require.Equal(t, `{"title":"y"}`, string(value))

	require.NoError(t, store.Delete(ctx, "card:abc"))
	_, ok, err = store.Get(ctx, "card:abc")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDatabaseStoreExpiry(t *testing.T) {
	store := newTestDatabaseStore(t)
	ctx := context.Background()
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "short", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "forever", []byte("2"), 0))

	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, ok, err := store.Get(ctx, "short")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = store.Get(ctx, "forever")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDatabaseStorePurgeExpired(t *testing.T) {
	store := newTestDatabaseStore(t)
	ctx := context.Background()
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, store.Set(ctx, "b", []byte("1"), time.Hour))
	require.NoError(t, store.Set(ctx, "c", []byte("1"), 0))

	store.now = func() time.Time { return now.Add(time.Minute) }
	removed, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var count int64
	require.NoError(t, store.db.Model(&models.CacheEntry{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestDatabaseStoreDeletePrefix(t *testing.T) {
	store := newTestDatabaseStore(t)
	ctx := context.Background()

	for _, key := range []string{"card:1", "card:2", "cardX3", "friendlink:feed:1"} {
		require.NoError(t, store.Set(ctx, key, []byte("v"), time.Hour))
	}

	removed, err := store.DeletePrefix(ctx, "card:")
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	_, ok, err := store.Get(ctx, "cardX3")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = store.Get(ctx, "friendlink:feed:1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDatabaseStoreIncrementWithTTL(t *testing.T) {
	store := newTestDatabaseStore(t)
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "ratelimit:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.InDelta(t, time.Minute.Seconds(), ttl.Seconds(), 1)

	count, _, err = store.IncrementWithTTL(ctx, "ratelimit:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestDatabaseStorePing(t *testing.T) {
	store := newTestDatabaseStore(t)
	require.NoError(t, store.Ping(context.Background()))

	var nilStore *DatabaseStore
	require.Error(t, nilStore.Ping(context.Background()))
}
