package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ncastellanos/vecino/internal/database/testutil"
)

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Set(ctx, "greeting", []byte("hola"), time.Hour))

	value, found, err := store.Get(ctx, "greeting")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("hola"), value)

	// Overwrite through the upsert path.
	require.NoError(t, store.Set(ctx, "greeting", []byte("buenas"), time.Hour))
	value, found, err = store.Get(ctx, "greeting")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("buenas"), value)

	require.NoError(t, store.Delete(ctx, "greeting"))
	_, found, err = store.Get(ctx, "greeting")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStoreGetExpired(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "flash", []byte("x"), time.Millisecond))
	time.Sleep(10 * time.Millisecond)

	_, found, err := store.Get(ctx, "flash")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStoreIncrementWithTTL(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "counter", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Positive(t, ttl)

	count, _, err = store.IncrementWithTTL(ctx, "counter", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	// A different key counts independently.
	count, _, err = store.IncrementWithTTL(ctx, "other", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}
