package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, mr, cleanup
}

func TestStore_CreateAndGet(t *testing.T) {
	rdb, _, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewStore(rdb, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx, 7, "admin")
	require.NoError(t, err)
	assert.Len(t, sess.Token, 64)
	assert.Equal(t, int64(7), sess.AdminID)

	got, err := store.Get(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.AdminID)
	assert.Equal(t, "admin", got.Username)
	assert.Equal(t, sess.Token, got.Token)
}

func TestStore_TokensAreUnique(t *testing.T) {
	rdb, _, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewStore(rdb, time.Hour)
	ctx := context.Background()

	a, err := store.Create(ctx, 1, "admin")
	require.NoError(t, err)
	b, err := store.Create(ctx, 1, "admin")
	require.NoError(t, err)

	assert.NotEqual(t, a.Token, b.Token)
}

func TestStore_ExpiryCheckedOnRead(t *testing.T) {
	rdb, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(rdb, time.Hour).WithClock(func() time.Time { return now })
	ctx := context.Background()

	sess, err := store.Create(ctx, 1, "admin")
	require.NoError(t, err)

	// redis key 还在，但记录里的 expires_at 已过
	now = now.Add(61 * time.Minute)
	_, err = store.Get(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.False(t, mr.Exists(keyPrefix+sess.Token))
}

func TestStore_ExpiredByTTL(t *testing.T) {
	rdb, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewStore(rdb, time.Minute)
	ctx := context.Background()

	sess, err := store.Create(ctx, 1, "admin")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Get(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_Delete(t *testing.T) {
	rdb, _, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewStore(rdb, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx, 1, "admin")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, sess.Token))

	_, err = store.Get(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_GetUnknownAndEmpty(t *testing.T) {
	rdb, _, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewStore(rdb, time.Hour)
	ctx := context.Background()

	_, err := store.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = store.Get(ctx, "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_CorruptRecord(t *testing.T) {
	rdb, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewStore(rdb, time.Hour)
	require.NoError(t, mr.Set(keyPrefix+"bad", "{not json"))

	_, err := store.Get(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.False(t, mr.Exists(keyPrefix+"bad"))
}
