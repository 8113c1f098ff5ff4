package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot(sessionID string) Snapshot {
	return Snapshot{
		SessionID: sessionID,
		Messages: []Message{
			{Role: "user", Content: "hello", Timestamp: time.Unix(1700000000, 0).UTC()},
			{Role: "assistant", Content: "hi there", Timestamp: time.Unix(1700000001, 0).UTC()},
		},
		Summary:    "greeting exchange",
		ExportedAt: time.Unix(1700000002, 0).UTC(),
	}
}

func newRedisStore(t *testing.T) *RedisSessionStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisSessionStore(rdb, time.Hour, nil)
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := newRedisStore(t)
	ctx := context.Background()
	snap := testSnapshot("s1")

	require.NoError(t, store.Save(ctx, snap))

	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, snap.SessionID, got.SessionID)
	assert.Equal(t, snap.Summary, got.Summary)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "hello", got.Messages[0].Content)
}

func TestRedisSessionStoreMissing(t *testing.T) {
	t.Parallel()

	store := newRedisStore(t)
	_, err := store.Load(context.Background(), "absent")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestRedisSessionStoreDelete(t *testing.T) {
	t.Parallel()

	store := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, testSnapshot("s1")))
	require.NoError(t, store.Delete(ctx, "s1"))

	_, err := store.Load(ctx, "s1")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	// Deleting again is not an error.
	assert.NoError(t, store.Delete(ctx, "s1"))
}

func TestInMemorySessionStore(t *testing.T) {
	t.Parallel()

	store := NewInMemorySessionStore()
	ctx := context.Background()
	snap := testSnapshot("s1")

	require.NoError(t, store.Save(ctx, snap))
	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, snap.Messages, got.Messages)

	// The stored snapshot is isolated from caller mutation.
	got.Messages[0].Content = "mutated"
	again, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Messages[0].Content)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Load(ctx, "s1")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}
