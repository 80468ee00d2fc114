package broker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T) (*Broker, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, 0), rdb
}

func TestBroker_AppendThenReadBatch(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	key := EventStreamKey("tenant-a")
	id, err := b.Append(ctx, key, map[string]string{"event_kind": "comment", "comment": "hi"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs, err := b.ReadBatch(ctx, map[string]string{key: "0"}, 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, key, msgs[0].Stream)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, "comment", msgs[0].Fields["event_kind"])
}

func TestBroker_ReadBatchCursorExcludesAlreadySeen(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	key := EventStreamKey("tenant-a")
	firstID, err := b.Append(ctx, key, map[string]string{"event_kind": "comment"})
	require.NoError(t, err)
	_, err = b.Append(ctx, key, map[string]string{"event_kind": "gift"})
	require.NoError(t, err)

	msgs, err := b.ReadBatch(ctx, map[string]string{key: firstID}, 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "gift", msgs[0].Fields["event_kind"])
}

func TestBroker_ReadBatchTimesOutWithNoEntries(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	key := EventStreamKey("tenant-empty")
	msgs, err := b.ReadBatch(ctx, map[string]string{key: "0"}, 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestBroker_ReadBatchAcrossMultipleStreams(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	keyA := EventStreamKey("tenant-a")
	keyB := EventStreamKey("tenant-b")
	_, err := b.Append(ctx, keyA, map[string]string{"event_kind": "like"})
	require.NoError(t, err)
	_, err = b.Append(ctx, keyB, map[string]string{"event_kind": "follow"})
	require.NoError(t, err)

	msgs, err := b.ReadBatch(ctx, map[string]string{keyA: "0", keyB: "0"}, 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestBroker_AppendTrimsToMaxLen(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	b := New(rdb, 3)

	ctx := context.Background()
	key := EventStreamKey("tenant-trim")
	for i := 0; i < 10; i++ {
		_, err := b.Append(ctx, key, map[string]string{"event_kind": "like"})
		require.NoError(t, err)
	}

	length, err := rdb.XLen(ctx, key).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, length, int64(3))
}
