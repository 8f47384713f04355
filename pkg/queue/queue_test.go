package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacunalabs/blobcache/pkg/cacheerr"
	"github.com/lacunalabs/blobcache/pkg/storage"
)

func newTestQueue(t *testing.T) (*Queue, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	q := New(store, Options{IdleFlush: time.Hour, DepthThreshold: 1 << 20})
	t.Cleanup(func() { _ = q.Close() })
	return q, store
}

func TestQueueInsertThenGetAfterExplicitFlush(t *testing.T) {
	q, _ := newTestQueue(t)

	ires := q.Insert("k", []byte("v"), time.Time{}, "")
	q.Flush("")
	_, err := ires.Wait(context.Background())
	require.NoError(t, err)

	gres := q.Get("k", "")
	q.Flush("")
	out, err := gres.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Found)
	assert.Equal(t, []byte("v"), out.Value)
}

func TestQueueDepthThresholdTriggersFlush(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	q := New(store, Options{IdleFlush: time.Hour, DepthThreshold: 2})
	defer q.Close()

	res1 := q.Insert("a", []byte("1"), time.Time{}, "")
	res2 := q.Insert("b", []byte("2"), time.Time{}, "")

	_, err1 := res1.Wait(context.Background())
	_, err2 := res2.Wait(context.Background())
	require.NoError(t, err1)
	require.NoError(t, err2)

	got, err := store.Get("a", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)
}

func TestQueueWriteWinsLastOnCoalescedInserts(t *testing.T) {
	q, store := newTestQueue(t)

	r1 := q.Insert("k", []byte("first"), time.Time{}, "")
	r2 := q.Insert("k", []byte("second"), time.Time{}, "")
	q.Flush("")

	_, err1 := r1.Wait(context.Background())
	_, err2 := r2.Wait(context.Background())
	require.NoError(t, err1)
	require.NoError(t, err2)

	got, err := store.Get("k", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestQueueInvalidateAfterInsertRemovesKey(t *testing.T) {
	q, _ := newTestQueue(t)

	q.Insert("k", []byte("v"), time.Time{}, "")
	q.Invalidate("k", "")
	q.Flush("")

	res := q.Get("k", "")
	q.Flush("")
	out, err := res.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Found)
}

func TestQueueGetMissingKeyReturnsNotFound(t *testing.T) {
	q, _ := newTestQueue(t)

	res := q.Get("missing", "")
	q.Flush("")

	out, err := res.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Found)
}

func TestQueueBulkGetAcrossKeysOneBatch(t *testing.T) {
	q, _ := newTestQueue(t)

	q.Insert("a", []byte("1"), time.Time{}, "")
	q.Insert("b", []byte("2"), time.Time{}, "")
	q.Flush("")

	ra := q.Get("a", "")
	rb := q.Get("b", "")
	q.Flush("")

	outA, err := ra.Wait(context.Background())
	require.NoError(t, err)
	outB, err := rb.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []byte("1"), outA.Value)
	assert.Equal(t, []byte("2"), outB.Value)
}

func TestQueueGetAllKeysAndInvalidateAll(t *testing.T) {
	q, _ := newTestQueue(t)

	q.Insert("a", []byte("1"), time.Time{}, "T")
	q.Insert("b", []byte("2"), time.Time{}, "T")
	q.Flush("T")

	keysOut, err := q.GetAllKeys("T").Wait(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keysOut.Keys)

	_, err = q.InvalidateAll("T").Wait(context.Background())
	require.NoError(t, err)
	q.Flush("T")

	res := q.Get("a", "T")
	q.Flush("T")
	out, err := res.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Found)
}

func TestQueueGetCreatedAtIsIndividuallyExecuted(t *testing.T) {
	q, _ := newTestQueue(t)

	q.Insert("k", []byte("v"), time.Time{}, "")
	q.Flush("")

	res := q.GetCreatedAt("k", "")
	q.Flush("")
	out, err := res.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Found)
	assert.WithinDuration(t, time.Now().UTC(), out.CreatedAt, time.Minute)
}

func TestQueueVacuumRemovesExpiredEntries(t *testing.T) {
	q, store := newTestQueue(t)

	past := time.Now().UTC().Add(-time.Hour)
	q.Insert("expired", []byte("v"), past, "")
	q.Flush("")

	_, err := q.Vacuum().Wait(context.Background())
	require.NoError(t, err)

	keys, err := store.GetAllKeys("")
	require.NoError(t, err)
	assert.NotContains(t, keys, "expired")
}

func TestQueueRejectsSubmissionsAfterClose(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	q := New(store, Options{})
	require.NoError(t, q.Close())

	_, err = q.Insert("k", []byte("v"), time.Time{}, "").Wait(context.Background())
	assert.ErrorIs(t, err, cacheerr.ErrDisposed)
}

func TestQueueIdleFlushDrainsWithoutExplicitFlush(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	q := New(store, Options{IdleFlush: 20 * time.Millisecond, DepthThreshold: 1 << 20})
	defer q.Close()

	q.Insert("k", []byte("v"), time.Time{}, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var got []byte
	for {
		v, err := store.Get("k", "")
		if err == nil {
			got = v
			break
		}
		select {
		case <-ctx.Done():
			t.Fatal("idle flush never drained the buffered insert")
		case <-time.After(5 * time.Millisecond):
		}
	}
	assert.Equal(t, []byte("v"), got)
}
