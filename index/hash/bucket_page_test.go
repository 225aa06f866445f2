package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latchdb/storage/page"
)

func newTestBucketPage() (*page.Page, Bucket[int32, int32]) {
	pg := &page.Page{}
	b := NewBucket[int32, int32](Int32Codec{}, Int32Codec{}, CompareInt32)
	b.Init(pg)
	return pg, b
}

func TestBucket_InsertGetValueRoundTrip(t *testing.T) {
	pg, b := newTestBucketPage()

	require.True(t, b.Insert(pg, 1, 100))
	require.True(t, b.Insert(pg, 2, 200))

	var out []int32
	require.True(t, b.GetValue(pg, 1, &out))
	assert.Equal(t, []int32{100}, out)
}

func TestBucket_DuplicatePairRejectedDistinctPairAllowed(t *testing.T) {
	pg, b := newTestBucketPage()

	require.True(t, b.Insert(pg, 1, 100))
	assert.False(t, b.Insert(pg, 1, 100))
	require.True(t, b.Insert(pg, 1, 101), "same key different value is a distinct pair")

	var out []int32
	require.True(t, b.GetValue(pg, 1, &out))
	assert.ElementsMatch(t, []int32{100, 101}, out)
}

func TestBucket_FillsToCapacityThenRejects(t *testing.T) {
	pg, b := newTestBucketPage()

	for i := 0; i < b.Capacity(); i++ {
		require.True(t, b.Insert(pg, int32(i), int32(i)), "slot %d", i)
	}
	assert.True(t, b.IsFull(pg))
	assert.False(t, b.Insert(pg, int32(b.Capacity()), int32(b.Capacity())), "bucket is at capacity")
}

func TestBucket_RemoveClearsReadableButKeepsOccupiedTombstone(t *testing.T) {
	pg, b := newTestBucketPage()

	require.True(t, b.Insert(pg, 1, 100))
	require.True(t, b.Insert(pg, 2, 200))

	require.True(t, b.Remove(pg, 1, 100))
	assert.True(t, b.IsOccupied(pg, 0), "occupied bit is a tombstone, never cleared by Remove")
	assert.False(t, b.IsReadable(pg, 0))

	var out []int32
	assert.False(t, b.GetValue(pg, 1, &out))
	assert.Empty(t, out)

	out = nil
	require.True(t, b.GetValue(pg, 2, &out))
	assert.Equal(t, []int32{200}, out)
}

func TestBucket_InsertReusesTombstonedSlot(t *testing.T) {
	pg, b := newTestBucketPage()

	require.True(t, b.Insert(pg, 1, 100))
	require.True(t, b.Remove(pg, 1, 100))
	require.True(t, b.Insert(pg, 2, 200), "must reuse slot 0's tombstone rather than grow past capacity")

	assert.True(t, b.IsOccupied(pg, 0))
	assert.True(t, b.IsReadable(pg, 0))
}

func TestBucket_CopyMappingsAndResetDrainsAndClears(t *testing.T) {
	pg, b := newTestBucketPage()
	require.True(t, b.Insert(pg, 1, 100))
	require.True(t, b.Insert(pg, 2, 200))
	require.True(t, b.Remove(pg, 1, 100))

	var out []KV[int32, int32]
	b.CopyMappingsAndReset(pg, &out)

	require.Len(t, out, 1, "only the still-readable pair is copied")
	assert.Equal(t, KV[int32, int32]{Key: 2, Val: 200}, out[0])
	assert.True(t, b.IsEmpty(pg))
	assert.False(t, b.IsOccupied(pg, 0), "Init clears occupied bits too")
}

func TestBucket_IsRepeat(t *testing.T) {
	pg, b := newTestBucketPage()
	require.True(t, b.Insert(pg, 1, 100))

	assert.True(t, b.IsRepeat(pg, 1, 100))
	assert.False(t, b.IsRepeat(pg, 1, 999))
	assert.False(t, b.IsRepeat(pg, 2, 100))
}
