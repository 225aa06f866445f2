package hash

import (
	"github.com/dgraph-io/ristretto/v2"

	"latchdb/types"
)

// DirectorySnapshot is a decoded, point-in-time copy of a directory page's
// structural fields, independent of any buffer-pool pin.
type DirectorySnapshot struct {
	GlobalDepth uint32
	LocalDepth  []uint32
	BucketPage  []types.PageID
}

// directoryCache is an advisory accelerator backing Table.Snapshot, the
// diagnostics accessor a monitoring caller uses to read the directory's
// current fan-out shape without paying for a buffer-pool fetch/unpin on
// every poll. It is never consulted by Insert/GetValue/Remove/SplitInsert/
// Merge — every
// structural operation still goes through the Pool and the table's own
// latches, so a stale or evicted cache entry can never produce an
// incorrect mutation. Entries are invalidated with Del before the writer
// that changed the directory releases its write latch, per this index's
// cache-coherence note.
type directoryCache struct {
	c *ristretto.Cache[types.PageID, DirectorySnapshot]
}

func newDirectoryCache() *directoryCache {
	c, err := ristretto.NewCache(&ristretto.Config[types.PageID, DirectorySnapshot]{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		// Advisory only: fall back to a disabled cache rather than fail
		// construction of the index over a diagnostics path.
		return &directoryCache{c: nil}
	}
	return &directoryCache{c: c}
}

func (dc *directoryCache) Get(id types.PageID) (DirectorySnapshot, bool) {
	if dc == nil || dc.c == nil {
		return DirectorySnapshot{}, false
	}
	return dc.c.Get(id)
}

func (dc *directoryCache) Set(id types.PageID, snap DirectorySnapshot) {
	if dc == nil || dc.c == nil {
		return
	}
	dc.c.Set(id, snap, 1)
	dc.c.Wait()
}

// Del invalidates id. Callers holding table_latch in exclusive mode call
// this for every directory mutation before unlocking, so the next reader
// either misses (and re-snapshots from the authoritative page) or observes
// a fresh entry — never a torn one.
func (dc *directoryCache) Del(id types.PageID) {
	if dc == nil || dc.c == nil {
		return
	}
	dc.c.Del(id)
}

// snapshot decodes d's current structural fields into a DirectorySnapshot.
func snapshot(d DirectoryView) DirectorySnapshot {
	size := d.Size()
	snap := DirectorySnapshot{
		GlobalDepth: d.GetGlobalDepth(),
		LocalDepth:  make([]uint32, size),
		BucketPage:  make([]types.PageID, size),
	}
	for i := 0; i < size; i++ {
		snap.LocalDepth[i] = d.GetLocalDepth(i)
		snap.BucketPage[i] = d.GetBucketPageID(i)
	}
	return snap
}
