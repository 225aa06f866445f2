package hash

import (
	"fmt"
	"sync"

	"latchdb/internal/logging"
	"latchdb/types"
)

var log = logging.For("hashindex")

// Table is the extendible hash index of §4.E: Insert/GetValue/Remove
// with structural split/merge and directory expansion/shrink, latched per
// the two-level discipline of §4.E "Concurrency of the index" — a
// readers-writer tableLatch guarding the directory structure, plus each
// bucket page's own latch (borrowed from page.Page) for non-structural
// mutation.
type Table[K, V any] struct {
	pool            Pool
	directoryPageID types.PageID
	bucket          Bucket[K, V]
	hasher          Hasher[K]
	cmp             Comparator[K]
	cache           *directoryCache

	tableLatch sync.RWMutex
}

// NewTable allocates a directory page and two initial bucket pages at
// local depth 1, per §4.E "Initial state".
func NewTable[K, V any](pool Pool, keyCodec Codec[K], valCodec Codec[V], cmp Comparator[K], hasher Hasher[K]) (*Table[K, V], error) {
	dirID, dirPg, ok := pool.NewPage()
	if !ok {
		return nil, fmt.Errorf("hash: no frame available to allocate directory page")
	}
	b0ID, b0Pg, ok := pool.NewPage()
	if !ok {
		pool.UnpinPage(dirID, false)
		return nil, fmt.Errorf("hash: no frame available to allocate bucket page 0")
	}
	b1ID, b1Pg, ok := pool.NewPage()
	if !ok {
		pool.UnpinPage(dirID, false)
		pool.UnpinPage(b0ID, false)
		return nil, fmt.Errorf("hash: no frame available to allocate bucket page 1")
	}

	bucket := NewBucket[K, V](keyCodec, valCodec, cmp)
	bucket.Init(b0Pg)
	bucket.Init(b1Pg)
	InitDirectoryPage(dirPg, b0ID, b1ID)

	pool.UnpinPage(dirID, true)
	pool.UnpinPage(b0ID, true)
	pool.UnpinPage(b1ID, true)

	log.WithField("directory_page_id", dirID).WithField("bucket_capacity", bucket.Capacity()).Info("created extendible hash index")

	return &Table[K, V]{
		pool:            pool,
		directoryPageID: dirID,
		bucket:          bucket,
		hasher:          hasher,
		cmp:             cmp,
		cache:           newDirectoryCache(),
	}, nil
}

// fetchDirectory fetches and wraps the table's directory page.
func (t *Table[K, V]) fetchDirectory() (DirectoryView, bool) {
	pg, ok := t.pool.FetchPage(t.directoryPageID)
	if !ok {
		return DirectoryView{}, false
	}
	return NewDirectoryView(pg), true
}

func (t *Table[K, V]) unpinDirectory(d DirectoryView, dirty bool) {
	if dirty {
		t.cache.Del(t.directoryPageID)
	}
	t.pool.UnpinPage(t.directoryPageID, dirty)
}

// GetGlobalDepth returns the index's current global depth.
func (t *Table[K, V]) GetGlobalDepth() uint32 {
	t.tableLatch.RLock()
	defer t.tableLatch.RUnlock()

	d, ok := t.fetchDirectory()
	if !ok {
		return 0
	}
	defer t.unpinDirectory(d, false)
	return d.GetGlobalDepth()
}

// Snapshot returns the directory's current structural shape (global depth,
// local depths, bucket pointers) for diagnostics and monitoring callers,
// consulting the advisory directory cache before paying for a buffer-pool
// fetch. A cache miss re-derives the snapshot from the authoritative
// directory page and populates the cache for the next caller; a hit never
// touches the pool at all. Unlike GetValue/Insert/Remove, this path is
// read-only with respect to index structure and never needs to invalidate
// anything itself — unpinDirectory's Del call on every structural writer is
// what keeps a stale entry from ever being served here.
func (t *Table[K, V]) Snapshot() (DirectorySnapshot, error) {
	t.tableLatch.RLock()
	defer t.tableLatch.RUnlock()

	if snap, ok := t.cache.Get(t.directoryPageID); ok {
		return snap, nil
	}

	d, ok := t.fetchDirectory()
	if !ok {
		return DirectorySnapshot{}, fmt.Errorf("hash: directory page %d not resident", t.directoryPageID)
	}
	snap := snapshot(d)
	t.unpinDirectory(d, false)
	t.cache.Set(t.directoryPageID, snap)
	return snap, nil
}

// locateBucket computes the directory slot and bucket page id for key
// under d, which must already be fetched.
func (t *Table[K, V]) locateBucket(d DirectoryView, k K) (idx int, bucketID types.PageID) {
	h := t.hasher(k)
	idx = d.DirectoryIndex(h)
	bucketID = d.GetBucketPageID(idx)
	return idx, bucketID
}

// GetValue appends every value stored under k to out and reports whether
// any were found.
func (t *Table[K, V]) GetValue(k K, out *[]V) bool {
	t.tableLatch.RLock()
	defer t.tableLatch.RUnlock()

	d, ok := t.fetchDirectory()
	if !ok {
		return false
	}
	_, bucketID := t.locateBucket(d, k)
	t.unpinDirectory(d, false)

	bucketPg, ok := t.pool.FetchPage(bucketID)
	if !ok {
		return false
	}
	bucketPg.RLock()
	found := t.bucket.GetValue(bucketPg, k, out)
	bucketPg.RUnlock()
	t.pool.UnpinPage(bucketID, false)
	return found
}

// Insert is the fast path of §4.E: a single bucket write under the
// table's shared latch. On a full bucket it falls through to SplitInsert.
func (t *Table[K, V]) Insert(k K, v V) bool {
	t.tableLatch.RLock()

	d, ok := t.fetchDirectory()
	if !ok {
		t.tableLatch.RUnlock()
		return false
	}
	_, bucketID := t.locateBucket(d, k)
	t.unpinDirectory(d, false)

	bucketPg, ok := t.pool.FetchPage(bucketID)
	if !ok {
		t.tableLatch.RUnlock()
		return false
	}
	bucketPg.Lock()
	inserted := t.bucket.Insert(bucketPg, k, v)
	if inserted {
		bucketPg.Unlock()
		t.pool.UnpinPage(bucketID, true)
		t.tableLatch.RUnlock()
		return true
	}

	full := t.bucket.IsFull(bucketPg)
	var repeat bool
	if full {
		repeat = t.bucket.IsRepeat(bucketPg, k, v)
	}
	bucketPg.Unlock()
	t.pool.UnpinPage(bucketID, false)
	t.tableLatch.RUnlock()

	if !full || repeat {
		// Bucket had room (so this was a duplicate pair), or the bucket
		// is full and already holds this exact pair — either way, no split.
		return false
	}
	return t.splitInsert(k, v)
}

// splitInsert re-enters under the table's exclusive latch, splitting the
// target bucket until the key fits or MAX_DEPTH is exhausted, per
// §4.E SplitInsert / design note "recurse at most MAX_DEPTH -
// global_depth_on_entry times". Implemented as a bounded loop rather than
// recursion since sync.RWMutex is not reentrant.
func (t *Table[K, V]) splitInsert(k K, v V) bool {
	startDepth := t.GetGlobalDepth()
	maxAttempts := MaxDepth - int(startDepth) + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, done := t.splitInsertOnce(k, v)
		if done {
			return result
		}
	}
	log.WithField("max_depth", MaxDepth).Warn("split insert exhausted recursion bound without placing key")
	return false
}

// splitInsertOnce performs one exclusive-latched attempt. done is false
// only when a split happened and the caller should retry the insert.
func (t *Table[K, V]) splitInsertOnce(k K, v V) (result bool, done bool) {
	t.tableLatch.Lock()
	defer t.tableLatch.Unlock()

	d, ok := t.fetchDirectory()
	if !ok {
		return false, true
	}
	i, bucketID := t.locateBucket(d, k)

	bucketPg, ok := t.pool.FetchPage(bucketID)
	if !ok {
		t.unpinDirectory(d, false)
		return false, true
	}

	// Re-check: another writer may have made room since the shared-path
	// attempt failed.
	if t.bucket.Insert(bucketPg, k, v) {
		t.pool.UnpinPage(bucketID, true)
		t.unpinDirectory(d, false)
		return true, true
	}

	if !t.bucket.IsFull(bucketPg) {
		t.pool.UnpinPage(bucketID, false)
		t.unpinDirectory(d, false)
		return false, true
	}
	if t.bucket.IsRepeat(bucketPg, k, v) {
		t.pool.UnpinPage(bucketID, false)
		t.unpinDirectory(d, false)
		return false, true
	}

	if d.GetGlobalDepth() >= MaxDepth && d.GetLocalDepth(i) >= MaxDepth {
		// Cannot expand further: fail gracefully without touching the directory.
		t.pool.UnpinPage(bucketID, false)
		t.unpinDirectory(d, false)
		return false, true
	}

	// Step 1: bump local depth, growing the directory if it now exceeds
	// global depth.
	d.IncrLocalDepth(i)
	grew := false
	if d.GetLocalDepth(i) > d.GetGlobalDepth() {
		d.Grow()
		grew = true
	}

	// Step 2: allocate the split image bucket.
	s := d.SplitImageIndex(i)
	newBucketID, newBucketPg, ok := t.pool.NewPage()
	if !ok {
		// Roll the local-depth bump back on i and, if the directory grew,
		// on its mirror s (which Grow copied the bumped depth into); the
		// grown directory is otherwise harmless since the mirrored slots
		// still point at the same buckets.
		d.DecrLocalDepth(i)
		if grew {
			d.DecrLocalDepth(s)
		}
		t.pool.UnpinPage(bucketID, false)
		t.unpinDirectory(d, grew)
		return false, true
	}
	t.bucket.Init(newBucketPg)
	d.SetLocalDepth(s, d.GetLocalDepth(i))
	d.SetBucketPageID(s, newBucketID)

	// Step 3: drain the old bucket and redistribute by the new local-depth mask.
	var entries []KV[K, V]
	t.bucket.CopyMappingsAndReset(bucketPg, &entries)
	mask := d.LocalDepthMask(i)
	iMasked := uint64(i) & mask
	for _, e := range entries {
		h := t.hasher(e.Key)
		if h&mask == iMasked {
			t.bucket.Insert(bucketPg, e.Key, e.Val)
		} else {
			t.bucket.Insert(newBucketPg, e.Key, e.Val)
		}
	}

	// Step 4: pointer-fix sweep, corrected (see DESIGN.md) to scan every
	// directory slot rather than stepping outward from s with an
	// unsigned-underflow-prone downward loop.
	fixSplitPointers(d, i, s)

	t.pool.UnpinPage(bucketID, true)
	t.pool.UnpinPage(newBucketID, true)
	t.unpinDirectory(d, true)

	return false, false
}

// fixSplitPointers repoints every directory slot that previously mapped to
// bucket i (the bucket just split) to whichever of {i, s} matches its top
// bit at the new local depth, per §4.E step 4.
func fixSplitPointers(d DirectoryView, i, s int) {
	newDepth := d.GetLocalDepth(i)
	if newDepth == 0 {
		return
	}
	oldMask := uint64(0)
	if newDepth > 1 {
		oldMask = uint64(1)<<(newDepth-1) - 1
	}
	topBit := uint64(1) << (newDepth - 1)
	iTop := uint64(i) & topBit
	iBucket := d.GetBucketPageID(i)
	sBucket := d.GetBucketPageID(s)

	size := d.Size()
	for idx := 0; idx < size; idx++ {
		if uint64(idx)&oldMask != uint64(i)&oldMask {
			continue
		}
		if uint64(idx)&topBit == iTop {
			d.SetBucketPageID(idx, iBucket)
		} else {
			d.SetBucketPageID(idx, sBucket)
		}
		d.SetLocalDepth(idx, newDepth)
	}
}

// Remove deletes the (k,v) pair if present, then attempts to merge the
// bucket with its sibling, per §4.E Remove/Merge.
func (t *Table[K, V]) Remove(k K, v V) bool {
	t.tableLatch.RLock()

	d, ok := t.fetchDirectory()
	if !ok {
		t.tableLatch.RUnlock()
		return false
	}
	_, bucketID := t.locateBucket(d, k)
	t.unpinDirectory(d, false)

	bucketPg, ok := t.pool.FetchPage(bucketID)
	if !ok {
		t.tableLatch.RUnlock()
		return false
	}
	bucketPg.Lock()
	removed := t.bucket.Remove(bucketPg, k, v)
	bucketPg.Unlock()
	t.pool.UnpinPage(bucketID, removed)
	t.tableLatch.RUnlock()

	if !removed {
		return false
	}
	t.merge(k)
	return true
}

// merge repeatedly coalesces the bucket holding key with its sibling while
// that bucket is empty and the two local depths agree, per §4.E Merge. Each iteration
// re-enters under the exclusive table latch and recomputes the bucket for
// key, since the directory may have changed underfoot.
func (t *Table[K, V]) merge(k K) {
	for {
		if !t.mergeOnce(k) {
			return
		}
	}
}

// mergeOnce performs at most one coalescing step. It returns true if a
// merge happened and the caller should check again.
func (t *Table[K, V]) mergeOnce(k K) bool {
	t.tableLatch.Lock()
	defer t.tableLatch.Unlock()

	d, ok := t.fetchDirectory()
	if !ok {
		return false
	}
	i, bucketID := t.locateBucket(d, k)

	bucketPg, ok := t.pool.FetchPage(bucketID)
	if !ok {
		t.unpinDirectory(d, false)
		return false
	}

	depth := d.GetLocalDepth(i)
	empty := t.bucket.IsEmpty(bucketPg)
	t.pool.UnpinPage(bucketID, false)

	if !empty || depth <= 1 {
		t.unpinDirectory(d, false)
		return false
	}

	s := d.SplitImageIndex(i)
	if d.GetLocalDepth(s) != depth {
		t.unpinDirectory(d, false)
		return false
	}

	sBucketID := d.GetBucketPageID(s)
	newDepth := depth - 1
	d.SetLocalDepth(s, newDepth)

	// The congruence class to repoint is keyed by the *new* (shrunk) depth,
	// not the old one: at the old depth, i and s differ in exactly their
	// top bit, and merging collapses both of their slot groups into one.
	// Masking by the old depth would only catch the half of slots that
	// used to point at the bucket being deleted, leaving the sibling's own
	// slots with a stale local depth.
	mask := uint64(1)<<newDepth - 1
	iPattern := uint64(i) & mask
	size := d.Size()
	for idx := 0; idx < size; idx++ {
		if uint64(idx)&mask == iPattern {
			d.SetBucketPageID(idx, sBucketID)
			d.SetLocalDepth(idx, newDepth)
		}
	}

	t.pool.DeletePage(bucketID)

	if d.CanShrink() {
		d.Shrink()
	}
	t.unpinDirectory(d, true)
	return true
}

// VerifyIntegrity checks the directory's congruence invariant (§8,
// invariant 3).
func (t *Table[K, V]) VerifyIntegrity() error {
	t.tableLatch.RLock()
	defer t.tableLatch.RUnlock()

	d, ok := t.fetchDirectory()
	if !ok {
		return fmt.Errorf("hash: directory page %d not resident", t.directoryPageID)
	}
	defer t.unpinDirectory(d, false)
	return d.VerifyIntegrity()
}
