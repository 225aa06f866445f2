// Package buffer implements §4.A–§4.C: the replacer, a single
// buffer-pool instance, and the sharded ParallelBufferPool built from N of
// them. One mutex per instance is held for the whole operation, guarding
// a frame table, free list, and eviction policy arranged as this design's
// pin-count/free-list/replacer three-way partition plus strided page-ID
// allocation.
package buffer

import (
	"fmt"
	"sync"

	"latchdb/internal/logging"
	"latchdb/internal/metrics"
	"latchdb/storage/disk"
	"latchdb/storage/page"
	"latchdb/types"
)

var log = logging.For("bufferpool")

// Instance is one independent, fixed-size page cache backed by its own
// disk.Manager. Every operation holds mu for its full duration,
// per §4.B.
type Instance struct {
	mu sync.Mutex

	index    int // this instance's index among N, used for strided allocation
	stride   int // N, the total instance count
	frames   []page.Page
	freeList []types.FrameID
	pageTbl  map[types.PageID]types.FrameID
	replacer *Replacer
	disk     *disk.Manager
	metrics  *metrics.BufferPool

	nextPageSeq int32 // next strided sequence number to allocate
}

// NewInstance creates an instance of poolSize frames, owning diskMgr, as
// the index'th of stride total instances in a ParallelBufferPool. index
// and stride may be 0 and 1 for a standalone instance.
func NewInstance(poolSize, index, stride int, diskMgr *disk.Manager, m *metrics.BufferPool) *Instance {
	inst := &Instance{
		index:    index,
		stride:   stride,
		frames:   make([]page.Page, poolSize),
		freeList: make([]types.FrameID, poolSize),
		pageTbl:  make(map[types.PageID]types.FrameID, poolSize),
		replacer: NewReplacer(),
		disk:     diskMgr,
		metrics:  m,
	}
	for i := 0; i < poolSize; i++ {
		inst.freeList[i] = types.FrameID(i)
	}
	return inst
}

// allocatePageID returns the next PageID this instance may allocate,
// satisfying pageID mod stride == index (§3). Must be called with
// mu held.
func (b *Instance) allocatePageID() types.PageID {
	id := types.PageID(int(b.nextPageSeq)*b.stride + b.index)
	b.nextPageSeq++
	return id
}

// pickFrame returns a frame ready to receive a new occupant: a free frame
// if one exists, otherwise the replacer's victim flushed if dirty. Must be
// called with mu held. Returns false if no frame is available.
func (b *Instance) pickFrame() (types.FrameID, bool) {
	if n := len(b.freeList); n > 0 {
		f := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		return f, true
	}

	frame, ok := b.replacer.Victim()
	if !ok {
		return 0, false
	}
	if b.metrics != nil {
		b.metrics.Evictions.Inc()
	}

	victim := &b.frames[frame]
	if victim.IsDirty {
		if err := b.disk.WritePage(victim.ID, &victim.Data); err != nil {
			log.WithError(err).WithField("page_id", victim.ID).Error("failed to flush victim page")
		}
		if b.metrics != nil {
			b.metrics.Flushes.Inc()
		}
	}
	delete(b.pageTbl, victim.ID)
	return frame, true
}

// NewPage allocates a fresh page, pins it, and writes the empty page to
// disk immediately so the identifier is durably allocated. Returns false
// if every frame is pinned and the free list is empty.
func (b *Instance) NewPage() (types.PageID, *page.Page, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, ok := b.pickFrame()
	if !ok {
		return types.InvalidPageID, nil, false
	}

	id := b.allocatePageID()
	fr := &b.frames[frame]
	fr.Reset(id)
	fr.PinCount = 1

	if err := b.disk.WritePage(id, &fr.Data); err != nil {
		log.WithError(err).WithField("page_id", id).Error("failed to durably allocate new page")
	}

	b.pageTbl[id] = frame
	b.replacer.Pin(frame)
	log.WithField("page_id", id).Debug("new page")
	return id, fr, true
}

// FetchPage returns the page for id, reading it from disk if not already
// resident. Returns false only when the page is not resident and no frame
// is evictable.
func (b *Instance) FetchPage(id types.PageID) (*page.Page, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frame, ok := b.pageTbl[id]; ok {
		fr := &b.frames[frame]
		fr.Lock()
		fr.PinCount++
		fr.Unlock()
		b.replacer.Pin(frame)
		if b.metrics != nil {
			b.metrics.Hits.Inc()
		}
		return fr, true
	}

	if b.metrics != nil {
		b.metrics.Misses.Inc()
	}

	frame, ok := b.pickFrame()
	if !ok {
		return nil, false
	}

	fr := &b.frames[frame]
	fr.Reset(id)
	if err := b.disk.ReadPage(id, &fr.Data); err != nil {
		log.WithError(err).WithField("page_id", id).Error("failed to read page from disk")
		b.freeList = append(b.freeList, frame)
		return nil, false
	}
	fr.PinCount = 1

	b.pageTbl[id] = frame
	b.replacer.Pin(frame)
	return fr, true
}

// UnpinPage decrements the pin count for id, ORing in isDirty. On reaching
// zero the frame becomes eligible for eviction. Returns false if id is not
// resident or is already unpinned.
func (b *Instance) UnpinPage(id types.PageID, isDirty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, ok := b.pageTbl[id]
	if !ok {
		return false
	}

	fr := &b.frames[frame]
	fr.Lock()
	defer fr.Unlock()

	if fr.PinCount == 0 {
		return false
	}

	if isDirty {
		fr.IsDirty = true
	}
	fr.PinCount--
	if fr.PinCount == 0 {
		b.replacer.Unpin(frame)
	}
	return true
}

// FlushPage writes id to disk if resident, clearing its dirty bit. Returns
// false if id is not resident.
func (b *Instance) FlushPage(id types.PageID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(id)
}

func (b *Instance) flushLocked(id types.PageID) bool {
	frame, ok := b.pageTbl[id]
	if !ok {
		return false
	}

	fr := &b.frames[frame]
	fr.Lock()
	defer fr.Unlock()

	if err := b.disk.WritePage(id, &fr.Data); err != nil {
		log.WithError(err).WithField("page_id", id).Error("failed to flush page")
		return false
	}
	fr.IsDirty = false
	if b.metrics != nil {
		b.metrics.Flushes.Inc()
	}
	return true
}

// DeletePage removes id from the pool, deallocating its frame to the free
// list. Returns true if id was already absent. Returns false if the page
// is pinned.
func (b *Instance) DeletePage(id types.PageID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, ok := b.pageTbl[id]
	if !ok {
		return true
	}

	fr := &b.frames[frame]
	fr.Lock()
	pinned := fr.PinCount > 0
	fr.Unlock()
	if pinned {
		return false
	}

	b.replacer.Pin(frame) // remove from replacer if present
	delete(b.pageTbl, id)
	fr.Reset(types.InvalidPageID)
	b.freeList = append(b.freeList, frame)
	return true
}

// FlushAllPages writes every resident page to disk.
func (b *Instance) FlushAllPages() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id := range b.pageTbl {
		if !b.flushLocked(id) {
			return fmt.Errorf("bufferpool: failed to flush page %d", id)
		}
	}
	return nil
}

// Owns reports whether PageID id belongs to this instance's strided
// allocation space — used by the parallel pool to route requests.
func (b *Instance) Owns(id types.PageID) bool {
	if b.stride <= 1 {
		return true
	}
	return int(id)%b.stride == b.index
}
