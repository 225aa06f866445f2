package buffer

import (
	"fmt"
	"sync/atomic"

	"latchdb/internal/metrics"
	"latchdb/storage/disk"
	"latchdb/storage/page"
	"latchdb/types"
)

// ParallelBufferPool shards the PageID space across N independent
// instances (§4.C), so that lock contention on any one instance's
// mutex only affects 1/N of the page traffic.
type ParallelBufferPool struct {
	instances []*Instance
	nextIndex int32 // round-robin cursor for NewPage
}

// NewParallelBufferPool creates n instances of poolSize frames each,
// instance i backed by diskManagers[i].
func NewParallelBufferPool(n, poolSize int, diskManagers []*disk.Manager, m *metrics.BufferPool) (*ParallelBufferPool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("bufferpool: instance count must be positive, got %d", n)
	}
	if len(diskManagers) != n {
		return nil, fmt.Errorf("bufferpool: need %d disk managers, got %d", n, len(diskManagers))
	}

	instances := make([]*Instance, n)
	for i := 0; i < n; i++ {
		instances[i] = NewInstance(poolSize, i, n, diskManagers[i], m)
	}

	return &ParallelBufferPool{instances: instances}, nil
}

// instanceFor returns the instance responsible for id: id mod N.
func (p *ParallelBufferPool) instanceFor(id types.PageID) *Instance {
	n := len(p.instances)
	idx := int(id) % n
	if idx < 0 {
		idx += n
	}
	return p.instances[idx]
}

// NewPage tries each instance starting at a round-robin cursor, returning
// the first successful allocation so that concurrent allocators don't all
// pile onto instance 0. Returns false only if every instance is full.
func (p *ParallelBufferPool) NewPage() (types.PageID, *page.Page, bool) {
	n := len(p.instances)
	start := int(atomic.AddInt32(&p.nextIndex, 1)-1) % n
	if start < 0 {
		start += n
	}

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if id, pg, ok := p.instances[idx].NewPage(); ok {
			return id, pg, true
		}
	}
	return types.InvalidPageID, nil, false
}

// FetchPage routes to the instance owning id.
func (p *ParallelBufferPool) FetchPage(id types.PageID) (*page.Page, bool) {
	return p.instanceFor(id).FetchPage(id)
}

// UnpinPage routes to the instance owning id.
func (p *ParallelBufferPool) UnpinPage(id types.PageID, isDirty bool) bool {
	return p.instanceFor(id).UnpinPage(id, isDirty)
}

// FlushPage routes to the instance owning id.
func (p *ParallelBufferPool) FlushPage(id types.PageID) bool {
	return p.instanceFor(id).FlushPage(id)
}

// DeletePage routes to the instance owning id.
func (p *ParallelBufferPool) DeletePage(id types.PageID) bool {
	return p.instanceFor(id).DeletePage(id)
}

// FlushAllPages flushes every instance.
func (p *ParallelBufferPool) FlushAllPages() error {
	for i, inst := range p.instances {
		if err := inst.FlushAllPages(); err != nil {
			return fmt.Errorf("bufferpool: instance %d: %w", i, err)
		}
	}
	return nil
}

// NumInstances returns N.
func (p *ParallelBufferPool) NumInstances() int {
	return len(p.instances)
}
