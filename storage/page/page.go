// Package page defines the fixed-size in-memory frame contents the buffer
// pool hands out. A Page is reused across its whole lifetime inside one
// frame: the same *Page value is zeroed and reinstalled for a different
// PageID every time a frame changes occupants.
package page

import (
	"sync"

	"latchdb/types"
)

// Page is one PageSize-byte frame plus the metadata the buffer pool needs
// to manage it. The embedded latch protects Data from concurrent
// readers/writers once a caller has fetched the page; PinCount and
// IsDirty are owned by the buffer-pool instance's own mutex, not by this
// latch — content access and pool bookkeeping are deliberately separate
// locks.
type Page struct {
	ID       types.PageID
	Data     [types.PageSize]byte
	PinCount int32
	IsDirty  bool

	mu sync.RWMutex
}

// Reset clears a frame for reuse by a different page identifier. Callers
// must hold the buffer-pool instance mutex.
func (p *Page) Reset(id types.PageID) {
	p.ID = id
	p.PinCount = 0
	p.IsDirty = false
	for i := range p.Data {
		p.Data[i] = 0
	}
}

// Lock acquires the page's content latch for writing.
func (p *Page) Lock() { p.mu.Lock() }

// Unlock releases the page's content latch held for writing.
func (p *Page) Unlock() { p.mu.Unlock() }

// RLock acquires the page's content latch for reading.
func (p *Page) RLock() { p.mu.RLock() }

// RUnlock releases the page's content latch held for reading.
func (p *Page) RUnlock() { p.mu.RUnlock() }
