package hash

import (
	"latchdb/storage/page"
	"latchdb/types"
)

// Pool is the subset of the buffer pool the index depends on — satisfied
// by both *buffer.Instance and *buffer.ParallelBufferPool, so a Table can
// be built over either a single instance or the sharded pool without the
// index package importing buffer's concrete types.
type Pool interface {
	NewPage() (types.PageID, *page.Page, bool)
	FetchPage(id types.PageID) (*page.Page, bool)
	UnpinPage(id types.PageID, isDirty bool) bool
	DeletePage(id types.PageID) bool
}
