// Package hash implements §4.D–§4.E: the extendible hash index and
// the two page layouts (directory, bucket) it keeps on buffer-pool pages.
// The encode/decode style — offset constants, a diagram comment, and
// standalone functions taking *page.Page as their first argument — the
// same encode/decode convention a slotted record page uses, generalized
// to a hash directory/bucket page per design note §9
// ("replace raw memory reinterpretation with an explicit encode/decode
// step").
package hash

import (
	"encoding/binary"
	"fmt"

	"latchdb/storage/page"
	"latchdb/types"
)

// MaxDepth bounds the directory at 1<<MaxDepth entries, the largest size
// that still fits a directory page's local_depth/bucket_page_id arrays
// inside one 4096-byte page (8 + 512 + 512*4 = 2568 bytes).
const MaxDepth = 9

// DirectorySize is the fixed capacity of the local_depth/bucket_page_id
// arrays, independent of the current global depth.
const DirectorySize = 1 << MaxDepth

/*
Directory page binary layout (all values little-endian):

	Offset  Size   Field
	───────────────────────────────────────────────
	0       4      PageID           int32
	4       4      GlobalDepth      uint32
	8       512    LocalDepth[]     uint8, one per directory slot
	520     2048   BucketPageID[]   int32, one per directory slot
	───────────────────────────────────────────────
	2568           DirectoryHeaderSize

Only the first 1<<GlobalDepth entries of LocalDepth/BucketPageID are
meaningful; the remainder is reserved capacity for future expansion and is
zeroed on init.
*/
const (
	dirOffPageID      = 0
	dirOffGlobalDepth = 4
	dirOffLocalDepth  = 8
	dirOffBucketID    = dirOffLocalDepth + DirectorySize
)

// DirectoryView is a thin accessor over a directory page's byte frame. It
// borrows pg.Data for the lifetime of the page's pin and must not outlive
// it — design note §9.
type DirectoryView struct {
	pg *page.Page
}

// NewDirectoryView wraps pg for directory-page access without copying.
func NewDirectoryView(pg *page.Page) DirectoryView {
	return DirectoryView{pg: pg}
}

// InitDirectoryPage stamps a fresh directory with global depth 1 and two
// bucket pointers at local depth 1, per §4.E "Initial state".
func InitDirectoryPage(pg *page.Page, bucket0, bucket1 types.PageID) {
	for i := range pg.Data {
		pg.Data[i] = 0
	}
	d := NewDirectoryView(pg)
	d.SetPageID(pg.ID)
	d.SetGlobalDepth(1)
	d.SetLocalDepth(0, 1)
	d.SetLocalDepth(1, 1)
	d.SetBucketPageID(0, bucket0)
	d.SetBucketPageID(1, bucket1)
	pg.IsDirty = true
}

func (d DirectoryView) SetPageID(id types.PageID) {
	binary.LittleEndian.PutUint32(d.pg.Data[dirOffPageID:], uint32(id))
}

func (d DirectoryView) GetGlobalDepth() uint32 {
	return binary.LittleEndian.Uint32(d.pg.Data[dirOffGlobalDepth:])
}

func (d DirectoryView) SetGlobalDepth(depth uint32) {
	binary.LittleEndian.PutUint32(d.pg.Data[dirOffGlobalDepth:], depth)
	d.pg.IsDirty = true
}

// Size returns the number of directory entries currently in use: 1<<global_depth.
func (d DirectoryView) Size() int {
	return 1 << d.GetGlobalDepth()
}

func (d DirectoryView) GetLocalDepth(i int) uint32 {
	return uint32(d.pg.Data[dirOffLocalDepth+i])
}

func (d DirectoryView) SetLocalDepth(i int, depth uint32) {
	d.pg.Data[dirOffLocalDepth+i] = byte(depth)
	d.pg.IsDirty = true
}

func (d DirectoryView) IncrLocalDepth(i int) {
	d.SetLocalDepth(i, d.GetLocalDepth(i)+1)
}

func (d DirectoryView) DecrLocalDepth(i int) {
	d.SetLocalDepth(i, d.GetLocalDepth(i)-1)
}

func (d DirectoryView) GetBucketPageID(i int) types.PageID {
	off := dirOffBucketID + i*4
	return types.PageID(int32(binary.LittleEndian.Uint32(d.pg.Data[off:])))
}

func (d DirectoryView) SetBucketPageID(i int, id types.PageID) {
	off := dirOffBucketID + i*4
	binary.LittleEndian.PutUint32(d.pg.Data[off:], uint32(id))
	d.pg.IsDirty = true
}

// GlobalDepthMask = (1 << global_depth) - 1.
func (d DirectoryView) GlobalDepthMask() uint64 {
	return (uint64(1) << d.GetGlobalDepth()) - 1
}

// LocalDepthMask(i) = (1 << local_depth[i]) - 1.
func (d DirectoryView) LocalDepthMask(i int) uint64 {
	return (uint64(1) << d.GetLocalDepth(i)) - 1
}

// SplitImageIndex(i) = i XOR (1 << (local_depth[i]-1)).
func (d DirectoryView) SplitImageIndex(i int) int {
	ld := d.GetLocalDepth(i)
	if ld == 0 {
		return i
	}
	return i ^ (1 << (ld - 1))
}

// DirectoryIndex computes the directory slot for a hash value under the
// current global depth.
func (d DirectoryView) DirectoryIndex(h uint64) int {
	return int(h & d.GlobalDepthMask())
}

// Grow doubles the directory, mirroring every existing slot i to
// i | (1 << oldGlobalDepth), per step 1 of SplitInsert. It does not touch
// local depths or bucket pointers beyond the mirroring copy.
func (d DirectoryView) Grow() {
	oldDepth := d.GetGlobalDepth()
	oldSize := 1 << oldDepth
	for i := 0; i < oldSize; i++ {
		mirror := i | (1 << oldDepth)
		d.SetLocalDepth(mirror, d.GetLocalDepth(i))
		d.SetBucketPageID(mirror, d.GetBucketPageID(i))
	}
	d.SetGlobalDepth(oldDepth + 1)
}

// Shrink halves the directory. Caller must have already verified every
// slot's local depth is below the current global depth (CanShrink).
func (d DirectoryView) Shrink() {
	d.SetGlobalDepth(d.GetGlobalDepth() - 1)
}

// CanShrink reports whether every in-use slot's local depth is strictly
// less than the global depth, the precondition for Shrink (§4.E Merge,
// step "If every directory slot now has local_depth < global_depth").
func (d DirectoryView) CanShrink() bool {
	if d.GetGlobalDepth() == 0 {
		return false
	}
	gd := d.GetGlobalDepth()
	for i := 0; i < d.Size(); i++ {
		if d.GetLocalDepth(i) >= gd {
			return false
		}
	}
	return true
}

// VerifyIntegrity checks invariant 3 from §8: slots congruent modulo
// 2^local_depth with equal local depth must share a bucket pointer.
func (d DirectoryView) VerifyIntegrity() error {
	size := d.Size()
	for i := 0; i < size; i++ {
		li := d.GetLocalDepth(i)
		if li > d.GetGlobalDepth() {
			return fmt.Errorf("hash: directory slot %d has local depth %d exceeding global depth %d", i, li, d.GetGlobalDepth())
		}
		mask := d.LocalDepthMask(i)
		for j := i + 1; j < size; j++ {
			if uint64(i)&mask != uint64(j)&mask {
				continue
			}
			if d.GetLocalDepth(j) != li {
				continue
			}
			if d.GetBucketPageID(i) != d.GetBucketPageID(j) {
				return fmt.Errorf("hash: directory slots %d and %d are congruent at local depth %d but point at different buckets", i, j, li)
			}
		}
	}
	return nil
}
