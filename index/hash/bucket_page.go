package hash

import (
	"latchdb/storage/page"
	"latchdb/types"
)

/*
Bucket page binary layout (all values little-endian), per §6:

	Offset              Size         Field
	──────────────────────────────────────────────────
	0                   ceil(B/8)    Occupied bitmap
	ceil(B/8)           ceil(B/8)    Readable bitmap
	2*ceil(B/8)         B*entrySize  Slot array: B packed (K,V) pairs
	──────────────────────────────────────────────────

B (BucketArraySize) and entrySize are fixed once per Table[K,V] instance,
computed from the key/value codecs so the three regions fit inside one
page. Slot i's key occupies entrySize bytes at slotsOffset + i*entrySize,
followed immediately by its value.
*/

// ComputeBucketArraySize returns the largest B such that two bitmaps of
// ceil(B/8) bytes plus B slots of entrySize bytes fit within PageSize.
func ComputeBucketArraySize(entrySize int) int {
	b := types.PageSize / entrySize
	for b > 0 {
		bitmapBytes := (b + 7) / 8
		if 2*bitmapBytes+b*entrySize <= types.PageSize {
			return b
		}
		b--
	}
	return 0
}

// Bucket implements §4.D over a borrowed page byte frame. It holds no
// page state itself — every method takes the frame explicitly — so one
// Bucket[K,V] value (fixed at Table construction) serves every bucket page
// the table ever touches.
type Bucket[K, V any] struct {
	capacity  int
	entrySize int
	keySize   int
	valSize   int
	bitmapLen int
	slotsOff  int
	keyCodec  Codec[K]
	valCodec  Codec[V]
	cmp       Comparator[K]
}

// NewBucket builds the fixed geometry for a (K,V) instantiation.
func NewBucket[K, V any](keyCodec Codec[K], valCodec Codec[V], cmp Comparator[K]) Bucket[K, V] {
	entrySize := keyCodec.Size() + valCodec.Size()
	capacity := ComputeBucketArraySize(entrySize)
	bitmapLen := (capacity + 7) / 8
	return Bucket[K, V]{
		capacity:  capacity,
		entrySize: entrySize,
		keySize:   keyCodec.Size(),
		valSize:   valCodec.Size(),
		bitmapLen: bitmapLen,
		slotsOff:  2 * bitmapLen,
		keyCodec:  keyCodec,
		valCodec:  valCodec,
		cmp:       cmp,
	}
}

// Capacity is BUCKET_ARRAY_SIZE for this instantiation.
func (b Bucket[K, V]) Capacity() int { return b.capacity }

func (b Bucket[K, V]) occupiedOff() int { return 0 }
func (b Bucket[K, V]) readableOff() int { return b.bitmapLen }

func testBit(data []byte, byteOff, i int) bool {
	return data[byteOff+i/8]&(1<<uint(i%8)) != 0
}

func setBit(data []byte, byteOff, i int) {
	data[byteOff+i/8] |= 1 << uint(i%8)
}

func clearBit(data []byte, byteOff, i int) {
	data[byteOff+i/8] &^= 1 << uint(i%8)
}

func (b Bucket[K, V]) IsOccupied(pg *page.Page, i int) bool {
	return testBit(pg.Data[:], b.occupiedOff(), i)
}

func (b Bucket[K, V]) IsReadable(pg *page.Page, i int) bool {
	return testBit(pg.Data[:], b.readableOff(), i)
}

func (b Bucket[K, V]) setOccupied(pg *page.Page, i int) {
	setBit(pg.Data[:], b.occupiedOff(), i)
}

func (b Bucket[K, V]) setReadable(pg *page.Page, i int) {
	setBit(pg.Data[:], b.readableOff(), i)
}

func (b Bucket[K, V]) clearReadable(pg *page.Page, i int) {
	clearBit(pg.Data[:], b.readableOff(), i)
}

func (b Bucket[K, V]) slotOff(i int) int {
	return b.slotsOff + i*b.entrySize
}

func (b Bucket[K, V]) keyAt(pg *page.Page, i int) K {
	off := b.slotOff(i)
	return b.keyCodec.Decode(pg.Data[off : off+b.keySize])
}

func (b Bucket[K, V]) valAt(pg *page.Page, i int) V {
	off := b.slotOff(i) + b.keySize
	return b.valCodec.Decode(pg.Data[off : off+b.valSize])
}

func (b Bucket[K, V]) setSlot(pg *page.Page, i int, k K, v V) {
	off := b.slotOff(i)
	b.keyCodec.Encode(k, pg.Data[off:off+b.keySize])
	b.valCodec.Encode(v, pg.Data[off+b.keySize:off+b.entrySize])
}

// Init zeroes a fresh bucket page: empty, nothing occupied.
func (b Bucket[K, V]) Init(pg *page.Page) {
	for i := 0; i < b.slotsOff+b.capacity*b.entrySize; i++ {
		pg.Data[i] = 0
	}
	pg.IsDirty = true
}

// Insert scans for a duplicate (k,v) pair first (false if one exists),
// then installs into the first non-readable slot. Fails when full with no
// duplicate found. Matches §4.D Insert.
func (b Bucket[K, V]) Insert(pg *page.Page, k K, v V) bool {
	freeSlot := -1
	for i := 0; i < b.capacity; i++ {
		if b.IsReadable(pg, i) {
			if b.cmp(b.keyAt(pg, i), k) == 0 && valuesEqual(b.valCodec, b.valAt(pg, i), v) {
				return false
			}
			continue
		}
		if freeSlot == -1 {
			freeSlot = i
		}
	}
	if freeSlot == -1 {
		return false
	}
	b.setSlot(pg, freeSlot, k, v)
	b.setOccupied(pg, freeSlot)
	b.setReadable(pg, freeSlot)
	pg.IsDirty = true
	return true
}

// GetValue appends the value of every readable slot with a matching key to
// out, and reports whether anything was appended. It stops at the first
// unoccupied slot as a compaction optimisation, matching the original's
// scan — safe because Insert always fills the lowest free index, so the
// occupied prefix stays contiguous from slot 0 in the access patterns this
// index produces.
func (b Bucket[K, V]) GetValue(pg *page.Page, k K, out *[]V) bool {
	found := false
	for i := 0; i < b.capacity; i++ {
		if !b.IsOccupied(pg, i) {
			break
		}
		if b.IsReadable(pg, i) && b.cmp(b.keyAt(pg, i), k) == 0 {
			*out = append(*out, b.valAt(pg, i))
			found = true
		}
	}
	return found
}

// Remove clears the readable bit of the first readable slot with a
// matching (k,v) pair; occupied is left set as a tombstone hint.
func (b Bucket[K, V]) Remove(pg *page.Page, k K, v V) bool {
	for i := 0; i < b.capacity; i++ {
		if !b.IsOccupied(pg, i) {
			break
		}
		if b.IsReadable(pg, i) && b.cmp(b.keyAt(pg, i), k) == 0 && valuesEqual(b.valCodec, b.valAt(pg, i), v) {
			b.clearReadable(pg, i)
			pg.IsDirty = true
			return true
		}
	}
	return false
}

// IsRepeat reports whether (k,v) is already present, used by the index
// after a failed Insert to distinguish "full" from "duplicate".
func (b Bucket[K, V]) IsRepeat(pg *page.Page, k K, v V) bool {
	for i := 0; i < b.capacity; i++ {
		if !b.IsOccupied(pg, i) {
			break
		}
		if b.IsReadable(pg, i) && b.cmp(b.keyAt(pg, i), k) == 0 && valuesEqual(b.valCodec, b.valAt(pg, i), v) {
			return true
		}
	}
	return false
}

// NumReadable counts live slots.
func (b Bucket[K, V]) NumReadable(pg *page.Page) int {
	n := 0
	for i := 0; i < b.capacity; i++ {
		if b.IsReadable(pg, i) {
			n++
		}
	}
	return n
}

func (b Bucket[K, V]) IsFull(pg *page.Page) bool {
	return b.NumReadable(pg) == b.capacity
}

func (b Bucket[K, V]) IsEmpty(pg *page.Page) bool {
	return b.NumReadable(pg) == 0
}

// KV is one decoded (key, value) pair, used by CopyMappingsAndReset.
type KV[K, V any] struct {
	Key K
	Val V
}

// CopyMappingsAndReset appends every readable pair to out, then zeroes the
// bucket so it can be reused as either half of a split.
func (b Bucket[K, V]) CopyMappingsAndReset(pg *page.Page, out *[]KV[K, V]) {
	for i := 0; i < b.capacity; i++ {
		if b.IsReadable(pg, i) {
			*out = append(*out, KV[K, V]{Key: b.keyAt(pg, i), Val: b.valAt(pg, i)})
		}
	}
	b.Init(pg)
}

// valuesEqual compares two decoded values byte-for-byte via the codec,
// avoiding a `comparable` constraint on V (RID is a struct, still
// comparable, but this keeps Bucket usable for any codec-backed V).
func valuesEqual[V any](codec Codec[V], a, b V) bool {
	size := codec.Size()
	bufA := make([]byte, size)
	bufB := make([]byte, size)
	codec.Encode(a, bufA)
	codec.Encode(b, bufB)
	for i := range bufA {
		if bufA[i] != bufB[i] {
			return false
		}
	}
	return true
}
