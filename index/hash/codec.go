package hash

import (
	"encoding/binary"

	"latchdb/types"
)

// Codec is the monomorphisation seam called out in design note §9: rather
// than the original's template instantiation per concrete (K,V) pair, a
// single generic Table[K,V] is parameterised by a Codec per type, fixing
// its on-disk width once at construction.
type Codec[T any] interface {
	// Size is the fixed encoded width in bytes.
	Size() int
	Encode(v T, buf []byte)
	Decode(buf []byte) T
}

// Comparator orders two keys; Insert/GetValue/Remove use it for equality
// (result == 0), not ordering, since the index never serves range scans
// (§1 Non-goals).
type Comparator[K any] func(a, b K) int

// Hasher maps a key to a 64-bit hash consumed by DirectoryIndex and
// LocalDepthMask.
type Hasher[K any] func(k K) uint64

// Int32Codec encodes a plain int32 key or value, the simplest of the
// "small set of concrete instantiations" design note §9 describes.
type Int32Codec struct{}

func (Int32Codec) Size() int { return 4 }
func (Int32Codec) Encode(v int32, buf []byte) {
	binary.LittleEndian.PutUint32(buf, uint32(v))
}
func (Int32Codec) Decode(buf []byte) int32 {
	return int32(binary.LittleEndian.Uint32(buf))
}

// Int64Codec encodes a plain int64 key or value.
type Int64Codec struct{}

func (Int64Codec) Size() int { return 8 }
func (Int64Codec) Encode(v int64, buf []byte) {
	binary.LittleEndian.PutUint64(buf, uint64(v))
}
func (Int64Codec) Decode(buf []byte) int64 {
	return int64(binary.LittleEndian.Uint64(buf))
}

// RIDCodec encodes a types.RID, the index value type executors use to
// point back at a heap tuple.
type RIDCodec struct{}

func (RIDCodec) Size() int { return 8 }
func (RIDCodec) Encode(v types.RID, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], uint32(v.PageID))
	binary.LittleEndian.PutUint32(buf[4:], v.Slot)
}
func (RIDCodec) Decode(buf []byte) types.RID {
	return types.RID{
		PageID: types.PageID(int32(binary.LittleEndian.Uint32(buf[0:]))),
		Slot:   binary.LittleEndian.Uint32(buf[4:]),
	}
}

// CompareInt32 is the stock comparator for Int32Codec keys.
func CompareInt32(a, b int32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// CompareInt64 is the stock comparator for Int64Codec keys.
func CompareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// HashInt32 hashes an int32 key via xxhash over its little-endian bytes.
func HashInt32(k int32) uint64 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(k))
	return xxhashSum(buf[:])
}

// HashInt64 hashes an int64 key via xxhash over its little-endian bytes.
func HashInt64(k int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(k))
	return xxhashSum(buf[:])
}
