package buffer

import (
	"bytes"

	"github.com/rryqszq4/go-murmurhash"
)

const hashSeed uint64 = 0x12345678

// Equal reports whether the remaining regions of b and other hold the same
// bytes. Capacity, absolute position, limit and mark are not considered.
// A nil buffer only equals nil.
func (b *ByteBuffer) Equal(other *ByteBuffer) bool {
	if b == other {
		return true
	}
	if b == nil || other == nil {
		return false
	}
	// bytes.Equal checks the lengths before scanning
	return bytes.Equal(b.window(), other.window())
}

// Compare orders the remaining regions lexicographically as unsigned bytes;
// a strict prefix orders first. Nil orders before every buffer. Compare
// returns 0 exactly when Equal is true.
func (b *ByteBuffer) Compare(other *ByteBuffer) int {
	switch {
	case b == other:
		return 0
	case b == nil:
		return -1
	case other == nil:
		return 1
	}
	return bytes.Compare(b.window(), other.window())
}

// Hash returns a murmur64A hash of the remaining region, so equal buffers
// hash equal.
func (b *ByteBuffer) Hash() uint64 {
	return murmurhash.MurmurHash64A(b.window(), hashSeed)
}

// Equal is the nil-safe function form of (*ByteBuffer).Equal.
func Equal(a, b *ByteBuffer) bool { return a.Equal(b) }

// Compare is the function form of (*ByteBuffer).Compare, usable with
// slices.SortFunc.
func Compare(a, b *ByteBuffer) int { return a.Compare(b) }
