package buffer

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

const noMark = -1

// ByteBuffer is a fixed-capacity view over a byte region with a movable
// cursor. The bytes between position and limit are the remaining region;
// relative operations consume it, absolute ones address [0, limit).
//
// Invariant: 0 <= position <= limit <= capacity, and mark <= position when
// a mark is set.
//
// A ByteBuffer is not safe for concurrent use. Views created by Slice,
// Duplicate and AsReadOnly share storage with their parent but keep their
// own cursor.
type ByteBuffer struct {
	data     []byte
	position int
	limit    int
	mark     int
	readOnly bool
}

// New allocates a zero-filled buffer owning its storage.
func New(capacity int) (*ByteBuffer, error) {
	if capacity < 0 {
		return nil, errors.Wrapf(ErrOutOfRange, "negative capacity %d", capacity)
	}
	return newBuffer(make([]byte, capacity), false), nil
}

// Wrap returns a buffer over data. The buffer borrows data: writes through
// it are visible to the caller and data must outlive it.
func Wrap(data []byte) *ByteBuffer {
	return newBuffer(data[:len(data):len(data)], false)
}

// WrapReadOnly is Wrap without write access.
func WrapReadOnly(data []byte) *ByteBuffer {
	return newBuffer(data[:len(data):len(data)], true)
}

func newBuffer(data []byte, readOnly bool) *ByteBuffer {
	return &ByteBuffer{
		data:     data,
		limit:    len(data),
		mark:     noMark,
		readOnly: readOnly,
	}
}

func (b *ByteBuffer) Capacity() int { return len(b.data) }

func (b *ByteBuffer) Position() int { return b.position }

func (b *ByteBuffer) Limit() int { return b.limit }

func (b *ByteBuffer) Remaining() int { return b.limit - b.position }

func (b *ByteBuffer) HasRemaining() bool { return b.position < b.limit }

func (b *ByteBuffer) IsReadOnly() bool { return b.readOnly }

// SetPosition moves the cursor to n, which must lie in [0, limit]. A mark
// beyond the new position is discarded.
func (b *ByteBuffer) SetPosition(n int) error {
	if n < 0 || n > b.limit {
		return errors.Wrapf(ErrOutOfRange, "position %d not in [0, %d]", n, b.limit)
	}
	b.position = n
	if b.mark > n {
		b.mark = noMark
	}
	return nil
}

// SetLimit sets the limit to n, which must lie in [0, capacity]. The
// position is pulled back to n if it was beyond it, and so is the mark
// (which is discarded).
func (b *ByteBuffer) SetLimit(n int) error {
	if n < 0 || n > len(b.data) {
		return errors.Wrapf(ErrOutOfRange, "limit %d not in [0, %d]", n, len(b.data))
	}
	b.limit = n
	if b.position > n {
		b.position = n
	}
	if b.mark > n {
		b.mark = noMark
	}
	return nil
}

// Advance moves the cursor by n, which may be negative.
func (b *ByteBuffer) Advance(n int) error {
	return b.SetPosition(b.position + n)
}

func (b *ByteBuffer) Mark() { b.mark = b.position }

func (b *ByteBuffer) Reset() error {
	if b.mark == noMark {
		return ErrInvalidMark
	}
	b.position = b.mark
	return nil
}

// Clear prepares the buffer for a fresh fill.
func (b *ByteBuffer) Clear() {
	b.position = 0
	b.limit = len(b.data)
	b.mark = noMark
}

// Flip switches from writing to reading what was written.
func (b *ByteBuffer) Flip() {
	b.limit = b.position
	b.position = 0
	b.mark = noMark
}

func (b *ByteBuffer) Rewind() {
	b.position = 0
	b.mark = noMark
}

// GetAt reads the byte at index without moving the cursor.
func (b *ByteBuffer) GetAt(index int) (byte, error) {
	if index < 0 || index >= b.limit {
		return 0, errors.Wrapf(ErrOutOfRange, "index %d not in [0, %d)", index, b.limit)
	}
	return b.data[index], nil
}

// Get reads the byte at position and advances it.
func (b *ByteBuffer) Get() (byte, error) {
	if b.position >= b.limit {
		return 0, ErrBufferUnderflow
	}
	v := b.data[b.position]
	b.position++
	return v, nil
}

func (b *ByteBuffer) PutAt(index int, v byte) error {
	if b.readOnly {
		return ErrReadOnly
	}
	if index < 0 || index >= b.limit {
		return errors.Wrapf(ErrOutOfRange, "index %d not in [0, %d)", index, b.limit)
	}
	b.data[index] = v
	return nil
}

func (b *ByteBuffer) Put(v byte) error {
	if b.readOnly {
		return ErrReadOnly
	}
	if b.position >= b.limit {
		return ErrBufferOverflow
	}
	b.data[b.position] = v
	b.position++
	return nil
}

// ReadByte implements io.ByteReader.
func (b *ByteBuffer) ReadByte() (byte, error) { return b.Get() }

// WriteByte implements io.ByteWriter.
func (b *ByteBuffer) WriteByte(c byte) error { return b.Put(c) }

// Read implements io.Reader over the remaining region.
func (b *ByteBuffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !b.HasRemaining() {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.position:b.limit])
	b.position += n
	return n, nil
}

// Write implements io.Writer. Either all of p fits in the remaining region
// or nothing is written.
func (b *ByteBuffer) Write(p []byte) (int, error) {
	if b.readOnly {
		return 0, ErrReadOnly
	}
	if len(p) > b.Remaining() {
		return 0, errors.Wrapf(ErrBufferOverflow, "write %d bytes, %d remaining", len(p), b.Remaining())
	}
	n := copy(b.data[b.position:b.limit], p)
	b.position += n
	return n, nil
}

// PutBuffer copies the remaining region of src into b, advancing both.
func (b *ByteBuffer) PutBuffer(src *ByteBuffer) error {
	if src == b {
		return ErrSameBuffer
	}
	if b.readOnly {
		return ErrReadOnly
	}
	n := src.Remaining()
	if n > b.Remaining() {
		return errors.Wrapf(ErrBufferOverflow, "put %d bytes, %d remaining", n, b.Remaining())
	}
	copy(b.data[b.position:], src.data[src.position:src.limit])
	b.position += n
	src.position += n
	return nil
}

// Compact moves the remaining region to the start of the buffer and
// prepares it for writing after those bytes.
func (b *ByteBuffer) Compact() error {
	if b.readOnly {
		return ErrReadOnly
	}
	n := copy(b.data, b.data[b.position:b.limit])
	b.position = n
	b.limit = len(b.data)
	b.mark = noMark
	return nil
}

// Slice returns a view over exactly the remaining region. Storage is
// shared, the cursor is not.
func (b *ByteBuffer) Slice() *ByteBuffer {
	return newBuffer(b.window(), b.readOnly)
}

// Duplicate returns a view over the same storage with a copy of the cursor.
func (b *ByteBuffer) Duplicate() *ByteBuffer {
	d := *b
	return &d
}

func (b *ByteBuffer) AsReadOnly() *ByteBuffer {
	d := b.Duplicate()
	d.readOnly = true
	return d
}

// Bytes returns the remaining region. For writable buffers the slice
// aliases the storage; read-only buffers hand out a copy.
func (b *ByteBuffer) Bytes() []byte {
	if b.readOnly {
		return append([]byte(nil), b.window()...)
	}
	return b.window()
}

func (b *ByteBuffer) String() string {
	return fmt.Sprintf("ByteBuffer[pos=%d lim=%d cap=%d]", b.position, b.limit, len(b.data))
}

func (b *ByteBuffer) window() []byte {
	return b.data[b.position:b.limit:b.limit]
}
