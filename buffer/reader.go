package buffer

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

var (
	readerPool sync.Pool
	windowPool sync.Pool
)

// ReaderCapacity is the size of a pooled read window.
const ReaderCapacity = 4096

// Reader reads from an io.Reader into a pooled ByteBuffer and hands out
// zero-copy views of what it read. Views stay valid until CollectGarbage.
type Reader struct {
	src    io.Reader
	window *ByteBuffer // unread bytes are [position, limit)
	// windows replaced while views into them may still be alive
	garbage []*ByteBuffer
}

var _ Buffer = (*Reader)(nil)

func init() {
	windowPool.New = newWindow
	readerPool.New = newReader
}

func newWindow() any {
	w := newBuffer(make([]byte, ReaderCapacity), false)
	w.Flip()
	return w
}

func newReader() any {
	return &Reader{window: getWindow()}
}

func getWindow() *ByteBuffer {
	return windowPool.Get().(*ByteBuffer)
}

func releaseWindow(w *ByteBuffer) {
	if w.Capacity() != ReaderCapacity {
		return
	}
	w.Clear()
	w.Flip()
	windowPool.Put(w)
}

func GetReader(src io.Reader) *Reader {
	r := readerPool.Get().(*Reader)
	r.src = src
	return r
}

// Release returns the reader to the pool. Views handed out must not be used
// afterwards.
func (r *Reader) Release() {
	r.src = nil
	r.garbage = append(r.garbage, r.window)
	r.window = getWindow()
	r.CollectGarbage()
	readerPool.Put(r)
}

// Buffered returns the number of bytes read from the source but not yet
// consumed.
func (r *Reader) Buffered() int {
	return r.window.Remaining()
}

func (r *Reader) ReadByte() (byte, error) {
	for !r.window.HasRemaining() {
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	return r.window.Get()
}

// Peek returns a read-only view of the next n bytes without consuming them.
func (r *Reader) Peek(n int) (*ByteBuffer, error) {
	if err := r.ensure(n); err != nil {
		return nil, err
	}
	p := r.window.position
	return newBuffer(r.window.data[p:p+n:p+n], true), nil
}

// Read consumes the next n bytes and returns a read-only view of them.
func (r *Reader) Read(n int) (*ByteBuffer, error) {
	v, err := r.Peek(n)
	if err != nil {
		return nil, err
	}
	r.window.position += n
	return v, nil
}

func (r *Reader) Skip(n int) error {
	if err := r.ensure(n); err != nil {
		return err
	}
	return r.window.Advance(n)
}

// CollectGarbage recycles replaced windows and compacts the current one.
// Call it once no view returned by Read or Peek is in use.
func (r *Reader) CollectGarbage() {
	for _, w := range r.garbage {
		releaseWindow(w)
	}
	for i := range r.garbage {
		r.garbage[i] = nil
	}
	r.garbage = r.garbage[:0]

	_ = r.window.Compact()
	r.window.Flip()
}

func (r *Reader) ensure(n int) error {
	if n < 0 {
		return errors.Wrapf(ErrOutOfRange, "read %d bytes", n)
	}
	for r.window.Remaining() < n {
		if err := r.fill(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) fill() error {
	if r.window.limit == r.window.Capacity() {
		r.grow()
	}

	w := r.window
	n, err := r.src.Read(w.data[w.limit:])
	w.limit += n
	if n > 0 {
		return nil
	}
	return err
}

// grow moves the unread bytes into a fresh window. The old window is parked
// as garbage instead of being overwritten, since earlier views point into it.
func (r *Reader) grow() {
	old := r.window
	size := old.Capacity()
	if old.Remaining()*2 > size {
		size *= 2
	}
	if size < ReaderCapacity {
		size = ReaderCapacity
	}

	var next *ByteBuffer
	if size == ReaderCapacity {
		next = getWindow()
		next.Clear()
	} else {
		next = newBuffer(make([]byte, size), false)
	}
	_ = next.PutBuffer(old)
	next.Flip()

	r.garbage = append(r.garbage, old)
	r.window = next
}
