package buffer

import "errors"

// Buffer is the token source the protocol parser reads from.
type Buffer interface {
	Skip(n int) error
	Peek(n int) (*ByteBuffer, error)
	Read(n int) (*ByteBuffer, error)
	ReadByte() (byte, error)
}

var (
	ErrOutOfRange      = errors.New("buffer: index out of range")
	ErrBufferUnderflow = errors.New("buffer: underflow")
	ErrBufferOverflow  = errors.New("buffer: overflow")
	ErrReadOnly        = errors.New("buffer: read only")
	ErrInvalidMark     = errors.New("buffer: mark not set")
	ErrSameBuffer      = errors.New("buffer: source is the destination")
)
