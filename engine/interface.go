package engine

import (
	"errors"

	"github.com/ccfarm/seqbuf/buffer"
)

// Engine stores the remaining regions of key and value buffers. Buffers
// returned by an Engine are read-only snapshots.
type Engine interface {
	Set(key, value *buffer.ByteBuffer, expire int) error
	Get(key *buffer.ByteBuffer) (*buffer.ByteBuffer, error)
	Delete(key *buffer.ByteBuffer) error
	Keys() []*buffer.ByteBuffer
}

var (
	ErrNil      = errors.New("Nil")
	ErrTooLarge = errors.New("entry larger than block")
)
