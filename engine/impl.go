package engine

import (
	"encoding/binary"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ccfarm/seqbuf/buffer"
)

const (
	DefaultBlockNumber   = 256
	DefaultBlockCapacity = 1024 * 1024 * 8 // 8MB

	headerSize = 4 + 4 + 8
)

type FastKV struct {
	partitions  []*block
	blockNumber uint64
	hash        func(*buffer.ByteBuffer) uint64
}

var _ Engine = (*FastKV)(nil)

type block struct {
	lock   sync.RWMutex
	// hash相同的key各自占一项, 查找时再比较key本身
	index  map[uint64][]int
	hash   func(*buffer.ByteBuffer) uint64
	data   []byte
	offset int   // data 当前写入位置
	queue  []int // 存活条目的起始位置, 最旧的在前
}

func NewDB(blockNumber, blockCapacity int) *FastKV {
	return newDB(blockNumber, blockCapacity, (*buffer.ByteBuffer).Hash)
}

func newDB(blockNumber, blockCapacity int, hash func(*buffer.ByteBuffer) uint64) *FastKV {
	if blockNumber <= 0 {
		blockNumber = DefaultBlockNumber
	}
	if blockCapacity <= 0 {
		blockCapacity = DefaultBlockCapacity
	}

	blocks := make([]*block, 0, blockNumber)
	for i := 0; i < blockNumber; i++ {
		blocks = append(blocks, newBlock(blockCapacity, hash))
	}

	return &FastKV{
		partitions:  blocks,
		blockNumber: uint64(blockNumber),
		hash:        hash,
	}
}

func (f *FastKV) partition(hash uint64) *block {
	return f.partitions[hash%f.blockNumber]
}

// Set stores the remaining bytes of key and value. Neither cursor moves.
// expire is in seconds, 0 means never.
func (f *FastKV) Set(key, value *buffer.ByteBuffer, expire int) error {
	hash := f.hash(key)
	return f.partition(hash).set(key, value, hash, expire)
}

func (f *FastKV) Get(key *buffer.ByteBuffer) (*buffer.ByteBuffer, error) {
	hash := f.hash(key)
	return f.partition(hash).get(key, hash)
}

func (f *FastKV) Delete(key *buffer.ByteBuffer) error {
	hash := f.hash(key)
	return f.partition(hash).delete(key, hash)
}

// Keys returns every live key in buffer order.
func (f *FastKV) Keys() []*buffer.ByteBuffer {
	now := time.Now().Unix()
	var keys []*buffer.ByteBuffer
	for _, b := range f.partitions {
		keys = b.keys(keys, now)
	}
	slices.SortFunc(keys, buffer.Compare)
	return keys
}

func newBlock(capacity int, hash func(*buffer.ByteBuffer) uint64) *block {
	return &block{
		index: make(map[uint64][]int),
		hash:  hash,
		data:  make([]byte, capacity),
	}
}

// 写入格式
// [key size - 4 byte][value size - 4 byte][expire at - 8 byte][key][value]
func (b *block) set(key, value *buffer.ByteBuffer, hash uint64, expire int) error {
	var expireAt int64
	if expire != 0 {
		expireAt = time.Now().Unix() + int64(expire)
	}

	lk := key.Remaining()
	lv := value.Remaining()
	l := headerSize + lk + lv

	b.lock.Lock()
	defer b.lock.Unlock()

	if l > len(b.data) {
		return errors.Wrapf(ErrTooLarge, "entry of %d bytes, block holds %d", l, len(b.data))
	}

	if b.offset+l > len(b.data) {
		// 放弃尾部空间, 回到头部
		for len(b.queue) > 0 && b.queue[0] >= b.offset {
			b.evict()
		}
		b.offset = 0
	}
	for len(b.queue) > 0 && b.queue[0] >= b.offset && b.queue[0] < b.offset+l {
		b.evict()
	}

	if old, ok := b.lookup(key, hash); ok {
		b.unindex(hash, old)
	}

	entry := b.data[b.offset : b.offset+l]
	binary.LittleEndian.PutUint32(entry, uint32(lk))
	binary.LittleEndian.PutUint32(entry[4:], uint32(lv))
	binary.LittleEndian.PutUint64(entry[8:], uint64(expireAt))
	// 用副本读取, 调用方的游标不动
	_, _ = key.Duplicate().Read(entry[headerSize : headerSize+lk])
	_, _ = value.Duplicate().Read(entry[headerSize+lk:])

	b.index[hash] = append(b.index[hash], b.offset)
	b.queue = append(b.queue, b.offset)
	b.offset += l
	return nil
}

// lookup returns the offset of key's entry, expired or not. Caller holds
// the lock.
func (b *block) lookup(key *buffer.ByteBuffer, hash uint64) (int, bool) {
	for _, offset := range b.index[hash] {
		// 避免hash碰撞，需要实际检查下key是否相同
		if key.Equal(buffer.WrapReadOnly(b.keyAt(offset))) {
			return offset, true
		}
	}
	return 0, false
}

// unindex drops offset from the entries under hash. Caller holds the lock.
func (b *block) unindex(hash uint64, offset int) {
	offsets := b.index[hash]
	for i, o := range offsets {
		if o == offset {
			offsets = append(offsets[:i], offsets[i+1:]...)
			break
		}
	}
	if len(offsets) == 0 {
		delete(b.index, hash)
		return
	}
	b.index[hash] = offsets
}

func (b *block) expired(offset int, now int64) bool {
	expireAt := int64(binary.LittleEndian.Uint64(b.data[offset+8:]))
	return expireAt != 0 && expireAt < now
}

func (b *block) keyAt(offset int) []byte {
	lk := int(binary.LittleEndian.Uint32(b.data[offset:]))
	return b.data[offset+headerSize : offset+headerSize+lk]
}

func (b *block) get(key *buffer.ByteBuffer, hash uint64) (*buffer.ByteBuffer, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	offset, ok := b.lookup(key, hash)
	if !ok || b.expired(offset, time.Now().Unix()) {
		return nil, ErrNil
	}

	lk := int(binary.LittleEndian.Uint32(b.data[offset:]))
	lv := int(binary.LittleEndian.Uint32(b.data[offset+4:]))
	start := offset + headerSize + lk
	value := make([]byte, lv)
	copy(value, b.data[start:start+lv])
	return buffer.WrapReadOnly(value), nil
}

func (b *block) delete(key *buffer.ByteBuffer, hash uint64) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	offset, ok := b.lookup(key, hash)
	if !ok {
		return ErrNil
	}

	b.unindex(hash, offset)

	if b.expired(offset, time.Now().Unix()) {
		return ErrNil
	}
	return nil
}

func (b *block) keys(dst []*buffer.ByteBuffer, now int64) []*buffer.ByteBuffer {
	b.lock.RLock()
	defer b.lock.RUnlock()

	for _, offsets := range b.index {
		for _, offset := range offsets {
			if b.expired(offset, now) {
				continue
			}
			k := b.keyAt(offset)
			dst = append(dst, buffer.WrapReadOnly(append([]byte(nil), k...)))
		}
	}
	return dst
}

// evict drops the oldest entry. Caller holds the lock.
func (b *block) evict() {
	offset := b.queue[0]
	b.queue = b.queue[1:]

	// 删除数据的同时，需要检查索引并删除
	hash := b.hash(buffer.WrapReadOnly(b.keyAt(offset)))
	b.unindex(hash, offset)
}
