package engine

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccfarm/seqbuf/buffer"
)

func bs(s string) *buffer.ByteBuffer {
	return buffer.Wrap([]byte(s))
}

func TestSetGetDelete(t *testing.T) {
	db := NewDB(4, 1024)

	require.NoError(t, db.Set(bs("key"), bs("value"), 0))
	v, err := db.Get(bs("key"))
	require.NoError(t, err)
	assert.Equal(t, "value", string(v.Bytes()))
	assert.True(t, v.IsReadOnly())

	require.NoError(t, db.Set(bs("key"), bs("other"), 0))
	v, err = db.Get(bs("key"))
	require.NoError(t, err)
	assert.Equal(t, "other", string(v.Bytes()))

	require.NoError(t, db.Delete(bs("key")))
	_, err = db.Get(bs("key"))
	assert.ErrorIs(t, err, ErrNil)
	assert.ErrorIs(t, db.Delete(bs("key")), ErrNil)
}

func TestSetUsesRemainingRegion(t *testing.T) {
	db := NewDB(1, 1024)

	key := bs("xxkey")
	require.NoError(t, key.SetPosition(2))
	value := bs("--value--")
	require.NoError(t, value.SetPosition(2))
	require.NoError(t, value.SetLimit(7))

	require.NoError(t, db.Set(key, value, 0))
	// cursors untouched
	assert.Equal(t, 2, key.Position())
	assert.Equal(t, 2, value.Position())

	v, err := db.Get(bs("key"))
	require.NoError(t, err)
	assert.Equal(t, "value", string(v.Bytes()))
}

func TestGetReturnsSnapshot(t *testing.T) {
	db := NewDB(1, 1024)
	require.NoError(t, db.Set(bs("k"), bs("v1"), 0))
	v, err := db.Get(bs("k"))
	require.NoError(t, err)

	require.NoError(t, db.Set(bs("k"), bs("v2"), 0))
	assert.Equal(t, "v1", string(v.Bytes()))
	assert.ErrorIs(t, v.PutAt(0, 'x'), buffer.ErrReadOnly)
}

func TestExpire(t *testing.T) {
	db := NewDB(1, 1024)
	require.NoError(t, db.Set(bs("k"), bs("v"), -10))

	_, err := db.Get(bs("k"))
	assert.ErrorIs(t, err, ErrNil)
	assert.Empty(t, db.Keys())
	assert.ErrorIs(t, db.Delete(bs("k")), ErrNil)

	require.NoError(t, db.Set(bs("live"), bs("v"), 60))
	_, err = db.Get(bs("live"))
	assert.NoError(t, err)
}

func TestTooLarge(t *testing.T) {
	db := NewDB(1, 64)
	err := db.Set(bs("k"), buffer.Wrap(make([]byte, 64)), 0)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestEviction(t *testing.T) {
	// every entry is headerSize + 2 + 8 = 26 bytes, four fit in a block
	db := NewDB(1, 4*26+10)
	for i := 0; i < 10; i++ {
		require.NoError(t, db.Set(bs(fmt.Sprintf("k%d", i)), bs("01234567"), 0))
	}

	// the newest entries survive, the oldest were overwritten
	for i := 0; i < 10; i++ {
		_, err := db.Get(bs(fmt.Sprintf("k%d", i)))
		if i >= 6 {
			assert.NoError(t, err, "k%d", i)
		} else {
			assert.ErrorIs(t, err, ErrNil, "k%d", i)
		}
	}
	assert.Len(t, db.Keys(), 4)
}

func TestEvictionWithEmptyValues(t *testing.T) {
	db := NewDB(1, 100)
	for i := 0; i < 50; i++ {
		require.NoError(t, db.Set(bs(fmt.Sprintf("%02d", i)), bs(""), 0))
	}
	v, err := db.Get(bs("49"))
	require.NoError(t, err)
	assert.Zero(t, v.Remaining())
}

func TestKeysSorted(t *testing.T) {
	db := NewDB(8, 1024)
	for _, k := range []string{"pear", "apple", "fig", "apricot", ""} {
		require.NoError(t, db.Set(bs(k), bs("v"), 0))
	}

	var got []string
	for _, k := range db.Keys() {
		got = append(got, string(k.Bytes()))
	}
	assert.Equal(t, []string{"", "apple", "apricot", "fig", "pear"}, got)
}

func TestConcurrentAccess(t *testing.T) {
	db := NewDB(4, 4096)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := bs(fmt.Sprintf("g%d-%d", g, i%10))
				_ = db.Set(key, bs("value"), 0)
				_, _ = db.Get(key)
				if i%7 == 0 {
					_ = db.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()
	_ = db.Keys()
}

func sameHash(*buffer.ByteBuffer) uint64 { return 42 }

func TestHashCollision(t *testing.T) {
	db := newDB(1, 1024, sameHash)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, db.Set(bs(k), bs("v-"+k), 0))
	}

	for _, k := range []string{"a", "b", "c"} {
		v, err := db.Get(bs(k))
		require.NoError(t, err, k)
		assert.Equal(t, "v-"+k, string(v.Bytes()))
	}

	// overwrite one key, the others stay
	require.NoError(t, db.Set(bs("b"), bs("again"), 0))
	v, err := db.Get(bs("b"))
	require.NoError(t, err)
	assert.Equal(t, "again", string(v.Bytes()))
	assert.Len(t, db.Keys(), 3)

	require.NoError(t, db.Delete(bs("b")))
	_, err = db.Get(bs("b"))
	assert.ErrorIs(t, err, ErrNil)
	_, err = db.Get(bs("a"))
	assert.NoError(t, err)
	_, err = db.Get(bs("missing"))
	assert.ErrorIs(t, err, ErrNil)
	assert.Len(t, db.Keys(), 2)
}

func TestEvictionWithCollidingKeys(t *testing.T) {
	// same entry size as TestEviction: four fit in a block
	db := newDB(1, 4*26+10, sameHash)
	for i := 0; i < 10; i++ {
		require.NoError(t, db.Set(bs(fmt.Sprintf("k%d", i)), bs("01234567"), 0))
	}

	for i := 0; i < 10; i++ {
		v, err := db.Get(bs(fmt.Sprintf("k%d", i)))
		if i >= 6 {
			require.NoError(t, err, "k%d", i)
			assert.Equal(t, "01234567", string(v.Bytes()))
		} else {
			assert.ErrorIs(t, err, ErrNil, "k%d", i)
		}
	}
	assert.Len(t, db.Keys(), 4)
	assert.Len(t, db.partitions[0].index[42], 4)
}
