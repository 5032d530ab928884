package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversions(t *testing.T) {
	assert.Equal(t, []byte("redis"), StringTobyteSlice("redis"))
	assert.Equal(t, "redis", ByteSliceToString([]byte("redis")))
	assert.Empty(t, StringTobyteSlice(""))
	assert.Equal(t, "", ByteSliceToString(nil))
}
