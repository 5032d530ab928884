package utils

import "unsafe"

// StringTobyteSlice returns the bytes of s without copying. The result must
// not be modified.
func StringTobyteSlice(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// ByteSliceToString returns bytes as a string without copying. bytes must
// not change while the string is in use.
func ByteSliceToString(bytes []byte) string {
	return unsafe.String(unsafe.SliceData(bytes), len(bytes))
}
