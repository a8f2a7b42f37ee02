package keys

import (
	"encoding/binary"
	"math"
)

// MaxVarint32Len is the longest encoding of a 32-bit varint
const MaxVarint32Len = 5

// AppendVarint32 appends the varint encoding of v
func AppendVarint32(dst []byte, v uint32) []byte {
	return binary.AppendUvarint(dst, uint64(v))
}

// Varint32Len returns the number of bytes needed to encode v
func Varint32Len(v uint32) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// DecodeVarint32 decodes a varint from the front of b. It returns n <= 0 if b
// is truncated or the value does not fit in 32 bits.
func DecodeVarint32(b []byte) (uint32, int) {
	if len(b) > MaxVarint32Len {
		b = b[:MaxVarint32Len]
	}
	v, n := binary.Uvarint(b)
	if n <= 0 || v > math.MaxUint32 {
		return 0, -1
	}
	return uint32(v), n
}

// GetLengthPrefixed decodes a varint32 length followed by that many bytes.
// The returned slice aliases b. ok is false if b is malformed.
func GetLengthPrefixed(b []byte) (val, rest []byte, ok bool) {
	l, n := DecodeVarint32(b)
	if n <= 0 || uint64(len(b)-n) < uint64(l) {
		return nil, nil, false
	}
	b = b[n:]
	return b[:l:l], b[l:], true
}
