package block

import "github.com/KevoDB/lsmcore/pkg/common/keys"

// DecodeEntry decodes the header of the entry at the front of b, where b
// ends at the restart array. It returns the shared prefix length, the
// non-shared key length, the value length, and the header size. ok is false
// when the header is truncated or the key delta and value run past b.
func DecodeEntry(b []byte) (shared, nonShared, valueLen uint32, n int, ok bool) {
	if len(b) < 3 {
		return 0, 0, 0, 0, false
	}
	shared, nonShared, valueLen = uint32(b[0]), uint32(b[1]), uint32(b[2])
	if shared|nonShared|valueLen < 128 {
		n = 3
	} else {
		var m int
		if shared, m = keys.DecodeVarint32(b); m <= 0 {
			return 0, 0, 0, 0, false
		}
		n = m
		if nonShared, m = keys.DecodeVarint32(b[n:]); m <= 0 {
			return 0, 0, 0, 0, false
		}
		n += m
		if valueLen, m = keys.DecodeVarint32(b[n:]); m <= 0 {
			return 0, 0, 0, 0, false
		}
		n += m
	}

	if uint64(len(b)-n) < uint64(nonShared)+uint64(valueLen) {
		return 0, 0, 0, 0, false
	}
	return shared, nonShared, valueLen, n, true
}

// AppendEntry appends the encoding of one entry to dst
func AppendEntry(dst []byte, shared int, keyDelta, value []byte) []byte {
	dst = keys.AppendVarint32(dst, uint32(shared))
	dst = keys.AppendVarint32(dst, uint32(len(keyDelta)))
	dst = keys.AppendVarint32(dst, uint32(len(value)))
	dst = append(dst, keyDelta...)
	return append(dst, value...)
}
