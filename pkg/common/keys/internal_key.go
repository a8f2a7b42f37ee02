// Package keys encodes and orders the internal keys shared by the write
// buffer and the block read path.
//
// An internal key is the user key followed by an 8-byte little-endian
// trailer packing the sequence number (upper 56 bits) and the entry kind
// (lower 8 bits). Internal keys sort by user key ascending, then by trailer
// descending, so the newest version of a user key comes first.
package keys

import (
	"encoding/binary"
	"fmt"
)

// SeqNum is a monotonically assigned version stamp. Higher is newer.
type SeqNum uint64

const (
	// MaxSeqNum is the largest sequence number that fits in a trailer. It
	// doubles as the "unknown" sentinel returned by lookups that found nothing.
	MaxSeqNum SeqNum = 1<<56 - 1

	// TrailerSize is the number of bytes appended to every user key
	TrailerSize = 8
)

func (s SeqNum) String() string {
	if s == MaxSeqNum {
		return "max"
	}
	return fmt.Sprintf("%d", uint64(s))
}

// Kind is the operation tag stored in the low byte of the trailer.
// These values are part of the on-disk format.
type Kind uint8

const (
	// KindDeletion is a tombstone
	KindDeletion Kind = 0
	// KindValue carries a plain value
	KindValue Kind = 1
	// KindMerge carries a merge operand
	KindMerge Kind = 2
	// KindSingleDeletion is a tombstone that deletes at most one older value
	KindSingleDeletion Kind = 7

	// KindForSeek is the largest defined kind. A key built from (user key,
	// seq, KindForSeek) sorts before every entry of that user key whose
	// sequence is <= seq, which makes it the right target for lookups.
	KindForSeek = KindSingleDeletion
)

// String returns a short name for the kind
func (k Kind) String() string {
	switch k {
	case KindDeletion:
		return "DEL"
	case KindValue:
		return "SET"
	case KindMerge:
		return "MERGE"
	case KindSingleDeletion:
		return "SINGLEDEL"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// Valid reports whether k is a kind that may appear in stored data
func (k Kind) Valid() bool {
	switch k {
	case KindDeletion, KindValue, KindMerge, KindSingleDeletion:
		return true
	}
	return false
}

// IsDeletion reports whether k is any form of tombstone
func (k Kind) IsDeletion() bool {
	return k == KindDeletion || k == KindSingleDeletion
}

// PackTrailer combines a sequence number and kind into a trailer value
func PackTrailer(seq SeqNum, kind Kind) uint64 {
	return uint64(seq)<<8 | uint64(kind)
}

// UnpackTrailer splits a trailer value into its sequence number and kind
func UnpackTrailer(t uint64) (SeqNum, Kind) {
	return SeqNum(t >> 8), Kind(t & 0xff)
}

// AppendInternalKey appends the encoding of (userKey, seq, kind) to dst
func AppendInternalKey(dst, userKey []byte, seq SeqNum, kind Kind) []byte {
	dst = append(dst, userKey...)
	return binary.LittleEndian.AppendUint64(dst, PackTrailer(seq, kind))
}

// MakeInternalKey returns a freshly allocated internal key
func MakeInternalKey(userKey []byte, seq SeqNum, kind Kind) []byte {
	return AppendInternalKey(make([]byte, 0, len(userKey)+TrailerSize), userKey, seq, kind)
}

// ParsedInternalKey is the decoded form of an internal key. UserKey aliases
// the encoded bytes it was parsed from.
type ParsedInternalKey struct {
	UserKey []byte
	Seq     SeqNum
	Kind    Kind
}

// String renders the key for debugging
func (p ParsedInternalKey) String() string {
	return fmt.Sprintf("%q#%s,%s", p.UserKey, p.Seq, p.Kind)
}

// Encode returns the internal key encoding of p
func (p ParsedInternalKey) Encode() []byte {
	return MakeInternalKey(p.UserKey, p.Seq, p.Kind)
}

// ParseInternalKey decodes an internal key. It returns false if the input is
// shorter than a trailer or carries an unknown kind.
func ParseInternalKey(ikey []byte) (ParsedInternalKey, bool) {
	n := len(ikey) - TrailerSize
	if n < 0 {
		return ParsedInternalKey{}, false
	}
	seq, kind := UnpackTrailer(binary.LittleEndian.Uint64(ikey[n:]))
	if !kind.Valid() {
		return ParsedInternalKey{}, false
	}
	return ParsedInternalKey{UserKey: ikey[:n:n], Seq: seq, Kind: kind}, true
}

// ExtractUserKey returns the user key portion of an internal key. Inputs
// shorter than a trailer are returned unchanged.
func ExtractUserKey(ikey []byte) []byte {
	if len(ikey) < TrailerSize {
		return ikey
	}
	return ikey[:len(ikey)-TrailerSize]
}

// ExtractTrailer returns the trailer of an internal key, or 0 if the input is
// too short to carry one.
func ExtractTrailer(ikey []byte) uint64 {
	if len(ikey) < TrailerSize {
		return 0
	}
	return binary.LittleEndian.Uint64(ikey[len(ikey)-TrailerSize:])
}
