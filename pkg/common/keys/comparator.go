package keys

import (
	"encoding/binary"

	"github.com/syndtr/goleveldb/leveldb/comparer"
)

// Compare is the minimal ordering capability consumed by blocks and iterators
type Compare interface {
	Compare(a, b []byte) int
}

// InternalKeyComparator orders internal keys: user key ascending according to
// the wrapped user comparator, then trailer descending.
type InternalKeyComparator struct {
	user comparer.Comparer
}

var _ comparer.Comparer = (*InternalKeyComparator)(nil)

// NewInternalKeyComparator wraps a user comparator. A nil comparator selects
// bytewise ordering.
func NewInternalKeyComparator(user comparer.Comparer) *InternalKeyComparator {
	if user == nil {
		user = comparer.DefaultComparer
	}
	return &InternalKeyComparator{user: user}
}

// DefaultInternalKeyComparator uses bytewise user key ordering
var DefaultInternalKeyComparator = NewInternalKeyComparator(nil)

// UserComparator returns the wrapped user key comparator
func (c *InternalKeyComparator) UserComparator() comparer.Comparer {
	return c.user
}

// Name identifies the ordering for persisted data
func (c *InternalKeyComparator) Name() string {
	return "lsmcore.InternalKeyComparator:" + c.user.Name()
}

// Compare orders two encoded internal keys
func (c *InternalKeyComparator) Compare(a, b []byte) int {
	if r := c.user.Compare(ExtractUserKey(a), ExtractUserKey(b)); r != 0 {
		return r
	}
	ta, tb := ExtractTrailer(a), ExtractTrailer(b)
	switch {
	case ta > tb:
		return -1
	case ta < tb:
		return 1
	}
	return 0
}

// CompareUserKeys orders two bare user keys
func (c *InternalKeyComparator) CompareUserKeys(a, b []byte) int {
	return c.user.Compare(a, b)
}

// CompareParsed orders two decoded keys without re-encoding them
func (c *InternalKeyComparator) CompareParsed(a, b ParsedInternalKey) int {
	if r := c.user.Compare(a.UserKey, b.UserKey); r != 0 {
		return r
	}
	ta, tb := PackTrailer(a.Seq, a.Kind), PackTrailer(b.Seq, b.Kind)
	switch {
	case ta > tb:
		return -1
	case ta < tb:
		return 1
	}
	return 0
}

// Separator appends to dst a short internal key k with a <= k < b, or
// returns nil when no shorter key exists.
func (c *InternalKeyComparator) Separator(dst, a, b []byte) []byte {
	ua, ub := ExtractUserKey(a), ExtractUserKey(b)
	sep := c.user.Separator(nil, ua, ub)
	if sep != nil && len(sep) < len(ua) && c.user.Compare(ua, sep) < 0 {
		dst = append(dst, sep...)
		return binary.LittleEndian.AppendUint64(dst, PackTrailer(MaxSeqNum, KindForSeek))
	}
	return nil
}

// Successor appends to dst a short internal key k >= b, or returns nil when no
// shorter key exists.
func (c *InternalKeyComparator) Successor(dst, b []byte) []byte {
	ub := ExtractUserKey(b)
	succ := c.user.Successor(nil, ub)
	if succ != nil && len(succ) < len(ub) && c.user.Compare(ub, succ) < 0 {
		dst = append(dst, succ...)
		return binary.LittleEndian.AppendUint64(dst, PackTrailer(MaxSeqNum, KindForSeek))
	}
	return nil
}
