// Package bounded restricts an internal-key iterator to a user-key range.
package bounded

import (
	"github.com/KevoDB/lsmcore/pkg/common/iterator"
	"github.com/KevoDB/lsmcore/pkg/common/keys"
)

// BoundedIterator wraps an iterator and limits it to user keys in [start, end).
// A nil bound is open.
type BoundedIterator struct {
	iterator.Iterator
	cmp   *keys.InternalKeyComparator
	start []byte
	end   []byte
}

// NewBoundedIterator creates a new bounded iterator
func NewBoundedIterator(iter iterator.Iterator, cmp *keys.InternalKeyComparator, startKey, endKey []byte) *BoundedIterator {
	bi := &BoundedIterator{
		Iterator: iter,
		cmp:      cmp,
	}
	bi.SetBounds(startKey, endKey)
	return bi
}

// SetBounds replaces the user-key bounds. The bounds are copied.
func (b *BoundedIterator) SetBounds(start, end []byte) {
	b.start = cloneOrNil(start)
	b.end = cloneOrNil(end)
}

// SeekToFirst positions at the first entry in the bounded range
func (b *BoundedIterator) SeekToFirst() {
	if b.start != nil {
		b.Iterator.Seek(keys.MakeInternalKey(b.start, keys.MaxSeqNum, keys.KindForSeek))
	} else {
		b.Iterator.SeekToFirst()
	}
}

// SeekToLast positions at the last entry in the bounded range
func (b *BoundedIterator) SeekToLast() {
	if b.end == nil {
		b.Iterator.SeekToLast()
		return
	}
	// Land on the first entry at or past end, then step back once
	if b.Iterator.Seek(keys.MakeInternalKey(b.end, keys.MaxSeqNum, keys.KindForSeek)) {
		b.Iterator.Prev()
	} else {
		b.Iterator.SeekToLast()
	}
}

// Seek positions at the first entry >= target within bounds
func (b *BoundedIterator) Seek(target []byte) bool {
	if b.start != nil && b.cmp.CompareUserKeys(keys.ExtractUserKey(target), b.start) < 0 {
		target = keys.MakeInternalKey(b.start, keys.MaxSeqNum, keys.KindForSeek)
	}
	b.Iterator.Seek(target)
	return b.Valid()
}

// Next advances to the next entry within bounds
func (b *BoundedIterator) Next() bool {
	if !b.Valid() {
		return false
	}
	b.Iterator.Next()
	return b.Valid()
}

// Prev moves to the previous entry within bounds
func (b *BoundedIterator) Prev() bool {
	if !b.Valid() {
		return false
	}
	b.Iterator.Prev()
	return b.Valid()
}

// Valid returns true if the iterator is positioned at an entry within bounds
func (b *BoundedIterator) Valid() bool {
	return b.Iterator.Valid() && b.inBounds(keys.ExtractUserKey(b.Iterator.Key()))
}

// Key returns the current key if within bounds
func (b *BoundedIterator) Key() []byte {
	if !b.Valid() {
		return nil
	}
	return b.Iterator.Key()
}

// Value returns the current value if within bounds
func (b *BoundedIterator) Value() []byte {
	if !b.Valid() {
		return nil
	}
	return b.Iterator.Value()
}

func (b *BoundedIterator) inBounds(userKey []byte) bool {
	if b.start != nil && b.cmp.CompareUserKeys(userKey, b.start) < 0 {
		return false
	}
	if b.end != nil && b.cmp.CompareUserKeys(userKey, b.end) >= 0 {
		return false
	}
	return true
}

func cloneOrNil(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}
