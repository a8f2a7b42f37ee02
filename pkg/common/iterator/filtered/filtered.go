// Package filtered provides iterators that hide internal keys based on
// different criteria
package filtered

import (
	"bytes"

	"github.com/KevoDB/lsmcore/pkg/common/iterator"
	"github.com/KevoDB/lsmcore/pkg/common/keys"
)

// KeyFilterFunc reports whether a parsed internal key should be visible
type KeyFilterFunc func(key keys.ParsedInternalKey) bool

// FilteredIterator wraps an iterator and skips entries rejected by a filter.
// Entries whose key does not parse are skipped as well.
type FilteredIterator struct {
	iter      iterator.Iterator
	keyFilter KeyFilterFunc
}

// NewFilteredIterator creates a new iterator with a key filter
func NewFilteredIterator(iter iterator.Iterator, filter KeyFilterFunc) *FilteredIterator {
	return &FilteredIterator{
		iter:      iter,
		keyFilter: filter,
	}
}

func (fi *FilteredIterator) accept() bool {
	p, ok := keys.ParseInternalKey(fi.iter.Key())
	return ok && fi.keyFilter(p)
}

func (fi *FilteredIterator) skipForward() bool {
	for fi.iter.Valid() && !fi.accept() {
		fi.iter.Next()
	}
	return fi.iter.Valid()
}

func (fi *FilteredIterator) skipBackward() bool {
	for fi.iter.Valid() && !fi.accept() {
		fi.iter.Prev()
	}
	return fi.iter.Valid()
}

// SeekToFirst positions at the first key that passes the filter
func (fi *FilteredIterator) SeekToFirst() {
	fi.iter.SeekToFirst()
	fi.skipForward()
}

// SeekToLast positions at the last key that passes the filter
func (fi *FilteredIterator) SeekToLast() {
	fi.iter.SeekToLast()
	fi.skipBackward()
}

// Seek positions at the first key >= target that passes the filter
func (fi *FilteredIterator) Seek(target []byte) bool {
	fi.iter.Seek(target)
	return fi.skipForward()
}

// Next advances to the next key that passes the filter
func (fi *FilteredIterator) Next() bool {
	if !fi.iter.Valid() {
		return false
	}
	fi.iter.Next()
	return fi.skipForward()
}

// Prev moves to the previous key that passes the filter
func (fi *FilteredIterator) Prev() bool {
	if !fi.iter.Valid() {
		return false
	}
	fi.iter.Prev()
	return fi.skipBackward()
}

// Key returns the current key
func (fi *FilteredIterator) Key() []byte {
	if !fi.Valid() {
		return nil
	}
	return fi.iter.Key()
}

// Value returns the current value
func (fi *FilteredIterator) Value() []byte {
	if !fi.Valid() {
		return nil
	}
	return fi.iter.Value()
}

// Valid returns true if the iterator is at a visible position
func (fi *FilteredIterator) Valid() bool {
	return fi.iter.Valid() && fi.accept()
}

// Status returns the underlying iterator status
func (fi *FilteredIterator) Status() error {
	return fi.iter.Status()
}

// SnapshotFilterFunc accepts entries written at or before snapshot
func SnapshotFilterFunc(snapshot keys.SeqNum) KeyFilterFunc {
	return func(key keys.ParsedInternalKey) bool {
		return key.Seq <= snapshot
	}
}

// PrefixFilterFunc accepts entries whose user key has the given prefix
func PrefixFilterFunc(prefix []byte) KeyFilterFunc {
	return func(key keys.ParsedInternalKey) bool {
		return bytes.HasPrefix(key.UserKey, prefix)
	}
}

// NewSnapshotIterator hides entries newer than snapshot
func NewSnapshotIterator(iter iterator.Iterator, snapshot keys.SeqNum) *FilteredIterator {
	return NewFilteredIterator(iter, SnapshotFilterFunc(snapshot))
}

// NewPrefixIterator returns an iterator that filters user keys by prefix
func NewPrefixIterator(iter iterator.Iterator, prefix []byte) *FilteredIterator {
	return NewFilteredIterator(iter, PrefixFilterFunc(prefix))
}
