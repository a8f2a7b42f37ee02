package memtable

import (
	"github.com/KevoDB/lsmcore/pkg/common/iterator"
	"github.com/KevoDB/lsmcore/pkg/common/keys"
)

// memIterator adapts the skip list cursor to the common Iterator interface.
// It strips the record framing: Key returns the internal key and Value the
// stored value.
type memIterator struct {
	m      *MemTable
	iter   *Iterator
	seek   []byte
	status error
}

var _ iterator.Iterator = (*memIterator)(nil)

// NewIterator returns an iterator over every entry of the table in internal
// key order, including tombstones and merge operands
func (m *MemTable) NewIterator() iterator.Iterator {
	return &memIterator{m: m, iter: m.table.NewIterator()}
}

func (a *memIterator) SeekToFirst() {
	a.iter.SeekToFirst()
}

func (a *memIterator) SeekToLast() {
	a.iter.SeekToLast()
}

// Seek takes an internal key and positions at the first entry >= it
func (a *memIterator) Seek(target []byte) bool {
	a.seek = memtableKey(a.seek, target)
	a.iter.Seek(a.seek)
	return a.iter.Valid()
}

// SeekForPrev positions at the last entry <= target
func (a *memIterator) SeekForPrev(target []byte) bool {
	a.seek = memtableKey(a.seek, target)
	a.iter.SeekForPrev(a.seek)
	return a.iter.Valid()
}

func (a *memIterator) Next() bool {
	a.iter.Next()
	return a.iter.Valid()
}

func (a *memIterator) Prev() bool {
	a.iter.Prev()
	return a.iter.Valid()
}

func (a *memIterator) Key() []byte {
	if !a.iter.Valid() {
		return nil
	}
	ikey, _, ok := keys.GetLengthPrefixed(a.iter.Key())
	if !ok {
		a.status = ErrCorruptEntry
		return nil
	}
	return ikey
}

func (a *memIterator) Value() []byte {
	if !a.iter.Valid() {
		return nil
	}
	_, rest, ok := keys.GetLengthPrefixed(a.iter.Key())
	if !ok {
		a.status = ErrCorruptEntry
		return nil
	}
	return a.m.readValue(rest)
}

func (a *memIterator) Valid() bool {
	return a.status == nil && a.iter.Valid()
}

func (a *memIterator) Status() error {
	return a.status
}
