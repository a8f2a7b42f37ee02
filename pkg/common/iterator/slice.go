package iterator

import "sort"

// SliceIterator walks a pre-sorted in-memory run of entries. It is used to
// feed small sorted batches into merging iterators and in tests.
type SliceIterator struct {
	cmp    func(a, b []byte) int
	keys   [][]byte
	values [][]byte
	index  int
}

// NewSliceIterator creates an iterator over keys and values, which must
// already be sorted by cmp and have equal length.
func NewSliceIterator(cmp func(a, b []byte) int, keys, values [][]byte) *SliceIterator {
	return &SliceIterator{cmp: cmp, keys: keys, values: values, index: -1}
}

// SeekToFirst positions the iterator at the first entry
func (s *SliceIterator) SeekToFirst() {
	s.index = 0
}

// SeekToLast positions the iterator at the last entry
func (s *SliceIterator) SeekToLast() {
	s.index = len(s.keys) - 1
}

// Seek positions the iterator at the first entry >= target
func (s *SliceIterator) Seek(target []byte) bool {
	s.index = sort.Search(len(s.keys), func(i int) bool {
		return s.cmp(s.keys[i], target) >= 0
	})
	return s.Valid()
}

// Next advances the iterator
func (s *SliceIterator) Next() bool {
	if !s.Valid() {
		return false
	}
	s.index++
	return s.Valid()
}

// Prev moves the iterator back one entry
func (s *SliceIterator) Prev() bool {
	if !s.Valid() {
		return false
	}
	s.index--
	return s.Valid()
}

// Key returns the current key
func (s *SliceIterator) Key() []byte {
	if !s.Valid() {
		return nil
	}
	return s.keys[s.index]
}

// Value returns the current value
func (s *SliceIterator) Value() []byte {
	if !s.Valid() {
		return nil
	}
	return s.values[s.index]
}

// Valid returns true if the iterator is positioned at an entry
func (s *SliceIterator) Valid() bool {
	return s.index >= 0 && s.index < len(s.keys)
}

// Status always returns nil
func (s *SliceIterator) Status() error {
	return nil
}
