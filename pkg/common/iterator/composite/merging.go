package composite

import (
	"github.com/KevoDB/lsmcore/pkg/common/iterator"
	"github.com/KevoDB/lsmcore/pkg/common/keys"
)

type direction int

const (
	forward direction = iota
	reverse
)

// MergingIterator yields the union of its sources in comparator order. It is
// how the write buffers and on-disk blocks are read as one sorted stream.
// Sources are expected to hold distinct internal keys.
type MergingIterator struct {
	cmp     keys.Compare
	iters   []iterator.Iterator
	current int
	dir     direction
}

var _ CompositeIterator = (*MergingIterator)(nil)

// NewMergingIterator creates a merging iterator over the given sources
func NewMergingIterator(cmp keys.Compare, iters ...iterator.Iterator) *MergingIterator {
	return &MergingIterator{
		cmp:     cmp,
		iters:   iters,
		current: -1,
	}
}

// SeekToFirst positions the iterator at the smallest key of any source
func (m *MergingIterator) SeekToFirst() {
	for _, it := range m.iters {
		it.SeekToFirst()
	}
	m.findSmallest()
	m.dir = forward
}

// SeekToLast positions the iterator at the largest key of any source
func (m *MergingIterator) SeekToLast() {
	for _, it := range m.iters {
		it.SeekToLast()
	}
	m.findLargest()
	m.dir = reverse
}

// Seek positions the iterator at the first key >= target across all sources
func (m *MergingIterator) Seek(target []byte) bool {
	for _, it := range m.iters {
		it.Seek(target)
	}
	m.findSmallest()
	m.dir = forward
	return m.Valid()
}

// Next advances to the next key in merged order
func (m *MergingIterator) Next() bool {
	if !m.Valid() {
		return false
	}

	// After moving backwards the other sources sit before the current key.
	// Move each of them to the first entry after it.
	if m.dir != forward {
		key := m.iters[m.current].Key()
		for i, it := range m.iters {
			if i == m.current {
				continue
			}
			it.Seek(key)
			if it.Valid() && m.cmp.Compare(key, it.Key()) == 0 {
				it.Next()
			}
		}
		m.dir = forward
	}

	m.iters[m.current].Next()
	m.findSmallest()
	return m.Valid()
}

// Prev moves to the previous key in merged order
func (m *MergingIterator) Prev() bool {
	if !m.Valid() {
		return false
	}

	// After moving forwards the other sources sit after the current key.
	// Move each of them to the last entry before it.
	if m.dir != reverse {
		key := m.iters[m.current].Key()
		for i, it := range m.iters {
			if i == m.current {
				continue
			}
			if it.Seek(key) {
				it.Prev()
			} else {
				it.SeekToLast()
			}
		}
		m.dir = reverse
	}

	m.iters[m.current].Prev()
	m.findLargest()
	return m.Valid()
}

// Key returns the current key
func (m *MergingIterator) Key() []byte {
	if !m.Valid() {
		return nil
	}
	return m.iters[m.current].Key()
}

// Value returns the current value
func (m *MergingIterator) Value() []byte {
	if !m.Valid() {
		return nil
	}
	return m.iters[m.current].Value()
}

// Valid returns true if the iterator is positioned at an entry
func (m *MergingIterator) Valid() bool {
	return m.current >= 0 && m.iters[m.current].Valid()
}

// Status returns the first error reported by any source
func (m *MergingIterator) Status() error {
	for _, it := range m.iters {
		if err := it.Status(); err != nil {
			return err
		}
	}
	return nil
}

// NumSources returns the number of source iterators
func (m *MergingIterator) NumSources() int {
	return len(m.iters)
}

// GetSourceIterators returns the underlying source iterators
func (m *MergingIterator) GetSourceIterators() []iterator.Iterator {
	return m.iters
}

func (m *MergingIterator) findSmallest() {
	m.current = -1
	for i, it := range m.iters {
		if !it.Valid() {
			continue
		}
		if m.current < 0 || m.cmp.Compare(it.Key(), m.iters[m.current].Key()) < 0 {
			m.current = i
		}
	}
}

func (m *MergingIterator) findLargest() {
	m.current = -1
	for i := len(m.iters) - 1; i >= 0; i-- {
		it := m.iters[i]
		if !it.Valid() {
			continue
		}
		if m.current < 0 || m.cmp.Compare(it.Key(), m.iters[m.current].Key()) > 0 {
			m.current = i
		}
	}
}
