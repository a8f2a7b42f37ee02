package block

import (
	"encoding/binary"

	"github.com/KevoDB/lsmcore/pkg/common/iterator"
	"github.com/KevoDB/lsmcore/pkg/common/keys"
)

// Iter is a cursor over the entries of a Block. Keys of entries that store
// their full key alias the block bytes; spliced keys live in a scratch buffer
// owned by the iterator. Both are valid until the next positioning call.
//
// An Iter must not be shared between goroutines. Any number of iterators may
// read the same Block concurrently.
type Iter struct {
	cmp         keys.Compare
	data        []byte
	restarts    uint32 // offset of the restart array
	numRestarts uint32

	current      uint32 // offset of the current entry, restarts when invalid
	restartIndex uint32 // restart interval containing current
	next         uint32 // offset just past the current value

	key       []byte
	scratch   []byte
	keyPinned bool // key aliases data
	value     []byte
	err       error
}

var _ iterator.Iterator = (*Iter)(nil)

func newIter(cmp keys.Compare, data []byte, restarts, numRestarts uint32) *Iter {
	return &Iter{
		cmp:          cmp,
		data:         data,
		restarts:     restarts,
		numRestarts:  numRestarts,
		current:      restarts,
		restartIndex: numRestarts,
	}
}

func (it *Iter) restartPoint(index uint32) uint32 {
	off := it.restarts + index*restartSize
	return binary.LittleEndian.Uint32(it.data[off : off+restartSize])
}

// seekToRestartPoint prepares parseNextKey to decode the entry at a restart
// point. An offset past the entry region marks the iterator corrupt; an offset
// equal to it leaves the iterator exhausted.
func (it *Iter) seekToRestartPoint(index uint32) bool {
	it.key = it.key[:0]
	it.keyPinned = false
	it.value = nil
	it.restartIndex = index
	it.next = it.restartPoint(index)
	if it.next > it.restarts {
		it.corruptionError()
		return false
	}
	return true
}

func (it *Iter) invalidate() {
	it.current = it.restarts
	it.restartIndex = it.numRestarts
}

func (it *Iter) corruptionError() {
	it.invalidate()
	it.err = errBadEntry
	it.key = nil
	it.keyPinned = false
	it.value = nil
}

// decodeAt decodes the entry starting at off and returns the offset of its
// key delta
func (it *Iter) decodeAt(off uint32) (shared, nonShared, valueLen, keyOff uint32, ok bool) {
	if off >= it.restarts {
		return 0, 0, 0, 0, false
	}
	shared, nonShared, valueLen, n, ok := DecodeEntry(it.data[off:it.restarts])
	if !ok {
		return 0, 0, 0, 0, false
	}
	return shared, nonShared, valueLen, off + uint32(n), true
}

// restartKey returns the full key stored at a restart point. A restart entry
// that shares a prefix is corrupt.
func (it *Iter) restartKey(index uint32) ([]byte, bool) {
	shared, nonShared, _, p, ok := it.decodeAt(it.restartPoint(index))
	if !ok || shared != 0 {
		return nil, false
	}
	return it.data[p : p+nonShared : p+nonShared], true
}

func (it *Iter) parseNextKey() bool {
	it.current = it.next
	if it.current >= it.restarts {
		// No more entries
		it.invalidate()
		return false
	}

	shared, nonShared, valueLen, p, ok := it.decodeAt(it.current)
	if !ok || uint32(len(it.key)) < shared {
		it.corruptionError()
		return false
	}

	delta := it.data[p : p+nonShared : p+nonShared]
	switch {
	case shared == 0:
		it.key = delta
		it.keyPinned = true
	case it.keyPinned:
		it.scratch = append(append(it.scratch[:0], it.key[:shared]...), delta...)
		it.key = it.scratch
		it.keyPinned = false
	default:
		it.scratch = append(it.scratch[:shared], delta...)
		it.key = it.scratch
	}

	vstart := p + nonShared
	it.next = vstart + valueLen
	it.value = it.data[vstart:it.next:it.next]
	for it.restartIndex+1 < it.numRestarts && it.restartPoint(it.restartIndex+1) < it.current {
		it.restartIndex++
	}
	return true
}

// binarySeek finds the last restart point in [left, right] whose key is
// below target, or the one whose key equals it
func (it *Iter) binarySeek(target []byte, left, right uint32) (uint32, bool) {
	for left < right {
		mid := (left + right + 1) / 2
		midKey, ok := it.restartKey(mid)
		if !ok {
			it.corruptionError()
			return 0, false
		}
		switch c := it.cmp.Compare(midKey, target); {
		case c < 0:
			left = mid
		case c > 0:
			right = mid - 1
		default:
			left, right = mid, mid
		}
	}
	return left, true
}

// Seek positions the iterator at the first entry whose key is >= target
func (it *Iter) Seek(target []byte) bool {
	if it.err != nil {
		return false
	}
	index, ok := it.binarySeek(target, 0, it.numRestarts-1)
	if !ok {
		return false
	}
	if !it.seekToRestartPoint(index) {
		return false
	}
	for it.parseNextKey() {
		if it.cmp.Compare(it.key, target) >= 0 {
			return true
		}
	}
	return false
}

// SeekToFirst positions the iterator at the first entry
func (it *Iter) SeekToFirst() {
	if it.err != nil {
		return
	}
	if it.seekToRestartPoint(0) {
		it.parseNextKey()
	}
}

// SeekToLast positions the iterator at the last entry
func (it *Iter) SeekToLast() {
	if it.err != nil {
		return
	}
	if !it.seekToRestartPoint(it.numRestarts - 1) {
		return
	}
	for it.parseNextKey() && it.next < it.restarts {
	}
}

// Next advances to the following entry
func (it *Iter) Next() bool {
	if !it.Valid() {
		return false
	}
	return it.parseNextKey()
}

// Prev steps back to the preceding entry by re-decoding forward from the
// nearest restart point before the current one
func (it *Iter) Prev() bool {
	if !it.Valid() {
		return false
	}

	original := it.current
	for it.restartPoint(it.restartIndex) >= original {
		if it.restartIndex == 0 {
			// No more entries
			it.invalidate()
			return false
		}
		it.restartIndex--
	}

	if !it.seekToRestartPoint(it.restartIndex) {
		return false
	}
	for it.parseNextKey() && it.next < original {
	}
	return it.Valid()
}

// Key returns the current key
func (it *Iter) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.key
}

// Value returns the current value, which aliases the block bytes
func (it *Iter) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.value
}

// Valid reports whether the iterator is positioned at an entry
func (it *Iter) Valid() bool {
	return it.err == nil && it.current < it.restarts
}

// Status returns the corruption error, if any. Once set it never clears.
func (it *Iter) Status() error {
	return it.err
}

// compareBlockKey compares target against the first key of the restart
// interval at index. A bad entry marks the iterator corrupt and reports the
// target as smaller.
func (it *Iter) compareBlockKey(index uint32, target []byte) int {
	if index >= it.numRestarts {
		it.corruptionError()
		return 1
	}
	key, ok := it.restartKey(index)
	if !ok {
		it.corruptionError()
		return 1
	}
	return it.cmp.Compare(key, target)
}

// BinaryBlockIndexSeek searches ids[left..right], an ascending list of
// restart indexes that may skip some intervals, for the first interval that
// could hold target. It returns false when every listed interval starts
// below target, when target falls in a gap between listed intervals, or on
// corruption. A false result leaves the iterator invalid.
func (it *Iter) BinaryBlockIndexSeek(target []byte, ids []uint32, left, right uint32) (uint32, bool) {
	if it.err != nil || left > right || int(right) >= len(ids) {
		it.invalidate()
		return 0, false
	}
	leftBound := left

	for left <= right {
		mid := (left + right) / 2
		c := it.compareBlockKey(ids[mid], target)
		if it.err != nil {
			return 0, false
		}
		if c < 0 {
			left = mid + 1
		} else {
			if left == right {
				break
			}
			right = mid
		}
	}

	if left != right {
		it.invalidate()
		return 0, false
	}

	// Either left is the first candidate or the interval before it was not
	// listed. The previous interval's first key tells whether target falls
	// into that gap.
	if ids[left] > 0 &&
		(left == leftBound || ids[left-1] != ids[left]-1) &&
		it.compareBlockKey(ids[left]-1, target) > 0 {
		it.invalidate()
		return 0, false
	}
	if it.err != nil {
		return 0, false
	}
	return ids[left], true
}

// SeekUsingIndex positions the iterator at the first key >= target within
// the restart intervals named by ids. It reports false if no listed interval
// can hold target.
func (it *Iter) SeekUsingIndex(target []byte, ids []uint32) bool {
	if len(ids) == 0 {
		it.invalidate()
		return false
	}
	index, ok := it.BinaryBlockIndexSeek(target, ids, 0, uint32(len(ids)-1))
	if !ok {
		return false
	}
	if !it.seekToRestartPoint(index) {
		return false
	}
	for it.parseNextKey() {
		if it.cmp.Compare(it.key, target) >= 0 {
			return true
		}
	}
	return false
}
