package memtable

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
)

const (
	// MaxHeight is the maximum height of the skip list
	MaxHeight = 12

	// BranchingFactor determines the probability of increasing the height
	BranchingFactor = 4
)

// KeyCompare orders the opaque keys stored in a SkipList
type KeyCompare func(a, b []byte) int

// node represents a node in the skip list
type node struct {
	key    []byte
	height int32
	// next contains pointers to the next nodes at each level
	// This is allocated as a single block for cache efficiency
	next [MaxHeight]unsafe.Pointer
}

// nodeOverhead is charged to the memory estimate for every inserted node
const nodeOverhead = int64(unsafe.Sizeof(node{}))

// newNode creates a new node with the given height
func newNode(key []byte, height int) *node {
	return &node{
		key:    key,
		height: int32(height),
	}
}

// getNext returns the next node at the given level
func (n *node) getNext(level int) *node {
	return (*node)(atomic.LoadPointer(&n.next[level]))
}

// setNext sets the next node at the given level
func (n *node) setNext(level int, next *node) {
	atomic.StorePointer(&n.next[level], unsafe.Pointer(next))
}

// casNext swaps the next pointer at level if it still equals old
func (n *node) casNext(level int, old, next *node) bool {
	return atomic.CompareAndSwapPointer(&n.next[level], unsafe.Pointer(old), unsafe.Pointer(next))
}

// SkipList is an ordered set of byte keys. Readers never lock. Insert
// requires external synchronization; InsertConcurrently may be called from
// many goroutines at once. Keys must stay unmodified once inserted.
type SkipList struct {
	head      *node
	cmp       KeyCompare
	maxHeight int32
	rnd       *rand.Rand
	rndMtx    sync.Mutex
	count     atomic.Int64
	readOnly  atomic.Bool
}

// NewSkipList creates a new skip list ordered by cmp
func NewSkipList(cmp KeyCompare) *SkipList {
	seed := time.Now().UnixNano()
	return &SkipList{
		head:      newNode(nil, MaxHeight),
		cmp:       cmp,
		maxHeight: 1,
		rnd:       rand.New(rand.NewSource(seed)),
	}
}

// randomHeight generates a random height for a new node
func (s *SkipList) randomHeight() int {
	s.rndMtx.Lock()
	defer s.rndMtx.Unlock()

	height := 1
	for height < MaxHeight && s.rnd.Intn(BranchingFactor) == 0 {
		height++
	}
	return height
}

// getCurrentHeight returns the current maximum height of the skip list
func (s *SkipList) getCurrentHeight() int {
	return int(atomic.LoadInt32(&s.maxHeight))
}

// raiseHeight lifts maxHeight to at least height
func (s *SkipList) raiseHeight(height int) {
	for {
		cur := atomic.LoadInt32(&s.maxHeight)
		if int32(height) <= cur || atomic.CompareAndSwapInt32(&s.maxHeight, cur, int32(height)) {
			return
		}
	}
}

// findSplice walks level starting at before and returns the last node whose
// key is < key together with its successor
func (s *SkipList) findSplice(key []byte, before *node, level int) (*node, *node) {
	x := before
	for {
		next := x.getNext(level)
		if next == nil || s.cmp(next.key, key) >= 0 {
			return x, next
		}
		x = next
	}
}

// Insert adds key to the list. It returns false if an equal key is already
// present.
func (s *SkipList) Insert(key []byte) bool {
	return s.insert(key, false)
}

// InsertConcurrently is like Insert but safe to call from many goroutines
func (s *SkipList) InsertConcurrently(key []byte) bool {
	return s.insert(key, true)
}

func (s *SkipList) insert(key []byte, concurrent bool) bool {
	if s.readOnly.Load() {
		panic("memtable: insert into a read-only skip list")
	}

	height := s.randomHeight()
	s.raiseHeight(height)

	var prev, next [MaxHeight]*node
	x := s.head
	for level := s.getCurrentHeight() - 1; level >= 0; level-- {
		prev[level], next[level] = s.findSplice(key, x, level)
		if next[level] != nil && s.cmp(next[level].key, key) == 0 {
			return false
		}
		x = prev[level]
	}

	n := newNode(key, height)
	for level := 0; level < height; level++ {
		if !concurrent {
			n.setNext(level, next[level])
			prev[level].setNext(level, n)
			continue
		}
		for {
			n.setNext(level, next[level])
			if prev[level].casNext(level, next[level], n) {
				break
			}
			// Lost a race at this level, recompute the splice from prev
			prev[level], next[level] = s.findSplice(key, prev[level], level)
			if level == 0 && next[0] != nil && s.cmp(next[0].key, key) == 0 {
				return false
			}
		}
	}

	s.count.Add(1)
	return true
}

// Contains reports whether an equal key is present
func (s *SkipList) Contains(key []byte) bool {
	n := s.findGreaterOrEqual(key)
	return n != nil && s.cmp(n.key, key) == 0
}

// Len returns the number of keys in the list
func (s *SkipList) Len() int64 {
	return s.count.Load()
}

// NodeMemory estimates the memory held by list nodes, excluding keys
func (s *SkipList) NodeMemory() int64 {
	return s.count.Load() * nodeOverhead
}

// MarkReadOnly forbids further inserts
func (s *SkipList) MarkReadOnly() {
	s.readOnly.Store(true)
}

// IsReadOnly reports whether MarkReadOnly was called
func (s *SkipList) IsReadOnly() bool {
	return s.readOnly.Load()
}

func (s *SkipList) findGreaterOrEqual(key []byte) *node {
	x := s.head
	for level := s.getCurrentHeight() - 1; level >= 0; level-- {
		x, _ = s.findSplice(key, x, level)
	}
	return x.getNext(0)
}

// findLessThan returns the last node with key < key, or head
func (s *SkipList) findLessThan(key []byte) *node {
	x := s.head
	for level := s.getCurrentHeight() - 1; level >= 0; level-- {
		x, _ = s.findSplice(key, x, level)
	}
	return x
}

// findLast returns the last node, or head when empty
func (s *SkipList) findLast() *node {
	x := s.head
	for level := s.getCurrentHeight() - 1; level >= 0; level-- {
		for next := x.getNext(level); next != nil; next = x.getNext(level) {
			x = next
		}
	}
	return x
}

// Iterator provides ordered access to the skip list keys
type Iterator struct {
	list    *SkipList
	current *node
}

// NewIterator creates a new, unpositioned Iterator for the skip list
func (s *SkipList) NewIterator() *Iterator {
	return &Iterator{list: s}
}

// Valid returns true if the iterator is positioned at a key
func (it *Iterator) Valid() bool {
	return it.current != nil && it.current != it.list.head
}

// Key returns the current key
func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.current.key
}

// Next advances the iterator to the next key
func (it *Iterator) Next() {
	if !it.Valid() {
		return
	}
	it.current = it.current.getNext(0)
}

// Prev moves the iterator to the previous key
func (it *Iterator) Prev() {
	if !it.Valid() {
		return
	}
	it.current = it.list.findLessThan(it.current.key)
	if it.current == it.list.head {
		it.current = nil
	}
}

// Seek positions the iterator at the first key >= target
func (it *Iterator) Seek(target []byte) {
	it.current = it.list.findGreaterOrEqual(target)
}

// SeekForPrev positions the iterator at the last key <= target
func (it *Iterator) SeekForPrev(target []byte) {
	it.Seek(target)
	if !it.Valid() {
		it.SeekToLast()
	}
	for it.Valid() && it.list.cmp(it.current.key, target) > 0 {
		it.Prev()
	}
}

// SeekToFirst positions the iterator at the first key
func (it *Iterator) SeekToFirst() {
	it.current = it.list.head.getNext(0)
}

// SeekToLast positions the iterator at the last key
func (it *Iterator) SeekToLast() {
	it.current = it.list.findLast()
	if it.current == it.list.head {
		it.current = nil
	}
}
