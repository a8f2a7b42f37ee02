// Package block decodes and builds the prefix-compressed, restart-indexed
// blocks that sorted tables are made of.
//
// A block is laid out as
//
//	entry* restart_point* restart_count
//
// where each entry is (shared, non_shared, value_length) as three varints
// (single bytes when all are below 128), the non-shared key suffix, and the
// value. Restart points are little-endian uint32 offsets of entries that
// store their full key, and restart_count is a little-endian uint32.
package block

import (
	"encoding/binary"

	"github.com/KevoDB/lsmcore/pkg/common/iterator"
	"github.com/KevoDB/lsmcore/pkg/common/keys"
)

const restartSize = 4

// Block is an immutable decoded block. It borrows data for its lifetime.
type Block struct {
	data          []byte
	size          int // zero marks unusable contents
	restartOffset uint32
}

// NewBlock wraps decompressed block bytes. Malformed input does not fail
// here; it yields a block whose iterators report corruption.
func NewBlock(data []byte) *Block {
	b := &Block{data: data, size: len(data)}
	if b.size < restartSize {
		b.size = 0
		return b
	}
	need := (uint64(b.numRestarts()) + 1) * restartSize
	if need > uint64(b.size) {
		// restart_count does not fit in the block
		b.size = 0
		return b
	}
	b.restartOffset = uint32(uint64(b.size) - need)
	return b
}

func (b *Block) numRestarts() uint32 {
	return binary.LittleEndian.Uint32(b.data[b.size-restartSize:])
}

// NumRestarts returns the number of restart points, or 0 for an unusable
// block
func (b *Block) NumRestarts() uint32 {
	if b.size < 2*restartSize {
		return 0
	}
	return b.numRestarts()
}

// Size returns the usable size of the block, 0 if the contents are bad
func (b *Block) Size() int {
	return b.size
}

// ApproximateMemoryUsage returns the bytes held by the block
func (b *Block) ApproximateMemoryUsage() int {
	return len(b.data)
}

// Err reports corruption detected while wrapping the contents
func (b *Block) Err() error {
	if b.size < 2*restartSize {
		return errBadBlock
	}
	return nil
}

// NewIterator returns a cursor over the block ordered by cmp. A block too
// small to hold its restart footer yields an iterator carrying a corruption
// error; a block with no restart points yields an empty iterator.
func (b *Block) NewIterator(cmp keys.Compare) iterator.Iterator {
	if b.size < 2*restartSize {
		return iterator.NewErrorIterator(errBadBlock)
	}
	n := b.numRestarts()
	if n == 0 {
		return iterator.NewEmptyIterator()
	}
	return newIter(cmp, b.data, b.restartOffset, n)
}

// NewIter is NewIterator for callers that need the concrete block cursor.
// It returns nil with the error NewIterator would carry, and nil with no
// error for an empty block.
func (b *Block) NewIter(cmp keys.Compare) (*Iter, error) {
	if b.size < 2*restartSize {
		return nil, errBadBlock
	}
	n := b.numRestarts()
	if n == 0 {
		return nil, nil
	}
	return newIter(cmp, b.data, b.restartOffset, n), nil
}
