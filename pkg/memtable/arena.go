package memtable

import (
	"sync"
	"sync/atomic"
)

const (
	// DefaultArenaBlockSize is used when a memtable is built without an
	// explicit block size
	DefaultArenaBlockSize = 64 * 1024

	minArenaBlockSize = 4096
)

// Arena hands out byte slices carved from larger blocks. Memory is only
// released when the whole arena becomes unreachable. Allocate is safe for
// concurrent use.
type Arena struct {
	mu        sync.Mutex
	blockSize int
	cur       []byte // unused tail of the current block

	allocated atomic.Int64 // bytes reserved in blocks
	unused    atomic.Int64 // bytes still free in the current block
	blocks    atomic.Int64
	done      atomic.Bool
}

// NewArena creates an arena that allocates blockSize bytes at a time
func NewArena(blockSize int) *Arena {
	if blockSize < minArenaBlockSize {
		blockSize = minArenaBlockSize
	}
	return &Arena{blockSize: blockSize}
}

// BlockSize returns the size of regular arena blocks
func (a *Arena) BlockSize() int {
	return a.blockSize
}

// Allocate returns a zeroed slice of length n. Requests larger than a
// quarter block get their own block so they do not waste the current one.
// Allocating after DoneAllocating panics.
func (a *Arena) Allocate(n int) []byte {
	if a.done.Load() {
		panic("memtable: allocation from an arena marked done")
	}
	if n <= 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if n <= len(a.cur) {
		b := a.cur[:n:n]
		a.cur = a.cur[n:]
		a.unused.Store(int64(len(a.cur)))
		return b
	}

	if n > a.blockSize/4 {
		a.allocated.Add(int64(n))
		a.blocks.Add(1)
		return make([]byte, n)
	}

	block := make([]byte, a.blockSize)
	a.allocated.Add(int64(a.blockSize))
	a.blocks.Add(1)
	a.cur = block[n:]
	a.unused.Store(int64(len(a.cur)))
	return block[:n:n]
}

// MemoryAllocatedBytes returns the total size of all blocks handed out
func (a *Arena) MemoryAllocatedBytes() int64 {
	return a.allocated.Load()
}

// AllocatedAndUnused returns the free bytes left in the current block
func (a *Arena) AllocatedAndUnused() int64 {
	return a.unused.Load()
}

// ApproximateMemoryUsage returns the bytes actually handed to callers
func (a *Arena) ApproximateMemoryUsage() int64 {
	return a.allocated.Load() - a.unused.Load()
}

// NumBlocks returns the number of blocks allocated so far
func (a *Arena) NumBlocks() int64 {
	return a.blocks.Load()
}

// DoneAllocating marks the arena as frozen
func (a *Arena) DoneAllocating() {
	a.done.Store(true)
}

// IsDone reports whether DoneAllocating has been called
func (a *Arena) IsDone() bool {
	return a.done.Load()
}
