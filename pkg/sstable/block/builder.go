package block

import (
	"encoding/binary"
	"io"

	"github.com/KevoDB/lsmcore/pkg/common/keys"
	"github.com/cockroachdb/errors"
)

// DefaultRestartInterval is the number of entries between restart points
const DefaultRestartInterval = 16

var (
	// ErrOutOfOrder is returned when keys are not added in strictly
	// increasing order
	ErrOutOfOrder = errors.New("keys must be added in strictly increasing order")
	// ErrEmptyBlock is returned when finishing a builder with no entries
	ErrEmptyBlock = errors.New("cannot finish empty block")
)

// Builder constructs a sorted, prefix-compressed block
type Builder struct {
	cmp             keys.Compare
	restartInterval int
	buf             []byte
	restarts        []uint32
	counter         int // entries since the last restart point
	entries         int
	lastKey         []byte
	finished        bool
}

// NewBuilder creates a block builder ordered by cmp. A non-positive restart
// interval selects DefaultRestartInterval.
func NewBuilder(cmp keys.Compare, restartInterval int) *Builder {
	if restartInterval <= 0 {
		restartInterval = DefaultRestartInterval
	}
	return &Builder{
		cmp:             cmp,
		restartInterval: restartInterval,
		restarts:        []uint32{0},
	}
}

// Add appends a key-value pair. Keys must be added in strictly increasing
// order.
func (b *Builder) Add(key, value []byte) error {
	if b.finished {
		return errors.New("add after finish")
	}
	if b.entries > 0 && b.cmp.Compare(key, b.lastKey) <= 0 {
		return errors.Wrapf(ErrOutOfOrder, "%q after %q", key, b.lastKey)
	}

	shared := 0
	if b.counter < b.restartInterval {
		// Delta encode against the previous key
		n := len(b.lastKey)
		if len(key) < n {
			n = len(key)
		}
		for shared < n && b.lastKey[shared] == key[shared] {
			shared++
		}
	} else {
		b.restarts = append(b.restarts, uint32(len(b.buf)))
		b.counter = 0
	}

	b.buf = AppendEntry(b.buf, shared, key[shared:], value)
	b.lastKey = append(b.lastKey[:shared], key[shared:]...)
	b.counter++
	b.entries++
	return nil
}

// Finish appends the restart array and returns the block bytes. The result
// aliases the builder's buffer until Reset.
func (b *Builder) Finish() []byte {
	if !b.finished {
		for _, r := range b.restarts {
			b.buf = binary.LittleEndian.AppendUint32(b.buf, r)
		}
		b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(b.restarts)))
		b.finished = true
	}
	return b.buf
}

// FinishTo finishes the block, frames it with a compression trailer and
// writes it to w. It returns the trailer checksum.
func (b *Builder) FinishTo(w io.Writer, c CompressionType) (uint64, error) {
	if b.entries == 0 {
		return 0, ErrEmptyBlock
	}
	physical, err := EncodeContents(b.Finish(), c)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(physical)
	if err != nil {
		return 0, errors.Wrap(err, "failed to write block")
	}
	if n != len(physical) {
		return 0, errors.Newf("wrote incomplete block: %d of %d bytes", n, len(physical))
	}
	return binary.LittleEndian.Uint64(physical[len(physical)-8:]), nil
}

// Reset clears the builder state
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.restarts = append(b.restarts[:0], 0)
	b.counter = 0
	b.entries = 0
	b.lastKey = b.lastKey[:0]
	b.finished = false
}

// EstimatedSize returns the size of the block if it were finished now
func (b *Builder) EstimatedSize() int {
	return len(b.buf) + (len(b.restarts)+1)*restartSize
}

// Entries returns the number of entries in the block
func (b *Builder) Entries() int {
	return b.entries
}

// Empty reports whether nothing has been added since the last Reset
func (b *Builder) Empty() bool {
	return b.entries == 0
}
