package memtable

import (
	"fmt"
	"strings"

	"github.com/KevoDB/lsmcore/pkg/common/keys"
)

// FileMetadata describes a sorted file produced by flushing a memtable
type FileMetadata struct {
	Number      uint64
	Size        uint64
	Smallest    []byte // internal key
	Largest     []byte // internal key
	SmallestSeq keys.SeqNum
	LargestSeq  keys.SeqNum
}

// VersionEdit accumulates the file-level changes that accompany a memtable
// on its way to the flush path. It is not safe for concurrent use.
type VersionEdit struct {
	hasLogNumber      bool
	logNumber         uint64
	hasPrevLogNumber  bool
	prevLogNumber     uint64
	hasNextFileNumber bool
	nextFileNumber    uint64
	hasLastSequence   bool
	lastSequence      keys.SeqNum

	NewFiles     []FileMetadata
	DeletedFiles []uint64
}

// SetLogNumber records the oldest log still needed after this edit
func (e *VersionEdit) SetLogNumber(n uint64) {
	e.hasLogNumber = true
	e.logNumber = n
}

// LogNumber returns the log number and whether it was set
func (e *VersionEdit) LogNumber() (uint64, bool) {
	return e.logNumber, e.hasLogNumber
}

// SetPrevLogNumber records the previous log number
func (e *VersionEdit) SetPrevLogNumber(n uint64) {
	e.hasPrevLogNumber = true
	e.prevLogNumber = n
}

// PrevLogNumber returns the previous log number and whether it was set
func (e *VersionEdit) PrevLogNumber() (uint64, bool) {
	return e.prevLogNumber, e.hasPrevLogNumber
}

// SetNextFileNumber records the next file number to allocate
func (e *VersionEdit) SetNextFileNumber(n uint64) {
	e.hasNextFileNumber = true
	e.nextFileNumber = n
}

// NextFileNumber returns the next file number and whether it was set
func (e *VersionEdit) NextFileNumber() (uint64, bool) {
	return e.nextFileNumber, e.hasNextFileNumber
}

// SetLastSequence records the largest sequence covered by this edit
func (e *VersionEdit) SetLastSequence(seq keys.SeqNum) {
	e.hasLastSequence = true
	e.lastSequence = seq
}

// LastSequence returns the last sequence and whether it was set
func (e *VersionEdit) LastSequence() (keys.SeqNum, bool) {
	return e.lastSequence, e.hasLastSequence
}

// AddFile records a newly written file
func (e *VersionEdit) AddFile(f FileMetadata) {
	e.NewFiles = append(e.NewFiles, f)
}

// DeleteFile records a file that is no longer live
func (e *VersionEdit) DeleteFile(number uint64) {
	e.DeletedFiles = append(e.DeletedFiles, number)
}

// Clear resets the edit
func (e *VersionEdit) Clear() {
	*e = VersionEdit{}
}

// String renders the edit for debugging
func (e *VersionEdit) String() string {
	var b strings.Builder
	b.WriteString("VersionEdit{")
	if e.hasLogNumber {
		fmt.Fprintf(&b, " log=%d", e.logNumber)
	}
	if e.hasPrevLogNumber {
		fmt.Fprintf(&b, " prevlog=%d", e.prevLogNumber)
	}
	if e.hasNextFileNumber {
		fmt.Fprintf(&b, " nextfile=%d", e.nextFileNumber)
	}
	if e.hasLastSequence {
		fmt.Fprintf(&b, " lastseq=%s", e.lastSequence)
	}
	for _, f := range e.NewFiles {
		fmt.Fprintf(&b, " add=%d:%d[%s..%s]", f.Number, f.Size, f.SmallestSeq, f.LargestSeq)
	}
	for _, n := range e.DeletedFiles {
		fmt.Fprintf(&b, " del=%d", n)
	}
	b.WriteString(" }")
	return b.String()
}
