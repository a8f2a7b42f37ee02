package memtable

import (
	"fmt"

	"github.com/KevoDB/lsmcore/pkg/common/keys"
	"github.com/KevoDB/lsmcore/pkg/merge"
)

// LookupStatus is the outcome of a point lookup in one or more tables
type LookupStatus int

const (
	// LookupNotPresent means no visible entry was found; older tiers must be
	// consulted
	LookupNotPresent LookupStatus = iota
	// LookupFound means a value was produced
	LookupFound
	// LookupDeleted means the newest visible entry is a tombstone
	LookupDeleted
	// LookupMergeInProgress means merge operands were collected but no base
	// value or tombstone was reached
	LookupMergeInProgress
	// LookupFailed means the lookup could not be completed; see Err
	LookupFailed
)

func (s LookupStatus) String() string {
	switch s {
	case LookupNotPresent:
		return "not_present"
	case LookupFound:
		return "found"
	case LookupDeleted:
		return "deleted"
	case LookupMergeInProgress:
		return "merge_in_progress"
	case LookupFailed:
		return "failed"
	default:
		return fmt.Sprintf("LookupStatus(%d)", int(s))
	}
}

// GetResult is returned by point lookups. Seq is the sequence of the newest
// matching entry, or keys.MaxSeqNum when nothing matched.
type GetResult struct {
	Status LookupStatus
	Value  []byte
	Seq    keys.SeqNum
	Err    error
}

// Done reports whether older tiers need not be consulted
func (r GetResult) Done() bool {
	switch r.Status {
	case LookupFound, LookupDeleted, LookupFailed:
		return true
	}
	return false
}

// MergeContext accumulates merge operands, newest first, while a lookup
// walks from newer to older entries.
type MergeContext struct {
	operands [][]byte
}

func (c *MergeContext) push(op []byte) {
	c.operands = append(c.operands, op)
}

// Len returns the number of collected operands
func (c *MergeContext) Len() int {
	if c == nil {
		return 0
	}
	return len(c.operands)
}

// Operands returns the collected operands oldest first, the order in which
// they are applied
func (c *MergeContext) Operands() [][]byte {
	out := make([][]byte, len(c.operands))
	for i, op := range c.operands {
		out[len(out)-1-i] = op
	}
	return out
}

// Reset drops all collected operands
func (c *MergeContext) Reset() {
	c.operands = c.operands[:0]
}

// FoldOperands applies the operands in mctx on top of existing. Use it with
// hasExisting false when every tier was exhausted without finding a base.
func FoldOperands(op merge.Operator, userKey, existing []byte, hasExisting bool, mctx *MergeContext) ([]byte, error) {
	if op == nil {
		return nil, ErrNoMergeOperator
	}
	v, err := op.FullMerge(userKey, existing, hasExisting, mctx.Operands())
	if err != nil {
		return nil, fmt.Errorf("merge %q with %s: %w", userKey, op.Name(), err)
	}
	return v, nil
}

// RangeValue is the resolved state of one user key in a range query
type RangeValue struct {
	Seq             keys.SeqNum
	Value           []byte
	Deleted         bool
	MergeInProgress bool

	// Pending holds the operands of a key still waiting for a base value
	Pending *MergeContext
}

// Visible reports whether the key resolved to a readable value
func (v RangeValue) Visible() bool {
	return !v.Deleted && !v.MergeInProgress
}
