// Package merge defines the operator used to fold merge operands into a
// final value, along with a few stock operators.
package merge

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrInvalidOperand is returned when an operand cannot be interpreted
	ErrInvalidOperand = errors.New("invalid merge operand")
)

// Operator folds a chain of merge operands into a value
type Operator interface {
	// Name identifies the operator in persisted data
	Name() string

	// FullMerge combines the existing value (if any) with operands ordered
	// oldest to newest and returns the resulting value.
	FullMerge(key, existing []byte, hasExisting bool, operands [][]byte) ([]byte, error)
}

// StringAppend joins the existing value and every operand with a delimiter
type StringAppend struct {
	Delim []byte
}

// NewStringAppend creates a string append operator
func NewStringAppend(delim string) *StringAppend {
	return &StringAppend{Delim: []byte(delim)}
}

// Name returns the operator name
func (s *StringAppend) Name() string {
	return "lsmcore.StringAppend"
}

// FullMerge appends the operands to the existing value
func (s *StringAppend) FullMerge(_, existing []byte, hasExisting bool, operands [][]byte) ([]byte, error) {
	parts := make([][]byte, 0, len(operands)+1)
	if hasExisting {
		parts = append(parts, existing)
	}
	parts = append(parts, operands...)
	return bytes.Join(parts, s.Delim), nil
}

// Uint64Add treats values and operands as little-endian uint64 counters
type Uint64Add struct{}

// Name returns the operator name
func (Uint64Add) Name() string {
	return "lsmcore.Uint64Add"
}

// FullMerge sums the existing counter and every operand. Overflow wraps.
func (Uint64Add) FullMerge(key, existing []byte, hasExisting bool, operands [][]byte) ([]byte, error) {
	var sum uint64
	if hasExisting {
		v, err := DecodeUint64(existing)
		if err != nil {
			return nil, fmt.Errorf("existing value for %q: %w", key, err)
		}
		sum = v
	}
	for i, op := range operands {
		v, err := DecodeUint64(op)
		if err != nil {
			return nil, fmt.Errorf("operand %d for %q: %w", i, key, err)
		}
		sum += v
	}
	return EncodeUint64(sum), nil
}

// EncodeUint64 encodes a counter value for Uint64Add
func EncodeUint64(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

// DecodeUint64 decodes a counter value written by EncodeUint64
func DecodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: expected 8 bytes, got %d", ErrInvalidOperand, len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}
