package merge

import (
	"errors"
	"testing"
)

func TestStringAppend(t *testing.T) {
	op := NewStringAppend(",")

	tests := []struct {
		name        string
		existing    string
		hasExisting bool
		operands    []string
		expected    string
	}{
		{"with existing", "a", true, []string{"b", "c"}, "a,b,c"},
		{"without existing", "", false, []string{"x", "y"}, "x,y"},
		{"empty existing value", "", true, []string{"x"}, ",x"},
		{"no operands", "a", true, nil, "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := make([][]byte, len(tt.operands))
			for i, o := range tt.operands {
				ops[i] = []byte(o)
			}
			got, err := op.FullMerge([]byte("k"), []byte(tt.existing), tt.hasExisting, ops)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestUint64Add(t *testing.T) {
	var op Uint64Add

	got, err := op.FullMerge([]byte("k"), EncodeUint64(10), true, [][]byte{EncodeUint64(5), EncodeUint64(7)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err := DecodeUint64(got)
	if err != nil || v != 22 {
		t.Errorf("expected 22, got %d (%v)", v, err)
	}

	got, err = op.FullMerge([]byte("k"), nil, false, [][]byte{EncodeUint64(3)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := DecodeUint64(got); v != 3 {
		t.Errorf("expected 3, got %d", v)
	}

	_, err = op.FullMerge([]byte("k"), nil, false, [][]byte{[]byte("bad")})
	if !errors.Is(err, ErrInvalidOperand) {
		t.Errorf("expected ErrInvalidOperand, got %v", err)
	}
}
