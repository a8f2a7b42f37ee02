package bounded

import (
	"testing"

	"github.com/KevoDB/lsmcore/pkg/common/iterator"
	"github.com/KevoDB/lsmcore/pkg/common/keys"
)

func newSource(userKeys ...string) iterator.Iterator {
	ks := make([][]byte, len(userKeys))
	vs := make([][]byte, len(userKeys))
	for i, k := range userKeys {
		ks[i] = keys.MakeInternalKey([]byte(k), keys.SeqNum(100-i), keys.KindValue)
		vs[i] = []byte("v-" + k)
	}
	return iterator.NewSliceIterator(keys.DefaultInternalKeyComparator.Compare, ks, vs)
}

func collect(it *BoundedIterator) []string {
	var out []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		out = append(out, string(keys.ExtractUserKey(it.Key())))
	}
	return out
}

func TestBoundedIterator(t *testing.T) {
	cmp := keys.DefaultInternalKeyComparator

	tests := []struct {
		name       string
		start, end []byte
		expected   []string
	}{
		{"unbounded", nil, nil, []string{"a", "b", "c", "d", "e"}},
		{"start only", []byte("c"), nil, []string{"c", "d", "e"}},
		{"end only", nil, []byte("c"), []string{"a", "b"}},
		{"both", []byte("b"), []byte("d"), []string{"b", "c"}},
		{"between keys", []byte("bb"), []byte("dd"), []string{"c", "d"}},
		{"empty range", []byte("x"), []byte("z"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := NewBoundedIterator(newSource("a", "b", "c", "d", "e"), cmp, tt.start, tt.end)
			got := collect(it)
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("expected %v, got %v", tt.expected, got)
				}
			}
		})
	}
}

func TestBoundedIteratorSeekToLast(t *testing.T) {
	cmp := keys.DefaultInternalKeyComparator
	it := NewBoundedIterator(newSource("a", "b", "c", "d", "e"), cmp, []byte("b"), []byte("d"))

	it.SeekToLast()
	if !it.Valid() || string(keys.ExtractUserKey(it.Key())) != "c" {
		t.Fatalf("expected last key c, got %q", it.Key())
	}
	if !it.Prev() || string(keys.ExtractUserKey(it.Key())) != "b" {
		t.Errorf("expected prev to land on b")
	}
	if it.Prev() {
		t.Errorf("expected prev before the start bound to invalidate")
	}

	it.SetBounds(nil, []byte("zz"))
	it.SeekToLast()
	if string(keys.ExtractUserKey(it.Key())) != "e" {
		t.Errorf("expected last key e with an end past the data, got %q", it.Key())
	}
}

func TestBoundedIteratorSeekClampsToStart(t *testing.T) {
	cmp := keys.DefaultInternalKeyComparator
	it := NewBoundedIterator(newSource("a", "b", "c"), cmp, []byte("b"), nil)

	if !it.Seek(keys.MakeInternalKey([]byte("a"), keys.MaxSeqNum, keys.KindForSeek)) {
		t.Fatalf("expected seek below start to clamp")
	}
	if string(keys.ExtractUserKey(it.Key())) != "b" {
		t.Errorf("expected b, got %q", it.Key())
	}
	if string(it.Value()) != "v-b" {
		t.Errorf("expected v-b, got %q", it.Value())
	}
}
