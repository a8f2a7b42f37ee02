package filtered

import (
	"testing"

	"github.com/KevoDB/lsmcore/pkg/common/iterator"
	"github.com/KevoDB/lsmcore/pkg/common/keys"
)

type entry struct {
	key string
	seq keys.SeqNum
}

func newSource(entries ...entry) iterator.Iterator {
	ks := make([][]byte, len(entries))
	vs := make([][]byte, len(entries))
	for i, e := range entries {
		ks[i] = keys.MakeInternalKey([]byte(e.key), e.seq, keys.KindValue)
		vs[i] = []byte(e.key + "-" + e.seq.String())
	}
	return iterator.NewSliceIterator(keys.DefaultInternalKeyComparator.Compare, ks, vs)
}

func forward(it *FilteredIterator) []string {
	var out []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		out = append(out, string(it.Value()))
	}
	return out
}

func backward(it *FilteredIterator) []string {
	var out []string
	for it.SeekToLast(); it.Valid(); it.Prev() {
		out = append(out, string(it.Value()))
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSnapshotIterator(t *testing.T) {
	src := newSource(
		entry{"a", 9}, entry{"a", 4},
		entry{"b", 12},
		entry{"c", 7}, entry{"c", 2},
		entry{"d", 15},
	)
	it := NewSnapshotIterator(src, 8)

	if got, want := forward(it), []string{"a-4", "c-7", "c-2"}; !equal(got, want) {
		t.Errorf("forward: expected %v, got %v", want, got)
	}
	if got, want := backward(it), []string{"c-2", "c-7", "a-4"}; !equal(got, want) {
		t.Errorf("backward: expected %v, got %v", want, got)
	}
	if err := it.Status(); err != nil {
		t.Errorf("unexpected status: %v", err)
	}
}

func TestPrefixIterator(t *testing.T) {
	src := newSource(
		entry{"apple", 1}, entry{"apricot", 2},
		entry{"banana", 3},
		entry{"user:1", 4}, entry{"user:2", 5},
		entry{"zebra", 6},
	)
	it := NewPrefixIterator(src, []byte("user:"))

	if got, want := forward(it), []string{"user:1-4", "user:2-5"}; !equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	target := keys.MakeInternalKey([]byte("b"), keys.MaxSeqNum, keys.KindForSeek)
	if !it.Seek(target) || string(it.Value()) != "user:1-4" {
		t.Errorf("expected seek to skip to first matching key, got %q", it.Value())
	}

	none := NewPrefixIterator(newSource(entry{"a", 1}), []byte("x"))
	none.SeekToFirst()
	if none.Valid() || none.Key() != nil {
		t.Errorf("expected no visible entries")
	}
	none.SeekToLast()
	if none.Valid() {
		t.Errorf("expected no visible entries from the end")
	}
}
