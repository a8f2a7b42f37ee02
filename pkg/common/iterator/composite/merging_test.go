package composite

import (
	"testing"

	"github.com/KevoDB/lsmcore/pkg/common/iterator"
	"github.com/KevoDB/lsmcore/pkg/common/keys"
)

type testEntry struct {
	key   string
	seq   keys.SeqNum
	value string
}

func newSource(entries ...testEntry) *iterator.SliceIterator {
	ks := make([][]byte, len(entries))
	vs := make([][]byte, len(entries))
	for i, e := range entries {
		ks[i] = keys.MakeInternalKey([]byte(e.key), e.seq, keys.KindValue)
		vs[i] = []byte(e.value)
	}
	return iterator.NewSliceIterator(keys.DefaultInternalKeyComparator.Compare, ks, vs)
}

func render(it iterator.Iterator) string {
	p, ok := keys.ParseInternalKey(it.Key())
	if !ok {
		return "<bad>"
	}
	return string(p.UserKey) + "@" + p.Seq.String()
}

func newTestMerger() *MergingIterator {
	// Newer memtable first, older second, a "disk" source last
	newer := newSource(testEntry{"a", 9, "a9"}, testEntry{"d", 8, "d8"})
	older := newSource(testEntry{"a", 5, "a5"}, testEntry{"b", 4, "b4"}, testEntry{"e", 6, "e6"})
	disk := newSource(testEntry{"c", 2, "c2"}, testEntry{"d", 1, "d1"})
	return NewMergingIterator(keys.DefaultInternalKeyComparator, newer, older, disk)
}

func TestMergingIteratorForward(t *testing.T) {
	m := newTestMerger()

	expected := []string{"a@9", "a@5", "b@4", "c@2", "d@8", "d@1", "e@6"}
	var got []string
	for m.SeekToFirst(); m.Valid(); m.Next() {
		got = append(got, render(m))
	}

	if len(got) != len(expected) {
		t.Fatalf("expected %d entries, got %d: %v", len(expected), len(got), got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("position %d: expected %s, got %s", i, expected[i], got[i])
		}
	}

	if m.NumSources() != 3 {
		t.Errorf("expected 3 sources, got %d", m.NumSources())
	}
	if m.Status() != nil {
		t.Errorf("unexpected status: %v", m.Status())
	}
}

func TestMergingIteratorReverse(t *testing.T) {
	m := newTestMerger()

	expected := []string{"e@6", "d@1", "d@8", "c@2", "b@4", "a@5", "a@9"}
	i := 0
	for m.SeekToLast(); m.Valid(); m.Prev() {
		if i >= len(expected) {
			t.Fatalf("too many entries")
		}
		if got := render(m); got != expected[i] {
			t.Errorf("position %d: expected %s, got %s", i, expected[i], got)
		}
		i++
	}
	if i != len(expected) {
		t.Errorf("expected %d entries, got %d", len(expected), i)
	}
}

func TestMergingIteratorDirectionChange(t *testing.T) {
	m := newTestMerger()

	if !m.Seek(keys.MakeInternalKey([]byte("c"), keys.MaxSeqNum, keys.KindForSeek)) {
		t.Fatalf("expected seek to succeed")
	}
	if got := render(m); got != "c@2" {
		t.Fatalf("expected c@2 after seek, got %s", got)
	}

	m.Prev()
	if got := render(m); got != "b@4" {
		t.Errorf("expected b@4 after prev, got %s", got)
	}

	m.Next()
	if got := render(m); got != "c@2" {
		t.Errorf("expected c@2 after next, got %s", got)
	}

	m.Next()
	if got := render(m); got != "d@8" {
		t.Errorf("expected d@8 after next, got %s", got)
	}
	if string(m.Value()) != "d8" {
		t.Errorf("expected value d8, got %s", m.Value())
	}
}

func TestMergingIteratorEmptySources(t *testing.T) {
	m := NewMergingIterator(keys.DefaultInternalKeyComparator, iterator.NewEmptyIterator(), newSource())
	m.SeekToFirst()
	if m.Valid() {
		t.Errorf("expected merge of empty sources to be invalid")
	}
	if m.Next() || m.Prev() {
		t.Errorf("expected movement on an invalid iterator to fail")
	}
}
