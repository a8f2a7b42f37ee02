package keys

import (
	"bytes"
	"sort"
	"testing"

	"github.com/syndtr/goleveldb/leveldb/comparer"
)

func TestInternalKeyEncodeParse(t *testing.T) {
	ikey := MakeInternalKey([]byte("user"), 42, KindMerge)
	if len(ikey) != len("user")+TrailerSize {
		t.Fatalf("unexpected encoded length %d", len(ikey))
	}

	parsed, ok := ParseInternalKey(ikey)
	if !ok {
		t.Fatalf("failed to parse internal key")
	}
	if string(parsed.UserKey) != "user" {
		t.Errorf("expected user key 'user', got %q", parsed.UserKey)
	}
	if parsed.Seq != 42 {
		t.Errorf("expected sequence 42, got %d", parsed.Seq)
	}
	if parsed.Kind != KindMerge {
		t.Errorf("expected kind MERGE, got %s", parsed.Kind)
	}
	if !bytes.Equal(parsed.Encode(), ikey) {
		t.Errorf("re-encoding did not round trip")
	}
	if string(ExtractUserKey(ikey)) != "user" {
		t.Errorf("ExtractUserKey returned %q", ExtractUserKey(ikey))
	}
}

func TestParseInternalKeyRejectsMalformed(t *testing.T) {
	if _, ok := ParseInternalKey([]byte("short")); ok {
		t.Errorf("expected short key to be rejected")
	}

	bad := MakeInternalKey([]byte("k"), 1, Kind(99))
	if _, ok := ParseInternalKey(bad); ok {
		t.Errorf("expected unknown kind to be rejected")
	}
}

func TestTrailerRoundTrip(t *testing.T) {
	seq, kind := UnpackTrailer(PackTrailer(MaxSeqNum, KindValue))
	if seq != MaxSeqNum || kind != KindValue {
		t.Errorf("trailer round trip failed: %d %s", seq, kind)
	}
}

func TestInternalKeyOrdering(t *testing.T) {
	cmp := DefaultInternalKeyComparator

	input := [][]byte{
		MakeInternalKey([]byte("b"), 1, KindValue),
		MakeInternalKey([]byte("a"), 5, KindValue),
		MakeInternalKey([]byte("a"), 7, KindDeletion),
		MakeInternalKey([]byte("c"), 3, KindMerge),
		MakeInternalKey([]byte("a"), 3, KindValue),
		MakeInternalKey([]byte("b"), 9, KindMerge),
	}
	sort.Slice(input, func(i, j int) bool { return cmp.Compare(input[i], input[j]) < 0 })

	expected := []string{"a#7,DEL", "a#5,SET", "a#3,SET", "b#9,MERGE", "b#1,SET", "c#3,MERGE"}
	for i, ikey := range input {
		p, ok := ParseInternalKey(ikey)
		if !ok {
			t.Fatalf("failed to parse key %d", i)
		}
		got := string(p.UserKey) + "#" + p.Seq.String() + "," + p.Kind.String()
		if got != expected[i] {
			t.Errorf("position %d: expected %s, got %s", i, expected[i], got)
		}
	}
}

func TestKindTieBreak(t *testing.T) {
	cmp := DefaultInternalKeyComparator
	a := MakeInternalKey([]byte("k"), 5, KindValue)
	b := MakeInternalKey([]byte("k"), 5, KindDeletion)
	if cmp.Compare(a, b) >= 0 {
		t.Errorf("expected higher kind to sort first at equal sequence")
	}
	if cmp.Compare(a, a) != 0 {
		t.Errorf("expected identical keys to compare equal")
	}
}

func TestLookupKeySortsBeforeVisibleEntries(t *testing.T) {
	cmp := DefaultInternalKeyComparator
	lk := NewLookupKey([]byte("k"), 10)

	if string(lk.UserKey()) != "k" {
		t.Errorf("expected user key 'k', got %q", lk.UserKey())
	}
	if lk.Sequence() != 10 {
		t.Errorf("expected sequence 10, got %d", lk.Sequence())
	}

	visible := MakeInternalKey([]byte("k"), 10, KindValue)
	if cmp.Compare(lk.InternalKey(), visible) > 0 {
		t.Errorf("lookup key must sort at or before an entry with the same sequence")
	}
	newer := MakeInternalKey([]byte("k"), 11, KindDeletion)
	if cmp.Compare(lk.InternalKey(), newer) <= 0 {
		t.Errorf("lookup key must sort after entries newer than the snapshot")
	}
}

func TestSeparatorAndSuccessor(t *testing.T) {
	cmp := DefaultInternalKeyComparator
	a := MakeInternalKey([]byte("abcdefg"), 5, KindValue)
	b := MakeInternalKey([]byte("abzzz"), 7, KindValue)

	sep := cmp.Separator(nil, a, b)
	if sep == nil {
		t.Fatalf("expected a shorter separator")
	}
	if cmp.Compare(a, sep) > 0 || cmp.Compare(sep, b) >= 0 {
		t.Errorf("separator %q is not between inputs", sep)
	}

	succ := cmp.Successor(nil, a)
	if succ == nil {
		t.Fatalf("expected a shorter successor")
	}
	if cmp.Compare(a, succ) > 0 {
		t.Errorf("successor %q sorts before input", succ)
	}
}

type reverseComparer struct{ comparer.Comparer }

func (reverseComparer) Compare(a, b []byte) int { return -bytes.Compare(a, b) }
func (reverseComparer) Name() string            { return "reverse" }

func TestCustomUserComparator(t *testing.T) {
	cmp := NewInternalKeyComparator(reverseComparer{comparer.DefaultComparer})
	a := MakeInternalKey([]byte("a"), 1, KindValue)
	b := MakeInternalKey([]byte("b"), 1, KindValue)
	if cmp.Compare(a, b) <= 0 {
		t.Errorf("expected reversed user ordering")
	}
	if cmp.Name() != "lsmcore.InternalKeyComparator:reverse" {
		t.Errorf("unexpected comparator name %s", cmp.Name())
	}
}

func TestVarint32(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 255, 16383, 16384, 1<<21 - 1, 1 << 28, 1<<32 - 1}
	for _, v := range values {
		buf := AppendVarint32(nil, v)
		if len(buf) != Varint32Len(v) {
			t.Errorf("length mismatch for %d: %d vs %d", v, len(buf), Varint32Len(v))
		}
		got, n := DecodeVarint32(buf)
		if n != len(buf) || got != v {
			t.Errorf("round trip failed for %d: got %d (n=%d)", v, got, n)
		}
		if len(buf) > 1 {
			if _, n := DecodeVarint32(buf[:len(buf)-1]); n > 0 {
				t.Errorf("expected truncated varint for %d to fail", v)
			}
		}
	}

	overflow := []byte{0xff, 0xff, 0xff, 0xff, 0x7f}
	if _, n := DecodeVarint32(overflow); n > 0 {
		t.Errorf("expected overflowing varint to fail")
	}
}

func TestGetLengthPrefixed(t *testing.T) {
	buf := AppendVarint32(nil, 3)
	buf = append(buf, "abcrest"...)
	val, rest, ok := GetLengthPrefixed(buf)
	if !ok || string(val) != "abc" || string(rest) != "rest" {
		t.Errorf("unexpected decode: %q %q %v", val, rest, ok)
	}

	if _, _, ok := GetLengthPrefixed([]byte{10, 'a'}); ok {
		t.Errorf("expected truncated payload to fail")
	}
}
