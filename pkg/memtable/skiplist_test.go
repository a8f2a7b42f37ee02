package memtable

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
)

func TestSkipListBasicOperations(t *testing.T) {
	sl := NewSkipList(bytes.Compare)

	for _, k := range []string{"key2", "key1", "key3"} {
		if !sl.Insert([]byte(k)) {
			t.Fatalf("expected insert of %s to succeed", k)
		}
	}

	if !sl.Contains([]byte("key2")) {
		t.Errorf("expected to find key2")
	}
	if sl.Contains([]byte("key4")) {
		t.Errorf("did not expect to find key4")
	}
	if sl.Len() != 3 {
		t.Errorf("expected 3 keys, got %d", sl.Len())
	}
	if sl.NodeMemory() != 3*nodeOverhead {
		t.Errorf("expected node memory %d, got %d", 3*nodeOverhead, sl.NodeMemory())
	}
}

func TestSkipListRejectsDuplicates(t *testing.T) {
	sl := NewSkipList(bytes.Compare)

	if !sl.Insert([]byte("dup")) {
		t.Fatalf("first insert should succeed")
	}
	if sl.Insert([]byte("dup")) {
		t.Errorf("second insert of an equal key should fail")
	}
	if sl.InsertConcurrently([]byte("dup")) {
		t.Errorf("concurrent insert of an equal key should fail")
	}
	if sl.Len() != 1 {
		t.Errorf("expected a single key, got %d", sl.Len())
	}
}

func TestSkipListIterator(t *testing.T) {
	sl := NewSkipList(bytes.Compare)

	input := []string{"elderberry", "banana", "date", "apple", "cherry"}
	for _, k := range input {
		sl.Insert([]byte(k))
	}
	expected := []string{"apple", "banana", "cherry", "date", "elderberry"}

	it := sl.NewIterator()
	if it.Valid() {
		t.Errorf("a new iterator should not be positioned")
	}

	i := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if string(it.Key()) != expected[i] {
			t.Errorf("position %d: expected %s, got %s", i, expected[i], it.Key())
		}
		i++
	}
	if i != len(expected) {
		t.Errorf("expected %d keys, iterated %d", len(expected), i)
	}

	i = len(expected) - 1
	for it.SeekToLast(); it.Valid(); it.Prev() {
		if string(it.Key()) != expected[i] {
			t.Errorf("reverse position %d: expected %s, got %s", i, expected[i], it.Key())
		}
		i--
	}
	if i != -1 {
		t.Errorf("reverse iteration stopped early at %d", i)
	}
}

func TestSkipListSeek(t *testing.T) {
	sl := NewSkipList(bytes.Compare)
	for _, k := range []string{"b", "d", "f"} {
		sl.Insert([]byte(k))
	}

	tests := []struct {
		target  string
		seek    string
		seekPrv string
	}{
		{"a", "b", ""},
		{"b", "b", "b"},
		{"c", "d", "b"},
		{"f", "f", "f"},
		{"g", "", "f"},
	}

	it := sl.NewIterator()
	for _, tc := range tests {
		it.Seek([]byte(tc.target))
		if got := string(it.Key()); got != tc.seek {
			t.Errorf("Seek(%s): expected %q, got %q", tc.target, tc.seek, got)
		}
		it.SeekForPrev([]byte(tc.target))
		if got := string(it.Key()); got != tc.seekPrv {
			t.Errorf("SeekForPrev(%s): expected %q, got %q", tc.target, tc.seekPrv, got)
		}
	}
}

func TestSkipListEmpty(t *testing.T) {
	sl := NewSkipList(bytes.Compare)
	it := sl.NewIterator()

	it.SeekToFirst()
	if it.Valid() {
		t.Errorf("expected invalid iterator on empty list")
	}
	it.SeekToLast()
	if it.Valid() {
		t.Errorf("expected invalid iterator on empty list")
	}
	it.Seek([]byte("x"))
	if it.Valid() || it.Key() != nil {
		t.Errorf("expected invalid iterator after seek on empty list")
	}
}

func TestSkipListReadOnly(t *testing.T) {
	sl := NewSkipList(bytes.Compare)
	sl.Insert([]byte("a"))
	sl.MarkReadOnly()

	if !sl.IsReadOnly() {
		t.Fatalf("expected list to be read-only")
	}
	defer func() {
		if recover() == nil {
			t.Errorf("expected insert into a read-only list to panic")
		}
	}()
	sl.Insert([]byte("b"))
}

func TestSkipListConcurrentInsert(t *testing.T) {
	sl := NewSkipList(bytes.Compare)

	const writers = 8
	const perWriter = 500

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if !sl.InsertConcurrently([]byte(fmt.Sprintf("key-%06d", i*writers+w))) {
					t.Errorf("unexpected duplicate for writer %d item %d", w, i)
				}
			}
		}(w)
	}

	// Readers run alongside writers and must always see sorted keys
	stop := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			var prev []byte
			it := sl.NewIterator()
			for it.SeekToFirst(); it.Valid(); it.Next() {
				if prev != nil && bytes.Compare(prev, it.Key()) >= 0 {
					t.Errorf("keys out of order: %s then %s", prev, it.Key())
					return
				}
				prev = it.Key()
			}
		}
	}()

	wg.Wait()
	close(stop)
	readers.Wait()

	if sl.Len() != writers*perWriter {
		t.Fatalf("expected %d keys, got %d", writers*perWriter, sl.Len())
	}

	n := 0
	it := sl.NewIterator()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if want := fmt.Sprintf("key-%06d", n); string(it.Key()) != want {
			t.Fatalf("position %d: expected %s, got %s", n, want, it.Key())
		}
		n++
	}
}

func TestArenaAllocate(t *testing.T) {
	a := NewArena(1024)
	if a.BlockSize() != minArenaBlockSize {
		t.Fatalf("expected block size to be raised to %d, got %d", minArenaBlockSize, a.BlockSize())
	}

	b := a.Allocate(100)
	if len(b) != 100 || cap(b) != 100 {
		t.Fatalf("expected a 100 byte slice with matching cap, got len %d cap %d", len(b), cap(b))
	}
	if a.NumBlocks() != 1 || a.MemoryAllocatedBytes() != minArenaBlockSize {
		t.Errorf("expected one block of %d bytes, got %d blocks / %d bytes",
			minArenaBlockSize, a.NumBlocks(), a.MemoryAllocatedBytes())
	}
	if a.AllocatedAndUnused() != minArenaBlockSize-100 {
		t.Errorf("expected %d unused bytes, got %d", minArenaBlockSize-100, a.AllocatedAndUnused())
	}
	if a.ApproximateMemoryUsage() != 100 {
		t.Errorf("expected usage 100, got %d", a.ApproximateMemoryUsage())
	}

	c := a.Allocate(50)
	c[0] = 0xff
	if b[99] != 0 {
		t.Errorf("allocations must not overlap")
	}

	// Large requests get a dedicated block and leave the current one alone
	unused := a.AllocatedAndUnused()
	big := a.Allocate(minArenaBlockSize / 2)
	if len(big) != minArenaBlockSize/2 {
		t.Errorf("unexpected large allocation length %d", len(big))
	}
	if a.AllocatedAndUnused() != unused {
		t.Errorf("large allocation should not consume the current block")
	}
	if a.NumBlocks() != 2 {
		t.Errorf("expected 2 blocks, got %d", a.NumBlocks())
	}
}

func TestArenaDoneAllocating(t *testing.T) {
	a := NewArena(DefaultArenaBlockSize)
	a.Allocate(10)
	a.DoneAllocating()
	if !a.IsDone() {
		t.Fatalf("expected arena to be done")
	}
	defer func() {
		if recover() == nil {
			t.Errorf("expected allocation after DoneAllocating to panic")
		}
	}()
	a.Allocate(10)
}
