package iterator

import (
	"bytes"
	"errors"
	"testing"
)

func TestEmptyIterator(t *testing.T) {
	it := NewEmptyIterator()
	it.SeekToFirst()
	if it.Valid() || it.Next() || it.Prev() || it.Seek([]byte("a")) {
		t.Errorf("expected empty iterator to stay invalid")
	}
	if it.Status() != nil {
		t.Errorf("expected nil status, got %v", it.Status())
	}
}

func TestErrorIterator(t *testing.T) {
	want := errors.New("bad block contents")
	it := NewErrorIterator(want)
	it.SeekToLast()
	if it.Valid() {
		t.Errorf("expected error iterator to be invalid")
	}
	if !errors.Is(it.Status(), want) {
		t.Errorf("expected status %v, got %v", want, it.Status())
	}
}

func TestSliceIterator(t *testing.T) {
	keys := [][]byte{[]byte("a"), []byte("c"), []byte("e")}
	values := [][]byte{[]byte("1"), []byte("2"), []byte("3")}
	it := NewSliceIterator(bytes.Compare, keys, values)

	if it.Valid() {
		t.Fatalf("expected unpositioned iterator to be invalid")
	}

	if !it.Seek([]byte("b")) || string(it.Key()) != "c" {
		t.Fatalf("expected seek to land on c, got %q", it.Key())
	}
	if !it.Prev() || string(it.Key()) != "a" {
		t.Errorf("expected prev to land on a, got %q", it.Key())
	}
	if it.Prev() {
		t.Errorf("expected prev past the first entry to invalidate")
	}

	it.SeekToLast()
	if string(it.Value()) != "3" {
		t.Errorf("expected last value 3, got %q", it.Value())
	}
	if it.Next() {
		t.Errorf("expected next past the last entry to invalidate")
	}
	if it.Seek([]byte("f")) {
		t.Errorf("expected seek past the end to fail")
	}
}
