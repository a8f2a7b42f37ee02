package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/KevoDB/lsmcore/pkg/common/keys"
	"github.com/KevoDB/lsmcore/pkg/common/log"
	"github.com/KevoDB/lsmcore/pkg/config"
	"github.com/KevoDB/lsmcore/pkg/telemetry"
)

func newTestStore(t *testing.T, update func(*config.Config)) *store {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.BlockRestartInterval = 2
	if update != nil {
		cfg.Update(update)
	}
	s, err := newStore(cfg, log.NewNopLogger(), telemetry.NewForTesting())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}

func mustWrite(t *testing.T, s *store, kind keys.Kind, key, value string) {
	t.Helper()
	if err := s.write(context.Background(), kind, []byte(key), []byte(value)); err != nil {
		t.Fatalf("Failed to write %s %q: %v", kind, key, err)
	}
}

func expectValue(t *testing.T, s *store, key, want string) {
	t.Helper()
	got, err := s.get(context.Background(), []byte(key))
	if err != nil {
		t.Fatalf("Failed to get %q: %v", key, err)
	}
	if string(got) != want {
		t.Errorf("expected %q for %q, got %q", want, key, got)
	}
}

func expectMissing(t *testing.T, s *store, key string) {
	t.Helper()
	if _, err := s.get(context.Background(), []byte(key)); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected %q to be missing, got %v", key, err)
	}
}

func switchAndFlush(t *testing.T, s *store) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.switchMemTable(ctx); err != nil {
		t.Fatalf("Failed to switch: %v", err)
	}
	if _, err := s.flush(ctx); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}
}

func TestStoreReadsAcrossTiers(t *testing.T) {
	for _, compression := range []string{config.CompressionNone, config.CompressionSnappy, config.CompressionZstd} {
		t.Run(compression, func(t *testing.T) {
			s := newTestStore(t, func(c *config.Config) { c.BlockCompression = compression })

			mustWrite(t, s, keys.KindValue, "a", "1")
			mustWrite(t, s, keys.KindValue, "b", "2")
			mustWrite(t, s, keys.KindMerge, "c", "x")
			mustWrite(t, s, keys.KindValue, "d", "base")
			expectValue(t, s, "c", "x")

			switchAndFlush(t, s)
			if len(s.blocks) != 1 {
				t.Fatalf("expected one block, got %d", len(s.blocks))
			}
			expectValue(t, s, "a", "1")
			expectValue(t, s, "c", "x")

			// Newer tiers shadow and extend older ones
			mustWrite(t, s, keys.KindDeletion, "a", "")
			mustWrite(t, s, keys.KindMerge, "c", "y")
			mustWrite(t, s, keys.KindMerge, "d", "tail")
			expectMissing(t, s, "a")
			expectValue(t, s, "c", "x,y")
			expectValue(t, s, "d", "base,tail")

			switchAndFlush(t, s)
			expectMissing(t, s, "a")
			expectValue(t, s, "b", "2")
			expectValue(t, s, "c", "x,y")
			expectValue(t, s, "d", "base,tail")
			expectMissing(t, s, "zz")
		})
	}
}

func TestStoreScan(t *testing.T) {
	s := newTestStore(t, nil)
	mustWrite(t, s, keys.KindValue, "apple", "1")
	mustWrite(t, s, keys.KindValue, "banana", "2")
	mustWrite(t, s, keys.KindValue, "cherry", "3")
	switchAndFlush(t, s)
	mustWrite(t, s, keys.KindDeletion, "banana", "")
	mustWrite(t, s, keys.KindValue, "apricot", "4")

	entries, err := s.scan(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Failed to scan: %v", err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, string(e.Key)+"="+string(e.Value))
	}
	if want := "apple=1,apricot=4,cherry=3"; strings.Join(got, ",") != want {
		t.Errorf("expected %s, got %s", want, strings.Join(got, ","))
	}

	entries, err = s.scan(context.Background(), []byte("ap"), makeKeySuccessor([]byte("ap")))
	if err != nil {
		t.Fatalf("Failed to scan: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries with prefix ap, got %d", len(entries))
	}
}

func TestStoreFlushesWhenImmutablesPileUp(t *testing.T) {
	s := newTestStore(t, func(c *config.Config) { c.MaxImmutableTables = 1 })
	ctx := context.Background()

	mustWrite(t, s, keys.KindValue, "k1", "v1")
	if _, err := s.switchMemTable(ctx); err != nil {
		t.Fatalf("Failed to switch: %v", err)
	}
	mustWrite(t, s, keys.KindValue, "k2", "v2")
	if _, err := s.switchMemTable(ctx); err != nil {
		t.Fatalf("Expected the second switch to flush and succeed: %v", err)
	}

	if len(s.blocks) != 1 || s.list.ImmutableCount() != 1 {
		t.Errorf("expected 1 block and 1 immutable memtable, got %d and %d", len(s.blocks), s.list.ImmutableCount())
	}
	expectValue(t, s, "k1", "v1")
	expectValue(t, s, "k2", "v2")

	st := s.stats()
	if st["flush_count"] != uint64(1) || st["switch_count"] != uint64(2) {
		t.Errorf("unexpected lifecycle stats: flush=%v switch=%v", st["flush_count"], st["switch_count"])
	}
	if st["block_open_ops"] != uint64(1) {
		t.Errorf("expected one block open, got %v", st["block_open_ops"])
	}
}

func TestFlushOfEmptyMemTable(t *testing.T) {
	s := newTestStore(t, nil)
	switchAndFlush(t, s)
	if len(s.blocks) != 0 {
		t.Errorf("expected no block for an empty memtable")
	}
}

func TestExecute(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	steps := []struct {
		line string
		want string
	}{
		{"PUT user alice smith", "Value stored"},
		{"GET user", "alice smith"},
		{"MERGE tags red", "Operand merged"},
		{".switch", "retired with 2 entries"},
		{".flush", "Flushed 2 entries"},
		{"MERGE tags blue", "Operand merged"},
		{"GET tags", "red,blue"},
		{"DELETE user", "Key deleted"},
		{"GET user", "Key not found"},
		{"SCAN", "1 entries found"},
		{"SCAN RANGE a b", "0 entries found"},
		{"SCAN RANGE a", "Invalid SCAN syntax"},
		{"PUT onlykey", "PUT requires key and value"},
		{".stats", "block_count: 1"},
		{"FROB", "Unknown command: FROB"},
		{".nope", "Unknown command"},
		{".help", "SCAN RANGE start end"},
	}

	for _, step := range steps {
		var out bytes.Buffer
		if quit := execute(ctx, s, step.line, &out); quit {
			t.Fatalf("%q: unexpected quit", step.line)
		}
		if !strings.Contains(out.String(), step.want) {
			t.Errorf("%q: expected output containing %q, got %q", step.line, step.want, out.String())
		}
	}

	var out bytes.Buffer
	if !execute(ctx, s, ".exit", &out) {
		t.Errorf("expected .exit to quit")
	}
}
