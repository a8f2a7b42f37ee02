package memtable

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/KevoDB/lsmcore/pkg/common/keys"
)

type failingSource struct {
	records []Record
	err     error
}

func (f *failingSource) Next() (*Record, error) {
	if len(f.records) == 0 {
		return nil, f.err
	}
	r := &f.records[0]
	f.records = f.records[1:]
	return r, nil
}

func TestReplay(t *testing.T) {
	ctx := context.Background()
	list, collector := newTestList(t, testOptions(), 4)

	records := []Record{
		{Seq: 1, Kind: keys.KindValue, Key: []byte("key1"), Value: []byte("value1")},
		{Seq: 2, Kind: keys.KindValue, Key: []byte("key2"), Value: []byte("value2")},
		{Seq: 3, Kind: keys.KindDeletion, Key: []byte("key1")},
		{Seq: 4, Kind: keys.KindValue, Key: []byte("key3"), Value: []byte("value3"), PrepLog: 6},
		{Seq: 5, Kind: keys.KindMerge, Key: []byte("key3"), Value: []byte("more")},
	}

	res, err := Replay(ctx, NewSliceSource(records), list, nil)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if res.RecordsApplied != 5 || res.RecordsSkipped != 0 {
		t.Errorf("expected 5 applied / 0 skipped, got %d / %d", res.RecordsApplied, res.RecordsSkipped)
	}
	if res.LastSequence != 5 {
		t.Errorf("expected last sequence 5, got %d", res.LastSequence)
	}

	if r := list.Get(ctx, []byte("key1"), keys.MaxSeqNum, nil); r.Status != LookupDeleted {
		t.Errorf("expected key1 deleted, got %s", r.Status)
	}
	if r := list.Get(ctx, []byte("key2"), keys.MaxSeqNum, nil); string(r.Value) != "value2" {
		t.Errorf("expected value2, got %q", r.Value)
	}
	if r := list.Get(ctx, []byte("key3"), keys.MaxSeqNum, nil); string(r.Value) != "value3,more" {
		t.Errorf("expected value3,more, got %q", r.Value)
	}
	if got := list.Current().MinLogContainingPrepSection(); got != 6 {
		t.Errorf("expected prep log 6 to be referenced, got %d", got)
	}

	replay, ok := collector.GetStats()["replay"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected replay stats")
	}
	if replay["records_applied"] != uint64(5) {
		t.Errorf("expected 5 records in stats, got %v", replay["records_applied"])
	}
}

func TestReplaySkipsAppliedAndFutureRecords(t *testing.T) {
	ctx := context.Background()
	list, _ := newTestList(t, testOptions(), 4)
	list.Put(ctx, 2, []byte("already"), []byte("there"))

	records := []Record{
		{Seq: 1, Kind: keys.KindValue, Key: []byte("old"), Value: []byte("x")},
		{Seq: 2, Kind: keys.KindValue, Key: []byte("already"), Value: []byte("there")},
		{Seq: 3, Kind: keys.KindValue, Key: []byte("new"), Value: []byte("y")},
		{Seq: 9, Kind: keys.KindValue, Key: []byte("future"), Value: []byte("z")},
	}

	res, err := Replay(ctx, NewSliceSource(records), list, &ReplayOptions{MaxSequenceNumber: 5})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if res.RecordsApplied != 1 || res.RecordsSkipped != 3 {
		t.Errorf("expected 1 applied / 3 skipped, got %d / %d", res.RecordsApplied, res.RecordsSkipped)
	}
	if r := list.Get(ctx, []byte("future"), keys.MaxSeqNum, nil); r.Status != LookupNotPresent {
		t.Errorf("record beyond max sequence must not be applied")
	}
	if r := list.Get(ctx, []byte("old"), keys.MaxSeqNum, nil); r.Status != LookupNotPresent {
		t.Errorf("record at or below the last sequence must not be applied")
	}
}

func TestReplaySwitchesMemTables(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.WriteBufferSize = 32 * 1024
	opts.FlushUsageRatio = 1
	list, _ := newTestList(t, opts, 2)

	value := make([]byte, 512)
	records := make([]Record, 400)
	for i := range records {
		records[i] = Record{
			Seq:       keys.SeqNum(i + 1),
			Kind:      keys.KindValue,
			Key:       []byte(fmt.Sprintf("key-%04d", i)),
			Value:     value,
			LogNumber: 3,
		}
	}

	var flushed int
	res, err := Replay(ctx, NewSliceSource(records), list, &ReplayOptions{
		MaxSequenceNumber: keys.MaxSeqNum,
		Flush: func(ctx context.Context, tables []*MemTable) error {
			for _, mt := range tables {
				if !mt.IsImmutable() {
					return fmt.Errorf("table %d is not immutable", mt.ID())
				}
				flushed++
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if res.RecordsApplied != 400 {
		t.Errorf("expected 400 applied, got %d", res.RecordsApplied)
	}
	if res.TablesCreated < 3 {
		t.Errorf("expected several memtable switches, got %d", res.TablesCreated)
	}
	if flushed == 0 {
		t.Errorf("expected the flush callback to run once the list filled up")
	}
	if list.ImmutableCount() > 2 {
		t.Errorf("immutable limit exceeded: %d", list.ImmutableCount())
	}

	// The newest records are still readable from memory
	if r := list.Get(ctx, []byte("key-0399"), keys.MaxSeqNum, nil); r.Status != LookupFound {
		t.Errorf("expected newest key to be readable, got %s", r.Status)
	}
}

func TestReplayErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("InvalidKind", func(t *testing.T) {
		list, _ := newTestList(t, testOptions(), 4)
		src := NewSliceSource([]Record{{Seq: 1, Kind: keys.Kind(42), Key: []byte("k")}})
		if _, err := Replay(ctx, src, list, nil); !errors.Is(err, ErrInvalidRecord) {
			t.Errorf("expected ErrInvalidRecord, got %v", err)
		}
	})

	t.Run("SourceError", func(t *testing.T) {
		list, _ := newTestList(t, testOptions(), 4)
		boom := errors.New("torn record")
		src := &failingSource{
			records: []Record{{Seq: 1, Kind: keys.KindValue, Key: []byte("k"), Value: []byte("v")}},
			err:     boom,
		}
		res, err := Replay(ctx, src, list, nil)
		if !errors.Is(err, boom) {
			t.Errorf("expected source error, got %v", err)
		}
		if res.RecordsApplied != 1 {
			t.Errorf("expected the record before the error to be applied, got %d", res.RecordsApplied)
		}
	})

	t.Run("Canceled", func(t *testing.T) {
		list, _ := newTestList(t, testOptions(), 4)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		src := NewSliceSource([]Record{{Seq: 1, Kind: keys.KindValue, Key: []byte("k")}})
		if _, err := Replay(cctx, src, list, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
