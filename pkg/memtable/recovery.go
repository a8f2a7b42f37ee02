package memtable

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/KevoDB/lsmcore/pkg/common/keys"
)

// ErrInvalidRecord is returned when a replayed record carries an unknown kind
var ErrInvalidRecord = errors.New("memtable: invalid replay record")

// Record is one decoded write-ahead log entry
type Record struct {
	Seq   keys.SeqNum
	Kind  keys.Kind
	Key   []byte
	Value []byte

	// LogNumber is the log the record was read from
	LogNumber uint64
	// PrepLog, if non-zero, is the log holding the prepare section of the
	// transaction this record belongs to
	PrepLog uint64
}

// RecordSource yields records in log order. Next returns io.EOF when the
// source is exhausted.
type RecordSource interface {
	Next() (*Record, error)
}

// SliceSource replays records from memory
type SliceSource struct {
	records []Record
	pos     int
}

// NewSliceSource creates a source over records
func NewSliceSource(records []Record) *SliceSource {
	return &SliceSource{records: records}
}

// Next returns the next record or io.EOF
func (s *SliceSource) Next() (*Record, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	r := &s.records[s.pos]
	s.pos++
	return r, nil
}

// ReplayOptions contains options for replay
type ReplayOptions struct {
	// MaxSequenceNumber is the largest sequence number to apply. Records
	// beyond it are skipped.
	MaxSequenceNumber keys.SeqNum

	// Flush, if set, is called with memtables picked for flushing when the
	// list cannot accept another immutable memtable. Each table passed is
	// removed from the list once Flush returns nil.
	Flush func(ctx context.Context, tables []*MemTable) error
}

// DefaultReplayOptions applies every record and never flushes
func DefaultReplayOptions() *ReplayOptions {
	return &ReplayOptions{MaxSequenceNumber: keys.MaxSeqNum}
}

// ReplayResult summarizes a replay
type ReplayResult struct {
	RecordsApplied uint64
	RecordsSkipped uint64
	TablesCreated  uint64
	LastSequence   keys.SeqNum
}

// Replay applies records from src to list, switching memtables whenever the
// mutable one requests a flush. Records at or below the list's last sequence
// are treated as already applied and skipped.
func Replay(ctx context.Context, src RecordSource, list *MemTableList, opts *ReplayOptions) (ReplayResult, error) {
	if opts == nil {
		opts = DefaultReplayOptions()
	}
	collector := list.Stats()
	started := collector.StartReplay()

	res := ReplayResult{LastSequence: list.LastSequence()}
	floor := res.LastSequence
	err := replay(ctx, src, list, opts, floor, &res)

	collector.FinishReplay(started, res.RecordsApplied, res.RecordsSkipped, res.TablesCreated)
	if err != nil {
		list.logger.Error("replay stopped after %d records: %v", res.RecordsApplied, err)
		return res, err
	}
	list.logger.Info("replayed %d records (%d skipped) into %d new memtables",
		res.RecordsApplied, res.RecordsSkipped, res.TablesCreated)
	return res, nil
}

func replay(ctx context.Context, src RecordSource, list *MemTableList, opts *ReplayOptions, floor keys.SeqNum, res *ReplayResult) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read replay record: %w", err)
		}
		if !rec.Kind.Valid() {
			return fmt.Errorf("%w: seq %d kind %d", ErrInvalidRecord, rec.Seq, rec.Kind)
		}
		if (floor > 0 && rec.Seq <= floor) || rec.Seq > opts.MaxSequenceNumber {
			res.RecordsSkipped++
			continue
		}

		if err := list.Add(ctx, rec.Seq, rec.Kind, rec.Key, rec.Value); err != nil {
			if errors.Is(err, ErrDuplicateEntry) {
				res.RecordsSkipped++
				continue
			}
			return fmt.Errorf("apply record seq %d: %w", rec.Seq, err)
		}
		if rec.PrepLog != 0 {
			list.Current().RefLogContainingPrepSection(rec.PrepLog)
		}
		res.RecordsApplied++
		if rec.Seq > res.LastSequence {
			res.LastSequence = rec.Seq
		}

		if list.NeedsSwitch() {
			switched, err := switchForReplay(ctx, list, opts, rec.LogNumber)
			if err != nil {
				return err
			}
			if switched {
				res.TablesCreated++
			}
		}
	}
}

// switchForReplay retires the mutable memtable. Without a Flush callback a
// full list keeps growing the mutable memtable instead.
func switchForReplay(ctx context.Context, list *MemTableList, opts *ReplayOptions, logNumber uint64) (bool, error) {
	_, err := list.SwitchMemTable(ctx, logNumber)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, ErrTooManyImmutables) {
		return false, err
	}
	if opts.Flush == nil {
		return false, nil
	}

	picked := list.PickMemtablesToFlush()
	if err := opts.Flush(ctx, picked); err != nil {
		return false, fmt.Errorf("flush during replay: %w", err)
	}
	for _, mt := range picked {
		list.Remove(ctx, mt)
	}
	if _, err := list.SwitchMemTable(ctx, logNumber); err != nil {
		return false, err
	}
	return true, nil
}
