package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/KevoDB/lsmcore/pkg/common/iterator"
	"github.com/KevoDB/lsmcore/pkg/common/iterator/bounded"
	"github.com/KevoDB/lsmcore/pkg/common/iterator/composite"
	"github.com/KevoDB/lsmcore/pkg/common/iterator/filtered"
	"github.com/KevoDB/lsmcore/pkg/common/keys"
	"github.com/KevoDB/lsmcore/pkg/common/log"
	"github.com/KevoDB/lsmcore/pkg/config"
	"github.com/KevoDB/lsmcore/pkg/memtable"
	"github.com/KevoDB/lsmcore/pkg/merge"
	"github.com/KevoDB/lsmcore/pkg/sstable/block"
	"github.com/KevoDB/lsmcore/pkg/stats"
	"github.com/KevoDB/lsmcore/pkg/telemetry"
)

// ErrKeyNotFound is returned when a key has no visible value
var ErrKeyNotFound = errors.New("key not found")

// store layers a memtable list over blocks built from flushed memtables.
// Blocks are kept in memory, newest last.
type store struct {
	cfg         *config.Config
	cmp         *keys.InternalKeyComparator
	mergeOp     merge.Operator
	list        *memtable.MemTableList
	collector   *stats.AtomicCollector
	compression block.CompressionType
	readOpts    block.ReadOptions
	logger      log.Logger

	blocks     []*block.Block
	blockBytes int
	seq        keys.SeqNum
	logNumber  uint64
}

func newStore(cfg *config.Config, logger log.Logger, tel telemetry.Telemetry) (*store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	compression, err := block.ParseCompression(cfg.BlockCompression)
	if err != nil {
		return nil, err
	}

	s := &store{
		cfg:         cfg,
		cmp:         keys.DefaultInternalKeyComparator,
		mergeOp:     merge.NewStringAppend(","),
		collector:   stats.NewAtomicCollector(),
		compression: compression,
		logger:      logger.Named("store"),
	}

	opts := memtable.OptionsFromConfig(cfg)
	opts.Comparator = s.cmp
	opts.MergeOperator = s.mergeOp
	opts.Logger = logger
	opts.Metrics = memtable.NewMemTableMetrics(tel)
	// Folding merges inside the list would ignore base values in blocks
	opts.MaxSuccessiveMerges = 0
	s.list = memtable.NewMemTableList(opts, cfg.MaxImmutableTables, s.collector)

	s.readOpts = block.ReadOptionsFromConfig(cfg)
	s.readOpts.Metrics = block.NewMetrics(tel)
	s.readOpts.Stats = s.collector
	s.readOpts.Logger = logger
	return s, nil
}

func (s *store) write(ctx context.Context, kind keys.Kind, key, value []byte) error {
	s.seq++
	var err error
	switch kind {
	case keys.KindValue:
		err = s.list.Put(ctx, s.seq, key, value)
	case keys.KindDeletion:
		err = s.list.Delete(ctx, s.seq, key)
	case keys.KindMerge:
		err = s.list.Merge(ctx, s.seq, key, value)
	default:
		err = fmt.Errorf("unsupported kind %s", kind)
	}
	if err != nil {
		return err
	}
	if s.list.NeedsSwitch() {
		_, err = s.switchMemTable(ctx)
	}
	return err
}

// switchMemTable retires the mutable memtable, flushing first when too many
// immutable memtables are waiting
func (s *store) switchMemTable(ctx context.Context) (*memtable.MemTable, error) {
	s.logNumber++
	mt, err := s.list.SwitchMemTable(ctx, s.logNumber)
	if errors.Is(err, memtable.ErrTooManyImmutables) {
		if _, err = s.flush(ctx); err != nil {
			return nil, err
		}
		mt, err = s.list.SwitchMemTable(ctx, s.logNumber)
	}
	return mt, err
}

// flush turns every immutable memtable into a block and returns the number
// of entries written
func (s *store) flush(ctx context.Context) (int, error) {
	written := 0
	for _, mt := range s.list.PickMemtablesToFlush() {
		blk, n, err := s.buildBlock(ctx, mt)
		if err != nil {
			return written, fmt.Errorf("failed to flush memtable %d: %w", mt.ID(), err)
		}
		if blk != nil {
			s.blocks = append(s.blocks, blk)
		}
		s.list.Remove(ctx, mt)
		written += n
	}
	return written, nil
}

func (s *store) buildBlock(ctx context.Context, mt *memtable.MemTable) (*block.Block, int, error) {
	b := block.NewBuilder(s.cmp, s.cfg.BlockRestartInterval)
	it := mt.NewIterator()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if err := b.Add(it.Key(), it.Value()); err != nil {
			return nil, 0, err
		}
	}
	if err := it.Status(); err != nil {
		return nil, 0, err
	}
	if b.Empty() {
		return nil, 0, nil
	}

	var buf bytes.Buffer
	if _, err := b.FinishTo(&buf, s.compression); err != nil {
		return nil, 0, err
	}
	blk, err := block.Open(ctx, buf.Bytes(), s.readOpts)
	if err != nil {
		return nil, 0, err
	}
	s.blockBytes += buf.Len()
	s.logger.Info("flushed memtable %d into a %d byte block (%s)", mt.ID(), buf.Len(), s.compression)
	return blk, b.Entries(), nil
}

// get reads key at the latest sequence: memtables first, then blocks newest
// first, carrying merge operands down until a base value or tombstone
func (s *store) get(ctx context.Context, key []byte) ([]byte, error) {
	mctx := &memtable.MergeContext{}
	res := s.list.Get(ctx, key, s.seq, mctx)
	switch res.Status {
	case memtable.LookupFound:
		return res.Value, nil
	case memtable.LookupDeleted:
		return nil, ErrKeyNotFound
	case memtable.LookupFailed:
		return nil, res.Err
	}

	// Operands from blocks are older than those from memtables
	var older [][]byte
	lk := keys.NewLookupKey(key, s.seq)
	for i := len(s.blocks) - 1; i >= 0; i-- {
		it, _ := block.Seek(ctx, s.blocks[i], s.cmp, lk.InternalKey(), s.readOpts)
		base, hasBase, done, err := s.resolveBlock(it, key, &older)
		if err != nil {
			return nil, err
		}
		if done {
			return s.fold(key, base, hasBase, older, mctx)
		}
	}
	if len(older) == 0 && mctx.Len() == 0 {
		return nil, ErrKeyNotFound
	}
	return s.fold(key, nil, false, older, mctx)
}

// resolveBlock walks the versions of key in one block, newest first. older
// collects merge operands newest first.
func (s *store) resolveBlock(it iterator.Iterator, key []byte, older *[][]byte) (base []byte, hasBase, done bool, err error) {
	for ; it.Valid(); it.Next() {
		p, ok := keys.ParseInternalKey(it.Key())
		if !ok {
			return nil, false, false, fmt.Errorf("%w: bad internal key", block.ErrCorruption)
		}
		if s.cmp.CompareUserKeys(p.UserKey, key) != 0 {
			break
		}
		switch {
		case p.Kind == keys.KindValue:
			return slices.Clone(it.Value()), true, true, nil
		case p.Kind.IsDeletion():
			return nil, false, true, nil
		case p.Kind == keys.KindMerge:
			*older = append(*older, slices.Clone(it.Value()))
		}
	}
	return nil, false, false, it.Status()
}

func (s *store) fold(key, base []byte, hasBase bool, older [][]byte, mctx *memtable.MergeContext) ([]byte, error) {
	if !hasBase && len(older) == 0 && mctx.Len() == 0 {
		return nil, ErrKeyNotFound
	}
	operands := make([][]byte, 0, len(older)+mctx.Len())
	for i := len(older) - 1; i >= 0; i-- {
		operands = append(operands, older[i])
	}
	operands = append(operands, mctx.Operands()...)
	if len(operands) == 0 {
		return base, nil
	}
	return s.mergeOp.FullMerge(key, base, hasBase, operands)
}

// scan returns the visible key/value pairs in [start, end) across every
// tier. A nil bound is open.
func (s *store) scan(ctx context.Context, start, end []byte) ([]memtable.Entry, error) {
	seen := make(map[string]bool)
	var out []memtable.Entry

	iters := s.list.NewIterators()
	for i := len(s.blocks) - 1; i >= 0; i-- {
		iters = append(iters, s.blocks[i].NewIterator(s.cmp))
	}
	merged := s.boundedMerge(iters, start, end)
	for merged.SeekToFirst(); merged.Valid(); merged.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		userKey := keys.ExtractUserKey(merged.Key())
		if seen[string(userKey)] {
			continue
		}
		seen[string(userKey)] = true

		value, err := s.get(ctx, userKey)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, memtable.Entry{Key: slices.Clone(userKey), Value: value})
	}
	return out, merged.Status()
}

func (s *store) boundedMerge(iters []iterator.Iterator, start, end []byte) iterator.Iterator {
	var it iterator.Iterator = composite.NewMergingIterator(s.cmp, iters...)
	if start != nil || end != nil {
		it = bounded.NewBoundedIterator(it, s.cmp, start, end)
	}
	return filtered.NewSnapshotIterator(it, s.seq)
}

func (s *store) stats() map[string]interface{} {
	st := s.collector.GetStats()
	st["immutable_memtable_count"] = s.list.ImmutableCount()
	st["memtable_total_size"] = s.list.TotalSize()
	st["block_count"] = len(s.blocks)
	st["block_bytes"] = s.blockBytes
	st["last_sequence"] = uint64(s.seq)
	return st
}
