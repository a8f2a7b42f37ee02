package memtable

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevoDB/lsmcore/pkg/common/keys"
	"github.com/KevoDB/lsmcore/pkg/common/log"
	"github.com/KevoDB/lsmcore/pkg/config"
	"github.com/KevoDB/lsmcore/pkg/merge"
)

var (
	// ErrNoMergeOperator is reported when a merge operand is read without an
	// operator to fold it
	ErrNoMergeOperator = errors.New("memtable: merge operand found but no merge operator configured")

	// ErrCorruptEntry is reported when a stored record cannot be decoded
	ErrCorruptEntry = errors.New("memtable: corrupt entry")
)

// allowOverAllocationRatio lets usage run past the flush limit by a fraction
// of an arena block before a flush is forced
const allowOverAllocationRatio = 0.6

// FlushState tracks whether a memtable has asked to be flushed
type FlushState int32

const (
	FlushNotRequested FlushState = iota
	FlushRequested
	FlushScheduled
)

func (s FlushState) String() string {
	switch s {
	case FlushNotRequested:
		return "not_requested"
	case FlushRequested:
		return "requested"
	case FlushScheduled:
		return "scheduled"
	default:
		return fmt.Sprintf("FlushState(%d)", int32(s))
	}
}

// Options configures a MemTable
type Options struct {
	Comparator          *keys.InternalKeyComparator
	WriteBufferSize     int64
	ArenaBlockSize      int64
	MaxSuccessiveMerges int
	// InplaceUpdateSupport makes readers copy values under the table's read
	// lock from the start, for tables whose Updates race with reads
	InplaceUpdateSupport bool
	FlushUsageRatio      float64
	MergeOperator        merge.Operator
	Logger               log.Logger
	Metrics              MemTableMetrics
}

// OptionsFromConfig derives memtable options from the engine configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		WriteBufferSize:      cfg.WriteBufferSize,
		ArenaBlockSize:       cfg.ArenaBlockSize,
		MaxSuccessiveMerges:  cfg.MaxSuccessiveMerges,
		InplaceUpdateSupport: cfg.InplaceUpdateSupport,
		FlushUsageRatio:      cfg.FlushUsageRatio,
	}
}

// DefaultOptions returns options derived from the default configuration
func DefaultOptions() Options {
	return OptionsFromConfig(config.NewDefaultConfig())
}

func (o Options) withDefaults() Options {
	def := config.NewDefaultConfig()
	if o.Comparator == nil {
		o.Comparator = keys.DefaultInternalKeyComparator
	}
	if o.WriteBufferSize <= 0 {
		o.WriteBufferSize = def.WriteBufferSize
	}
	if o.ArenaBlockSize <= 0 {
		o.ArenaBlockSize = DefaultArenaBlockSize
	}
	if o.FlushUsageRatio <= 0 || o.FlushUsageRatio > 1 {
		o.FlushUsageRatio = def.FlushUsageRatio
	}
	if o.Logger == nil {
		o.Logger = log.NewNopLogger()
	}
	if o.Metrics == nil {
		o.Metrics = NewNoopMemTableMetrics()
	}
	return o
}

var memTableIDs atomic.Uint64

// MemTable buffers sequenced mutations in internal key order until they are
// flushed. Each entry is stored in the arena as
//
//	varint32(len(ikey)) ikey varint32(len(value)) value
//
// and the skip list indexes those records.
//
// Mutating methods (Add without allowConcurrent, Update, UpdateCallback,
// MarkImmutable, Ref, Unref) require external synchronization. Reads are safe
// concurrently with a single writer.
type MemTable struct {
	id    uint64
	opts  Options
	cmp   *keys.InternalKeyComparator
	arena *Arena
	table *SkipList

	refs int

	numEntries    atomic.Uint64
	numDeletes    atomic.Uint64
	dataSize      atomic.Uint64
	firstSeq      atomic.Uint64
	earliestSeq   atomic.Uint64
	flushState    atomic.Int32
	minPrepLog    atomic.Uint64
	nextLogNumber uint64
	edit          VersionEdit

	// mu serializes in-place value rewrites against readers
	mu        sync.RWMutex
	rewritten atomic.Bool

	immutable    atomic.Bool
	creationTime time.Time
	logger       log.Logger
}

// New creates a memtable. earliestSeq must be <= the sequence of any entry
// that will be added; pass keys.MaxSeqNum if unknown. The reference count
// starts at zero and the caller must Ref it.
func New(opts Options, earliestSeq keys.SeqNum) *MemTable {
	opts = opts.withDefaults()
	m := &MemTable{
		id:           memTableIDs.Add(1),
		opts:         opts,
		cmp:          opts.Comparator,
		arena:        NewArena(int(opts.ArenaBlockSize)),
		creationTime: time.Now(),
	}
	m.table = NewSkipList(m.compareRecords)
	m.earliestSeq.Store(uint64(earliestSeq))
	m.logger = opts.Logger.Named("memtable").WithField("id", m.id)
	return m
}

// ID returns a process-unique identifier for logging
func (m *MemTable) ID() uint64 {
	return m.id
}

func (m *MemTable) compareRecords(a, b []byte) int {
	ak, _, _ := keys.GetLengthPrefixed(a)
	bk, _, _ := keys.GetLengthPrefixed(b)
	return m.cmp.Compare(ak, bk)
}

// memtableKey frames an internal key the way records are framed so it can
// be used as a skip list search target
func memtableKey(dst, ikey []byte) []byte {
	dst = keys.AppendVarint32(dst[:0], uint32(len(ikey)))
	return append(dst, ikey...)
}

// Ref increments the reference count
func (m *MemTable) Ref() {
	m.refs++
}

// Unref decrements the reference count and reports whether it reached zero,
// in which case the caller owns the table's disposal
func (m *MemTable) Unref() bool {
	m.refs--
	if m.refs < 0 {
		panic("memtable: Unref without matching Ref")
	}
	return m.refs == 0
}

// Refs returns the current reference count
func (m *MemTable) Refs() int {
	return m.refs
}

// Add inserts (key, seq, kind) -> value. With allowConcurrent set, Add may
// run in parallel with other concurrent Adds. It returns false if the exact
// internal key is already present.
func (m *MemTable) Add(seq keys.SeqNum, kind keys.Kind, key, value []byte, allowConcurrent bool) bool {
	ikeyLen := len(key) + keys.TrailerSize
	size := keys.Varint32Len(uint32(ikeyLen)) + ikeyLen + keys.Varint32Len(uint32(len(value))) + len(value)

	rec := m.arena.Allocate(size)
	p := keys.AppendVarint32(rec[:0], uint32(ikeyLen))
	p = keys.AppendInternalKey(p, key, seq, kind)
	p = keys.AppendVarint32(p, uint32(len(value)))
	copy(rec[len(p):], value)

	var inserted bool
	if allowConcurrent {
		inserted = m.table.InsertConcurrently(rec)
	} else {
		inserted = m.table.Insert(rec)
	}
	if !inserted {
		return false
	}

	m.numEntries.Add(1)
	m.dataSize.Add(uint64(size))
	if kind.IsDeletion() {
		m.numDeletes.Add(1)
	}
	m.noteSequence(seq, allowConcurrent)
	m.updateFlushState()
	return true
}

// noteSequence records seq as the first and earliest sequence when none is
// known yet. Concurrent inserts arrive in any order, so on that path both
// bounds are lowered to the smallest sequence seen instead.
func (m *MemTable) noteSequence(seq keys.SeqNum, concurrent bool) {
	s := uint64(seq)
	if !concurrent {
		m.firstSeq.CompareAndSwap(0, s)
		m.earliestSeq.CompareAndSwap(uint64(keys.MaxSeqNum), s)
		return
	}
	for {
		cur := m.firstSeq.Load()
		if cur != 0 && cur <= s {
			break
		}
		if m.firstSeq.CompareAndSwap(cur, s) {
			break
		}
	}
	for {
		cur := m.earliestSeq.Load()
		if cur <= s {
			break
		}
		if m.earliestSeq.CompareAndSwap(cur, s) {
			break
		}
	}
}

// shouldFlushNow decides from arena usage whether the table is full
func (m *MemTable) shouldFlushNow() bool {
	limit := int64(float64(m.opts.WriteBufferSize) * m.opts.FlushUsageRatio)
	block := int64(m.arena.BlockSize())
	slack := int64(float64(block) * allowOverAllocationRatio)
	allocated := m.arena.MemoryAllocatedBytes() + m.table.NodeMemory()

	if allocated+block < limit+slack {
		return false
	}
	if allocated > limit+slack {
		return true
	}
	// Close to the limit: flush once the current block is mostly used, so
	// the next insert does not open a block we cannot afford
	return m.arena.AllocatedAndUnused() < block/4
}

func (m *MemTable) updateFlushState() {
	if FlushState(m.flushState.Load()) != FlushNotRequested || !m.shouldFlushNow() {
		return
	}
	if m.flushState.CompareAndSwap(int32(FlushNotRequested), int32(FlushRequested)) {
		usage := m.ApproximateMemoryUsage()
		m.logger.Debug("flush requested: usage=%d entries=%d", usage, m.NumEntries())
		m.opts.Metrics.RecordFlushTrigger(context.Background(), "size", usage, m.Age())
	}
}

// ShouldScheduleFlush reports whether the table has asked to be flushed and
// nobody has claimed the flush yet
func (m *MemTable) ShouldScheduleFlush() bool {
	return FlushState(m.flushState.Load()) == FlushRequested
}

// MarkFlushScheduled claims the pending flush. Exactly one caller wins.
func (m *MemTable) MarkFlushScheduled() bool {
	won := m.flushState.CompareAndSwap(int32(FlushRequested), int32(FlushScheduled))
	if won {
		m.logger.Debug("flush scheduled")
	}
	return won
}

// RequestFlush moves a table that has not asked for a flush into the
// requested state regardless of its size
func (m *MemTable) RequestFlush() {
	if m.flushState.CompareAndSwap(int32(FlushNotRequested), int32(FlushRequested)) {
		m.opts.Metrics.RecordFlushTrigger(context.Background(), "manual", m.ApproximateMemoryUsage(), m.Age())
	}
}

// FlushState returns the current flush state
func (m *MemTable) FlushState() FlushState {
	return FlushState(m.flushState.Load())
}

// readValue decodes the value that follows an internal key in a record.
// Once a value may be rewritten in place it is copied under the read lock.
func (m *MemTable) readValue(rest []byte) []byte {
	if !m.opts.InplaceUpdateSupport && !m.rewritten.Load() {
		v, _, _ := keys.GetLengthPrefixed(rest)
		return v
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, _, ok := keys.GetLengthPrefixed(rest)
	if !ok {
		return nil
	}
	return append([]byte{}, v...)
}

// Get looks up the newest entry for the lookup key's user key visible at its
// snapshot. mctx carries merge operands collected from newer tables and
// receives this table's operands; it may be nil.
func (m *MemTable) Get(lk *keys.LookupKey, mctx *MergeContext) GetResult {
	if mctx == nil {
		mctx = &MergeContext{}
	}
	it := m.table.NewIterator()
	it.Seek(memtableKey(nil, lk.InternalKey()))
	return m.resolve(it, lk.UserKey(), lk.Sequence(), mctx)
}

// resolve consumes entries of userKey from it, newest first, until a value or
// tombstone settles the lookup. It leaves it on the settling entry or on the
// first entry past userKey.
func (m *MemTable) resolve(it *Iterator, userKey []byte, snapshot keys.SeqNum, mctx *MergeContext) GetResult {
	res := GetResult{Status: LookupNotPresent, Seq: keys.MaxSeqNum}
	for ; it.Valid(); it.Next() {
		ikey, rest, ok := keys.GetLengthPrefixed(it.Key())
		p, pok := keys.ParseInternalKey(ikey)
		if !ok || !pok {
			m.logger.Warn("corrupt record while reading %q", userKey)
			return GetResult{Status: LookupFailed, Seq: res.Seq, Err: ErrCorruptEntry}
		}
		if m.cmp.CompareUserKeys(p.UserKey, userKey) != 0 {
			break
		}
		if p.Seq > snapshot {
			continue
		}
		if res.Seq == keys.MaxSeqNum {
			res.Seq = p.Seq
		}

		switch p.Kind {
		case keys.KindValue:
			v := m.readValue(rest)
			if mctx.Len() > 0 {
				return m.fold(userKey, v, true, mctx, res.Seq)
			}
			res.Status, res.Value = LookupFound, v
			return res
		case keys.KindDeletion, keys.KindSingleDeletion:
			if mctx.Len() > 0 {
				return m.fold(userKey, nil, false, mctx, res.Seq)
			}
			res.Status = LookupDeleted
			return res
		case keys.KindMerge:
			if m.opts.MergeOperator == nil {
				return GetResult{Status: LookupFailed, Seq: res.Seq, Err: ErrNoMergeOperator}
			}
			mctx.push(m.readValue(rest))
		}
	}
	if res.Seq != keys.MaxSeqNum && mctx.Len() > 0 {
		res.Status = LookupMergeInProgress
	}
	return res
}

func (m *MemTable) fold(userKey, existing []byte, hasExisting bool, mctx *MergeContext, seq keys.SeqNum) GetResult {
	v, err := FoldOperands(m.opts.MergeOperator, userKey, existing, hasExisting, mctx)
	if err != nil {
		return GetResult{Status: LookupFailed, Seq: seq, Err: err}
	}
	return GetResult{Status: LookupFound, Value: v, Seq: seq}
}

// RangeQuery resolves every user key in r visible at r.Snapshot and records
// it in results. Keys already settled in results by a newer table are left
// untouched; keys with pending merge operands are continued. Deleted keys are
// recorded with Deleted set so they shadow older tables, but only values and
// pending merges count toward r.MaxResults. It reports whether the cap
// stopped the scan early.
func (m *MemTable) RangeQuery(ctx context.Context, r keys.LookupRange, results map[string]RangeValue) (bool, error) {
	it := m.table.NewIterator()
	it.Seek(memtableKey(nil, r.SeekKey()))

	added := 0
	for steps := 0; it.Valid(); steps++ {
		if steps%256 == 0 {
			if err := ctx.Err(); err != nil {
				return false, err
			}
		}

		ikey, _, ok := keys.GetLengthPrefixed(it.Key())
		userKey := keys.ExtractUserKey(ikey)
		if !ok || len(ikey) < keys.TrailerSize {
			return false, ErrCorruptEntry
		}
		if !r.BeforeLimit(m.cmp, userKey) {
			break
		}

		prior, seen := results[string(userKey)]
		if seen && !prior.MergeInProgress {
			m.skipUserKey(it, userKey)
			continue
		}

		mctx := &MergeContext{}
		if seen {
			mctx = prior.Pending
		}
		res := m.resolve(it, userKey, r.Snapshot, mctx)

		seq := res.Seq
		if seen {
			seq = prior.Seq
		}
		switch res.Status {
		case LookupFailed:
			return false, res.Err
		case LookupFound:
			results[string(userKey)] = RangeValue{Seq: seq, Value: res.Value}
		case LookupDeleted:
			results[string(userKey)] = RangeValue{Seq: seq, Deleted: true}
		case LookupMergeInProgress:
			results[string(userKey)] = RangeValue{Seq: seq, MergeInProgress: true, Pending: mctx}
		}
		if !seen && (res.Status == LookupFound || res.Status == LookupMergeInProgress) {
			added++
		}

		m.skipUserKey(it, userKey)
		if r.MaxResults > 0 && added >= r.MaxResults {
			return true, nil
		}
	}
	return false, nil
}

// skipUserKey advances it past every entry of userKey
func (m *MemTable) skipUserKey(it *Iterator, userKey []byte) {
	for ; it.Valid(); it.Next() {
		ikey, _, _ := keys.GetLengthPrefixed(it.Key())
		if m.cmp.CompareUserKeys(keys.ExtractUserKey(ikey), userKey) != 0 {
			return
		}
	}
}

// latestValueRecord returns the value part of the newest entry for key at or
// below seq, if that entry is a plain value
func (m *MemTable) latestValueRecord(key []byte, seq keys.SeqNum) ([]byte, bool) {
	lk := keys.NewLookupKey(key, seq)
	it := m.table.NewIterator()
	it.Seek(memtableKey(nil, lk.InternalKey()))
	if !it.Valid() {
		return nil, false
	}
	ikey, rest, ok := keys.GetLengthPrefixed(it.Key())
	p, pok := keys.ParseInternalKey(ikey)
	if !ok || !pok || m.cmp.CompareUserKeys(p.UserKey, key) != 0 || p.Kind != keys.KindValue {
		return nil, false
	}
	return rest, true
}

// overwrite replaces the value in rest if the new value is not longer
func (m *MemTable) overwrite(rest, value []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	prevLen, n := keys.DecodeVarint32(rest)
	if n <= 0 || uint32(len(value)) > prevLen {
		return false
	}
	m.rewritten.Store(true)
	p := keys.AppendVarint32(rest[:0], uint32(len(value)))
	copy(rest[len(p):], value)
	return true
}

// Update overwrites the newest plain value of key in place when value fits
// in the old value's space. Otherwise it adds a new entry at seq. An in-place
// rewrite keeps the old sequence number and is visible to every snapshot.
func (m *MemTable) Update(seq keys.SeqNum, key, value []byte) {
	if rest, ok := m.latestValueRecord(key, seq); ok && m.overwrite(rest, value) {
		m.updateFlushState()
		return
	}
	m.Add(seq, keys.KindValue, key, value, false)
}

// UpdateFunc computes a new value from the existing value and a delta. It
// must not retain or modify existing. Returning false leaves the table as is.
type UpdateFunc func(existing, delta []byte) ([]byte, bool)

// UpdateCallback applies fn to the newest plain value of key. It returns
// false, without writing, when key has no plain value as its newest entry.
// The result is written in place when it fits, else added at seq.
func (m *MemTable) UpdateCallback(seq keys.SeqNum, key, delta []byte, fn UpdateFunc) bool {
	rest, ok := m.latestValueRecord(key, seq)
	if !ok {
		return false
	}
	newValue, ok := fn(m.readValue(rest), delta)
	if !ok {
		return true
	}
	if m.overwrite(rest, newValue) {
		m.updateFlushState()
		return true
	}
	m.Add(seq, keys.KindValue, key, newValue, false)
	return true
}

// CountSuccessiveMergeEntries returns how many merge operands sit on top of
// the newest non-merge entry of the lookup key
func (m *MemTable) CountSuccessiveMergeEntries(lk *keys.LookupKey) int {
	it := m.table.NewIterator()
	it.Seek(memtableKey(nil, lk.InternalKey()))

	count := 0
	for ; it.Valid(); it.Next() {
		ikey, _, _ := keys.GetLengthPrefixed(it.Key())
		p, ok := keys.ParseInternalKey(ikey)
		if !ok || m.cmp.CompareUserKeys(p.UserKey, lk.UserKey()) != 0 || p.Kind != keys.KindMerge {
			break
		}
		count++
	}
	return count
}

// MarkImmutable freezes the arena and the skip list. Adding afterwards is a
// programming error and panics.
func (m *MemTable) MarkImmutable() {
	m.table.MarkReadOnly()
	m.arena.DoneAllocating()
	m.immutable.Store(true)
	m.logger.Debug("marked immutable: entries=%d usage=%d", m.NumEntries(), m.ApproximateMemoryUsage())
}

// IsImmutable returns whether the MemTable is immutable
func (m *MemTable) IsImmutable() bool {
	return m.immutable.Load()
}

// ApproximateMemoryUsage estimates the bytes held by the table
func (m *MemTable) ApproximateMemoryUsage() int64 {
	return m.arena.ApproximateMemoryUsage() + m.table.NodeMemory()
}

// DataSize returns the encoded size of all records added
func (m *MemTable) DataSize() uint64 {
	return m.dataSize.Load()
}

// NumEntries returns the number of entries added
func (m *MemTable) NumEntries() uint64 {
	return m.numEntries.Load()
}

// NumDeletes returns the number of tombstones added
func (m *MemTable) NumDeletes() uint64 {
	return m.numDeletes.Load()
}

// IsEmpty reports whether nothing has been added
func (m *MemTable) IsEmpty() bool {
	return m.firstSeq.Load() == 0 && m.numEntries.Load() == 0
}

// FirstSequenceNumber returns the sequence of the first entry added, or 0
// when empty
func (m *MemTable) FirstSequenceNumber() keys.SeqNum {
	return keys.SeqNum(m.firstSeq.Load())
}

// EarliestSequenceNumber returns a sequence <= that of any entry that can be
// in this table, or keys.MaxSeqNum if unknown
func (m *MemTable) EarliestSequenceNumber() keys.SeqNum {
	return keys.SeqNum(m.earliestSeq.Load())
}

// NextLogNumber returns the log that became active when this table was
// retired
func (m *MemTable) NextLogNumber() uint64 {
	return m.nextLogNumber
}

// SetNextLogNumber records the log that became active when this table was
// retired
func (m *MemTable) SetNextLogNumber(n uint64) {
	m.nextLogNumber = n
}

// RefLogContainingPrepSection notes that log holds the prepare record of a
// transaction whose data lives in this table
func (m *MemTable) RefLogContainingPrepSection(logNumber uint64) {
	if logNumber == 0 {
		return
	}
	for {
		cur := m.minPrepLog.Load()
		if cur != 0 && cur <= logNumber {
			return
		}
		if m.minPrepLog.CompareAndSwap(cur, logNumber) {
			return
		}
	}
}

// MinLogContainingPrepSection returns the oldest referenced prepare log, or 0
func (m *MemTable) MinLogContainingPrepSection() uint64 {
	return m.minPrepLog.Load()
}

// Edits returns the version edit that travels with this table to the flush
func (m *MemTable) Edits() *VersionEdit {
	return &m.edit
}

// Comparator returns the internal key comparator
func (m *MemTable) Comparator() *keys.InternalKeyComparator {
	return m.cmp
}

// Age returns the age of the MemTable in seconds
func (m *MemTable) Age() float64 {
	return time.Since(m.creationTime).Seconds()
}
