package memtable

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/KevoDB/lsmcore/pkg/common/iterator"
	"github.com/KevoDB/lsmcore/pkg/common/iterator/bounded"
	"github.com/KevoDB/lsmcore/pkg/common/iterator/composite"
	"github.com/KevoDB/lsmcore/pkg/common/iterator/filtered"
	"github.com/KevoDB/lsmcore/pkg/common/keys"
	"github.com/KevoDB/lsmcore/pkg/common/log"
	"github.com/KevoDB/lsmcore/pkg/stats"
	"github.com/KevoDB/lsmcore/pkg/telemetry"
)

var (
	// ErrDuplicateEntry is returned when a write reuses an existing
	// (key, sequence, kind)
	ErrDuplicateEntry = errors.New("memtable: duplicate entry")

	// ErrTooManyImmutables is returned when a switch would exceed the
	// configured number of immutable memtables
	ErrTooManyImmutables = errors.New("memtable: too many immutable memtables")
)

// Entry is a resolved key-value pair returned by Scan
type Entry struct {
	Key   []byte
	Value []byte
	Seq   keys.SeqNum
}

// MemTableList manages one mutable memtable and a list of immutable
// memtables waiting to be flushed, newest first.
type MemTableList struct {
	opts          Options
	maxImmutables int
	stats         stats.Collector
	metrics       MemTableMetrics
	logger        log.Logger

	// writeMu serializes writers against the mutable table
	writeMu sync.Mutex
	lastSeq keys.SeqNum

	mu         sync.RWMutex
	current    *MemTable
	immutables []*MemTable
	flushing   map[*MemTable]time.Time
}

// NewMemTableList creates a list with a fresh mutable memtable. A nil
// collector disables stats.
func NewMemTableList(opts Options, maxImmutables int, collector stats.Collector) *MemTableList {
	opts = opts.withDefaults()
	if collector == nil {
		collector = stats.NewAtomicCollector()
	}
	l := &MemTableList{
		opts:          opts,
		maxImmutables: maxImmutables,
		stats:         collector,
		metrics:       opts.Metrics,
		logger:        opts.Logger.Named("memtable_list"),
		flushing:      make(map[*MemTable]time.Time),
	}
	l.current = New(opts, keys.MaxSeqNum)
	l.current.Ref()
	return l
}

// Current returns the mutable memtable
func (l *MemTableList) Current() *MemTable {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// ImmutableCount returns the number of immutable memtables
func (l *MemTableList) ImmutableCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.immutables)
}

// tables returns the memtables newest first. Callers hold mu.
func (l *MemTableList) tables() []*MemTable {
	out := make([]*MemTable, 0, len(l.immutables)+1)
	out = append(out, l.current)
	return append(out, l.immutables...)
}

// Add writes one entry to the mutable memtable
func (l *MemTableList) Add(ctx context.Context, seq keys.SeqNum, kind keys.Kind, key, value []byte) error {
	start := time.Now()
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	var err error
	if kind == keys.KindMerge && l.opts.MaxSuccessiveMerges > 0 {
		err = l.mergeLocked(seq, key, value)
	} else {
		err = l.addLocked(seq, kind, key, value)
	}
	l.track(ctx, opForKind(kind), start, err)
	if err == nil {
		l.stats.TrackBytes(true, uint64(len(key)+len(value)))
	}
	return err
}

// Put writes a value
func (l *MemTableList) Put(ctx context.Context, seq keys.SeqNum, key, value []byte) error {
	return l.Add(ctx, seq, keys.KindValue, key, value)
}

// Delete writes a tombstone
func (l *MemTableList) Delete(ctx context.Context, seq keys.SeqNum, key []byte) error {
	return l.Add(ctx, seq, keys.KindDeletion, key, nil)
}

// Merge writes a merge operand. Once MaxSuccessiveMerges operands stack up on
// a key, the operands are folded and written as a plain value instead.
func (l *MemTableList) Merge(ctx context.Context, seq keys.SeqNum, key, operand []byte) error {
	return l.Add(ctx, seq, keys.KindMerge, key, operand)
}

// Update rewrites the newest value of key, in place when the table allows it
func (l *MemTableList) Update(ctx context.Context, seq keys.SeqNum, key, value []byte) error {
	start := time.Now()
	l.writeMu.Lock()
	l.Current().Update(seq, key, value)
	if seq > l.lastSeq {
		l.lastSeq = seq
	}
	l.writeMu.Unlock()
	l.track(ctx, stats.OpUpdate, start, nil)
	return nil
}

func (l *MemTableList) addLocked(seq keys.SeqNum, kind keys.Kind, key, value []byte) error {
	if !l.Current().Add(seq, kind, key, value, false) {
		return ErrDuplicateEntry
	}
	if seq > l.lastSeq {
		l.lastSeq = seq
	}
	return nil
}

func (l *MemTableList) mergeLocked(seq keys.SeqNum, key, operand []byte) error {
	cur := l.Current()
	if cur.CountSuccessiveMergeEntries(keys.NewLookupKey(key, seq)) < l.opts.MaxSuccessiveMerges {
		return l.addLocked(seq, keys.KindMerge, key, operand)
	}

	mctx := &MergeContext{}
	mctx.push(operand)
	res := l.get(key, seq, mctx)
	switch res.Status {
	case LookupFailed:
		return res.Err
	case LookupFound:
		l.logger.Debug("folded %d merge operands into a value", mctx.Len())
		return l.addLocked(seq, keys.KindValue, key, res.Value)
	}
	v, err := FoldOperands(l.opts.MergeOperator, key, nil, false, mctx)
	if err != nil {
		return err
	}
	return l.addLocked(seq, keys.KindValue, key, v)
}

// get probes every memtable newest first. Callers must not hold mu.
func (l *MemTableList) get(key []byte, snapshot keys.SeqNum, mctx *MergeContext) GetResult {
	l.mu.RLock()
	defer l.mu.RUnlock()

	lk := keys.NewLookupKey(key, snapshot)
	newest := keys.MaxSeqNum
	res := GetResult{Status: LookupNotPresent, Seq: keys.MaxSeqNum}
	for _, mt := range l.tables() {
		res = mt.Get(lk, mctx)
		if newest == keys.MaxSeqNum {
			newest = res.Seq
		}
		if res.Done() {
			break
		}
	}
	if res.Status == LookupNotPresent && mctx.Len() > 0 && newest != keys.MaxSeqNum {
		res.Status = LookupMergeInProgress
	}
	res.Seq = newest
	return res
}

// Get looks up key at snapshot across every memtable. mctx receives merge
// operands still awaiting a base value from older tiers; it may be nil.
func (l *MemTableList) Get(ctx context.Context, key []byte, snapshot keys.SeqNum, mctx *MergeContext) GetResult {
	start := time.Now()
	if mctx == nil {
		mctx = &MergeContext{}
	}
	res := l.get(key, snapshot, mctx)
	l.trackGet(ctx, start, res)
	return res
}

// Lookup is Get for callers with no older tiers: pending merge operands are
// folded without a base value.
func (l *MemTableList) Lookup(ctx context.Context, key []byte, snapshot keys.SeqNum) GetResult {
	start := time.Now()
	mctx := &MergeContext{}
	res := l.get(key, snapshot, mctx)
	if res.Status == LookupMergeInProgress {
		v, err := FoldOperands(l.opts.MergeOperator, key, nil, false, mctx)
		if err != nil {
			res = GetResult{Status: LookupFailed, Seq: res.Seq, Err: err}
		} else {
			res = GetResult{Status: LookupFound, Value: v, Seq: res.Seq}
		}
	}
	l.trackGet(ctx, start, res)
	return res
}

// RangeQuery resolves r across every memtable into results. Entries left
// with MergeInProgress need older tiers. Every table is scanned in full, so
// r.MaxResults is not applied here.
func (l *MemTableList) RangeQuery(ctx context.Context, r keys.LookupRange, results map[string]RangeValue) error {
	ctx, span := l.metrics.StartSpan(ctx, telemetry.OpTypeRangeQuery)
	defer span.End()

	start := time.Now()
	r.MaxResults = 0

	l.mu.RLock()
	tables := l.tables()
	var err error
	for _, mt := range tables {
		if _, err = mt.RangeQuery(ctx, r, results); err != nil {
			break
		}
	}
	l.mu.RUnlock()

	l.track(ctx, stats.OpRangeQuery, start, err)
	return err
}

// Scan returns the visible entries of r in user key order, folding pending
// merges without a base value. It reports whether r.MaxResults truncated the
// result.
func (l *MemTableList) Scan(ctx context.Context, r keys.LookupRange) ([]Entry, bool, error) {
	results := make(map[string]RangeValue)
	if err := l.RangeQuery(ctx, r, results); err != nil {
		return nil, false, err
	}

	out := make([]Entry, 0, len(results))
	for k, v := range results {
		if v.Deleted {
			continue
		}
		value := v.Value
		if v.MergeInProgress {
			var err error
			if value, err = FoldOperands(l.opts.MergeOperator, []byte(k), nil, false, v.Pending); err != nil {
				return nil, false, err
			}
		}
		out = append(out, Entry{Key: []byte(k), Value: value, Seq: v.Seq})
	}
	ucmp := l.opts.Comparator
	slices.SortFunc(out, func(a, b Entry) int { return ucmp.CompareUserKeys(a.Key, b.Key) })

	if r.MaxResults > 0 && len(out) > r.MaxResults {
		return out[:r.MaxResults], true, nil
	}
	return out, false, nil
}

// NeedsSwitch reports whether the mutable memtable has requested a flush
func (l *MemTableList) NeedsSwitch() bool {
	return l.Current().ShouldScheduleFlush()
}

// SwitchMemTable retires the mutable memtable and installs a fresh one. The
// retired table is returned with its flush requested.
func (l *MemTableList) SwitchMemTable(ctx context.Context, nextLogNumber uint64) (*MemTable, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.mu.Lock()

	if l.maxImmutables > 0 && len(l.immutables) >= l.maxImmutables {
		l.mu.Unlock()
		l.logger.Warn("switch refused: %d immutable memtables pending flush", len(l.immutables))
		return nil, ErrTooManyImmutables
	}

	old := l.current
	old.SetNextLogNumber(nextLogNumber)
	old.RequestFlush()
	old.MarkImmutable()

	earliest := keys.MaxSeqNum
	if l.lastSeq > 0 {
		earliest = l.lastSeq + 1
	}
	l.current = New(l.opts, earliest)
	l.current.Ref()
	l.immutables = append([]*MemTable{old}, l.immutables...)

	activeSize, immutableCount, total := l.sizesLocked()
	l.mu.Unlock()

	l.stats.TrackSwitch()
	l.stats.TrackMemTableSize(uint64(total))
	l.metrics.RecordSizeChange(ctx, old.ApproximateMemoryUsage(), -old.ApproximateMemoryUsage(), getMemTableTypeName(false))
	l.metrics.RecordListState(ctx, activeSize, immutableCount, total)
	l.logger.Info("switched memtable %d: entries=%d usage=%d immutables=%d",
		old.ID(), old.NumEntries(), old.ApproximateMemoryUsage(), immutableCount)
	return old, nil
}

// PickMemtablesToFlush claims every immutable memtable whose flush has not
// been claimed yet, oldest first
func (l *MemTableList) PickMemtablesToFlush() []*MemTable {
	l.mu.Lock()
	defer l.mu.Unlock()

	var picked []*MemTable
	for i := len(l.immutables) - 1; i >= 0; i-- {
		mt := l.immutables[i]
		if mt.MarkFlushScheduled() {
			l.flushing[mt] = time.Now()
			picked = append(picked, mt)
		}
	}
	return picked
}

// Remove drops a flushed memtable from the list and releases the list's
// reference to it
func (l *MemTableList) Remove(ctx context.Context, mt *MemTable) bool {
	l.mu.Lock()
	idx := slices.Index(l.immutables, mt)
	if idx < 0 {
		l.mu.Unlock()
		return false
	}
	l.immutables = slices.Delete(l.immutables, idx, idx+1)
	started, picked := l.flushing[mt]
	delete(l.flushing, mt)
	activeSize, immutableCount, total := l.sizesLocked()
	l.mu.Unlock()

	if picked {
		l.metrics.RecordFlushDuration(ctx, time.Since(started), mt.ApproximateMemoryUsage(), int64(mt.NumEntries()))
	}
	l.stats.TrackFlush()
	l.stats.TrackMemTableSize(uint64(total))
	l.metrics.RecordListState(ctx, activeSize, immutableCount, total)

	if mt.Unref() {
		l.logger.Debug("released memtable %d", mt.ID())
	}
	return true
}

// NewIterators returns one iterator per memtable, newest first
func (l *MemTableList) NewIterators() []iterator.Iterator {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tables := l.tables()
	iters := make([]iterator.Iterator, 0, len(tables))
	for _, mt := range tables {
		iters = append(iters, mt.NewIterator())
	}
	return iters
}

// NewIterator returns a merged iterator over every memtable that hides
// entries newer than snapshot and, when start or end is set, keys outside
// [start, end)
func (l *MemTableList) NewIterator(snapshot keys.SeqNum, start, end []byte) iterator.Iterator {
	var iter iterator.Iterator = composite.NewMergingIterator(l.opts.Comparator, l.NewIterators()...)
	if start != nil || end != nil {
		iter = bounded.NewBoundedIterator(iter, l.opts.Comparator, start, end)
	}
	return filtered.NewSnapshotIterator(iter, snapshot)
}

// TotalSize returns the approximate memory used by every memtable
func (l *MemTableList) TotalSize() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, _, total := l.sizesLocked()
	return total
}

func (l *MemTableList) sizesLocked() (int64, int, int64) {
	active := l.current.ApproximateMemoryUsage()
	total := active
	for _, mt := range l.immutables {
		total += mt.ApproximateMemoryUsage()
	}
	return active, len(l.immutables), total
}

// LastSequence returns the highest sequence written through the list
func (l *MemTableList) LastSequence() keys.SeqNum {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.lastSeq
}

// Stats returns the collector the list reports to
func (l *MemTableList) Stats() stats.Collector {
	return l.stats
}

func (l *MemTableList) track(ctx context.Context, op stats.OperationType, start time.Time, err error) {
	elapsed := time.Since(start)
	l.stats.TrackOperationWithLatency(op, uint64(elapsed.Nanoseconds()))
	status := telemetry.StatusSuccess
	if err != nil {
		status = telemetry.StatusError
		l.stats.TrackError(string(op) + "_error")
	}
	l.metrics.RecordOperation(ctx, string(op), status, elapsed)
}

func (l *MemTableList) trackGet(ctx context.Context, start time.Time, res GetResult) {
	elapsed := time.Since(start)
	l.stats.TrackOperationWithLatency(stats.OpGet, uint64(elapsed.Nanoseconds()))
	if res.Status == LookupFailed {
		l.stats.TrackError("get_error")
	}
	if res.Status == LookupFound {
		l.stats.TrackBytes(false, uint64(len(res.Value)))
	}
	l.metrics.RecordOperation(ctx, string(stats.OpGet), statusForResult(res), elapsed)
}

func opForKind(kind keys.Kind) stats.OperationType {
	switch kind {
	case keys.KindMerge:
		return stats.OpMerge
	case keys.KindDeletion, keys.KindSingleDeletion:
		return stats.OpDelete
	default:
		return stats.OpPut
	}
}
