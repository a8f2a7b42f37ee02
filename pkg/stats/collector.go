package stats

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// OperationType names a tracked operation. The string doubles as the prefix
// of the keys reported by GetStats.
type OperationType string

const (
	OpPut        OperationType = "put"
	OpGet        OperationType = "get"
	OpDelete     OperationType = "delete"
	OpMerge      OperationType = "merge"
	OpUpdate     OperationType = "update"
	OpRangeQuery OperationType = "range_query"
	OpFlush      OperationType = "flush"
	OpBlockOpen  OperationType = "block_open"
	OpBlockSeek  OperationType = "block_seek"
	OpScan       OperationType = "scan"
)

// registry hands out one shared value per key. Lookups of existing keys only
// take the read lock.
type registry[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]*V
}

func newRegistry[K comparable, V any]() *registry[K, V] {
	return &registry[K, V]{items: make(map[K]*V)}
}

func (r *registry[K, V]) get(k K) *V {
	r.mu.RLock()
	v, ok := r.items[k]
	r.mu.RUnlock()
	if ok {
		return v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok = r.items[k]; !ok {
		v = new(V)
		r.items[k] = v
	}
	return v
}

func (r *registry[K, V]) each(fn func(K, *V)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k, v := range r.items {
		fn(k, v)
	}
}

// opCounter is the per-operation state: a count plus the time of the most
// recent call in unix nanoseconds.
type opCounter struct {
	count atomic.Uint64
	last  atomic.Int64
}

// LatencyTracker keeps running latency figures for one operation type. A
// zero min means no sample has been seen.
type LatencyTracker struct {
	count atomic.Uint64
	sum   atomic.Uint64
	max   atomic.Uint64
	min   atomic.Uint64
}

func (t *LatencyTracker) observe(ns uint64) {
	t.count.Add(1)
	t.sum.Add(ns)

	for cur := t.max.Load(); ns > cur; cur = t.max.Load() {
		if t.max.CompareAndSwap(cur, ns) {
			break
		}
	}
	for cur := t.min.Load(); cur == 0 || ns < cur; cur = t.min.Load() {
		if t.min.CompareAndSwap(cur, ns) {
			break
		}
	}
}

func (t *LatencyTracker) snapshot() (map[string]interface{}, bool) {
	count := t.count.Load()
	if count == 0 {
		return nil, false
	}
	out := map[string]interface{}{
		"count":  count,
		"avg_ns": t.sum.Load() / count,
	}
	if v := t.min.Load(); v != 0 {
		out["min_ns"] = v
	}
	if v := t.max.Load(); v != 0 {
		out["max_ns"] = v
	}
	return out, true
}

// ReplayStats describes the last log replay into the write buffers
type ReplayStats struct {
	RecordsApplied atomic.Uint64
	RecordsSkipped atomic.Uint64
	TablesCreated  atomic.Uint64
	ReplayDuration atomic.Int64 // nanoseconds
}

// AtomicCollector is the Collector used by the write buffer list, the block
// read path and the tools. Every method is safe for concurrent use.
type AtomicCollector struct {
	ops       *registry[OperationType, opCounter]
	latencies *registry[OperationType, LatencyTracker]
	errors    *registry[string, atomic.Uint64]

	memTableSize atomic.Uint64
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
	flushCount   atomic.Uint64
	switchCount  atomic.Uint64

	replay ReplayStats
}

// NewAtomicCollector returns an empty collector
func NewAtomicCollector() *AtomicCollector {
	return &AtomicCollector{
		ops:       newRegistry[OperationType, opCounter](),
		latencies: newRegistry[OperationType, LatencyTracker](),
		errors:    newRegistry[string, atomic.Uint64](),
	}
}

// TrackOperation counts one call of op
func (c *AtomicCollector) TrackOperation(op OperationType) {
	oc := c.ops.get(op)
	oc.count.Add(1)
	oc.last.Store(time.Now().UnixNano())
}

// TrackOperationWithLatency counts one call of op that took latencyNs
func (c *AtomicCollector) TrackOperationWithLatency(op OperationType, latencyNs uint64) {
	c.TrackOperation(op)
	c.latencies.get(op).observe(latencyNs)
}

// TrackError counts one error of the given class
func (c *AtomicCollector) TrackError(errorType string) {
	c.errors.get(errorType).Add(1)
}

// TrackBytes adds to the written (buffered) or read (decoded) byte total
func (c *AtomicCollector) TrackBytes(isWrite bool, bytes uint64) {
	if isWrite {
		c.bytesWritten.Add(bytes)
		return
	}
	c.bytesRead.Add(bytes)
}

// TrackMemTableSize records the current write buffer usage
func (c *AtomicCollector) TrackMemTableSize(size uint64) {
	c.memTableSize.Store(size)
}

// TrackFlush counts one completed flush
func (c *AtomicCollector) TrackFlush() {
	c.flushCount.Add(1)
}

// TrackSwitch counts one active table switch
func (c *AtomicCollector) TrackSwitch() {
	c.switchCount.Add(1)
}

// StartReplay clears the replay figures and returns the start time to hand
// back to FinishReplay.
func (c *AtomicCollector) StartReplay() time.Time {
	c.replay.RecordsApplied.Store(0)
	c.replay.RecordsSkipped.Store(0)
	c.replay.TablesCreated.Store(0)
	c.replay.ReplayDuration.Store(0)
	return time.Now()
}

// FinishReplay stores the outcome of a replay started at startTime
func (c *AtomicCollector) FinishReplay(startTime time.Time, recordsApplied, recordsSkipped, tablesCreated uint64) {
	c.replay.RecordsApplied.Store(recordsApplied)
	c.replay.RecordsSkipped.Store(recordsSkipped)
	c.replay.TablesCreated.Store(tablesCreated)
	c.replay.ReplayDuration.Store(time.Since(startTime).Nanoseconds())
}

// GetStats returns a point-in-time copy of every figure
func (c *AtomicCollector) GetStats() map[string]interface{} {
	out := map[string]interface{}{
		"memtable_size":       c.memTableSize.Load(),
		"total_bytes_read":    c.bytesRead.Load(),
		"total_bytes_written": c.bytesWritten.Load(),
		"flush_count":         c.flushCount.Load(),
		"switch_count":        c.switchCount.Load(),
	}

	c.ops.each(func(op OperationType, oc *opCounter) {
		out[string(op)+"_ops"] = oc.count.Load()
		out["last_"+string(op)+"_time"] = oc.last.Load()
	})

	c.latencies.each(func(op OperationType, t *LatencyTracker) {
		if snap, ok := t.snapshot(); ok {
			out[string(op)+"_latency"] = snap
		}
	})

	errs := make(map[string]uint64)
	c.errors.each(func(class string, n *atomic.Uint64) {
		errs[class] = n.Load()
	})
	out["errors"] = errs

	replay := map[string]interface{}{
		"records_applied": c.replay.RecordsApplied.Load(),
		"records_skipped": c.replay.RecordsSkipped.Load(),
		"tables_created":  c.replay.TablesCreated.Load(),
	}
	if d := c.replay.ReplayDuration.Load(); d > 0 {
		replay["replay_duration_ms"] = d / int64(time.Millisecond)
	}
	out["replay"] = replay

	return out
}

// GetStatsFiltered returns the subset of GetStats whose keys start with prefix
func (c *AtomicCollector) GetStatsFiltered(prefix string) map[string]interface{} {
	filtered := make(map[string]interface{})
	for k, v := range c.GetStats() {
		if strings.HasPrefix(k, prefix) {
			filtered[k] = v
		}
	}
	return filtered
}
