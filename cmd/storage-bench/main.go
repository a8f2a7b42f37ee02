package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"sync"
	"time"

	"github.com/KevoDB/lsmcore/pkg/common/keys"
	"github.com/KevoDB/lsmcore/pkg/config"
	"github.com/KevoDB/lsmcore/pkg/memtable"
	"github.com/KevoDB/lsmcore/pkg/sstable/block"
	"github.com/KevoDB/lsmcore/pkg/stats"
)

const (
	defaultValueSize = 100
	defaultKeyCount  = 100000
)

var (
	// Command line flags
	benchmarkType   = flag.String("type", "all", "Benchmarks to run (insert, concurrent-insert, get, range, block-build, block-seek, block-scan, or all)")
	numKeys         = flag.Int("keys", defaultKeyCount, "Number of keys to use")
	valueSize       = flag.Int("value-size", defaultValueSize, "Size of values in bytes")
	sequential      = flag.Bool("sequential", false, "Use sequential keys instead of random")
	threads         = flag.Int("threads", runtime.GOMAXPROCS(0), "Writers for the concurrent insert benchmark")
	compression     = flag.String("compression", config.CompressionSnappy, "Block compression (none, snappy, zstd)")
	restartInterval = flag.Int("restart-interval", block.DefaultRestartInterval, "Entries between block restart points")
	cpuProfile      = flag.String("cpu-profile", "", "Write CPU profile to file")
	memProfile      = flag.String("mem-profile", "", "Write memory profile to file")
	resultsFile     = flag.String("results", "", "CSV file to write results to (in addition to stdout)")
	baselineFile    = flag.String("baseline", "", "CSV file of earlier results to print alongside")
)

func main() {
	flag.Parse()

	// Set up CPU profiling if requested
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	c, err := block.ParseCompression(*compression)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid compression: %v\n", err)
		os.Exit(1)
	}

	b := newBench(*numKeys, *valueSize, c)
	fmt.Printf("Benchmark (%s) keys=%d value-size=%d mode=%s compression=%s\n",
		time.Now().Format(time.RFC3339), *numKeys, *valueSize, keyMode(), c)

	var results []BenchmarkResult
	for _, typ := range strings.Split(*benchmarkType, ",") {
		switch strings.ToLower(strings.TrimSpace(typ)) {
		case "insert":
			results = append(results, b.runInsert())
		case "concurrent-insert":
			results = append(results, b.runConcurrentInsert(*threads))
		case "get":
			results = append(results, b.runGet())
		case "range":
			results = append(results, b.runRange())
		case "block-build":
			results = append(results, b.runBlockBuild())
		case "block-seek":
			results = append(results, b.runBlockSeek())
		case "block-scan":
			results = append(results, b.runBlockScan())
		case "all":
			results = append(results,
				b.runInsert(),
				b.runConcurrentInsert(*threads),
				b.runGet(),
				b.runRange(),
				b.runBlockBuild(),
				b.runBlockSeek(),
				b.runBlockScan(),
			)
		default:
			fmt.Fprintf(os.Stderr, "Unknown benchmark type: %s\n", typ)
			os.Exit(1)
		}
	}

	if *baselineFile != "" {
		baseline, err := LoadResultCSV(*baselineFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load baseline: %v\n", err)
		} else {
			fmt.Println("Baseline:")
			PrintResultTable(baseline)
		}
	}
	PrintResultTable(results)

	// Write results to file if requested
	if *resultsFile != "" {
		if err := SaveResultCSV(results, *resultsFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write results to file: %v\n", err)
		}
	}

	// Write memory profile if requested
	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create memory profile: %v\n", err)
		} else {
			defer f.Close()
			runtime.GC() // Run GC before taking memory profile
			if err := pprof.WriteHeapProfile(f); err != nil {
				fmt.Fprintf(os.Stderr, "Could not write memory profile: %v\n", err)
			}
		}
	}
}

// keyMode returns a string describing the key generation mode
func keyMode() string {
	if *sequential {
		return "Sequential"
	}
	return "Random"
}

// bench holds the data shared by the benchmarks so later runs can read what
// earlier runs wrote
type bench struct {
	keys        [][]byte
	value       []byte
	compression block.CompressionType
	collector   *stats.AtomicCollector

	mt    *memtable.MemTable
	block *block.Block
}

func newBench(n, valueSize int, c block.CompressionType) *bench {
	b := &bench{
		keys:        make([][]byte, n),
		value:       bytes.Repeat([]byte("v"), valueSize),
		compression: c,
		collector:   stats.NewAtomicCollector(),
	}
	r := rand.New(rand.NewSource(42))
	for i := range b.keys {
		if *sequential {
			b.keys[i] = []byte(fmt.Sprintf("key-%010d", i))
		} else {
			b.keys[i] = []byte(fmt.Sprintf("key-%016x-%010d", r.Uint64(), i))
		}
	}
	return b
}

func (b *bench) memtableOptions() memtable.Options {
	opts := memtable.DefaultOptions()
	// Room for every entry so no flush is requested mid-run
	opts.WriteBufferSize = int64(len(b.keys)) * int64(len(b.value)+64) * 2
	return opts
}

func (b *bench) result(name string, ops int, elapsed time.Duration) BenchmarkResult {
	secs := elapsed.Seconds()
	r := BenchmarkResult{
		BenchmarkType: name,
		NumKeys:       len(b.keys),
		ValueSize:     len(b.value),
		Mode:          keyMode(),
		Compression:   b.compression.String(),
		Operations:    ops,
		Duration:      secs,
		Timestamp:     time.Now(),
	}
	if secs > 0 && ops > 0 {
		r.Throughput = float64(ops) / secs
		r.Latency = secs * 1e6 / float64(ops)
	}
	return r
}

func (b *bench) runInsert() BenchmarkResult {
	fmt.Println("Running Insert Benchmark...")
	mt := memtable.New(b.memtableOptions(), 0)
	start := time.Now()
	for i, k := range b.keys {
		mt.Add(keys.SeqNum(i+1), keys.KindValue, k, b.value, false)
	}
	elapsed := time.Since(start)
	b.collector.TrackOperationWithLatency(stats.OpPut, uint64(elapsed.Nanoseconds()))
	b.mt = mt
	return b.result("Insert", len(b.keys), elapsed)
}

func (b *bench) runConcurrentInsert(writers int) BenchmarkResult {
	fmt.Printf("Running Concurrent Insert Benchmark (%d writers)...\n", writers)
	if writers < 1 {
		writers = 1
	}
	mt := memtable.New(b.memtableOptions(), 0)

	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < len(b.keys); i += writers {
				mt.Add(keys.SeqNum(i+1), keys.KindValue, b.keys[i], b.value, true)
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)
	if b.mt == nil {
		b.mt = mt
	}
	return b.result("ConcurrentInsert", len(b.keys), elapsed)
}

func (b *bench) ensureMemTable() {
	if b.mt == nil {
		b.runInsert()
	}
}

func (b *bench) runGet() BenchmarkResult {
	b.ensureMemTable()
	fmt.Println("Running Get Benchmark...")

	r := rand.New(rand.NewSource(7))
	hits := 0
	start := time.Now()
	for i := 0; i < len(b.keys); i++ {
		lk := keys.NewLookupKey(b.keys[r.Intn(len(b.keys))], keys.MaxSeqNum)
		if res := b.mt.Get(lk, nil); res.Status == memtable.LookupFound {
			hits++
		}
	}
	elapsed := time.Since(start)
	b.collector.TrackOperationWithLatency(stats.OpGet, uint64(elapsed.Nanoseconds()))

	res := b.result("Get", len(b.keys), elapsed)
	res.HitRate = float64(hits) * 100 / float64(len(b.keys))
	return res
}

func (b *bench) runRange() BenchmarkResult {
	b.ensureMemTable()
	fmt.Println("Running Range Query Benchmark...")

	queries := len(b.keys) / 100
	if queries < 1 {
		queries = 1
	}
	r := rand.New(rand.NewSource(11))
	entries := 0
	start := time.Now()
	for i := 0; i < queries; i++ {
		results := make(map[string]memtable.RangeValue)
		lr := keys.LookupRange{
			Start:      b.keys[r.Intn(len(b.keys))],
			Snapshot:   keys.MaxSeqNum,
			MaxResults: 100,
		}
		if _, err := b.mt.RangeQuery(context.Background(), lr, results); err != nil {
			fmt.Fprintf(os.Stderr, "Range query failed: %v\n", err)
			break
		}
		entries += len(results)
	}
	elapsed := time.Since(start)
	b.collector.TrackOperationWithLatency(stats.OpRangeQuery, uint64(elapsed.Nanoseconds()))

	res := b.result("RangeQuery", queries, elapsed)
	if secs := elapsed.Seconds(); secs > 0 {
		res.EntriesPerSec = float64(entries) / secs
	}
	return res
}

func (b *bench) runBlockBuild() BenchmarkResult {
	b.ensureMemTable()
	fmt.Println("Running Block Build Benchmark...")

	start := time.Now()
	builder := block.NewBuilder(b.mt.Comparator(), *restartInterval)
	it := b.mt.NewIterator()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if err := builder.Add(it.Key(), it.Value()); err != nil {
			fmt.Fprintf(os.Stderr, "Block build failed: %v\n", err)
			break
		}
	}
	var buf bytes.Buffer
	if _, err := builder.FinishTo(&buf, b.compression); err != nil {
		fmt.Fprintf(os.Stderr, "Block finish failed: %v\n", err)
	}
	blk, err := block.Open(context.Background(), buf.Bytes(), block.ReadOptions{VerifyChecksum: true, Stats: b.collector})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Block open failed: %v\n", err)
	}
	elapsed := time.Since(start)
	b.block = blk

	fmt.Printf("  block: %d entries, %d raw bytes, %d physical bytes\n",
		builder.Entries(), builder.EstimatedSize(), buf.Len())
	return b.result("BlockBuild", builder.Entries(), elapsed)
}

func (b *bench) ensureBlock() bool {
	if b.block == nil {
		b.runBlockBuild()
	}
	return b.block != nil
}

func (b *bench) runBlockSeek() BenchmarkResult {
	if !b.ensureBlock() {
		return b.result("BlockSeek", 0, 0)
	}
	fmt.Println("Running Block Seek Benchmark...")

	cmp := b.mt.Comparator()
	it := b.block.NewIterator(cmp)
	r := rand.New(rand.NewSource(13))
	hits := 0
	start := time.Now()
	for i := 0; i < len(b.keys); i++ {
		lk := keys.NewLookupKey(b.keys[r.Intn(len(b.keys))], keys.MaxSeqNum)
		if it.Seek(lk.InternalKey()) && cmp.CompareUserKeys(keys.ExtractUserKey(it.Key()), lk.UserKey()) == 0 {
			hits++
		}
	}
	elapsed := time.Since(start)
	b.collector.TrackOperationWithLatency(stats.OpBlockSeek, uint64(elapsed.Nanoseconds()))

	res := b.result("BlockSeek", len(b.keys), elapsed)
	res.HitRate = float64(hits) * 100 / float64(len(b.keys))
	return res
}

func (b *bench) runBlockScan() BenchmarkResult {
	if !b.ensureBlock() {
		return b.result("BlockScan", 0, 0)
	}
	fmt.Println("Running Block Scan Benchmark...")

	it := b.block.NewIterator(b.mt.Comparator())
	entries := 0
	start := time.Now()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		entries++
	}
	for it.SeekToLast(); it.Valid(); it.Prev() {
		entries++
	}
	elapsed := time.Since(start)
	b.collector.TrackOperationWithLatency(stats.OpScan, uint64(elapsed.Nanoseconds()))

	res := b.result("BlockScan", entries, elapsed)
	if secs := elapsed.Seconds(); secs > 0 {
		res.EntriesPerSec = float64(entries) / secs
	}
	return res
}
