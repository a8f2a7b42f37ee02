package block

import (
	"context"
	"time"

	"github.com/KevoDB/lsmcore/pkg/common/iterator"
	"github.com/KevoDB/lsmcore/pkg/common/keys"
	"github.com/KevoDB/lsmcore/pkg/common/log"
	"github.com/KevoDB/lsmcore/pkg/config"
	"github.com/KevoDB/lsmcore/pkg/stats"
	"github.com/KevoDB/lsmcore/pkg/telemetry"
)

// ReadOptions controls how a physical block is opened
type ReadOptions struct {
	VerifyChecksum bool
	Metrics        Metrics
	Stats          stats.Collector
	Logger         log.Logger
}

// ReadOptionsFromConfig derives read options from the engine configuration
func ReadOptionsFromConfig(cfg *config.Config) ReadOptions {
	return ReadOptions{VerifyChecksum: cfg.VerifyChecksums}
}

func (o *ReadOptions) withDefaults() {
	if o.Metrics == nil {
		o.Metrics = NewNoopMetrics()
	}
	if o.Logger == nil {
		o.Logger = log.NewNopLogger()
	}
}

// Open decodes a physical block (contents plus trailer) into a Block. Open
// fails on a bad trailer, a checksum mismatch or an unusable restart footer.
func Open(ctx context.Context, physical []byte, opts ReadOptions) (*Block, error) {
	opts.withDefaults()
	start := time.Now()

	data, c, err := DecodeContents(physical, opts.VerifyChecksum)
	if err == nil {
		b := NewBlock(data)
		if err = b.Err(); err == nil {
			elapsed := time.Since(start)
			opts.Metrics.RecordDecode(ctx, c, int64(len(physical)), int64(len(data)), elapsed, telemetry.StatusSuccess)
			if opts.Stats != nil {
				opts.Stats.TrackOperationWithLatency(stats.OpBlockOpen, uint64(elapsed.Nanoseconds()))
				opts.Stats.TrackBytes(false, uint64(len(physical)))
			}
			return b, nil
		}
	}

	opts.Metrics.RecordDecode(ctx, c, int64(len(physical)), 0, time.Since(start), telemetry.StatusError)
	opts.Metrics.RecordCorruption(ctx, "decode")
	if opts.Stats != nil {
		opts.Stats.TrackError("block_corruption")
	}
	opts.Logger.Warn("failed to open block of %d bytes: %v", len(physical), err)
	return nil, err
}

// Seek opens an iterator over b, positions it at target and records the seek.
// The returned iterator is positioned even when found is false, so callers
// can inspect Status.
func Seek(ctx context.Context, b *Block, cmp keys.Compare, target []byte, opts ReadOptions) (it iterator.Iterator, found bool) {
	opts.withDefaults()
	start := time.Now()

	it = b.NewIterator(cmp)
	found = it.Seek(target)

	elapsed := time.Since(start)
	opts.Metrics.RecordSeek(ctx, elapsed, found)
	if opts.Stats != nil {
		opts.Stats.TrackOperationWithLatency(stats.OpBlockSeek, uint64(elapsed.Nanoseconds()))
	}
	if err := it.Status(); err != nil {
		opts.Metrics.RecordCorruption(ctx, "entry")
		if opts.Stats != nil {
			opts.Stats.TrackError("block_corruption")
		}
	}
	return it, found
}
