package block

import (
	"fmt"
	"testing"
)

func benchBlock(b *testing.B, n int) (*Block, [][]byte) {
	b.Helper()
	builder := NewBuilder(testCmp, DefaultRestartInterval)
	keys := make([][]byte, n)
	for i := 0; i < n; i++ {
		keys[i] = []byte(fmt.Sprintf("key%08d", i))
		if err := builder.Add(keys[i], []byte(fmt.Sprintf("value%08d", i))); err != nil {
			b.Fatalf("Failed to add: %v", err)
		}
	}
	return NewBlock(builder.Finish()), keys
}

func BenchmarkBlockSeek(b *testing.B) {
	blk, keys := benchBlock(b, 4096)
	it, _ := blk.NewIter(testCmp)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !it.Seek(keys[i%len(keys)]) {
			b.Fatalf("seek missed")
		}
	}
}

func BenchmarkBlockScan(b *testing.B) {
	blk, _ := benchBlock(b, 4096)
	it, _ := blk.NewIter(testCmp)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for it.SeekToFirst(); it.Valid(); it.Next() {
		}
	}
}

func BenchmarkBlockPrev(b *testing.B) {
	blk, _ := benchBlock(b, 4096)
	it, _ := blk.NewIter(testCmp)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for it.SeekToLast(); it.Valid(); it.Prev() {
		}
	}
}

func BenchmarkEncodeContents(b *testing.B) {
	builder := NewBuilder(testCmp, DefaultRestartInterval)
	for i := 0; i < 1024; i++ {
		builder.Add([]byte(fmt.Sprintf("key%08d", i)), []byte("value-value-value-value"))
	}
	raw := builder.Finish()

	for _, c := range []CompressionType{NoCompression, SnappyCompression, ZstdCompression} {
		b.Run(c.String(), func(b *testing.B) {
			b.SetBytes(int64(len(raw)))
			for i := 0; i < b.N; i++ {
				if _, err := EncodeContents(raw, c); err != nil {
					b.Fatalf("encode failed: %v", err)
				}
			}
		})
	}
}
