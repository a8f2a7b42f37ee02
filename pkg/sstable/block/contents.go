package block

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// CompressionType is the codec tag stored in a block trailer. The values are
// part of the on-disk format.
type CompressionType uint8

const (
	NoCompression     CompressionType = 0
	SnappyCompression CompressionType = 1
	ZstdCompression   CompressionType = 7
)

// TrailerSize is the size of the compression tag plus checksum that follows
// the block bytes on disk
const TrailerSize = 1 + 8

// ErrUnknownCompression is returned for a compression name or tag with no
// codec
var ErrUnknownCompression = errors.New("unknown compression type")

func (c CompressionType) String() string {
	switch c {
	case NoCompression:
		return "none"
	case SnappyCompression:
		return "snappy"
	case ZstdCompression:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression maps a configured compression name to its type
func ParseCompression(name string) (CompressionType, error) {
	switch name {
	case "", "none":
		return NoCompression, nil
	case "snappy":
		return SnappyCompression, nil
	case "zstd":
		return ZstdCompression, nil
	default:
		return 0, errors.Wrapf(ErrUnknownCompression, "%q", name)
	}
}

// The zstd codecs are safe for concurrent EncodeAll and DecodeAll calls
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCodecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			zstdErr = errors.Wrap(zstdErr, "failed to create ZSTD encoder")
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
		if zstdErr != nil {
			zstdEncoder.Close()
			zstdErr = errors.Wrap(zstdErr, "failed to create ZSTD decoder")
		}
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

func checksum(data []byte, c CompressionType) uint64 {
	d := xxhash.New()
	d.Write(data)
	d.Write([]byte{byte(c)})
	return d.Sum64()
}

// EncodeContents compresses raw block bytes with c and appends the trailer.
// Compression that saves less than an eighth of the input is discarded and
// the block is stored uncompressed.
func EncodeContents(raw []byte, c CompressionType) ([]byte, error) {
	var data []byte
	switch c {
	case NoCompression:
	case SnappyCompression:
		data = snappy.Encode(nil, raw)
	case ZstdCompression:
		enc, _, err := zstdCodecs()
		if err != nil {
			return nil, err
		}
		data = enc.EncodeAll(raw, nil)
	default:
		return nil, errors.Wrapf(ErrUnknownCompression, "%v", c)
	}
	if c == NoCompression || len(data) >= len(raw)-len(raw)/8 {
		data, c = raw, NoCompression
	}

	out := make([]byte, 0, len(data)+TrailerSize)
	out = append(out, data...)
	out = append(out, byte(c))
	return binary.LittleEndian.AppendUint64(out, checksum(data, c)), nil
}

// DecodeContents strips the trailer from a physical block, optionally
// verifies its checksum, and returns the decompressed block bytes. An
// uncompressed result aliases physical.
func DecodeContents(physical []byte, verify bool) ([]byte, CompressionType, error) {
	if len(physical) < TrailerSize {
		return nil, 0, corruptionErrorf("block contents truncated: %d bytes", len(physical))
	}
	n := len(physical) - TrailerSize
	data := physical[:n:n]
	c := CompressionType(physical[n])
	if verify {
		want := binary.LittleEndian.Uint64(physical[n+1:])
		if got := checksum(data, c); got != want {
			return nil, c, corruptionErrorf("block checksum mismatch: expected %x, got %x", want, got)
		}
	}

	switch c {
	case NoCompression:
		return data, c, nil
	case SnappyCompression:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, c, corruptionErrorf("invalid snappy block: %v", err)
		}
		return out, c, nil
	case ZstdCompression:
		_, dec, err := zstdCodecs()
		if err != nil {
			return nil, c, err
		}
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, c, corruptionErrorf("invalid zstd block: %v", err)
		}
		return out, c, nil
	default:
		return nil, c, corruptionErrorf("unknown block compression type %d", uint8(c))
	}
}
