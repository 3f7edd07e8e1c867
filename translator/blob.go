// Package translator provides Translator implementations for the cache
// layer. The blob translator reads cell blocks out of an immutable blob:
// a manifest names each cell's block (offset, compressed length, raw size),
// blocks are fetched concurrently and decompressed, and a decode hook turns
// raw bytes into the slot's payload type.
package translator

import (
	"context"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/segcore/blobstore"
	"github.com/hupe1980/segcore/cachelayer"
	"github.com/hupe1980/segcore/model"
)

// Codec identifies the block compression of a blob.
type Codec uint8

const (
	// CodecNone stores blocks uncompressed.
	CodecNone Codec = iota
	// CodecLZ4 compresses blocks with lz4 block format.
	CodecLZ4
	// CodecZstd compresses blocks with zstandard.
	CodecZstd
)

// CellRange locates one cell's block inside the blob.
type CellRange struct {
	Offset  int64
	Length  int64 // stored (possibly compressed) length
	RawSize int64 // uncompressed payload size
}

// Manifest describes the cell layout of a blob.
type Manifest struct {
	Codec Codec
	Cells []CellRange
}

// DecodeFunc turns a cell's raw bytes into the payload type.
type DecodeFunc[T cachelayer.Sized] func(cid int, raw []byte) (T, error)

// Blob is a Translator that loads cells from a blobstore blob.
type Blob[T cachelayer.Sized] struct {
	key      string
	blob     blobstore.Blob
	manifest Manifest
	meta     cachelayer.Meta
	decode   DecodeFunc[T]

	concurrency int
	limiter     *rate.Limiter
	zdec        *zstd.Decoder
}

// BlobOption customizes a blob translator.
type BlobOption func(*blobConfig)

type blobConfig struct {
	concurrency int
	ioLimit     int
}

// WithFetchConcurrency bounds the number of parallel block fetches.
func WithFetchConcurrency(n int) BlobOption {
	return func(c *blobConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithIOLimit throttles block fetches to bytesPerSec.
func WithIOLimit(bytesPerSec int) BlobOption {
	return func(c *blobConfig) {
		c.ioLimit = bytesPerSec
	}
}

// NewBlob builds a blob translator. meta controls the storage tier, warmup
// and id mapping the owning slot applies.
func NewBlob[T cachelayer.Sized](key string, blob blobstore.Blob, manifest Manifest,
	meta cachelayer.Meta, decode DecodeFunc[T], opts ...BlobOption) (*Blob[T], error) {
	cfg := blobConfig{concurrency: 8}
	for _, opt := range opts {
		opt(&cfg)
	}

	t := &Blob[T]{
		key:         key,
		blob:        blob,
		manifest:    manifest,
		meta:        meta,
		decode:      decode,
		concurrency: cfg.concurrency,
	}
	if cfg.ioLimit > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.ioLimit), cfg.ioLimit)
	}
	if manifest.Codec == CodecZstd {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		t.zdec = dec
	}
	return t, nil
}

var _ cachelayer.Translator[*RawCell] = (*Blob[*RawCell])(nil)

// NumCells returns the number of cells in the manifest.
func (t *Blob[T]) NumCells() int { return len(t.manifest.Cells) }

// Key identifies the blob in logs and errors.
func (t *Blob[T]) Key() string { return t.key }

// Meta returns the static slot properties.
func (t *Blob[T]) Meta() *cachelayer.Meta { return &t.meta }

// EstimatedByteSizeOfCell charges the uncompressed size against the tier
// the blob occupies.
func (t *Blob[T]) EstimatedByteSizeOfCell(cid int) cachelayer.ResourceUsage {
	raw := t.manifest.Cells[cid].RawSize
	if t.meta.StorageType == cachelayer.StorageDisk {
		return cachelayer.ResourceUsage{DiskBytes: raw}
	}
	return cachelayer.ResourceUsage{MemoryBytes: raw}
}

// CellIDOf is the identity mapping; custom mappings wrap this translator.
func (t *Blob[T]) CellIDOf(uid int64) int { return int(uid) }

// GetCells fetches, decompresses and decodes the requested blocks, bounded
// by the fetch concurrency and the optional IO limit.
func (t *Blob[T]) GetCells(ctx context.Context, cids []int) ([]cachelayer.LoadedCell[T], error) {
	results := make([]cachelayer.LoadedCell[T], 0, len(cids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for _, cid := range cids {
		g.Go(func() error {
			cell, err := t.loadCell(gctx, cid)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, cachelayer.LoadedCell[T]{CID: cid, Cell: cell})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (t *Blob[T]) loadCell(ctx context.Context, cid int) (T, error) {
	var zero T
	if cid < 0 || cid >= len(t.manifest.Cells) {
		return zero, fmt.Errorf("%w: cell %d of %d", model.ErrOutOfRange, cid, len(t.manifest.Cells))
	}
	r := t.manifest.Cells[cid]

	if t.limiter != nil {
		if err := t.limiter.WaitN(ctx, int(r.Length)); err != nil {
			return zero, err
		}
	}

	buf := make([]byte, r.Length)
	if _, err := t.blob.ReadAt(ctx, buf, r.Offset); err != nil {
		return zero, fmt.Errorf("%w: cell %d of %q: %v", model.ErrFileReadFailed, cid, t.key, err)
	}

	raw, err := t.decompress(buf, r.RawSize)
	if err != nil {
		return zero, fmt.Errorf("cell %d of %q: %w", cid, t.key, err)
	}
	return t.decode(cid, raw)
}

func (t *Blob[T]) decompress(block []byte, rawSize int64) ([]byte, error) {
	switch t.manifest.Codec {
	case CodecNone:
		return block, nil
	case CodecLZ4:
		if int64(len(block)) == rawSize {
			// Incompressible block stored raw (see BuildBlob).
			return block, nil
		}
		raw := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(block, raw)
		if err != nil {
			return nil, err
		}
		return raw[:n], nil
	case CodecZstd:
		return t.zdec.DecodeAll(block, make([]byte, 0, rawSize))
	default:
		return nil, fmt.Errorf("%w: codec %d", model.ErrInvalidParameter, t.manifest.Codec)
	}
}

// RawCell is the plain-bytes payload for slots that cache raw blocks.
type RawCell struct {
	Data []byte
}

// ByteSize reports the payload size.
func (c *RawCell) ByteSize() int64 { return int64(len(c.Data)) }

// DecodeRaw is the identity DecodeFunc.
func DecodeRaw(_ int, raw []byte) (*RawCell, error) {
	return &RawCell{Data: raw}, nil
}

// BuildBlob compresses the given cell payloads into one blob image and the
// matching manifest. Used by segment writers and tests.
func BuildBlob(codec Codec, cells [][]byte) ([]byte, Manifest, error) {
	manifest := Manifest{Codec: codec, Cells: make([]CellRange, 0, len(cells))}
	var out []byte

	var zenc *zstd.Encoder
	if codec == CodecZstd {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, Manifest{}, err
		}
		zenc = enc
		defer zenc.Close()
	}

	for _, raw := range cells {
		var block []byte
		switch codec {
		case CodecNone:
			block = raw
		case CodecLZ4:
			dst := make([]byte, lz4.CompressBlockBound(len(raw)))
			n, err := lz4.CompressBlock(raw, dst, nil)
			if err != nil {
				return nil, Manifest{}, err
			}
			if n == 0 {
				// Incompressible block; lz4 block format cannot represent
				// it, store raw with Length == RawSize as the marker.
				block = raw
			} else {
				block = dst[:n]
			}
		case CodecZstd:
			block = zenc.EncodeAll(raw, nil)
		default:
			return nil, Manifest{}, fmt.Errorf("%w: codec %d", model.ErrInvalidParameter, codec)
		}
		manifest.Cells = append(manifest.Cells, CellRange{
			Offset:  int64(len(out)),
			Length:  int64(len(block)),
			RawSize: int64(len(raw)),
		})
		out = append(out, block...)
	}
	return out, manifest, nil
}
