// Package testutil provides fixtures for cache and executor tests: an
// in-memory chunk Translator with call accounting, and column builders.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/segcore/cachelayer"
	"github.com/hupe1980/segcore/column"
	"github.com/hupe1980/segcore/model"
)

// ChunkTranslator serves chunks from memory and records every GetCells
// call, so tests can assert single-load and batching behavior.
type ChunkTranslator struct {
	key    string
	chunks []*column.Chunk
	meta   cachelayer.Meta

	// Extra maps a requested cid to bonus cids returned alongside it,
	// mimicking loaders that over-read.
	Extra map[int][]int
	// Err, when set, fails every GetCells call.
	Err error
	// Delay stalls GetCells to widen concurrency windows in tests.
	Delay time.Duration

	mu    sync.Mutex
	calls [][]int
}

var _ cachelayer.Translator[*column.Chunk] = (*ChunkTranslator)(nil)

// NewChunkTranslator builds a translator over the given chunks.
func NewChunkTranslator(key string, meta cachelayer.Meta, chunks ...*column.Chunk) *ChunkTranslator {
	return &ChunkTranslator{key: key, meta: meta, chunks: chunks}
}

// NumCells returns the chunk count.
func (t *ChunkTranslator) NumCells() int { return len(t.chunks) }

// Key identifies the translator.
func (t *ChunkTranslator) Key() string { return t.key }

// Meta returns the configured slot properties.
func (t *ChunkTranslator) Meta() *cachelayer.Meta { return &t.meta }

// EstimatedByteSizeOfCell reports the chunk's actual size as the estimate.
func (t *ChunkTranslator) EstimatedByteSizeOfCell(cid int) cachelayer.ResourceUsage {
	size := t.chunks[cid].ByteSize()
	if t.meta.StorageType == cachelayer.StorageDisk {
		return cachelayer.ResourceUsage{DiskBytes: size}
	}
	return cachelayer.ResourceUsage{MemoryBytes: size}
}

// CellIDOf is the identity mapping.
func (t *ChunkTranslator) CellIDOf(uid int64) int { return int(uid) }

// GetCells returns the requested chunks plus any configured bonus cells.
func (t *ChunkTranslator) GetCells(ctx context.Context, cids []int) ([]cachelayer.LoadedCell[*column.Chunk], error) {
	t.mu.Lock()
	recorded := make([]int, len(cids))
	copy(recorded, cids)
	t.calls = append(t.calls, recorded)
	t.mu.Unlock()

	if t.Delay > 0 {
		select {
		case <-time.After(t.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if t.Err != nil {
		return nil, t.Err
	}

	seen := make(map[int]struct{})
	var out []cachelayer.LoadedCell[*column.Chunk]
	add := func(cid int) error {
		if _, ok := seen[cid]; ok {
			return nil
		}
		if cid < 0 || cid >= len(t.chunks) {
			return fmt.Errorf("%w: cell %d", model.ErrOutOfRange, cid)
		}
		seen[cid] = struct{}{}
		out = append(out, cachelayer.LoadedCell[*column.Chunk]{CID: cid, Cell: t.chunks[cid]})
		return nil
	}
	for _, cid := range cids {
		if err := add(cid); err != nil {
			return nil, err
		}
		for _, bonus := range t.Extra[cid] {
			if err := add(bonus); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Calls returns a copy of every recorded GetCells argument list.
func (t *ChunkTranslator) Calls() [][]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]int, len(t.calls))
	for i, c := range t.calls {
		out[i] = append([]int(nil), c...)
	}
	return out
}

// NewColumn wires chunks into a cache-backed column over a fresh slot.
func NewColumn(budget *cachelayer.Budget, typ model.DataType, chunks ...*column.Chunk) (*column.CachedColumn, *ChunkTranslator) {
	tr := NewChunkTranslator(fmt.Sprintf("test/%s", typ), cachelayer.Meta{
		CellIDMode: cachelayer.CellIDIdentical,
	}, chunks...)
	slot := cachelayer.NewSlot[*column.Chunk](tr, budget)
	rows := make([]int, len(chunks))
	for i, ch := range chunks {
		rows[i] = ch.Rows()
	}
	col, err := column.NewCachedColumn(typ, slot, rows)
	if err != nil {
		panic(err)
	}
	return col, tr
}

// BigBudget returns a budget no test fixture will exhaust.
func BigBudget() *cachelayer.Budget {
	return cachelayer.NewBudget(cachelayer.ResourceUsage{
		MemoryBytes: 1 << 40,
		DiskBytes:   1 << 40,
	})
}
