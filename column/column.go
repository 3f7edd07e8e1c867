// Package column exposes read-only chunked columns whose chunks live in the
// tiered cache. Every accessor returns data through pinned chunk views, so
// the bytes are resident and budget-accounted for the duration of the call.
package column

import (
	"context"
	"fmt"
	"sort"

	"github.com/hupe1980/segcore/cachelayer"
	"github.com/hupe1980/segcore/model"
)

// ChunkedColumn is the read surface the predicate executor scans through.
//
// Bulk accessors iterate externally supplied offsets and invoke fn with the
// iteration index i (the position within offsets) and the row's value and
// validity. BulkRawStringAt and BulkIsValid also accept nil offsets to mean
// "iterate all rows". Bulk operations unsupported for the column's type
// fail with model.ErrUnsupported.
type ChunkedColumn interface {
	DataType() model.DataType
	NumChunks() int
	NumRows() int
	// ChunkRowNums returns the number of rows of chunk i.
	ChunkRowNums(i int) int
	// NumRowsUntilChunk returns the number of rows in chunks [0, i).
	NumRowsUntilChunk(i int) int
	// GetChunk pins the chunk's cells and returns a pinned view.
	GetChunk(ctx context.Context, i int) (cachelayer.PinWrapper[*Chunk], error)

	// BulkValueAt yields each offset's row as a model.Value.
	BulkValueAt(ctx context.Context, fn func(i int, v model.Value, valid bool), offsets []int32) error
	// BulkPrimitiveValueAt is BulkValueAt restricted to primitive columns.
	BulkPrimitiveValueAt(ctx context.Context, fn func(i int, v model.Value, valid bool), offsets []int32) error
	// BulkVectorValueAt yields single float vectors; unsupported for every
	// type this engine evaluates (vector columns are scanned elsewhere).
	BulkVectorValueAt(ctx context.Context, fn func(i int, vec []float32, valid bool), offsets []int32) error
	// BulkRawStringAt yields raw strings. offsets may be nil for all rows.
	BulkRawStringAt(ctx context.Context, fn func(i int, s string, valid bool), offsets []int32) error
	// BulkRawJSONAt yields raw JSON documents.
	BulkRawJSONAt(ctx context.Context, fn func(i int, doc []byte, valid bool), offsets []int32) error
	// BulkArrayAt yields array rows.
	BulkArrayAt(ctx context.Context, fn func(i int, v ArrayValue, valid bool), offsets []int32) error
	// BulkVectorArrayAt yields vector-array rows.
	BulkVectorArrayAt(ctx context.Context, fn func(i int, vecs [][]float32, valid bool), offsets []int32) error
	// BulkIsValid yields row validity. offsets may be nil for all rows.
	BulkIsValid(ctx context.Context, fn func(i int, valid bool), offsets []int32) error

	// GetChunkIDsByOffsets maps global row offsets to (chunk id, in-chunk
	// offset) pairs.
	GetChunkIDsByOffsets(offsets []int32) (chunkIDs []int, inChunk []int32, err error)
}

// CachedColumn is a ChunkedColumn whose chunks are cells of a cache slot,
// one cell per chunk.
type CachedColumn struct {
	typ       model.DataType
	slot      *cachelayer.Slot[*Chunk]
	rowCounts []int
	prefix    []int // prefix[i] = rows in chunks [0, i)
	numRows   int
}

var _ ChunkedColumn = (*CachedColumn)(nil)

// NewCachedColumn builds a column over slot. rowCounts gives the row count
// of each chunk and must match the slot's cell count.
func NewCachedColumn(typ model.DataType, slot *cachelayer.Slot[*Chunk], rowCounts []int) (*CachedColumn, error) {
	if slot.NumCells() != len(rowCounts) {
		return nil, fmt.Errorf("%w: %d chunks vs %d cells in slot %q",
			model.ErrInvalidParameter, len(rowCounts), slot.NumCells(), slot.Key())
	}
	prefix := make([]int, len(rowCounts)+1)
	for i, n := range rowCounts {
		prefix[i+1] = prefix[i] + n
	}
	return &CachedColumn{
		typ:       typ,
		slot:      slot,
		rowCounts: rowCounts,
		prefix:    prefix,
		numRows:   prefix[len(rowCounts)],
	}, nil
}

// DataType returns the column's element type.
func (c *CachedColumn) DataType() model.DataType { return c.typ }

// NumChunks returns the number of chunks.
func (c *CachedColumn) NumChunks() int { return len(c.rowCounts) }

// NumRows returns the total row count.
func (c *CachedColumn) NumRows() int { return c.numRows }

// ChunkRowNums returns the number of rows of chunk i.
func (c *CachedColumn) ChunkRowNums(i int) int { return c.rowCounts[i] }

// NumRowsUntilChunk returns the number of rows in chunks [0, i).
func (c *CachedColumn) NumRowsUntilChunk(i int) int { return c.prefix[i] }

// GetChunk pins chunk i and returns the pinned view.
func (c *CachedColumn) GetChunk(ctx context.Context, i int) (cachelayer.PinWrapper[*Chunk], error) {
	if i < 0 || i >= len(c.rowCounts) {
		return cachelayer.PinWrapper[*Chunk]{}, fmt.Errorf("%w: chunk %d of %d",
			model.ErrOutOfRange, i, len(c.rowCounts))
	}
	acc, err := c.slot.PinCells(ctx, []int64{int64(i)}, cachelayer.DefaultPinTimeout)
	if err != nil {
		return cachelayer.PinWrapper[*Chunk]{}, err
	}
	return cachelayer.NewPinWrapper(acc, acc.GetIthCell(i)), nil
}

// GetChunkIDsByOffsets maps global row offsets to (chunk, in-chunk) pairs.
func (c *CachedColumn) GetChunkIDsByOffsets(offsets []int32) ([]int, []int32, error) {
	chunkIDs := make([]int, len(offsets))
	inChunk := make([]int32, len(offsets))
	for i, off := range offsets {
		cid, in, err := c.locate(off)
		if err != nil {
			return nil, nil, err
		}
		chunkIDs[i] = cid
		inChunk[i] = in
	}
	return chunkIDs, inChunk, nil
}

func (c *CachedColumn) locate(off int32) (int, int32, error) {
	if off < 0 || int(off) >= c.numRows {
		return 0, 0, fmt.Errorf("%w: row offset %d of %d", model.ErrOutOfRange, off, c.numRows)
	}
	// First chunk whose prefix end exceeds off.
	cid := sort.Search(len(c.rowCounts), func(i int) bool {
		return c.prefix[i+1] > int(off)
	})
	return cid, off - int32(c.prefix[cid]), nil
}

// pinForOffsets pins every chunk the offsets touch. nil offsets pins all.
func (c *CachedColumn) pinForOffsets(ctx context.Context, offsets []int32) (*cachelayer.CellAccessor[*Chunk], error) {
	if offsets == nil {
		return c.slot.PinAllCells(ctx, cachelayer.DefaultPinTimeout)
	}
	uids := make([]int64, 0, len(offsets))
	for _, off := range offsets {
		cid, _, err := c.locate(off)
		if err != nil {
			return nil, err
		}
		uids = append(uids, int64(cid))
	}
	return c.slot.PinCells(ctx, uids, cachelayer.DefaultPinTimeout)
}

// forEach iterates offsets (or all rows when offsets is nil and allowAll),
// invoking visit with the pinned chunk and in-chunk row.
func (c *CachedColumn) forEach(ctx context.Context, offsets []int32, allowAll bool,
	visit func(i int, ch *Chunk, row int)) error {
	if offsets == nil && !allowAll {
		return fmt.Errorf("%w: nil offsets", model.ErrInvalidParameter)
	}
	acc, err := c.pinForOffsets(ctx, offsets)
	if err != nil {
		return err
	}
	defer acc.Release()

	if offsets == nil {
		i := 0
		for cid := range c.rowCounts {
			ch := acc.GetIthCell(cid)
			for row := 0; row < ch.Rows(); row++ {
				visit(i, ch, row)
				i++
			}
		}
		return nil
	}
	for i, off := range offsets {
		cid, in, _ := c.locate(off)
		visit(i, acc.GetIthCell(cid), int(in))
	}
	return nil
}

// BulkValueAt yields each offset's row as a model.Value.
func (c *CachedColumn) BulkValueAt(ctx context.Context, fn func(i int, v model.Value, valid bool), offsets []int32) error {
	if c.typ == model.DataTypeVectorArray {
		return fmt.Errorf("%w: BulkValueAt on %s column", model.ErrUnsupported, c.typ)
	}
	return c.forEach(ctx, offsets, false, func(i int, ch *Chunk, row int) {
		fn(i, ch.ValueAt(row), ch.IsValid(row))
	})
}

// BulkPrimitiveValueAt is BulkValueAt restricted to primitive columns.
func (c *CachedColumn) BulkPrimitiveValueAt(ctx context.Context, fn func(i int, v model.Value, valid bool), offsets []int32) error {
	switch c.typ {
	case model.DataTypeBool, model.DataTypeInt8, model.DataTypeInt16, model.DataTypeInt32,
		model.DataTypeInt64, model.DataTypeFloat, model.DataTypeDouble, model.DataTypeVarChar:
	default:
		return fmt.Errorf("%w: BulkPrimitiveValueAt on %s column", model.ErrUnsupported, c.typ)
	}
	return c.forEach(ctx, offsets, false, func(i int, ch *Chunk, row int) {
		fn(i, ch.ValueAt(row), ch.IsValid(row))
	})
}

// BulkVectorValueAt is unsupported for every type this engine evaluates.
func (c *CachedColumn) BulkVectorValueAt(_ context.Context, _ func(i int, vec []float32, valid bool), _ []int32) error {
	return fmt.Errorf("%w: BulkVectorValueAt on %s column", model.ErrUnsupported, c.typ)
}

// BulkRawStringAt yields raw strings. offsets may be nil for all rows.
func (c *CachedColumn) BulkRawStringAt(ctx context.Context, fn func(i int, s string, valid bool), offsets []int32) error {
	if c.typ != model.DataTypeVarChar {
		return fmt.Errorf("%w: BulkRawStringAt on %s column", model.ErrUnsupported, c.typ)
	}
	return c.forEach(ctx, offsets, true, func(i int, ch *Chunk, row int) {
		valid := ch.IsValid(row)
		s := ""
		if valid {
			s = ch.StringAt(row)
		}
		fn(i, s, valid)
	})
}

// BulkRawJSONAt yields raw JSON documents.
func (c *CachedColumn) BulkRawJSONAt(ctx context.Context, fn func(i int, doc []byte, valid bool), offsets []int32) error {
	if c.typ != model.DataTypeJSON {
		return fmt.Errorf("%w: BulkRawJSONAt on %s column", model.ErrUnsupported, c.typ)
	}
	return c.forEach(ctx, offsets, false, func(i int, ch *Chunk, row int) {
		valid := ch.IsValid(row)
		var doc []byte
		if valid {
			doc = ch.JSONAt(row)
		}
		fn(i, doc, valid)
	})
}

// BulkArrayAt yields array rows.
func (c *CachedColumn) BulkArrayAt(ctx context.Context, fn func(i int, v ArrayValue, valid bool), offsets []int32) error {
	if c.typ != model.DataTypeArray {
		return fmt.Errorf("%w: BulkArrayAt on %s column", model.ErrUnsupported, c.typ)
	}
	return c.forEach(ctx, offsets, false, func(i int, ch *Chunk, row int) {
		valid := ch.IsValid(row)
		var v ArrayValue
		if valid {
			v = ch.ArrayAt(row)
		}
		fn(i, v, valid)
	})
}

// BulkVectorArrayAt yields vector-array rows.
func (c *CachedColumn) BulkVectorArrayAt(ctx context.Context, fn func(i int, vecs [][]float32, valid bool), offsets []int32) error {
	if c.typ != model.DataTypeVectorArray {
		return fmt.Errorf("%w: BulkVectorArrayAt on %s column", model.ErrUnsupported, c.typ)
	}
	return c.forEach(ctx, offsets, false, func(i int, ch *Chunk, row int) {
		valid := ch.IsValid(row)
		var vecs [][]float32
		if valid {
			vecs = ch.VectorArrayAt(row)
		}
		fn(i, vecs, valid)
	})
}

// BulkIsValid yields row validity. offsets may be nil for all rows.
func (c *CachedColumn) BulkIsValid(ctx context.Context, fn func(i int, valid bool), offsets []int32) error {
	return c.forEach(ctx, offsets, true, func(i int, ch *Chunk, row int) {
		fn(i, ch.IsValid(row))
	})
}
