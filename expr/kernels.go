package expr

import (
	"cmp"
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/segcore/column"
	"github.com/hupe1980/segcore/internal/bitset"
	"github.com/hupe1980/segcore/model"
)

// execDataScan brute-forces the batch over the column's chunks. Output bits
// are written sequentially at the processed cursor; an optional upstream
// bitmap input gates row processing (gated-off rows keep their
// pre-initialized bits: match 0, valid 1).
func (e *UnaryFilter) execDataScan(ctx context.Context, batch int) (*Result, error) {
	if err := e.initArg(); err != nil {
		return nil, err
	}
	if res, done, err := e.preCheckOverflow(ctx, batch, nil); done || err != nil {
		return res, err
	}

	switch e.dataType {
	case model.DataTypeArray:
		return e.execArrayScan(ctx, batch)
	case model.DataTypeJSON:
		return e.execJSONScan(ctx, batch)
	case model.DataTypeVectorArray:
		return nil, fmt.Errorf("%w: unary predicate over %s", model.ErrUnsupported, e.dataType)
	}

	res := &Result{Match: bitset.New(batch), Valid: bitset.NewFull(batch)}
	err := e.forEachChunkRange(ctx, batch, func(ch *column.Chunk, from, to, out, abs int) error {
		return e.scanChunk(ch, from, to, out, abs, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// forEachChunkRange walks the chunks overlapping the current batch window,
// pinning each chunk for the duration of its visit. out is the output bit
// position of row `from`; abs is its global row id.
func (e *UnaryFilter) forEachChunkRange(ctx context.Context, batch int,
	visit func(ch *column.Chunk, from, to, out, abs int) error) error {
	start, end := e.batchRange(batch)
	for cid := 0; cid < e.col.NumChunks(); cid++ {
		chunkStart := e.col.NumRowsUntilChunk(cid)
		chunkEnd := chunkStart + e.col.ChunkRowNums(cid)
		lo := max(start, chunkStart)
		hi := min(end, chunkEnd)
		if lo >= hi {
			continue
		}
		pw, err := e.col.GetChunk(ctx, cid)
		if err != nil {
			return err
		}
		err = visit(pw.Get(), lo-chunkStart, hi-chunkStart, lo-start, lo)
		pw.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

// gated reports whether the row at global position abs is masked off by the
// upstream bitmap input.
func (e *UnaryFilter) gated(abs int) bool {
	return e.bitmapInput != nil && !e.bitmapInput.Test(abs)
}

func (e *UnaryFilter) scanChunk(ch *column.Chunk, from, to, out, abs int, res *Result) error {
	switch ch.DataType() {
	case model.DataTypeBool:
		return e.scanBool(ch, from, to, out, abs, res)
	case model.DataTypeInt8:
		return scanOrdered(e, ch, ch.Int8s(), int8(e.arg.i64), from, to, out, abs, res)
	case model.DataTypeInt16:
		return scanOrdered(e, ch, ch.Int16s(), int16(e.arg.i64), from, to, out, abs, res)
	case model.DataTypeInt32:
		return scanOrdered(e, ch, ch.Int32s(), int32(e.arg.i64), from, to, out, abs, res)
	case model.DataTypeInt64:
		return scanOrdered(e, ch, ch.Int64s(), e.arg.i64, from, to, out, abs, res)
	case model.DataTypeFloat:
		return scanOrdered(e, ch, ch.Float32s(), float32(e.arg.f64), from, to, out, abs, res)
	case model.DataTypeDouble:
		return scanOrdered(e, ch, ch.Float64s(), e.arg.f64, from, to, out, abs, res)
	case model.DataTypeVarChar:
		return e.scanString(ch, from, to, out, abs, res)
	default:
		return fmt.Errorf("%w: data scan over %s", model.ErrDataTypeInvalid, ch.DataType())
	}
}

func (e *UnaryFilter) scanBool(ch *column.Chunk, from, to, out, abs int, res *Result) error {
	if e.op != model.OpEqual && e.op != model.OpNotEqual {
		return fmt.Errorf("%w: %s on BOOL column", model.ErrOpTypeInvalid, e.op)
	}
	data := ch.Bools()
	for i := from; i < to; i++ {
		pos := out + (i - from)
		if e.gated(abs + (i - from)) {
			continue
		}
		if !ch.IsValid(i) {
			res.Valid.Clear(pos)
			continue
		}
		match := data[i] == e.arg.b
		if e.op == model.OpNotEqual {
			match = !match
		}
		res.Match.SetTo(pos, match)
	}
	return nil
}

// scanOrdered is the typed comparator kernel shared by every integral and
// floating chunk type.
func scanOrdered[T cmp.Ordered](e *UnaryFilter, ch *column.Chunk, data []T, val T,
	from, to, out, abs int, res *Result) error {
	cmpFn, err := orderedOp[T](e.op)
	if err != nil {
		return err
	}
	for i := from; i < to; i++ {
		pos := out + (i - from)
		if e.gated(abs + (i - from)) {
			continue
		}
		if !ch.IsValid(i) {
			res.Valid.Clear(pos)
			continue
		}
		res.Match.SetTo(pos, cmpFn(data[i], val))
	}
	return nil
}

func orderedOp[T cmp.Ordered](op model.OpType) (func(a, b T) bool, error) {
	switch op {
	case model.OpGreaterThan:
		return func(a, b T) bool { return a > b }, nil
	case model.OpGreaterEqual:
		return func(a, b T) bool { return a >= b }, nil
	case model.OpLessThan:
		return func(a, b T) bool { return a < b }, nil
	case model.OpLessEqual:
		return func(a, b T) bool { return a <= b }, nil
	case model.OpEqual:
		return func(a, b T) bool { return a == b }, nil
	case model.OpNotEqual:
		return func(a, b T) bool { return a != b }, nil
	default:
		return nil, fmt.Errorf("%w: %s on numeric column", model.ErrOpTypeInvalid, op)
	}
}

func (e *UnaryFilter) scanString(ch *column.Chunk, from, to, out, abs int, res *Result) error {
	pred, err := e.stringPredicate()
	if err != nil {
		return err
	}
	for i := from; i < to; i++ {
		pos := out + (i - from)
		if e.gated(abs + (i - from)) {
			continue
		}
		if !ch.IsValid(i) {
			res.Valid.Clear(pos)
			continue
		}
		res.Match.SetTo(pos, pred(ch.StringAt(i)))
	}
	return nil
}

// stringPredicate resolves the per-row string comparison once per chunk.
func (e *UnaryFilter) stringPredicate() (func(s string) bool, error) {
	val := e.arg.str
	switch e.op {
	case model.OpEqual:
		return func(s string) bool { return s == val }, nil
	case model.OpNotEqual:
		return func(s string) bool { return s != val }, nil
	case model.OpGreaterThan:
		return func(s string) bool { return s > val }, nil
	case model.OpGreaterEqual:
		return func(s string) bool { return s >= val }, nil
	case model.OpLessThan:
		return func(s string) bool { return s < val }, nil
	case model.OpLessEqual:
		return func(s string) bool { return s <= val }, nil
	case model.OpPrefixMatch:
		return func(s string) bool { return strings.HasPrefix(s, val) }, nil
	case model.OpPostfixMatch:
		return func(s string) bool { return strings.HasSuffix(s, val) }, nil
	case model.OpInnerMatch:
		return func(s string) bool { return strings.Contains(s, val) }, nil
	case model.OpMatch:
		m := e.arg.matcher
		return m.Matches, nil
	default:
		return nil, fmt.Errorf("%w: %s on VARCHAR column", model.ErrOpTypeInvalid, e.op)
	}
}
