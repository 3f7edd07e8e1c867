// Package expr implements the batched unary predicate executor: it
// evaluates `column OP literal` over row batches, producing a match bitmap
// and a validity bitmap per batch. Index-assisted paths (text, n-gram,
// scalar, JSON-key) are used when available and fall back to brute-force
// data scans over pinned chunks.
package expr

import (
	"context"
	"fmt"
	"math"

	"github.com/hupe1980/segcore/column"
	"github.com/hupe1980/segcore/index"
	"github.com/hupe1980/segcore/internal/bitset"
	"github.com/hupe1980/segcore/model"
)

// DefaultBatchSize is the row count of one Next batch.
const DefaultBatchSize = 8192

// Result is one evaluated batch. Match holds the predicate outcome; Valid
// is false where the row is null (or past an index's coverage). A false
// valid bit always has a false match bit.
type Result struct {
	Match *bitset.BitSet
	Valid *bitset.BitSet
}

// Rows returns the batch length.
func (r *Result) Rows() int { return r.Match.Len() }

// UnaryFilter evaluates a unary range/match predicate over one column.
// Index-side results are materialized once per filter instance and sliced
// by the batch cursor on subsequent calls; the instance is not safe for
// concurrent use.
type UnaryFilter struct {
	col      column.ChunkedColumn
	op       model.OpType
	val      model.Value
	dataType model.DataType

	nestedIdx   int    // ARRAY element index; -1 means whole array
	jsonPath    string // JSON pointer, e.g. "/k" or "/k/0"
	slop        uint32
	batchSize   int
	activeCount int
	isGrowing   bool
	strongRead  bool

	scalarIdx index.ScalarIndex
	textIdx   index.TextIndex
	ngramIdx  index.NgramIndex
	jsonIdx   index.JSONKeyIndex

	arg valueArg

	cursor      int // rows consumed by previous batches
	bitmapInput *bitset.BitSet
	offsetInput []int32

	cachedMatch *bitset.BitSet // index-side result over [0, activeCount)
	cachedValid *bitset.BitSet
}

// Option customizes a UnaryFilter.
type Option func(*UnaryFilter) error

// WithNestedIndex targets one element of an ARRAY column instead of the
// whole array.
func WithNestedIndex(i int) Option {
	return func(e *UnaryFilter) error {
		e.nestedIdx = i
		return nil
	}
}

// WithJSONPath sets the JSON pointer for JSON columns.
func WithJSONPath(path string) Option {
	return func(e *UnaryFilter) error {
		e.jsonPath = path
		return nil
	}
}

// WithSlop sets the phrase-match slop.
func WithSlop(slop uint64) Option {
	return func(e *UnaryFilter) error {
		if slop > math.MaxUint32 {
			return fmt.Errorf("%w: phrase slop %d exceeds uint32", model.ErrInvalidParameter, slop)
		}
		e.slop = uint32(slop)
		return nil
	}
}

// WithBatchSize overrides the batch row count.
func WithBatchSize(n int) Option {
	return func(e *UnaryFilter) error {
		if n <= 0 {
			return fmt.Errorf("%w: batch size %d", model.ErrInvalidParameter, n)
		}
		e.batchSize = n
		return nil
	}
}

// WithActiveCount sets the number of logically visible rows. Defaults to
// the column's row count.
func WithActiveCount(n int) Option {
	return func(e *UnaryFilter) error {
		e.activeCount = n
		return nil
	}
}

// WithGrowing marks the segment as growing (indexes may trail the active
// count).
func WithGrowing(growing bool) Option {
	return func(e *UnaryFilter) error {
		e.isGrowing = growing
		return nil
	}
}

// WithStrongConsistency requests strong-consistency reads on the JSON-key
// index path.
func WithStrongConsistency(strong bool) Option {
	return func(e *UnaryFilter) error {
		e.strongRead = strong
		return nil
	}
}

// WithScalarIndex attaches a scalar index for the field.
func WithScalarIndex(idx index.ScalarIndex) Option {
	return func(e *UnaryFilter) error {
		e.scalarIdx = idx
		return nil
	}
}

// WithTextIndex attaches a full-text index for the field.
func WithTextIndex(idx index.TextIndex) Option {
	return func(e *UnaryFilter) error {
		e.textIdx = idx
		return nil
	}
}

// WithNgramIndex attaches an n-gram index for the field.
func WithNgramIndex(idx index.NgramIndex) Option {
	return func(e *UnaryFilter) error {
		e.ngramIdx = idx
		return nil
	}
}

// WithJSONKeyIndex attaches a JSON-key index for the field.
func WithJSONKeyIndex(idx index.JSONKeyIndex) Option {
	return func(e *UnaryFilter) error {
		e.jsonIdx = idx
		return nil
	}
}

// NewUnaryFilter builds a filter over col. The literal's type is checked
// against the column type lazily on the first batch.
func NewUnaryFilter(col column.ChunkedColumn, op model.OpType, val model.Value, opts ...Option) (*UnaryFilter, error) {
	if op == model.OpInvalid {
		return nil, fmt.Errorf("%w: missing operator", model.ErrOpTypeInvalid)
	}
	e := &UnaryFilter{
		col:         col,
		op:          op,
		val:         val,
		dataType:    col.DataType(),
		nestedIdx:   -1,
		batchSize:   DefaultBatchSize,
		activeCount: col.NumRows(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.activeCount < 0 || e.activeCount > col.NumRows() {
		return nil, fmt.Errorf("%w: active count %d of %d rows", model.ErrInvalidParameter, e.activeCount, col.NumRows())
	}
	return e, nil
}

// SetBitmapInput installs an upstream gating bitmap over the active row
// range; rows whose bit is clear are skipped by data scans.
func (e *UnaryFilter) SetBitmapInput(bm *bitset.BitSet) { e.bitmapInput = bm }

// SetOffsetInput installs an upstream selection vector for the following
// Next call. Offset input forces the data-scan path.
func (e *UnaryFilter) SetOffsetInput(offsets []int32) { e.offsetInput = offsets }

// Done reports whether all active rows were consumed.
func (e *UnaryFilter) Done() bool { return e.cursor >= e.activeCount }

// Next evaluates the next batch. It returns nil once all active rows are
// consumed.
func (e *UnaryFilter) Next(ctx context.Context) (*Result, error) {
	if offs := e.offsetInput; offs != nil {
		e.offsetInput = nil
		return e.evalOffsets(ctx, offs)
	}

	batch := e.activeCount - e.cursor
	if batch <= 0 {
		return nil, nil
	}
	if batch > e.batchSize {
		batch = e.batchSize
	}

	res, err := e.evalBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	e.cursor += batch
	return res, nil
}

// evalBatch dispatches one batch of size batch starting at the cursor.
func (e *UnaryFilter) evalBatch(ctx context.Context, batch int) (*Result, error) {
	// 1. Text / phrase match requires the full-text index.
	if e.op == model.OpTextMatch || e.op == model.OpPhraseMatch {
		return e.execTextMatch(ctx, batch)
	}

	// 2. N-gram match may decline, falling through to the paths below. For
	// JSON fields the attached index is the one built for the nested path.
	ngramable := e.dataType == model.DataTypeVarChar ||
		(e.dataType == model.DataTypeJSON && e.jsonPath != "")
	if e.op.IsStringMatch() && e.ngramIdx != nil && ngramable {
		res, ok, err := e.execNgramMatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		if ok {
			return res, nil
		}
	}

	// 3. Scalar / JSON-key index scan.
	switch e.dataType {
	case model.DataTypeJSON:
		if e.jsonIdx != nil && e.canUseJSONIndex() {
			return e.execJSONIndex(ctx, batch)
		}
	case model.DataTypeArray:
		if e.scalarIdx != nil && e.canUseIndexForArray() {
			if res, ok, err := e.execIndexScan(ctx, batch); err != nil {
				return nil, err
			} else if ok {
				return res, nil
			}
		}
	default:
		if e.scalarIdx != nil && (e.op.IsComparison() || e.op.IsStringMatch()) {
			if res, ok, err := e.execIndexScan(ctx, batch); err != nil {
				return nil, err
			} else if ok {
				return res, nil
			}
		}
	}

	// 4. Brute-force data scan.
	return e.execDataScan(ctx, batch)
}

// canUseIndexForArray rejects index backends that cannot serve the ARRAY
// index path and requires an element-targeted comparison.
func (e *UnaryFilter) canUseIndexForArray() bool {
	switch e.scalarIdx.IndexType() {
	case model.IndexTypeHybrid, model.IndexTypeBitmap:
		return false
	}
	if e.val.Kind == model.KindArray {
		// Whole-array equality goes through the data scan.
		return false
	}
	return e.nestedIdx >= 0 && e.op.IsComparison()
}

// canUseJSONIndex accepts primitive literals under a concrete pointer.
func (e *UnaryFilter) canUseJSONIndex() bool {
	if !e.op.IsComparison() {
		return false
	}
	switch e.val.Kind {
	case model.KindBool, model.KindInt, model.KindFloat, model.KindString:
		return e.jsonPath != ""
	default:
		return false
	}
}

// batchRange returns the global row interval of the current batch.
func (e *UnaryFilter) batchRange(batch int) (int, int) {
	return e.cursor, e.cursor + batch
}

// batchValid builds the validity bitmap of the current batch from the
// column. Rows beyond the column (growing tail) are invalid.
func (e *UnaryFilter) batchValid(ctx context.Context, batch int) (*bitset.BitSet, error) {
	valid := bitset.New(batch)
	start, end := e.batchRange(batch)
	stored := e.col.NumRows()
	if start >= stored {
		return valid, nil
	}
	if end > stored {
		end = stored
	}
	offsets := make([]int32, 0, end-start)
	for row := start; row < end; row++ {
		offsets = append(offsets, int32(row))
	}
	err := e.col.BulkIsValid(ctx, func(i int, ok bool) {
		valid.SetTo(i, ok)
	}, offsets)
	if err != nil {
		return nil, err
	}
	return valid, nil
}

// sliceCached copies the batch window out of the materialized full-range
// bitmaps.
func (e *UnaryFilter) sliceCached(batch int) *Result {
	res := &Result{Match: bitset.New(batch), Valid: bitset.New(batch)}
	start, _ := e.batchRange(batch)
	for i := 0; i < batch; i++ {
		res.Match.SetTo(i, e.cachedMatch.Test(start+i))
		res.Valid.SetTo(i, e.cachedValid.Test(start+i))
	}
	return res
}
