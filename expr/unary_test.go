package expr_test

import (
	"context"
	"math"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segcore/column"
	"github.com/hupe1980/segcore/expr"
	"github.com/hupe1980/segcore/index"
	"github.com/hupe1980/segcore/internal/bitset"
	"github.com/hupe1980/segcore/model"
	"github.com/hupe1980/segcore/testutil"
)

func bitsetOf(n int, set ...int) *bitset.BitSet {
	b := bitset.New(n)
	for _, i := range set {
		b.Set(i)
	}
	return b
}

// evalAll drains the filter and concatenates the per-batch bitmaps.
func evalAll(t *testing.T, e *expr.UnaryFilter) (match, valid []bool) {
	t.Helper()
	for {
		res, err := e.Next(context.Background())
		require.NoError(t, err)
		if res == nil {
			return match, valid
		}
		match = append(match, res.Match.Bools()...)
		valid = append(valid, res.Valid.Bools()...)
	}
}

func TestUnaryFilter_IntGreaterThan(t *testing.T) {
	col, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeInt32,
		column.NewInt32Chunk([]int32{1, 2, 3, 0, 5}, []bool{true, true, true, false, true}),
	)

	e, err := expr.NewUnaryFilter(col, model.OpGreaterThan, model.Int(2))
	require.NoError(t, err)

	match, valid := evalAll(t, e)
	assert.Equal(t, []bool{false, false, true, false, true}, match)
	assert.Equal(t, []bool{true, true, true, false, true}, valid)
}

func TestUnaryFilter_AllComparisonOps(t *testing.T) {
	col, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeInt64,
		column.NewInt64Chunk([]int64{1, 2, 3}, nil),
	)

	cases := []struct {
		op   model.OpType
		want []bool
	}{
		{model.OpGreaterThan, []bool{false, false, true}},
		{model.OpGreaterEqual, []bool{false, true, true}},
		{model.OpLessThan, []bool{true, false, false}},
		{model.OpLessEqual, []bool{true, true, false}},
		{model.OpEqual, []bool{false, true, false}},
		{model.OpNotEqual, []bool{true, false, true}},
	}
	for _, tc := range cases {
		e, err := expr.NewUnaryFilter(col, tc.op, model.Int(2))
		require.NoError(t, err)
		match, _ := evalAll(t, e)
		assert.Equal(t, tc.want, match, tc.op.String())
	}
}

func TestUnaryFilter_OverflowShortCircuit(t *testing.T) {
	col, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeInt8,
		column.NewInt8Chunk([]int8{1, -2, 3}, []bool{true, false, true}),
	)

	cases := []struct {
		op   model.OpType
		lit  int64
		want []bool
	}{
		{model.OpGreaterEqual, 1000, []bool{false, false, false}}, // no i8 is >= 1000
		{model.OpGreaterThan, -1000, []bool{true, false, true}},
		{model.OpLessThan, 1000, []bool{true, false, true}},
		{model.OpLessEqual, -1000, []bool{false, false, false}},
		{model.OpEqual, 1000, []bool{false, false, false}},
		{model.OpNotEqual, 1000, []bool{true, false, true}},
	}
	for _, tc := range cases {
		e, err := expr.NewUnaryFilter(col, tc.op, model.Int(tc.lit))
		require.NoError(t, err)
		match, valid := evalAll(t, e)
		assert.Equal(t, tc.want, match, "%s %d", tc.op, tc.lit)
		assert.Equal(t, []bool{true, false, true}, valid)
	}
}

func TestUnaryFilter_StringOps(t *testing.T) {
	col, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeVarChar,
		column.NewStringChunk([]string{"apple", "ape", "banana", "apricot"}, nil),
	)

	e, err := expr.NewUnaryFilter(col, model.OpPrefixMatch, model.String("ap"))
	require.NoError(t, err)
	match, _ := evalAll(t, e)
	assert.Equal(t, []bool{true, true, false, true}, match)

	e, err = expr.NewUnaryFilter(col, model.OpPostfixMatch, model.String("na"))
	require.NoError(t, err)
	match, _ = evalAll(t, e)
	assert.Equal(t, []bool{false, false, true, false}, match)

	e, err = expr.NewUnaryFilter(col, model.OpInnerMatch, model.String("an"))
	require.NoError(t, err)
	match, _ = evalAll(t, e)
	assert.Equal(t, []bool{false, false, true, false}, match)

	e, err = expr.NewUnaryFilter(col, model.OpLessThan, model.String("b"))
	require.NoError(t, err)
	match, _ = evalAll(t, e)
	assert.Equal(t, []bool{true, true, false, true}, match)
}

func TestUnaryFilter_LikeMatch(t *testing.T) {
	col, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeVarChar,
		column.NewStringChunk([]string{"apple", "ape", "", "axle"}, []bool{true, true, false, true}),
	)

	// No wildcards behaves like equality.
	e, err := expr.NewUnaryFilter(col, model.OpMatch, model.String("ape"))
	require.NoError(t, err)
	match, _ := evalAll(t, e)
	assert.Equal(t, []bool{false, true, false, false}, match)

	// "%" matches every non-null row.
	e, err = expr.NewUnaryFilter(col, model.OpMatch, model.String("%"))
	require.NoError(t, err)
	match, valid := evalAll(t, e)
	assert.Equal(t, []bool{true, true, false, true}, match)
	assert.Equal(t, []bool{true, true, false, true}, valid)

	// General pattern with both wildcards.
	e, err = expr.NewUnaryFilter(col, model.OpMatch, model.String("a_le%"))
	require.NoError(t, err)
	match, _ = evalAll(t, e)
	assert.Equal(t, []bool{false, false, false, true}, match)

	// Empty pattern is rejected.
	e, err = expr.NewUnaryFilter(col, model.OpMatch, model.String(""))
	require.NoError(t, err)
	_, err = e.Next(context.Background())
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
}

func TestUnaryFilter_ArrayWholeEqual(t *testing.T) {
	arr := func(vals ...int64) column.ArrayValue {
		elems := make([]model.Value, len(vals))
		for i, v := range vals {
			elems[i] = model.Int(v)
		}
		return column.ArrayValue{ElemType: model.DataTypeInt64, Elems: elems}
	}
	col, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeArray,
		column.NewArrayChunk([]column.ArrayValue{arr(1, 2), arr(3), arr(), arr(1, 2)}, nil),
	)

	e, err := expr.NewUnaryFilter(col, model.OpEqual, model.Array(model.Int(1), model.Int(2)))
	require.NoError(t, err)
	match, _ := evalAll(t, e)
	assert.Equal(t, []bool{true, false, false, true}, match)

	e, err = expr.NewUnaryFilter(col, model.OpNotEqual, model.Array(model.Int(1), model.Int(2)))
	require.NoError(t, err)
	match, _ = evalAll(t, e)
	assert.Equal(t, []bool{false, true, true, false}, match)
}

func TestUnaryFilter_ArrayNestedIndex(t *testing.T) {
	arr := func(vals ...int64) column.ArrayValue {
		elems := make([]model.Value, len(vals))
		for i, v := range vals {
			elems[i] = model.Int(v)
		}
		return column.ArrayValue{ElemType: model.DataTypeInt64, Elems: elems}
	}
	col, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeArray,
		column.NewArrayChunk([]column.ArrayValue{arr(5, 1), arr(2), arr(), arr(9)}, nil),
	)

	// Element 0 > 4; rows whose array is too short are false.
	e, err := expr.NewUnaryFilter(col, model.OpGreaterThan, model.Int(4), expr.WithNestedIndex(0))
	require.NoError(t, err)
	match, _ := evalAll(t, e)
	assert.Equal(t, []bool{true, false, false, true}, match)

	e, err = expr.NewUnaryFilter(col, model.OpLessEqual, model.Int(1), expr.WithNestedIndex(1))
	require.NoError(t, err)
	match, _ = evalAll(t, e)
	assert.Equal(t, []bool{true, false, false, false}, match)
}

func TestUnaryFilter_BatchingAcrossChunks(t *testing.T) {
	col, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeInt32,
		column.NewInt32Chunk([]int32{1, 2, 3}, nil),
		column.NewInt32Chunk([]int32{4, 5}, nil),
		column.NewInt32Chunk([]int32{6}, nil),
	)

	e, err := expr.NewUnaryFilter(col, model.OpGreaterEqual, model.Int(3), expr.WithBatchSize(2))
	require.NoError(t, err)

	var lens []int
	var match []bool
	for {
		res, err := e.Next(context.Background())
		require.NoError(t, err)
		if res == nil {
			break
		}
		lens = append(lens, res.Rows())
		match = append(match, res.Match.Bools()...)
	}
	assert.Equal(t, []int{2, 2, 2}, lens)
	assert.Equal(t, []bool{false, false, true, true, true, true}, match)
}

func TestUnaryFilter_BitmapInputGatesRows(t *testing.T) {
	col, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeInt32,
		column.NewInt32Chunk([]int32{5, 5, 5, 5}, nil),
	)

	e, err := expr.NewUnaryFilter(col, model.OpEqual, model.Int(5))
	require.NoError(t, err)

	gate := bitsetOf(4, 0, 2)
	e.SetBitmapInput(gate)

	match, valid := evalAll(t, e)
	// Gated-off rows keep match=0, valid=1.
	assert.Equal(t, []bool{true, false, true, false}, match)
	assert.Equal(t, []bool{true, true, true, true}, valid)
}

// failingScalarIndex fails the test if the executor consults it.
type failingScalarIndex struct {
	t    *testing.T
	kind model.IndexType
}

func (f *failingScalarIndex) Apply(model.OpType, model.Value) (*roaring.Bitmap, error) {
	f.t.Error("scalar index must not be consulted on this path")
	return roaring.New(), nil
}

func (f *failingScalarIndex) IndexType() model.IndexType { return f.kind }

func TestUnaryFilter_OffsetInputForcesDataScan(t *testing.T) {
	col, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeInt32,
		column.NewInt32Chunk([]int32{1, 2, 3, 4}, nil),
	)

	e, err := expr.NewUnaryFilter(col, model.OpGreaterThan, model.Int(2),
		expr.WithScalarIndex(&failingScalarIndex{t: t, kind: model.IndexTypeSorted}))
	require.NoError(t, err)

	e.SetOffsetInput([]int32{3, 0, 2})
	res, err := e.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, res.Match.Bools())
	assert.Equal(t, []bool{true, true, true}, res.Valid.Bools())
}

func TestUnaryFilter_IndexScanMatchesDataScan(t *testing.T) {
	values := []int64{4, 8, 15, 16, 23, 42}
	valid := []bool{true, true, false, true, true, true}
	col, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeInt64,
		column.NewInt64Chunk(values, valid),
	)

	var entries []index.ScalarEntry
	for i, v := range values {
		if valid[i] {
			entries = append(entries, index.ScalarEntry{Row: uint32(i), Value: model.Int(v)})
		}
	}
	idx, err := index.NewSortedScalarIndex(entries)
	require.NoError(t, err)

	for _, op := range []model.OpType{
		model.OpGreaterThan, model.OpGreaterEqual, model.OpLessThan,
		model.OpLessEqual, model.OpEqual, model.OpNotEqual,
	} {
		withIdx, err := expr.NewUnaryFilter(col, op, model.Int(16), expr.WithScalarIndex(idx))
		require.NoError(t, err)
		noIdx, err := expr.NewUnaryFilter(col, op, model.Int(16))
		require.NoError(t, err)

		m1, v1 := evalAll(t, withIdx)
		m2, v2 := evalAll(t, noIdx)
		assert.Equal(t, m2, m1, op.String())
		assert.Equal(t, v2, v1, op.String())
	}
}

func TestUnaryFilter_ArrayIndexPathRejectsBitmapBackend(t *testing.T) {
	arr := column.ArrayValue{ElemType: model.DataTypeInt64, Elems: []model.Value{model.Int(7)}}
	col, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeArray,
		column.NewArrayChunk([]column.ArrayValue{arr}, nil),
	)

	// A BITMAP-backed index is not a valid ARRAY index-path backend; the
	// dispatcher must fall back to the data scan without consulting it.
	e, err := expr.NewUnaryFilter(col, model.OpEqual, model.Int(7),
		expr.WithNestedIndex(0),
		expr.WithScalarIndex(&failingScalarIndex{t: t, kind: model.IndexTypeBitmap}))
	require.NoError(t, err)

	match, _ := evalAll(t, e)
	assert.Equal(t, []bool{true}, match)
}

func TestUnaryFilter_NgramServesAndDeclines(t *testing.T) {
	values := []string{"the quick brown fox", "lazy dog", "quicksilver", ""}
	ptrs := make([]*string, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	col, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeVarChar,
		column.NewStringChunk(values, nil),
	)
	ngram := index.NewTrigramIndex(ptrs)

	// Served: literal long enough for trigrams.
	e, err := expr.NewUnaryFilter(col, model.OpInnerMatch, model.String("quick"), expr.WithNgramIndex(ngram))
	require.NoError(t, err)
	match, _ := evalAll(t, e)
	assert.Equal(t, []bool{true, false, true, false}, match)

	// Declined: literal shorter than one gram falls back to the data scan
	// and must produce the same answer as the scan alone.
	e, err = expr.NewUnaryFilter(col, model.OpInnerMatch, model.String("qu"), expr.WithNgramIndex(ngram))
	require.NoError(t, err)
	plain, err := expr.NewUnaryFilter(col, model.OpInnerMatch, model.String("qu"))
	require.NoError(t, err)

	m1, _ := evalAll(t, e)
	m2, _ := evalAll(t, plain)
	assert.Equal(t, m2, m1)
}

func TestUnaryFilter_TypeAndOpErrors(t *testing.T) {
	intCol, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeInt32,
		column.NewInt32Chunk([]int32{1}, nil),
	)
	e, err := expr.NewUnaryFilter(intCol, model.OpEqual, model.String("x"))
	require.NoError(t, err)
	_, err = e.Next(context.Background())
	assert.ErrorIs(t, err, model.ErrDataTypeInvalid)

	boolCol, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeBool,
		column.NewBoolChunk([]bool{true}, nil),
	)
	e, err = expr.NewUnaryFilter(boolCol, model.OpGreaterThan, model.Bool(true))
	require.NoError(t, err)
	_, err = e.Next(context.Background())
	assert.ErrorIs(t, err, model.ErrOpTypeInvalid)

	strCol, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeVarChar,
		column.NewStringChunk([]string{"a"}, nil),
	)
	e, err = expr.NewUnaryFilter(strCol, model.OpTextMatch, model.String("a"))
	require.NoError(t, err)
	_, err = e.Next(context.Background())
	assert.ErrorIs(t, err, model.ErrUnsupported, "text match without a text index")
}

func TestUnaryFilter_SlopValidation(t *testing.T) {
	col, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeVarChar,
		column.NewStringChunk([]string{"a"}, nil),
	)
	_, err := expr.NewUnaryFilter(col, model.OpPhraseMatch, model.String("a"),
		expr.WithSlop(uint64(math.MaxUint32)+1))
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
}

func TestUnaryFilter_BoolEqual(t *testing.T) {
	col, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeBool,
		column.NewBoolChunk([]bool{true, false, true}, []bool{true, true, false}),
	)

	e, err := expr.NewUnaryFilter(col, model.OpEqual, model.Bool(true))
	require.NoError(t, err)
	match, valid := evalAll(t, e)
	assert.Equal(t, []bool{true, false, false}, match)
	assert.Equal(t, []bool{true, true, false}, valid)
}

func TestUnaryFilter_FloatDouble(t *testing.T) {
	col, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeDouble,
		column.NewDoubleChunk([]float64{1.5, 2.5, 3.5}, nil),
	)

	e, err := expr.NewUnaryFilter(col, model.OpLessEqual, model.Float(2.5))
	require.NoError(t, err)
	match, _ := evalAll(t, e)
	assert.Equal(t, []bool{true, true, false}, match)

	// Integer literal widens on floating columns.
	e, err = expr.NewUnaryFilter(col, model.OpGreaterThan, model.Int(2))
	require.NoError(t, err)
	match, _ = evalAll(t, e)
	assert.Equal(t, []bool{false, true, true}, match)
}
