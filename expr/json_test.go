package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segcore/column"
	"github.com/hupe1980/segcore/expr"
	"github.com/hupe1980/segcore/index"
	"github.com/hupe1980/segcore/model"
	"github.com/hupe1980/segcore/testutil"
)

func jsonColumn(docs ...string) (*column.CachedColumn, [][]byte) {
	raw := make([][]byte, len(docs))
	valid := make([]bool, len(docs))
	for i, d := range docs {
		if d == "" {
			continue
		}
		raw[i] = []byte(d)
		valid[i] = true
	}
	col, _ := testutil.NewColumn(testutil.BigBudget(), model.DataTypeJSON,
		column.NewJSONChunk(raw, valid),
	)
	return col, raw
}

func TestUnaryFilter_JSONNumericWidening(t *testing.T) {
	// int64(5) equals double(5.0); string("5") never equals a number.
	col, _ := jsonColumn(`{"k":1}`, `{"k":"1"}`, `{"k":1.0}`, `{}`)

	e, err := expr.NewUnaryFilter(col, model.OpEqual, model.Int(1), expr.WithJSONPath("/k"))
	require.NoError(t, err)
	match, valid := evalAll(t, e)
	assert.Equal(t, []bool{true, false, true, false}, match)
	assert.Equal(t, []bool{true, true, true, true}, valid)

	// Null-as-distinct: a failed lookup is true only for NotEqual.
	e, err = expr.NewUnaryFilter(col, model.OpNotEqual, model.Int(1), expr.WithJSONPath("/k"))
	require.NoError(t, err)
	match, _ = evalAll(t, e)
	assert.Equal(t, []bool{false, true, false, true}, match)
}

func TestUnaryFilter_JSONRange(t *testing.T) {
	col, _ := jsonColumn(`{"n":5}`, `{"n":7.5}`, `{"n":"x"}`, `{"m":1}`)

	e, err := expr.NewUnaryFilter(col, model.OpGreaterThan, model.Int(6), expr.WithJSONPath("/n"))
	require.NoError(t, err)
	match, _ := evalAll(t, e)
	assert.Equal(t, []bool{false, true, false, false}, match)
}

func TestUnaryFilter_JSONArrayEquality(t *testing.T) {
	col, _ := jsonColumn(`{"a":[1,2]}`, `{"a":[1]}`, `{"a":"x"}`, `{}`)

	lit := model.Array(model.Int(1), model.Int(2))
	e, err := expr.NewUnaryFilter(col, model.OpEqual, lit, expr.WithJSONPath("/a"))
	require.NoError(t, err)
	match, _ := evalAll(t, e)
	assert.Equal(t, []bool{true, false, false, false}, match)

	e, err = expr.NewUnaryFilter(col, model.OpNotEqual, lit, expr.WithJSONPath("/a"))
	require.NoError(t, err)
	match, _ = evalAll(t, e)
	assert.Equal(t, []bool{false, true, true, true}, match)
}

func TestUnaryFilter_JSONPointerIntoArray(t *testing.T) {
	col, _ := jsonColumn(`{"a":[10,20]}`, `{"a":[10]}`, `{"a":{}}`)

	e, err := expr.NewUnaryFilter(col, model.OpEqual, model.Int(20), expr.WithJSONPath("/a/1"))
	require.NoError(t, err)
	match, _ := evalAll(t, e)
	assert.Equal(t, []bool{true, false, false}, match)
}

func TestUnaryFilter_JSONStringMatch(t *testing.T) {
	col, _ := jsonColumn(`{"s":"apple"}`, `{"s":"banana"}`, `{"s":5}`)

	e, err := expr.NewUnaryFilter(col, model.OpPrefixMatch, model.String("ap"), expr.WithJSONPath("/s"))
	require.NoError(t, err)
	match, _ := evalAll(t, e)
	assert.Equal(t, []bool{true, false, false}, match)

	e, err = expr.NewUnaryFilter(col, model.OpMatch, model.String("%an%"), expr.WithJSONPath("/s"))
	require.NoError(t, err)
	match, _ = evalAll(t, e)
	assert.Equal(t, []bool{false, true, false}, match)
}

func TestUnaryFilter_JSONNullRow(t *testing.T) {
	col, _ := jsonColumn(`{"k":1}`, ``, `{"k":2}`)

	e, err := expr.NewUnaryFilter(col, model.OpEqual, model.Int(1), expr.WithJSONPath("/k"))
	require.NoError(t, err)
	match, valid := evalAll(t, e)
	assert.Equal(t, []bool{true, false, false}, match)
	assert.Equal(t, []bool{true, false, true}, valid)
}

func TestUnaryFilter_JSONIndexPathMatchesScan(t *testing.T) {
	docs := []string{
		`{"k":1}`, `{"k":"1"}`, `{"k":1.0}`, `{}`,
		`{"k":{"nested":true}}`, `{"k":2}`, ``,
	}
	col, raw := jsonColumn(docs...)
	jidx := index.NewMemJSONKeyIndex(raw)

	for _, op := range []model.OpType{
		model.OpEqual, model.OpNotEqual, model.OpGreaterEqual, model.OpLessThan,
	} {
		withIdx, err := expr.NewUnaryFilter(col, op, model.Int(1),
			expr.WithJSONPath("/k"), expr.WithJSONKeyIndex(jidx))
		require.NoError(t, err)
		noIdx, err := expr.NewUnaryFilter(col, op, model.Int(1), expr.WithJSONPath("/k"))
		require.NoError(t, err)

		m1, v1 := evalAll(t, withIdx)
		m2, v2 := evalAll(t, noIdx)
		assert.Equal(t, m2, m1, op.String())
		assert.Equal(t, v2, v1, op.String())
	}
}

func TestUnaryFilter_JSONNgramPath(t *testing.T) {
	col, _ := jsonColumn(`{"s":"hello world"}`, `{"s":"goodbye"}`, `{"s":"worldwide"}`)

	// The attached n-gram index is the one built for the nested path.
	vals := []string{"hello world", "goodbye", "worldwide"}
	ptrs := make([]*string, len(vals))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	ngram := index.NewTrigramIndex(ptrs)

	e, err := expr.NewUnaryFilter(col, model.OpInnerMatch, model.String("world"),
		expr.WithJSONPath("/s"), expr.WithNgramIndex(ngram))
	require.NoError(t, err)
	match, _ := evalAll(t, e)
	assert.Equal(t, []bool{true, false, true}, match)

	// A declined pattern falls back to the JSON scan with the same answer.
	e, err = expr.NewUnaryFilter(col, model.OpInnerMatch, model.String("wo"),
		expr.WithJSONPath("/s"), expr.WithNgramIndex(ngram))
	require.NoError(t, err)
	plain, err := expr.NewUnaryFilter(col, model.OpInnerMatch, model.String("wo"),
		expr.WithJSONPath("/s"))
	require.NoError(t, err)

	m1, _ := evalAll(t, e)
	m2, _ := evalAll(t, plain)
	assert.Equal(t, m2, m1)
}

func TestUnaryFilter_JSONIndexSlicesAcrossBatches(t *testing.T) {
	col, raw := jsonColumn(`{"k":1}`, `{"k":2}`, `{"k":1}`, `{"k":3}`, `{"k":1}`)
	jidx := index.NewMemJSONKeyIndex(raw)

	e, err := expr.NewUnaryFilter(col, model.OpEqual, model.Int(1),
		expr.WithJSONPath("/k"), expr.WithJSONKeyIndex(jidx), expr.WithBatchSize(2))
	require.NoError(t, err)

	match, _ := evalAll(t, e)
	assert.Equal(t, []bool{true, false, true, false, true}, match)
}
