package expr

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/segcore/column"
	"github.com/hupe1980/segcore/index"
	"github.com/hupe1980/segcore/internal/bitset"
	"github.com/hupe1980/segcore/model"
)

// execJSONScan evaluates the batch over a JSON column by resolving the
// pointer in every document.
func (e *UnaryFilter) execJSONScan(ctx context.Context, batch int) (*Result, error) {
	pred, err := e.jsonPredicate()
	if err != nil {
		return nil, err
	}

	res := &Result{Match: bitset.New(batch), Valid: bitset.NewFull(batch)}
	err = e.forEachChunkRange(ctx, batch, func(ch *column.Chunk, from, to, out, abs int) error {
		for i := from; i < to; i++ {
			pos := out + (i - from)
			if e.gated(abs + (i - from)) {
				continue
			}
			if !ch.IsValid(i) {
				res.Valid.Clear(pos)
				continue
			}
			res.Match.SetTo(pos, pred(ch.JSONAt(i)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// jsonPredicate resolves the per-document predicate once.
func (e *UnaryFilter) jsonPredicate() (func(doc []byte) bool, error) {
	if err := e.initArg(); err != nil {
		return nil, err
	}
	scalar, err := e.jsonValuePredicate()
	if err != nil {
		return nil, err
	}
	path := pointerToGJSON(e.jsonPath)
	notEqual := e.op == model.OpNotEqual
	return func(doc []byte) bool {
		v := gjson.GetBytes(doc, path)
		if !v.Exists() {
			// Pointer lookup failed: false for every op except NotEqual
			// (null-as-distinct).
			return notEqual
		}
		return scalar(v)
	}, nil
}

// jsonValuePredicate compares a resolved JSON value against the literal.
// Numbers widen among themselves (an integer literal against a JSON number
// falls back to the double compare when the exact integer parse does not
// apply); strings only match strings; any type mismatch is false for every
// op except NotEqual.
func (e *UnaryFilter) jsonValuePredicate() (func(v gjson.Result) bool, error) {
	lit := e.val
	op := e.op
	mismatch := op == model.OpNotEqual

	if lit.Kind == model.KindString && op.IsStringMatch() {
		pred, err := e.stringValueMatch()
		if err != nil {
			return nil, err
		}
		return func(v gjson.Result) bool {
			if v.Type != gjson.String {
				return false
			}
			return pred(v.String())
		}, nil
	}

	if lit.Kind == model.KindArray {
		if op != model.OpEqual && op != model.OpNotEqual {
			return nil, fmt.Errorf("%w: %s on JSON array literal", model.ErrOpTypeInvalid, op)
		}
		return func(v gjson.Result) bool {
			if !v.IsArray() {
				return mismatch
			}
			eq := model.ValueEqual(jsonToValue(v), lit)
			if op == model.OpNotEqual {
				return !eq
			}
			return eq
		}, nil
	}

	if !op.IsComparison() {
		return nil, fmt.Errorf("%w: %s on JSON value", model.ErrOpTypeInvalid, op)
	}

	return func(v gjson.Result) bool {
		switch lit.Kind {
		case model.KindInt, model.KindFloat:
			if v.Type != gjson.Number {
				return mismatch
			}
			if lit.Kind == model.KindInt && jsonNumberIsIntegral(v) {
				return model.ValueCompare(model.Int(v.Int()), lit, op)
			}
			return model.ValueCompare(model.Float(v.Float()), lit, op)
		case model.KindString:
			if v.Type != gjson.String {
				return mismatch
			}
			return model.ValueCompare(model.String(v.String()), lit, op)
		case model.KindBool:
			if v.Type != gjson.True && v.Type != gjson.False {
				return mismatch
			}
			return model.ValueCompare(model.Bool(v.Bool()), lit, op)
		default:
			return mismatch
		}
	}, nil
}

// jsonNumberIsIntegral reports whether the raw token parses as an exact
// integer.
func jsonNumberIsIntegral(v gjson.Result) bool {
	return !strings.ContainsAny(v.Raw, ".eE")
}

// jsonToValue converts a resolved JSON value into a model.Value.
func jsonToValue(v gjson.Result) model.Value {
	switch {
	case v.Type == gjson.Number:
		if jsonNumberIsIntegral(v) {
			return model.Int(v.Int())
		}
		return model.Float(v.Float())
	case v.Type == gjson.String:
		return model.String(v.String())
	case v.Type == gjson.True, v.Type == gjson.False:
		return model.Bool(v.Bool())
	case v.IsArray():
		arr := v.Array()
		elems := make([]model.Value, len(arr))
		for i, el := range arr {
			elems[i] = jsonToValue(el)
		}
		return model.Value{Kind: model.KindArray, A: elems}
	default:
		return model.Null()
	}
}

// pointerToGJSON converts a JSON pointer ("/a/b/0") into a gjson path
// ("a.b.0"), unescaping pointer tokens and escaping gjson specials.
func pointerToGJSON(pointer string) string {
	if pointer == "" {
		return "@this"
	}
	parts := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		p = strings.ReplaceAll(p, "~0", "~")
		p = strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`).Replace(p)
		parts[i] = p
	}
	return strings.Join(parts, ".")
}

// execJSONIndex is the JSON-key index path. The full-column bitmap is
// materialized once and sliced per batch afterwards.
func (e *UnaryFilter) execJSONIndex(ctx context.Context, batch int) (*Result, error) {
	if e.cachedMatch == nil {
		if err := e.materializeJSONIndex(ctx); err != nil {
			return nil, err
		}
	}
	return e.sliceCached(batch), nil
}

func (e *UnaryFilter) materializeJSONIndex(ctx context.Context) error {
	docs, err := e.fetchAllJSONDocs(ctx)
	if err != nil {
		return err
	}
	pred, err := e.jsonPredicate()
	if err != nil {
		return err
	}
	inlinePred, err := e.inlinePredicate()
	if err != nil {
		return err
	}

	fn := func(row uint32, inlined bool, v index.InlineValue) bool {
		if inlined {
			return inlinePred(v)
		}
		// Fallback: the index could not inline the row, resolve it against
		// the document itself.
		if int(row) >= len(docs) || docs[row] == nil {
			return false
		}
		return pred(docs[row])
	}

	bm, err := e.jsonIdx.FilterByPath(e.jsonPath, e.activeCount, e.isGrowing, e.strongRead, fn)
	if err != nil {
		return err
	}

	e.cachedMatch = bitset.New(e.activeCount)
	it := bm.Iterator()
	for it.HasNext() {
		e.cachedMatch.Set(int(it.Next()))
	}
	e.cachedValid = bitset.New(e.activeCount)
	for row := 0; row < e.activeCount && row < len(docs); row++ {
		e.cachedValid.SetTo(row, docs[row] != nil)
	}
	// A null row never matches, whatever fn said about it.
	e.cachedMatch.And(e.cachedValid)
	return nil
}

// inlinePredicate compares an index-inlined primitive against the literal,
// with the same cross-type rules as the document path: INT64, DOUBLE and
// FLOAT widen among themselves, STRING only matches STRING.
func (e *UnaryFilter) inlinePredicate() (func(v index.InlineValue) bool, error) {
	scalar, err := e.scalarValuePredicate()
	if err != nil {
		return nil, err
	}
	return func(v index.InlineValue) bool {
		return scalar(inlineToValue(v))
	}, nil
}

func inlineToValue(v index.InlineValue) model.Value {
	switch v.Type {
	case index.JSONTypeInt64:
		return model.Int(v.I64)
	case index.JSONTypeDouble, index.JSONTypeFloat:
		return model.Float(v.F64)
	case index.JSONTypeString:
		return model.String(v.Str)
	case index.JSONTypeBool:
		return model.Bool(v.B)
	default:
		return model.Null()
	}
}

// fetchAllJSONDocs pins the column once and copies out the document refs;
// nil entries are null rows.
func (e *UnaryFilter) fetchAllJSONDocs(ctx context.Context) ([][]byte, error) {
	docs := make([][]byte, e.col.NumRows())
	for cid := 0; cid < e.col.NumChunks(); cid++ {
		pw, err := e.col.GetChunk(ctx, cid)
		if err != nil {
			return nil, err
		}
		ch := pw.Get()
		base := e.col.NumRowsUntilChunk(cid)
		for i := 0; i < ch.Rows(); i++ {
			if ch.IsValid(i) {
				docs[base+i] = ch.JSONAt(i)
			}
		}
		pw.Release()
	}
	return docs, nil
}
