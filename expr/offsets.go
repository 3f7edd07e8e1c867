package expr

import (
	"context"
	"fmt"

	"github.com/hupe1980/segcore/column"
	"github.com/hupe1980/segcore/internal/bitset"
	"github.com/hupe1980/segcore/model"
)

// evalOffsets evaluates an upstream selection vector. Offset input forces
// the brute-force data path: text, n-gram, scalar and JSON-key indexes are
// all bypassed. The result length equals len(offsets).
func (e *UnaryFilter) evalOffsets(ctx context.Context, offsets []int32) (*Result, error) {
	if e.op == model.OpTextMatch || e.op == model.OpPhraseMatch {
		return nil, fmt.Errorf("%w: %s with offset input", model.ErrUnsupported, e.op)
	}
	if err := e.initArg(); err != nil {
		return nil, err
	}
	if res, done, err := e.preCheckOverflow(ctx, len(offsets), offsets); done || err != nil {
		return res, err
	}

	res := &Result{Match: bitset.New(len(offsets)), Valid: bitset.NewFull(len(offsets))}

	switch e.dataType {
	case model.DataTypeJSON:
		pred, err := e.jsonPredicate()
		if err != nil {
			return nil, err
		}
		err = e.col.BulkRawJSONAt(ctx, func(i int, doc []byte, valid bool) {
			if !valid {
				res.Valid.Clear(i)
				return
			}
			res.Match.SetTo(i, pred(doc))
		}, offsets)
		if err != nil {
			return nil, err
		}

	case model.DataTypeArray:
		pred, err := e.arrayPredicate()
		if err != nil {
			return nil, err
		}
		err = e.col.BulkArrayAt(ctx, func(i int, v column.ArrayValue, valid bool) {
			if !valid {
				res.Valid.Clear(i)
				return
			}
			res.Match.SetTo(i, pred(v))
		}, offsets)
		if err != nil {
			return nil, err
		}

	case model.DataTypeVectorArray:
		return nil, fmt.Errorf("%w: unary predicate over %s", model.ErrUnsupported, e.dataType)

	case model.DataTypeVarChar:
		pred, err := e.stringPredicate()
		if err != nil {
			return nil, err
		}
		err = e.col.BulkRawStringAt(ctx, func(i int, s string, valid bool) {
			if !valid {
				res.Valid.Clear(i)
				return
			}
			res.Match.SetTo(i, pred(s))
		}, offsets)
		if err != nil {
			return nil, err
		}

	default:
		pred, err := e.primitiveValuePredicate()
		if err != nil {
			return nil, err
		}
		err = e.col.BulkPrimitiveValueAt(ctx, func(i int, v model.Value, valid bool) {
			if !valid {
				res.Valid.Clear(i)
				return
			}
			res.Match.SetTo(i, pred(v))
		}, offsets)
		if err != nil {
			return nil, err
		}
	}

	return res, nil
}

// primitiveValuePredicate compares numeric and boolean rows surfaced as
// model.Values against the literal.
func (e *UnaryFilter) primitiveValuePredicate() (func(v model.Value) bool, error) {
	if e.dataType == model.DataTypeBool {
		if e.op != model.OpEqual && e.op != model.OpNotEqual {
			return nil, fmt.Errorf("%w: %s on BOOL column", model.ErrOpTypeInvalid, e.op)
		}
		want := e.arg.b
		notEqual := e.op == model.OpNotEqual
		return func(v model.Value) bool {
			match := v.Kind == model.KindBool && v.B == want
			if notEqual {
				return !match
			}
			return match
		}, nil
	}

	if !e.op.IsComparison() {
		return nil, fmt.Errorf("%w: %s on %s column", model.ErrOpTypeInvalid, e.op, e.dataType)
	}
	lit := e.val
	op := e.op
	return func(v model.Value) bool {
		return model.ValueCompare(v, lit, op)
	}, nil
}
