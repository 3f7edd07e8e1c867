package expr

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/segcore/column"
	"github.com/hupe1980/segcore/internal/bitset"
	"github.com/hupe1980/segcore/model"
)

// execArrayScan evaluates the batch over an ARRAY column.
func (e *UnaryFilter) execArrayScan(ctx context.Context, batch int) (*Result, error) {
	pred, err := e.arrayPredicate()
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
			res.Match.SetTo(pos, pred(ch.ArrayAt(i)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// arrayPredicate resolves the per-row ARRAY comparison.
//
// With a nested index the predicate targets the element at that index (a
// row whose array is shorter is false). Without one, the literal must be a
// whole array and only deep equality is defined.
func (e *UnaryFilter) arrayPredicate() (func(v column.ArrayValue) bool, error) {
	if e.nestedIdx < 0 {
		if e.val.Kind != model.KindArray {
			return nil, fmt.Errorf("%w: %v literal on whole-array predicate", model.ErrDataTypeInvalid, e.val.Kind)
		}
		switch e.op {
		case model.OpEqual:
			return func(v column.ArrayValue) bool {
				return model.ValueEqual(v.AsValue(), e.val)
			}, nil
		case model.OpNotEqual:
			return func(v column.ArrayValue) bool {
				return !model.ValueEqual(v.AsValue(), e.val)
			}, nil
		default:
			return nil, fmt.Errorf("%w: %s on whole-array predicate", model.ErrOpTypeInvalid, e.op)
		}
	}

	if e.val.Kind == model.KindArray {
		return nil, fmt.Errorf("%w: array literal with nested index", model.ErrDataTypeInvalid)
	}
	scalar, err := e.scalarValuePredicate()
	if err != nil {
		return nil, err
	}
	idx := e.nestedIdx
	return func(v column.ArrayValue) bool {
		if idx >= v.Len() {
			return false
		}
		return scalar(v.At(idx))
	}, nil
}

// scalarValuePredicate builds a model.Value row predicate honoring the
// cross-type rules: numbers widen among themselves, strings only match
// strings, and a type mismatch is false for every op except NotEqual.
func (e *UnaryFilter) scalarValuePredicate() (func(v model.Value) bool, error) {
	lit := e.val

	if lit.Kind == model.KindString && e.op.IsStringMatch() {
		pred, err := e.stringValueMatch()
		if err != nil {
			return nil, err
		}
		return func(v model.Value) bool {
			if v.Kind != model.KindString {
				return false
			}
			return pred(v.Str)
		}, nil
	}

	if !e.op.IsComparison() {
		return nil, fmt.Errorf("%w: %s on scalar value", model.ErrOpTypeInvalid, e.op)
	}

	return func(v model.Value) bool {
		if comparableKinds(v, lit) {
			return model.ValueCompare(v, lit, e.op)
		}
		return e.op == model.OpNotEqual
	}, nil
}

// stringValueMatch resolves the substring-style ops against the literal.
func (e *UnaryFilter) stringValueMatch() (func(s string) bool, error) {
	if err := e.initArg(); err != nil {
		return nil, err
	}
	lit := e.val.Str
	switch e.op {
	case model.OpPrefixMatch:
		return func(s string) bool { return len(s) >= len(lit) && s[:len(lit)] == lit }, nil
	case model.OpPostfixMatch:
		return func(s string) bool { return len(s) >= len(lit) && s[len(s)-len(lit):] == lit }, nil
	case model.OpInnerMatch:
		return func(s string) bool { return strings.Contains(s, lit) }, nil
	case model.OpMatch:
		if e.arg.matcher == nil {
			return nil, fmt.Errorf("%w: match pattern not translated", model.ErrUnknown)
		}
		return e.arg.matcher.Matches, nil
	default:
		return nil, fmt.Errorf("%w: %s", model.ErrOpTypeInvalid, e.op)
	}
}

func comparableKinds(v, lit model.Value) bool {
	if v.IsNumber() && lit.IsNumber() {
		return true
	}
	if v.Kind == lit.Kind {
		return v.Kind == model.KindString || v.Kind == model.KindBool || v.Kind == model.KindArray
	}
	return false
}
