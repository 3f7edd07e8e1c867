package expr

import (
	"context"
	"fmt"
	"math"

	"github.com/hupe1980/segcore/internal/bitset"
	"github.com/hupe1980/segcore/match"
	"github.com/hupe1980/segcore/model"
)

// valueArg caches the literal converted to the column's native shape so the
// conversion and pattern compilation happen once per filter, not per batch.
type valueArg struct {
	inited  bool
	i64     int64
	f64     float64
	b       bool
	str     string
	matcher *match.Matcher
}

// initArg validates the literal against the column type and fills the
// cache. Mismatches are DataTypeInvalid, fatal to the batch.
func (e *UnaryFilter) initArg() error {
	if e.arg.inited {
		return nil
	}

	switch e.dataType {
	case model.DataTypeBool:
		if e.val.Kind != model.KindBool {
			return fmt.Errorf("%w: %v literal on BOOL column", model.ErrDataTypeInvalid, e.val.Kind)
		}
		e.arg.b = e.val.B

	case model.DataTypeInt8, model.DataTypeInt16, model.DataTypeInt32, model.DataTypeInt64:
		if e.val.Kind != model.KindInt {
			return fmt.Errorf("%w: %v literal on %s column", model.ErrDataTypeInvalid, e.val.Kind, e.dataType)
		}
		e.arg.i64 = e.val.I64

	case model.DataTypeFloat, model.DataTypeDouble:
		if !e.val.IsNumber() {
			return fmt.Errorf("%w: %v literal on %s column", model.ErrDataTypeInvalid, e.val.Kind, e.dataType)
		}
		e.arg.f64 = e.val.AsFloat64()

	case model.DataTypeVarChar:
		if e.val.Kind != model.KindString {
			return fmt.Errorf("%w: %v literal on VARCHAR column", model.ErrDataTypeInvalid, e.val.Kind)
		}
		e.arg.str = e.val.Str
		if e.op == model.OpMatch {
			m, err := match.Translate(e.val.Str)
			if err != nil {
				return err
			}
			e.arg.matcher = m
		}

	case model.DataTypeJSON, model.DataTypeArray:
		// JSON and ARRAY literals stay generic; per-row comparison handles
		// the widening rules.
		if e.val.Kind == model.KindString && e.op == model.OpMatch {
			m, err := match.Translate(e.val.Str)
			if err != nil {
				return err
			}
			e.arg.matcher = m
		}

	default:
		return fmt.Errorf("%w: %s", model.ErrDataTypeInvalid, e.dataType)
	}

	e.arg.inited = true
	return nil
}

// intRange returns the representable range of an integral column type.
func intRange(t model.DataType) (int64, int64, bool) {
	switch t {
	case model.DataTypeInt8:
		return math.MinInt8, math.MaxInt8, true
	case model.DataTypeInt16:
		return math.MinInt16, math.MaxInt16, true
	case model.DataTypeInt32:
		return math.MinInt32, math.MaxInt32, true
	default:
		return 0, 0, false
	}
}

// preCheckOverflow short-circuits integral predicates whose literal lies
// outside the column's representable range. It runs before both data and
// index scans. done=false means the literal is in range and the caller
// proceeds normally; otherwise res carries the whole answer for the batch.
//
// offsets is the upstream selection vector when present, nil otherwise.
func (e *UnaryFilter) preCheckOverflow(ctx context.Context, batch int, offsets []int32) (res *Result, done bool, err error) {
	if !e.dataType.IsInteger() {
		return nil, false, nil
	}
	lo, hi, bounded := intRange(e.dataType)
	if !bounded {
		return nil, false, nil
	}
	lit := e.val.I64
	if e.val.Kind != model.KindInt || (lit >= lo && lit <= hi) {
		return nil, false, nil
	}

	var valid *bitset.BitSet
	if offsets != nil {
		valid = bitset.New(batch)
		err = e.col.BulkIsValid(ctx, func(i int, ok bool) {
			valid.SetTo(i, ok)
		}, offsets)
	} else {
		valid, err = e.batchValid(ctx, batch)
	}
	if err != nil {
		return nil, false, err
	}

	out := &Result{Match: bitset.New(batch), Valid: valid}
	allTrue := func() {
		out.Match.SetAll()
		out.Match.And(valid)
	}

	switch e.op {
	case model.OpGreaterThan, model.OpGreaterEqual:
		if lit < lo {
			allTrue()
		}
	case model.OpLessThan, model.OpLessEqual:
		if lit > hi {
			allTrue()
		}
	case model.OpEqual:
		// No representable value equals the literal.
	case model.OpNotEqual:
		allTrue()
	default:
		return nil, false, fmt.Errorf("%w: %s on %s column", model.ErrOpTypeInvalid, e.op, e.dataType)
	}
	return out, true, nil
}
