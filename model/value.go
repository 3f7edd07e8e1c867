package model

import "fmt"

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindInvalid represents an invalid kind.
	KindInvalid Kind = iota
	// KindNull represents a null value.
	KindNull
	// KindBool represents a boolean value.
	KindBool
	// KindInt represents an integer value.
	KindInt
	// KindFloat represents a float value.
	KindFloat
	// KindString represents a string value.
	KindString
	// KindArray represents an array value.
	KindArray
)

// Value is a small typed value used for predicate literals and array elements.
//
// The representation is designed to make comparison fast and predictable:
// no reflection and no fmt-based stringification.
type Value struct {
	Kind Kind
	I64  int64
	F64  float64
	Str  string
	B    bool
	A    []Value
}

// Null returns a null Value.
func Null() Value { return Value{Kind: KindNull} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{Kind: KindBool, B: b} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{Kind: KindInt, I64: i} }

// Float returns a float Value.
func Float(f float64) Value { return Value{Kind: KindFloat, F64: f} }

// String returns a string Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Array returns an array Value.
func Array(elems ...Value) Value { return Value{Kind: KindArray, A: elems} }

// IsNumber reports whether the value is an int or a float.
func (v Value) IsNumber() bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

// AsFloat64 widens a numeric value to float64. Non-numbers yield 0.
func (v Value) AsFloat64() float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.I64)
	case KindFloat:
		return v.F64
	default:
		return 0
	}
}

// GoString helps test failure output stay readable.
func (v Value) GoString() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.B)
	case KindInt:
		return fmt.Sprintf("%d", v.I64)
	case KindFloat:
		return fmt.Sprintf("%g", v.F64)
	case KindString:
		return fmt.Sprintf("%q", v.Str)
	case KindArray:
		return fmt.Sprintf("%#v", v.A)
	default:
		return "invalid"
	}
}

// ValueEqual compares two values for equality.
//
// Numeric comparison widens int↔float to float64; when both sides are ints
// the exact integer compare is used. A string never equals a number, and
// null only equals null. Arrays compare element-wise with the same rules.
func ValueEqual(a, b Value) bool {
	if a.Kind == KindNull && b.Kind == KindNull {
		return true
	}
	if a.Kind == KindNull || b.Kind == KindNull {
		return false
	}

	if a.IsNumber() && b.IsNumber() {
		if a.Kind == KindInt && b.Kind == KindInt {
			return a.I64 == b.I64
		}
		return a.AsFloat64() == b.AsFloat64()
	}

	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case KindBool:
		return a.B == b.B
	case KindString:
		return a.Str == b.Str
	case KindArray:
		if len(a.A) != len(b.A) {
			return false
		}
		for i := range a.A {
			if !ValueEqual(a.A[i], b.A[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ValueCompare applies a comparison operator to two values.
//
// Ordering is defined for number-vs-number (widened) and string-vs-string.
// Every other combination orders as false, matching the engine's
// null-as-distinct comparison rules. Equality delegates to ValueEqual.
func ValueCompare(a, b Value, op OpType) bool {
	switch op {
	case OpEqual:
		return ValueEqual(a, b)
	case OpNotEqual:
		return !ValueEqual(a, b)
	}

	if a.IsNumber() && b.IsNumber() {
		af, bf := a.AsFloat64(), b.AsFloat64()
		switch op {
		case OpGreaterThan:
			return af > bf
		case OpGreaterEqual:
			return af >= bf
		case OpLessThan:
			return af < bf
		case OpLessEqual:
			return af <= bf
		}
		return false
	}

	if a.Kind == KindString && b.Kind == KindString {
		switch op {
		case OpGreaterThan:
			return a.Str > b.Str
		case OpGreaterEqual:
			return a.Str >= b.Str
		case OpLessThan:
			return a.Str < b.Str
		case OpLessEqual:
			return a.Str <= b.Str
		}
	}

	return false
}
