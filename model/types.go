// Package model defines the shared vocabulary of the segment engine:
// data types, predicate operators, literal values and stable error kinds.
package model

import "fmt"

// FieldID identifies a column within a segment schema.
type FieldID int64

// RowID is a dense, segment-local identifier for a record.
type RowID uint32

// DataType enumerates the column element types the engine evaluates over.
type DataType uint8

const (
	// DataTypeNone represents an unset data type.
	DataTypeNone DataType = iota
	// DataTypeBool is a boolean column.
	DataTypeBool
	// DataTypeInt8 is an 8-bit signed integer column.
	DataTypeInt8
	// DataTypeInt16 is a 16-bit signed integer column.
	DataTypeInt16
	// DataTypeInt32 is a 32-bit signed integer column.
	DataTypeInt32
	// DataTypeInt64 is a 64-bit signed integer column.
	DataTypeInt64
	// DataTypeFloat is a 32-bit floating point column.
	DataTypeFloat
	// DataTypeDouble is a 64-bit floating point column.
	DataTypeDouble
	// DataTypeVarChar is a variable-length string column.
	DataTypeVarChar
	// DataTypeJSON is a column of raw JSON documents.
	DataTypeJSON
	// DataTypeArray is a column of typed scalar arrays.
	DataTypeArray
	// DataTypeVectorArray is a column of float32 vector arrays.
	DataTypeVectorArray
)

// String returns a human-readable name for the data type.
func (t DataType) String() string {
	switch t {
	case DataTypeBool:
		return "BOOL"
	case DataTypeInt8:
		return "INT8"
	case DataTypeInt16:
		return "INT16"
	case DataTypeInt32:
		return "INT32"
	case DataTypeInt64:
		return "INT64"
	case DataTypeFloat:
		return "FLOAT"
	case DataTypeDouble:
		return "DOUBLE"
	case DataTypeVarChar:
		return "VARCHAR"
	case DataTypeJSON:
		return "JSON"
	case DataTypeArray:
		return "ARRAY"
	case DataTypeVectorArray:
		return "VECTOR_ARRAY"
	default:
		return fmt.Sprintf("DataType(%d)", uint8(t))
	}
}

// IsInteger reports whether the type is a signed integer type.
func (t DataType) IsInteger() bool {
	switch t {
	case DataTypeInt8, DataTypeInt16, DataTypeInt32, DataTypeInt64:
		return true
	default:
		return false
	}
}

// IsFloating reports whether the type is a floating point type.
func (t DataType) IsFloating() bool {
	return t == DataTypeFloat || t == DataTypeDouble
}

// OpType enumerates the unary predicate operators.
type OpType uint8

const (
	// OpInvalid represents an unset operator.
	OpInvalid OpType = iota
	// OpGreaterThan is the > operator.
	OpGreaterThan
	// OpGreaterEqual is the >= operator.
	OpGreaterEqual
	// OpLessThan is the < operator.
	OpLessThan
	// OpLessEqual is the <= operator.
	OpLessEqual
	// OpEqual is the = operator.
	OpEqual
	// OpNotEqual is the != operator.
	OpNotEqual
	// OpPrefixMatch matches strings starting with the literal.
	OpPrefixMatch
	// OpPostfixMatch matches strings ending with the literal.
	OpPostfixMatch
	// OpInnerMatch matches strings containing the literal.
	OpInnerMatch
	// OpMatch matches strings against a SQL LIKE pattern.
	OpMatch
	// OpTextMatch matches rows via a full-text index query.
	OpTextMatch
	// OpPhraseMatch matches rows via a full-text phrase query.
	OpPhraseMatch
)

// String returns a human-readable name for the operator.
func (op OpType) String() string {
	switch op {
	case OpGreaterThan:
		return "GreaterThan"
	case OpGreaterEqual:
		return "GreaterEqual"
	case OpLessThan:
		return "LessThan"
	case OpLessEqual:
		return "LessEqual"
	case OpEqual:
		return "Equal"
	case OpNotEqual:
		return "NotEqual"
	case OpPrefixMatch:
		return "PrefixMatch"
	case OpPostfixMatch:
		return "PostfixMatch"
	case OpInnerMatch:
		return "InnerMatch"
	case OpMatch:
		return "Match"
	case OpTextMatch:
		return "TextMatch"
	case OpPhraseMatch:
		return "PhraseMatch"
	default:
		return fmt.Sprintf("OpType(%d)", uint8(op))
	}
}

// IsComparison reports whether the operator is one of the six range comparisons.
func (op OpType) IsComparison() bool {
	switch op {
	case OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual, OpEqual, OpNotEqual:
		return true
	default:
		return false
	}
}

// IsStringMatch reports whether the operator is a substring-style match.
func (op OpType) IsStringMatch() bool {
	switch op {
	case OpPrefixMatch, OpPostfixMatch, OpInnerMatch, OpMatch:
		return true
	default:
		return false
	}
}

// IndexType enumerates scalar index backends the executor may dispatch to.
type IndexType uint8

const (
	// IndexTypeNone means no index.
	IndexTypeNone IndexType = iota
	// IndexTypeSorted is a sorted-array index.
	IndexTypeSorted
	// IndexTypeInverted is an inverted index.
	IndexTypeInverted
	// IndexTypeHybrid is a hybrid index. Not a valid backend for the ARRAY index path.
	IndexTypeHybrid
	// IndexTypeBitmap is a bitmap index. Not a valid backend for the ARRAY index path.
	IndexTypeBitmap
)
