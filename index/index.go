// Package index defines the narrow contracts the predicate executor
// dispatches to, plus in-memory reference implementations. The executor
// treats every index as opaque: it sees bitmaps of matching rows and
// nothing else.
package index

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/segcore/model"
)

// ScalarIndex answers unary predicates over a scalar column.
//
// Apply returns the rows whose non-null value satisfies `value OP val`.
// An op the index cannot serve fails with model.ErrUnsupported, which the
// executor treats as "fall back to a data scan".
type ScalarIndex interface {
	Apply(op model.OpType, val model.Value) (*roaring.Bitmap, error)
	IndexType() model.IndexType
}

// TextIndex answers full-text and phrase queries. Results cover the rows
// indexed at build time; rows added afterwards are implicitly false.
type TextIndex interface {
	MatchQuery(text string) (*roaring.Bitmap, error)
	// PhraseMatchQuery matches the exact token sequence, allowing up to
	// slop displaced positions.
	PhraseMatchQuery(text string, slop uint32) (*roaring.Bitmap, error)
	IsNotNull() *roaring.Bitmap
	// NumIndexedRows returns how many rows the index covered at build time.
	NumIndexedRows() int
}

// NgramIndex accelerates substring-style matches. ok=false means the
// pattern cannot be served by n-grams and the caller must fall back.
type NgramIndex interface {
	ExecuteQuery(literal string, op model.OpType) (bm *roaring.Bitmap, ok bool, err error)
}

// JSONType tags the primitive an inline JSON-key index entry holds.
type JSONType uint8

const (
	// JSONTypeInt64 is an integral JSON number.
	JSONTypeInt64 JSONType = iota
	// JSONTypeDouble is a floating JSON number.
	JSONTypeDouble
	// JSONTypeFloat is a floating JSON number stored narrow.
	JSONTypeFloat
	// JSONTypeString is a JSON string.
	JSONTypeString
	// JSONTypeBool is a JSON boolean.
	JSONTypeBool
)

// InlineValue is a primitive the JSON-key index extracted at build time.
type InlineValue struct {
	Type JSONType
	I64  int64
	F64  float64
	Str  string
	B    bool
}

// JSONFilterFunc decides one row. inlined is true when the index holds the
// row's primitive value; when false the index could not inline it (missing
// path, non-primitive value, or a row past the build point) and the caller
// must resolve the row against the column itself.
type JSONFilterFunc func(row uint32, inlined bool, v InlineValue) bool

// JSONKeyIndex maps a JSON pointer to per-row primitive entries.
type JSONKeyIndex interface {
	// FilterByPath runs fn over every row in [0, activeCount) and returns
	// the rows fn accepted.
	FilterByPath(path string, activeCount int, isGrowing, strongConsistency bool,
		fn JSONFilterFunc) (*roaring.Bitmap, error)
}
