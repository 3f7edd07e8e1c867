package column

import (
	"github.com/hupe1980/segcore/model"
)

// ArrayValue is one row of an ARRAY column: a typed scalar array.
type ArrayValue struct {
	ElemType model.DataType
	Elems    []model.Value
}

// Len returns the number of elements.
func (a ArrayValue) Len() int { return len(a.Elems) }

// At returns the element at i, or a null value when out of bounds.
func (a ArrayValue) At(i int) model.Value {
	if i < 0 || i >= len(a.Elems) {
		return model.Null()
	}
	return a.Elems[i]
}

// AsValue converts the array into a model.Value for deep comparisons.
func (a ArrayValue) AsValue() model.Value {
	return model.Value{Kind: model.KindArray, A: a.Elems}
}

func (a ArrayValue) byteSize() int64 {
	size := int64(16)
	for _, e := range a.Elems {
		size += 16
		if e.Kind == model.KindString {
			size += int64(len(e.Str))
		}
	}
	return size
}

// Chunk is a contiguous, immutable run of column rows and the cache cell
// payload of a chunked column: one cell per chunk. Exactly one of the typed
// slices is populated, matching the chunk's data type.
type Chunk struct {
	typ   model.DataType
	rows  int
	valid []bool // nil means all rows valid

	bools    []bool
	int8s    []int8
	int16s   []int16
	int32s   []int32
	int64s   []int64
	float32s []float32
	float64s []float64
	strings  []string
	jsons    [][]byte
	arrays   []ArrayValue
	vectors  [][][]float32 // VECTOR_ARRAY: per row, an array of float32 vectors
}

// NewBoolChunk builds a BOOL chunk.
func NewBoolChunk(values []bool, valid []bool) *Chunk {
	return &Chunk{typ: model.DataTypeBool, rows: len(values), valid: valid, bools: values}
}

// NewInt8Chunk builds an INT8 chunk.
func NewInt8Chunk(values []int8, valid []bool) *Chunk {
	return &Chunk{typ: model.DataTypeInt8, rows: len(values), valid: valid, int8s: values}
}

// NewInt16Chunk builds an INT16 chunk.
func NewInt16Chunk(values []int16, valid []bool) *Chunk {
	return &Chunk{typ: model.DataTypeInt16, rows: len(values), valid: valid, int16s: values}
}

// NewInt32Chunk builds an INT32 chunk.
func NewInt32Chunk(values []int32, valid []bool) *Chunk {
	return &Chunk{typ: model.DataTypeInt32, rows: len(values), valid: valid, int32s: values}
}

// NewInt64Chunk builds an INT64 chunk.
func NewInt64Chunk(values []int64, valid []bool) *Chunk {
	return &Chunk{typ: model.DataTypeInt64, rows: len(values), valid: valid, int64s: values}
}

// NewFloatChunk builds a FLOAT chunk.
func NewFloatChunk(values []float32, valid []bool) *Chunk {
	return &Chunk{typ: model.DataTypeFloat, rows: len(values), valid: valid, float32s: values}
}

// NewDoubleChunk builds a DOUBLE chunk.
func NewDoubleChunk(values []float64, valid []bool) *Chunk {
	return &Chunk{typ: model.DataTypeDouble, rows: len(values), valid: valid, float64s: values}
}

// NewStringChunk builds a VARCHAR chunk.
func NewStringChunk(values []string, valid []bool) *Chunk {
	return &Chunk{typ: model.DataTypeVarChar, rows: len(values), valid: valid, strings: values}
}

// NewJSONChunk builds a JSON chunk of raw documents.
func NewJSONChunk(docs [][]byte, valid []bool) *Chunk {
	return &Chunk{typ: model.DataTypeJSON, rows: len(docs), valid: valid, jsons: docs}
}

// NewArrayChunk builds an ARRAY chunk.
func NewArrayChunk(values []ArrayValue, valid []bool) *Chunk {
	return &Chunk{typ: model.DataTypeArray, rows: len(values), valid: valid, arrays: values}
}

// NewVectorArrayChunk builds a VECTOR_ARRAY chunk.
func NewVectorArrayChunk(values [][][]float32, valid []bool) *Chunk {
	return &Chunk{typ: model.DataTypeVectorArray, rows: len(values), valid: valid, vectors: values}
}

// DataType returns the chunk's element type.
func (c *Chunk) DataType() model.DataType { return c.typ }

// Rows returns the number of rows in the chunk.
func (c *Chunk) Rows() int { return c.rows }

// IsValid reports whether the row holds a non-null value.
func (c *Chunk) IsValid(row int) bool {
	if row < 0 || row >= c.rows {
		return false
	}
	return c.valid == nil || c.valid[row]
}

// Bools returns the backing slice of a BOOL chunk.
func (c *Chunk) Bools() []bool { return c.bools }

// Int8s returns the backing slice of an INT8 chunk.
func (c *Chunk) Int8s() []int8 { return c.int8s }

// Int16s returns the backing slice of an INT16 chunk.
func (c *Chunk) Int16s() []int16 { return c.int16s }

// Int32s returns the backing slice of an INT32 chunk.
func (c *Chunk) Int32s() []int32 { return c.int32s }

// Int64s returns the backing slice of an INT64 chunk.
func (c *Chunk) Int64s() []int64 { return c.int64s }

// Float32s returns the backing slice of a FLOAT chunk.
func (c *Chunk) Float32s() []float32 { return c.float32s }

// Float64s returns the backing slice of a DOUBLE chunk.
func (c *Chunk) Float64s() []float64 { return c.float64s }

// StringAt returns the string at row.
func (c *Chunk) StringAt(row int) string { return c.strings[row] }

// JSONAt returns the raw JSON document at row.
func (c *Chunk) JSONAt(row int) []byte { return c.jsons[row] }

// ArrayAt returns the array at row.
func (c *Chunk) ArrayAt(row int) ArrayValue { return c.arrays[row] }

// VectorArrayAt returns the vector array at row.
func (c *Chunk) VectorArrayAt(row int) [][]float32 { return c.vectors[row] }

// ValueAt returns the row as a model.Value. Null rows yield a null value.
// VECTOR_ARRAY rows are not representable and yield null.
func (c *Chunk) ValueAt(row int) model.Value {
	if !c.IsValid(row) {
		return model.Null()
	}
	switch c.typ {
	case model.DataTypeBool:
		return model.Bool(c.bools[row])
	case model.DataTypeInt8:
		return model.Int(int64(c.int8s[row]))
	case model.DataTypeInt16:
		return model.Int(int64(c.int16s[row]))
	case model.DataTypeInt32:
		return model.Int(int64(c.int32s[row]))
	case model.DataTypeInt64:
		return model.Int(c.int64s[row])
	case model.DataTypeFloat:
		return model.Float(float64(c.float32s[row]))
	case model.DataTypeDouble:
		return model.Float(c.float64s[row])
	case model.DataTypeVarChar:
		return model.String(c.strings[row])
	case model.DataTypeJSON:
		return model.String(string(c.jsons[row]))
	case model.DataTypeArray:
		return c.arrays[row].AsValue()
	default:
		return model.Null()
	}
}

// ByteSize reports the memory the chunk occupies; the cache charges loaded
// chunks by this.
func (c *Chunk) ByteSize() int64 {
	size := int64(len(c.valid))
	switch c.typ {
	case model.DataTypeBool:
		size += int64(len(c.bools))
	case model.DataTypeInt8:
		size += int64(len(c.int8s))
	case model.DataTypeInt16:
		size += int64(len(c.int16s)) * 2
	case model.DataTypeInt32:
		size += int64(len(c.int32s)) * 4
	case model.DataTypeInt64:
		size += int64(len(c.int64s)) * 8
	case model.DataTypeFloat:
		size += int64(len(c.float32s)) * 4
	case model.DataTypeDouble:
		size += int64(len(c.float64s)) * 8
	case model.DataTypeVarChar:
		for _, s := range c.strings {
			size += int64(len(s)) + 16
		}
	case model.DataTypeJSON:
		for _, d := range c.jsons {
			size += int64(len(d)) + 24
		}
	case model.DataTypeArray:
		for _, a := range c.arrays {
			size += a.byteSize()
		}
	case model.DataTypeVectorArray:
		for _, vecs := range c.vectors {
			size += 24
			for _, v := range vecs {
				size += int64(len(v))*4 + 24
			}
		}
	}
	return size
}
