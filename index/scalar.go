package index

import (
	"fmt"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/segcore/model"
)

// SortedScalarIndex is an in-memory scalar index over a columnar
// (value, rowID) layout sorted by value, in the manner of a sealed-segment
// numeric index: range queries are binary searches over the values array,
// results are built with bulk bitmap adds.
type SortedScalarIndex struct {
	kind model.IndexType

	// Numeric entries, sorted ascending by value. Bools index as 0/1.
	nums    []float64
	numRows []uint32

	// String entries, sorted ascending by value.
	strs    []string
	strRows []uint32

	notNull *roaring.Bitmap
}

var _ ScalarIndex = (*SortedScalarIndex)(nil)

// ScalarEntry is one non-null row fed to the builder.
type ScalarEntry struct {
	Row   uint32
	Value model.Value
}

// NewSortedScalarIndex builds the index from non-null rows. Numeric values
// widen to float64; string values keep their natural order. Mixing numbers
// and strings in one index is rejected.
func NewSortedScalarIndex(entries []ScalarEntry) (*SortedScalarIndex, error) {
	idx := &SortedScalarIndex{
		kind:    model.IndexTypeSorted,
		notNull: roaring.New(),
	}
	for _, e := range entries {
		switch {
		case e.Value.IsNumber():
			idx.nums = append(idx.nums, e.Value.AsFloat64())
			idx.numRows = append(idx.numRows, e.Row)
		case e.Value.Kind == model.KindBool:
			v := 0.0
			if e.Value.B {
				v = 1.0
			}
			idx.nums = append(idx.nums, v)
			idx.numRows = append(idx.numRows, e.Row)
		case e.Value.Kind == model.KindString:
			idx.strs = append(idx.strs, e.Value.Str)
			idx.strRows = append(idx.strRows, e.Row)
		default:
			return nil, fmt.Errorf("%w: scalar index over %v", model.ErrDataTypeInvalid, e.Value.Kind)
		}
		idx.notNull.Add(e.Row)
	}
	if len(idx.nums) > 0 && len(idx.strs) > 0 {
		return nil, fmt.Errorf("%w: mixed numeric and string entries", model.ErrDataTypeInvalid)
	}

	sort.Sort(byNum{idx})
	sort.Sort(byStr{idx})
	return idx, nil
}

type byNum struct{ idx *SortedScalarIndex }

func (s byNum) Len() int           { return len(s.idx.nums) }
func (s byNum) Less(i, j int) bool { return s.idx.nums[i] < s.idx.nums[j] }
func (s byNum) Swap(i, j int) {
	s.idx.nums[i], s.idx.nums[j] = s.idx.nums[j], s.idx.nums[i]
	s.idx.numRows[i], s.idx.numRows[j] = s.idx.numRows[j], s.idx.numRows[i]
}

type byStr struct{ idx *SortedScalarIndex }

func (s byStr) Len() int           { return len(s.idx.strs) }
func (s byStr) Less(i, j int) bool { return s.idx.strs[i] < s.idx.strs[j] }
func (s byStr) Swap(i, j int) {
	s.idx.strs[i], s.idx.strs[j] = s.idx.strs[j], s.idx.strs[i]
	s.idx.strRows[i], s.idx.strRows[j] = s.idx.strRows[j], s.idx.strRows[i]
}

// IndexType identifies the backend.
func (idx *SortedScalarIndex) IndexType() model.IndexType { return idx.kind }

// NotNull returns the rows the index covers.
func (idx *SortedScalarIndex) NotNull() *roaring.Bitmap { return idx.notNull }

// Apply evaluates `value OP val` over the indexed rows.
func (idx *SortedScalarIndex) Apply(op model.OpType, val model.Value) (*roaring.Bitmap, error) {
	if val.Kind == model.KindString {
		return idx.applyString(op, val.Str)
	}
	if val.IsNumber() || val.Kind == model.KindBool {
		f := val.AsFloat64()
		if val.Kind == model.KindBool {
			f = 0
			if val.B {
				f = 1
			}
		}
		return idx.applyNumeric(op, f)
	}
	return nil, fmt.Errorf("%w: scalar index literal %v", model.ErrDataTypeInvalid, val.Kind)
}

func (idx *SortedScalarIndex) applyNumeric(op model.OpType, val float64) (*roaring.Bitmap, error) {
	lower := sort.SearchFloat64s(idx.nums, val)
	upper := sort.Search(len(idx.nums), func(i int) bool { return idx.nums[i] > val })

	res := roaring.New()
	addRange := func(from, to int) {
		if from < to {
			res.AddMany(idx.numRows[from:to])
		}
	}
	switch op {
	case model.OpEqual:
		addRange(lower, upper)
	case model.OpNotEqual:
		addRange(0, lower)
		addRange(upper, len(idx.nums))
	case model.OpGreaterThan:
		addRange(upper, len(idx.nums))
	case model.OpGreaterEqual:
		addRange(lower, len(idx.nums))
	case model.OpLessThan:
		addRange(0, lower)
	case model.OpLessEqual:
		addRange(0, upper)
	default:
		return nil, fmt.Errorf("%w: %s on numeric scalar index", model.ErrUnsupported, op)
	}
	return res, nil
}

func (idx *SortedScalarIndex) applyString(op model.OpType, val string) (*roaring.Bitmap, error) {
	lower := sort.SearchStrings(idx.strs, val)
	upper := sort.Search(len(idx.strs), func(i int) bool { return idx.strs[i] > val })

	res := roaring.New()
	addRange := func(from, to int) {
		if from < to {
			res.AddMany(idx.strRows[from:to])
		}
	}
	switch op {
	case model.OpEqual:
		addRange(lower, upper)
	case model.OpNotEqual:
		addRange(0, lower)
		addRange(upper, len(idx.strs))
	case model.OpGreaterThan:
		addRange(upper, len(idx.strs))
	case model.OpGreaterEqual:
		addRange(lower, len(idx.strs))
	case model.OpLessThan:
		addRange(0, lower)
	case model.OpLessEqual:
		addRange(0, upper)
	case model.OpPrefixMatch:
		// Prefix is a contiguous range in sorted order.
		from := sort.SearchStrings(idx.strs, val)
		for i := from; i < len(idx.strs) && strings.HasPrefix(idx.strs[i], val); i++ {
			res.Add(idx.strRows[i])
		}
	case model.OpPostfixMatch:
		for i, s := range idx.strs {
			if strings.HasSuffix(s, val) {
				res.Add(idx.strRows[i])
			}
		}
	case model.OpInnerMatch:
		for i, s := range idx.strs {
			if strings.Contains(s, val) {
				res.Add(idx.strRows[i])
			}
		}
	default:
		// Match (LIKE) and the text ops are not served here; the executor
		// falls back.
		return nil, fmt.Errorf("%w: %s on string scalar index", model.ErrUnsupported, op)
	}
	return res, nil
}
