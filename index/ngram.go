package index

import (
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/segcore/match"
	"github.com/hupe1980/segcore/model"
)

// gramSize is the n of the n-gram index.
const gramSize = 3

// TrigramIndex is an in-memory n-gram index over a string column. Grams of
// the literal narrow the candidate set; candidates are then verified
// against the stored values so the result is exact. Patterns whose literal
// parts are shorter than one gram are declined and the caller falls back.
type TrigramIndex struct {
	grams  map[string]*roaring.Bitmap
	values []*string // nil entry = null row
}

var _ NgramIndex = (*TrigramIndex)(nil)

// NewTrigramIndex indexes values; a nil entry is a null row.
func NewTrigramIndex(values []*string) *TrigramIndex {
	idx := &TrigramIndex{
		grams:  make(map[string]*roaring.Bitmap),
		values: values,
	}
	for row, v := range values {
		if v == nil {
			continue
		}
		for _, g := range gramsOf(*v) {
			bm, ok := idx.grams[g]
			if !ok {
				bm = roaring.New()
				idx.grams[g] = bm
			}
			bm.Add(uint32(row))
		}
	}
	return idx
}

func gramsOf(s string) []string {
	if len(s) < gramSize {
		return nil
	}
	grams := make([]string, 0, len(s)-gramSize+1)
	for i := 0; i+gramSize <= len(s); i++ {
		grams = append(grams, s[i:i+gramSize])
	}
	return grams
}

// ExecuteQuery serves substring-style matches. ok=false means the pattern
// cannot be narrowed by n-grams; the caller must fall back to a scan.
func (idx *TrigramIndex) ExecuteQuery(literal string, op model.OpType) (*roaring.Bitmap, bool, error) {
	var verify func(s string) bool
	var literals []string

	switch op {
	case model.OpPrefixMatch:
		literals = []string{literal}
		verify = func(s string) bool { return len(s) >= len(literal) && s[:len(literal)] == literal }
	case model.OpPostfixMatch:
		literals = []string{literal}
		verify = func(s string) bool { return len(s) >= len(literal) && s[len(s)-len(literal):] == literal }
	case model.OpInnerMatch:
		literals = []string{literal}
		verify = func(s string) bool { return strings.Contains(s, literal) }
	case model.OpMatch:
		m, err := match.Translate(literal)
		if err != nil {
			return nil, false, err
		}
		literals = m.LiteralRuns()
		verify = m.Matches
	default:
		return nil, false, nil
	}

	// Every literal run must contribute at least one gram, otherwise the
	// candidate set would be unbounded.
	var grams []string
	for _, lit := range literals {
		g := gramsOf(lit)
		if len(g) == 0 {
			return nil, false, nil
		}
		grams = append(grams, g...)
	}
	if len(grams) == 0 {
		return nil, false, nil
	}

	var cand *roaring.Bitmap
	for _, g := range grams {
		bm, ok := idx.grams[g]
		if !ok {
			return roaring.New(), true, nil
		}
		if cand == nil {
			cand = bm.Clone()
		} else {
			cand.And(bm)
		}
	}

	res := roaring.New()
	it := cand.Iterator()
	for it.HasNext() {
		row := it.Next()
		if v := idx.values[row]; v != nil && verify(*v) {
			res.Add(row)
		}
	}
	return res, true, nil
}
