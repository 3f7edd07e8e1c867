package index

import (
	"fmt"
	"math"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/segcore/model"
)

// InvertedTextIndex is an in-memory full-text index: term → postings plus
// per-(term,row) positions for phrase queries. Tokenization is lowercase
// whitespace splitting; real analyzers live outside this engine.
type InvertedTextIndex struct {
	postings  map[string]*roaring.Bitmap
	positions map[string]map[uint32][]uint32
	notNull   *roaring.Bitmap
	numRows   int
}

var _ TextIndex = (*InvertedTextIndex)(nil)

// NewInvertedTextIndex indexes docs; a nil entry is a null row.
func NewInvertedTextIndex(docs []*string) *InvertedTextIndex {
	idx := &InvertedTextIndex{
		postings:  make(map[string]*roaring.Bitmap),
		positions: make(map[string]map[uint32][]uint32),
		notNull:   roaring.New(),
		numRows:   len(docs),
	}
	for row, doc := range docs {
		if doc == nil {
			continue
		}
		r := uint32(row)
		idx.notNull.Add(r)
		for pos, term := range tokenize(*doc) {
			bm, ok := idx.postings[term]
			if !ok {
				bm = roaring.New()
				idx.postings[term] = bm
				idx.positions[term] = make(map[uint32][]uint32)
			}
			bm.Add(r)
			idx.positions[term][r] = append(idx.positions[term][r], uint32(pos))
		}
	}
	return idx
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// NumIndexedRows returns how many rows the index covered at build time.
func (idx *InvertedTextIndex) NumIndexedRows() int { return idx.numRows }

// IsNotNull returns the non-null rows at build time.
func (idx *InvertedTextIndex) IsNotNull() *roaring.Bitmap { return idx.notNull.Clone() }

// MatchQuery returns rows containing any query term.
func (idx *InvertedTextIndex) MatchQuery(text string) (*roaring.Bitmap, error) {
	res := roaring.New()
	for _, term := range tokenize(text) {
		if bm, ok := idx.postings[term]; ok {
			res.Or(bm)
		}
	}
	return res, nil
}

// PhraseMatchQuery returns rows containing the query terms in order, with
// at most slop extra positions between the first and last term beyond the
// exact phrase width.
func (idx *InvertedTextIndex) PhraseMatchQuery(text string, slop uint32) (*roaring.Bitmap, error) {
	terms := tokenize(text)
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: empty phrase", model.ErrInvalidParameter)
	}

	// Candidate rows contain every term.
	var cand *roaring.Bitmap
	for _, term := range terms {
		bm, ok := idx.postings[term]
		if !ok {
			return roaring.New(), nil
		}
		if cand == nil {
			cand = bm.Clone()
		} else {
			cand.And(bm)
		}
	}
	if len(terms) == 1 {
		return cand, nil
	}

	res := roaring.New()
	it := cand.Iterator()
	for it.HasNext() {
		row := it.Next()
		if idx.phraseInRow(terms, row, slop) {
			res.Add(row)
		}
	}
	return res, nil
}

// phraseInRow checks for increasing positions p_1 < ... < p_k whose total
// displacement from a contiguous run is at most slop.
func (idx *InvertedTextIndex) phraseInRow(terms []string, row uint32, slop uint32) bool {
	for _, start := range idx.positions[terms[0]][row] {
		prev := start
		total := uint64(0)
		ok := true
		for _, term := range terms[1:] {
			next := uint32(math.MaxUint32)
			for _, p := range idx.positions[term][row] {
				if p > prev && p < next {
					next = p
				}
			}
			if next == math.MaxUint32 {
				ok = false
				break
			}
			total += uint64(next - prev - 1)
			prev = next
		}
		if ok && total <= uint64(slop) {
			return true
		}
	}
	return false
}
