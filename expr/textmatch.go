package expr

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/segcore/internal/bitset"
	"github.com/hupe1980/segcore/model"
)

// execTextMatch answers text and phrase queries from the full-text index.
// The whole active range is materialized once and sliced per batch. On
// growing segments, rows past the index build point are false with a false
// valid bit (the index's is-not-null extended with false).
func (e *UnaryFilter) execTextMatch(_ context.Context, batch int) (*Result, error) {
	if e.textIdx == nil {
		return nil, fmt.Errorf("%w: %s without a text index", model.ErrUnsupported, e.op)
	}
	if e.val.Kind != model.KindString {
		return nil, fmt.Errorf("%w: %v literal for %s", model.ErrDataTypeInvalid, e.val.Kind, e.op)
	}

	if e.cachedMatch == nil {
		var bm *roaring.Bitmap
		var err error
		if e.op == model.OpTextMatch {
			bm, err = e.textIdx.MatchQuery(e.val.Str)
		} else {
			bm, err = e.textIdx.PhraseMatchQuery(e.val.Str, e.slop)
		}
		if err != nil {
			return nil, err
		}

		covered := e.textIdx.NumIndexedRows()
		if covered > e.activeCount {
			covered = e.activeCount
		}

		// Zero-pad the match to the active count; rows the index never saw
		// are implicitly false.
		e.cachedMatch = fromRoaring(bm, e.activeCount)
		e.cachedValid = bitset.New(e.activeCount)
		it := e.textIdx.IsNotNull().Iterator()
		for it.HasNext() {
			row := int(it.Next())
			if row >= covered {
				break
			}
			e.cachedValid.Set(row)
		}
		e.cachedMatch.And(e.cachedValid)
	}

	return e.sliceCached(batch), nil
}
