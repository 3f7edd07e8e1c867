package expr

import (
	"context"
	"errors"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/segcore/internal/bitset"
	"github.com/hupe1980/segcore/model"
)

// execIndexScan answers the batch from the scalar index. The index is
// consulted once; the full-range bitmap is sliced on later batches.
// ok=false means the index declined the op and the caller must data-scan.
func (e *UnaryFilter) execIndexScan(ctx context.Context, batch int) (*Result, bool, error) {
	if err := e.initArg(); err != nil {
		return nil, false, err
	}
	if res, done, err := e.preCheckOverflow(ctx, batch, nil); done || err != nil {
		return res, true, err
	}

	if e.cachedMatch == nil {
		bm, err := e.scalarIdx.Apply(e.op, e.val)
		if err != nil {
			if errors.Is(err, model.ErrUnsupported) {
				return nil, false, nil
			}
			return nil, false, err
		}
		e.cachedMatch = fromRoaring(bm, e.activeCount)
	}

	valid, err := e.batchValid(ctx, batch)
	if err != nil {
		return nil, false, err
	}

	res := &Result{Match: bitset.New(batch), Valid: valid}
	start, _ := e.batchRange(batch)
	for i := 0; i < batch; i++ {
		res.Match.SetTo(i, e.cachedMatch.Test(start+i))
	}
	res.Match.And(valid)
	return res, true, nil
}

// fromRoaring expands a roaring bitmap into a fixed-size positional bitset,
// dropping rows at or beyond n.
func fromRoaring(bm *roaring.Bitmap, n int) *bitset.BitSet {
	out := bitset.New(n)
	it := bm.Iterator()
	for it.HasNext() {
		row := int(it.Next())
		if row >= n {
			break
		}
		out.Set(row)
	}
	return out
}
