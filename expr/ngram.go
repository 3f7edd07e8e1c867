package expr

import (
	"context"
	"fmt"

	"github.com/hupe1980/segcore/internal/bitset"
	"github.com/hupe1980/segcore/model"
)

// execNgramMatch tries the n-gram index for a substring-style match.
// ok=false means the index declined the pattern; dispatch falls through.
func (e *UnaryFilter) execNgramMatch(ctx context.Context, batch int) (*Result, bool, error) {
	if e.val.Kind != model.KindString {
		return nil, false, fmt.Errorf("%w: %v literal for %s", model.ErrDataTypeInvalid, e.val.Kind, e.op)
	}
	if err := e.initArg(); err != nil {
		return nil, false, err
	}

	if e.cachedMatch == nil {
		bm, ok, err := e.ngramIdx.ExecuteQuery(e.val.Str, e.op)
		if err != nil || !ok {
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
