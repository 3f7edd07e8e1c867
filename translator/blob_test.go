package translator

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segcore/blobstore"
	"github.com/hupe1980/segcore/cachelayer"
	"github.com/hupe1980/segcore/model"
)

func buildFixture(t *testing.T, codec Codec, cells [][]byte) *Blob[*RawCell] {
	t.Helper()
	image, manifest, err := BuildBlob(codec, cells)
	require.NoError(t, err)

	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "seg/col0", image))
	blob, err := store.Open(context.Background(), "seg/col0")
	require.NoError(t, err)

	tr, err := NewBlob[*RawCell]("seg/col0", blob, manifest,
		cachelayer.Meta{CellIDMode: cachelayer.CellIDIdentical}, DecodeRaw)
	require.NoError(t, err)
	return tr
}

func testCells() [][]byte {
	return [][]byte{
		bytes.Repeat([]byte("abcd1234"), 64),
		[]byte("tiny"),
		bytes.Repeat([]byte{0x42}, 1000),
	}
}

func TestBlobTranslator_RoundTrip(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		cells := testCells()
		tr := buildFixture(t, codec, cells)

		assert.Equal(t, 3, tr.NumCells())
		assert.Equal(t, cells[0], mustCell(t, tr, 0).Data, "codec %d", codec)
		assert.Equal(t, cells[1], mustCell(t, tr, 1).Data, "codec %d", codec)
		assert.Equal(t, cells[2], mustCell(t, tr, 2).Data, "codec %d", codec)
	}
}

func mustCell(t *testing.T, tr *Blob[*RawCell], cid int) *RawCell {
	t.Helper()
	out, err := tr.GetCells(context.Background(), []int{cid})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, cid, out[0].CID)
	return out[0].Cell
}

func TestBlobTranslator_BulkFetch(t *testing.T) {
	cells := testCells()
	tr := buildFixture(t, CodecLZ4, cells)

	out, err := tr.GetCells(context.Background(), []int{0, 1, 2})
	require.NoError(t, err)
	require.Len(t, out, 3)

	got := make(map[int][]byte)
	for _, c := range out {
		got[c.CID] = c.Cell.Data
	}
	for cid, want := range cells {
		assert.Equal(t, want, got[cid])
	}
}

func TestBlobTranslator_SizeEstimates(t *testing.T) {
	cells := testCells()
	tr := buildFixture(t, CodecZstd, cells)

	est := tr.EstimatedByteSizeOfCell(2)
	assert.Equal(t, int64(1000), est.MemoryBytes)
	assert.Equal(t, int64(0), est.DiskBytes)
}

func TestBlobTranslator_OutOfRange(t *testing.T) {
	tr := buildFixture(t, CodecNone, testCells())
	_, err := tr.GetCells(context.Background(), []int{9})
	assert.ErrorIs(t, err, model.ErrOutOfRange)
}

func TestBlobTranslator_FeedsCacheSlot(t *testing.T) {
	cells := testCells()
	tr := buildFixture(t, CodecLZ4, cells)
	budget := cachelayer.NewBudget(cachelayer.ResourceUsage{MemoryBytes: 1 << 20})
	slot := cachelayer.NewSlot[*RawCell](tr, budget)

	acc, err := slot.PinCells(context.Background(), []int64{0, 2}, cachelayer.DefaultPinTimeout)
	require.NoError(t, err)
	defer acc.Release()

	assert.Equal(t, cells[0], acc.GetCell(0).Data)
	assert.Equal(t, cells[2], acc.GetCell(2).Data)
	assert.Equal(t, int64(len(cells[0])+len(cells[2])), budget.Used().MemoryBytes)
}

func TestBlobTranslator_IOLimitStillDelivers(t *testing.T) {
	cells := [][]byte{[]byte("small-cell")}
	image, manifest, err := BuildBlob(CodecNone, cells)
	require.NoError(t, err)

	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "b", image))
	blob, err := store.Open(context.Background(), "b")
	require.NoError(t, err)

	tr, err := NewBlob[*RawCell]("b", blob, manifest,
		cachelayer.Meta{}, DecodeRaw,
		WithIOLimit(1<<20), WithFetchConcurrency(2))
	require.NoError(t, err)

	out, err := tr.GetCells(context.Background(), []int{0})
	require.NoError(t, err)
	assert.Equal(t, cells[0], out[0].Cell.Data)
}
