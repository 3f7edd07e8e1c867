package cachelayer

import "context"

// Sized is the constraint every cell payload must satisfy so the cache can
// report what a loaded cell costs.
type Sized interface {
	ByteSize() int64
}

// StorageType describes which tier a slot's cells occupy. It selects the
// budget dimension the size estimates are charged against.
type StorageType uint8

const (
	// StorageMemory charges cells against the memory dimension.
	StorageMemory StorageType = iota
	// StorageDisk charges cells against the disk dimension.
	StorageDisk
)

// WarmupPolicy controls whether a slot eagerly loads all cells at
// construction. Unknown values behave as WarmupDisable.
type WarmupPolicy uint8

const (
	// WarmupDisable performs no warmup.
	WarmupDisable WarmupPolicy = iota
	// WarmupSync pins all cells once at construction and drops the pins.
	WarmupSync
)

// CellIDMode selects how user ids map onto cell ids.
type CellIDMode uint8

const (
	// CellIDIdentical maps uid == cid.
	CellIDIdentical CellIDMode = iota
	// CellIDAlwaysZero maps every uid to cell 0 (single-cell slots).
	CellIDAlwaysZero
	// CellIDCustom delegates the mapping to the Translator.
	CellIDCustom
)

// Meta carries the static properties of a Translator's cell space.
type Meta struct {
	StorageType StorageType
	Warmup      WarmupPolicy
	CellIDMode  CellIDMode
}

// LoadedCell pairs a cell id with its loaded payload.
type LoadedCell[T Sized] struct {
	CID  int
	Cell T
}

// Translator produces cell payloads on demand. It is the pluggable loader
// behind a Slot: the cache decides what to load and when, the Translator
// decides how.
//
// GetCells may return more cells than requested (loaders are free to
// over-read for batching) but must not return duplicates. A returned error
// fails the whole batch.
type Translator[T Sized] interface {
	// NumCells returns the number of cells; fixed after construction.
	NumCells() int
	// Key identifies the slot in logs and errors.
	Key() string
	// Meta returns the static slot properties.
	Meta() *Meta
	// EstimatedByteSizeOfCell returns the pre-reservation size estimate.
	// It may over- or under-estimate the actual payload.
	EstimatedByteSizeOfCell(cid int) ResourceUsage
	// CellIDOf maps a user id to a cell id; consulted only for CellIDCustom.
	CellIDOf(uid int64) int
	// GetCells bulk-loads the given cells.
	GetCells(ctx context.Context, cids []int) ([]LoadedCell[T], error)
}
