package cachelayer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hupe1980/segcore/model"
)

// DefaultPinTimeout bounds the budget reservation wait of a pin call when
// the caller does not pass its own.
const DefaultPinTimeout = 100 * time.Second

type slotConfig struct {
	logger *slog.Logger
}

// SlotOption customizes a Slot.
type SlotOption func(*slotConfig)

// WithSlotLogger sets the logger for load failures and warmup.
func WithSlotLogger(logger *slog.Logger) SlotOption {
	return func(c *slotConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Slot is a per-column cache owning a fixed set of cells and the Translator
// that fills them. Immutable after construction except for cell state.
//
// Pinning follows pin→reserve→load→fulfil: all pins are attached before any
// load starts, the budget reservation covers exactly the need-load subset,
// and the Translator is invoked once for that subset.
type Slot[T Sized] struct {
	translator Translator[T]
	budget     *Budget
	mode       CellIDMode
	cells      []cell[T]
	logger     *slog.Logger
}

// NewSlot builds a Slot over the Translator's cells. When the Translator's
// warmup policy is WarmupSync, all cells are loaded best-effort before
// NewSlot returns; warmup failure is logged, not returned.
func NewSlot[T Sized](translator Translator[T], budget *Budget, opts ...SlotOption) *Slot[T] {
	cfg := slotConfig{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}

	meta := translator.Meta()
	s := &Slot[T]{
		translator: translator,
		budget:     budget,
		mode:       meta.CellIDMode,
		cells:      make([]cell[T], translator.NumCells()),
		logger:     cfg.logger,
	}
	size := func(cid int) ResourceUsage {
		return translator.EstimatedByteSizeOfCell(cid)
	}
	for i := range s.cells {
		s.cells[i].init(translator.Key(), i, size(i), budget)
	}

	if meta.Warmup == WarmupSync {
		s.warmup()
	}
	return s
}

func (s *Slot[T]) warmup() {
	acc, err := s.PinAllCells(context.Background(), DefaultPinTimeout)
	if err != nil {
		s.logger.Warn("cache warmup failed", "key", s.translator.Key(), "error", err)
		return
	}
	acc.Release()
	s.logger.Debug("cache warmup done", "key", s.translator.Key(), "cells", len(s.cells))
}

// NumCells returns the number of cells in the slot.
func (s *Slot[T]) NumCells() int { return len(s.cells) }

// Key returns the Translator's slot key.
func (s *Slot[T]) Key() string { return s.translator.Key() }

// SizeOfCell returns the charged size estimate of a cell.
func (s *Slot[T]) SizeOfCell(cid int) ResourceUsage {
	return s.cells[cid].size
}

// PinCells pins the cells behind the given uids and resolves once every pin
// is ready. timeout bounds only the budget reservation; ctx bounds the wait
// for loads owned by other pinners. Cancelling ctx does not abort an
// in-flight load.
func (s *Slot[T]) PinCells(ctx context.Context, uids []int64, timeout time.Duration) (*CellAccessor[T], error) {
	cids := make(map[int]struct{}, len(uids))
	switch s.mode {
	case CellIDIdentical:
		for _, uid := range uids {
			cids[int(uid)] = struct{}{}
		}
	case CellIDAlwaysZero:
		if len(uids) > 0 {
			cids[0] = struct{}{}
		}
	default:
		for _, uid := range uids {
			cids[s.translator.CellIDOf(uid)] = struct{}{}
		}
	}

	// A sorted slice keeps pin and load order deterministic regardless of
	// map iteration.
	sorted := make([]int, 0, len(cids))
	for cid := range cids {
		sorted = append(sorted, cid)
	}
	sort.Ints(sorted)

	return s.pinInternal(ctx, sorted, timeout)
}

// PinAllCells pins every cell of the slot.
func (s *Slot[T]) PinAllCells(ctx context.Context, timeout time.Duration) (*CellAccessor[T], error) {
	cids := make([]int, len(s.cells))
	for i := range cids {
		cids[i] = i
	}
	return s.pinInternal(ctx, cids, timeout)
}

// ManualEvict unloads the cell iff it is LOADED and unpinned. Returns
// whether the eviction happened.
func (s *Slot[T]) ManualEvict(cid int) bool {
	if cid < 0 || cid >= len(s.cells) {
		return false
	}
	return s.budget.manualEvict(&s.cells[cid])
}

// ManualEvictAll unloads every LOADED, unpinned cell. Returns whether any
// eviction happened.
func (s *Slot[T]) ManualEvictAll() bool {
	evicted := false
	for cid := range s.cells {
		if s.ManualEvict(cid) {
			evicted = true
		}
	}
	return evicted
}

func (s *Slot[T]) cellIDOf(uid int64) int {
	switch s.mode {
	case CellIDIdentical:
		return int(uid)
	case CellIDAlwaysZero:
		return 0
	default:
		return s.translator.CellIDOf(uid)
	}
}

// pinInternal is the single pin path. cids must be deduplicated and sorted.
func (s *Slot[T]) pinInternal(ctx context.Context, cids []int, timeout time.Duration) (*CellAccessor[T], error) {
	for _, cid := range cids {
		if cid < 0 || cid >= len(s.cells) {
			return nil, fmt.Errorf("%w: cid %d, slot %q has %d cells",
				model.ErrOutOfRange, cid, s.translator.Key(), len(s.cells))
		}
	}

	pins := make([]Pin, 0, len(cids))
	dones := make([]*loadDone, 0, len(cids))
	var needLoad []int
	var needed ResourceUsage
	for _, cid := range cids {
		load, done, pin := s.cells[cid].pin()
		pins = append(pins, pin)
		dones = append(dones, done)
		if load {
			needLoad = append(needLoad, cid)
			needed = needed.Add(s.cells[cid].size)
		}
	}

	if len(needLoad) > 0 {
		s.runLoad(ctx, needLoad, needed, timeout)
	}

	releaseAll := func() {
		for i := range pins {
			pins[i].Release()
		}
	}

	for _, done := range dones {
		select {
		case <-done.ch:
		case <-ctx.Done():
			releaseAll()
			return nil, ctx.Err()
		}
		if done.err != nil {
			releaseAll()
			return nil, done.err
		}
	}

	return &CellAccessor[T]{slot: s, pins: pins}, nil
}

// runLoad reserves the budget for the need-load subset and invokes the
// Translator once. Every cell in cids receives either its payload or the
// wrapped error; no cell is left LOADING.
func (s *Slot[T]) runLoad(ctx context.Context, cids []int, needed ResourceUsage, timeout time.Duration) {
	if !s.budget.ReserveWithTimeout(needed, timeout) {
		err := fmt.Errorf("%w: reserving %s for cells %v of %q",
			model.ErrInsufficientResource, needed.String(), cids, s.translator.Key())
		s.logger.Warn("cache load reservation failed",
			"key", s.translator.Key(), "need", needed.String(), "cells", len(cids))
		for _, cid := range cids {
			s.cells[cid].setError(err)
		}
		return
	}

	results, err := s.translator.GetCells(context.WithoutCancel(ctx), cids)
	if err != nil {
		wrapped := fmt.Errorf("loading cells %v of %q: %w", cids, s.translator.Key(), err)
		s.logger.Warn("cache load failed", "key", s.translator.Key(), "error", err)
		for _, cid := range cids {
			s.cells[cid].setError(wrapped)
		}
		s.budget.Release(needed)
		return
	}

	requested := make(map[int]struct{}, len(cids))
	for _, cid := range cids {
		requested[cid] = struct{}{}
	}

	for _, r := range results {
		if r.CID < 0 || r.CID >= len(s.cells) {
			s.logger.Warn("translator returned out-of-range cell",
				"key", s.translator.Key(), "cid", r.CID)
			continue
		}
		c := &s.cells[r.CID]
		if _, ok := requested[r.CID]; ok {
			delete(requested, r.CID)
			if c.setCell(r.Cell) {
				s.budget.Commit(c.size)
			} else {
				// A concurrent over-read won the install; the payload is
				// accounted once, our reservation goes back.
				s.budget.Release(c.size)
			}
			continue
		}
		// Bonus cell the Translator over-read. Adopt it only when the
		// budget can take it right now.
		if s.budget.TryChargeUsed(c.size) {
			if !c.setCell(r.Cell) {
				s.budget.ReleaseUsed(c.size)
			}
		}
	}

	// A requested cell the Translator failed to deliver would leave its
	// awaiters stuck; fail it explicitly.
	for cid := range requested {
		c := &s.cells[cid]
		c.setError(fmt.Errorf("%w: translator %q did not return cell %d",
			model.ErrUnknown, s.translator.Key(), cid))
		s.budget.Release(c.size)
	}
}

// CellAccessor is a scoped view over pinned cells. While it lives, every
// cell it covers stays resident; Release drops the pins and is idempotent.
// Accessing a cell that was not part of the pin set is undefined.
type CellAccessor[T Sized] struct {
	// pins must be dropped before the slot reference; keeping the slot
	// first in the struct encodes the required destruction order.
	slot *Slot[T]
	pins []Pin
}

// GetCell returns the payload of the cell behind uid.
func (a *CellAccessor[T]) GetCell(uid int64) T {
	return a.slot.cells[a.slot.cellIDOf(uid)].cellValue()
}

// GetIthCell returns the payload of cell cid.
func (a *CellAccessor[T]) GetIthCell(cid int) T {
	return a.slot.cells[cid].cellValue()
}

// Release drops all pins.
func (a *CellAccessor[T]) Release() {
	for i := range a.pins {
		a.pins[i].Release()
	}
	a.pins = nil
}

// PinWrapper packages an opaque pin holder with a value computed from it,
// so derived views can cross API layers without leaking cache vocabulary.
// The zero value carries no pin.
type PinWrapper[T any] struct {
	raii  any
	value T
}

// NewPinWrapper wraps a value whose validity is tied to raii.
func NewPinWrapper[T any](raii any, value T) PinWrapper[T] {
	return PinWrapper[T]{raii: raii, value: value}
}

// WrapUnpinned wraps a value that needs no pin (for example, data that was
// copied out).
func WrapUnpinned[T any](value T) PinWrapper[T] {
	return PinWrapper[T]{value: value}
}

// Get returns the wrapped value.
func (w PinWrapper[T]) Get() T { return w.value }

// Release drops the underlying pins if the holder supports it.
func (w PinWrapper[T]) Release() {
	if r, ok := w.raii.(interface{ Release() }); ok {
		r.Release()
	}
}

// TransformPin maps the wrapped value while carrying the pin holder along.
func TransformPin[T, U any](w PinWrapper[T], fn func(T) U) PinWrapper[U] {
	return PinWrapper[U]{raii: w.raii, value: fn(w.value)}
}
