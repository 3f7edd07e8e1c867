package cachelayer

import (
	"container/list"
	"log/slog"
	"sync"
	"time"
)

// lruNode is the budget-facing view of a cell. All methods are called with
// budget.mu held; implementations take the cell lock inside, which fixes
// the lock order as budget → cell.
type lruNode interface {
	// evictableNow reports whether the cell is LOADED and unpinned.
	evictableNow() bool
	// tryEvict unloads the cell iff it is LOADED and unpinned, returning
	// the charged size.
	tryEvict() (ResourceUsage, bool)
	lruElem() *list.Element
	setLRUElem(e *list.Element)
	nodeKey() string
}

// Budget is the process-wide memory+disk budget. It tracks used and
// reserved bytes per dimension, owns the LRU list of evictable cells, and
// parks reservation waiters until resources free up.
//
// The LRU front is the most recently used end; eviction walks from the
// back. The list lock is never held across IO.
type Budget struct {
	limit  ResourceUsage
	logger *slog.Logger

	mu        sync.Mutex
	used      ResourceUsage
	reserved  ResourceUsage
	evictable *list.List
	waitCh    chan struct{} // broadcast generation; nil until someone waits
}

// BudgetOption customizes a Budget.
type BudgetOption func(*Budget)

// WithBudgetLogger sets the logger used for eviction and pressure warnings.
func WithBudgetLogger(logger *slog.Logger) BudgetOption {
	return func(b *Budget) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBudget creates a Budget with the given limit. A zero dimension means
// nothing may be charged against it.
func NewBudget(limit ResourceUsage, opts ...BudgetOption) *Budget {
	b := &Budget{
		limit:     limit,
		logger:    slog.New(slog.DiscardHandler),
		evictable: list.New(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Limit returns the configured limit.
func (b *Budget) Limit() ResourceUsage { return b.limit }

// Used returns the bytes charged by loaded cells.
func (b *Budget) Used() ResourceUsage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Reserved returns the bytes held by outstanding reservations.
func (b *Budget) Reserved() ResourceUsage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reserved
}

// ReserveWithTimeout debits need against the budget, all-or-nothing across
// dimensions. On shortfall it evicts unpinned cells in LRU order and, if
// still short, blocks until resources free or the timeout elapses. Returns
// false on timeout with nothing debited.
func (b *Budget) ReserveWithTimeout(need ResourceUsage, timeout time.Duration) bool {
	if need.IsZero() {
		return true
	}
	deadline := time.Now().Add(timeout)
	for {
		b.mu.Lock()
		if b.fitsLocked(need) {
			b.reserved = b.reserved.Add(need)
			b.mu.Unlock()
			return true
		}
		deficit := need.Sub(b.availableLocked())
		b.evictUntilLocked(deficit)
		if b.fitsLocked(need) {
			b.reserved = b.reserved.Add(need)
			b.mu.Unlock()
			return true
		}
		ch := b.waitChLocked()
		b.mu.Unlock()

		wait := time.Until(deadline)
		if wait <= 0 {
			b.logger.Warn("budget reservation timed out",
				"need", need.String(), "limit", b.limit.String())
			return false
		}
		timer := time.NewTimer(wait)
		select {
		case <-ch:
			timer.Stop()
		case <-timer.C:
			b.logger.Warn("budget reservation timed out",
				"need", need.String(), "limit", b.limit.String())
			return false
		}
	}
}

// Release returns a reservation to the pool and wakes waiters. Waiters
// re-check availability, so wake-up coalesces to what actually freed.
func (b *Budget) Release(amount ResourceUsage) {
	if amount.IsZero() {
		return
	}
	b.mu.Lock()
	b.reserved = b.reserved.Sub(amount)
	b.broadcastLocked()
	b.mu.Unlock()
}

// Commit converts a reservation into used bytes once a cell is loaded.
func (b *Budget) Commit(amount ResourceUsage) {
	if amount.IsZero() {
		return
	}
	b.mu.Lock()
	b.reserved = b.reserved.Sub(amount)
	b.used = b.used.Add(amount)
	b.mu.Unlock()
}

// TryChargeUsed charges amount directly to used without blocking. Used for
// bonus cells a loader over-read: they are adopted only when the budget can
// take them right now.
func (b *Budget) TryChargeUsed(amount ResourceUsage) bool {
	if amount.IsZero() {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.fitsLocked(amount) {
		return false
	}
	b.used = b.used.Add(amount)
	return true
}

// ReleaseUsed credits used bytes back (unload outside the eviction path)
// and wakes waiters.
func (b *Budget) ReleaseUsed(amount ResourceUsage) {
	if amount.IsZero() {
		return
	}
	b.mu.Lock()
	b.used = b.used.Sub(amount)
	b.broadcastLocked()
	b.mu.Unlock()
}

// EvictableLen returns the number of cells currently in the LRU list.
func (b *Budget) EvictableLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evictable.Len()
}

// insertEvictable links a cell at the MRU end if it is still unpinned and
// loaded. Membership is re-validated under both locks, so a racing pin and
// unpin settle on the current state no matter the order.
func (b *Budget) insertEvictable(n lruNode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n.lruElem() != nil || !n.evictableNow() {
		return
	}
	n.setLRUElem(b.evictable.PushFront(n))
}

// removeEvictable unlinks a cell, typically because it gained its first pin.
func (b *Budget) removeEvictable(n lruNode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e := n.lruElem(); e != nil {
		b.evictable.Remove(e)
		n.setLRUElem(nil)
	}
}

// touch moves a cell to the MRU end.
func (b *Budget) touch(n lruNode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e := n.lruElem(); e != nil {
		b.evictable.MoveToFront(e)
	}
}

// manualEvict unloads one cell iff it is LOADED and unpinned.
func (b *Budget) manualEvict(n lruNode) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	freed, ok := n.tryEvict()
	if !ok {
		return false
	}
	if e := n.lruElem(); e != nil {
		b.evictable.Remove(e)
		n.setLRUElem(nil)
	}
	b.used = b.used.Sub(freed)
	b.broadcastLocked()
	return true
}

// evictUntilLocked walks the LRU from the least recent end, unloading
// unpinned cells until at least atLeast has been freed in every short
// dimension or the list is exhausted. Returns the total freed.
func (b *Budget) evictUntilLocked(atLeast ResourceUsage) ResourceUsage {
	var freed ResourceUsage
	e := b.evictable.Back()
	for e != nil && !atLeast.CoveredBy(freed) {
		prev := e.Prev()
		n := e.Value.(lruNode)
		if amount, ok := n.tryEvict(); ok {
			b.evictable.Remove(e)
			n.setLRUElem(nil)
			b.used = b.used.Sub(amount)
			freed = freed.Add(amount)
			b.logger.Debug("evicted cell under pressure",
				"key", n.nodeKey(), "freed", amount.String())
		}
		e = prev
	}
	return freed
}

func (b *Budget) fitsLocked(need ResourceUsage) bool {
	total := b.used.Add(b.reserved).Add(need)
	return total.CoveredBy(b.limit)
}

func (b *Budget) availableLocked() ResourceUsage {
	return b.limit.Sub(b.used.Add(b.reserved))
}

func (b *Budget) waitChLocked() chan struct{} {
	if b.waitCh == nil {
		b.waitCh = make(chan struct{})
	}
	return b.waitCh
}

func (b *Budget) broadcastLocked() {
	if b.waitCh != nil {
		close(b.waitCh)
		b.waitCh = nil
	}
}
