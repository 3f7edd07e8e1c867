package cachelayer

import (
	"container/list"
	"sync"
	"time"
)

type cellState uint8

const (
	cellNotLoaded cellState = iota
	cellLoading
	cellLoaded
	cellError
)

// closedDone is shared by every pin that finds its cell already loaded.
var closedDone = func() *loadDone {
	d := &loadDone{ch: make(chan struct{})}
	close(d.ch)
	return d
}()

// loadDone is the broadcast for one LOADING generation. err is written
// before ch is closed and read only after ch is observed closed.
type loadDone struct {
	ch  chan struct{}
	err error
}

// cell is the per-cell state machine. State, pin count and payload are
// guarded by mu; the LRU linkage (elem) is guarded by the budget lock.
// Lock order is budget → cell, never the reverse: cell methods release mu
// before calling back into the budget.
type cell[T Sized] struct {
	slotKey string
	cid     int
	size    ResourceUsage
	budget  *Budget

	mu         sync.Mutex
	state      cellState
	pinCount   int
	gen        uint64 // bumped when set_error resets pins; stale Pins no-op
	loading    *loadDone
	payload    T
	hasPayload bool
	lifeStart  time.Time

	// elem is the evictable-list linkage; nil while not in the list.
	// Guarded by budget.mu.
	elem *list.Element
}

func (c *cell[T]) init(slotKey string, cid int, size ResourceUsage, budget *Budget) {
	c.slotKey = slotKey
	c.cid = cid
	c.size = size
	c.budget = budget
}

// pin attaches the caller to the cell. needLoad is true iff the caller
// observed the NOT_LOADED→LOADING edge and is therefore the one requester
// responsible for loading. done resolves when the cell is LOADED or ERROR.
func (c *cell[T]) pin() (needLoad bool, done *loadDone, p Pin) {
	c.mu.Lock()

	if c.state == cellError {
		// ERROR resets on the next pin attempt.
		c.state = cellNotLoaded
		c.loading = nil
	}

	switch c.state {
	case cellNotLoaded:
		c.state = cellLoading
		c.loading = &loadDone{ch: make(chan struct{})}
		c.pinCount++
		needLoad, done = true, c.loading
	case cellLoading:
		c.pinCount++
		done = c.loading
	case cellLoaded:
		c.pinCount++
		first := c.pinCount == 1
		done = closedDone
		gen := c.gen
		c.mu.Unlock()
		if first {
			c.budget.removeEvictable(c)
		}
		return false, done, Pin{n: c, gen: gen}
	}

	gen := c.gen
	c.mu.Unlock()
	return needLoad, done, Pin{n: c, gen: gen}
}

// setCell installs a loaded payload. It is idempotent: two overlapping
// loads may both deliver the same cell, and the first writer wins. Returns
// true iff this call installed the payload (the caller then owns the
// budget accounting for it).
func (c *cell[T]) setCell(payload T) bool {
	c.mu.Lock()
	if c.state == cellLoaded {
		c.mu.Unlock()
		return false
	}
	ld := c.loading
	c.loading = nil
	c.payload = payload
	c.hasPayload = true
	c.state = cellLoaded
	c.lifeStart = time.Now()
	unpinned := c.pinCount == 0
	c.mu.Unlock()

	// Broadcast outside the lock.
	if ld != nil {
		close(ld.ch)
	}
	if unpinned {
		c.budget.insertEvictable(c)
	}
	return true
}

// setError fails the current LOADING generation. Every awaiter observes the
// error, the pin count is reset, and stale Pin releases become no-ops.
func (c *cell[T]) setError(err error) {
	c.mu.Lock()
	if c.state != cellLoading {
		// A concurrent over-read may have installed the payload already;
		// the cell is healthy, keep it.
		c.mu.Unlock()
		return
	}
	ld := c.loading
	c.loading = nil
	c.state = cellError
	c.pinCount = 0
	c.gen++
	c.mu.Unlock()

	if ld != nil {
		ld.err = err
		close(ld.ch)
	}
}

// unpin releases one pin of the given generation.
func (c *cell[T]) unpin(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.pinCount == 0 {
		c.mu.Unlock()
		return
	}
	c.pinCount--
	last := c.pinCount == 0 && c.state == cellLoaded
	c.mu.Unlock()
	if last {
		c.budget.insertEvictable(c)
	}
}

// cellValue reads the payload of a pinned, loaded cell. The caller must
// hold a pin: the install happened-before the pin resolved, and no writer
// touches the payload while pins are held.
func (c *cell[T]) cellValue() T {
	return c.payload
}

// lruNode interface (budget side, called under budget.mu).

func (c *cell[T]) evictableNow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == cellLoaded && c.pinCount == 0
}

func (c *cell[T]) tryEvict() (ResourceUsage, bool) {
	c.mu.Lock()
	if c.state != cellLoaded || c.pinCount > 0 {
		c.mu.Unlock()
		return ResourceUsage{}, false
	}
	var zero T
	c.payload = zero
	c.hasPayload = false
	c.state = cellNotLoaded
	c.mu.Unlock()
	return c.size, true
}

func (c *cell[T]) lruElem() *list.Element     { return c.elem }
func (c *cell[T]) setLRUElem(e *list.Element) { c.elem = e }
func (c *cell[T]) nodeKey() string            { return c.slotKey }

// Pin is a move-only handle that prevents eviction of a cell for its
// lifetime. Release is idempotent and safe on stale pins (a cell whose load
// failed resets its pins; the late release is a no-op).
type Pin struct {
	n   pinnable
	gen uint64
}

type pinnable interface {
	unpin(gen uint64)
}

// Release drops the pin.
func (p *Pin) Release() {
	if p.n != nil {
		p.n.unpin(p.gen)
		p.n = nil
	}
}
