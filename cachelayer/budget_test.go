package cachelayer

import (
	"container/list"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubNode is a minimal lruNode for budget-only tests.
type stubNode struct {
	mu     sync.Mutex
	size   ResourceUsage
	loaded bool
	pins   int
	elem   *list.Element
}

func (n *stubNode) evictableNow() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loaded && n.pins == 0
}

func (n *stubNode) tryEvict() (ResourceUsage, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.loaded || n.pins > 0 {
		return ResourceUsage{}, false
	}
	n.loaded = false
	return n.size, true
}

func (n *stubNode) lruElem() *list.Element     { return n.elem }
func (n *stubNode) setLRUElem(e *list.Element) { n.elem = e }
func (n *stubNode) nodeKey() string            { return "stub" }

func loadStub(b *Budget, size ResourceUsage) *stubNode {
	n := &stubNode{size: size, loaded: true}
	if !b.TryChargeUsed(size) {
		panic("stub does not fit")
	}
	b.insertEvictable(n)
	return n
}

func TestBudget_ReserveAndRelease(t *testing.T) {
	b := NewBudget(ResourceUsage{MemoryBytes: 1000, DiskBytes: 100})

	ok := b.ReserveWithTimeout(ResourceUsage{MemoryBytes: 600, DiskBytes: 50}, time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, int64(600), b.Reserved().MemoryBytes)

	// All-or-nothing: memory would fit, disk would not.
	ok = b.ReserveWithTimeout(ResourceUsage{MemoryBytes: 100, DiskBytes: 60}, time.Millisecond)
	assert.False(t, ok)
	assert.Equal(t, int64(600), b.Reserved().MemoryBytes, "failed reservation must not debit")
	assert.Equal(t, int64(50), b.Reserved().DiskBytes)

	b.Release(ResourceUsage{MemoryBytes: 600, DiskBytes: 50})
	assert.True(t, b.Reserved().IsZero())
}

func TestBudget_CommitMovesReservedToUsed(t *testing.T) {
	b := NewBudget(ResourceUsage{MemoryBytes: 100})
	require.True(t, b.ReserveWithTimeout(ResourceUsage{MemoryBytes: 80}, time.Millisecond))

	b.Commit(ResourceUsage{MemoryBytes: 80})
	assert.Equal(t, int64(80), b.Used().MemoryBytes)
	assert.True(t, b.Reserved().IsZero())

	// used + reserved stays bounded by the limit.
	assert.False(t, b.ReserveWithTimeout(ResourceUsage{MemoryBytes: 30}, time.Millisecond))
	assert.True(t, b.ReserveWithTimeout(ResourceUsage{MemoryBytes: 20}, time.Millisecond))
}

func TestBudget_EvictionFreesLRUOrder(t *testing.T) {
	// Limit 1000, two loaded unpinned cells of 600 and 500. Reserving 700
	// evicts both (LRU first) and succeeds.
	b := NewBudget(ResourceUsage{MemoryBytes: 1000})
	first := loadStub(b, ResourceUsage{MemoryBytes: 600})
	second := loadStub(b, ResourceUsage{MemoryBytes: 500}) // MRU

	require.Equal(t, int64(1100), b.Used().MemoryBytes)
	ok := b.ReserveWithTimeout(ResourceUsage{MemoryBytes: 700}, 10*time.Millisecond)
	require.True(t, ok)

	assert.False(t, first.loaded)
	assert.False(t, second.loaded)
	assert.Equal(t, int64(700), b.Reserved().MemoryBytes)
	assert.Equal(t, int64(0), b.Used().MemoryBytes)
	assert.Equal(t, 0, b.EvictableLen())
}

func TestBudget_PinnedCellsAreNotEvicted(t *testing.T) {
	b := NewBudget(ResourceUsage{MemoryBytes: 100})
	n := loadStub(b, ResourceUsage{MemoryBytes: 80})
	n.mu.Lock()
	n.pins = 1
	n.mu.Unlock()

	ok := b.ReserveWithTimeout(ResourceUsage{MemoryBytes: 50}, 5*time.Millisecond)
	assert.False(t, ok)
	assert.True(t, n.loaded)
}

func TestBudget_WaiterWokenByRelease(t *testing.T) {
	b := NewBudget(ResourceUsage{MemoryBytes: 100})
	require.True(t, b.ReserveWithTimeout(ResourceUsage{MemoryBytes: 100}, time.Millisecond))

	done := make(chan bool, 1)
	go func() {
		done <- b.ReserveWithTimeout(ResourceUsage{MemoryBytes: 40}, time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	b.Release(ResourceUsage{MemoryBytes: 100})

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestBudget_TimeoutLeavesNothingDebited(t *testing.T) {
	b := NewBudget(ResourceUsage{MemoryBytes: 10})
	start := time.Now()
	ok := b.ReserveWithTimeout(ResourceUsage{MemoryBytes: 20}, 20*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.True(t, b.Reserved().IsZero())
}

func TestBudget_TouchMovesToMRU(t *testing.T) {
	b := NewBudget(ResourceUsage{MemoryBytes: 100})
	first := loadStub(b, ResourceUsage{MemoryBytes: 40})
	second := loadStub(b, ResourceUsage{MemoryBytes: 40})

	// Touching the LRU cell protects it; the other one is evicted first.
	b.touch(first)
	ok := b.ReserveWithTimeout(ResourceUsage{MemoryBytes: 50}, 10*time.Millisecond)
	require.True(t, ok)

	assert.True(t, first.loaded)
	assert.False(t, second.loaded)
}

func TestBudget_ManualEvict(t *testing.T) {
	b := NewBudget(ResourceUsage{MemoryBytes: 100})
	n := loadStub(b, ResourceUsage{MemoryBytes: 60})

	assert.True(t, b.manualEvict(n))
	assert.Equal(t, int64(0), b.Used().MemoryBytes)
	// Second evict is a no-op: the cell is no longer loaded.
	assert.False(t, b.manualEvict(n))
}
