// Package cachelayer implements the tiered cell cache: per-column slots of
// pinnable cells fronting a pluggable loader, accounted against a global
// memory+disk budget with LRU eviction of unpinned cells.
//
// A pin call attaches pins to every requested cell before any load starts,
// reserves the budget for exactly the cells that need loading, invokes the
// Translator once for that subset, and resolves when every pin is ready.
// At most one loader acts on a cell at a time; concurrent pinners of a
// loading cell attach to its completion broadcast.
package cachelayer

import "fmt"

// ResourceUsage is a memory+disk byte pair used for budget accounting.
// Both dimensions are tracked independently; a reservation succeeds only
// when every dimension fits.
type ResourceUsage struct {
	MemoryBytes int64
	DiskBytes   int64
}

// Add returns u + o.
func (u ResourceUsage) Add(o ResourceUsage) ResourceUsage {
	return ResourceUsage{
		MemoryBytes: u.MemoryBytes + o.MemoryBytes,
		DiskBytes:   u.DiskBytes + o.DiskBytes,
	}
}

// Sub returns u - o, clamped at zero per dimension.
func (u ResourceUsage) Sub(o ResourceUsage) ResourceUsage {
	return ResourceUsage{
		MemoryBytes: max(u.MemoryBytes-o.MemoryBytes, 0),
		DiskBytes:   max(u.DiskBytes-o.DiskBytes, 0),
	}
}

// IsZero reports whether both dimensions are zero.
func (u ResourceUsage) IsZero() bool {
	return u.MemoryBytes == 0 && u.DiskBytes == 0
}

// CoveredBy reports whether o is at least u in every dimension.
func (u ResourceUsage) CoveredBy(o ResourceUsage) bool {
	return u.MemoryBytes <= o.MemoryBytes && u.DiskBytes <= o.DiskBytes
}

// String returns a compact representation for logs.
func (u ResourceUsage) String() string {
	return fmt.Sprintf("{mem=%d disk=%d}", u.MemoryBytes, u.DiskBytes)
}
