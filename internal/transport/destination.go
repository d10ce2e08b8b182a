package transport

import (
	"net/netip"
	"sync"
)

// DestinationTracker maintains the set of peer addresses a publication (or
// image, for return traffic) sends to: a single address for unicast, or a
// small dynamic set for multi-destination-cast/manual subscriber tracking
// (spec.md §3 "Channel endpoint").
type DestinationTracker struct {
	mu   sync.RWMutex
	dest map[netip.AddrPort]struct{}
}

// NewDestinationTracker creates an empty tracker.
func NewDestinationTracker() *DestinationTracker {
	return &DestinationTracker{dest: make(map[netip.AddrPort]struct{})}
}

// Add registers addr as a destination. Idempotent.
func (t *DestinationTracker) Add(addr netip.AddrPort) {
	t.mu.Lock()
	t.dest[addr] = struct{}{}
	t.mu.Unlock()
}

// Remove deregisters addr.
func (t *DestinationTracker) Remove(addr netip.AddrPort) {
	t.mu.Lock()
	delete(t.dest, addr)
	t.mu.Unlock()
}

// Snapshot returns the current destination set.
func (t *DestinationTracker) Snapshot() []netip.AddrPort {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]netip.AddrPort, 0, len(t.dest))
	for addr := range t.dest {
		out = append(out, addr)
	}
	return out
}

// Len returns the number of tracked destinations.
func (t *DestinationTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.dest)
}
