// Package xatomic provides cache-line padded atomic counters used by the
// ring buffers, log-buffer positions and the counters manager.
//
// Go's sync/atomic operations are sequentially consistent on every
// architecture the driver targets, so the Release/Acquire naming below is
// documentation rather than a distinct memory-ordering mode: it marks, at
// each call site, which half of the aeron-style release/acquire pairing
// (spec.md §4.1/§5) that particular load or store implements. A reviewer
// porting this code to a platform with weaker default atomics must keep
// these call sites as release/acquire, not relaxed.
package xatomic

import "sync/atomic"

// cacheLineSize is the assumed cache line size used to pad hot counters and
// avoid false sharing between producer and consumer cursors.
const cacheLineSize = 64

// Int64 is a cache-line padded int64 counter.
type Int64 struct {
	v   atomic.Int64
	_   [cacheLineSize - 8]byte
}

// Load performs a plain load of the counter.
func (c *Int64) Load() int64 { return c.v.Load() }

// LoadAcquire loads the counter with acquire semantics; pair with
// StoreRelease on the producer side.
func (c *Int64) LoadAcquire() int64 { return c.v.Load() }

// Store performs a plain store of the counter.
func (c *Int64) Store(val int64) { c.v.Store(val) }

// StoreRelease stores the counter with release semantics, publishing every
// write that happened-before this call to a consumer doing LoadAcquire.
func (c *Int64) StoreRelease(val int64) { c.v.Store(val) }

// Add atomically adds delta and returns the new value.
func (c *Int64) Add(delta int64) int64 { return c.v.Add(delta) }

// CompareAndSwap performs an atomic CAS.
func (c *Int64) CompareAndSwap(old, new int64) bool { return c.v.CompareAndSwap(old, new) }

// Uint64 is a cache-line padded uint64 counter.
type Uint64 struct {
	v atomic.Uint64
	_ [cacheLineSize - 8]byte
}

func (c *Uint64) Load() uint64          { return c.v.Load() }
func (c *Uint64) LoadAcquire() uint64   { return c.v.Load() }
func (c *Uint64) Store(val uint64)      { c.v.Store(val) }
func (c *Uint64) StoreRelease(val uint64) { c.v.Store(val) }
func (c *Uint64) Add(delta uint64) uint64 { return c.v.Add(delta) }
func (c *Uint64) CompareAndSwap(old, new uint64) bool {
	return c.v.CompareAndSwap(old, new)
}

// Int32 is a plain (unpadded) int32 counter used for frame-length-style
// fields embedded directly in shared-memory layouts, where padding is not
// desired because the field position is part of the wire format.
type Int32 struct {
	v atomic.Int32
}

func (c *Int32) Load() int32        { return c.v.Load() }
func (c *Int32) LoadAcquire() int32 { return c.v.Load() }
func (c *Int32) Store(val int32)    { c.v.Store(val) }
func (c *Int32) StoreRelease(val int32) {
	c.v.Store(val)
}
func (c *Int32) CompareAndSwap(old, new int32) bool {
	return c.v.CompareAndSwap(old, new)
}
