// Package counters implements the shared-memory counters manager: a
// fixed-size array of 8-byte values, each with a metadata record (key bytes,
// label), identified by stable integer ids. Publishers and clients read
// counters without locks using acquire loads (spec.md §3 "Counters", §9
// "Glossary").
package counters

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ValueLength is the byte size of a single counter value slot.
const ValueLength = 8

// MetadataRecordLength is the byte size of a single counter metadata
// record: type id, key bytes, and a human-readable label.
const MetadataRecordLength = 512

const (
	metaOffsetState     = 0
	metaOffsetTypeID    = 4
	metaOffsetKeyLength = 8
	metaOffsetKey       = 12
	metaKeyCapacity     = 128
	metaOffsetLabelLen  = metaOffsetKey + metaKeyCapacity
	metaOffsetLabel     = metaOffsetLabelLen + 4
	metaLabelCapacity   = MetadataRecordLength - metaOffsetLabel
)

// Record states, stored in a counter's metadata slot.
const (
	StateUnused int32 = 0
	StateActive int32 = 1
	StateFreed  int32 = 2
)

func init() {
	if metaOffsetLabel+metaLabelCapacity != MetadataRecordLength {
		panic("counters: metadata record layout does not fit MetadataRecordLength")
	}
}

// ID is a stable counter identifier, handed out by Manager.Allocate and
// valid for the lifetime of the counters file.
type ID int32

// Manager owns the counters metadata and values regions (typically two
// sections of the driver's cnc.dat, or separate mmap'd files for clients)
// and allocates/frees counter slots.
type Manager struct {
	metadata []byte // MetadataRecordLength * capacity
	values   []byte // ValueLength * capacity
	capacity int32

	// nextFree is the low-water mark for Allocate's linear scan; it is only
	// ever advanced, never required to be exact (freed slots below it are
	// still found by the scan wrapping around).
	nextFree atomic.Int32
}

// NewManager wraps pre-sized metadata and values regions as a counters
// Manager. The regions are typically views into a larger mmap'd file
// (spec.md §6 "cnc.dat").
func NewManager(metadata, values []byte) (*Manager, error) {
	if len(metadata)%MetadataRecordLength != 0 {
		return nil, fmt.Errorf("counters: metadata region length %d is not a multiple of %d", len(metadata), MetadataRecordLength)
	}
	if len(values)%ValueLength != 0 {
		return nil, fmt.Errorf("counters: values region length %d is not a multiple of %d", len(values), ValueLength)
	}

	capacity := int32(len(metadata) / MetadataRecordLength)
	if int32(len(values)/ValueLength) != capacity {
		return nil, fmt.Errorf("counters: metadata capacity %d does not match values capacity %d", capacity, len(values)/ValueLength)
	}

	return &Manager{metadata: metadata, values: values, capacity: capacity}, nil
}

// Allocate reserves a free counter slot, labels it, and returns its id.
func (m *Manager) Allocate(typeID int32, key []byte, label string) (ID, error) {
	if len(key) > metaKeyCapacity {
		return 0, fmt.Errorf("counters: key too long: %d bytes", len(key))
	}
	if len(label) > metaLabelCapacity {
		return 0, fmt.Errorf("counters: label too long: %d bytes", len(label))
	}

	start := m.nextFree.Load()
	for i := int32(0); i < m.capacity; i++ {
		idx := (start + i) % m.capacity
		statePtr := m.statePtr(idx)
		if atomic.CompareAndSwapInt32(statePtr, StateUnused, StateActive) ||
			atomic.CompareAndSwapInt32(statePtr, StateFreed, StateActive) {
			m.writeMetadata(idx, typeID, key, label)
			atomic.StoreInt64(m.valuePtr(idx), 0)
			m.nextFree.Store((idx + 1) % m.capacity)
			return ID(idx), nil
		}
	}

	return 0, fmt.Errorf("counters: no free slots (capacity %d)", m.capacity)
}

// Free releases id for reuse. It does not zero the value: observers that
// already hold the id may still be reading it.
func (m *Manager) Free(id ID) {
	atomic.StoreInt32(m.statePtr(int32(id)), StateFreed)
}

// Get reads a counter's value with acquire semantics (spec.md §5
// "Shared-resource policy": counters are writer-private, readers acquire).
func (m *Manager) Get(id ID) int64 {
	return atomic.LoadInt64(m.valuePtr(int32(id)))
}

// Set stores a counter's value with release semantics.
func (m *Manager) Set(id ID, value int64) {
	atomic.StoreInt64(m.valuePtr(int32(id)), value)
}

// Add atomically increments a counter and returns the new value. This is
// the only operation the owning writer needs for monotonic counters (bytes
// sent, NAKs, errors).
func (m *Manager) Add(id ID, delta int64) int64 {
	return atomic.AddInt64(m.valuePtr(int32(id)), delta)
}

// Label returns the key and label text stored for id.
func (m *Manager) Label(id ID) (typeID int32, key []byte, label string) {
	off := int(id) * MetadataRecordLength
	rec := m.metadata[off : off+MetadataRecordLength]

	typeID = int32(le32(rec[metaOffsetTypeID:]))
	keyLen := int(le32(rec[metaOffsetKeyLength:]))
	key = append([]byte(nil), rec[metaOffsetKey:metaOffsetKey+keyLen]...)
	labelLen := int(le32(rec[metaOffsetLabelLen:]))
	label = string(rec[metaOffsetLabel : metaOffsetLabel+labelLen])
	return typeID, key, label
}

// Capacity returns the total number of counter slots.
func (m *Manager) Capacity() int32 { return m.capacity }

// State returns id's current lifecycle state (StateUnused/StateActive/
// StateFreed), for enumerating allocated counters from outside the
// package (e.g. the admin API's introspection listing).
func (m *Manager) State(id ID) int32 {
	return atomic.LoadInt32(m.statePtr(int32(id)))
}

func (m *Manager) writeMetadata(idx, typeID int32, key []byte, label string) {
	off := int(idx) * MetadataRecordLength
	rec := m.metadata[off : off+MetadataRecordLength]

	putLE32(rec[metaOffsetTypeID:], uint32(typeID))
	putLE32(rec[metaOffsetKeyLength:], uint32(len(key)))
	copy(rec[metaOffsetKey:metaOffsetKey+metaKeyCapacity], key)
	putLE32(rec[metaOffsetLabelLen:], uint32(len(label)))
	copy(rec[metaOffsetLabel:], label)
}

func (m *Manager) statePtr(idx int32) *int32 {
	off := int(idx) * MetadataRecordLength
	return (*int32)(unsafe.Pointer(&m.metadata[off+metaOffsetState]))
}

func (m *Manager) valuePtr(idx int32) *int64 {
	off := int(idx) * ValueLength
	return (*int64)(unsafe.Pointer(&m.values[off]))
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// PageAlign rounds n up to the nearest multiple of the system page size,
// for sizing the mmap'd metadata/values regions.
func PageAlign(n int) int {
	pageSize := unix.Getpagesize()
	return (n + pageSize - 1) &^ (pageSize - 1)
}
