package logbuffer

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/yanet-platform/mediadriver/internal/wire"
)

// Metadata region layout. All multi-byte fields are little-endian.
//
// The per-partition tail counters pack a term id and term offset into a
// single int64 so a producer can claim space with one CAS instead of two
// (spec.md §3 "Log buffer", §5 "Shared-resource policy").
const (
	metaTermTailCountersOffset = 0
	metaTermTailCountersLen    = 8 * PartitionCount

	metaActiveTermCountOffset = metaTermTailCountersOffset + metaTermTailCountersLen
	metaInitialTermIDOffset   = metaActiveTermCountOffset + 4
	metaMTULengthOffset       = metaInitialTermIDOffset + 4
	metaTermLengthOffset      = metaMTULengthOffset + 4
	metaPageSizeOffset        = metaTermLengthOffset + 4
	metaEndOfStreamPosOffset  = metaPageSizeOffset + 4 + 4 // +4 padding to 8-byte align
	metaDefaultHeaderOffset   = metaEndOfStreamPosOffset + 8

	// MetadataLength is the total size of the metadata region, rounded up
	// to a page-friendly size.
	MetadataLength = 4096
)

func init() {
	if metaDefaultHeaderOffset+wire.DataHeaderLength > MetadataLength {
		panic("logbuffer: metadata layout overflows MetadataLength")
	}
}

// RawTail packs a term id and term offset into the representation stored in
// the per-partition tail counters.
func RawTail(termID, termOffset int32) int64 {
	return int64(uint32(termID))<<32 | int64(uint32(termOffset))
}

// TermIDFromRawTail extracts the term id from a packed raw tail value.
func TermIDFromRawTail(raw int64) int32 {
	return int32(raw >> 32)
}

// TermOffsetFromRawTail extracts the term offset from a packed raw tail
// value. The offset may exceed the term length when a claim has run past
// the end of the term (the caller must detect and handle this as a
// "straddle").
func TermOffsetFromRawTail(raw int64) int32 {
	return int32(raw)
}

// Metadata is an accessor over the log buffer's metadata region.
type Metadata struct {
	buf []byte
}

// NewMetadata wraps buf (which must be at least MetadataLength bytes) as a
// Metadata accessor.
func NewMetadata(buf []byte) (*Metadata, error) {
	if len(buf) < MetadataLength {
		return nil, fmt.Errorf("logbuffer: metadata buffer too small: %d bytes", len(buf))
	}
	return &Metadata{buf: buf[:MetadataLength]}, nil
}

// tailPtr returns an *int64 aliasing partitionIndex's packed tail counter
// inside the metadata buffer, for use with sync/atomic. The buffer is
// 8-byte aligned at this offset by construction (metaTermTailCountersOffset
// is 0 and each counter is 8 bytes wide).
func (m *Metadata) tailPtr(partitionIndex int) *int64 {
	off := metaTermTailCountersOffset + 8*partitionIndex
	return (*int64)(unsafe.Pointer(&m.buf[off]))
}

// RawTailVolatile reads partition index's packed tail counter with acquire
// semantics.
func (m *Metadata) RawTailVolatile(partitionIndex int) int64 {
	return atomic.LoadInt64(m.tailPtr(partitionIndex))
}

// CompareAndSwapRawTail attempts to claim space by CASing partition index's
// tail counter from old to new. This is the single point of contention
// between concurrent producers claiming space in the same term (spec.md
// §5).
func (m *Metadata) CompareAndSwapRawTail(partitionIndex int, old, new int64) bool {
	return atomic.CompareAndSwapInt64(m.tailPtr(partitionIndex), old, new)
}

// StoreRawTailRelease publishes a partition's tail counter.
func (m *Metadata) StoreRawTailRelease(partitionIndex int, value int64) {
	atomic.StoreInt64(m.tailPtr(partitionIndex), value)
}

func (m *Metadata) ActiveTermCount() int32 {
	return int32(binary.LittleEndian.Uint32(m.buf[metaActiveTermCountOffset : metaActiveTermCountOffset+4]))
}

func (m *Metadata) SetActiveTermCount(v int32) {
	binary.LittleEndian.PutUint32(m.buf[metaActiveTermCountOffset:metaActiveTermCountOffset+4], uint32(v))
}

func (m *Metadata) InitialTermID() int32 {
	return int32(binary.LittleEndian.Uint32(m.buf[metaInitialTermIDOffset : metaInitialTermIDOffset+4]))
}

func (m *Metadata) SetInitialTermID(v int32) {
	binary.LittleEndian.PutUint32(m.buf[metaInitialTermIDOffset:metaInitialTermIDOffset+4], uint32(v))
}

func (m *Metadata) MTULength() int32 {
	return int32(binary.LittleEndian.Uint32(m.buf[metaMTULengthOffset : metaMTULengthOffset+4]))
}

func (m *Metadata) SetMTULength(v int32) {
	binary.LittleEndian.PutUint32(m.buf[metaMTULengthOffset:metaMTULengthOffset+4], uint32(v))
}

func (m *Metadata) TermLength() int32 {
	return int32(binary.LittleEndian.Uint32(m.buf[metaTermLengthOffset : metaTermLengthOffset+4]))
}

func (m *Metadata) SetTermLength(v int32) {
	binary.LittleEndian.PutUint32(m.buf[metaTermLengthOffset:metaTermLengthOffset+4], uint32(v))
}

func (m *Metadata) PageSize() int32 {
	return int32(binary.LittleEndian.Uint32(m.buf[metaPageSizeOffset : metaPageSizeOffset+4]))
}

func (m *Metadata) SetPageSize(v int32) {
	binary.LittleEndian.PutUint32(m.buf[metaPageSizeOffset:metaPageSizeOffset+4], uint32(v))
}

func (m *Metadata) endOfStreamPosPtr() *int64 {
	return (*int64)(unsafe.Pointer(&m.buf[metaEndOfStreamPosOffset]))
}

// EndOfStreamPositionVolatile reads the end-of-stream position with acquire
// semantics. A sentinel of math.MaxInt64 means "not yet at end of stream".
func (m *Metadata) EndOfStreamPositionVolatile() int64 {
	return atomic.LoadInt64(m.endOfStreamPosPtr())
}

func (m *Metadata) StoreEndOfStreamPositionRelease(v int64) {
	atomic.StoreInt64(m.endOfStreamPosPtr(), v)
}

// DefaultFrameHeader returns the default frame header template applied to
// new claims (session id, stream id, initial term id, version).
func (m *Metadata) DefaultFrameHeader() []byte {
	return m.buf[metaDefaultHeaderOffset : metaDefaultHeaderOffset+wire.DataHeaderLength]
}
