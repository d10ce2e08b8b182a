// Package ringbuffer implements the lock-free SPSC and MPSC ring buffers and
// the broadcast transmitter that are the driver's only permitted
// inter-thread and inter-process communication primitives (spec.md §4.1).
//
// All three structures share one record layout:
//
//	[length:i32][type:i32][payload...]
//
// aligned to 8 bytes. length is written last by the producer (a release
// store) and read first by the consumer (an acquire load); zero length
// means "not yet committed". Readers stop at a zero length; they never spin
// on it.
package ringbuffer

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"sync/atomic"
	"unsafe"

	"github.com/yanet-platform/mediadriver/internal/xatomic"
)

// RecordHeaderLength is the size of the [length][type] record prefix.
const RecordHeaderLength = 8

// RecordAlignment is the byte alignment every record start must satisfy.
const RecordAlignment = 8

// PaddingMsgTypeID marks a record as wrap-padding: the consumer skips its
// body without invoking the message handler.
const PaddingMsgTypeID int32 = -1

func align8(n int64) int64 {
	return (n + (RecordAlignment - 1)) &^ (RecordAlignment - 1)
}

func isPowerOfTwo(n int64) bool {
	return n > 0 && n&(n-1) == 0
}

// validateCapacity checks that capacity is a positive power of two, as
// required to turn position arithmetic into a mask operation.
func validateCapacity(capacity int) (int64, error) {
	c := int64(capacity)
	if !isPowerOfTwo(c) {
		return 0, fmt.Errorf("ringbuffer: capacity %d is not a power of two", capacity)
	}
	return c, nil
}

func log2(n int64) int64 {
	return int64(bits.Len64(uint64(n)) - 1)
}

// lengthPtr reinterprets the length field at index as an *int32 so it can be
// loaded/stored with sync/atomic, matching counters.Manager's statePtr.
func lengthPtr(buf []byte, index int64) *int32 {
	return (*int32)(unsafe.Pointer(&buf[index]))
}

// loadRecordLength performs the acquire load of a record's length field.
func loadRecordLength(buf []byte, index int64) int32 {
	return atomic.LoadInt32(lengthPtr(buf, index))
}

func loadRecordType(buf []byte, index int64) int32 {
	return int32(binary.LittleEndian.Uint32(buf[index+4 : index+8]))
}

// writeRecordBody writes type and payload, without publishing the length
// field. Callers must publish length last via storeRecordLengthRelease.
func writeRecordBody(buf []byte, index int64, msgType int32, payload []byte) {
	binary.LittleEndian.PutUint32(buf[index+4:index+8], uint32(msgType))
	copy(buf[index+RecordHeaderLength:], payload)
}

func storeRecordLengthRelease(buf []byte, index int64, length int32) {
	atomic.StoreInt32(lengthPtr(buf, index), length)
}

// writePaddingRecord writes a padding record occupying exactly
// paddingLength bytes (including its own header) at index.
func writePaddingRecord(buf []byte, index int64, paddingLength int64) {
	binary.LittleEndian.PutUint32(buf[index+4:index+8], uint32(PaddingMsgTypeID))
	storeRecordLengthRelease(buf, index, int32(paddingLength))
}

// Handler is called by a ring buffer consumer for each non-padding record
// read. payload aliases the ring buffer's backing array and is only valid
// for the duration of the call.
type Handler func(msgType int32, payload []byte)

// cursors groups a producer and consumer cursor far enough apart
// (each xatomic.Int64 is cache-line padded) to avoid false sharing.
type cursors struct {
	head xatomic.Int64
	tail xatomic.Int64
}
