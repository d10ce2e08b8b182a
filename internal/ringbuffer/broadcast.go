package ringbuffer

import (
	"github.com/yanet-platform/mediadriver/internal/xatomic"
)

// Broadcast is a one-producer, many-independent-readers transmitter
// (spec.md §4.1). The producer never blocks on readers: it freely overwrites
// unread data when it wraps. A reader that falls too far behind observes
// this as being "lapped" and must re-synchronise from the current tail.
type Broadcast struct {
	buf      []byte
	capacity int64
	mask     int64
	tail     xatomic.Int64
}

// NewBroadcast wraps buf as a broadcast transmitter. len(buf) must be a
// power of two.
func NewBroadcast(buf []byte) (*Broadcast, error) {
	capacity, err := validateCapacity(len(buf))
	if err != nil {
		return nil, err
	}

	return &Broadcast{
		buf:      buf,
		capacity: capacity,
		mask:     capacity - 1,
	}, nil
}

// Capacity returns the usable byte capacity of the transmitter.
func (b *Broadcast) Capacity() int { return int(b.capacity) }

// Transmit publishes a record carrying msgType and payload. It never fails:
// if the record does not fit before the buffer wraps, it pads the tail and
// writes the record at the new wrap point, overwriting whatever readers had
// not yet consumed there.
func (b *Broadcast) Transmit(msgType int32, payload []byte) {
	bodyLen := int64(RecordHeaderLength + len(payload))
	aligned := align8(bodyLen)
	if aligned > b.capacity {
		panic("ringbuffer: record larger than broadcast capacity")
	}

	tailValue := b.tail.Load()
	indexTail := tailValue & b.mask
	toEnd := b.capacity - indexTail

	if aligned > toEnd {
		writePaddingRecord(b.buf, indexTail, toEnd)
		tailValue += toEnd
		indexTail = 0
	}

	writeRecordBody(b.buf, indexTail, msgType, payload)
	storeRecordLengthRelease(b.buf, indexTail, int32(bodyLen))
	b.tail.StoreRelease(tailValue + aligned)
}

// NewReceiver creates a reader with its own independent cursor, initialised
// to the transmitter's current tail (it only observes records transmitted
// from this point on).
func (b *Broadcast) NewReceiver() *Receiver {
	return &Receiver{b: b, cursor: b.tail.LoadAcquire()}
}

// Receiver is an independent reader cursor over a Broadcast transmitter.
type Receiver struct {
	b      *Broadcast
	cursor int64
}

// Result is the outcome of a single Receiver.Next call.
type Result struct {
	// MsgType and Payload are valid only when Lapped is false and Ok is
	// true. Payload is a copy: it outlives the call, unlike ring buffer
	// handler payloads, because the broadcast producer may overwrite the
	// original bytes concurrently with this read.
	MsgType int32
	Payload []byte
	// Lapped is true if this reader fell behind by more than the
	// transmitter's capacity and had to resynchronise to the current tail;
	// no message is returned in this case and the caller should re-read.
	Lapped bool
}

// Next returns the next record for this reader, or ok=false if there is
// nothing new since the last call.
func (r *Receiver) Next() (Result, bool) {
	tailValue := r.b.tail.LoadAcquire()
	if tailValue == r.cursor {
		return Result{}, false
	}

	index := r.cursor & r.b.mask
	length := loadRecordLength(r.b.buf, index)
	if length <= 0 {
		// Producer has claimed but not yet published this slot; nothing
		// new to deliver yet.
		return Result{}, false
	}
	msgType := loadRecordType(r.b.buf, index)
	aligned := align8(int64(length))

	// Lap check: if the producer has advanced far enough to have
	// overwritten the record we are about to read, resynchronise.
	if tailValue-r.cursor > r.b.capacity-aligned {
		r.cursor = tailValue
		return Result{Lapped: true}, true
	}

	var payload []byte
	if msgType != PaddingMsgTypeID {
		payload = append([]byte(nil), r.b.buf[index+RecordHeaderLength:index+int64(length)]...)
	}

	// Re-validate after copying: the producer may have lapped us mid-copy.
	if r.b.tail.LoadAcquire()-r.cursor > r.b.capacity {
		r.cursor = r.b.tail.LoadAcquire()
		return Result{Lapped: true}, true
	}

	r.cursor += aligned

	if msgType == PaddingMsgTypeID {
		return r.Next()
	}

	return Result{MsgType: msgType, Payload: payload}, true
}
