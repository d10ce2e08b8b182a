package ringbuffer

// SPSC is a single-producer, single-consumer lock-free ring buffer over a
// caller-provided byte slice (spec.md §4.1).
//
// buf's length must be a power of two. The buffer may be backed by a plain
// heap slice for in-process queues, or by an mmap'd region for the
// cross-process driver command ring.
type SPSC struct {
	buf      []byte
	capacity int64
	mask     int64
	cursors
}

// NewSPSC wraps buf as an SPSC ring buffer. len(buf) must be a power of two.
func NewSPSC(buf []byte) (*SPSC, error) {
	capacity, err := validateCapacity(len(buf))
	if err != nil {
		return nil, err
	}

	return &SPSC{
		buf:      buf,
		capacity: capacity,
		mask:     capacity - 1,
	}, nil
}

// Capacity returns the usable byte capacity of the ring.
func (r *SPSC) Capacity() int { return int(r.capacity) }

// Write claims space for, and publishes, a record carrying msgType and
// payload. It returns false if there is not enough free space.
//
// Write must only be called from the single producer goroutine.
func (r *SPSC) Write(msgType int32, payload []byte) bool {
	bodyLen := int64(RecordHeaderLength + len(payload))
	aligned := align8(bodyLen)
	if aligned > r.capacity {
		panic("ringbuffer: record larger than ring capacity")
	}

	for {
		tailValue := r.tail.Load()
		headValue := r.head.LoadAcquire()
		available := r.capacity - (tailValue - headValue)

		indexTail := tailValue & r.mask
		toEnd := r.capacity - indexTail

		if aligned > toEnd {
			if toEnd+aligned > available {
				return false
			}
			writePaddingRecord(r.buf, indexTail, toEnd)
			r.tail.StoreRelease(tailValue + toEnd)
			continue
		}

		if aligned > available {
			return false
		}

		writeRecordBody(r.buf, indexTail, msgType, payload)
		storeRecordLengthRelease(r.buf, indexTail, int32(bodyLen))
		r.tail.StoreRelease(tailValue + aligned)
		return true
	}
}

// Read drains as many committed records as are currently available,
// invoking handler for each non-padding record. It returns the number of
// records delivered to handler.
//
// Read must only be called from the single consumer goroutine.
func (r *SPSC) Read(handler Handler) int {
	headValue := r.head.Load()
	var bytesRead int64
	var messagesRead int

	for bytesRead < r.capacity {
		index := (headValue + bytesRead) & r.mask
		length := loadRecordLength(r.buf, index)
		if length <= 0 {
			break
		}

		msgType := loadRecordType(r.buf, index)
		aligned := align8(int64(length))

		if msgType != PaddingMsgTypeID {
			payload := r.buf[index+RecordHeaderLength : index+int64(length)]
			handler(msgType, payload)
			messagesRead++
		}

		// Clear the consumed record so a future wrap never observes stale
		// committed data before the next producer write.
		storeRecordLengthRelease(r.buf, index, 0)

		bytesRead += aligned
	}

	if bytesRead > 0 {
		r.head.StoreRelease(headValue + bytesRead)
	}

	return messagesRead
}
