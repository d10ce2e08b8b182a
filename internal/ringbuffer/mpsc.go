package ringbuffer

// MPSC is a multi-producer, single-consumer lock-free ring buffer over a
// caller-provided byte slice (spec.md §4.1). Producers claim space via a CAS
// on tail; the consumer side is identical to SPSC.
type MPSC struct {
	buf      []byte
	capacity int64
	mask     int64
	cursors
}

// NewMPSC wraps buf as an MPSC ring buffer. len(buf) must be a power of two.
func NewMPSC(buf []byte) (*MPSC, error) {
	capacity, err := validateCapacity(len(buf))
	if err != nil {
		return nil, err
	}

	return &MPSC{
		buf:      buf,
		capacity: capacity,
		mask:     capacity - 1,
	}, nil
}

// Capacity returns the usable byte capacity of the ring.
func (r *MPSC) Capacity() int { return int(r.capacity) }

// Write claims space for, and publishes, a record carrying msgType and
// payload. It returns false if there is not enough free space.
//
// Write may be called concurrently from any number of producer goroutines.
func (r *MPSC) Write(msgType int32, payload []byte) bool {
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

		needsPadding := aligned > toEnd
		claimLength := aligned
		if needsPadding {
			claimLength = toEnd + aligned
		}

		if claimLength > available {
			return false
		}

		newTail := tailValue + claimLength
		if !r.tail.CompareAndSwap(tailValue, newTail) {
			// Lost the race for this region; retry with fresh cursors.
			continue
		}

		// This goroutine alone owns [tailValue, newTail) now: no other
		// producer can claim it, and the consumer won't cross into it
		// until its length field is published below.
		writeIndex := indexTail
		if needsPadding {
			writePaddingRecord(r.buf, indexTail, toEnd)
			writeIndex = 0
		}

		writeRecordBody(r.buf, writeIndex, msgType, payload)
		storeRecordLengthRelease(r.buf, writeIndex, int32(bodyLen))
		return true
	}
}

// Read drains as many committed records as are currently available,
// invoking handler for each non-padding record. It returns the number of
// records delivered to handler.
//
// Read must only be called from the single consumer goroutine.
func (r *MPSC) Read(handler Handler) int {
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

		storeRecordLengthRelease(r.buf, index, 0)

		bytesRead += aligned
	}

	if bytesRead > 0 {
		r.head.StoreRelease(headValue + bytesRead)
	}

	return messagesRead
}
