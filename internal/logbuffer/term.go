package logbuffer

import (
	"github.com/yanet-platform/mediadriver/internal/wire"
)

// ScanResult describes the outcome of scanning a term buffer for committed
// frames starting at an offset (spec.md §4.2 "Sender side: term scanner").
type ScanResult struct {
	// Offset is the term offset the scan stopped at: the sender should
	// resume its next scan from here.
	Offset int32
	// Available is the total number of committed bytes found, always a
	// multiple of wire.FrameAlignment.
	Available int32
	// EndOfTerm is true if the scan stopped because it ran into the
	// padding frame that marks the physical end of the term.
	EndOfTerm bool
}

// FrameVisitor is invoked once per committed frame encountered by Scan,
// with the frame's header bytes (at least wire.HeaderLength long) and its
// offset within the term.
type FrameVisitor func(header []byte, frameOffset, frameLength int32)

// Scan walks committed frames in term starting at offset, stopping at the
// first uncommitted (frame_length == 0) slot, the term's logical end, or
// once maxLength bytes have been accumulated (an MTU-sized send batch).
// It never blocks: the sender calls it once per duty cycle (spec.md §4.2,
// §4.8 "Sender").
func Scan(term []byte, offset, maxLength int32, visit FrameVisitor) ScanResult {
	termLength := int32(len(term))
	start := offset
	accumulated := int32(0)

	for offset < termLength {
		frameLength := wire.FrameLengthVolatile(term[offset:])
		if frameLength == 0 {
			break
		}

		alignedLength := wire.AlignTerm(absInt32(frameLength))
		if accumulated > 0 && accumulated+alignedLength > maxLength {
			break
		}

		header := term[offset:]
		if len(header) > wire.HeaderLength {
			header = header[:wire.HeaderLength]
		}

		if frameLength > 0 {
			visit(header, offset, frameLength)
		}
		// frameLength < 0 marks a padding frame: it still occupies space
		// and advances the scan but carries nothing to send.

		accumulated += alignedLength
		offset += alignedLength

		if accumulated >= maxLength {
			break
		}
	}

	return ScanResult{
		Offset:    offset,
		Available: offset - start,
		EndOfTerm: offset >= termLength,
	}
}

func absInt32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// RebuildResult reports what a single Rebuild call observed.
type RebuildResult struct {
	// HighestOffset is the highest contiguous committed offset reached.
	HighestOffset int32
	// Duplicate is true if the incoming frame's slot was already
	// committed (a retransmitted frame arriving after the original, or a
	// duplicate delivery); Rebuild is idempotent in this case.
	Duplicate bool
}

// Rebuild writes an incoming frame (header+payload, exactly frameLength
// bytes starting with a valid common header) into term at termOffset,
// publishing frame_length last with release semantics. It is safe to call
// concurrently for disjoint offsets and idempotent for the same offset
// (spec.md §4.2 "Receiver side: term rebuilder", §5 "Loss and duplication").
func Rebuild(term []byte, termOffset int32, frame []byte) RebuildResult {
	existing := wire.FrameLengthVolatile(term[termOffset:])
	if existing != 0 {
		return RebuildResult{HighestOffset: termOffset + wire.AlignTerm(absInt32(existing)), Duplicate: true}
	}

	frameLength := int32(len(frame))
	copy(term[termOffset+4:], frame[4:]) // body + rest of header, length last
	wire.PutFrameLengthRelease(term[termOffset:], frameLength)

	return RebuildResult{HighestOffset: termOffset + wire.AlignTerm(frameLength)}
}

// Gap is a missing, not-yet-committed byte range within a term.
type Gap struct {
	TermOffset int32
	Length     int32
}

// FindGap scans term from offset (the last known contiguous position) up
// to limit and returns the first gap: a run of uncommitted slots preceded
// by committed data. It returns ok=false if there is no gap in range, i.e.
// data is contiguous up to limit (spec.md §4.2 "Gap scanner").
func FindGap(term []byte, offset, limit int32) (Gap, bool) {
	scanOffset := offset
	for scanOffset < limit {
		frameLength := wire.FrameLengthVolatile(term[scanOffset:])
		if frameLength == 0 {
			break
		}
		scanOffset += wire.AlignTerm(absInt32(frameLength))
	}

	if scanOffset >= limit {
		return Gap{}, false
	}

	gapStart := scanOffset
	for scanOffset < limit {
		frameLength := wire.FrameLengthVolatile(term[scanOffset:])
		if frameLength != 0 {
			break
		}
		scanOffset += wire.FrameAlignment
	}

	return Gap{TermOffset: gapStart, Length: scanOffset - gapStart}, true
}

// Unblock resolves a stalled claim: a producer that claimed [offset,
// offset+length) and then died (crashed, or was cancelled) before
// publishing frame_length leaves a permanent gap that would otherwise wedge
// every consumer positioned before it forever. Unblock writes a padding
// frame over the claimed-but-never-published region so readers can advance
// past it.
//
// This is best-effort: Unblock cannot distinguish "producer died mid-claim"
// from "producer is merely slow", so callers must only invoke it after an
// unblock timeout has elapsed with no forward progress (spec.md §4.2
// "Unblocker", Open Question "mid-frame unblock straddle").
func Unblock(term []byte, offset, limit int32) bool {
	frameLength := wire.FrameLengthVolatile(term[offset:])
	if frameLength != 0 {
		return false
	}

	length := limit - offset
	if length <= 0 {
		return false
	}

	wire.PutCommonHeader(term[offset:], wire.CommonHeader{Type: wire.TypePad})
	for i := wire.HeaderLength; i < int(length); i++ {
		term[offset+int32(i)] = 0
	}
	wire.PutFrameLengthRelease(term[offset:], -length)
	return true
}

// FillGap writes a padding frame over [offset, offset+length) when a gap
// has been NAKed repeatedly with no repair arriving (the sender has no more
// data to retransmit, e.g. it has moved on or the image is draining). This
// lets subscribers stop waiting on data that will never come (spec.md §4.2
// "Gap filler").
func FillGap(term []byte, offset, length int32) {
	wire.PutCommonHeader(term[offset:], wire.CommonHeader{Type: wire.TypePad})
	for i := wire.HeaderLength; i < int(length); i++ {
		term[offset+int32(i)] = 0
	}
	wire.PutFrameLengthRelease(term[offset:], -length)
}
