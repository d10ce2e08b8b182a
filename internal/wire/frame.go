// Package wire defines the UDP wire protocol: frame header layout, frame
// types and the little-endian encode/decode routines shared by the
// log-buffer term operations, the transport layer and the dispatcher
// (spec.md §3 "Frame", §6 "Wire protocol").
package wire

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// FrameAlignment is the byte alignment every frame start must satisfy
// within a term buffer (spec.md §3).
const FrameAlignment = 32

// AlignTerm rounds length up to the next multiple of FrameAlignment.
func AlignTerm(length int32) int32 {
	return (length + (FrameAlignment - 1)) &^ (FrameAlignment - 1)
}

// Type identifies the frame's wire type (spec.md §6).
type Type uint16

const (
	TypePad   Type = 0x00
	TypeData  Type = 0x01
	TypeNAK   Type = 0x02
	TypeSM    Type = 0x03
	TypeErr   Type = 0x04
	TypeSetup Type = 0x05
	TypeRTTM  Type = 0x06
)

func (t Type) String() string {
	switch t {
	case TypePad:
		return "PAD"
	case TypeData:
		return "DATA"
	case TypeNAK:
		return "NAK"
	case TypeSM:
		return "SM"
	case TypeErr:
		return "ERR"
	case TypeSetup:
		return "SETUP"
	case TypeRTTM:
		return "RTTM"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
	}
}

// Frame header flags.
const (
	FlagBegin uint8 = 0x80
	FlagEnd   uint8 = 0x40
	// FlagUnfragmented marks a frame that is both the first and the last
	// fragment of its message.
	FlagUnfragmented = FlagBegin | FlagEnd
)

// Status-message specific flags.
const SMFlagEOS uint8 = 0x01

// RTTM specific flags.
const RTTMFlagReply uint8 = 0x80

// HeaderLength is the size in bytes of the common frame header shared by
// every frame type.
const HeaderLength = 24

// CommonHeader is the fixed-size prefix present on every frame.
//
// frame_length is written last by the producer (a release store) and read
// first by the consumer (an acquire load); zero means "not yet committed"
// (spec.md §4.1, §4.2).
type CommonHeader struct {
	FrameLength int32
	Version     uint8
	Flags       uint8
	Type        Type
	TermOffset  int32
	SessionID   int32
	StreamID    int32
	TermID      int32
}

// PutCommonHeader encodes h into buf[0:HeaderLength], except for
// FrameLength, which callers must publish separately via
// PutFrameLengthRelease once the body has been written.
func PutCommonHeader(buf []byte, h CommonHeader) {
	_ = buf[HeaderLength-1]
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.LittleEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.TermOffset))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.SessionID))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(h.StreamID))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(h.TermID))
}

// ParseCommonHeader decodes the common header from buf.
func ParseCommonHeader(buf []byte) (CommonHeader, error) {
	if len(buf) < HeaderLength {
		return CommonHeader{}, fmt.Errorf("wire: short buffer for common header: %d bytes", len(buf))
	}

	return CommonHeader{
		FrameLength: int32(binary.LittleEndian.Uint32(buf[0:4])),
		Version:     buf[4],
		Flags:       buf[5],
		Type:        Type(binary.LittleEndian.Uint16(buf[6:8])),
		TermOffset:  int32(binary.LittleEndian.Uint32(buf[8:12])),
		SessionID:   int32(binary.LittleEndian.Uint32(buf[12:16])),
		StreamID:    int32(binary.LittleEndian.Uint32(buf[16:20])),
		TermID:      int32(binary.LittleEndian.Uint32(buf[20:24])),
	}, nil
}

// frameLengthPtr reinterprets buf's first four bytes as an *int32, matching
// counters.Manager's statePtr/valuePtr: the only way to get a genuine
// release-store/acquire-load pair on a field embedded in shared memory
// rather than an independent allocation.
func frameLengthPtr(buf []byte) *int32 {
	return (*int32)(unsafe.Pointer(&buf[0]))
}

// FrameLengthVolatile reads the frame_length field with acquire semantics.
//
// A length of zero (or negative, for padding-in-progress markers) means the
// frame has not yet been committed by its producer.
func FrameLengthVolatile(buf []byte) int32 {
	return atomic.LoadInt32(frameLengthPtr(buf))
}

// PutFrameLengthRelease publishes the frame_length field with release
// semantics: every byte written to the frame body before this call
// happens-before any reader observing the new length (spec.md §4.1 ordering
// contract).
func PutFrameLengthRelease(buf []byte, length int32) {
	atomic.StoreInt32(frameLengthPtr(buf), length)
}

// DataHeaderLength is the size of a DATA/PAD frame header, including the
// common header and the reserved value trailer.
const DataHeaderLength = HeaderLength + 8

// DataHeader is the DATA/PAD frame layout.
type DataHeader struct {
	CommonHeader
	ReservedValue int64
}

func PutDataHeader(buf []byte, h DataHeader) {
	_ = buf[DataHeaderLength-1]
	PutCommonHeader(buf, h.CommonHeader)
	binary.LittleEndian.PutUint64(buf[HeaderLength:HeaderLength+8], uint64(h.ReservedValue))
}

func ParseDataHeader(buf []byte) (DataHeader, error) {
	if len(buf) < DataHeaderLength {
		return DataHeader{}, fmt.Errorf("wire: short buffer for data header: %d bytes", len(buf))
	}

	common, err := ParseCommonHeader(buf)
	if err != nil {
		return DataHeader{}, err
	}

	return DataHeader{
		CommonHeader:  common,
		ReservedValue: int64(binary.LittleEndian.Uint64(buf[HeaderLength : HeaderLength+8])),
	}, nil
}

// NAKHeaderLength is the size of a NAK frame.
const NAKHeaderLength = HeaderLength + 8

// NAKHeader requests retransmission of [TermOffset, TermOffset+Length) in
// TermID (spec.md §6).
type NAKHeader struct {
	CommonHeader
	Length int32
	_      int32 // padding to 8-byte alignment
}

func PutNAKHeader(buf []byte, h NAKHeader) {
	_ = buf[NAKHeaderLength-1]
	h.CommonHeader.Type = TypeNAK
	PutCommonHeader(buf, h.CommonHeader)
	binary.LittleEndian.PutUint32(buf[HeaderLength:HeaderLength+4], uint32(h.Length))
}

func ParseNAKHeader(buf []byte) (NAKHeader, error) {
	if len(buf) < NAKHeaderLength {
		return NAKHeader{}, fmt.Errorf("wire: short buffer for NAK header: %d bytes", len(buf))
	}

	common, err := ParseCommonHeader(buf)
	if err != nil {
		return NAKHeader{}, err
	}

	return NAKHeader{
		CommonHeader: common,
		Length:       int32(binary.LittleEndian.Uint32(buf[HeaderLength : HeaderLength+4])),
	}, nil
}

// SMHeaderLength is the size of a status-message frame.
const SMHeaderLength = HeaderLength + 24

// SMHeader carries a subscriber's consumption position and receive window
// (spec.md §6).
type SMHeader struct {
	CommonHeader
	ConsumptionTermID     int32
	ConsumptionTermOffset int32
	ReceiverWindow        int32
	ReceiverID            int64
	Flags                 uint8
}

func PutSMHeader(buf []byte, h SMHeader) {
	_ = buf[SMHeaderLength-1]
	h.CommonHeader.Type = TypeSM
	PutCommonHeader(buf, h.CommonHeader)
	off := HeaderLength
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(h.ConsumptionTermID))
	binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(h.ConsumptionTermOffset))
	binary.LittleEndian.PutUint32(buf[off+8:off+12], uint32(h.ReceiverWindow))
	binary.LittleEndian.PutUint64(buf[off+12:off+20], uint64(h.ReceiverID))
	buf[off+20] = h.Flags
}

func ParseSMHeader(buf []byte) (SMHeader, error) {
	if len(buf) < SMHeaderLength {
		return SMHeader{}, fmt.Errorf("wire: short buffer for SM header: %d bytes", len(buf))
	}

	common, err := ParseCommonHeader(buf)
	if err != nil {
		return SMHeader{}, err
	}

	off := HeaderLength
	return SMHeader{
		CommonHeader:          common,
		ConsumptionTermID:     int32(binary.LittleEndian.Uint32(buf[off : off+4])),
		ConsumptionTermOffset: int32(binary.LittleEndian.Uint32(buf[off+4 : off+8])),
		ReceiverWindow:        int32(binary.LittleEndian.Uint32(buf[off+8 : off+12])),
		ReceiverID:            int64(binary.LittleEndian.Uint64(buf[off+12 : off+20])),
		Flags:                 buf[off+20],
	}, nil
}

// SetupHeaderLength is the size of a SETUP frame.
const SetupHeaderLength = HeaderLength + 24

// SetupHeader publishes a publication's term layout to potential
// subscribers (spec.md §6).
type SetupHeader struct {
	CommonHeader
	InitialTermID int32
	ActiveTermID  int32
	TermLength    int32
	MTU           int32
	TTL           int32
}

func PutSetupHeader(buf []byte, h SetupHeader) {
	_ = buf[SetupHeaderLength-1]
	h.CommonHeader.Type = TypeSetup
	PutCommonHeader(buf, h.CommonHeader)
	off := HeaderLength
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(h.InitialTermID))
	binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(h.ActiveTermID))
	binary.LittleEndian.PutUint32(buf[off+8:off+12], uint32(h.TermLength))
	binary.LittleEndian.PutUint32(buf[off+12:off+16], uint32(h.MTU))
	binary.LittleEndian.PutUint32(buf[off+16:off+20], uint32(h.TTL))
}

func ParseSetupHeader(buf []byte) (SetupHeader, error) {
	if len(buf) < SetupHeaderLength {
		return SetupHeader{}, fmt.Errorf("wire: short buffer for SETUP header: %d bytes", len(buf))
	}

	common, err := ParseCommonHeader(buf)
	if err != nil {
		return SetupHeader{}, err
	}

	off := HeaderLength
	return SetupHeader{
		CommonHeader:  common,
		InitialTermID: int32(binary.LittleEndian.Uint32(buf[off : off+4])),
		ActiveTermID:  int32(binary.LittleEndian.Uint32(buf[off+4 : off+8])),
		TermLength:    int32(binary.LittleEndian.Uint32(buf[off+8 : off+12])),
		MTU:           int32(binary.LittleEndian.Uint32(buf[off+12 : off+16])),
		TTL:           int32(binary.LittleEndian.Uint32(buf[off+16 : off+20])),
	}, nil
}

// RTTMHeaderLength is the size of an RTT-measurement frame.
const RTTMHeaderLength = HeaderLength + 32

// RTTMHeader carries a round-trip-time measurement ping/reply (spec.md §6).
type RTTMHeader struct {
	CommonHeader
	EchoTimestampNs  int64
	ReceptionDeltaNs int64
	ReceiverID       int64
	Flags            uint8
}

func PutRTTMHeader(buf []byte, h RTTMHeader) {
	_ = buf[RTTMHeaderLength-1]
	h.CommonHeader.Type = TypeRTTM
	PutCommonHeader(buf, h.CommonHeader)
	off := HeaderLength
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(h.EchoTimestampNs))
	binary.LittleEndian.PutUint64(buf[off+8:off+16], uint64(h.ReceptionDeltaNs))
	binary.LittleEndian.PutUint64(buf[off+16:off+24], uint64(h.ReceiverID))
	buf[off+24] = h.Flags
}

func ParseRTTMHeader(buf []byte) (RTTMHeader, error) {
	if len(buf) < RTTMHeaderLength {
		return RTTMHeader{}, fmt.Errorf("wire: short buffer for RTTM header: %d bytes", len(buf))
	}

	common, err := ParseCommonHeader(buf)
	if err != nil {
		return RTTMHeader{}, err
	}

	off := HeaderLength
	return RTTMHeader{
		CommonHeader:     common,
		EchoTimestampNs:  int64(binary.LittleEndian.Uint64(buf[off : off+8])),
		ReceptionDeltaNs: int64(binary.LittleEndian.Uint64(buf[off+8 : off+16])),
		ReceiverID:       int64(binary.LittleEndian.Uint64(buf[off+16 : off+24])),
		Flags:            buf[off+24],
	}, nil
}
