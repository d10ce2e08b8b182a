package conductor

import (
	"encoding/binary"
	"fmt"
)

// CommandType identifies a client command's wire encoding (spec.md §4.7
// "Conductor": "Consumes client commands from the driver MPSC ring:
// ADD/REMOVE PUBLICATION, ADD/REMOVE SUBSCRIPTION, ADD/REMOVE COUNTER,
// CLIENT KEEPALIVE, ADD DESTINATION, REMOVE DESTINATION").
type CommandType int32

const (
	CommandAddPublication CommandType = iota
	CommandRemovePublication
	CommandAddSubscription
	CommandRemoveSubscription
	CommandAddCounter
	CommandRemoveCounter
	CommandClientKeepalive
	CommandAddDestination
	CommandRemoveDestination
)

// Command is a decoded client command, read off the driver MPSC ring.
type Command struct {
	Type           CommandType
	CorrelationID  int64
	ClientID       int64
	ChannelURI     string
	StreamID       int32
	SessionID      int32
	RegistrationID int64
}

// Encode serialises cmd for publication onto the driver command ring: a
// fixed header (type, correlation id, client id, stream id, session id,
// registration id) followed by the length-prefixed channel URI.
func (c Command) Encode() []byte {
	uriBytes := []byte(c.ChannelURI)
	buf := make([]byte, 4+8+8+4+4+8+4+len(uriBytes))
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(c.Type))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], uint64(c.CorrelationID))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(c.ClientID))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(c.StreamID))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(c.SessionID))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], uint64(c.RegistrationID))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(uriBytes)))
	off += 4
	copy(buf[off:], uriBytes)
	return buf
}

// DecodeCommand parses a command previously written by Encode.
func DecodeCommand(buf []byte) (Command, error) {
	const headerLen = 4 + 8 + 8 + 4 + 4 + 8 + 4
	if len(buf) < headerLen {
		return Command{}, fmt.Errorf("conductor: short command buffer: %d bytes", len(buf))
	}

	var c Command
	off := 0
	c.Type = CommandType(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	c.CorrelationID = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	c.ClientID = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	c.StreamID = int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	c.SessionID = int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	c.RegistrationID = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	uriLen := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	if len(buf) < off+uriLen {
		return Command{}, fmt.Errorf("conductor: truncated channel URI: want %d bytes, have %d", uriLen, len(buf)-off)
	}
	c.ChannelURI = string(buf[off : off+uriLen])

	return c, nil
}

// EventType identifies a client-facing response/event's wire encoding,
// emitted on the broadcast-to-clients ring (spec.md §4.7).
type EventType int32

const (
	EventPublicationReady EventType = iota
	EventSubscriptionReady
	EventUnavailableImage
	EventClientTimeout
	EventError
	EventAvailableImage
)

// Event is a correlated response or asynchronous notification for clients.
type Event struct {
	Type           EventType
	CorrelationID  int64
	RegistrationID int64
	ErrorCode      int32
	Message        string
}

// Encode serialises ev for the broadcast-to-clients ring.
func (ev Event) Encode() []byte {
	msgBytes := []byte(ev.Message)
	buf := make([]byte, 4+8+8+4+4+len(msgBytes))
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(ev.Type))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], uint64(ev.CorrelationID))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(ev.RegistrationID))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(ev.ErrorCode))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(msgBytes)))
	off += 4
	copy(buf[off:], msgBytes)
	return buf
}

// DecodeEvent parses an event previously written by Encode.
func DecodeEvent(buf []byte) (Event, error) {
	const headerLen = 4 + 8 + 8 + 4 + 4
	if len(buf) < headerLen {
		return Event{}, fmt.Errorf("conductor: short event buffer: %d bytes", len(buf))
	}

	var ev Event
	off := 0
	ev.Type = EventType(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	ev.CorrelationID = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	ev.RegistrationID = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	ev.ErrorCode = int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	msgLen := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	if len(buf) < off+msgLen {
		return Event{}, fmt.Errorf("conductor: truncated event message: want %d bytes, have %d", msgLen, len(buf)-off)
	}
	ev.Message = string(buf[off : off+msgLen])

	return ev, nil
}
