// Package endpoint implements the send/receive channel endpoints that
// multiplex publications and images over a shared transport.Channel
// (spec.md §3 "Channel endpoint", §4.5).
package endpoint

import (
	"fmt"
	"net/netip"
	"sync"

	"github.com/yanet-platform/mediadriver/internal/transport"
)

// StreamKey identifies a stream within a session, the unit endpoints index
// publications and images by.
type StreamKey struct {
	SessionID int32
	StreamID  int32
}

// SendChannelEndpoint multiplexes outbound network publications over one
// UDP channel, tracking per-publication destinations (spec.md §4.8
// "Sender").
type SendChannelEndpoint struct {
	mu        sync.RWMutex
	channel   *transport.Channel
	destByKey map[StreamKey]*transport.DestinationTracker
}

// NewSendChannelEndpoint wraps ch for outbound multiplexing.
func NewSendChannelEndpoint(ch *transport.Channel) *SendChannelEndpoint {
	ch.Acquire()
	return &SendChannelEndpoint{
		channel:   ch,
		destByKey: make(map[StreamKey]*transport.DestinationTracker),
	}
}

// AddPublication registers a stream as a user of this endpoint, with its
// initial destination.
func (e *SendChannelEndpoint) AddPublication(key StreamKey, dest netip.AddrPort) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tr, ok := e.destByKey[key]
	if !ok {
		tr = transport.NewDestinationTracker()
		e.destByKey[key] = tr
	}
	tr.Add(dest)
}

// AddDestination adds an additional destination for an already-registered
// stream (manual destination/multi-destination-cast support).
func (e *SendChannelEndpoint) AddDestination(key StreamKey, dest netip.AddrPort) error {
	e.mu.RLock()
	tr, ok := e.destByKey[key]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("endpoint: no publication registered for %+v", key)
	}
	tr.Add(dest)
	return nil
}

// RemovePublication deregisters a stream.
func (e *SendChannelEndpoint) RemovePublication(key StreamKey) {
	e.mu.Lock()
	delete(e.destByKey, key)
	e.mu.Unlock()
}

// Send writes payload to every destination registered for key.
func (e *SendChannelEndpoint) Send(key StreamKey, payload []byte) (int, error) {
	e.mu.RLock()
	tr, ok := e.destByKey[key]
	e.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("endpoint: no publication registered for %+v", key)
	}

	sent := 0
	var firstErr error
	for _, dest := range tr.Snapshot() {
		if _, err := e.channel.WriteTo(payload, dest); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}
	return sent, firstErr
}

// Channel returns the underlying transport channel, for poller
// registration.
func (e *SendChannelEndpoint) Channel() *transport.Channel { return e.channel }

// Close releases this endpoint's reference to its channel, closing the
// channel once no endpoint holds it.
func (e *SendChannelEndpoint) Close() error {
	if e.channel.Release() == 0 {
		return e.channel.Close()
	}
	return nil
}

// FrameHandler processes an inbound frame for a resolved stream (spec.md
// §4.6 "Data packet dispatcher"). It reports no result to the endpoint.
type FrameHandler func(key StreamKey, from netip.AddrPort, frame []byte)

// ReceiveChannelEndpoint multiplexes inbound traffic for one UDP channel
// across subscription images, demultiplexing by (session id, stream id)
// (spec.md §4.9 "Receiver").
type ReceiveChannelEndpoint struct {
	mu      sync.RWMutex
	channel *transport.Channel
	images  map[StreamKey]FrameHandler
}

// NewReceiveChannelEndpoint wraps ch for inbound demultiplexing.
func NewReceiveChannelEndpoint(ch *transport.Channel) *ReceiveChannelEndpoint {
	ch.Acquire()
	return &ReceiveChannelEndpoint{channel: ch, images: make(map[StreamKey]FrameHandler)}
}

// AddImage registers a handler for frames matching key.
func (e *ReceiveChannelEndpoint) AddImage(key StreamKey, handler FrameHandler) {
	e.mu.Lock()
	e.images[key] = handler
	e.mu.Unlock()
}

// RemoveImage deregisters a stream's handler.
func (e *ReceiveChannelEndpoint) RemoveImage(key StreamKey) {
	e.mu.Lock()
	delete(e.images, key)
	e.mu.Unlock()
}

// Dispatch routes an inbound frame to its registered image handler, if
// any. It reports whether a handler was found.
func (e *ReceiveChannelEndpoint) Dispatch(key StreamKey, from netip.AddrPort, frame []byte) bool {
	e.mu.RLock()
	handler, ok := e.images[key]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	handler(key, from, frame)
	return true
}

// Channel returns the underlying transport channel.
func (e *ReceiveChannelEndpoint) Channel() *transport.Channel { return e.channel }

// Close releases this endpoint's reference to its channel.
func (e *ReceiveChannelEndpoint) Close() error {
	if e.channel.Release() == 0 {
		return e.channel.Close()
	}
	return nil
}
