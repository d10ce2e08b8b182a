// Package dispatcher implements the receiver-side ingress demultiplexer: a
// two-level session/stream index plus frame classification that routes
// inbound DATA/SETUP/RTTM frames to the right image or triggers image
// creation (spec.md §4.6 "Data packet dispatcher").
package dispatcher

import (
	"fmt"
	"net/netip"

	"github.com/yanet-platform/mediadriver/internal/wire"
)

// StreamKey identifies a (session, stream) pair.
type StreamKey struct {
	SessionID int32
	StreamID  int32
}

// Image is the receiver-visible surface of a subscription image the
// dispatcher routes frames to. The receiver's per-image handle, which wraps
// an internal/publication.Image, satisfies this.
type Image interface {
	OnData(frame []byte, termOffset int32)
	OnRTTM(frame []byte, from netip.AddrPort)
	InitialTermID() int32
}

// Subscribable reports whether any subscription is interested in a stream
// that has no image yet, and whether from is an allowed source.
type Subscribable interface {
	HasInterest(key StreamKey) bool
	SourceAllowed(key StreamKey, from netip.AddrPort) bool
}

// Action is what the caller must do in response to Dispatch.
type Action int

const (
	// ActionNone means the frame was fully handled (routed to an image,
	// or silently dropped).
	ActionNone Action = iota
	// ActionRequestSetup means the dispatcher elevated an unmatched
	// stream to pending-setup and the caller should emit a SETUP request
	// towards from.
	ActionRequestSetup
	// ActionCreateOrConfirmImage means a SETUP frame arrived and the
	// caller (via the Conductor proxy) must allocate or confirm the
	// image's log buffer.
	ActionCreateOrConfirmImage
	// ActionProtocolError means a malformed or conflicting frame arrived
	// (e.g. SETUP with mismatched initial_term_id for an existing
	// image) and should be counted as a protocol error.
	ActionProtocolError
)

// Dispatcher holds the two-level session→stream→image index and routes
// inbound frames (spec.md §4.6).
type Dispatcher struct {
	images       map[StreamKey]Image
	pendingSetup map[StreamKey]int32 // stream key -> initial_term_id proposed
	subscribable Subscribable
}

// New creates a dispatcher consulting subscribable for streams with no
// image yet.
func New(subscribable Subscribable) *Dispatcher {
	return &Dispatcher{
		images:       make(map[StreamKey]Image),
		pendingSetup: make(map[StreamKey]int32),
		subscribable: subscribable,
	}
}

// AddImage registers an active image for key, clearing any pending-setup
// marker.
func (d *Dispatcher) AddImage(key StreamKey, img Image) {
	d.images[key] = img
	delete(d.pendingSetup, key)
}

// RemoveImage deregisters key's image.
func (d *Dispatcher) RemoveImage(key StreamKey) {
	delete(d.images, key)
}

// Dispatch classifies and routes one inbound frame (spec.md §4.6).
func (d *Dispatcher) Dispatch(frame []byte, from netip.AddrPort) (Action, error) {
	common, err := wire.ParseCommonHeader(frame)
	if err != nil {
		return ActionProtocolError, fmt.Errorf("dispatcher: %w", err)
	}

	key := StreamKey{SessionID: common.SessionID, StreamID: common.StreamID}

	switch common.Type {
	case wire.TypeData, wire.TypePad:
		if img, ok := d.images[key]; ok {
			img.OnData(frame, common.TermOffset)
			return ActionNone, nil
		}
		if d.subscribable != nil && d.subscribable.HasInterest(key) {
			if !d.subscribable.SourceAllowed(key, from) {
				return ActionProtocolError, fmt.Errorf("dispatcher: source %s not allowed for %+v", from, key)
			}
			if _, pending := d.pendingSetup[key]; !pending {
				d.pendingSetup[key] = common.TermID
				return ActionRequestSetup, nil
			}
		}
		return ActionNone, nil

	case wire.TypeSetup:
		setup, err := wire.ParseSetupHeader(frame)
		if err != nil {
			return ActionProtocolError, fmt.Errorf("dispatcher: %w", err)
		}
		if img, ok := d.images[key]; ok {
			if img.InitialTermID() != setup.InitialTermID {
				return ActionProtocolError, fmt.Errorf(
					"dispatcher: SETUP initial_term_id mismatch for %+v: have %d, got %d",
					key, img.InitialTermID(), setup.InitialTermID)
			}
			// Duplicate SETUP for an existing image is idempotent.
			return ActionNone, nil
		}
		d.pendingSetup[key] = setup.InitialTermID
		return ActionCreateOrConfirmImage, nil

	case wire.TypeRTTM:
		if img, ok := d.images[key]; ok {
			img.OnRTTM(frame, from)
		}
		return ActionNone, nil

	case wire.TypeSM, wire.TypeNAK:
		// Not expected on the receive path; these are dispatched on the
		// send endpoint instead (spec.md §4.6).
		return ActionNone, nil

	default:
		return ActionProtocolError, fmt.Errorf("dispatcher: unexpected frame type %s", common.Type)
	}
}

// PendingInitialTermID returns the initial_term_id proposed for a
// pending-setup stream, if any.
func (d *Dispatcher) PendingInitialTermID(key StreamKey) (int32, bool) {
	v, ok := d.pendingSetup[key]
	return v, ok
}

// PendingKeys returns every stream key currently awaiting image creation,
// for the Conductor's image-allocation proxy call (spec.md §4.6, §4.7).
func (d *Dispatcher) PendingKeys() []StreamKey {
	keys := make([]StreamKey, 0, len(d.pendingSetup))
	for k := range d.pendingSetup {
		keys = append(keys, k)
	}
	return keys
}
