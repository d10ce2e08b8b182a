// Package publication implements the publisher-side and receiver-side
// stream state: IPC and network publications, and subscription images,
// each with their own lifecycle state machine (spec.md §3 "Publication
// (IPC and network)", "Publication image").
package publication

import (
	"fmt"
	"sync"
	"time"

	"github.com/yanet-platform/mediadriver/internal/congestioncontrol"
	"github.com/yanet-platform/mediadriver/internal/flowcontrol"
	"github.com/yanet-platform/mediadriver/internal/logbuffer"
)

// State is a publication's lifecycle stage (spec.md §3: "created on client
// ADD_PUBLICATION; becomes ACTIVE ...; transitions through DRAINING ...
// and LINGER ... before CLOSED").
type State int

const (
	StateActive State = iota
	StateDraining
	StateLinger
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateDraining:
		return "DRAINING"
	case StateLinger:
		return "LINGER"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Identity carries the registration attributes common to IPC and network
// publications (spec.md §3).
type Identity struct {
	SessionID      int32
	StreamID       int32
	ChannelURI     string
	RegistrationID int64
	InitialTermID  int32
	TermLength     int32
	MTULength      int32
}

// NetworkPublication is owned by the Conductor; its sender position is
// mutated only by the Sender agent (spec.md §3, §9 "Ownership rules").
type NetworkPublication struct {
	Identity

	mu             sync.Mutex
	state          State
	refCount       int32
	log            *logbuffer.MappedFile
	senderPosition logbuffer.Position

	flowControl  flowcontrol.Strategy
	lingerUntil  time.Time
	drainingFrom time.Time

	// subscriberPositions is the list of registered consumed-watermark
	// counter ids for this publication's subscribers (spec.md §3).
	subscriberPositions []int32
}

// NewNetworkPublication creates an ACTIVE network publication backed by
// log.
func NewNetworkPublication(identity Identity, log *logbuffer.MappedFile, fc flowcontrol.Strategy) *NetworkPublication {
	return &NetworkPublication{
		Identity:    identity,
		state:       StateActive,
		log:         log,
		flowControl: fc,
	}
}

// Acquire increments the reference count of subscriber interest.
func (p *NetworkPublication) Acquire() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refCount++
	return p.refCount
}

// Release decrements the reference count, returning the new value.
func (p *NetworkPublication) Release() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refCount--
	return p.refCount
}

// State returns the publication's current lifecycle state.
func (p *NetworkPublication) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SenderPosition returns the sender's current tail position.
func (p *NetworkPublication) SenderPosition() logbuffer.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.senderPosition
}

// AdvanceSenderPosition moves the sender position forward; only the Sender
// agent calls this (spec.md §9 "Ownership rules").
func (p *NetworkPublication) AdvanceSenderPosition(to logbuffer.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if to > p.senderPosition {
		p.senderPosition = to
	}
}

// Log returns the publication's backing log buffer.
func (p *NetworkPublication) Log() *logbuffer.MappedFile { return p.log }

// FlowControl returns the publication's flow control strategy, consulted by
// the Sender to bound the position limit each work cycle.
func (p *NetworkPublication) FlowControl() flowcontrol.Strategy { return p.flowControl }

// BeginDraining transitions ACTIVE → DRAINING, e.g. on client unlink
// (spec.md §5 "Cancellation": "the Conductor marks the resource for
// draining").
func (p *NetworkPublication) BeginDraining(now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateActive {
		return fmt.Errorf("publication: cannot begin draining from state %s", p.state)
	}
	p.state = StateDraining
	p.drainingFrom = now
	return nil
}

// TransitionToLinger moves DRAINING → LINGER, holding the resource for
// lingerDuration so late clients can observe EOS.
func (p *NetworkPublication) TransitionToLinger(now time.Time, lingerDuration time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateDraining {
		return fmt.Errorf("publication: cannot enter linger from state %s", p.state)
	}
	p.state = StateLinger
	p.lingerUntil = now.Add(lingerDuration)
	return nil
}

// MaybeClose transitions LINGER → CLOSED once now has passed the linger
// deadline, returning true if the transition happened.
func (p *NetworkPublication) MaybeClose(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateLinger && !now.Before(p.lingerUntil) {
		p.state = StateClosed
		return true
	}
	return false
}

// IPCPublication is the loopback analogue of NetworkPublication: same
// registries and lifecycle, no wire frames and no flow control (every
// subscriber reads directly from the shared log buffer).
type IPCPublication struct {
	Identity

	mu             sync.Mutex
	state          State
	refCount       int32
	log            *logbuffer.MappedFile
	publisherLimit logbuffer.Position
}

// NewIPCPublication creates an ACTIVE IPC publication (spec.md §3: "becomes
// ACTIVE ... immediately for IPC").
func NewIPCPublication(identity Identity, log *logbuffer.MappedFile) *IPCPublication {
	return &IPCPublication{Identity: identity, state: StateActive, log: log}
}

func (p *IPCPublication) Acquire() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refCount++
	return p.refCount
}

func (p *IPCPublication) Release() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refCount--
	return p.refCount
}

func (p *IPCPublication) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *IPCPublication) Log() *logbuffer.MappedFile { return p.log }

// ImageState is a subscription image's lifecycle stage (spec.md §3:
// "INIT → ACTIVE → DRAINING → LINGER → CLOSED").
type ImageState int

const (
	ImageInit ImageState = iota
	ImageActive
	ImageDraining
	ImageLinger
	ImageClosed
)

func (s ImageState) String() string {
	switch s {
	case ImageInit:
		return "INIT"
	case ImageActive:
		return "ACTIVE"
	case ImageDraining:
		return "DRAINING"
	case ImageLinger:
		return "LINGER"
	case ImageClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Image is the receiver-side mirror of a remote publication (spec.md §3
// "Publication image").
type Image struct {
	Identity

	mu                sync.Mutex
	state             ImageState
	log               *logbuffer.MappedFile
	rebuildPosition   logbuffer.Position
	highWaterMark     logbuffer.Position
	lastSMPosition    logbuffer.Position
	congestionControl congestioncontrol.Strategy
	endOfStream       bool
	lingerUntil       time.Time
}

// NewImage creates an INIT-state image backed by log.
func NewImage(identity Identity, log *logbuffer.MappedFile, cc congestioncontrol.Strategy) *Image {
	return &Image{Identity: identity, state: ImageInit, log: log, congestionControl: cc}
}

// Activate transitions INIT → ACTIVE, once the log buffer is mapped and
// ready to rebuild into.
func (img *Image) Activate() error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.state != ImageInit {
		return fmt.Errorf("publication: cannot activate image from state %s", img.state)
	}
	img.state = ImageActive
	return nil
}

// State returns the image's current lifecycle state.
func (img *Image) State() ImageState {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.state
}

// RebuildPosition returns the highest contiguous position rebuilt so far.
func (img *Image) RebuildPosition() logbuffer.Position {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.rebuildPosition
}

// OnRebuild advances the rebuild position and high-water mark; only the
// Receiver agent calls this (spec.md §9 "Ownership rules").
func (img *Image) OnRebuild(rebuildPosition, highWaterMark logbuffer.Position) {
	img.mu.Lock()
	defer img.mu.Unlock()
	if rebuildPosition > img.rebuildPosition {
		img.rebuildPosition = rebuildPosition
	}
	if highWaterMark > img.highWaterMark {
		img.highWaterMark = highWaterMark
	}
}

// HighWaterMark returns the highest observed term offset, contiguous or
// not.
func (img *Image) HighWaterMark() logbuffer.Position {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.highWaterMark
}

// ApplyRTTM forwards an RTT measurement to the image's congestion control
// strategy; only the Receiver agent calls this (spec.md §9 "Ownership
// rules").
func (img *Image) ApplyRTTM(now time.Time, rttNs int64) {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.congestionControl != nil {
		img.congestionControl.OnRTTM(now, rttNs, img.highWaterMark)
	}
}

// CongestionControl returns the image's congestion control strategy, for
// computing the advertised receiver window and RTT-measurement triggers.
func (img *Image) CongestionControl() congestioncontrol.Strategy {
	return img.congestionControl
}

// MarkEndOfStream records that EOS was observed (sender set the SM EOS bit,
// or inactivity elapsed past the known tail — spec.md §3).
func (img *Image) MarkEndOfStream() {
	img.mu.Lock()
	img.endOfStream = true
	img.mu.Unlock()
}

// EndOfStream reports whether EOS has been observed.
func (img *Image) EndOfStream() bool {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.endOfStream
}

// BeginDraining transitions ACTIVE → DRAINING.
func (img *Image) BeginDraining() error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.state != ImageActive {
		return fmt.Errorf("publication: cannot begin draining image from state %s", img.state)
	}
	img.state = ImageDraining
	return nil
}

// TransitionToLinger moves DRAINING → LINGER, holding the image's log
// mapping for lingerDuration.
func (img *Image) TransitionToLinger(now time.Time, lingerDuration time.Duration) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.state != ImageDraining {
		return fmt.Errorf("publication: cannot enter linger from state %s", img.state)
	}
	img.state = ImageLinger
	img.lingerUntil = now.Add(lingerDuration)
	return nil
}

// MaybeClose transitions LINGER → CLOSED once the linger deadline passes.
func (img *Image) MaybeClose(now time.Time) bool {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.state == ImageLinger && !now.Before(img.lingerUntil) {
		img.state = ImageClosed
		return true
	}
	return false
}

// Log returns the image's backing log buffer.
func (img *Image) Log() *logbuffer.MappedFile { return img.log }
