// Package receiver implements the Receiver agent: polls inbound UDP
// traffic, routes frames through the dispatcher, rebuilds subscription
// images, runs loss detection, and emits status messages under congestion
// control (spec.md §4.9 "Receiver").
package receiver

import (
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/yanet-platform/mediadriver/internal/dispatcher"
	"github.com/yanet-platform/mediadriver/internal/endpoint"
	"github.com/yanet-platform/mediadriver/internal/logbuffer"
	"github.com/yanet-platform/mediadriver/internal/lossdetector"
	"github.com/yanet-platform/mediadriver/internal/publication"
	"github.com/yanet-platform/mediadriver/internal/registry"
	"github.com/yanet-platform/mediadriver/internal/transport"
	"github.com/yanet-platform/mediadriver/internal/wire"
)

// Option configures a Receiver.
type Option func(*options)

// WithLog attaches a logger to the receiver.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) { o.Log = log }
}

// WithLossCheckDelay overrides the default delay before a gap is NAKed.
func WithLossCheckDelay(d time.Duration) Option {
	return func(o *options) { o.LossCheckDelay = d }
}

// WithSMInterval overrides the default minimum interval between status
// messages for an image.
func WithSMInterval(d time.Duration) Option {
	return func(o *options) { o.SMInterval = d }
}

// WithPollTimeout overrides the epoll wait timeout used each duty cycle.
func WithPollTimeout(ms int) Option {
	return func(o *options) { o.PollTimeoutMs = ms }
}

type options struct {
	Log            *zap.SugaredLogger
	LossCheckDelay time.Duration
	SMInterval     time.Duration
	PollTimeoutMs  int
}

func newOptions() *options {
	return &options{
		Log:            zap.NewNop().Sugar(),
		LossCheckDelay: 10 * time.Millisecond,
		SMInterval:     50 * time.Millisecond,
		PollTimeoutMs:  0,
	}
}

// imageHandle bundles a subscription image with the receiver-private state
// the dispatcher.Image interface and gap scanning need. Only the Receiver
// agent mutates this state (spec.md §9 "Ownership rules"). It exists
// because publication.Image cannot itself satisfy dispatcher.Image: its
// embedded Identity already carries an InitialTermID field, which would
// collide with a same-named interface method.
type imageHandle struct {
	img        *publication.Image
	key        dispatcher.StreamKey
	source     netip.AddrPort
	detector   *lossdetector.Detector
	receiverID int64
	lastSMSent time.Time
}

func (h *imageHandle) OnData(frame []byte, termOffset int32) {
	log := h.img.Log()
	if log == nil {
		return
	}
	common, err := wire.ParseCommonHeader(frame)
	if err != nil {
		return
	}
	term := log.Term(logbuffer.PartitionIndex(common.TermID))
	result := logbuffer.Rebuild(term, termOffset, frame)

	termLength := log.Metadata().TermLength()
	rebuildPosition := logbuffer.ComputePosition(common.TermID, h.img.InitialTermID, result.HighestOffset, termLength)
	h.img.OnRebuild(rebuildPosition, rebuildPosition)
}

func (h *imageHandle) OnRTTM(frame []byte, from netip.AddrPort) {
	rttm, err := wire.ParseRTTMHeader(frame)
	if err != nil {
		return
	}
	if rttm.Flags&wire.RTTMFlagReply != 0 {
		h.img.ApplyRTTM(time.Now(), rttm.ReceptionDeltaNs)
	}
}

func (h *imageHandle) InitialTermID() int32 { return h.img.InitialTermID }

// subscribable adapts a static interest/source-filter pair into the
// dispatcher.Subscribable interface.
type subscribable struct {
	hasInterest  func(dispatcher.StreamKey) bool
	sourceFilter func(dispatcher.StreamKey, netip.AddrPort) bool
}

func (s subscribable) HasInterest(key dispatcher.StreamKey) bool {
	if s.hasInterest == nil {
		return false
	}
	return s.hasInterest(key)
}

func (s subscribable) SourceAllowed(key dispatcher.StreamKey, from netip.AddrPort) bool {
	if s.sourceFilter == nil {
		return true
	}
	return s.sourceFilter(key, from)
}

// Receiver polls its receive channel endpoint, dispatches inbound frames,
// and drives per-image rebuild, loss detection and SM emission.
type Receiver struct {
	log *zap.SugaredLogger

	recvEndpoint *endpoint.ReceiveChannelEndpoint
	sendEndpoint *endpoint.SendChannelEndpoint
	poller       *transport.Poller
	dispatch     *dispatcher.Dispatcher

	images        *registry.Registry[dispatcher.StreamKey, *imageHandle]
	pendingSource *registry.Registry[dispatcher.StreamKey, netip.AddrPort]

	lossCheckDelay time.Duration
	smInterval     time.Duration
	pollTimeoutMs  int

	readBuf [2048]byte
}

// PendingImage describes a stream awaiting image allocation: the
// initial_term_id the peer proposed, and the source address it was
// observed from (spec.md §4.6, §4.7, §4.9).
type PendingImage struct {
	Key           dispatcher.StreamKey
	InitialTermID int32
	Source        netip.AddrPort
}

// New creates a Receiver that polls recv for inbound frames, classifies
// them via a dispatcher consulting hasInterest/sourceFilter, and replies
// (SM/NAK) through send.
func New(recv *endpoint.ReceiveChannelEndpoint, send *endpoint.SendChannelEndpoint, poller *transport.Poller,
	hasInterest func(dispatcher.StreamKey) bool, sourceFilter func(dispatcher.StreamKey, netip.AddrPort) bool,
	opt ...Option) *Receiver {
	opts := newOptions()
	for _, o := range opt {
		o(opts)
	}

	d := dispatcher.New(subscribable{hasInterest: hasInterest, sourceFilter: sourceFilter})

	return &Receiver{
		log:            opts.Log,
		recvEndpoint:   recv,
		sendEndpoint:   send,
		poller:         poller,
		dispatch:       d,
		images:         registry.New[dispatcher.StreamKey, *imageHandle](),
		pendingSource:  registry.New[dispatcher.StreamKey, netip.AddrPort](),
		lossCheckDelay: opts.LossCheckDelay,
		smInterval:     opts.SMInterval,
		pollTimeoutMs:  opts.PollTimeoutMs,
	}
}

// AddImage registers an active image for key, backed by log, as directed
// by the Conductor's image-creation proxy call (spec.md §4.7, §4.9).
func (r *Receiver) AddImage(key dispatcher.StreamKey, img *publication.Image, source netip.AddrPort) {
	h := &imageHandle{
		img:      img,
		key:      key,
		source:   source,
		detector: lossdetector.NewDetector(0, r.lossCheckDelay),
	}
	r.images.Put(key, h)
	r.dispatch.AddImage(key, h)
	r.sendEndpoint.AddPublication(endpoint.StreamKey{SessionID: key.SessionID, StreamID: key.StreamID}, source)
}

// RemoveImage deregisters an image from the receive path.
func (r *Receiver) RemoveImage(key dispatcher.StreamKey) {
	r.images.Delete(key)
	r.dispatch.RemoveImage(key)
	r.pendingSource.Delete(key)
	r.sendEndpoint.RemovePublication(endpoint.StreamKey{SessionID: key.SessionID, StreamID: key.StreamID})
}

// PendingSetup returns the initial_term_id proposed for a pending-setup
// stream so the Conductor can allocate the image's log buffer (spec.md
// §4.6, §4.7).
func (r *Receiver) PendingSetup(key dispatcher.StreamKey) (int32, bool) {
	return r.dispatch.PendingInitialTermID(key)
}

// PendingImages returns every stream awaiting image allocation, for the
// Conductor's image-creation proxy call driven from the driver's
// reconciliation loop (spec.md §4.6, §4.7, §4.9).
func (r *Receiver) PendingImages() []PendingImage {
	keys := r.dispatch.PendingKeys()
	out := make([]PendingImage, 0, len(keys))
	for _, key := range keys {
		termID, ok := r.dispatch.PendingInitialTermID(key)
		if !ok {
			continue
		}
		source, _ := r.pendingSource.Get(key)
		out = append(out, PendingImage{Key: key, InitialTermID: termID, Source: source})
	}
	return out
}

// DoWork drains all ready sockets through the dispatcher, then runs loss
// detection and SM emission for every active image, returning the number
// of frames processed (spec.md §4.9 "Receiver").
func (r *Receiver) DoWork(now time.Time) int {
	processed := 0

	if r.poller != nil {
		r.poller.Poll(r.pollTimeoutMs, func(ch *transport.Channel) {
			for {
				n, from, err := ch.ReadFrom(r.readBuf[:])
				if err != nil {
					return
				}
				processed++
				r.handleFrame(r.readBuf[:n], from, now)
			}
		})
	}

	r.images.Range(func(key dispatcher.StreamKey, h *imageHandle) bool {
		r.runLossDetection(h, now)
		r.maybeSendSM(h, now)
		return true
	})

	return processed
}

func (r *Receiver) handleFrame(frame []byte, from netip.AddrPort, now time.Time) {
	action, err := r.dispatch.Dispatch(frame, from)
	if err != nil {
		r.log.Debugw("receiver: dispatch error", "error", err)
		return
	}

	switch action {
	case dispatcher.ActionRequestSetup, dispatcher.ActionCreateOrConfirmImage:
		// Image creation is a Conductor responsibility, driven by
		// PendingImages; remember the source so the Conductor can hand it
		// back to AddImage once the log buffer is allocated.
		if common, err := wire.ParseCommonHeader(frame); err == nil {
			key := dispatcher.StreamKey{SessionID: common.SessionID, StreamID: common.StreamID}
			r.pendingSource.Put(key, from)
		}
	case dispatcher.ActionProtocolError:
		r.log.Debugw("receiver: protocol error frame", "from", from)
	}
}

func (r *Receiver) runLossDetection(h *imageHandle, now time.Time) {
	log := h.img.Log()
	if log == nil {
		return
	}
	termLength := log.Metadata().TermLength()
	hwm := h.img.HighWaterMark()
	termID := hwm.TermID(h.img.InitialTermID, termLength)
	term := log.Term(logbuffer.PartitionIndex(termID))
	limit := hwm.TermOffset(termLength)

	h.detector.SetDraining(h.img.State() == publication.ImageDraining)

	nak, ok := h.detector.Scan(term, limit, now)
	if !ok {
		return
	}

	buf := make([]byte, wire.NAKHeaderLength)
	wire.PutNAKHeader(buf, wire.NAKHeader{
		CommonHeader: wire.CommonHeader{
			Type:       wire.TypeNAK,
			SessionID:  h.img.SessionID,
			StreamID:   h.img.StreamID,
			TermID:     termID,
			TermOffset: nak.TermOffset,
		},
		Length: nak.Length,
	})
	wire.PutFrameLengthRelease(buf, wire.NAKHeaderLength)
	r.sendEndpoint.Send(endpoint.StreamKey{SessionID: h.img.SessionID, StreamID: h.img.StreamID}, buf)
}

func (r *Receiver) maybeSendSM(h *imageHandle, now time.Time) {
	if now.Sub(h.lastSMSent) < r.smInterval {
		return
	}

	cc := h.img.CongestionControl()
	window := int32(0)
	if cc != nil {
		window = cc.Window()
	}

	rebuildPosition := h.img.RebuildPosition()
	log := h.img.Log()
	if log == nil {
		return
	}
	termLength := log.Metadata().TermLength()

	buf := make([]byte, wire.SMHeaderLength)
	wire.PutSMHeader(buf, wire.SMHeader{
		CommonHeader: wire.CommonHeader{
			Type:      wire.TypeSM,
			SessionID: h.img.SessionID,
			StreamID:  h.img.StreamID,
			TermID:    rebuildPosition.TermID(h.img.InitialTermID, termLength),
		},
		ConsumptionTermID:     rebuildPosition.TermID(h.img.InitialTermID, termLength),
		ConsumptionTermOffset: rebuildPosition.TermOffset(termLength),
		ReceiverWindow:        window,
		ReceiverID:            h.receiverID,
	})
	wire.PutFrameLengthRelease(buf, wire.SMHeaderLength)

	r.sendEndpoint.Send(endpoint.StreamKey{SessionID: h.img.SessionID, StreamID: h.img.StreamID}, buf)
	h.lastSMSent = now
}
