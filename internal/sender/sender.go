// Package sender implements the Sender agent: scans each active network
// publication's term buffer for committed frames within the flow-control
// position limit, writes them to the wire, and services the retransmit
// handler for NAKed ranges (spec.md §4.8 "Sender").
package sender

import (
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/yanet-platform/mediadriver/internal/endpoint"
	"github.com/yanet-platform/mediadriver/internal/flowcontrol"
	"github.com/yanet-platform/mediadriver/internal/logbuffer"
	"github.com/yanet-platform/mediadriver/internal/publication"
	"github.com/yanet-platform/mediadriver/internal/registry"
	"github.com/yanet-platform/mediadriver/internal/retransmit"
	"github.com/yanet-platform/mediadriver/internal/wire"
)

// Option configures a Sender.
type Option func(*options)

// WithLog attaches a logger to the sender.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) { o.Log = log }
}

// WithHeartbeatInterval overrides the default idle-publication heartbeat
// interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *options) { o.HeartbeatInterval = d }
}

// WithRetransmitLimits overrides the default retransmit handler bounds.
func WithRetransmitLimits(maxConcurrent int, delay, linger time.Duration) Option {
	return func(o *options) {
		o.RetransmitMaxConcurrent = maxConcurrent
		o.RetransmitDelay = delay
		o.RetransmitLinger = linger
	}
}

type options struct {
	Log                     *zap.SugaredLogger
	HeartbeatInterval       time.Duration
	RetransmitMaxConcurrent int
	RetransmitDelay         time.Duration
	RetransmitLinger        time.Duration
}

func newOptions() *options {
	return &options{
		Log:                     zap.NewNop().Sugar(),
		HeartbeatInterval:       1 * time.Second,
		RetransmitMaxConcurrent: 4,
		RetransmitDelay:         0,
		RetransmitLinger:        200 * time.Millisecond,
	}
}

// managedPublication is the Sender's private view of a network
// publication: its log buffer cursor, retransmit handler, and last-send
// bookkeeping. Only the Sender agent mutates this state (spec.md §9
// "Ownership rules").
type managedPublication struct {
	pub           *publication.NetworkPublication
	endpointKey   endpoint.StreamKey
	positionLimit logbuffer.Position
	haveSM        bool
	retransmits   *retransmit.Handler
	lastSendAt    time.Time
	mtuLength     int32
}

// Sender drains its proxy registrations and, each duty cycle, advances
// every managed publication as far as flow control allows.
type Sender struct {
	log      *zap.SugaredLogger
	endpoint *endpoint.SendChannelEndpoint

	publications *registry.Registry[endpoint.StreamKey, *managedPublication]

	heartbeatInterval       time.Duration
	retransmitMaxConcurrent int
	retransmitDelay         time.Duration
	retransmitLinger        time.Duration
}

// New creates a Sender writing through ch.
func New(ch *endpoint.SendChannelEndpoint, opt ...Option) *Sender {
	opts := newOptions()
	for _, o := range opt {
		o(opts)
	}

	return &Sender{
		log:                     opts.Log,
		endpoint:                ch,
		publications:            registry.New[endpoint.StreamKey, *managedPublication](),
		heartbeatInterval:       opts.HeartbeatInterval,
		retransmitMaxConcurrent: opts.RetransmitMaxConcurrent,
		retransmitDelay:         opts.RetransmitDelay,
		retransmitLinger:        opts.RetransmitLinger,
	}
}

// AddPublication registers pub for sending towards dest, as directed by the
// Conductor's ADD_PUBLICATION proxy call (spec.md §4.7, §4.8).
func (s *Sender) AddPublication(key endpoint.StreamKey, pub *publication.NetworkPublication, dest netip.AddrPort, mtuLength int32) {
	s.endpoint.AddPublication(key, dest)
	s.publications.Put(key, &managedPublication{
		pub:         pub,
		endpointKey: key,
		retransmits: retransmit.NewHandler(s.retransmitMaxConcurrent, s.retransmitDelay, s.retransmitLinger),
		mtuLength:   mtuLength,
	})
}

// RemovePublication deregisters a publication from the send path.
func (s *Sender) RemovePublication(key endpoint.StreamKey) {
	s.publications.Delete(key)
	s.endpoint.RemovePublication(key)
}

// OnStatusMessage feeds an inbound SM frame to the matching publication's
// flow control strategy, updating its position limit.
func (s *Sender) OnStatusMessage(key endpoint.StreamKey, frame []byte, now time.Time) {
	mp, ok := s.publications.Get(key)
	if !ok {
		return
	}
	sm, err := wire.ParseSMHeader(frame)
	if err != nil {
		return
	}

	fc := mp.pub.FlowControl()
	if fc == nil {
		return
	}
	position := logbuffer.ComputePosition(sm.ConsumptionTermID, mp.pub.InitialTermID, sm.ConsumptionTermOffset, mp.pub.TermLength)
	limit := fc.OnStatusMessage(flowcontrol.StatusMessage{
		ReceiverID:          sm.ReceiverID,
		ConsumptionPosition: position,
		ReceiverWindow:      sm.ReceiverWindow,
		ReceivedAt:          now,
	}, now)
	mp.positionLimit = limit
	mp.haveSM = true
}

// OnNAK feeds an inbound NAK frame to the matching publication's retransmit
// handler.
func (s *Sender) OnNAK(key endpoint.StreamKey, frame []byte, now time.Time) {
	mp, ok := s.publications.Get(key)
	if !ok {
		return
	}
	nak, err := wire.ParseNAKHeader(frame)
	if err != nil {
		return
	}
	mp.retransmits.OnNAK(retransmit.Range{TermID: nak.TermID, TermOffset: nak.TermOffset, Length: nak.Length}, now)
}

// DoWork advances every managed publication by one duty cycle, returning
// the number of frames sent (spec.md §4.8 "Sender": "For each active
// network publication: ... scan the term buffer ... write datagrams").
func (s *Sender) DoWork(now time.Time) int {
	sent := 0

	s.publications.Range(func(key endpoint.StreamKey, mp *managedPublication) bool {
		if mp.pub.State() != publication.StateActive {
			return true
		}

		log := mp.pub.Log()
		if log == nil {
			return true
		}

		if !mp.haveSM {
			mp.positionLimit = mp.pub.FlowControl().InitialPositionLimit(mp.pub.SenderPosition(), log.Metadata().TermLength())
		}

		sent += s.scanAndSend(mp, now)
		sent += s.serviceRetransmits(mp, now)
		s.maybeHeartbeat(mp, now)
		return true
	})

	return sent
}

func (s *Sender) scanAndSend(mp *managedPublication, now time.Time) int {
	senderPosition := mp.pub.SenderPosition()
	if senderPosition >= mp.positionLimit {
		return 0
	}

	log := mp.pub.Log()
	termLength := log.Metadata().TermLength()
	termID := senderPosition.TermID(mp.pub.InitialTermID, termLength)
	termOffset := senderPosition.TermOffset(termLength)
	term := log.Term(logbuffer.PartitionIndex(termID))

	maxLength := int32(mp.positionLimit - senderPosition)
	if maxLength > mp.mtuLength {
		maxLength = mp.mtuLength
	}

	sent := 0
	result := logbuffer.Scan(term, termOffset, maxLength, func(header []byte, frameOffset, frameLength int32) {
		if _, err := s.endpoint.Send(mp.endpointKey, term[frameOffset:frameOffset+frameLength]); err == nil {
			sent++
		}
	})

	if result.Offset > termOffset {
		newPosition := logbuffer.ComputePosition(termID, mp.pub.InitialTermID, result.Offset, termLength)
		mp.pub.AdvanceSenderPosition(newPosition)
		mp.lastSendAt = now
	}

	return sent
}

func (s *Sender) serviceRetransmits(mp *managedPublication, now time.Time) int {
	log := mp.pub.Log()

	sent := 0
	for _, r := range mp.retransmits.Service(now) {
		term := log.Term(logbuffer.PartitionIndex(r.Range.TermID))
		if r.Range.TermOffset+r.Range.Length > int32(len(term)) {
			continue
		}
		if _, err := s.endpoint.Send(mp.endpointKey, term[r.Range.TermOffset:r.Range.TermOffset+r.Range.Length]); err == nil {
			sent++
		}
	}
	return sent
}

func (s *Sender) maybeHeartbeat(mp *managedPublication, now time.Time) {
	if mp.lastSendAt.IsZero() {
		mp.lastSendAt = now
		return
	}
	if now.Sub(mp.lastSendAt) < s.heartbeatInterval {
		return
	}

	senderPosition := mp.pub.SenderPosition()
	log := mp.pub.Log()
	termLength := log.Metadata().TermLength()
	termID := senderPosition.TermID(mp.pub.InitialTermID, termLength)
	termOffset := senderPosition.TermOffset(termLength)

	buf := make([]byte, wire.DataHeaderLength)
	wire.PutDataHeader(buf, wire.DataHeader{
		CommonHeader: wire.CommonHeader{
			Version:    0,
			Flags:      wire.FlagUnfragmented,
			Type:       wire.TypeData,
			TermOffset: termOffset,
			SessionID:  mp.pub.SessionID,
			StreamID:   mp.pub.StreamID,
			TermID:     termID,
		},
	})
	wire.PutFrameLengthRelease(buf, wire.DataHeaderLength)

	s.endpoint.Send(mp.endpointKey, buf)
	mp.lastSendAt = now
}
