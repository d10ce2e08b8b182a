// Package flowcontrol implements the sender-side position-limit policies
// that bound how far a publication's tail may advance ahead of its
// subscribers (spec.md §4.3 "Flow control").
package flowcontrol

import (
	"time"

	"github.com/yanet-platform/mediadriver/internal/logbuffer"
)

// StatusMessage is the subset of an inbound SM frame a Strategy consumes.
type StatusMessage struct {
	ReceiverID          int64
	ConsumptionPosition logbuffer.Position
	ReceiverWindow      int32
	ReceivedAt          time.Time
}

// Strategy bounds the sender position limit for a network publication
// (spec.md §4.3).
type Strategy interface {
	// OnStatusMessage records an inbound SM and returns the updated
	// position limit.
	OnStatusMessage(sm StatusMessage, now time.Time) logbuffer.Position
	// OnTriggerSendSetup is called when the sender decides to (re-)send a
	// SETUP frame, e.g. because no SM has arrived yet.
	OnTriggerSendSetup(now time.Time)
	// InitialPositionLimit returns the position limit before any SM has
	// been observed.
	InitialPositionLimit(senderPosition logbuffer.Position, termWindowLength int32) logbuffer.Position
}

// UnicastMax is the single-receiver flow control strategy: the position
// limit tracks the one subscriber's reported consumption plus its window,
// capped by the sender's own term window (spec.md §4.3 "Unicast (max)").
type UnicastMax struct {
	lastConsumptionPosition logbuffer.Position
	lastReceiverWindow      int32
	haveStatusMessage       bool
}

// NewUnicastMax creates a unicast flow control strategy.
func NewUnicastMax() *UnicastMax {
	return &UnicastMax{}
}

func (s *UnicastMax) OnStatusMessage(sm StatusMessage, now time.Time) logbuffer.Position {
	if !s.haveStatusMessage || sm.ConsumptionPosition > s.lastConsumptionPosition {
		s.lastConsumptionPosition = sm.ConsumptionPosition
		s.lastReceiverWindow = sm.ReceiverWindow
		s.haveStatusMessage = true
	}
	return s.lastConsumptionPosition + logbuffer.Position(s.lastReceiverWindow)
}

func (s *UnicastMax) OnTriggerSendSetup(now time.Time) {}

func (s *UnicastMax) InitialPositionLimit(senderPosition logbuffer.Position, termWindowLength int32) logbuffer.Position {
	return senderPosition + logbuffer.Position(termWindowLength)
}

// PositionLimit returns min(senderPosition+termWindowLength,
// lastConsumption+lastWindow), the actual quantity the sender clamps to
// each work cycle (spec.md §4.3, §4.8 step 2).
func (s *UnicastMax) PositionLimit(senderPosition logbuffer.Position, termWindowLength int32) logbuffer.Position {
	bySender := senderPosition + logbuffer.Position(termWindowLength)
	if !s.haveStatusMessage {
		return bySender
	}
	byReceiver := s.lastConsumptionPosition + logbuffer.Position(s.lastReceiverWindow)
	if byReceiver < bySender {
		return byReceiver
	}
	return bySender
}

// EmptySetPolicy controls MulticastMin's behavior when every tracked
// receiver has been evicted (spec.md §4.3 "Multicast min").
type EmptySetPolicy int

const (
	// FailOnEmpty freezes the position limit at the sender's last known
	// position: no further data is accepted until a receiver reappears.
	FailOnEmpty EmptySetPolicy = iota
	// Optimistic lets the sender advance at full term-window speed when
	// no receivers are tracked, on the assumption one may join later and
	// catch up via retransmission.
	Optimistic
)

type receiverState struct {
	consumptionPosition logbuffer.Position
	window              int32
	lastSeen            time.Time
}

// MulticastMin is the multi-receiver flow control strategy: the position
// limit is the minimum over all live receivers' reported windows, so the
// slowest receiver governs the sender's pace (spec.md §4.3 "Multicast
// min").
type MulticastMin struct {
	receivers       map[int64]*receiverState
	receiverTimeout time.Duration
	emptyPolicy     EmptySetPolicy
}

// NewMulticastMin creates a multicast flow control strategy. receiverTimeout
// bounds how long a receiver may go silent before being evicted.
func NewMulticastMin(receiverTimeout time.Duration, emptyPolicy EmptySetPolicy) *MulticastMin {
	return &MulticastMin{
		receivers:       make(map[int64]*receiverState),
		receiverTimeout: receiverTimeout,
		emptyPolicy:     emptyPolicy,
	}
}

func (s *MulticastMin) OnStatusMessage(sm StatusMessage, now time.Time) logbuffer.Position {
	s.evictStale(now)

	r, ok := s.receivers[sm.ReceiverID]
	if !ok {
		r = &receiverState{}
		s.receivers[sm.ReceiverID] = r
	}
	r.consumptionPosition = sm.ConsumptionPosition
	r.window = sm.ReceiverWindow
	r.lastSeen = now

	return s.minLimit()
}

func (s *MulticastMin) OnTriggerSendSetup(now time.Time) {}

func (s *MulticastMin) InitialPositionLimit(senderPosition logbuffer.Position, termWindowLength int32) logbuffer.Position {
	return senderPosition + logbuffer.Position(termWindowLength)
}

// PositionLimit returns the minimum position limit across all live
// receivers, falling back to emptyPolicy when none remain.
func (s *MulticastMin) PositionLimit(senderPosition logbuffer.Position, termWindowLength int32, now time.Time) logbuffer.Position {
	s.evictStale(now)

	if len(s.receivers) == 0 {
		switch s.emptyPolicy {
		case FailOnEmpty:
			return senderPosition
		default:
			return senderPosition + logbuffer.Position(termWindowLength)
		}
	}
	return s.minLimit()
}

func (s *MulticastMin) minLimit() logbuffer.Position {
	var min logbuffer.Position
	first := true
	for _, r := range s.receivers {
		limit := r.consumptionPosition + logbuffer.Position(r.window)
		if first || limit < min {
			min = limit
			first = false
		}
	}
	return min
}

func (s *MulticastMin) evictStale(now time.Time) {
	for id, r := range s.receivers {
		if now.Sub(r.lastSeen) > s.receiverTimeout {
			delete(s.receivers, id)
		}
	}
}

// ReceiverCount returns the number of currently tracked receivers.
func (s *MulticastMin) ReceiverCount() int { return len(s.receivers) }
