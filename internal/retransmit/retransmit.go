// Package retransmit implements the sender-side retransmit handler: a
// bounded state machine over NAKed ranges that re-scans and re-sends term
// data without advancing the publication's sender position (spec.md §4.5
// "Loss detector and retransmit handler", sender side).
package retransmit

import (
	"time"
)

// State is a retransmit entry's lifecycle stage.
type State int

const (
	Pending State = iota
	DelayUntil
	Active
	Linger
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case DelayUntil:
		return "delay_until"
	case Active:
		return "active"
	case Linger:
		return "linger"
	default:
		return "unknown"
	}
}

// Range identifies a NAKed byte range within a term.
type Range struct {
	TermID     int32
	TermOffset int32
	Length     int32
}

type entry struct {
	state      State
	delayUntil time.Time
	activeFrom time.Time
	lingerFrom time.Time
}

// Handler is a bounded map from NAKed range to retransmit state (spec.md
// §4.5 "a bounded map from (term_id, offset, length) to state").
type Handler struct {
	entries map[Range]*entry

	maxConcurrent int
	delay         time.Duration
	linger        time.Duration

	droppedOverCapacity int64
}

// NewHandler creates a retransmit handler bounded to maxConcurrent active
// entries, with the given post-NAK delay and post-service linger.
func NewHandler(maxConcurrent int, delay, linger time.Duration) *Handler {
	return &Handler{
		entries:       make(map[Range]*entry),
		maxConcurrent: maxConcurrent,
		delay:         delay,
		linger:        linger,
	}
}

// OnNAK admits a newly NAKed range, returning true if it was admitted.
// Duplicate NAKs for a range already active are dropped; NAKs received
// while an entry lingers are also dropped (spec.md §4.5: "Duplicate NAKs
// while active are dropped; while in linger, ignored").
func (h *Handler) OnNAK(r Range, now time.Time) bool {
	if e, ok := h.entries[r]; ok {
		return e.state == Pending || e.state == DelayUntil
	}

	if h.countActive() >= h.maxConcurrent {
		h.droppedOverCapacity++
		return false
	}

	h.entries[r] = &entry{state: DelayUntil, delayUntil: now.Add(h.delay)}
	return true
}

func (h *Handler) countActive() int {
	n := 0
	for _, e := range h.entries {
		if e.state == DelayUntil || e.state == Active {
			n++
		}
	}
	return n
}

// ServiceResult describes one range the caller should (re-)scan and send.
type ServiceResult struct {
	Range Range
}

// Service advances every entry's state machine and returns the ranges that
// should be (re-)sent this cycle: entries whose delay has elapsed move into
// active and are returned every cycle until they expire into linger, then
// are dropped once linger elapses (spec.md §4.5 "once delayed, it enters
// active and the sender re-scans the specified range and emits frames,
// then expires after linger").
func (h *Handler) Service(now time.Time) []ServiceResult {
	var due []ServiceResult

	for r, e := range h.entries {
		switch e.state {
		case DelayUntil:
			if !now.Before(e.delayUntil) {
				e.state = Active
				e.activeFrom = now
				due = append(due, ServiceResult{Range: r})
			}
		case Active:
			if now.Sub(e.activeFrom) >= h.linger {
				e.state = Linger
				e.lingerFrom = now
			} else {
				due = append(due, ServiceResult{Range: r})
			}
		case Linger:
			if now.Sub(e.lingerFrom) >= h.linger {
				delete(h.entries, r)
			}
		}
	}

	return due
}

// StateOf reports the current state of a tracked range, if any.
func (h *Handler) StateOf(r Range) (State, bool) {
	e, ok := h.entries[r]
	if !ok {
		return 0, false
	}
	return e.state, true
}

// Len returns the number of tracked entries, at any state.
func (h *Handler) Len() int { return len(h.entries) }

// DroppedOverCapacity returns the number of NAKs dropped because the
// handler was at capacity (spec.md §4.5 "excess NAKs are counted and
// dropped").
func (h *Handler) DroppedOverCapacity() int64 { return h.droppedOverCapacity }
