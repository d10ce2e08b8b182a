// Package idlestrategy implements the pluggable idle policies an agent's
// duty cycle applies when a work round returns zero work (spec.md §5
// "Scheduling": "agents idle per a pluggable strategy between duty
// cycles: busy-spin, yielding, or a backoff park").
package idlestrategy

import (
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Strategy is consulted once per duty cycle with the work count that
// round produced. A strategy must not block when workCount > 0.
type Strategy interface {
	Idle(workCount int)
}

// BusySpin never yields the OS thread: lowest latency, highest CPU cost.
// Intended for a dedicated core under the "dedicated" threading mode
// (spec.md §5).
type BusySpin struct{}

// NewBusySpin creates a BusySpin strategy.
func NewBusySpin() BusySpin { return BusySpin{} }

// Idle is a no-op when there was work; otherwise it's still a no-op, since
// busy-spinning means never relinquishing the processor.
func (BusySpin) Idle(workCount int) {}

// Yielding calls runtime.Gosched on every idle round, letting the Go
// scheduler run other goroutines without parking the thread (spec.md §5,
// used for agents sharing a core under "shared"/"shared-network" modes).
type Yielding struct{}

// NewYielding creates a Yielding strategy.
func NewYielding() Yielding { return Yielding{} }

// Idle yields the processor once if workCount is zero.
func (Yielding) Idle(workCount int) {
	if workCount <= 0 {
		runtime.Gosched()
	}
}

// Backoff escalates from spinning to yielding to parking for a growing
// duration the longer a duty cycle finds no work, resetting on the next
// round that does (spec.md §5: "park duration grows with consecutive idle
// rounds, capped at the configured maximum, and resets on work").
//
// The escalation itself is plain counting; the growing park duration is
// computed by an exponential backoff, grounded on the same library the
// loss detector uses for its NAK backoff.
type Backoff struct {
	maxParkDuration time.Duration

	idleRounds int
	park       *backoff.ExponentialBackOff
}

// NewBackoff creates a Backoff strategy whose park phase never sleeps
// longer than maxParkDuration at a stretch.
func NewBackoff(maxParkDuration time.Duration) *Backoff {
	if maxParkDuration <= 0 {
		maxParkDuration = time.Millisecond
	}
	b := &Backoff{maxParkDuration: maxParkDuration}
	b.park = newParkBackoff(maxParkDuration)
	return b
}

const (
	spinRounds  = 10
	yieldRounds = 20
)

// Idle escalates spin → yield → park as consecutive idle rounds
// accumulate, and resets to spinning the moment work is found.
func (b *Backoff) Idle(workCount int) {
	if workCount > 0 {
		b.idleRounds = 0
		b.park.Reset()
		return
	}

	b.idleRounds++
	switch {
	case b.idleRounds <= spinRounds:
		return
	case b.idleRounds <= spinRounds+yieldRounds:
		runtime.Gosched()
	default:
		time.Sleep(b.park.NextBackOff())
	}
}

func newParkBackoff(maxParkDuration time.Duration) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     time.Microsecond * 10,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxParkDuration,
	}
	b.Reset()
	return b
}
