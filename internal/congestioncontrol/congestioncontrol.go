// Package congestioncontrol implements the receiver-side window strategies
// that size a subscriber's advertised receiver window (spec.md §4.4
// "Congestion control (receiver side)").
package congestioncontrol

import (
	"time"

	"github.com/yanet-platform/mediadriver/internal/logbuffer"
)

// Strategy governs a subscription image's receiver window (spec.md §4.4).
type Strategy interface {
	// OnTrackRebuild is called whenever the image's rebuild position
	// advances; it reports whether an RTT measurement should be
	// requested this cycle.
	OnTrackRebuild(now time.Time, newConsumptionPosition, lastSMPosition, hwm logbuffer.Position, rttNs int64) (shouldMeasureRTT bool)
	// InitialWindow returns the receiver window to advertise before any
	// loss/RTT signal has been observed.
	InitialWindow() int32
	// OnRTTM is called when an RTT measurement reply arrives.
	OnRTTM(now time.Time, rttNs int64, hwmLastSeen logbuffer.Position)
	// Window returns the current receiver window to advertise.
	Window() int32
}

// StaticWindow is the default congestion control strategy: the receiver
// window never changes from its configured value (spec.md §4.4 "The
// default variant is static window").
type StaticWindow struct {
	window int32
}

// NewStaticWindow creates a fixed-size window strategy.
func NewStaticWindow(window int32) *StaticWindow {
	return &StaticWindow{window: window}
}

func (s *StaticWindow) OnTrackRebuild(now time.Time, newConsumptionPosition, lastSMPosition, hwm logbuffer.Position, rttNs int64) bool {
	return false
}

func (s *StaticWindow) InitialWindow() int32 { return s.window }

func (s *StaticWindow) OnRTTM(now time.Time, rttNs int64, hwmLastSeen logbuffer.Position) {}

func (s *StaticWindow) Window() int32 { return s.window }

// Cubic is a CUBIC-inspired window strategy: the window grows along a
// cubic curve from the last loss event and collapses multiplicatively on
// each newly detected loss, approximating TCP CUBIC's congestion avoidance
// behavior (spec.md §4.4 "a CUBIC-like variant grows/shrinks the window in
// response to loss events").
type Cubic struct {
	minWindow    int32
	maxWindow    int32
	window       float64
	windowMax    float64
	lastLossTime time.Time
	haveLoss     bool
	beta         float64 // multiplicative decrease factor
	c            float64 // cubic scaling constant
}

// NewCubic creates a CUBIC-like congestion control strategy bounded to
// [minWindow, maxWindow], starting at minWindow.
func NewCubic(minWindow, maxWindow int32) *Cubic {
	return &Cubic{
		minWindow: minWindow,
		maxWindow: maxWindow,
		window:    float64(minWindow),
		windowMax: float64(maxWindow),
		beta:      0.7,
		c:         0.4,
	}
}

func (c *Cubic) InitialWindow() int32 { return c.minWindow }

func (c *Cubic) Window() int32 {
	w := int32(c.window)
	if w < c.minWindow {
		return c.minWindow
	}
	if w > c.maxWindow {
		return c.maxWindow
	}
	return w
}

// OnTrackRebuild grows the window along the cubic curve since the last loss
// event. It requests an RTT measurement every time the image has advanced
// but none has been taken recently (rttNs <= 0 signals "unknown").
func (c *Cubic) OnTrackRebuild(now time.Time, newConsumptionPosition, lastSMPosition, hwm logbuffer.Position, rttNs int64) bool {
	if !c.haveLoss {
		c.window = min(c.window+1, c.windowMax)
		return rttNs <= 0
	}

	t := now.Sub(c.lastLossTime).Seconds()
	k := cubeRoot(c.windowMax * (1 - c.beta) / c.c)
	c.window = c.c*cube(t-k) + c.windowMax

	if c.window > c.windowMax {
		c.window = c.windowMax
	}
	return rttNs <= 0
}

// OnLoss registers a loss event (invoked by the loss detector when a gap
// persists), shrinking the window multiplicatively.
func (c *Cubic) OnLoss(now time.Time) {
	c.windowMax = c.window
	c.window = max(c.window*c.beta, float64(c.minWindow))
	c.lastLossTime = now
	c.haveLoss = true
}

func (c *Cubic) OnRTTM(now time.Time, rttNs int64, hwmLastSeen logbuffer.Position) {}

func cube(x float64) float64 { return x * x * x }

func cubeRoot(x float64) float64 {
	if x < 0 {
		return -cubeRoot(-x)
	}
	if x == 0 {
		return 0
	}
	// Newton's method; converges in a handful of iterations for the
	// window magnitudes this strategy deals with.
	guess := x
	for i := 0; i < 20; i++ {
		guess -= (guess*guess*guess - x) / (3 * guess * guess)
	}
	return guess
}
