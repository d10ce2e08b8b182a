// Package lossdetector implements the receiver-side loss detector: it runs
// the term gap scanner each work cycle and emits NAK frames for gaps that
// persist beyond a loss-check delay, backing off exponentially with jitter
// for repeated NAKs on the same gap (spec.md §4.5 "Loss detector and
// retransmit handler", receiver side).
package lossdetector

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/yanet-platform/mediadriver/internal/logbuffer"
)

// NAK describes a gap the detector has decided to request retransmission
// for.
type NAK struct {
	TermID     int32
	TermOffset int32
	Length     int32
}

// gapState tracks one in-progress gap's detection/backoff state.
type gapState struct {
	termOffset    int32
	length        int32
	firstObserved time.Time
	backoff       *backoff.ExponentialBackOff
	nextNAKAt     time.Time
}

// Detector holds per-image loss detection state: the current scan
// position, the last time that position changed, and any in-flight gap
// being NAKed (spec.md §4.5: "per-image state (scan_position,
// last_change_time)").
type Detector struct {
	scanPosition   int32
	lastChangeTime time.Time
	lossCheckDelay time.Duration
	draining       bool

	gap *gapState
}

// NewDetector creates a loss detector starting its scan at initialOffset.
func NewDetector(initialOffset int32, lossCheckDelay time.Duration) *Detector {
	return &Detector{scanPosition: initialOffset, lossCheckDelay: lossCheckDelay}
}

// SetDraining suppresses NAK emission while the image is draining (spec.md
// §4.5: "NAKs are suppressed for an image that is DRAINING").
func (d *Detector) SetDraining(draining bool) { d.draining = draining }

// ScanPosition returns the detector's current scan position.
func (d *Detector) ScanPosition() int32 { return d.scanPosition }

// Scan runs the gap scanner over term from the detector's scan position up
// to limit, advances the scan position past contiguous data, and returns a
// NAK to emit if a persistent gap warrants one (spec.md §4.5).
func (d *Detector) Scan(term []byte, limit int32, now time.Time) (NAK, bool) {
	gap, found := logbuffer.FindGap(term, d.scanPosition, limit)
	if !found {
		d.scanPosition = limit
		d.lastChangeTime = now
		d.gap = nil
		return NAK{}, false
	}

	if d.scanPosition != gap.TermOffset {
		// Contiguous data preceded the gap; advance past it.
		d.scanPosition = gap.TermOffset
	}

	if d.gap == nil || d.gap.termOffset != gap.TermOffset || d.gap.length != gap.Length {
		d.gap = &gapState{
			termOffset:    gap.TermOffset,
			length:        gap.Length,
			firstObserved: now,
			backoff:       newGapBackoff(),
		}
		d.gap.nextNAKAt = d.gap.firstObserved.Add(d.lossCheckDelay)
	}

	if d.draining {
		return NAK{}, false
	}

	if now.Before(d.gap.nextNAKAt) {
		return NAK{}, false
	}

	d.gap.nextNAKAt = now.Add(d.gap.backoff.NextBackOff())

	return NAK{TermID: 0, TermOffset: gap.TermOffset, Length: gap.Length}, true
}

func newGapBackoff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     backoff.DefaultInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         2 * time.Second,
	}
	b.Reset()
	return b
}
