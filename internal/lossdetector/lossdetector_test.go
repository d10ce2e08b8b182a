package lossdetector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yanet-platform/mediadriver/internal/wire"
)

func writeDataFrame(term []byte, offset, streamID, termID, payloadLen int32) int32 {
	frameLength := wire.AlignTerm(wire.DataHeaderLength + payloadLen)
	wire.PutDataHeader(term[offset:], wire.DataHeader{
		CommonHeader: wire.CommonHeader{Version: 1, Type: wire.TypeData, TermOffset: offset, StreamID: streamID, TermID: termID},
	})
	wire.PutFrameLengthRelease(term[offset:], wire.DataHeaderLength+payloadLen)
	return frameLength
}

func TestScanNoGapAdvancesPosition(t *testing.T) {
	term := make([]byte, 4096)
	l1 := writeDataFrame(term, 0, 7, 1, 32)
	writeDataFrame(term, l1, 7, 1, 32)

	d := NewDetector(0, 50*time.Millisecond)
	_, ok := d.Scan(term, l1*2, time.Unix(0, 0))
	require.False(t, ok)
	require.Equal(t, l1*2, d.ScanPosition())
}

func TestScanEmitsNAKAfterLossCheckDelay(t *testing.T) {
	term := make([]byte, 4096)
	l1 := writeDataFrame(term, 0, 7, 1, 32)
	gapEnd := l1 + 64
	writeDataFrame(term, gapEnd, 7, 1, 32)

	d := NewDetector(0, 50*time.Millisecond)
	now := time.Unix(0, 0)

	_, ok := d.Scan(term, 4096, now)
	require.False(t, ok, "NAK suppressed before loss-check delay elapses")

	now = now.Add(60 * time.Millisecond)
	nak, ok := d.Scan(term, 4096, now)
	require.True(t, ok)
	require.Equal(t, l1, nak.TermOffset)
	require.Equal(t, gapEnd-l1, nak.Length)
}

func TestScanSuppressesNAKWhileDraining(t *testing.T) {
	term := make([]byte, 4096)
	l1 := writeDataFrame(term, 0, 7, 1, 32)
	gapEnd := l1 + 64
	writeDataFrame(term, gapEnd, 7, 1, 32)

	d := NewDetector(0, 0)
	d.SetDraining(true)

	now := time.Unix(0, 0)
	_, ok := d.Scan(term, 4096, now)
	require.False(t, ok)
}

func TestScanBacksOffOnRepeatedNAK(t *testing.T) {
	term := make([]byte, 4096)
	l1 := writeDataFrame(term, 0, 7, 1, 32)
	gapEnd := l1 + 64
	writeDataFrame(term, gapEnd, 7, 1, 32)

	d := NewDetector(0, 0)
	now := time.Unix(0, 0)

	_, ok := d.Scan(term, 4096, now)
	require.True(t, ok)

	// Immediately re-scanning should not re-NAK: backoff pushed nextNAKAt
	// forward.
	_, ok = d.Scan(term, 4096, now)
	require.False(t, ok)
}
