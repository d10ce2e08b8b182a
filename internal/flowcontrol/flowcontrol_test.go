package flowcontrol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yanet-platform/mediadriver/internal/logbuffer"
)

func TestUnicastMaxClampsToReceiverWindow(t *testing.T) {
	s := NewUnicastMax()
	now := time.Unix(0, 0)

	s.OnStatusMessage(StatusMessage{ConsumptionPosition: 1000, ReceiverWindow: 500}, now)

	limit := s.PositionLimit(900, 1<<20)
	require.Equal(t, logbuffer.Position(1500), limit)
}

func TestUnicastMaxClampsToSenderTermWindow(t *testing.T) {
	s := NewUnicastMax()
	now := time.Unix(0, 0)

	s.OnStatusMessage(StatusMessage{ConsumptionPosition: 1000, ReceiverWindow: 1 << 20}, now)

	limit := s.PositionLimit(900, 64)
	require.Equal(t, logbuffer.Position(964), limit)
}

func TestUnicastMaxIgnoresStaleStatusMessage(t *testing.T) {
	s := NewUnicastMax()
	now := time.Unix(0, 0)

	s.OnStatusMessage(StatusMessage{ConsumptionPosition: 2000, ReceiverWindow: 100}, now)
	s.OnStatusMessage(StatusMessage{ConsumptionPosition: 1000, ReceiverWindow: 100}, now)

	require.Equal(t, logbuffer.Position(2100), s.PositionLimit(0, 1<<20))
}

func TestMulticastMinTracksSlowestReceiver(t *testing.T) {
	s := NewMulticastMin(time.Second, FailOnEmpty)
	now := time.Unix(0, 0)

	s.OnStatusMessage(StatusMessage{ReceiverID: 1, ConsumptionPosition: 1000, ReceiverWindow: 500}, now)
	s.OnStatusMessage(StatusMessage{ReceiverID: 2, ConsumptionPosition: 400, ReceiverWindow: 500}, now)

	require.Equal(t, logbuffer.Position(900), s.PositionLimit(0, 1<<20, now))
}

func TestMulticastMinEvictsStaleReceivers(t *testing.T) {
	s := NewMulticastMin(10*time.Millisecond, FailOnEmpty)
	start := time.Unix(0, 0)

	s.OnStatusMessage(StatusMessage{ReceiverID: 1, ConsumptionPosition: 100, ReceiverWindow: 10}, start)
	require.Equal(t, 1, s.ReceiverCount())

	later := start.Add(20 * time.Millisecond)
	require.Equal(t, logbuffer.Position(500), s.PositionLimit(500, 1<<20, later))
	require.Equal(t, 0, s.ReceiverCount())
}

func TestMulticastMinOptimisticOnEmptySet(t *testing.T) {
	s := NewMulticastMin(time.Second, Optimistic)
	now := time.Unix(0, 0)

	require.Equal(t, logbuffer.Position(500+64), s.PositionLimit(500, 64, now))
}
