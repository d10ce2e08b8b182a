package idlestrategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBusySpinNeverBlocks(t *testing.T) {
	s := NewBusySpin()
	start := time.Now()
	for i := 0; i < 1000; i++ {
		s.Idle(0)
	}
	require.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestYieldingNeverBlocks(t *testing.T) {
	s := NewYielding()
	start := time.Now()
	for i := 0; i < 1000; i++ {
		s.Idle(0)
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
	s.Idle(1) // no-op when there was work
}

func TestBackoffEscalatesThenParks(t *testing.T) {
	b := NewBackoff(5 * time.Millisecond)

	// Spinning and yielding rounds must not sleep.
	start := time.Now()
	for i := 0; i < spinRounds+yieldRounds; i++ {
		b.Idle(0)
	}
	require.Less(t, time.Since(start), 10*time.Millisecond)

	// The next idle round crosses into the parking phase and sleeps.
	start = time.Now()
	b.Idle(0)
	require.GreaterOrEqual(t, time.Since(start), time.Microsecond)
}

func TestBackoffResetsOnWork(t *testing.T) {
	b := NewBackoff(5 * time.Millisecond)
	for i := 0; i < spinRounds+yieldRounds+3; i++ {
		b.Idle(0)
	}
	require.Greater(t, b.idleRounds, spinRounds+yieldRounds)

	b.Idle(1)
	require.Equal(t, 0, b.idleRounds)
}

func TestBackoffRejectsNonPositiveMaxParkDuration(t *testing.T) {
	b := NewBackoff(0)
	require.Equal(t, time.Millisecond, b.maxParkDuration)
}
