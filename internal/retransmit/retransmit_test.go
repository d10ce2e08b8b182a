package retransmit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOnNAKAdmitsAndDeduplicates(t *testing.T) {
	h := NewHandler(4, 10*time.Millisecond, 10*time.Millisecond)
	now := time.Unix(0, 0)

	r := Range{TermID: 1, TermOffset: 0, Length: 64}
	require.True(t, h.OnNAK(r, now))
	require.True(t, h.OnNAK(r, now)) // duplicate while still delaying

	require.Equal(t, 1, h.Len())
}

func TestOnNAKDropsOverCapacity(t *testing.T) {
	h := NewHandler(1, time.Second, time.Second)
	now := time.Unix(0, 0)

	require.True(t, h.OnNAK(Range{TermID: 1, TermOffset: 0, Length: 32}, now))
	require.False(t, h.OnNAK(Range{TermID: 1, TermOffset: 64, Length: 32}, now))
	require.EqualValues(t, 1, h.DroppedOverCapacity())
}

func TestServiceTransitionsThroughLifecycle(t *testing.T) {
	h := NewHandler(4, 10*time.Millisecond, 20*time.Millisecond)
	now := time.Unix(0, 0)
	r := Range{TermID: 1, TermOffset: 0, Length: 64}

	require.True(t, h.OnNAK(r, now))
	state, _ := h.StateOf(r)
	require.Equal(t, DelayUntil, state)

	now = now.Add(15 * time.Millisecond)
	due := h.Service(now)
	require.Len(t, due, 1)
	require.Equal(t, r, due[0].Range)

	state, _ = h.StateOf(r)
	require.Equal(t, Active, state)

	now = now.Add(25 * time.Millisecond)
	due = h.Service(now)
	require.Len(t, due, 0)
	state, _ = h.StateOf(r)
	require.Equal(t, Linger, state)

	now = now.Add(25 * time.Millisecond)
	h.Service(now)
	_, ok := h.StateOf(r)
	require.False(t, ok)
}

func TestDuplicateNAKWhileActiveIsDropped(t *testing.T) {
	h := NewHandler(4, time.Millisecond, time.Hour)
	now := time.Unix(0, 0)
	r := Range{TermID: 1, TermOffset: 0, Length: 64}

	require.True(t, h.OnNAK(r, now))
	now = now.Add(2 * time.Millisecond)
	h.Service(now)
	state, _ := h.StateOf(r)
	require.Equal(t, Active, state)

	require.False(t, h.OnNAK(r, now))
	require.Equal(t, 1, h.Len())
}
