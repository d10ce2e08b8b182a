package errorlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordDeduplicatesRecurringFault(t *testing.T) {
	l := New(8)

	l.Record(1, "sender.go:42", "write: connection refused", 100)
	l.Record(1, "sender.go:42", "write: connection refused", 200)
	l.Record(1, "sender.go:42", "write: connection refused", 300)

	require.Equal(t, 1, l.Len())
	entries := l.Entries()
	require.Len(t, entries, 1)
	require.EqualValues(t, 100, entries[0].FirstObserved)
	require.EqualValues(t, 300, entries[0].LastObserved)
	require.EqualValues(t, 3, entries[0].ObservationCount)
}

func TestRecordDistinguishesByCodeLocationAndPrefix(t *testing.T) {
	l := New(8)

	l.Record(1, "sender.go:42", "write: connection refused", 100)
	l.Record(2, "sender.go:42", "write: connection refused", 100)
	l.Record(1, "receiver.go:10", "write: connection refused", 100)
	l.Record(1, "sender.go:42", "different fault entirely", 100)

	require.Equal(t, 4, l.Len())
}

func TestRecordEvictsOldestWhenFull(t *testing.T) {
	l := New(2)

	l.Record(1, "a", "m1", 100)
	l.Record(2, "b", "m2", 200)
	l.Record(3, "c", "m3", 300)

	require.Equal(t, 2, l.Len())
	entries := l.Entries()
	require.Equal(t, int32(2), entries[0].Code)
	require.Equal(t, int32(3), entries[1].Code)
}
