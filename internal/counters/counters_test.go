package counters

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, capacity int32) *Manager {
	t.Helper()
	m, err := NewManager(make([]byte, MetadataRecordLength*capacity), make([]byte, ValueLength*capacity))
	require.NoError(t, err)
	return m
}

func TestAllocateGetSetAdd(t *testing.T) {
	m := newTestManager(t, 4)

	id, err := m.Allocate(1, []byte("bytes_sent"), "Bytes Sent")
	require.NoError(t, err)

	require.EqualValues(t, 0, m.Get(id))
	m.Set(id, 10)
	require.EqualValues(t, 10, m.Get(id))
	require.EqualValues(t, 15, m.Add(id, 5))

	typeID, key, label := m.Label(id)
	require.EqualValues(t, 1, typeID)
	require.Equal(t, []byte("bytes_sent"), key)
	require.Equal(t, "Bytes Sent", label)
}

func TestAllocateExhaustsCapacity(t *testing.T) {
	m := newTestManager(t, 2)

	_, err := m.Allocate(1, nil, "a")
	require.NoError(t, err)
	_, err = m.Allocate(1, nil, "b")
	require.NoError(t, err)

	_, err = m.Allocate(1, nil, "c")
	require.Error(t, err)
}

func TestFreeAllowsReuse(t *testing.T) {
	m := newTestManager(t, 1)

	id, err := m.Allocate(1, nil, "a")
	require.NoError(t, err)

	m.Free(id)

	id2, err := m.Allocate(2, nil, "b")
	require.NoError(t, err)
	require.Equal(t, id, id2)

	typeID, _, label := m.Label(id2)
	require.EqualValues(t, 2, typeID)
	require.Equal(t, "b", label)
}
