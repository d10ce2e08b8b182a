package registry

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryPutGetDelete(t *testing.T) {
	r := New[int32, string]()

	_, ok := r.Get(1)
	require.False(t, ok)

	r.Put(1, "a")
	r.Put(2, "b")

	v, ok := r.Get(1)
	require.True(t, ok)
	require.Equal(t, "a", v)
	require.Equal(t, 2, r.Len())

	v, ok = r.Delete(1)
	require.True(t, ok)
	require.Equal(t, "a", v)
	require.Equal(t, 1, r.Len())

	_, ok = r.Delete(1)
	require.False(t, ok)
}

func TestRegistryKeysAndValues(t *testing.T) {
	r := New[int32, string]()
	r.Put(1, "a")
	r.Put(2, "b")
	r.Put(3, "c")

	keys := r.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	require.Equal(t, []int32{1, 2, 3}, keys)

	values := r.Values()
	sort.Strings(values)
	require.Equal(t, []string{"a", "b", "c"}, values)
}

func TestRegistryRange(t *testing.T) {
	r := New[int32, int32]()
	for i := int32(0); i < 5; i++ {
		r.Put(i, i*10)
	}

	var sum int32
	r.Range(func(key, value int32) bool {
		sum += value
		return true
	})
	require.Equal(t, int32(0+10+20+30+40), sum)

	var visited int
	r.Range(func(key, value int32) bool {
		visited++
		return false
	})
	require.Equal(t, 1, visited)
}
