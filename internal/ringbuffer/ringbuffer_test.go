package ringbuffer

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSPSCWriteReadRoundTrip(t *testing.T) {
	r, err := NewSPSC(make([]byte, 256))
	require.NoError(t, err)

	require.True(t, r.Write(1, []byte("hello")))
	require.True(t, r.Write(2, []byte("world")))

	var got []string
	n := r.Read(func(msgType int32, payload []byte) {
		got = append(got, fmt.Sprintf("%d:%s", msgType, payload))
	})

	require.Equal(t, 2, n)
	require.Equal(t, []string{"1:hello", "2:world"}, got)

	// Ring is now empty.
	require.Equal(t, 0, r.Read(func(int32, []byte) { t.Fatal("unexpected record") }))
}

func TestSPSCWrapsWithPadding(t *testing.T) {
	r, err := NewSPSC(make([]byte, 64))
	require.NoError(t, err)

	payload := make([]byte, 24) // 8 header + 24 = 32 bytes aligned
	for i := range payload {
		payload[i] = byte(i)
	}

	require.True(t, r.Write(1, payload))
	// Drain it so head advances past the first record but tail does not
	// reset. The 24-byte second record then leaves 8 bytes before the end,
	// forcing the third write to pad them and wrap.
	r.Read(func(int32, []byte) {})

	require.True(t, r.Write(2, payload[:16]))
	require.True(t, r.Write(3, payload))

	var types []int32
	r.Read(func(msgType int32, _ []byte) {
		types = append(types, msgType)
	})
	require.Equal(t, []int32{2, 3}, types)
}

func TestSPSCRejectsWhenFull(t *testing.T) {
	r, err := NewSPSC(make([]byte, 32))
	require.NoError(t, err)

	require.True(t, r.Write(1, make([]byte, 16)))
	require.False(t, r.Write(2, make([]byte, 16)))
}

func TestMPSCConcurrentProducers(t *testing.T) {
	r, err := NewMPSC(make([]byte, 1<<16))
	require.NoError(t, err)

	const producers = 8
	const perProducer = 200

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				payload := []byte(fmt.Sprintf("p%d-%d", p, i))
				for !r.Write(int32(p), payload) {
					// Drain concurrently isn't safe for MPSC's single
					// consumer contract; in this test the buffer is sized
					// generously so Write should not need to retry.
				}
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[string]bool)
	total := r.Read(func(msgType int32, payload []byte) {
		seen[string(payload)] = true
	})

	require.Equal(t, producers*perProducer, total)
	require.Len(t, seen, producers*perProducer)
}

func TestBroadcastLapDetection(t *testing.T) {
	b, err := NewBroadcast(make([]byte, 64))
	require.NoError(t, err)

	reader := b.NewReceiver()

	payload := make([]byte, 16) // 24 bytes aligned record
	b.Transmit(1, payload)

	res, ok := reader.Next()
	require.True(t, ok)
	require.False(t, res.Lapped)
	require.EqualValues(t, 1, res.MsgType)

	// Advance the producer far enough to lap the reader's next position.
	for i := 0; i < 10; i++ {
		b.Transmit(int32(i+2), payload)
	}

	res, ok = reader.Next()
	require.True(t, ok)
	require.True(t, res.Lapped)

	// After lapping, reads resume from the current tail (no more new data
	// immediately available until another Transmit happens).
	_, ok = reader.Next()
	require.False(t, ok)

	b.Transmit(99, payload)
	res, ok = reader.Next()
	require.True(t, ok)
	require.False(t, res.Lapped)
	require.EqualValues(t, 99, res.MsgType)
}

func TestBroadcastMultipleIndependentReaders(t *testing.T) {
	b, err := NewBroadcast(make([]byte, 1024))
	require.NoError(t, err)

	r1 := b.NewReceiver()
	b.Transmit(1, []byte("a"))
	r2 := b.NewReceiver()
	b.Transmit(2, []byte("b"))

	res, ok := r1.Next()
	require.True(t, ok)
	require.EqualValues(t, 1, res.MsgType)
	res, ok = r1.Next()
	require.True(t, ok)
	require.EqualValues(t, 2, res.MsgType)

	// r2 joined after the first message, so it only sees the second.
	res, ok = r2.Next()
	require.True(t, ok)
	require.EqualValues(t, 2, res.MsgType)
	_, ok = r2.Next()
	require.False(t, ok)
}
