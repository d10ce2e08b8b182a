package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChannelWriteReadRoundTrip(t *testing.T) {
	server, err := Open("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := Open("127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	_, err = client.WriteTo([]byte("ping"), server.LocalAddr())
	require.NoError(t, err)

	buf := make([]byte, 64)
	require.Eventually(t, func() bool {
		server.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
		n, _, err := server.ReadFrom(buf)
		return err == nil && string(buf[:n]) == "ping"
	}, time.Second, 10*time.Millisecond)
}

func TestChannelRefCounting(t *testing.T) {
	ch, err := Open("127.0.0.1:0")
	require.NoError(t, err)
	defer ch.Close()

	require.EqualValues(t, 0, ch.RefCount())
	require.EqualValues(t, 1, ch.Acquire())
	require.EqualValues(t, 2, ch.Acquire())
	require.EqualValues(t, 1, ch.Release())
}

func TestPollerReportsReadiness(t *testing.T) {
	server, err := Open("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := Open("127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	poller, err := NewPoller()
	require.NoError(t, err)
	defer poller.Close()

	require.NoError(t, poller.Add(server))

	_, err = client.WriteTo([]byte("hello"), server.LocalAddr())
	require.NoError(t, err)

	var ready *Channel
	require.Eventually(t, func() bool {
		n, err := poller.Poll(10, func(ch *Channel) { ready = ch })
		return err == nil && n > 0
	}, time.Second, 10*time.Millisecond)

	require.Same(t, server, ready)
}

func TestDestinationTrackerAddRemove(t *testing.T) {
	tr := NewDestinationTracker()
	require.Equal(t, 0, tr.Len())

	server, err := Open("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	tr.Add(server.LocalAddr())
	tr.Add(server.LocalAddr())
	require.Equal(t, 1, tr.Len())

	tr.Remove(server.LocalAddr())
	require.Equal(t, 0, tr.Len())
}
