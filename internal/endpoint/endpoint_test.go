package endpoint

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yanet-platform/mediadriver/internal/transport"
)

func TestSendChannelEndpointSendsToAllDestinations(t *testing.T) {
	serverA, err := transport.Open("127.0.0.1:0")
	require.NoError(t, err)
	defer serverA.Close()
	serverB, err := transport.Open("127.0.0.1:0")
	require.NoError(t, err)
	defer serverB.Close()

	client, err := transport.Open("127.0.0.1:0")
	require.NoError(t, err)

	send := NewSendChannelEndpoint(client)
	defer send.Close()

	key := StreamKey{SessionID: 1, StreamID: 7}
	send.AddPublication(key, serverA.LocalAddr())
	require.NoError(t, send.AddDestination(key, serverB.LocalAddr()))

	n, err := send.Send(key, []byte("hi"))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	buf := make([]byte, 16)
	serverA.SetReadDeadline(time.Now().Add(time.Second))
	serverB.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = serverA.ReadFrom(buf)
	require.NoError(t, err)
	_, _, err = serverB.ReadFrom(buf)
	require.NoError(t, err)
}

func TestSendChannelEndpointUnknownStream(t *testing.T) {
	client, err := transport.Open("127.0.0.1:0")
	require.NoError(t, err)
	send := NewSendChannelEndpoint(client)
	defer send.Close()

	_, err = send.Send(StreamKey{SessionID: 1, StreamID: 1}, []byte("x"))
	require.Error(t, err)
}

func TestReceiveChannelEndpointDispatch(t *testing.T) {
	ch, err := transport.Open("127.0.0.1:0")
	require.NoError(t, err)
	recv := NewReceiveChannelEndpoint(ch)
	defer recv.Close()

	key := StreamKey{SessionID: 1, StreamID: 7}
	var got []byte
	recv.AddImage(key, func(k StreamKey, from netip.AddrPort, frame []byte) {
		got = frame
	})

	ok := recv.Dispatch(key, netip.AddrPort{}, []byte("payload"))
	require.True(t, ok)
	require.Equal(t, []byte("payload"), got)

	recv.RemoveImage(key)
	ok = recv.Dispatch(key, netip.AddrPort{}, []byte("payload"))
	require.False(t, ok)
}
