package receiver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/mediadriver/internal/congestioncontrol"
	"github.com/yanet-platform/mediadriver/internal/dispatcher"
	"github.com/yanet-platform/mediadriver/internal/endpoint"
	"github.com/yanet-platform/mediadriver/internal/logbuffer"
	"github.com/yanet-platform/mediadriver/internal/publication"
	"github.com/yanet-platform/mediadriver/internal/transport"
	"github.com/yanet-platform/mediadriver/internal/wire"
)

func newLoopbackReceiver(t *testing.T, hasInterest func(dispatcher.StreamKey) bool) (*Receiver, *transport.Channel, *transport.Channel) {
	t.Helper()

	recvCh, err := transport.Open("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { recvCh.Close() })

	sendCh, err := transport.Open("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { sendCh.Close() })

	poller, err := transport.NewPoller()
	require.NoError(t, err)
	t.Cleanup(func() { poller.Close() })
	require.NoError(t, poller.Add(recvCh))

	recvEndpoint := endpoint.NewReceiveChannelEndpoint(recvCh)
	sendEndpoint := endpoint.NewSendChannelEndpoint(sendCh)

	r := New(recvEndpoint, sendEndpoint, poller, hasInterest, nil, WithPollTimeout(50))
	return r, recvCh, sendCh
}

func TestReceiverRebuildsKnownImageAndSendsSM(t *testing.T) {
	r, recvCh, peerCh := newLoopbackReceiver(t, nil)

	dir := t.TempDir()
	log, err := logbuffer.CreateLogFile(dir+"/term.log", 64*1024)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	identity := publication.Identity{SessionID: 1, StreamID: 7, InitialTermID: 1, TermLength: 64 * 1024}
	img := publication.NewImage(identity, log, congestioncontrol.NewStaticWindow(4096))
	require.NoError(t, img.Activate())

	key := dispatcher.StreamKey{SessionID: 1, StreamID: 7}
	peerAddr := peerCh.LocalAddr()
	r.AddImage(key, img, peerAddr)

	frame := make([]byte, wire.DataHeaderLength)
	wire.PutDataHeader(frame, wire.DataHeader{
		CommonHeader: wire.CommonHeader{
			Version:    0,
			Flags:      wire.FlagUnfragmented,
			Type:       wire.TypeData,
			TermOffset: 0,
			SessionID:  1,
			StreamID:   7,
			TermID:     1,
		},
	})
	wire.PutFrameLengthRelease(frame, wire.DataHeaderLength)

	recvAddr := recvCh.LocalAddr()
	_, err = peerCh.WriteTo(frame, recvAddr)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r.DoWork(time.Now())
		return img.RebuildPosition() > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, peerCh.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 2048)
	n, _, err := peerCh.ReadFrom(buf)
	require.NoError(t, err)
	sm, err := wire.ParseSMHeader(buf[:n])
	require.NoError(t, err)
	require.Equal(t, wire.TypeSM, sm.Type)
}

func TestReceiverDispatchesUnknownStreamAsSetupRequest(t *testing.T) {
	r, recvCh, peerCh := newLoopbackReceiver(t, func(dispatcher.StreamKey) bool { return true })

	frame := make([]byte, wire.DataHeaderLength)
	wire.PutDataHeader(frame, wire.DataHeader{
		CommonHeader: wire.CommonHeader{
			Type:      wire.TypeData,
			SessionID: 9,
			StreamID:  3,
			TermID:    1,
		},
	})
	wire.PutFrameLengthRelease(frame, wire.DataHeaderLength)

	recvAddr := recvCh.LocalAddr()
	_, err := peerCh.WriteTo(frame, recvAddr)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r.DoWork(time.Now())
		_, ok := r.PendingSetup(dispatcher.StreamKey{SessionID: 9, StreamID: 3})
		return ok
	}, time.Second, 5*time.Millisecond)
}
