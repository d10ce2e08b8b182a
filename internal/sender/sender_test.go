package sender

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/mediadriver/internal/endpoint"
	"github.com/yanet-platform/mediadriver/internal/flowcontrol"
	"github.com/yanet-platform/mediadriver/internal/logbuffer"
	"github.com/yanet-platform/mediadriver/internal/publication"
	"github.com/yanet-platform/mediadriver/internal/transport"
	"github.com/yanet-platform/mediadriver/internal/wire"
)

func newLoopbackSender(t *testing.T) (*Sender, *transport.Channel, *transport.Channel) {
	t.Helper()

	serverCh, err := transport.Open("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { serverCh.Close() })

	clientCh, err := transport.Open("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { clientCh.Close() })

	ep := endpoint.NewSendChannelEndpoint(clientCh)
	s := New(ep)
	return s, clientCh, serverCh
}

func writeTestFrame(t *testing.T, term []byte, offset int32, sessionID, streamID, termID int32) int32 {
	t.Helper()
	buf := term[offset : offset+wire.DataHeaderLength]
	wire.PutDataHeader(buf, wire.DataHeader{
		CommonHeader: wire.CommonHeader{
			Version:    0,
			Flags:      wire.FlagUnfragmented,
			Type:       wire.TypeData,
			TermOffset: offset,
			SessionID:  sessionID,
			StreamID:   streamID,
			TermID:     termID,
		},
	})
	wire.PutFrameLengthRelease(buf, wire.DataHeaderLength)
	return wire.AlignTerm(wire.DataHeaderLength)
}

func TestSenderScansAndSendsCommittedFrames(t *testing.T) {
	s, _, serverCh := newLoopbackSender(t)

	dir := t.TempDir()
	log, err := logbuffer.CreateLogFile(dir+"/term.log", 64*1024)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	term := log.Term(0)
	writeTestFrame(t, term, 0, 1, 7, 1)

	identity := publication.Identity{SessionID: 1, StreamID: 7, InitialTermID: 1, TermLength: 64 * 1024, MTULength: 1408}
	pub := publication.NewNetworkPublication(identity, log, flowcontrol.NewUnicastMax())

	key := endpoint.StreamKey{SessionID: 1, StreamID: 7}
	s.AddPublication(key, pub, serverCh.LocalAddr(), 1408)

	n := s.DoWork(time.Unix(0, 0))
	require.Greater(t, n, 0)

	require.NoError(t, serverCh.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 2048)
	read, _, err := serverCh.ReadFrom(buf)
	require.NoError(t, err)
	require.Equal(t, int(wire.DataHeaderLength), read)

	require.Greater(t, int64(pub.SenderPosition()), int64(0))
}

func TestSenderDoesNotExceedPositionLimit(t *testing.T) {
	s, _, serverCh := newLoopbackSender(t)

	dir := t.TempDir()
	log, err := logbuffer.CreateLogFile(dir+"/term.log", 64*1024)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	term := log.Term(0)
	off := int32(0)
	off += writeTestFrame(t, term, off, 1, 7, 1)
	writeTestFrame(t, term, off, 1, 7, 1)

	identity := publication.Identity{SessionID: 1, StreamID: 7, InitialTermID: 1, TermLength: 64 * 1024, MTULength: 1408}
	fc := flowcontrol.NewUnicastMax()
	pub := publication.NewNetworkPublication(identity, log, fc)

	key := endpoint.StreamKey{SessionID: 1, StreamID: 7}
	s.AddPublication(key, pub, serverCh.LocalAddr(), 1408)

	mp, ok := s.publications.Get(key)
	require.True(t, ok)
	mp.haveSM = true
	mp.positionLimit = logbuffer.Position(wire.DataHeaderLength) // only first frame allowed through

	s.DoWork(time.Unix(0, 0))

	require.EqualValues(t, wire.DataHeaderLength, pub.SenderPosition())
}
