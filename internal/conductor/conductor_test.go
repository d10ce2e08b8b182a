package conductor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/mediadriver/internal/counters"
	"github.com/yanet-platform/mediadriver/internal/errorlog"
	"github.com/yanet-platform/mediadriver/internal/ringbuffer"
)

func newTestConductor(t *testing.T, opt ...Option) (*Conductor, *ringbuffer.MPSC, *ringbuffer.Broadcast) {
	t.Helper()
	cmdRing, err := ringbuffer.NewMPSC(make([]byte, 4096))
	require.NoError(t, err)
	eventBus, err := ringbuffer.NewBroadcast(make([]byte, 4096))
	require.NoError(t, err)
	cm, err := counters.NewManager(make([]byte, counters.MetadataRecordLength*4), make([]byte, counters.ValueLength*4))
	require.NoError(t, err)
	el := errorlog.New(16)

	c := New(cmdRing, eventBus, cm, el, opt...)
	return c, cmdRing, eventBus
}

func TestConductorAddPublicationEmitsReadyEvent(t *testing.T) {
	c, cmdRing, eventBus := newTestConductor(t)
	receiver := eventBus.NewReceiver()

	cmd := Command{
		Type:          CommandAddPublication,
		CorrelationID: 1,
		ClientID:      1,
		ChannelURI:    "aeron:udp?endpoint=239.1.1.1:40001",
		StreamID:      10,
		SessionID:     1,
	}
	require.True(t, cmdRing.Write(int32(cmd.Type), cmd.Encode()))

	now := time.Unix(0, 0)
	require.Equal(t, 1, c.DoWork(now))

	result, ok := receiver.Next()
	require.True(t, ok)
	require.False(t, result.Lapped)

	ev, err := DecodeEvent(result.Payload)
	require.NoError(t, err)
	require.Equal(t, EventPublicationReady, ev.Type)
	require.EqualValues(t, 1, ev.CorrelationID)

	_, ok = c.Publications().Get(PublicationKey{ChannelURI: cmd.ChannelURI, StreamID: 10, SessionID: 1})
	require.True(t, ok)
}

func TestConductorAddPublicationDeduplicatesByKey(t *testing.T) {
	c, cmdRing, _ := newTestConductor(t)

	cmd := Command{
		Type:       CommandAddPublication,
		ClientID:   1,
		ChannelURI: "aeron:udp?endpoint=239.1.1.1:40001",
		StreamID:   10,
		SessionID:  1,
	}
	require.True(t, cmdRing.Write(int32(cmd.Type), cmd.Encode()))
	require.True(t, cmdRing.Write(int32(cmd.Type), cmd.Encode()))

	now := time.Unix(0, 0)
	c.DoWork(now)

	require.Equal(t, 1, c.Publications().Len())
	pub, ok := c.Publications().Get(PublicationKey{ChannelURI: cmd.ChannelURI, StreamID: 10, SessionID: 1})
	require.True(t, ok)
	require.EqualValues(t, 3, pub.Acquire()) // acquired once per add, plus this probe
}

func TestConductorRejectsMalformedChannelURI(t *testing.T) {
	c, cmdRing, eventBus := newTestConductor(t)
	receiver := eventBus.NewReceiver()

	cmd := Command{Type: CommandAddPublication, CorrelationID: 9, ChannelURI: "not-a-channel-uri"}
	require.True(t, cmdRing.Write(int32(cmd.Type), cmd.Encode()))

	c.DoWork(time.Unix(0, 0))

	result, ok := receiver.Next()
	require.True(t, ok)
	ev, err := DecodeEvent(result.Payload)
	require.NoError(t, err)
	require.Equal(t, EventError, ev.Type)
	require.EqualValues(t, 9, ev.CorrelationID)
}

func TestConductorEvictsClientAfterLivenessTimeout(t *testing.T) {
	c, cmdRing, eventBus := newTestConductor(t, WithClientLivenessTimeout(time.Second))
	receiver := eventBus.NewReceiver()

	cmd := Command{Type: CommandClientKeepalive, ClientID: 5}
	require.True(t, cmdRing.Write(int32(cmd.Type), cmd.Encode()))

	start := time.Unix(0, 0)
	c.DoWork(start)
	_, ok := receiver.Next()
	require.True(t, ok)

	c.DoWork(start.Add(2 * time.Second))

	_, found := c.clients[5]
	require.False(t, found)
}

func TestConductorRemovePublicationBeginsDrainingAtZeroRefcount(t *testing.T) {
	c, cmdRing, _ := newTestConductor(t)

	add := Command{Type: CommandAddPublication, ChannelURI: "aeron:udp?endpoint=1.2.3.4:1", StreamID: 1, SessionID: 1}
	require.True(t, cmdRing.Write(int32(add.Type), add.Encode()))
	c.DoWork(time.Unix(0, 0))

	remove := Command{Type: CommandRemovePublication, ChannelURI: add.ChannelURI, StreamID: 1, SessionID: 1}
	require.True(t, cmdRing.Write(int32(remove.Type), remove.Encode()))
	c.DoWork(time.Unix(0, 0))

	pub, ok := c.Publications().Get(PublicationKey{ChannelURI: add.ChannelURI, StreamID: 1, SessionID: 1})
	require.True(t, ok)
	require.Equal(t, "DRAINING", pub.State().String())
}
