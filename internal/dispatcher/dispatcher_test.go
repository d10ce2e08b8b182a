package dispatcher

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yanet-platform/mediadriver/internal/wire"
)

type fakeImage struct {
	initialTermID int32
	gotData       bool
	gotRTTM       bool
}

func (f *fakeImage) OnData(frame []byte, termOffset int32) { f.gotData = true }
func (f *fakeImage) OnRTTM(frame []byte, from netip.AddrPort) { f.gotRTTM = true }
func (f *fakeImage) InitialTermID() int32 { return f.initialTermID }

type fakeSubscribable struct {
	interested map[StreamKey]bool
	allowed    bool
}

func (f *fakeSubscribable) HasInterest(key StreamKey) bool   { return f.interested[key] }
func (f *fakeSubscribable) SourceAllowed(StreamKey, netip.AddrPort) bool { return f.allowed }

func dataFrame(sessionID, streamID, termID, termOffset int32) []byte {
	buf := make([]byte, wire.DataHeaderLength)
	wire.PutDataHeader(buf, wire.DataHeader{
		CommonHeader: wire.CommonHeader{Type: wire.TypeData, SessionID: sessionID, StreamID: streamID, TermID: termID, TermOffset: termOffset},
	})
	return buf
}

func setupFrame(sessionID, streamID, initialTermID int32) []byte {
	buf := make([]byte, wire.SetupHeaderLength)
	wire.PutSetupHeader(buf, wire.SetupHeader{
		CommonHeader:  wire.CommonHeader{SessionID: sessionID, StreamID: streamID},
		InitialTermID: initialTermID,
	})
	return buf
}

func TestDispatchDataToKnownImage(t *testing.T) {
	d := New(nil)
	key := StreamKey{SessionID: 1, StreamID: 7}
	img := &fakeImage{}
	d.AddImage(key, img)

	action, err := d.Dispatch(dataFrame(1, 7, 1, 0), netip.AddrPort{})
	require.NoError(t, err)
	require.Equal(t, ActionNone, action)
	require.True(t, img.gotData)
}

func TestDispatchDataElevatesToSetupRequest(t *testing.T) {
	key := StreamKey{SessionID: 1, StreamID: 7}
	sub := &fakeSubscribable{interested: map[StreamKey]bool{key: true}, allowed: true}
	d := New(sub)

	action, err := d.Dispatch(dataFrame(1, 7, 1, 0), netip.AddrPort{})
	require.NoError(t, err)
	require.Equal(t, ActionRequestSetup, action)

	termID, ok := d.PendingInitialTermID(key)
	require.True(t, ok)
	require.EqualValues(t, 1, termID)
}

func TestDispatchDataRejectsDisallowedSource(t *testing.T) {
	key := StreamKey{SessionID: 1, StreamID: 7}
	sub := &fakeSubscribable{interested: map[StreamKey]bool{key: true}, allowed: false}
	d := New(sub)

	action, err := d.Dispatch(dataFrame(1, 7, 1, 0), netip.AddrPort{})
	require.Error(t, err)
	require.Equal(t, ActionProtocolError, action)
}

func TestDispatchSetupCreatesImage(t *testing.T) {
	d := New(nil)
	action, err := d.Dispatch(setupFrame(1, 7, 42), netip.AddrPort{})
	require.NoError(t, err)
	require.Equal(t, ActionCreateOrConfirmImage, action)
}

func TestDispatchDuplicateSetupIsIdempotent(t *testing.T) {
	d := New(nil)
	key := StreamKey{SessionID: 1, StreamID: 7}
	img := &fakeImage{initialTermID: 42}
	d.AddImage(key, img)

	action, err := d.Dispatch(setupFrame(1, 7, 42), netip.AddrPort{})
	require.NoError(t, err)
	require.Equal(t, ActionNone, action)
}

func TestDispatchSetupMismatchIsProtocolError(t *testing.T) {
	d := New(nil)
	key := StreamKey{SessionID: 1, StreamID: 7}
	img := &fakeImage{initialTermID: 42}
	d.AddImage(key, img)

	action, err := d.Dispatch(setupFrame(1, 7, 99), netip.AddrPort{})
	require.Error(t, err)
	require.Equal(t, ActionProtocolError, action)
}

func TestDispatchRTTMRoutesToImage(t *testing.T) {
	d := New(nil)
	key := StreamKey{SessionID: 1, StreamID: 7}
	img := &fakeImage{}
	d.AddImage(key, img)

	buf := make([]byte, wire.RTTMHeaderLength)
	wire.PutRTTMHeader(buf, wire.RTTMHeader{CommonHeader: wire.CommonHeader{SessionID: 1, StreamID: 7}})

	action, err := d.Dispatch(buf, netip.AddrPort{})
	require.NoError(t, err)
	require.Equal(t, ActionNone, action)
	require.True(t, img.gotRTTM)
}
