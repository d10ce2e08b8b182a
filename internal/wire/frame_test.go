package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlignTerm(t *testing.T) {
	cases := []struct{ in, want int32 }{
		{0, 0},
		{1, 32},
		{31, 32},
		{32, 32},
		{33, 64},
		{232, 256},
	}
	for _, c := range cases {
		require.Equal(t, c.want, AlignTerm(c.in), "AlignTerm(%d)", c.in)
	}
}

func TestDataHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, DataHeaderLength)
	h := DataHeader{
		CommonHeader: CommonHeader{
			FrameLength: DataHeaderLength,
			Version:     0,
			Flags:       FlagUnfragmented,
			Type:        TypeData,
			TermOffset:  64,
			SessionID:   7,
			StreamID:    3,
			TermID:      1,
		},
		ReservedValue: 42,
	}
	PutDataHeader(buf, h)
	PutFrameLengthRelease(buf, h.FrameLength)

	got, err := ParseDataHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
	require.Equal(t, int32(DataHeaderLength), FrameLengthVolatile(buf))
}

func TestNAKHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, NAKHeaderLength)
	h := NAKHeader{
		CommonHeader: CommonHeader{
			SessionID:  1,
			StreamID:   2,
			TermID:     3,
			TermOffset: 96,
		},
		Length: 128,
	}
	PutNAKHeader(buf, h)

	got, err := ParseNAKHeader(buf)
	require.NoError(t, err)
	require.Equal(t, TypeNAK, got.Type)
	require.Equal(t, h.Length, got.Length)
	require.Equal(t, h.SessionID, got.SessionID)
}

func TestSMHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, SMHeaderLength)
	h := SMHeader{
		CommonHeader: CommonHeader{
			Type:      TypeSM,
			SessionID: 5,
			StreamID:  9,
		},
		ConsumptionTermID:     1,
		ConsumptionTermOffset: 256,
		ReceiverWindow:        65536,
		ReceiverID:            0xdeadbeef,
		Flags:                 SMFlagEOS,
	}
	PutSMHeader(buf, h)

	got, err := ParseSMHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestSetupHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, SetupHeaderLength)
	h := SetupHeader{
		InitialTermID: 1,
		ActiveTermID:  1,
		TermLength:    1 << 24,
		MTU:           1408,
		TTL:           16,
	}
	PutSetupHeader(buf, h)

	got, err := ParseSetupHeader(buf)
	require.NoError(t, err)
	require.Equal(t, TypeSetup, got.Type)
	require.Equal(t, h.TermLength, got.TermLength)
	require.Equal(t, h.MTU, got.MTU)
}

func TestRTTMHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, RTTMHeaderLength)
	h := RTTMHeader{
		EchoTimestampNs:  1000,
		ReceptionDeltaNs: 20,
		ReceiverID:       77,
		Flags:            RTTMFlagReply,
	}
	PutRTTMHeader(buf, h)

	got, err := ParseRTTMHeader(buf)
	require.NoError(t, err)
	require.Equal(t, TypeRTTM, got.Type)
	require.Equal(t, h.EchoTimestampNs, got.EchoTimestampNs)
	require.Equal(t, h.Flags, got.Flags)
}

func TestParseCommonHeaderShortBuffer(t *testing.T) {
	_, err := ParseCommonHeader(make([]byte, 4))
	require.Error(t, err)
}
