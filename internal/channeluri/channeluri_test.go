package channeluri

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseUDPWithParams(t *testing.T) {
	u, err := Parse("aeron:udp?endpoint=239.1.1.1:40001|mtu=1408|ttl=4|tags=cam-1,outdoor")
	require.NoError(t, err)
	require.Equal(t, MediaUDP, u.Media)

	endpoint, ok := u.Get(ParamEndpoint)
	require.True(t, ok)
	require.Equal(t, "239.1.1.1:40001", endpoint)

	mtu, ok, err := u.GetInt(ParamMTU)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1408, mtu)

	require.Equal(t, []string{"cam-1", "outdoor"}, u.Tags)
}

func TestParseIPCNoParams(t *testing.T) {
	u, err := Parse("aeron:ipc")
	require.NoError(t, err)
	require.Equal(t, MediaIPC, u.Media)
	require.Empty(t, u.Params)
}

func TestParseRejectsUnknownMedia(t *testing.T) {
	_, err := Parse("aeron:tcp?endpoint=1.2.3.4:1")
	require.Error(t, err)
}

func TestParseRejectsUnknownParameter(t *testing.T) {
	_, err := Parse("aeron:udp?bogus=1")
	require.Error(t, err)
}

func TestParseRejectsMissingPrefix(t *testing.T) {
	_, err := Parse("udp://239.1.1.1:40001")
	require.Error(t, err)
}

func TestReliableDefaultsTrue(t *testing.T) {
	u, err := Parse("aeron:udp?endpoint=1.2.3.4:1")
	require.NoError(t, err)
	require.True(t, u.Reliable())

	u, err = Parse("aeron:udp?endpoint=1.2.3.4:1|reliable=false")
	require.NoError(t, err)
	require.False(t, u.Reliable())
}

func TestAliasMatcherGlob(t *testing.T) {
	m, err := NewAliasMatcher("cam-*", "mic-1")
	require.NoError(t, err)

	u, err := Parse("aeron:udp?endpoint=1.2.3.4:1|alias=cam-7")
	require.NoError(t, err)
	require.True(t, m.MatchAny(u))

	u2, err := Parse("aeron:udp?endpoint=1.2.3.4:1|alias=other")
	require.NoError(t, err)
	require.False(t, m.MatchAny(u2))
}
