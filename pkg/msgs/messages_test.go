package msgs

import (
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/require"
)

func TestLinkStatusWire(t *testing.T) {
	status := &LinkStatus{
		Peer:         "AA:BB:CC:DD:EE:01",
		State:        "Ready",
		Handle:       1,
		Mtu:          247,
		Services:     []uint32{0x10, 0x20},
		ChannelReady: true,
		LocalCredits: 1000,
	}
	b, err := proto.Marshal(status)
	require.NoError(t, err)
	var decoded LinkStatus
	require.NoError(t, proto.Unmarshal(b, &decoded))
	require.True(t, proto.Equal(status, &decoded))
	require.Contains(t, decoded.String(), `mtu:247`)
}
