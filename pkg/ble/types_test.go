package ble

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAddr(t *testing.T) {
	testCases := []struct {
		in     string
		expect Addr
		err    bool
	}{
		{in: "AA:BB:CC:DD:EE:01", expect: Addr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01}},
		{in: "aabbccddee01", expect: Addr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01}},
		{in: "AA:BB:CC:DD:EE", err: true},
		{in: "AA:BB:CC:DD:EE:ZZ", err: true},
		{in: "", err: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			a, err := ParseAddr(tc.in)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expect, a)
		})
	}
}

func TestAddrString(t *testing.T) {
	a := MustParseAddr("aa:bb:cc:dd:ee:01")
	require.Equal(t, "AA:BB:CC:DD:EE:01", a.String())
	require.Equal(t, "aabbccddee01", a.Compact())
	require.False(t, a.IsZero())
	require.True(t, Addr{}.IsZero())
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"router", "Initiator", "central"} {
		r, err := ParseRole(s)
		require.NoError(t, err)
		require.Equal(t, Initiator, r)
	}
	for _, s := range []string{"node", "acceptor", "PERIPHERAL"} {
		r, err := ParseRole(s)
		require.NoError(t, err)
		require.Equal(t, Acceptor, r)
	}
	_, err := ParseRole("observer")
	require.Error(t, err)
}
