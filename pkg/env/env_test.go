package env

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/ipsp.go/pkg/ble"
	"github.com/robotalks/ipsp.go/pkg/ipsp"
)

func TestOrchestratorConfig(t *testing.T) {
	target := ble.MustParseAddr("AA:BB:CC:DD:EE:01")
	testCases := []struct {
		name   string
		modify func(*Config)
		conf   ipsp.Config
		fail   bool
	}{
		{
			name:   "router",
			modify: func(c *Config) { c.Role, c.Target = "router", "aabbccddee01" },
			conf: ipsp.Config{
				Role:           ble.Initiator,
				Target:         target,
				LocalMTU:       512,
				ConnectTimeout: 10 * time.Second,
				LocalCredits:   1000,
				PeerCredits:    1000,
				AutoReconnect:  true,
			},
		},
		{
			name: "node",
			modify: func(c *Config) {
				c.Role, c.Credits, c.Watermark, c.AutoReconnect = "node", 10, 2, false
			},
			conf: ipsp.Config{
				Role:           ble.Acceptor,
				LocalMTU:       512,
				ConnectTimeout: 10 * time.Second,
				LocalCredits:   10,
				PeerCredits:    10,
				Watermark:      2,
			},
		},
		{name: "bad role", modify: func(c *Config) { c.Role = "bystander" }, fail: true},
		{name: "bad target", modify: func(c *Config) { c.Target = "AA:BB" }, fail: true},
		{name: "node target", modify: func(c *Config) { c.Role, c.Target = "node", "aabbccddee01" }, fail: true},
		{name: "bad mtu", modify: func(c *Config) { c.MTU = 0x10000 }, fail: true},
		{name: "bad watermark", modify: func(c *Config) { c.Watermark = 2000 }, fail: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Config{
				Role:           ble.Initiator.String(),
				Credits:        1000,
				MTU:            512,
				ConnectTimeout: 10 * time.Second,
				AutoReconnect:  true,
			}
			tc.modify(c)
			conf, err := c.OrchestratorConfig()
			if tc.fail {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.conf, conf)
		})
	}
}

func TestNewEnv(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	c := NewConfig()
	c.Role = "node"
	c.Target = ""
	c.StackURL = "tcp://" + ln.Addr().String()
	c.MQTTBrokerURL = "mqtt://localhost:1883/ipsp?client-id=test"
	c.Tick = 20 * time.Millisecond
	env, err := c.NewEnv()
	require.NoError(t, err)

	require.Equal(t, 20*time.Millisecond, env.Loop.Interval)
	require.Equal(t, ble.Acceptor, env.Orchestrator.Config().Role)
	require.NotNil(t, env.Bridge)
	require.Equal(t, ble.Acceptor, env.Bridge.Role)
	require.Equal(t, "ipsp/", env.Bridge.Queue.TopicPrefix)
	require.NotNil(t, env.Client)
	env.AddToLoop(env.Loop)

	c.StackURL = "gopher://nowhere"
	_, err = c.NewEnv()
	require.Error(t, err)
}
