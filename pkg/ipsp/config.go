package ipsp

import (
	"time"

	"github.com/robotalks/ipsp.go/pkg/ble"
	"github.com/robotalks/ipsp.go/pkg/ble/link"
)

// Defaults of Config.
const (
	DefaultCredits       uint32        = 1000
	DefaultChannelID     ble.ChannelID = 0x0040
	DefaultRetryInterval               = time.Second
)

// Config defines the behavior of an Orchestrator.
type Config struct {
	Role ble.Role
	// Target is searched by Start for the initiator role.
	Target ble.Addr

	LocalMTU         uint16
	ConnectTimeout   time.Duration
	NegotiateTimeout time.Duration

	ChannelID    ble.ChannelID
	LocalCredits uint32
	PeerCredits  uint32
	// Watermark zero means half of LocalCredits.
	Watermark uint32

	// AutoReconnect restarts search or advertising whenever a wanted link
	// falls back to Idle.
	AutoReconnect bool
	// RetryInterval paces restarts which fail, e.g. while the stack is
	// not synchronized.
	RetryInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChannelID == 0 {
		c.ChannelID = DefaultChannelID
	}
	if c.LocalCredits == 0 {
		c.LocalCredits = DefaultCredits
	}
	if c.PeerCredits == 0 {
		c.PeerCredits = DefaultCredits
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	return c
}

func (c Config) linkConfig(target ble.Addr) link.Config {
	return link.Config{
		Role:             c.Role,
		Target:           target,
		LocalMTU:         c.LocalMTU,
		ConnectTimeout:   c.ConnectTimeout,
		NegotiateTimeout: c.NegotiateTimeout,
	}
}
