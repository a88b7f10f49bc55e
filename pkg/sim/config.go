package sim

import (
	"flag"

	"github.com/robotalks/ipsp.go/pkg/ble"
	"github.com/robotalks/ipsp.go/pkg/ipsp"
)

// Config defines the simulated peer.
type Config struct {
	Peer     string
	MTU      uint
	Services uint
	Credits  uint
	Echo     bool
}

// Defaults
const (
	DefaultPeer = "AA:BB:CC:DD:EE:01"
	DefaultMTU  = 247
)

// StatusConnectFailed is reported when connecting to an unknown peer.
const StatusConnectFailed ble.Status = 0x3e

var defaultConfig = Config{
	Peer:     DefaultPeer,
	MTU:      DefaultMTU,
	Services: 1,
	Credits:  uint(ipsp.DefaultCredits),
	Echo:     true,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Peer, "peer", defaultConfig.Peer, "Address of the simulated peer.")
	flag.UintVar(&defaultConfig.MTU, "peer-mtu", defaultConfig.MTU, "ATT MTU of the simulated peer.")
	flag.UintVar(&defaultConfig.Services, "peer-services", defaultConfig.Services, "Number of services found on the peer.")
	flag.UintVar(&defaultConfig.Credits, "peer-credits", defaultConfig.Credits, "Initial credits granted by each side.")
	flag.BoolVar(&defaultConfig.Echo, "echo", defaultConfig.Echo, "Echo received segments back.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates the default configuration.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewPeer builds the simulated peer.
func (c *Config) NewPeer() (*Peer, error) {
	addr, err := ble.ParseAddr(c.Peer)
	if err != nil {
		return nil, err
	}
	p := &Peer{
		Addr:    addr,
		MTU:     uint16(c.MTU),
		Credits: uint16(c.Credits),
		Echo:    c.Echo,
	}
	for i := uint(0); i < c.Services; i++ {
		p.Services = append(p.Services, ble.ServiceHandle(0x10+i))
	}
	return p, nil
}
