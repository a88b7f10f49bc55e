// Package env assembles the loop, the stack connection, the orchestrator
// and the optional MQTT bridge from command line flags.
package env

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/ipsp.go/pkg/ble"
	"github.com/robotalks/ipsp.go/pkg/ble/link"
	"github.com/robotalks/ipsp.go/pkg/bridge/mqtt"
	fx "github.com/robotalks/ipsp.go/pkg/framework"
	"github.com/robotalks/ipsp.go/pkg/ipsp"
	"github.com/robotalks/ipsp.go/pkg/stack"
)

// Config provides common options to setup an Env.
type Config struct {
	// Role is initiator (router) or acceptor (node).
	Role string
	// Target is the peer address searched on start by the initiator.
	Target string

	// StackURL locates the co-processor, see stack.Open.
	StackURL string
	// MQTTBrokerURL enables the MQTT bridge when not empty.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string

	Credits          uint
	Watermark        uint
	MTU              uint
	ConnectTimeout   time.Duration
	NegotiateTimeout time.Duration
	AutoReconnect    bool
	Tick             time.Duration
}

var defaultConfig = Config{
	Role:             ble.Initiator.String(),
	StackURL:         "tcp://localhost:7722",
	Credits:          uint(ipsp.DefaultCredits),
	MTU:              uint(link.DefaultLocalMTU),
	ConnectTimeout:   5 * time.Second,
	NegotiateTimeout: 5 * time.Second,
	AutoReconnect:    true,
	Tick:             fx.DefaultInterval,
}

func init() {
	if val := os.Getenv("IPSP_ROLE"); val != "" {
		defaultConfig.Role = val
	}
	if val := os.Getenv("IPSP_TARGET"); val != "" {
		defaultConfig.Target = val
	}
	if val := os.Getenv("IPSP_STACK_URL"); val != "" {
		defaultConfig.StackURL = val
	}
	if val := os.Getenv("IPSP_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Role, "role", defaultConfig.Role, "Link role: initiator (router) or acceptor (node)")
	flag.StringVar(&defaultConfig.Target, "target", defaultConfig.Target, "Peer address to search on start")
	flag.StringVar(&defaultConfig.StackURL, "stack", defaultConfig.StackURL, "Co-processor URL: tcp://, ws:// or serial device")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL, bridge disabled if empty")
	flag.UintVar(&defaultConfig.Credits, "credits", defaultConfig.Credits, "Initial credits granted to the peer")
	flag.UintVar(&defaultConfig.Watermark, "watermark", defaultConfig.Watermark, "Replenish credits below this, half of credits if 0")
	flag.UintVar(&defaultConfig.MTU, "mtu", defaultConfig.MTU, "Local ATT MTU")
	flag.DurationVar(&defaultConfig.ConnectTimeout, "connect-timeout", defaultConfig.ConnectTimeout, "Connect timeout, 0 to wait forever")
	flag.DurationVar(&defaultConfig.NegotiateTimeout, "negotiate-timeout", defaultConfig.NegotiateTimeout, "MTU exchange and service discovery timeout, 0 to wait forever")
	flag.BoolVar(&defaultConfig.AutoReconnect, "auto-reconnect", defaultConfig.AutoReconnect, "Restart search or advertising when the link drops")
	flag.DurationVar(&defaultConfig.Tick, "tick", defaultConfig.Tick, "Loop interval")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// OrchestratorConfig converts the options to ipsp.Config.
func (c *Config) OrchestratorConfig() (conf ipsp.Config, err error) {
	if conf.Role, err = ble.ParseRole(c.Role); err != nil {
		return
	}
	if c.Target != "" {
		if conf.Role != ble.Initiator {
			return conf, fmt.Errorf("target is only used by initiator")
		}
		if conf.Target, err = ble.ParseAddr(c.Target); err != nil {
			return
		}
	}
	if c.MTU > 0xffff {
		return conf, fmt.Errorf("invalid MTU %d", c.MTU)
	}
	if c.Watermark > c.Credits {
		return conf, fmt.Errorf("watermark %d exceeds credits %d", c.Watermark, c.Credits)
	}
	conf.LocalMTU = uint16(c.MTU)
	conf.LocalCredits = uint32(c.Credits)
	conf.PeerCredits = uint32(c.Credits)
	conf.Watermark = uint32(c.Watermark)
	conf.ConnectTimeout = c.ConnectTimeout
	conf.NegotiateTimeout = c.NegotiateTimeout
	conf.AutoReconnect = c.AutoReconnect
	return conf, nil
}

// Env is the running environment of a link daemon.
type Env struct {
	Config       *Config
	Loop         *fx.Loop
	Stack        *stack.Remote
	Orchestrator *ipsp.Orchestrator
	Client       *ipsp.Client
	Bridge       *mqtt.Bridge
}

// NewEnv creates Env from config. The stack stream is opened, the
// MQTT broker is connected when the loop runs.
func (c *Config) NewEnv() (*Env, error) {
	conf, err := c.OrchestratorConfig()
	if err != nil {
		return nil, err
	}
	conn, err := stack.Open(c.StackURL)
	if err != nil {
		return nil, fmt.Errorf("open stack %s error: %v", c.StackURL, err)
	}
	env := &Env{
		Config: c,
		Loop:   fx.NewLoop(),
		Stack:  stack.NewRemote("stack", conn),
	}
	if c.Tick > 0 {
		env.Loop.Interval = c.Tick
	}
	env.Orchestrator = ipsp.New(env.Stack, conf).AddListener(LogListener{})
	env.Client = ipsp.NewClient(env.Loop)
	if c.MQTTBrokerURL != "" {
		opts, prefix, err := mqtt.ClientOptionsFromURL(c.MQTTBrokerURL, DefaultClientID(conf.Role.String()))
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("invalid MQTT broker URL: %v", err)
		}
		env.Bridge = mqtt.NewBridge(mqtt.NewQueue(opts, prefix), conf.Role, env.Client, env.Orchestrator)
		env.Orchestrator.AddListener(env.Bridge)
	}
	env.Orchestrator.Start()
	return env, nil
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv() *Env {
	env, err := c.NewEnv()
	if err != nil {
		log.Fatalln(err)
	}
	return env
}

// AddToLoop adds controllers/runners to loop.
func (e *Env) AddToLoop(loop *fx.Loop) {
	loop.Add(e.Stack, e.Orchestrator)
	if e.Bridge != nil {
		loop.Add(e.Bridge)
	}
}

// LogListener logs link activity.
type LogListener struct{}

// LinkStateChanged implements ipsp.Listener.
func (LogListener) LinkStateChanged(l link.Link, from link.State) {
	glog.Infof("link %s: %s -> %s", l.Peer, from, l.State)
}

// LinkFailed implements ipsp.Listener.
func (LogListener) LinkFailed(peer ble.Addr, err error) {
	glog.Warningf("link %s: %v", peer, err)
}

// DataReceived implements ipsp.Listener.
func (LogListener) DataReceived(peer ble.Addr, data []byte) {
	glog.V(3).Infof("link %s: RX %d bytes", peer, len(data))
}
