// Package sh provides an interactive shell driving links on a co-processor.
package sh

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/protobuf/jsonpb"

	"github.com/robotalks/ipsp.go/pkg/ble"
	"github.com/robotalks/ipsp.go/pkg/ble/link"
	"github.com/robotalks/ipsp.go/pkg/bridge/mqtt"
	"github.com/robotalks/ipsp.go/pkg/env"
	"github.com/robotalks/ipsp.go/pkg/ipsp"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	Timeout     time.Duration

	Shell  *ishell.Shell
	Config *env.Config
	Env    *env.Env

	cancel func()
}

const (
	shellKey = "$shell"

	// DefaultTimeout bounds a command waiting for the loop.
	DefaultTimeout = time.Second
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&SearchCmd,
		&AdvertiseCmd,
		&CancelCmd,
		&DisconnectCmd,
		&SendCmd,
		&LinksCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Timeout:     DefaultTimeout,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(fmt.Sprintf("[%s] > ", conf.Role))
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Start opens the stack and runs the loop in background.
func (s *Shell) Start() error {
	e, err := s.Config.NewEnv()
	if err != nil {
		return err
	}
	e.Orchestrator.AddListener(ipsp.ListenerFuncs{
		StateChanged: s.linkStateChanged,
		Failed:       s.linkFailed,
		Received:     s.dataReceived,
	})
	e.AddToLoop(e.Loop)
	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	s.Env = e
	go func() {
		if err := e.Loop.Run(ctx); err != nil && err != context.Canceled {
			log.Fatalln(err)
		}
	}()
	return nil
}

// Stop stops the loop.
func (s *Shell) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Call runs fn with the client and a command timeout.
func (s *Shell) Call(c *ishell.Context, fn func(context.Context, *ipsp.Client) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()
	err := fn(ctx, s.Env.Client)
	if err != nil {
		c.Err(err)
		return err
	}
	if !s.OutputJSON {
		c.Println("OK")
	}
	return nil
}

func (s *Shell) linkStateChanged(l link.Link, from link.State) {
	if s.Interactive {
		s.Shell.Printf("* %s\n", FormatLink(l))
	}
}

func (s *Shell) linkFailed(peer ble.Addr, err error) {
	s.Shell.Printf("! %s %v\n", peer, err)
}

func (s *Shell) dataReceived(peer ble.Addr, data []byte) {
	s.Shell.Printf("RX %s %s\n", peer, FormatPayload(data))
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if err := s.Start(); err != nil {
		log.Fatalln(err)
	}
	defer s.Stop()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// ParsePeer parses the address in the first argument.
func ParsePeer(args []string) (ble.Addr, error) {
	if len(args) < 1 {
		return ble.Addr{}, fmt.Errorf("PEER required")
	}
	return ble.ParseAddr(args[0])
}

// ParsePayload joins args as text, or decodes hex after -x.
func ParsePayload(args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("DATA required")
	}
	if args[0] == "-x" {
		data, err := hex.DecodeString(strings.Join(args[1:], ""))
		if err != nil {
			return nil, fmt.Errorf("Invalid hex DATA: %v", err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("DATA required")
		}
		return data, nil
	}
	return []byte(strings.Join(args, " ")), nil
}

// FormatLink prints a link into friendly string for display.
func FormatLink(l link.Link) string {
	var w strings.Builder
	fmt.Fprintf(&w, "%s %s", l.Peer, l.State)
	if l.HasHandle() {
		fmt.Fprintf(&w, " handle=%d", l.Handle)
	}
	if l.MTU > 0 {
		fmt.Fprintf(&w, " mtu=%d", l.MTU)
	}
	if len(l.Services) > 0 {
		fmt.Fprintf(&w, " services=%d", len(l.Services))
	}
	return w.String()
}

// FormatLinkInfo adds channel counters to FormatLink.
func FormatLinkInfo(info ipsp.LinkInfo) string {
	line := FormatLink(info.Link)
	if ch := info.Channel; ch.Active {
		line += fmt.Sprintf(" credits=%d/%d queued=%d", ch.LocalCredits, ch.PeerCredits, ch.QueuedBytes)
	}
	return line
}

// FormatPayload prints data as text if printable, otherwise hex.
func FormatPayload(data []byte) string {
	for _, b := range data {
		if b < 0x20 || b >= 0x7f {
			return "-x " + hex.EncodeToString(data)
		}
	}
	return string(data)
}

func peerCmd(fn func(ctx context.Context, cli *ipsp.Client, peer ble.Addr) error) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		peer, err := ParsePeer(c.Args)
		if err != nil {
			c.Err(err)
			return
		}
		ShellFrom(c).Call(c, func(ctx context.Context, cli *ipsp.Client) error {
			return fn(ctx, cli, peer)
		})
	}
}

var (
	// SearchCmd searches and connects a peer.
	SearchCmd = ishell.Cmd{
		Name:    "search",
		Aliases: []string{"s"},
		Help:    "PEER",
		Func: peerCmd(func(ctx context.Context, cli *ipsp.Client, peer ble.Addr) error {
			return cli.Search(ctx, peer)
		}),
	}

	// AdvertiseCmd makes the node connectable.
	AdvertiseCmd = ishell.Cmd{
		Name:    "advertise",
		Aliases: []string{"adv"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Call(c, func(ctx context.Context, cli *ipsp.Client) error {
				return cli.Advertise(ctx)
			})
		},
	}

	// CancelCmd cancels search or connect.
	CancelCmd = ishell.Cmd{
		Name: "cancel",
		Help: "PEER",
		Func: peerCmd(func(ctx context.Context, cli *ipsp.Client, peer ble.Addr) error {
			return cli.Cancel(ctx, peer)
		}),
	}

	// DisconnectCmd disconnects a link.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "PEER",
		Func: peerCmd(func(ctx context.Context, cli *ipsp.Client, peer ble.Addr) error {
			return cli.Disconnect(ctx, peer)
		}),
	}

	// SendCmd sends data on a ready link.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"tx"},
		Help:    "PEER TEXT... | PEER -x HEX",
		Func: func(c *ishell.Context) {
			peer, err := ParsePeer(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			data, err := ParsePayload(c.Args[1:])
			if err != nil {
				c.Err(err)
				return
			}
			ShellFrom(c).Call(c, func(ctx context.Context, cli *ipsp.Client) error {
				return cli.Send(ctx, peer, data)
			})
		},
	}

	// LinksCmd lists links.
	LinksCmd = ishell.Cmd{
		Name:    "links",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
			defer cancel()
			links, err := s.Env.Client.Links(ctx)
			if err != nil {
				c.Err(err)
				return
			}
			role := s.Env.Orchestrator.Config().Role
			if s.OutputJSON {
				var m jsonpb.Marshaler
				for _, info := range links {
					out, err := m.MarshalToString(mqtt.StatusFromLink(info.Link, role, info.Channel))
					if err != nil {
						c.Err(err)
						return
					}
					c.Println(out)
				}
				return
			}
			if len(links) == 0 {
				c.Println("No links")
				return
			}
			for _, info := range links {
				c.Println(FormatLinkInfo(info))
			}
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig()).Run(flag.Args()...)
}
