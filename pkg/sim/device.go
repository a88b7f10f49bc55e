// Package sim simulates a co-processor with a single IPSP peer in range.
package sim

import (
	"context"
	"io"
	"net"

	"github.com/golang/glog"

	"github.com/robotalks/ipsp.go/pkg/ble"
	"github.com/robotalks/ipsp.go/pkg/ipsp"
	"github.com/robotalks/ipsp.go/pkg/stack"
	"github.com/robotalks/ipsp.go/pkg/stack/wire"
)

// AdvPayload is advertised by the peer: general discoverable flags and
// the Internet Protocol Support service UUID 0x1820.
var AdvPayload = []byte{0x02, 0x01, 0x06, 0x03, 0x03, 0x20, 0x18}

// Peer describes the simulated remote device.
type Peer struct {
	Addr     ble.Addr
	MTU      uint16
	Services []ble.ServiceHandle
	// Credits are granted by both sides when the channel starts.
	Credits uint16
	// Echo sends received segments back.
	Echo bool
}

// Device answers commands of one host stream on behalf of Peer.
type Device struct {
	Peer Peer

	fifo       *wire.FIFO
	handle     ble.Handle
	lastHandle ble.Handle
	channel    ble.ChannelID
	credits    uint32 // credits granted by the host
	consumed   uint16
	echo       [][]byte
}

// NewDevice creates a Device over rw.
func NewDevice(p Peer, rw io.ReadWriter) *Device {
	d := &Device{Peer: p, fifo: wire.NewFIFO(rw), lastHandle: 0x3f}
	d.fifo.Handler = d
	return d
}

// FIFO gets the wrapped FIFO.
func (d *Device) FIFO() *wire.FIFO {
	return d.fifo
}

// Run implements fx.Runnable.
func (d *Device) Run(ctx context.Context) error {
	return d.fifo.Run(ctx)
}

// HandlePacket implements wire.PacketHandler.
func (d *Device) HandlePacket(ctx context.Context, pkt *wire.Packet) {
	cmd, err := stack.DecodeCommand(pkt)
	if err != nil {
		glog.Warningf("sim: %v", err)
		return
	}
	glog.V(4).Infof("sim CMD %v", cmd)
	for _, ev := range d.Handle(cmd) {
		out, err := stack.EncodeEvent(ev)
		if err == nil {
			err = d.fifo.Send(out)
		}
		if err != nil {
			glog.Warningf("sim: send %v: %v", ev, err)
			return
		}
		glog.V(4).Infof("sim EVT %v", ev)
	}
}

// Handle applies cmd and returns the events the co-processor reports.
func (d *Device) Handle(cmd ble.Command) []ble.Event {
	switch c := cmd.(type) {
	case ble.StartDiscovery:
		if c.Filter.IsZero() || c.Filter == d.Peer.Addr {
			return []ble.Event{ble.DiscoveryResult{Peer: d.Peer.Addr, Payload: AdvPayload}}
		}
	case ble.Connect:
		if c.Peer != d.Peer.Addr || d.handle != 0 {
			return []ble.Event{ble.ConnectionEstablished{Peer: c.Peer, Status: StatusConnectFailed}}
		}
		return []ble.Event{ble.ConnectionEstablished{Handle: d.connect(), Peer: d.Peer.Addr}}
	case ble.StartAdvertising:
		if d.handle != 0 {
			return nil
		}
		h := d.connect()
		return []ble.Event{
			ble.ConnectionEstablished{Handle: h, Peer: d.Peer.Addr},
			ble.MTUExchangeRequest{Handle: h, MTU: d.Peer.MTU},
		}
	case ble.Disconnect:
		if c.Handle == d.handle && d.handle != 0 {
			d.handle = 0
			return []ble.Event{ble.Disconnected{Handle: c.Handle, Reason: ble.ReasonLocalHostTerminated}}
		}
	case ble.RequestMTUExchange:
		if c.Handle == d.handle {
			return []ble.Event{ble.MTUExchangeResponse{Handle: c.Handle, MTU: d.Peer.MTU}}
		}
	case ble.StartServiceDiscovery:
		if c.Handle == d.handle {
			return []ble.Event{ble.ServiceDiscoveryComplete{Handle: c.Handle, Services: d.Peer.Services}}
		}
	case ble.SendSegment:
		if c.Handle != d.handle {
			break
		}
		d.channel = c.Channel
		if d.Peer.Echo {
			d.echo = append(d.echo, append([]byte(nil), c.Data...))
		}
		evs := d.drain()
		d.consumed++
		if d.consumed >= d.Peer.Credits/2 {
			evs = append(evs, ble.PeerCreditUpdate{Handle: c.Handle, Channel: c.Channel, Credits: d.consumed})
			d.consumed = 0
		}
		return evs
	case ble.GrantCredits:
		if c.Handle == d.handle {
			d.channel = c.Channel
			d.credits += uint32(c.Credits)
			return d.drain()
		}
	}
	return nil
}

// Drop simulates the peer going out of range.
func (d *Device) Drop() []ble.Event {
	if d.handle == 0 {
		return nil
	}
	h := d.handle
	d.handle = 0
	return []ble.Event{ble.Disconnected{Handle: h, Reason: ble.ReasonRemoteUserTerminated}}
}

func (d *Device) connect() ble.Handle {
	d.lastHandle++
	d.handle = d.lastHandle
	d.channel = ipsp.DefaultChannelID
	d.credits, d.consumed = uint32(d.Peer.Credits), 0
	d.echo = nil
	return d.handle
}

func (d *Device) drain() (evs []ble.Event) {
	for d.credits > 0 && len(d.echo) > 0 {
		evs = append(evs, ble.ChannelData{Handle: d.handle, Channel: d.channel, Data: d.echo[0]})
		d.echo = d.echo[1:]
		d.credits--
	}
	return
}

// Serve runs a Device for each accepted connection until ctx is done.
func Serve(ctx context.Context, ln net.Listener, p Peer) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		glog.Infof("sim: host connected from %s", conn.RemoteAddr())
		go func() {
			defer conn.Close()
			if err := NewDevice(p, conn).Run(ctx); err != nil && err != context.Canceled {
				glog.Warningf("sim: host %s: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}
