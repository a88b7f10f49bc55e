package stack

import (
	"encoding/binary"
	"fmt"

	"github.com/robotalks/ipsp.go/pkg/ble"
	"github.com/robotalks/ipsp.go/pkg/stack/wire"
)

// Command codes, host to co-processor.
const (
	CodeStartDiscovery        byte = 0x01
	CodeStopDiscovery         byte = 0x02
	CodeStartAdvertising      byte = 0x03
	CodeConnect               byte = 0x04
	CodeDisconnect            byte = 0x05
	CodeRequestMTUExchange    byte = 0x06
	CodeRespondMTUExchange    byte = 0x07
	CodeStartServiceDiscovery byte = 0x08
	CodeEnableNotifications   byte = 0x09
	CodeSendSegment           byte = 0x0a
	CodeGrantCredits          byte = 0x0b
)

// Event codes, co-processor to host. Bit 7 is always set.
const (
	CodeEvent                    byte = 0x80
	CodeDiscoveryResult          byte = 0x81
	CodeConnectionEstablished    byte = 0x82
	CodeDisconnected             byte = 0x83
	CodeMTUExchangeRequest       byte = 0x84
	CodeMTUExchangeResponse      byte = 0x85
	CodeServiceDiscoveryComplete byte = 0x86
	CodePeerCreditUpdate         byte = 0x87
	CodeChannelData              byte = 0x88
)

// DecodeError is returned for packets which can't be decoded.
type DecodeError struct {
	Code   byte
	Reason string
}

// Error implements error.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode packet %#02x: %s", e.Code, e.Reason)
}

type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8) *encoder {
	e.buf = append(e.buf, v)
	return e
}

func (e *encoder) u16(v uint16) *encoder {
	e.buf = append(e.buf, byte(v), byte(v>>8))
	return e
}

// addr is written least significant byte first.
func (e *encoder) addr(a ble.Addr) *encoder {
	for i := ble.AddrLen - 1; i >= 0; i-- {
		e.buf = append(e.buf, a[i])
	}
	return e
}

func (e *encoder) bytes(b []byte) *encoder {
	e.buf = append(e.buf, b...)
	return e
}

// EncodeCommand converts a command into a packet.
func EncodeCommand(cmd ble.Command) (*wire.Packet, error) {
	var code byte
	var e encoder
	switch c := cmd.(type) {
	case ble.StartDiscovery:
		code = CodeStartDiscovery
		e.addr(c.Filter)
	case ble.StopDiscovery:
		code = CodeStopDiscovery
	case ble.StartAdvertising:
		code = CodeStartAdvertising
	case ble.Connect:
		code = CodeConnect
		e.addr(c.Peer)
	case ble.Disconnect:
		code = CodeDisconnect
		e.u16(uint16(c.Handle)).u8(c.Reason)
	case ble.RequestMTUExchange:
		code = CodeRequestMTUExchange
		e.u16(uint16(c.Handle)).u16(c.MTU)
	case ble.RespondMTUExchange:
		code = CodeRespondMTUExchange
		e.u16(uint16(c.Handle)).u16(c.MTU)
	case ble.StartServiceDiscovery:
		code = CodeStartServiceDiscovery
		e.u16(uint16(c.Handle))
	case ble.EnableNotifications:
		code = CodeEnableNotifications
		e.u16(uint16(c.Handle))
	case ble.SendSegment:
		code = CodeSendSegment
		e.u16(uint16(c.Handle)).u16(uint16(c.Channel)).bytes(c.Data)
	case ble.GrantCredits:
		code = CodeGrantCredits
		e.u16(uint16(c.Handle)).u16(uint16(c.Channel)).u16(c.Credits)
	default:
		return nil, fmt.Errorf("unsupported command %T", cmd)
	}
	if len(e.buf) > wire.MaxDataLen {
		return nil, &wire.DataTooLongError{Len: len(e.buf)}
	}
	return &wire.Packet{Code: code, Data: e.buf}, nil
}

type decoder struct {
	code byte
	data []byte
	err  error
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if len(d.data) < n {
		d.err = &DecodeError{Code: d.code, Reason: fmt.Sprintf("truncated, need %d more bytes", n-len(d.data))}
		return false
	}
	return true
}

func (d *decoder) u8() (v uint8) {
	if d.need(1) {
		v, d.data = d.data[0], d.data[1:]
	}
	return
}

func (d *decoder) u16() (v uint16) {
	if d.need(2) {
		v, d.data = binary.LittleEndian.Uint16(d.data), d.data[2:]
	}
	return
}

func (d *decoder) addr() (a ble.Addr) {
	if d.need(ble.AddrLen) {
		for i := 0; i < ble.AddrLen; i++ {
			a[ble.AddrLen-1-i] = d.data[i]
		}
		d.data = d.data[ble.AddrLen:]
	}
	return
}

// rest returns a copy of the remaining bytes.
func (d *decoder) rest() []byte {
	if d.err != nil || len(d.data) == 0 {
		return nil
	}
	b := make([]byte, len(d.data))
	copy(b, d.data)
	d.data = nil
	return b
}

// DecodeEvent converts an event packet into ble.Event.
func DecodeEvent(pkt *wire.Packet) (ble.Event, error) {
	if pkt.Code&CodeEvent == 0 {
		return nil, &DecodeError{Code: pkt.Code, Reason: "not an event"}
	}
	d := &decoder{code: pkt.Code, data: pkt.Data}
	var ev ble.Event
	switch pkt.Code {
	case CodeDiscoveryResult:
		ev = ble.DiscoveryResult{Peer: d.addr(), Payload: d.rest()}
	case CodeConnectionEstablished:
		ev = ble.ConnectionEstablished{Handle: ble.Handle(d.u16()), Peer: d.addr(), Status: ble.Status(d.u8())}
	case CodeDisconnected:
		ev = ble.Disconnected{Handle: ble.Handle(d.u16()), Reason: d.u8()}
	case CodeMTUExchangeRequest:
		ev = ble.MTUExchangeRequest{Handle: ble.Handle(d.u16()), MTU: d.u16()}
	case CodeMTUExchangeResponse:
		ev = ble.MTUExchangeResponse{Handle: ble.Handle(d.u16()), MTU: d.u16(), Status: ble.Status(d.u8())}
	case CodeServiceDiscoveryComplete:
		sd := ble.ServiceDiscoveryComplete{Handle: ble.Handle(d.u16()), Status: ble.Status(d.u8())}
		if d.err == nil && len(d.data)%2 != 0 {
			return nil, &DecodeError{Code: pkt.Code, Reason: "odd service list"}
		}
		for d.err == nil && len(d.data) > 0 {
			sd.Services = append(sd.Services, ble.ServiceHandle(d.u16()))
		}
		ev = sd
	case CodePeerCreditUpdate:
		ev = ble.PeerCreditUpdate{Handle: ble.Handle(d.u16()), Channel: ble.ChannelID(d.u16()), Credits: d.u16()}
	case CodeChannelData:
		ev = ble.ChannelData{Handle: ble.Handle(d.u16()), Channel: ble.ChannelID(d.u16()), Data: d.rest()}
	default:
		return nil, &DecodeError{Code: pkt.Code, Reason: "unknown event"}
	}
	if d.err != nil {
		return nil, d.err
	}
	return ev, nil
}

// EncodeEvent converts an event into a packet, the co-processor side of
// DecodeEvent.
func EncodeEvent(ev ble.Event) (*wire.Packet, error) {
	var code byte
	var e encoder
	switch v := ev.(type) {
	case ble.DiscoveryResult:
		code = CodeDiscoveryResult
		e.addr(v.Peer).bytes(v.Payload)
	case ble.ConnectionEstablished:
		code = CodeConnectionEstablished
		e.u16(uint16(v.Handle)).addr(v.Peer).u8(uint8(v.Status))
	case ble.Disconnected:
		code = CodeDisconnected
		e.u16(uint16(v.Handle)).u8(v.Reason)
	case ble.MTUExchangeRequest:
		code = CodeMTUExchangeRequest
		e.u16(uint16(v.Handle)).u16(v.MTU)
	case ble.MTUExchangeResponse:
		code = CodeMTUExchangeResponse
		e.u16(uint16(v.Handle)).u16(v.MTU).u8(uint8(v.Status))
	case ble.ServiceDiscoveryComplete:
		code = CodeServiceDiscoveryComplete
		e.u16(uint16(v.Handle)).u8(uint8(v.Status))
		for _, s := range v.Services {
			e.u16(uint16(s))
		}
	case ble.PeerCreditUpdate:
		code = CodePeerCreditUpdate
		e.u16(uint16(v.Handle)).u16(uint16(v.Channel)).u16(v.Credits)
	case ble.ChannelData:
		code = CodeChannelData
		e.u16(uint16(v.Handle)).u16(uint16(v.Channel)).bytes(v.Data)
	default:
		return nil, fmt.Errorf("unsupported event %T", ev)
	}
	return &wire.Packet{Code: code, Data: e.buf}, nil
}

// DecodeCommand converts a command packet into ble.Command, the
// co-processor side of EncodeCommand.
func DecodeCommand(pkt *wire.Packet) (ble.Command, error) {
	d := &decoder{code: pkt.Code, data: pkt.Data}
	var cmd ble.Command
	switch pkt.Code {
	case CodeStartDiscovery:
		cmd = ble.StartDiscovery{Filter: d.addr()}
	case CodeStopDiscovery:
		cmd = ble.StopDiscovery{}
	case CodeStartAdvertising:
		cmd = ble.StartAdvertising{}
	case CodeConnect:
		cmd = ble.Connect{Peer: d.addr()}
	case CodeDisconnect:
		cmd = ble.Disconnect{Handle: ble.Handle(d.u16()), Reason: d.u8()}
	case CodeRequestMTUExchange:
		cmd = ble.RequestMTUExchange{Handle: ble.Handle(d.u16()), MTU: d.u16()}
	case CodeRespondMTUExchange:
		cmd = ble.RespondMTUExchange{Handle: ble.Handle(d.u16()), MTU: d.u16()}
	case CodeStartServiceDiscovery:
		cmd = ble.StartServiceDiscovery{Handle: ble.Handle(d.u16())}
	case CodeEnableNotifications:
		cmd = ble.EnableNotifications{Handle: ble.Handle(d.u16())}
	case CodeSendSegment:
		cmd = ble.SendSegment{Handle: ble.Handle(d.u16()), Channel: ble.ChannelID(d.u16()), Data: d.rest()}
	case CodeGrantCredits:
		cmd = ble.GrantCredits{Handle: ble.Handle(d.u16()), Channel: ble.ChannelID(d.u16()), Credits: d.u16()}
	default:
		return nil, &DecodeError{Code: pkt.Code, Reason: "unknown command"}
	}
	if d.err != nil {
		return nil, d.err
	}
	return cmd, nil
}
