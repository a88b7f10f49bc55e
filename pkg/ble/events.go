package ble

import (
	"fmt"
	"time"
)

// Event is an inbound notification from the stack.
// Concrete types are the structs below; dispatch with a type switch.
type Event interface {
	isEvent()
}

// DiscoveryResult reports an advertising peer seen while discovering.
type DiscoveryResult struct {
	Peer    Addr
	Payload []byte
}

// ConnectionEstablished reports the outcome of a connect, or an inbound
// connection for the acceptor.
type ConnectionEstablished struct {
	Handle Handle
	Peer   Addr
	Status Status
}

// Disconnected reports the connection is gone.
type Disconnected struct {
	Handle Handle
	Reason uint8
}

// MTUExchangeRequest is an MTU exchange initiated by the peer.
type MTUExchangeRequest struct {
	Handle Handle
	MTU    uint16
}

// MTUExchangeResponse completes a locally requested MTU exchange.
// MTU is the value offered by the peer.
type MTUExchangeResponse struct {
	Handle Handle
	MTU    uint16
	Status Status
}

// ServiceDiscoveryComplete completes service discovery.
type ServiceDiscoveryComplete struct {
	Handle   Handle
	Status   Status
	Services []ServiceHandle
}

// PeerCreditUpdate grants additional credits from the peer.
type PeerCreditUpdate struct {
	Handle  Handle
	Channel ChannelID
	Credits uint16
}

// ChannelData carries one segment received on a credit based channel.
type ChannelData struct {
	Handle  Handle
	Channel ChannelID
	Data    []byte
}

// Tick is the periodic time source driving timeouts.
type Tick struct {
	Time time.Time
}

func (DiscoveryResult) isEvent()          {}
func (ConnectionEstablished) isEvent()    {}
func (Disconnected) isEvent()             {}
func (MTUExchangeRequest) isEvent()       {}
func (MTUExchangeResponse) isEvent()      {}
func (ServiceDiscoveryComplete) isEvent() {}
func (PeerCreditUpdate) isEvent()         {}
func (ChannelData) isEvent()              {}
func (Tick) isEvent()                     {}

// String implementations are used in log lines.

func (e DiscoveryResult) String() string { return fmt.Sprintf("discovery-result(%s)", e.Peer) }
func (e ConnectionEstablished) String() string {
	return fmt.Sprintf("connection-established(%#04x, %s, %d)", e.Handle, e.Peer, e.Status)
}
func (e Disconnected) String() string {
	return fmt.Sprintf("disconnected(%#04x, %#02x)", e.Handle, e.Reason)
}
func (e MTUExchangeRequest) String() string {
	return fmt.Sprintf("mtu-exchange-request(%#04x, %d)", e.Handle, e.MTU)
}
func (e MTUExchangeResponse) String() string {
	return fmt.Sprintf("mtu-exchange-response(%#04x, %d, %d)", e.Handle, e.MTU, e.Status)
}
func (e ServiceDiscoveryComplete) String() string {
	return fmt.Sprintf("service-discovery-complete(%#04x, %d)", e.Handle, e.Status)
}
func (e PeerCreditUpdate) String() string {
	return fmt.Sprintf("peer-credit-update(%#04x, %#04x, %d)", e.Handle, e.Channel, e.Credits)
}
func (e ChannelData) String() string {
	return fmt.Sprintf("channel-data(%#04x, %#04x, %d bytes)", e.Handle, e.Channel, len(e.Data))
}
func (e Tick) String() string { return "tick" }
