package ble

import "fmt"

// Command is an outbound request to the stack.
type Command interface {
	isCommand()
}

// Stack is the command sink of the external BLE stack.
// Do must not block the event loop.
type Stack interface {
	Do(Command) error
}

// DoFunc is the func form of Stack.
type DoFunc func(Command) error

// Do implements Stack.
func (f DoFunc) Do(cmd Command) error {
	return f(cmd)
}

// StartDiscovery starts scanning; only results from Filter matter to the caller.
type StartDiscovery struct {
	Filter Addr
}

// StopDiscovery stops scanning.
type StopDiscovery struct{}

// StartAdvertising makes the acceptor connectable.
type StartAdvertising struct{}

// Connect initiates a connection to Peer.
type Connect struct {
	Peer Addr
}

// Disconnect terminates a connection.
type Disconnect struct {
	Handle Handle
	Reason uint8
}

// RequestMTUExchange proposes MTU to the peer.
type RequestMTUExchange struct {
	Handle Handle
	MTU    uint16
}

// RespondMTUExchange answers a peer MTU exchange.
type RespondMTUExchange struct {
	Handle Handle
	MTU    uint16
}

// StartServiceDiscovery discovers the peer's services.
type StartServiceDiscovery struct {
	Handle Handle
}

// EnableNotifications writes the client characteristic configuration to
// enable notifications of the discovered services.
type EnableNotifications struct {
	Handle Handle
}

// SendSegment transmits one segment on a credit based channel.
type SendSegment struct {
	Handle  Handle
	Channel ChannelID
	Data    []byte
}

// GrantCredits grants the peer additional credits on a channel.
type GrantCredits struct {
	Handle  Handle
	Channel ChannelID
	Credits uint16
}

// Disconnect reasons.
const (
	ReasonRemoteUserTerminated uint8 = 0x13
	ReasonLocalHostTerminated  uint8 = 0x16
)

func (StartDiscovery) isCommand()        {}
func (StopDiscovery) isCommand()         {}
func (StartAdvertising) isCommand()      {}
func (Connect) isCommand()               {}
func (Disconnect) isCommand()            {}
func (RequestMTUExchange) isCommand()    {}
func (RespondMTUExchange) isCommand()    {}
func (StartServiceDiscovery) isCommand() {}
func (EnableNotifications) isCommand()   {}
func (SendSegment) isCommand()           {}
func (GrantCredits) isCommand()          {}

func (c StartDiscovery) String() string   { return fmt.Sprintf("start-discovery(%s)", c.Filter) }
func (c StopDiscovery) String() string    { return "stop-discovery()" }
func (c StartAdvertising) String() string { return "start-advertising()" }
func (c Connect) String() string          { return fmt.Sprintf("connect(%s)", c.Peer) }
func (c Disconnect) String() string       { return fmt.Sprintf("disconnect(%#04x)", c.Handle) }
func (c RequestMTUExchange) String() string {
	return fmt.Sprintf("request-mtu-exchange(%#04x, %d)", c.Handle, c.MTU)
}
func (c RespondMTUExchange) String() string {
	return fmt.Sprintf("respond-mtu-exchange(%#04x, %d)", c.Handle, c.MTU)
}
func (c StartServiceDiscovery) String() string {
	return fmt.Sprintf("start-service-discovery(%#04x)", c.Handle)
}
func (c EnableNotifications) String() string {
	return fmt.Sprintf("enable-notifications(%#04x)", c.Handle)
}
func (c SendSegment) String() string {
	return fmt.Sprintf("send-segment(%#04x, %#04x, %d bytes)", c.Handle, c.Channel, len(c.Data))
}
func (c GrantCredits) String() string {
	return fmt.Sprintf("grant-credits(%#04x, %#04x, %d)", c.Handle, c.Channel, c.Credits)
}
