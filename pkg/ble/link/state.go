package link

import (
	"fmt"

	"github.com/robotalks/ipsp.go/pkg/ble"
)

// State is the lifecycle state of a Link.
type State int

// States
const (
	Idle State = iota
	Discovering
	Connecting
	Connected
	NegotiatingMTU
	DiscoveringServices
	Ready
	Disconnected
)

var stateNames = [...]string{
	Idle:                "Idle",
	Discovering:         "Discovering",
	Connecting:          "Connecting",
	Connected:           "Connected",
	NegotiatingMTU:      "NegotiatingMtu",
	DiscoveringServices: "DiscoveringServices",
	Ready:               "Ready",
	Disconnected:        "Disconnected",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// transitions is the complete transition graph.
var transitions = map[State][]State{
	Idle:                {Discovering, Connected},
	Discovering:         {Connecting, Idle, Disconnected},
	Connecting:          {Connected, Idle, Disconnected},
	Connected:           {NegotiatingMTU, DiscoveringServices, Ready, Disconnected},
	NegotiatingMTU:      {DiscoveringServices, Disconnected},
	DiscoveringServices: {Ready, Disconnected},
	Ready:               {Disconnected},
	Disconnected:        {Idle},
}

// CanTransition indicates from -> to is an edge of the transition graph.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Link is one radio connection, as seen from the outside of a Machine.
type Link struct {
	Peer     ble.Addr
	Role     ble.Role
	State    State
	Handle   ble.Handle
	MTU      uint16 // zero until negotiated
	Services []ble.ServiceHandle
}

// HasHandle indicates the stack assigned a connection handle.
func (l Link) HasHandle() bool {
	switch l.State {
	case Connected, NegotiatingMTU, DiscoveringServices, Ready:
		return true
	}
	return false
}

// Observer is notified after every state change.
type Observer interface {
	LinkStateChanged(link Link, from State)
}

// StateChangedFunc is the func form of Observer.
type StateChangedFunc func(Link, State)

// LinkStateChanged implements Observer.
func (f StateChangedFunc) LinkStateChanged(link Link, from State) {
	f(link, from)
}
