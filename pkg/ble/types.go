package ble

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddrLen is the size of a device address in bytes.
const AddrLen = 6

// Addr is a device address in display order (most significant byte first).
type Addr [AddrLen]byte

// ParseAddr parses the colon separated form, e.g. AA:BB:CC:DD:EE:01.
// The compact form without separators is accepted as well.
func ParseAddr(s string) (a Addr, err error) {
	compact := strings.Replace(s, ":", "", -1)
	if len(compact) != AddrLen*2 {
		return a, fmt.Errorf("invalid address %q", s)
	}
	b, err := hex.DecodeString(compact)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %v", s, err)
	}
	copy(a[:], b)
	return a, nil
}

// MustParseAddr parses an address and panics on error.
func MustParseAddr(s string) Addr {
	a, err := ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String implements fmt.Stringer.
func (a Addr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Compact returns lower-case hex without separators.
func (a Addr) Compact() string {
	return hex.EncodeToString(a[:])
}

// IsZero indicates the address is unset.
func (a Addr) IsZero() bool {
	return a == Addr{}
}

// Handle is the connection handle assigned by the stack on connect.
type Handle uint16

// ChannelID identifies a credit based channel on a connection.
type ChannelID uint16

// ServiceHandle is an opaque handle of a discovered service.
type ServiceHandle uint16

// Status is the completion status of a stack procedure.
type Status uint8

// StatusSuccess is the only successful procedure status.
const StatusSuccess Status = 0

// OK indicates the procedure succeeded.
func (s Status) OK() bool {
	return s == StatusSuccess
}

// Role is the part a device plays on a link.
type Role int

const (
	// Initiator searches for and connects to a peer (GAP central, IPSP router).
	Initiator Role = iota
	// Acceptor advertises and accepts inbound connections (GAP peripheral, IPSP node).
	Acceptor
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Acceptor:
		return "acceptor"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ParseRole accepts initiator/acceptor and the IPSP and GAP aliases.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "initiator", "router", "central":
		return Initiator, nil
	case "acceptor", "node", "peripheral":
		return Acceptor, nil
	}
	return Initiator, fmt.Errorf("unknown role %q", s)
}
