package link

import (
	"errors"
	"fmt"

	"github.com/robotalks/ipsp.go/pkg/ble"
)

var (
	// ErrConnectTimeout indicates no connection was established in time.
	// The link is back to Idle.
	ErrConnectTimeout = errors.New("connect timeout")
	// ErrWrongRole indicates the operation is not defined for the link role.
	ErrWrongRole = errors.New("operation not supported by role")
	// ErrBusy indicates the link is not Idle.
	ErrBusy = errors.New("link busy")
	// ErrNotCancellable indicates cancel outside Discovering or Connecting.
	ErrNotCancellable = errors.New("link not cancellable")
)

// Procedures that may fail negotiation.
const (
	ProcMTUExchange      = "mtu-exchange"
	ProcServiceDiscovery = "service-discovery"
)

// NegotiationError indicates a negotiation step failed after one retry.
type NegotiationError struct {
	Procedure string
	Status    ble.Status
	Timeout   bool
}

// Error implements error.
func (e *NegotiationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("negotiation failed: %s timeout", e.Procedure)
	}
	return fmt.Sprintf("negotiation failed: %s status %d", e.Procedure, e.Status)
}

// ConnectError indicates the stack rejected the connection.
// The link is back to Idle.
type ConnectError struct {
	Status ble.Status
}

// Error implements error.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed: status %d", e.Status)
}
