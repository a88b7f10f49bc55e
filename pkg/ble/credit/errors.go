package credit

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelNotReady indicates the channel is not activated or torn down.
	ErrChannelNotReady = errors.New("channel not ready")
	// ErrAlreadyActive indicates Activate is called on an active channel.
	ErrAlreadyActive = errors.New("channel already active")
)

// ProtocolViolation is raised when the peer breaks credit accounting.
// Credit integrity cannot be trusted afterwards.
type ProtocolViolation struct {
	Reason string
}

// Error implements error.
func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Reason)
}

func violation(format string, args ...interface{}) *ProtocolViolation {
	return &ProtocolViolation{Reason: fmt.Sprintf(format, args...)}
}
