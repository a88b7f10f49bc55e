package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady indicates the FIFO is not synchronized with the peer.
	ErrNotReady = errors.New("not ready")
)

// DataTooLongError is returned when a packet carries more than MaxDataLen bytes.
type DataTooLongError struct {
	Len int
}

// Error implements error.
func (e *DataTooLongError) Error() string {
	return fmt.Sprintf("packet data too long: %d > %d", e.Len, MaxDataLen)
}
