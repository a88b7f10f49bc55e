package ipsp

import "errors"

var (
	// ErrUnknownLink indicates no link exists for the peer.
	ErrUnknownLink = errors.New("unknown link")
	// ErrNoTarget indicates a search without a peer address.
	ErrNoTarget = errors.New("no target address")
)
