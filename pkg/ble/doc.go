// Package ble defines the vocabulary shared between the link core and an
// external Bluetooth Low-Energy stack: peer identities, inbound events
// and outbound commands.
//
// The core never talks to a radio directly. A stack adapter delivers
// Events (in arrival order, one at a time) and accepts Commands through
// the Stack interface.
package ble
