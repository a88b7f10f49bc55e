// Package link implements the lifecycle of one radio link, from discovery
// through connection, MTU negotiation and service discovery to ready, and
// back to idle on disconnect.
//
// A Machine is driven exclusively by stack events. HandleEvent applies the
// transition an event causes; Advance runs entry actions of pass-through
// states (e.g. issuing the MTU request once Connected). Timeouts are
// measured against ble.Tick events, nothing blocks.
package link
