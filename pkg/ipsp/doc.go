// Package ipsp composes link state machines and credit based channels
// into IPSP links between a Router (initiator) and Nodes (acceptors).
//
// An Orchestrator lives on the event loop. Stack events are routed to the
// link they belong to, a channel is activated when its link becomes Ready
// and torn down when the link goes away. Other goroutines reach the
// Orchestrator through a Client.
package ipsp
