// Package credit implements credit based flow control for a bulk data
// channel bound to one link.
//
// Every outbound segment consumes one peer credit and nothing is sent
// while the peer balance is zero; the producer may enqueue freely and
// transmission follows credit availability. Every inbound segment
// consumes one local credit; a segment without a granted credit is a
// ProtocolViolation. When the local balance falls to the watermark a
// replenishment grant is scheduled and emitted by Flush.
package credit
