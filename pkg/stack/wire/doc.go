// Package wire frames packets exchanged with the BLE co-processor.
package wire

// Every packet is laid out as
//
//	seq code len(2, little endian) data...
//
// where seq runs from 1 to 0xef and increases by one for every packet
// sent in one direction. A byte out of sequence on the receiving side
// triggers resynchronization: SYNC_REQ (0xff) followed by the sender's
// next seq, answered with SYNC_ACK (0xfe) and the answering side's seq.
//
// There is no checksum. The transport (TCP, websocket, or a serial port
// with parity) is expected to catch bit errors.
