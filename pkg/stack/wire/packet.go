package wire

import (
	"encoding/binary"
	"io"
	"time"
)

// MaxDataLen is the largest data length of a single packet. It fits a
// full L2CAP segment for the largest ATT MTU in use plus headers.
const MaxDataLen = 1024

// HeaderSize is the size of seq, code and length.
const HeaderSize = 4

// PacketSeq defines the type of packet sequence number.
type PacketSeq byte

// NewPacketSeq creates a random packet sequence number.
func NewPacketSeq() PacketSeq {
	return PacketSeq(byte(time.Now().UnixNano())).Next()
}

// Next calculates the next sequence number.
func (s PacketSeq) Next() PacketSeq {
	n := byte(s) + 1
	if n == 0 || n >= 0xf0 {
		n = 1
	}
	return PacketSeq(n)
}

// IsValid checks if it's a valid sequence number.
func (s PacketSeq) IsValid() bool {
	n := byte(s)
	return n > 0 && n < 0xf0
}

// Packet contains the information of a parsed packet.
type Packet struct {
	Seq  PacketSeq
	Code byte
	Data []byte
}

// Bytes returns encoded bytes for sending.
func (p *Packet) Bytes() []byte {
	b := make([]byte, HeaderSize+len(p.Data))
	b[0], b[1] = byte(p.Seq), p.Code
	binary.LittleEndian.PutUint16(b[2:], uint16(len(p.Data)))
	copy(b[HeaderSize:], p.Data)
	return b
}

// WriteTo writes the encoded packet in a single Write.
func (p *Packet) WriteTo(w io.Writer) (int64, error) {
	if len(p.Data) > MaxDataLen {
		return 0, &DataTooLongError{Len: len(p.Data)}
	}
	n, err := w.Write(p.Bytes())
	return int64(n), err
}
