// Package msgs defines the protobuf messages published for links.
package msgs

import (
	"github.com/golang/protobuf/proto"
)

// Failure kinds carried by LinkFailure.
const (
	FailureConnectTimeout    = "connect-timeout"
	FailureConnectRejected   = "connect-rejected"
	FailureNegotiation       = "negotiation-failed"
	FailureProtocolViolation = "protocol-violation"
	FailureOther             = "other"
)

// LinkStatus reflects the state of one link and its channel.
type LinkStatus struct {
	Peer         string   `protobuf:"bytes,1,opt,name=peer,proto3" json:"peer,omitempty"`
	Role         string   `protobuf:"bytes,2,opt,name=role,proto3" json:"role,omitempty"`
	State        string   `protobuf:"bytes,3,opt,name=state,proto3" json:"state,omitempty"`
	Handle       uint32   `protobuf:"varint,4,opt,name=handle,proto3" json:"handle,omitempty"`
	Mtu          uint32   `protobuf:"varint,5,opt,name=mtu,proto3" json:"mtu,omitempty"`
	Services     []uint32 `protobuf:"varint,6,rep,packed,name=services,proto3" json:"services,omitempty"`
	ChannelReady bool     `protobuf:"varint,7,opt,name=channel_ready,proto3" json:"channel_ready,omitempty"`
	LocalCredits uint32   `protobuf:"varint,8,opt,name=local_credits,proto3" json:"local_credits,omitempty"`
	PeerCredits  uint32   `protobuf:"varint,9,opt,name=peer_credits,proto3" json:"peer_credits,omitempty"`
	QueuedBytes  uint32   `protobuf:"varint,10,opt,name=queued_bytes,proto3" json:"queued_bytes,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *LinkStatus) ProtoMessage() {}

// Reset implements proto.Message.
func (m *LinkStatus) Reset() { *m = LinkStatus{} }

// String implements proto.Message.
func (m *LinkStatus) String() string { return proto.CompactTextString(m) }

// LinkFailure reports a failure surfaced on a link.
type LinkFailure struct {
	Peer   string `protobuf:"bytes,1,opt,name=peer,proto3" json:"peer,omitempty"`
	Kind   string `protobuf:"bytes,2,opt,name=kind,proto3" json:"kind,omitempty"`
	Reason string `protobuf:"bytes,3,opt,name=reason,proto3" json:"reason,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *LinkFailure) ProtoMessage() {}

// Reset implements proto.Message.
func (m *LinkFailure) Reset() { *m = LinkFailure{} }

// String implements proto.Message.
func (m *LinkFailure) String() string { return proto.CompactTextString(m) }
