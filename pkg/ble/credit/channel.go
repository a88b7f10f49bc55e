package credit

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/ipsp.go/pkg/ble"
)

// MaxCredits is the largest credit balance a peer may hold.
const MaxCredits uint32 = 65535

// SegmentHeaderSize is the per-segment overhead subtracted from the MTU.
const SegmentHeaderSize = 2

// MaxSegmentForMTU derives the maximum payload bytes per segment.
func MaxSegmentForMTU(mtu uint16) int {
	if int(mtu) <= SegmentHeaderSize {
		return 0
	}
	return int(mtu) - SegmentHeaderSize
}

// Channel is a credit based channel. It is driven from the event loop
// and is not safe for concurrent use.
type Channel struct {
	Handle ble.Handle
	ID     ble.ChannelID
	Stack  ble.Stack

	// Watermark is the local balance at or below which replenishment is
	// scheduled. Zero at activation means half the initial local grant.
	Watermark uint32

	link       ble.Addr
	active     bool
	initial    uint32
	local      uint32
	peer       uint32
	maxSegment int
	queue      [][]byte
	replenish  bool
	sent       uint64
	received   uint64
}

// Snapshot is a copy of the channel counters.
type Snapshot struct {
	Active         bool
	LocalCredits   uint32
	PeerCredits    uint32
	MaxSegment     int
	QueuedBuffers  int
	QueuedBytes    int
	SegmentsSent   uint64
	SegmentsRecvd  uint64
	ReplenishSched bool
}

// NewChannel creates an inactive channel for a connection.
func NewChannel(stack ble.Stack, handle ble.Handle, id ble.ChannelID) *Channel {
	return &Channel{Handle: handle, ID: id, Stack: stack}
}

// Link returns the identity of the bound link.
func (c *Channel) Link() ble.Addr {
	return c.link
}

// Active indicates the channel is activated and not torn down.
func (c *Channel) Active() bool {
	return c.active
}

// LocalCredits is the number of segments the peer may still send.
func (c *Channel) LocalCredits() uint32 {
	return c.local
}

// PeerCredits is the number of segments that may still be sent.
func (c *Channel) PeerCredits() uint32 {
	return c.peer
}

// MaxSegment is the maximum payload bytes per segment.
func (c *Channel) MaxSegment() int {
	return c.maxSegment
}

// ReplenishScheduled indicates a grant is waiting for Flush.
func (c *Channel) ReplenishScheduled() bool {
	return c.replenish
}

// Snapshot returns the current counters.
func (c *Channel) Snapshot() Snapshot {
	s := Snapshot{
		Active:         c.active,
		LocalCredits:   c.local,
		PeerCredits:    c.peer,
		MaxSegment:     c.maxSegment,
		QueuedBuffers:  len(c.queue),
		SegmentsSent:   c.sent,
		SegmentsRecvd:  c.received,
		ReplenishSched: c.replenish,
	}
	for _, buf := range c.queue {
		s.QueuedBytes += len(buf)
	}
	return s
}

// Activate starts the channel for link with the initial grants.
func (c *Channel) Activate(link ble.Addr, localCredits, peerCredits uint32, maxSegment int) error {
	if c.active {
		return ErrAlreadyActive
	}
	if maxSegment <= 0 {
		return fmt.Errorf("invalid max segment size %d", maxSegment)
	}
	if localCredits > MaxCredits || peerCredits > MaxCredits {
		return fmt.Errorf("initial credits exceed %d", MaxCredits)
	}
	c.link, c.active = link, true
	c.initial, c.local, c.peer = localCredits, localCredits, peerCredits
	c.maxSegment = maxSegment
	if c.Watermark == 0 {
		c.Watermark = localCredits / 2
	}
	c.queue, c.replenish = nil, false
	glog.Infof("channel %#04x on %s active: local=%d peer=%d watermark=%d mps=%d",
		c.ID, link, c.local, c.peer, c.Watermark, c.maxSegment)
	return nil
}

// EnqueueSend appends data to the outbound queue and transmits as far as
// peer credits allow. The buffer must not be modified after the call.
func (c *Channel) EnqueueSend(data []byte) error {
	if !c.active {
		return ErrChannelNotReady
	}
	if len(data) > 0 {
		c.queue = append(c.queue, data)
	}
	return c.drain()
}

// OnPeerCreditsReceived adds n credits granted by the peer and drains the queue.
func (c *Channel) OnPeerCreditsReceived(n uint32) error {
	if !c.active {
		return ErrChannelNotReady
	}
	if n > MaxCredits-c.peer {
		return violation("peer credits %d+%d exceed %d", c.peer, n, MaxCredits)
	}
	c.peer += n
	return c.drain()
}

// OnSegmentReceived accounts one inbound segment against the local balance.
func (c *Channel) OnSegmentReceived(data []byte) error {
	if !c.active {
		return ErrChannelNotReady
	}
	if c.local == 0 {
		return violation("segment received without credit")
	}
	if len(data) > c.maxSegment {
		return violation("segment of %d bytes exceeds %d", len(data), c.maxSegment)
	}
	c.local--
	c.received++
	if !c.replenish && c.local <= c.Watermark {
		c.replenish = true
		glog.V(2).Infof("channel %#04x on %s: local credits %d, replenish scheduled", c.ID, c.link, c.local)
	}
	return nil
}

// Flush emits a scheduled replenishment, granting the peer back up to the
// initial local credits.
func (c *Channel) Flush() error {
	if !c.active || !c.replenish {
		return nil
	}
	if n := c.initial - c.local; n > 0 {
		if err := c.Stack.Do(ble.GrantCredits{Handle: c.Handle, Channel: c.ID, Credits: uint16(n)}); err != nil {
			return err
		}
		c.local += n
	}
	c.replenish = false
	return nil
}

// Teardown drops queued data and deactivates the channel.
func (c *Channel) Teardown() {
	if c.active {
		glog.Infof("channel %#04x on %s torn down, %d buffers dropped", c.ID, c.link, len(c.queue))
	}
	c.active, c.replenish = false, false
	c.local, c.peer = 0, 0
	c.queue = nil
}

func (c *Channel) drain() error {
	for c.peer > 0 && len(c.queue) > 0 {
		head := c.queue[0]
		n := len(head)
		if n > c.maxSegment {
			n = c.maxSegment
		}
		if err := c.Stack.Do(ble.SendSegment{Handle: c.Handle, Channel: c.ID, Data: head[:n]}); err != nil {
			return err
		}
		c.peer--
		c.sent++
		if n == len(head) {
			c.queue[0] = nil
			c.queue = c.queue[1:]
		} else {
			c.queue[0] = head[n:]
		}
	}
	if len(c.queue) > 0 {
		glog.V(2).Infof("channel %#04x on %s: out of peer credits, %d buffers pending", c.ID, c.link, len(c.queue))
	}
	return nil
}
