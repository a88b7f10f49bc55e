package mqtt

import (
	"context"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/ipsp.go/pkg/ble"
	"github.com/robotalks/ipsp.go/pkg/ble/credit"
	"github.com/robotalks/ipsp.go/pkg/ble/link"
	fx "github.com/robotalks/ipsp.go/pkg/framework"
	"github.com/robotalks/ipsp.go/pkg/ipsp"
	"github.com/robotalks/ipsp.go/pkg/msgs"
)

// Topic suffixes under <prefix><peer>/.
const (
	TopicStatus  = "status"
	TopicFailure = "failure"
	TopicRx      = "rx"
	TopicTx      = "tx"
)

// DefaultStatusInterval is how often channel counters are republished.
const DefaultStatusInterval = time.Second

// DefaultSendTimeout bounds a tx message waiting for the loop.
const DefaultSendTimeout = time.Second

// PeerTopic returns the topic of peer with suffix.
func PeerTopic(peer ble.Addr, suffix string) string {
	return peer.Compact() + "/" + suffix
}

// Sender enqueues data on a link from other goroutines.
type Sender interface {
	Send(ctx context.Context, peer ble.Addr, data []byte) error
}

// LinkLister lists the links on the loop goroutine.
type LinkLister interface {
	Links() []ipsp.LinkInfo
}

// Bridge publishes link activity and feeds tx messages into links.
type Bridge struct {
	Queue          *Queue
	Sender         Sender
	Links          LinkLister
	Role           ble.Role
	StatusInterval time.Duration
	SendTimeout    time.Duration

	lastStatus  map[ble.Addr]*msgs.LinkStatus
	lastPublish time.Time
	txSub       *Subscription
}

// NewBridge creates a Bridge.
func NewBridge(q *Queue, role ble.Role, sender Sender, links LinkLister) *Bridge {
	return &Bridge{
		Queue:          q,
		Sender:         sender,
		Links:          links,
		Role:           role,
		StatusInterval: DefaultStatusInterval,
		SendTimeout:    DefaultSendTimeout,
		lastStatus:     make(map[ble.Addr]*msgs.LinkStatus),
	}
}

// Subscribe subscribes the tx topics of all peers.
func (b *Bridge) Subscribe() {
	if b.txSub == nil {
		b.txSub = b.Queue.Sub("+/"+TopicTx, b.handleTx)
	}
}

// Close unsubscribes and disconnects from the broker.
func (b *Bridge) Close() error {
	if b.txSub != nil {
		b.txSub.Close()
		b.txSub = nil
	}
	return b.Queue.Close()
}

// Run implements fx.Runnable: connects, subscribes and waits until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	b.Subscribe()
	token := b.Queue.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	<-ctx.Done()
	b.Close()
	return ctx.Err()
}

// AddToLoop implements fx.LoopAdder.
func (b *Bridge) AddToLoop(l *fx.Loop) {
	l.AddController(fx.PrLvOutput, b)
	l.AddRunnable(fx.NamedRun("mqtt", b))
}

// Control implements fx.Controller, republishing statuses whose
// channel counters changed.
func (b *Bridge) Control(cc fx.ControlContext) error {
	if b.Links == nil {
		return nil
	}
	now := cc.Time()
	if now.Sub(b.lastPublish) < b.StatusInterval {
		return nil
	}
	b.lastPublish = now
	for _, info := range b.Links.Links() {
		if !info.Peer.IsZero() {
			b.publishStatus(info.Peer, StatusFromLink(info.Link, b.Role, info.Channel))
		}
	}
	return nil
}

// LinkStateChanged implements ipsp.Listener.
func (b *Bridge) LinkStateChanged(l link.Link, from link.State) {
	if l.Peer.IsZero() {
		return
	}
	var ch credit.Snapshot
	if b.Links != nil {
		for _, info := range b.Links.Links() {
			if info.Peer == l.Peer {
				ch = info.Channel
			}
		}
	}
	b.publishStatus(l.Peer, StatusFromLink(l, b.Role, ch))
}

// LinkFailed implements ipsp.Listener.
func (b *Bridge) LinkFailed(peer ble.Addr, err error) {
	if peer.IsZero() {
		return
	}
	b.publishFailure(peer, FailureKind(err), err.Error())
}

// DataReceived implements ipsp.Listener.
func (b *Bridge) DataReceived(peer ble.Addr, data []byte) {
	b.Queue.Pub(PeerTopic(peer, TopicRx), data)
}

func (b *Bridge) publishStatus(peer ble.Addr, status *msgs.LinkStatus) {
	if last := b.lastStatus[peer]; last != nil && proto.Equal(last, status) {
		return
	}
	b.lastStatus[peer] = status
	if err := b.Queue.PubMsg(PeerTopic(peer, TopicStatus), status, true); err != nil {
		glog.Errorf("publish status: %v", err)
	}
}

func (b *Bridge) handleTx(topic string, payload []byte) {
	items := strings.Split(topic, "/")
	if len(items) != 2 {
		return
	}
	peer, err := ble.ParseAddr(items[0])
	if err != nil {
		glog.Warningf("tx topic %q: %v", topic, err)
		return
	}
	data := append([]byte(nil), payload...)
	ctx, cancel := context.WithTimeout(context.Background(), b.SendTimeout)
	defer cancel()
	if err := b.Sender.Send(ctx, peer, data); err != nil {
		glog.Warningf("tx %s: %v", peer, err)
		b.publishFailure(peer, FailureKind(err), "tx: "+err.Error())
	}
}

func (b *Bridge) publishFailure(peer ble.Addr, kind, reason string) {
	msg := &msgs.LinkFailure{Peer: peer.String(), Kind: kind, Reason: reason}
	if err := b.Queue.PubMsg(PeerTopic(peer, TopicFailure), msg, false); err != nil {
		glog.Errorf("publish failure: %v", err)
	}
}

// StatusFromLink builds the status message of a link.
func StatusFromLink(l link.Link, role ble.Role, ch credit.Snapshot) *msgs.LinkStatus {
	status := &msgs.LinkStatus{
		Peer:         l.Peer.String(),
		Role:         role.String(),
		State:        l.State.String(),
		Handle:       uint32(l.Handle),
		Mtu:          uint32(l.MTU),
		ChannelReady: ch.Active,
		LocalCredits: ch.LocalCredits,
		PeerCredits:  ch.PeerCredits,
		QueuedBytes:  uint32(ch.QueuedBytes),
	}
	for _, s := range l.Services {
		status.Services = append(status.Services, uint32(s))
	}
	return status
}

// FailureKind classifies errors surfaced on links.
func FailureKind(err error) string {
	switch err.(type) {
	case *credit.ProtocolViolation:
		return msgs.FailureProtocolViolation
	case *link.NegotiationError:
		return msgs.FailureNegotiation
	case *link.ConnectError:
		return msgs.FailureConnectRejected
	}
	if err == link.ErrConnectTimeout {
		return msgs.FailureConnectTimeout
	}
	return msgs.FailureOther
}
