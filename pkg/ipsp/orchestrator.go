package ipsp

import (
	"sort"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/ipsp.go/pkg/ble"
	"github.com/robotalks/ipsp.go/pkg/ble/credit"
	"github.com/robotalks/ipsp.go/pkg/ble/link"
)

// Listener receives link activity. Callbacks run on the loop goroutine
// and must not block.
type Listener interface {
	LinkStateChanged(l link.Link, from link.State)
	LinkFailed(peer ble.Addr, err error)
	DataReceived(peer ble.Addr, data []byte)
}

// ListenerFuncs is a Listener built from optional funcs.
type ListenerFuncs struct {
	StateChanged func(link.Link, link.State)
	Failed       func(ble.Addr, error)
	Received     func(ble.Addr, []byte)
}

// LinkStateChanged implements Listener.
func (f ListenerFuncs) LinkStateChanged(l link.Link, from link.State) {
	if f.StateChanged != nil {
		f.StateChanged(l, from)
	}
}

// LinkFailed implements Listener.
func (f ListenerFuncs) LinkFailed(peer ble.Addr, err error) {
	if f.Failed != nil {
		f.Failed(peer, err)
	}
}

// DataReceived implements Listener.
func (f ListenerFuncs) DataReceived(peer ble.Addr, data []byte) {
	if f.Received != nil {
		f.Received(peer, data)
	}
}

// LinkInfo is a snapshot of one link and its channel.
type LinkInfo struct {
	link.Link
	Channel credit.Snapshot
}

type entry struct {
	machine *link.Machine
	channel *credit.Channel
	// wanted links are searched or advertised again when they fall back
	// to Idle and AutoReconnect is set.
	wanted  bool
	restart bool
	retryAt time.Time
}

func (e *entry) peer() ble.Addr {
	return e.machine.Link().Peer
}

// Orchestrator owns all links of one role. It is not safe for concurrent
// use; drive it from the loop or through a Client.
type Orchestrator struct {
	stack     ble.Stack
	config    Config
	links     map[ble.Addr]*entry
	acceptor  *entry
	listeners []Listener
	now       time.Time
	// orphans are handles of connections no link adopted, disconnected
	// and awaiting the stack's confirmation.
	orphans map[ble.Handle]bool
}

// New creates an Orchestrator issuing commands to stack.
func New(stack ble.Stack, conf Config) *Orchestrator {
	o := &Orchestrator{
		stack:  stack,
		config: conf.withDefaults(),
		links:   make(map[ble.Addr]*entry),
		orphans: make(map[ble.Handle]bool),
	}
	if o.config.Role == ble.Acceptor {
		o.acceptor = o.newEntry(ble.Addr{})
	}
	return o
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.config
}

// AddListener registers a Listener.
func (o *Orchestrator) AddListener(l Listener) *Orchestrator {
	o.listeners = append(o.listeners, l)
	return o
}

// Start schedules the default activity of the role: searching the
// configured target or advertising. It is carried out with the next event.
func (o *Orchestrator) Start() {
	switch o.config.Role {
	case ble.Initiator:
		if o.config.Target.IsZero() {
			return
		}
		e := o.links[o.config.Target]
		if e == nil {
			e = o.newEntry(o.config.Target)
			o.links[o.config.Target] = e
		}
		e.wanted, e.restart = true, true
	case ble.Acceptor:
		o.acceptor.wanted, o.acceptor.restart = true, true
	}
}

// Search starts discovery of target.
func (o *Orchestrator) Search(target ble.Addr) error {
	if o.config.Role != ble.Initiator {
		return link.ErrWrongRole
	}
	if target.IsZero() {
		return ErrNoTarget
	}
	e := o.links[target]
	if e == nil {
		e = o.newEntry(target)
		o.links[target] = e
	}
	if err := e.machine.StartSearch(); err != nil {
		return err
	}
	e.wanted, e.restart = true, false
	return nil
}

// Advertise makes the acceptor connectable.
func (o *Orchestrator) Advertise() error {
	if o.config.Role != ble.Acceptor {
		return link.ErrWrongRole
	}
	if err := o.acceptor.machine.Accept(); err != nil {
		return err
	}
	o.acceptor.wanted, o.acceptor.restart = true, false
	return nil
}

// Cancel aborts search or connect of peer.
func (o *Orchestrator) Cancel(peer ble.Addr) error {
	e := o.lookup(peer)
	if e == nil {
		return ErrUnknownLink
	}
	searching := e.machine.State() == link.Discovering
	if err := e.machine.Cancel(); err != nil {
		return err
	}
	e.wanted, e.restart = false, false
	if searching {
		o.resumeDiscovery()
	}
	return nil
}

// Disconnect tears down the link to peer and stops reconnecting.
func (o *Orchestrator) Disconnect(peer ble.Addr) error {
	e := o.lookup(peer)
	if e == nil {
		return ErrUnknownLink
	}
	e.wanted = false
	var err error
	switch e.machine.State() {
	case link.Discovering:
		if err = e.machine.Cancel(); err == nil {
			o.resumeDiscovery()
		}
	case link.Connecting:
		err = e.machine.Cancel()
	default:
		err = e.machine.Teardown()
	}
	e.restart = false
	return err
}

// Send enqueues data on the channel of peer.
func (o *Orchestrator) Send(peer ble.Addr, data []byte) error {
	e := o.lookup(peer)
	if e == nil {
		return ErrUnknownLink
	}
	if e.channel == nil {
		return credit.ErrChannelNotReady
	}
	return e.channel.EnqueueSend(data)
}

// Links returns snapshots of all links ordered by peer address.
func (o *Orchestrator) Links() []LinkInfo {
	entries := o.entries()
	infos := make([]LinkInfo, 0, len(entries))
	for _, e := range entries {
		info := LinkInfo{Link: e.machine.Link()}
		if e.channel != nil {
			info.Channel = e.channel.Snapshot()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Peer.String() < infos[j].Peer.String()
	})
	return infos
}

// HandleEvent routes a stack event to the link it belongs to. Failures are
// reported to listeners.
func (o *Orchestrator) HandleEvent(ev ble.Event) {
	switch e := ev.(type) {
	case ble.Tick:
		o.now = e.Time
		for _, ent := range o.entries() {
			o.apply(ent, ev)
		}
	case ble.DiscoveryResult:
		stopped := false
		for _, ent := range o.links {
			if ent.machine.State() == link.Discovering {
				o.apply(ent, ev)
				stopped = stopped || ent.machine.State() != link.Discovering
			}
		}
		if stopped {
			o.resumeDiscovery()
		}
	case ble.ConnectionEstablished:
		ent := o.acceptor
		if o.config.Role == ble.Initiator {
			ent = o.links[e.Peer]
		}
		adopted := o.expectsConnection(ent) || o.byHandle(e.Handle) != nil
		if ent != nil {
			o.apply(ent, ev)
		}
		switch {
		case !e.Status.OK():
		case adopted:
			delete(o.orphans, e.Handle)
		default:
			o.dropConnection(e)
		}
	case ble.Disconnected:
		o.onDisconnected(e)
	case ble.MTUExchangeRequest:
		o.applyByHandle(e.Handle, ev)
	case ble.MTUExchangeResponse:
		o.applyByHandle(e.Handle, ev)
	case ble.ServiceDiscoveryComplete:
		o.applyByHandle(e.Handle, ev)
	case ble.PeerCreditUpdate:
		if ent, ch := o.channelOf(e.Handle, e.Channel); ch != nil {
			o.settle(ent, ch.OnPeerCreditsReceived(uint32(e.Credits)))
		}
	case ble.ChannelData:
		if ent, ch := o.channelOf(e.Handle, e.Channel); ch != nil {
			err := ch.OnSegmentReceived(e.Data)
			if err == nil {
				peer := ent.peer()
				for _, l := range o.listeners {
					l.DataReceived(peer, e.Data)
				}
			}
			o.settle(ent, err)
		}
	default:
		glog.V(2).Infof("event %v ignored", ev)
	}
	o.restartPending()
}

func (o *Orchestrator) newEntry(target ble.Addr) *entry {
	e := &entry{machine: link.NewMachine(o.stack, o.config.linkConfig(target))}
	if !o.now.IsZero() {
		e.machine.SetTime(o.now)
	}
	e.machine.Observer = link.StateChangedFunc(func(l link.Link, from link.State) {
		o.linkStateChanged(e, l, from)
	})
	return e
}

func (o *Orchestrator) entries() []*entry {
	entries := make([]*entry, 0, len(o.links)+1)
	for _, e := range o.links {
		entries = append(entries, e)
	}
	if o.acceptor != nil {
		entries = append(entries, o.acceptor)
	}
	return entries
}

func (o *Orchestrator) lookup(peer ble.Addr) *entry {
	if e := o.links[peer]; e != nil {
		return e
	}
	if o.acceptor != nil && !peer.IsZero() && o.acceptor.peer() == peer {
		return o.acceptor
	}
	return nil
}

func (o *Orchestrator) byHandle(h ble.Handle) *entry {
	for _, e := range o.entries() {
		if owns(e, h) {
			return e
		}
	}
	return nil
}

func owns(e *entry, h ble.Handle) bool {
	l := e.machine.Link()
	return l.HasHandle() && l.Handle == h
}

// resumeDiscovery restarts scanning for links still searching after
// another link stopped it.
func (o *Orchestrator) resumeDiscovery() {
	var filter ble.Addr
	searching := 0
	for _, e := range o.links {
		if e.machine.State() == link.Discovering {
			filter = e.machine.Config().Target
			searching++
		}
	}
	if searching == 0 {
		return
	}
	if searching > 1 {
		filter = ble.Addr{}
	}
	if err := o.stack.Do(ble.StartDiscovery{Filter: filter}); err != nil {
		glog.Warningf("resume discovery: %v", err)
	}
}

func (o *Orchestrator) expectsConnection(e *entry) bool {
	if e == nil {
		return false
	}
	if o.config.Role == ble.Acceptor {
		return e.machine.State() == link.Idle
	}
	return e.machine.State() == link.Connecting
}

// dropConnection disconnects a connection no link is waiting for.
func (o *Orchestrator) dropConnection(e ble.ConnectionEstablished) {
	glog.Warningf("connection %#04x from %s not expected, disconnecting", e.Handle, e.Peer)
	err := o.stack.Do(ble.Disconnect{Handle: e.Handle, Reason: ble.ReasonRemoteUserTerminated})
	if err != nil {
		glog.Warningf("disconnect %#04x: %v", e.Handle, err)
		return
	}
	o.orphans[e.Handle] = true
}

// onDisconnected routes a disconnect by handle. A failed connection
// attempt may be reported before any handle is known; it belongs to
// the link connecting, as long as only one is.
func (o *Orchestrator) onDisconnected(e ble.Disconnected) {
	if ent := o.byHandle(e.Handle); ent != nil {
		o.apply(ent, e)
		return
	}
	if o.orphans[e.Handle] {
		delete(o.orphans, e.Handle)
		glog.V(2).Infof("orphan connection %#04x closed", e.Handle)
		return
	}
	var connecting *entry
	for _, ent := range o.links {
		if ent.machine.State() != link.Connecting {
			continue
		}
		if connecting != nil {
			glog.Warningf("%v ambiguous between connecting links, ignored", e)
			return
		}
		connecting = ent
	}
	if connecting != nil {
		o.apply(connecting, e)
		return
	}
	glog.V(2).Infof("%v for unknown handle ignored", e)
}

func (o *Orchestrator) applyByHandle(h ble.Handle, ev ble.Event) {
	if e := o.byHandle(h); e != nil {
		o.apply(e, ev)
		return
	}
	glog.V(2).Infof("%v for unknown handle ignored", ev)
}

func (o *Orchestrator) channelOf(h ble.Handle, id ble.ChannelID) (*entry, *credit.Channel) {
	e := o.byHandle(h)
	if e == nil || e.channel == nil || !e.channel.Active() {
		glog.Warningf("no active channel on handle %#04x", h)
		return nil, nil
	}
	if e.channel.ID != id {
		glog.Warningf("link %s: unknown channel %#04x", e.peer(), id)
		return nil, nil
	}
	return e, e.channel
}

func (o *Orchestrator) apply(e *entry, ev ble.Event) {
	err := e.machine.HandleEvent(ev)
	if err == nil {
		err = e.machine.Advance()
	}
	o.settle(e, err)
}

// settle applies the failure policy and emits scheduled credit grants.
func (o *Orchestrator) settle(e *entry, err error) {
	if err != nil {
		o.fail(e, err)
	}
	if ch := e.channel; ch != nil && ch.Active() {
		if err := ch.Flush(); err != nil {
			glog.Warningf("link %s: grant credits: %v", e.peer(), err)
		}
	}
}

func (o *Orchestrator) fail(e *entry, err error) {
	peer := e.peer()
	switch err.(type) {
	case *credit.ProtocolViolation, *link.NegotiationError:
		glog.Errorf("link %s: %v, disconnecting", peer, err)
		o.notifyFailure(peer, err)
		if terr := e.machine.Teardown(); terr != nil {
			glog.Warningf("link %s: disconnect: %v", peer, terr)
		}
	case *link.ConnectError:
		glog.Errorf("link %s: %v", peer, err)
		o.notifyFailure(peer, err)
	default:
		if err == link.ErrConnectTimeout {
			glog.Errorf("link %s: %v", peer, err)
			o.notifyFailure(peer, err)
			return
		}
		glog.Warningf("link %s: %v", peer, err)
	}
}

func (o *Orchestrator) notifyFailure(peer ble.Addr, err error) {
	for _, l := range o.listeners {
		l.LinkFailed(peer, err)
	}
}

func (o *Orchestrator) linkStateChanged(e *entry, l link.Link, from link.State) {
	switch {
	case l.State == link.Ready:
		o.activateChannel(e, l)
	case from == link.Ready:
		if e.channel != nil {
			e.channel.Teardown()
			e.channel = nil
		}
	}
	if l.State == link.Idle && e.wanted && o.config.AutoReconnect {
		e.restart, e.retryAt = true, time.Time{}
	}
	for _, lis := range o.listeners {
		lis.LinkStateChanged(l, from)
	}
}

func (o *Orchestrator) activateChannel(e *entry, l link.Link) {
	ch := credit.NewChannel(o.stack, l.Handle, o.config.ChannelID)
	ch.Watermark = o.config.Watermark
	err := ch.Activate(l.Peer, o.config.LocalCredits, o.config.PeerCredits, credit.MaxSegmentForMTU(l.MTU))
	if err != nil {
		glog.Errorf("link %s: activate channel: %v", l.Peer, err)
		return
	}
	e.channel = ch
}

// restartPending restarts search or advertising of wanted links which
// fell back to Idle.
func (o *Orchestrator) restartPending() {
	for _, e := range o.entries() {
		if !e.restart || e.machine.State() != link.Idle {
			continue
		}
		if !e.retryAt.IsZero() && o.now.Before(e.retryAt) {
			continue
		}
		var err error
		if o.config.Role == ble.Initiator {
			err = e.machine.StartSearch()
		} else {
			err = e.machine.Accept()
		}
		if err != nil {
			glog.Warningf("link %s: restart: %v", e.peer(), err)
			e.retryAt = o.now.Add(o.config.RetryInterval)
			continue
		}
		e.restart = false
	}
}
