package link

import (
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/ipsp.go/pkg/ble"
)

// MTU bounds.
const (
	MinMTU          uint16 = 23
	DefaultLocalMTU uint16 = 512
)

// Default timeouts.
const (
	DefaultConnectTimeout   = 5 * time.Second
	DefaultNegotiateTimeout = 5 * time.Second
)

// Config configures a Machine.
type Config struct {
	Role ble.Role
	// Target is the peer the initiator searches for.
	Target ble.Addr
	// LocalMTU is the MTU requested or accepted locally.
	LocalMTU         uint16
	ConnectTimeout   time.Duration
	NegotiateTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.LocalMTU < MinMTU {
		c.LocalMTU = DefaultLocalMTU
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.NegotiateTimeout <= 0 {
		c.NegotiateTimeout = DefaultNegotiateTimeout
	}
	return c
}

// Machine drives one Link. It is not safe for concurrent use; all calls
// are expected on the event loop.
type Machine struct {
	Stack    ble.Stack
	Observer Observer

	config   Config
	link     Link
	now      time.Time
	deadline time.Time
	arm      time.Duration // timer requested before the first tick
	retried  bool
}

// NewMachine creates a Machine in Idle.
func NewMachine(stack ble.Stack, conf Config) *Machine {
	m := &Machine{Stack: stack, config: conf.withDefaults()}
	m.link = Link{Peer: conf.Target, Role: conf.Role}
	return m
}

// Config returns the effective configuration.
func (m *Machine) Config() Config {
	return m.config
}

// Link returns a copy of the current Link.
func (m *Machine) Link() Link {
	l := m.link
	l.Services = append([]ble.ServiceHandle(nil), m.link.Services...)
	return l
}

// State returns the current state.
func (m *Machine) State() State {
	return m.link.State
}

// SetTime sets the clock timers are armed against until the next tick.
// A machine created between ticks uses it to honor the current time.
func (m *Machine) SetTime(now time.Time) {
	m.now = now
}

// StartSearch starts discovery for the configured target.
func (m *Machine) StartSearch() error {
	if m.config.Role != ble.Initiator {
		return ErrWrongRole
	}
	if m.link.State != Idle {
		return ErrBusy
	}
	if err := m.Stack.Do(ble.StartDiscovery{Filter: m.config.Target}); err != nil {
		return err
	}
	m.setState(Discovering)
	return nil
}

// Accept makes the acceptor connectable. The link stays Idle until the
// stack reports an inbound connection.
func (m *Machine) Accept() error {
	if m.config.Role != ble.Acceptor {
		return ErrWrongRole
	}
	if m.link.State != Idle {
		return ErrBusy
	}
	return m.Stack.Do(ble.StartAdvertising{})
}

// Cancel aborts Discovering or Connecting and returns to Idle.
func (m *Machine) Cancel() error {
	switch m.link.State {
	case Discovering:
		if err := m.Stack.Do(ble.StopDiscovery{}); err != nil {
			glog.Warningf("link %s: stop discovery: %v", m.link.Peer, err)
		}
	case Connecting:
	default:
		return ErrNotCancellable
	}
	m.stopTimer()
	m.setState(Idle)
	return nil
}

// Teardown disconnects an established link and resets it to Idle
// without waiting for the stack to confirm.
func (m *Machine) Teardown() error {
	if m.link.State == Idle {
		return nil
	}
	var err error
	if m.link.HasHandle() {
		err = m.Stack.Do(ble.Disconnect{Handle: m.link.Handle, Reason: ble.ReasonRemoteUserTerminated})
	}
	m.reset()
	return err
}

// HandleEvent applies an event. The returned error is a failure surfaced
// to the caller; absorbed anomalies are only logged.
func (m *Machine) HandleEvent(ev ble.Event) error {
	switch e := ev.(type) {
	case ble.Tick:
		return m.tick(e.Time)
	case ble.DiscoveryResult:
		return m.onDiscoveryResult(e)
	case ble.ConnectionEstablished:
		return m.onConnected(e)
	case ble.Disconnected:
		m.onDisconnected(e)
	case ble.MTUExchangeRequest:
		return m.onMTURequest(e)
	case ble.MTUExchangeResponse:
		return m.onMTUResponse(e)
	case ble.ServiceDiscoveryComplete:
		return m.onServiceDiscovery(e)
	default:
		glog.V(2).Infof("link %s: %v ignored", m.link.Peer, ev)
	}
	return nil
}

// Advance runs the entry action of a pass-through state.
func (m *Machine) Advance() error {
	if m.link.State == Connected && m.config.Role == ble.Initiator {
		m.setState(NegotiatingMTU)
		m.retried = false
		return m.requestMTU()
	}
	return nil
}

func (m *Machine) onDiscoveryResult(e ble.DiscoveryResult) error {
	if m.link.State != Discovering {
		return nil
	}
	if e.Peer != m.config.Target {
		glog.V(2).Infof("link %s: discovered %s, not target", m.config.Target, e.Peer)
		return nil
	}
	glog.Infof("link %s: peer found, connecting", e.Peer)
	if err := m.Stack.Do(ble.StopDiscovery{}); err != nil {
		glog.Warningf("link %s: stop discovery: %v", e.Peer, err)
	}
	if err := m.Stack.Do(ble.Connect{Peer: e.Peer}); err != nil {
		m.setState(Idle)
		return err
	}
	m.setState(Connecting)
	m.startTimer(m.config.ConnectTimeout)
	return nil
}

func (m *Machine) onConnected(e ble.ConnectionEstablished) error {
	switch {
	case m.config.Role == ble.Initiator && m.link.State == Connecting && e.Peer == m.config.Target:
		m.stopTimer()
		if !e.Status.OK() {
			m.setState(Idle)
			return &ConnectError{Status: e.Status}
		}
	case m.config.Role == ble.Acceptor && m.link.State == Idle:
		if !e.Status.OK() {
			glog.Warningf("inbound connection from %s failed: status %d", e.Peer, e.Status)
			return nil
		}
		m.link.Peer = e.Peer
	default:
		glog.Warningf("link %s: unexpected %v in %s", m.link.Peer, e, m.link.State)
		return nil
	}
	m.link.Handle = e.Handle
	m.setState(Connected)
	return nil
}

func (m *Machine) onDisconnected(e ble.Disconnected) {
	if m.link.State == Idle {
		return
	}
	if m.link.HasHandle() && e.Handle != m.link.Handle {
		glog.Warningf("link %s: disconnect for handle %#04x, own %#04x", m.link.Peer, e.Handle, m.link.Handle)
		return
	}
	glog.Infof("link %s: disconnected, reason %#02x", m.link.Peer, e.Reason)
	m.reset()
}

func (m *Machine) onMTURequest(e ble.MTUExchangeRequest) error {
	if !m.link.HasHandle() || e.Handle != m.link.Handle {
		glog.Warningf("link %s: unexpected %v in %s", m.link.Peer, e, m.link.State)
		return nil
	}
	mtu := negotiate(m.config.LocalMTU, e.MTU)
	if err := m.Stack.Do(ble.RespondMTUExchange{Handle: e.Handle, MTU: mtu}); err != nil {
		return err
	}
	if m.config.Role != ble.Acceptor || m.link.State != Connected {
		// answered, the link's own MTU is settled by its own exchange
		return nil
	}
	m.link.MTU = mtu
	glog.Infof("link %s: MTU %d", m.link.Peer, mtu)
	m.setState(Ready)
	return nil
}

func (m *Machine) onMTUResponse(e ble.MTUExchangeResponse) error {
	if m.config.Role != ble.Initiator || e.Handle != m.link.Handle ||
		(m.link.State != NegotiatingMTU && m.link.State != Connected) {
		glog.Warningf("link %s: unexpected %v in %s", m.link.Peer, e, m.link.State)
		return nil
	}
	if !e.Status.OK() {
		return m.failStep(ProcMTUExchange, e.Status, false)
	}
	m.stopTimer()
	m.link.MTU = negotiate(m.config.LocalMTU, e.MTU)
	glog.Infof("link %s: MTU %d, discovering services", m.link.Peer, m.link.MTU)
	m.setState(DiscoveringServices)
	m.retried = false
	return m.startDiscovery()
}

func (m *Machine) onServiceDiscovery(e ble.ServiceDiscoveryComplete) error {
	if m.link.State != DiscoveringServices || e.Handle != m.link.Handle {
		glog.Warningf("link %s: unexpected %v in %s", m.link.Peer, e, m.link.State)
		return nil
	}
	if !e.Status.OK() {
		return m.failStep(ProcServiceDiscovery, e.Status, false)
	}
	m.stopTimer()
	m.link.Services = append([]ble.ServiceHandle(nil), e.Services...)
	m.setState(Ready)
	if err := m.Stack.Do(ble.EnableNotifications{Handle: m.link.Handle}); err != nil {
		glog.Warningf("link %s: enable notifications: %v", m.link.Peer, err)
	}
	return nil
}

func (m *Machine) tick(now time.Time) error {
	m.now = now
	if m.arm > 0 {
		m.deadline, m.arm = now.Add(m.arm), 0
	}
	if m.deadline.IsZero() || now.Before(m.deadline) {
		return nil
	}
	m.deadline = time.Time{}
	switch m.link.State {
	case Connecting:
		glog.Warningf("link %s: connect timeout", m.link.Peer)
		m.setState(Idle)
		return ErrConnectTimeout
	case NegotiatingMTU:
		return m.failStep(ProcMTUExchange, ble.StatusSuccess, true)
	case DiscoveringServices:
		return m.failStep(ProcServiceDiscovery, ble.StatusSuccess, true)
	}
	return nil
}

// failStep retries a negotiation step once and then surfaces the failure.
func (m *Machine) failStep(proc string, status ble.Status, timeout bool) error {
	m.stopTimer()
	if m.retried {
		err := &NegotiationError{Procedure: proc, Status: status, Timeout: timeout}
		glog.Errorf("link %s: %v", m.link.Peer, err)
		return err
	}
	m.retried = true
	glog.Warningf("link %s: %s failed (status %d, timeout %v), retrying", m.link.Peer, proc, status, timeout)
	if proc == ProcMTUExchange {
		return m.requestMTU()
	}
	return m.startDiscovery()
}

func (m *Machine) requestMTU() error {
	err := m.Stack.Do(ble.RequestMTUExchange{Handle: m.link.Handle, MTU: m.config.LocalMTU})
	if err != nil {
		glog.Warningf("link %s: request MTU: %v", m.link.Peer, err)
		if !m.retried {
			return m.failStep(ProcMTUExchange, ble.StatusSuccess, false)
		}
		return &NegotiationError{Procedure: ProcMTUExchange}
	}
	m.startTimer(m.config.NegotiateTimeout)
	return nil
}

func (m *Machine) startDiscovery() error {
	err := m.Stack.Do(ble.StartServiceDiscovery{Handle: m.link.Handle})
	if err != nil {
		glog.Warningf("link %s: start service discovery: %v", m.link.Peer, err)
		if !m.retried {
			return m.failStep(ProcServiceDiscovery, ble.StatusSuccess, false)
		}
		return &NegotiationError{Procedure: ProcServiceDiscovery}
	}
	m.startTimer(m.config.NegotiateTimeout)
	return nil
}

func (m *Machine) startTimer(d time.Duration) {
	if m.now.IsZero() {
		m.deadline, m.arm = time.Time{}, d
		return
	}
	m.deadline, m.arm = m.now.Add(d), 0
}

func (m *Machine) stopTimer() {
	m.deadline, m.arm = time.Time{}, 0
}

// reset passes through Disconnected back to Idle and releases per
// connection state.
func (m *Machine) reset() {
	m.stopTimer()
	m.retried = false
	m.setState(Disconnected)
	m.link.Handle, m.link.MTU, m.link.Services = 0, 0, nil
	if m.config.Role == ble.Acceptor {
		m.link.Peer = ble.Addr{}
	}
	m.setState(Idle)
}

func (m *Machine) setState(to State) {
	from := m.link.State
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		glog.Errorf("link %s: illegal transition %s -> %s refused", m.link.Peer, from, to)
		return
	}
	m.link.State = to
	glog.V(1).Infof("link %s: %s -> %s", m.link.Peer, from, to)
	if o := m.Observer; o != nil {
		o.LinkStateChanged(m.Link(), from)
	}
}

func negotiate(local, offered uint16) uint16 {
	mtu := local
	if offered < mtu {
		mtu = offered
	}
	if mtu < MinMTU {
		mtu = MinMTU
	}
	return mtu
}
