package ipsp

import (
	"context"

	"github.com/robotalks/ipsp.go/pkg/ble"
	fx "github.com/robotalks/ipsp.go/pkg/framework"
)

type callMsg struct {
	fn     func(*Orchestrator) error
	result chan error
}

// Control implements fx.Controller. Stack events and client requests are
// handled in post order, then the iteration time is applied as a tick.
func (o *Orchestrator) Control(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		switch msg := mc.CurrentMessage().(type) {
		case ble.Event:
			o.HandleEvent(msg)
			mc.MessageTaken()
		case *callMsg:
			msg.result <- msg.fn(o)
			mc.MessageTaken()
		}
	}))
	o.HandleEvent(ble.Tick{Time: cc.Time()})
	return nil
}

// AddToLoop implements fx.LoopAdder.
func (o *Orchestrator) AddToLoop(l *fx.Loop) {
	l.AddController(fx.PrLvControl, o)
}

// Client calls an Orchestrator running on a loop from other goroutines.
type Client struct {
	Loop fx.LoopControl
}

// NewClient creates a Client posting to loop.
func NewClient(loop fx.LoopControl) *Client {
	return &Client{Loop: loop}
}

// Call runs fn on the loop goroutine and waits for its result.
func (c *Client) Call(ctx context.Context, fn func(*Orchestrator) error) error {
	msg := &callMsg{fn: fn, result: make(chan error, 1)}
	c.Loop.PostMessage(msg)
	c.Loop.TriggerNext()
	select {
	case err := <-msg.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Search calls Orchestrator.Search.
func (c *Client) Search(ctx context.Context, target ble.Addr) error {
	return c.Call(ctx, func(o *Orchestrator) error { return o.Search(target) })
}

// Advertise calls Orchestrator.Advertise.
func (c *Client) Advertise(ctx context.Context) error {
	return c.Call(ctx, func(o *Orchestrator) error { return o.Advertise() })
}

// Cancel calls Orchestrator.Cancel.
func (c *Client) Cancel(ctx context.Context, peer ble.Addr) error {
	return c.Call(ctx, func(o *Orchestrator) error { return o.Cancel(peer) })
}

// Disconnect calls Orchestrator.Disconnect.
func (c *Client) Disconnect(ctx context.Context, peer ble.Addr) error {
	return c.Call(ctx, func(o *Orchestrator) error { return o.Disconnect(peer) })
}

// Send calls Orchestrator.Send. data must not be modified afterwards.
func (c *Client) Send(ctx context.Context, peer ble.Addr, data []byte) error {
	return c.Call(ctx, func(o *Orchestrator) error { return o.Send(peer, data) })
}

// Links calls Orchestrator.Links.
func (c *Client) Links(ctx context.Context) (links []LinkInfo, err error) {
	err = c.Call(ctx, func(o *Orchestrator) error {
		links = o.Links()
		return nil
	})
	return
}
