// Package stack connects the link core to a BLE co-processor.
package stack

import (
	"context"
	"io"

	"github.com/golang/glog"

	"github.com/robotalks/ipsp.go/pkg/ble"
	fx "github.com/robotalks/ipsp.go/pkg/framework"
	"github.com/robotalks/ipsp.go/pkg/stack/wire"
)

// Remote implements ble.Stack over a byte stream to the co-processor.
// Commands are written synchronously; events are posted to the loop.
type Remote struct {
	fifo   *wire.FIFO
	closer io.Closer
	name   string
}

// NewRemote creates a Remote over rw. If rw is an io.Closer, Close closes it.
func NewRemote(name string, rw io.ReadWriter) *Remote {
	r := &Remote{fifo: wire.NewFIFO(rw), name: name}
	r.closer, _ = rw.(io.Closer)
	r.fifo.Handler = r
	r.fifo.Notifier = wire.StateChangedFunc(r.stateChanged)
	return r
}

// FIFO gets the wrapped FIFO.
func (r *Remote) FIFO() *wire.FIFO {
	return r.fifo
}

// Name implements fx.Named.
func (r *Remote) Name() string {
	return r.name
}

// Do implements ble.Stack.
func (r *Remote) Do(cmd ble.Command) error {
	pkt, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}
	if err := r.fifo.Send(pkt); err != nil {
		return err
	}
	glog.V(4).Infof("%s CMD %v", r.name, cmd)
	return nil
}

// HandlePacket implements wire.PacketHandler.
func (r *Remote) HandlePacket(ctx context.Context, pkt *wire.Packet) {
	ev, err := DecodeEvent(pkt)
	if err != nil {
		glog.Warningf("%s: %v", r.name, err)
		return
	}
	glog.V(4).Infof("%s EVT %v", r.name, ev)
	loopCtl := fx.LoopCtlFrom(ctx)
	loopCtl.PostMessage(ev)
	loopCtl.TriggerNext()
}

func (r *Remote) stateChanged(ctx context.Context, state wire.SyncState) {
	switch state {
	case wire.SyncStateReady:
		glog.Infof("%s: synchronized", r.name)
	case wire.SyncStateSyncing:
		glog.Warningf("%s: resynchronizing", r.name)
	}
}

// Run implements fx.Runnable.
func (r *Remote) Run(ctx context.Context) error {
	err := r.fifo.Run(ctx)
	if r.closer != nil {
		r.closer.Close()
	}
	return err
}

// AddToLoop implements fx.LoopAdder.
func (r *Remote) AddToLoop(l *fx.Loop) {
	l.AddRunnable(r)
}
