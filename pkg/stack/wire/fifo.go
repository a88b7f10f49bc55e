package wire

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
)

// PacketHandler is called when a packet is received.
type PacketHandler interface {
	HandlePacket(context.Context, *Packet)
}

// HandlePacketFunc is func type of PacketHandler.
type HandlePacketFunc func(context.Context, *Packet)

// HandlePacket implements PacketHandler.
func (f HandlePacketFunc) HandlePacket(ctx context.Context, pkt *Packet) {
	f(ctx, pkt)
}

// StateNotifier is called when packet stream state changed.
type StateNotifier interface {
	StateChanged(context.Context, SyncState)
}

// StateChangedFunc is func type of StateNotifier.
type StateChangedFunc func(context.Context, SyncState)

// StateChanged implements StateNotifier.
func (f StateChangedFunc) StateChanged(ctx context.Context, state SyncState) {
	f(ctx, state)
}

const readQueueLen = 16

// DefaultSyncTimeout is how long a sync request or partial packet may
// wait before resynchronizing.
const DefaultSyncTimeout = 100 * time.Millisecond

// FIFO sends and receives packets over a byte stream.
type FIFO struct {
	ReadWriter io.ReadWriter
	Handler    PacketHandler
	Notifier   StateNotifier
	Timeout    time.Duration

	seq   PacketSeq
	state SyncState
	lock  sync.RWMutex

	syncTimer <-chan time.Time
	parser    Parser
}

// NewFIFO creates a FIFO.
func NewFIFO(rw io.ReadWriter) *FIFO {
	return &FIFO{
		ReadWriter: rw,
		Timeout:    DefaultSyncTimeout,
		seq:        NewPacketSeq(),
	}
}

// State gets the state.
func (f *FIFO) State() SyncState {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.state
}

// Send assigns the next sequence number and writes the packet.
func (f *FIFO) Send(pkt *Packet) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if !f.state.IsReady() {
		return ErrNotReady
	}
	pkt.Seq = f.seq
	if _, err := pkt.WriteTo(f.ReadWriter); err != nil {
		return err
	}
	f.seq = f.seq.Next()
	return nil
}

// Run processes the FIFO until the stream fails or ctx is done.
// Reads run on their own goroutine from the start, so sync bytes written
// here never wait on this goroutine draining the peer's writes.
func (f *FIFO) Run(ctx context.Context) error {
	dataCh, errCh := make(chan []byte, readQueueLen), make(chan error, 1)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go f.readLoop(subCtx, dataCh, errCh)

	if err := f.applyParseResult(ctx, f.parser.Reset()); err != nil {
		return err
	}
	for {
		select {
		case chunk := <-dataCh:
			for _, b := range chunk {
				if err := f.applyParseResult(ctx, f.parser.Parse(b)); err != nil {
					return err
				}
			}
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-f.syncTimer:
			glog.V(4).Info("wire: sync timeout")
			if err := f.applyParseResult(ctx, f.parser.Timeout()); err != nil {
				return err
			}
		}
	}
}

func (f *FIFO) readLoop(ctx context.Context, dataCh chan<- []byte, errCh chan<- error) {
	buf := make([]byte, HeaderSize+MaxDataLen)
	for {
		n, err := f.ReadWriter.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case dataCh <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			errCh <- err
			return
		}
	}
}

func (f *FIFO) applyParseResult(ctx context.Context, pr ParseResult) (err error) {
	var notifier StateNotifier
	f.lock.Lock()
	if f.state != pr.State {
		f.state = pr.State
		notifier = f.Notifier
	}
	if pr.Sync != 0 {
		_, err = f.ReadWriter.Write([]byte{pr.Sync, byte(f.seq)})
	}
	f.lock.Unlock()
	if err != nil {
		return
	}

	switch pr.WhatAboutTimer() {
	case TimerRestart:
		f.syncTimer = time.After(f.Timeout)
	case TimerStop:
		f.syncTimer = nil
	}

	if notifier != nil {
		notifier.StateChanged(ctx, pr.State)
	}
	if pr.Packet != nil {
		if h := f.Handler; h != nil {
			h.HandlePacket(ctx, pr.Packet)
		}
	}
	return
}
