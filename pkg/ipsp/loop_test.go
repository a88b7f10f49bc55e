package ipsp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/ipsp.go/pkg/ble"
	"github.com/robotalks/ipsp.go/pkg/ble/credit"
	"github.com/robotalks/ipsp.go/pkg/ble/link"
	fx "github.com/robotalks/ipsp.go/pkg/framework"
)

type lockedStack struct {
	lock sync.Mutex
	cmds []ble.Command
}

func (s *lockedStack) Do(cmd ble.Command) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cmds = append(s.cmds, cmd)
	return nil
}

func (s *lockedStack) commands() []ble.Command {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]ble.Command(nil), s.cmds...)
}

func TestClient(t *testing.T) {
	stack := &lockedStack{}
	o := New(stack, Config{Role: ble.Initiator})
	loop := fx.NewLoop().Add(o)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	client := NewClient(loop)
	callCtx, callCancel := context.WithTimeout(ctx, time.Second)
	defer callCancel()

	require.NoError(t, client.Search(callCtx, nodeAddr))
	require.Equal(t, []ble.Command{ble.StartDiscovery{Filter: nodeAddr}}, stack.commands())
	require.Equal(t, link.ErrWrongRole, client.Advertise(callCtx))

	loop.PostMessage(ble.DiscoveryResult{Peer: nodeAddr})
	loop.PostMessage(ble.ConnectionEstablished{Handle: 1, Peer: nodeAddr})
	loop.TriggerNext()
	links, err := client.Links(callCtx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, link.NegotiatingMTU, links[0].State)
	require.Equal(t, credit.ErrChannelNotReady, client.Send(callCtx, nodeAddr, []byte{1}))

	require.NoError(t, client.Disconnect(callCtx, nodeAddr))
	require.Equal(t, ErrUnknownLink, client.Cancel(callCtx, otherAddr))
	links, err = client.Links(callCtx)
	require.NoError(t, err)
	require.Equal(t, link.Idle, links[0].State)
}

func TestClientCallCancelled(t *testing.T) {
	loop := fx.NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewClient(loop).Search(ctx, nodeAddr)
	require.Equal(t, context.Canceled, err)
}
