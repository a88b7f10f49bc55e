package wire

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testStream struct {
	readCh  chan []byte
	writeCh chan byte
	pending []byte
	lock    sync.Mutex
}

func newTestStream() *testStream {
	return &testStream{
		readCh:  make(chan []byte, 16),
		writeCh: make(chan byte, 1024),
	}
}

func (s *testStream) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		b, ok := <-s.readCh
		if !ok {
			return 0, io.EOF
		}
		s.pending = b
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *testStream) Write(p []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, b := range p {
		s.writeCh <- b
	}
	return len(p), nil
}

func (s *testStream) inject(p []byte) {
	if len(p) > 0 {
		s.readCh <- p
	}
}

type fifoTestCtx struct {
	t         *testing.T
	stream    *testStream
	fifo      *FIFO
	packetCh  chan *Packet
	stateCh   chan SyncState
	expectSeq PacketSeq
}

func (c *fifoTestCtx) expectStateChanges(expected ...SyncState) *fifoTestCtx {
	var changes []SyncState
	for range expected {
		select {
		case state := <-c.stateCh:
			changes = append(changes, state)
		case <-time.After(500 * time.Millisecond):
			c.t.Fatalf("expect state change timeout, got %v", changes)
		}
	}
	require.Equal(c.t, expected, changes)
	return c
}

func (c *fifoTestCtx) fromPacketSeq(seq PacketSeq) *fifoTestCtx {
	c.expectSeq = seq
	return c
}

func (c *fifoTestCtx) expectPacket(code byte, data []byte) *fifoTestCtx {
	var pkt *Packet
	select {
	case pkt = <-c.packetCh:
	case <-time.After(500 * time.Millisecond):
		c.t.Fatal("expect packet timeout")
	}
	require.Equal(c.t, c.expectSeq, pkt.Seq)
	require.Equal(c.t, code, pkt.Code)
	if len(data) > 0 {
		require.Equal(c.t, data, pkt.Data)
	} else {
		require.Empty(c.t, pkt.Data)
	}
	c.expectSeq = c.expectSeq.Next()
	return c
}

func (c *fifoTestCtx) mustSend(code byte, data []byte) *fifoTestCtx {
	err := c.fifo.Send(&Packet{Code: code, Data: data})
	require.NoError(c.t, err)
	return c
}

type fifoTestSequence struct {
	inject []byte
	expect []byte
	action func(int, *fifoTestCtx)
}

type fifoTestCase struct {
	name      string
	sequences []fifoTestSequence
}

func (tc *fifoTestCase) run(t *testing.T) {
	tctx := &fifoTestCtx{
		t:        t,
		stream:   newTestStream(),
		packetCh: make(chan *Packet, 16),
		stateCh:  make(chan SyncState, 16),
	}
	tctx.fifo = NewFIFO(tctx.stream)
	tctx.fifo.seq = PacketSeq(1)
	tctx.fifo.Handler = HandlePacketFunc(func(ctx context.Context, pkt *Packet) {
		tctx.packetCh <- pkt
	})
	tctx.fifo.Notifier = StateChangedFunc(func(ctx context.Context, state SyncState) {
		tctx.stateCh <- state
	})

	errCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.TODO())
	defer cancel()
	for n, sequence := range tc.sequences {
		tctx.stream.inject(sequence.inject)
		if n == 0 {
			go func() {
				errCh <- tctx.fifo.Run(ctx)
			}()
		}
		for writeLen := 0; writeLen < len(sequence.expect); writeLen++ {
			select {
			case b := <-tctx.stream.writeCh:
				require.Equalf(t, sequence.expect[writeLen], b, "sequences[%d].expect[%d] mismatch", n, writeLen)
			case <-time.After(500 * time.Millisecond):
				t.Fatalf("sequence[%d].expect[%d] timeout", n, writeLen)
			}
		}
		select {
		case err := <-errCh:
			require.NoError(t, err, "FIFO stopped")
		default:
			if a := sequence.action; a != nil {
				a(n, tctx)
			}
		}
	}
}

func TestSync(t *testing.T) {
	cases := []fifoTestCase{
		{
			name: "sync and receive",
			sequences: []fifoTestSequence{
				{
					expect: []byte{syncREQ, 0x01},
				},
				{
					inject: []byte{syncACK, 0x01},
					action: func(n int, tctx *fifoTestCtx) {
						tctx.expectStateChanges(SyncStateReceiving, SyncStateReady)
					},
				},
				{
					inject: []byte{
						0x01, 0x02, 0, 0,
						0x02, 0x82, 1, 0, 0x03,
						0x03, 0x05, 8, 0, 1, 2, 3, 4, 5, 6, 7, 8,
					},
					action: func(n int, tctx *fifoTestCtx) {
						tctx.fromPacketSeq(PacketSeq(0x01)).
							expectPacket(0x02, nil).
							expectPacket(0x82, []byte{0x03}).
							expectPacket(0x05, []byte{1, 2, 3, 4, 5, 6, 7, 8})
					},
				},
			},
		},
		{
			name: "sync and send",
			sequences: []fifoTestSequence{
				{
					expect: []byte{syncREQ, 0x01},
				},
				{
					inject: []byte{syncACK, 0x01},
					action: func(n int, tctx *fifoTestCtx) {
						tctx.expectStateChanges(SyncStateReceiving, SyncStateReady).
							mustSend(0x02, nil).
							mustSend(0x82, []byte{0x03}).
							mustSend(0x05, []byte{1, 2, 3, 4, 5, 6, 7, 8})
					},
				},
				{
					expect: []byte{
						0x01, 0x02, 0, 0,
						0x02, 0x82, 1, 0, 0x03,
						0x03, 0x05, 8, 0, 1, 2, 3, 4, 5, 6, 7, 8,
					},
				},
			},
		},
		{
			name: "answer peer sync request",
			sequences: []fifoTestSequence{
				{
					expect: []byte{syncREQ, 0x01},
				},
				{
					inject: []byte{syncREQ, 0x20},
					expect: []byte{syncACK, 0x01},
					action: func(n int, tctx *fifoTestCtx) {
						tctx.expectStateChanges(SyncStateReceiving, SyncStateReady)
					},
				},
				{
					inject: []byte{0x20, 0x81, 0, 0},
					action: func(n int, tctx *fifoTestCtx) {
						tctx.fromPacketSeq(0x20).expectPacket(0x81, nil)
					},
				},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, tc.run)
	}
}

func TestSendNotReady(t *testing.T) {
	fifo := NewFIFO(newTestStream())
	require.Equal(t, ErrNotReady, fifo.Send(&Packet{Code: 1}))
}

func TestStreamClosed(t *testing.T) {
	stream := newTestStream()
	fifo := NewFIFO(stream)
	close(stream.readCh)
	require.Equal(t, io.EOF, fifo.Run(context.Background()))
}

func TestPipeSync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	readyCh := make(chan string, 2)
	for name, conn := range map[string]net.Conn{"a": a, "b": b} {
		fifo := NewFIFO(conn)
		name := name
		var once sync.Once
		fifo.Notifier = StateChangedFunc(func(ctx context.Context, state SyncState) {
			if state.IsReady() {
				once.Do(func() { readyCh <- name })
			}
		})
		go fifo.Run(ctx)
	}

	ready := make(map[string]bool)
	for len(ready) < 2 {
		select {
		case name := <-readyCh:
			ready[name] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("both ends must synchronize, ready: %v", ready)
		}
	}
}
