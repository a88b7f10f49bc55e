package wire

// Parser parses bytes received.
type Parser struct {
	peerSeq PacketSeq
	state   parseState
	packet  *Packet
	dataLen int
	recvLen int
}

// SyncState indicates the state of communication.
type SyncState int

const (
	// SyncStateSyncing means the communication is not synchronized.
	SyncStateSyncing SyncState = 0
	// SyncStateReady means the communication is synchronized and ready for packets.
	SyncStateReady SyncState = 0x01
	// SyncStateReceiving means there's on-going communication for syncing or a packet.
	SyncStateReceiving SyncState = 0x02
)

// IsReady indicates if the communication is ready for packets.
func (s SyncState) IsReady() bool {
	return s&SyncStateReady != 0
}

// IsReceiving indicates if it's in the middle for syncing or receiving a packet.
func (s SyncState) IsReceiving() bool {
	return s&SyncStateReceiving != 0
}

func (s SyncState) String() string {
	switch s {
	case SyncStateSyncing:
		return "syncing"
	case SyncStateReady:
		return "ready"
	case SyncStateReceiving:
		return "syncing+receiving"
	default:
		return "ready+receiving"
	}
}

// TimerAction defines what to do with the resync timer.
type TimerAction int

const (
	// TimerNoChange indicates keep the timer as-is.
	TimerNoChange TimerAction = iota
	// TimerRestart to restart the timer.
	TimerRestart
	// TimerStop to stop/cancel the timer.
	TimerStop
)

// ParseResult indicates the result after one parsing step.
type ParseResult struct {
	Sync   byte
	State  SyncState
	Packet *Packet
}

// WhatAboutTimer decides what to do with timer.
func (r ParseResult) WhatAboutTimer() TimerAction {
	if r.State.IsReceiving() || r.Sync == syncREQ {
		return TimerRestart
	}
	if r.State.IsReady() {
		return TimerStop
	}
	return TimerNoChange
}

type parseState int

const (
	stateSyncAck    parseState = iota // sync req sent, waiting for syncACK
	stateSyncReqSeq                   // waiting for sync seq after syncREQ
	stateSyncAckSeq                   // waiting for sync seq after syncACK
	stateMsgSeq                       // waiting for message seq
	stateMsgAckSeq                    // recv ack in MsgSeq, validate seq
	stateMsgCode                      // waiting for message code
	stateMsgLenLo                     // waiting for low byte of length
	stateMsgLenHi                     // waiting for high byte of length
	stateMsgData                      // waiting for message data
)

const (
	syncREQ byte = 0xff
	syncACK byte = 0xfe
)

// State gets the current sync state.
func (p *Parser) State() SyncState {
	switch {
	case p.state == stateSyncAck:
		return SyncStateSyncing
	case p.state == stateMsgSeq:
		return SyncStateReady
	case p.state > stateMsgSeq:
		return SyncStateReady | SyncStateReceiving
	}
	return SyncStateSyncing | SyncStateReceiving
}

// Reset drops any partial packet and requests resynchronization.
func (p *Parser) Reset() (pr ParseResult) {
	p.packet = nil
	pr.Sync, pr.Packet = p.resync()
	pr.State = p.State()
	return
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	pr.Sync, pr.Packet = p.parseByte(b)
	pr.State = p.State()
	return
}

// Timeout notifies the parser timer expires.
func (p *Parser) Timeout() (pr ParseResult) {
	if p.state != stateMsgSeq {
		pr.Sync, pr.Packet = p.resync()
	}
	pr.State = p.State()
	return
}

func (p *Parser) parseByte(b byte) (byte, *Packet) {
	switch p.state {
	case stateSyncAck:
		switch b {
		case syncREQ:
			p.state = stateSyncReqSeq
		case syncACK:
			p.state = stateSyncAckSeq
		}
	case stateSyncReqSeq, stateSyncAckSeq:
		seq := PacketSeq(b)
		if !seq.IsValid() {
			return p.resync()
		}
		acking := p.state == stateSyncReqSeq
		p.peerSeq, p.state = seq, stateMsgSeq
		if acking {
			return syncACK, nil
		}
	case stateMsgSeq:
		switch {
		case b == syncREQ:
			p.state = stateSyncReqSeq
		case b == syncACK:
			p.state = stateMsgAckSeq
		case b != byte(p.peerSeq):
			return p.resync()
		default:
			p.packet = &Packet{Seq: p.peerSeq}
			p.peerSeq = p.peerSeq.Next()
			p.state = stateMsgCode
		}
	case stateMsgAckSeq:
		if b != byte(p.peerSeq) {
			return p.resync()
		}
		p.state = stateMsgSeq
	case stateMsgCode:
		p.packet.Code = b
		p.state = stateMsgLenLo
	case stateMsgLenLo:
		p.dataLen = int(b)
		p.state = stateMsgLenHi
	case stateMsgLenHi:
		p.dataLen |= int(b) << 8
		if p.dataLen > MaxDataLen {
			p.packet = nil
			return p.resync()
		}
		if p.dataLen == 0 {
			return p.packetReady()
		}
		p.packet.Data, p.recvLen = make([]byte, p.dataLen), 0
		p.state = stateMsgData
	case stateMsgData:
		p.packet.Data[p.recvLen] = b
		p.recvLen++
		if p.recvLen >= len(p.packet.Data) {
			return p.packetReady()
		}
	}
	return 0, nil
}

func (p *Parser) resync() (byte, *Packet) {
	p.state = stateSyncAck
	return syncREQ, nil
}

func (p *Parser) packetReady() (byte, *Packet) {
	p.state = stateMsgSeq
	pkt := p.packet
	p.packet = nil
	return 0, pkt
}
