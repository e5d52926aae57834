package sctp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDataChunk(size int) *chunkPayloadData {
	return &chunkPayloadData{
		beginningFragment: true,
		endingFragment:    true,
		userData:          make([]byte, size),
		msg:               &dataMessageOptions{canDelay: true},
	}
}

func TestCanAppendDataRWNDFull(t *testing.T) {
	_, transport, _ := newTestAssociation(1500)
	peer := &peerView{rwnd: 50, outstandingBytes: 100, established: true}
	d := newDataChunk(100)

	v := canAppendData(&Packet{transport: transport, overhead: transport.overhead()}, d, peer)
	assert.Equal(t, VerdictRWNDFull, v)
}

func TestCanAppendDataAllowsProbeWithNothingInFlight(t *testing.T) {
	_, transport, _ := newTestAssociation(1500)
	peer := &peerView{rwnd: 10, outstandingBytes: 0, established: true}
	d := newDataChunk(100)

	p := &Packet{transport: transport, overhead: transport.overhead()}
	v := canAppendData(p, d, peer)
	assert.NotEqual(t, VerdictRWNDFull, v)
}

func TestFastRetransmitIgnoresCwnd(t *testing.T) {
	_, transport, _ := newTestAssociation(1500)
	transport.cwnd = 10000
	transport.flightSize = 10000

	peer := &peerView{rwnd: 100000, outstandingBytes: 1, established: true}
	d := newDataChunk(100)
	d.fastRetransmit = frtxNeeded

	p := &Packet{transport: transport, overhead: transport.overhead()}
	v := canAppendData(p, d, peer)
	require.NotEqual(t, VerdictRWNDFull, v)
}

func TestCanAppendDataRegularDataBlockedAtCwnd(t *testing.T) {
	_, transport, _ := newTestAssociation(1500)
	transport.cwnd = 10000
	transport.flightSize = 10000

	peer := &peerView{rwnd: 100000, outstandingBytes: 1, established: true}
	d := newDataChunk(100)

	p := &Packet{transport: transport, overhead: transport.overhead()}
	v := canAppendData(p, d, peer)
	assert.Equal(t, VerdictRWNDFull, v)
}

func TestNagleDefer(t *testing.T) {
	_, transport, _ := newTestAssociationWithHeaderLen(1500, 36)
	transport.pathmtu = 1500

	peer := &peerView{
		rwnd:             100000,
		outstandingBytes: 200,
		queuedBytes:      200,
		established:      true,
		nagle:            true,
	}
	d := newDataChunk(50)
	d.msg.canDelay = true

	p := &Packet{transport: transport, overhead: transport.overhead()}
	v := canAppendData(p, d, peer)
	assert.Equal(t, VerdictDelay, v)
}

func TestDataAccountMutatesFlightAndRwnd(t *testing.T) {
	a, transport, _ := newTestAssociation(1500)
	peer := a.Peer()
	peer.rwnd = 1000

	p := transport.ensurePacket(1, 1, 1)
	d := newDataChunk(100)

	before := transport.flightSize
	dataAccount(p, d, peer, a)
	assert.Equal(t, before+100, transport.flightSize)
	assert.Equal(t, uint32(900), peer.rwnd)
	assert.True(t, d.hasTSN)
}

func TestNagleRoomUsesQueuedBytesNotOutstandingBytes(t *testing.T) {
	a, transport, _ := newTestAssociationWithHeaderLen(1500, 36)
	peer := a.Peer()
	peer.rwnd = 100000
	peer.nagle = true
	peer.outstandingBytes = 2000 // nonzero to pass the "anything in flight" gate, and larger than room

	// room = pathmtu(1500) - overhead(48) - payloadDataHeaderSize(12) - 4 = 1436.
	// A huge outstandingBytes must NOT by itself push this over budget;
	// only queuedBytes (the pending-queue byte count) should.
	d := newDataChunk(50)
	p := &Packet{transport: transport, overhead: transport.overhead()}

	peer.queuedBytes = 0
	assert.Equal(t, VerdictDelay, canAppendData(p, d, peer), "small queuedBytes should still be delayable")

	peer.queuedBytes = 2000 // alone already exceeds room together with ds
	assert.Equal(t, VerdictOK, canAppendData(p, d, peer), "large queuedBytes should force immediate send")
}

func TestTransmitChunkSyncsQueuedBytesFromPendingQueue(t *testing.T) {
	a, transport, _ := newTestAssociation(1500)
	a.Peer().rwnd = 100000

	a.SendUserMessage(0, make([]byte, 300), false, PayloadTypeWebRTCBinary)
	assert.Equal(t, uint32(300), uint32(a.pendingQueue.getNumBytes()))

	c := a.PopPending()
	require.NotNil(t, c)
	emitter := NewEmitter(a, a)

	_, err := a.TransmitChunk(transport, c, emitter, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(300), a.Peer().queuedBytes, "TransmitChunk must sync queuedBytes from the pending queue before admission")
}

func TestDataAccountClampsRwndAtZero(t *testing.T) {
	a, transport, _ := newTestAssociation(1500)
	peer := a.Peer()
	peer.rwnd = 40

	p := transport.ensurePacket(1, 1, 1)
	d := newDataChunk(100)
	dataAccount(p, d, peer, a)
	assert.Equal(t, uint32(0), peer.rwnd)
}

func TestBundledDataAndSack(t *testing.T) {
	a, transport, _ := newTestAssociation(1500)
	peer := a.Peer()
	peer.rwnd = 100000
	peer.sackTimerArmed = true
	peer.sackGeneration = transport.sackGeneration

	p := transport.ensurePacket(a.sourcePort, a.destinationPort, a.peerVerificationTag)
	d := newDataChunk(100)

	v := appendChunk(p, d, peer, a)
	require.Equal(t, VerdictOK, v)
	require.Len(t, p.chunkList, 2)

	_, isSack := p.chunkList[0].c.(*chunkSelectiveAck)
	assert.True(t, isSack)
	_, isData := p.chunkList[1].c.(*chunkPayloadData)
	assert.True(t, isData)

	assert.True(t, p.hasSack)
	assert.True(t, p.hasData)
	assert.False(t, peer.sackTimerArmed)
}

func TestPMTUFullFlushAndRetry(t *testing.T) {
	a, transport, af := newTestAssociationWithHeaderLen(1500, 0)
	peer := a.Peer()
	peer.rwnd = 100000

	p := transport.ensurePacket(a.sourcePort, a.destinationPort, a.peerVerificationTag)

	// Fill the packet to 1480 bytes total (including overhead = 12).
	filler := &fakeChunk{typ: ctError, valueLen: 1464} // 1468 raw -> 1468 padded
	require.Equal(t, VerdictOK, appendChunkRaw(p, filler, peer))
	require.Equal(t, 12+1468, p.size)

	emitter := NewEmitter(a, a)
	newChunk := &fakeChunk{typ: ctError, valueLen: 36} // 40 raw -> 40 padded

	v, err := transmitChunk(p, newChunk, peer, a, emitter, false)
	require.NoError(t, err)
	assert.Equal(t, VerdictOK, v)

	require.Len(t, af.transmitted, 1, "original packet should have been flushed exactly once")
	assert.Equal(t, 1, len(p.chunkList), "the new chunk should now be alone in the reset packet")
	assert.Equal(t, p.overhead+40, p.size)
}
