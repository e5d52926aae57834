package sctp

import "time"

// fastRetransmitState enumerates whether a DATA chunk has been selected
// for immediate retransmission by SACK gap-ack processing, mirroring
// SCTP_CHUNK_FLAG_FRTX in output.c. A chunk in frtxNeeded state bypasses
// the cwnd admission rule in canAppendData; the rwnd rule still applies.
type fastRetransmitState int

const (
	frtxNone fastRetransmitState = iota
	frtxNeeded
)

// willFit determines whether a chunk of padded length l may be appended
// to p right now, per RFC 4960 section 6.1 and the PMTU/GSO/cwnd rules
// in output.c's sctp_packet_can_append_data / sctp_packet_append_chunk.
func willFit(p *Packet, c chunk, l int) Verdict {
	pmtu := int(p.transport.pathmtu)

	if p.size+l <= pmtu {
		return VerdictOK
	}

	// Rule 1: an empty packet, or a data-less packet about to carry an
	// auth-requiring chunk, lets the IP layer fragment. SCTP itself
	// never re-fragments a chunk it has already built.
	if p.empty() || (!p.hasData && requiresAuth(c)) {
		p.ipfragok = true
		return VerdictOK
	}

	authLen := 0
	if p.auth != nil {
		if e := p.findEntry(p.auth); e != nil {
			authLen = e.paddedLen
		}
	}
	maxsize := pmtu - p.overhead - authLen
	if l > maxsize {
		return VerdictPMTUFull
	}

	// Rule 3: flush before trailing a control chunk onto a DATA-bearing
	// packet.
	if _, isData := c.(*chunkPayloadData); !isData && p.hasData {
		return VerdictPMTUFull
	}

	// Rule 4: GSO cap.
	if p.size+l > p.maxSize {
		return VerdictPMTUFull
	}

	// Rule 5: a single GSO super-packet must never exceed half of cwnd
	// (or half of burst_limited, when the transport is burst-limited).
	t := p.transport
	if t.burstLimited == 0 {
		if p.size+l > int(t.cwnd)/2 {
			return VerdictPMTUFull
		}
	} else if p.size+l > int(t.burstLimited)/2 {
		return VerdictPMTUFull
	}

	return VerdictOK
}

// requiresAuth reports whether c must be preceded by an AUTH chunk.
func requiresAuth(c chunk) bool {
	if d, ok := c.(*chunkPayloadData); ok {
		return d.authRequired
	}
	return false
}

// peerView is the minimal per-association, peer-visible state
// CanAppendData/DataAccount read and mutate: the advertised receiver
// window, outstanding (in-flight but unacked) byte count across the
// whole association, the byte count still sitting on the pending
// (not-yet-sent) queue, association state, Nagle enablement, and
// whether the association negotiated PR-SCTP.
type peerView struct {
	rwnd             uint32
	outstandingBytes uint32

	// queuedBytes mirrors struct sctp_outq's out_qlen (output.c:839): the
	// pending queue's not-yet-sent byte count, a distinct counter from
	// outstandingBytes/q->outstanding_bytes (output.c:788), which tracks
	// bytes already sent and awaiting ack. The Nagle room check in
	// CanAppendData needs this one, not outstandingBytes.
	queuedBytes uint32

	established    bool
	nagle          bool
	prsctpCapable  bool
	sackTimerArmed bool
	sackGeneration uint32
	sackNeeded     bool
}

// canAppendData implements spec section 4.2: whether a DATA chunk may be
// admitted into the packet right now, mirroring
// sctp_packet_can_append_data / sctp_packet_append_data precondition
// checks in output.c.
func canAppendData(p *Packet, d *chunkPayloadData, peer *peerView) Verdict {
	t := p.transport
	ds := uint32(d.dataSize())

	// RFC 2960 section 6.1 rule A: one probe is allowed with nothing in
	// flight, regardless of rwnd.
	if ds > peer.rwnd && peer.outstandingBytes > 0 {
		return VerdictRWNDFull
	}

	// RFC 2960 section 6.1 rule B, with the fast-retransmit exemption.
	if d.fastRetransmit != frtxNeeded && t.flightSize >= t.cwnd {
		return VerdictRWNDFull
	}

	if !peer.nagle || !p.empty() || peer.outstandingBytes == 0 || !peer.established {
		return VerdictOK
	}

	room := int(t.pathmtu) - p.overhead - int(payloadDataHeaderSize) - 4
	if int(ds)+int(peer.queuedBytes) > room {
		return VerdictOK
	}
	if d.msg == nil || !d.msg.canDelay {
		return VerdictOK
	}
	return VerdictDelay
}

// dataAccount implements spec section 4.7: on DATA admission, mutate
// flight-size, outstanding-bytes, and the peer's rwnd view, and assign
// TSN/SSN via the external allocators.
func dataAccount(p *Packet, d *chunkPayloadData, peer *peerView, alloc sequenceAllocator) {
	t := p.transport
	ds := uint32(d.dataSize())

	t.flightSize += ds
	peer.outstandingBytes += ds
	if ds > peer.rwnd {
		peer.rwnd = 0
	} else {
		peer.rwnd -= ds
	}

	if !peer.prsctpCapable {
		d.setAbandoned(false)
	}

	if !d.hasTSN {
		d.tsn = alloc.assignTSN(d)
		d.hasTSN = true
	}
	if d.beginningFragment {
		d.streamSequenceNumber = alloc.assignSSN(d)
	} else if d.head != nil {
		d.streamSequenceNumber = d.head.streamSequenceNumber
	}
}

// sequenceAllocator is the external collaborator assigning TSN/SSN
// values (spec section 6: assign_tsn, assign_ssn).
type sequenceAllocator interface {
	assignTSN(d *chunkPayloadData) uint32
	assignSSN(d *chunkPayloadData) uint16
}

// authBundler implements spec section 4.3's AuthBundler: opportunistic
// AUTH insertion ahead of the first chunk in a packet that needs it.
func authBundler(p *Packet, incoming chunk, peer *peerView, factory ChunkFactory) Verdict {
	if factory == nil || p.hasAuth {
		return VerdictOK
	}
	if _, isAuth := incoming.(*chunkAuth); isAuth {
		return VerdictOK
	}
	if !requiresAuth(incoming) {
		return VerdictOK
	}

	auth, err := factory.MakeAuth()
	if err != nil || auth == nil {
		return VerdictOK
	}

	return appendChunkRaw(p, auth, peer)
}

// sackBundler implements spec section 4.3's SackBundler: opportunistic
// SACK insertion ahead of a DATA chunk when the delayed-ack timer is
// pending and nothing has invalidated it since.
func sackBundler(p *Packet, incoming chunk, peer *peerView, factory ChunkFactory) Verdict {
	d, isData := incoming.(*chunkPayloadData)
	if !isData || p.hasSack || p.hasCookieEcho {
		return VerdictOK
	}
	_ = d

	if factory == nil || !peer.sackTimerArmed || peer.sackGeneration != p.transport.sackGeneration {
		return VerdictOK
	}

	sack, err := factory.MakeSack(peer.rwnd)
	if err != nil || sack == nil {
		return VerdictOK
	}

	v := appendChunkRaw(p, sack, peer)
	if v == VerdictOK {
		peer.sackNeeded = false
		factory.CancelSackTimer()
	}
	return v
}

// ChunkFactory is the set of external constructors AppendChunk invokes
// to build companion chunks (spec section 6: make_auth, make_sack).
// Chunk body construction itself is out of this core's scope; only the
// decision of *when* to invoke these constructors belongs here.
type ChunkFactory interface {
	MakeAuth() (*chunkAuth, error)
	MakeSack(rwnd uint32) (*chunkSelectiveAck, error)
	CancelSackTimer()
}

// appendChunkRaw implements spec section 4.4 (AppendChunk_Raw): the
// final, unconditional admission of a chunk that has already passed
// CanAppendData (if applicable) and the bundlers.
func appendChunkRaw(p *Packet, c chunk, peer *peerView) Verdict {
	entry, err := marshalChunk(c)
	if err != nil {
		return VerdictPMTUFull
	}

	v := willFit(p, c, entry.paddedLen)
	if v != VerdictOK {
		return v
	}

	switch cc := c.(type) {
	case *chunkPayloadData:
		dataAccount(p, cc, peer, p.transport.association)
		p.hasData = true
		cc.since = monotonicNow()
		cc.nSent++
		cc.transport = p.transport
	case *chunkCookieEcho:
		p.hasCookieEcho = true
	case *chunkSelectiveAck:
		p.hasSack = true
		if p.transport.association != nil {
			p.transport.association.stats.incSACKs()
		}
	case *chunkAuth:
		p.hasAuth = true
		p.auth = cc
	}

	p.chunkList = append(p.chunkList, entry)
	p.size += entry.paddedLen

	return VerdictOK
}

// appendChunk implements spec section 4.5 (AppendChunk, public): for
// DATA chunks, evaluate CanAppendData first; then the bundlers, then
// the raw append (which runs DataAccount internally, per section 4.4).
// Any non-OK verdict short-circuits.
func appendChunk(p *Packet, c chunk, peer *peerView, factory ChunkFactory) Verdict {
	if d, ok := c.(*chunkPayloadData); ok {
		if v := canAppendData(p, d, peer); v != VerdictOK {
			return v
		}
	}

	if v := authBundler(p, c, peer, factory); v != VerdictOK {
		return v
	}
	if v := sackBundler(p, c, peer, factory); v != VerdictOK {
		return v
	}
	return appendChunkRaw(p, c, peer)
}

// transmitChunk implements spec section 4.6: the outbound queue's
// one-shot entry point. On PMTU_FULL with no COOKIE_ECHO in the packet,
// flush via Emit and retry once unless onePacket suppresses the retry.
func transmitChunk(p *Packet, c chunk, peer *peerView, factory ChunkFactory, emitter *Emitter, onePacket bool) (Verdict, error) {
	v := appendChunk(p, c, peer, factory)
	if v != VerdictPMTUFull || p.hasCookieEcho {
		return v, nil
	}

	if err := emitter.Emit(p); err != nil {
		return v, err
	}
	if onePacket {
		return v, nil
	}
	return appendChunk(p, c, peer, factory), nil
}

// monotonicNow is split out so tests can stub it without touching the
// hot path; production always reads the real clock.
var monotonicNow = func() time.Time { return time.Now() } // nolint:gochecknoglobals
