package sctp

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Create the crc32 table we'll use for the checksum
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli) // nolint:gochecknoglobals

// Allocate and zero this data once.
// We need to use it for the checksum and don't want to allocate/clear each time.
var fourZeroes [4]byte // nolint:gochecknoglobals

const (
	packetHeaderSize = 12
)

// packetEntry is a chunk queued on a Packet together with its already
// marshaled, unpadded wire bytes. Chunk bodies are built once by their
// constructors (external to this package's concerns, see spec non-goals)
// and never re-marshaled by the packetizer; the packetizer only reads
// raw, pads it, and concatenates it.
type packetEntry struct {
	c         chunk
	raw       []byte // marshaled chunk bytes, chunkHeaderSize+valueLength, no padding
	paddedLen int    // ceil(len(raw)/4)*4
}

// Packet is the per-transport outbound accumulator described in spec
// section 3. It is not safe for concurrent use; the caller (the
// association's send path, holding the association lock) serializes all
// access to a given Packet, mirroring struct sctp_packet in output.c.
type Packet struct {
	transport *Transport

	sourcePort      uint16
	destinationPort uint16
	vtag            uint32

	chunkList []*packetEntry

	size     int // overhead + sum of padded chunk lengths
	overhead int // network header + 12-byte SCTP common header
	maxSize  int // GSO cap when offload is available, else == pathmtu

	hasCookieEcho bool
	hasSack       bool
	hasData       bool
	hasAuth       bool
	ipfragok      bool

	// auth is the AUTH chunk currently positioned in chunkList, if any.
	// Needed both for reordering semantics (it must precede every
	// authenticated chunk) and for HMAC back-patching at emit time.
	auth *chunkAuth
}

// newPacket initializes a Packet for one (transport, src-port, dst-port)
// triple. Mirrors sctp_packet_init + sctp_packet_config in output.c.
func newPacket(transport *Transport, sport, dport uint16, vtag uint32) *Packet {
	p := &Packet{
		transport:       transport,
		sourcePort:      sport,
		destinationPort: dport,
		vtag:            vtag,
		overhead:        transport.overhead(),
	}
	p.maxSize = transport.maxSegmentSize()
	p.reset()
	return p
}

// reset drains the packet back to its empty state. DATA chunks stay owned
// by the retransmit queue; reset only clears bookkeeping and drops the
// Packet's chunk list.
func (p *Packet) reset() {
	p.chunkList = nil
	p.size = p.overhead
	p.hasCookieEcho = false
	p.hasSack = false
	p.hasData = false
	p.hasAuth = false
	p.ipfragok = false
	p.auth = nil
}

func (p *Packet) empty() bool {
	return len(p.chunkList) == 0
}

// findEntry locates the packetEntry wrapping c, used by willFit to read
// back the AUTH chunk's already-marshaled padded length.
func (p *Packet) findEntry(c chunk) *packetEntry {
	for _, e := range p.chunkList {
		if e.c == c {
			return e
		}
	}
	return nil
}

// paddedLength returns ceil(len(raw)/4)*4, the on-wire footprint of a
// chunk including its zero padding (spec section 3, invariant 1).
func paddedLength(raw []byte) int {
	return len(raw) + getPadding(len(raw))
}

// marshalChunk marshals c once and reports its padded wire length. The
// constructors this package relies on (MakeAuth, MakeSack, the
// chunk_*.go bodies) are pure, so marshaling once and caching the bytes
// is equivalent to the kernel always carrying an already-built skb for
// each chunk.
func marshalChunk(c chunk) (*packetEntry, error) {
	raw, err := c.marshal()
	if err != nil {
		return nil, err
	}
	return &packetEntry{c: c, raw: raw, paddedLen: paddedLength(raw)}, nil
}

// header writes the 12-byte SCTP common header (checksum left zeroed).
func (p *Packet) header() []byte {
	raw := make([]byte, packetHeaderSize)
	binary.BigEndian.PutUint16(raw[0:], p.sourcePort)
	binary.BigEndian.PutUint16(raw[2:], p.destinationPort)
	binary.BigEndian.PutUint32(raw[4:], p.vtag)
	return raw
}

func generatePacketChecksum(raw []byte) (sum uint32) {
	// Fastest way to do a crc32 without allocating.
	sum = crc32.Update(sum, castagnoliTable, raw[0:8])
	sum = crc32.Update(sum, castagnoliTable, fourZeroes[:])
	sum = crc32.Update(sum, castagnoliTable, raw[12:])
	return sum
}

// String makes Packet printable for logging.
func (p *Packet) String() string {
	s := fmt.Sprintf("Packet: sourcePort=%d destinationPort=%d vtag=%d size=%d/%d",
		p.sourcePort, p.destinationPort, p.vtag, p.size, p.maxSize)
	for i, e := range p.chunkList {
		s += fmt.Sprintf("\n  chunk %d: %s (%d bytes padded)", i, e.c, e.paddedLen)
	}
	return s
}
