package sctp

import (
	"sync"

	"github.com/pion/logging"
)

// commonHeaderSize12 documents the fixed 12-byte SCTP common header
// accounted for in every Transport's overhead.
const commonHeaderSize12 = 12

// RouteInfo is what a Router resolves for one Transport: the effective
// path MTU, whether segmentation offload is available and its cap, and
// whether the underlying device offers SCTP checksum offload. This
// stands in for sctp_transport_dst_check/sctp_transport_route and
// sk_can_gso/dev->gso_max_size in output.c section 4.9 of spec.md --
// routing and device-capability lookup are external collaborators.
// refreshRouteIfStale applies GSOMaxSize, and PathMTU when PMTU discovery
// is enabled; it does not apply ChecksumOffload.
type RouteInfo struct {
	PathMTU         uint32
	GSOMaxSize      uint32 // 0 means no segmentation offload on this path
	ChecksumOffload bool   // device offers SCTP CRC offload for this path; not read by refreshRouteIfStale
}

// Router resolves/refreshes the route (and therefore PMTU/GSO/offload
// capability) for a Transport. Implementations typically cache the
// result and only do real work when the cached route has gone stale,
// mirroring sctp_transport_dst_check.
type Router interface {
	Resolve(t *Transport) (RouteInfo, error)
}

// AddressFamily is the IP-family hand-off: the bytes the Emitter
// produces, handed to the actual network transmit primitive, plus the
// ECN marking hook. Both are external collaborators per spec section 6
// (af.ecn_capable, af.sctp_xmit) -- this core never opens a socket.
type AddressFamily interface {
	// NetworkHeaderLen is the IPv4 or IPv6 header length contributed to
	// Packet.overhead.
	NetworkHeaderLen() int

	// ECNCapable marks the outgoing datagram(s) ECT-capable. Errors are
	// not actionable by the packetizer (spec section 4.8 step 8) and are
	// only used for logging by the caller.
	ECNCapable(t *Transport) error

	// Transmit hands one or more self-contained wire segments to the IP
	// layer. For a non-GSO emit there is exactly one segment; for a GSO
	// super-packet, each segment is a complete SCTP packet of at most
	// pathmtu bytes. Its return value is absorbed by the caller: Emit
	// only logs it and never turns it into a verdict or an error.
	Transmit(segments [][]byte, t *Transport) error
}

// Transport is the per-peer-transport-address outbound state described
// in spec section 3 and modeled on struct sctp_transport in
// include/net/sctp/structs.h. The teacher's Association instead folds
// all of this directly into itself because it only ever speaks to one
// peer address; this type generalizes those fields back out so an
// Association can hold one Transport per destination IP, as the
// original kernel source does.
type Transport struct {
	mu sync.Mutex

	name string
	log  logging.LeveledLogger

	association *Association
	af          AddressFamily
	router      Router

	addr string // opaque key identifying the peer transport address

	pathmtu    uint32
	gsoMaxSize uint32 // 0 disables GSO on this path
	dstStale   bool

	pmtuDiscoveryEnabled bool

	// checksumOffload is a pluggable predicate (spec section 9: "an
	// implementer must expose a pluggable predicate rather than
	// hard-coding it, since the predicate differs per platform") rather
	// than a bool, so callers can react to xfrm/device feature changes
	// between packets.
	checksumOffload func() bool

	cwnd                 uint32
	ssthresh             uint32
	partialBytesAcked    uint32
	inFastRecovery       bool
	fastRecoverExitPoint uint32
	flightSize           uint32

	// burstLimited caps a single GSO super-packet to half of this value
	// instead of half of cwnd when non-zero (spec section 4.1 rule 5),
	// mirroring transport->burst_limited in output.c.
	burstLimited uint32

	rtoPending     bool
	sackGeneration uint32

	packet *Packet // the live per-transport accumulator
}

// NewTransport constructs a Transport for one peer address with the given
// pathmtu, seeding cwnd with min(4*pathmtu, max(2*pathmtu, 4380)).
func NewTransport(asoc *Association, addr string, af AddressFamily, router Router, pathmtu uint32) *Transport {
	t := &Transport{
		name:            addr,
		log:             asoc.log,
		association:     asoc,
		af:              af,
		router:          router,
		addr:            addr,
		pathmtu:         pathmtu,
		checksumOffload: func() bool { return false },
	}
	t.cwnd = min32(4*pathmtu, max32(2*pathmtu, 4380))
	t.ssthresh = pathmtu * 64
	t.sackGeneration = 1
	return t
}

func (t *Transport) overhead() int {
	return t.af.NetworkHeaderLen() + commonHeaderSize12
}

// maxSegmentSize is the GSO cap from spec section 3 (max_size): the
// device's segmentation-offload cap when offload is available, else
// equal to pathmtu.
func (t *Transport) maxSegmentSize() int {
	if t.gsoMaxSize > 0 {
		return int(t.gsoMaxSize)
	}
	return int(t.pathmtu)
}

func (t *Transport) gsoAvailable() bool {
	return t.gsoMaxSize > 0
}

// refreshRouteIfStale resolves a fresh route when the cached one is
// stale, and resyncs pathmtu if the association has PMTU discovery
// enabled -- spec section 4.8 step 4 / sctp_transport_dst_check +
// sctp_assoc_sync_pmtu in output.c.
func (t *Transport) refreshRouteIfStale() error {
	if !t.dstStale || t.router == nil {
		return nil
	}
	info, err := t.router.Resolve(t)
	if err != nil {
		return err
	}
	t.gsoMaxSize = info.GSOMaxSize
	if t.pmtuDiscoveryEnabled {
		t.pathmtu = info.PathMTU
	}
	t.dstStale = false
	return nil
}

// ensurePacket returns the live Packet accumulator for this transport,
// lazily creating it the first time; on later calls it updates the vtag,
// ports and maxSize of the existing Packet in place.
func (t *Transport) ensurePacket(sport, dport uint16, vtag uint32) *Packet {
	if t.packet == nil {
		t.packet = newPacket(t, sport, dport, vtag)
		return t.packet
	}
	t.packet.vtag = vtag
	t.packet.sourcePort = sport
	t.packet.destinationPort = dport
	t.packet.maxSize = t.maxSegmentSize()
	return t.packet
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
