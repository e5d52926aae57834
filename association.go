package sctp

import (
	"sync"

	"github.com/pion/logging"
	"github.com/pion/randutil"
	"github.com/pkg/errors"
)

// Use global random generator to properly seed by crypto grade random.
var globalMathRandomGenerator = randutil.NewMathRandomGenerator() // nolint:gochecknoglobals

const (
	initialMTU            uint32 = 1228 // initial MTU for outgoing packets, before PMTU discovery
	defaultMaxMessageSize uint32 = 65536
)

// association state enums. The full handshake/shutdown state machine
// lives in the endpoint layer this core treats as an external
// collaborator; this subset backs Association.state. The Nagle rule in
// canAppendData reads peerView.established rather than this state.
const (
	closed uint32 = iota
	cookieWait
	cookieEchoed
	established
	shutdownAckSent
	shutdownPending
	shutdownReceived
	shutdownSent
)

// AssociationConfig collects the arguments needed to construct an
// Association. There is no CLI, environment, or file-based
// configuration in this core's scope (spec section 6); callers build
// this struct directly, the way the teacher's Config did for its own
// narrower purpose.
type AssociationConfig struct {
	MaxMessageSize uint32
	LoggerFactory  logging.LoggerFactory

	SourcePort          uint16
	DestinationPort     uint16
	PeerVerificationTag uint32

	// Nagle enables Nagle-style DATA coalescing per CanAppendData.
	Nagle bool

	// PRSCTPCapable marks the association as having negotiated partial
	// reliability (PR-SCTP); see DataAccount's abandon-eligibility rule.
	PRSCTPCapable bool

	// Auth, when non-nil, turns on SCTP-AUTH: every chunk type in
	// AuthChunkTypes is bundled behind an AUTH chunk signed with Key
	// under KeyID, per RFC 4895.
	Auth *AssociationAuthConfig
}

// AssociationAuthConfig is the already-negotiated SCTP-AUTH state this
// core needs. Deriving the shared key from the four-way handshake's
// random/chunk-list exchange (RFC 4895 section 6.3) is handshake
// machinery and out of scope; callers install the derived key directly.
type AssociationAuthConfig struct {
	KeyID          uint16
	Key            []byte
	Algorithm      hmacAlgorithm
	AuthChunkTypes map[chunkType]bool
}

// Association is the outbound packetizer's association-level state: the
// TSN/SSN generators, the peer's receiver-window view, the pending and
// in-flight DATA queues, the delayed-ack bookkeeping, and the set of
// Transports this association currently sends through. The teacher's
// Association additionally drove the full INIT/COOKIE handshake and the
// duplex Stream read/write API; both are external to this core's scope
// (spec section 1) and have been trimmed -- see DESIGN.md.
type Association struct {
	lock sync.Mutex

	state uint32

	sourcePort          uint16
	destinationPort     uint16
	peerVerificationTag uint32

	myNextTSN uint32
	nextSSN   map[uint16]uint16

	peer peerView

	maxMessageSize uint32
	maxPayloadSize uint32

	pendingQueue  *pendingQueue
	inflightQueue *payloadQueue

	transports map[string]*Transport

	ackTimer *ackTimer

	authConfig *AssociationAuthConfig
	authKeys   *authKeyStore

	autocloseRestart func()

	stats *associationStats

	name string
	log  logging.LeveledLogger
}

// NewAssociation constructs an Association with no transports attached;
// call AddTransport for each peer transport address before sending.
func NewAssociation(config AssociationConfig) *Association {
	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	maxMessageSize := config.MaxMessageSize
	if maxMessageSize == 0 {
		maxMessageSize = defaultMaxMessageSize
	}

	a := &Association{
		state:               established,
		sourcePort:          config.SourcePort,
		destinationPort:     config.DestinationPort,
		peerVerificationTag: config.PeerVerificationTag,
		myNextTSN:           globalMathRandomGenerator.Uint32(),
		nextSSN:             make(map[uint16]uint16),
		maxMessageSize:      maxMessageSize,
		maxPayloadSize:      initialMTU - commonHeaderSize12 - payloadDataHeaderSize,
		pendingQueue:        newPendingQueue(),
		inflightQueue:       newPayloadQueue(),
		transports:          make(map[string]*Transport),
		authKeys:            newAuthKeyStore(),
		stats:               &associationStats{},
		name:                "sctp",
		log:                 loggerFactory.NewLogger("sctp"),
	}
	a.peer.nagle = config.Nagle
	a.peer.prsctpCapable = config.PRSCTPCapable
	a.peer.established = true
	a.peer.sackGeneration = 1

	if config.Auth != nil {
		a.authConfig = config.Auth
		a.authKeys.setKey(config.Auth.KeyID, config.Auth.Key)
	}

	a.ackTimer = newAckTimer(a)
	return a
}

// AddTransport attaches a new peer-address Transport to the association,
// generalizing the teacher's single implicit path into the multi-homed
// model described in spec section 3 / original_source's struct
// sctp_transport.
func (a *Association) AddTransport(addr string, af AddressFamily, router Router, pathmtu uint32) *Transport {
	a.lock.Lock()
	defer a.lock.Unlock()

	t := NewTransport(a, addr, af, router, pathmtu)
	t.sackGeneration = a.peer.sackGeneration
	a.transports[addr] = t
	return t
}

func (a *Association) Transport(addr string) (*Transport, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()
	t, ok := a.transports[addr]
	return t, ok
}

// assignTSN implements the sequenceAllocator interface (spec section 6's
// assign_tsn). The caller must hold a.lock -- DataAccount is always
// invoked with the association lock held, per spec section 5.
func (a *Association) assignTSN(_ *chunkPayloadData) uint32 {
	tsn := a.myNextTSN
	a.myNextTSN++
	return tsn
}

// assignSSN implements assign_ssn: one counter per outbound stream,
// incrementing only on ordered sends (RFC 4960 section 6.6: a U-flagged
// DATA chunk never advances the stream sequence number).
func (a *Association) assignSSN(d *chunkPayloadData) uint16 {
	if d.unordered {
		return 0
	}
	ssn := a.nextSSN[d.streamIdentifier]
	a.nextSSN[d.streamIdentifier] = ssn + 1
	return ssn
}

// MakeAuth implements ChunkFactory.MakeAuth: construct an AUTH chunk
// with a zeroed MAC field, ready for AppendChunk_Raw. The Emitter
// computes and back-patches the real MAC at emit time.
func (a *Association) MakeAuth() (*chunkAuth, error) {
	if a.authConfig == nil {
		return nil, nil
	}
	return &chunkAuth{
		sharedKeyID: a.authConfig.KeyID,
		hmacID:      a.authConfig.Algorithm,
	}, nil
}

// MakeSack implements ChunkFactory.MakeSack: a minimal current SACK
// reflecting the advertised receiver window. Gap-ack-block computation
// against the inbound payload queue is the inbound reassembly path's
// job -- out of scope for the outbound core -- so this reports no gaps,
// matching the common "nothing selectively missing" case.
func (a *Association) MakeSack(rwnd uint32) (*chunkSelectiveAck, error) {
	return &chunkSelectiveAck{
		cumulativeTSNAck:               a.inflightQueueCumulativeTSN(),
		advertisedReceiverWindowCredit: rwnd,
	}, nil
}

func (a *Association) inflightQueueCumulativeTSN() uint32 {
	tsn, ok := a.inflightQueue.getLastTSNReceived()
	if !ok {
		return 0
	}
	return tsn
}

// CancelSackTimer implements ChunkFactory.CancelSackTimer.
func (a *Association) CancelSackTimer() {
	a.peer.sackTimerArmed = false
	a.ackTimer.stop()
}

// onAckTimeout implements ackTimerObserver, arming the SACK-bundling
// eligibility the next time a DATA chunk is appended.
func (a *Association) onAckTimeout() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.peer.sackTimerArmed = true
	a.stats.incAckTimeouts()
}

// AuthKey implements AuthKeySource.
func (a *Association) AuthKey(keyID uint16) ([]byte, bool) {
	return a.authKeys.key(keyID)
}

// OnPacketEmitted implements EmitHooks. When dataSent is true it counts
// one DATA packet in stats and runs the AUTOCLOSE restart hook. It keeps
// no count of all packets sent and does not record t.
func (a *Association) OnPacketEmitted(t *Transport, dataSent bool) {
	if dataSent {
		a.stats.incDATAs()
		if a.autocloseRestart != nil {
			a.autocloseRestart()
		}
	}
	_ = t
}

// SendUserMessage fragments raw into DATA chunks (per stream ssi,
// unordered per the caller) and pushes them onto the pending queue for
// the outbound queue to drain via TransmitChunk. Fragmentation itself
// stays grounded in the teacher's Stream.packetize; see message.go.
func (a *Association) SendUserMessage(streamIdentifier uint16, raw []byte, unordered bool, ppi PayloadProtocolIdentifier) {
	a.lock.Lock()
	defer a.lock.Unlock()

	ssn := a.nextSSN[streamIdentifier]
	chunks := fragmentMessage(raw, streamIdentifier, ssn, unordered, ppi, a.maxPayloadSize)
	authRequired := a.authConfig != nil && a.authConfig.AuthChunkTypes[ctPayloadData]
	for _, c := range chunks {
		c.authRequired = authRequired
		a.pendingQueue.push(c)
	}
}

// PopPending returns the next ready DATA chunk fragment from the pending
// queue without removing it (AckPending removes it), honoring the
// pendingQueue's fragment-ordering invariant (a message's fragments must
// leave in order once the first is selected).
func (a *Association) PopPending() *chunkPayloadData {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.pendingQueue.peek()
}

// AckPending is called once a chunk returned by PopPending has actually
// been admitted by TransmitChunk, completing its trip through the
// pending queue's selection state machine.
func (a *Association) AckPending(c *chunkPayloadData) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if err := a.pendingQueue.pop(c); err != nil {
		return errors.Wrap(err, "pending queue pop")
	}
	a.inflightQueue.pushNoCheck(c)
	return nil
}

// UpdatePeerReceiverWindow installs a newly-advertised rwnd, as seen in
// an inbound SACK; this core never parses SACKs itself (inbound
// processing is out of scope) but exposes the setter the caller needs.
func (a *Association) UpdatePeerReceiverWindow(rwnd uint32) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.peer.rwnd = rwnd
}

// Lock/Unlock expose the association lock to callers driving
// TransmitChunk directly against a's peerView and a Transport's Packet,
// mirroring spec section 5's "the packetizer assumes the caller holds
// the association lock".
func (a *Association) Lock()   { a.lock.Lock() }
func (a *Association) Unlock() { a.lock.Unlock() }

// Peer returns the live peerView for direct use by TransmitChunk
// callers. Must be called with the lock held.
func (a *Association) Peer() *peerView {
	return &a.peer
}

// SetAutocloseRestart installs the AUTOCLOSE timer restart hook (spec
// section 4.8 step 10); nil disables it (the default: no AUTOCLOSE).
func (a *Association) SetAutocloseRestart(fn func()) {
	a.autocloseRestart = fn
}

// Stats exposes the association's packet/retransmit counters.
func (a *Association) Stats() *associationStats {
	return a.stats
}

// TransmitChunk is the outbound queue's entry point (spec section 4.6):
// offer c to t's live Packet, flushing through emitter on PMTU_FULL and
// retrying once unless onePacket suppresses the retry. Callers must hold
// a.lock (see Lock/Unlock) for the duration of the call, matching spec
// section 5's single-threaded-per-association assumption.
func (a *Association) TransmitChunk(t *Transport, c chunk, emitter *Emitter, onePacket bool) (Verdict, error) {
	p := t.ensurePacket(a.sourcePort, a.destinationPort, a.peerVerificationTag)
	a.peer.queuedBytes = uint32(a.pendingQueue.getNumBytes())
	return transmitChunk(p, c, &a.peer, a, emitter, onePacket)
}
