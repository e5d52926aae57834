package sctp

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/ossrs/sctp/internal/authhmac"
)

// EmitHooks are the association-level side effects Emit performs once a
// wire buffer is ready, kept as a narrow interface so the Emitter itself
// never reaches back into Association internals directly. Association's
// implementation counts a DATA packet and restarts the AUTOCLOSE timer
// when dataSent is true; it keeps no count of all packets sent and does
// not record t as the last transport sent to.
type EmitHooks interface {
	OnPacketEmitted(t *Transport, dataSent bool)
}

// AuthKeySource resolves the shared key for a shared-key identifier, used
// to compute the AUTH chunk's HMAC (RFC 4895 section 6.2).
type AuthKeySource interface {
	AuthKey(keyID uint16) ([]byte, bool)
}

// Emitter is the Serializer/Emitter component of spec section 4.8: it
// turns a Packet's chunk_list into one or more wire buffers, handling
// GSO segmentation, checksumming, and AUTH HMAC back-patching, then
// hands the result to the transport's AddressFamily.
type Emitter struct {
	hooks EmitHooks
	keys  AuthKeySource
}

// NewEmitter constructs an Emitter. keys may be nil when the association
// never negotiated SCTP-AUTH.
func NewEmitter(hooks EmitHooks, keys AuthKeySource) *Emitter {
	return &Emitter{hooks: hooks, keys: keys}
}

// Emit implements spec section 4.8. On return, p has been reset
// regardless of success (control chunks drained; DATA chunks remain the
// retransmit queue's responsibility since packetEntry.c is never owned
// by the Packet).
func (e *Emitter) Emit(p *Packet) error {
	if p.empty() {
		return nil
	}

	t := p.transport
	if err := t.refreshRouteIfStale(); err != nil {
		p.reset()
		return errors.Wrap(err, "refresh route")
	}

	var segments [][]byte
	var err error
	dataSent := p.hasData

	if p.size <= int(t.pathmtu) || p.ipfragok {
		var buf []byte
		buf, err = e.assembleSingle(p)
		if err == nil {
			segments = [][]byte{buf}
		}
	} else if t.gsoAvailable() {
		segments, err = e.assembleGSO(p)
	} else {
		err = ErrGSOUnsupported
	}

	if err != nil {
		p.reset()
		return err
	}

	if ecnErr := t.af.ECNCapable(t); ecnErr != nil && t.log != nil {
		t.log.Debugf("[%s] ecn marking failed: %v", t.name, ecnErr)
	}

	if xmitErr := t.af.Transmit(segments, t); xmitErr != nil && t.log != nil {
		t.log.Debugf("[%s] transmit: %v", t.name, xmitErr)
	}

	if e.hooks != nil {
		e.hooks.OnPacketEmitted(t, dataSent)
	}

	p.reset()
	return nil
}

// assembleSingle builds the one-buffer case: size fits PMTU, or
// ip_frag_ok lets the IP layer fragment it.
func (e *Emitter) assembleSingle(p *Packet) ([]byte, error) {
	return e.assembleSegment(p, p.chunkList, p.auth)
}

// assembleGSO implements spec section 4.8 step 6: split chunk_list into
// PMTU-sized sub-packets, each a self-contained SCTP packet, with the
// AUTH chunk (if any) replicated into every sub-packet.
func (e *Emitter) assembleGSO(p *Packet) ([][]byte, error) {
	t := p.transport
	pmtu := int(t.pathmtu)

	// The AUTH chunk, if present, is pulled out of the normal walk: its
	// length is accounted separately and it is re-synthesized fresh
	// (zeroed MAC) into every sub-packet, per spec section 4.8 step 6a.
	var rest []*packetEntry
	for _, entry := range p.chunkList {
		if p.auth != nil && entry.c == chunk(p.auth) {
			continue
		}
		rest = append(rest, entry)
	}

	authLen := 0
	if p.auth != nil {
		size, err := hmacSize(p.auth.hmacID)
		if err != nil {
			return nil, err
		}
		authLen = paddedLength(make([]byte, authHeaderSize+size)) + chunkHeaderSize
	}

	var segments [][]byte
	for len(rest) > 0 || len(segments) == 0 {
		budget := pmtu - p.overhead - authLen
		var segEntries []*packetEntry
		used := 0
		for len(rest) > 0 {
			next := rest[0]
			if used+next.paddedLen > budget {
				if used == 0 {
					return nil, ErrChunkTooLarge
				}
				break
			}
			segEntries = append(segEntries, next)
			used += next.paddedLen
			rest = rest[1:]
		}

		buf, err := e.assembleSegment(p, segEntries, p.auth)
		if err != nil {
			return nil, err
		}
		segments = append(segments, buf)

		if len(rest) == 0 {
			break
		}
	}

	return segments, nil
}

// assembleSegment builds one self-contained SCTP packet: common header,
// the AUTH chunk (freshly marshaled with a zeroed MAC, then back-patched)
// if present, followed by entries in order, then the checksum.
func (e *Emitter) assembleSegment(p *Packet, entries []*packetEntry, auth *chunkAuth) ([]byte, error) {
	t := p.transport
	buf := p.header()

	authOffset := -1
	authMacOffset := 0
	authMacSize := 0
	if auth != nil {
		size, err := hmacSize(auth.hmacID)
		if err != nil {
			return nil, err
		}
		authRaw := make([]byte, authHeaderSize+size)
		binary.BigEndian.PutUint16(authRaw[0:], auth.sharedKeyID)
		binary.BigEndian.PutUint16(authRaw[2:], uint16(auth.hmacID))

		hdr := chunkHeader{typ: ctAuth, raw: authRaw}
		marshaled, err := hdr.marshal()
		if err != nil {
			return nil, err
		}

		authOffset = len(buf)
		authMacOffset = authOffset + chunkHeaderSize + authHeaderSize
		authMacSize = size

		buf = append(buf, marshaled...)
		buf = padByte(buf, getPadding(len(marshaled)))
	}

	for _, entry := range entries {
		if entry.c == chunk(auth) {
			continue // already synthesized above
		}
		if d, ok := entry.c.(*chunkPayloadData); ok {
			if !d.retransmit && !t.rtoPending {
				d.rttInProgress = true
				t.rtoPending = true
			}
		}
		buf = append(buf, entry.raw...)
		buf = padByte(buf, getPadding(len(entry.raw)))
	}

	if auth != nil {
		key, ok := (func() ([]byte, bool) {
			if e.keys == nil {
				return nil, false
			}
			return e.keys.AuthKey(auth.sharedKeyID)
		})()
		if !ok {
			return nil, errors.Errorf("sctp: no AUTH key installed for key id %d", auth.sharedKeyID)
		}
		algo, err := toAuthhmac(auth.hmacID)
		if err != nil {
			return nil, err
		}
		mac, err := authhmac.Sum(algo, key, buf[authOffset:])
		if err != nil {
			return nil, err
		}
		copy(buf[authMacOffset:authMacOffset+authMacSize], mac)
	}

	if t.checksumOffload == nil || !t.checksumOffload() {
		sum := generatePacketChecksum(buf)
		binary.LittleEndian.PutUint32(buf[8:], sum)
	}

	return buf, nil
}
