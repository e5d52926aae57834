package sctp

import (
	"crypto/hmac"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossrs/sctp/internal/authhmac"
)

func TestEmitSingleBufferRoundTrips(t *testing.T) {
	a, transport, af := newTestAssociation(1500)
	peer := a.Peer()
	peer.rwnd = 100000

	emitter := NewEmitter(a, a)
	p := transport.ensurePacket(a.sourcePort, a.destinationPort, a.peerVerificationTag)

	d := newDataChunk(100)
	v := appendChunk(p, d, peer, a)
	require.Equal(t, VerdictOK, v)

	require.NoError(t, emitter.Emit(p))
	require.Len(t, af.transmitted, 1)
	require.Len(t, af.transmitted[0], 1)

	decoded, err := parsePacket(af.transmitted[0][0])
	require.NoError(t, err)
	require.Len(t, decoded.chunks, 1)
	assert.Equal(t, a.sourcePort, decoded.sourcePort)
	assert.Equal(t, a.destinationPort, decoded.destinationPort)
	assert.Equal(t, a.peerVerificationTag, decoded.verificationTag)

	dd, ok := decoded.chunks[0].(*chunkPayloadData)
	require.True(t, ok)
	assert.Equal(t, 100, len(dd.userData))

	assert.True(t, p.empty())
}

func TestEmitPaddingExactZeroBytes(t *testing.T) {
	_, transport, af := newTestAssociation(1500)
	peer := &peerView{rwnd: 100000, established: true}

	p := transport.ensurePacket(5000, 5001, 1)
	// valueLen 5 -> raw chunkHeaderSize(4)+5=9 bytes -> 3 bytes of padding.
	// COOKIE ECHO carries an opaque value, so the zero-filled body decodes.
	c := &fakeChunk{typ: ctCookieEcho, valueLen: 5}
	require.Equal(t, VerdictOK, appendChunkRaw(p, c, peer))

	emitter := NewEmitter(nil, nil)
	require.NoError(t, emitter.Emit(p))
	require.Len(t, af.transmitted, 1)

	buf := af.transmitted[0][0]
	assert.Equal(t, packetHeaderSize+12, len(buf))

	decoded, err := parsePacket(buf)
	require.NoError(t, err)
	require.Len(t, decoded.chunks, 1)
	assert.Equal(t, 5, decoded.chunks[0].valueLength())
}

func TestEmitGSOSplitsIntoPMTUSegments(t *testing.T) {
	a, transport, af := newTestAssociationWithHeaderLen(500, 0)
	transport.gsoMaxSize = 64 * 1024
	// Lift the cwnd/2 packet cap so all five chunks join one packet.
	transport.cwnd = 1 << 20
	peer := a.Peer()
	peer.rwnd = 1 << 20

	emitter := NewEmitter(a, a)
	p := transport.ensurePacket(a.sourcePort, a.destinationPort, a.peerVerificationTag)

	// Five chunks, each padded length comfortably smaller than PMTU but
	// the sum well over it, forcing at least two segments.
	for i := 0; i < 5; i++ {
		d := newDataChunk(300)
		v := appendChunk(p, d, peer, a)
		require.Equal(t, VerdictOK, v)
	}

	require.NoError(t, emitter.Emit(p))
	require.Len(t, af.transmitted, 1)
	segments := af.transmitted[0]
	require.Greater(t, len(segments), 1)

	total := 0
	for _, seg := range segments {
		assert.LessOrEqual(t, len(seg), int(transport.pathmtu))
		decoded, err := parsePacket(seg)
		require.NoError(t, err)
		for _, c := range decoded.chunks {
			if dd, ok := c.(*chunkPayloadData); ok {
				total += len(dd.userData)
			}
		}
	}
	assert.Equal(t, 5*300, total)
}

func TestEmitAuthBackPatchesMAC(t *testing.T) {
	key := []byte("super-secret-shared-key")
	a := NewAssociation(AssociationConfig{
		SourcePort:          7,
		DestinationPort:     8,
		PeerVerificationTag: 42,
		Auth: &AssociationAuthConfig{
			KeyID:     1,
			Key:       key,
			Algorithm: hmacSHA1Alg(),
			AuthChunkTypes: map[chunkType]bool{
				ctPayloadData: true,
			},
		},
	})
	af := &fakeAddressFamily{headerLen: 20}
	transport := a.AddTransport("198.51.100.1:1", af, nil, 1500)
	peer := a.Peer()
	peer.rwnd = 100000

	emitter := NewEmitter(a, a)
	p := transport.ensurePacket(a.sourcePort, a.destinationPort, a.peerVerificationTag)

	d := newDataChunk(50)
	d.authRequired = true
	v := appendChunk(p, d, peer, a)
	require.Equal(t, VerdictOK, v)

	require.NoError(t, emitter.Emit(p))
	require.Len(t, af.transmitted, 1)
	buf := af.transmitted[0][0]

	decoded, err := parsePacket(buf)
	require.NoError(t, err)
	require.Len(t, decoded.chunks, 2)

	authChunk, ok := decoded.chunks[0].(*chunkAuth)
	require.True(t, ok, "AUTH chunk must precede the authenticated DATA chunk")

	// Recompute the expected MAC the same way Emit does: AUTH chunk (MAC
	// zeroed) through the rest of the buffer.
	authOffset := packetHeaderSize
	authRaw, err := (&chunkAuth{sharedKeyID: authChunk.sharedKeyID, hmacID: authChunk.hmacID}).marshal()
	require.NoError(t, err)
	padded := paddedLength(authRaw)
	signedRegion := make([]byte, 0, len(buf)-authOffset)
	signedRegion = append(signedRegion, authRaw...)
	signedRegion = append(signedRegion, make([]byte, padded-len(authRaw))...)
	signedRegion = append(signedRegion, buf[authOffset+padded:]...)

	expectedMAC, err := authhmac.Sum(authhmac.SHA1, key, signedRegion)
	require.NoError(t, err)

	assert.True(t, hmac.Equal(expectedMAC, authChunk.hmac))
}

func hmacSHA1Alg() hmacAlgorithm {
	return hmacSHA128
}
