package sctp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChunk is a minimal chunk implementation for exercising Packet/
// WillFit bookkeeping without needing a real protocol chunk of a
// specific size.
type fakeChunk struct {
	typ      chunkType
	valueLen int
}

func (f *fakeChunk) unmarshal(_ []byte) error { return nil }

func (f *fakeChunk) marshal() ([]byte, error) {
	h := chunkHeader{typ: f.typ, raw: make([]byte, f.valueLen)}
	return h.marshal()
}

func (f *fakeChunk) check() (bool, error) { return false, nil }
func (f *fakeChunk) valueLength() int     { return f.valueLen }
func (f *fakeChunk) String() string       { return "FAKE" }

func TestPacketSizeInvariant(t *testing.T) {
	_, transport, _ := newTestAssociation(1500)
	p := transport.ensurePacket(5000, 5001, 1)

	require.Equal(t, p.overhead, p.size)

	c1 := &fakeChunk{typ: ctError, valueLen: 10} // 14 bytes raw -> 16 padded
	v := appendChunkRaw(p, c1, &peerView{})
	require.Equal(t, VerdictOK, v)
	assert.Equal(t, p.overhead+16, p.size)

	c2 := &fakeChunk{typ: ctError, valueLen: 5} // 9 bytes raw -> 12 padded
	v = appendChunkRaw(p, c2, &peerView{})
	require.Equal(t, VerdictOK, v)
	assert.Equal(t, p.overhead+16+12, p.size)
}

func TestEmptyPacketOversizeChunkRule(t *testing.T) {
	a, transport, af := newTestAssociationWithHeaderLen(1500, 36)

	p := transport.ensurePacket(a.sourcePort, a.destinationPort, a.peerVerificationTag)
	require.Equal(t, 48, p.overhead)

	// chunkHeaderSize(4) + 1596 == 1600, already a multiple of 4.
	c := &fakeChunk{typ: ctError, valueLen: 1596}
	v := appendChunk(p, c, a.Peer(), a)
	require.Equal(t, VerdictOK, v)
	assert.True(t, p.ipfragok)

	emitter := NewEmitter(a, a)
	require.NoError(t, emitter.Emit(p))
	require.Len(t, af.transmitted, 1)
	require.Len(t, af.transmitted[0], 1)
	// The buffer holds the SCTP packet; the IP layer adds the network header.
	assert.Equal(t, 1648, af.headerLen+len(af.transmitted[0][0]))

	assert.True(t, p.empty())
	assert.False(t, p.ipfragok)
}
