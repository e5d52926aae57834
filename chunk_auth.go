package sctp

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

/*
chunkAuth represents an SCTP AUTH chunk, defined in RFC 4895 section 3.2.
It carries an HMAC computed over itself (with the MAC field zeroed) and
every chunk placed after it in the same packet -- see the back-patch step
in Emit.

 0                   1                   2                   3
 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|   Type = 0x0F | Flags = 0     |       Length                  |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|          Shared Key Identifier|      HMAC Identifier           |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                                                               |
|                  HMAC (length depends on algorithm)            |
|                                                               |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
*/
type chunkAuth struct {
	chunkHeader

	sharedKeyID uint16
	hmacID      hmacAlgorithm
	hmac        []byte // HMAC(ID) wide; Emit writes the real MAC into the wire buffer, not here
}

const (
	authHeaderSize = 4
)

func (a *chunkAuth) unmarshal(raw []byte) error {
	if err := a.chunkHeader.unmarshal(raw); err != nil {
		return err
	}

	if a.typ != ctAuth {
		return errors.Errorf("ChunkType is not of type AUTH, actually is %s", a.typ.String())
	}

	if len(a.raw) < authHeaderSize {
		return errors.Errorf("AUTH chunk too small to contain header (%d bytes)", len(a.raw))
	}

	a.sharedKeyID = binary.BigEndian.Uint16(a.raw[0:])
	a.hmacID = hmacAlgorithm(binary.BigEndian.Uint16(a.raw[2:]))
	a.hmac = append([]byte(nil), a.raw[authHeaderSize:]...)
	return nil
}

func (a *chunkAuth) marshal() ([]byte, error) {
	if a.hmac == nil {
		size, err := hmacSize(a.hmacID)
		if err != nil {
			return nil, err
		}
		a.hmac = make([]byte, size)
	}

	raw := make([]byte, authHeaderSize+len(a.hmac))
	binary.BigEndian.PutUint16(raw[0:], a.sharedKeyID)
	binary.BigEndian.PutUint16(raw[2:], uint16(a.hmacID))
	copy(raw[authHeaderSize:], a.hmac)

	a.chunkHeader.typ = ctAuth
	a.chunkHeader.raw = raw
	return a.chunkHeader.marshal()
}

func (a *chunkAuth) check() (abort bool, err error) {
	return false, nil
}

// String makes chunkAuth printable
func (a *chunkAuth) String() string {
	return fmt.Sprintf("%s keyID=%d hmac=%s", a.chunkHeader, a.sharedKeyID, a.hmacID)
}

// macOffsetInValue returns the byte offset of the HMAC field within the
// chunk's *value* (i.e. relative to chunkHeaderSize). Emit computes the
// same offset itself and does not call this.
func (a *chunkAuth) macOffsetInValue() int {
	return authHeaderSize
}
