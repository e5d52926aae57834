// Package authhmac computes the HMAC used to authenticate SCTP packets
// per RFC 4895 section 6.2. It wraps the stdlib crypto/hmac primitive --
// the same one github.com/pion/stun/internal/hmac wraps for STUN message
// integrity, vendored alongside this module's teacher -- since the pack
// carries no alternative HMAC or SHA implementation.
package authhmac

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec
	"crypto/sha256"
	"fmt"
	"hash"
)

// Algorithm identifies the HMAC function negotiated for an association,
// matching the IANA SCTP HMAC Identifier values used on the wire.
type Algorithm uint16

// Negotiable algorithms, per RFC 4895 section 6.1. SHA-1 is mandatory to
// implement; SHA-256 is the only other algorithm this package supports.
const (
	SHA1   Algorithm = 1
	SHA256 Algorithm = 3
)

// Size returns the MAC length, in bytes, for algo.
func Size(algo Algorithm) (int, error) {
	switch algo {
	case SHA1:
		return sha1.Size, nil
	case SHA256:
		return sha256.Size, nil
	default:
		return 0, fmt.Errorf("authhmac: unsupported algorithm %d", algo)
	}
}

func newHashFunc(algo Algorithm) (func() hash.Hash, error) {
	switch algo {
	case SHA1:
		return sha1.New, nil
	case SHA256:
		return sha256.New, nil
	default:
		return nil, fmt.Errorf("authhmac: unsupported algorithm %d", algo)
	}
}

// Sum computes HMAC(key, data) using algo, per SCTP-AUTH section 6.2: the
// data covered is the AUTH chunk itself with its MAC field zeroed,
// followed by every chunk placed after it in the packet -- the caller
// (Emit) is responsible for assembling that exact byte range before
// calling Sum.
func Sum(algo Algorithm, key, data []byte) ([]byte, error) {
	newHash, err := newHashFunc(algo)
	if err != nil {
		return nil, err
	}
	h := hmac.New(newHash, key)
	if _, err := h.Write(data); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
