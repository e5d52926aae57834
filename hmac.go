package sctp

import (
	"github.com/pkg/errors"

	"github.com/ossrs/sctp/internal/authhmac"
)

// toAuthhmac maps the wire-format hmacAlgorithm enum (already defined in
// param_requested_hmac_algorithm.go, RFC 4895 section 6.1 IDs) onto the
// algorithm this package's HMAC helper understands.
func toAuthhmac(a hmacAlgorithm) (authhmac.Algorithm, error) {
	switch a {
	case hmacSHA128:
		return authhmac.SHA1, nil
	case hmacSHA256:
		return authhmac.SHA256, nil
	default:
		return 0, errors.Errorf("unsupported HMAC algorithm for AUTH: %s", a)
	}
}

func hmacSize(a hmacAlgorithm) (int, error) {
	algo, err := toAuthhmac(a)
	if err != nil {
		return 0, err
	}
	return authhmac.Size(algo)
}

// authKeyStore holds the per-association shared keys used to compute the
// AUTH chunk's MAC, keyed by shared key identifier (RFC 4895 section 4).
// Deriving the endpoint pair shared key from local/peer random and chunk
// lists (RFC 4895 section 6.3) is association/handshake machinery and
// out of this core's scope; callers install the already-derived key.
type authKeyStore struct {
	keys map[uint16][]byte
}

func newAuthKeyStore() *authKeyStore {
	return &authKeyStore{keys: make(map[uint16][]byte)}
}

func (s *authKeyStore) setKey(keyID uint16, key []byte) {
	s.keys[keyID] = key
}

func (s *authKeyStore) key(keyID uint16) ([]byte, bool) {
	k, ok := s.keys[keyID]
	return k, ok
}
