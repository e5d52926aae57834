package sctp

import "github.com/pkg/errors"

// Sentinel errors returned by the Emitter and route-resolution paths.
// Admission outcomes (RWND_FULL/PMTU_FULL/DELAY) are never errors -- see
// Verdict -- these are reserved for the fatal, caller-must-rebuild cases
// described in spec section 7.
var (
	// ErrChunkTooLarge is returned when a single chunk (plus any AUTH
	// chunk riding along in every GSO segment) cannot fit in one PMTU
	// even alone; this is a configuration error, not back-pressure.
	ErrChunkTooLarge = errors.New("sctp: chunk too large to fit in any segment")

	// ErrGSOUnsupported is returned when a packet exceeds the path MTU
	// but the transport has no segmentation-offload capability to fall
	// back on.
	ErrGSOUnsupported = errors.New("sctp: packet exceeds PMTU and GSO is unavailable")

	// ErrNoRoute names the case where the transport has no route (dst)
	// to the peer address. Nothing in this package returns it: Emit
	// returns a Router's resolution error wrapped as "refresh route".
	ErrNoRoute = errors.New("sctp: no route to transport")

	// ErrEmitAllocFailed stands in for the kernel's nomem path: an
	// allocation failure mid-emit. Nothing in this package returns it.
	ErrEmitAllocFailed = errors.New("sctp: allocation failed while emitting packet")
)
