package sctp

import "fmt"

// Verdict is the outcome of offering a chunk to a Packet for appending.
// This is the Go analogue of the teacher's sctp_xmit_t: a closed enum,
// never an error, returned on the hot admission path described in
// RFC 4960 section 6.1.
type Verdict int

const (
	// VerdictOK admits the chunk; it now belongs to the packet.
	VerdictOK Verdict = iota

	// VerdictRWNDFull means the peer's receiver window (or this
	// transport's congestion window) does not currently allow the
	// chunk. The caller keeps the chunk queued and retries later.
	VerdictRWNDFull

	// VerdictPMTUFull means the chunk does not fit in the packet as it
	// stands. The caller should flush (emit) the packet and retry.
	VerdictPMTUFull

	// VerdictDelay means Nagle-style coalescing prefers to wait for more
	// data before sending this chunk. The caller keeps the chunk queued.
	VerdictDelay
)

func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "OK"
	case VerdictRWNDFull:
		return "RWND_FULL"
	case VerdictPMTUFull:
		return "PMTU_FULL"
	case VerdictDelay:
		return "DELAY"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}
