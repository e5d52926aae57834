package sctp

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// incomingPacket is the read-side counterpart of Packet: a flat, already
// verified view over a wire-format SCTP packet, used by tests (to check
// what the Emitter actually produced) and by any caller that needs to
// decode a datagram before dispatching its chunks to the association.
// Kept from the teacher's original unexported packet.unmarshal, split out
// because the outbound accumulator (Packet) no longer shares a type with
// the inbound view -- the two have disjoint invariants.
type incomingPacket struct {
	sourcePort      uint16
	destinationPort uint16
	verificationTag uint32
	chunks          []chunk
}

func parsePacket(raw []byte) (*incomingPacket, error) {
	if len(raw) < packetHeaderSize {
		return nil, errors.Errorf("raw only %d bytes, %d is the minimum length for a SCTP packet", len(raw), packetHeaderSize)
	}

	p := &incomingPacket{
		sourcePort:      binary.BigEndian.Uint16(raw[0:]),
		destinationPort: binary.BigEndian.Uint16(raw[2:]),
		verificationTag: binary.BigEndian.Uint32(raw[4:]),
	}

	offset := packetHeaderSize
	for {
		if offset == len(raw) {
			break
		} else if offset+chunkHeaderSize > len(raw) {
			return nil, errors.Errorf("unable to parse SCTP chunk, not enough data for complete header: offset %d remaining %d", offset, len(raw))
		}

		var c chunk
		switch chunkType(raw[offset]) {
		case ctInit:
			c = &chunkInit{}
		case ctInitAck:
			c = &chunkInitAck{}
		case ctAbort:
			c = &chunkAbort{}
		case ctCookieEcho:
			c = &chunkCookieEcho{}
		case ctCookieAck:
			c = &chunkCookieAck{}
		case ctHeartbeat:
			c = &chunkHeartbeat{}
		case ctHeartbeatAck:
			c = &chunkHeartbeatAck{}
		case ctPayloadData:
			c = &chunkPayloadData{}
		case ctSack:
			c = &chunkSelectiveAck{}
		case ctReconfig:
			c = &chunkReconfig{}
		case ctForwardTSN:
			c = &chunkForwardTSN{}
		case ctError:
			c = &chunkError{}
		case ctAuth:
			c = &chunkAuth{}
		case ctShutdown:
			c = &chunkShutdown{}
		case ctShutdownAck:
			c = &chunkShutdownAck{}
		case ctShutdownComplete:
			c = &chunkShutdownComplete{}
		default:
			return nil, errors.Errorf("failed to unmarshal, contains unknown chunk type %s", chunkType(raw[offset]).String())
		}

		if err := c.unmarshal(raw[offset:]); err != nil {
			return nil, err
		}

		p.chunks = append(p.chunks, c)
		chunkValuePadding := getPadding(c.valueLength())
		offset += chunkHeaderSize + c.valueLength() + chunkValuePadding
	}

	theirChecksum := binary.LittleEndian.Uint32(raw[8:])
	ourChecksum := generatePacketChecksum(raw)
	if theirChecksum != ourChecksum {
		return nil, errors.Errorf("checksum mismatch theirs: %d ours: %d", theirChecksum, ourChecksum)
	}
	return p, nil
}
