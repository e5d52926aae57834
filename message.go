package sctp

// fragmentMessage splits one user message into the sequence of DATA chunk
// fragments the outbound queue will offer to TransmitChunk, one per
// maxFragmentSize-sized piece. Ported out of the teacher's Stream.packetize,
// which fragmented inline against live Stream/Association state; this
// version takes its inputs explicitly since message fragmentation no longer
// has a duplex Stream sitting above it in this core's scope.
func fragmentMessage(raw []byte, streamIdentifier uint16, ssn uint16, unordered bool, ppi PayloadProtocolIdentifier, maxFragmentSize uint32) []*chunkPayloadData {
	i := uint32(0)
	remaining := uint32(len(raw))

	var chunks []*chunkPayloadData
	var head *chunkPayloadData
	msg := &dataMessageOptions{canDelay: true, canAbandon: true}

	for remaining != 0 || (remaining == 0 && len(chunks) == 0) {
		fragmentSize := maxFragmentSize
		if remaining < fragmentSize {
			fragmentSize = remaining
		}

		userData := make([]byte, fragmentSize)
		copy(userData, raw[i:i+fragmentSize])

		c := &chunkPayloadData{
			streamIdentifier:     streamIdentifier,
			userData:             userData,
			unordered:            unordered,
			beginningFragment:    i == 0,
			endingFragment:       remaining-fragmentSize == 0,
			payloadType:          ppi,
			streamSequenceNumber: ssn,
			head:                 head,
			msg:                  msg,
		}

		if head == nil {
			head = c
		}

		chunks = append(chunks, c)

		remaining -= fragmentSize
		i += fragmentSize

		if fragmentSize == 0 {
			break
		}
	}

	return chunks
}
