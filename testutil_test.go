package sctp

// fakeAddressFamily is a minimal AddressFamily used across this package's
// tests: it records every segment handed to Transmit instead of putting
// bytes on a wire, since IP-level emission is out of this core's scope.
type fakeAddressFamily struct {
	headerLen   int
	ecnErr      error
	transmitErr error
	ecnCalls    int
	transmitted [][][]byte
}

func (f *fakeAddressFamily) NetworkHeaderLen() int { return f.headerLen }

func (f *fakeAddressFamily) ECNCapable(_ *Transport) error {
	f.ecnCalls++
	return f.ecnErr
}

func (f *fakeAddressFamily) Transmit(segments [][]byte, _ *Transport) error {
	cp := make([][]byte, len(segments))
	copy(cp, segments)
	f.transmitted = append(f.transmitted, cp)
	return f.transmitErr
}

// newTestAssociation builds an Association with one Transport attached,
// a fakeAddressFamily standing in for the IP layer, and a vtag/port pair
// set so TransmitChunk can be exercised end to end.
func newTestAssociation(pathmtu uint32) (*Association, *Transport, *fakeAddressFamily) {
	return newTestAssociationWithHeaderLen(pathmtu, 20)
}

func newTestAssociationWithHeaderLen(pathmtu uint32, headerLen int) (*Association, *Transport, *fakeAddressFamily) {
	a := NewAssociation(AssociationConfig{
		SourcePort:          5000,
		DestinationPort:     5001,
		PeerVerificationTag: 0xabcdef01,
	})
	af := &fakeAddressFamily{headerLen: headerLen}
	t := a.AddTransport("203.0.113.1:5001", af, nil, pathmtu)
	return a, t, af
}
