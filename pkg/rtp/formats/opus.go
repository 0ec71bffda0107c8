package formats

// Opus implements RFC 7587: exactly one Opus packet per RTP packet, no
// fragmentation. A payload that does not fit the MTU is a caller error,
// not something this codec can split.
type Opus struct{}

func (Opus) Name() string { return "opus" }

func (Opus) NALHeaderSize() int { return 0 }
func (Opus) FUHeaderSize() int  { return 0 }

func (Opus) Fragment(payload []byte, mtu int) ([][]byte, error) {
	if len(payload) > mtu {
		return nil, ErrOversizedPayload
	}
	single := make([]byte, len(payload))
	copy(single, payload)
	return [][]byte{single}, nil
}

func (Opus) ClassifyFragment([]byte) (FragmentType, error) {
	return FragmentSingle, nil
}

func (Opus) ExtractPayload(fragment []byte, _ FragmentType) ([]byte, error) {
	return fragment, nil
}

func (Opus) OuterNALType([]byte) (int, error) { return 0, nil }

func (Opus) PayloadNALType([]byte) (int, error) { return 0, nil }

func (Opus) ClassNAL(int) NALClass { return NALOther }
