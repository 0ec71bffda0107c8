package formats

// Generic is the fallback codec for payloads with no format-specific
// packetization rules: one RTP packet per push, rejecting anything over
// the MTU rather than silently truncating it. Like every codec here, it
// takes the MTU per call rather than a fixed one, so a single Generic
// instance can back streams with differing path MTUs.
type Generic struct{}

func (Generic) Name() string { return "generic" }

func (Generic) NALHeaderSize() int { return 0 }
func (Generic) FUHeaderSize() int  { return 0 }

func (Generic) Fragment(payload []byte, mtu int) ([][]byte, error) {
	if len(payload) > mtu {
		return nil, ErrOversizedPayload
	}
	single := make([]byte, len(payload))
	copy(single, payload)
	return [][]byte{single}, nil
}

func (Generic) ClassifyFragment([]byte) (FragmentType, error) {
	return FragmentSingle, nil
}

func (Generic) ExtractPayload(fragment []byte, _ FragmentType) ([]byte, error) {
	return fragment, nil
}

func (Generic) OuterNALType([]byte) (int, error) { return 0, nil }

func (Generic) PayloadNALType([]byte) (int, error) { return 0, nil }

func (Generic) ClassNAL(int) NALClass { return NALOther }
