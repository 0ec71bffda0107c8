package formats

// H265 implements RFC 7798 single-NAL and fragmentation-unit packetization.
// The H.265 NAL header is 2 bytes: F(1)/Type(6)/LayerIdHigh(1) then
// LayerIdLow(5)/TID(3).
type H265 struct{}

const (
	h265NALHeaderSize = 2
	h265FUHeaderSize  = 1
	h265FUType        = 49

	h265NALTypeIDRWRADL = 19
	h265NALTypeIDRNLP   = 20
	h265NALTypeTrailR   = 1
)

func (H265) Name() string { return "h265" }

func (H265) NALHeaderSize() int { return h265NALHeaderSize }
func (H265) FUHeaderSize() int  { return h265FUHeaderSize }

func h265NALType(b0 byte) int { return int((b0 >> 1) & 0x3f) }

func (H265) Fragment(payload []byte, mtu int) ([][]byte, error) {
	if len(payload) < h265NALHeaderSize {
		return nil, ErrShortFragment
	}
	if len(payload) <= mtu {
		single := make([]byte, len(payload))
		copy(single, payload)
		return [][]byte{single}, nil
	}

	nalType := h265NALType(payload[0])
	layerTID1 := payload[1] // LayerIdLow/TID byte, carried through unchanged
	body := payload[h265NALHeaderSize:]

	fuByte0 := byte(h265FUType<<1) | (payload[0] & 0x81)
	chunkSize := mtu - h265NALHeaderSize - h265FUHeaderSize
	if chunkSize <= 0 {
		return nil, ErrOversizedPayload
	}

	var frags [][]byte
	for off := 0; off < len(body); off += chunkSize {
		end := off + chunkSize
		if end > len(body) {
			end = len(body)
		}
		fuHeader := byte(nalType)
		if off == 0 {
			fuHeader |= 0x80 // S
		}
		if end == len(body) {
			fuHeader |= 0x40 // E
		}
		frag := make([]byte, 0, 3+(end-off))
		frag = append(frag, fuByte0, layerTID1, fuHeader)
		frag = append(frag, body[off:end]...)
		frags = append(frags, frag)
	}
	return frags, nil
}

func (H265) ClassifyFragment(fragment []byte) (FragmentType, error) {
	if len(fragment) < h265NALHeaderSize {
		return 0, ErrShortFragment
	}
	if h265NALType(fragment[0]) != h265FUType {
		return FragmentSingle, nil
	}
	if len(fragment) < h265NALHeaderSize+h265FUHeaderSize {
		return 0, ErrShortFragment
	}
	fuHeader := fragment[2]
	switch {
	case fuHeader&0x80 != 0:
		return FragmentStart, nil
	case fuHeader&0x40 != 0:
		return FragmentEnd, nil
	default:
		return FragmentMiddle, nil
	}
}

func (H265) ExtractPayload(fragment []byte, kind FragmentType) ([]byte, error) {
	switch kind {
	case FragmentSingle:
		return fragment, nil
	case FragmentStart:
		if len(fragment) < 3 {
			return nil, ErrShortFragment
		}
		fuHeader := fragment[2]
		nalType := fuHeader & 0x3f
		b0 := (fragment[0] & 0x81) | (nalType << 1)
		rebuilt := make([]byte, 0, 2+len(fragment)-3)
		rebuilt = append(rebuilt, b0, fragment[1])
		rebuilt = append(rebuilt, fragment[3:]...)
		return rebuilt, nil
	case FragmentMiddle, FragmentEnd:
		if len(fragment) < 3 {
			return nil, ErrShortFragment
		}
		return fragment[3:], nil
	default:
		return nil, ErrShortFragment
	}
}

func (H265) OuterNALType(fragment []byte) (int, error) {
	if len(fragment) < h265NALHeaderSize {
		return 0, ErrShortFragment
	}
	return h265NALType(fragment[0]), nil
}

func (h H265) PayloadNALType(fragment []byte) (int, error) {
	outer, err := h.OuterNALType(fragment)
	if err != nil {
		return 0, err
	}
	if outer != h265FUType {
		return outer, nil
	}
	if len(fragment) < h265NALHeaderSize+h265FUHeaderSize {
		return 0, ErrShortFragment
	}
	return int(fragment[2] & 0x3f), nil
}

func (H265) ClassNAL(nalType int) NALClass {
	switch nalType {
	case h265NALTypeIDRWRADL, h265NALTypeIDRNLP:
		return NALIntra
	case h265NALTypeTrailR:
		return NALInter
	default:
		return NALOther
	}
}
