package formats

// H264 implements RFC 6184 single-NAL and FU-A packetization.
type H264 struct{}

const (
	h264NALHeaderSize = 1
	h264FUHeaderSize  = 1
	h264FUAType       = 28

	h264NALTypeIDR    = 5
	h264NALTypeNonIDR = 1
)

func (H264) Name() string { return "h264" }

func (H264) NALHeaderSize() int { return h264NALHeaderSize }
func (H264) FUHeaderSize() int  { return h264FUHeaderSize }

func (H264) Fragment(payload []byte, mtu int) ([][]byte, error) {
	if len(payload) < h264NALHeaderSize {
		return nil, ErrShortFragment
	}
	if len(payload) <= mtu {
		single := make([]byte, len(payload))
		copy(single, payload)
		return [][]byte{single}, nil
	}

	nalHeader := payload[0]
	nalType := nalHeader & 0x1f
	nri := nalHeader & 0x60
	body := payload[h264NALHeaderSize:]

	fuIndicator := nri | h264FUAType
	chunkSize := mtu - h264NALHeaderSize - h264FUHeaderSize
	if chunkSize <= 0 {
		return nil, ErrOversizedPayload
	}

	var frags [][]byte
	for off := 0; off < len(body); off += chunkSize {
		end := off + chunkSize
		if end > len(body) {
			end = len(body)
		}
		fuHeader := nalType
		if off == 0 {
			fuHeader |= 0x80 // S
		}
		if end == len(body) {
			fuHeader |= 0x40 // E
		}
		frag := make([]byte, 0, 2+(end-off))
		frag = append(frag, fuIndicator, fuHeader)
		frag = append(frag, body[off:end]...)
		frags = append(frags, frag)
	}
	return frags, nil
}

func (H264) ClassifyFragment(fragment []byte) (FragmentType, error) {
	if len(fragment) < h264NALHeaderSize {
		return 0, ErrShortFragment
	}
	if fragment[0]&0x1f != h264FUAType {
		return FragmentSingle, nil
	}
	if len(fragment) < h264NALHeaderSize+h264FUHeaderSize {
		return 0, ErrShortFragment
	}
	fuHeader := fragment[1]
	switch {
	case fuHeader&0x80 != 0:
		return FragmentStart, nil
	case fuHeader&0x40 != 0:
		return FragmentEnd, nil
	default:
		return FragmentMiddle, nil
	}
}

func (H264) ExtractPayload(fragment []byte, kind FragmentType) ([]byte, error) {
	switch kind {
	case FragmentSingle:
		return fragment, nil
	case FragmentStart:
		if len(fragment) < 2 {
			return nil, ErrShortFragment
		}
		nri := fragment[0] & 0x60
		nalType := fragment[1] & 0x1f
		rebuilt := make([]byte, 0, 1+len(fragment)-2)
		rebuilt = append(rebuilt, nri|nalType)
		rebuilt = append(rebuilt, fragment[2:]...)
		return rebuilt, nil
	case FragmentMiddle, FragmentEnd:
		if len(fragment) < 2 {
			return nil, ErrShortFragment
		}
		return fragment[2:], nil
	default:
		return nil, ErrShortFragment
	}
}

func (H264) OuterNALType(fragment []byte) (int, error) {
	if len(fragment) < h264NALHeaderSize {
		return 0, ErrShortFragment
	}
	return int(fragment[0] & 0x1f), nil
}

func (h H264) PayloadNALType(fragment []byte) (int, error) {
	outer, err := h.OuterNALType(fragment)
	if err != nil {
		return 0, err
	}
	if outer != h264FUAType {
		return outer, nil
	}
	if len(fragment) < h264NALHeaderSize+h264FUHeaderSize {
		return 0, ErrShortFragment
	}
	return int(fragment[1] & 0x1f), nil
}

func (H264) ClassNAL(nalType int) NALClass {
	switch nalType {
	case h264NALTypeIDR:
		return NALIntra
	case h264NALTypeNonIDR:
		return NALInter
	default:
		return NALOther
	}
}
