package formats

// H266 implements draft-ietf-avtcore-rtp-vvc single-NAL and
// fragmentation-unit packetization. The 2-byte NAL header carries the type
// in bits [7:3] of the second byte, with layer/TID bits in [2:0]; the FU
// rewrite preserves those low 3 bits while replacing the type with 29
// (H266_PKT_FRAG), per the reference decoder's construct_format_header.
type H266 struct{}

const (
	h266NALHeaderSize = 2
	h266FUHeaderSize  = 1
	h266FUType        = 29

	h266NALTypeIDR = 19
	h266NALTypeTRL = 1
)

func (H266) Name() string { return "h266" }

func (H266) NALHeaderSize() int { return h266NALHeaderSize }
func (H266) FUHeaderSize() int  { return h266FUHeaderSize }

func h266NALType(b1 byte) int { return int((b1 >> 3) & 0x1f) }

func (H266) Fragment(payload []byte, mtu int) ([][]byte, error) {
	if len(payload) < h266NALHeaderSize {
		return nil, ErrShortFragment
	}
	if len(payload) <= mtu {
		single := make([]byte, len(payload))
		copy(single, payload)
		return [][]byte{single}, nil
	}

	origType := h266NALType(payload[1])
	nalHeader0 := payload[0]
	nalHeader1 := byte(h266FUType<<3) | (payload[1] & 0x7)
	body := payload[h266NALHeaderSize:]

	chunkSize := mtu - h266NALHeaderSize - h266FUHeaderSize
	if chunkSize <= 0 {
		return nil, ErrOversizedPayload
	}

	var frags [][]byte
	for off := 0; off < len(body); off += chunkSize {
		end := off + chunkSize
		if end > len(body) {
			end = len(body)
		}
		fuHeader := byte(origType) & 0x3f
		if off == 0 {
			fuHeader |= 0x80 // first_frag
		}
		if end == len(body) {
			fuHeader |= 0x40 // last_frag
		}
		frag := make([]byte, 0, 3+(end-off))
		frag = append(frag, nalHeader0, nalHeader1, fuHeader)
		frag = append(frag, body[off:end]...)
		frags = append(frags, frag)
	}
	return frags, nil
}

func (H266) ClassifyFragment(fragment []byte) (FragmentType, error) {
	if len(fragment) < h266NALHeaderSize {
		return 0, ErrShortFragment
	}
	if h266NALType(fragment[1]) != h266FUType {
		return FragmentSingle, nil
	}
	if len(fragment) < h266NALHeaderSize+h266FUHeaderSize {
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

func (H266) ExtractPayload(fragment []byte, kind FragmentType) ([]byte, error) {
	switch kind {
	case FragmentSingle:
		return fragment, nil
	case FragmentStart:
		if len(fragment) < 3 {
			return nil, ErrShortFragment
		}
		origType := fragment[2] & 0x3f
		b1 := (origType << 3) | (fragment[1] & 0x7)
		rebuilt := make([]byte, 0, 2+len(fragment)-3)
		rebuilt = append(rebuilt, fragment[0], b1)
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

// OuterNALType returns the type byte as it sits on the wire: 29 for every
// fragment of a fragmented NAL, regardless of what NAL is being carried.
func (H266) OuterNALType(fragment []byte) (int, error) {
	if len(fragment) < h266NALHeaderSize {
		return 0, ErrShortFragment
	}
	return h266NALType(fragment[1]), nil
}

// PayloadNALType returns the type of the NAL actually being reassembled,
// recovered from the FU header's low 6 bits rather than the rewritten
// outer header — the distinction the outer type byte alone cannot make.
func (h H266) PayloadNALType(fragment []byte) (int, error) {
	outer, err := h.OuterNALType(fragment)
	if err != nil {
		return 0, err
	}
	if outer != h266FUType {
		return outer, nil
	}
	if len(fragment) < h266NALHeaderSize+h266FUHeaderSize {
		return 0, ErrShortFragment
	}
	return int(fragment[2] & 0x3f), nil
}

func (H266) ClassNAL(nalType int) NALClass {
	switch nalType {
	case h266NALTypeIDR:
		return NALIntra
	case h266NALTypeTRL:
		return NALInter
	default:
		return NALOther
	}
}
