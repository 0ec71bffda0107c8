package rtp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync/atomic"

	pionrtp "github.com/pion/rtp"
)

// RTPHeader is the 12-byte fixed RTP header (RFC 3550 §5.1), bit-packed on
// the wire; fields here are the decoded, host-native representation. The
// actual wire (de)serialization is delegated to pion/rtp's Header, which
// already implements explicit byte-at-a-time encode/decode rather than
// relying on host struct layout (see SPEC_FULL.md §9 on bit-packed headers).
type RTPHeader struct {
	Version        uint8
	Padding        bool
	Extension      bool
	CC             uint8
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
}

const (
	rtpHeaderMinLen   = 12
	rtpVersion        = 2
	invalidTimestamp  = ^uint32(0)
)

// HeaderProcessor builds outgoing RTP headers for one local SSRC/payload
// type and validates+parses incoming ones (component D of the spec). It
// owns the monotonic sequence counter and the clock used to derive RTP
// timestamps from wall-clock deltas when the caller does not supply one.
type HeaderProcessor struct {
	ssrc        uint32
	payloadType uint8
	clockRate   uint32

	seq       atomic.Uint32 // low 16 bits are the sequence number
	timestamp atomic.Uint32

	acceptPT map[uint8]bool

	// remoteSSRC is the peer SSRC this processor locks onto from the first
	// packet it successfully parses. A later datagram carrying a different
	// SSRC belongs to a different stream sharing the same socket and is
	// reported PktNotHandled rather than accepted, so a demuxer's chain can
	// fall through to whichever stream's processor does own it.
	remoteSSRC     atomic.Uint32
	haveRemoteSSRC atomic.Bool
}

// NewHeaderProcessor creates a processor for a freshly generated SSRC and
// random initial sequence number/timestamp, per RFC 3550 Appendix A.6.
func NewHeaderProcessor(payloadType uint8, clockRate uint32, acceptedTypes ...uint8) (*HeaderProcessor, error) {
	ssrc, err := randUint32()
	if err != nil {
		return nil, newError(StatusMemoryError, "NewHeaderProcessor", err)
	}
	startSeq, err := randUint32()
	if err != nil {
		return nil, newError(StatusMemoryError, "NewHeaderProcessor", err)
	}
	startTS, err := randUint32()
	if err != nil {
		return nil, newError(StatusMemoryError, "NewHeaderProcessor", err)
	}

	accept := map[uint8]bool{payloadType: true}
	for _, pt := range acceptedTypes {
		accept[pt] = true
	}

	hp := &HeaderProcessor{
		ssrc:        ssrc,
		payloadType: payloadType,
		clockRate:   clockRate,
		acceptPT:    accept,
	}
	hp.seq.Store(startSeq & 0xffff)
	hp.timestamp.Store(startTS)
	return hp, nil
}

// SSRC returns the local synchronization source identifier.
func (hp *HeaderProcessor) SSRC() uint32 { return hp.ssrc }

// ClockRate returns the sample rate used to derive timestamps from
// time.Duration deltas.
func (hp *HeaderProcessor) ClockRate() uint32 { return hp.clockRate }

// NextSequenceNumber returns the sequence number the next outgoing packet
// will carry, without consuming it (used by callers computing RTCP extended
// highest-sequence-number before the packet is actually sent).
func (hp *HeaderProcessor) NextSequenceNumber() uint16 {
	return uint16(hp.seq.Load())
}

// CurrentTimestamp returns the running RTP timestamp without advancing it:
// the one the most recent Build without a timestamp override produced, or
// the random starting value before any such Build (used by the RTCP engine
// to stamp an SR's RTP-timestamp field with the sender's current media
// clock).
func (hp *HeaderProcessor) CurrentTimestamp() uint32 {
	return hp.timestamp.Load()
}

// Build stamps a new RTP header, consuming one sequence number. If ts is
// nil, the timestamp is advanced by sampleDelta clock ticks from the last
// one used; if non-nil, the override is used as-is and the running
// timestamp is left untouched (mirrors push_frame(..., ts) in the original
// API, which restores the prior timestamp after the call).
func (hp *HeaderProcessor) Build(marker bool, ts *uint32, sampleDelta uint32) RTPHeader {
	seq := uint16(hp.seq.Add(1) - 1)

	var timestamp uint32
	if ts != nil {
		timestamp = *ts
	} else {
		timestamp = hp.timestamp.Add(sampleDelta)
	}

	return RTPHeader{
		Version:     rtpVersion,
		Marker:      marker,
		PayloadType: hp.payloadType,
		SequenceNumber: seq,
		Timestamp:   timestamp,
		SSRC:        hp.ssrc,
	}
}

// Marshal serializes hdr plus payload into an RTP datagram via pion/rtp.
func Marshal(hdr RTPHeader, csrc []uint32, payload []byte) ([]byte, error) {
	pkt := &pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        hdr.Version,
			Padding:        hdr.Padding,
			Extension:      hdr.Extension,
			Marker:         hdr.Marker,
			PayloadType:    hdr.PayloadType,
			SequenceNumber: hdr.SequenceNumber,
			Timestamp:      hdr.Timestamp,
			SSRC:           hdr.SSRC,
			CSRC:           csrc,
		},
		Payload: payload,
	}
	return pkt.Marshal()
}

// Parse validates and decodes the RTP header at the front of dgram.
//
// Returns StatusPktNotHandled (with a nil error) if the packet's payload
// type is not one hp accepts, or if hp has already locked onto a remote
// SSRC from an earlier packet and this datagram carries a different one —
// both cases are "wrong layer", not a malformed datagram, and the caller
// (the dispatcher's handler chain) lets them fall through to the next
// handler rather than dropping the chain. Returns StatusGenericError on a
// malformed/too-short/wrong-version datagram, and StatusPktModified plus
// the decoded Frame on success — per spec.md §4.D, the header processor
// never itself returns PktReady; media handlers own final assembly.
func (hp *HeaderProcessor) Parse(dgram []byte, src net.Addr) (*Frame, Status, error) {
	if len(dgram) < rtpHeaderMinLen {
		return nil, StatusGenericError, newError(StatusGenericError, "Parse", fmt.Errorf("datagram too short: %d bytes", len(dgram)))
	}

	var pkt pionrtp.Packet
	if err := pkt.Unmarshal(dgram); err != nil {
		return nil, StatusGenericError, newError(StatusGenericError, "Parse", err)
	}

	if pkt.Header.Version != rtpVersion {
		return nil, StatusGenericError, newError(StatusGenericError, "Parse", fmt.Errorf("unsupported RTP version: %d", pkt.Header.Version))
	}
	if !hp.acceptPT[pkt.Header.PayloadType] {
		return nil, StatusPktNotHandled, nil
	}
	if hp.haveRemoteSSRC.Load() {
		if pkt.Header.SSRC != hp.remoteSSRC.Load() {
			return nil, StatusPktNotHandled, nil
		}
	} else {
		hp.remoteSSRC.Store(pkt.Header.SSRC)
		hp.haveRemoteSSRC.Store(true)
	}

	frame := &Frame{
		Header: RTPHeader{
			Version:        pkt.Header.Version,
			Padding:        pkt.Header.Padding,
			Extension:      pkt.Header.Extension,
			CC:             uint8(len(pkt.Header.CSRC)),
			Marker:         pkt.Header.Marker,
			PayloadType:    pkt.Header.PayloadType,
			SequenceNumber: pkt.Header.SequenceNumber,
			Timestamp:      pkt.Header.Timestamp,
			SSRC:           pkt.Header.SSRC,
		},
		CSRC:       pkt.Header.CSRC,
		PayloadLen: len(pkt.Payload),
		Payload:    pkt.Payload,
		Dgram:      dgram,
		Src:        src,
	}

	if pkt.Header.Padding && len(dgram) > 0 {
		frame.PaddingLen = int(dgram[len(dgram)-1])
	}
	if pkt.Header.Extension {
		frame.Ext = &ExtensionHeader{
			Type: pkt.Header.ExtensionProfile,
			Len:  uint16(len(pkt.Header.GetExtensionIDs())),
		}
	}

	return frame, StatusPktModified, nil
}

func randUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
