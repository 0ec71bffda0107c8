package rtp

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"time"

	pionrtcp "github.com/pion/rtcp"
)

// RTCP packet types, RFC 3550 §6.1.
const (
	RTCPTypeSR   uint8 = 200
	RTCPTypeRR   uint8 = 201
	RTCPTypeSDES uint8 = 202
	RTCPTypeBYE  uint8 = 203
	RTCPTypeAPP  uint8 = 204
)

// SDES item types, RFC 3550 §6.5.
const (
	SDESTypeCNAME uint8 = 1
	SDESTypeName  uint8 = 2
	SDESTypeEmail uint8 = 3
	SDESTypePhone uint8 = 4
	SDESTypeLoc   uint8 = 5
	SDESTypeTool  uint8 = 6
	SDESTypeNote  uint8 = 7
	SDESTypePriv  uint8 = 8
)

// RTCPHeader is the common RTCP packet header, RFC 3550 §6.1.
type RTCPHeader struct {
	Version    uint8
	Padding    bool
	Count      uint8 // reception report count, source count, or subtype
	PacketType uint8
	Length     uint16 // in 32-bit words, minus one
}

// SenderReport is RFC 3550 §6.4.1.
type SenderReport struct {
	Hdr              RTCPHeader
	SSRC             uint32
	NTPTimestamp     uint64
	RTPTimestamp     uint32
	SenderPackets    uint32
	SenderOctets     uint32
	ReceptionReports []ReceptionReport
}

// ReceiverReport is RFC 3550 §6.4.2.
type ReceiverReport struct {
	Hdr              RTCPHeader
	SSRC             uint32
	ReceptionReports []ReceptionReport
}

// ReceptionReport is one report block shared by SR and RR, RFC 3550 §6.4.1.
type ReceptionReport struct {
	SSRC             uint32
	FractionLost     uint8
	CumulativeLost   uint32 // 24 bits on the wire
	HighestSeqNum    uint32
	Jitter           uint32
	LastSR           uint32
	DelaySinceLastSR uint32
}

// SourceDescriptionPacket is RFC 3550 §6.5.
type SourceDescriptionPacket struct {
	Hdr    RTCPHeader
	Chunks []SDESChunk
}

// SDESChunk is one source's block of SDES items.
type SDESChunk struct {
	Source uint32
	Items  []SDESItem
}

// SDESItem is one described attribute of a source.
type SDESItem struct {
	Type   uint8
	Length uint8
	Text   []byte
}

// ByePacket is RFC 3550 §6.6.
type ByePacket struct {
	Hdr     RTCPHeader
	Sources []uint32
	Reason  string
}

// AppPacket is the application-defined RTCP packet, RFC 3550 §6.7. The
// original distillation of this package's spec dropped it; it is restored
// here since the wire format it targets (frame.hh's RTCP_APP) names it
// explicitly.
type AppPacket struct {
	Hdr     RTCPHeader
	SSRC    uint32
	Name    [4]byte
	AppData []byte
}

// RTCPCompoundPacket is one or more RTCP packets concatenated back to back
// in a single datagram, RFC 3550 §6.1.
type RTCPCompoundPacket struct {
	Packets []RTCPPacket
}

// RTCPPacket is implemented by every RTCP packet type in this package.
type RTCPPacket interface {
	Header() RTCPHeader
	Marshal() ([]byte, error)
	Unmarshal(data []byte) error
}

// RTCPStatistics accumulates the per-source counters an RTCP engine needs
// to build SR/RR report blocks.
type RTCPStatistics struct {
	PacketsSent     uint32
	OctetsSent      uint32
	PacketsReceived uint32
	OctetsReceived  uint32
	PacketsLost     uint32
	FractionLost    uint8
	Jitter          uint32
	LastSRTimestamp uint32
	LastSRReceived  time.Time
	TransitTime     int64
	LastSeqNum      uint16
	SeqNumCycles    uint16
	BaseSeqNum      uint16
	BadSeqNum       uint16
	ProbationCount  uint16
}

// NewSenderReport creates an SR with no reception reports yet attached.
func NewSenderReport(ssrc uint32, ntpTime uint64, rtpTime uint32, packets, octets uint32) *SenderReport {
	return &SenderReport{
		Hdr: RTCPHeader{
			Version:    2,
			PacketType: RTCPTypeSR,
			Length:     6,
		},
		SSRC:             ssrc,
		NTPTimestamp:     ntpTime,
		RTPTimestamp:     rtpTime,
		SenderPackets:    packets,
		SenderOctets:     octets,
		ReceptionReports: make([]ReceptionReport, 0),
	}
}

// AddReceptionReport appends a report block, up to the RFC 3550 limit of
// 31 set by the 5-bit count field; a block past the 31st is not added, so
// callers needing more must split across multiple SR/RR packets in the
// compound, per spec.md §4.E.
func (sr *SenderReport) AddReceptionReport(rr ReceptionReport) {
	if len(sr.ReceptionReports) >= 31 {
		return
	}
	sr.ReceptionReports = append(sr.ReceptionReports, rr)
	sr.Hdr.Count = uint8(len(sr.ReceptionReports)) & 0x1f
	sr.Hdr.Length = 6 + uint16(len(sr.ReceptionReports)*6)
}

func (sr *SenderReport) Header() RTCPHeader { return sr.Hdr }

func (sr *SenderReport) Marshal() ([]byte, error) {
	length := 28 + len(sr.ReceptionReports)*24
	data := make([]byte, length)

	data[0] = (2 << 6) | (uint8(len(sr.ReceptionReports)) & 0x1f)
	data[1] = RTCPTypeSR
	binary.BigEndian.PutUint16(data[2:4], uint16((length/4)-1))

	binary.BigEndian.PutUint32(data[4:8], sr.SSRC)
	binary.BigEndian.PutUint64(data[8:16], sr.NTPTimestamp)
	binary.BigEndian.PutUint32(data[16:20], sr.RTPTimestamp)
	binary.BigEndian.PutUint32(data[20:24], sr.SenderPackets)
	binary.BigEndian.PutUint32(data[24:28], sr.SenderOctets)

	offset := 28
	for _, rr := range sr.ReceptionReports {
		marshalReceptionReport(data[offset:offset+24], rr)
		offset += 24
	}

	return data, nil
}

func (sr *SenderReport) Unmarshal(data []byte) error {
	if len(data) < 28 {
		return fmt.Errorf("SR packet too short: %d bytes", len(data))
	}

	sr.Hdr = unmarshalRTCPHeader(data)
	if sr.Hdr.Version != 2 {
		return fmt.Errorf("unsupported RTCP version: %d", sr.Hdr.Version)
	}
	if sr.Hdr.PacketType != RTCPTypeSR {
		return fmt.Errorf("wrong packet type for SR: %d", sr.Hdr.PacketType)
	}

	sr.SSRC = binary.BigEndian.Uint32(data[4:8])
	sr.NTPTimestamp = binary.BigEndian.Uint64(data[8:16])
	sr.RTPTimestamp = binary.BigEndian.Uint32(data[16:20])
	sr.SenderPackets = binary.BigEndian.Uint32(data[20:24])
	sr.SenderOctets = binary.BigEndian.Uint32(data[24:28])

	sr.ReceptionReports = make([]ReceptionReport, sr.Hdr.Count)
	offset := 28
	for i := range sr.ReceptionReports {
		if offset+24 > len(data) {
			return fmt.Errorf("truncated reception report block")
		}
		sr.ReceptionReports[i] = unmarshalReceptionReport(data[offset : offset+24])
		offset += 24
	}

	return nil
}

// NewReceiverReport creates an RR with no reception reports yet attached.
func NewReceiverReport(ssrc uint32) *ReceiverReport {
	return &ReceiverReport{
		Hdr: RTCPHeader{
			Version:    2,
			PacketType: RTCPTypeRR,
			Length:     1,
		},
		SSRC:             ssrc,
		ReceptionReports: make([]ReceptionReport, 0),
	}
}

func (rr *ReceiverReport) AddReceptionReport(report ReceptionReport) {
	if len(rr.ReceptionReports) >= 31 {
		return
	}
	rr.ReceptionReports = append(rr.ReceptionReports, report)
	rr.Hdr.Count = uint8(len(rr.ReceptionReports)) & 0x1f
	rr.Hdr.Length = 1 + uint16(len(rr.ReceptionReports)*6)
}

func (rr *ReceiverReport) Header() RTCPHeader { return rr.Hdr }

func (rr *ReceiverReport) Marshal() ([]byte, error) {
	length := 8 + len(rr.ReceptionReports)*24
	data := make([]byte, length)

	data[0] = (2 << 6) | (uint8(len(rr.ReceptionReports)) & 0x1f)
	data[1] = RTCPTypeRR
	binary.BigEndian.PutUint16(data[2:4], uint16((length/4)-1))
	binary.BigEndian.PutUint32(data[4:8], rr.SSRC)

	offset := 8
	for _, report := range rr.ReceptionReports {
		marshalReceptionReport(data[offset:offset+24], report)
		offset += 24
	}

	return data, nil
}

func (rr *ReceiverReport) Unmarshal(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("RR packet too short: %d bytes", len(data))
	}

	rr.Hdr = unmarshalRTCPHeader(data)
	if rr.Hdr.Version != 2 {
		return fmt.Errorf("unsupported RTCP version: %d", rr.Hdr.Version)
	}
	if rr.Hdr.PacketType != RTCPTypeRR {
		return fmt.Errorf("wrong packet type for RR: %d", rr.Hdr.PacketType)
	}

	rr.SSRC = binary.BigEndian.Uint32(data[4:8])

	rr.ReceptionReports = make([]ReceptionReport, rr.Hdr.Count)
	offset := 8
	for i := range rr.ReceptionReports {
		if offset+24 > len(data) {
			return fmt.Errorf("truncated reception report block")
		}
		rr.ReceptionReports[i] = unmarshalReceptionReport(data[offset : offset+24])
		offset += 24
	}

	return nil
}

func marshalReceptionReport(dst []byte, rr ReceptionReport) {
	binary.BigEndian.PutUint32(dst[0:4], rr.SSRC)
	dst[4] = rr.FractionLost
	lost := rr.CumulativeLost & 0x00ffffff
	dst[5] = byte(lost >> 16)
	dst[6] = byte(lost >> 8)
	dst[7] = byte(lost)
	binary.BigEndian.PutUint32(dst[8:12], rr.HighestSeqNum)
	binary.BigEndian.PutUint32(dst[12:16], rr.Jitter)
	binary.BigEndian.PutUint32(dst[16:20], rr.LastSR)
	binary.BigEndian.PutUint32(dst[20:24], rr.DelaySinceLastSR)
}

func unmarshalReceptionReport(src []byte) ReceptionReport {
	return ReceptionReport{
		SSRC:             binary.BigEndian.Uint32(src[0:4]),
		FractionLost:     src[4],
		CumulativeLost:   uint32(src[5])<<16 | uint32(src[6])<<8 | uint32(src[7]),
		HighestSeqNum:    binary.BigEndian.Uint32(src[8:12]),
		Jitter:           binary.BigEndian.Uint32(src[12:16]),
		LastSR:           binary.BigEndian.Uint32(src[16:20]),
		DelaySinceLastSR: binary.BigEndian.Uint32(src[20:24]),
	}
}

func unmarshalRTCPHeader(data []byte) RTCPHeader {
	return RTCPHeader{
		Version:    (data[0] >> 6) & 0x03,
		Padding:    (data[0]>>5)&0x01 == 1,
		Count:      data[0] & 0x1f,
		PacketType: data[1],
		Length:     binary.BigEndian.Uint16(data[2:4]),
	}
}

// NewSourceDescription creates an empty SDES packet.
func NewSourceDescription() *SourceDescriptionPacket {
	return &SourceDescriptionPacket{
		Hdr: RTCPHeader{
			Version:    2,
			PacketType: RTCPTypeSDES,
			Length:     0,
		},
		Chunks: make([]SDESChunk, 0),
	}
}

func (sdes *SourceDescriptionPacket) AddChunk(ssrc uint32, items []SDESItem) {
	sdes.Chunks = append(sdes.Chunks, SDESChunk{Source: ssrc, Items: items})
	sdes.Hdr.Count = uint8(len(sdes.Chunks)) & 0x1f
	if data, err := sdes.Marshal(); err == nil {
		sdes.Hdr.Length = uint16(len(data)/4 - 1)
	}
}

func (sdes *SourceDescriptionPacket) Header() RTCPHeader { return sdes.Hdr }

func (sdes *SourceDescriptionPacket) Marshal() ([]byte, error) {
	totalSize := 4
	for _, chunk := range sdes.Chunks {
		totalSize += 4
		for _, item := range chunk.Items {
			totalSize += 2 + len(item.Text)
		}
		totalSize++
		if totalSize%4 != 0 {
			totalSize += 4 - (totalSize % 4)
		}
	}

	data := make([]byte, totalSize)
	data[0] = (2 << 6) | (uint8(len(sdes.Chunks)) & 0x1f)
	data[1] = RTCPTypeSDES
	binary.BigEndian.PutUint16(data[2:4], uint16((totalSize/4)-1))

	offset := 4
	for _, chunk := range sdes.Chunks {
		binary.BigEndian.PutUint32(data[offset:offset+4], chunk.Source)
		offset += 4

		for _, item := range chunk.Items {
			data[offset] = item.Type
			data[offset+1] = item.Length
			copy(data[offset+2:offset+2+len(item.Text)], item.Text)
			offset += 2 + len(item.Text)
		}

		data[offset] = 0
		offset++
		for offset%4 != 0 {
			data[offset] = 0
			offset++
		}
	}

	return data, nil
}

func (sdes *SourceDescriptionPacket) Unmarshal(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("SDES packet too short")
	}

	sdes.Hdr = unmarshalRTCPHeader(data)
	if sdes.Hdr.Version != 2 {
		return fmt.Errorf("unsupported RTCP version: %d", sdes.Hdr.Version)
	}
	if sdes.Hdr.PacketType != RTCPTypeSDES {
		return fmt.Errorf("wrong packet type for SDES: %d", sdes.Hdr.PacketType)
	}

	sdes.Chunks = make([]SDESChunk, 0, sdes.Hdr.Count)
	offset := 4

	for i := 0; i < int(sdes.Hdr.Count); i++ {
		if offset+4 > len(data) {
			return fmt.Errorf("truncated SDES chunk")
		}

		chunk := SDESChunk{Source: binary.BigEndian.Uint32(data[offset : offset+4])}
		offset += 4

		for offset < len(data) {
			if data[offset] == 0 {
				offset++
				break
			}
			if offset+2 > len(data) {
				return fmt.Errorf("truncated SDES item")
			}
			item := SDESItem{Type: data[offset], Length: data[offset+1]}
			offset += 2
			if offset+int(item.Length) > len(data) {
				return fmt.Errorf("truncated SDES text")
			}
			item.Text = append([]byte(nil), data[offset:offset+int(item.Length)]...)
			offset += int(item.Length)
			chunk.Items = append(chunk.Items, item)
		}

		for offset%4 != 0 && offset < len(data) {
			offset++
		}
		sdes.Chunks = append(sdes.Chunks, chunk)
	}

	return nil
}

// NewByePacket creates a BYE for the given sources.
func NewByePacket(sources []uint32, reason string) *ByePacket {
	length := 1 + len(sources)
	if reason != "" {
		length += (1 + len(reason) + 3) / 4
	}
	return &ByePacket{
		Hdr: RTCPHeader{
			Version:    2,
			PacketType: RTCPTypeBYE,
			Count:      uint8(len(sources)) & 0x1f,
			Length:     uint16(length) - 1,
		},
		Sources: sources,
		Reason:  reason,
	}
}

func (b *ByePacket) Header() RTCPHeader { return b.Hdr }

func (b *ByePacket) Marshal() ([]byte, error) {
	size := 4 + len(b.Sources)*4
	reasonLen := len(b.Reason)
	if reasonLen > 255 {
		reasonLen = 255
	}
	if reasonLen > 0 {
		size += 1 + reasonLen
		if size%4 != 0 {
			size += 4 - (size % 4)
		}
	}

	data := make([]byte, size)
	data[0] = (2 << 6) | (uint8(len(b.Sources)) & 0x1f)
	data[1] = RTCPTypeBYE
	binary.BigEndian.PutUint16(data[2:4], uint16((size/4)-1))

	offset := 4
	for _, ssrc := range b.Sources {
		binary.BigEndian.PutUint32(data[offset:offset+4], ssrc)
		offset += 4
	}

	if reasonLen > 0 {
		data[offset] = byte(reasonLen)
		copy(data[offset+1:offset+1+reasonLen], b.Reason[:reasonLen])
	}

	return data, nil
}

func (b *ByePacket) Unmarshal(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("BYE packet too short")
	}

	b.Hdr = unmarshalRTCPHeader(data)
	if b.Hdr.Version != 2 {
		return fmt.Errorf("unsupported RTCP version: %d", b.Hdr.Version)
	}
	if b.Hdr.PacketType != RTCPTypeBYE {
		return fmt.Errorf("wrong packet type for BYE: %d", b.Hdr.PacketType)
	}

	count := int(b.Hdr.Count)
	if 4+count*4 > len(data) {
		return fmt.Errorf("truncated BYE source list")
	}
	b.Sources = make([]uint32, count)
	offset := 4
	for i := range b.Sources {
		b.Sources[i] = binary.BigEndian.Uint32(data[offset : offset+4])
		offset += 4
	}

	if offset < len(data) {
		reasonLen := int(data[offset])
		offset++
		if offset+reasonLen > len(data) {
			return fmt.Errorf("truncated BYE reason")
		}
		b.Reason = string(data[offset : offset+reasonLen])
	}

	return nil
}

// NewAppPacket creates an application-defined RTCP packet.
func NewAppPacket(ssrc uint32, name [4]byte, appData []byte) *AppPacket {
	return &AppPacket{
		Hdr: RTCPHeader{
			Version:    2,
			PacketType: RTCPTypeAPP,
			Length:     uint16(3+(len(appData)+3)/4) - 1,
		},
		SSRC:    ssrc,
		Name:    name,
		AppData: appData,
	}
}

func (a *AppPacket) Header() RTCPHeader { return a.Hdr }

func (a *AppPacket) Marshal() ([]byte, error) {
	appLen := len(a.AppData)
	if appLen%4 != 0 {
		appLen += 4 - (appLen % 4)
	}
	size := 12 + appLen
	data := make([]byte, size)

	data[0] = (2 << 6) | (a.Hdr.Count & 0x1f)
	data[1] = RTCPTypeAPP
	binary.BigEndian.PutUint16(data[2:4], uint16((size/4)-1))
	binary.BigEndian.PutUint32(data[4:8], a.SSRC)
	copy(data[8:12], a.Name[:])
	copy(data[12:], a.AppData)

	return data, nil
}

func (a *AppPacket) Unmarshal(data []byte) error {
	if len(data) < 12 {
		return fmt.Errorf("APP packet too short")
	}

	a.Hdr = unmarshalRTCPHeader(data)
	if a.Hdr.Version != 2 {
		return fmt.Errorf("unsupported RTCP version: %d", a.Hdr.Version)
	}
	if a.Hdr.PacketType != RTCPTypeAPP {
		return fmt.Errorf("wrong packet type for APP: %d", a.Hdr.PacketType)
	}

	a.SSRC = binary.BigEndian.Uint32(data[4:8])
	copy(a.Name[:], data[8:12])
	a.AppData = append([]byte(nil), data[12:]...)

	return nil
}

// CalculateJitter implements the RFC 3550 Appendix A.8 running jitter
// estimate: J += (|D| - J) / 16, where D is the difference in relative
// transit time between the current and previous packet.
func CalculateJitter(transit, lastTransit int64, jitter float64) float64 {
	d := float64(transit - lastTransit)
	if d < 0 {
		d = -d
	}
	return jitter + (d-jitter)/16.0
}

// CalculateFractionLost implements RFC 3550 Appendix A.3: fraction lost is
// the ratio of lost to expected packets since the last report, scaled to
// an 8-bit fixed-point fraction and clamped to [0, 255].
func CalculateFractionLost(expected, received uint32) uint8 {
	if expected == 0 || received >= expected {
		return 0
	}
	lost := expected - received
	fraction := (lost * 256) / expected
	if fraction > 255 {
		return 255
	}
	return uint8(fraction)
}

// cumulativeLostMax is the largest value the 24-bit cumulative lost field
// can hold; RFC 3550 does not define wraparound for it, so once reached it
// saturates rather than rolling over.
const cumulativeLostMax = (1 << 24) - 1

// AddCumulativeLost adds delta to the running cumulative-lost counter,
// saturating at the 24-bit field's maximum rather than wrapping.
func AddCumulativeLost(current uint32, delta int64) uint32 {
	next := int64(current) + delta
	if next < 0 {
		return 0
	}
	if next > cumulativeLostMax {
		return cumulativeLostMax
	}
	return uint32(next)
}

var ntpEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// NTPTimestamp converts t to a 64-bit NTP timestamp (RFC 3550 §4): the
// high 32 bits are seconds since the NTP epoch, the low 32 are a binary
// fraction of a second.
func NTPTimestamp(t time.Time) uint64 {
	duration := t.Sub(ntpEpoch)
	seconds := uint64(duration / time.Second)
	frac := duration % time.Second
	fraction := uint64(frac) * (1 << 32) / uint64(time.Second)
	return (seconds << 32) | fraction
}

// NTPTimestampToTime is the inverse of NTPTimestamp.
func NTPTimestampToTime(ntp uint64) time.Time {
	seconds := int64(ntp >> 32)
	fraction := int64(ntp & 0xffffffff)
	nanoseconds := (fraction * int64(time.Second)) >> 32
	return ntpEpoch.Add(time.Duration(seconds)*time.Second + time.Duration(nanoseconds))
}

// RTCPIntervalCalculation implements the randomized RTCP transmission
// interval of RFC 3550 Appendix A.7: scaled by session bandwidth and
// membership, floored at 5 seconds, divided by e (about 2.718) for the
// first report in a session, then jittered by a uniform factor in [0.5, 1.5) so
// that members do not synchronize their reports.
func RTCPIntervalCalculation(members, senders int, rtcpBW float64, weSent bool, avgRTCPSize int, initial bool) time.Duration {
	const (
		minTime      = 5.0
		defaultSize  = 200
		compensation = 2.71828
	)

	if rtcpBW <= 0 {
		rtcpBW = 5.0
	}
	if avgRTCPSize == 0 {
		avgRTCPSize = defaultSize
	}

	n := float64(members)
	if senders > 0 && senders < members/4 {
		if weSent {
			n = float64(senders)
		} else {
			n = float64(members - senders)
		}
	}

	t := float64(avgRTCPSize) * n / rtcpBW
	if t < minTime {
		t = minTime
	}
	if initial {
		t /= compensation
	}

	t *= 0.5 + rand.Float64()

	return time.Duration(t * float64(time.Second))
}

// IsRTCPPacket reports whether data looks like an RTCP packet (version 2,
// packet type in the SR..APP range).
func IsRTCPPacket(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	version := (data[0] >> 6) & 0x03
	packetType := data[1]
	return version == 2 && packetType >= RTCPTypeSR && packetType <= RTCPTypeAPP
}

// ParseRTCPPacket decodes one RTCP packet (the first in a compound packet,
// if data holds more than one) into its concrete type.
func ParseRTCPPacket(data []byte) (RTCPPacket, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("packet too short for RTCP")
	}

	switch data[1] {
	case RTCPTypeSR:
		sr := &SenderReport{}
		return sr, sr.Unmarshal(data)
	case RTCPTypeRR:
		rr := &ReceiverReport{}
		return rr, rr.Unmarshal(data)
	case RTCPTypeSDES:
		sdes := &SourceDescriptionPacket{}
		return sdes, sdes.Unmarshal(data)
	case RTCPTypeBYE:
		bye := &ByePacket{}
		return bye, bye.Unmarshal(data)
	case RTCPTypeAPP:
		app := &AppPacket{}
		return app, app.Unmarshal(data)
	default:
		return nil, fmt.Errorf("unsupported RTCP packet type: %d", data[1])
	}
}

// MarshalCompound concatenates pkts' wire forms into one compound RTCP
// packet, RFC 3550 §6.1. It delegates the actual framing to pion/rtcp's
// Marshal by round-tripping each packet through pion's own SenderReport/
// ReceiverReport/SourceDescription/Goodbye types, reusing a
// battle-tested compound writer instead of hand-concatenating byte slices.
func MarshalCompound(pkts []RTCPPacket) ([]byte, error) {
	pionPkts := make([]pionrtcp.Packet, 0, len(pkts))
	for _, p := range pkts {
		pp, err := toPionPacket(p)
		if err != nil {
			return nil, err
		}
		pionPkts = append(pionPkts, pp)
	}
	return pionrtcp.Marshal(pionPkts)
}

// UnmarshalCompound splits a compound RTCP datagram into its constituent
// packets via pion/rtcp, then adapts each back into this package's types.
func UnmarshalCompound(data []byte) ([]RTCPPacket, error) {
	pionPkts, err := pionrtcp.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	out := make([]RTCPPacket, 0, len(pionPkts))
	for _, pp := range pionPkts {
		raw, err := pp.Marshal()
		if err != nil {
			return nil, err
		}
		native, err := ParseRTCPPacket(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, native)
	}
	return out, nil
}

func toPionPacket(p RTCPPacket) (pionrtcp.Packet, error) {
	raw, err := p.Marshal()
	if err != nil {
		return nil, err
	}
	pionPkts, err := pionrtcp.Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	if len(pionPkts) != 1 {
		return nil, fmt.Errorf("unexpected packet count decoding %T", p)
	}
	return pionPkts[0], nil
}
