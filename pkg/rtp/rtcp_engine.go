package rtp

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// sourceStats tracks one remote SSRC's reception statistics, the inputs an
// RTCPEngine needs to build a reception report block (component E).
type sourceStats struct {
	ssrc uint32

	baseSeq      uint16
	haveBase     bool
	highestSeq   uint16
	cycles       uint16
	received     uint32
	cumulative   uint32
	lastReported uint32 // extended highest seq at last report (one before the base seq until then), for expected-since-last

	jitter      float64
	lastTransit int64
	haveTransit bool

	lastSRTimestamp uint32
	lastSRReceived  time.Time
}

func (s *sourceStats) extendedSeq() uint32 {
	return uint32(s.cycles)<<16 | uint32(s.highestSeq)
}

// update folds one received RTP packet into the statistics, following the
// sequence-number/cycle tracking and jitter update of RFC 3550 Appendix A.
func (s *sourceStats) update(seq uint16, transit int64) {
	s.received++

	if !s.haveBase {
		s.haveBase = true
		s.baseSeq = seq
		s.highestSeq = seq
		s.lastReported = uint32(seq) - 1
	} else {
		delta := int32(seq) - int32(s.highestSeq)
		switch {
		case delta > 0:
			if seq < s.highestSeq {
				s.cycles++
			}
			s.highestSeq = seq
		case delta < 0 && seq > s.highestSeq:
			// late-arriving packet from before a cycle rollover; no state change.
		case -delta > (1 << 14):
			// large negative jump: treat as a fresh cycle rollover forward.
			s.cycles++
			s.highestSeq = seq
		}
	}

	if s.haveTransit {
		s.jitter = CalculateJitter(transit, s.lastTransit, s.jitter)
	}
	s.lastTransit = transit
	s.haveTransit = true
}

// reportSince builds a ReceptionReport covering activity since the last
// call, then resets the expected/received baseline for the next interval.
func (s *sourceStats) reportSince() ReceptionReport {
	extended := s.extendedSeq()
	expected := extended - s.lastReported
	receivedSince := s.received
	s.received = 0
	s.lastReported = extended

	fraction := CalculateFractionLost(expected, receivedSince)
	if receivedSince < expected {
		s.cumulative = AddCumulativeLost(s.cumulative, int64(expected-receivedSince))
	}

	var lastSR, delay uint32
	if !s.lastSRReceived.IsZero() {
		lastSR = s.lastSRTimestamp
		delay = uint32(time.Since(s.lastSRReceived).Seconds() * 65536)
	}

	return ReceptionReport{
		SSRC:             s.ssrc,
		FractionLost:     fraction,
		CumulativeLost:   s.cumulative,
		HighestSeqNum:    extended,
		Jitter:           uint32(s.jitter),
		LastSR:           lastSR,
		DelaySinceLastSR: delay,
	}
}

// RTCPEngine owns the RTCP side of a Stream: periodic SR/RR emission on
// its own goroutine (via Runner) and a receiver loop that folds incoming
// reports into per-source statistics. It mirrors the dispatcher's
// Start/Stop/Active contract; its two loops share one errgroup, which Stop
// waits on.
type RTCPEngine struct {
	Runner

	transport Transport
	header    *HeaderProcessor
	cname     string

	interval time.Duration

	mu       sync.Mutex
	sources  map[uint32]*sourceStats
	sent     uint32
	octets   uint32
	initial  bool
	lastSent time.Time

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewRTCPEngine creates an engine that reports on behalf of header's SSRC,
// sending compound packets over transport. interval is stored (5s if it is
// 0 or negative), but the emission loop does not read it: the spacing of
// reports always comes from RTCPIntervalCalculation.
func NewRTCPEngine(transport Transport, header *HeaderProcessor, cname string, interval time.Duration) *RTCPEngine {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &RTCPEngine{
		transport: transport,
		header:    header,
		cname:     cname,
		interval:  interval,
		sources:   make(map[uint32]*sourceStats),
		initial:   true,
	}
}

// NoteSent records one outgoing RTP packet for the next SR.
func (e *RTCPEngine) NoteSent(octets int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent++
	e.octets += uint32(octets)
}

// NoteReceived folds one incoming RTP packet, attributed to ssrc, into
// that source's statistics for the next RR.
func (e *RTCPEngine) NoteReceived(ssrc uint32, seq uint16, rtpTimestamp uint32, clockRate uint32, arrival time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sources[ssrc]
	if !ok {
		s = &sourceStats{ssrc: ssrc}
		e.sources[ssrc] = s
	}

	var transit int64
	if clockRate > 0 {
		arrivalTicks := int64(arrival.UnixNano()) * int64(clockRate) / int64(time.Second)
		transit = arrivalTicks - int64(rtpTimestamp)
	}
	s.update(seq, transit)
}

// NoteSenderReport records a peer's SR timestamp, used to compute delay-
// since-last-SR in our next RR for that source.
func (e *RTCPEngine) NoteSenderReport(ssrc uint32, ntpTimestamp uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sources[ssrc]
	if !ok {
		s = &sourceStats{ssrc: ssrc}
		e.sources[ssrc] = s
	}
	s.lastSRTimestamp = uint32(ntpTimestamp >> 16)
	s.lastSRReceived = time.Now()
}

// Start launches the emission loop and the incoming-packet receive loop.
func (e *RTCPEngine) Start(ctx context.Context) error {
	if e.Active() {
		return newError(StatusNotReady, "RTCPEngine.Start", nil)
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	group, gctx := errgroup.WithContext(ctx)
	e.group = group

	group.Go(func() error { return e.emitLoop(gctx) })
	group.Go(func() error { return e.receiveLoop(gctx) })

	e.markActive()
	return nil
}

// Stop cancels both loops and waits for them to exit.
func (e *RTCPEngine) Stop() error {
	if !e.Active() {
		return nil
	}
	e.cancel()
	err := e.group.Wait()
	e.markInactive()
	if err != nil && err != context.Canceled {
		return newError(StatusGenericError, "RTCPEngine.Stop", err)
	}
	return nil
}

func (e *RTCPEngine) emitLoop(ctx context.Context) error {
	timer := time.NewTimer(e.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if err := e.sendReport(); err != nil {
				log.Printf("rtp: rtcp report send failed: %v", err)
			}
			timer.Reset(e.nextInterval())
		}
	}
}

func (e *RTCPEngine) nextInterval() time.Duration {
	e.mu.Lock()
	members := len(e.sources) + 1
	senders := 0
	if e.sent > 0 {
		senders = 1
	}
	initial := e.initial
	e.initial = false
	e.mu.Unlock()

	return RTCPIntervalCalculation(members, senders, 5.0, senders > 0, 0, initial)
}

func (e *RTCPEngine) sendReport() error {
	e.mu.Lock()
	weSent := e.sent > 0
	sent, octets := e.sent, e.octets
	reports := make([]ReceptionReport, 0, len(e.sources))
	for _, s := range e.sources {
		reports = append(reports, s.reportSince())
	}
	e.mu.Unlock()

	var packets []RTCPPacket
	if weSent {
		sr := NewSenderReport(e.header.SSRC(), NTPTimestamp(time.Now()), e.header.CurrentTimestamp(), sent, octets)
		for _, r := range reports {
			sr.AddReceptionReport(r)
		}
		packets = append(packets, sr)
	} else {
		rr := NewReceiverReport(e.header.SSRC())
		for _, r := range reports {
			rr.AddReceptionReport(r)
		}
		packets = append(packets, rr)
	}

	sdes := NewSourceDescription()
	sdes.AddChunk(e.header.SSRC(), []SDESItem{{Type: SDESTypeCNAME, Length: uint8(len(e.cname)), Text: []byte(e.cname)}})
	packets = append(packets, sdes)

	data, err := MarshalCompound(packets)
	if err != nil {
		return newError(StatusGenericError, "sendReport", err)
	}

	_, err = e.transport.WriteTo(data, nil)
	if err != nil {
		return newError(StatusSendError, "sendReport", err)
	}
	return nil
}

func (e *RTCPEngine) receiveLoop(ctx context.Context) error {
	buf := make([]byte, MaxDatagramSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		_ = e.transport.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := e.transport.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			continue
		}
		e.handleIncoming(buf[:n])
		_ = addr
	}
}

func (e *RTCPEngine) handleIncoming(data []byte) {
	pkts, err := UnmarshalCompound(data)
	if err != nil {
		log.Printf("rtp: malformed rtcp packet: %v", err)
		return
	}
	for _, p := range pkts {
		if sr, ok := p.(*SenderReport); ok {
			e.NoteSenderReport(sr.SSRC, sr.NTPTimestamp)
		}
	}
}
