package rtp

import (
	"context"
	"time"

	"github.com/arzzra/rtpstream/pkg/rtp/formats"
)

// StreamConfig configures one Stream: its codec, local identity, and the
// optional RTCP channel alongside it.
type StreamConfig struct {
	Format        Format
	PayloadType   uint8
	ClockRate     uint32
	AcceptedTypes []uint8

	// MTU bounds a single RTP packet's payload before the codec must
	// fragment. Defaults to MaxPayload.
	MTU int

	// ProbationSize scales the per-source probation zone to
	// ProbationSize*MTU bytes. Defaults to 8.
	ProbationSize int

	// SamplesPerFrame is the clock-rate tick count PushFrame advances the
	// RTP timestamp by when the caller doesn't supply one explicitly.
	// Defaults to ClockRate/50 (a 20ms cadence).
	SamplesPerFrame uint32

	CNAME        string
	RTCPInterval time.Duration
	SRTPDecrypt  SRTPDecryptFunc
}

// Stream is the top-level per-media handle (spec.md §6): it wires the
// header processor, handler chain, dispatcher, frame queue, codec and
// optional RTCP engine into the single object the caller interacts with.
type Stream struct {
	header     *HeaderProcessor
	transport  Transport
	dispatcher *Dispatcher
	queue      *FrameQueue
	codec      formats.Codec
	mtu        int
	sampleTick uint32
	rtcp       *RTCPEngine
	metrics    *Metrics
}

// NewStream creates a Stream sending/receiving over transport, with an
// optional rtcpTransport for SR/RR exchange (nil disables RTCP).
func NewStream(transport Transport, rtcpTransport Transport, cfg StreamConfig) (*Stream, error) {
	if transport == nil {
		return nil, newError(StatusInvalidValue, "NewStream", nil)
	}
	if cfg.MTU <= 0 {
		cfg.MTU = MaxPayload
	}
	if cfg.ProbationSize <= 0 {
		cfg.ProbationSize = 8
	}
	if cfg.SamplesPerFrame == 0 && cfg.ClockRate > 0 {
		cfg.SamplesPerFrame = cfg.ClockRate / 50
	}

	hp, err := NewHeaderProcessor(cfg.PayloadType, cfg.ClockRate, cfg.AcceptedTypes...)
	if err != nil {
		return nil, err
	}

	media := NewMediaHandler(cfg.Format, cfg.MTU, cfg.ProbationSize)

	dispatcher := NewDispatcher(transport,
		ZRTPHandler(),
		SRTPHandler(cfg.SRTPDecrypt),
		RTPHandler(hp),
		media.Handler(),
	)

	s := &Stream{
		header:     hp,
		transport:  transport,
		dispatcher: dispatcher,
		queue:      NewFrameQueue(),
		codec:      formats.New(formatToKind(cfg.Format)),
		mtu:        cfg.MTU,
		sampleTick: cfg.SamplesPerFrame,
	}

	if rtcpTransport != nil {
		s.rtcp = NewRTCPEngine(rtcpTransport, hp, cfg.CNAME, cfg.RTCPInterval)
	}

	return s, nil
}

// Start brings up the reader goroutine and, if configured, the RTCP
// engine's emit/receive loops.
func (s *Stream) Start(ctx context.Context) error {
	if err := s.dispatcher.Start(ctx); err != nil {
		return err
	}
	if s.rtcp != nil {
		if err := s.rtcp.Start(ctx); err != nil {
			_ = s.dispatcher.Stop()
			return err
		}
	}
	return nil
}

// Stop tears both down, guaranteeing both goroutines have exited before it
// returns.
func (s *Stream) Stop() error {
	var firstErr error
	if s.rtcp != nil {
		if err := s.rtcp.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.dispatcher.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// PushFrame fragments payload per the configured codec and sends it as one
// access unit, advancing the RTP timestamp by SamplesPerFrame ticks.
func (s *Stream) PushFrame(payload []byte) error {
	return s.pushFrame(payload, nil)
}

// PushFrameWithTimestamp is PushFrame with an explicit RTP timestamp
// override, for callers driving their own clock (e.g. relaying timestamps
// from an upstream source instead of a local sample clock).
func (s *Stream) PushFrameWithTimestamp(payload []byte, timestamp uint32) error {
	return s.pushFrame(payload, &timestamp)
}

func (s *Stream) pushFrame(payload []byte, ts *uint32) error {
	frags, err := s.codec.Fragment(payload, s.mtu)
	if err != nil {
		return newError(StatusGenericError, "PushFrame", err)
	}

	for _, frag := range frags {
		hdr := s.header.Build(false, ts, s.sampleTick)
		if ts == nil {
			// Every fragment of one access unit carries the timestamp the
			// first fragment was stamped with.
			unitTS := hdr.Timestamp
			ts = &unitTS
		}
		s.queue.EnqueueMessage(hdr, nil, frag)
	}
	s.queue.InitializeFUHeaders()

	return s.queue.FlushQueue(func(hdr RTPHeader, csrc []uint32, fragPayload []byte) error {
		data, err := Marshal(hdr, csrc, fragPayload)
		if err != nil {
			return err
		}
		n, err := s.transport.WriteTo(data, nil)
		if err != nil {
			return err
		}
		if s.rtcp != nil {
			s.rtcp.NoteSent(n)
		}
		s.metrics.observeSent(s.header.SSRC(), n)
		return nil
	})
}

// PullFrame blocks until a frame is available or ctx is done. It is the
// complement to InstallReceiveHook: a stream uses exactly one of the two
// delivery modes at a time, chosen by whether a hook is installed.
func (s *Stream) PullFrame(ctx context.Context) (*Frame, error) {
	return s.dispatcher.PullFrame(ctx)
}

// PullFrameTimeout is PullFrame bounded by a fixed timeout.
func (s *Stream) PullFrameTimeout(timeout time.Duration) (*Frame, error) {
	return s.dispatcher.PullFrameTimeout(timeout)
}

// InstallReceiveHook installs a synchronous delivery callback, switching
// the stream out of FIFO/PullFrame delivery mode.
func (s *Stream) InstallReceiveHook(hook func(*Frame)) {
	s.dispatcher.InstallReceiveHook(hook)
}

// InstallHandler appends a handler to the end of the chain.
func (s *Stream) InstallHandler(h Handler) {
	s.dispatcher.InstallHandler(h)
}

// InstallHandlerAt inserts a handler at a fixed position, e.g. ahead of
// the built-in RTP/media pair.
func (s *Stream) InstallHandlerAt(index int, h Handler) error {
	return s.dispatcher.InstallHandlerAt(index, h)
}

// SSRC returns the stream's local synchronization source identifier.
func (s *Stream) SSRC() uint32 { return s.header.SSRC() }

// SetMetrics attaches a Prometheus exporter shared across every Stream
// registered against the same Metrics. Must be called before Start.
func (s *Stream) SetMetrics(m *Metrics) {
	s.dispatcher.SetMetrics(m)
	s.metrics = m
}
