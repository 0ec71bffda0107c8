package rtp

import (
	"net"
	"sync"

	"github.com/arzzra/rtpstream/pkg/rtp/formats"
)

// HandlerContext carries one datagram through the fixed handler chain
// (ZRTP -> SRTP -> RTP -> media), accumulating state as each handler runs.
type HandlerContext struct {
	Dgram []byte
	Src   net.Addr
	Frame *Frame
}

// Handler is one link in the chain. It inspects and optionally rewrites
// ctx, returning a Status from the closed set the dispatcher understands:
//
//   - StatusOK: not interested; pass ctx unchanged to the next handler.
//   - StatusPktModified: ctx.Dgram (or ctx.Frame) was rewritten in place
//     (SRTP decrypted it, RTP parsed it); continue to the next handler.
//   - StatusPktReady: ctx.Frame now holds the fully assembled frame; the
//     chain stops here and the dispatcher delivers it.
//   - StatusPktNotHandled: this handler recognizes the datagram does not
//     belong to it (e.g. foreign SSRC); the chain stops, datagram dropped.
//   - StatusGenericError: unrecoverable; the chain stops, datagram dropped.
type Handler func(ctx *HandlerContext) (Status, error)

// ZRTPHandler recognizes ZRTP packets by their magic cookie (RFC 6189 §5)
// and delivers them as a terminal Frame tagged FormatZRTP, without
// attempting key agreement itself — ZRTP negotiation is modeled as an
// opaque collaborator outside this package's scope, exactly like the
// dispatcher chain this is grounded on treats its ZRTP link.
func ZRTPHandler() Handler {
	return func(ctx *HandlerContext) (Status, error) {
		if len(ctx.Dgram) < 8 {
			return StatusOK, nil
		}
		magic := uint32(ctx.Dgram[4])<<24 | uint32(ctx.Dgram[5])<<16 | uint32(ctx.Dgram[6])<<8 | uint32(ctx.Dgram[7])
		if magic != ZRTPMagic {
			return StatusOK, nil
		}

		payload := append([]byte(nil), ctx.Dgram[8:]...)
		ctx.Frame = &Frame{
			Format:  FormatZRTP,
			Payload: payload,
			PayloadLen: len(payload),
			Dgram:   ctx.Dgram,
			Src:     ctx.Src,
		}
		return StatusPktReady, nil
	}
}

// SRTPDecryptFunc decrypts one SRTP datagram into its RTP plaintext. It is
// supplied by the caller; this package never implements SRTP cryptography
// itself (out of scope, modeled as an opaque collaborator per spec.md §1).
type SRTPDecryptFunc func(dgram []byte) ([]byte, error)

// SRTPHandler wraps an external decrypt function as a chain link. With a
// nil decrypt func it is a no-op passthrough, useful for streams that
// never enable SRTP.
func SRTPHandler(decrypt SRTPDecryptFunc) Handler {
	return func(ctx *HandlerContext) (Status, error) {
		if decrypt == nil {
			return StatusOK, nil
		}
		out, err := decrypt(ctx.Dgram)
		if err != nil {
			return StatusGenericError, newError(StatusGenericError, "SRTPHandler", err)
		}
		ctx.Dgram = out
		return StatusPktModified, nil
	}
}

// RTPHandler parses the RTP header via hp and stores the result in
// ctx.Frame for the media handler to reassemble. It returns
// StatusPktNotHandled for a datagram belonging to a different SSRC/PT,
// letting a demultiplexer fall through to another stream's chain.
func RTPHandler(hp *HeaderProcessor) Handler {
	return func(ctx *HandlerContext) (Status, error) {
		frame, status, err := hp.Parse(ctx.Dgram, ctx.Src)
		if err != nil {
			if status == StatusGenericError {
				return StatusGenericError, err
			}
			return StatusPktNotHandled, nil
		}
		ctx.Frame = frame
		return status, nil
	}
}

// MediaHandler reassembles the fragments a codec produced, keyed by
// source SSRC so concurrent senders on one stream (an SFU relay, say)
// don't interleave each other's fragments. It is the terminal handler:
// on a complete access unit it returns StatusPktReady with ctx.Frame
// replaced by the reassembled payload.
type MediaHandler struct {
	format     Format
	codec      formats.Codec
	maxPayload int
	pzSize     int

	mu            sync.Mutex
	reassemblers  map[uint32]*formats.Reassembler
}

// NewMediaHandler builds a media handler for format, with a probation zone
// of pzSize*maxPayload bytes per source.
func NewMediaHandler(format Format, maxPayload, pzSize int) *MediaHandler {
	return &MediaHandler{
		format:       format,
		codec:        formats.New(formatToKind(format)),
		maxPayload:   maxPayload,
		pzSize:       pzSize,
		reassemblers: make(map[uint32]*formats.Reassembler),
	}
}

func (m *MediaHandler) reassemblerFor(ssrc uint32) (*formats.Reassembler, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reassemblers[ssrc]
	if ok {
		return r, nil
	}
	r, err := formats.NewReassembler(m.codec, m.maxPayload, m.pzSize)
	if err != nil {
		return nil, err
	}
	m.reassemblers[ssrc] = r
	return r, nil
}

// Handler returns this media handler as a chain Handler closure.
func (m *MediaHandler) Handler() Handler {
	return func(ctx *HandlerContext) (Status, error) {
		if ctx.Frame == nil || ctx.Frame.Format == FormatZRTP {
			return StatusOK, nil
		}

		r, err := m.reassemblerFor(ctx.Frame.Header.SSRC)
		if err != nil {
			return StatusGenericError, newError(StatusGenericError, "MediaHandler", err)
		}

		payload, complete, err := r.Push(ctx.Frame.Payload, ctx.Frame.Header.SequenceNumber, ctx.Frame.Header.Timestamp)
		if err != nil {
			return StatusGenericError, newError(StatusGenericError, "MediaHandler", err)
		}
		if !complete {
			return StatusNotReady, nil
		}

		ctx.Frame.Payload = payload
		ctx.Frame.PayloadLen = len(payload)
		ctx.Frame.Format = m.format
		if t, err := m.codec.PayloadNALType(payload); err == nil {
			ctx.Frame.Type = t
		}
		return StatusPktReady, nil
	}
}

func formatToKind(f Format) formats.Kind {
	switch f {
	case FormatOpus:
		return formats.KindOpus
	case FormatH264:
		return formats.KindH264
	case FormatH265:
		return formats.KindH265
	case FormatH266:
		return formats.KindH266
	default:
		return formats.KindGeneric
	}
}
