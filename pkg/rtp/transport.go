package rtp

import (
	"net"
	"time"
)

// Transport is the raw-datagram transceiver the dispatcher drives. Unlike
// the teacher's original transport, which pre-parsed every datagram into
// a *rtp.Packet at the socket boundary, Transport deals in plain bytes:
// parsing happens inside the handler chain (component F), so the ZRTP
// magic check and the RTP header parse both get a first look at the same
// untouched datagram, in chain order, rather than RTP parsing happening
// unconditionally before ZRTP ever sees the bytes.
//
// An RTCP channel for a stream is just a second Transport bound to a
// different local port (by the RFC 3605 port+1 convention, or any port the
// caller configures) — there is no separate RTCP transport type.
type Transport interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
	ReadFrom(b []byte) (n int, addr net.Addr, err error)
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	SetRemoteAddr(addr string) error
	SetReadDeadline(t time.Time) error
	Close() error
	IsActive() bool
}

// TransportConfig configures a UDP-backed Transport.
type TransportConfig struct {
	LocalAddr  string
	RemoteAddr string
	BufferSize int
}

// DefaultTransportConfig returns sane defaults for a telephony-grade UDP
// socket: MTU-sized buffer, no fixed peer until SetRemoteAddr or the first
// received datagram sets one.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{BufferSize: MaxPayload + rtpHeaderMinLen}
}
