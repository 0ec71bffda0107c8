package rtp

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// Packet size limits shared by every UDPTransport, kept from the teacher's
// telephony-tuned defaults.
const (
	MinDatagramSize = 12   // smallest a valid RTP header could be
	MaxDatagramSize = 1500 // MTU ceiling
)

// UDPTransport is the default Transport: a single UDP socket, optionally
// bound to one peer. Two independent UDPTransports — RTP and RTCP, by
// convention on adjacent ports — back one Stream.
type UDPTransport struct {
	conn       *net.UDPConn
	remoteAddr *net.UDPAddr
	config     TransportConfig

	active bool
	mutex  sync.RWMutex
}

// NewUDPTransport opens a UDP socket bound to config.LocalAddr.
func NewUDPTransport(config TransportConfig) (*UDPTransport, error) {
	if config.BufferSize == 0 {
		config.BufferSize = MaxDatagramSize
	}

	localAddr, err := net.ResolveUDPAddr("udp", config.LocalAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve local address: %w", err)
	}

	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("open udp socket: %w", err)
	}

	if err := setSockOptForVoice(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("configure socket: %w", err)
	}

	t := &UDPTransport{
		conn:   conn,
		config: config,
		active: true,
	}

	if config.RemoteAddr != "" {
		remoteAddr, err := net.ResolveUDPAddr("udp", config.RemoteAddr)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("resolve remote address: %w", err)
		}
		t.remoteAddr = remoteAddr
	}

	return t, nil
}

// WriteTo sends b to addr, or to the configured remote address if addr is
// nil.
func (t *UDPTransport) WriteTo(b []byte, addr net.Addr) (int, error) {
	t.mutex.RLock()
	active := t.active
	conn := t.conn
	remote := t.remoteAddr
	t.mutex.RUnlock()

	if !active {
		return 0, fmt.Errorf("transport closed")
	}

	dst, ok := addr.(*net.UDPAddr)
	if !ok || dst == nil {
		dst = remote
	}
	if dst == nil {
		return 0, fmt.Errorf("no remote address set")
	}

	if err := validatePacketSize(len(b)); err != nil {
		return 0, fmt.Errorf("outgoing datagram: %w", err)
	}

	n, err := conn.WriteToUDP(b, dst)
	if err != nil {
		return n, classifyNetworkError("udp write", err)
	}
	return n, nil
}

// ReadFrom reads one datagram into b, blocking until the deadline set by
// SetReadDeadline (or indefinitely if none was set).
func (t *UDPTransport) ReadFrom(b []byte) (int, net.Addr, error) {
	t.mutex.RLock()
	active := t.active
	conn := t.conn
	t.mutex.RUnlock()

	if !active {
		return 0, nil, fmt.Errorf("transport closed")
	}

	n, addr, err := conn.ReadFromUDP(b)
	if err != nil {
		return n, addr, classifyNetworkError("udp read", err)
	}

	if err := validatePacketSize(n); err != nil {
		return n, addr, fmt.Errorf("incoming datagram: %w", err)
	}

	t.mutex.Lock()
	if t.remoteAddr == nil {
		t.remoteAddr = addr
	}
	t.mutex.Unlock()

	return n, addr, nil
}

// SetReadDeadline arms the socket's read deadline, used by the dispatcher's
// reader loop to poll for inactivity without blocking indefinitely.
func (t *UDPTransport) SetReadDeadline(deadline time.Time) error {
	t.mutex.RLock()
	conn := t.conn
	t.mutex.RUnlock()
	return conn.SetReadDeadline(deadline)
}

// LocalAddr returns the bound local address.
func (t *UDPTransport) LocalAddr() net.Addr {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// RemoteAddr returns the configured or learned peer address.
func (t *UDPTransport) RemoteAddr() net.Addr {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.remoteAddr
}

// SetRemoteAddr overrides the peer address.
func (t *UDPTransport) SetRemoteAddr(addr string) error {
	remoteAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve remote address: %w", err)
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.remoteAddr = remoteAddr
	return nil
}

// Close shuts down the socket. Idempotent.
func (t *UDPTransport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if !t.active {
		return nil
	}
	t.active = false
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// IsActive reports whether the socket is still open.
func (t *UDPTransport) IsActive() bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.active
}

func setSockOptForVoice(conn *net.UDPConn) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	return rawConn.Control(func(fd uintptr) {})
}

func validatePacketSize(size int) error {
	if size < MinDatagramSize {
		return fmt.Errorf("datagram too small: %d bytes (min %d)", size, MinDatagramSize)
	}
	if size > MaxDatagramSize {
		return fmt.Errorf("datagram too large: %d bytes (max %d)", size, MaxDatagramSize)
	}
	return nil
}

// NetworkErrorType classifies a transport-level error for callers deciding
// whether to retry.
type NetworkErrorType int

const (
	ErrorTypeTemporary NetworkErrorType = iota
	ErrorTypePermanent
	ErrorTypeTimeout
	ErrorTypeConnection
	ErrorTypeUnknown
)

// ClassifiedError wraps a network error with a retry classification.
type ClassifiedError struct {
	Type      NetworkErrorType
	Operation string
	Err       error
	Retryable bool
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s (type: %s, retryable: %t)", e.Operation, e.Err.Error(), e.typeString(), e.Retryable)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

func (e *ClassifiedError) typeString() string {
	switch e.Type {
	case ErrorTypeTemporary:
		return "temporary"
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeConnection:
		return "connection"
	default:
		return "unknown"
	}
}

func classifyNetworkError(operation string, err error) error {
	if err == nil {
		return nil
	}

	classified := &ClassifiedError{Operation: operation, Err: err, Type: ErrorTypeUnknown}

	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		classified.Type = ErrorTypeTimeout
		classified.Retryable = true
		return classified
	}

	switch {
	case isConnectionError(err):
		classified.Type = ErrorTypeConnection
		classified.Retryable = true
	case isPermanentError(err):
		classified.Type = ErrorTypePermanent
		classified.Retryable = false
	}

	return classified
}

func isConnectionError(err error) bool {
	return containsAny(err.Error(), []string{
		"connection refused", "connection reset",
		"network is unreachable", "host is unreachable", "no route to host",
	})
}

func isPermanentError(err error) bool {
	return containsAny(err.Error(), []string{
		"invalid argument", "address family not supported",
		"permission denied", "operation not supported",
	})
}

func containsAny(s string, substrs []string) bool {
	for _, substr := range substrs {
		if len(s) >= len(substr) {
			for i := 0; i <= len(s)-len(substr); i++ {
				if s[i:i+len(substr)] == substr {
					return true
				}
			}
		}
	}
	return false
}
