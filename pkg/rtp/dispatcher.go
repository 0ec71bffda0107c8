package rtp

import (
	"context"
	"log"
	"net"
	"sync"
	"time"
)

// readWait bounds how long the reader goroutine blocks on one socket read
// before re-checking for cancellation. The original design's select loop
// used a 1.5ms timeout to stay responsive to stop(); SetReadDeadline with
// the same value gives the same responsiveness without a busy poll.
const readWait = 1500 * time.Microsecond

// Dispatcher is the packet ingress core (component F): one reader
// goroutine owning one Transport and one ordered Handler chain. It walks
// every incoming datagram through the chain per the status table documented
// on Handler, and delivers completed frames either synchronously to an
// installed hook or into a FIFO drained by PullFrame.
type Dispatcher struct {
	Runner

	transport Transport

	handlersMu sync.RWMutex
	handlers   []Handler

	hookMu sync.RWMutex
	hook   func(*Frame)

	fifoMu sync.Mutex
	fifo   []*Frame
	notify chan struct{}

	metrics *Metrics

	cancel context.CancelFunc
	done   chan struct{}
}

// SetMetrics attaches a Prometheus exporter. Must be called before Start.
func (d *Dispatcher) SetMetrics(m *Metrics) {
	d.metrics = m
}

// NewDispatcher creates a dispatcher over transport with an initial handler
// chain. Additional handlers may be appended with InstallHandler before
// Start; the chain is read-only once the reader goroutine is running.
func NewDispatcher(transport Transport, handlers ...Handler) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		handlers:  append([]Handler(nil), handlers...),
		notify:    make(chan struct{}, 1),
	}
}

// InstallHandler appends h to the end of the chain.
func (d *Dispatcher) InstallHandler(h Handler) {
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()
	d.handlers = append(d.handlers, h)
}

// InstallHandlerAt inserts h at index, shifting later handlers down. Used
// to splice SRTP/ZRTP ahead of the fixed RTP/media pair.
func (d *Dispatcher) InstallHandlerAt(index int, h Handler) error {
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()
	if index < 0 || index > len(d.handlers) {
		return newError(StatusInvalidValue, "InstallHandlerAt", nil)
	}
	grown := make([]Handler, 0, len(d.handlers)+1)
	grown = append(grown, d.handlers[:index]...)
	grown = append(grown, h)
	grown = append(grown, d.handlers[index:]...)
	d.handlers = grown
	return nil
}

// InstallReceiveHook installs a synchronous callback invoked on the
// dispatcher's own goroutine for every completed frame. A nil hook reverts
// to FIFO delivery via PullFrame. The hook runs under recover() — a panic
// inside it is logged, not propagated, so a misbehaving callback cannot
// take down the reader goroutine.
func (d *Dispatcher) InstallReceiveHook(hook func(*Frame)) {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	d.hook = hook
}

// Start launches the reader goroutine.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.Active() {
		return newError(StatusNotReady, "Dispatcher.Start", nil)
	}
	cctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(cctx)
	d.markActive()
	return nil
}

// Stop cancels the reader goroutine and blocks until it has fully exited,
// guaranteeing no further deliveries happen after Stop returns.
func (d *Dispatcher) Stop() error {
	if !d.Active() {
		return nil
	}
	d.cancel()
	<-d.done
	d.markInactive()
	return nil
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	buf := make([]byte, MaxDatagramSize)

	for {
		if ctx.Err() != nil {
			return
		}

		_ = d.transport.SetReadDeadline(time.Now().Add(readWait))
		n, addr, err := d.transport.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !d.transport.IsActive() {
				log.Printf("rtp: dispatcher transport closed, reader exiting: %v", err)
				return
			}
			log.Printf("rtp: dispatcher read error: %v", err)
			continue
		}

		dgram := append([]byte(nil), buf[:n]...)
		d.dispatch(dgram, addr)
	}
}

func (d *Dispatcher) dispatch(dgram []byte, src net.Addr) {
	hctx := &HandlerContext{Dgram: dgram, Src: src}

	d.handlersMu.RLock()
	handlers := d.handlers
	d.handlersMu.RUnlock()

	for _, h := range handlers {
		status, err := h(hctx)
		switch status {
		case StatusOK, StatusPktModified:
			continue
		case StatusPktReady:
			if hctx.Frame != nil {
				d.metrics.observeReceived(hctx.Frame.Header.SSRC, hctx.Frame.PayloadLen)
			}
			d.deliver(hctx.Frame)
			return
		case StatusNotReady:
			return
		case StatusPktNotHandled:
			d.metrics.observeDropped(0, "not_handled")
			return
		case StatusGenericError:
			if err != nil {
				log.Printf("rtp: handler chain error: %v", err)
			}
			d.metrics.observeDropped(0, "error")
			return
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(frame *Frame) {
	if frame == nil {
		return
	}

	d.hookMu.RLock()
	hook := d.hook
	d.hookMu.RUnlock()

	if hook != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("rtp: receive hook panicked: %v", r)
				}
			}()
			hook(frame)
		}()
		return
	}

	d.fifoMu.Lock()
	d.fifo = append(d.fifo, frame)
	d.fifoMu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// PullFrame blocks until a frame is available or ctx is done. It replaces
// the original 20ms sleep-poll with a channel wait of equivalent semantics:
// no frame is missed between the FIFO check and the wait, since deliver
// leaves a token in the buffered notify channel that wakes the wait and
// sends it back to the FIFO check.
func (d *Dispatcher) PullFrame(ctx context.Context) (*Frame, error) {
	for {
		d.fifoMu.Lock()
		if len(d.fifo) > 0 {
			f := d.fifo[0]
			d.fifo = d.fifo[1:]
			d.fifoMu.Unlock()
			return f, nil
		}
		d.fifoMu.Unlock()

		select {
		case <-ctx.Done():
			return nil, newError(StatusInterrupted, "PullFrame", ctx.Err())
		case <-d.notify:
		}
	}
}

// PullFrameTimeout is PullFrame bounded by timeout, replacing the original
// 1ms-countdown poll with a single context deadline.
func (d *Dispatcher) PullFrameTimeout(timeout time.Duration) (*Frame, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	f, err := d.PullFrame(ctx)
	if err != nil {
		return nil, newError(StatusTimeout, "PullFrameTimeout", err)
	}
	return f, nil
}
