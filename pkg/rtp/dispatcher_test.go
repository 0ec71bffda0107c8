package rtp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is a minimal Transport that never produces real datagrams;
// ReadFrom sleeps 1ms and then reports a timeout, ignoring any deadline,
// exercising the dispatcher's reader loop without a real socket.
type fakeTransport struct {
	active bool
}

func (f *fakeTransport) WriteTo(b []byte, addr net.Addr) (int, error) { return len(b), nil }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func (f *fakeTransport) ReadFrom(b []byte) (int, net.Addr, error) {
	time.Sleep(time.Millisecond)
	return 0, nil, timeoutErr{}
}
func (f *fakeTransport) LocalAddr() net.Addr         { return &net.UDPAddr{} }
func (f *fakeTransport) RemoteAddr() net.Addr        { return &net.UDPAddr{} }
func (f *fakeTransport) SetRemoteAddr(string) error  { return nil }
func (f *fakeTransport) SetReadDeadline(time.Time) error { return nil }
func (f *fakeTransport) Close() error                { f.active = false; return nil }
func (f *fakeTransport) IsActive() bool              { return f.active }

func TestDispatcherStartStopLifecycle(t *testing.T) {
	d := NewDispatcher(&fakeTransport{active: true})
	ctx := context.Background()

	require.NoError(t, d.Start(ctx))
	assert.True(t, d.Active())

	// starting twice while active is rejected
	err := d.Start(ctx)
	assert.Error(t, err)

	require.NoError(t, d.Stop())
	assert.False(t, d.Active())

	// stopping an already-stopped dispatcher is a no-op
	require.NoError(t, d.Stop())
}

func TestDispatcherDispatchDeliversOnPktReady(t *testing.T) {
	d := NewDispatcher(&fakeTransport{})
	want := &Frame{Header: RTPHeader{SSRC: 7}, PayloadLen: 3}
	d.InstallHandler(func(ctx *HandlerContext) (Status, error) {
		ctx.Frame = want
		return StatusPktReady, nil
	})

	received := make(chan *Frame, 1)
	d.InstallReceiveHook(func(f *Frame) { received <- f })

	d.dispatch([]byte{1, 2, 3}, nil)

	select {
	case f := <-received:
		assert.Same(t, want, f)
	case <-time.After(time.Second):
		t.Fatal("frame was not delivered")
	}
}

func TestDispatcherDispatchStopsChainOnNotHandled(t *testing.T) {
	d := NewDispatcher(&fakeTransport{})
	var secondCalled bool
	d.InstallHandler(func(ctx *HandlerContext) (Status, error) {
		return StatusPktNotHandled, nil
	})
	d.InstallHandler(func(ctx *HandlerContext) (Status, error) {
		secondCalled = true
		return StatusOK, nil
	})

	d.dispatch([]byte{1}, nil)
	assert.False(t, secondCalled)
}

func TestDispatcherDispatchContinuesThroughModified(t *testing.T) {
	d := NewDispatcher(&fakeTransport{})
	var order []int
	d.InstallHandler(func(ctx *HandlerContext) (Status, error) {
		order = append(order, 1)
		return StatusPktModified, nil
	})
	d.InstallHandler(func(ctx *HandlerContext) (Status, error) {
		order = append(order, 2)
		return StatusOK, nil
	})

	d.dispatch([]byte{1}, nil)
	assert.Equal(t, []int{1, 2}, order)
}

func TestDispatcherFIFODeliveryAndPullFrame(t *testing.T) {
	d := NewDispatcher(&fakeTransport{})
	want := &Frame{Header: RTPHeader{SSRC: 9}}
	d.InstallHandler(func(ctx *HandlerContext) (Status, error) {
		ctx.Frame = want
		return StatusPktReady, nil
	})

	d.dispatch([]byte{1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := d.PullFrame(ctx)
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestDispatcherPullFrameTimeoutExpires(t *testing.T) {
	d := NewDispatcher(&fakeTransport{})
	_, err := d.PullFrameTimeout(10 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, errorIsStatus(err, StatusTimeout))
}

func TestDispatcherInstallHandlerAtRejectsOutOfRange(t *testing.T) {
	d := NewDispatcher(&fakeTransport{})
	err := d.InstallHandlerAt(5, func(ctx *HandlerContext) (Status, error) { return StatusOK, nil })
	assert.Error(t, err)
}

func TestDispatcherInstallHandlerAtSplicesInOrder(t *testing.T) {
	d := NewDispatcher(&fakeTransport{},
		func(ctx *HandlerContext) (Status, error) { return StatusOK, nil },
		func(ctx *HandlerContext) (Status, error) { return StatusPktReady, nil },
	)
	var order []string
	require.NoError(t, d.InstallHandlerAt(1, func(ctx *HandlerContext) (Status, error) {
		order = append(order, "spliced")
		return StatusOK, nil
	}))

	d.handlersMu.RLock()
	n := len(d.handlers)
	d.handlersMu.RUnlock()
	assert.Equal(t, 3, n)

	// The spliced handler sits ahead of the terminal PktReady handler, so a
	// dispatched datagram reaches it.
	d.dispatch([]byte{1}, nil)
	assert.Equal(t, []string{"spliced"}, order)
}

func TestDispatcherReceiveHookPanicIsRecovered(t *testing.T) {
	d := NewDispatcher(&fakeTransport{})
	d.InstallReceiveHook(func(f *Frame) { panic("boom") })

	assert.NotPanics(t, func() {
		d.deliver(&Frame{})
	})
}
