package rtp

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceStatsUpdateTracksCycleOnSequenceWrap(t *testing.T) {
	s := &sourceStats{ssrc: 1}
	s.update(65534, 0)
	s.update(65535, 0)
	s.update(0, 0) // wraps past 65535 back to 0
	s.update(1, 0)

	assert.EqualValues(t, 1, s.cycles)
	assert.EqualValues(t, 1, s.highestSeq)
	assert.Equal(t, uint32(1)<<16|1, s.extendedSeq())
}

func TestSourceStatsUpdateAccumulatesJitter(t *testing.T) {
	s := &sourceStats{ssrc: 1}
	s.update(1, 1000)
	assert.Zero(t, s.jitter) // no jitter until a second sample gives a delta

	s.update(2, 1050)
	assert.InDelta(t, 50.0/16.0, s.jitter, 1e-9)
}

func TestReportSinceComputesFractionLostAndResetsReceivedCounter(t *testing.T) {
	s := &sourceStats{ssrc: 42}
	// Every other sequence number arrives (0,2,4,6,8): 5 packets received
	// out of the 9 expected from 0 through 8, so 4 (1,3,5,7) are lost.
	for _, seq := range []uint16{0, 2, 4, 6, 8} {
		s.update(seq, 0)
	}

	report := s.reportSince()
	assert.Equal(t, uint32(42), report.SSRC)
	assert.Equal(t, uint32(4), report.CumulativeLost)
	assert.NotZero(t, report.FractionLost)

	// received counter resets; a second call with no new packets sees
	// zero expected/received and reports no further loss.
	second := s.reportSince()
	assert.Equal(t, uint8(0), second.FractionLost)
	assert.Equal(t, report.CumulativeLost, second.CumulativeLost)
}

// recordingTransport captures every WriteTo call's payload for inspection,
// and otherwise behaves like fakeTransport's always-timeout ReadFrom.
type recordingTransport struct {
	mu  sync.Mutex
	out [][]byte
}

func (r *recordingTransport) WriteTo(b []byte, addr net.Addr) (int, error) {
	r.mu.Lock()
	r.out = append(r.out, append([]byte(nil), b...))
	r.mu.Unlock()
	return len(b), nil
}
func (r *recordingTransport) writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.out)
}
func (r *recordingTransport) ReadFrom(b []byte) (int, net.Addr, error) {
	time.Sleep(time.Millisecond)
	return 0, nil, timeoutErr{}
}
func (r *recordingTransport) LocalAddr() net.Addr          { return &net.UDPAddr{} }
func (r *recordingTransport) RemoteAddr() net.Addr         { return &net.UDPAddr{} }
func (r *recordingTransport) SetRemoteAddr(string) error   { return nil }
func (r *recordingTransport) SetReadDeadline(time.Time) error { return nil }
func (r *recordingTransport) Close() error                 { return nil }
func (r *recordingTransport) IsActive() bool                { return true }

func TestRTCPEngineSendReportEmitsSenderReportAfterNoteSent(t *testing.T) {
	hp, err := NewHeaderProcessor(96, 90000)
	require.NoError(t, err)

	transport := &recordingTransport{}
	e := NewRTCPEngine(transport, hp, "test@example", time.Second)
	e.NoteSent(1200)

	require.NoError(t, e.sendReport())
	require.Equal(t, 1, transport.writes())

	pkts, err := UnmarshalCompound(transport.out[0])
	require.NoError(t, err)
	require.Len(t, pkts, 2)
	sr, ok := pkts[0].(*SenderReport)
	require.True(t, ok)
	assert.Equal(t, hp.SSRC(), sr.SSRC)
}

func TestRTCPEngineSendReportEmitsReceiverReportWithoutSends(t *testing.T) {
	hp, err := NewHeaderProcessor(96, 90000)
	require.NoError(t, err)

	transport := &recordingTransport{}
	e := NewRTCPEngine(transport, hp, "test@example", time.Second)

	require.NoError(t, e.sendReport())
	pkts, err := UnmarshalCompound(transport.out[0])
	require.NoError(t, err)
	_, ok := pkts[0].(*ReceiverReport)
	assert.True(t, ok)
}

func TestRTCPEngineNoteSenderReportUpdatesSourceStats(t *testing.T) {
	hp, err := NewHeaderProcessor(96, 90000)
	require.NoError(t, err)

	e := NewRTCPEngine(&recordingTransport{}, hp, "x", time.Second)
	e.NoteSenderReport(55, NTPTimestamp(time.Now()))

	e.mu.Lock()
	s, ok := e.sources[55]
	e.mu.Unlock()
	require.True(t, ok)
	assert.NotZero(t, s.lastSRTimestamp)
}

func TestRTCPEngineStartStopLifecycle(t *testing.T) {
	hp, err := NewHeaderProcessor(96, 90000)
	require.NoError(t, err)

	e := NewRTCPEngine(&recordingTransport{}, hp, "x", time.Hour)
	ctx := context.Background()

	require.NoError(t, e.Start(ctx))
	assert.True(t, e.Active())

	require.NoError(t, e.Stop())
	assert.False(t, e.Active())
}
