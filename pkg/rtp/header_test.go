package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderProcessorBuildAdvancesSequenceAndTimestamp(t *testing.T) {
	hp, err := NewHeaderProcessor(96, 90000)
	require.NoError(t, err)

	startSeq := hp.NextSequenceNumber()
	h1 := hp.Build(false, nil, 3000)
	h2 := hp.Build(true, nil, 3000)

	assert.Equal(t, startSeq, h1.SequenceNumber)
	assert.Equal(t, startSeq+1, h2.SequenceNumber)
	assert.Equal(t, h1.Timestamp+3000, h2.Timestamp)
	assert.False(t, h1.Marker)
	assert.True(t, h2.Marker)
	assert.Equal(t, hp.SSRC(), h1.SSRC)
	assert.EqualValues(t, 96, h1.PayloadType)
}

func TestHeaderProcessorBuildHonorsExplicitTimestamp(t *testing.T) {
	hp, err := NewHeaderProcessor(96, 90000)
	require.NoError(t, err)

	override := uint32(123456)
	h := hp.Build(false, &override, 3000)
	assert.Equal(t, override, h.Timestamp)
}

func TestMarshalParseRoundTrip(t *testing.T) {
	hp, err := NewHeaderProcessor(96, 90000)
	require.NoError(t, err)

	hdr := hp.Build(true, nil, 0)
	payload := []byte{0xde, 0xad, 0xbe, 0xef}

	data, err := Marshal(hdr, nil, payload)
	require.NoError(t, err)

	frame, status, err := hp.Parse(data, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPktModified, status)
	assert.Equal(t, payload, frame.Payload)
	assert.Equal(t, hdr.SequenceNumber, frame.Header.SequenceNumber)
	assert.Equal(t, hdr.SSRC, frame.Header.SSRC)
}

func TestParseRejectsShortDatagram(t *testing.T) {
	hp, err := NewHeaderProcessor(96, 90000)
	require.NoError(t, err)

	_, status, err := hp.Parse([]byte{1, 2, 3}, nil)
	require.Error(t, err)
	assert.Equal(t, StatusGenericError, status)
}

func TestHeaderProcessorSequenceNumberWrapsAt16Bits(t *testing.T) {
	hp, err := NewHeaderProcessor(96, 90000)
	require.NoError(t, err)
	hp.seq.Store(0xfffe)

	h1 := hp.Build(false, nil, 0)
	h2 := hp.Build(false, nil, 0)
	assert.EqualValues(t, 0xfffe, h1.SequenceNumber)
	assert.EqualValues(t, 0xffff, h2.SequenceNumber)

	h3 := hp.Build(false, nil, 0)
	assert.EqualValues(t, 0, h3.SequenceNumber)
}

func TestHeaderProcessorTimestampWrapsAt32Bits(t *testing.T) {
	hp, err := NewHeaderProcessor(96, 90000)
	require.NoError(t, err)
	hp.timestamp.Store(^uint32(0) - 1)

	h1 := hp.Build(false, nil, 1)
	h2 := hp.Build(false, nil, 1)
	assert.EqualValues(t, ^uint32(0), h1.Timestamp)
	assert.EqualValues(t, 0, h2.Timestamp)
}

func TestParseReturnsNotHandledForUnacceptedPayloadType(t *testing.T) {
	sender, err := NewHeaderProcessor(97, 90000)
	require.NoError(t, err)
	receiver, err := NewHeaderProcessor(96, 90000)
	require.NoError(t, err)

	hdr := sender.Build(false, nil, 0)
	data, err := Marshal(hdr, nil, []byte{1, 2, 3})
	require.NoError(t, err)

	frame, status, err := receiver.Parse(data, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPktNotHandled, status)
	assert.Nil(t, frame)
}

func TestParseLocksOntoFirstRemoteSSRCAndRejectsForeign(t *testing.T) {
	hp, err := NewHeaderProcessor(96, 90000, 96)
	require.NoError(t, err)

	first := RTPHeader{Version: rtpVersion, PayloadType: 96, SequenceNumber: 1, Timestamp: 1000, SSRC: 111}
	data1, err := Marshal(first, nil, []byte{1})
	require.NoError(t, err)

	frame, status, err := hp.Parse(data1, nil)
	require.NoError(t, err)
	require.Equal(t, StatusPktModified, status)
	require.NotNil(t, frame)
	assert.EqualValues(t, 111, frame.Header.SSRC)

	foreign := RTPHeader{Version: rtpVersion, PayloadType: 96, SequenceNumber: 2, Timestamp: 1001, SSRC: 222}
	data2, err := Marshal(foreign, nil, []byte{2})
	require.NoError(t, err)

	frame2, status2, err := hp.Parse(data2, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPktNotHandled, status2)
	assert.Nil(t, frame2)
}
