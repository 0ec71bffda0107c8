package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrameWithProbationRejectsZeroSize(t *testing.T) {
	_, err := NewFrameWithProbation(100, 0)
	require.Error(t, err)
	assert.True(t, errorIsStatus(err, StatusInvalidValue))
}

func TestAppendProbationGrowsThenEvictsOldest(t *testing.T) {
	f, err := NewFrameWithProbation(0, 1)
	require.NoError(t, err)
	f.Probation = make([]byte, 10) // shrink for a small, easy-to-reason-about window

	f.appendProbation([]byte{1, 2, 3})
	f.appendProbation([]byte{4, 5, 6})
	assert.Equal(t, 6, f.ProbationOff)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, f.Probation[:f.ProbationOff])

	// Overflow: window holds 10 bytes, 7 more pushes it to 13, evicting the
	// oldest 3 bytes ({1,2,3}).
	f.appendProbation([]byte{7, 8, 9, 10, 11, 12, 13})
	assert.Equal(t, 10, f.ProbationOff)
	assert.Equal(t, []byte{4, 5, 6, 7, 8, 9, 10, 11, 12, 13}, f.Probation[:f.ProbationOff])
}

func TestReleaseNilFrame(t *testing.T) {
	err := Release(nil)
	require.Error(t, err)
	assert.True(t, errorIsStatus(err, StatusInvalidValue))
}

func TestReleaseClearsBuffers(t *testing.T) {
	f := NewFrameWithPayload(16)
	f.Dgram = make([]byte, 28)
	f.CSRC = []uint32{1, 2}
	f.Ext = &ExtensionHeader{Type: 1}

	require.NoError(t, Release(f))
	assert.Nil(t, f.Payload)
	assert.Nil(t, f.Dgram)
	assert.Nil(t, f.CSRC)
	assert.Nil(t, f.Ext)
}

func TestNewZRTPFrameRejectsNonPositiveSize(t *testing.T) {
	_, err := NewZRTPFrame(0)
	require.Error(t, err)
}

func errorIsStatus(err error, s Status) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Status == s
	}
	return false
}

func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
