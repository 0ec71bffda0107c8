package formats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReassemblerRejectsInvalidProbationSize(t *testing.T) {
	_, err := NewReassembler(H264{}, 1200, 0)
	assert.ErrorIs(t, err, ErrInvalidProbationSize)
}

func TestReassemblerProbationEvictsOldestFragmentOnOverflow(t *testing.T) {
	r, err := NewReassembler(H264{}, 1, 1) // 1-byte probation window

	require.NoError(t, err)

	r.appendProbation(1000, 1, []byte{1}, false)
	r.appendProbation(1000, 2, []byte{2}, false)

	require.Len(t, r.probation, 1)
	assert.Equal(t, []byte{2}, r.probation[0].data)
}

func TestReassemblerResetClearsActiveAndProbationState(t *testing.T) {
	codec := H264{}
	payload := make([]byte, 4000)
	payload[0] = 0x65
	frags, err := codec.Fragment(payload, 1200)
	require.NoError(t, err)

	r, err := NewReassembler(codec, 1200, 3)
	require.NoError(t, err)

	_, _, err = r.Push(frags[0], 0, 1000)
	require.NoError(t, err)
	assert.Len(t, r.active, 1)

	r.Reset()
	assert.Empty(t, r.active)
	assert.Empty(t, r.probation)
}

func TestReassemblerSingleFragmentCompletesImmediately(t *testing.T) {
	codec := Opus{}
	r, err := NewReassembler(codec, 1200, 1)
	require.NoError(t, err)

	out, done, err := r.Push([]byte{1, 2, 3}, 0, 1000)
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, []byte{1, 2, 3}, out)
}

// TestReassemblerReordersFragmentsBySequenceNumber covers invariant #2:
// fragments belonging to one access unit, fed in an order scrambled by the
// network, must reassemble byte-identical to the original, not in whatever
// order they arrived.
func TestReassemblerReordersFragmentsBySequenceNumber(t *testing.T) {
	codec := H264{}
	// 5000 bytes at a 1200-byte mtu (1198-byte FU body chunks) produces
	// exactly 5 fragments: ceil(4999/1198) == 5.
	payload := make([]byte, 5000)
	payload[0] = 0x65
	for i := 1; i < len(payload); i++ {
		payload[i] = byte(i)
	}

	frags, err := codec.Fragment(payload, 1200)
	require.NoError(t, err)
	require.Len(t, frags, 5)

	r, err := NewReassembler(codec, 1200, 3)
	require.NoError(t, err)

	// Feed all 5 fragments out of order: [3,1,4,2,5] one-indexed, i.e. the
	// START (index 0) arrives second and the END (index 4) arrives last.
	order := []int{2, 0, 3, 1, 4}

	var out []byte
	var done bool
	for _, idx := range order {
		res, d, err := r.Push(frags[idx], uint16(idx), 9000)
		require.NoError(t, err)
		if d {
			out, done = res, true
		}
	}
	require.True(t, done)
	assert.Equal(t, payload, out)
}

// TestReassemblerHoldsSecondFrameInProbationWhileFirstIsActive covers
// scenario S3: two access units (distinct RTP timestamps) whose fragments
// interleave on the wire. The second frame's fragments must not corrupt
// the first frame's in-progress buffer; they wait in the probation zone
// until their own START arrives.
func TestReassemblerHoldsSecondFrameInProbationWhileFirstIsActive(t *testing.T) {
	codec := H264{}
	first := make([]byte, 4000)
	first[0] = 0x65
	for i := 1; i < len(first); i++ {
		first[i] = byte(i)
	}
	second := make([]byte, 4000)
	second[0] = 0x61
	for i := 1; i < len(second); i++ {
		second[i] = byte(200 + i)
	}

	firstFrags, err := codec.Fragment(first, 1200)
	require.NoError(t, err)
	secondFrags, err := codec.Fragment(second, 1200)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(firstFrags), 3)
	require.GreaterOrEqual(t, len(secondFrags), 3)

	r, err := NewReassembler(codec, 1200, 8)
	require.NoError(t, err)

	const firstTS, secondTS = 1000, 2000

	// First frame's START, then first's MIDDLE, then second frame's
	// MIDDLE/END fragments (whose own START has not arrived yet) land
	// while first is still active. They must go to the probation zone
	// keyed by secondTS, not get appended into first's in-progress buffer.
	_, done, err := r.Push(firstFrags[0], 0, firstTS)
	require.NoError(t, err)
	require.False(t, done)

	_, done, err = r.Push(firstFrags[1], 1, firstTS)
	require.NoError(t, err)
	require.False(t, done)

	for i := 1; i < len(secondFrags); i++ {
		_, d, err := r.Push(secondFrags[i], uint16(100+i), secondTS)
		require.NoError(t, err)
		require.False(t, d)
	}

	// first's in-progress state must be untouched by second's fragments.
	firstActive, ok := r.active[firstTS]
	require.True(t, ok)
	assert.Len(t, firstActive.frags, 2)

	for i := 2; i < len(firstFrags); i++ {
		out, d, err := r.Push(firstFrags[i], uint16(i), firstTS)
		require.NoError(t, err)
		if d {
			assert.Equal(t, first, out)
			done = true
		}
	}
	require.True(t, done)

	// Second frame's own START now arrives, relocating its probation
	// fragments into a fresh active entry and completing it.
	secondOut, d, err := r.Push(secondFrags[0], 100, secondTS)
	require.NoError(t, err)
	require.True(t, d)
	assert.Equal(t, second, secondOut)
}
