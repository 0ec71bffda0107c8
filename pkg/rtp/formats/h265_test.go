package formats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestH265FragmentRoundTrip(t *testing.T) {
	codec := H265{}
	payload := make([]byte, 4000)
	payload[0] = byte(h265NALTypeIDRWRADL << 1)
	payload[1] = 0x01
	for i := 2; i < len(payload); i++ {
		payload[i] = byte(i)
	}

	frags, err := codec.Fragment(payload, 1200)
	require.NoError(t, err)
	require.Greater(t, len(frags), 1)

	r, err := NewReassembler(codec, 1200, 3)
	require.NoError(t, err)

	var out []byte
	for i, f := range frags {
		res, done, err := r.Push(f, uint16(i), 9000)
		require.NoError(t, err)
		if done {
			out = res
		}
	}
	require.NotNil(t, out)
	assert.Equal(t, payload, out)
}

func TestH265LayerTIDByteCarriedThroughUnchanged(t *testing.T) {
	codec := H265{}
	payload := make([]byte, 4000)
	payload[0] = byte(h265NALTypeIDRWRADL << 1)
	payload[1] = 0x2a
	frags, err := codec.Fragment(payload, 1200)
	require.NoError(t, err)
	for _, f := range frags {
		assert.Equal(t, byte(0x2a), f[1])
	}
}

func TestH265OuterVsPayloadNALType(t *testing.T) {
	codec := H265{}
	payload := make([]byte, 4000)
	payload[0] = byte(h265NALTypeIDRWRADL << 1)
	payload[1] = 0
	frags, err := codec.Fragment(payload, 1200)
	require.NoError(t, err)

	outer, err := codec.OuterNALType(frags[0])
	require.NoError(t, err)
	assert.Equal(t, h265FUType, outer)

	inner, err := codec.PayloadNALType(frags[0])
	require.NoError(t, err)
	assert.Equal(t, h265NALTypeIDRWRADL, inner)
}

func TestH265ClassNAL(t *testing.T) {
	codec := H265{}
	assert.Equal(t, NALIntra, codec.ClassNAL(h265NALTypeIDRWRADL))
	assert.Equal(t, NALIntra, codec.ClassNAL(h265NALTypeIDRNLP))
	assert.Equal(t, NALInter, codec.ClassNAL(h265NALTypeTrailR))
	assert.Equal(t, NALOther, codec.ClassNAL(40))
}
