package formats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenericFragmentPassesThroughUnderMTU(t *testing.T) {
	codec := Generic{}
	payload := []byte{9, 9, 9}
	frags, err := codec.Fragment(payload, 100)
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, payload, frags[0])
}

func TestGenericFragmentHonorsPerCallMTU(t *testing.T) {
	codec := Generic{}
	payload := make([]byte, 50)
	_, err := codec.Fragment(payload, 40)
	assert.ErrorIs(t, err, ErrOversizedPayload)

	_, err = codec.Fragment(payload, 60)
	assert.NoError(t, err)
}
