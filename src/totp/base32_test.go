package totp

import (
	"encoding/base32"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSecret_MatchesStdlib(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 64; n++ {
		b := make([]byte, n)
		rng.Read(b)

		padded := base32.StdEncoding.EncodeToString(b)
		got, err := decodeSecret(padded)
		require.NoError(t, err)
		assert.Equal(t, b, got, "padded length %d", n)

		unpadded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)
		got, err = decodeSecret(unpadded)
		require.NoError(t, err)
		assert.Equal(t, b, got, "unpadded length %d", n)
	}
}

func TestDecodeSecret_Empty(t *testing.T) {
	got, err := decodeSecret("  ==  ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEncodeSecret_RoundTrip(t *testing.T) {
	b := []byte("12345678901234567890")
	assert.Equal(t, "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ", encodeSecret(b))

	got, err := decodeSecret(encodeSecret(b))
	require.NoError(t, err)
	assert.Equal(t, b, got)
}
