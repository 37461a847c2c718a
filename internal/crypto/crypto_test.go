package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeypairRoundTrip(t *testing.T) {
	require := require.New(t)

	kp, err := GenerateRSAKeypair()
	require.NoError(err)

	pub, priv, err := ParseRSAPrivateKey(kp.PrivateKey)
	require.NoError(err)
	require.Equal(2048, priv.N.BitLen())
	require.Equal(pub.N, priv.PublicKey.N)

	parsed, err := ParseRSAPublicKey(kp.PublicKey)
	require.NoError(err)
	require.Equal(priv.PublicKey.N, parsed.N)
}

func TestParseRejectsGarbage(t *testing.T) {
	require := require.New(t)

	_, _, err := ParseRSAPrivateKey([]byte("not a key"))
	require.Error(err)

	_, err = ParseRSAPublicKey([]byte("-----BEGIN PUBLIC KEY-----\naaaa\n-----END PUBLIC KEY-----"))
	require.Error(err)
}
