package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPairUnique(t *testing.T) {
	kp1, err := GenerateKeyPair()
	require.NoError(t, err)
	kp2, err := GenerateKeyPair()
	require.NoError(t, err)

	assert.NotEqual(t, kp1.Public, kp2.Public)
	assert.NotEqual(t, kp1.PeerID(), kp2.PeerID())
}

func TestPeerIDRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	id := kp.PeerID()
	parsed, err := ParsePeerID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParsePeerIDInvalid(t *testing.T) {
	_, err := ParsePeerID("not-hex")
	assert.Error(t, err)

	_, err = ParsePeerID("abcd")
	assert.Error(t, err)
}

func TestPeerIDDistanceAndLess(t *testing.T) {
	var a, b PeerID
	a[0] = 0x01
	b[0] = 0x03

	d := a.Distance(b)
	assert.Equal(t, byte(0x02), d[0])

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
}

func TestSignVerify(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("overlay handshake payload")
	sig, err := kp.Sign(msg)
	require.NoError(t, err)

	ok, err := Verify(msg, sig, kp.PeerID())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify([]byte("tampered"), sig, kp.PeerID())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignEmptyMessage(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	_, err = kp.Sign(nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}
