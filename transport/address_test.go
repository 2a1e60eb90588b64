package transport

import (
	"testing"

	"github.com/orcanet/overlay/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddressRoundTrip(t *testing.T) {
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	addr := OverlayAddress{IP: []byte{127, 0, 0, 1}, Port: 16899, PeerID: kp.PeerID()}
	parsed, err := ParseAddress(addr.String())
	require.NoError(t, err)

	assert.Equal(t, addr.Port, parsed.Port)
	assert.Equal(t, addr.PeerID, parsed.PeerID)
	assert.True(t, addr.IP.Equal(parsed.IP))
}

func TestParseAddressMissingComponentsFails(t *testing.T) {
	// Scenario 6: a boot node address missing tcp and p2p must be rejected.
	_, err := ParseAddress("/ip4/127.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidOverlayAddress)
}

func TestParseAddressBadPortFails(t *testing.T) {
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	s := "/ip4/127.0.0.1/tcp/99999/p2p/" + kp.PeerID().String()
	_, err = ParseAddress(s)
	assert.ErrorIs(t, err, ErrInvalidOverlayAddress)
}

func TestParseAddressBadPeerIDFails(t *testing.T) {
	_, err := ParseAddress("/ip4/127.0.0.1/tcp/16899/p2p/not-hex")
	assert.ErrorIs(t, err, ErrInvalidOverlayAddress)
}
