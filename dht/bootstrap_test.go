package dht

import (
	"testing"

	"github.com/orcanet/overlay/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAddrString(t *testing.T) string {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	return "/ip4/127.0.0.1/tcp/3392/p2p/" + kp.PeerID().String()
}

// Scenario 5: duplicate well-formed entries are preserved, not deduplicated.
func TestNewBootNodeSetPreservesDuplicates(t *testing.T) {
	addr := validAddrString(t)
	set, err := NewBootNodeSet([]string{addr, addr, addr})
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())
}

// Scenario 6: an address missing tcp and p2p fails construction.
func TestNewBootNodeSetRejectsMalformedAddress(t *testing.T) {
	_, err := NewBootNodeSet([]string{"/ip4/127.0.0.1"})
	require.Error(t, err)

	var invalid *InvalidBootNode
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, MissingRequiredProtocol, invalid.Reason)
}

func TestNewBootNodeSetRejectsEmpty(t *testing.T) {
	_, err := NewBootNodeSet(nil)
	assert.ErrorIs(t, err, ErrEmptyBootNodeSet)
}
