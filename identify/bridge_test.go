package identify

import (
	"testing"

	"github.com/orcanet/overlay/dht"
	"github.com/orcanet/overlay/identity"
	"github.com/orcanet/overlay/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleIdentifyInsertsWhenDHTAdvertised(t *testing.T) {
	self, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	table := dht.NewRoutingTable(self.PeerID(), dht.DefaultBucketSize)
	bridge := NewBridge(table, transport.ProtocolDHT, nil)

	peer, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	addr := "/ip4/127.0.0.1/tcp/4001/p2p/" + peer.PeerID().String()
	bridge.HandleIdentify(peer.PeerID(), []string{addr}, []string{transport.ProtocolDHT, transport.ProtocolIdentify})

	assert.Equal(t, 1, table.Len())
}

func TestHandleIdentifyIgnoresWithoutDHTProtocol(t *testing.T) {
	self, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	table := dht.NewRoutingTable(self.PeerID(), dht.DefaultBucketSize)
	bridge := NewBridge(table, transport.ProtocolDHT, nil)

	peer, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	addr := "/ip4/127.0.0.1/tcp/4001/p2p/" + peer.PeerID().String()
	bridge.HandleIdentify(peer.PeerID(), []string{addr}, []string{transport.ProtocolIdentify})

	assert.Equal(t, 0, table.Len())
}
