package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/orcanet/overlay/identity"
	"github.com/stretchr/testify/require"
)

func newTestSubstrate(t *testing.T) (*TCPSubstrate, identity.PeerID) {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	sub := NewTCPSubstrate(kp.PeerID(), []string{ProtocolDHT, ProtocolDirectQuery}, nil)
	require.NoError(t, sub.Listen("127.0.0.1:0"))
	t.Cleanup(func() { sub.Close() })
	return sub, kp.PeerID()
}

func TestTCPSubstrateDialHandshakeAndSend(t *testing.T) {
	a, aID := newTestSubstrate(t)
	b, bID := newTestSubstrate(t)

	addrB := OverlayAddress{
		IP:     b.Listeners()[0].(*net.TCPAddr).IP,
		Port:   uint16(b.Listeners()[0].(*net.TCPAddr).Port),
		PeerID: bID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Dial(ctx, addrB))

	require.Eventually(t, func() bool {
		return a.IsConnectedTo(bID) && b.IsConnectedTo(aID)
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, a.Send(ctx, bID, ProtocolDirectQuery, []byte("hello")))

	select {
	case ev := <-b.Events():
		if ev.Kind == EventConnectionEstablished {
			// drain the connection event, then wait for the message
			ev = <-b.Events()
		}
		require.Equal(t, EventMessage, ev.Kind)
		require.Equal(t, []byte("hello"), ev.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message event")
	}
}

func TestTCPSubstrateSendWithoutConnectionFails(t *testing.T) {
	a, _ := newTestSubstrate(t)
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	ctx := context.Background()
	err = a.Send(ctx, kp.PeerID(), ProtocolDirectQuery, []byte("x"))
	require.ErrorIs(t, err, ErrNotConnected)
}
