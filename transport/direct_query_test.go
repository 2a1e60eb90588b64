package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/orcanet/overlay/correlator"
	"github.com/orcanet/overlay/identity"
	"github.com/orcanet/overlay/record"
	"github.com/orcanet/overlay/supplier"
	"github.com/stretchr/testify/require"
)

func tcpAddrOf(t *testing.T, sub *TCPSubstrate, peer identity.PeerID) OverlayAddress {
	t.Helper()
	a := sub.Listeners()[0].(*net.TCPAddr)
	return OverlayAddress{IP: a.IP, Port: uint16(a.Port), PeerID: peer}
}

// TestDirectQueryAskAnswerHasFile checks that a peer holding a fresh
// SupplierRecord answers HasFile to a direct ask() from another peer.
func TestDirectQueryAskAnswerHasFile(t *testing.T) {
	askerTransport, askerID := newTestSubstrate(t)
	answererTransport, answererID := newTestSubstrate(t)

	table, err := supplier.New(time.Hour, nil)
	require.NoError(t, err)

	fingerprint := record.FileFingerprint([]byte{0xAB, 0xCD})
	want := record.SupplierRecord{Address: net.ParseIP("127.0.0.1"), Port: 9000, Price: 5, Name: "alice"}
	table.Insert(fingerprint, want)

	answerCorr := correlator.New(nil)
	answerEngine := NewDirectQueryEngine(answererID, answererTransport, answerCorr, nil)

	askCorr := correlator.New(nil)
	askEngine := NewDirectQueryEngine(askerID, askerTransport, askCorr, nil)

	go func() {
		for ev := range answererTransport.Events() {
			if ev.Kind == EventMessage && ev.Protocol == ProtocolDirectQuery {
				answerEngine.HandleMessage(context.Background(), ev.Peer, ev.Payload, table)
			}
		}
	}()

	sink := make(chan correlator.Outcome, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = askEngine.Ask(ctx, answererID, tcpAddrOf(t, answererTransport, answererID), fingerprint, sink)
	require.NoError(t, err)

	go func() {
		for ev := range askerTransport.Events() {
			if ev.Kind == EventMessage && ev.Protocol == ProtocolDirectQuery {
				askEngine.HandleMessage(context.Background(), ev.Peer, ev.Payload, table)
			}
		}
	}()

	select {
	case outcome := <-sink:
		require.NoError(t, outcome.Err)
		qo, ok := outcome.Payload.(QueryOutcome)
		require.True(t, ok)
		require.False(t, qo.NoFile)
		require.Equal(t, want.Name, qo.Record.Name)
		require.Equal(t, want.Port, qo.Record.Port)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for ask() outcome")
	}
}
