package market

import (
	"net"
	"testing"
	"time"

	"github.com/orcanet/overlay/dht"
	"github.com/orcanet/overlay/identity"
	"github.com/orcanet/overlay/record"
	"github.com/stretchr/testify/require"
)

func newTestDescriptor(fingerprint record.FileFingerprint) record.FileDescriptor {
	return record.FileDescriptor{Fingerprint: fingerprint, Size: 1024, Name: "testfile.bin"}
}

// Scenario 1: single-peer self-holder.
func TestRegisterFileThenGetHolderByPeerIDReturnsSelf(t *testing.T) {
	handle, err := New(NewConfig().WithListenTCPPort(0))
	require.NoError(t, err)
	defer handle.Shutdown()

	fp := record.FileFingerprint([]byte{1, 2, 3, 4})
	rec := record.SupplierRecord{Address: net.ParseIP("127.0.0.1"), Port: 9000, Price: 10, Name: "alice"}

	require.NoError(t, handle.RegisterFile(newTestDescriptor(fp), rec))

	result, err := handle.GetHolderByPeerID(handle.PeerID(), fp)
	require.NoError(t, err)
	require.True(t, result.Found)
	require.Equal(t, rec.Name, result.Record.Name)
	require.Equal(t, rec.Port, result.Record.Port)
}

// Scenario 2: single-peer check_holders.
func TestRegisterFileThenCheckHoldersReturnsSelfAsSupplier(t *testing.T) {
	handle, err := New(NewConfig().WithListenTCPPort(0))
	require.NoError(t, err)
	defer handle.Shutdown()

	fp := record.FileFingerprint([]byte{5, 6, 7, 8})
	rec := record.SupplierRecord{Address: net.ParseIP("127.0.0.1"), Port: 9001, Price: 20, Name: "bob"}
	require.NoError(t, handle.RegisterFile(newTestDescriptor(fp), rec))

	require.Eventually(t, func() bool {
		result, err := handle.CheckHolders(fp)
		return err == nil && len(result.Suppliers) == 1 && result.Descriptor != nil
	}, 2*time.Second, 20*time.Millisecond)
}

// Scenario 4: provider TTL expiry.
func TestProviderTTLExpiryReportsNoFile(t *testing.T) {
	handle, err := New(NewConfig().WithListenTCPPort(0).WithFileTTL(10 * time.Millisecond))
	require.NoError(t, err)
	defer handle.Shutdown()

	fp := record.FileFingerprint([]byte{9, 9, 9})
	rec := record.SupplierRecord{Address: net.ParseIP("127.0.0.1"), Port: 9002, Name: "carol"}
	require.NoError(t, handle.RegisterFile(newTestDescriptor(fp), rec))

	time.Sleep(20 * time.Millisecond)

	result, err := handle.GetHolderByPeerID(handle.PeerID(), fp)
	require.NoError(t, err)
	require.False(t, result.Found)
}

func TestRegisterFileRejectsInvalidSupplierRecord(t *testing.T) {
	handle, err := New(NewConfig().WithListenTCPPort(0))
	require.NoError(t, err)
	defer handle.Shutdown()

	fp := record.FileFingerprint([]byte{1, 1, 1})
	rec := record.SupplierRecord{Address: net.ParseIP("127.0.0.1"), Port: 0, Name: "eve"}

	require.Error(t, handle.RegisterFile(newTestDescriptor(fp), rec))
}

func TestListenersReflectsBoundPort(t *testing.T) {
	handle, err := New(NewConfig().WithListenTCPPort(0))
	require.NoError(t, err)
	defer handle.Shutdown()

	addrs, err := handle.Listeners()
	require.NoError(t, err)
	require.Len(t, addrs, 1)
}

// Scenario 3: two-peer propagation. Peer B boots from peer A, waits for
// connectivity, then A registers a file; B's check_holders must see it.
func TestTwoPeerCheckHoldersPropagation(t *testing.T) {
	handleA, err := New(NewConfig().WithListenTCPPort(3392))
	require.NoError(t, err)
	defer handleA.Shutdown()

	addrsA, err := handleA.Listeners()
	require.NoError(t, err)
	require.Len(t, addrsA, 1)

	bootSet, err := dht.NewBootNodeSet([]string{addrsA[0]})
	require.NoError(t, err)

	handleB, err := New(NewConfig().WithListenTCPPort(3393).WithBootNodes(bootSet))
	require.NoError(t, err)
	defer handleB.Shutdown()

	require.Eventually(t, func() bool {
		connected, err := handleB.IsConnectedTo(handleA.PeerID())
		return err == nil && connected
	}, 2*time.Second, 20*time.Millisecond)

	fp := record.FileFingerprint([]byte{42, 42, 42})
	rec := record.SupplierRecord{Address: net.ParseIP("127.0.0.1"), Port: 3392, Name: "dave"}
	require.NoError(t, handleA.RegisterFile(newTestDescriptor(fp), rec))

	require.Eventually(t, func() bool {
		result, err := handleB.CheckHolders(fp)
		return err == nil && len(result.Suppliers) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

// §7: a well-formed but unreachable boot node fails construction outright
// (ErrInitialBootstrap) rather than leaving a Coordinator with an empty
// routing table and no diagnostic.
func TestNewFailsWhenNoBootNodeResponds(t *testing.T) {
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	unreachable, err := dht.NewBootNodeSet([]string{"/ip4/127.0.0.1/tcp/1/p2p/" + kp.PeerID().String()})
	require.NoError(t, err)

	_, err = New(NewConfig().WithListenTCPPort(0).WithBootNodes(unreachable))
	require.ErrorIs(t, err, ErrInitialBootstrap)
}

func TestShutdownIsIdempotentAndFailsPendingCalls(t *testing.T) {
	handle, err := New(NewConfig().WithListenTCPPort(0))
	require.NoError(t, err)

	handle.Shutdown()
	handle.Shutdown() // must not panic

	_, err = handle.Listeners()
	require.Error(t, err)
}
