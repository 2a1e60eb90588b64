package dht

import (
	"testing"

	"github.com/orcanet/overlay/identity"
	"github.com/stretchr/testify/require"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	return NewNode(kp.PeerID(), nil)
}

func TestKBucketMarkStatusTouchesExistingNode(t *testing.T) {
	kb := NewKBucket(2)
	n := newTestNode(t)
	require.True(t, kb.AddNode(n))

	require.True(t, kb.MarkStatus(n.ID, StatusGood))
	require.Equal(t, StatusGood, kb.Nodes()[0].Status)
}

func TestKBucketMarkStatusReportsUnknownNode(t *testing.T) {
	kb := NewKBucket(2)
	unknown := newTestNode(t)
	require.False(t, kb.MarkStatus(unknown.ID, StatusBad))
}

// A full bucket only has room for a new node once an existing member has
// been marked StatusBad — this is the replacement rule MarkStatus exists
// to feed.
func TestKBucketAddNodeEvictsOnlyStatusBadMember(t *testing.T) {
	kb := NewKBucket(1)
	first := newTestNode(t)
	require.True(t, kb.AddNode(first))

	second := newTestNode(t)
	require.False(t, kb.AddNode(second), "bucket is full and first is not StatusBad")

	require.True(t, kb.MarkStatus(first.ID, StatusBad))
	require.True(t, kb.AddNode(second), "bucket should now accept second in place of the StatusBad first")
	require.Equal(t, second.ID, kb.Nodes()[0].ID)
}
