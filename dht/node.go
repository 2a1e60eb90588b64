// Package dht implements the Kademlia-style distributed hash table used for
// peer discovery, provider-record publication, and closest-peer lookups in
// the overlay.
package dht

import (
	"net"
	"time"

	"github.com/orcanet/overlay/identity"
)

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the standard library clock.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// NodeStatus represents the routing table's view of a peer's responsiveness.
type NodeStatus uint8

const (
	StatusUnknown NodeStatus = iota
	StatusGood
	StatusBad
)

// Node is an entry in the routing table: a peer identity paired with the
// overlay address it was last reachable at.
type Node struct {
	ID       identity.PeerID
	Address  net.Addr
	LastSeen time.Time
	Status   NodeStatus
}

// NewNode creates a routing-table entry for id reachable at addr.
func NewNode(id identity.PeerID, addr net.Addr) *Node {
	return &Node{ID: id, Address: addr, LastSeen: time.Now(), Status: StatusUnknown}
}

// Distance returns the XOR distance between this node and other.
func (n *Node) Distance(other *Node) [32]byte {
	return n.ID.Distance(other.ID)
}

// Touch marks the node as recently seen with the given status.
func (n *Node) Touch(status NodeStatus, tp TimeProvider) {
	if tp == nil {
		tp = DefaultTimeProvider{}
	}
	n.LastSeen = tp.Now()
	n.Status = status
}
