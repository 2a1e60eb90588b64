// This file implements the routing table: 256 k-buckets organized by XOR
// distance from the local peer identity, following standard Kademlia
// bucket assignment (bucket index = position of the first differing bit).
package dht

import (
	"sort"
	"sync"
	"time"

	"github.com/orcanet/overlay/identity"
)

// DefaultBucketSize is the standard Kademlia fan-out per bucket.
const DefaultBucketSize = 20

// KBucket stores up to maxSize nodes within a specific XOR-distance range
// of the local peer. AddNode appends new and re-added nodes at the end of
// the list; MarkStatus, RemoveNode and the replacement of a StatusBad node
// do not keep the list in last-seen order.
type KBucket struct {
	nodes   []*Node
	maxSize int
	mu      sync.RWMutex
}

// NewKBucket creates an empty k-bucket with the given capacity.
func NewKBucket(maxSize int) *KBucket {
	return &KBucket{nodes: make([]*Node, 0, maxSize), maxSize: maxSize}
}

// AddNode inserts or refreshes a node, following Kademlia's replacement
// rule: existing nodes move to the end, new nodes fill free space, and once
// full only a StatusBad node may be evicted to make room.
func (kb *KBucket) AddNode(node *Node) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	for i, existing := range kb.nodes {
		if existing.ID == node.ID {
			kb.nodes = append(kb.nodes[:i], kb.nodes[i+1:]...)
			kb.nodes = append(kb.nodes, node)
			return true
		}
	}

	if len(kb.nodes) < kb.maxSize {
		kb.nodes = append(kb.nodes, node)
		return true
	}

	for i, existing := range kb.nodes {
		if existing.Status == StatusBad {
			kb.nodes[i] = node
			return true
		}
	}

	return false
}

// RemoveNode removes the node with the given id, if present.
func (kb *KBucket) RemoveNode(id identity.PeerID) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	for i, node := range kb.nodes {
		if node.ID == id {
			last := len(kb.nodes) - 1
			kb.nodes[i] = kb.nodes[last]
			kb.nodes = kb.nodes[:last]
			return true
		}
	}
	return false
}

// Nodes returns a copy of the bucket's current contents.
func (kb *KBucket) Nodes() []*Node {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make([]*Node, len(kb.nodes))
	copy(out, kb.nodes)
	return out
}

// MarkStatus touches the node with the given id, if present, recording it
// as recently seen with status. Reports whether the node was found.
func (kb *KBucket) MarkStatus(id identity.PeerID, status NodeStatus) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	for _, n := range kb.nodes {
		if n.ID == id {
			n.Touch(status, nil)
			return true
		}
	}
	return false
}

// RoutingTable is the standard Kademlia k-bucket structure over PeerID,
// keyed by XOR distance from the local peer. Read-only from outside the
// DHT engine.
type RoutingTable struct {
	buckets [256]*KBucket
	self    identity.PeerID
	mu      sync.RWMutex
}

// NewRoutingTable constructs a routing table for self with the given
// per-bucket capacity (use DefaultBucketSize absent a reason to deviate).
func NewRoutingTable(self identity.PeerID, bucketSize int) *RoutingTable {
	rt := &RoutingTable{self: self}
	for i := range rt.buckets {
		rt.buckets[i] = NewKBucket(bucketSize)
	}
	return rt
}

// AddNode inserts node into its XOR-distance bucket. Self-insertion is rejected.
func (rt *RoutingTable) AddNode(node *Node) bool {
	if node.ID == rt.self {
		return false
	}

	dist := node.ID.Distance(rt.self)
	idx := bucketIndex(dist)

	rt.mu.RLock()
	bucket := rt.buckets[idx]
	rt.mu.RUnlock()

	return bucket.AddNode(node)
}

// RemoveNode removes id from whichever bucket it occupies.
func (rt *RoutingTable) RemoveNode(id identity.PeerID) bool {
	dist := id.Distance(rt.self)
	idx := bucketIndex(dist)

	rt.mu.RLock()
	bucket := rt.buckets[idx]
	rt.mu.RUnlock()

	return bucket.RemoveNode(id)
}

// MarkStatus updates the liveness status of id's routing-table entry, if
// known. Connection-level events (established/closed, dial failure) drive
// this so that a full bucket's replacement rule has StatusBad candidates
// to evict rather than never retiring unreachable nodes.
func (rt *RoutingTable) MarkStatus(id identity.PeerID, status NodeStatus) bool {
	dist := id.Distance(rt.self)
	idx := bucketIndex(dist)

	rt.mu.RLock()
	bucket := rt.buckets[idx]
	rt.mu.RUnlock()

	return bucket.MarkStatus(id, status)
}

// FindClosestNodes returns up to count nodes ordered by ascending XOR
// distance to target, with ties broken by peer-id byte-lexicographic
// order. This ordering is part of the wire contract (§4.3).
func (rt *RoutingTable) FindClosestNodes(target identity.PeerID, count int) []*Node {
	all := rt.GetAllNodes()

	sort.Slice(all, func(i, j int) bool {
		di := all[i].ID.Distance(target)
		dj := all[j].ID.Distance(target)
		if di == dj {
			return all[i].ID.Less(all[j].ID)
		}
		return lessDistance(di, dj)
	})

	if len(all) > count {
		all = all[:count]
	}
	return all
}

// GetAllNodes returns every node currently known across all buckets.
func (rt *RoutingTable) GetAllNodes() []*Node {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var all []*Node
	for _, bucket := range rt.buckets {
		all = append(all, bucket.Nodes()...)
	}
	return all
}

// RemoveStaleNodes evicts nodes not seen within maxAge and reports the count removed.
func (rt *RoutingTable) RemoveStaleNodes(maxAge time.Duration) int {
	removed := 0
	now := time.Now()
	for _, node := range rt.GetAllNodes() {
		if now.Sub(node.LastSeen) > maxAge {
			if rt.RemoveNode(node.ID) {
				removed++
			}
		}
	}
	return removed
}

// Len reports the total number of known nodes.
func (rt *RoutingTable) Len() int {
	return len(rt.GetAllNodes())
}

// bucketIndex returns the position (0-255) of the first differing bit in
// distance, which Kademlia uses as the bucket assignment.
func bucketIndex(distance [32]byte) int {
	for i := 0; i < 32; i++ {
		if distance[i] == 0 {
			continue
		}
		b := distance[i]
		for j := 0; j < 8; j++ {
			if (b>>(7-j))&1 == 1 {
				return i*8 + j
			}
		}
	}
	return 255
}

// lessDistance compares two XOR distances lexicographically, most
// significant byte first.
func lessDistance(a, b [32]byte) bool {
	for i := 0; i < 32; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
