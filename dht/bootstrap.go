package dht

import (
	"errors"
	"fmt"

	"github.com/orcanet/overlay/identity"
	"github.com/orcanet/overlay/transport"
)

// InvalidBootNode is returned by NewBootNodeSet when an address fails to
// parse as a well-formed overlay address. Reason is always
// MissingRequiredProtocol; Cause carries the parser's error, which names
// the missing or malformed component.
type InvalidBootNode struct {
	Address string
	Reason  string
	Cause   error
}

func (e *InvalidBootNode) Error() string {
	return fmt.Sprintf("dht: invalid boot node %q: %s: %v", e.Address, e.Reason, e.Cause)
}

func (e *InvalidBootNode) Unwrap() error { return e.Cause }

// MissingRequiredProtocol is the InvalidBootNode.Reason used for every
// address that fails to parse, whether a component is missing or malformed.
const MissingRequiredProtocol = "missing required protocol component"

// ErrEmptyBootNodeSet is returned by NewBootNodeSet when given zero addresses.
var ErrEmptyBootNodeSet = errors.New("dht: boot node set must be non-empty")

// BootNode is a single parsed boot-node entry: an overlay address paired
// with the peer identity it announces.
type BootNode struct {
	Addr   transport.OverlayAddress
	PeerID identity.PeerID
}

// BootNodeSet is a non-empty, immutable sequence of well-formed boot nodes.
// Unlike the upstream Rust implementation this is modelled on, a single
// malformed address fails the whole construction rather than being
// silently filtered out — every address supplied must be individually
// well-formed.
type BootNodeSet struct {
	nodes []BootNode
}

// NewBootNodeSet parses each address string and, if every one is
// well-formed, returns the resulting set. Duplicate addresses are
// preserved, not deduplicated — callers may legitimately list the same
// boot node more than once.
func NewBootNodeSet(addresses []string) (*BootNodeSet, error) {
	if len(addresses) == 0 {
		return nil, ErrEmptyBootNodeSet
	}

	nodes := make([]BootNode, 0, len(addresses))
	for _, raw := range addresses {
		addr, err := transport.ParseAddress(raw)
		if err != nil {
			return nil, &InvalidBootNode{Address: raw, Reason: MissingRequiredProtocol, Cause: err}
		}
		nodes = append(nodes, BootNode{Addr: addr, PeerID: addr.PeerID})
	}

	return &BootNodeSet{nodes: nodes}, nil
}

// Nodes returns the boot nodes in the order they were supplied.
func (s *BootNodeSet) Nodes() []BootNode {
	out := make([]BootNode, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Len reports the number of boot nodes, including duplicates.
func (s *BootNodeSet) Len() int { return len(s.nodes) }
