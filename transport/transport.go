package transport

import (
	"context"
	"net"
	"time"

	"github.com/orcanet/overlay/identity"
)

// Protocol identifiers for the three wire protocols the overlay multiplexes
// over a single transport substrate.
const (
	ProtocolDHT         = "/orcanet/kad/1.0.0"
	ProtocolIdentify    = "/orcanet/id/1.0.0"
	ProtocolDirectQuery = "/file_req_res/1.0.0"
)

// DefaultIdleTimeout is the transport's default idle-connection timeout.
const DefaultIdleTimeout = 10 * time.Minute

// EventKind tags the variant of an Event, modelling the heterogeneous
// sub-protocol dispatch as a single tagged union rather than virtual
// dispatch (see design note in the repository's DESIGN.md).
type EventKind int

const (
	// EventConnectionEstablished fires when a peer connection completes,
	// either by dialing out or accepting an inbound connection.
	EventConnectionEstablished EventKind = iota
	// EventConnectionClosed fires when a peer connection ends.
	EventConnectionClosed
	// EventMessage fires when a protocol message arrives from a peer.
	EventMessage
	// EventListenerError fires on a listener-level failure. Logged, never fatal.
	EventListenerError
	// EventDialError fires when an outbound dial fails.
	EventDialError
)

// Event is the tagged union the Coordinator's select loop consumes from the
// transport. Only the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	Peer     identity.PeerID
	Addr     net.Addr
	Protocol string
	Payload  []byte

	ListenAddrs []string
	Protocols   []string

	Err error
}

// Transport is the uniform event/command interface the Coordinator consumes
// from the transport substrate. The overlay core never re-specifies NAT
// traversal, relaying, or encryption — those are the substrate's concern;
// Transport only exposes what the core needs to drive its protocols.
type Transport interface {
	// LocalPeerID returns the identity this transport was constructed with.
	LocalPeerID() identity.PeerID

	// Listeners returns the addresses this transport is currently listening on.
	Listeners() []net.Addr

	// ConnectedPeers returns the peers currently connected.
	ConnectedPeers() []identity.PeerID

	// IsConnectedTo reports whether peer currently has an open connection.
	IsConnectedTo(peer identity.PeerID) bool

	// Dial establishes a connection to addr, registering its peer id.
	Dial(ctx context.Context, addr OverlayAddress) error

	// Send transmits payload to peer over protocol, dialing first if needed
	// is the caller's responsibility (Dial must have already succeeded).
	Send(ctx context.Context, peer identity.PeerID, protocol string, payload []byte) error

	// Events returns the channel of inbound transport events. The
	// Coordinator is the sole reader.
	Events() <-chan Event

	// Close shuts down the transport and releases all resources.
	Close() error
}
