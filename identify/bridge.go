// Package identify bridges the transport's peer-identification protocol to
// the DHT routing table: when a peer announces support for the DHT
// protocol, its advertised listen addresses are inserted into routing.
package identify

import (
	"github.com/orcanet/overlay/dht"
	"github.com/orcanet/overlay/identity"
	"github.com/orcanet/overlay/transport"
	"github.com/sirupsen/logrus"
)

// Bridge consumes transport.Event identification pushes and feeds the DHT
// routing table (§4.5). It holds no other state.
type Bridge struct {
	routing      *dht.RoutingTable
	protocolName string
	logger       *logrus.Logger
}

// NewBridge constructs a Bridge that inserts into routing whenever a peer
// advertises protocolName among its supported protocols.
func NewBridge(routing *dht.RoutingTable, protocolName string, logger *logrus.Logger) *Bridge {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Bridge{routing: routing, protocolName: protocolName, logger: logger}
}

// HandleIdentify processes the identification fields carried by a peer's
// connection handshake (ListenAddrs/Protocols on an EventConnectionEstablished
// transport event — the substrate folds identify into the handshake rather
// than exchanging a separate protocol message, see DESIGN.md). If the
// peer's protocol list contains the DHT protocol name, each of its listen
// addresses is inserted into the routing table keyed by peer id; otherwise
// the event is ignored for routing purposes. Errors and pushes are logged
// only, never surfaced to a caller — per §4.5, identification never
// produces a query outcome.
func (b *Bridge) HandleIdentify(peer identity.PeerID, addrs []string, protocols []string) {
	if !contains(protocols, b.protocolName) {
		b.logger.WithFields(logrus.Fields{
			"peer":      peer.String(),
			"protocols": protocols,
		}).Debug("identify: peer does not advertise dht protocol, ignoring for routing")
		return
	}

	for _, raw := range addrs {
		addr, err := transport.ParseAddress(raw)
		if err != nil {
			b.logger.WithError(err).WithField("peer", peer.String()).
				Debug("identify: ignoring unparsable listen address")
			continue
		}
		b.routing.AddNode(dht.NewNode(peer, addr.TCPAddr()))
	}
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
