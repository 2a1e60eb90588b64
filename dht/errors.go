package dht

import "errors"

var (
	// ErrNoKnownPeers is the outcome error Bootstrap delivers to its sink
	// when routing is empty or no FIND_NODE response reported a peer.
	ErrNoKnownPeers = errors.New("dht: no known peers to bootstrap from")
	// ErrSerializationFailure wraps a CBOR encode/decode failure on the wire.
	ErrSerializationFailure = errors.New("dht: message serialization failed")
)
