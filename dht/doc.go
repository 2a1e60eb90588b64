// Package dht implements the overlay's Kademlia-style distributed hash
// table: the routing table (routing.go, node.go), the boot-node set used to
// seed it at startup (bootstrap.go), and the DHTEngine that drives
// bootstrap, closest-peer lookup, and provider-record publish/lookup
// operations over a transport.Transport (engine.go).
package dht
