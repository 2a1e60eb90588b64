// Package market implements the overlay's Coordinator and PeerHandle: the
// single-threaded event loop that owns all mutable state (routing table,
// supplier table, pending queries) and the thread-safe façade public
// callers use to drive it.
//
// Construct a running overlay with New:
//
//	cfg := market.NewConfig().WithListenTCPPort(3392)
//	handle, err := market.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer handle.Shutdown()
//
//	err = handle.RegisterFile(descriptor, supplierRecord)
package market
