// Package identity derives a peer's overlay identity from a session Ed25519
// keypair.
//
// Example:
//
//	kp, err := identity.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("peer id:", kp.PeerID())
package identity
