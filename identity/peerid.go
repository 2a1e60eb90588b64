package identity

import (
	"bytes"
	"encoding/hex"
	"errors"
)

var errInvalidPeerIDLength = errors.New("identity: decoded peer id has wrong length")

// PeerID is an opaque, globally unique peer identifier derived from the
// public half of a peer's session keypair. It is immutable and serializes
// to a canonical lowercase hex string.
type PeerID [32]byte

// String returns the canonical hex encoding of the PeerID.
func (id PeerID) String() string {
	return hex.EncodeToString(id[:])
}

// ParsePeerID decodes the canonical hex form produced by String.
func ParsePeerID(s string) (PeerID, error) {
	var id PeerID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errInvalidPeerIDLength
	}
	copy(id[:], raw)
	return id, nil
}

// Less orders two PeerIDs by byte-lexicographic comparison, used to break
// ties when two peers are equidistant from a lookup key.
func (id PeerID) Less(other PeerID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// Distance computes the XOR metric between two PeerIDs, the basis of the
// Kademlia routing table's bucket assignment and closest-node ordering.
func (id PeerID) Distance(other PeerID) [32]byte {
	var d [32]byte
	for i := range d {
		d[i] = id[i] ^ other[i]
	}
	return d
}
