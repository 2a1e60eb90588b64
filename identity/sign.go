package identity

import (
	"crypto/ed25519"
	"errors"
)

// SignatureSize is the size of an Ed25519 signature in bytes.
const SignatureSize = ed25519.SignatureSize

// Signature is an Ed25519 signature over an identify-protocol payload.
type Signature [SignatureSize]byte

// ErrEmptyMessage is returned by Sign and Verify for a zero-length message.
var ErrEmptyMessage = errors.New("identity: empty message")

// Sign produces an Ed25519 signature for message using the keypair's
// private key.
func (kp *KeyPair) Sign(message []byte) (Signature, error) {
	if len(message) == 0 {
		return Signature{}, ErrEmptyMessage
	}
	var sig Signature
	copy(sig[:], ed25519.Sign(kp.Private, message))
	return sig, nil
}

// Verify checks a signature against message for the given PeerID's public key.
func Verify(message []byte, sig Signature, id PeerID) (bool, error) {
	if len(message) == 0 {
		return false, ErrEmptyMessage
	}
	return ed25519.Verify(ed25519.PublicKey(id[:]), message, sig[:]), nil
}
