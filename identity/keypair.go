// Package identity generates and represents the peer identity used throughout
// the overlay: a single Ed25519 signing keypair minted once at Coordinator
// startup and carried for the life of the process.
//
// The package deliberately does not manage key rotation, persistence, or
// any cryptographic identity beyond this one session key — that is an
// explicit non-goal of the overlay core.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrKeyGeneration is returned when the process-wide entropy source fails.
var ErrKeyGeneration = errors.New("identity: key generation failed")

// KeyPair is an Ed25519 signing keypair used to derive a PeerID.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair mints a new Ed25519 keypair from a cryptographic source.
// This is the only key-generation entry point the overlay uses: one keypair
// per Coordinator, created at startup and discarded at shutdown.
func GenerateKeyPair() (*KeyPair, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "GenerateKeyPair",
		"package":  "identity",
	})

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		logger.WithError(err).Error("failed to generate session keypair")
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	logger.WithField("public_key", hex.EncodeToString(pub)[:16]+"...").
		Debug("generated session keypair")

	return &KeyPair{Public: pub, Private: priv}, nil
}

// PeerID derives the canonical PeerIdentity for this keypair.
func (kp *KeyPair) PeerID() PeerID {
	var id PeerID
	copy(id[:], kp.Public)
	return id
}
