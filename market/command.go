package market

import (
	"github.com/orcanet/overlay/identity"
	"github.com/orcanet/overlay/record"
)

type commandKind int

const (
	cmdListeners commandKind = iota
	cmdConnectedPeers
	cmdIsConnectedTo
	cmdGetClosestPeers
	cmdRegisterFile
	cmdGetProviders
	cmdCheckHolders
	cmdGetHolderByPeerID

	// Internal-only kinds: never constructed by PeerHandle. Spawned
	// goroutines that need a snapshot of Coordinator-owned map state (which
	// only the run() goroutine may touch) request it through these, the
	// same way any other caller would, rather than reading the maps directly.
	cmdLookupPeerAddr
	cmdLookupDescriptor
)

// reply carries a command's result back to the PeerHandle caller: exactly
// one of Value/Err is meaningful.
type reply struct {
	Value any
	Err   error
}

// command is the sole shape sent over the Coordinator's command channel.
// PeerHandle constructs one per public method call, together with a
// one-shot reply channel, per §4.7.
type command struct {
	kind commandKind

	peer        identity.PeerID
	key         identity.PeerID
	fingerprint record.FileFingerprint
	descriptor  record.FileDescriptor
	supplier    record.SupplierRecord

	reply chan reply
}

// HolderResult is the GetHolderByPeerID/CheckHolders-element outcome shape.
type HolderResult struct {
	Found  bool
	Record record.SupplierRecord
}

// CheckHoldersResult is the aggregate check_holders(fingerprint) outcome:
// the descriptor, if the file was registered on this peer, and every
// supplier that answered HasFile. Descriptors are not fetched from remote
// providers, so a peer that did not register the file itself gets a nil
// Descriptor.
type CheckHoldersResult struct {
	Descriptor *record.FileDescriptor
	Suppliers  []record.SupplierRecord
}

// descriptorLookup is the cmdLookupDescriptor reply shape.
type descriptorLookup struct {
	Descriptor record.FileDescriptor
	Found      bool
}
