package market

import (
	"sync"

	"github.com/orcanet/overlay/identity"
	"github.com/orcanet/overlay/record"
)

// PeerHandle is the thread-safe, clonable outward façade onto a running
// Coordinator (§4.7). It holds only a command-channel sender and a copy of
// the local PeerIdentity — it never touches Coordinator state directly.
type PeerHandle struct {
	self      identity.PeerID
	commands  chan command
	quit      chan struct{}
	closeOnce *sync.Once
}

// PeerID returns the local peer identity.
func (h *PeerHandle) PeerID() identity.PeerID { return h.self }

// Shutdown signals the Coordinator to drain its RequestCorrelator with
// Cancelled and exit its event loop. Safe to call more than once or from
// multiple PeerHandle clones.
func (h *PeerHandle) Shutdown() {
	h.closeOnce.Do(func() { close(h.quit) })
}

func (h *PeerHandle) call(cmd command) (any, error) {
	cmd.reply = make(chan reply, 1)

	select {
	case h.commands <- cmd:
	case <-h.quit:
		return nil, ErrSendFailure
	}

	select {
	case r, ok := <-cmd.reply:
		if !ok {
			return nil, ErrReceiveFailure
		}
		return r.Value, r.Err
	case <-h.quit:
		return nil, ErrReceiveFailure
	}
}

// Listeners returns the overlay addresses this peer is currently listening on.
func (h *PeerHandle) Listeners() ([]string, error) {
	v, err := h.call(command{kind: cmdListeners})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// ConnectedPeers returns the peer identities currently connected.
func (h *PeerHandle) ConnectedPeers() ([]identity.PeerID, error) {
	v, err := h.call(command{kind: cmdConnectedPeers})
	if err != nil {
		return nil, err
	}
	return v.([]identity.PeerID), nil
}

// IsConnectedTo reports whether peer currently has an open connection.
func (h *PeerHandle) IsConnectedTo(peer identity.PeerID) (bool, error) {
	v, err := h.call(command{kind: cmdIsConnectedTo, peer: peer})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// GetClosestPeers returns the k closest known peers to key.
func (h *PeerHandle) GetClosestPeers(key identity.PeerID) (any, error) {
	return h.call(command{kind: cmdGetClosestPeers, key: key})
}

// RegisterFile inserts record into the local supplier table and issues a
// provider announcement for fingerprint, returning once both the local
// insertion and the announcement are acknowledged.
func (h *PeerHandle) RegisterFile(descriptor record.FileDescriptor, supplier record.SupplierRecord) error {
	_, err := h.call(command{
		kind:        cmdRegisterFile,
		fingerprint: descriptor.Fingerprint,
		descriptor:  descriptor,
		supplier:    supplier,
	})
	return err
}

// CheckHolders executes get_providers for fingerprint, then a direct query
// against each provider, aggregating their answers.
func (h *PeerHandle) CheckHolders(fingerprint record.FileFingerprint) (CheckHoldersResult, error) {
	v, err := h.call(command{kind: cmdCheckHolders, fingerprint: fingerprint})
	if err != nil {
		return CheckHoldersResult{}, err
	}
	return v.(CheckHoldersResult), nil
}

// GetHolderByPeerID asks peer directly whether it holds fingerprint. If
// peer is the local identity, the local supplier table is consulted
// without any network round-trip.
func (h *PeerHandle) GetHolderByPeerID(peer identity.PeerID, fingerprint record.FileFingerprint) (HolderResult, error) {
	v, err := h.call(command{kind: cmdGetHolderByPeerID, peer: peer, fingerprint: fingerprint})
	if err != nil {
		return HolderResult{}, err
	}
	return v.(HolderResult), nil
}
