// Package transport implements the overlay's network substrate contract:
// the Transport interface the Coordinator consumes, a reference TCP
// implementation, overlay address parsing, and the direct-query wire
// protocol used to fetch supplier metadata peer-to-peer.
package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/orcanet/overlay/identity"
)

// ErrInvalidOverlayAddress is returned when a multi-component address string
// is missing one of its required components (ip4, tcp, p2p).
var ErrInvalidOverlayAddress = errors.New("transport: invalid overlay address")

// OverlayAddress is a fully-qualified peer address of the form
// /ip4/<dotted>/tcp/<port>/p2p/<peer_id>. All three components are required.
type OverlayAddress struct {
	IP     net.IP
	Port   uint16
	PeerID identity.PeerID
}

// String renders the canonical multi-component form.
func (a OverlayAddress) String() string {
	return fmt.Sprintf("/ip4/%s/tcp/%d/p2p/%s", a.IP.String(), a.Port, a.PeerID.String())
}

// TCPAddr renders the address as a *net.TCPAddr for dialing.
func (a OverlayAddress) TCPAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: a.IP, Port: int(a.Port)}
}

// ParseAddress parses the "/ip4/<dotted>/tcp/<port>/p2p/<peer_id>" grammar.
// Absence of any of the three required components is ErrInvalidOverlayAddress.
func ParseAddress(s string) (OverlayAddress, error) {
	parts := strings.Split(strings.Trim(s, "/"), "/")

	var (
		addr     OverlayAddress
		haveIP   bool
		havePort bool
		havePeer bool
	)

	for i := 0; i+1 < len(parts); i += 2 {
		switch parts[i] {
		case "ip4":
			ip := net.ParseIP(parts[i+1]).To4()
			if ip == nil {
				return OverlayAddress{}, fmt.Errorf("%w: bad ip4 component %q", ErrInvalidOverlayAddress, parts[i+1])
			}
			addr.IP = ip
			haveIP = true
		case "tcp":
			port, err := strconv.ParseUint(parts[i+1], 10, 16)
			if err != nil || port == 0 {
				return OverlayAddress{}, fmt.Errorf("%w: bad tcp component %q", ErrInvalidOverlayAddress, parts[i+1])
			}
			addr.Port = uint16(port)
			havePort = true
		case "p2p":
			id, err := identity.ParsePeerID(parts[i+1])
			if err != nil {
				return OverlayAddress{}, fmt.Errorf("%w: bad p2p component: %v", ErrInvalidOverlayAddress, err)
			}
			addr.PeerID = id
			havePeer = true
		}
	}

	if !haveIP || !havePort || !havePeer {
		return OverlayAddress{}, fmt.Errorf("%w: missing required protocol component (need ip4, tcp, p2p)", ErrInvalidOverlayAddress)
	}

	return addr, nil
}
