package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/orcanet/overlay/identity"
	"github.com/sirupsen/logrus"
)

// TCPSubstrate is a reference Transport implementation over plain TCP. It
// provides none of NAT traversal, hole punching, relaying, or encryption —
// those are a production substrate's concern (see the non-goal in §1 of the
// specification this module implements). It exists to give the overlay a
// real, wire-level substrate to drive its three protocols over, multiplexed
// on a single persistent connection per peer via length-prefixed framing.
type TCPSubstrate struct {
	self      identity.PeerID
	protocols []string

	listener net.Listener
	events   chan Event

	mu    sync.RWMutex
	conns map[identity.PeerID]*peerConn
	// closed guards against sends/dials racing a Close.
	closed bool

	logger *logrus.Logger
}

type peerConn struct {
	conn net.Conn
	mu   sync.Mutex // serializes writes
}

// NewTCPSubstrate constructs a substrate identified by self, ready to
// advertise support for protocols during handshake. Call Listen to accept
// inbound connections.
func NewTCPSubstrate(self identity.PeerID, protocols []string, logger *logrus.Logger) *TCPSubstrate {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TCPSubstrate{
		self:      self,
		protocols: protocols,
		events:    make(chan Event, 256),
		conns:     make(map[identity.PeerID]*peerConn),
		logger:    logger,
	}
}

// Listen starts accepting inbound TCP connections on addr (host:port or
// :port). Each accepted connection is handshaken and its events forwarded
// to Events.
func (t *TCPSubstrate) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", addr, err)
	}

	t.mu.Lock()
	t.listener = ln
	t.mu.Unlock()

	go t.acceptLoop(ln)
	return nil
}

func (t *TCPSubstrate) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			t.mu.RLock()
			closed := t.closed
			t.mu.RUnlock()
			if closed {
				return
			}
			t.emit(Event{Kind: EventListenerError, Err: err})
			return
		}
		go t.handleConn(conn, false)
	}
}

// LocalPeerID returns the identity this substrate was constructed with.
func (t *TCPSubstrate) LocalPeerID() identity.PeerID { return t.self }

// Listeners returns the addresses this substrate is currently listening on.
func (t *TCPSubstrate) Listeners() []net.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.listener == nil {
		return nil
	}
	return []net.Addr{t.listener.Addr()}
}

// ConnectedPeers returns the peers currently connected.
func (t *TCPSubstrate) ConnectedPeers() []identity.PeerID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	peers := make([]identity.PeerID, 0, len(t.conns))
	for id := range t.conns {
		peers = append(peers, id)
	}
	return peers
}

// IsConnectedTo reports whether peer currently has an open connection.
func (t *TCPSubstrate) IsConnectedTo(peer identity.PeerID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.conns[peer]
	return ok
}

// Dial establishes a TCP connection to addr and performs the handshake,
// registering the resulting connection under the peer id it announces —
// which must equal addr.PeerID, or the connection is dropped.
func (t *TCPSubstrate) Dial(ctx context.Context, addr OverlayAddress) error {
	t.mu.RLock()
	closed := t.closed
	alreadyConnected := false
	if _, ok := t.conns[addr.PeerID]; ok {
		alreadyConnected = true
	}
	t.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if alreadyConnected {
		return ErrAlreadyConnected
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr.TCPAddr().String())
	if err != nil {
		t.emit(Event{Kind: EventDialError, Peer: addr.PeerID, Addr: addr.TCPAddr(), Err: err})
		return fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	announced, err := t.handshake(conn, true)
	if err != nil {
		conn.Close()
		return err
	}
	go t.readLoop(announced, conn)
	if announced != addr.PeerID {
		conn.Close()
		return fmt.Errorf("%w: dialed peer announced a different id", ErrHandshakeFailed)
	}

	return nil
}

func (t *TCPSubstrate) handleConn(conn net.Conn, outbound bool) {
	peer, err := t.handshake(conn, outbound)
	if err != nil {
		t.logger.WithError(err).Debug("transport: handshake failed")
		conn.Close()
		return
	}
	t.readLoop(peer, conn)
}

// handshake exchanges handshakePayload frames and registers the connection.
// The peer id field is self-reported by the remote side, unauthenticated —
// a production substrate supplies the cryptographic binding this reference
// implementation deliberately omits.
func (t *TCPSubstrate) handshake(conn net.Conn, outbound bool) (identity.PeerID, error) {
	local := handshakePayload{
		PeerID:    [32]byte(t.self),
		Protocols: t.protocols,
	}
	if ln := t.Listeners(); len(ln) > 0 {
		if tcp, ok := ln[0].(*net.TCPAddr); ok {
			local.ListenAddrs = []string{OverlayAddress{IP: tcp.IP, Port: uint16(tcp.Port), PeerID: t.self}.String()}
		}
	}

	writeErr := make(chan error, 1)
	go func() { writeErr <- writeFrame(conn, frameHandshake, local) }()

	kind, body, err := readFrame(conn)
	if err != nil {
		return identity.PeerID{}, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if err := <-writeErr; err != nil {
		return identity.PeerID{}, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if kind != frameHandshake {
		return identity.PeerID{}, fmt.Errorf("%w: expected handshake frame, got %d", ErrHandshakeFailed, kind)
	}

	var remote handshakePayload
	if err := cbor.Unmarshal(body, &remote); err != nil {
		return identity.PeerID{}, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	peer := identity.PeerID(remote.PeerID)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return identity.PeerID{}, ErrClosed
	}
	t.conns[peer] = &peerConn{conn: conn}
	t.mu.Unlock()

	t.emit(Event{
		Kind:        EventConnectionEstablished,
		Peer:        peer,
		Addr:        conn.RemoteAddr(),
		Protocols:   remote.Protocols,
		ListenAddrs: remote.ListenAddrs,
	})

	return peer, nil
}

func (t *TCPSubstrate) readLoop(peer identity.PeerID, conn net.Conn) {
	defer func() {
		t.mu.Lock()
		delete(t.conns, peer)
		t.mu.Unlock()
		conn.Close()
		t.emit(Event{Kind: EventConnectionClosed, Peer: peer})
	}()

	for {
		kind, body, err := readFrame(conn)
		if err != nil {
			return
		}
		if kind != frameMessage {
			continue
		}

		var msg messagePayload
		if err := cbor.Unmarshal(body, &msg); err != nil {
			t.logger.WithError(err).Debug("transport: dropping malformed message frame")
			continue
		}

		t.emit(Event{
			Kind:     EventMessage,
			Peer:     peer,
			Protocol: msg.Protocol,
			Payload:  msg.Payload,
		})
	}
}

// Send transmits payload to peer over protocol. The peer must already have
// an open connection (via Dial or an inbound handshake).
func (t *TCPSubstrate) Send(ctx context.Context, peer identity.PeerID, protocol string, payload []byte) error {
	t.mu.RLock()
	closed := t.closed
	pc, ok := t.conns[peer]
	t.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if !ok {
		return ErrNotConnected
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	return writeFrame(pc.conn, frameMessage, messagePayload{Protocol: protocol, Payload: payload})
}

// Events returns the channel of inbound transport events.
func (t *TCPSubstrate) Events() <-chan Event { return t.events }

func (t *TCPSubstrate) emit(ev Event) {
	select {
	case t.events <- ev:
	default:
		t.logger.Warn("transport: event channel full, dropping event")
	}
}

// Close shuts down the listener and every open connection.
func (t *TCPSubstrate) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	ln := t.listener
	conns := t.conns
	t.conns = make(map[identity.PeerID]*peerConn)
	t.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, pc := range conns {
		pc.conn.Close()
	}
	close(t.events)
	return nil
}
