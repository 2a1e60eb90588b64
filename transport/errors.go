package transport

import "errors"

var (
	// ErrNotConnected is returned by Send when no connection to the target
	// peer is currently open.
	ErrNotConnected = errors.New("transport: not connected to peer")
	// ErrAlreadyConnected is returned by Dial when the peer already has an
	// open connection.
	ErrAlreadyConnected = errors.New("transport: already connected to peer")
	// ErrClosed is returned by Dial/Send once the transport has been closed.
	ErrClosed = errors.New("transport: closed")
	// ErrHandshakeFailed is returned when a peer's handshake frame cannot be
	// decoded or omits its peer id.
	ErrHandshakeFailed = errors.New("transport: handshake failed")
	// ErrFrameTooLarge is returned when a peer announces a frame length
	// beyond maxFrameSize.
	ErrFrameTooLarge = errors.New("transport: frame exceeds maximum size")
	// ErrUnknownProtocol is returned by Send when protocol is not one the
	// substrate recognizes.
	ErrUnknownProtocol = errors.New("transport: unknown protocol")
)
