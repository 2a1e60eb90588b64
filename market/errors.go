package market

import "errors"

// Construction errors (§7): fatal, surfaced synchronously from New.
var (
	ErrTransportInit      = errors.New("market: transport initialization failed")
	ErrInitialListen      = errors.New("market: failed to bind tcp listener")
	ErrNonPositiveFileTTL = errors.New("market: file_ttl must be strictly positive")
	ErrInitialBootstrap   = errors.New("market: no known peers available for initial bootstrap")
)

// Handle failures (§4.7): returned by PeerHandle methods.
var (
	// ErrSendFailure means the Coordinator's command channel is gone
	// (the Coordinator has shut down).
	ErrSendFailure = errors.New("market: coordinator is no longer accepting commands")
	// ErrReceiveFailure means the reply sink was dropped without a reply.
	ErrReceiveFailure = errors.New("market: reply channel closed without a reply")
)
