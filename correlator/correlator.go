// Package correlator joins asynchronous network events back to the
// PeerHandle call that requested them. It is the sole place in the
// overlay where an in-flight query is tracked; every other component
// speaks only in terms of QueryIDs and completion outcomes.
package correlator

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrDuplicateQuery is returned by Register when the QueryID is already pending.
var ErrDuplicateQuery = errors.New("correlator: duplicate query id")

// ErrCancelled is delivered to every pending sink when the Coordinator shuts down.
var ErrCancelled = errors.New("correlator: cancelled at shutdown")

// Outcome is the tagged result delivered to a registered sink: exactly one
// of Payload or Err is meaningful, matching the Ok/Err outcome union of the
// component design.
type Outcome struct {
	Payload any
	Err     error
}

// Correlator maps in-flight QueryIDs to one-shot reply channels and
// fulfills or fails each exactly once.
type Correlator struct {
	mu      sync.Mutex
	pending map[QueryID]chan<- Outcome
	logger  *logrus.Logger
}

// New constructs an empty Correlator.
func New(logger *logrus.Logger) *Correlator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Correlator{
		pending: make(map[QueryID]chan<- Outcome),
		logger:  logger,
	}
}

// Register associates sink with id so a later Complete(id, ...) delivers to
// it. Returns ErrDuplicateQuery if id is already registered.
func (c *Correlator) Register(id QueryID, sink chan<- Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[id]; exists {
		return ErrDuplicateQuery
	}
	c.pending[id] = sink
	return nil
}

// Complete delivers outcome to the sink registered for id and removes the
// entry. A Complete for an id with no (or already-removed) registration is
// a no-op, which covers a duplicate completion. If the registered sink is
// not ready to receive, the outcome is dropped with a warning.
func (c *Correlator) Complete(id QueryID, outcome Outcome) {
	c.mu.Lock()
	sink, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	select {
	case sink <- outcome:
	default:
		c.logger.WithField("query_id", id.String()).
			Warn("correlator: reply sink was not ready to receive, dropping outcome")
	}
}

// Shutdown delivers ErrCancelled to every still-pending sink and clears the
// correlator. Called by the Coordinator when its event loop exits, on
// PeerHandle.Shutdown or when the transport event stream ends.
func (c *Correlator) Shutdown() {
	c.mu.Lock()
	remaining := c.pending
	c.pending = make(map[QueryID]chan<- Outcome)
	c.mu.Unlock()

	for id, sink := range remaining {
		select {
		case sink <- Outcome{Err: ErrCancelled}:
		default:
		}
		c.logger.WithField("query_id", id.String()).Debug("correlator: cancelled at shutdown")
	}
}

// Len reports the number of currently pending queries. Exposed for tests.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
