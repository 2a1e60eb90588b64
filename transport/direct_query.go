package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/orcanet/overlay/correlator"
	"github.com/orcanet/overlay/identity"
	"github.com/orcanet/overlay/record"
	"github.com/orcanet/overlay/supplier"
	"github.com/sirupsen/logrus"
)

// ErrUnreachable is the outcome error when the peer cannot be reached
// (the dial or the send of the request fails). A connection that drops
// after the request was sent is reported as ErrTimeout.
var ErrUnreachable = errors.New("direct query: peer unreachable")

// ErrTimeout is the outcome error when no response arrives within the
// configured window.
var ErrTimeout = errors.New("direct query: timed out waiting for response")

// DefaultResponseTimeout bounds how long ask() waits for a response before
// reporting ErrTimeout.
const DefaultResponseTimeout = 15 * time.Second

// directRequest is the sole request shape on the wire: a file fingerprint lookup.
type directRequest struct {
	QueryID     [16]byte
	Fingerprint []byte
}

// directResponse is the sole response shape: either a record or an absence
// marker, tagged explicitly so CBOR's self-describing encoding can extend
// with optional fields without breaking older readers.
type directResponse struct {
	QueryID [16]byte
	Found   bool
	Address []byte
	Port    uint16
	Price   int64
	Name    string
}

// QueryOutcome is the result of ask(): exactly one of Record/NoFile/Err is meaningful.
type QueryOutcome struct {
	Record record.SupplierRecord
	NoFile bool
	Err    error
}

// DirectQueryEngine implements point-to-point supplier lookups (§4.4):
// ask() sends a fingerprint request to a specific peer and correlates its
// response; answer() is invoked by the Coordinator when an inbound request
// arrives, consulting the local supplier table.
type DirectQueryEngine struct {
	self       identity.PeerID
	transport  Transport
	correlator *correlator.Correlator
	timeout    time.Duration
	logger     *logrus.Logger
}

// NewDirectQueryEngine constructs a DirectQueryEngine bound to t, correlating
// outcomes through corr.
func NewDirectQueryEngine(self identity.PeerID, t Transport, corr *correlator.Correlator, logger *logrus.Logger) *DirectQueryEngine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DirectQueryEngine{
		self:       self,
		transport:  t,
		correlator: corr,
		timeout:    DefaultResponseTimeout,
		logger:     logger,
	}
}

// Ask sends a fingerprint request to peer (dialing first if not already
// connected) and registers sink to receive the eventual outcome. The
// returned QueryID is also the wire-level correlation id carried in the
// request/response frames.
func (e *DirectQueryEngine) Ask(ctx context.Context, peer identity.PeerID, peerAddr OverlayAddress, fingerprint record.FileFingerprint, sink chan<- correlator.Outcome) (correlator.QueryID, error) {
	id := correlator.NewQueryID(correlator.EngineDirect)
	if err := e.correlator.Register(id, sink); err != nil {
		return id, err
	}

	if !e.transport.IsConnectedTo(peer) {
		if err := e.transport.Dial(ctx, peerAddr); err != nil {
			e.correlator.Complete(id, correlator.Outcome{Err: fmt.Errorf("%w: %v", ErrUnreachable, err)})
			return id, nil
		}
	}

	req := directRequest{QueryID: queryIDBytes(id), Fingerprint: []byte(fingerprint)}
	payload, err := cbor.Marshal(req)
	if err != nil {
		e.correlator.Complete(id, correlator.Outcome{Err: fmt.Errorf("direct query: encode request: %w", err)})
		return id, nil
	}

	if err := e.transport.Send(ctx, peer, ProtocolDirectQuery, payload); err != nil {
		e.correlator.Complete(id, correlator.Outcome{Err: fmt.Errorf("%w: %v", ErrUnreachable, err)})
		return id, nil
	}

	go e.awaitTimeout(id)

	return id, nil
}

func (e *DirectQueryEngine) awaitTimeout(id correlator.QueryID) {
	time.Sleep(e.timeout)
	e.correlator.Complete(id, correlator.Outcome{Err: ErrTimeout})
}

// HandleMessage dispatches an inbound /file_req_res/1.0.0 frame: a response
// frame completes a pending query via the correlator; a request frame is
// answered immediately against table.
func (e *DirectQueryEngine) HandleMessage(ctx context.Context, from identity.PeerID, payload []byte, table *supplier.Table) {
	var resp directResponse
	if err := cbor.Unmarshal(payload, &resp); err == nil && isResponseShape(payload) {
		e.deliverResponse(resp)
		return
	}

	var req directRequest
	if err := cbor.Unmarshal(payload, &req); err != nil {
		e.logger.WithError(err).Debug("direct query: dropping malformed frame")
		return
	}
	e.answer(ctx, from, req, table)
}

// isResponseShape disambiguates request/response frames sharing a QueryID
// prefix by checking for the response-only Found field's presence via a
// minimal structural probe. CBOR map encoding makes this detection by field
// name reliable without maintaining a second wire tag.
func isResponseShape(payload []byte) bool {
	var probe map[string]cbor.RawMessage
	if err := cbor.Unmarshal(payload, &probe); err != nil {
		return false
	}
	_, ok := probe["Found"]
	return ok
}

func (e *DirectQueryEngine) deliverResponse(resp directResponse) {
	id := queryIDFromBytes(resp.QueryID)
	if resp.Found {
		e.correlator.Complete(id, correlator.Outcome{Payload: QueryOutcome{Record: record.SupplierRecord{
			Address: resp.Address,
			Port:    resp.Port,
			Price:   resp.Price,
			Name:    resp.Name,
		}}})
		return
	}
	e.correlator.Complete(id, correlator.Outcome{Payload: QueryOutcome{NoFile: true}})
}

// answer consults table for req.Fingerprint and replies HasFile/NoFile.
func (e *DirectQueryEngine) answer(ctx context.Context, from identity.PeerID, req directRequest, table *supplier.Table) {
	resp := directResponse{QueryID: req.QueryID}

	if rec, ok := table.GetIfFresh(record.FileFingerprint(req.Fingerprint)); ok {
		resp.Found = true
		resp.Address = []byte(rec.Address)
		resp.Port = rec.Port
		resp.Price = rec.Price
		resp.Name = rec.Name
	}

	payload, err := cbor.Marshal(resp)
	if err != nil {
		e.logger.WithError(err).Warn("direct query: failed to encode answer")
		return
	}

	if err := e.transport.Send(ctx, from, ProtocolDirectQuery, payload); err != nil {
		e.logger.WithField("peer", from.String()).WithError(err).Debug("direct query: failed to send answer")
	}
}

func queryIDBytes(id correlator.QueryID) [16]byte {
	var out [16]byte
	copy(out[:], id.ID[:])
	return out
}

func queryIDFromBytes(b [16]byte) correlator.QueryID {
	return correlator.QueryID{Engine: correlator.EngineDirect, ID: uuid.UUID(b)}
}
