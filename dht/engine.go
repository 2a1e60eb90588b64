package dht

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/orcanet/overlay/correlator"
	"github.com/orcanet/overlay/identity"
	"github.com/orcanet/overlay/record"
	"github.com/orcanet/overlay/transport"
	"github.com/sirupsen/logrus"
)

// DefaultRefreshInterval is the steady-state bootstrap refresh period.
const DefaultRefreshInterval = 10 * time.Minute

// responseWindow bounds how long get_providers/bootstrap wait for replies
// from connected peers before completing with whatever arrived. The DHT
// engine performs a single-hop flood to currently connected peers rather
// than a full iterative Kademlia lookup (see DESIGN.md); responseWindow
// stands in for the iterative protocol's termination condition.
const responseWindow = 300 * time.Millisecond

type messageKind string

const (
	kindFindNode             messageKind = "find_node"
	kindFindNodeResponse     messageKind = "find_node_response"
	kindAddProvider          messageKind = "add_provider"
	kindGetProviders         messageKind = "get_providers"
	kindGetProvidersResponse messageKind = "get_providers_response"
)

type wireNode struct {
	ID   [32]byte
	Addr string
}

// wireMessage is the single envelope shape for every DHT protocol message,
// tagged by Kind. Only the fields relevant to Kind are populated — this
// keeps the wire format self-describing per §6 without a second framing
// layer on top of CBOR.
type wireMessage struct {
	Kind        messageKind
	QueryID     [16]byte
	Target      [32]byte
	Fingerprint []byte
	TTL         time.Duration
	Nodes       []wireNode
	Providers   [][32]byte
}

// ProviderState is a provider record's position in its republish lifecycle.
type ProviderState int

const (
	StateAdvertising ProviderState = iota
	StateRepublishing
	StateExpired
)

type providerRecord struct {
	fingerprint   record.FileFingerprint
	descriptor    record.FileDescriptor
	supplier      record.SupplierRecord
	state         ProviderState
	publishedAt   time.Time
	nextRepublish time.Time
}

// BootstrapOutcome is the completion payload of Bootstrap.
type BootstrapOutcome struct {
	Peer             identity.PeerID
	RemainingBuckets int
}

// ClosestPeersOutcome is the completion payload of GetClosestPeers.
type ClosestPeersOutcome struct {
	Peers []*Node
}

// ProvidersOutcome is the completion payload of GetProviders.
type ProvidersOutcome struct {
	Providers []identity.PeerID
}

type aggregation struct {
	mu    sync.Mutex
	peers map[identity.PeerID]struct{}
}

// Engine drives Kademlia routing, provider-record publish/lookup, and
// periodic bootstrap refresh (§4.3). It performs a single-hop flood to
// currently connected peers rather than an iterative multi-round lookup —
// sufficient for the scale this overlay targets (see DESIGN.md).
type Engine struct {
	self         identity.PeerID
	transport    transport.Transport
	correlator   *correlator.Correlator
	routing      *RoutingTable
	protocolName string
	providerTTL  time.Duration
	time         TimeProvider
	logger       *logrus.Logger

	mu         sync.Mutex
	providers  map[string]map[identity.PeerID]struct{} // fingerprint hex -> provider set (includes self when locally registered)
	mine       map[string]*providerRecord               // fingerprint hex -> local provider record
	aggregates map[[16]byte]*aggregation
}

// NewEngine constructs a DHTEngine rooted at self with the given provider
// TTL, communicating over t and correlating outcomes through corr.
func NewEngine(self identity.PeerID, t transport.Transport, corr *correlator.Correlator, providerTTL time.Duration, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		self:         self,
		transport:    t,
		correlator:   corr,
		routing:      NewRoutingTable(self, DefaultBucketSize),
		protocolName: transport.ProtocolDHT,
		providerTTL:  providerTTL,
		time:         DefaultTimeProvider{},
		logger:       logger,
		providers:    make(map[string]map[identity.PeerID]struct{}),
		mine:         make(map[string]*providerRecord),
		aggregates:   make(map[[16]byte]*aggregation),
	}
}

// RoutingTable exposes the engine's routing table for read-only inspection
// (e.g. by the IdentifyBridge and the Coordinator's listeners() query).
func (e *Engine) RoutingTable() *RoutingTable { return e.routing }

// Bootstrap inserts nodes into routing (if any), dialing each one not
// already connected, and sends a FIND_NODE for the local peer id to every
// routing-table node. After responseWindow it completes with one of the
// peers reported in the responses, or with ErrNoKnownPeers if none arrived.
// With no nodes supplied, it refreshes using the existing routing table;
// the outcome is ErrNoKnownPeers if routing is empty.
func (e *Engine) Bootstrap(ctx context.Context, nodes []BootNode, sink chan<- correlator.Outcome) (correlator.QueryID, error) {
	id := correlator.NewQueryID(correlator.EngineDHT)
	if err := e.correlator.Register(id, sink); err != nil {
		return id, err
	}

	for _, n := range nodes {
		e.routing.AddNode(NewNode(n.PeerID, n.Addr.TCPAddr()))
		if !e.transport.IsConnectedTo(n.PeerID) {
			if err := e.transport.Dial(ctx, n.Addr); err != nil {
				e.logger.WithField("peer", n.PeerID.String()).WithError(err).Debug("dht: boot node dial failed")
			}
		}
	}

	targets := e.routing.GetAllNodes()
	if len(targets) == 0 {
		e.correlator.Complete(id, correlator.Outcome{Err: ErrNoKnownPeers})
		return id, nil
	}

	e.beginAggregation(id)
	msg := wireMessage{Kind: kindFindNode, QueryID: queryIDWireBytes(id), Target: e.self}
	e.floodTo(ctx, targets, msg)
	go e.finishBootstrap(id)

	return id, nil
}

func (e *Engine) finishBootstrap(id correlator.QueryID) {
	time.Sleep(responseWindow)
	agg := e.takeAggregation(id)
	if agg == nil {
		return
	}
	if len(agg.peers) == 0 {
		e.correlator.Complete(id, correlator.Outcome{Err: ErrNoKnownPeers})
		return
	}
	var first identity.PeerID
	for p := range agg.peers {
		first = p
		break
	}
	remaining := 256 - e.routing.Len()
	e.correlator.Complete(id, correlator.Outcome{Payload: BootstrapOutcome{Peer: first, RemainingBuckets: remaining}})
}

// GetClosestPeers answers entirely from the local routing table — with no
// iterative lookup, the k closest known peers are the best local estimate.
func (e *Engine) GetClosestPeers(key identity.PeerID, sink chan<- correlator.Outcome) (correlator.QueryID, error) {
	id := correlator.NewQueryID(correlator.EngineDHT)
	if err := e.correlator.Register(id, sink); err != nil {
		return id, err
	}
	closest := e.routing.FindClosestNodes(key, DefaultBucketSize)
	e.correlator.Complete(id, correlator.Outcome{Payload: ClosestPeersOutcome{Peers: closest}})
	return id, nil
}

// RegisterFile publishes a provider record locally (self becomes a
// provider of fingerprint) and floods ADD_PROVIDER to every connected
// peer. The record enters StateAdvertising and, on RepublishDue, republishes
// every TTL/2 ± 10% jitter until the TTL since its first publication
// lapses, at which point it is expired.
func (e *Engine) RegisterFile(ctx context.Context, fingerprint record.FileFingerprint, descriptor record.FileDescriptor, supplier record.SupplierRecord, sink chan<- correlator.Outcome) (correlator.QueryID, error) {
	id := correlator.NewQueryID(correlator.EngineDHT)
	if err := e.correlator.Register(id, sink); err != nil {
		return id, err
	}

	key := fingerprint.String()
	now := e.time.Now()

	e.mu.Lock()
	if e.providers[key] == nil {
		e.providers[key] = make(map[identity.PeerID]struct{})
	}
	e.providers[key][e.self] = struct{}{}
	e.mine[key] = &providerRecord{
		fingerprint:   fingerprint,
		descriptor:    descriptor,
		supplier:      supplier,
		state:         StateAdvertising,
		publishedAt:   now,
		nextRepublish: now.Add(jitter(e.providerTTL / 2)),
	}
	e.mu.Unlock()

	msg := wireMessage{Kind: kindAddProvider, QueryID: queryIDWireBytes(id), Fingerprint: []byte(fingerprint), TTL: e.providerTTL}
	e.floodTo(ctx, e.routing.GetAllNodes(), msg)

	e.correlator.Complete(id, correlator.Outcome{Payload: struct{}{}})
	return id, nil
}

// GetProviders queries every connected peer for fingerprint's provider set,
// unions the replies with the local view, and completes with the
// aggregate, ordered by XOR distance to fingerprint with peer-id
// byte-lexicographic tie-break.
func (e *Engine) GetProviders(ctx context.Context, fingerprint record.FileFingerprint, sink chan<- correlator.Outcome) (correlator.QueryID, error) {
	id := correlator.NewQueryID(correlator.EngineDHT)
	if err := e.correlator.Register(id, sink); err != nil {
		return id, err
	}

	e.beginAggregation(id)

	e.mu.Lock()
	for p := range e.providers[fingerprint.String()] {
		e.addToAggregation(id, p)
	}
	e.mu.Unlock()

	msg := wireMessage{Kind: kindGetProviders, QueryID: queryIDWireBytes(id), Fingerprint: []byte(fingerprint)}
	e.floodTo(ctx, e.routing.GetAllNodes(), msg)

	go e.finishGetProviders(id, fingerprint)
	return id, nil
}

func (e *Engine) finishGetProviders(id correlator.QueryID, fingerprint record.FileFingerprint) {
	time.Sleep(responseWindow)
	agg := e.takeAggregation(id)
	if agg == nil {
		return
	}

	peers := make([]identity.PeerID, 0, len(agg.peers))
	for p := range agg.peers {
		peers = append(peers, p)
	}
	sortByDistance(peers, fingerprintKey(fingerprint))

	e.correlator.Complete(id, correlator.Outcome{Payload: ProvidersOutcome{Providers: peers}})
}

// HandleMessage dispatches an inbound /orcanet/kad/1.0.0 frame.
func (e *Engine) HandleMessage(ctx context.Context, from identity.PeerID, fromAddr *transport.OverlayAddress, payload []byte) {
	var msg wireMessage
	if err := cbor.Unmarshal(payload, &msg); err != nil {
		e.logger.WithError(err).Debug("dht: dropping malformed message")
		return
	}

	switch msg.Kind {
	case kindFindNode:
		e.replyFindNode(ctx, from, msg)
	case kindFindNodeResponse:
		e.handleFindNodeResponse(msg)
	case kindAddProvider:
		e.handleAddProvider(from, msg)
	case kindGetProviders:
		e.replyGetProviders(ctx, from, msg)
	case kindGetProvidersResponse:
		e.handleGetProvidersResponse(msg)
	default:
		e.logger.WithField("kind", msg.Kind).Debug("dht: unknown message kind")
	}
}

func (e *Engine) replyFindNode(ctx context.Context, from identity.PeerID, msg wireMessage) {
	closest := e.routing.FindClosestNodes(identity.PeerID(msg.Target), DefaultBucketSize)
	nodes := make([]wireNode, 0, len(closest))
	for _, n := range closest {
		addr := ""
		if n.Address != nil {
			addr = n.Address.String()
		}
		nodes = append(nodes, wireNode{ID: [32]byte(n.ID), Addr: addr})
	}
	resp := wireMessage{Kind: kindFindNodeResponse, QueryID: msg.QueryID, Nodes: nodes}
	e.send(ctx, from, resp)
}

func (e *Engine) handleFindNodeResponse(msg wireMessage) {
	id := queryIDFromWireBytes(msg.QueryID)
	for _, n := range msg.Nodes {
		e.routing.AddNode(NewNode(identity.PeerID(n.ID), nil))
		e.addToAggregation(id, identity.PeerID(n.ID))
	}
}

func (e *Engine) handleAddProvider(from identity.PeerID, msg wireMessage) {
	key := record.FileFingerprint(msg.Fingerprint).String()
	e.mu.Lock()
	if e.providers[key] == nil {
		e.providers[key] = make(map[identity.PeerID]struct{})
	}
	e.providers[key][from] = struct{}{}
	e.mu.Unlock()
}

func (e *Engine) replyGetProviders(ctx context.Context, from identity.PeerID, msg wireMessage) {
	key := record.FileFingerprint(msg.Fingerprint).String()

	e.mu.Lock()
	var ids [][32]byte
	for p := range e.providers[key] {
		ids = append(ids, [32]byte(p))
	}
	e.mu.Unlock()

	resp := wireMessage{Kind: kindGetProvidersResponse, QueryID: msg.QueryID, Providers: ids}
	e.send(ctx, from, resp)
}

func (e *Engine) handleGetProvidersResponse(msg wireMessage) {
	id := queryIDFromWireBytes(msg.QueryID)
	for _, raw := range msg.Providers {
		e.addToAggregation(id, identity.PeerID(raw))
	}
}

// RepublishDue is invoked by the Coordinator on every bootstrap-refresh
// tick: it republishes any local provider record whose nextRepublish has
// elapsed and expires any whose TTL has fully lapsed.
func (e *Engine) RepublishDue(ctx context.Context) {
	now := e.time.Now()

	e.mu.Lock()
	due := make([]*providerRecord, 0)
	for key, pr := range e.mine {
		if now.Sub(pr.publishedAt) >= e.providerTTL {
			pr.state = StateExpired
			delete(e.mine, key)
			delete(e.providers[key], e.self)
			continue
		}
		if now.After(pr.nextRepublish) {
			pr.state = StateRepublishing
			pr.nextRepublish = now.Add(jitter(e.providerTTL / 2))
			due = append(due, pr)
		}
	}
	e.mu.Unlock()

	for _, pr := range due {
		msg := wireMessage{Kind: kindAddProvider, Fingerprint: []byte(pr.fingerprint), TTL: e.providerTTL}
		e.floodTo(ctx, e.routing.GetAllNodes(), msg)
	}
}

func (e *Engine) floodTo(ctx context.Context, nodes []*Node, msg wireMessage) {
	for _, n := range nodes {
		e.send(ctx, n.ID, msg)
	}
}

func (e *Engine) send(ctx context.Context, peer identity.PeerID, msg wireMessage) {
	payload, err := cbor.Marshal(msg)
	if err != nil {
		e.logger.WithError(err).Warn("dht: failed to encode message")
		return
	}
	if err := e.transport.Send(ctx, peer, e.protocolName, payload); err != nil {
		e.logger.WithField("peer", peer.String()).WithError(err).Debug("dht: send failed")
	}
}

func (e *Engine) beginAggregation(id correlator.QueryID) {
	e.mu.Lock()
	e.aggregates[id.ID] = &aggregation{peers: make(map[identity.PeerID]struct{})}
	e.mu.Unlock()
}

func (e *Engine) addToAggregation(id correlator.QueryID, peer identity.PeerID) {
	e.mu.Lock()
	agg, ok := e.aggregates[id.ID]
	e.mu.Unlock()
	if !ok {
		return
	}
	agg.mu.Lock()
	agg.peers[peer] = struct{}{}
	agg.mu.Unlock()
}

func (e *Engine) takeAggregation(id correlator.QueryID) *aggregation {
	e.mu.Lock()
	defer e.mu.Unlock()
	agg, ok := e.aggregates[id.ID]
	if !ok {
		return nil
	}
	delete(e.aggregates, id.ID)
	return agg
}

func queryIDWireBytes(id correlator.QueryID) [16]byte {
	var out [16]byte
	copy(out[:], id.ID[:])
	return out
}

func queryIDFromWireBytes(b [16]byte) correlator.QueryID {
	return correlator.QueryID{Engine: correlator.EngineDHT, ID: uuid.UUID(b)}
}

func fingerprintKey(f record.FileFingerprint) identity.PeerID {
	var key identity.PeerID
	copy(key[:], f)
	return key
}

func sortByDistance(peers []identity.PeerID, target identity.PeerID) {
	for i := 1; i < len(peers); i++ {
		for j := i; j > 0; j-- {
			di := peers[j].Distance(target)
			dj := peers[j-1].Distance(target)
			if lessDistance(di, dj) || (di == dj && peers[j].Less(peers[j-1])) {
				peers[j], peers[j-1] = peers[j-1], peers[j]
			} else {
				break
			}
		}
	}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return base
	}
	delta := float64(base) * 0.10
	offset := (rand.Float64()*2 - 1) * delta
	return base + time.Duration(offset)
}
