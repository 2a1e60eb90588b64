package market

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/orcanet/overlay/correlator"
	"github.com/orcanet/overlay/dht"
	"github.com/orcanet/overlay/identify"
	"github.com/orcanet/overlay/identity"
	"github.com/orcanet/overlay/record"
	"github.com/orcanet/overlay/supplier"
	"github.com/orcanet/overlay/transport"
	"github.com/sirupsen/logrus"
)

// Coordinator is the single owner of all overlay mutable state (§4.6). Its
// main loop is a deterministic multi-way select over transport events, the
// command channel, and the bootstrap-refresh ticker; every iteration
// handles exactly one event and never blocks on external I/O beyond the
// select itself.
type Coordinator struct {
	self      identity.PeerID
	cfg       *Config
	transport *transport.TCPSubstrate
	table     *supplier.Table
	corr      *correlator.Correlator
	dhtEngine *dht.Engine
	direct    *transport.DirectQueryEngine
	identify  *identify.Bridge
	commands  chan command
	quit      chan struct{}
	logger    *logrus.Entry

	descriptors map[string]record.FileDescriptor
	peerAddrs   map[identity.PeerID]transport.OverlayAddress
}

// New constructs a Coordinator per cfg, binds its TCP listener, seeds
// routing from cfg.BootNodes, and starts the worker goroutine. It returns
// the PeerHandle directly once any initial bootstrap has completed. Every
// error returned here is a construction error (§7): fatal,
// synchronous, never retried internally.
func New(cfg *Config) (*PeerHandle, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if cfg.FileTTL <= 0 {
		return nil, ErrNonPositiveFileTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	keyPair, err := identity.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportInit, err)
	}
	self := keyPair.PeerID()

	sub := transport.NewTCPSubstrate(self, []string{
		transport.ProtocolDHT, transport.ProtocolIdentify, transport.ProtocolDirectQuery,
	}, logger)
	// Bound to loopback: every acceptance scenario in this overlay's test
	// suite dials peers via 127.0.0.1, and the listener accepts connections
	// from this host only. Config.WithPublicAddress adds an address to what
	// Listeners reports; it does not change the bind address or the listen
	// address sent in the handshake.
	if err := sub.Listen(fmt.Sprintf("127.0.0.1:%d", cfg.ListenTCPPort)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitialListen, err)
	}

	table, err := supplier.New(cfg.FileTTL, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonPositiveFileTTL, err)
	}

	corr := correlator.New(logger)
	engine := dht.NewEngine(self, sub, corr, cfg.FileTTL, logger)
	direct := transport.NewDirectQueryEngine(self, sub, corr, logger)
	bridge := identify.NewBridge(engine.RoutingTable(), transport.ProtocolDHT, logger)

	c := &Coordinator{
		self:        self,
		cfg:         cfg,
		transport:   sub,
		table:       table,
		corr:        corr,
		dhtEngine:   engine,
		direct:      direct,
		identify:    bridge,
		commands:    make(chan command, 64),
		quit:        make(chan struct{}),
		logger:      logger.WithField("worker_thread", cfg.WorkerThreadName),
		descriptors: make(map[string]record.FileDescriptor),
		peerAddrs:   make(map[identity.PeerID]transport.OverlayAddress),
	}

	handle := &PeerHandle{self: self, commands: c.commands, quit: c.quit, closeOnce: &sync.Once{}}
	go c.run()

	// Initial bootstrap is a fatal construction error (§7): when boot nodes
	// are supplied but none yield a routable peer within the response
	// window, New fails rather than returning a Coordinator stranded with
	// no routing-table entries. The run() goroutine must already be
	// draining transport events for this to resolve, since Bootstrap's
	// completion depends on FIND_NODE responses arriving on that loop.
	if cfg.BootNodes != nil {
		sink := make(chan correlator.Outcome, 1)
		if _, err := engine.Bootstrap(context.Background(), cfg.BootNodes.Nodes(), sink); err != nil {
			handle.Shutdown()
			return nil, fmt.Errorf("%w: %v", ErrInitialBootstrap, err)
		}
		outcome := <-sink
		if outcome.Err != nil {
			handle.Shutdown()
			return nil, fmt.Errorf("%w: %v", ErrInitialBootstrap, outcome.Err)
		}
	}

	return handle, nil
}

func (c *Coordinator) run() {
	// The refresh ticker starts on the short initial-bootstrap backoff and
	// switches to the steady-state interval after its first fire (§6):
	// 77s initial, 10m steady, never the initial cadence forever.
	ticker := time.NewTicker(c.cfg.InitialBootstrapBackoff)
	defer ticker.Stop()
	steadyState := false

	events := c.transport.Events()

	for {
		select {
		case <-c.quit:
			c.corr.Shutdown()
			c.transport.Close()
			return

		case ev, ok := <-events:
			if !ok {
				c.corr.Shutdown()
				return
			}
			c.handleTransportEvent(ev)

		case cmd := <-c.commands:
			c.handleCommand(cmd)

		case <-ticker.C:
			if !steadyState {
				ticker.Reset(c.cfg.BootstrapInterval)
				steadyState = true
			}

			ctx := context.Background()
			c.dhtEngine.RepublishDue(ctx)
			sink := make(chan correlator.Outcome, 1)
			if _, err := c.dhtEngine.Bootstrap(ctx, nil, sink); err != nil {
				c.logger.WithError(err).Debug("market: bootstrap refresh registration failed")
				continue
			}
			go func() {
				outcome := <-sink
				if outcome.Err != nil {
					c.logger.WithError(outcome.Err).Debug("market: bootstrap refresh failed")
				}
			}()
		}
	}
}

func (c *Coordinator) handleTransportEvent(ev transport.Event) {
	ctx := context.Background()

	switch ev.Kind {
	case transport.EventConnectionEstablished:
		c.logger.WithField("peer", ev.Peer.String()).Info("market: peer connected")
		c.identify.HandleIdentify(ev.Peer, ev.ListenAddrs, ev.Protocols)
		if len(ev.ListenAddrs) > 0 {
			if addr, err := transport.ParseAddress(ev.ListenAddrs[0]); err == nil {
				c.peerAddrs[ev.Peer] = addr
			}
		}
		c.dhtEngine.RoutingTable().MarkStatus(ev.Peer, dht.StatusGood)

	case transport.EventConnectionClosed:
		c.logger.WithField("peer", ev.Peer.String()).Info("market: peer disconnected")
		c.dhtEngine.RoutingTable().MarkStatus(ev.Peer, dht.StatusBad)

	case transport.EventMessage:
		switch ev.Protocol {
		case transport.ProtocolDHT:
			c.dhtEngine.HandleMessage(ctx, ev.Peer, nil, ev.Payload)
		case transport.ProtocolDirectQuery:
			c.direct.HandleMessage(ctx, ev.Peer, ev.Payload, c.table)
		default:
			c.logger.WithField("protocol", ev.Protocol).Debug("market: message on unrecognized protocol")
		}

	case transport.EventListenerError:
		c.logger.WithError(ev.Err).Warn("market: listener error")

	case transport.EventDialError:
		c.logger.WithError(ev.Err).Debug("market: dial error")
		if ev.Peer != (identity.PeerID{}) {
			c.dhtEngine.RoutingTable().MarkStatus(ev.Peer, dht.StatusBad)
		}
	}
}

func (c *Coordinator) handleCommand(cmd command) {
	ctx := context.Background()

	switch cmd.kind {
	case cmdListeners:
		cmd.reply <- reply{Value: c.listenerAddresses()}

	case cmdConnectedPeers:
		cmd.reply <- reply{Value: c.transport.ConnectedPeers()}

	case cmdIsConnectedTo:
		cmd.reply <- reply{Value: c.transport.IsConnectedTo(cmd.peer)}

	case cmdGetClosestPeers:
		sink := make(chan correlator.Outcome, 1)
		if _, err := c.dhtEngine.GetClosestPeers(cmd.key, sink); err != nil {
			cmd.reply <- reply{Err: err}
			return
		}
		go forwardClosestPeers(sink, cmd.reply)

	case cmdRegisterFile:
		if err := cmd.supplier.Validate(); err != nil {
			cmd.reply <- reply{Err: err}
			return
		}

		c.table.Insert(cmd.fingerprint, cmd.supplier)
		c.descriptors[cmd.fingerprint.String()] = cmd.descriptor

		sink := make(chan correlator.Outcome, 1)
		if _, err := c.dhtEngine.RegisterFile(ctx, cmd.fingerprint, cmd.descriptor, cmd.supplier, sink); err != nil {
			cmd.reply <- reply{Err: err}
			return
		}
		go forwardAck(sink, cmd.reply)

	case cmdGetProviders:
		sink := make(chan correlator.Outcome, 1)
		if _, err := c.dhtEngine.GetProviders(ctx, cmd.fingerprint, sink); err != nil {
			cmd.reply <- reply{Err: err}
			return
		}
		go forwardProviders(sink, cmd.reply)

	case cmdGetHolderByPeerID:
		c.dispatchHolderQuery(ctx, cmd.peer, cmd.fingerprint, cmd.reply)

	case cmdCheckHolders:
		go c.checkHolders(ctx, cmd.fingerprint, cmd.reply)

	// Internal-only: answered directly from Coordinator-owned maps, which
	// only this goroutine (run()) ever touches.
	case cmdLookupPeerAddr:
		cmd.reply <- reply{Value: c.peerAddrs[cmd.peer]}

	case cmdLookupDescriptor:
		desc, ok := c.descriptors[cmd.fingerprint.String()]
		cmd.reply <- reply{Value: descriptorLookup{Descriptor: desc, Found: ok}}
	}
}

// internalCall sends cmd to the Coordinator's own command channel and waits
// for its reply. It exists so that goroutines spawned off handleCommand
// (which run concurrently with run() and with each other) can read
// Coordinator-owned map state — peerAddrs, descriptors — without touching
// those maps directly from a second goroutine. Must never be called from
// the run() goroutine itself: it would deadlock waiting on the only reader
// of c.commands.
func (c *Coordinator) internalCall(cmd command) (any, error) {
	cmd.reply = make(chan reply, 1)

	select {
	case c.commands <- cmd:
	case <-c.quit:
		return nil, ErrSendFailure
	}

	select {
	case r := <-cmd.reply:
		return r.Value, r.Err
	case <-c.quit:
		return nil, ErrReceiveFailure
	}
}

func (c *Coordinator) listenerAddresses() []string {
	var out []string
	for _, a := range c.transport.Listeners() {
		tcp, ok := a.(*net.TCPAddr)
		if !ok {
			continue
		}
		out = append(out, transport.OverlayAddress{IP: tcp.IP, Port: uint16(tcp.Port), PeerID: c.self}.String())
	}
	if c.cfg.PublicAddress != nil {
		out = append(out, c.cfg.PublicAddress.String())
	}
	return out
}

// holderQuery answers whether peer holds fingerprint. It never touches
// Coordinator fields directly — self-queries go through the (already
// internally synchronized) supplier table, and remote queries fetch the
// peer's known address via internalCall rather than reading c.peerAddrs,
// since holderQuery runs on goroutines spawned off the run() loop, not on
// run() itself.
func (c *Coordinator) holderQuery(ctx context.Context, peer identity.PeerID, fingerprint record.FileFingerprint) correlator.Outcome {
	if peer == c.self {
		rec, ok := c.table.GetIfFresh(fingerprint)
		return correlator.Outcome{Payload: HolderResult{Found: ok, Record: rec}}
	}

	addrVal, err := c.internalCall(command{kind: cmdLookupPeerAddr, peer: peer})
	if err != nil {
		return correlator.Outcome{Err: err}
	}
	addr, _ := addrVal.(transport.OverlayAddress)

	sink := make(chan correlator.Outcome, 1)
	if _, err := c.direct.Ask(ctx, peer, addr, fingerprint, sink); err != nil {
		return correlator.Outcome{Err: err}
	}
	outcome := <-sink
	if outcome.Err != nil {
		return outcome
	}
	qo := outcome.Payload.(transport.QueryOutcome)
	return correlator.Outcome{Payload: HolderResult{Found: !qo.NoFile, Record: qo.Record}}
}

func (c *Coordinator) dispatchHolderQuery(ctx context.Context, peer identity.PeerID, fingerprint record.FileFingerprint, out chan reply) {
	go func() {
		outcome := c.holderQuery(ctx, peer, fingerprint)
		out <- reply{Value: outcome.Payload, Err: outcome.Err}
	}()
}

// checkHolders fans the per-provider direct queries out concurrently —
// every provider's holderQuery runs on its own goroutine, so total latency
// bounds on the slowest single query rather than scaling with the number
// of providers (§9).
func (c *Coordinator) checkHolders(ctx context.Context, fingerprint record.FileFingerprint, out chan reply) {
	sink := make(chan correlator.Outcome, 1)
	if _, err := c.dhtEngine.GetProviders(ctx, fingerprint, sink); err != nil {
		out <- reply{Err: err}
		return
	}
	outcome := <-sink
	if outcome.Err != nil {
		out <- reply{Err: outcome.Err}
		return
	}

	providers := outcome.Payload.(dht.ProvidersOutcome).Providers
	result := CheckHoldersResult{}

	descVal, err := c.internalCall(command{kind: cmdLookupDescriptor, fingerprint: fingerprint})
	if err == nil {
		if lookup, ok := descVal.(descriptorLookup); ok && lookup.Found {
			desc := lookup.Descriptor
			result.Descriptor = &desc
		}
	}

	type answer struct {
		outcome correlator.Outcome
	}
	answers := make(chan answer, len(providers))
	for _, peer := range providers {
		peer := peer
		go func() {
			answers <- answer{outcome: c.holderQuery(ctx, peer, fingerprint)}
		}()
	}

	for range providers {
		a := <-answers
		if a.outcome.Err != nil {
			continue
		}
		hr := a.outcome.Payload.(HolderResult)
		if hr.Found {
			result.Suppliers = append(result.Suppliers, hr.Record)
		}
	}

	out <- reply{Value: result}
}

func forwardClosestPeers(sink chan correlator.Outcome, out chan reply) {
	outcome := <-sink
	out <- reply{Value: outcome.Payload, Err: outcome.Err}
}

func forwardProviders(sink chan correlator.Outcome, out chan reply) {
	outcome := <-sink
	out <- reply{Value: outcome.Payload, Err: outcome.Err}
}

func forwardAck(sink chan correlator.Outcome, out chan reply) {
	outcome := <-sink
	out <- reply{Err: outcome.Err}
}
