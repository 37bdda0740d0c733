package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/meridian-chain/ledgernode/core"
)

// Ledger is the subset of *core.Node the overlay needs: admitting gossiped
// transactions and blocks, and answering chain requests. Depending on this
// interface rather than the concrete type keeps p2p's tests free of a real
// Node.
type Ledger interface {
	NewTransaction(tx core.Transaction) error
	ApplyPeerBlock(block *core.Block) error
	ChainLength() int
	Chain() []*core.Block
	ValidChain(chain []*core.Block) bool
	RebuildState()
}

// Config parameterizes a Server.
type Config struct {
	NodeID             string
	ListenAddress      string
	Port               int
	BootstrapPeers     []string // "host:port" entries dialed on startup and every discovery round
	DiscoveryInterval  time.Duration
	ConnectionTimeout  time.Duration
	Logger             *log.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}
	if cfg.DiscoveryInterval == 0 {
		cfg.DiscoveryInterval = 30 * time.Second
	}
	if cfg.ConnectionTimeout == 0 {
		cfg.ConnectionTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New()
	}
	return cfg
}

// Server is the gossip overlay for one node: it accepts inbound WebSocket
// connections, dials bootstrap/discovered peers, deduplicates and routes
// envelopes, and collects connected peers' chains for ResolveConflicts
// callers through PeerChains.
type Server struct {
	cfg    Config
	ledger Ledger

	mu          sync.Mutex
	peers       map[string]*Peer
	knownPeers  map[string]struct{} // "host:port" ever heard of
	seen        *seenMessages
	upgrader    websocket.Upgrader
	dialer      websocket.Dialer

	pendingResponses []core.PeerChain

	startTime        time.Time
	messagesSent     uint64
	messagesReceived uint64

	cancel context.CancelFunc
}

// NewServer builds a gossip overlay bound to ledger.
func NewServer(cfg Config, ledger Ledger) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:        cfg,
		ledger:     ledger,
		peers:      make(map[string]*Peer),
		knownPeers: make(map[string]struct{}),
		seen:       newSeenMessages(),
		upgrader:   websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(*http.Request) bool { return true }},
		dialer:     websocket.Dialer{HandshakeTimeout: cfg.ConnectionTimeout},
		startTime:  time.Now(),
	}
}

// ServeHTTP upgrades an inbound request to a WebSocket and reads envelopes
// from it for the connection's lifetime.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.cfg.Logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	s.readLoop(conn)
}

// Start launches the background discovery and connection-maintenance
// loops. It returns immediately; call Stop to tear them down.
func (s *Server) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.discoveryLoop(ctx)
	go s.maintenanceLoop(ctx)
}

// Stop cancels the background loops. Open connections are left to close
// naturally as their read loops hit the network error their peer's Stop
// caused.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Server) readLoop(conn *websocket.Conn) {
	var associatedPeer *Peer
	defer func() {
		if associatedPeer != nil {
			associatedPeer.markDisconnected()
		}
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := DecodeEnvelope(raw)
		if err != nil {
			s.cfg.Logger.WithError(err).Warn("discarding malformed envelope")
			continue
		}

		if env.SenderID != "" && env.SenderID != s.cfg.NodeID {
			associatedPeer = s.registerPeer(env.SenderID, conn)
		}

		s.dispatch(env, conn)
	}
}

// registerPeer records or refreshes a peer keyed by node ID, binding conn
// as its live connection.
func (s *Server) registerPeer(nodeID string, conn *websocket.Conn) *Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[nodeID]
	if !ok {
		p = NewPeer(nodeID, "", 0)
		s.peers[nodeID] = p
	}
	p.markConnected(conn)
	return p
}

// dispatch handles a single inbound envelope: duplicate suppression,
// handler lookup, reputation adjustment for the sender, then gossip
// forwarding to every other eligible peer.
func (s *Server) dispatch(env *Envelope, from *websocket.Conn) {
	if s.seen.markSeen(env.MessageID) {
		return
	}
	s.mu.Lock()
	s.messagesReceived++
	s.mu.Unlock()

	handler := s.handlerFor(env.Type)
	sender := s.peerByID(env.SenderID)

	if handler == nil {
		s.cfg.Logger.WithField("type", env.Type).Warn("unknown envelope type")
	} else if err := handler(env, from); err != nil {
		s.cfg.Logger.WithError(err).WithField("type", env.Type).Warn("error handling envelope")
		if sender != nil {
			sender.decreaseReputation()
		}
	} else if sender != nil {
		sender.increaseReputation()
	}

	s.gossip(env, env.SenderID)
}

func (s *Server) handlerFor(t MessageType) func(*Envelope, *websocket.Conn) error {
	switch t {
	case MsgTransaction, MsgNewTransaction:
		return s.handleTransaction
	case MsgBlock, MsgNewBlock:
		return s.handleBlock
	case MsgPeerDiscovery:
		return s.handlePeerDiscovery
	case MsgChainRequest:
		return s.handleChainRequest
	case MsgChainResponse:
		return s.handleChainResponse
	case MsgPing:
		return s.handlePing
	case MsgPong:
		return s.handlePong
	default:
		return nil
	}
}

func (s *Server) peerByID(id string) *Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers[id]
}

// gossip flood-routes env to every connected, reputable peer other than
// excludeID and ourselves.
func (s *Server) gossip(env *Envelope, excludeID string) {
	for _, peer := range s.peerSnapshot() {
		if peer.NodeID == excludeID || peer.NodeID == s.cfg.NodeID {
			continue
		}
		if !peer.eligibleForGossip() {
			continue
		}
		if err := peer.send(env); err != nil {
			peer.markDisconnected()
			continue
		}
		s.mu.Lock()
		s.messagesSent++
		s.mu.Unlock()
	}
}

func (s *Server) peerSnapshot() []*Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

// --- envelope handlers ---

type transactionPayload struct {
	Transaction core.Transaction `json:"transaction"`
}

func (s *Server) handleTransaction(env *Envelope, _ *websocket.Conn) error {
	var payload transactionPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return fmt.Errorf("p2p: decode transaction envelope: %w", err)
	}
	if err := s.ledger.NewTransaction(payload.Transaction); err != nil {
		return fmt.Errorf("p2p: admit gossiped transaction: %w", err)
	}
	return nil
}

type blockPayload struct {
	Block *core.Block `json:"block"`
}

func (s *Server) handleBlock(env *Envelope, _ *websocket.Conn) error {
	var payload blockPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return fmt.Errorf("p2p: decode block envelope: %w", err)
	}
	if payload.Block == nil {
		return fmt.Errorf("p2p: empty block envelope")
	}

	switch {
	case payload.Block.Index == s.ledger.ChainLength():
		if err := s.ledger.ApplyPeerBlock(payload.Block); err != nil {
			return fmt.Errorf("p2p: apply gossiped block: %w", err)
		}
	case payload.Block.Index > s.ledger.ChainLength():
		s.broadcastChainRequest()
	}
	return nil
}

type peerDiscoveryPayload struct {
	KnownPeers []string `json:"known_peers"`
	NodeID     string   `json:"node_id,omitempty"`
	Port       int      `json:"port,omitempty"`
	Version    string   `json:"version,omitempty"`
}

func (s *Server) handlePeerDiscovery(env *Envelope, conn *websocket.Conn) error {
	var payload peerDiscoveryPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return fmt.Errorf("p2p: decode peer_discovery envelope: %w", err)
	}

	if sender := s.peerByID(env.SenderID); sender != nil && payload.Version != "" {
		sender.mu.Lock()
		sender.Version = payload.Version
		sender.mu.Unlock()
	}

	s.mu.Lock()
	for _, addr := range payload.KnownPeers {
		s.knownPeers[addr] = struct{}{}
	}
	known := make([]string, 0, len(s.knownPeers))
	for addr := range s.knownPeers {
		known = append(known, addr)
	}
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	response, err := NewEnvelope(MsgPeerDiscovery, peerDiscoveryPayload{KnownPeers: known, NodeID: s.cfg.NodeID, Version: protocolVersion}, s.cfg.NodeID, time.Now().Unix())
	if err != nil {
		return err
	}
	raw, err := response.Encode()
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func (s *Server) handleChainRequest(env *Envelope, conn *websocket.Conn) error {
	if conn == nil {
		return nil
	}
	chain := s.ledger.Chain()
	response, err := NewEnvelope(MsgChainResponse, chainResponsePayload{Chain: chain, Length: len(chain)}, s.cfg.NodeID, time.Now().Unix())
	if err != nil {
		return err
	}
	raw, err := response.Encode()
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

type chainResponsePayload struct {
	Chain  []*core.Block `json:"chain"`
	Length int           `json:"length"`
}

func (s *Server) handleChainResponse(env *Envelope, _ *websocket.Conn) error {
	var payload chainResponsePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return fmt.Errorf("p2p: decode chain_response envelope: %w", err)
	}

	s.mu.Lock()
	s.pendingResponses = append(s.pendingResponses, core.PeerChain{Blocks: payload.Chain, Length: payload.Length})
	s.mu.Unlock()
	return nil
}

func (s *Server) handlePing(env *Envelope, conn *websocket.Conn) error {
	if conn == nil {
		return nil
	}
	pong, err := NewEnvelope(MsgPong, struct{}{}, s.cfg.NodeID, time.Now().Unix())
	if err != nil {
		return err
	}
	raw, err := pong.Encode()
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func (s *Server) handlePong(env *Envelope, _ *websocket.Conn) error {
	if p := s.peerByID(env.SenderID); p != nil {
		p.touch()
	}
	return nil
}

func (s *Server) broadcastChainRequest() {
	env, err := NewEnvelope(MsgChainRequest, struct{}{}, s.cfg.NodeID, time.Now().Unix())
	if err != nil {
		return
	}
	s.gossip(env, s.cfg.NodeID)
}

// BroadcastTransaction gossips tx to every connected peer.
func (s *Server) BroadcastTransaction(tx core.Transaction) error {
	env, err := NewEnvelope(MsgTransaction, transactionPayload{Transaction: tx}, s.cfg.NodeID, time.Now().Unix())
	if err != nil {
		return err
	}
	s.gossip(env, s.cfg.NodeID)
	return nil
}

// BroadcastBlock gossips a newly mined block to every connected peer.
func (s *Server) BroadcastBlock(block *core.Block) error {
	env, err := NewEnvelope(MsgBlock, blockPayload{Block: block}, s.cfg.NodeID, time.Now().Unix())
	if err != nil {
		return err
	}
	s.gossip(env, s.cfg.NodeID)
	return nil
}

// PeerChains implements core.PeerChainSource: it requests the chain from
// every connected peer and collects whatever chain_response envelopes
// arrive within the context deadline. It always waits until ctx is done,
// even after responses have arrived, so a context that never ends blocks
// it forever.
func (s *Server) PeerChains(ctx context.Context) ([]core.PeerChain, error) {
	s.mu.Lock()
	s.pendingResponses = nil
	s.mu.Unlock()

	req, err := NewEnvelope(MsgChainRequest, struct{}{}, s.cfg.NodeID, time.Now().Unix())
	if err != nil {
		return nil, err
	}
	s.gossip(req, s.cfg.NodeID)

	<-ctx.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pendingResponses
	s.pendingResponses = nil
	if len(out) == 0 && ctx.Err() != nil {
		return nil, fmt.Errorf("p2p: collect peer chains: %w", ErrTimeout)
	}
	return out, nil
}

// Peers returns a snapshot of known peer state for status reporting.
func (s *Server) Peers() []PeerInfo {
	snap := s.peerSnapshot()
	out := make([]PeerInfo, 0, len(snap))
	for _, p := range snap {
		out = append(out, p.snapshot())
	}
	return out
}

// Stats is a point-in-time snapshot of overlay traffic counters, the Go
// analogue of the original's get_network_stats() dict.
type Stats struct {
	NodeID           string        `json:"node_id"`
	Uptime           time.Duration `json:"uptime"`
	ConnectedPeers   int           `json:"connected_peers"`
	KnownPeers       int           `json:"known_peers"`
	MessagesSent     uint64        `json:"messages_sent"`
	MessagesReceived uint64        `json:"messages_received"`
}

// Stats reports overlay traffic counters and peer counts. It takes no
// transport action; any control-API collaborator can project this
// directly over HTTP.
func (s *Server) Stats() Stats {
	connected := 0
	for _, p := range s.peerSnapshot() {
		if p.IsConnected {
			connected++
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		NodeID:           s.cfg.NodeID,
		Uptime:           time.Since(s.startTime),
		ConnectedPeers:   connected,
		KnownPeers:       len(s.knownPeers),
		MessagesSent:     s.messagesSent,
		MessagesReceived: s.messagesReceived,
	}
}

// Topology is the locally observed peer graph: this node plus every peer
// record it currently holds. It carries no transport information and is
// meant to be projected by a future control-API collaborator.
type Topology struct {
	NodeID string     `json:"node_id"`
	Peers  []PeerInfo `json:"peers"`
}

// Topology returns the current peer graph as seen by this node.
func (s *Server) Topology() Topology {
	return Topology{NodeID: s.cfg.NodeID, Peers: s.Peers()}
}
