package p2p

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	startingReputation = 100
	maxReputation      = 100
	reputationOnValid  = 1
	reputationOnError  = 5
	floodCutoff        = 20
	staleAfter         = 300 * time.Second

	// maxFailedConnections is how many consecutive dial failures a
	// discovery tick tolerates before skipping the peer entirely, instead
	// of re-dialing a dead address every round.
	maxFailedConnections = 5
)

// protocolVersion is advertised on every peer_discovery handshake. No
// forking logic reads it yet; it is recorded on the peer record for a
// future compatibility check.
const protocolVersion = "1.0"

// Peer tracks a remote node's connection and standing. conn is nil for
// peers we have only heard about through discovery but never connected to.
type Peer struct {
	mu sync.Mutex

	NodeID            string
	Address           string
	Port              int
	Version           string
	LastSeen          time.Time
	Reputation        int
	IsConnected       bool
	FailedConnections int

	conn *websocket.Conn
}

// NewPeer creates a peer record with starting reputation.
func NewPeer(nodeID, address string, port int) *Peer {
	return &Peer{
		NodeID:     nodeID,
		Address:    address,
		Port:       port,
		LastSeen:   time.Now(),
		Reputation: startingReputation,
	}
}

func (p *Peer) touch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastSeen = time.Now()
}

func (p *Peer) markConnected(conn *websocket.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = conn
	p.IsConnected = true
	p.LastSeen = time.Now()
}

func (p *Peer) markDisconnected() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = nil
	p.IsConnected = false
}

func (p *Peer) increaseReputation() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Reputation += reputationOnValid
	if p.Reputation > maxReputation {
		p.Reputation = maxReputation
	}
}

func (p *Peer) decreaseReputation() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Reputation -= reputationOnError
	if p.Reputation < 0 {
		p.Reputation = 0
	}
}

// eligibleForGossip reports whether p should receive flood-routed
// messages: connected, with an open socket, and not in the penalty box.
func (p *Peer) eligibleForGossip() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.IsConnected && p.conn != nil && p.Reputation > floodCutoff
}

func (p *Peer) stale() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.LastSeen) > staleAfter
}

func (p *Peer) recordDialFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FailedConnections++
}

func (p *Peer) recordDialSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FailedConnections = 0
}

// skipOnDiscovery reports whether a discovery tick should not bother
// re-dialing this peer, having already failed too many times in a row.
func (p *Peer) skipOnDiscovery() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.FailedConnections >= maxFailedConnections
}

// send writes an envelope to the peer's socket. Safe for concurrent use by
// multiple writer goroutines since gorilla/websocket requires external
// synchronization of writes.
func (p *Peer) send(env *Envelope) error {
	raw, err := env.Encode()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return websocket.ErrCloseSent
	}
	return p.conn.WriteMessage(websocket.TextMessage, raw)
}

// PeerInfo is a value copy of a Peer's fields, safe to read without holding
// the peer's lock; snapshot produces it for status reporting.
type PeerInfo struct {
	NodeID      string    `json:"node_id"`
	Address     string    `json:"address"`
	Port        int       `json:"port"`
	Version     string    `json:"version"`
	LastSeen    time.Time `json:"last_seen"`
	Reputation  int       `json:"reputation"`
	IsConnected bool      `json:"is_connected"`
}

func (p *Peer) snapshot() PeerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PeerInfo{
		NodeID:      p.NodeID,
		Address:     p.Address,
		Port:        p.Port,
		Version:     p.Version,
		LastSeen:    p.LastSeen,
		Reputation:  p.Reputation,
		IsConnected: p.IsConnected,
	}
}
