package p2p

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// discoveryLoop dials every bootstrap peer not yet connected and asks
// already-connected peers for their known-peer lists, once per
// DiscoveryInterval.
func (s *Server) discoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.DiscoveryInterval)
	defer ticker.Stop()

	for {
		s.dialBootstrapPeers()
		s.requestPeerLists()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) dialBootstrapPeers() {
	for _, addr := range s.cfg.BootstrapPeers {
		if addr == s.cfg.ListenAddress {
			continue
		}
		if s.alreadyConnected(addr) {
			continue
		}
		if p := s.peerByAddress(addr); p != nil && p.skipOnDiscovery() {
			continue
		}
		if err := s.dial(addr); err != nil {
			s.cfg.Logger.WithError(err).WithField("peer", addr).Debug("could not connect to bootstrap peer")
			if p := s.peerByAddress(addr); p != nil {
				p.recordDialFailure()
			}
		}
	}
}

func (s *Server) alreadyConnected(addr string) bool {
	for _, p := range s.peerSnapshot() {
		if p.Address == addr && p.IsConnected {
			return true
		}
	}
	return false
}

func (s *Server) peerByAddress(addr string) *Peer {
	for _, p := range s.peerSnapshot() {
		if p.Address == addr {
			return p
		}
	}
	return nil
}

// dial opens a WebSocket connection to the /ws endpoint at addr
// ("host:port"), introduces ourselves with a peer_discovery envelope, and
// starts a read loop for the new connection.
func (s *Server) dial(addr string) error {
	url := fmt.Sprintf("ws://%s/ws", addr)
	conn, _, err := s.dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("p2p: dial %s: %w: %v", addr, ErrPeerUnavailable, err)
	}

	intro, err := NewEnvelope(MsgPeerDiscovery, peerDiscoveryPayload{NodeID: s.cfg.NodeID, Version: protocolVersion}, s.cfg.NodeID, time.Now().Unix())
	if err != nil {
		conn.Close()
		return err
	}
	raw, err := intro.Encode()
	if err != nil {
		conn.Close()
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		conn.Close()
		return err
	}

	s.mu.Lock()
	s.knownPeers[addr] = struct{}{}
	s.mu.Unlock()

	peer := s.registerPeer(addr, conn)
	peer.Address = addr
	peer.recordDialSuccess()
	go s.readLoop(conn)
	return nil
}

func (s *Server) requestPeerLists() {
	s.mu.Lock()
	known := make([]string, 0, len(s.knownPeers))
	for addr := range s.knownPeers {
		known = append(known, addr)
	}
	s.mu.Unlock()

	env, err := NewEnvelope(MsgPeerDiscovery, peerDiscoveryPayload{KnownPeers: known}, s.cfg.NodeID, time.Now().Unix())
	if err != nil {
		return
	}
	s.gossip(env, s.cfg.NodeID)
}

// maintenanceLoop pings connected peers and evicts ones unseen for longer
// than staleAfter, once a minute.
func (s *Server) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pingPeers()
			s.evictStalePeers()
		}
	}
}

func (s *Server) pingPeers() {
	env, err := NewEnvelope(MsgPing, struct{}{}, s.cfg.NodeID, time.Now().Unix())
	if err != nil {
		return
	}
	for _, p := range s.peerSnapshot() {
		if !p.IsConnected {
			continue
		}
		if err := p.send(env); err != nil {
			p.markDisconnected()
		}
	}
}

func (s *Server) evictStalePeers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.peers {
		if p.stale() {
			delete(s.peers, id)
		}
	}
}
