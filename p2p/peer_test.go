package p2p

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialTestConn spins up a throwaway WebSocket echo server and returns a live
// client connection to it, for tests that need a real non-nil *websocket.Conn
// rather than exercising the network at all.
func dialTestConn(t *testing.T) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial test server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPeerReputationCapsAtMax(t *testing.T) {
	p := NewPeer("peer-1", "", 0)
	for i := 0; i < 10; i++ {
		p.increaseReputation()
	}
	if p.Reputation != maxReputation {
		t.Fatalf("expected reputation capped at %d, got %d", maxReputation, p.Reputation)
	}
}

func TestPeerReputationFloorsAtZero(t *testing.T) {
	p := NewPeer("peer-1", "", 0)
	for i := 0; i < 30; i++ {
		p.decreaseReputation()
	}
	if p.Reputation != 0 {
		t.Fatalf("expected reputation floored at 0, got %d", p.Reputation)
	}
}

func TestPeerEligibleForGossipRequiresConnectionAndReputation(t *testing.T) {
	p := NewPeer("peer-1", "", 0)
	if p.eligibleForGossip() {
		t.Fatal("expected a never-connected peer to be ineligible for gossip")
	}

	p.markConnected(dialTestConn(t))
	if !p.eligibleForGossip() {
		t.Fatal("expected a connected, fresh-reputation peer to be eligible")
	}

	for i := 0; i < 20; i++ {
		p.decreaseReputation()
	}
	if p.eligibleForGossip() {
		t.Fatal("expected a peer at or below the flood cutoff to become ineligible")
	}
}

func TestPeerStaleAfterThreshold(t *testing.T) {
	p := NewPeer("peer-1", "", 0)
	if p.stale() {
		t.Fatal("expected a freshly created peer not to be stale")
	}
	p.mu.Lock()
	p.LastSeen = time.Now().Add(-staleAfter - time.Second)
	p.mu.Unlock()
	if !p.stale() {
		t.Fatal("expected a peer unseen for longer than staleAfter to be stale")
	}
}

func TestPeerSkipOnDiscoveryAfterRepeatedFailures(t *testing.T) {
	p := NewPeer("peer-1", "addr:1", 0)
	for i := 0; i < maxFailedConnections-1; i++ {
		p.recordDialFailure()
		if p.skipOnDiscovery() {
			t.Fatalf("expected peer not to be skipped before %d consecutive failures", maxFailedConnections)
		}
	}
	p.recordDialFailure()
	if !p.skipOnDiscovery() {
		t.Fatalf("expected peer to be skipped after %d consecutive failures", maxFailedConnections)
	}
	p.recordDialSuccess()
	if p.skipOnDiscovery() {
		t.Fatal("expected a successful dial to reset the failure count")
	}
}
