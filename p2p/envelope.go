// Package p2p implements the gossip overlay that connects ledger nodes:
// JSON envelopes exchanged over long-lived WebSocket connections, with
// duplicate suppression, peer reputation, and periodic bootstrap discovery.
package p2p

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/meridian-chain/ledgernode/core"
)

// MessageType discriminates the envelope kinds flowing over the overlay.
type MessageType string

const (
	MsgTransaction   MessageType = "transaction"
	MsgBlock         MessageType = "block"
	MsgPeerDiscovery MessageType = "peer_discovery"
	MsgChainRequest  MessageType = "chain_request"
	MsgChainResponse MessageType = "chain_response"
	MsgPing          MessageType = "ping"
	MsgPong          MessageType = "pong"

	// MsgNewTransaction and MsgNewBlock are long-form aliases accepted
	// alongside MsgTransaction/MsgBlock on broadcast, for interop with
	// peers that emit the long spelling.
	MsgNewTransaction MessageType = "new_transaction"
	MsgNewBlock       MessageType = "new_block"
)

// Envelope is the wire message exchanged between nodes. Data carries the
// type-specific payload as raw JSON so a node can dispatch on Type before
// committing to unmarshaling the body into a concrete shape.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	SenderID  string          `json:"sender_id"`
	Timestamp int64           `json:"timestamp"`
	MessageID string          `json:"message_id"`
}

// NewEnvelope builds an envelope around data, deriving MessageID from the
// sender, timestamp and content hash so that two nodes broadcasting the
// same payload at the same instant still get distinct IDs, while any single
// envelope forwarded verbatim through the gossip mesh keeps the same ID for
// duplicate suppression.
func NewEnvelope(msgType MessageType, data interface{}, senderID string, timestamp int64) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("p2p: marshal envelope data: %w", err)
	}
	env := &Envelope{
		Type:      msgType,
		Data:      raw,
		SenderID:  senderID,
		Timestamp: timestamp,
	}
	env.MessageID = computeMessageID(senderID, timestamp, raw)
	return env, nil
}

func computeMessageID(senderID string, timestamp int64, data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s-%d-%s", senderID, timestamp, hex.EncodeToString(sum[:8]))
}

// Encode serializes the envelope for transmission over a WebSocket frame.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses a single WebSocket text frame into an Envelope.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("p2p: decode envelope: %w: %v", core.ErrMalformedMessage, err)
	}
	return &env, nil
}
