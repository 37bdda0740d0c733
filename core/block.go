package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Block is a header plus an ordered transaction list. Insertion order is
// consensus-relevant: the Merkle root and the balance effects both depend
// on it.
type Block struct {
	Index        int           `json:"index"`
	Timestamp    int64         `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	Proof        int64         `json:"proof"`
	PreviousHash string        `json:"previous_hash"`
	MinerAddress Address       `json:"miner_address"`
	Difficulty   int           `json:"difficulty"`
	Nonce        int64         `json:"nonce"`
	MerkleRoot   string        `json:"merkle_root"`
	Hash         string        `json:"hash"`
}

// NewBlock builds a block, deriving its Merkle root and hash from the
// supplied fields. Nonce is reserved and always starts at 0; Proof is the
// working value the proof-of-work search increments.
func NewBlock(index int, transactions []Transaction, proof int64, previousHash string, miner Address, difficulty int, timestamp int64) *Block {
	b := &Block{
		Index:        index,
		Timestamp:    timestamp,
		Transactions: transactions,
		Proof:        proof,
		PreviousHash: previousHash,
		MinerAddress: miner,
		Difficulty:   difficulty,
		Nonce:        0,
	}
	b.MerkleRoot = b.calculateMerkleRoot()
	b.Hash = b.calculateHash()
	return b
}

// calculateMerkleRoot builds the standard pairwise SHA-256 Merkle tree over
// the canonical hash of each transaction, duplicating the final hash on odd
// widths. The empty-tree root is sha256("").
func (b *Block) calculateMerkleRoot() string {
	if len(b.Transactions) == 0 {
		return sha256Hex(nil)
	}

	level := make([]string, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		level = append(level, transactionHash(tx))
	}

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			combined := level[i] + level[i+1]
			next = append(next, sha256Hex([]byte(combined)))
		}
		level = next
	}
	return level[0]
}

// transactionHash is the SHA-256 of the transaction's JSON encoding,
// matching the leaf hashing used to build the Merkle tree. Field order is
// fixed by the Transaction struct definition, so the encoding is
// deterministic across every node running this code even though it is not
// the lexicographically-sorted form used for signing pre-images.
func transactionHash(tx Transaction) string {
	enc, err := json.Marshal(tx)
	if err != nil {
		return sha256Hex(nil)
	}
	return sha256Hex(enc)
}

// calculateHash hashes the canonical encoding of the header fields only;
// the transaction list is represented solely through MerkleRoot.
func (b *Block) calculateHash() string {
	header := map[string]interface{}{
		"index":         b.Index,
		"timestamp":     b.Timestamp,
		"merkle_root":   b.MerkleRoot,
		"proof":         b.Proof,
		"previous_hash": b.PreviousHash,
		"nonce":         b.Nonce,
		"difficulty":    b.Difficulty,
		"miner_address": b.MinerAddress,
	}
	enc, err := canonicalEncode(header)
	if err != nil {
		return ""
	}
	return sha256Hex(enc)
}

// Validate re-derives the Merkle root and hash and reports whether the
// stored values agree, i.e. the block has not been tampered with.
func (b *Block) Validate() bool {
	return b.MerkleRoot == b.calculateMerkleRoot() && b.Hash == b.calculateHash()
}

// hashHexPrefix reports whether sum's hex digest has difficulty leading
// zero-hex characters.
func hashHexPrefix(sum [sha256.Size]byte, difficulty int) bool {
	digest := hex.EncodeToString(sum[:])
	if difficulty > len(digest) {
		difficulty = len(digest)
	}
	for i := 0; i < difficulty; i++ {
		if digest[i] != '0' {
			return false
		}
	}
	return true
}
