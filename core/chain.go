package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultFee is burned on every contract deploy and call.
	DefaultFee = 0.001
	// DefaultGenesisSupply credits the genesis wallet at chain[0].
	DefaultGenesisSupply = 1000.0
	// CoinbaseReward is paid to the miner of every block.
	CoinbaseReward = 1.0
	// DefaultMempoolCap bounds the number of pending transactions held in
	// memory before the oldest are evicted to make room for new arrivals.
	DefaultMempoolCap = 5000
)

// NodeConfig parameterizes a Node at construction time. Zero values fall
// back to the defaults above, and to defaultTargetBlockS/defaultInterval
// from pow.go for the retarget settings.
type NodeConfig struct {
	GenesisSupply      float64
	Fee                float64
	TargetBlockSeconds int64
	AdjustmentInterval int
	MempoolCap         int
	Logger             *log.Logger
}

func (cfg NodeConfig) withDefaults() NodeConfig {
	if cfg.Fee == 0 {
		cfg.Fee = DefaultFee
	}
	if cfg.GenesisSupply == 0 {
		cfg.GenesisSupply = DefaultGenesisSupply
	}
	if cfg.TargetBlockSeconds == 0 {
		cfg.TargetBlockSeconds = defaultTargetBlockS
	}
	if cfg.AdjustmentInterval == 0 {
		cfg.AdjustmentInterval = defaultInterval
	}
	if cfg.MempoolCap == 0 {
		cfg.MempoolCap = DefaultMempoolCap
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New()
	}
	return cfg
}

// Node owns the chain, mempool, balance state, and deployed contracts for a
// single process. Every mutating path takes mu, so validation and
// application of a block or transaction are indivisible and concurrent
// readers never observe a torn view.
type Node struct {
	mu sync.Mutex

	chain      []*Block
	mempool    []Transaction
	state      State
	contracts  Contracts
	difficulty int
	fee        float64

	targetBlockSeconds int64
	adjustmentInterval int
	mempoolCap         int

	genesisWallet *Wallet
	logger        *log.Logger
}

// NewNode creates a genesis wallet, credits it with the configured supply,
// and seeds chain[0].
func NewNode(cfg NodeConfig) (*Node, error) {
	cfg = cfg.withDefaults()

	genesisWallet, err := CreateWallet()
	if err != nil {
		return nil, fmt.Errorf("core: create genesis wallet: %w", err)
	}

	n := &Node{
		state:              make(State),
		contracts:          make(Contracts),
		difficulty:         initialDifficulty,
		fee:                cfg.Fee,
		targetBlockSeconds: cfg.TargetBlockSeconds,
		adjustmentInterval: cfg.AdjustmentInterval,
		mempoolCap:         cfg.MempoolCap,
		genesisWallet:      genesisWallet,
		logger:             cfg.Logger,
	}

	now := time.Now().Unix()
	genesisTx := WrapGenesis(NewGenesisTx(genesisWallet.Address, cfg.GenesisSupply, now))
	genesis := NewBlock(0, []Transaction{genesisTx}, 100, "0", "genesis", initialDifficulty, now)
	n.chain = []*Block{genesis}
	n.state[genesisWallet.Address] = cfg.GenesisSupply

	n.logger.WithField("genesis_address", genesisWallet.Address).Info("genesis block created")
	return n, nil
}

// GenesisWallet returns the wallet chain[0] credited the initial supply to.
func (n *Node) GenesisWallet() *Wallet { return n.genesisWallet }

// Balance returns addr's current balance, 0 if unknown.
func (n *Node) Balance(addr Address) float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state[addr]
}

// ChainLength returns the number of committed blocks.
func (n *Node) ChainLength() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.chain)
}

// Tip returns the most recently committed block.
func (n *Node) Tip() *Block {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.chain[len(n.chain)-1]
}

// Difficulty returns the current PoW difficulty.
func (n *Node) Difficulty() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.difficulty
}

// Fee returns the configured network fee.
func (n *Node) Fee() float64 { return n.fee }

// Chain returns a snapshot slice of the committed chain; callers must not
// mutate the returned blocks.
func (n *Node) Chain() []*Block {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Block, len(n.chain))
	copy(out, n.chain)
	return out
}

// Mempool returns a snapshot of pending transactions.
func (n *Node) Mempool() []Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Transaction, len(n.mempool))
	copy(out, n.mempool)
	return out
}

// ContractByAddress returns the contract at addr, or nil if undeployed.
func (n *Node) ContractByAddress(addr Address) *Contract {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.contracts[addr]
	if !ok {
		return nil
	}
	return c.clone()
}

// applyTransactions validates and applies each transaction in order
// against state/contracts, stopping at the first failure. referenceTime is
// stamped onto any timelock transaction's ReferenceTime field before
// validation, since timelock's unlock check depends on a point in time the
// transaction itself does not carry. A genesis pseudo-transaction is
// rejected: it is only valid in chain[0], which never passes through here.
func applyTransactions(txs []Transaction, state State, contracts Contracts, fee float64, referenceTime int64) error {
	for _, tx := range txs {
		if tx.Kind == TxGenesis {
			return fmt.Errorf("%w: genesis transaction outside chain[0]", ErrInvalidBlock)
		}
		if tx.Kind == TxTimelock && tx.Timelock != nil {
			tx.Timelock.SetReferenceTime(referenceTime)
		}
		if err := tx.Validate(state, contracts, fee); err != nil {
			return err
		}
		if err := tx.Apply(state, contracts, fee); err != nil {
			return err
		}
	}
	return nil
}

// NewTransaction validates tx against the current committed state and, on
// success, admits it to the mempool. Coinbase and genesis transactions are
// never admissible this way; they are only ever constructed internally.
func (n *Node) NewTransaction(tx Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if tx.Kind == TxBasic && tx.Basic != nil && tx.Basic.Sender == CoinbaseAddress {
		return ErrCoinbaseNotAllowed
	}
	if tx.Kind == TxGenesis {
		return fmt.Errorf("%w: genesis transactions are not admissible via mempool", ErrMalformedTransaction)
	}

	txid := tx.TxID()
	for _, existing := range n.mempool {
		if existing.TxID() == txid {
			return ErrDuplicateTransaction
		}
	}

	if tx.Kind == TxTimelock && tx.Timelock != nil {
		tx.Timelock.SetReferenceTime(time.Now().Unix())
	}
	if err := tx.Validate(n.state, n.contracts, n.fee); err != nil {
		return err
	}

	n.mempool = append(n.mempool, tx)
	n.logger.WithField("txid", shortenID(txid)).Debug("transaction admitted to mempool")

	if over := len(n.mempool) - n.mempoolCap; over > 0 {
		evicted := n.mempool[:over]
		n.mempool = n.mempool[over:]
		n.logger.WithFields(log.Fields{
			"evicted": len(evicted),
			"cap":     n.mempoolCap,
		}).Warn("mempool soft cap exceeded, evicting oldest transactions")
	}
	return nil
}

// Mine snapshots the mempool, prepends a coinbase reward, searches for a
// valid proof, and on success commits the block. ctx cancellation aborts
// the proof search without touching chain state.
func (n *Node) Mine(ctx context.Context, minerAddress Address) (*Block, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.chain) > 0 && len(n.chain)%n.adjustmentInterval == 0 {
		window := n.chain[len(n.chain)-n.adjustmentInterval:]
		n.difficulty = adjustDifficulty(window, n.targetBlockSeconds, n.adjustmentInterval)
	}

	pending := make([]Transaction, len(n.mempool))
	copy(pending, n.mempool)

	now := time.Now().Unix()
	coinbase := WrapBasic(NewCoinbaseTx(minerAddress, CoinbaseReward, now))
	blockTxs := append([]Transaction{coinbase}, pending...)

	prevHash := n.chain[len(n.chain)-1].Hash
	proof, ok := mineProof(ctx, prevHash, n.difficulty)
	if !ok {
		return nil, ctx.Err()
	}

	block := NewBlock(len(n.chain), blockTxs, proof, prevHash, minerAddress, n.difficulty, now)

	if err := n.validateNewBlockLocked(block); err != nil {
		return nil, fmt.Errorf("core: mined block failed validation: %w", err)
	}
	if err := applyTransactions(block.Transactions, n.state, n.contracts, n.fee, block.Timestamp); err != nil {
		return nil, fmt.Errorf("core: apply mined block: %w", err)
	}

	n.chain = append(n.chain, block)
	n.removeFromMempoolLocked(pending)

	n.logger.WithFields(log.Fields{
		"index": block.Index, "hash": shortenID(block.Hash), "difficulty": block.Difficulty,
	}).Info("mined block")
	return block, nil
}

// validateNewBlockLocked checks index contiguity, hash linkage, proof of
// work, the Merkle root, and every transaction against a temporary copy of
// state/contracts, left-to-right. Callers must hold mu.
func (n *Node) validateNewBlockLocked(block *Block) error {
	if block.Index != len(n.chain) {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidIndex, len(n.chain), block.Index)
	}
	if block.PreviousHash != n.chain[len(n.chain)-1].Hash {
		return ErrInvalidPreviousHash
	}
	if !validProof(block.PreviousHash, block.Proof, block.Difficulty) {
		return ErrInvalidProof
	}
	if block.MerkleRoot != block.calculateMerkleRoot() {
		return ErrInvalidMerkleRoot
	}

	tempState := n.state.clone()
	tempContracts := n.contracts.clone()
	return applyTransactions(block.Transactions, tempState, tempContracts, n.fee, block.Timestamp)
}

// ApplyPeerBlock validates and commits a block received from the overlay.
// Callers are expected to have already checked index/previous-hash cheaply
// before paying for full validation; this method re-checks them anyway so
// it is safe to call unconditionally.
func (n *Node) ApplyPeerBlock(block *Block) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.validateNewBlockLocked(block); err != nil {
		if errors.Is(err, ErrInvalidIndex) || errors.Is(err, ErrInvalidPreviousHash) {
			return fmt.Errorf("%w: %v", ErrStaleOrForkedBlock, err)
		}
		return err
	}
	if err := applyTransactions(block.Transactions, n.state, n.contracts, n.fee, block.Timestamp); err != nil {
		return err
	}
	n.chain = append(n.chain, block)
	n.removeFromMempoolLocked(block.Transactions)
	return nil
}

func (n *Node) removeFromMempoolLocked(applied []Transaction) {
	if len(applied) == 0 {
		return
	}
	appliedIDs := make(map[string]struct{}, len(applied))
	for _, tx := range applied {
		appliedIDs[tx.TxID()] = struct{}{}
	}
	filtered := n.mempool[:0:0]
	for _, tx := range n.mempool {
		if _, ok := appliedIDs[tx.TxID()]; !ok {
			filtered = append(filtered, tx)
		}
	}
	n.mempool = filtered
}

// ValidChain reconstructs balances from genesis and checks index
// contiguity, hash linkage, proof of work, Merkle roots, and transaction
// replay validity for the whole candidate chain. It never mutates n.
func ValidChain(chain []*Block, fee float64) bool {
	if len(chain) == 0 {
		return false
	}
	genesis := chain[0]
	if genesis.PreviousHash != "0" {
		return false
	}

	state := make(State)
	contracts := make(Contracts)
	for _, tx := range genesis.Transactions {
		if tx.Kind == TxGenesis && tx.Genesis != nil {
			state[tx.Genesis.Recipient] += tx.Genesis.Amount
		}
	}

	for i := 1; i < len(chain); i++ {
		cur, prev := chain[i], chain[i-1]
		if cur.Index != i {
			return false
		}
		if cur.PreviousHash != prev.Hash {
			return false
		}
		if !validProof(cur.PreviousHash, cur.Proof, cur.Difficulty) {
			return false
		}
		if cur.MerkleRoot != cur.calculateMerkleRoot() {
			return false
		}
		if err := applyTransactions(cur.Transactions, state, contracts, fee, cur.Timestamp); err != nil {
			return false
		}
	}
	return true
}

// ValidChain reports whether chain is valid under this node's fee policy.
func (n *Node) ValidChain(chain []*Block) bool {
	return ValidChain(chain, n.fee)
}

// rebuildStateLocked clears and re-derives state and contracts by replaying
// every committed block from genesis. Transactions are applied directly
// (not re-validated) since they already passed validation when committed;
// the genesis pseudo-transaction is detected by Kind and credited directly.
func (n *Node) rebuildStateLocked() {
	n.state = make(State)
	n.contracts = make(Contracts)

	for _, block := range n.chain {
		for _, tx := range block.Transactions {
			if tx.Kind == TxGenesis && tx.Genesis != nil {
				n.state[tx.Genesis.Recipient] += tx.Genesis.Amount
				continue
			}
			if tx.Kind == TxTimelock && tx.Timelock != nil {
				tx.Timelock.SetReferenceTime(block.Timestamp)
			}
			_ = tx.Apply(n.state, n.contracts, n.fee)
		}
	}
}

// RebuildState is the exported, locked form of rebuildStateLocked, useful
// for tests that want to assert rebuild idempotence directly.
func (n *Node) RebuildState() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rebuildStateLocked()
}

// StateSnapshot returns a copy of the current balance map.
func (n *Node) StateSnapshot() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.clone()
}

// PeerChain is a candidate chain offered by a remote peer, along with its
// self-reported length (which may exceed len(Blocks) only in malformed
// input — callers should treat a mismatch as an invalid chain).
type PeerChain struct {
	Blocks []*Block
	Length int
}

// PeerChainSource abstracts fetching candidate chains from connected
// peers. The gossip overlay implements this; core never imports it,
// avoiding an import cycle between the chain engine and the transport.
type PeerChainSource interface {
	PeerChains(ctx context.Context) ([]PeerChain, error)
}

// ResolveConflicts polls source for candidate chains and adopts the
// longest one that validates and strictly exceeds the local length. Ties
// keep the local chain. On adoption, mempool entries whose txid now
// appears in the adopted chain are dropped.
func (n *Node) ResolveConflicts(ctx context.Context, source PeerChainSource) (bool, error) {
	candidates, err := source.PeerChains(ctx)
	if err != nil {
		return false, fmt.Errorf("core: fetch peer chains: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	var adopted []*Block
	maxLen := len(n.chain)

	for _, candidate := range candidates {
		if candidate.Length <= maxLen {
			continue
		}
		if len(candidate.Blocks) != candidate.Length {
			continue
		}
		if !ValidChain(candidate.Blocks, n.fee) {
			continue
		}
		maxLen = candidate.Length
		adopted = candidate.Blocks
	}

	if adopted == nil {
		return false, nil
	}

	n.chain = adopted
	n.rebuildStateLocked()
	n.pruneMempoolLocked()
	n.logger.WithField("new_length", len(n.chain)).Info("adopted longer peer chain")
	return true, nil
}

func (n *Node) pruneMempoolLocked() {
	committed := make(map[string]struct{})
	for _, block := range n.chain {
		for _, tx := range block.Transactions {
			committed[tx.TxID()] = struct{}{}
		}
	}
	filtered := n.mempool[:0:0]
	for _, tx := range n.mempool {
		if _, ok := committed[tx.TxID()]; !ok {
			filtered = append(filtered, tx)
		}
	}
	n.mempool = filtered
}

func shortenID(id string) string {
	if len(id) < 10 {
		return id
	}
	return id[:10]
}
