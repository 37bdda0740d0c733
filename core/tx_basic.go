package core

import "fmt"

// BasicTx is a single-signature transfer, the simplest variant. Coinbase
// transactions are represented as a BasicTx with Sender == CoinbaseAddress;
// they are only ever constructed by the chain engine's mining path, never
// admitted from the mempool.
type BasicTx struct {
	Sender    Address `json:"sender"`
	Recipient Address `json:"recipient"`
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"`
	ID        string  `json:"txid"`
	PublicKey string  `json:"public_key,omitempty"`
	Signature string  `json:"signature,omitempty"`
}

// NewBasicTx builds an unsigned basic transfer with its txid already set.
func NewBasicTx(sender, recipient Address, amount float64, timestamp int64) *BasicTx {
	tx := &BasicTx{Sender: sender, Recipient: recipient, Amount: amount, Timestamp: timestamp}
	tx.ID = tx.computeTxID()
	return tx
}

// NewCoinbaseTx builds the mining-reward transaction prepended to every
// mined block.
func NewCoinbaseTx(miner Address, reward float64, timestamp int64) *BasicTx {
	return NewBasicTx(CoinbaseAddress, miner, reward, timestamp)
}

func (tx *BasicTx) hashContent() map[string]interface{} {
	return map[string]interface{}{
		"sender":    tx.Sender,
		"recipient": tx.Recipient,
		"amount":    tx.Amount,
		"timestamp": tx.Timestamp,
		"type":      string(TxBasic),
	}
}

func (tx *BasicTx) computeTxID() string {
	enc, err := canonicalEncode(tx.hashContent())
	if err != nil {
		return ""
	}
	return sha256Hex(enc)
}

// signingContent is the variant's content fields plus its txid — binding
// the signature to a specific txid this way keeps the rule uniform across
// single- and multi-signature variants.
func (tx *BasicTx) signingContent() map[string]interface{} {
	c := tx.hashContent()
	c["txid"] = tx.ID
	return c
}

// Sign authorizes the transfer on behalf of w, which must be the sender.
func (tx *BasicTx) Sign(w *Wallet) error {
	if w.Address != tx.Sender {
		return ErrWrongSigner
	}
	sig, err := w.Sign(tx.signingContent())
	if err != nil {
		return fmt.Errorf("core: sign basic tx: %w", err)
	}
	tx.Signature = sig
	tx.PublicKey = w.PublicKeyPEM
	return nil
}

func (tx *BasicTx) TxID() string { return tx.ID }

// Verify is true iff sender is the coinbase sentinel, or a valid signature
// is present.
func (tx *BasicTx) Verify() bool {
	if tx.Sender == CoinbaseAddress {
		return true
	}
	if tx.Signature == "" || tx.PublicKey == "" {
		return false
	}
	return VerifySignature(tx.signingContent(), tx.Signature, tx.PublicKey)
}

func (tx *BasicTx) Validate(state State, _ Contracts, _ float64) error {
	if tx.Sender == CoinbaseAddress {
		return nil
	}
	if tx.Amount <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, tx.Amount)
	}
	if !tx.Verify() {
		return ErrInvalidSignature
	}
	if balance, ok := state[tx.Sender]; !ok || balance < tx.Amount {
		return fmt.Errorf("%w: %s has %v, needs %v", ErrInsufficientBalance, tx.Sender, state[tx.Sender], tx.Amount)
	}
	return nil
}

func (tx *BasicTx) Apply(state State, _ Contracts, _ float64) error {
	if tx.Sender != CoinbaseAddress {
		state[tx.Sender] -= tx.Amount
	}
	state[tx.Recipient] += tx.Amount
	return nil
}
