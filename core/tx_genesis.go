package core

import "fmt"

// GenesisTx is the pseudo-transaction that seeds the genesis wallet's
// balance of chain[0]. It carries no signature: it is only ever
// constructed by the chain engine at genesis and detected by Kind during
// state rebuild.
type GenesisTx struct {
	Recipient Address `json:"recipient"`
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"`
	ID        string  `json:"txid"`
}

// NewGenesisTx builds the single coin-issuance transaction for chain[0].
func NewGenesisTx(recipient Address, amount float64, timestamp int64) *GenesisTx {
	tx := &GenesisTx{Recipient: recipient, Amount: amount, Timestamp: timestamp}
	enc, err := canonicalEncode(map[string]interface{}{
		"recipient": tx.Recipient,
		"amount":    tx.Amount,
		"timestamp": tx.Timestamp,
		"type":      string(TxGenesis),
	})
	if err == nil {
		tx.ID = sha256Hex(enc)
	}
	return tx
}

func (tx *GenesisTx) TxID() string { return tx.ID }

// Verify is always true: the genesis pseudo-transaction is never signed
// and is only ever applied by the chain engine itself.
func (tx *GenesisTx) Verify() bool { return true }

// Validate always succeeds at the transaction level — this exists purely to
// satisfy txPayload. The placement rule (genesis only in chain[0]) is
// enforced by the chain engine's applyTransactions, which rejects a genesis
// transaction in any later block.
func (tx *GenesisTx) Validate(State, Contracts, float64) error { return nil }

func (tx *GenesisTx) Apply(state State, _ Contracts, _ float64) error {
	if tx.Amount <= 0 {
		return fmt.Errorf("%w: genesis amount must be positive", ErrInvalidGenesis)
	}
	state[tx.Recipient] += tx.Amount
	return nil
}
