package core

import "fmt"

// TimelockTx is a single-signature transfer that only becomes admissible
// once the chain's current time reaches UnlockTime. Before that it is
// rejected outright, exactly like an insufficient-balance failure — it
// never sits half-validated.
type TimelockTx struct {
	Sender     Address `json:"sender"`
	Recipient  Address `json:"recipient"`
	Amount     float64 `json:"amount"`
	UnlockTime int64   `json:"unlock_time"`
	Timestamp  int64   `json:"timestamp"`
	ID         string  `json:"txid"`
	PublicKey  string  `json:"public_key,omitempty"`
	Signature  string  `json:"signature,omitempty"`

	// ReferenceTime is transient: set by the chain engine immediately
	// before Validate and never serialized or hashed.
	ReferenceTime int64 `json:"-"`
}

// NewTimelockTx builds an unsigned timelocked transfer.
func NewTimelockTx(sender, recipient Address, amount float64, unlockTime, timestamp int64) *TimelockTx {
	tx := &TimelockTx{Sender: sender, Recipient: recipient, Amount: amount, UnlockTime: unlockTime, Timestamp: timestamp}
	tx.ID = tx.computeTxID()
	return tx
}

func (tx *TimelockTx) hashContent() map[string]interface{} {
	return map[string]interface{}{
		"sender":      tx.Sender,
		"recipient":   tx.Recipient,
		"amount":      tx.Amount,
		"unlock_time": tx.UnlockTime,
		"timestamp":   tx.Timestamp,
		"type":        string(TxTimelock),
	}
}

func (tx *TimelockTx) computeTxID() string {
	enc, err := canonicalEncode(tx.hashContent())
	if err != nil {
		return ""
	}
	return sha256Hex(enc)
}

func (tx *TimelockTx) signingContent() map[string]interface{} {
	c := tx.hashContent()
	c["txid"] = tx.ID
	return c
}

// Sign authorizes the transfer on behalf of w, which must be the sender.
func (tx *TimelockTx) Sign(w *Wallet) error {
	if w.Address != tx.Sender {
		return ErrWrongSigner
	}
	sig, err := w.Sign(tx.signingContent())
	if err != nil {
		return fmt.Errorf("core: sign timelock tx: %w", err)
	}
	tx.Signature = sig
	tx.PublicKey = w.PublicKeyPEM
	return nil
}

func (tx *TimelockTx) TxID() string { return tx.ID }

// Verify reports whether tx carries a valid signature AND is already
// unlocked as of ReferenceTime. A well-signed transaction that simply
// hasn't reached UnlockTime yet still verifies false.
func (tx *TimelockTx) Verify() bool {
	if tx.Signature == "" || tx.PublicKey == "" {
		return false
	}
	if tx.ReferenceTime < tx.UnlockTime {
		return false
	}
	return VerifySignature(tx.signingContent(), tx.Signature, tx.PublicKey)
}

// Validate rejects the transaction while ReferenceTime is still before
// UnlockTime. ReferenceTime is set by the chain engine to the timestamp of
// the block that would carry this transaction (or wall-clock time for
// mempool admission checks) before Validate is called.
func (tx *TimelockTx) Validate(state State, _ Contracts, _ float64) error {
	if tx.Amount <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, tx.Amount)
	}
	if tx.ReferenceTime < tx.UnlockTime {
		return fmt.Errorf("%w: unlocks at %d, reference time %d", ErrTimeLocked, tx.UnlockTime, tx.ReferenceTime)
	}
	if !tx.Verify() {
		return ErrInvalidSignature
	}
	if balance, ok := state[tx.Sender]; !ok || balance < tx.Amount {
		return fmt.Errorf("%w: %s has %v, needs %v", ErrInsufficientBalance, tx.Sender, state[tx.Sender], tx.Amount)
	}
	return nil
}

// SetReferenceTime is called by the chain engine before Validate to supply
// the point in time against which UnlockTime is checked. It does not
// affect TxID or the signed content.
func (tx *TimelockTx) SetReferenceTime(t int64) { tx.ReferenceTime = t }

func (tx *TimelockTx) Apply(state State, _ Contracts, _ float64) error {
	state[tx.Sender] -= tx.Amount
	state[tx.Recipient] += tx.Amount
	return nil
}
