package core

import (
	"fmt"
	"sort"
)

// MultisigTx requires signatures from at least RequiredSignatures distinct
// addresses drawn from SenderAddresses.
//
// Application semantics: amount/len(sender_addresses) is deducted from
// EVERY listed sender address, not only the ones who actually signed. This
// is intentional and must be preserved rather than "fixed" — do not change
// it to deduct from signers only.
type MultisigTx struct {
	SenderAddresses    []Address         `json:"sender_addresses"`
	Recipient          Address           `json:"recipient"`
	Amount             float64           `json:"amount"`
	RequiredSignatures int               `json:"required_signatures"`
	Timestamp          int64             `json:"timestamp"`
	ID                 string            `json:"txid"`
	Signatures         map[Address]string `json:"signatures"`
	PublicKeys         map[Address]string `json:"public_keys"`
}

// NewMultisigTx builds an unsigned multisig transaction.
func NewMultisigTx(senders []Address, recipient Address, amount float64, required int, timestamp int64) *MultisigTx {
	tx := &MultisigTx{
		SenderAddresses:    append([]Address(nil), senders...),
		Recipient:          recipient,
		Amount:             amount,
		RequiredSignatures: required,
		Timestamp:          timestamp,
		Signatures:         make(map[Address]string),
		PublicKeys:         make(map[Address]string),
	}
	tx.ID = tx.computeTxID()
	return tx
}

func (tx *MultisigTx) sortedSenders() []string {
	out := make([]string, len(tx.SenderAddresses))
	for i, a := range tx.SenderAddresses {
		out[i] = string(a)
	}
	sort.Strings(out)
	return out
}

func (tx *MultisigTx) hashContent() map[string]interface{} {
	return map[string]interface{}{
		"sender_addresses":    tx.sortedSenders(),
		"recipient":           tx.Recipient,
		"amount":              tx.Amount,
		"timestamp":           tx.Timestamp,
		"required_signatures": tx.RequiredSignatures,
		"type":                string(TxMultisig),
	}
}

func (tx *MultisigTx) computeTxID() string {
	enc, err := canonicalEncode(tx.hashContent())
	if err != nil {
		return ""
	}
	return sha256Hex(enc)
}

func (tx *MultisigTx) signingContent() map[string]interface{} {
	c := tx.hashContent()
	c["txid"] = tx.ID
	return c
}

func (tx *MultisigTx) isSender(addr Address) bool {
	for _, s := range tx.SenderAddresses {
		if s == addr {
			return true
		}
	}
	return false
}

// AddSignature collects a signature from w, which must be one of
// SenderAddresses.
func (tx *MultisigTx) AddSignature(w *Wallet) error {
	if !tx.isSender(w.Address) {
		return ErrUnknownSender
	}
	sig, err := w.Sign(tx.signingContent())
	if err != nil {
		return fmt.Errorf("core: sign multisig tx: %w", err)
	}
	tx.Signatures[w.Address] = sig
	tx.PublicKeys[w.Address] = w.PublicKeyPEM
	return nil
}

func (tx *MultisigTx) TxID() string { return tx.ID }

// Verify is true iff at least RequiredSignatures distinct, listed senders
// have a valid signature over the canonical content.
func (tx *MultisigTx) Verify() bool {
	if len(tx.Signatures) < tx.RequiredSignatures {
		return false
	}
	content := tx.signingContent()
	valid := 0
	for addr, sig := range tx.Signatures {
		if !tx.isSender(addr) {
			continue
		}
		pub, ok := tx.PublicKeys[addr]
		if !ok {
			continue
		}
		if VerifySignature(content, sig, pub) {
			valid++
		}
	}
	return valid >= tx.RequiredSignatures
}

func (tx *MultisigTx) Validate(state State, _ Contracts, _ float64) error {
	if tx.Amount <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, tx.Amount)
	}
	if !tx.Verify() {
		return ErrInvalidSignature
	}
	var total float64
	for _, addr := range tx.SenderAddresses {
		total += state[addr]
	}
	if total < tx.Amount {
		return fmt.Errorf("%w: senders hold %v, need %v", ErrInsufficientBalance, total, tx.Amount)
	}
	return nil
}

// Apply deducts amount/len(sender_addresses) from every listed sender
// address, regardless of who actually signed — see the type doc comment.
func (tx *MultisigTx) Apply(state State, _ Contracts, _ float64) error {
	if len(tx.SenderAddresses) == 0 {
		return fmt.Errorf("%w: multisig has no sender addresses", ErrMalformedTransaction)
	}
	share := tx.Amount / float64(len(tx.SenderAddresses))
	for _, addr := range tx.SenderAddresses {
		state[addr] -= share
	}
	state[tx.Recipient] += tx.Amount
	return nil
}
