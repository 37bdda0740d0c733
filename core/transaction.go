package core

import "fmt"

// TxKind discriminates the transaction variants. The chain engine never
// probes a transaction's shape — it always switches on Kind through the
// txPayload interface.
type TxKind string

const (
	TxBasic          TxKind = "basic"
	TxMultisig       TxKind = "multisig"
	TxTimelock       TxKind = "timelock"
	TxContractDeploy TxKind = "contract_deploy"
	TxContractCall   TxKind = "contract_call"
	TxGenesis        TxKind = "genesis"
)

// txPayload is the shared interface every transaction variant implements.
// The chain engine is written entirely against this interface (see
// chain.go) and never against a concrete variant type.
type txPayload interface {
	TxID() string
	Verify() bool
	Validate(state State, contracts Contracts, fee float64) error
	Apply(state State, contracts Contracts, fee float64) error
}

// Transaction is the tagged sum over the five variants. Exactly one of the
// pointer fields matching Kind is populated; to_dict/from_dict round-trip
// is the struct's natural JSON marshaling since omitempty drops the unused
// variants.
type Transaction struct {
	Kind           TxKind                `json:"type"`
	Basic          *BasicTx              `json:"basic,omitempty"`
	Multisig       *MultisigTx           `json:"multisig,omitempty"`
	Timelock       *TimelockTx           `json:"timelock,omitempty"`
	ContractDeploy *ContractDeployTx     `json:"contract_deploy,omitempty"`
	ContractCall   *ContractCallTx       `json:"contract_call,omitempty"`
	Genesis        *GenesisTx            `json:"genesis,omitempty"`
}

// payload returns the populated variant as a txPayload, or nil if the
// Transaction is malformed (wrong Kind/field combination).
func (tx Transaction) payload() txPayload {
	switch tx.Kind {
	case TxBasic:
		if tx.Basic != nil {
			return tx.Basic
		}
	case TxMultisig:
		if tx.Multisig != nil {
			return tx.Multisig
		}
	case TxTimelock:
		if tx.Timelock != nil {
			return tx.Timelock
		}
	case TxContractDeploy:
		if tx.ContractDeploy != nil {
			return tx.ContractDeploy
		}
	case TxContractCall:
		if tx.ContractCall != nil {
			return tx.ContractCall
		}
	case TxGenesis:
		if tx.Genesis != nil {
			return tx.Genesis
		}
	}
	return nil
}

// TxID returns the transaction's content hash, or "" if malformed.
func (tx Transaction) TxID() string {
	p := tx.payload()
	if p == nil {
		return ""
	}
	return p.TxID()
}

// Verify checks the transaction's signature(s) per its variant's rules.
func (tx Transaction) Verify() bool {
	p := tx.payload()
	if p == nil {
		return false
	}
	return p.Verify()
}

// Validate checks admissibility against state/contracts without mutating
// them.
func (tx Transaction) Validate(state State, contracts Contracts, fee float64) error {
	p := tx.payload()
	if p == nil {
		return fmt.Errorf("%w: unknown or empty transaction kind %q", ErrMalformedTransaction, tx.Kind)
	}
	return p.Validate(state, contracts, fee)
}

// Apply mutates state/contracts to reflect the transaction. Callers must
// have already validated the transaction against the same state.
func (tx Transaction) Apply(state State, contracts Contracts, fee float64) error {
	p := tx.payload()
	if p == nil {
		return fmt.Errorf("%w: unknown or empty transaction kind %q", ErrMalformedTransaction, tx.Kind)
	}
	return p.Apply(state, contracts, fee)
}

// WrapBasic, WrapMultisig, ... build the tagged union around a concrete
// variant so callers never construct Transaction{} by hand.
func WrapBasic(t *BasicTx) Transaction          { return Transaction{Kind: TxBasic, Basic: t} }
func WrapMultisig(t *MultisigTx) Transaction    { return Transaction{Kind: TxMultisig, Multisig: t} }
func WrapTimelock(t *TimelockTx) Transaction    { return Transaction{Kind: TxTimelock, Timelock: t} }
func WrapContractDeploy(t *ContractDeployTx) Transaction {
	return Transaction{Kind: TxContractDeploy, ContractDeploy: t}
}
func WrapContractCall(t *ContractCallTx) Transaction {
	return Transaction{Kind: TxContractCall, ContractCall: t}
}
func WrapGenesis(t *GenesisTx) Transaction { return Transaction{Kind: TxGenesis, Genesis: t} }
