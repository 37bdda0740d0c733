package core

import "fmt"

// ContractDeployTx publishes a new contract at a deterministic address
// derived from the creator, code, and deploy timestamp. The network fee is
// always burned on deployment; InitialValue, if positive, seeds the
// contract's internal balance out of the creator's account.
type ContractDeployTx struct {
	Creator      Address `json:"creator"`
	Code         string  `json:"code"`
	InitialValue float64 `json:"initial_value"`
	Timestamp    int64   `json:"timestamp"`
	ID           string  `json:"txid"`
	PublicKey    string  `json:"public_key,omitempty"`
	Signature    string  `json:"signature,omitempty"`

	// address is the deterministic deployment address, computed once in
	// NewContractDeployTx and reused by Apply.
	address Address
}

// NewContractDeployTx builds an unsigned contract-deployment transaction.
func NewContractDeployTx(creator Address, code string, initialValue float64, timestamp int64) *ContractDeployTx {
	tx := &ContractDeployTx{Creator: creator, Code: code, InitialValue: initialValue, Timestamp: timestamp}
	tx.address = contractAddress(creator, code, timestamp)
	tx.ID = tx.computeTxID()
	return tx
}

// ContractAddress returns the address the contract will be deployed to.
func (tx *ContractDeployTx) ContractAddress() Address { return tx.address }

func (tx *ContractDeployTx) hashContent() map[string]interface{} {
	return map[string]interface{}{
		"creator":       tx.Creator,
		"code":          tx.Code,
		"initial_value": tx.InitialValue,
		"timestamp":     tx.Timestamp,
		"type":          string(TxContractDeploy),
	}
}

func (tx *ContractDeployTx) computeTxID() string {
	enc, err := canonicalEncode(tx.hashContent())
	if err != nil {
		return ""
	}
	return sha256Hex(enc)
}

func (tx *ContractDeployTx) signingContent() map[string]interface{} {
	c := tx.hashContent()
	c["txid"] = tx.ID
	return c
}

func (tx *ContractDeployTx) Sign(w *Wallet) error {
	if w.Address != tx.Creator {
		return ErrWrongSigner
	}
	sig, err := w.Sign(tx.signingContent())
	if err != nil {
		return fmt.Errorf("core: sign contract_deploy tx: %w", err)
	}
	tx.Signature = sig
	tx.PublicKey = w.PublicKeyPEM
	return nil
}

func (tx *ContractDeployTx) TxID() string { return tx.ID }

func (tx *ContractDeployTx) Verify() bool {
	if tx.Signature == "" || tx.PublicKey == "" {
		return false
	}
	return VerifySignature(tx.signingContent(), tx.Signature, tx.PublicKey)
}

func (tx *ContractDeployTx) Validate(state State, contracts Contracts, fee float64) error {
	if tx.Code == "" {
		return fmt.Errorf("%w: contract code must not be empty", ErrMalformedTransaction)
	}
	if tx.InitialValue < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, tx.InitialValue)
	}
	if !tx.Verify() {
		return ErrInvalidSignature
	}
	addr := tx.ContractAddress()
	if _, exists := contracts[addr]; exists {
		return fmt.Errorf("%w: %s", ErrContractExists, addr)
	}
	totalCost := tx.InitialValue + fee
	if balance, ok := state[tx.Creator]; !ok || balance < totalCost {
		return fmt.Errorf("%w: %s has %v, needs %v", ErrInsufficientBalance, tx.Creator, state[tx.Creator], totalCost)
	}
	return nil
}

// Apply registers the contract, burns the network fee, and — if
// InitialValue is positive — moves it from the creator into the contract's
// balance.
func (tx *ContractDeployTx) Apply(state State, contracts Contracts, fee float64) error {
	addr := tx.ContractAddress()
	contract := &Contract{
		Address:   addr,
		Creator:   tx.Creator,
		Code:      tx.Code,
		State:     make(map[string]interface{}),
		Balance:   0,
		CreatedAt: tx.Timestamp,
	}
	contracts[addr] = contract

	state[tx.Creator] -= fee
	if tx.InitialValue > 0 {
		state[tx.Creator] -= tx.InitialValue
		contract.Balance = tx.InitialValue
	}
	return nil
}

// ContractCallTx invokes fn on an already-deployed contract. Value plus the
// network fee are debited from Caller up front; the fee is burned, and
// Value is handed to the VM as the call's attached amount.
type ContractCallTx struct {
	Caller          Address                `json:"caller"`
	ContractAddress Address                `json:"contract_address"`
	Function        string                 `json:"function"`
	Params          map[string]interface{} `json:"params,omitempty"`
	Value           float64                `json:"value"`
	Timestamp       int64                  `json:"timestamp"`
	ID              string                 `json:"txid"`
	PublicKey       string                 `json:"public_key,omitempty"`
	Signature       string                 `json:"signature,omitempty"`
}

// NewContractCallTx builds an unsigned contract invocation.
func NewContractCallTx(caller, contract Address, fn string, params map[string]interface{}, value float64, timestamp int64) *ContractCallTx {
	tx := &ContractCallTx{
		Caller:          caller,
		ContractAddress: contract,
		Function:        fn,
		Params:          params,
		Value:           value,
		Timestamp:       timestamp,
	}
	tx.ID = tx.computeTxID()
	return tx
}

func (tx *ContractCallTx) hashContent() map[string]interface{} {
	params := tx.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	return map[string]interface{}{
		"caller":           tx.Caller,
		"contract_address": tx.ContractAddress,
		"function":         tx.Function,
		"params":           params,
		"value":            tx.Value,
		"timestamp":        tx.Timestamp,
		"type":             string(TxContractCall),
	}
}

func (tx *ContractCallTx) computeTxID() string {
	enc, err := canonicalEncode(tx.hashContent())
	if err != nil {
		return ""
	}
	return sha256Hex(enc)
}

func (tx *ContractCallTx) signingContent() map[string]interface{} {
	c := tx.hashContent()
	c["txid"] = tx.ID
	return c
}

func (tx *ContractCallTx) Sign(w *Wallet) error {
	if w.Address != tx.Caller {
		return ErrWrongSigner
	}
	sig, err := w.Sign(tx.signingContent())
	if err != nil {
		return fmt.Errorf("core: sign contract_call tx: %w", err)
	}
	tx.Signature = sig
	tx.PublicKey = w.PublicKeyPEM
	return nil
}

func (tx *ContractCallTx) TxID() string { return tx.ID }

func (tx *ContractCallTx) Verify() bool {
	if tx.Signature == "" || tx.PublicKey == "" {
		return false
	}
	return VerifySignature(tx.signingContent(), tx.Signature, tx.PublicKey)
}

func (tx *ContractCallTx) Validate(state State, contracts Contracts, fee float64) error {
	if tx.Value < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, tx.Value)
	}
	if !tx.Verify() {
		return ErrInvalidSignature
	}
	if _, ok := contracts[tx.ContractAddress]; !ok {
		return fmt.Errorf("%w: %s", ErrContractNotFound, tx.ContractAddress)
	}
	totalCost := tx.Value + fee
	if balance, ok := state[tx.Caller]; !ok || balance < totalCost {
		return fmt.Errorf("%w: %s has %v, needs %v", ErrInsufficientBalance, tx.Caller, state[tx.Caller], totalCost)
	}
	return nil
}

// Apply invokes the VM, burns the fee, debits Value from Caller
// unconditionally (an attached payment is not refunded on a failed call),
// and applies any Transfer the VM reports to the external ledger.
func (tx *ContractCallTx) Apply(state State, contracts Contracts, fee float64) error {
	contract, ok := contracts[tx.ContractAddress]
	if !ok {
		return fmt.Errorf("%w: %s", ErrContractNotFound, tx.ContractAddress)
	}
	vm := NewVM()
	result := vm.Execute(contract, tx.Function, tx.Params, tx.Caller, tx.Value)

	state[tx.Caller] -= tx.Value + fee

	if result.Success && result.Transfer != nil {
		state[result.Transfer.To] += result.Transfer.Amount
	}
	return nil
}
