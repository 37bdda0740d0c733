package core

// Contract is an on-chain mutable key/value store with a fixed set of
// callable opcodes (see vm.go) and an internal balance. Contract state
// mutates only when a contract_call transaction is applied inside a
// committed block.
type Contract struct {
	Address   Address                `json:"address"`
	Creator   Address                `json:"creator"`
	Code      string                 `json:"code"`
	State     map[string]interface{} `json:"state"`
	Balance   float64                `json:"balance"`
	CreatedAt int64                  `json:"created_at"`
}

// clone returns a deep-enough copy for temp-state validation: the state map
// is copied so a rejected block never leaves partial mutations visible.
func (c *Contract) clone() *Contract {
	st := make(map[string]interface{}, len(c.State))
	for k, v := range c.State {
		st[k] = v
	}
	return &Contract{
		Address:   c.Address,
		Creator:   c.Creator,
		Code:      c.Code,
		State:     st,
		Balance:   c.Balance,
		CreatedAt: c.CreatedAt,
	}
}
