package core

import (
	"errors"
	"testing"
)

func TestGenesisTxAppliesCredit(t *testing.T) {
	recipient := Address("genesis-addr")
	tx := NewGenesisTx(recipient, 1000, 0)
	if !tx.Verify() {
		t.Fatal("expected a genesis transaction to always verify")
	}
	state := State{}
	if err := tx.Validate(state, nil, 0); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := tx.Apply(state, nil, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if state[recipient] != 1000 {
		t.Fatalf("expected recipient credited 1000, got %v", state[recipient])
	}
}

func TestGenesisTxApplyRejectsNonPositiveAmount(t *testing.T) {
	tx := NewGenesisTx("addr", 0, 0)
	if err := tx.Apply(State{}, nil, 0); !errors.Is(err, ErrInvalidGenesis) {
		t.Fatalf("expected ErrInvalidGenesis, got %v", err)
	}
}
