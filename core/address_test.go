package core

import "testing"

func TestAddressFromPubKeyPEMIsDeterministic(t *testing.T) {
	w, err := CreateWallet()
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	again := addressFromPubKeyPEM([]byte(w.PublicKeyPEM))
	if again != w.Address {
		t.Fatalf("expected deterministic address, got %s vs %s", again, w.Address)
	}
	if len(w.Address) != 20 {
		t.Fatalf("expected a 20-character address, got %d chars: %s", len(w.Address), w.Address)
	}
}

func TestContractAddressVariesWithEachInput(t *testing.T) {
	base := contractAddress("creator", "code", 1000)

	if got := contractAddress("other", "code", 1000); got == base {
		t.Fatal("expected a different creator to change the contract address")
	}
	if got := contractAddress("creator", "other", 1000); got == base {
		t.Fatal("expected different code to change the contract address")
	}
	if got := contractAddress("creator", "code", 2000); got == base {
		t.Fatal("expected a different timestamp to change the contract address")
	}
}
