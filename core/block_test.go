package core

import "testing"

func newSignedBasicTx(t *testing.T, from *Wallet, to Address, amount float64, ts int64) Transaction {
	t.Helper()
	tx := NewBasicTx(from.Address, to, amount, ts)
	if err := tx.Sign(from); err != nil {
		t.Fatalf("sign basic tx: %v", err)
	}
	return WrapBasic(tx)
}

func TestBlockValidateDetectsTampering(t *testing.T) {
	w1, _ := CreateWallet()
	w2, _ := CreateWallet()
	tx := newSignedBasicTx(t, w1, w2.Address, 1, 1000)
	block := NewBlock(1, []Transaction{tx}, 0, "prev", w1.Address, 1, 1000)

	if !block.Validate() {
		t.Fatal("expected freshly built block to validate")
	}

	block.Transactions[0].Basic.Amount = 999
	if block.Validate() {
		t.Fatal("expected tampered transaction list to invalidate the block")
	}
}

func TestCalculateMerkleRootOddWidthDuplicatesLast(t *testing.T) {
	w1, _ := CreateWallet()
	w2, _ := CreateWallet()
	txs := []Transaction{
		newSignedBasicTx(t, w1, w2.Address, 1, 1),
		newSignedBasicTx(t, w1, w2.Address, 2, 2),
		newSignedBasicTx(t, w1, w2.Address, 3, 3),
	}
	block := NewBlock(1, txs, 0, "prev", w1.Address, 1, 1000)
	if block.MerkleRoot == "" {
		t.Fatal("expected a non-empty merkle root")
	}

	// Three leaves: the third hash is paired with a copy of itself.
	h0, h1, h2 := transactionHash(txs[0]), transactionHash(txs[1]), transactionHash(txs[2])
	want := sha256Hex([]byte(sha256Hex([]byte(h0+h1)) + sha256Hex([]byte(h2+h2))))
	if block.MerkleRoot != want {
		t.Fatalf("expected odd-width merkle root %s, got %s", want, block.MerkleRoot)
	}

	// Reordering transactions must change the root: order is consensus-relevant.
	reordered := []Transaction{txs[2], txs[1], txs[0]}
	other := NewBlock(1, reordered, 0, "prev", w1.Address, 1, 1000)
	if other.MerkleRoot == block.MerkleRoot {
		t.Fatal("expected transaction order to affect the merkle root")
	}
}

func TestEmptyBlockMerkleRootIsHashOfEmpty(t *testing.T) {
	block := NewBlock(0, nil, 0, "0", "genesis", 1, 0)
	if block.MerkleRoot != sha256Hex(nil) {
		t.Fatalf("expected empty-transaction merkle root to be sha256(\"\"), got %s", block.MerkleRoot)
	}
}

func TestHashHexPrefix(t *testing.T) {
	var sum [32]byte
	sum[0] = 0x0f // hex "0f": exactly one leading zero hex digit
	if !hashHexPrefix(sum, 1) {
		t.Fatal("expected 1 leading hex zero to match")
	}
	if hashHexPrefix(sum, 2) {
		t.Fatal("expected 2 leading hex zeros not to match a digest starting \"0f\"")
	}
}
