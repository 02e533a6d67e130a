package hashing

import (
	"testing"

	"github.com/safelens/safelens/pkg/schema"
)

func mustAddr(t *testing.T, hexStr string) schema.Address {
	t.Helper()
	data := []byte(`"` + hexStr + `"`)
	var a schema.Address
	if err := a.UnmarshalJSON(data); err != nil {
		t.Fatalf("address %q: %v", hexStr, err)
	}
	return a
}

func baseTx(t *testing.T) schema.SafeTransaction {
	return schema.SafeTransaction{
		To:             mustAddr(t, "0x1111111111111111111111111111111111111a"),
		Data:           schema.Bytes{0xde, 0xad, 0xbe, 0xef},
		GasToken:       mustAddr(t, "0x0000000000000000000000000000000000000000"),
		RefundReceiver: mustAddr(t, "0x0000000000000000000000000000000000000000"),
	}
}

func TestSafeTxHashDeterministic(t *testing.T) {
	safe := mustAddr(t, "0x2222222222222222222222222222222222222b")
	tx := baseTx(t)

	h1 := SafeTxHash(1, safe, tx)
	h2 := SafeTxHash(1, safe, tx)
	if h1 != h2 {
		t.Fatalf("SafeTxHash is not deterministic: %x != %x", h1, h2)
	}
}

func TestSafeTxHashChangesOnSingleByteFlip(t *testing.T) {
	safe := mustAddr(t, "0x2222222222222222222222222222222222222b")
	tx := baseTx(t)
	before := SafeTxHash(1, safe, tx)

	tx.Data[0] ^= 0x01
	after := SafeTxHash(1, safe, tx)

	if before == after {
		t.Fatal("flipping one data byte did not change the hash")
	}
}

func TestSafeTxHashChangesOnChainID(t *testing.T) {
	safe := mustAddr(t, "0x2222222222222222222222222222222222222b")
	tx := baseTx(t)

	h1 := SafeTxHash(1, safe, tx)
	h137 := SafeTxHash(137, safe, tx)
	if h1 == h137 {
		t.Fatal("chainId must be part of the domain separator")
	}
}

func TestVerifyDetectsMismatch(t *testing.T) {
	safe := mustAddr(t, "0x2222222222222222222222222222222222222b")
	tx := baseTx(t)
	pkg := &schema.EvidencePackage{
		ChainID:     1,
		SafeAddress: safe,
		Transaction: tx,
		SafeTxHash:  schema.Hash{0xff}, // deliberately wrong
	}

	result := Verify(pkg)
	if result.Match {
		t.Fatal("expected Match=false for a deliberately wrong claimed hash")
	}

	pkg.SafeTxHash = result.Computed
	result = Verify(pkg)
	if !result.Match {
		t.Fatal("expected Match=true once claimed hash equals the recomputed hash")
	}
}
