package signature

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/safelens/safelens/pkg/reason"
	"github.com/safelens/safelens/pkg/schema"
)

func newOwner(t *testing.T) (*ecdsa.PrivateKey, schema.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var addr schema.Address
	copy(addr[:], crypto.PubkeyToAddress(key.PublicKey).Bytes())
	return key, addr
}

func signStandard(t *testing.T, key *ecdsa.PrivateKey, safeTxHash schema.Hash) schema.Bytes {
	t.Helper()
	sig, err := crypto.Sign(safeTxHash[:], key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig[64] += 27
	return schema.Bytes(sig)
}

func signEthSign(t *testing.T, key *ecdsa.PrivateKey, safeTxHash schema.Hash) schema.Bytes {
	t.Helper()
	digest := ethSignedDigest(safeTxHash)
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig[64] += 31
	return schema.Bytes(sig)
}

func TestVerifyStandardECDSA(t *testing.T) {
	key, owner := newOwner(t)
	safeTxHash := schema.Hash{0x01, 0x02, 0x03}

	confs := []schema.Confirmation{{Owner: owner, Signature: signStandard(t, key, safeTxHash)}}
	result := Verify(safeTxHash, confs, map[schema.Address]bool{owner: true}, nil)

	if !result.Outcomes[0].Valid {
		t.Fatalf("expected valid signature, got %+v", result.Outcomes[0])
	}
	if result.Outcomes[0].Scheme != reason.SigSchemeECDSA {
		t.Errorf("Scheme = %v, want ecdsa", result.Outcomes[0].Scheme)
	}
	if !result.HasProposer || result.Proposer != owner {
		t.Errorf("expected proposer = %v", owner)
	}
}

func TestVerifyEthSign(t *testing.T) {
	key, owner := newOwner(t)
	safeTxHash := schema.Hash{0xaa, 0xbb}

	confs := []schema.Confirmation{{Owner: owner, Signature: signEthSign(t, key, safeTxHash)}}
	result := Verify(safeTxHash, confs, map[schema.Address]bool{owner: true}, nil)

	if !result.Outcomes[0].Valid {
		t.Fatalf("expected valid eth_sign signature, got %+v", result.Outcomes[0])
	}
	if result.Outcomes[0].Scheme != reason.SigSchemeEthSign {
		t.Errorf("Scheme = %v, want eth-sign", result.Outcomes[0].Scheme)
	}
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	key, _ := newOwner(t)
	_, otherOwner := newOwner(t)
	safeTxHash := schema.Hash{0x01}

	confs := []schema.Confirmation{{Owner: otherOwner, Signature: signStandard(t, key, safeTxHash)}}
	result := Verify(safeTxHash, confs, map[schema.Address]bool{otherOwner: true}, nil)

	if result.Outcomes[0].Valid {
		t.Fatal("expected invalid signature when the recovered signer does not match the claimed owner")
	}
}

func TestVerifyRejectsHighS(t *testing.T) {
	key, owner := newOwner(t)
	safeTxHash := schema.Hash{0x01}
	sig := signStandard(t, key, safeTxHash)

	// Flip to the malleable high-s counterpart: s' = N - s, v' = v ^ 1.
	s := new(big.Int).SetBytes(sig[32:64])
	n := crypto.S256().Params().N
	sPrime := new(big.Int).Sub(n, s)
	sPrime.FillBytes(sig[32:64])
	if sig[64] == 27 {
		sig[64] = 28
	} else {
		sig[64] = 27
	}

	confs := []schema.Confirmation{{Owner: owner, Signature: sig}}
	result := Verify(safeTxHash, confs, map[schema.Address]bool{owner: true}, nil)

	if result.Outcomes[0].Valid {
		t.Fatal("expected high-s signature to be rejected as non-canonical")
	}
}

func TestVerifyPreApprovedHash(t *testing.T) {
	_, owner := newOwner(t)
	safeTxHash := schema.Hash{0x01}

	sig := make(schema.Bytes, 65)
	copy(sig[12:32], owner[:])
	sig[64] = 1

	confs := []schema.Confirmation{{Owner: owner, Signature: sig}}
	result := Verify(safeTxHash, confs, map[schema.Address]bool{owner: true}, map[schema.Address]bool{owner: true})

	if !result.Outcomes[0].Valid {
		t.Fatalf("expected pre-approved hash signature to be valid, got %+v", result.Outcomes[0])
	}

	resultNoApproval := Verify(safeTxHash, confs, map[schema.Address]bool{owner: true}, nil)
	if resultNoApproval.Outcomes[0].Valid {
		t.Fatal("expected pre-approved hash signature to be invalid without an approval record")
	}
}

func TestVerifyInvalidVByte(t *testing.T) {
	_, owner := newOwner(t)
	safeTxHash := schema.Hash{0x01}
	sig := make(schema.Bytes, 65)
	sig[64] = 99

	confs := []schema.Confirmation{{Owner: owner, Signature: sig}}
	result := Verify(safeTxHash, confs, nil, nil)
	if result.Outcomes[0].Valid || result.Outcomes[0].Reason != reason.ErrInvalidV {
		t.Fatalf("expected invalid-v, got %+v", result.Outcomes[0])
	}
}
