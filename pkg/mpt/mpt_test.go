package mpt

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestVerifyAccountProofRejectsEmptyNode(t *testing.T) {
	_, err := VerifyAccountProof(common.Hash{}, common.Address{}, [][]byte{{}})
	if err == nil {
		t.Fatal("expected error for an empty proof node")
	}
}

func TestVerifyAccountProofRejectsWrongRoot(t *testing.T) {
	// A single arbitrary node can never satisfy an unrelated root hash.
	node := []byte{0xc0}
	_, err := VerifyAccountProof(common.Hash{0x01}, common.Address{0x02}, [][]byte{node})
	if err == nil {
		t.Fatal("expected verification failure against an unrelated root")
	}
}

func TestStorageWordPadsShortValues(t *testing.T) {
	word := StorageWord([]byte{0x01, 0x02})
	for i := 0; i < 30; i++ {
		if word[i] != 0 {
			t.Fatalf("expected leading zero padding, got %x", word)
		}
	}
	if word[30] != 0x01 || word[31] != 0x02 {
		t.Fatalf("expected trailing bytes preserved, got %x", word)
	}
}

func TestStorageWordTruncatesOverlongValues(t *testing.T) {
	long := make([]byte, 40)
	long[39] = 0xff
	word := StorageWord(long)
	if word[31] != 0xff {
		t.Fatalf("expected last byte preserved after truncation, got %x", word)
	}
}
