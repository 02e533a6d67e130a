// Package mpt verifies Ethereum Merkle-Patricia-Trie account and
// storage proofs against a pinned state root. It is the single place
// SafeLens decodes trie nodes, shared by the policy-proof verifier
// (C5) and the simulation-replay witness check (C7) so both walk the
// exact same trie implementation.
package mpt

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
)

// Account is the decoded subset of a state trie leaf SafeLens needs.
type Account struct {
	Nonce    uint64
	Balance  *big.Int
	Root     common.Hash
	CodeHash []byte
}

type rlpAccount struct {
	Nonce    uint64
	Balance  *big.Int
	Root     common.Hash
	CodeHash []byte
}

// proofDB loads a flat list of RLP-encoded trie nodes into an
// in-memory keccak256(node)->node store, the shape trie.VerifyProof
// expects as its proof database.
func proofDB(nodes [][]byte) (*memorydb.Database, error) {
	db := memorydb.New()
	for i, node := range nodes {
		if len(node) == 0 {
			return nil, fmt.Errorf("proof node %d is empty", i)
		}
		if err := db.Put(crypto.Keccak256(node), node); err != nil {
			return nil, fmt.Errorf("proof node %d: %w", i, err)
		}
	}
	return db, nil
}

// VerifyAccountProof verifies address's account entry under stateRoot,
// given the account's MPT proof nodes. It returns the decoded account so the caller can continue into the account's
// storage trie.
func VerifyAccountProof(stateRoot common.Hash, address common.Address, nodes [][]byte) (*Account, error) {
	db, err := proofDB(nodes)
	if err != nil {
		return nil, err
	}
	key := crypto.Keccak256(address.Bytes())

	value, err := trie.VerifyProof(stateRoot, key, db)
	if err != nil {
		return nil, fmt.Errorf("account proof verification failed: %w", err)
	}
	if value == nil {
		return nil, fmt.Errorf("account proof proves non-existence of %s", address.Hex())
	}

	var acc rlpAccount
	if err := rlp.DecodeBytes(value, &acc); err != nil {
		return nil, fmt.Errorf("decode account RLP: %w", err)
	}
	return &Account{Nonce: acc.Nonce, Balance: acc.Balance, Root: acc.Root, CodeHash: acc.CodeHash}, nil
}

// VerifyStorageProof verifies that storage slot key resolves to value
// under storageRoot (the Root field of a previously verified Account).
// An empty value is a valid proof of a slot holding the zero word.
func VerifyStorageProof(storageRoot common.Hash, slotKey common.Hash, nodes [][]byte) ([]byte, error) {
	db, err := proofDB(nodes)
	if err != nil {
		return nil, err
	}
	key := crypto.Keccak256(slotKey.Bytes())

	value, err := trie.VerifyProof(storageRoot, key, db)
	if err != nil {
		return nil, fmt.Errorf("storage proof verification failed for slot %s: %w", slotKey.Hex(), err)
	}
	if value == nil {
		return []byte{}, nil
	}

	var decoded []byte
	if err := rlp.DecodeBytes(value, &decoded); err != nil {
		return nil, fmt.Errorf("decode storage value RLP: %w", err)
	}
	return decoded, nil
}

// StorageWord left-pads an RLP-decoded storage value to a full 32-byte
// word, the shape every storage-slot layout reader expects.
func StorageWord(decoded []byte) [32]byte {
	var word [32]byte
	if len(decoded) > 32 {
		decoded = decoded[len(decoded)-32:]
	}
	copy(word[32-len(decoded):], decoded)
	return word
}
