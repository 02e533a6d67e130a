// Package merkle verifies SSZ-style Merkle branches against a
// generalized index, the proof shape the Ethereum consensus spec uses
// for every beacon light-client inclusion check: a sync committee
// inside a header's state root, a finalized header inside an attested
// header's state root, and so on. One implementation here backs every
// branch check pkg/consensus/beacon performs, mirroring how pkg/mpt is
// the single shared trie implementation for account and storage proofs.
package merkle

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// Root is a 32-byte SSZ hash-tree-root or Merkle node.
type Root [32]byte

// hashPair computes the parent of two sibling nodes: sha256(left || right).
func hashPair(left, right Root) Root {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	var out Root
	copy(out[:], h.Sum(nil))
	return out
}

// VerifyBranch checks that leaf, combined with branch, reconstructs
// root under the given generalized index. The generalized index
// encodes both the depth (its bit length minus one) and, bit by bit
// from the least significant side (leaf level first), whether the node
// is the left or right child at each level: a 0 bit means the proof
// node at that depth is the right sibling, a 1 bit means it is the
// left sibling.
//
// This is the single routine behind every Merkle branch check
// pkg/consensus/beacon performs (current/next sync committee,
// finalized header), so a bug fixed once is fixed for all of them.
func VerifyBranch(leaf Root, branch []Root, generalizedIndex uint64, root Root) error {
	depth := bitLength(generalizedIndex) - 1
	if depth < 0 {
		return errors.New("merkle: generalized index must be >= 1")
	}
	if len(branch) != depth {
		return fmt.Errorf("merkle: branch has %d nodes, want %d for index %d", len(branch), depth, generalizedIndex)
	}

	current := leaf
	index := generalizedIndex
	for _, sibling := range branch {
		if index&1 == 1 {
			current = hashPair(sibling, current)
		} else {
			current = hashPair(current, sibling)
		}
		index >>= 1
	}

	if current != root {
		return fmt.Errorf("merkle: branch does not reconstruct expected root: got %x, want %x", current, root)
	}
	return nil
}

func bitLength(v uint64) int {
	n := 0
	for v > 0 {
		n++
		v >>= 1
	}
	return n
}
