package beacon

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/safelens/safelens/pkg/merkle"
	"github.com/safelens/safelens/pkg/schema"
)

// merkleize combines leaves pairwise, right-padding with zero roots to
// the next power of two, the SSZ container merkleization rule. It is
// the one place this package performs a plain binary hash, shared by
// every hash_tree_root below; everything else builds on it.
func merkleize(leaves []merkle.Root) merkle.Root {
	n := 1
	for n < len(leaves) {
		n *= 2
	}
	padded := make([]merkle.Root, n)
	copy(padded, leaves)

	for len(padded) > 1 {
		next := make([]merkle.Root, len(padded)/2)
		for i := range next {
			next[i] = hashPair(padded[2*i], padded[2*i+1])
		}
		padded = next
	}
	return padded[0]
}

func hashPair(left, right merkle.Root) merkle.Root {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	var out merkle.Root
	copy(out[:], h.Sum(nil))
	return out
}

func uint64Leaf(v uint64) merkle.Root {
	var leaf merkle.Root
	binary.LittleEndian.PutUint64(leaf[:8], v)
	return leaf
}

func hashRoot(h schema.Hash) merkle.Root {
	var r merkle.Root
	copy(r[:], h[:])
	return r
}

// headerRoot computes the SSZ hash_tree_root of a BeaconBlockHeader,
// a 5-field container merkleized over 8 padded leaves.
func headerRoot(h schema.BeaconHeader) merkle.Root {
	leaves := []merkle.Root{
		uint64Leaf(h.Slot),
		uint64Leaf(h.ProposerIndex),
		hashRoot(h.ParentRoot),
		hashRoot(h.StateRoot),
		hashRoot(h.BodyRoot),
	}
	return merkleize(leaves)
}

// forkDataRoot computes hash_tree_root(ForkData{current_version,
// genesis_validators_root}), a 2-field container.
func forkDataRoot(forkVersion [4]byte, genesisValidatorsRoot [32]byte) merkle.Root {
	var versionLeaf merkle.Root
	copy(versionLeaf[:4], forkVersion[:])
	var gvrLeaf merkle.Root
	copy(gvrLeaf[:], genesisValidatorsRoot[:])
	return merkleize([]merkle.Root{versionLeaf, gvrLeaf})
}

// computeDomain builds a BLS signing domain: the 4-byte domain type
// followed by the first 28 bytes of the fork data root.
func computeDomain(domainType [4]byte, forkVersion [4]byte, genesisValidatorsRoot [32]byte) [32]byte {
	fdr := forkDataRoot(forkVersion, genesisValidatorsRoot)
	var domain [32]byte
	copy(domain[:4], domainType[:])
	copy(domain[4:], fdr[:28])
	return domain
}

// signingRoot computes hash_tree_root(SigningData{object_root, domain}),
// the message a sync committee actually signs.
func signingRoot(objectRoot merkle.Root, domain [32]byte) merkle.Root {
	var domainLeaf merkle.Root
	copy(domainLeaf[:], domain[:])
	return merkleize([]merkle.Root{objectRoot, domainLeaf})
}
