// Package policyproof reconstructs a Safe's owner list, threshold,
// nonce, modules, guard and fallback handler from a witnessed MPT
// account + storage proof, independent of the generator's claimed
// decodedPolicy. A failure here is local: it never blocks the
// signature or hash checks, since it verifies a different claim.
package policyproof

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safelens/safelens/pkg/mpt"
	"github.com/safelens/safelens/pkg/reason"
	"github.com/safelens/safelens/pkg/schema"
)

// maxOwnersWalked bounds the owners linked-list walk so a malicious or
// malformed proof cannot force an unbounded loop; real Safes have at
// most a few dozen owners.
const maxOwnersWalked = 256

// Policy is the reconstructed Safe configuration.
type Policy struct {
	Owners          []common.Address
	Threshold       uint64
	Nonce           uint64
	Modules         []common.Address
	Guard           common.Address
	FallbackHandler common.Address
	Singleton       common.Address
}

// Result is the outcome of walking a policy proof.
type Result struct {
	Valid      bool
	Policy     *Policy
	Reason     reason.Code
	Mismatches []string // first-field mismatches vs the claimed decodedPolicy
}

// storageLookup resolves a slot key to its witnessed 32-byte word from
// the package's flat storageProof list, verifying the MPT proof for
// each slot the first time it is requested.
type storageLookup struct {
	storageRoot common.Hash
	pending     map[common.Hash][][]byte
	verified    map[common.Hash][32]byte
}

func (l *storageLookup) get(slot common.Hash) ([32]byte, error) {
	if word, ok := l.verified[slot]; ok {
		return word, nil
	}
	nodes, ok := l.pending[slot]
	if !ok {
		return [32]byte{}, fmt.Errorf("no storage proof supplied for slot %s", slot.Hex())
	}
	decoded, err := mpt.VerifyStorageProof(l.storageRoot, slot, nodes)
	if err != nil {
		return [32]byte{}, err
	}
	word := mpt.StorageWord(decoded)
	l.verified[slot] = word
	return word, nil
}

// Verify reconstructs the Safe's configuration from an onchain policy
// proof: verifies the account proof, then walks the owners and modules
// linked lists and reads threshold/nonce/guard/fallback-handler from
// their fixed slots, cross-checking each against the generator's
// decodedPolicy claim.
func Verify(proof *schema.OnchainPolicyProof, safeAddress schema.Address) Result {
	stateRoot := common.Hash(proof.StateRoot)
	addr := common.Address(safeAddress)

	accountNodes := make([][]byte, len(proof.AccountNodes))
	for i, n := range proof.AccountNodes {
		accountNodes[i] = n
	}
	account, err := mpt.VerifyAccountProof(stateRoot, addr, accountNodes)
	if err != nil {
		return Result{Valid: false, Reason: reason.ErrPolicyProofInvalid, Mismatches: []string{err.Error()}}
	}

	lookup := &storageLookup{storageRoot: account.Root, verified: make(map[common.Hash][32]byte)}
	lookup.pending = make(map[common.Hash][][]byte)
	for _, e := range proof.StorageProof {
		var key common.Hash
		copy(key[:], e.Key[:])
		nodes := make([][]byte, len(e.Nodes))
		for i, n := range e.Nodes {
			nodes[i] = n
		}
		lookup.pending[key] = nodes
	}
	suppliedSlots := len(lookup.pending)

	policy := &Policy{}
	var mismatches []string

	owners, err := walkLinkedList(lookup, StandardLayout.OwnersMappingSlot, maxOwnersWalked)
	if err != nil {
		return Result{Valid: false, Reason: reason.ErrPolicyProofInvalid, Mismatches: []string{fmt.Sprintf("owners: %v", err)}}
	}
	policy.Owners = owners

	modules, err := walkLinkedList(lookup, StandardLayout.ModulesMappingSlot, maxOwnersWalked)
	if err != nil {
		return Result{Valid: false, Reason: reason.ErrPolicyProofInvalid, Mismatches: []string{fmt.Sprintf("modules: %v", err)}}
	}
	policy.Modules = modules

	thresholdWord, err := lookup.get(slotHash(StandardLayout.ThresholdSlot))
	if err != nil {
		return Result{Valid: false, Reason: reason.ErrPolicyProofInvalid, Mismatches: []string{err.Error()}}
	}
	policy.Threshold = new(big.Int).SetBytes(thresholdWord[:]).Uint64()

	nonceWord, err := lookup.get(slotHash(StandardLayout.NonceSlot))
	if err != nil {
		return Result{Valid: false, Reason: reason.ErrPolicyProofInvalid, Mismatches: []string{err.Error()}}
	}
	policy.Nonce = new(big.Int).SetBytes(nonceWord[:]).Uint64()

	guardWord, err := lookup.get(StandardLayout.GuardStorageSlot)
	if err != nil {
		return Result{Valid: false, Reason: reason.ErrPolicyProofInvalid, Mismatches: []string{err.Error()}}
	}
	copy(policy.Guard[:], guardWord[12:32])

	fallbackWord, err := lookup.get(slotHash(StandardLayout.FallbackHandlerSlot))
	if err != nil {
		return Result{Valid: false, Reason: reason.ErrPolicyProofInvalid, Mismatches: []string{err.Error()}}
	}
	copy(policy.FallbackHandler[:], fallbackWord[12:32])

	singletonWord, err := lookup.get(slotHash(StandardLayout.SingletonSlot))
	if err != nil {
		return Result{Valid: false, Reason: reason.ErrPolicyProofInvalid, Mismatches: []string{err.Error()}}
	}
	copy(policy.Singleton[:], singletonWord[12:32])

	if len(lookup.verified) != suppliedSlots {
		return Result{
			Valid:      false,
			Reason:     reason.ErrPolicyProofInvalid,
			Mismatches: []string{"storageProof contains a slot not required to reconstruct the Safe's configuration"},
		}
	}

	if cmp := compareToDecoded(policy, proof.DecodedPolicy); len(cmp) > 0 {
		mismatches = append(mismatches, cmp...)
	}

	return Result{Valid: len(mismatches) == 0, Policy: policy, Mismatches: mismatches}
}

func slotHash(slot uint64) common.Hash {
	var h common.Hash
	h.SetBytes(new(big.Int).SetUint64(slot).Bytes())
	return h
}

// walkLinkedList reconstructs a Safe owners/modules mapping-backed
// linked list starting from the sentinel, stopping at the sentinel
// again or at maxSteps, whichever comes first. A list that never
// returns to the sentinel (or a list that cycles through the same
// non-sentinel entries) is reported as an error rather than silently
// truncated.
func walkLinkedList(lookup *storageLookup, mappingSlot uint64, maxSteps int) ([]common.Address, error) {
	seen := map[common.Address]bool{}
	var result []common.Address

	current := SentinelAddress()
	for i := 0; i < maxSteps; i++ {
		slot := LinkedListSlot(mappingSlot, current)
		word, err := lookup.get(slot)
		if err != nil {
			return nil, err
		}
		var next common.Address
		copy(next[:], word[12:32])

		if next == (common.Address{}) {
			return nil, fmt.Errorf("linked list terminated without returning to the sentinel")
		}
		if next == SentinelAddress() {
			return result, nil
		}
		if seen[next] {
			return nil, fmt.Errorf("linked list cycle detected at %s", next.Hex())
		}
		seen[next] = true
		result = append(result, next)
		current = next
	}
	return nil, fmt.Errorf("linked list exceeded %d entries without terminating", maxSteps)
}

func compareToDecoded(policy *Policy, decoded schema.DecodedPolicy) []string {
	var mismatches []string
	if uint64(len(decoded.Owners)) != uint64(len(policy.Owners)) {
		mismatches = append(mismatches, "owners: count mismatch")
	} else {
		for i, o := range decoded.Owners {
			if common.Address(o) != policy.Owners[i] {
				mismatches = append(mismatches, fmt.Sprintf("owners[%d]: mismatch", i))
				break
			}
		}
	}
	if uint64(len(decoded.Modules)) != uint64(len(policy.Modules)) {
		mismatches = append(mismatches, "modules: count mismatch")
	} else {
		for i, m := range decoded.Modules {
			if common.Address(m) != policy.Modules[i] {
				mismatches = append(mismatches, fmt.Sprintf("modules[%d]: mismatch", i))
				break
			}
		}
	}
	if decoded.Threshold != policy.Threshold {
		mismatches = append(mismatches, "threshold: mismatch")
	}
	if decoded.Nonce.Uint64() != policy.Nonce {
		mismatches = append(mismatches, "nonce: mismatch")
	}
	if common.Address(decoded.Guard) != policy.Guard {
		mismatches = append(mismatches, "guard: mismatch")
	}
	if common.Address(decoded.FallbackHandler) != policy.FallbackHandler {
		mismatches = append(mismatches, "fallbackHandler: mismatch")
	}
	if common.Address(decoded.Singleton) != policy.Singleton {
		mismatches = append(mismatches, "singleton: mismatch")
	}
	return mismatches
}
