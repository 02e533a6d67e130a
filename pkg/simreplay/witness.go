package simreplay

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safelens/safelens/pkg/mpt"
	"github.com/safelens/safelens/pkg/schema"
)

// AnchoredWitness is a SimulationWitness after its account proof has
// been verified against its own claimed stateRoot, so the rest of the
// package can trust the balance/nonce/storage root it carries.
type AnchoredWitness struct {
	Account         *mpt.Account
	OverriddenSlots map[common.Hash]common.Hash
}

// Anchor verifies the witness's Safe account proof against its claimed
// state root. It does not verify the overridden slots against any
// proof -- those are declared inputs to the replay, not witnessed
// facts, exactly as a debug_traceCall-style storage override is.
func Anchor(witness *schema.SimulationWitness) (*AnchoredWitness, error) {
	nodes := make([][]byte, len(witness.SafeAccountNodes))
	for i, n := range witness.SafeAccountNodes {
		nodes[i] = n
	}
	account, err := mpt.VerifyAccountProof(common.Hash(witness.StateRoot), common.Address(witness.SafeAddress), nodes)
	if err != nil {
		return nil, fmt.Errorf("simreplay: witness account proof: %w", err)
	}

	overrides := make(map[common.Hash]common.Hash, len(witness.OverriddenSlots))
	for _, slot := range witness.OverriddenSlots {
		overrides[common.Hash(slot.Key)] = common.Hash(slot.Value)
	}

	return &AnchoredWitness{Account: account, OverriddenSlots: overrides}, nil
}
