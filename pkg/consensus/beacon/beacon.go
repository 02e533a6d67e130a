// Package beacon verifies Ethereum beacon-chain light-client proofs:
// a bootstrap's current sync committee, a chain of sync-committee
// updates, and a finality update whose finalized header is checked
// against the attested header's state root. The execution state root
// and block number it reports are the proof's claimed values: no
// execution-payload branch is checked, so they are not bound to the
// finalized header. It never talks to a beacon node; every check is
// against data already packaged into a schema.BeaconConsensusProof.
package beacon

import (
	"context"
	"fmt"

	"github.com/safelens/safelens/pkg/crypto/bls"
	"github.com/safelens/safelens/pkg/merkle"
	"github.com/safelens/safelens/pkg/reason"
	"github.com/safelens/safelens/pkg/schema"
)

// Generalized indices of BeaconState fields, fixed by the Altair SSZ
// container layout and never expected to change.
const (
	currentSyncCommitteeGIndex = 54
	nextSyncCommitteeGIndex    = 55
	finalizedRootGIndex        = 105
)

// domainSyncCommittee is the Altair BLS signing domain type.
var domainSyncCommittee = [4]byte{0x07, 0x00, 0x00, 0x00}

// syncCommitteeSize is the fixed sync committee membership count.
const syncCommitteeSize = 512

// minParticipationNumerator/Denominator enforce the >= 2/3 committee
// bit participation threshold the light client sync protocol requires
// before trusting an attested header.
const (
	minParticipationNumerator   = 2
	minParticipationDenominator = 3
)

// NetworkParams pins the two values needed to compute a sync-committee
// signing domain for a given network; pkg/config owns the table
// mapping network name to these, since they are operator-configurable
// rather than a verification-time decision.
type NetworkParams struct {
	GenesisValidatorsRoot [32]byte
	ForkVersion           [4]byte
}

// Result is the outcome of verifying a beacon consensus proof.
type Result struct {
	Valid               bool
	Reason              reason.Code
	VerifiedStateRoot   schema.Hash
	VerifiedBlockNumber uint64
}

// Verify runs the full bootstrap -> updates -> finality-update chain
// and, on success, returns proof.ClaimedStateRoot and
// proof.ClaimedBlockNumber. Those two values are not checked against
// the finalized header's execution payload; a zero claimed state root
// fails with ErrMissingExecutionPayload.
func Verify(ctx context.Context, proof *schema.BeaconConsensusProof, params NetworkParams) Result {
	committee, err := verifyBootstrap(proof.Bootstrap)
	if err != nil {
		return Result{Valid: false, Reason: reason.ErrBootstrapVerificationFailed}
	}
	currentPeriod := syncCommitteePeriod(proof.Bootstrap.Header.Slot)

	for _, update := range proof.Updates {
		if ctx.Err() != nil {
			return Result{Valid: false, Reason: reason.Cancelled}
		}
		updatePeriod := syncCommitteePeriod(update.AttestedHeader.Slot)
		switch updatePeriod {
		case currentPeriod:
			// Same-period update: verify against the active committee only.
		case currentPeriod + 1:
			if update.NextSyncCommittee == nil || len(update.NextSyncCommitteeBranch) == 0 {
				return Result{Valid: false, Reason: reason.ErrUpdateVerificationFailed}
			}
			if err := verifySyncCommitteeBranch(*update.NextSyncCommittee, update.AttestedHeader.StateRoot, update.NextSyncCommitteeBranch, nextSyncCommitteeGIndex); err != nil {
				return Result{Valid: false, Reason: reason.ErrUpdateVerificationFailed}
			}
		default:
			return Result{Valid: false, Reason: reason.ErrUpdateVerificationFailed}
		}

		if err := verifySyncAggregate(committee, update.AttestedHeader, update.SyncAggregate, params); err != nil {
			return Result{Valid: false, Reason: reason.ErrUpdateVerificationFailed}
		}

		if updatePeriod == currentPeriod+1 {
			committee = *update.NextSyncCommittee
			currentPeriod = updatePeriod
		}
	}

	if ctx.Err() != nil {
		return Result{Valid: false, Reason: reason.Cancelled}
	}

	finality := proof.FinalityUpdate
	finalityPeriod := syncCommitteePeriod(finality.AttestedHeader.Slot)
	if finalityPeriod != currentPeriod {
		return Result{Valid: false, Reason: reason.ErrFinalityVerificationFailed}
	}
	if err := verifySyncAggregate(committee, finality.AttestedHeader, finality.SyncAggregate, params); err != nil {
		return Result{Valid: false, Reason: reason.ErrFinalityVerificationFailed}
	}
	attestedStateRoot := hashRoot(finality.AttestedHeader.StateRoot)
	if err := merkle.VerifyBranch(headerRoot(finality.FinalizedHeader), toRoots(finality.FinalityBranch), finalizedRootGIndex, attestedStateRoot); err != nil {
		return Result{Valid: false, Reason: reason.ErrFinalityVerificationFailed}
	}

	if proof.ClaimedStateRoot.IsZero() {
		return Result{Valid: false, Reason: reason.ErrMissingExecutionPayload}
	}

	return Result{
		Valid:               true,
		VerifiedStateRoot:   proof.ClaimedStateRoot,
		VerifiedBlockNumber: proof.ClaimedBlockNumber,
	}
}

func verifyBootstrap(bootstrap schema.LightClientBootstrap) (schema.SyncCommittee, error) {
	if len(bootstrap.CurrentSyncCommittee.Pubkeys) != syncCommitteeSize {
		return schema.SyncCommittee{}, fmt.Errorf("beacon: bootstrap sync committee has %d members, want %d", len(bootstrap.CurrentSyncCommittee.Pubkeys), syncCommitteeSize)
	}
	if err := verifySyncCommitteeBranch(bootstrap.CurrentSyncCommittee, bootstrap.Header.StateRoot, bootstrap.CurrentSyncCommitteeBranch, currentSyncCommitteeGIndex); err != nil {
		return schema.SyncCommittee{}, err
	}
	return bootstrap.CurrentSyncCommittee, nil
}

func verifySyncCommitteeBranch(committee schema.SyncCommittee, stateRoot schema.Hash, branch []schema.Hash, gIndex uint64) error {
	leaf := syncCommitteeRoot(committee)
	return merkle.VerifyBranch(leaf, toRoots(branch), gIndex, hashRoot(stateRoot))
}

// syncCommitteeRoot computes hash_tree_root(SyncCommittee{pubkeys,
// aggregate_pubkey}) -- a vector of 512 pubkey roots merkleized, paired
// with the aggregate pubkey's root.
func syncCommitteeRoot(committee schema.SyncCommittee) merkle.Root {
	leaves := make([]merkle.Root, len(committee.Pubkeys))
	for i, pk := range committee.Pubkeys {
		leaves[i] = pubkeyLeaf(pk)
	}
	pubkeysRoot := merkleize(leaves)
	aggregateRoot := pubkeyLeaf(committee.AggregatePubkey)
	return merkleize([]merkle.Root{pubkeysRoot, aggregateRoot})
}

func pubkeyLeaf(pubkey schema.Bytes) merkle.Root {
	// A BLS pubkey is 48 bytes, SSZ-merkleized as two 32-byte chunks.
	var a, b merkle.Root
	copy(a[:], pubkey)
	if len(pubkey) > 32 {
		copy(b[:16], pubkey[32:])
	}
	return hashPair(a, b)
}

func toRoots(hashes []schema.Hash) []merkle.Root {
	roots := make([]merkle.Root, len(hashes))
	for i, h := range hashes {
		roots[i] = hashRoot(h)
	}
	return roots
}

func syncCommitteePeriod(slot uint64) uint64 {
	const slotsPerEpoch = 32
	const epochsPerPeriod = 256
	return slot / (slotsPerEpoch * epochsPerPeriod)
}

// verifySyncAggregate checks participation bit count and BLS aggregate
// signature for one attested header against the active committee.
func verifySyncAggregate(committee schema.SyncCommittee, header schema.BeaconHeader, aggregate schema.SyncAggregate, params NetworkParams) error {
	participating, err := participatingPubkeys(committee, aggregate.SyncCommitteeBits)
	if err != nil {
		return err
	}
	if len(participating)*minParticipationDenominator < syncCommitteeSize*minParticipationNumerator {
		return fmt.Errorf("beacon: sync committee participation %d/%d below 2/3 threshold", len(participating), syncCommitteeSize)
	}

	keys := make([]*bls.PublicKey, 0, len(participating))
	for _, raw := range participating {
		pk, err := bls.PublicKeyFromBytes(raw)
		if err != nil {
			return fmt.Errorf("beacon: invalid committee pubkey: %w", err)
		}
		keys = append(keys, pk)
	}

	sig, err := bls.SignatureFromBytes(aggregate.SyncCommitteeSignature)
	if err != nil {
		return fmt.Errorf("beacon: invalid sync aggregate signature: %w", err)
	}

	domain := computeDomain(domainSyncCommittee, params.ForkVersion, params.GenesisValidatorsRoot)
	root := signingRoot(headerRoot(header), domain)

	ok, err := bls.FastAggregateVerify(keys, root[:], sig)
	if err != nil {
		return fmt.Errorf("beacon: aggregate verify: %w", err)
	}
	if !ok {
		return fmt.Errorf("beacon: sync aggregate signature does not verify")
	}
	return nil
}

func participatingPubkeys(committee schema.SyncCommittee, bits schema.Bytes) ([]schema.Bytes, error) {
	if len(bits)*8 < syncCommitteeSize {
		return nil, fmt.Errorf("beacon: sync committee bitvector too short: %d bits", len(bits)*8)
	}
	var participating []schema.Bytes
	for i, pk := range committee.Pubkeys {
		byteIdx, bitIdx := i/8, uint(i%8)
		if bits[byteIdx]&(1<<bitIdx) != 0 {
			participating = append(participating, pk)
		}
	}
	return participating, nil
}
