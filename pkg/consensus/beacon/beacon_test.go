package beacon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/safelens/safelens/pkg/reason"
	"github.com/safelens/safelens/pkg/schema"
)

func makeCommittee(size int) schema.SyncCommittee {
	pubkeys := make([]schema.Bytes, size)
	for i := range pubkeys {
		pk := make(schema.Bytes, 48)
		pk[0] = byte(i)
		pubkeys[i] = pk
	}
	return schema.SyncCommittee{Pubkeys: pubkeys, AggregatePubkey: make(schema.Bytes, 48)}
}

func TestVerifyBootstrap_RejectsWrongCommitteeSize(t *testing.T) {
	bootstrap := schema.LightClientBootstrap{
		Header:               schema.BeaconHeader{Slot: 1},
		CurrentSyncCommittee: makeCommittee(10),
	}
	_, err := verifyBootstrap(bootstrap)
	require.Error(t, err)
}

func TestVerifyBootstrap_RejectsBadBranch(t *testing.T) {
	bootstrap := schema.LightClientBootstrap{
		Header:                     schema.BeaconHeader{Slot: 1, StateRoot: schema.Hash{1}},
		CurrentSyncCommittee:       makeCommittee(syncCommitteeSize),
		CurrentSyncCommitteeBranch: nil, // wrong length for the fixed gindex depth
	}
	_, err := verifyBootstrap(bootstrap)
	require.Error(t, err)
}

func TestVerify_RejectsSkippedPeriodTransition(t *testing.T) {
	committee := makeCommittee(syncCommitteeSize)
	bootstrapHeader := schema.BeaconHeader{Slot: 0}

	proof := &schema.BeaconConsensusProof{
		Bootstrap: schema.LightClientBootstrap{
			Header:               bootstrapHeader,
			CurrentSyncCommittee: committee,
		},
		Updates: []schema.LightClientUpdate{
			{
				AttestedHeader: schema.BeaconHeader{Slot: 32 * 256 * 3}, // jumps two periods ahead
			},
		},
	}

	result := Verify(context.Background(), proof, NetworkParams{})
	require.False(t, result.Valid)
}

func TestVerify_IncompleteProofFailsAtBootstrap(t *testing.T) {
	committee := makeCommittee(syncCommitteeSize)
	header := schema.BeaconHeader{Slot: 0}

	// A proof with no sync-committee branch, no updates, no finality
	// signature and a zero claimed state root never reaches the
	// execution-payload check: Verify stops at the bootstrap and
	// reports ErrBootstrapVerificationFailed without panicking.
	proof := &schema.BeaconConsensusProof{
		Bootstrap: schema.LightClientBootstrap{
			Header:               header,
			CurrentSyncCommittee: committee,
		},
		FinalityUpdate: schema.LightClientFinalityUpdate{
			AttestedHeader: header,
		},
	}

	result := Verify(context.Background(), proof, NetworkParams{})
	require.False(t, result.Valid)
	require.Equal(t, reason.ErrBootstrapVerificationFailed, result.Reason)
}
