// Package consensus dispatches a packaged ConsensusProof to the
// verifier matching its mode and normalizes both implementations'
// results into one Outcome shape the trust composer consumes without
// caring which consensus protocol produced it.
package consensus

import (
	"context"
	"fmt"
	"time"

	"github.com/safelens/safelens/pkg/consensus/beacon"
	"github.com/safelens/safelens/pkg/consensus/envelope"
	"github.com/safelens/safelens/pkg/reason"
	"github.com/safelens/safelens/pkg/schema"
)

// Outcome is the mode-independent result of verifying a ConsensusProof.
type Outcome struct {
	Valid               bool
	Reason              reason.Code
	Warning             reason.Code
	VerifiedStateRoot   schema.Hash
	VerifiedBlockNumber uint64
}

// Verifier is implemented by each consensus mode's concrete checker.
// pkg/trust depends only on this interface, never on beacon or
// envelope directly, so adding a new consensus mode never touches the
// composer.
type Verifier interface {
	Verify(ctx context.Context, proof *schema.ConsensusProof) Outcome
}

// NetworkTable maps a beacon network identifier (as packaged in
// BeaconConsensusProof.Network) to its genesis validators root and
// fork version. pkg/config owns populating this from settings.
type NetworkTable map[string]beacon.NetworkParams

// StalenessBounds maps a consensus mode to the maximum age an envelope
// timestamp may lag packagedAt by before it is flagged stale.
type StalenessBounds map[schema.ConsensusMode]time.Duration

// New selects the Verifier matching mode. chainID, packagedAt, and
// stalenessBounds are needed only by the envelope verifier; networks is
// needed only by the beacon verifier. policyProof, when non-nil,
// supplies the state root and block number the envelope verifier cross-
// checks the envelope against (spec step 2); a nil policyProof skips
// that cross-check.
func New(mode schema.ConsensusMode, chainID uint64, packagedAt time.Time, networks NetworkTable, policyProof *schema.OnchainPolicyProof, stalenessBounds StalenessBounds) (Verifier, error) {
	switch mode {
	case schema.ConsensusModeBeacon:
		return &beaconVerifier{networks: networks}, nil
	case schema.ConsensusModeOPStack, schema.ConsensusModeLinea:
		v := &envelopeVerifier{mode: mode, chainID: chainID, packagedAt: packagedAt, staleBound: stalenessBounds[mode]}
		if policyProof != nil {
			v.expected = envelope.Expected{StateRoot: policyProof.StateRoot, BlockNumber: policyProof.BlockNumber}
		}
		return v, nil
	default:
		return nil, fmt.Errorf("consensus: unsupported mode %q", mode)
	}
}

type beaconVerifier struct {
	networks NetworkTable
}

func (v *beaconVerifier) Verify(ctx context.Context, proof *schema.ConsensusProof) Outcome {
	if proof == nil || proof.Beacon == nil {
		return Outcome{Reason: reason.ErrInvalidProofPayload}
	}
	params, ok := v.networks[proof.Beacon.Network]
	if !ok {
		return Outcome{Reason: reason.ErrInvalidCheckpointHash}
	}

	result := beacon.Verify(ctx, proof.Beacon, params)
	return Outcome{
		Valid:               result.Valid,
		Reason:              result.Reason,
		VerifiedStateRoot:   result.VerifiedStateRoot,
		VerifiedBlockNumber: result.VerifiedBlockNumber,
	}
}

type envelopeVerifier struct {
	mode       schema.ConsensusMode
	chainID    uint64
	packagedAt time.Time
	expected   envelope.Expected
	staleBound time.Duration
}

func (v *envelopeVerifier) Verify(ctx context.Context, proof *schema.ConsensusProof) Outcome {
	if ctx.Err() != nil {
		return Outcome{Reason: reason.Cancelled}
	}
	if proof == nil {
		return Outcome{Reason: reason.ErrInvalidProofPayload}
	}
	result := envelope.Verify(v.mode, proof.Envelope, v.chainID, v.packagedAt, v.expected, v.staleBound)
	return Outcome{
		Valid:               result.Valid,
		Reason:              result.Reason,
		Warning:             result.Warning,
		VerifiedStateRoot:   result.VerifiedStateRoot,
		VerifiedBlockNumber: result.VerifiedBlockNumber,
	}
}
