// Package envelope verifies the deterministic execution-header
// envelopes used in place of Beacon light-client proofs for OP-Stack
// and Linea consensus modes. These chains don't (yet) have a Beacon-
// equivalent light-client protocol SafeLens can verify end-to-end, so
// this verifier checks shape and freshness and always reports a
// pending warning rather than claiming Beacon-strength assurance.
package envelope

import (
	"errors"
	"time"

	"github.com/safelens/safelens/pkg/reason"
	"github.com/safelens/safelens/pkg/schema"
)

var errUnsupportedMode = errors.New("envelope: unsupported consensus mode")

// DefaultStalenessBounds is used for a mode absent from the caller's
// staleness-bound table.
var DefaultStalenessBounds = map[schema.ConsensusMode]time.Duration{
	schema.ConsensusModeOPStack: 12 * time.Hour,
	schema.ConsensusModeLinea:   12 * time.Hour,
}

// Result is the outcome of verifying an execution-header envelope.
type Result struct {
	Valid               bool
	Reason              reason.Code
	Warning             reason.Code
	VerifiedStateRoot   schema.Hash
	VerifiedBlockNumber uint64
}

// Expected bundles the onchain-policy-proof-derived values step 2 of
// the OP-Stack/Linea check compares the envelope against. A zero field
// means no policy proof was packaged to compare against, so that check
// is skipped.
type Expected struct {
	StateRoot   schema.Hash
	BlockNumber uint64
}

// Verify checks the envelope's shape and chain identity, cross-checks
// its state root and block number against expected (when supplied),
// then compares its timestamp against packagedAt for freshness. A
// structurally valid envelope is always Valid, even when stale or
// mismatched against expected: its root/block are still returned so
// the composer can reason about them, but its Reason carries whichever
// of the mismatch, staleness, or "verifier pending" codes applies --
// never empty, since OP-Stack/Linea assurance is never equivalent to
// Beacon finality.
func Verify(mode schema.ConsensusMode, proof *schema.EnvelopeConsensusProof, expectedChainID uint64, packagedAt time.Time, expected Expected, staleBound time.Duration) Result {
	pendingWarning, err := modeWarning(mode)
	if err != nil {
		return Result{Valid: false, Reason: reason.ErrInvalidProofPayload}
	}

	if proof == nil {
		return Result{Valid: false, Reason: reason.ErrInvalidProofPayload}
	}
	if proof.ChainID != expectedChainID {
		return Result{Valid: false, Reason: reason.ErrInvalidProofPayload}
	}
	if proof.ProofPayload.StateRoot.IsZero() {
		return Result{Valid: false, Reason: reason.ErrMissingExecutionPayload}
	}

	result := Result{
		Valid:               true,
		Warning:             pendingWarning,
		Reason:              pendingWarning,
		VerifiedStateRoot:   proof.ProofPayload.StateRoot,
		VerifiedBlockNumber: proof.ProofPayload.Number,
	}

	switch {
	case !expected.StateRoot.IsZero() && proof.ProofPayload.StateRoot != expected.StateRoot:
		result.Reason = reason.ErrEnvelopeStateRootMismatch
		return result
	case expected.BlockNumber != 0 && proof.ProofPayload.Number != expected.BlockNumber:
		result.Reason = reason.ErrEnvelopeBlockNumberMismatch
		return result
	}

	if staleBound <= 0 {
		staleBound = DefaultStalenessBounds[mode]
	}
	// age < 0 means the envelope's timestamp is later than packagedAt,
	// violating "no later than packagedAt" just as much as an envelope
	// older than staleBound does.
	age := packagedAt.Sub(proof.ProofPayload.Timestamp)
	if age < 0 || age > staleBound {
		result.Reason = reason.ErrStaleConsensusEnvelope
	}

	return result
}

func modeWarning(mode schema.ConsensusMode) (reason.Code, error) {
	switch mode {
	case schema.ConsensusModeOPStack:
		return reason.WarnOpstackVerifierPending, nil
	case schema.ConsensusModeLinea:
		return reason.WarnLineaVerifierPending, nil
	default:
		return "", errUnsupportedMode
	}
}
