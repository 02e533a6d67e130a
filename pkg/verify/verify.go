// Package verify drives the full verification pipeline (C1 through
// C8) over one evidence package: parse, recompute the hash, verify
// signatures, cross-check calldata, walk the policy proof, verify the
// consensus envelope, replay the simulation, and compose the final
// report. Nothing here reads the network or the clock; every input
// comes from the package itself or from the caller's collaborators.
package verify

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/safelens/safelens/pkg/calldata"
	"github.com/safelens/safelens/pkg/consensus"
	"github.com/safelens/safelens/pkg/hashing"
	"github.com/safelens/safelens/pkg/policyproof"
	"github.com/safelens/safelens/pkg/reason"
	"github.com/safelens/safelens/pkg/schema"
	"github.com/safelens/safelens/pkg/signature"
	"github.com/safelens/safelens/pkg/simreplay"
	"github.com/safelens/safelens/pkg/trust"
)

// Options configures one Run. Networks and EVMFactory are the
// host-provided collaborators from spec.md §6. EVMFactory defaults to
// simreplay.DefaultEVMFactory; Networks has no default.
type Options struct {
	// Strict rejects unrecognized top-level evidence-package fields
	// instead of recording them as a warning.
	Strict bool

	// Networks maps a beacon network identifier to its genesis
	// validators root and fork schedule. Required only when the
	// package carries a beacon-mode consensus proof.
	Networks consensus.NetworkTable

	// StalenessBounds overrides the per-mode OP-Stack/Linea envelope
	// staleness bound. A mode absent from the map falls back to
	// envelope.DefaultStalenessBounds.
	StalenessBounds consensus.StalenessBounds

	// EVMFactory builds the EVM used to replay a packaged simulation.
	// Defaults to simreplay.DefaultEVMFactory.
	EVMFactory func(chainID, blockNumber uint64) (simreplay.EVM, error)
}

// Run executes the full pipeline over raw evidence-package JSON and
// returns the composed report. A non-nil error means a category-3
// fatal input error (§7): the package never reached verification.
func Run(ctx context.Context, raw []byte, opts Options) (*trust.Report, error) {
	pkg, err := schema.Parse(raw, schema.Options{Strict: opts.Strict})
	if err != nil {
		return nil, err
	}
	report := RunPackage(ctx, pkg, opts)
	return &report, nil
}

// RunPackage runs the pipeline against an already-parsed package. It
// never returns an error: every failure downstream of C1 is surfaced
// as a source-level outcome in the returned report.
func RunPackage(ctx context.Context, pkg *schema.EvidencePackage, opts Options) trust.Report {
	if opts.EVMFactory == nil {
		opts.EVMFactory = simreplay.DefaultEVMFactory
	}

	hashResult := hashing.Verify(pkg)

	var ownerSet map[schema.Address]bool
	if pkg.OnchainPolicyProof != nil {
		ownerSet = make(map[schema.Address]bool, len(pkg.OnchainPolicyProof.DecodedPolicy.Owners))
		for _, o := range pkg.OnchainPolicyProof.DecodedPolicy.Owners {
			ownerSet[o] = true
		}
	}
	sigResult := signature.Verify(hashResult.Claimed, pkg.Confirmations, ownerSet, nil)

	var steps []schema.DecodedCallStep
	if pkg.DataDecoded != nil {
		steps = pkg.DataDecoded.Steps
	}
	calldataResult := calldata.Verify(steps)

	var policyResult *policyproof.Result
	if pkg.OnchainPolicyProof != nil {
		r := policyproof.Verify(pkg.OnchainPolicyProof, pkg.SafeAddress)
		policyResult = &r
	}

	var consensusOutcome *consensus.Outcome
	var simResult *simreplay.Result
	cancelled := false

	g, gctx := errgroup.WithContext(ctx)

	if pkg.ConsensusProof != nil {
		g.Go(func() error {
			out := runConsensus(gctx, pkg, opts.Networks, opts.StalenessBounds)
			consensusOutcome = &out
			return nil
		})
	}
	if pkg.Simulation != nil && pkg.SimulationWitness != nil {
		g.Go(func() error {
			r := simreplay.Verify(gctx, pkg, opts.EVMFactory)
			simResult = &r
			return nil
		})
	}
	_ = g.Wait() // component-level errors are carried as outcome fields, never returned

	if consensusOutcome != nil && consensusOutcome.Reason == reason.Cancelled {
		cancelled = true
	}
	if simResult != nil && simResult.Reason == reason.Cancelled {
		cancelled = true
	}
	if ctx.Err() != nil {
		cancelled = true
	}

	return trust.Compose(trust.Context{
		Package:     pkg,
		Hash:        hashResult,
		Signatures:  sigResult,
		Calldata:    calldataResult,
		PolicyProof: policyResult,
		Consensus:   consensusOutcome,
		Simulation:  simResult,
		Cancelled:   cancelled,
	})
}

func runConsensus(ctx context.Context, pkg *schema.EvidencePackage, networks consensus.NetworkTable, stalenessBounds consensus.StalenessBounds) consensus.Outcome {
	verifier, err := consensus.New(pkg.ConsensusProof.Mode, pkg.ChainID, pkg.PackagedAt, networks, pkg.OnchainPolicyProof, stalenessBounds)
	if err != nil {
		return consensus.Outcome{Reason: reason.ErrInvalidProofPayload}
	}
	return verifier.Verify(ctx, pkg.ConsensusProof)
}
