// Package simreplay re-executes a packaged Safe transaction against a
// witnessed world state and cross-checks the outcome against the
// generator's reported Simulation. A mismatch here never blocks the
// signature or hash checks; it only demotes the "simulation" trust
// source.
package simreplay

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safelens/safelens/pkg/reason"
	"github.com/safelens/safelens/pkg/schema"
)

// Result is the outcome of replaying one packaged simulation.
type Result struct {
	Valid      bool
	Reason     reason.Code
	Mismatches []string
}

// Verify anchors the witness, checks the simulation digest, and --
// when the witnessed call is a plain value transfer the EVM can
// faithfully replay without target bytecode -- re-executes it and
// cross-checks status, return data, and gas used against the packaged
// Simulation.
func Verify(ctx context.Context, pkg *schema.EvidencePackage, evmFactory func(chainID, blockNumber uint64) (EVM, error)) Result {
	sim := pkg.Simulation
	witness := pkg.SimulationWitness
	if sim == nil || witness == nil {
		return Result{Valid: false, Reason: reason.ErrSimulationWitnessInvalid, Mismatches: []string{"missing simulation or witness"}}
	}

	anchored, err := Anchor(witness)
	if err != nil {
		return Result{Valid: false, Reason: reason.ErrSimulationWitnessInvalid, Mismatches: []string{err.Error()}}
	}

	digestOK, err := VerifyDigest(sim, witness.SimulationDigest)
	if err != nil {
		return Result{Valid: false, Reason: reason.ErrSimulationDigestMismatch, Mismatches: []string{err.Error()}}
	}
	if !digestOK {
		return Result{Valid: false, Reason: reason.ErrSimulationDigestMismatch}
	}

	if ctx.Err() != nil {
		return Result{Valid: false, Reason: reason.Cancelled}
	}

	// Only a plain-value-transfer call (no data, no delegatecall) can be
	// faithfully replayed from an account-only witness; anything else
	// requires the target's bytecode, which the witness does not carry.
	tx := pkg.Transaction
	if len(tx.Data) != 0 || tx.Operation != schema.OperationCall {
		return Result{Valid: digestOK}
	}

	evm, err := evmFactory(pkg.ChainID, witness.BlockNumber)
	if err != nil {
		return Result{Valid: false, Reason: reason.ErrSimulationWitnessInvalid, Mismatches: []string{err.Error()}}
	}
	if seeder, ok := evm.(*goEthereumEVM); ok {
		seeder.SeedSafeAccount(common.Address(pkg.SafeAddress), anchored)
	}

	gasLimit := tx.SafeTxGas.Uint64()
	if gasLimit == 0 {
		gasLimit = 1_000_000
	}
	callResult, err := evm.Call(ctx, common.Address(tx.To), []byte(tx.Data), &tx.Value.Int, gasLimit)
	if err != nil {
		return Result{Valid: false, Reason: reason.ErrSimulationWitnessInvalid, Mismatches: []string{err.Error()}}
	}

	var mismatches []string
	if callResult.Success != sim.Success {
		mismatches = append(mismatches, "success")
	}
	if string(callResult.ReturnData) != string(sim.ReturnData) {
		mismatches = append(mismatches, "returnData")
	}
	if callResult.GasUsed > sim.GasUsed {
		mismatches = append(mismatches, "gasUsed")
	}

	if len(mismatches) == 0 {
		return Result{Valid: true}
	}

	code := reason.ErrSimulationReplayMismatchSuccess
	for _, m := range mismatches {
		switch m {
		case "returnData":
			code = reason.ErrSimulationReplayMismatchReturn
		case "gasUsed":
			code = reason.ErrSimulationReplayMismatchGas
		}
	}
	return Result{Valid: false, Reason: code, Mismatches: mismatches}
}
