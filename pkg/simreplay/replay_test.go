package simreplay

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/safelens/safelens/pkg/reason"
	"github.com/safelens/safelens/pkg/schema"
)

// fakeEVM returns a canned CallResult/error and records whether Call ran,
// so tests can assert the digest-only shortcut never reaches the EVM.
type fakeEVM struct {
	result CallResult
	err    error
	called bool
}

func (f *fakeEVM) Call(ctx context.Context, to common.Address, data []byte, value *big.Int, gasLimit uint64) (CallResult, error) {
	f.called = true
	return f.result, f.err
}

func witnessedPackage(t *testing.T, sim *schema.Simulation, txData schema.Bytes, op schema.Operation) *schema.EvidencePackage {
	t.Helper()

	safeAddr := common.Address{0x10}
	root, nodes := buildAccountProof(t, safeAddr, 0, big.NewInt(0))
	wireNodes := make([]schema.Bytes, len(nodes))
	for i, n := range nodes {
		wireNodes[i] = n
	}

	digest, err := ComputeDigest(sim)
	require.NoError(t, err)

	return &schema.EvidencePackage{
		ChainID:     1,
		SafeAddress: schema.Address(safeAddr),
		Transaction: schema.SafeTransaction{
			To:        schema.Address{0x20},
			Value:     schema.BigInt{},
			Data:      txData,
			Operation: op,
		},
		Simulation: sim,
		SimulationWitness: &schema.SimulationWitness{
			ChainID:          1,
			SafeAddress:      schema.Address(safeAddr),
			BlockNumber:      sim.BlockNumber,
			StateRoot:        schema.Hash(root),
			SafeAccountNodes: wireNodes,
			SimulationDigest: digest,
		},
	}
}

func TestVerify_MissingSimulationOrWitness(t *testing.T) {
	pkg := &schema.EvidencePackage{}
	result := Verify(context.Background(), pkg, DefaultEVMFactory)
	require.False(t, result.Valid)
	require.Equal(t, reason.ErrSimulationWitnessInvalid, result.Reason)
}

func TestVerify_DigestMismatchRejected(t *testing.T) {
	sim := sampleSimulation()
	pkg := witnessedPackage(t, sim, nil, schema.OperationCall)
	pkg.SimulationWitness.SimulationDigest = schema.Hash{0xff}

	result := Verify(context.Background(), pkg, DefaultEVMFactory)
	require.False(t, result.Valid)
	require.Equal(t, reason.ErrSimulationDigestMismatch, result.Reason)
}

func TestVerify_NonValueTransferSkipsEVMReplay(t *testing.T) {
	sim := sampleSimulation()
	pkg := witnessedPackage(t, sim, schema.Bytes{0xde, 0xad}, schema.OperationCall)

	factory := func(chainID, blockNumber uint64) (EVM, error) {
		t.Fatal("evmFactory should not be invoked for calldata the witness cannot faithfully replay")
		return nil, nil
	}

	result := Verify(context.Background(), pkg, factory)
	require.True(t, result.Valid)
}

func TestVerify_DelegateCallSkipsEVMReplay(t *testing.T) {
	sim := sampleSimulation()
	pkg := witnessedPackage(t, sim, nil, schema.OperationDelegateCall)

	factory := func(chainID, blockNumber uint64) (EVM, error) {
		t.Fatal("evmFactory should not be invoked for a delegatecall")
		return nil, nil
	}

	result := Verify(context.Background(), pkg, factory)
	require.True(t, result.Valid)
}

func TestVerify_ValueTransferMatchesSimulation(t *testing.T) {
	sim := sampleSimulation()
	sim.ReturnData = nil
	pkg := witnessedPackage(t, sim, nil, schema.OperationCall)

	fake := &fakeEVM{result: CallResult{Success: true, ReturnData: nil, GasUsed: sim.GasUsed}}
	result := Verify(context.Background(), pkg, func(chainID, blockNumber uint64) (EVM, error) {
		return fake, nil
	})

	require.True(t, result.Valid)
	require.True(t, fake.called)
}

func TestVerify_ValueTransferGasMismatch(t *testing.T) {
	sim := sampleSimulation()
	sim.ReturnData = nil
	sim.GasUsed = 21000
	pkg := witnessedPackage(t, sim, nil, schema.OperationCall)

	fake := &fakeEVM{result: CallResult{Success: true, ReturnData: nil, GasUsed: 50000}}
	result := Verify(context.Background(), pkg, func(chainID, blockNumber uint64) (EVM, error) {
		return fake, nil
	})

	require.False(t, result.Valid)
	require.Equal(t, reason.ErrSimulationReplayMismatchGas, result.Reason)
}

func TestVerify_ValueTransferSuccessMismatch(t *testing.T) {
	sim := sampleSimulation()
	sim.ReturnData = nil
	pkg := witnessedPackage(t, sim, nil, schema.OperationCall)

	fake := &fakeEVM{result: CallResult{Success: false, ReturnData: nil, GasUsed: sim.GasUsed}}
	result := Verify(context.Background(), pkg, func(chainID, blockNumber uint64) (EVM, error) {
		return fake, nil
	})

	require.False(t, result.Valid)
	require.Equal(t, reason.ErrSimulationReplayMismatchSuccess, result.Reason)
}

func TestVerify_RespectsCancelledContext(t *testing.T) {
	sim := sampleSimulation()
	pkg := witnessedPackage(t, sim, nil, schema.OperationCall)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := Verify(ctx, pkg, func(chainID, blockNumber uint64) (EVM, error) {
		t.Fatal("evmFactory should not run once the context is cancelled")
		return nil, nil
	})
	require.False(t, result.Valid)
	require.Equal(t, reason.Cancelled, result.Reason)
}
