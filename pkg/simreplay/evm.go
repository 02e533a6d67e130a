package simreplay

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"
)

// CallResult is the outcome of one EVM.Call invocation, the subset of
// core.ExecutionResult the replay cross-checker compares against a
// packaged Simulation.
type CallResult struct {
	Success    bool
	ReturnData []byte
	GasUsed    uint64
	Logs       []*types.Log
}

// EVM executes a single call against a seeded world state. The
// production implementation is backed by go-ethereum's core/vm and
// core/state; tests substitute a fake to exercise the replay
// cross-checks without constructing a real StateDB.
type EVM interface {
	Call(ctx context.Context, to common.Address, data []byte, value *big.Int, gasLimit uint64) (CallResult, error)
}

// goEthereumEVM runs calls against an in-memory state.StateDB seeded
// from a witnessed account plus the generator's declared storage
// overrides, grounded on the in-memory StateDB + vm.NewEVM +
// core.ApplyMessage pattern used across the retrieved pack's go-ethereum
// forks for exactly this "build a state, run one call, inspect the
// result" shape.
type goEthereumEVM struct {
	statedb     *state.StateDB
	chainConfig *params.ChainConfig
	blockNumber uint64
	safeAddress common.Address
}

// NewGoEthereumEVM builds a fresh in-memory StateDB; call
// SeedSafeAccount before the first Call.
func NewGoEthereumEVM(chainID uint64, blockNumber uint64) (*goEthereumEVM, error) {
	db := state.NewDatabase(triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil), nil)
	statedb, err := state.New(common.Hash{}, db)
	if err != nil {
		return nil, err
	}

	return &goEthereumEVM{
		statedb:     statedb,
		chainConfig: &params.ChainConfig{ChainID: new(big.Int).SetUint64(chainID)},
		blockNumber: blockNumber,
	}, nil
}

// SeedSafeAccount installs the witnessed account's balance and nonce,
// and applies every overridden storage slot, before any Call runs.
func (e *goEthereumEVM) SeedSafeAccount(addr common.Address, witness *AnchoredWitness) {
	e.safeAddress = addr
	balance, overflow := uint256.FromBig(witness.Account.Balance)
	if overflow {
		balance = uint256.NewInt(0)
	}
	e.statedb.AddBalance(addr, balance, tracing.BalanceChangeUnspecified)
	e.statedb.SetNonce(addr, witness.Account.Nonce, tracing.NonceChangeUnspecified)
	for slot, value := range witness.OverriddenSlots {
		e.statedb.SetState(addr, slot, value)
	}
}

// Call executes one message against the seeded state. With no
// contract code installed for `to` (SafeLens's witness never carries
// bytecode), this degenerates to a value-transfer-only replay: a call
// with non-empty `data` against a code-less address cannot meaningfully
// re-derive return data or logs, and Call reports that via a non-nil
// error rather than fabricating a result.
func (e *goEthereumEVM) Call(ctx context.Context, to common.Address, data []byte, value *big.Int, gasLimit uint64) (CallResult, error) {
	if ctx.Err() != nil {
		return CallResult{}, ctx.Err()
	}
	if len(data) != 0 && e.statedb.GetCodeSize(to) == 0 {
		return CallResult{}, fmt.Errorf("simreplay: call data sent to %s, which has no code in the witnessed state", to.Hex())
	}

	header := &types.Header{
		Number:     new(big.Int).SetUint64(e.blockNumber),
		Difficulty: big.NewInt(0),
		GasLimit:   gasLimit,
	}
	blockCtx := core.NewEVMBlockContext(header, dummyChainContext{cfg: e.chainConfig}, &e.safeAddress)
	evm := vm.NewEVM(blockCtx, e.statedb, e.chainConfig, vm.Config{})

	msg := &core.Message{
		To:               &to,
		From:             e.safeAddress,
		Value:            value,
		GasLimit:         gasLimit,
		GasPrice:         big.NewInt(0),
		GasFeeCap:        big.NewInt(0),
		GasTipCap:        big.NewInt(0),
		Data:             data,
		SkipNonceChecks:  true,
		SkipFromEOACheck: true,
	}

	gasPool := new(core.GasPool).AddGas(gasLimit)
	result, err := core.ApplyMessage(evm, msg, gasPool)
	if err != nil {
		return CallResult{}, err
	}

	return CallResult{
		Success:    !result.Failed(),
		ReturnData: result.Return(),
		GasUsed:    result.UsedGas,
	}, nil
}

// DefaultEVMFactory builds a real go-ethereum-backed EVM, the factory
// Verify's callers pass in production; tests pass a factory that
// returns a fake EVM instead.
func DefaultEVMFactory(chainID, blockNumber uint64) (EVM, error) {
	return NewGoEthereumEVM(chainID, blockNumber)
}

// dummyChainContext satisfies core.ChainContext with just enough to
// build a BlockContext for a single synthetic call; it never resolves
// ancestor headers, since the replay never looks at BLOCKHASH/chain
// history.
type dummyChainContext struct {
	cfg *params.ChainConfig
}

func (d dummyChainContext) Engine() consensus.Engine { return nil }

func (d dummyChainContext) GetHeader(common.Hash, uint64) *types.Header { return nil }

func (d dummyChainContext) Config() *params.ChainConfig { return d.cfg }
