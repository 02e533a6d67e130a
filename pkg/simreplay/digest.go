package simreplay

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/safelens/safelens/pkg/schema"
)

// digestLog and digestTransfer mirror schema.LogEntry/NativeTransfer in
// RLP-friendly shape (go-ethereum's rlp package cannot encode the
// schema package's custom-marshaled wire types directly).
type digestLog struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

type digestTransfer struct {
	From  common.Address
	To    common.Address
	Value []byte // big-endian minimal encoding, matching rlp's big.Int convention
}

type digestPayload struct {
	Success     bool
	ReturnData  []byte
	GasUsed     uint64
	Logs        []digestLog
	Transfers   []digestTransfer
	BlockNumber uint64
}

// ComputeDigest computes the canonical simulation digest:
// keccak256(rlp(success, returnData, gasUsed, logs, nativeTransfers,
// blockNumber)). This is the one place both the generator and SafeLens
// must agree byte-for-byte, so the RLP field order here is load-bearing.
func ComputeDigest(sim *schema.Simulation) (schema.Hash, error) {
	payload := digestPayload{
		Success:     sim.Success,
		ReturnData:  []byte(sim.ReturnData),
		GasUsed:     sim.GasUsed,
		BlockNumber: sim.BlockNumber,
	}
	for _, l := range sim.Logs {
		topics := make([]common.Hash, len(l.Topics))
		for i, t := range l.Topics {
			topics[i] = common.Hash(t)
		}
		payload.Logs = append(payload.Logs, digestLog{
			Address: common.Address(l.Address),
			Topics:  topics,
			Data:    []byte(l.Data),
		})
	}
	for _, nt := range sim.NativeTransfers {
		payload.Transfers = append(payload.Transfers, digestTransfer{
			From:  common.Address(nt.From),
			To:    common.Address(nt.To),
			Value: nt.Value.Bytes(),
		})
	}

	encoded, err := rlp.EncodeToBytes(&payload)
	if err != nil {
		return schema.Hash{}, err
	}
	return schema.Hash(crypto.Keccak256Hash(encoded)), nil
}

// VerifyDigest reports whether witness.SimulationDigest matches the
// digest recomputed from sim.
func VerifyDigest(sim *schema.Simulation, witnessDigest schema.Hash) (bool, error) {
	computed, err := ComputeDigest(sim)
	if err != nil {
		return false, err
	}
	return computed == witnessDigest, nil
}
