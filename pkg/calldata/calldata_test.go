package calldata

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/safelens/safelens/pkg/reason"
	"github.com/safelens/safelens/pkg/schema"
)

func encodeTransferSelector(to common.Address, amount string) []byte {
	sig := crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	// 32-byte left-padded address + 32-byte amount (small, zero-padded).
	var buf []byte
	buf = append(buf, sig...)
	var addrWord [32]byte
	copy(addrWord[12:], to.Bytes())
	buf = append(buf, addrWord[:]...)
	var amtWord [32]byte
	amtWord[31] = 42
	buf = append(buf, amtWord[:]...)
	return buf
}

func TestVerify_NoSteps(t *testing.T) {
	result := Verify(nil)
	require.Equal(t, reason.CalldataAPIOnly, result.Outcome)
}

func TestVerify_SelfVerified(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000042")
	raw := encodeTransferSelector(to, "42")

	step := schema.DecodedCallStep{
		To:     schema.Address(common.HexToAddress("0x1")),
		Data:   schema.Bytes(raw),
		Method: "transfer",
		Parameters: []schema.DecodedParameter{
			{Name: "to", Type: "address", Value: to.Hex()},
			{Name: "amount", Type: "uint256", Value: "42"},
		},
	}

	result := Verify([]schema.DecodedCallStep{step})
	require.Equal(t, reason.CalldataSelfVerified, result.Outcome)
	require.True(t, result.Steps[0].SelectorVerified)
	require.Empty(t, result.Steps[0].ParameterMismatches)
}

func TestVerify_SelectorMismatch(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000042")
	raw := encodeTransferSelector(to, "42")

	step := schema.DecodedCallStep{
		Data:   schema.Bytes(raw),
		Method: "approve", // wrong method name -> wrong selector
		Parameters: []schema.DecodedParameter{
			{Name: "to", Type: "address", Value: to.Hex()},
			{Name: "amount", Type: "uint256", Value: "42"},
		},
	}

	result := Verify([]schema.DecodedCallStep{step})
	require.Equal(t, reason.CalldataMismatch, result.Outcome)
	require.False(t, result.Steps[0].SelectorVerified)
}

func TestVerify_ParameterMismatch(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000042")
	raw := encodeTransferSelector(to, "42")

	step := schema.DecodedCallStep{
		Data:   schema.Bytes(raw),
		Method: "transfer",
		Parameters: []schema.DecodedParameter{
			{Name: "to", Type: "address", Value: to.Hex()},
			{Name: "amount", Type: "uint256", Value: "999"}, // reported value wrong
		},
	}

	result := Verify([]schema.DecodedCallStep{step})
	require.Equal(t, reason.CalldataMismatch, result.Outcome)
	require.True(t, result.Steps[0].SelectorVerified)
	require.NotEmpty(t, result.Steps[0].ParameterMismatches)
}

func TestVerify_UnparseableType(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000042")
	raw := encodeTransferSelector(to, "42")

	step := schema.DecodedCallStep{
		Data:   schema.Bytes(raw),
		Method: "transfer",
		Parameters: []schema.DecodedParameter{
			{Name: "to", Type: "address", Value: to.Hex()},
			{Name: "amount", Type: "notarealtype", Value: "42"},
		},
	}

	result := Verify([]schema.DecodedCallStep{step})
	require.Equal(t, reason.CalldataMismatch, result.Outcome)
}
