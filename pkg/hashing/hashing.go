// Package hashing re-derives the EIP-712 safeTxHash of a packaged Safe
// transaction, independent of whatever value the generator claims.
package hashing

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/safelens/safelens/pkg/schema"
)

// safeTxTypeHash is keccak256 of the SafeTx EIP-712 struct type string,
// as defined by the Safe contracts (unchanged across 1.3.0 and 1.4.1).
var safeTxTypeHash = crypto.Keccak256Hash([]byte(
	"SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)",
))

// domainTypeHash is keccak256 of the EIP-712Domain struct type string
// Safe contracts use: chainId plus verifyingContract, no name/version.
var domainTypeHash = crypto.Keccak256Hash([]byte(
	"EIP712Domain(uint256 chainId,address verifyingContract)",
))

var uint256Type, addressType, bytes32Type abi.Type

func init() {
	var err error
	uint256Type, err = abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	addressType, err = abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	bytes32Type, err = abi.NewType("bytes32", "", nil)
	if err != nil {
		panic(err)
	}
}

// DomainSeparator computes the EIP-712 domain separator for a Safe at
// safeAddress on the given chain.
func DomainSeparator(chainID uint64, safeAddress schema.Address) [32]byte {
	args := abi.Arguments{{Type: uint256Type}, {Type: addressType}}
	encoded, err := args.Pack(new(big.Int).SetUint64(chainID), common.Address(safeAddress))
	if err != nil {
		panic(err)
	}
	buf := append(append([]byte{}, domainTypeHash.Bytes()...), encoded...)
	return crypto.Keccak256Hash(buf)
}

// StructHash computes the EIP-712 struct hash of the SafeTx payload.
func StructHash(tx schema.SafeTransaction) [32]byte {
	dataHash := crypto.Keccak256Hash(tx.Data)

	args := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: addressType}, // to
		{Type: uint256Type}, // value
		{Type: bytes32Type}, // keccak256(data)
		{Type: uint256Type}, // operation
		{Type: uint256Type}, // safeTxGas
		{Type: uint256Type}, // baseGas
		{Type: uint256Type}, // gasPrice
		{Type: addressType}, // gasToken
		{Type: addressType}, // refundReceiver
		{Type: uint256Type}, // nonce
	}
	encoded, err := args.Pack(
		safeTxTypeHash,
		common.Address(tx.To),
		&tx.Value.Int,
		dataHash,
		new(big.Int).SetUint64(uint64(tx.Operation)),
		&tx.SafeTxGas.Int,
		&tx.BaseGas.Int,
		&tx.GasPrice.Int,
		common.Address(tx.GasToken),
		common.Address(tx.RefundReceiver),
		&tx.Nonce.Int,
	)
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(encoded)
}

// SafeTxHash computes the final EIP-712 digest: keccak256(0x19 0x01 ||
// domainSeparator || structHash).
func SafeTxHash(chainID uint64, safeAddress schema.Address, tx schema.SafeTransaction) [32]byte {
	domain := DomainSeparator(chainID, safeAddress)
	structHash := StructHash(tx)

	buf := make([]byte, 0, 2+32+32)
	buf = append(buf, 0x19, 0x01)
	buf = append(buf, domain[:]...)
	buf = append(buf, structHash[:]...)
	return crypto.Keccak256Hash(buf)
}

// Result is the outcome of recomputing a package's claimed safeTxHash.
type Result struct {
	Computed schema.Hash
	Claimed  schema.Hash
	Match    bool
}

// Verify recomputes the safeTxHash for pkg's transaction and compares it
// against the claimed value. This is the sole authority on whether the
// package's safeTxHash can be trusted by every downstream component.
func Verify(pkg *schema.EvidencePackage) Result {
	computed := SafeTxHash(pkg.ChainID, pkg.SafeAddress, pkg.Transaction)
	var computedHash schema.Hash
	copy(computedHash[:], computed[:])
	return Result{
		Computed: computedHash,
		Claimed:  pkg.SafeTxHash,
		Match:    computedHash == pkg.SafeTxHash,
	}
}
