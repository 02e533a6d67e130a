package policyproof

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Layout describes where a Safe singleton stores its policy fields.
// Both Safe 1.3.0 and 1.4.1 share this layout; future singletons get a
// new entry here rather than a change to the walker itself.
type Layout struct {
	// SingletonSlot is the implementation address every Safe proxy
	// stores as its very first storage word.
	SingletonSlot      uint64
	ModulesMappingSlot uint64
	OwnersMappingSlot  uint64
	OwnerCountSlot     uint64
	ThresholdSlot      uint64
	NonceSlot          uint64

	// FallbackHandlerSlot is a direct (non-mapping) storage slot, per
	// spec.md's explicit numbering (slot 7) rather than the EIP-1967-style
	// computed slot some other contracts use for this purpose.
	FallbackHandlerSlot uint64

	// GuardStorageSlot is a fixed keccak-derived slot, matching the
	// GuardManager constant Safe singletons actually use
	// (keccak256("guard_manager.guard.address")), per spec.md's "guard
	// is a fixed slot".
	GuardStorageSlot common.Hash
}

// StandardLayout is the storage layout shared by every Safe singleton
// from 1.1.1 through 1.4.1 for the fields SafeLens reads.
var StandardLayout = Layout{
	SingletonSlot:       0,
	ModulesMappingSlot:  1,
	OwnersMappingSlot:   2,
	OwnerCountSlot:      3,
	ThresholdSlot:       4,
	NonceSlot:           5,
	FallbackHandlerSlot: 7,
	GuardStorageSlot:    crypto.Keccak256Hash([]byte("guard_manager.guard.address")),
}

// sentinelAddress is the linked-list sentinel Safe contracts use for
// both the owners list and the modules list (address(0x1)).
var sentinelAddress = common.HexToAddress("0x0000000000000000000000000000000000000001")

// LinkedListSlot computes the storage slot holding the mapping entry
// for `key` in a Safe's owner or module linked list: keccak256(pad32(key) || pad32(mappingSlot)).
func LinkedListSlot(mappingSlot uint64, key common.Address) common.Hash {
	var buf [64]byte
	copy(buf[12:32], key.Bytes())
	var slotWord common.Hash
	slotWord.SetBytes(new(big.Int).SetUint64(mappingSlot).Bytes())
	copy(buf[32:64], slotWord[:])
	return crypto.Keccak256Hash(buf[:])
}

// SentinelAddress is the 0x1 sentinel marking both ends of the owners
// and modules linked lists.
func SentinelAddress() common.Address { return sentinelAddress }
