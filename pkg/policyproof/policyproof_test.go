package policyproof

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/stretchr/testify/require"

	"github.com/safelens/safelens/pkg/reason"
	"github.com/safelens/safelens/pkg/schema"
)

// rlpAccount mirrors pkg/mpt's unexported account encoding so this
// package can build a fixture account leaf independently.
type rlpAccount struct {
	Nonce    uint64
	Balance  *big.Int
	Root     common.Hash
	CodeHash []byte
}

// fixture is a fully self-consistent witnessed Safe: a real MPT account
// proof over a real storage trie holding the owners/modules linked
// lists and the fixed policy slots, built with go-ethereum's own trie
// package so Verify exercises the exact same MPT decoding path a live
// RPC witness would.
type fixture struct {
	safeAddress schema.Address
	proof       *schema.OnchainPolicyProof
	owners      []common.Address
}

var (
	fixtureOwnerA     = common.HexToAddress("0x1111111111111111111111111111111111aaaa")
	fixtureOwnerB     = common.HexToAddress("0x2222222222222222222222222222222222bbbb")
	fixtureGuard      = common.HexToAddress("0x3333333333333333333333333333333333cccc")
	fixtureFallback   = common.HexToAddress("0x4444444444444444444444444444444444dddd")
	fixtureSingleton  = common.HexToAddress("0x5555555555555555555555555555555555eeee")
	fixtureSafe       = common.HexToAddress("0x6666666666666666666666666666666666ffff")
	fixtureThreshold  = uint64(2)
	fixtureNonce      = uint64(7)
)

func addressWord(addr common.Address) [32]byte {
	var word [32]byte
	copy(word[12:32], addr.Bytes())
	return word
}

func uintWord(v uint64) [32]byte {
	var word [32]byte
	new(big.Int).SetUint64(v).FillBytes(word[:])
	return word
}

func encodeWord(word [32]byte) []byte {
	encoded, err := rlp.EncodeToBytes(new(big.Int).SetBytes(word[:]).Bytes())
	if err != nil {
		panic(err)
	}
	return encoded
}

func collectNodes(db *memorydb.Database) []schema.Bytes {
	var nodes []schema.Bytes
	it := db.NewIterator(nil, nil)
	defer it.Release()
	for it.Next() {
		nodes = append(nodes, append(schema.Bytes{}, it.Value()...))
	}
	return nodes
}

// buildFixture constructs a Safe with owners = {fixtureOwnerA, fixtureOwnerB},
// threshold 2, nonce 7, no modules, and nonzero guard/fallbackHandler/singleton.
func buildFixture(t *testing.T) fixture {
	t.Helper()

	owners := []common.Address{fixtureOwnerA, fixtureOwnerB}
	db := triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil)

	storageTrie := trie.NewEmpty(db)

	// owners linked list: sentinel -> A -> B -> sentinel
	current := SentinelAddress()
	for _, owner := range owners {
		slot := LinkedListSlot(StandardLayout.OwnersMappingSlot, current)
		storageTrie.MustUpdate(crypto.Keccak256(slot.Bytes()), encodeWord(addressWord(owner)))
		current = owner
	}
	lastSlot := LinkedListSlot(StandardLayout.OwnersMappingSlot, current)
	storageTrie.MustUpdate(crypto.Keccak256(lastSlot.Bytes()), encodeWord(addressWord(SentinelAddress())))

	// modules linked list: empty (sentinel -> sentinel)
	moduleSlot := LinkedListSlot(StandardLayout.ModulesMappingSlot, SentinelAddress())
	storageTrie.MustUpdate(crypto.Keccak256(moduleSlot.Bytes()), encodeWord(addressWord(SentinelAddress())))

	thresholdSlot := slotHash(StandardLayout.ThresholdSlot)
	storageTrie.MustUpdate(crypto.Keccak256(thresholdSlot.Bytes()), encodeWord(uintWord(fixtureThreshold)))

	nonceSlot := slotHash(StandardLayout.NonceSlot)
	storageTrie.MustUpdate(crypto.Keccak256(nonceSlot.Bytes()), encodeWord(uintWord(fixtureNonce)))

	storageTrie.MustUpdate(crypto.Keccak256(StandardLayout.GuardStorageSlot.Bytes()), encodeWord(addressWord(fixtureGuard)))

	fallbackSlot := slotHash(StandardLayout.FallbackHandlerSlot)
	storageTrie.MustUpdate(crypto.Keccak256(fallbackSlot.Bytes()), encodeWord(addressWord(fixtureFallback)))

	singletonSlot := slotHash(StandardLayout.SingletonSlot)
	storageTrie.MustUpdate(crypto.Keccak256(singletonSlot.Bytes()), encodeWord(addressWord(fixtureSingleton)))

	storageRoot := storageTrie.Hash()

	accountTrie := trie.NewEmpty(db)
	acc := rlpAccount{Nonce: 0, Balance: big.NewInt(0), Root: storageRoot, CodeHash: crypto.Keccak256(nil)}
	accRLP, err := rlp.EncodeToBytes(acc)
	require.NoError(t, err)
	accountKey := crypto.Keccak256(fixtureSafe.Bytes())
	accountTrie.MustUpdate(accountKey, accRLP)
	stateRoot := accountTrie.Hash()

	accountProofDB := memorydb.New()
	require.NoError(t, accountTrie.Prove(accountKey, accountProofDB))
	accountNodes := collectNodes(accountProofDB)

	proveSlot := func(slot common.Hash) schema.StorageProofEntry {
		pdb := memorydb.New()
		key := crypto.Keccak256(slot.Bytes())
		require.NoError(t, storageTrie.Prove(key, pdb))
		var value [32]byte
		copy(value[:], slot[:]) // placeholder, Value is advisory and not checked by Verify
		return schema.StorageProofEntry{Key: schema.Hash(slot), Value: value[:], Nodes: collectNodes(pdb)}
	}

	var storageProof []schema.StorageProofEntry
	current = SentinelAddress()
	for _, owner := range owners {
		storageProof = append(storageProof, proveSlot(LinkedListSlot(StandardLayout.OwnersMappingSlot, current)))
		current = owner
	}
	storageProof = append(storageProof, proveSlot(LinkedListSlot(StandardLayout.OwnersMappingSlot, current)))
	storageProof = append(storageProof, proveSlot(moduleSlot))
	storageProof = append(storageProof, proveSlot(thresholdSlot))
	storageProof = append(storageProof, proveSlot(nonceSlot))
	storageProof = append(storageProof, proveSlot(StandardLayout.GuardStorageSlot))
	storageProof = append(storageProof, proveSlot(fallbackSlot))
	storageProof = append(storageProof, proveSlot(singletonSlot))

	var ownerAddrs []schema.Address
	for _, o := range owners {
		ownerAddrs = append(ownerAddrs, schema.Address(o))
	}

	proof := &schema.OnchainPolicyProof{
		StateRoot:    schema.Hash(stateRoot),
		AccountNodes: accountNodes,
		StorageProof: storageProof,
		DecodedPolicy: schema.DecodedPolicy{
			Owners:          ownerAddrs,
			Threshold:       fixtureThreshold,
			Nonce:           schema.BigInt{Int: *big.NewInt(int64(fixtureNonce))},
			Modules:         nil,
			Guard:           schema.Address(fixtureGuard),
			FallbackHandler: schema.Address(fixtureFallback),
			Singleton:       schema.Address(fixtureSingleton),
		},
	}

	return fixture{safeAddress: schema.Address(fixtureSafe), proof: proof, owners: owners}
}

func TestVerify_ValidProofReconstructsDecodedPolicy(t *testing.T) {
	f := buildFixture(t)

	result := Verify(f.proof, f.safeAddress)
	require.True(t, result.Valid, "mismatches: %v", result.Mismatches)
	require.Empty(t, result.Mismatches)
	require.NotNil(t, result.Policy)
	require.Equal(t, []common.Address{fixtureOwnerA, fixtureOwnerB}, result.Policy.Owners)
	require.Equal(t, fixtureThreshold, result.Policy.Threshold)
	require.Equal(t, fixtureNonce, result.Policy.Nonce)
	require.Empty(t, result.Policy.Modules)
	require.Equal(t, fixtureGuard, result.Policy.Guard)
	require.Equal(t, fixtureFallback, result.Policy.FallbackHandler)
	require.Equal(t, fixtureSingleton, result.Policy.Singleton)
}

func TestVerify_OwnerListReconstructionTerminatesAtSentinel(t *testing.T) {
	f := buildFixture(t)

	result := Verify(f.proof, f.safeAddress)
	require.True(t, result.Valid)
	require.Len(t, result.Policy.Owners, len(f.owners))
	seen := map[common.Address]bool{}
	for _, o := range result.Policy.Owners {
		require.False(t, seen[o], "owner %s reconstructed twice", o.Hex())
		seen[o] = true
		require.NotEqual(t, SentinelAddress(), o)
	}
}

func TestVerify_FlippedMTPNodeByteFailsVerification(t *testing.T) {
	f := buildFixture(t)

	tampered := append(schema.Bytes{}, f.proof.AccountNodes[0]...)
	tampered[len(tampered)-1] ^= 0xff
	f.proof.AccountNodes[0] = tampered

	result := Verify(f.proof, f.safeAddress)
	require.False(t, result.Valid)
	require.Equal(t, reason.ErrPolicyProofInvalid, result.Reason)
	require.NotEmpty(t, result.Mismatches)
}

func TestVerify_DecodedPolicyMismatchReportsFirstField(t *testing.T) {
	f := buildFixture(t)
	f.proof.DecodedPolicy.Threshold = fixtureThreshold + 1

	result := Verify(f.proof, f.safeAddress)
	require.False(t, result.Valid)
	require.NotNil(t, result.Policy)
	require.Contains(t, result.Mismatches, "threshold: mismatch")
}

func TestVerify_UnusedStorageSlotIsNotAccepted(t *testing.T) {
	f := buildFixture(t)

	extraKey := common.HexToAddress("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef").Hash()
	f.proof.StorageProof = append(f.proof.StorageProof, schema.StorageProofEntry{
		Key:   schema.Hash(extraKey),
		Value: []byte{0x01},
		Nodes: []schema.Bytes{{0xc0}},
	})

	result := Verify(f.proof, f.safeAddress)
	require.False(t, result.Valid)
	require.Equal(t, reason.ErrPolicyProofInvalid, result.Reason)
}

func TestVerify_MissingStorageSlotFails(t *testing.T) {
	f := buildFixture(t)
	f.proof.StorageProof = f.proof.StorageProof[:len(f.proof.StorageProof)-1]

	result := Verify(f.proof, f.safeAddress)
	require.False(t, result.Valid)
	require.Equal(t, reason.ErrPolicyProofInvalid, result.Reason)
}
