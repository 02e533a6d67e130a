// Package signature independently verifies the packed ECDSA signatures
// a Safe owner produces over a safeTxHash, classifying each by the
// packed-v scheme the Safe contracts use (standard ECDSA, eth_sign,
// pre-approved hash, EIP-1271 contract signature).
package signature

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/safelens/safelens/pkg/reason"
	"github.com/safelens/safelens/pkg/schema"
)

// secp256k1HalfN is the upper bound a canonical (low-s) signature's s
// value must not exceed. Any signature with a higher s is a valid but
// malleable duplicate and is rejected outright, matching the Safe
// contracts' own signature hygiene check.
var secp256k1HalfN = new(big.Int).Rsh(crypto.S256().Params().N, 1)

// ethSignedMessagePrefix is the prefix Ethereum wallets prepend before
// signing an arbitrary 32-byte hash via personal_sign / eth_sign.
const ethSignedMessagePrefix = "\x19Ethereum Signed Message:\n32"

// Outcome is the per-confirmation verification result.
type Outcome struct {
	Owner        schema.Address
	Scheme       reason.Code
	Valid        bool
	Reason       reason.Code
	RecoveredTo  schema.Address // zero unless Scheme requires recovery
}

// Result is the verification outcome across every confirmation in a
// package, preserving submission order.
type Result struct {
	Outcomes  []Outcome
	Proposer  schema.Address // first confirmation whose signature is valid
	HasProposer bool
	ValidCount  uint64
}

// Verify checks every confirmation's signature against safeTxHash,
// classifying each by its packed-v scheme. approvedHashes reports
// whether an owner has approved the exact hash; a pre-approved-hash
// confirmation verifies only when it is set for that owner, and
// pkg/verify passes nil. ownerSet, when non-nil, is the set of owners
// a v=0/v=1 signer must belong to. EIP-1271 contract signatures (v=0)
// are never marked valid.
func Verify(safeTxHash schema.Hash, confirmations []schema.Confirmation, ownerSet map[schema.Address]bool, approvedHashes map[schema.Address]bool) Result {
	var result Result
	for _, conf := range confirmations {
		outcome := verifyOne(safeTxHash, conf, ownerSet, approvedHashes)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Valid {
			result.ValidCount++
			if !result.HasProposer {
				result.HasProposer = true
				result.Proposer = conf.Owner
			}
		}
	}
	return result
}

func verifyOne(safeTxHash schema.Hash, conf schema.Confirmation, ownerSet map[schema.Address]bool, approvedHashes map[schema.Address]bool) Outcome {
	sig := conf.Signature
	if len(sig) != 65 {
		return Outcome{Owner: conf.Owner, Valid: false, Reason: reason.ErrInvalidSignature}
	}

	r := new(big.Int).SetBytes(sig[0:32])
	s := new(big.Int).SetBytes(sig[32:64])
	v := sig[64]

	switch {
	case v == 0:
		return verifyContractSignature(conf.Owner, ownerSet)
	case v == 1:
		return verifyPreApproved(conf.Owner, safeTxHash, ownerSet, approvedHashes)
	case v == 27 || v == 28:
		return verifyECDSA(safeTxHash[:], conf.Owner, r, s, v, reason.SigSchemeECDSA, false)
	case v == 31 || v == 32:
		digest := ethSignedDigest(safeTxHash)
		return verifyECDSA(digest[:], conf.Owner, r, s, v-4, reason.SigSchemeEthSign, false)
	default:
		return Outcome{Owner: conf.Owner, Valid: false, Reason: reason.ErrInvalidV}
	}
}

func verifyECDSA(digest []byte, owner schema.Address, r, s *big.Int, v byte, scheme reason.Code, allowHighS bool) Outcome {
	if !allowHighS && s.Cmp(secp256k1HalfN) > 0 {
		return Outcome{Owner: owner, Scheme: scheme, Valid: false, Reason: reason.ErrInvalidSignature}
	}

	sig := make([]byte, 65)
	r.FillBytes(sig[0:32])
	s.FillBytes(sig[32:64])
	sig[64] = v - 27

	pubkey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return Outcome{Owner: owner, Scheme: scheme, Valid: false, Reason: reason.ErrInvalidSignature}
	}

	var recovered schema.Address
	copy(recovered[:], crypto.PubkeyToAddress(*pubkey).Bytes())

	if recovered != owner {
		return Outcome{Owner: owner, Scheme: scheme, Valid: false, Reason: reason.ErrInvalidSignature, RecoveredTo: recovered}
	}
	return Outcome{Owner: owner, Scheme: scheme, Valid: true, RecoveredTo: recovered}
}

func verifyPreApproved(owner schema.Address, safeTxHash schema.Hash, ownerSet map[schema.Address]bool, approvedHashes map[schema.Address]bool) Outcome {
	if ownerSet != nil && !ownerSet[owner] {
		return Outcome{Owner: owner, Scheme: reason.SigSchemePreApproved, Valid: false, Reason: reason.ErrInvalidSignature}
	}
	if approvedHashes == nil || !approvedHashes[owner] {
		return Outcome{Owner: owner, Scheme: reason.SigSchemePreApproved, Valid: false, Reason: reason.ErrInvalidSignature}
	}
	_ = safeTxHash
	return Outcome{Owner: owner, Scheme: reason.SigSchemePreApproved, Valid: true}
}

func verifyContractSignature(owner schema.Address, ownerSet map[schema.Address]bool) Outcome {
	// EIP-1271 contract signatures require calling isValidSignature on
	// the owner contract, which needs live RPC access SafeLens's
	// verification core never performs. The scheme is still classified
	// and reported, but cannot be marked valid from package data alone.
	if ownerSet != nil && !ownerSet[owner] {
		return Outcome{Owner: owner, Scheme: reason.SigSchemeContract, Valid: false, Reason: reason.ErrInvalidSignature}
	}
	return Outcome{Owner: owner, Scheme: reason.SigSchemeContract, Valid: false, Reason: reason.ErrInvalidSignature}
}

func ethSignedDigest(safeTxHash schema.Hash) common.Hash {
	msg := append([]byte(ethSignedMessagePrefix), safeTxHash[:]...)
	return crypto.Keccak256Hash(msg)
}

// ErrOutOfRange builds the error for a v byte that is not a recognized
// Safe scheme. Verify does not call it; it reports such a byte as
// reason.ErrInvalidV.
func ErrOutOfRange(v byte) error {
	return fmt.Errorf("signature: v byte %d is not a recognized Safe scheme", v)
}
