// Package secretsharing implements Shamir secret sharing over the secp256k1
// scalar field, with Feldman commitments so that each share can be checked
// against the polynomial it came from.
package secretsharing

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

// SecretShare is one evaluation of the sharing polynomial.
type SecretShare struct {
	FieldModulus *big.Int
	Threshold    int
	Index        *big.Int
	Share        *big.Int
}

// GetSecretShare lets RecoverSecret accept both plain and verifiable shares.
func (s *SecretShare) GetSecretShare() *SecretShare {
	return s
}

// VerifiableSecretShare is a share together with the compressed commitments
// to every polynomial coefficient.
type VerifiableSecretShare struct {
	SecretShare
	Proofs [][]byte
}

// MarshalProto converts the share to its wire form.
func (v *VerifiableSecretShare) MarshalProto() *pb.SecretShare {
	return &pb.SecretShare{
		SecretShare: v.Share.Bytes(),
		Proofs:      v.Proofs,
	}
}

type shareProvider interface {
	GetSecretShare() *SecretShare
}

type polynomial struct {
	fieldModulus *big.Int
	coefficients []*big.Int
}

func newPolynomial(reader io.Reader, secret *big.Int, fieldModulus *big.Int, degree int) (*polynomial, error) {
	coefficients := make([]*big.Int, degree+1)
	coefficients[0] = new(big.Int).Mod(secret, fieldModulus)
	for i := 1; i <= degree; i++ {
		c, err := rand.Int(reader, fieldModulus)
		if err != nil {
			return nil, fmt.Errorf("failed to generate coefficient: %w", err)
		}
		coefficients[i] = c
	}
	return &polynomial{fieldModulus: fieldModulus, coefficients: coefficients}, nil
}

func (p *polynomial) evaluate(x *big.Int) *big.Int {
	result := new(big.Int)
	for i := len(p.coefficients) - 1; i >= 0; i-- {
		result.Mul(result, x)
		result.Add(result, p.coefficients[i])
		result.Mod(result, p.fieldModulus)
	}
	return result
}

func validateParams(fieldModulus *big.Int, threshold int, numberOfShares int) error {
	if fieldModulus == nil || fieldModulus.Sign() <= 0 {
		return fmt.Errorf("field modulus must be positive")
	}
	if threshold < 1 {
		return fmt.Errorf("threshold must be at least 1, got %d", threshold)
	}
	if numberOfShares < 1 {
		return fmt.Errorf("number of shares must be at least 1, got %d", numberOfShares)
	}
	return nil
}

// SplitSecret splits secret into numberOfShares shares, any threshold of which
// recover it. Share indexes run from 1 to numberOfShares.
func SplitSecret(secret *big.Int, fieldModulus *big.Int, threshold int, numberOfShares int) ([]*SecretShare, error) {
	if err := validateParams(fieldModulus, threshold, numberOfShares); err != nil {
		return nil, err
	}
	poly, err := newPolynomial(rand.Reader, secret, fieldModulus, threshold-1)
	if err != nil {
		return nil, err
	}
	return evaluateShares(poly, threshold, numberOfShares), nil
}

func evaluateShares(poly *polynomial, threshold int, numberOfShares int) []*SecretShare {
	shares := make([]*SecretShare, numberOfShares)
	for i := range numberOfShares {
		index := big.NewInt(int64(i + 1))
		shares[i] = &SecretShare{
			FieldModulus: poly.fieldModulus,
			Threshold:    threshold,
			Index:        index,
			Share:        poly.evaluate(index),
		}
	}
	return shares
}

// SplitSecretWithProofs is SplitSecret, with each share carrying commitments
// to the polynomial coefficients. The modulus must be the secp256k1 group order.
func SplitSecretWithProofs(secret *big.Int, fieldModulus *big.Int, threshold int, numberOfShares int) ([]*VerifiableSecretShare, error) {
	return SplitSecretWithProofsFromRand(rand.Reader, secret, fieldModulus, threshold, numberOfShares)
}

// SplitSecretWithProofsFromRand is SplitSecretWithProofs with an explicit entropy source.
func SplitSecretWithProofsFromRand(reader io.Reader, secret *big.Int, fieldModulus *big.Int, threshold int, numberOfShares int) ([]*VerifiableSecretShare, error) {
	if err := validateParams(fieldModulus, threshold, numberOfShares); err != nil {
		return nil, err
	}
	if fieldModulus.Cmp(secp256k1.S256().N) != 0 {
		return nil, fmt.Errorf("verifiable shares require the secp256k1 group order as modulus")
	}
	poly, err := newPolynomial(reader, secret, fieldModulus, threshold-1)
	if err != nil {
		return nil, err
	}

	proofs := make([][]byte, len(poly.coefficients))
	for i, coefficient := range poly.coefficients {
		point, err := commit(coefficient)
		if err != nil {
			return nil, fmt.Errorf("failed to commit to coefficient %d: %w", i, err)
		}
		proofs[i] = point
	}

	plain := evaluateShares(poly, threshold, numberOfShares)
	shares := make([]*VerifiableSecretShare, numberOfShares)
	for i, share := range plain {
		shareProofs := make([][]byte, len(proofs))
		for j, proof := range proofs {
			shareProofs[j] = append([]byte(nil), proof...)
		}
		shares[i] = &VerifiableSecretShare{SecretShare: *share, Proofs: shareProofs}
	}
	return shares, nil
}

func scalarFromBigInt(n *big.Int) *secp256k1.ModNScalar {
	var buf [32]byte
	new(big.Int).Mod(n, secp256k1.S256().N).FillBytes(buf[:])
	var s secp256k1.ModNScalar
	s.SetBytes(&buf)
	return &s
}

func commit(coefficient *big.Int) ([]byte, error) {
	var point secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(scalarFromBigInt(coefficient), &point)
	if (point.X.IsZero() && point.Y.IsZero()) || point.Z.IsZero() {
		return nil, fmt.Errorf("commitment is the point at infinity")
	}
	point.ToAffine()
	return secp256k1.NewPublicKey(&point.X, &point.Y).SerializeCompressed(), nil
}

// ValidateShare checks share*G against the commitments evaluated at the share index.
func ValidateShare(share *VerifiableSecretShare) error {
	if share == nil || share.Share == nil || share.Index == nil {
		return fmt.Errorf("share is incomplete")
	}
	if len(share.Proofs) == 0 {
		return fmt.Errorf("share has no proofs")
	}

	var expected secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(scalarFromBigInt(share.Share), &expected)

	var sum secp256k1.JacobianPoint
	power := big.NewInt(1)
	for i, proof := range share.Proofs {
		pubKey, err := secp256k1.ParsePubKey(proof)
		if err != nil {
			return fmt.Errorf("proof %d: %w", i, err)
		}
		var commitment, term, next secp256k1.JacobianPoint
		pubKey.AsJacobian(&commitment)
		secp256k1.ScalarMultNonConst(scalarFromBigInt(power), &commitment, &term)
		secp256k1.AddNonConst(&sum, &term, &next)
		sum = next

		power = new(big.Int).Mul(power, share.Index)
		power.Mod(power, secp256k1.S256().N)
	}

	expected.ToAffine()
	sum.ToAffine()
	if !expected.X.Equals(&sum.X) || !expected.Y.Equals(&sum.Y) {
		return fmt.Errorf("share %s does not match its proofs", share.Index)
	}
	return nil
}

// RecoverSecret interpolates the polynomial at zero. It needs at least
// threshold shares with distinct indexes.
func RecoverSecret[S shareProvider](shares []S) (*big.Int, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("no shares provided")
	}
	first := shares[0].GetSecretShare()
	if len(shares) < first.Threshold {
		return nil, fmt.Errorf("not enough shares to recover secret: have %d, need %d", len(shares), first.Threshold)
	}
	modulus := first.FieldModulus

	seen := make(map[string]bool, len(shares))
	for _, s := range shares {
		share := s.GetSecretShare()
		key := share.Index.String()
		if seen[key] {
			return nil, fmt.Errorf("duplicate share index %s", key)
		}
		seen[key] = true
	}

	result := new(big.Int)
	for i, si := range shares {
		shareI := si.GetSecretShare()
		numerator := big.NewInt(1)
		denominator := big.NewInt(1)
		for j, sj := range shares {
			if i == j {
				continue
			}
			xj := sj.GetSecretShare().Index
			numerator.Mul(numerator, xj)
			numerator.Mod(numerator, modulus)
			diff := new(big.Int).Sub(xj, shareI.Index)
			denominator.Mul(denominator, diff)
			denominator.Mod(denominator, modulus)
		}
		inverse := new(big.Int).ModInverse(denominator, modulus)
		if inverse == nil {
			return nil, fmt.Errorf("share indexes are not invertible modulo the field")
		}
		term := new(big.Int).Mul(shareI.Share, numerator)
		term.Mul(term, inverse)
		result.Add(result, term)
		result.Mod(result, modulus)
	}
	return result, nil
}
