package common

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lightsparkdev/spark-wallet/common/keys"
)

// GenerateAdaptorFromSignature hides a BIP-340 signature behind a fresh adaptor
// secret t. The returned signature has s' = s - t and only verifies once t is
// added back.
func GenerateAdaptorFromSignature(signature []byte) ([]byte, keys.Private, error) {
	adaptorPrivateKey := keys.GeneratePrivateKey()
	adaptorSig, err := GenerateSignatureFromExistingAdaptor(signature, adaptorPrivateKey)
	if err != nil {
		return nil, keys.Private{}, err
	}
	return adaptorSig, adaptorPrivateKey, nil
}

// GenerateSignatureFromExistingAdaptor subtracts an already chosen adaptor
// secret from a signature, so several refunds can share one adaptor.
func GenerateSignatureFromExistingAdaptor(signature []byte, adaptorPrivateKey keys.Private) ([]byte, error) {
	r, s, err := splitSignature(signature)
	if err != nil {
		return nil, err
	}

	t := adaptorPrivateKey.ToBTCEC().Key
	t.Negate()
	s.Add(&t)
	return joinSignature(r, &s), nil
}

// ValidateAdaptorSignature checks that s'G + T - eP lands on R, the point the
// adapted signature commits to.
func ValidateAdaptorSignature(pubkey keys.Public, hash []byte, signature []byte, adaptorPubkey keys.Public) error {
	if len(hash) != chainhash.HashSize {
		return fmt.Errorf("wrong size for message (got %v, want %v)", len(hash), chainhash.HashSize)
	}
	if _, err := schnorr.ParseSignature(signature); err != nil {
		return err
	}
	r, s, err := splitSignature(signature)
	if err != nil {
		return err
	}

	xOnly, err := schnorr.ParsePubKey(pubkey.SerializeXOnly())
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}

	var rBytes [32]byte
	r.PutBytes(&rBytes)
	commitment := chainhash.TaggedHash(chainhash.TagBIP0340Challenge, rBytes[:], pubkey.SerializeXOnly(), hash)
	var e btcec.ModNScalar
	e.SetBytes((*[32]byte)(commitment))
	e.Negate()

	var p, sG, negEP, t, sum, calculated btcec.JacobianPoint
	xOnly.AsJacobian(&p)
	btcec.ScalarBaseMultNonConst(&s, &sG)
	btcec.ScalarMultNonConst(&e, &p, &negEP)
	adaptorPubkey.ToBTCEC().AsJacobian(&t)

	btcec.AddNonConst(&sG, &negEP, &sum)
	btcec.AddNonConst(&sum, &t, &calculated)

	if (calculated.X.IsZero() && calculated.Y.IsZero()) || calculated.Z.IsZero() {
		return fmt.Errorf("calculated R point is the point at infinity")
	}
	calculated.ToAffine()
	if calculated.Y.IsOdd() {
		return fmt.Errorf("calculated R y-value is odd")
	}
	if !calculated.X.Equals(&r) {
		return fmt.Errorf("calculated R point was not given R")
	}
	return nil
}

// ApplyAdaptorToSignature completes an adapted signature with the adaptor
// secret and returns the serialized BIP-340 signature.
func ApplyAdaptorToSignature(pubkey keys.Public, hash []byte, signature []byte, adaptorPrivateKey keys.Private) ([]byte, error) {
	r, s, err := splitSignature(signature)
	if err != nil {
		return nil, err
	}
	t := adaptorPrivateKey.ToBTCEC().Key
	s.Add(&t)

	completed := schnorr.NewSignature(&r, &s)
	if !completed.Verify(hash, pubkey.ToBTCEC()) {
		return nil, fmt.Errorf("adapted signature does not verify")
	}
	return completed.Serialize(), nil
}

func splitSignature(signature []byte) (btcec.FieldVal, btcec.ModNScalar, error) {
	var r btcec.FieldVal
	var s btcec.ModNScalar
	if len(signature) != schnorr.SignatureSize {
		return r, s, fmt.Errorf("malformed signature: expected %d bytes, got %d", schnorr.SignatureSize, len(signature))
	}
	if overflow := r.SetByteSlice(signature[:32]); overflow {
		return r, s, fmt.Errorf("invalid signature: r >= field prime")
	}
	if overflow := s.SetByteSlice(signature[32:]); overflow {
		return r, s, fmt.Errorf("invalid signature: s >= group order")
	}
	return r, s, nil
}

func joinSignature(r btcec.FieldVal, s *btcec.ModNScalar) []byte {
	out := make([]byte, schnorr.SignatureSize)
	r.PutBytesUnchecked(out[:32])
	s.PutBytesUnchecked(out[32:])
	return out
}
