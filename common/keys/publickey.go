package keys

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Public is an secp256k1 public key.
type Public struct {
	key secp256k1.PublicKey
}

// ParsePublicKey parses an secp256k1 public key encoded according to the format specified by ANSI X9.62-1998.
// For more information, see secp256k1.ParsePubKey.
func ParsePublicKey(bytes []byte) (Public, error) {
	key, err := secp256k1.ParsePubKey(bytes)
	if err != nil {
		return Public{}, err
	}
	return Public{key: *key}, nil
}

// ParsePublicKeyHex parses an secp256k1 public key hex-encoded according to the format specified
// by ANSI X9.62-1998.
func ParsePublicKeyHex(s string) (Public, error) {
	bytes, err := hex.DecodeString(s)
	if err != nil {
		return Public{}, err
	}

	return ParsePublicKey(bytes)
}

// MustParsePublicKeyHex parses a hex-encoded public key. Meant for testing, it panics if the key
// cannot be parsed.
func MustParsePublicKeyHex(s string) Public {
	key, err := ParsePublicKeyHex(s)
	if err != nil {
		panic(err)
	}
	return key
}

// publicKeyFromInts creates an secp256k1 public key from x and y big integers. x and y must not be nil, and must be
// on the secp256k1 curve.
func publicKeyFromInts(x, y *big.Int) Public {
	xFieldVal := secp256k1.FieldVal{}
	if xFieldVal.SetByteSlice(x.Bytes()) {
		xFieldVal.Normalize()
	}
	yFieldVal := secp256k1.FieldVal{}
	if yFieldVal.SetByteSlice(y.Bytes()) {
		yFieldVal.Normalize()
	}

	return Public{key: *secp256k1.NewPublicKey(&xFieldVal, &yFieldVal)}
}

// PublicKeyFromKey creates a Public from an [secp256k1.PublicKey].
func PublicKeyFromKey(key secp256k1.PublicKey) Public {
	return Public{key: key}
}

// Add returns the sum of p and b using group addition.
func (p Public) Add(b Public) Public {
	var pj, bj, sum secp256k1.JacobianPoint
	p.key.AsJacobian(&pj)
	b.key.AsJacobian(&bj)
	secp256k1.AddNonConst(&pj, &bj, &sum)
	sum.ToAffine()
	return Public{key: *secp256k1.NewPublicKey(&sum.X, &sum.Y)}
}

// Sub subtracts b from p.
func (p Public) Sub(b Public) Public {
	return p.Add(b.Neg())
}

// Neg returns the additive inverse of p.
func (p Public) Neg() Public {
	negY := new(big.Int).Sub(secp256k1.S256().P, p.key.Y())
	return publicKeyFromInts(p.key.X(), negY)
}

// ToBTCEC converts this [Public] into a [*secp256k1.PublicKey].
func (p Public) ToBTCEC() *secp256k1.PublicKey {
	return &p.key
}

type signature interface {
	Verify([]byte, *secp256k1.PublicKey) bool
}

// Verify returns whether the provided signature is valid for the provided hash and this public key.
func (p Public) Verify(sig signature, hash []byte) bool {
	return sig.Verify(hash, &p.key)
}

// VerifyECDSA checks a DER encoded ECDSA signature over hash.
func (p Public) VerifyECDSA(der []byte, hash []byte) error {
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return fmt.Errorf("malformed ecdsa signature: %w", err)
	}
	if !sig.Verify(hash, &p.key) {
		return fmt.Errorf("ecdsa signature does not match public key %s", p)
	}
	return nil
}

// VerifySchnorr checks a 64-byte BIP-340 signature over hash.
func (p Public) VerifySchnorr(sigBytes []byte, hash []byte) error {
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("malformed schnorr signature: %w", err)
	}
	if !sig.Verify(hash, &p.key) {
		return fmt.Errorf("schnorr signature does not match public key %s", p)
	}
	return nil
}

// Equals returns true if p and other represent equivalent public keys, and false otherwise.
func (p Public) Equals(other Public) bool {
	return p.key.IsEqual(&other.key)
}

// IsZero returns true if this public key is the empty key, and false otherwise.
func (p Public) IsZero() bool {
	return p == Public{}
}

// ToHex returns the compressed key, hex-encoded.
func (p Public) ToHex() string {
	return hex.EncodeToString(p.Serialize())
}

// String returns the compressed key, hex-encoded. It's equivalent to ToHex, but implements fmt.Stringer.
func (p Public) String() string {
	return p.ToHex()
}

// Serialize serializes this key into the 33-byte compressed format. It is equivalent to [secp256k1.PublicKey.SerializeCompressed].
func (p Public) Serialize() []byte {
	if p.IsZero() {
		return nil
	}
	return p.key.SerializeCompressed()
}

// SerializeXOnly serializes this key into the 32-byte x-only format. It is equivalent to [schnorr.SerializePubKey].
func (p Public) SerializeXOnly() []byte {
	if p.IsZero() {
		return nil
	}
	return schnorr.SerializePubKey(&p.key)
}

// MarshalText encodes the key as hex so it can live in YAML and JSON config files.
func (p Public) MarshalText() ([]byte, error) {
	return []byte(p.ToHex()), nil
}

// UnmarshalText parses a hex-encoded compressed key.
func (p *Public) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		p.key = secp256k1.PublicKey{}
		return nil
	}
	key, err := ParsePublicKeyHex(string(text))
	if err != nil {
		return err
	}
	p.key = key.key
	return nil
}

// MarshalJSON implements json.Marshaler interface.
func (p Public) MarshalJSON() ([]byte, error) {
	if p.IsZero() {
		return json.Marshal(nil)
	}
	return json.Marshal(p.ToHex())
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (p *Public) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil {
		p.key = secp256k1.PublicKey{}
		return nil
	}
	return p.UnmarshalText([]byte(*s))
}
