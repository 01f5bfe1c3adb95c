package keys

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Private is an secp256k1 private key held by the wallet.
type Private struct {
	key secp256k1.PrivateKey
}

// GeneratePrivateKey securely generates an secp256k1 private key.
func GeneratePrivateKey() Private {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		panic(fmt.Sprintf("failed to generate private key; this should be impossible: %v", err))
	}
	return Private{key: *priv}
}

// GeneratePrivateKeyFromRand generates an secp256k1 private key using reader as the entropy source.
func GeneratePrivateKeyFromRand(reader io.Reader) (Private, error) {
	priv, err := secp256k1.GeneratePrivateKeyFromRand(reader)
	if err != nil {
		return Private{}, err
	}
	return Private{key: *priv}, nil
}

// MustGeneratePrivateKeyFromRand generates an secp256k1 private key using reader.
// Meant for testing, it panics if the key cannot be generated.
func MustGeneratePrivateKeyFromRand(reader io.Reader) Private {
	priv, err := GeneratePrivateKeyFromRand(reader)
	if err != nil {
		panic(err)
	}
	return priv
}

// ParsePrivateKey creates an secp256k1 private key from a byte slice. The byte slice must be 32 bytes.
// This is intended for use in deserialization, not for key generation. If you need to generate a key, use
// [GeneratePrivateKey] or, in tests, [MustGeneratePrivateKeyFromRand].
func ParsePrivateKey(privKeyBytes []byte) (Private, error) {
	if len(privKeyBytes) != 32 {
		return Private{}, fmt.Errorf("private key must be 32 bytes")
	}
	pk := Private{key: *secp256k1.PrivKeyFromBytes(privKeyBytes)}
	if pk.key.Key.IsZero() {
		return Private{}, fmt.Errorf("private key must not be zero")
	}
	return pk, nil
}

// PrivateKeyFromBigInt creates an secp256k1 private key from a big integer.
func PrivateKeyFromBigInt(privKeyInt *big.Int) (Private, error) {
	if privKeyInt == nil || len(privKeyInt.Bits()) == 0 {
		return Private{}, fmt.Errorf("private key must not be zero")
	}
	if privKeyInt.BitLen() > 256 {
		return Private{}, fmt.Errorf("private key must not be represented by an Int larger than 32 bytes")
	}

	bytes := make([]byte, 32)
	privKeyInt.FillBytes(bytes)
	return Private{key: *secp256k1.PrivKeyFromBytes(bytes)}, nil
}

// PrivateFromKey creates an secp256k1 private key from an [secp256k1.PrivateKey].
func PrivateFromKey(key secp256k1.PrivateKey) Private {
	return Private{key: key}
}

// Public returns the public key corresponding to this private key.
func (p Private) Public() Public {
	return Public{key: *p.key.PubKey()}
}

// Add adds two private keys using field addition.
func (p Private) Add(b Private) Private {
	var sum secp256k1.ModNScalar
	sum.Add2(&p.key.Key, &b.key.Key)
	return Private{key: *secp256k1.NewPrivateKey(&sum)}
}

// Sub subtracts two private keys using field subtraction.
func (p Private) Sub(b Private) Private {
	var sum secp256k1.ModNScalar
	sum.Set(&b.key.Key).Negate().Add(&p.key.Key)
	return Private{key: *secp256k1.NewPrivateKey(&sum)}
}

// BigInt returns the key as a non-negative integer below the group order.
func (p Private) BigInt() *big.Int {
	return new(big.Int).SetBytes(p.key.Serialize())
}

// ToBTCEC converts this [Private] into a [secp256k1.PrivateKey].
func (p Private) ToBTCEC() *secp256k1.PrivateKey {
	return &p.key
}

// SignECDSA returns the DER encoded ECDSA signature of hash.
func (p Private) SignECDSA(hash []byte) []byte {
	return ecdsa.Sign(&p.key, hash).Serialize()
}

// SignSchnorr returns the 64-byte BIP-340 signature of hash.
func (p Private) SignSchnorr(hash []byte) ([]byte, error) {
	sig, err := schnorr.Sign(&p.key, hash)
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// Equals returns true if p and other represent the equivalent private keys, and false otherwise.
func (p Private) Equals(other Private) bool {
	return p.key.Key.Equals(&other.key.Key)
}

// IsZero returns true if this private key is the empty key, and false otherwise.
func (p Private) IsZero() bool {
	return p.key.Key.IsZero()
}

// ToHex returns the key as a hex-encoded, 256-bit big-endian binary number.
func (p Private) ToHex() string {
	return hex.EncodeToString(p.Serialize())
}

// String returns a redacted form so keys never end up in logs by accident.
func (p Private) String() string {
	if p.IsZero() {
		return "<empty>"
	}
	return "<redacted>"
}

// Serialize returns the key as a 256-bit big-endian binary-encoded number.
func (p Private) Serialize() []byte {
	if p.IsZero() {
		return nil
	}
	return p.key.Serialize()
}

// MarshalJSON implements json.Marshaler interface.
func (p Private) MarshalJSON() ([]byte, error) {
	if p.IsZero() {
		return json.Marshal(nil)
	}
	return json.Marshal(p.Serialize())
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (p *Private) UnmarshalJSON(data []byte) error {
	var bytes []byte
	if err := json.Unmarshal(data, &bytes); err != nil {
		return err
	}

	key, err := ParsePrivateKey(bytes)
	if err != nil {
		return err
	}
	p.key = key.key
	return nil
}
