package frost

import (
	"errors"
	"fmt"
	"io"

	"github.com/lightsparkdev/spark-wallet/common/keys"
	pbfrost "github.com/lightsparkdev/spark-wallet/proto/frost"
)

// SigningNonce is the private part of a round-one nonce. A nonce must be used
// for exactly one signature.
type SigningNonce struct {
	binding keys.Private
	hiding  keys.Private
}

// GenerateSigningNonce generates a random signing nonce using a CSPRNG.
func GenerateSigningNonce() SigningNonce {
	return SigningNonce{binding: keys.GeneratePrivateKey(), hiding: keys.GeneratePrivateKey()}
}

// GenerateSigningNonceFromRand draws a nonce from reader. Meant for tests.
func GenerateSigningNonceFromRand(reader io.Reader) (SigningNonce, error) {
	binding, err := keys.GeneratePrivateKeyFromRand(reader)
	if err != nil {
		return SigningNonce{}, err
	}
	hiding, err := keys.GeneratePrivateKeyFromRand(reader)
	if err != nil {
		return SigningNonce{}, err
	}
	return SigningNonce{binding: binding, hiding: hiding}, nil
}

// NewSigningNonce creates a new SigningNonce from the given binding and hiding values.
// It returns an error if either is an empty key.
func NewSigningNonce(binding, hiding keys.Private) (SigningNonce, error) {
	if binding.IsZero() {
		return SigningNonce{}, errors.New("binding is zero")
	}
	if hiding.IsZero() {
		return SigningNonce{}, errors.New("hiding is zero")
	}
	return SigningNonce{binding: binding, hiding: hiding}, nil
}

// SigningCommitment returns the [SigningCommitment] for this nonce.
func (s *SigningNonce) SigningCommitment() SigningCommitment {
	return SigningCommitment{binding: s.binding.Public(), hiding: s.hiding.Public()}
}

// MarshalBinary returns the 64-byte concatenation of the binding and hiding values.
func (s SigningNonce) MarshalBinary() []byte {
	return append(s.binding.Serialize(), s.hiding.Serialize()...)
}

func (s *SigningNonce) UnmarshalBinary(data []byte) error {
	if len(data) != 64 {
		return fmt.Errorf("invalid nonce length %d", len(data))
	}
	return s.unmarshalFromBytes(data[:32], data[32:])
}

// MarshalProto converts the nonce to the form the FROST signer accepts.
func (s SigningNonce) MarshalProto() *pbfrost.SigningNonce {
	return &pbfrost.SigningNonce{
		Binding: s.binding.Serialize(),
		Hiding:  s.hiding.Serialize(),
	}
}

func (s *SigningNonce) UnmarshalProto(proto *pbfrost.SigningNonce) error {
	if proto == nil {
		return errors.New("cannot unmarshal signing nonce: nil proto")
	}
	return s.unmarshalFromBytes(proto.Binding, proto.Hiding)
}

func (s *SigningNonce) unmarshalFromBytes(bindingBytes, hidingBytes []byte) error {
	binding, err := keys.ParsePrivateKey(bindingBytes)
	if err != nil {
		return fmt.Errorf("invalid signing nonce binding: %w", err)
	}
	hiding, err := keys.ParsePrivateKey(hidingBytes)
	if err != nil {
		return fmt.Errorf("invalid signing nonce hiding: %w", err)
	}
	s.binding = binding
	s.hiding = hiding
	return nil
}
