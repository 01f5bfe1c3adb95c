package frost

import (
	"errors"
	"fmt"

	"github.com/lightsparkdev/spark-wallet/common/keys"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

// SigningCommitment is the public part of a [SigningNonce]: the public keys of its
// binding and hiding parts. It is what a participant publishes in round one.
type SigningCommitment struct {
	binding keys.Public
	hiding  keys.Public
}

// NewSigningCommitment creates a new SigningCommitment from the given binding and hiding values.
func NewSigningCommitment(binding, hiding keys.Public) (SigningCommitment, error) {
	if binding.IsZero() {
		return SigningCommitment{}, errors.New("binding must not be zero")
	}
	if hiding.IsZero() {
		return SigningCommitment{}, errors.New("hiding must not be zero")
	}
	return SigningCommitment{binding: binding, hiding: hiding}, nil
}

func (s SigningCommitment) Binding() keys.Public { return s.binding }

func (s SigningCommitment) Hiding() keys.Public { return s.hiding }

// MarshalBinary serializes the SigningCommitment into a 66-byte slice.
func (s SigningCommitment) MarshalBinary() []byte {
	return append(s.binding.Serialize(), s.hiding.Serialize()...)
}

// UnmarshalBinary deserializes the SigningCommitment from a byte slice.
func (s *SigningCommitment) UnmarshalBinary(data []byte) error {
	if len(data) != 66 {
		return fmt.Errorf("invalid nonce commitment length %d", len(data))
	}
	return s.unmarshalFromBytes(data[:33], data[33:])
}

// MarshalProto converts the commitment to its wire form.
func (s SigningCommitment) MarshalProto() *pb.SigningCommitment {
	return &pb.SigningCommitment{
		Binding: s.binding.Serialize(),
		Hiding:  s.hiding.Serialize(),
	}
}

// UnmarshalProto fills the commitment from its wire form.
func (s *SigningCommitment) UnmarshalProto(proto *pb.SigningCommitment) error {
	if proto == nil {
		return errors.New("cannot unmarshal signing commitment: nil proto")
	}
	return s.unmarshalFromBytes(proto.Binding, proto.Hiding)
}

// ParseCommitmentMap validates every commitment in an operator-keyed map.
func ParseCommitmentMap(commitments map[string]*pb.SigningCommitment) (map[string]SigningCommitment, error) {
	parsed := make(map[string]SigningCommitment, len(commitments))
	for id, c := range commitments {
		var commitment SigningCommitment
		if err := commitment.UnmarshalProto(c); err != nil {
			return nil, fmt.Errorf("commitment from %s: %w", id, err)
		}
		parsed[id] = commitment
	}
	return parsed, nil
}

func (s *SigningCommitment) unmarshalFromBytes(bindingBytes, hidingBytes []byte) error {
	binding, err := keys.ParsePublicKey(bindingBytes)
	if err != nil {
		return fmt.Errorf("invalid signing commitment binding: %w", err)
	}
	hiding, err := keys.ParsePublicKey(hidingBytes)
	if err != nil {
		return fmt.Errorf("invalid signing commitment hiding: %w", err)
	}
	s.binding = binding
	s.hiding = hiding
	return nil
}
