package so

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"slices"

	"github.com/goccy/go-yaml"

	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	"github.com/lightsparkdev/spark-wallet/common/keys"
)

// SigningOperator is one member of the operator federation.
type SigningOperator struct {
	// ID is the index of the signing operator, starting at 0.
	ID uint64 `json:"id"`
	// Identifier is ID + 1 as a 32 byte big endian hex string. It is the
	// identifier used for the operator's shamir secret shares.
	Identifier string `json:"identifier"`
	// AddressRpc is the address of the operator's RPC endpoint.
	AddressRpc string `json:"address"`
	// IdentityPublicKey is the identity public key of the operator.
	IdentityPublicKey keys.Public `json:"identity_public_key"`
	// CertPath is the path to a CA certificate for TLS. Plaintext is used when nil.
	CertPath *string `json:"cert_path,omitempty"`
}

// ShareIndex is the x coordinate of this operator's secret shares.
func (o *SigningOperator) ShareIndex() *big.Int {
	return new(big.Int).SetUint64(o.ID + 1)
}

// IdentifierFromIndex returns the operator identifier for an operator index.
func IdentifierFromIndex(index uint64) string {
	return fmt.Sprintf("%064x", index+1)
}

// Registry is the configured operator federation: every operator, the
// coordinator used for single-operator calls, and the signing threshold.
type Registry struct {
	operators   map[string]*SigningOperator
	ordered     []*SigningOperator
	coordinator string
	threshold   int

	identifierByIdentityKey map[keys.Public]string
}

type registryFile struct {
	Operators   []*SigningOperator `json:"operators"`
	Coordinator string             `json:"coordinator"`
	Threshold   int                `json:"threshold"`
}

// NewRegistry validates the operator set and builds a registry.
func NewRegistry(operators []*SigningOperator, coordinatorIdentifier string, threshold int) (*Registry, error) {
	if len(operators) == 0 {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("no signing operators configured"))
	}
	r := &Registry{
		operators:               make(map[string]*SigningOperator, len(operators)),
		coordinator:             coordinatorIdentifier,
		threshold:               threshold,
		identifierByIdentityKey: make(map[keys.Public]string, len(operators)),
	}
	seenIDs := make(map[uint64]bool, len(operators))
	for _, operator := range operators {
		if operator == nil {
			return nil, sparkerrors.ValidationMissingField(fmt.Errorf("nil signing operator"))
		}
		if operator.Identifier != IdentifierFromIndex(operator.ID) {
			return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("operator %d has identifier %s, expected %s", operator.ID, operator.Identifier, IdentifierFromIndex(operator.ID)))
		}
		if _, ok := r.operators[operator.Identifier]; ok || seenIDs[operator.ID] {
			return nil, sparkerrors.ValidationDuplicateField(fmt.Errorf("duplicate signing operator %s", operator.Identifier))
		}
		if operator.IdentityPublicKey.IsZero() {
			return nil, sparkerrors.ValidationMissingField(fmt.Errorf("operator %s has no identity public key", operator.Identifier))
		}
		if operator.AddressRpc == "" {
			return nil, sparkerrors.ValidationMissingField(fmt.Errorf("operator %s has no address", operator.Identifier))
		}
		seenIDs[operator.ID] = true
		r.operators[operator.Identifier] = operator
		r.identifierByIdentityKey[operator.IdentityPublicKey] = operator.Identifier
		r.ordered = append(r.ordered, operator)
	}
	slices.SortFunc(r.ordered, func(a, b *SigningOperator) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})

	if threshold < 1 || threshold > len(operators) {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("threshold %d is out of range for %d operators", threshold, len(operators)))
	}
	if _, ok := r.operators[coordinatorIdentifier]; !ok {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("coordinator %s is not a configured operator", coordinatorIdentifier))
	}
	return r, nil
}

// LoadRegistry loads the operators, coordinator and threshold from a YAML file.
func LoadRegistry(filePath string) (*Registry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParseRegistry(data)
}

// ParseRegistry parses a YAML registry document.
func ParseRegistry(data []byte) (*Registry, error) {
	var yamlObj any
	if err := yaml.Unmarshal(data, &yamlObj); err != nil {
		return nil, err
	}

	jsonStr, err := json.Marshal(yamlObj)
	if err != nil {
		return nil, err
	}

	var file registryFile
	if err := json.Unmarshal(jsonStr, &file); err != nil {
		return nil, err
	}
	return NewRegistry(file.Operators, file.Coordinator, file.Threshold)
}

// Operators returns every operator ordered by ID.
func (r *Registry) Operators() []*SigningOperator {
	return slices.Clone(r.ordered)
}

func (r *Registry) Operator(identifier string) (*SigningOperator, bool) {
	operator, ok := r.operators[identifier]
	return operator, ok
}

func (r *Registry) Coordinator() *SigningOperator {
	return r.operators[r.coordinator]
}

func (r *Registry) Threshold() int {
	return r.threshold
}

func (r *Registry) Len() int {
	return len(r.ordered)
}

// OperatorByIdentityPublicKey finds the operator owning an identity key.
func (r *Registry) OperatorByIdentityPublicKey(identityPublicKey keys.Public) (*SigningOperator, bool) {
	identifier, ok := r.identifierByIdentityKey[identityPublicKey]
	if !ok {
		return nil, false
	}
	return r.operators[identifier], true
}

// IdentityPublicKeys returns the operators' identity keys ordered by ID.
func (r *Registry) IdentityPublicKeys() []keys.Public {
	out := make([]keys.Public, len(r.ordered))
	for i, operator := range r.ordered {
		out[i] = operator.IdentityPublicKey
	}
	return out
}

// CheckKeyshareInfo verifies that keyshare metadata returned by an operator
// describes exactly the configured federation.
func (r *Registry) CheckKeyshareInfo(ownerIdentifiers []string, threshold uint32) error {
	if len(ownerIdentifiers) != len(r.operators) {
		return sparkerrors.ValidationKeyshareMismatch(fmt.Errorf("keyshare has %d owners, expected %d", len(ownerIdentifiers), len(r.operators)))
	}
	seen := make(map[string]bool, len(ownerIdentifiers))
	for _, identifier := range ownerIdentifiers {
		if _, ok := r.operators[identifier]; !ok {
			return sparkerrors.ValidationKeyshareMismatch(fmt.Errorf("keyshare owner %s is not a configured operator", identifier))
		}
		if seen[identifier] {
			return sparkerrors.ValidationKeyshareMismatch(fmt.Errorf("keyshare owner %s is listed twice", identifier))
		}
		seen[identifier] = true
	}
	if threshold == 0 || int(threshold) > len(r.operators) {
		return sparkerrors.ValidationKeyshareMismatch(fmt.Errorf("keyshare threshold %d is out of range for %d operators", threshold, len(r.operators)))
	}
	return nil
}
