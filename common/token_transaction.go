package common

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"slices"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	"github.com/lightsparkdev/spark-wallet/common/keys"
	"github.com/lightsparkdev/spark-wallet/common/uint128"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

// MaxInputOrOutputTokenTransactionOutputs defines the maximum number of input or token outputs allowed in a token transaction.
const MaxInputOrOutputTokenTransactionOutputs = 500

// TokenTransactionType represents the type of input in a token transaction
type TokenTransactionType int

const (
	TokenTransactionTypeUnknown TokenTransactionType = iota
	TokenTransactionTypeMint
	TokenTransactionTypeTransfer
)

// String returns the string representation of the token transaction type
func (t TokenTransactionType) String() string {
	switch t {
	case TokenTransactionTypeMint:
		return "MINT"
	case TokenTransactionTypeTransfer:
		return "TRANSFER"
	default:
		return "UNKNOWN"
	}
}

// InferTokenTransactionType validates that exactly one input type is present and returns it
func InferTokenTransactionType(tokenTransaction *pb.TokenTransaction) (TokenTransactionType, error) {
	switch tokenTransaction.GetTokenInputs().(type) {
	case *pb.TokenTransaction_MintInput:
		return TokenTransactionTypeMint, nil
	case *pb.TokenTransaction_TransferInput:
		return TokenTransactionTypeTransfer, nil
	default:
		return TokenTransactionTypeUnknown, sparkerrors.ValidationMissingField(fmt.Errorf("token transaction must have exactly one of mint_input or transfer_input"))
	}
}

// HashTokenTransaction generates a SHA256 hash of the TokenTransaction by:
// 1. Taking SHA256 of each field individually
// 2. Concatenating all field hashes in order
// 3. Taking SHA256 of the concatenated hashes
// If partialHash is true generate a partial hash even if the provided transaction is final.
func HashTokenTransaction(tokenTransaction *pb.TokenTransaction, partialHash bool) ([]byte, error) {
	if tokenTransaction == nil {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("token transaction cannot be nil"))
	}

	inputType, err := InferTokenTransactionType(tokenTransaction)
	if err != nil {
		return nil, err
	}

	h := sha256.New()
	var allHashes []byte

	var inputHashes []byte
	switch inputType {
	case TokenTransactionTypeTransfer:
		inputHashes, err = hashTransferInput(h, tokenTransaction.GetTransferInput())
	case TokenTransactionTypeMint:
		inputHashes, err = hashMintInput(h, tokenTransaction.GetMintInput())
	default:
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("token transaction type %s is not valid", inputType))
	}
	if err != nil {
		return nil, err
	}
	allHashes = append(allHashes, inputHashes...)

	outputHashes, err := hashTokenOutputs(h, tokenTransaction.GetTokenOutputs(), partialHash)
	if err != nil {
		return nil, err
	}
	allHashes = append(allHashes, outputHashes...)

	operatorHashes, err := hashOperators(h, tokenTransaction.GetSparkOperatorIdentityPublicKeys())
	if err != nil {
		return nil, err
	}
	allHashes = append(allHashes, operatorHashes...)

	allHashes = append(allHashes, hashNetwork(h, tokenTransaction.GetNetwork())...)

	// Final hash of all concatenated hashes
	h.Reset()
	h.Write(allHashes)
	return h.Sum(nil), nil
}

func hashTransferInput(h hash.Hash, transferSource *pb.TokenTransferInput) ([]byte, error) {
	if transferSource == nil {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("transfer input cannot be nil when hashing transfer transaction"))
	}
	if transferSource.OutputsToSpend == nil {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("transfer input outputs cannot be nil"))
	}
	var allHashes []byte
	for i, output := range transferSource.GetOutputsToSpend() {
		if output == nil {
			return nil, sparkerrors.ValidationMissingField(fmt.Errorf("transfer input token output at index %d cannot be nil", i))
		}
		h.Reset()

		if txHash := output.GetPrevTokenTransactionHash(); txHash != nil {
			if len(txHash) != 32 {
				return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("invalid previous transaction hash length at index %d: expected 32 bytes, got %d", i, len(txHash)))
			}
			h.Write(txHash)
		}

		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, output.GetPrevTokenTransactionVout())
		h.Write(buf)
		allHashes = append(allHashes, h.Sum(nil)...)
	}
	return allHashes, nil
}

func hashMintInput(h hash.Hash, mintInput *pb.TokenMintInput) ([]byte, error) {
	if mintInput == nil {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("mint input cannot be nil when hashing mint transaction"))
	}
	h.Reset()
	if pubKey := mintInput.GetIssuerPublicKey(); pubKey != nil {
		if len(pubKey) == 0 {
			return nil, sparkerrors.ValidationMissingField(fmt.Errorf("issuer public key cannot be empty"))
		}
		h.Write(pubKey)
	}

	if mintInput.GetIssuerProvidedTimestamp() != 0 {
		nonceBytes := make([]byte, 8)
		binary.LittleEndian.PutUint64(nonceBytes, mintInput.GetIssuerProvidedTimestamp())
		h.Write(nonceBytes)
	}
	return h.Sum(nil), nil
}

func hashTokenOutputs(h hash.Hash, tokenOutputs []*pb.TokenOutput, partialHash bool) ([]byte, error) {
	var allHashes []byte
	for i, output := range tokenOutputs {
		if output == nil {
			return nil, sparkerrors.ValidationMissingField(fmt.Errorf("token output at index %d cannot be nil", i))
		}
		h.Reset()

		// Output ID is not set in the partial token transaction.
		if !partialHash && output.GetId() != "" {
			h.Write([]byte(output.GetId()))
		}

		if ownerPubKey := output.GetOwnerPublicKey(); ownerPubKey != nil {
			if len(ownerPubKey) == 0 {
				return nil, sparkerrors.ValidationMissingField(fmt.Errorf("owner public key at index %d cannot be empty", i))
			}
			h.Write(ownerPubKey)
		}

		// Revocation commitment, bond and locktime are filled in by the coordinator.
		if !partialHash {
			if revPubKey := output.GetRevocationCommitment(); revPubKey != nil {
				if len(revPubKey) == 0 {
					return nil, sparkerrors.ValidationMissingField(fmt.Errorf("revocation public key at index %d cannot be empty", i))
				}
				h.Write(revPubKey)
			}

			withdrawalBondBytes := make([]byte, 8)
			binary.BigEndian.PutUint64(withdrawalBondBytes, output.GetWithdrawBondSats())
			h.Write(withdrawalBondBytes)

			withdrawalLocktimeBytes := make([]byte, 8)
			binary.BigEndian.PutUint64(withdrawalLocktimeBytes, output.GetWithdrawRelativeBlockLocktime())
			h.Write(withdrawalLocktimeBytes)
		}

		if tokenPubKey := output.GetTokenPublicKey(); tokenPubKey != nil {
			if len(tokenPubKey) == 0 {
				return nil, sparkerrors.ValidationMissingField(fmt.Errorf("token public key at index %d cannot be empty", i))
			}
			h.Write(tokenPubKey)
		}

		if tokenAmount := output.GetTokenAmount(); tokenAmount != nil {
			if len(tokenAmount) == 0 {
				return nil, sparkerrors.ValidationMissingField(fmt.Errorf("token amount at index %d cannot be empty", i))
			}
			if len(tokenAmount) > uint128.Size {
				return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("token amount at index %d exceeds maximum length: got %d bytes, max %d", i, len(tokenAmount), uint128.Size))
			}
			h.Write(tokenAmount)
		}

		allHashes = append(allHashes, h.Sum(nil)...)
	}
	return allHashes, nil
}

func hashOperators(h hash.Hash, operatorPublicKeys [][]byte) ([]byte, error) {
	if operatorPublicKeys == nil {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("operator public keys cannot be nil"))
	}

	// Sorted on a copy so the caller's order is left alone.
	sorted := slices.Clone(operatorPublicKeys)
	slices.SortFunc(sorted, bytes.Compare)

	var allHashes []byte
	for i, pubKey := range sorted {
		if len(pubKey) == 0 {
			return nil, sparkerrors.ValidationMissingField(fmt.Errorf("operator public key at index %d cannot be empty", i))
		}
		h.Reset()
		h.Write(pubKey)
		allHashes = append(allHashes, h.Sum(nil)...)
	}
	return allHashes, nil
}

func hashNetwork(h hash.Hash, network pb.Network) []byte {
	h.Reset()
	networkBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(networkBytes, uint32(network))
	h.Write(networkBytes)
	return h.Sum(nil)
}

// HashOperatorSpecificTokenTransactionSignablePayload generates a hash of the operator-specific payload
// by concatenating hashes of the transaction hash and operator public key.
func HashOperatorSpecificTokenTransactionSignablePayload(payload *pb.OperatorSpecificTokenTransactionSignablePayload) ([]byte, error) {
	if payload == nil {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("operator specific token transaction signable payload cannot be nil"))
	}

	h := sha256.New()
	var allHashes []byte

	h.Reset()
	if txHash := payload.GetFinalTokenTransactionHash(); txHash != nil {
		if len(txHash) != 32 {
			return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("invalid final transaction hash length: expected 32 bytes, got %d", len(txHash)))
		}
		h.Write(txHash)
	}
	allHashes = append(allHashes, h.Sum(nil)...)

	h.Reset()
	pubKey := payload.GetOperatorIdentityPublicKey()
	if len(pubKey) == 0 {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("operator identity public key cannot be empty"))
	}
	h.Write(pubKey)
	allHashes = append(allHashes, h.Sum(nil)...)

	h.Reset()
	h.Write(allHashes)
	return h.Sum(nil), nil
}

// HashFreezeTokensPayload generates a hash of the freeze tokens payload by concatenating
// hashes of the owner public key, token public key, freeze status, timestamp and operator key.
func HashFreezeTokensPayload(payload *pb.FreezeTokensPayload) ([]byte, error) {
	if payload == nil {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("freeze tokens payload cannot be nil"))
	}
	h := sha256.New()
	var allHashes []byte

	h.Reset()
	ownerPubKey := payload.GetOwnerPublicKey()
	if len(ownerPubKey) == 0 {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("owner public key cannot be empty"))
	}
	h.Write(ownerPubKey)
	allHashes = append(allHashes, h.Sum(nil)...)

	h.Reset()
	tokenPublicKey := payload.GetTokenPublicKey()
	if len(tokenPublicKey) == 0 {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("token public key cannot be empty"))
	}
	h.Write(tokenPublicKey)
	allHashes = append(allHashes, h.Sum(nil)...)

	h.Reset()
	if payload.GetShouldUnfreeze() {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	allHashes = append(allHashes, h.Sum(nil)...)

	h.Reset()
	if payload.GetIssuerProvidedTimestamp() == 0 {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("issuer provided timestamp cannot be 0"))
	}
	nonceBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(nonceBytes, payload.GetIssuerProvidedTimestamp())
	h.Write(nonceBytes)
	allHashes = append(allHashes, h.Sum(nil)...)

	h.Reset()
	operatorPubKey := payload.GetOperatorIdentityPublicKey()
	if len(operatorPubKey) == 0 {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("operator identity public key cannot be empty"))
	}
	h.Write(operatorPubKey)
	allHashes = append(allHashes, h.Sum(nil)...)

	h.Reset()
	h.Write(allHashes)
	return h.Sum(nil), nil
}

// ValidateOwnershipSignature validates that the ownership signature of a hash (either a token transaction hash
// or freeze tokens payload hash) matches the issuer or owner public key.
// It supports both ECDSA DER signatures and Schnorr signatures.
func ValidateOwnershipSignature(signature []byte, hash []byte, issuerOrOwnerPublicKey keys.Public) error {
	if signature == nil {
		return sparkerrors.ValidationMissingField(fmt.Errorf("ownership signature cannot be nil"))
	}
	if hash == nil {
		return sparkerrors.ValidationMissingField(fmt.Errorf("hash to verify cannot be nil"))
	}
	if issuerOrOwnerPublicKey.IsZero() {
		return sparkerrors.ValidationMissingField(fmt.Errorf("owner public key cannot be zero"))
	}

	if schnorrSig, err := schnorr.ParseSignature(signature); err == nil {
		if schnorrSig.Verify(hash, issuerOrOwnerPublicKey.ToBTCEC()) {
			return nil
		}
	}

	// A DER signature can in rare cases also be 64 bytes long.
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return sparkerrors.ValidationMalformedField(fmt.Errorf("failed to parse signature as either Schnorr or DER: %w", err))
	}
	if !sig.Verify(hash, issuerOrOwnerPublicKey.ToBTCEC()) {
		return sparkerrors.AuthenticationBadSignature(fmt.Errorf("invalid ownership signature"))
	}
	return nil
}

// ValidateRevocationKeys validates that the provided revocation private keys correspond to the expected public keys.
func ValidateRevocationKeys(revocationPrivateKeys []keys.Private, expectedRevocationPublicKeys []keys.Public) error {
	if len(expectedRevocationPublicKeys) != len(revocationPrivateKeys) {
		return sparkerrors.ValidationKeyshareMismatch(fmt.Errorf("number of revocation private keys (%d) does not match number of expected public keys (%d)",
			len(revocationPrivateKeys), len(expectedRevocationPublicKeys)))
	}

	for i, revocationKey := range revocationPrivateKeys {
		expectedPubKey := expectedRevocationPublicKeys[i]
		switch {
		case revocationKey.IsZero():
			return sparkerrors.ValidationKeyshareMismatch(fmt.Errorf("revocation private key at index %d cannot be empty", i))
		case expectedPubKey.IsZero():
			return sparkerrors.ValidationKeyshareMismatch(fmt.Errorf("expected revocation public key at index %d cannot be empty", i))
		case !expectedPubKey.Equals(revocationKey.Public()):
			return sparkerrors.ValidationKeyshareMismatch(fmt.Errorf("revocation key mismatch at index %d: derived public key does not match expected", i))
		}
	}
	return nil
}

// TokenOutputAmount decodes the 16-byte amount of an output.
func TokenOutputAmount(output *pb.TokenOutput) (uint128.Uint128, error) {
	amount, err := uint128.FromBytes(output.GetTokenAmount())
	if err != nil {
		return uint128.Uint128{}, sparkerrors.ValidationMalformedField(fmt.Errorf("invalid token amount: %w", err))
	}
	return amount, nil
}
