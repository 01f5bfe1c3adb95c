// Package signer holds the wallet's key material and the cryptographic
// operations the protocol coordinators need from it.
package signer

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	eciesgo "github.com/ecies/go/v2"

	"github.com/lightsparkdev/spark-wallet/common/frost"
	"github.com/lightsparkdev/spark-wallet/common/keys"
	secretsharing "github.com/lightsparkdev/spark-wallet/common/secret_sharing"
	pbfrost "github.com/lightsparkdev/spark-wallet/proto/frost"
)

// UserIdentifier is the FROST participant identifier the wallet signs as.
const UserIdentifier = "0000000000000000000000000000000000000000000000000000000000000063"

// Derivation purpose for every wallet key: m/8797555'/account'/...
const purpose = 8797555

const (
	identityBranch = 0
	leafBranch     = 1
	depositBranch  = 2
)

// Signer is everything the coordinators need from the wallet's keys. The
// identity key never leaves the signer; leaf signing keys are handed out
// because key tweaks are computed from them.
type Signer interface {
	IdentityPublicKey() keys.Public
	// SignIdentityECDSA signs a 32 byte hash with the identity key and returns a DER signature.
	SignIdentityECDSA(hash []byte) ([]byte, error)
	// SignIdentitySchnorr signs a 32 byte hash with the identity key (BIP-340).
	SignIdentitySchnorr(hash []byte) ([]byte, error)

	// LeafSigningKey returns the deterministic signing key for a leaf.
	LeafSigningKey(leafID string) (keys.Private, error)
	// DepositSigningKey returns the key deposits are locked to.
	DepositSigningKey() (keys.Private, error)
	// GenerateSigningKey returns a fresh random signing key.
	GenerateSigningKey() (keys.Private, error)

	// SplitSecretWithProofs shamir-splits a scalar into numberOfShares verifiable shares.
	SplitSecretWithProofs(secret keys.Private, threshold int, numberOfShares int) ([]*secretsharing.VerifiableSecretShare, error)

	// EncryptForPublicKey ECIES-encrypts plaintext to a receiver.
	EncryptForPublicKey(receiver keys.Public, plaintext []byte) ([]byte, error)
	// DecryptWithIdentityKey decrypts an ECIES ciphertext addressed to the identity key.
	DecryptWithIdentityKey(ciphertext []byte) ([]byte, error)

	// GenerateSigningNonce returns a fresh FROST nonce pair.
	GenerateSigningNonce() frost.SigningNonce
	// SignFrost produces the user's signature share for each job, keyed by job id.
	SignFrost(ctx context.Context, jobs []*pbfrost.FrostSigningJob) (map[string][]byte, error)
	// AggregateFrost combines the user's share with the operators' shares.
	AggregateFrost(ctx context.Context, request *pbfrost.AggregateFrostRequest) ([]byte, error)
}

// UserKeyPackage is the single-party FROST key package for a wallet signing key.
func UserKeyPackage(signingKey keys.Private) *pbfrost.KeyPackage {
	pubKeyBytes := signingKey.Public().Serialize()
	return &pbfrost.KeyPackage{
		Identifier:  UserIdentifier,
		SecretShare: signingKey.Serialize(),
		PublicShares: map[string][]byte{
			UserIdentifier: pubKeyBytes,
		},
		PublicKey:  pubKeyBytes,
		MinSigners: 1,
	}
}

// LocalSigner keeps an HD master key in memory and reaches the FROST signer
// over RPC.
type LocalSigner struct {
	identityKey keys.Private
	leafRoot    *hdkeychain.ExtendedKey
	depositKey  keys.Private
	frostClient pbfrost.FrostServiceClient
}

// NewLocalSigner derives the identity, leaf and deposit keys for account from seed.
func NewLocalSigner(seed []byte, account uint32, params *chaincfg.Params, frostClient pbfrost.FrostServiceClient) (*LocalSigner, error) {
	master, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	accountKey, err := derivePath(master, hardened(purpose), hardened(account))
	if err != nil {
		return nil, fmt.Errorf("failed to derive account key: %w", err)
	}
	identityExt, err := derivePath(accountKey, hardened(identityBranch))
	if err != nil {
		return nil, fmt.Errorf("failed to derive identity key: %w", err)
	}
	identityKey, err := privateKey(identityExt)
	if err != nil {
		return nil, err
	}
	leafRoot, err := derivePath(accountKey, hardened(leafBranch))
	if err != nil {
		return nil, fmt.Errorf("failed to derive leaf key root: %w", err)
	}
	depositExt, err := derivePath(accountKey, hardened(depositBranch))
	if err != nil {
		return nil, fmt.Errorf("failed to derive deposit key: %w", err)
	}
	depositKey, err := privateKey(depositExt)
	if err != nil {
		return nil, err
	}
	return &LocalSigner{
		identityKey: identityKey,
		leafRoot:    leafRoot,
		depositKey:  depositKey,
		frostClient: frostClient,
	}, nil
}

func hardened(index uint32) uint32 {
	return hdkeychain.HardenedKeyStart + index
}

func derivePath(key *hdkeychain.ExtendedKey, path ...uint32) (*hdkeychain.ExtendedKey, error) {
	var err error
	for _, index := range path {
		key, err = key.Derive(index)
		if err != nil {
			return nil, err
		}
	}
	return key, nil
}

func privateKey(key *hdkeychain.ExtendedKey) (keys.Private, error) {
	priv, err := key.ECPrivKey()
	if err != nil {
		return keys.Private{}, fmt.Errorf("failed to get private key: %w", err)
	}
	return keys.PrivateFromKey(*priv), nil
}

// leafIndex maps a leaf id to a hardened child index.
func leafIndex(leafID string) uint32 {
	hash := sha256.Sum256([]byte(leafID))
	return binary.BigEndian.Uint32(hash[:4]) % hdkeychain.HardenedKeyStart
}

func (s *LocalSigner) IdentityPublicKey() keys.Public {
	return s.identityKey.Public()
}

func (s *LocalSigner) SignIdentityECDSA(hash []byte) ([]byte, error) {
	if len(hash) != sha256.Size {
		return nil, fmt.Errorf("hash must be %d bytes, got %d", sha256.Size, len(hash))
	}
	return s.identityKey.SignECDSA(hash), nil
}

func (s *LocalSigner) SignIdentitySchnorr(hash []byte) ([]byte, error) {
	return s.identityKey.SignSchnorr(hash)
}

func (s *LocalSigner) LeafSigningKey(leafID string) (keys.Private, error) {
	child, err := s.leafRoot.Derive(hardened(leafIndex(leafID)))
	if err != nil {
		return keys.Private{}, fmt.Errorf("failed to derive signing key for leaf %s: %w", leafID, err)
	}
	return privateKey(child)
}

func (s *LocalSigner) DepositSigningKey() (keys.Private, error) {
	return s.depositKey, nil
}

func (s *LocalSigner) GenerateSigningKey() (keys.Private, error) {
	return keys.GeneratePrivateKey(), nil
}

func (s *LocalSigner) SplitSecretWithProofs(secret keys.Private, threshold int, numberOfShares int) ([]*secretsharing.VerifiableSecretShare, error) {
	return secretsharing.SplitSecretWithProofs(secret.BigInt(), new(big.Int).Set(secp256k1.S256().N), threshold, numberOfShares)
}

func (s *LocalSigner) EncryptForPublicKey(receiver keys.Public, plaintext []byte) ([]byte, error) {
	pubKey, err := eciesgo.NewPublicKeyFromBytes(receiver.Serialize())
	if err != nil {
		return nil, fmt.Errorf("failed to parse receiver public key: %w", err)
	}
	return eciesgo.Encrypt(pubKey, plaintext)
}

func (s *LocalSigner) DecryptWithIdentityKey(ciphertext []byte) ([]byte, error) {
	privKey := eciesgo.NewPrivateKeyFromBytes(s.identityKey.Serialize())
	return eciesgo.Decrypt(privKey, ciphertext)
}

func (s *LocalSigner) GenerateSigningNonce() frost.SigningNonce {
	return frost.GenerateSigningNonce()
}

func (s *LocalSigner) SignFrost(ctx context.Context, jobs []*pbfrost.FrostSigningJob) (map[string][]byte, error) {
	if len(jobs) == 0 {
		return map[string][]byte{}, nil
	}
	resp, err := s.frostClient.SignFrost(ctx, &pbfrost.SignFrostRequest{
		SigningJobs: jobs,
		Role:        pbfrost.SigningRole_USER,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign with frost: %w", err)
	}
	shares := make(map[string][]byte, len(jobs))
	for _, job := range jobs {
		result, ok := resp.Results[job.JobId]
		if !ok || result == nil {
			return nil, fmt.Errorf("frost signer returned no share for job %s", job.JobId)
		}
		shares[job.JobId] = result.SignatureShare
	}
	return shares, nil
}

func (s *LocalSigner) AggregateFrost(ctx context.Context, request *pbfrost.AggregateFrostRequest) ([]byte, error) {
	resp, err := s.frostClient.AggregateFrost(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate frost signature: %w", err)
	}
	return resp.Signature, nil
}
