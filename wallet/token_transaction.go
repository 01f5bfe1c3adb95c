package wallet

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"go.uber.org/zap"

	"github.com/lightsparkdev/spark-wallet/common"
	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	"github.com/lightsparkdev/spark-wallet/common/keys"
	"github.com/lightsparkdev/spark-wallet/common/logging"
	secretsharing "github.com/lightsparkdev/spark-wallet/common/secret_sharing"
	"github.com/lightsparkdev/spark-wallet/common/uint128"
	"github.com/lightsparkdev/spark-wallet/leafstore"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
	"github.com/lightsparkdev/spark-wallet/signer"
	"github.com/lightsparkdev/spark-wallet/so"
	"github.com/lightsparkdev/spark-wallet/so/fanout"
	"github.com/lightsparkdev/spark-wallet/so/middleware"
)

// TokenAuthorizer signs token transaction hashes on behalf of each input: the
// issuer for a mint, the owner of each spent output for a transfer.
type TokenAuthorizer interface {
	// OwnerPublicKey is the key that authorizes input.
	OwnerPublicKey(input int) (keys.Public, error)
	Sign(input int, hash []byte, useSchnorr bool) ([]byte, error)
}

// IdentityKeyAuthorizer authorizes every input with the wallet's identity key.
// It is used for mints and for outputs owned by the identity key.
type IdentityKeyAuthorizer struct {
	Signer signer.Signer
}

func (a IdentityKeyAuthorizer) OwnerPublicKey(int) (keys.Public, error) {
	return a.Signer.IdentityPublicKey(), nil
}

func (a IdentityKeyAuthorizer) Sign(_ int, hash []byte, useSchnorr bool) ([]byte, error) {
	if useSchnorr {
		return a.Signer.SignIdentitySchnorr(hash)
	}
	return a.Signer.SignIdentityECDSA(hash)
}

// LeafKeyAuthorizer authorizes input i with Keys[i]. It spends outputs locked
// to keys other than the identity key.
type LeafKeyAuthorizer struct {
	Keys []keys.Private
}

func (a LeafKeyAuthorizer) OwnerPublicKey(input int) (keys.Public, error) {
	if input < 0 || input >= len(a.Keys) {
		return keys.Public{}, sparkerrors.ValidationMissingField(fmt.Errorf("no key for input %d", input))
	}
	return a.Keys[input].Public(), nil
}

func (a LeafKeyAuthorizer) Sign(input int, hash []byte, useSchnorr bool) ([]byte, error) {
	if input < 0 || input >= len(a.Keys) {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("no key for input %d", input))
	}
	if useSchnorr {
		return a.Keys[input].SignSchnorr(hash)
	}
	return a.Keys[input].SignECDSA(hash), nil
}

// TokenRecipient is one output of a token transaction being built.
type TokenRecipient struct {
	OwnerPublicKey keys.Public
	Amount         uint128.Uint128
}

// operatorKeyshare is a revocation keyshare together with the x coordinate of
// the operator that returned it.
type operatorKeyshare struct {
	operator string
	index    *big.Int
	keyshare []byte
}

// StartedTokenTransaction is the coordinator's final version of a token
// transaction, ready to be signed by every operator.
type StartedTokenTransaction struct {
	Final       *pb.TokenTransaction
	PartialHash []byte
	FinalHash   []byte
}

// TokenTransactionCoordinator runs token mints, transfers and freezes against
// the operator federation.
type TokenTransactionCoordinator struct {
	federation    *Federation
	store         *leafstore.Store
	useSchnorr    bool
	startRetry    middleware.RetryPolicy
	finalizeRetry middleware.RetryPolicy
	// ownerKey owns the wallet's token outputs. The identity key does when it is zero.
	ownerKey keys.Private
}

func NewTokenTransactionCoordinator(federation *Federation, store *leafstore.Store, ownerKey keys.Private, useSchnorr bool, startRetry middleware.RetryPolicy) *TokenTransactionCoordinator {
	return &TokenTransactionCoordinator{
		federation:    federation,
		store:         store,
		ownerKey:      ownerKey,
		useSchnorr:    useSchnorr,
		startRetry:    startRetry,
		finalizeRetry: middleware.FinalizeRetryPolicy(),
	}
}

// OwnerPublicKey is the key the wallet's token outputs are locked to.
func (c *TokenTransactionCoordinator) OwnerPublicKey() keys.Public {
	if c.ownerKey.IsZero() {
		return c.federation.Signer.IdentityPublicKey()
	}
	return c.ownerKey.Public()
}

// SpendAuthorizer authorizes spending inputs of the wallet's own outputs.
func (c *TokenTransactionCoordinator) SpendAuthorizer(inputs int) TokenAuthorizer {
	if c.ownerKey.IsZero() {
		return IdentityKeyAuthorizer{Signer: c.federation.Signer}
	}
	ownerKeys := make([]keys.Private, inputs)
	for i := range ownerKeys {
		ownerKeys[i] = c.ownerKey
	}
	return LeafKeyAuthorizer{Keys: ownerKeys}
}

// NewMintTransaction issues amounts of the wallet's own token to recipients.
func (c *TokenTransactionCoordinator) NewMintTransaction(recipients []TokenRecipient) (*pb.TokenTransaction, error) {
	if len(recipients) == 0 {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("mint has no recipients"))
	}
	issuer := c.federation.identityPublicKey()
	outputs, err := tokenOutputs(recipients, issuer)
	if err != nil {
		return nil, err
	}
	return &pb.TokenTransaction{
		TokenInputs: &pb.TokenTransaction_MintInput{
			MintInput: &pb.TokenMintInput{
				IssuerPublicKey:         issuer,
				IssuerProvidedTimestamp: uint64(time.Now().UnixMilli()),
			},
		},
		TokenOutputs: outputs,
		Network:      c.federation.protoNetwork(),
	}, nil
}

// NewTransferTransaction spends outputs of one token to recipients. Whatever
// the recipients do not take is returned to changeOwner.
func (c *TokenTransactionCoordinator) NewTransferTransaction(
	spent []*pb.OutputWithPreviousTransactionData,
	recipients []TokenRecipient,
	changeOwner keys.Public,
) (*pb.TokenTransaction, error) {
	if len(spent) == 0 {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("transfer spends no outputs"))
	}
	if len(recipients) == 0 {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("transfer has no recipients"))
	}
	tokenPublicKey := spent[0].Output.GetTokenPublicKey()
	inputs := make([]*pb.TokenOutputToSpend, 0, len(spent))
	available := uint128.New()
	for _, output := range spent {
		if !bytes.Equal(output.Output.GetTokenPublicKey(), tokenPublicKey) {
			return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("output %s belongs to a different token", leafstore.OutputKey(output)))
		}
		amount, err := common.TokenOutputAmount(output.Output)
		if err != nil {
			return nil, err
		}
		if available, err = available.Add(amount); err != nil {
			return nil, err
		}
		inputs = append(inputs, &pb.TokenOutputToSpend{
			PrevTokenTransactionHash: output.PreviousTransactionHash,
			PrevTokenTransactionVout: output.PreviousTransactionVout,
		})
	}

	amounts := make([]uint128.Uint128, len(recipients))
	for i, recipient := range recipients {
		amounts[i] = recipient.Amount
	}
	requested, err := uint128.Sum(amounts...)
	if err != nil {
		return nil, err
	}
	change, err := available.Sub(requested)
	if err != nil {
		return nil, sparkerrors.ValidationInsufficientFunds(fmt.Errorf("outputs hold %s, transfer needs %s", available, requested))
	}
	if !change.IsZero() {
		recipients = append(slices.Clone(recipients), TokenRecipient{OwnerPublicKey: changeOwner, Amount: change})
	}
	outputs, err := tokenOutputs(recipients, tokenPublicKey)
	if err != nil {
		return nil, err
	}
	return &pb.TokenTransaction{
		TokenInputs: &pb.TokenTransaction_TransferInput{
			TransferInput: &pb.TokenTransferInput{OutputsToSpend: inputs},
		},
		TokenOutputs: outputs,
		Network:      c.federation.protoNetwork(),
	}, nil
}

func tokenOutputs(recipients []TokenRecipient, tokenPublicKey []byte) ([]*pb.TokenOutput, error) {
	outputs := make([]*pb.TokenOutput, 0, len(recipients))
	for i, recipient := range recipients {
		if recipient.OwnerPublicKey.IsZero() {
			return nil, sparkerrors.ValidationMissingField(fmt.Errorf("recipient %d has no owner key", i))
		}
		if recipient.Amount.IsZero() {
			return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("recipient %d has a zero amount", i))
		}
		outputs = append(outputs, &pb.TokenOutput{
			OwnerPublicKey: recipient.OwnerPublicKey.Serialize(),
			TokenPublicKey: tokenPublicKey,
			TokenAmount:    recipient.Amount.Bytes(),
		})
	}
	return outputs, nil
}

// Broadcast runs every phase of a token transaction. spentRevocationCommitments
// are the revocation commitments of the outputs a transfer spends, in input
// order; mints pass none. The finalized transaction is returned and the
// store's token outputs are updated.
func (c *TokenTransactionCoordinator) Broadcast(
	ctx context.Context,
	tx *pb.TokenTransaction,
	authorizer TokenAuthorizer,
	spentRevocationCommitments []keys.Public,
) (*pb.TokenTransaction, error) {
	started, err := c.Start(ctx, tx, authorizer)
	if err != nil {
		return nil, fmt.Errorf("failed to start token transaction: %w", err)
	}
	ctx, logger := logging.WithAttrs(ctx, zap.String("token_transaction_hash", fmt.Sprintf("%x", started.FinalHash)))

	keyshares, err := c.Sign(ctx, started, authorizer)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token transaction: %w", err)
	}
	if tx.GetTransferInput() != nil {
		secrets, err := c.RecoverRevocationSecrets(keyshares, spentRevocationCommitments)
		if err != nil {
			return nil, err
		}
		if err := c.Finalize(ctx, started.Final, secrets); err != nil {
			return nil, fmt.Errorf("failed to finalize token transaction: %w", err)
		}
	}
	c.applyToStore(started)
	logger.Info("broadcast token transaction", zap.Int("outputs", len(started.Final.TokenOutputs)))
	return started.Final, nil
}

// applyToStore drops the spent outputs and records the new outputs the wallet owns.
func (c *TokenTransactionCoordinator) applyToStore(started *StartedTokenTransaction) {
	if transfer := started.Final.GetTransferInput(); transfer != nil {
		spent := make([]*pb.OutputWithPreviousTransactionData, 0, len(transfer.OutputsToSpend))
		for _, input := range transfer.OutputsToSpend {
			spent = append(spent, &pb.OutputWithPreviousTransactionData{
				PreviousTransactionHash: input.PrevTokenTransactionHash,
				PreviousTransactionVout: input.PrevTokenTransactionVout,
			})
		}
		c.store.RemoveTokenOutputs(spent...)
	}
	owner := c.OwnerPublicKey().Serialize()
	var owned []*pb.OutputWithPreviousTransactionData
	for vout, output := range started.Final.TokenOutputs {
		if !bytes.Equal(output.OwnerPublicKey, owner) {
			continue
		}
		owned = append(owned, &pb.OutputWithPreviousTransactionData{
			Output:                  output,
			PreviousTransactionHash: started.FinalHash,
			PreviousTransactionVout: uint32(vout),
		})
	}
	c.store.AddTokenOutputs(owned...)
}

// Start asks the coordinator to fill in the final transaction. Each input is
// authorized with a signature over the partial hash, and the keyshare set the
// coordinator reports must be exactly the configured federation.
func (c *TokenTransactionCoordinator) Start(ctx context.Context, tx *pb.TokenTransaction, authorizer TokenAuthorizer) (*StartedTokenTransaction, error) {
	tx.SparkOperatorIdentityPublicKeys = c.operatorIdentityPublicKeys()
	partialHash, err := common.HashTokenTransaction(tx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to hash partial token transaction: %w", err)
	}

	inputs := tokenInputCount(tx)
	signatures := make([][]byte, inputs)
	for i := range inputs {
		signatures[i], err = authorizer.Sign(i, partialHash, c.useSchnorr)
		if err != nil {
			return nil, fmt.Errorf("failed to sign input %d: %w", i, err)
		}
	}

	client, err := c.federation.coordinator()
	if err != nil {
		return nil, err
	}
	resp, err := client.StartTokenTransaction(ctx, &pb.StartTokenTransactionRequest{
		IdentityPublicKey:          c.federation.identityPublicKey(),
		PartialTokenTransaction:    tx,
		TokenTransactionSignatures: &pb.TokenTransactionSignatures{OwnerSignatures: signatures},
	}, c.startRetry.CallOptions()...)
	if err != nil {
		return nil, c.federation.coordinatorError("start_token_transaction", err)
	}
	if resp.FinalTokenTransaction == nil || resp.KeyshareInfo == nil {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("coordinator returned an incomplete start response"))
	}
	if err := c.federation.Registry.CheckKeyshareInfo(resp.KeyshareInfo.OwnerIdentifiers, resp.KeyshareInfo.Threshold); err != nil {
		return nil, err
	}

	finalPartialHash, err := common.HashTokenTransaction(resp.FinalTokenTransaction, true)
	if err != nil {
		return nil, fmt.Errorf("failed to hash final token transaction: %w", err)
	}
	if !bytes.Equal(finalPartialHash, partialHash) {
		return nil, sparkerrors.ValidationHashMismatch(fmt.Errorf("coordinator changed the token transaction"))
	}
	finalHash, err := common.HashTokenTransaction(resp.FinalTokenTransaction, false)
	if err != nil {
		return nil, fmt.Errorf("failed to hash final token transaction: %w", err)
	}
	return &StartedTokenTransaction{
		Final:       resp.FinalTokenTransaction,
		PartialHash: partialHash,
		FinalHash:   finalHash,
	}, nil
}

// Sign collects every operator's signature on the final transaction. For a
// transfer it returns, per spent output, the revocation keyshares the
// operators released.
func (c *TokenTransactionCoordinator) Sign(ctx context.Context, started *StartedTokenTransaction, authorizer TokenAuthorizer) ([][]operatorKeyshare, error) {
	inputs := tokenInputCount(started.Final)
	type signResult struct {
		signature []byte
		keyshares []*pb.KeyshareWithIndex
	}

	results := executeAll(ctx, c.federation, "sign_token_transaction", func(ctx context.Context, operator *so.SigningOperator, client pb.SparkServiceClient) (signResult, error) {
		signatures, err := c.operatorSpecificSignatures(operator, started.FinalHash, authorizer, inputs)
		if err != nil {
			return signResult{}, err
		}
		resp, err := client.SignTokenTransaction(ctx, &pb.SignTokenTransactionRequest{
			FinalTokenTransaction:      started.Final,
			OperatorSpecificSignatures: signatures,
			IdentityPublicKey:          c.federation.identityPublicKey(),
		})
		if err != nil {
			return signResult{}, err
		}
		if err := common.ValidateOwnershipSignature(resp.SparkOperatorSignature, started.FinalHash, operator.IdentityPublicKey); err != nil {
			return signResult{}, fmt.Errorf("invalid signature from operator %s: %w", operator.Identifier, err)
		}
		return signResult{signature: resp.SparkOperatorSignature, keyshares: resp.RevocationKeyshares}, nil
	})
	signed, err := fanout.RequireAll(results)
	if err != nil {
		return nil, err
	}

	if started.Final.GetTransferInput() == nil {
		return nil, nil
	}
	keyshares := make([][]operatorKeyshare, inputs)
	for _, operator := range c.federation.Registry.Operators() {
		for _, keyshare := range signed[operator.Identifier].keyshares {
			if int(keyshare.Index) >= inputs {
				return nil, sparkerrors.ValidationResponseMismatch(fmt.Errorf("operator %s returned a keyshare for input %d of %d", operator.Identifier, keyshare.Index, inputs))
			}
			keyshares[keyshare.Index] = append(keyshares[keyshare.Index], operatorKeyshare{
				operator: operator.Identifier,
				index:    operator.ShareIndex(),
				keyshare: keyshare.Keyshare,
			})
		}
	}
	if err := c.checkKeyshares(keyshares); err != nil {
		return nil, err
	}
	return keyshares, nil
}

func (c *TokenTransactionCoordinator) operatorSpecificSignatures(operator *so.SigningOperator, finalHash []byte, authorizer TokenAuthorizer, inputs int) ([]*pb.OperatorSpecificTokenTransactionSignature, error) {
	payload := &pb.OperatorSpecificTokenTransactionSignablePayload{
		FinalTokenTransactionHash: finalHash,
		OperatorIdentityPublicKey: operator.IdentityPublicKey.Serialize(),
	}
	payloadHash, err := common.HashOperatorSpecificTokenTransactionSignablePayload(payload)
	if err != nil {
		return nil, err
	}
	signatures := make([]*pb.OperatorSpecificTokenTransactionSignature, inputs)
	for i := range inputs {
		owner, err := authorizer.OwnerPublicKey(i)
		if err != nil {
			return nil, err
		}
		signature, err := authorizer.Sign(i, payloadHash, c.useSchnorr)
		if err != nil {
			return nil, fmt.Errorf("failed to sign input %d for operator %s: %w", i, operator.Identifier, err)
		}
		signatures[i] = &pb.OperatorSpecificTokenTransactionSignature{
			OwnerPublicKey: owner.Serialize(),
			OwnerSignature: signature,
			Payload:        payload,
		}
	}
	return signatures, nil
}

// checkKeyshares requires a threshold of keyshares for every spent output,
// each from a different operator.
func (c *TokenTransactionCoordinator) checkKeyshares(keyshares [][]operatorKeyshare) error {
	threshold := c.federation.Registry.Threshold()
	for input, shares := range keyshares {
		if len(shares) < threshold {
			return sparkerrors.ValidationInsufficientKeyshares(fmt.Errorf("input %d has %d keyshares, need %d", input, len(shares), threshold))
		}
		seen := make(map[string]bool, len(shares))
		for _, share := range shares {
			if seen[share.index.String()] {
				return sparkerrors.ValidationDuplicateField(fmt.Errorf("input %d has two keyshares with index %s", input, share.index))
			}
			seen[share.index.String()] = true
		}
	}
	return nil
}

// RecoverRevocationSecrets rebuilds the revocation key of every spent output
// and checks it against the output's revocation commitment.
func (c *TokenTransactionCoordinator) RecoverRevocationSecrets(keyshares [][]operatorKeyshare, commitments []keys.Public) ([]keys.Private, error) {
	if err := c.checkKeyshares(keyshares); err != nil {
		return nil, err
	}
	secrets := make([]keys.Private, len(keyshares))
	for input, operatorShares := range keyshares {
		shares := make([]*secretsharing.SecretShare, len(operatorShares))
		for i, share := range operatorShares {
			shares[i] = &secretsharing.SecretShare{
				FieldModulus: secp256k1.S256().N,
				Threshold:    c.federation.Registry.Threshold(),
				Index:        share.index,
				Share:        new(big.Int).SetBytes(share.keyshare),
			}
		}
		recovered, err := secretsharing.RecoverSecret(shares)
		if err != nil {
			return nil, fmt.Errorf("failed to recover revocation key for input %d: %w", input, err)
		}
		secret, err := keys.PrivateKeyFromBigInt(recovered)
		if err != nil {
			return nil, sparkerrors.ValidationKeyshareMismatch(fmt.Errorf("recovered revocation key for input %d is invalid: %w", input, err))
		}
		secrets[input] = secret
	}
	if err := common.ValidateRevocationKeys(secrets, commitments); err != nil {
		return nil, err
	}
	return secrets, nil
}

// Finalize hands the revocation secrets to every operator. Operators that fail
// with a retryable error are asked again until they accept or the retry
// budget runs out; any other failure is returned at once.
func (c *TokenTransactionCoordinator) Finalize(ctx context.Context, final *pb.TokenTransaction, secrets []keys.Private) error {
	revocationSecrets := make([][]byte, len(secrets))
	for i, secret := range secrets {
		revocationSecrets[i] = secret.Serialize()
	}
	request := &pb.FinalizeTokenTransactionRequest{
		FinalTokenTransaction: final,
		RevocationSecrets:     revocationSecrets,
		IdentityPublicKey:     c.federation.identityPublicKey(),
	}
	logger := logging.GetLoggerFromContext(ctx)

	maxAttempts := max(c.finalizeRetry.MaxAttempts, 1)
	pending := c.federation.Registry.Operators()
	for attempt := uint(1); ; attempt++ {
		results := executeOn(ctx, c.federation, "finalize_token_transaction", pending, func(ctx context.Context, _ *so.SigningOperator, client pb.SparkServiceClient) (*pb.Empty, error) {
			return client.FinalizeTokenTransaction(ctx, request)
		})
		var retry []*so.SigningOperator
		for _, result := range results {
			if result.Err == nil {
				continue
			}
			if !sparkerrors.IsRetryable(result.Err) || attempt >= maxAttempts {
				return fanout.FirstError(results)
			}
			retry = append(retry, result.Operator)
		}
		if len(retry) == 0 {
			return nil
		}
		logger.Warn("retrying token transaction finalize", zap.Int("operators", len(retry)), zap.Uint("attempt", attempt))
		if err := sleepContext(ctx, c.finalizeRetry.Backoff*time.Duration(attempt)); err != nil {
			return err
		}
		pending = retry
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Freeze freezes, or with unfreeze set releases, every output of tokenPublicKey
// owned by owner. Only the token issuer may do this. The first operator to
// accept answers.
func (c *TokenTransactionCoordinator) Freeze(ctx context.Context, owner keys.Public, tokenPublicKey keys.Public, unfreeze bool) (*pb.FreezeTokensResponse, error) {
	timestamp := uint64(time.Now().UnixMilli())
	issuer := IdentityKeyAuthorizer{Signer: c.federation.Signer}
	op := "freeze_tokens"
	if unfreeze {
		op = "unfreeze_tokens"
	}

	results := executeAll(ctx, c.federation, op, func(ctx context.Context, operator *so.SigningOperator, client pb.SparkServiceClient) (*pb.FreezeTokensResponse, error) {
		payload := &pb.FreezeTokensPayload{
			OwnerPublicKey:            owner.Serialize(),
			TokenPublicKey:            tokenPublicKey.Serialize(),
			IssuerProvidedTimestamp:   timestamp,
			OperatorIdentityPublicKey: operator.IdentityPublicKey.Serialize(),
			ShouldUnfreeze:            unfreeze,
		}
		payloadHash, err := common.HashFreezeTokensPayload(payload)
		if err != nil {
			return nil, err
		}
		signature, err := issuer.Sign(0, payloadHash, c.useSchnorr)
		if err != nil {
			return nil, err
		}
		return client.FreezeTokens(ctx, &pb.FreezeTokensRequest{
			FreezeTokensPayload: payload,
			IssuerSignature:     signature,
		})
	})
	result, err := fanout.RequireAny(results)
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// QueryTokenOutputs lists unspent outputs by owner and token. Empty filters match everything.
func (c *TokenTransactionCoordinator) QueryTokenOutputs(ctx context.Context, owners []keys.Public, tokens []keys.Public) ([]*pb.OutputWithPreviousTransactionData, error) {
	client, err := c.federation.coordinator()
	if err != nil {
		return nil, err
	}
	resp, err := client.QueryTokenOutputs(ctx, &pb.QueryTokenOutputsRequest{
		OwnerPublicKeys: serializeKeys(owners),
		TokenPublicKeys: serializeKeys(tokens),
		Network:         c.federation.protoNetwork(),
	})
	if err != nil {
		return nil, c.federation.coordinatorError("query_token_outputs", err)
	}
	return resp.OutputsWithPreviousTransactionData, nil
}

// SyncTokenOutputs replaces the store's token outputs with the ones the
// operators report for the owner key.
func (c *TokenTransactionCoordinator) SyncTokenOutputs(ctx context.Context) error {
	outputs, err := c.QueryTokenOutputs(ctx, []keys.Public{c.OwnerPublicKey()}, nil)
	if err != nil {
		return err
	}
	c.store.ResetTokenOutputs(keys.Public{}, outputs)
	return nil
}

func (c *TokenTransactionCoordinator) QueryTokenTransactions(ctx context.Context, request *pb.QueryTokenTransactionsRequest) ([]*pb.TokenTransactionWithStatus, int64, error) {
	client, err := c.federation.coordinator()
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.QueryTokenTransactions(ctx, request)
	if err != nil {
		return nil, 0, c.federation.coordinatorError("query_token_transactions", err)
	}
	return resp.TokenTransactionsWithStatus, resp.Offset, nil
}

// SelectTokenOutputs picks outputs worth at least amount: a single output of
// exactly amount when there is one, otherwise the smallest outputs first.
func SelectTokenOutputs(outputs []*pb.OutputWithPreviousTransactionData, amount uint128.Uint128) ([]*pb.OutputWithPreviousTransactionData, error) {
	type candidate struct {
		output *pb.OutputWithPreviousTransactionData
		amount uint128.Uint128
	}
	candidates := make([]candidate, 0, len(outputs))
	for _, output := range outputs {
		value, err := common.TokenOutputAmount(output.Output)
		if err != nil {
			return nil, err
		}
		if value.Cmp(amount) == 0 {
			return []*pb.OutputWithPreviousTransactionData{output}, nil
		}
		candidates = append(candidates, candidate{output: output, amount: value})
	}
	slices.SortStableFunc(candidates, func(a, b candidate) int { return a.amount.Cmp(b.amount) })

	total := uint128.New()
	var selected []*pb.OutputWithPreviousTransactionData
	for _, candidate := range candidates {
		if total.Cmp(amount) >= 0 {
			break
		}
		var err error
		if total, err = total.Add(candidate.amount); err != nil {
			return nil, err
		}
		selected = append(selected, candidate.output)
	}
	if total.Cmp(amount) < 0 {
		return nil, sparkerrors.ValidationInsufficientFunds(fmt.Errorf("token balance %s is below %s", total, amount))
	}
	return selected, nil
}

// RevocationCommitments returns the revocation commitment of each output, in order.
func RevocationCommitments(outputs []*pb.OutputWithPreviousTransactionData) ([]keys.Public, error) {
	commitments := make([]keys.Public, len(outputs))
	for i, output := range outputs {
		commitment, err := keys.ParsePublicKey(output.Output.GetRevocationCommitment())
		if err != nil {
			return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("output %s has an invalid revocation commitment: %w", leafstore.OutputKey(output), err))
		}
		commitments[i] = commitment
	}
	return commitments, nil
}

func (c *TokenTransactionCoordinator) operatorIdentityPublicKeys() [][]byte {
	return serializeKeys(c.federation.Registry.IdentityPublicKeys())
}

func tokenInputCount(tx *pb.TokenTransaction) int {
	if transfer := tx.GetTransferInput(); transfer != nil {
		return len(transfer.OutputsToSpend)
	}
	return 1
}

func serializeKeys(in []keys.Public) [][]byte {
	if len(in) == 0 {
		return nil
	}
	out := make([][]byte, len(in))
	for i, key := range in {
		out[i] = key.Serialize()
	}
	return out
}
