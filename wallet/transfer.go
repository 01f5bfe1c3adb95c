package wallet

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	bitcointransaction "github.com/lightsparkdev/spark-wallet/common/bitcoin_transaction"
	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	"github.com/lightsparkdev/spark-wallet/common/keys"
	"github.com/lightsparkdev/spark-wallet/common/logging"
	secretsharing "github.com/lightsparkdev/spark-wallet/common/secret_sharing"
	"github.com/lightsparkdev/spark-wallet/leafstore"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
	"github.com/lightsparkdev/spark-wallet/so"
	"github.com/lightsparkdev/spark-wallet/so/fanout"
)

// claimedTransferTTL is how long a claimed transfer id is remembered.
const claimedTransferTTL = 24 * time.Hour

// TransferCoordinator runs the leaf transfer protocol: the sender signs new
// refunds for the receiver and tweaks its key shares away, then the receiver
// tweaks the shares to its own keys and signs refunds to itself.
type TransferCoordinator struct {
	federation *Federation
	store      *leafstore.Store
	expiry     time.Duration
	claimed    *ttlcache.Cache[string, struct{}]
}

func NewTransferCoordinator(federation *Federation, store *leafstore.Store, expiry time.Duration) *TransferCoordinator {
	return &TransferCoordinator{
		federation: federation,
		store:      store,
		expiry:     expiry,
		claimed: ttlcache.New(
			ttlcache.WithTTL[string, struct{}](claimedTransferTTL),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
	}
}

// SendTransfer moves leaves to receiver and drops them from the store once
// every operator has applied the key tweak.
func (c *TransferCoordinator) SendTransfer(ctx context.Context, leaves []LeafKeyTweak, receiver keys.Public) (*pb.Transfer, error) {
	ctx, logger := logging.WithAttrs(ctx, zap.Stringer("receiver", receiver), zap.Int("leaves", len(leaves)))
	transfer, refundSignatures, err := c.SendTransferSignRefund(ctx, leaves, receiver, time.Now().Add(c.expiry))
	if err != nil {
		return nil, fmt.Errorf("failed to sign refunds for transfer: %w", err)
	}
	transfer, err = c.SendTransferTweakKey(ctx, transfer, leaves, refundSignatures)
	if err != nil {
		return nil, fmt.Errorf("failed to tweak keys for transfer: %w", err)
	}
	ids := make([]string, len(leaves))
	for i, leaf := range leaves {
		ids[i] = leaf.Leaf.Id
	}
	c.store.Remove(ids...)
	logger.Info("sent transfer", zap.String("transfer_id", transfer.Id), zap.Uint64("value", transfer.TotalValue))
	return transfer, nil
}

// SendTransferSignRefund starts a transfer on the coordinator and signs a
// refund to the receiver for every leaf. Signatures are keyed by leaf id.
func (c *TransferCoordinator) SendTransferSignRefund(ctx context.Context, leaves []LeafKeyTweak, receiver keys.Public, expiry time.Time) (*pb.Transfer, map[string][]byte, error) {
	return c.sendTransferSignRefund(ctx, leaves, receiver, expiry, keys.Public{}, false)
}

// StartSwapSignRefund is SendTransferSignRefund for the wallet's side of a leaves swap.
func (c *TransferCoordinator) StartSwapSignRefund(ctx context.Context, leaves []LeafKeyTweak, receiver keys.Public, expiry time.Time) (*pb.Transfer, map[string][]byte, error) {
	return c.sendTransferSignRefund(ctx, leaves, receiver, expiry, keys.Public{}, true)
}

// CounterSwapSignRefund signs refunds locked to adaptorPublicKey, for the
// counter side of a swap.
func (c *TransferCoordinator) CounterSwapSignRefund(ctx context.Context, leaves []LeafKeyTweak, receiver keys.Public, expiry time.Time, adaptorPublicKey keys.Public) (*pb.Transfer, map[string][]byte, error) {
	return c.sendTransferSignRefund(ctx, leaves, receiver, expiry, adaptorPublicKey, false)
}

func (c *TransferCoordinator) sendTransferSignRefund(
	ctx context.Context,
	leaves []LeafKeyTweak,
	receiver keys.Public,
	expiry time.Time,
	adaptorPublicKey keys.Public,
	forSwap bool,
) (*pb.Transfer, map[string][]byte, error) {
	if len(leaves) == 0 {
		return nil, nil, sparkerrors.ValidationMissingField(fmt.Errorf("no leaves to transfer"))
	}
	data, jobs, err := prepareRefundSigningJobs(c.federation.Signer, leaves, func(leaf LeafKeyTweak) (keys.Private, keys.Public) {
		return leaf.SigningPrivKey, receiver
	})
	if err != nil {
		return nil, nil, err
	}
	return c.startTransfer(ctx, data, jobs, receiver, expiry, adaptorPublicKey, forSwap)
}

// startTransfer submits prepared refund signing jobs under a new transfer id
// and completes each refund signature.
func (c *TransferCoordinator) startTransfer(
	ctx context.Context,
	data map[string]*refundSigningData,
	jobs []*pb.LeafRefundTxSigningJob,
	receiver keys.Public,
	expiry time.Time,
	adaptorPublicKey keys.Public,
	forSwap bool,
) (*pb.Transfer, map[string][]byte, error) {
	transferID, err := uuid.NewRandom()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate transfer id: %w", err)
	}
	client, err := c.federation.coordinator()
	if err != nil {
		return nil, nil, err
	}
	request := &pb.StartTransferRequest{
		TransferId:                transferID.String(),
		OwnerIdentityPublicKey:    c.federation.identityPublicKey(),
		LeavesToSend:              jobs,
		ReceiverIdentityPublicKey: receiver.Serialize(),
		ExpiryTime:                expiry,
	}

	var transfer *pb.Transfer
	var results []*pb.LeafRefundTxSigningResult
	switch {
	case !adaptorPublicKey.IsZero():
		swapID, err := uuid.NewV7()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate swap id: %w", err)
		}
		resp, err := client.CounterLeafSwap(ctx, &pb.CounterLeafSwapRequest{
			Transfer:         request,
			SwapId:           swapID.String(),
			AdaptorPublicKey: adaptorPublicKey.Serialize(),
		})
		if err != nil {
			return nil, nil, c.federation.coordinatorError("counter_leaf_swap", err)
		}
		transfer, results = resp.Transfer, resp.SigningResults
	case forSwap:
		resp, err := client.StartLeafSwap(ctx, request)
		if err != nil {
			return nil, nil, c.federation.coordinatorError("start_leaf_swap", err)
		}
		transfer, results = resp.Transfer, resp.SigningResults
	default:
		resp, err := client.StartSendTransfer(ctx, request)
		if err != nil {
			return nil, nil, c.federation.coordinatorError("start_send_transfer", err)
		}
		transfer, results = resp.Transfer, resp.SigningResults
	}
	if transfer == nil {
		return nil, nil, sparkerrors.ValidationMissingField(fmt.Errorf("coordinator returned no transfer"))
	}
	if transfer.Id != request.TransferId || transfer.Status != pb.TransferStatusSenderInitiated || len(transfer.Leaves) != len(jobs) {
		return nil, nil, sparkerrors.ValidationResponseMismatch(fmt.Errorf("coordinator returned transfer %s in status %s with %d leaves", transfer.Id, transfer.Status, len(transfer.Leaves)))
	}
	if err := checkTransferValue(transfer); err != nil {
		return nil, nil, err
	}

	nodeSignatures, err := signRefunds(ctx, c.federation.Signer, data, results, adaptorPublicKey)
	if err != nil {
		return nil, nil, err
	}
	refundSignatures := make(map[string][]byte, len(nodeSignatures))
	for _, signature := range nodeSignatures {
		refundSignatures[signature.NodeId] = signature.RefundTxSignature
	}
	return transfer, refundSignatures, nil
}

// SendTransferTweakKey sends every operator its share of each leaf's key
// tweak. All operators must accept and report the same transfer.
func (c *TransferCoordinator) SendTransferTweakKey(ctx context.Context, transfer *pb.Transfer, leaves []LeafKeyTweak, refundSignatures map[string][]byte) (*pb.Transfer, error) {
	receiver, err := keys.ParsePublicKey(transfer.ReceiverIdentityPublicKey)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("invalid receiver identity public key: %w", err))
	}
	keyTweaks, err := c.prepareSendTransferKeyTweaks(transfer.Id, receiver, leaves, refundSignatures)
	if err != nil {
		return nil, err
	}

	results := executeAll(ctx, c.federation, "complete_send_transfer", func(ctx context.Context, operator *so.SigningOperator, client pb.SparkServiceClient) (*pb.Transfer, error) {
		resp, err := client.CompleteSendTransfer(ctx, &pb.CompleteSendTransferRequest{
			TransferId:             transfer.Id,
			OwnerIdentityPublicKey: c.federation.identityPublicKey(),
			LeavesToSend:           keyTweaks[operator.Identifier],
		})
		if err != nil {
			return nil, err
		}
		if resp.Transfer == nil {
			return nil, sparkerrors.ValidationMissingField(fmt.Errorf("operator %s returned no transfer", operator.Identifier))
		}
		return resp.Transfer, nil
	})
	transfers, err := fanout.RequireAll(results)
	if err != nil {
		return nil, err
	}

	updated := transfers[c.federation.Registry.Coordinator().Identifier]
	for identifier, other := range transfers {
		if err := compareTransfers(updated, other); err != nil {
			return nil, sparkerrors.ValidationResponseMismatch(fmt.Errorf("operator %s disagrees on transfer %s: %w", identifier, transfer.Id, err))
		}
	}
	if err := validateTransferTransition(ctx, transfer.Status, updated.Status); err != nil {
		return nil, err
	}
	return updated, nil
}

// compareTransfers reports the first field two operators' views of a transfer disagree on.
func compareTransfers(a, b *pb.Transfer) error {
	switch {
	case a.Id != b.Id:
		return fmt.Errorf("id %s != %s", a.Id, b.Id)
	case string(a.SenderIdentityPublicKey) != string(b.SenderIdentityPublicKey):
		return fmt.Errorf("sender identity public key differs")
	case string(a.ReceiverIdentityPublicKey) != string(b.ReceiverIdentityPublicKey):
		return fmt.Errorf("receiver identity public key differs")
	case a.Status != b.Status:
		return fmt.Errorf("status %s != %s", a.Status, b.Status)
	case a.TotalValue != b.TotalValue:
		return fmt.Errorf("total value %d != %d", a.TotalValue, b.TotalValue)
	case !a.ExpiryTime.Equal(b.ExpiryTime):
		return fmt.Errorf("expiry %s != %s", a.ExpiryTime, b.ExpiryTime)
	case len(a.Leaves) != len(b.Leaves):
		return fmt.Errorf("leaf count %d != %d", len(a.Leaves), len(b.Leaves))
	}
	return nil
}

// prepareSendTransferKeyTweaks builds each operator's key tweak packages, keyed by operator identifier.
func (c *TransferCoordinator) prepareSendTransferKeyTweaks(transferID string, receiver keys.Public, leaves []LeafKeyTweak, refundSignatures map[string][]byte) (map[string][]*pb.SendLeafKeyTweak, error) {
	tweaks := make(map[string][]*pb.SendLeafKeyTweak)
	for _, leaf := range leaves {
		refundSignature, ok := refundSignatures[leaf.Leaf.Id]
		if !ok {
			return nil, sparkerrors.ValidationMissingField(fmt.Errorf("no refund signature for leaf %s", leaf.Leaf.Id))
		}
		shares, pubkeySharesTweak, err := c.splitKeyTweak(leaf)
		if err != nil {
			return nil, err
		}
		secretCipher, err := c.federation.Signer.EncryptForPublicKey(receiver, leaf.NewSigningPrivKey.Serialize())
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt new signing key for leaf %s: %w", leaf.Leaf.Id, err)
		}
		payloadHash := transferLeafPayloadHash(leaf.Leaf.Id, transferID, secretCipher)
		signature, err := c.federation.Signer.SignIdentityECDSA(payloadHash)
		if err != nil {
			return nil, err
		}
		for identifier, share := range shares {
			tweaks[identifier] = append(tweaks[identifier], &pb.SendLeafKeyTweak{
				LeafId:            leaf.Leaf.Id,
				SecretShareTweak:  share,
				PubkeySharesTweak: pubkeySharesTweak,
				SecretCipher:      secretCipher,
				Signature:         signature,
				RefundSignature:   refundSignature,
			})
		}
	}
	return tweaks, nil
}

// splitKeyTweak shamir-splits SigningPrivKey - NewSigningPrivKey across the
// operators. It returns each operator's share and the public key of every share.
func (c *TransferCoordinator) splitKeyTweak(leaf LeafKeyTweak) (map[string]*pb.SecretShare, map[string][]byte, error) {
	return splitKeyTweak(c.federation, leaf)
}

func splitKeyTweak(f *Federation, leaf LeafKeyTweak) (map[string]*pb.SecretShare, map[string][]byte, error) {
	operators := f.Registry.Operators()
	tweak := leaf.SigningPrivKey.Sub(leaf.NewSigningPrivKey)
	shares, err := f.Signer.SplitSecretWithProofs(tweak, f.Registry.Threshold(), len(operators))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to split key tweak for leaf %s: %w", leaf.Leaf.Id, err)
	}

	secretShares := make(map[string]*pb.SecretShare, len(operators))
	pubkeySharesTweak := make(map[string][]byte, len(operators))
	for _, operator := range operators {
		share := findShare(shares, operator)
		if share == nil {
			return nil, nil, fmt.Errorf("no share for operator %s", operator.Identifier)
		}
		sharePrivKey, err := keys.PrivateKeyFromBigInt(share.Share)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid share for operator %s: %w", operator.Identifier, err)
		}
		shareBytes := make([]byte, 32)
		share.Share.FillBytes(shareBytes)
		secretShares[operator.Identifier] = &pb.SecretShare{SecretShare: shareBytes, Proofs: share.Proofs}
		pubkeySharesTweak[operator.Identifier] = sharePrivKey.Public().Serialize()
	}
	return secretShares, pubkeySharesTweak, nil
}

func findShare(shares []*secretsharing.VerifiableSecretShare, operator *so.SigningOperator) *secretsharing.VerifiableSecretShare {
	index := operator.ShareIndex()
	for _, share := range shares {
		if share.Index.Cmp(index) == 0 {
			return share
		}
	}
	return nil
}

// transferLeafPayloadHash is what the sender signs for each leaf: sha256(leafId || transferId || cipher).
func transferLeafPayloadHash(leafID, transferID string, secretCipher []byte) []byte {
	payload := make([]byte, 0, len(leafID)+len(transferID)+len(secretCipher))
	payload = append(payload, leafID...)
	payload = append(payload, transferID...)
	payload = append(payload, secretCipher...)
	hash := sha256.Sum256(payload)
	return hash[:]
}

// checkTransferValue rejects a transfer whose leaves do not add up to its total.
func checkTransferValue(transfer *pb.Transfer) error {
	var value uint64
	for _, transferLeaf := range transfer.Leaves {
		value += transferLeaf.GetLeaf().GetValue()
	}
	if value != transfer.TotalValue {
		return sparkerrors.ValidationResponseMismatch(fmt.Errorf("transfer %s has leaves worth %d sats but a total of %d sats", transfer.Id, value, transfer.TotalValue))
	}
	return nil
}

// VerifyPendingTransfer checks the sender's signature on every leaf and
// decrypts the leaf keys the sender handed over, keyed by leaf id.
func (c *TransferCoordinator) VerifyPendingTransfer(_ context.Context, transfer *pb.Transfer) (map[string]keys.Private, error) {
	sender, err := keys.ParsePublicKey(transfer.SenderIdentityPublicKey)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("invalid sender identity public key: %w", err))
	}
	leafKeys := make(map[string]keys.Private, len(transfer.Leaves))
	for _, transferLeaf := range transfer.Leaves {
		if transferLeaf.Leaf == nil {
			return nil, sparkerrors.ValidationMissingField(fmt.Errorf("transfer %s has a leaf without a node", transfer.Id))
		}
		leafID := transferLeaf.Leaf.Id
		signature, err := parseSenderSignature(transferLeaf.Signature)
		if err != nil {
			return nil, sparkerrors.AuthenticationBadSignature(fmt.Errorf("leaf %s: %w", leafID, err))
		}
		if !signature.Verify(transferLeafPayloadHash(leafID, transfer.Id, transferLeaf.SecretCipher), sender.ToBTCEC()) {
			return nil, sparkerrors.AuthenticationBadSignature(fmt.Errorf("sender signature for leaf %s does not verify", leafID))
		}
		secret, err := c.federation.Signer.DecryptWithIdentityKey(transferLeaf.SecretCipher)
		if err != nil {
			return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("failed to decrypt key for leaf %s: %w", leafID, err))
		}
		leafKey, err := keys.ParsePrivateKey(secret)
		if err != nil {
			return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("invalid key for leaf %s: %w", leafID, err))
		}
		leafKeys[leafID] = leafKey
	}
	return leafKeys, nil
}

// parseSenderSignature accepts a DER signature or a 64 byte compact r || s.
func parseSenderSignature(raw []byte) (*ecdsa.Signature, error) {
	signature, err := ecdsa.ParseDERSignature(raw)
	if err == nil {
		return signature, nil
	}
	if len(raw) != 64 {
		return nil, fmt.Errorf("failed to parse signature: %w", err)
	}
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(raw[:32]); overflow || r.IsZero() {
		return nil, fmt.Errorf("invalid signature r")
	}
	if overflow := s.SetByteSlice(raw[32:]); overflow || s.IsZero() {
		return nil, fmt.Errorf("invalid signature s")
	}
	return ecdsa.NewSignature(&r, &s), nil
}

// ClaimTransfer takes ownership of a transfer's leaves: each leaf moves from
// SigningPrivKey, the key the sender handed over, to NewSigningPrivKey. The
// claimed nodes are added to the store.
func (c *TransferCoordinator) ClaimTransfer(ctx context.Context, transfer *pb.Transfer, leaves []LeafKeyTweak) ([]*pb.TreeNode, error) {
	ctx, logger := logging.WithAttrs(ctx, zap.String("transfer_id", transfer.Id))
	if c.claimed.Has(transfer.Id) {
		logger.Info("transfer already claimed")
		return nil, nil
	}
	if transfer.Status == pb.TransferStatusExpired {
		return nil, sparkerrors.ValidationExpired(fmt.Errorf("transfer %s has expired", transfer.Id))
	}
	if !transfer.ExpiryTime.IsZero() && time.Now().After(transfer.ExpiryTime) {
		return nil, sparkerrors.ValidationExpired(fmt.Errorf("transfer %s expired at %s", transfer.Id, transfer.ExpiryTime))
	}
	if err := checkTransferValue(transfer); err != nil {
		return nil, err
	}

	status := transfer.Status
	switch status {
	case pb.TransferStatusSenderKeyTweaked:
		if err := c.claimTransferTweakKeys(ctx, transfer, leaves); err != nil {
			return nil, fmt.Errorf("failed to tweak keys when claiming leaves: %w", err)
		}
		if err := validateTransferTransition(ctx, status, pb.TransferStatusReceiverKeyTweaked); err != nil {
			return nil, err
		}
		status = pb.TransferStatusReceiverKeyTweaked
	case pb.TransferStatusReceiverKeyTweaked, pb.TransferStatusReceiverRefundSigned:
	default:
		return nil, sparkerrors.ValidationInvalidState(fmt.Errorf("transfer %s cannot be claimed in status %s", transfer.Id, status))
	}

	signatures, err := c.claimTransferSignRefunds(ctx, transfer, leaves)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refunds when claiming leaves: %w", err)
	}
	if err := validateTransferTransition(ctx, status, pb.TransferStatusReceiverRefundSigned); err != nil {
		return nil, err
	}
	nodes, err := finalizeNodeSignatures(ctx, c.federation, pb.SignatureIntentTransfer, signatures)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize claimed leaves: %w", err)
	}
	if err := validateTransferTransition(ctx, pb.TransferStatusReceiverRefundSigned, pb.TransferStatusCompleted); err != nil {
		return nil, err
	}

	newKeys := make(map[string]keys.Private, len(leaves))
	for _, leaf := range leaves {
		newKeys[leaf.Leaf.Id] = leaf.NewSigningPrivKey
	}
	for _, node := range nodes {
		key, ok := newKeys[node.Id]
		if !ok {
			continue
		}
		if err := bitcointransaction.VerifyRefundTx(node.RefundTx, node.NodeTx, key.Public()); err != nil {
			return nil, sparkerrors.ValidationResponseMismatch(fmt.Errorf("claimed leaf %s: %w", node.Id, err))
		}
	}
	for _, node := range nodes {
		if key, ok := newKeys[node.Id]; ok {
			c.store.SetSigningKey(node.Id, key)
		}
	}
	c.store.Add(nodes...)
	c.claimed.Set(transfer.Id, struct{}{}, ttlcache.DefaultTTL)
	logger.Info("claimed transfer", zap.Int("leaves", len(nodes)), zap.Uint64("value", transfer.TotalValue))
	return nodes, nil
}

func (c *TransferCoordinator) claimTransferTweakKeys(ctx context.Context, transfer *pb.Transfer, leaves []LeafKeyTweak) error {
	tweaks := make(map[string][]*pb.ClaimLeafKeyTweak)
	for _, leaf := range leaves {
		shares, pubkeySharesTweak, err := c.splitKeyTweak(leaf)
		if err != nil {
			return err
		}
		for identifier, share := range shares {
			tweaks[identifier] = append(tweaks[identifier], &pb.ClaimLeafKeyTweak{
				LeafId:            leaf.Leaf.Id,
				SecretShareTweak:  share,
				PubkeySharesTweak: pubkeySharesTweak,
			})
		}
	}

	results := executeAll(ctx, c.federation, "claim_transfer_tweak_keys", func(ctx context.Context, operator *so.SigningOperator, client pb.SparkServiceClient) (*pb.Empty, error) {
		return client.ClaimTransferTweakKeys(ctx, &pb.ClaimTransferTweakKeysRequest{
			TransferId:             transfer.Id,
			OwnerIdentityPublicKey: c.federation.identityPublicKey(),
			LeavesToReceive:        tweaks[operator.Identifier],
		})
	})
	_, err := fanout.RequireAll(results)
	return err
}

func (c *TransferCoordinator) claimTransferSignRefunds(ctx context.Context, transfer *pb.Transfer, leaves []LeafKeyTweak) ([]*pb.NodeSignatures, error) {
	data, jobs, err := prepareRefundSigningJobs(c.federation.Signer, leaves, func(leaf LeafKeyTweak) (keys.Private, keys.Public) {
		return leaf.NewSigningPrivKey, leaf.NewSigningPrivKey.Public()
	})
	if err != nil {
		return nil, err
	}
	client, err := c.federation.coordinator()
	if err != nil {
		return nil, err
	}
	resp, err := client.ClaimTransferSignRefunds(ctx, &pb.ClaimTransferSignRefundsRequest{
		TransferId:             transfer.Id,
		OwnerIdentityPublicKey: c.federation.identityPublicKey(),
		SigningJobs:            jobs,
	})
	if err != nil {
		return nil, c.federation.coordinatorError("claim_transfer_sign_refunds", err)
	}
	return signRefunds(ctx, c.federation.Signer, data, resp.SigningResults, keys.Public{})
}

// CancelTransfer returns the leaves of a transfer that no operator has
// received a key tweak for yet.
func (c *TransferCoordinator) CancelTransfer(ctx context.Context, transfer *pb.Transfer) (*pb.Transfer, error) {
	if transfer.Status != pb.TransferStatusSenderInitiated {
		return nil, sparkerrors.ValidationInvalidState(fmt.Errorf("transfer %s cannot be cancelled in status %s", transfer.Id, transfer.Status))
	}
	client, err := c.federation.coordinator()
	if err != nil {
		return nil, err
	}
	resp, err := client.CancelSendTransfer(ctx, &pb.CancelSendTransferRequest{
		TransferId:              transfer.Id,
		SenderIdentityPublicKey: c.federation.identityPublicKey(),
	})
	if err != nil {
		return nil, c.federation.coordinatorError("cancel_send_transfer", err)
	}
	if resp.Transfer == nil {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("coordinator returned no transfer"))
	}
	if err := validateTransferTransition(ctx, transfer.Status, resp.Transfer.Status); err != nil {
		return nil, err
	}
	return resp.Transfer, nil
}

// QueryPendingTransfers lists transfers waiting for this wallet to claim them.
func (c *TransferCoordinator) QueryPendingTransfers(ctx context.Context) ([]*pb.Transfer, error) {
	return c.queryPending(ctx, &pb.TransferFilter{
		ReceiverIdentityPublicKey: c.federation.identityPublicKey(),
		Network:                   c.federation.protoNetwork(),
	})
}

// QueryPendingTransfer fetches one claimable transfer addressed to this wallet.
func (c *TransferCoordinator) QueryPendingTransfer(ctx context.Context, transferID string) (*pb.Transfer, error) {
	transfers, err := c.queryPending(ctx, &pb.TransferFilter{
		ReceiverIdentityPublicKey: c.federation.identityPublicKey(),
		TransferIds:               []string{transferID},
		Network:                   c.federation.protoNetwork(),
	})
	if err != nil {
		return nil, err
	}
	for _, transfer := range transfers {
		if transfer.Id == transferID {
			return transfer, nil
		}
	}
	return nil, sparkerrors.ValidationInvalidState(fmt.Errorf("transfer %s is not pending", transferID))
}

// QueryPendingSenderTransfers lists unfinished transfers this wallet sent.
func (c *TransferCoordinator) QueryPendingSenderTransfers(ctx context.Context) ([]*pb.Transfer, error) {
	return c.queryPending(ctx, &pb.TransferFilter{
		SenderIdentityPublicKey: c.federation.identityPublicKey(),
		Network:                 c.federation.protoNetwork(),
	})
}

func (c *TransferCoordinator) queryPending(ctx context.Context, filter *pb.TransferFilter) ([]*pb.Transfer, error) {
	client, err := c.federation.coordinator()
	if err != nil {
		return nil, err
	}
	resp, err := client.QueryPendingTransfers(ctx, filter)
	if err != nil {
		return nil, c.federation.coordinatorError("query_pending_transfers", err)
	}
	return resp.Transfers, nil
}

// QueryAllTransfers pages through every transfer this wallet took part in.
// The returned offset is negative once there are no more pages.
func (c *TransferCoordinator) QueryAllTransfers(ctx context.Context, limit, offset int64) ([]*pb.Transfer, int64, error) {
	client, err := c.federation.coordinator()
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.QueryAllTransfers(ctx, &pb.TransferFilter{
		ParticipantIdentityPublicKey: c.federation.identityPublicKey(),
		Limit:                        limit,
		Offset:                       offset,
		Network:                      c.federation.protoNetwork(),
	})
	if err != nil {
		return nil, 0, c.federation.coordinatorError("query_all_transfers", err)
	}
	return resp.Transfers, resp.Offset, nil
}
