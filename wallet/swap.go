package wallet

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/btcsuite/btcd/txscript"
	"go.uber.org/zap"

	"github.com/lightsparkdev/spark-wallet/common"
	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	"github.com/lightsparkdev/spark-wallet/common/keys"
	"github.com/lightsparkdev/spark-wallet/common/logging"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

// requestLeavesSwap trades leaves with the settlement service for new leaves
// in targetAmounts plus change, and returns the claimed leaves.
//
// The wallet's refunds to the service are handed over adaptor-encoded. The
// service's counter transfer carries refunds encoded with the same adaptor, so
// revealing the adaptor secret in CompleteLeavesSwap completes both sides.
// The caller holds the store guard.
func (w *Wallet) requestLeavesSwap(ctx context.Context, leaves []*pb.TreeNode, targetAmounts []uint64) ([]*pb.TreeNode, error) {
	if w.settlement == nil {
		return nil, sparkerrors.ValidationInvalidState(fmt.Errorf("no settlement service configured"))
	}
	total := sumLeafValues(leaves)
	var targetTotal uint64
	for _, amount := range targetAmounts {
		targetTotal += amount
	}
	if targetTotal > total {
		return nil, sparkerrors.ValidationInsufficientFunds(fmt.Errorf("cannot swap %d sats of leaves for %d sats", total, targetTotal))
	}
	ctx, logger := logging.WithAttrs(ctx, zap.Uint64("swap_total", total), zap.Uint64s("swap_targets", targetAmounts))

	leaves, err := w.timelocks.RefreshLeavesIfNeeded(ctx, leaves)
	if err != nil {
		return nil, err
	}
	tweaks, err := w.leafKeyTweaks(leaves)
	if err != nil {
		return nil, err
	}
	serviceKey := w.settlement.IdentityPublicKey()
	transfer, refundSignatures, err := w.transfers.StartSwapSignRefund(ctx, tweaks, serviceKey, time.Now().Add(w.config.TransferExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to start swap transfer: %w", err)
	}

	userLeaves, adaptorPrivKey, err := adaptSwapLeaves(transfer, refundSignatures)
	if err != nil {
		return nil, w.abandonTransfer(ctx, transfer, err)
	}
	resp, err := w.settlement.RequestLeavesSwap(ctx, &LeavesSwapRequest{
		AdaptorPublicKey:       adaptorPrivKey.Public(),
		TotalAmountSats:        total,
		TargetAmountSats:       targetAmounts,
		UserLeaves:             userLeaves,
		UserOutboundTransferID: transfer.Id,
	})
	if err != nil {
		return nil, w.abandonTransfer(ctx, transfer, fmt.Errorf("settlement service rejected swap: %w", err))
	}
	if err := w.verifySwapLeaves(ctx, resp.SwapLeaves, adaptorPrivKey); err != nil {
		return nil, w.abandonTransfer(ctx, transfer, err)
	}

	if _, err := w.transfers.SendTransferTweakKey(ctx, transfer, tweaks, refundSignatures); err != nil {
		return nil, fmt.Errorf("failed to tweak keys of swap transfer %s: %w", transfer.Id, err)
	}
	w.store.Remove(leafIDs(leaves)...)
	if err := w.settlement.CompleteLeavesSwap(ctx, adaptorPrivKey, transfer.Id, resp.RequestID); err != nil {
		return nil, fmt.Errorf("failed to complete swap %s: %w", resp.RequestID, err)
	}

	claimed, err := w.claimCounterTransfer(ctx, resp, serviceKey)
	if err != nil {
		return nil, fmt.Errorf("failed to claim swapped leaves: %w", err)
	}
	if claimedValue := sumLeafValues(claimed); claimedValue != total {
		return nil, sparkerrors.ValidationResponseMismatch(fmt.Errorf("swapped %d sats but claimed %d sats", total, claimedValue))
	}
	w.metrics.swapCompleted()
	logger.Info("completed leaves swap", zap.String("request_id", resp.RequestID), zap.Int("claimed_leaves", len(claimed)))
	return claimed, nil
}

// claimCounterTransfer claims the service's side of a swap and nothing else.
// Other pending transfers stay pending.
func (w *Wallet) claimCounterTransfer(ctx context.Context, resp *LeavesSwapResponse, serviceKey keys.Public) ([]*pb.TreeNode, error) {
	if resp.CounterTransferID == "" {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("swap %s has no counter transfer", resp.RequestID))
	}
	counter, err := w.transfers.QueryPendingTransfer(ctx, resp.CounterTransferID)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(counter.SenderIdentityPublicKey, serviceKey.Serialize()) {
		return nil, sparkerrors.ValidationResponseMismatch(fmt.Errorf("counter transfer %s was not sent by the settlement service", counter.Id))
	}
	if len(counter.Leaves) != len(resp.SwapLeaves) {
		return nil, sparkerrors.ValidationResponseMismatch(fmt.Errorf("counter transfer %s has %d leaves, swap has %d", counter.Id, len(counter.Leaves), len(resp.SwapLeaves)))
	}
	for _, swapLeaf := range resp.SwapLeaves {
		if !slices.ContainsFunc(counter.Leaves, func(l *pb.TransferLeaf) bool { return l.GetLeaf().GetId() == swapLeaf.LeafID }) {
			return nil, sparkerrors.ValidationResponseMismatch(fmt.Errorf("counter transfer %s is missing swap leaf %s", counter.Id, swapLeaf.LeafID))
		}
	}
	return w.claimTransfer(ctx, counter)
}

// adaptSwapLeaves encodes every refund signature of transfer with one fresh adaptor secret.
func adaptSwapLeaves(transfer *pb.Transfer, refundSignatures map[string][]byte) ([]SwapLeaf, keys.Private, error) {
	userLeaves := make([]SwapLeaf, 0, len(transfer.Leaves))
	var adaptorPrivKey keys.Private
	for i, transferLeaf := range transfer.Leaves {
		leafID := transferLeaf.Leaf.Id
		signature, ok := refundSignatures[leafID]
		if !ok {
			return nil, keys.Private{}, sparkerrors.ValidationMissingField(fmt.Errorf("no refund signature for leaf %s", leafID))
		}
		var adapted []byte
		var err error
		if i == 0 {
			adapted, adaptorPrivKey, err = common.GenerateAdaptorFromSignature(signature)
		} else {
			adapted, err = common.GenerateSignatureFromExistingAdaptor(signature, adaptorPrivKey)
		}
		if err != nil {
			return nil, keys.Private{}, fmt.Errorf("failed to adapt refund signature of leaf %s: %w", leafID, err)
		}
		userLeaves = append(userLeaves, SwapLeaf{
			LeafID:                       leafID,
			RawUnsignedRefundTransaction: transferLeaf.IntermediateRefundTx,
			AdaptorAddedSignature:        adapted,
		})
	}
	return userLeaves, adaptorPrivKey, nil
}

// verifySwapLeaves checks that each of the service's refund signatures becomes
// valid for its leaf's taproot key once the adaptor secret is applied.
func (w *Wallet) verifySwapLeaves(ctx context.Context, swapLeaves []SwapLeaf, adaptorPrivKey keys.Private) error {
	if len(swapLeaves) == 0 {
		return sparkerrors.ValidationMissingField(fmt.Errorf("settlement service returned no leaves"))
	}
	ids := make([]string, len(swapLeaves))
	for i, leaf := range swapLeaves {
		ids[i] = leaf.LeafID
	}
	nodes, err := queryNodesByID(ctx, w.federation, ids)
	if err != nil {
		return err
	}
	for _, leaf := range swapLeaves {
		node := nodes[leaf.LeafID]
		nodeTx, err := common.TxFromRawTxBytes(node.NodeTx)
		if err != nil {
			return sparkerrors.ValidationMalformedField(fmt.Errorf("swap leaf %s has an invalid node tx: %w", leaf.LeafID, err))
		}
		refundTx, err := common.TxFromRawTxBytes(leaf.RawUnsignedRefundTransaction)
		if err != nil {
			return sparkerrors.ValidationMalformedField(fmt.Errorf("swap leaf %s has an invalid refund tx: %w", leaf.LeafID, err))
		}
		sighash, err := common.SigHashFromTx(refundTx, 0, nodeTx.TxOut[0])
		if err != nil {
			return fmt.Errorf("failed to compute sighash of swap leaf %s: %w", leaf.LeafID, err)
		}
		verifyingKey, err := keys.ParsePublicKey(node.VerifyingPublicKey)
		if err != nil {
			return sparkerrors.ValidationMalformedField(fmt.Errorf("swap leaf %s has an invalid verifying key: %w", leaf.LeafID, err))
		}
		taprootKey := txscript.ComputeTaprootKeyNoScript(verifyingKey.ToBTCEC())
		if _, err := common.ApplyAdaptorToSignature(keys.PublicKeyFromKey(*taprootKey), sighash, leaf.AdaptorAddedSignature, adaptorPrivKey); err != nil {
			return sparkerrors.AuthenticationBadSignature(fmt.Errorf("swap leaf %s: %w", leaf.LeafID, err))
		}
	}
	return nil
}

// abandonTransfer cancels a transfer that will not be completed and returns cause.
func (w *Wallet) abandonTransfer(ctx context.Context, transfer *pb.Transfer, cause error) error {
	if _, err := w.transfers.CancelTransfer(ctx, transfer); err != nil {
		logging.GetLoggerFromContext(ctx).Warn("failed to cancel transfer", zap.String("transfer_id", transfer.Id), zap.Error(err))
	}
	return cause
}
