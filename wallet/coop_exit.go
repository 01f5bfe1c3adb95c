package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	spark "github.com/lightsparkdev/spark-wallet"
	"github.com/lightsparkdev/spark-wallet/common"
	bitcointransaction "github.com/lightsparkdev/spark-wallet/common/bitcoin_transaction"
	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	"github.com/lightsparkdev/spark-wallet/common/keys"
	"github.com/lightsparkdev/spark-wallet/common/logging"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

// CoopExitResult describes a completed cooperative exit.
type CoopExitResult struct {
	ExitID   string
	ExitTxid string
	Transfer *pb.Transfer
}

// coopExit hands leaves to the settlement service in exchange for an on-chain
// payment to withdrawalAddress. Each leaf gets a refund to the service that
// also spends one connector output of the exit transaction, so the service can
// only use it once the exit has confirmed. The caller holds the store guard.
func (w *Wallet) coopExit(ctx context.Context, leaves []*pb.TreeNode, withdrawalAddress string) (*CoopExitResult, error) {
	if w.settlement == nil {
		return nil, sparkerrors.ValidationInvalidState(fmt.Errorf("no settlement service configured"))
	}
	ctx, logger := logging.WithAttrs(ctx, zap.String("withdrawal_address", withdrawalAddress))

	leaves, err := w.timelocks.RefreshLeavesIfNeeded(ctx, leaves)
	if err != nil {
		return nil, err
	}
	tweaks, err := w.leafKeyTweaks(leaves)
	if err != nil {
		return nil, err
	}
	quote, err := w.settlement.RequestCoopExit(ctx, leafIDs(leaves), withdrawalAddress)
	if err != nil {
		return nil, fmt.Errorf("settlement service rejected coop exit: %w", err)
	}
	connectors, err := connectorOutputs(quote.ConnectorTx, len(tweaks))
	if err != nil {
		return nil, err
	}

	serviceKey := w.settlement.IdentityPublicKey()
	data, jobs, err := prepareConnectorRefundSigningJobs(w.federation, tweaks, connectors, serviceKey)
	if err != nil {
		return nil, err
	}
	transfer, refundSignatures, err := w.transfers.startTransfer(ctx, data, jobs, serviceKey, time.Now().Add(w.config.TransferExpiry), keys.Public{}, false)
	if err != nil {
		return nil, fmt.Errorf("failed to sign connector refunds: %w", err)
	}
	transfer, err = w.transfers.SendTransferTweakKey(ctx, transfer, tweaks, refundSignatures)
	if err != nil {
		return nil, fmt.Errorf("failed to tweak keys of coop exit transfer: %w", err)
	}
	w.store.Remove(leafIDs(leaves)...)

	if err := w.settlement.CompleteCoopExit(ctx, transfer.Id, quote.ExitID); err != nil {
		return nil, fmt.Errorf("failed to complete coop exit %s: %w", quote.ExitID, err)
	}
	logger.Info("completed coop exit", zap.String("exit_id", quote.ExitID), zap.Stringer("exit_txid", quote.ExitTxid))
	return &CoopExitResult{
		ExitID:   quote.ExitID,
		ExitTxid: quote.ExitTxid.String(),
		Transfer: transfer,
	}, nil
}

type connectorOutput struct {
	outPoint wire.OutPoint
	txOut    *wire.TxOut
}

// connectorOutputs returns the first n outputs of connectorTx. The last
// output is the service's change and is never a connector.
func connectorOutputs(connectorTx *wire.MsgTx, n int) ([]connectorOutput, error) {
	if connectorTx == nil {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("settlement service returned no connector tx"))
	}
	if len(connectorTx.TxOut)-1 < n {
		return nil, sparkerrors.ValidationResponseMismatch(fmt.Errorf("connector tx has %d connector outputs for %d leaves", len(connectorTx.TxOut)-1, n))
	}
	txid := connectorTx.TxHash()
	outputs := make([]connectorOutput, n)
	for i := range n {
		outputs[i] = connectorOutput{
			outPoint: wire.OutPoint{Hash: txid, Index: uint32(i)},
			txOut:    connectorTx.TxOut[i],
		}
	}
	return outputs, nil
}

// prepareConnectorRefundSigningJobs builds each leaf's refund to receiver one
// timelock interval below its current refund, spending the node output and
// the leaf's connector output.
func prepareConnectorRefundSigningJobs(f *Federation, leaves []LeafKeyTweak, connectors []connectorOutput, receiver keys.Public) (map[string]*refundSigningData, []*pb.LeafRefundTxSigningJob, error) {
	data := make(map[string]*refundSigningData, len(leaves))
	jobs := make([]*pb.LeafRefundTxSigningJob, 0, len(leaves))
	for i, leaf := range leaves {
		if _, ok := data[leaf.Leaf.Id]; ok {
			return nil, nil, sparkerrors.ValidationDuplicateField(fmt.Errorf("leaf %s appears twice", leaf.Leaf.Id))
		}
		currentSequence, err := refundSequence(leaf.Leaf)
		if err != nil {
			return nil, nil, err
		}
		sequence, err := spark.NextSequence(currentSequence)
		if err != nil {
			return nil, nil, sparkerrors.ValidationInvalidState(fmt.Errorf("leaf %s: %w", leaf.Leaf.Id, err))
		}
		nodeTx, err := common.TxFromRawTxBytes(leaf.Leaf.NodeTx)
		if err != nil {
			return nil, nil, sparkerrors.ValidationMalformedField(fmt.Errorf("leaf %s has an invalid node tx: %w", leaf.Leaf.Id, err))
		}
		nodeOutPoint := wire.OutPoint{Hash: nodeTx.TxHash(), Index: 0}
		connector := connectors[i]
		refundTx, err := bitcointransaction.CreateConnectorRefundTx(sequence, &nodeOutPoint, &connector.outPoint, nodeTx.TxOut[0].Value, receiver)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create connector refund for leaf %s: %w", leaf.Leaf.Id, err)
		}
		sighash, err := common.SigHashFromMultiPrevOutTx(refundTx, 0, map[wire.OutPoint]*wire.TxOut{
			nodeOutPoint:       nodeTx.TxOut[0],
			connector.outPoint: connector.txOut,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to compute connector refund sighash for leaf %s: %w", leaf.Leaf.Id, err)
		}
		job, wireJob, err := newSigningJobForSighash(f.Signer, refundTx, sighash, leaf.SigningPrivKey)
		if err != nil {
			return nil, nil, fmt.Errorf("leaf %s: %w", leaf.Leaf.Id, err)
		}
		data[leaf.Leaf.Id] = &refundSigningData{
			leaf:     leaf.Leaf,
			nodeTx:   nodeTx,
			refundTx: refundTx,
			job:      job,
		}
		jobs = append(jobs, &pb.LeafRefundTxSigningJob{
			LeafId:             leaf.Leaf.Id,
			RefundTxSigningJob: wireJob,
		})
	}
	return data, jobs, nil
}
