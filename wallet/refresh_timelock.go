package wallet

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	spark "github.com/lightsparkdev/spark-wallet"
	"github.com/lightsparkdev/spark-wallet/common"
	bitcointransaction "github.com/lightsparkdev/spark-wallet/common/bitcoin_transaction"
	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	"github.com/lightsparkdev/spark-wallet/common/keys"
	"github.com/lightsparkdev/spark-wallet/common/logging"
	"github.com/lightsparkdev/spark-wallet/leafstore"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

// TimelockManager keeps the relative timelocks of owned leaves spendable.
type TimelockManager struct {
	federation *Federation
	store      *leafstore.Store
}

func NewTimelockManager(federation *Federation, store *leafstore.Store) *TimelockManager {
	return &TimelockManager{federation: federation, store: store}
}

// NeedToRefreshTimelock reports whether the leaf's refund can no longer be
// decremented for another transfer.
func NeedToRefreshTimelock(leaf *pb.TreeNode) (bool, error) {
	sequence, err := refundSequence(leaf)
	if err != nil {
		return false, err
	}
	return !spark.CanDecrementSequence(sequence), nil
}

// RefreshTimelockRefundTx re-signs the leaf's refund one interval lower.
func (m *TimelockManager) RefreshTimelockRefundTx(ctx context.Context, leaf *pb.TreeNode, signingKey keys.Private) (*pb.TreeNode, error) {
	refundTx, err := common.TxFromRawTxBytes(leaf.RefundTx)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("failed to parse refund tx: %w", err))
	}
	nodeTx, err := common.TxFromRawTxBytes(leaf.NodeTx)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("failed to parse node tx: %w", err))
	}
	refundTx.TxIn[0].Sequence, err = spark.NextSequence(refundTx.TxIn[0].Sequence)
	if err != nil {
		return nil, sparkerrors.ValidationInvalidState(fmt.Errorf("leaf %s: %w", leaf.Id, err))
	}

	job, wireJob, err := newSigningJob(m.federation.Signer, refundTx, nodeTx.TxOut[0], signingKey)
	if err != nil {
		return nil, err
	}
	if err := m.refreshTimelock(ctx, leaf.Id, []*signingJob{job}, []*pb.SigningJob{wireJob}); err != nil {
		return nil, err
	}
	signatures, err := signAndAggregate(ctx, m.federation.Signer, []*signingJob{job})
	if err != nil {
		return nil, err
	}
	nodes, err := finalizeNodeSignatures(ctx, m.federation, pb.SignatureIntentRefresh, []*pb.NodeSignatures{{
		NodeId:            leaf.Id,
		RefundTxSignature: signatures[job.id],
	}})
	if err != nil {
		return nil, err
	}
	refreshed, err := findNode(nodes, leaf.Id)
	if err != nil {
		return nil, err
	}
	previousRefundTx, err := common.TxFromRawTxBytes(leaf.RefundTx)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("failed to parse refund tx: %w", err))
	}
	refreshedRefundTx, err := common.TxFromRawTxBytes(refreshed.RefundTx)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("coordinator returned an invalid refund tx for %s: %w", leaf.Id, err))
	}
	if err := bitcointransaction.ValidateNextRefundSequence(previousRefundTx, refreshedRefundTx); err != nil {
		return nil, sparkerrors.ValidationResponseMismatch(fmt.Errorf("leaf %s: %w", leaf.Id, err))
	}
	return m.replaceLeaf(nodes, leaf.Id)
}

// RefreshTimelockNodes decrements the timelock of the first node, resets every
// following node and the final refund to the initial timelock, and re-signs
// the whole chain. nodes runs from the child of parent down to the leaf.
func (m *TimelockManager) RefreshTimelockNodes(ctx context.Context, nodes []*pb.TreeNode, parent *pb.TreeNode, signingKey keys.Private) ([]*pb.TreeNode, error) {
	if len(nodes) == 0 {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("no nodes to refresh"))
	}
	parentTx, err := common.TxFromRawTxBytes(parent.NodeTx)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("failed to parse parent tx: %w", err))
	}

	jobs := make([]*signingJob, 0, len(nodes)+1)
	wireJobs := make([]*pb.SigningJob, 0, len(nodes)+1)
	newNodeTxs := make([]*wire.MsgTx, len(nodes))
	for i, node := range nodes {
		newTx, err := common.TxFromRawTxBytes(node.NodeTx)
		if err != nil {
			return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("failed to parse node tx of %s: %w", node.Id, err))
		}
		var prevOut *wire.TxOut
		if i == 0 {
			newTx.TxIn[0].Sequence, err = spark.NextSequence(newTx.TxIn[0].Sequence)
			if err != nil {
				newTx.TxIn[0].Sequence = spark.ZeroSequence
			}
			if int(node.Vout) >= len(parentTx.TxOut) {
				return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("node %s spends missing parent output %d", node.Id, node.Vout))
			}
			prevOut = parentTx.TxOut[node.Vout]
		} else {
			newTx.TxIn[0].Sequence = spark.InitialSequence()
			newTx.TxIn[0].PreviousOutPoint.Hash = newNodeTxs[i-1].TxHash()
			prevOut = newNodeTxs[i-1].TxOut[node.Vout]
		}
		job, wireJob, err := newSigningJob(m.federation.Signer, newTx, prevOut, signingKey)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
		wireJobs = append(wireJobs, wireJob)
		newNodeTxs[i] = newTx
	}

	leaf := nodes[len(nodes)-1]
	leafTx := newNodeTxs[len(newNodeTxs)-1]
	refundTx, err := common.TxFromRawTxBytes(leaf.RefundTx)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("failed to parse refund tx: %w", err))
	}
	refundTx.TxIn[0].Sequence = spark.InitialSequence()
	refundTx.TxIn[0].PreviousOutPoint.Hash = leafTx.TxHash()
	refundJob, refundWireJob, err := newSigningJob(m.federation.Signer, refundTx, leafTx.TxOut[0], signingKey)
	if err != nil {
		return nil, err
	}
	jobs = append(jobs, refundJob)
	wireJobs = append(wireJobs, refundWireJob)

	if err := m.refreshTimelock(ctx, leaf.Id, jobs, wireJobs); err != nil {
		return nil, err
	}
	signatures, err := signAndAggregate(ctx, m.federation.Signer, jobs)
	if err != nil {
		return nil, err
	}

	nodeSignatures := make([]*pb.NodeSignatures, 0, len(nodes))
	for i, node := range nodes {
		nodeSignature := &pb.NodeSignatures{
			NodeId:          node.Id,
			NodeTxSignature: signatures[jobs[i].id],
		}
		if i == len(nodes)-1 {
			nodeSignature.RefundTxSignature = signatures[refundJob.id]
		}
		nodeSignatures = append(nodeSignatures, nodeSignature)
	}
	refreshed, err := finalizeNodeSignatures(ctx, m.federation, pb.SignatureIntentRefresh, nodeSignatures)
	if err != nil {
		return nil, err
	}
	if _, err := m.replaceLeaf(refreshed, leaf.Id); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// refreshTimelock sends the jobs to the coordinator and attaches each signing
// result to its job, in order.
func (m *TimelockManager) refreshTimelock(ctx context.Context, leafID string, jobs []*signingJob, wireJobs []*pb.SigningJob) error {
	client, err := m.federation.coordinator()
	if err != nil {
		return err
	}
	resp, err := client.RefreshTimelock(ctx, &pb.RefreshTimelockRequest{
		LeafId:                 leafID,
		OwnerIdentityPublicKey: m.federation.identityPublicKey(),
		SigningJobs:            wireJobs,
	})
	if err != nil {
		return m.federation.coordinatorError("refresh_timelock", err)
	}
	if len(resp.SigningResults) != len(jobs) {
		return sparkerrors.ValidationResponseMismatch(fmt.Errorf("expected %d signing results, got %d", len(jobs), len(resp.SigningResults)))
	}
	for i, result := range resp.SigningResults {
		jobs[i].result = result.SigningResult
		jobs[i].verifyingKey = result.VerifyingKey
	}
	return nil
}

// ExtendTimelock inserts a new node between the leaf's node tx and its refund.
// The new node spends the old node output one interval below the refund and
// the new refund starts again at the initial timelock.
func (m *TimelockManager) ExtendTimelock(ctx context.Context, leaf *pb.TreeNode, signingKey keys.Private) (*pb.TreeNode, error) {
	nodeTx, err := common.TxFromRawTxBytes(leaf.NodeTx)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("failed to parse node tx: %w", err))
	}
	refundTx, err := common.TxFromRawTxBytes(leaf.RefundTx)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("failed to parse refund tx: %w", err))
	}

	newNodeSequence, err := spark.NextSequence(refundTx.TxIn[0].Sequence)
	if err != nil {
		newNodeSequence = spark.ZeroSequence
	}
	newNodeTx := bitcointransaction.CreateNodeTx(newNodeSequence, &wire.OutPoint{Hash: nodeTx.TxHash(), Index: 0}, nodeTx.TxOut[0])
	newRefundTx, err := bitcointransaction.CreateRefundTx(
		spark.InitialSequence(),
		&wire.OutPoint{Hash: newNodeTx.TxHash(), Index: 0},
		refundTx.TxOut[0].Value,
		signingKey.Public(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refund tx: %w", err)
	}

	nodeJob, nodeWireJob, err := newSigningJob(m.federation.Signer, newNodeTx, nodeTx.TxOut[0], signingKey)
	if err != nil {
		return nil, err
	}
	refundJob, refundWireJob, err := newSigningJob(m.federation.Signer, newRefundTx, newNodeTx.TxOut[0], signingKey)
	if err != nil {
		return nil, err
	}

	client, err := m.federation.coordinator()
	if err != nil {
		return nil, err
	}
	resp, err := client.ExtendLeaf(ctx, &pb.ExtendLeafRequest{
		LeafId:                 leaf.Id,
		OwnerIdentityPublicKey: m.federation.identityPublicKey(),
		NodeTxSigningJob:       nodeWireJob,
		RefundTxSigningJob:     refundWireJob,
	})
	if err != nil {
		return nil, m.federation.coordinatorError("extend_leaf", err)
	}
	if resp.NodeTxSigningResult == nil || resp.RefundTxSigningResult == nil {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("coordinator returned no signing results for leaf %s", leaf.Id))
	}
	nodeJob.result, nodeJob.verifyingKey = resp.NodeTxSigningResult.SigningResult, resp.NodeTxSigningResult.VerifyingKey
	refundJob.result, refundJob.verifyingKey = resp.RefundTxSigningResult.SigningResult, resp.RefundTxSigningResult.VerifyingKey

	signatures, err := signAndAggregate(ctx, m.federation.Signer, []*signingJob{nodeJob, refundJob})
	if err != nil {
		return nil, err
	}
	nodes, err := finalizeNodeSignatures(ctx, m.federation, pb.SignatureIntentExtend, []*pb.NodeSignatures{{
		NodeId:            leaf.Id,
		NodeTxSignature:   signatures[nodeJob.id],
		RefundTxSignature: signatures[refundJob.id],
	}})
	if err != nil {
		return nil, err
	}
	return m.replaceLeaf(nodes, leaf.Id)
}

// RefreshLeavesIfNeeded makes every leaf spendable for at least one more
// transfer. A leaf whose node tx can still be decremented is refreshed
// together with its refund; otherwise a new node is inserted. The returned
// slice holds the current version of every leaf, in order.
func (m *TimelockManager) RefreshLeavesIfNeeded(ctx context.Context, leaves []*pb.TreeNode) ([]*pb.TreeNode, error) {
	logger := logging.GetLoggerFromContext(ctx)
	out := make([]*pb.TreeNode, 0, len(leaves))
	for _, leaf := range leaves {
		needed, err := NeedToRefreshTimelock(leaf)
		if err != nil {
			return nil, err
		}
		if !needed {
			out = append(out, leaf)
			continue
		}
		signingKey, err := leafSigningKey(m.store, m.federation.Signer, leaf.Id)
		if err != nil {
			return nil, err
		}
		refreshed, err := m.refreshLeaf(ctx, leaf, signingKey)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh timelock of leaf %s: %w", leaf.Id, err)
		}
		logger.Info("refreshed leaf timelock", zap.String("leaf_id", leaf.Id))
		out = append(out, refreshed)
	}
	return out, nil
}

func (m *TimelockManager) refreshLeaf(ctx context.Context, leaf *pb.TreeNode, signingKey keys.Private) (*pb.TreeNode, error) {
	nodeTx, err := common.TxFromRawTxBytes(leaf.NodeTx)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("failed to parse node tx: %w", err))
	}
	if leaf.ParentNodeId == nil || !spark.CanDecrementSequence(nodeTx.TxIn[0].Sequence) {
		return m.ExtendTimelock(ctx, leaf, signingKey)
	}
	parent, err := m.queryNode(ctx, *leaf.ParentNodeId)
	if err != nil {
		return nil, err
	}
	nodes, err := m.RefreshTimelockNodes(ctx, []*pb.TreeNode{leaf}, parent, signingKey)
	if err != nil {
		return nil, err
	}
	return findNode(nodes, leaf.Id)
}

func (m *TimelockManager) queryNode(ctx context.Context, id string) (*pb.TreeNode, error) {
	nodes, err := queryNodesByID(ctx, m.federation, []string{id})
	if err != nil {
		return nil, err
	}
	return nodes[id], nil
}

// replaceLeaf swaps the refreshed leaf into the store and returns it.
func (m *TimelockManager) replaceLeaf(nodes []*pb.TreeNode, leafID string) (*pb.TreeNode, error) {
	leaf, err := findNode(nodes, leafID)
	if err != nil {
		return nil, err
	}
	if _, ok := m.store.Get(leafID); ok {
		if err := m.store.Replace(leaf); err != nil {
			return nil, err
		}
	}
	return leaf, nil
}

func findNode(nodes []*pb.TreeNode, id string) (*pb.TreeNode, error) {
	for _, node := range nodes {
		if node.Id == id {
			return node, nil
		}
	}
	return nil, sparkerrors.ValidationResponseMismatch(fmt.Errorf("coordinator did not return node %s", id))
}
