package wallet

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/google/uuid"
	"go.uber.org/zap"

	spark "github.com/lightsparkdev/spark-wallet"
	"github.com/lightsparkdev/spark-wallet/common"
	bitcointransaction "github.com/lightsparkdev/spark-wallet/common/bitcoin_transaction"
	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	"github.com/lightsparkdev/spark-wallet/common/keys"
	"github.com/lightsparkdev/spark-wallet/common/logging"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

const depositAddressPageSize = 100

// generateDepositAddress asks the coordinator for a P2TR address locked to
// signingKey plus the operators' key, and checks the operators vouched for it.
func (w *Wallet) generateDepositAddress(ctx context.Context, signingKey keys.Public, leafID *string, isStatic bool) (*pb.Address, error) {
	client, err := w.federation.coordinator()
	if err != nil {
		return nil, err
	}
	resp, err := client.GenerateDepositAddress(ctx, &pb.GenerateDepositAddressRequest{
		SigningPublicKey:  signingKey.Serialize(),
		IdentityPublicKey: w.federation.identityPublicKey(),
		Network:           w.federation.protoNetwork(),
		LeafId:            leafID,
		IsStatic:          &isStatic,
	})
	if err != nil {
		return nil, w.federation.coordinatorError("generate_deposit_address", err)
	}
	if resp.DepositAddress == nil {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("coordinator returned no deposit address"))
	}
	if err := w.validateDepositAddress(resp.DepositAddress); err != nil {
		return nil, err
	}
	return resp.DepositAddress, nil
}

// validateDepositAddress checks that the address pays to its verifying key and
// that every operator other than the coordinator signed sha256(address).
func (w *Wallet) validateDepositAddress(address *pb.Address) error {
	verifyingKey, err := keys.ParsePublicKey(address.VerifyingKey)
	if err != nil {
		return sparkerrors.ValidationMalformedField(fmt.Errorf("invalid deposit address verifying key: %w", err))
	}
	expected, err := common.P2TRAddressFromPublicKey(verifyingKey, w.federation.Network)
	if err != nil {
		return err
	}
	if expected != address.Address {
		return sparkerrors.ValidationResponseMismatch(fmt.Errorf("deposit address %s does not pay to its verifying key", address.Address))
	}
	if address.DepositAddressProof == nil {
		return sparkerrors.ValidationMissingField(fmt.Errorf("deposit address %s has no proof", address.Address))
	}

	addressHash := sha256.Sum256([]byte(address.Address))
	coordinator := w.federation.Registry.Coordinator()
	for _, operator := range w.federation.Registry.Operators() {
		if operator.Identifier == coordinator.Identifier {
			continue
		}
		raw, ok := address.DepositAddressProof.AddressSignatures[operator.Identifier]
		if !ok {
			return sparkerrors.ValidationMissingField(fmt.Errorf("no address signature from operator %s", operator.Identifier))
		}
		signature, err := ecdsa.ParseDERSignature(raw)
		if err != nil {
			return sparkerrors.AuthenticationBadSignature(fmt.Errorf("operator %s: %w", operator.Identifier, err))
		}
		if !operator.IdentityPublicKey.Verify(signature, addressHash[:]) {
			return sparkerrors.AuthenticationBadSignature(fmt.Errorf("address signature of operator %s does not verify", operator.Identifier))
		}
	}
	return nil
}

// queryUnusedDepositAddresses pages through every deposit address of the
// wallet that has not been claimed yet.
func (w *Wallet) queryUnusedDepositAddresses(ctx context.Context) ([]*pb.DepositAddressQueryResult, error) {
	client, err := w.federation.coordinator()
	if err != nil {
		return nil, err
	}
	var addresses []*pb.DepositAddressQueryResult
	var offset int64
	for {
		resp, err := client.QueryUnusedDepositAddresses(ctx, &pb.QueryUnusedDepositAddressesRequest{
			IdentityPublicKey: w.federation.identityPublicKey(),
			Network:           w.federation.protoNetwork(),
			Limit:             depositAddressPageSize,
			Offset:            offset,
		})
		if err != nil {
			return nil, w.federation.coordinatorError("query_unused_deposit_addresses", err)
		}
		addresses = append(addresses, resp.DepositAddresses...)
		if resp.Offset < 0 || len(resp.DepositAddresses) == 0 {
			return addresses, nil
		}
		offset = resp.Offset
	}
}

// claimDeposit turns output vout of a confirmed deposit transaction into a
// tree root owned by the wallet. Claims of the same transaction are
// serialized and run under the store guard; a deposit that is already a leaf
// is returned as is.
func (w *Wallet) claimDeposit(ctx context.Context, depositTx *wire.MsgTx, vout uint32) (*pb.TreeNode, error) {
	txid := depositTx.TxHash()
	release, err := w.depositLocks.Acquire(ctx, txid.String())
	if err != nil {
		return nil, err
	}
	defer release()
	w.store.Lock()
	defer w.store.Unlock()
	ctx, logger := logging.WithAttrs(ctx, zap.Stringer("deposit_txid", txid), zap.Uint32("vout", vout))

	if int(vout) >= len(depositTx.TxOut) {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("deposit tx %s has no output %d", txid, vout))
	}
	depositOutPoint := wire.OutPoint{Hash: txid, Index: vout}
	if leaf := w.leafSpending(depositOutPoint); leaf != nil {
		logger.Info("deposit already claimed", zap.String("leaf_id", leaf.Id))
		return leaf, nil
	}

	depositOut := depositTx.TxOut[vout]
	address, err := common.P2TRAddressFromPkScript(depositOut.PkScript, w.federation.Network)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("deposit output is not a taproot output: %w", err))
	}
	unused, err := w.queryUnusedDepositAddresses(ctx)
	if err != nil {
		return nil, err
	}
	var match *pb.DepositAddressQueryResult
	for _, candidate := range unused {
		if candidate.DepositAddress == *address {
			match = candidate
			break
		}
	}
	if match == nil {
		return nil, sparkerrors.ValidationInvalidState(fmt.Errorf("%s is not an unused deposit address of this wallet", *address))
	}

	signingKey, err := w.depositSigningKey(match)
	if err != nil {
		return nil, err
	}
	verifyingKey, err := keys.ParsePublicKey(match.VerifyingPublicKey)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("invalid deposit verifying key: %w", err))
	}

	rootTx := bitcointransaction.CreateRootTx(&depositOutPoint, depositOut)
	rootJob, rootWireJob, err := newSigningJob(w.federation.Signer, rootTx, depositOut, signingKey)
	if err != nil {
		return nil, err
	}
	refundSequence, err := spark.NextSequence(spark.InitialSequence())
	if err != nil {
		return nil, err
	}
	refundTx, err := bitcointransaction.CreateRefundTx(refundSequence, &wire.OutPoint{Hash: rootTx.TxHash(), Index: 0}, rootTx.TxOut[0].Value, signingKey.Public())
	if err != nil {
		return nil, fmt.Errorf("failed to create deposit refund tx: %w", err)
	}
	refundJob, refundWireJob, err := newSigningJob(w.federation.Signer, refundTx, rootTx.TxOut[0], signingKey)
	if err != nil {
		return nil, err
	}

	var rawDepositTx bytes.Buffer
	if err := depositTx.Serialize(&rawDepositTx); err != nil {
		return nil, fmt.Errorf("failed to serialize deposit tx: %w", err)
	}
	client, err := w.federation.coordinator()
	if err != nil {
		return nil, err
	}
	resp, err := client.StartTreeCreation(ctx, &pb.StartTreeCreationRequest{
		IdentityPublicKey: w.federation.identityPublicKey(),
		OnChainUtxo: &pb.UTXO{
			RawTx:   rawDepositTx.Bytes(),
			Vout:    vout,
			Network: w.federation.protoNetwork(),
			Txid:    txid[:],
		},
		RootTxSigningJob:   rootWireJob,
		RefundTxSigningJob: refundWireJob,
	})
	if err != nil {
		return nil, w.federation.coordinatorError("start_tree_creation", err)
	}
	shares := resp.RootNodeSignatureShares
	if shares == nil {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("coordinator returned no root signature shares"))
	}
	if !bytes.Equal(shares.VerifyingKey, verifyingKey.Serialize()) {
		return nil, sparkerrors.ValidationResponseMismatch(fmt.Errorf("root verifying key does not match deposit address"))
	}

	rootJob.result, rootJob.verifyingKey = shares.NodeTxSigningResult, shares.VerifyingKey
	refundJob.result, refundJob.verifyingKey = shares.RefundTxSigningResult, shares.VerifyingKey
	signatures, err := signAndAggregate(ctx, w.federation.Signer, []*signingJob{rootJob, refundJob})
	if err != nil {
		return nil, err
	}
	nodes, err := finalizeNodeSignatures(ctx, w.federation, pb.SignatureIntentCreation, []*pb.NodeSignatures{{
		NodeId:            shares.NodeId,
		NodeTxSignature:   signatures[rootJob.id],
		RefundTxSignature: signatures[refundJob.id],
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to finalize deposit tree: %w", err)
	}
	root, err := findNode(nodes, shares.NodeId)
	if err != nil {
		return nil, err
	}
	w.store.SetSigningKey(root.Id, signingKey)
	w.store.Add(root)
	logger.Info("claimed deposit", zap.String("tree_id", resp.TreeId), zap.String("leaf_id", root.Id), zap.Uint64("value", root.Value))
	return root, nil
}

// depositSigningKey is the key an unused address was generated for: the
// leaf key when the address reserved a leaf id, the deposit key otherwise.
func (w *Wallet) depositSigningKey(address *pb.DepositAddressQueryResult) (keys.Private, error) {
	var key keys.Private
	var err error
	if address.LeafId != nil {
		key, err = w.federation.Signer.LeafSigningKey(*address.LeafId)
	} else {
		key, err = w.federation.Signer.DepositSigningKey()
	}
	if err != nil {
		return keys.Private{}, err
	}
	if !bytes.Equal(key.Public().Serialize(), address.UserSigningPublicKey) {
		return keys.Private{}, sparkerrors.ValidationKeyshareMismatch(fmt.Errorf("deposit address %s was not generated for this wallet's keys", address.DepositAddress))
	}
	return key, nil
}

// leafSpending returns the owned leaf whose node tx spends outPoint.
func (w *Wallet) leafSpending(outPoint wire.OutPoint) *pb.TreeNode {
	for _, leaf := range w.store.Leaves() {
		nodeTx, err := common.TxFromRawTxBytes(leaf.NodeTx)
		if err != nil || len(nodeTx.TxIn) == 0 {
			continue
		}
		if nodeTx.TxIn[0].PreviousOutPoint == outPoint {
			return leaf
		}
	}
	return nil
}

// splitLeaf replaces leaf with children of the given values. Each child gets
// a reserved leaf id and a deposit address for its key, then the split tx and
// every child's node and refund txs are signed in one CreateTree call.
func (w *Wallet) splitLeaf(ctx context.Context, leaf *pb.TreeNode, values []uint64) ([]*pb.TreeNode, error) {
	if len(values) < 2 {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("a split needs at least two children"))
	}
	var total uint64
	for _, value := range values {
		if value == 0 {
			return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("child values must be positive"))
		}
		total += value
	}
	if total != leaf.Value {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("children total %d does not match leaf value %d", total, leaf.Value))
	}
	parentKey, err := leafSigningKey(w.store, w.federation.Signer, leaf.Id)
	if err != nil {
		return nil, err
	}
	parentTx, err := common.TxFromRawTxBytes(leaf.NodeTx)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("leaf %s has an invalid node tx: %w", leaf.Id, err))
	}

	type child struct {
		key          keys.Private
		verifyingKey keys.Public
		nodeJob      *signingJob
		refundJob    *signingJob
	}
	children := make([]*child, len(values))
	outputs := make([]bitcointransaction.SplitOutput, len(values))
	for i, value := range values {
		leafID := uuid.NewString()
		key, err := w.federation.Signer.LeafSigningKey(leafID)
		if err != nil {
			return nil, err
		}
		address, err := w.generateDepositAddress(ctx, key.Public(), &leafID, false)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve child %d: %w", i, err)
		}
		verifyingKey, err := keys.ParsePublicKey(address.VerifyingKey)
		if err != nil {
			return nil, sparkerrors.ValidationMalformedField(err)
		}
		children[i] = &child{key: key, verifyingKey: verifyingKey}
		outputs[i] = bitcointransaction.SplitOutput{VerifyingKey: verifyingKey, Value: int64(value)}
	}

	parentOutPoint := wire.OutPoint{Hash: parentTx.TxHash(), Index: 0}
	splitTx, err := bitcointransaction.CreateSplitTx(&parentOutPoint, parentTx.TxOut[0], outputs)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(err)
	}
	splitJob, splitWireJob, err := newSigningJob(w.federation.Signer, splitTx, parentTx.TxOut[0], parentKey)
	if err != nil {
		return nil, err
	}
	splitJob.verifyingKey = leaf.VerifyingPublicKey

	refundSequence, err := spark.NextSequence(spark.InitialSequence())
	if err != nil {
		return nil, err
	}
	creation := &pb.CreationNode{NodeTxSigningJob: splitWireJob}
	for i, c := range children {
		splitOut := wire.OutPoint{Hash: splitTx.TxHash(), Index: uint32(i)}
		nodeTx := bitcointransaction.CreateNodeTx(spark.InitialSequence(), &splitOut, splitTx.TxOut[i])
		nodeJob, nodeWireJob, err := newSigningJob(w.federation.Signer, nodeTx, splitTx.TxOut[i], c.key)
		if err != nil {
			return nil, err
		}
		refundTx, err := bitcointransaction.CreateRefundTx(refundSequence, &wire.OutPoint{Hash: nodeTx.TxHash(), Index: 0}, nodeTx.TxOut[0].Value, c.key.Public())
		if err != nil {
			return nil, err
		}
		refundJob, refundWireJob, err := newSigningJob(w.federation.Signer, refundTx, nodeTx.TxOut[0], c.key)
		if err != nil {
			return nil, err
		}
		nodeJob.verifyingKey = c.verifyingKey.Serialize()
		refundJob.verifyingKey = c.verifyingKey.Serialize()
		c.nodeJob, c.refundJob = nodeJob, refundJob
		creation.Children = append(creation.Children, &pb.CreationNode{
			NodeTxSigningJob:   nodeWireJob,
			RefundTxSigningJob: refundWireJob,
		})
	}

	client, err := w.federation.coordinator()
	if err != nil {
		return nil, err
	}
	resp, err := client.CreateTree(ctx, &pb.CreateTreeRequest{
		ParentNodeOutput:      &pb.NodeOutput{NodeId: leaf.Id, Vout: 0},
		Node:                  creation,
		UserIdentityPublicKey: w.federation.identityPublicKey(),
	})
	if err != nil {
		return nil, w.federation.coordinatorError("create_tree", err)
	}
	if resp.Node == nil || len(resp.Node.Children) != len(children) {
		return nil, sparkerrors.ValidationResponseMismatch(fmt.Errorf("coordinator returned a different tree shape"))
	}

	splitJob.result = resp.Node.NodeTxSigningResult
	jobs := []*signingJob{splitJob}
	for i, c := range children {
		c.nodeJob.result = resp.Node.Children[i].NodeTxSigningResult
		c.refundJob.result = resp.Node.Children[i].RefundTxSigningResult
		jobs = append(jobs, c.nodeJob, c.refundJob)
	}
	signatures, err := signAndAggregate(ctx, w.federation.Signer, jobs)
	if err != nil {
		return nil, err
	}
	nodeSignatures := []*pb.NodeSignatures{{NodeId: resp.Node.NodeId, NodeTxSignature: signatures[splitJob.id]}}
	for i, c := range children {
		nodeSignatures = append(nodeSignatures, &pb.NodeSignatures{
			NodeId:            resp.Node.Children[i].NodeId,
			NodeTxSignature:   signatures[c.nodeJob.id],
			RefundTxSignature: signatures[c.refundJob.id],
		})
	}
	nodes, err := finalizeNodeSignatures(ctx, w.federation, pb.SignatureIntentCreation, nodeSignatures)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize split of leaf %s: %w", leaf.Id, err)
	}

	leaves := make([]*pb.TreeNode, 0, len(children))
	for i, c := range children {
		node, err := findNode(nodes, resp.Node.Children[i].NodeId)
		if err != nil {
			return nil, err
		}
		w.store.SetSigningKey(node.Id, c.key)
		leaves = append(leaves, node)
	}
	w.store.Remove(leaf.Id)
	w.store.Add(leaves...)
	return leaves, nil
}
