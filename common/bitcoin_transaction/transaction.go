// Package bitcointransaction builds the off-chain transactions that back a leaf:
// the root and split node transactions, refund transactions and connector refunds.
package bitcointransaction

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightsparkdev/spark-wallet/common"
	"github.com/lightsparkdev/spark-wallet/common/keys"
)

const defaultVersion = 3

// CreateRootTx creates the tree root transaction that spends a deposit output.
func CreateRootTx(depositOutPoint *wire.OutPoint, depositTxOut *wire.TxOut) *wire.MsgTx {
	rootTx := wire.NewMsgTx(defaultVersion)
	rootTx.AddTxIn(wire.NewTxIn(depositOutPoint, nil, nil))
	rootTx.AddTxOut(wire.NewTxOut(depositTxOut.Value, depositTxOut.PkScript))
	rootTx.AddTxOut(common.EphemeralAnchorOutput())
	return rootTx
}

// CreateNodeTx creates a leaf node transaction.
// This transaction provides an intermediate transaction
// to allow the timelock of the final refund transaction
// to be extended. E.g. when the refund tx timelock reaches
// 0, the node tx can be re-signed with a decremented
// timelock, and the refund tx can be reset to the initial timelock.
func CreateNodeTx(sequence uint32, parentOutPoint *wire.OutPoint, txOut *wire.TxOut) *wire.MsgTx {
	nodeTx := wire.NewMsgTx(defaultVersion)
	nodeTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *parentOutPoint,
		Sequence:         sequence,
	})
	nodeTx.AddTxOut(wire.NewTxOut(txOut.Value, txOut.PkScript))
	nodeTx.AddTxOut(common.EphemeralAnchorOutput())
	return nodeTx
}

// SplitOutput is one child of a split transaction.
type SplitOutput struct {
	VerifyingKey keys.Public
	Value        int64
}

// CreateSplitTx splits the parent output into one P2TR output per child. The child
// values must add up to the parent value.
func CreateSplitTx(parentOutPoint *wire.OutPoint, parentTxOut *wire.TxOut, children []SplitOutput) (*wire.MsgTx, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("split needs at least one child")
	}
	splitTx := wire.NewMsgTx(defaultVersion)
	splitTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *parentOutPoint,
		Sequence:         0,
	})
	var total int64
	for i, child := range children {
		if child.Value <= 0 {
			return nil, fmt.Errorf("child %d has non-positive value %d", i, child.Value)
		}
		script, err := common.P2TRScriptFromPubKey(child.VerifyingKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create script for child %d: %w", i, err)
		}
		splitTx.AddTxOut(wire.NewTxOut(child.Value, script))
		total += child.Value
	}
	if total != parentTxOut.Value {
		return nil, fmt.Errorf("children total %d does not match parent value %d", total, parentTxOut.Value)
	}
	splitTx.AddTxOut(common.EphemeralAnchorOutput())
	return splitTx, nil
}

// CreateRefundTx creates the CPFP refund transaction: one input spending the node
// output at the given sequence, the full amount to the receiver and an ephemeral anchor.
func CreateRefundTx(sequence uint32, nodeOutPoint *wire.OutPoint, amountSats int64, receivingPubkey keys.Public) (*wire.MsgTx, error) {
	if receivingPubkey.IsZero() {
		return nil, fmt.Errorf("invalid public key is zero")
	}
	refundTx := wire.NewMsgTx(defaultVersion)
	refundTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *nodeOutPoint,
		Sequence:         sequence,
	})

	refundPkScript, err := common.P2TRScriptFromPubKey(receivingPubkey)
	if err != nil {
		return nil, fmt.Errorf("failed to create refund pkscript: %w", err)
	}
	refundTx.AddTxOut(wire.NewTxOut(amountSats, refundPkScript))
	refundTx.AddTxOut(common.EphemeralAnchorOutput())
	return refundTx, nil
}

// CreateRefundTxForNode builds the refund transaction spending output 0 of the raw node tx.
func CreateRefundTxForNode(sequence uint32, rawNodeTx []byte, receivingPubkey keys.Public) (*wire.MsgTx, *wire.MsgTx, error) {
	nodeTx, err := common.TxFromRawTxBytes(rawNodeTx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse node tx: %w", err)
	}
	if len(nodeTx.TxOut) == 0 {
		return nil, nil, fmt.Errorf("node tx has no outputs")
	}
	refundTx, err := CreateRefundTx(sequence, &wire.OutPoint{Hash: nodeTx.TxHash(), Index: 0}, nodeTx.TxOut[0].Value, receivingPubkey)
	if err != nil {
		return nil, nil, err
	}
	return refundTx, nodeTx, nil
}

// CreateConnectorRefundTx creates the refund used in a cooperative exit. Its second
// input spends a connector output of the exit transaction, so the refund is only
// valid once the exit has confirmed.
func CreateConnectorRefundTx(
	sequence uint32,
	nodeOutPoint *wire.OutPoint,
	connectorOutput *wire.OutPoint,
	amountSats int64,
	receiverPubKey keys.Public,
) (*wire.MsgTx, error) {
	refundTx := wire.NewMsgTx(defaultVersion)
	refundTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *nodeOutPoint,
		Sequence:         sequence,
	})
	refundTx.AddTxIn(wire.NewTxIn(connectorOutput, nil, nil))
	receiverScript, err := common.P2TRScriptFromPubKey(receiverPubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create receiver script: %w", err)
	}
	refundTx.AddTxOut(wire.NewTxOut(amountSats, receiverScript))
	return refundTx, nil
}
