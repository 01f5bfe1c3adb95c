package wallet

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	eciesgo "github.com/ecies/go/v2"
	"github.com/google/uuid"

	spark "github.com/lightsparkdev/spark-wallet"
	"github.com/lightsparkdev/spark-wallet/common"
	bitcointransaction "github.com/lightsparkdev/spark-wallet/common/bitcoin_transaction"
	"github.com/lightsparkdev/spark-wallet/common/keys"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

type fakeSwap struct {
	userTransferID    string
	counterTransferID string
	adaptorPublicKey  keys.Public
}

type fakeExit struct {
	leafIDs []string
	address string
}

// fakeSettlement is a settlement service that trades with the wallet through
// a fakeFederation. It creates the leaves it pays out with directly in the
// federation's state.
type fakeSettlement struct {
	fed      *fakeFederation
	identity keys.Private

	swaps    map[string]*fakeSwap
	exits    map[string]*fakeExit
	payments []string

	preimage   []byte
	rejectSwap bool
	// counterTransferID, when set, is reported instead of the real counter transfer.
	counterTransferID string
}

var _ SettlementService = (*fakeSettlement)(nil)

func newFakeSettlement(fed *fakeFederation) *fakeSettlement {
	return &fakeSettlement{
		fed:      fed,
		identity: keys.GeneratePrivateKey(),
		swaps:    make(map[string]*fakeSwap),
		exits:    make(map[string]*fakeExit),
	}
}

func (s *fakeSettlement) IdentityPublicKey() keys.Public {
	return s.identity.Public()
}

// userTransferLocked returns the wallet's transfer to the service once it has
// reached want.
func (s *fakeSettlement) userTransferLocked(transferID string, want pb.TransferStatus) (*fakeTransfer, error) {
	t, ok := s.fed.transfers[transferID]
	if !ok {
		return nil, fmt.Errorf("transfer %s not found", transferID)
	}
	if !bytes.Equal(t.transfer.ReceiverIdentityPublicKey, s.identity.Public().Serialize()) {
		return nil, fmt.Errorf("transfer %s is not to the service", transferID)
	}
	if t.transfer.Status != want {
		return nil, fmt.Errorf("transfer %s is %s, want %s", transferID, t.transfer.Status, want)
	}
	return t, nil
}

func (s *fakeSettlement) RequestLeavesSwap(_ context.Context, request *LeavesSwapRequest) (*LeavesSwapResponse, error) {
	if s.rejectSwap {
		return nil, errors.New("swap rejected")
	}
	f := s.fed
	f.mu.Lock()
	defer f.mu.Unlock()

	userTransfer, err := s.userTransferLocked(request.UserOutboundTransferID, pb.TransferStatusSenderInitiated)
	if err != nil {
		return nil, err
	}
	if userTransfer.transfer.TotalValue != request.TotalAmountSats || len(userTransfer.transfer.Leaves) != len(request.UserLeaves) {
		return nil, fmt.Errorf("swap request does not match transfer %s", request.UserOutboundTransferID)
	}
	for _, userLeaf := range request.UserLeaves {
		transferLeaf := transferLeaf(userTransfer.transfer, userLeaf.LeafID)
		if transferLeaf == nil {
			return nil, fmt.Errorf("leaf %s is not part of transfer %s", userLeaf.LeafID, request.UserOutboundTransferID)
		}
		sighash, err := refundSighash(transferLeaf.Leaf.NodeTx, userLeaf.RawUnsignedRefundTransaction)
		if err != nil {
			return nil, err
		}
		if err := common.ValidateAdaptorSignature(fakeAggregatorKey.Public(), sighash, userLeaf.AdaptorAddedSignature, request.AdaptorPublicKey); err != nil {
			return nil, fmt.Errorf("bad adaptor signature for leaf %s: %w", userLeaf.LeafID, err)
		}
	}

	amounts := append([]uint64(nil), request.TargetAmountSats...)
	var targetTotal uint64
	for _, amount := range amounts {
		targetTotal += amount
	}
	if change := request.TotalAmountSats - targetTotal; change > 0 {
		amounts = append(amounts, change)
	}

	intermediate, err := spark.NextSequence(spark.InitialSequence())
	if err != nil {
		return nil, err
	}
	counter := &pb.Transfer{
		Id:                        uuid.NewString(),
		SenderIdentityPublicKey:   s.identity.Public().Serialize(),
		ReceiverIdentityPublicKey: userTransfer.transfer.SenderIdentityPublicKey,
		Status:                    pb.TransferStatusSenderInitiated,
		ExpiryTime:                time.Now().Add(time.Hour),
		Type:                      pb.TransferTypeCounterSwap,
	}
	receiver, err := keys.ParsePublicKey(counter.ReceiverIdentityPublicKey)
	if err != nil {
		return nil, err
	}
	response := &LeavesSwapResponse{RequestID: uuid.NewString(), CounterTransferID: counter.Id}
	for _, amount := range amounts {
		handover := keys.GeneratePrivateKey()
		n, err := f.createLeafLocked(s.identity.Public(), uuid.NewString(), handover.Public(), amount, spark.InitialSequence())
		if err != nil {
			return nil, err
		}
		nodeTx, err := common.TxFromRawTxBytes(n.node.NodeTx)
		if err != nil {
			return nil, err
		}
		refundTx, err := bitcointransaction.CreateRefundTx(intermediate, &wire.OutPoint{Hash: nodeTx.TxHash(), Index: 0}, int64(amount), handover.Public())
		if err != nil {
			return nil, err
		}
		if n.node.RefundTx, err = common.SerializeTx(refundTx); err != nil {
			return nil, err
		}
		n.node.Status = pb.TreeNodeStatusTransferLocked

		operatorSecret, err := f.recover(n.shares)
		if err != nil {
			return nil, err
		}
		operatorKey, err := keys.PrivateKeyFromBigInt(operatorSecret)
		if err != nil {
			return nil, err
		}
		sighash, err := common.SigHashFromTx(refundTx, 0, nodeTx.TxOut[0])
		if err != nil {
			return nil, err
		}
		adapted, err := adaptorSignature(handover.Add(operatorKey), sighash, request.AdaptorPublicKey)
		if err != nil {
			return nil, err
		}

		cipher, err := encryptFor(receiver, handover.Serialize())
		if err != nil {
			return nil, err
		}
		counter.TotalValue += amount
		counter.Leaves = append(counter.Leaves, &pb.TransferLeaf{
			Leaf:                 cloneNode(n.node),
			SecretCipher:         cipher,
			Signature:            s.identity.SignECDSA(transferLeafPayloadHash(n.node.Id, counter.Id, cipher)),
			IntermediateRefundTx: n.node.RefundTx,
		})
		response.SwapLeaves = append(response.SwapLeaves, SwapLeaf{
			LeafID:                       n.node.Id,
			RawUnsignedRefundTransaction: n.node.RefundTx,
			AdaptorAddedSignature:        adapted,
		})
	}
	f.transfers[counter.Id] = &fakeTransfer{
		transfer:        counter,
		senderTweaked:   make(map[string]bool),
		receiverTweaked: make(map[string]bool),
		finalized:       make(map[string]bool),
	}
	f.transferOrder = append(f.transferOrder, counter.Id)
	if s.counterTransferID != "" {
		response.CounterTransferID = s.counterTransferID
	}
	s.swaps[response.RequestID] = &fakeSwap{
		userTransferID:    request.UserOutboundTransferID,
		counterTransferID: counter.Id,
		adaptorPublicKey:  request.AdaptorPublicKey,
	}
	return response, nil
}

func (s *fakeSettlement) CompleteLeavesSwap(_ context.Context, adaptorSecret keys.Private, userOutboundTransferID string, requestID string) error {
	f := s.fed
	f.mu.Lock()
	defer f.mu.Unlock()

	swap, ok := s.swaps[requestID]
	if !ok || swap.userTransferID != userOutboundTransferID {
		return fmt.Errorf("unknown swap %s", requestID)
	}
	if !adaptorSecret.Public().Equals(swap.adaptorPublicKey) {
		return errors.New("adaptor secret does not match the swap")
	}
	userTransfer, err := s.userTransferLocked(userOutboundTransferID, pb.TransferStatusSenderKeyTweaked)
	if err != nil {
		return err
	}
	f.transfers[swap.counterTransferID].transfer.Status = pb.TransferStatusSenderKeyTweaked
	f.settleTransferLocked(userTransfer)
	delete(s.swaps, requestID)
	return nil
}

func (s *fakeSettlement) RequestCoopExit(_ context.Context, leafIDs []string, withdrawalAddress string) (*CoopExitQuote, error) {
	if len(leafIDs) == 0 {
		return nil, errors.New("no leaves to exit")
	}
	script, err := common.P2TRScriptFromPubKey(keys.GeneratePrivateKey().Public())
	if err != nil {
		return nil, err
	}
	connectorTx := wire.NewMsgTx(3)
	funding := randomOutPoint()
	connectorTx.AddTxIn(wire.NewTxIn(&funding, nil, nil))
	for range leafIDs {
		connectorTx.AddTxOut(wire.NewTxOut(354, script))
	}
	connectorTx.AddTxOut(wire.NewTxOut(10_000, script))

	var exitTxid chainhash.Hash
	if _, err := rand.Read(exitTxid[:]); err != nil {
		return nil, err
	}
	exitID := uuid.NewString()
	s.fed.mu.Lock()
	s.exits[exitID] = &fakeExit{leafIDs: leafIDs, address: withdrawalAddress}
	s.fed.mu.Unlock()
	return &CoopExitQuote{ExitID: exitID, ExitTxid: exitTxid, ConnectorTx: connectorTx}, nil
}

func (s *fakeSettlement) CompleteCoopExit(_ context.Context, userOutboundTransferID string, exitID string) error {
	f := s.fed
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := s.exits[exitID]; !ok {
		return fmt.Errorf("unknown exit %s", exitID)
	}
	t, err := s.userTransferLocked(userOutboundTransferID, pb.TransferStatusSenderKeyTweaked)
	if err != nil {
		return err
	}
	f.settleTransferLocked(t)
	delete(s.exits, exitID)
	return nil
}

func (s *fakeSettlement) PayInvoice(_ context.Context, invoice string, amountSats uint64, userOutboundTransferID string) (*InvoicePayment, error) {
	f := s.fed
	f.mu.Lock()
	defer f.mu.Unlock()

	t, err := s.userTransferLocked(userOutboundTransferID, pb.TransferStatusSenderKeyTweaked)
	if err != nil {
		return nil, err
	}
	if t.transfer.TotalValue < amountSats {
		return nil, fmt.Errorf("transfer %s holds %d sats, invoice needs %d", userOutboundTransferID, t.transfer.TotalValue, amountSats)
	}
	f.settleTransferLocked(t)
	s.payments = append(s.payments, invoice)
	return &InvoicePayment{RequestID: uuid.NewString(), Preimage: s.preimage}, nil
}

func refundSighash(rawNodeTx, rawRefundTx []byte) ([]byte, error) {
	nodeTx, err := common.TxFromRawTxBytes(rawNodeTx)
	if err != nil {
		return nil, err
	}
	refundTx, err := common.TxFromRawTxBytes(rawRefundTx)
	if err != nil {
		return nil, err
	}
	return common.SigHashFromTx(refundTx, 0, nodeTx.TxOut[0])
}

func encryptFor(receiver keys.Public, plaintext []byte) ([]byte, error) {
	pubKey, err := eciesgo.NewPublicKeyFromBytes(receiver.Serialize())
	if err != nil {
		return nil, err
	}
	return eciesgo.Encrypt(pubKey, plaintext)
}

// adaptorSignature signs hash with the key-path taproot key of internalKey
// and subtracts the adaptor secret behind adaptorPublicKey from the result.
// Adding the secret back gives a valid BIP-340 signature.
func adaptorSignature(internalKey keys.Private, hash []byte, adaptorPublicKey keys.Public) ([]byte, error) {
	tweaked := txscript.TweakTaprootPrivKey(*internalKey.ToBTCEC(), []byte{})
	d := tweaked.Key
	if tweaked.PubKey().SerializeCompressed()[0] == secp256k1OddPrefix {
		d.Negate()
	}
	pubKeyBytes := schnorr.SerializePubKey(tweaked.PubKey())

	var adaptorPoint btcec.JacobianPoint
	adaptorPublicKey.ToBTCEC().AsJacobian(&adaptorPoint)
	for {
		nonce, err := btcec.NewPrivateKey()
		if err != nil {
			return nil, err
		}
		k := nonce.Key
		var kG, r btcec.JacobianPoint
		btcec.ScalarBaseMultNonConst(&k, &kG)
		btcec.AddNonConst(&kG, &adaptorPoint, &r)
		r.ToAffine()
		if r.Y.IsOdd() {
			continue
		}
		var rx [32]byte
		r.X.PutBytes(&rx)
		commitment := chainhash.TaggedHash(chainhash.TagBIP0340Challenge, rx[:], pubKeyBytes, hash)
		var e btcec.ModNScalar
		e.SetBytes((*[32]byte)(commitment))

		s := new(btcec.ModNScalar).Mul2(&e, &d).Add(&k)
		out := make([]byte, schnorr.SignatureSize)
		copy(out[:32], rx[:])
		s.PutBytesUnchecked(out[32:])
		return out, nil
	}
}

const secp256k1OddPrefix = 0x03
