package wallet

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"

	spark "github.com/lightsparkdev/spark-wallet"
	"github.com/lightsparkdev/spark-wallet/common"
	bitcointransaction "github.com/lightsparkdev/spark-wallet/common/bitcoin_transaction"
	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	"github.com/lightsparkdev/spark-wallet/common/frost"
	"github.com/lightsparkdev/spark-wallet/common/keys"
	"github.com/lightsparkdev/spark-wallet/leafstore"
	pbfrost "github.com/lightsparkdev/spark-wallet/proto/frost"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
	"github.com/lightsparkdev/spark-wallet/signer"
)

// LeafKeyTweak moves a leaf from SigningPrivKey to NewSigningPrivKey.
type LeafKeyTweak struct {
	Leaf              *pb.TreeNode
	SigningPrivKey    keys.Private
	NewSigningPrivKey keys.Private
}

// signingJob is one transaction the wallet co-signs with the operators. The
// operators' half arrives in result once the job has been submitted.
type signingJob struct {
	id               string
	message          []byte
	signingKey       keys.Private
	nonce            frost.SigningNonce
	result           *pb.SigningResult
	verifyingKey     []byte
	adaptorPublicKey []byte
}

// newSigningJob prepares the wallet's side of signing input 0 of tx, which spends prevOut.
func newSigningJob(s signer.Signer, tx *wire.MsgTx, prevOut *wire.TxOut, signingKey keys.Private) (*signingJob, *pb.SigningJob, error) {
	sighash, err := common.SigHashFromTx(tx, 0, prevOut)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute sighash: %w", err)
	}
	return newSigningJobForSighash(s, tx, sighash, signingKey)
}

// newSigningJobForSighash is newSigningJob for a caller that computed the sighash itself.
func newSigningJobForSighash(s signer.Signer, tx *wire.MsgTx, sighash []byte, signingKey keys.Private) (*signingJob, *pb.SigningJob, error) {
	rawTx, err := common.SerializeTx(tx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serialize tx: %w", err)
	}
	job := &signingJob{
		id:         uuid.NewString(),
		message:    sighash,
		signingKey: signingKey,
		nonce:      s.GenerateSigningNonce(),
	}
	commitment := job.nonce.SigningCommitment()
	return job, &pb.SigningJob{
		SigningPublicKey:       signingKey.Public().Serialize(),
		RawTx:                  rawTx,
		SigningNonceCommitment: commitment.MarshalProto(),
	}, nil
}

// signAndAggregate produces the user's shares for every job in one FROST call
// and aggregates each with the operators' shares. Signatures are keyed by job id.
func signAndAggregate(ctx context.Context, s signer.Signer, jobs []*signingJob) (map[string][]byte, error) {
	frostJobs := make([]*pbfrost.FrostSigningJob, 0, len(jobs))
	for _, job := range jobs {
		if job.result == nil {
			return nil, sparkerrors.ValidationMissingField(fmt.Errorf("no operator signing result for job %s", job.id))
		}
		commitment := job.nonce.SigningCommitment()
		frostJobs = append(frostJobs, &pbfrost.FrostSigningJob{
			JobId:            job.id,
			Message:          job.message,
			KeyPackage:       signer.UserKeyPackage(job.signingKey),
			VerifyingKey:     job.verifyingKey,
			Nonce:            job.nonce.MarshalProto(),
			Commitments:      job.result.GetSigningNonceCommitments(),
			UserCommitments:  commitment.MarshalProto(),
			AdaptorPublicKey: job.adaptorPublicKey,
		})
	}
	shares, err := s.SignFrost(ctx, frostJobs)
	if err != nil {
		return nil, err
	}

	signatures := make(map[string][]byte, len(jobs))
	for _, job := range jobs {
		commitment := job.nonce.SigningCommitment()
		signature, err := s.AggregateFrost(ctx, &pbfrost.AggregateFrostRequest{
			Message:            job.message,
			SignatureShares:    job.result.GetSignatureShares(),
			PublicShares:       job.result.GetPublicKeys(),
			VerifyingKey:       job.verifyingKey,
			Commitments:        job.result.GetSigningNonceCommitments(),
			UserCommitments:    commitment.MarshalProto(),
			UserPublicKey:      job.signingKey.Public().Serialize(),
			UserSignatureShare: shares[job.id],
			AdaptorPublicKey:   job.adaptorPublicKey,
		})
		if err != nil {
			return nil, err
		}
		signatures[job.id] = signature
	}
	return signatures, nil
}

// refundSigningData is a leaf's new refund transaction waiting for signatures.
type refundSigningData struct {
	leaf     *pb.TreeNode
	nodeTx   *wire.MsgTx
	refundTx *wire.MsgTx
	job      *signingJob
}

// refundKeys picks, for one leaf, the key that co-signs the new refund and the key it pays to.
type refundKeys func(leaf LeafKeyTweak) (signingKey keys.Private, receivingKey keys.Public)

// prepareRefundSigningJobs builds, for every leaf, a refund one timelock
// interval below the current one spending node output 0.
func prepareRefundSigningJobs(s signer.Signer, leaves []LeafKeyTweak, pick refundKeys) (map[string]*refundSigningData, []*pb.LeafRefundTxSigningJob, error) {
	data := make(map[string]*refundSigningData, len(leaves))
	jobs := make([]*pb.LeafRefundTxSigningJob, 0, len(leaves))
	for _, leaf := range leaves {
		if _, ok := data[leaf.Leaf.Id]; ok {
			return nil, nil, sparkerrors.ValidationDuplicateField(fmt.Errorf("leaf %s appears twice", leaf.Leaf.Id))
		}
		signingKey, receivingKey := pick(leaf)
		currentSequence, err := refundSequence(leaf.Leaf)
		if err != nil {
			return nil, nil, err
		}
		nextSequence, err := spark.NextSequence(currentSequence)
		if err != nil {
			return nil, nil, sparkerrors.ValidationInvalidState(fmt.Errorf("leaf %s: %w", leaf.Leaf.Id, err))
		}
		refundTx, nodeTx, err := bitcointransaction.CreateRefundTxForNode(nextSequence, leaf.Leaf.NodeTx, receivingKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create refund tx for leaf %s: %w", leaf.Leaf.Id, err)
		}
		job, wireJob, err := newSigningJob(s, refundTx, nodeTx.TxOut[0], signingKey)
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

// signRefunds completes every refund with the operators' signing results, in
// the order the operators returned them.
func signRefunds(
	ctx context.Context,
	s signer.Signer,
	data map[string]*refundSigningData,
	results []*pb.LeafRefundTxSigningResult,
	adaptorPublicKey keys.Public,
) ([]*pb.NodeSignatures, error) {
	if len(results) != len(data) {
		return nil, sparkerrors.ValidationResponseMismatch(fmt.Errorf("expected %d refund signing results, got %d", len(data), len(results)))
	}
	var adaptorPublicKeyBytes []byte
	if !adaptorPublicKey.IsZero() {
		adaptorPublicKeyBytes = adaptorPublicKey.Serialize()
	}

	jobs := make([]*signingJob, 0, len(results))
	for _, result := range results {
		leafData, ok := data[result.LeafId]
		if !ok {
			return nil, sparkerrors.ValidationResponseMismatch(fmt.Errorf("signing result for unknown leaf %s", result.LeafId))
		}
		leafData.job.result = result.RefundTxSigningResult
		leafData.job.verifyingKey = result.VerifyingKey
		leafData.job.adaptorPublicKey = adaptorPublicKeyBytes
		jobs = append(jobs, leafData.job)
	}

	signatures, err := signAndAggregate(ctx, s, jobs)
	if err != nil {
		return nil, err
	}
	nodeSignatures := make([]*pb.NodeSignatures, 0, len(results))
	for _, result := range results {
		nodeSignatures = append(nodeSignatures, &pb.NodeSignatures{
			NodeId:            result.LeafId,
			RefundTxSignature: signatures[data[result.LeafId].job.id],
		})
	}
	return nodeSignatures, nil
}

// refundSequence is the sequence of the leaf's current refund input.
func refundSequence(leaf *pb.TreeNode) (uint32, error) {
	sequence, err := bitcointransaction.GetAndValidateUserSequence(leaf.RefundTx)
	if err != nil {
		return 0, sparkerrors.ValidationMalformedField(fmt.Errorf("leaf %s has an invalid refund tx: %w", leaf.Id, err))
	}
	return sequence, nil
}

// leafSigningKey prefers a key recorded in the store over the one derived from the leaf id.
func leafSigningKey(store *leafstore.Store, s signer.Signer, leafID string) (keys.Private, error) {
	if key, ok := store.SigningKey(leafID); ok {
		return key, nil
	}
	return s.LeafSigningKey(leafID)
}

// finalizeNodeSignatures hands aggregated signatures to the coordinator and
// returns the resulting nodes.
func finalizeNodeSignatures(ctx context.Context, f *Federation, intent pb.SignatureIntent, signatures []*pb.NodeSignatures) ([]*pb.TreeNode, error) {
	client, err := f.coordinator()
	if err != nil {
		return nil, err
	}
	resp, err := client.FinalizeNodeSignatures(ctx, &pb.FinalizeNodeSignaturesRequest{
		Intent:         intent,
		NodeSignatures: signatures,
	})
	if err != nil {
		return nil, f.coordinatorError("finalize_node_signatures", err)
	}
	return resp.Nodes, nil
}
