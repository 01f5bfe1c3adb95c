package spark

import "time"

type TransferStatus int32

const (
	TransferStatusSenderInitiated       TransferStatus = 0
	TransferStatusSenderKeyTweakPending TransferStatus = 1
	TransferStatusSenderKeyTweaked      TransferStatus = 2
	TransferStatusReceiverKeyTweaked    TransferStatus = 3
	TransferStatusReceiverRefundSigned  TransferStatus = 4
	TransferStatusCompleted             TransferStatus = 5
	TransferStatusExpired               TransferStatus = 6
	TransferStatusReturned              TransferStatus = 7
)

var transferStatusNames = map[TransferStatus]string{
	TransferStatusSenderInitiated:       "TRANSFER_STATUS_SENDER_INITIATED",
	TransferStatusSenderKeyTweakPending: "TRANSFER_STATUS_SENDER_KEY_TWEAK_PENDING",
	TransferStatusSenderKeyTweaked:      "TRANSFER_STATUS_SENDER_KEY_TWEAKED",
	TransferStatusReceiverKeyTweaked:    "TRANSFER_STATUS_RECEIVER_KEY_TWEAKED",
	TransferStatusReceiverRefundSigned:  "TRANSFER_STATUS_RECEIVER_REFUND_SIGNED",
	TransferStatusCompleted:             "TRANSFER_STATUS_COMPLETED",
	TransferStatusExpired:               "TRANSFER_STATUS_EXPIRED",
	TransferStatusReturned:              "TRANSFER_STATUS_RETURNED",
}

func (s TransferStatus) String() string {
	return enumString(transferStatusNames, s)
}

type TransferType int32

const (
	TransferTypePreimageSwap    TransferType = 0
	TransferTypeCooperativeExit TransferType = 1
	TransferTypeTransfer        TransferType = 2
	TransferTypeUtxoSwap        TransferType = 3
	TransferTypeSwap            TransferType = 30
	TransferTypeCounterSwap     TransferType = 40
)

var transferTypeNames = map[TransferType]string{
	TransferTypePreimageSwap:    "PREIMAGE_SWAP",
	TransferTypeCooperativeExit: "COOPERATIVE_EXIT",
	TransferTypeTransfer:        "TRANSFER",
	TransferTypeUtxoSwap:        "UTXO_SWAP",
	TransferTypeSwap:            "SWAP",
	TransferTypeCounterSwap:     "COUNTER_SWAP",
}

func (t TransferType) String() string {
	return enumString(transferTypeNames, t)
}

type Transfer struct {
	Id                        string          `protobuf:"bytes,1,opt,name=id,proto3"`
	SenderIdentityPublicKey   []byte          `protobuf:"bytes,2,opt,name=sender_identity_public_key,proto3"`
	ReceiverIdentityPublicKey []byte          `protobuf:"bytes,3,opt,name=receiver_identity_public_key,proto3"`
	Status                    TransferStatus  `protobuf:"varint,4,opt,name=status,proto3,enum=spark.TransferStatus"`
	TotalValue                uint64          `protobuf:"varint,5,opt,name=total_value,proto3"`
	ExpiryTime                time.Time       `protobuf:"bytes,6,opt,name=expiry_time,proto3"`
	Leaves                    []*TransferLeaf `protobuf:"bytes,7,rep,name=leaves,proto3"`
	Type                      TransferType    `protobuf:"varint,10,opt,name=type,proto3,enum=spark.TransferType"`
}

func (x *Transfer) GetId() string {
	if x != nil {
		return x.Id
	}
	return ""
}

func (x *Transfer) GetStatus() TransferStatus {
	if x != nil {
		return x.Status
	}
	return TransferStatusSenderInitiated
}

func (x *Transfer) GetLeaves() []*TransferLeaf {
	if x != nil {
		return x.Leaves
	}
	return nil
}

type TransferLeaf struct {
	Leaf                 *TreeNode `protobuf:"bytes,1,opt,name=leaf,proto3"`
	SecretCipher         []byte    `protobuf:"bytes,2,opt,name=secret_cipher,proto3"`
	Signature            []byte    `protobuf:"bytes,3,opt,name=signature,proto3"`
	IntermediateRefundTx []byte    `protobuf:"bytes,4,opt,name=intermediate_refund_tx,proto3"`
}

func (x *TransferLeaf) GetLeaf() *TreeNode {
	if x != nil {
		return x.Leaf
	}
	return nil
}

type LeafRefundTxSigningJob struct {
	LeafId             string      `protobuf:"bytes,1,opt,name=leaf_id,proto3"`
	RefundTxSigningJob *SigningJob `protobuf:"bytes,2,opt,name=refund_tx_signing_job,proto3"`
}

type LeafRefundTxSigningResult struct {
	LeafId                string         `protobuf:"bytes,1,opt,name=leaf_id,proto3"`
	RefundTxSigningResult *SigningResult `protobuf:"bytes,2,opt,name=refund_tx_signing_result,proto3"`
	VerifyingKey          []byte         `protobuf:"bytes,3,opt,name=verifying_key,proto3"`
}

type StartTransferRequest struct {
	TransferId                string                    `protobuf:"bytes,1,opt,name=transfer_id,proto3"`
	OwnerIdentityPublicKey    []byte                    `protobuf:"bytes,2,opt,name=owner_identity_public_key,proto3"`
	LeavesToSend              []*LeafRefundTxSigningJob `protobuf:"bytes,3,rep,name=leaves_to_send,proto3"`
	ReceiverIdentityPublicKey []byte                    `protobuf:"bytes,4,opt,name=receiver_identity_public_key,proto3"`
	ExpiryTime                time.Time                 `protobuf:"bytes,5,opt,name=expiry_time,proto3"`
}

type StartTransferResponse struct {
	Transfer       *Transfer                    `protobuf:"bytes,1,opt,name=transfer,proto3"`
	SigningResults []*LeafRefundTxSigningResult `protobuf:"bytes,2,rep,name=signing_results,proto3"`
}

type CounterLeafSwapRequest struct {
	Transfer         *StartTransferRequest `protobuf:"bytes,1,opt,name=transfer,proto3"`
	SwapId           string                `protobuf:"bytes,2,opt,name=swap_id,proto3"`
	AdaptorPublicKey []byte                `protobuf:"bytes,3,opt,name=adaptor_public_key,proto3"`
}

type CounterLeafSwapResponse struct {
	Transfer       *Transfer                    `protobuf:"bytes,1,opt,name=transfer,proto3"`
	SigningResults []*LeafRefundTxSigningResult `protobuf:"bytes,2,rep,name=signing_results,proto3"`
}

type SendLeafKeyTweak struct {
	LeafId            string            `protobuf:"bytes,1,opt,name=leaf_id,proto3"`
	SecretShareTweak  *SecretShare      `protobuf:"bytes,2,opt,name=secret_share_tweak,proto3"`
	PubkeySharesTweak map[string][]byte `protobuf:"bytes,3,rep,name=pubkey_shares_tweak,proto3" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
	SecretCipher      []byte            `protobuf:"bytes,4,opt,name=secret_cipher,proto3"`
	Signature         []byte            `protobuf:"bytes,5,opt,name=signature,proto3"`
	RefundSignature   []byte            `protobuf:"bytes,6,opt,name=refund_signature,proto3"`
}

type CompleteSendTransferRequest struct {
	TransferId             string              `protobuf:"bytes,1,opt,name=transfer_id,proto3"`
	OwnerIdentityPublicKey []byte              `protobuf:"bytes,2,opt,name=owner_identity_public_key,proto3"`
	LeavesToSend           []*SendLeafKeyTweak `protobuf:"bytes,3,rep,name=leaves_to_send,proto3"`
}

type CompleteSendTransferResponse struct {
	Transfer *Transfer `protobuf:"bytes,1,opt,name=transfer,proto3"`
}

type CancelSendTransferRequest struct {
	TransferId              string `protobuf:"bytes,1,opt,name=transfer_id,proto3"`
	SenderIdentityPublicKey []byte `protobuf:"bytes,2,opt,name=sender_identity_public_key,proto3"`
}

type CancelSendTransferResponse struct {
	Transfer *Transfer `protobuf:"bytes,1,opt,name=transfer,proto3"`
}

// TransferFilter selects transfers. QueryPendingTransfers matches on the
// receiver or sender key; QueryAllTransfers on the participant key.
type TransferFilter struct {
	ReceiverIdentityPublicKey    []byte   `protobuf:"bytes,1,opt,name=receiver_identity_public_key,proto3"`
	SenderIdentityPublicKey      []byte   `protobuf:"bytes,2,opt,name=sender_identity_public_key,proto3"`
	ParticipantIdentityPublicKey []byte   `protobuf:"bytes,3,opt,name=participant_identity_public_key,proto3"`
	TransferIds                  []string `protobuf:"bytes,4,rep,name=transfer_ids,proto3"`
	Limit                        int64    `protobuf:"varint,5,opt,name=limit,proto3"`
	Offset                       int64    `protobuf:"varint,6,opt,name=offset,proto3"`
	Network                      Network  `protobuf:"varint,7,opt,name=network,proto3,enum=spark.Network"`
}

type QueryTransfersResponse struct {
	Transfers []*Transfer `protobuf:"bytes,1,rep,name=transfers,proto3"`
	Offset    int64       `protobuf:"varint,2,opt,name=offset,proto3"`
}

type ClaimLeafKeyTweak struct {
	LeafId            string            `protobuf:"bytes,1,opt,name=leaf_id,proto3"`
	SecretShareTweak  *SecretShare      `protobuf:"bytes,2,opt,name=secret_share_tweak,proto3"`
	PubkeySharesTweak map[string][]byte `protobuf:"bytes,3,rep,name=pubkey_shares_tweak,proto3" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
}

type ClaimTransferTweakKeysRequest struct {
	TransferId             string               `protobuf:"bytes,1,opt,name=transfer_id,proto3"`
	OwnerIdentityPublicKey []byte               `protobuf:"bytes,2,opt,name=owner_identity_public_key,proto3"`
	LeavesToReceive        []*ClaimLeafKeyTweak `protobuf:"bytes,3,rep,name=leaves_to_receive,proto3"`
}

type ClaimTransferSignRefundsRequest struct {
	TransferId             string                    `protobuf:"bytes,1,opt,name=transfer_id,proto3"`
	OwnerIdentityPublicKey []byte                    `protobuf:"bytes,2,opt,name=owner_identity_public_key,proto3"`
	SigningJobs            []*LeafRefundTxSigningJob `protobuf:"bytes,3,rep,name=signing_jobs,proto3"`
}

type ClaimTransferSignRefundsResponse struct {
	SigningResults []*LeafRefundTxSigningResult `protobuf:"bytes,1,rep,name=signing_results,proto3"`
}
