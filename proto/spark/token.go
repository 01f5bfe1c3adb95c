package spark

type TokenOutputToSpend struct {
	PrevTokenTransactionHash []byte `protobuf:"bytes,1,opt,name=prev_token_transaction_hash,proto3"`
	PrevTokenTransactionVout uint32 `protobuf:"varint,2,opt,name=prev_token_transaction_vout,proto3"`
}

func (x *TokenOutputToSpend) GetPrevTokenTransactionHash() []byte {
	if x != nil {
		return x.PrevTokenTransactionHash
	}
	return nil
}

func (x *TokenOutputToSpend) GetPrevTokenTransactionVout() uint32 {
	if x != nil {
		return x.PrevTokenTransactionVout
	}
	return 0
}

type TokenMintInput struct {
	IssuerPublicKey         []byte `protobuf:"bytes,1,opt,name=issuer_public_key,proto3"`
	IssuerProvidedTimestamp uint64 `protobuf:"varint,2,opt,name=issuer_provided_timestamp,proto3"`
}

func (x *TokenMintInput) GetIssuerPublicKey() []byte {
	if x != nil {
		return x.IssuerPublicKey
	}
	return nil
}

func (x *TokenMintInput) GetIssuerProvidedTimestamp() uint64 {
	if x != nil {
		return x.IssuerProvidedTimestamp
	}
	return 0
}

type TokenTransferInput struct {
	OutputsToSpend []*TokenOutputToSpend `protobuf:"bytes,1,rep,name=outputs_to_spend,proto3"`
}

func (x *TokenTransferInput) GetOutputsToSpend() []*TokenOutputToSpend {
	if x != nil {
		return x.OutputsToSpend
	}
	return nil
}

type TokenOutput struct {
	Id                            *string `protobuf:"bytes,1,opt,name=id,proto3"`
	OwnerPublicKey                []byte  `protobuf:"bytes,2,opt,name=owner_public_key,proto3"`
	RevocationCommitment          []byte  `protobuf:"bytes,3,opt,name=revocation_commitment,proto3"`
	WithdrawBondSats              *uint64 `protobuf:"varint,4,opt,name=withdraw_bond_sats,proto3"`
	WithdrawRelativeBlockLocktime *uint64 `protobuf:"varint,5,opt,name=withdraw_relative_block_locktime,proto3"`
	TokenPublicKey                []byte  `protobuf:"bytes,6,opt,name=token_public_key,proto3"`
	TokenAmount                   []byte  `protobuf:"bytes,7,opt,name=token_amount,proto3"`
}

func (x *TokenOutput) GetId() string {
	if x != nil && x.Id != nil {
		return *x.Id
	}
	return ""
}

func (x *TokenOutput) GetOwnerPublicKey() []byte {
	if x != nil {
		return x.OwnerPublicKey
	}
	return nil
}

func (x *TokenOutput) GetRevocationCommitment() []byte {
	if x != nil {
		return x.RevocationCommitment
	}
	return nil
}

func (x *TokenOutput) GetWithdrawBondSats() uint64 {
	if x != nil && x.WithdrawBondSats != nil {
		return *x.WithdrawBondSats
	}
	return 0
}

func (x *TokenOutput) GetWithdrawRelativeBlockLocktime() uint64 {
	if x != nil && x.WithdrawRelativeBlockLocktime != nil {
		return *x.WithdrawRelativeBlockLocktime
	}
	return 0
}

func (x *TokenOutput) GetTokenPublicKey() []byte {
	if x != nil {
		return x.TokenPublicKey
	}
	return nil
}

func (x *TokenOutput) GetTokenAmount() []byte {
	if x != nil {
		return x.TokenAmount
	}
	return nil
}

// isTokenTransaction_TokenInputs is the oneof over a mint or a transfer.
type isTokenTransaction_TokenInputs interface {
	isTokenTransaction_TokenInputs()
}

type TokenTransaction_MintInput struct {
	MintInput *TokenMintInput `protobuf:"bytes,1,opt,name=mint_input,proto3,oneof"`
}

type TokenTransaction_TransferInput struct {
	TransferInput *TokenTransferInput `protobuf:"bytes,2,opt,name=transfer_input,proto3,oneof"`
}

func (*TokenTransaction_MintInput) isTokenTransaction_TokenInputs()     {}
func (*TokenTransaction_TransferInput) isTokenTransaction_TokenInputs() {}

type TokenTransaction struct {
	TokenInputs                     isTokenTransaction_TokenInputs `protobuf_oneof:"token_inputs"`
	TokenOutputs                    []*TokenOutput                 `protobuf:"bytes,3,rep,name=token_outputs,proto3"`
	SparkOperatorIdentityPublicKeys [][]byte                       `protobuf:"bytes,4,rep,name=spark_operator_identity_public_keys,proto3"`
	Network                         Network                        `protobuf:"varint,10,opt,name=network,proto3,enum=spark.Network"`
}

// OneofWrappers lists the token_inputs alternatives.
func (*TokenTransaction) OneofWrappers() []any {
	return []any{
		(*TokenTransaction_MintInput)(nil),
		(*TokenTransaction_TransferInput)(nil),
	}
}

func (x *TokenTransaction) GetTokenInputs() isTokenTransaction_TokenInputs {
	if x != nil {
		return x.TokenInputs
	}
	return nil
}

func (x *TokenTransaction) GetMintInput() *TokenMintInput {
	if x, ok := x.GetTokenInputs().(*TokenTransaction_MintInput); ok {
		return x.MintInput
	}
	return nil
}

func (x *TokenTransaction) GetTransferInput() *TokenTransferInput {
	if x, ok := x.GetTokenInputs().(*TokenTransaction_TransferInput); ok {
		return x.TransferInput
	}
	return nil
}

func (x *TokenTransaction) GetTokenOutputs() []*TokenOutput {
	if x != nil {
		return x.TokenOutputs
	}
	return nil
}

func (x *TokenTransaction) GetSparkOperatorIdentityPublicKeys() [][]byte {
	if x != nil {
		return x.SparkOperatorIdentityPublicKeys
	}
	return nil
}

func (x *TokenTransaction) GetNetwork() Network {
	if x != nil {
		return x.Network
	}
	return Network_UNSPECIFIED
}

type TokenTransactionSignatures struct {
	// OwnerSignatures holds one signature per mint input or spent output, in input order.
	OwnerSignatures [][]byte `protobuf:"bytes,1,rep,name=owner_signatures,proto3"`
}

type StartTokenTransactionRequest struct {
	IdentityPublicKey          []byte                      `protobuf:"bytes,1,opt,name=identity_public_key,proto3"`
	PartialTokenTransaction    *TokenTransaction           `protobuf:"bytes,2,opt,name=partial_token_transaction,proto3"`
	TokenTransactionSignatures *TokenTransactionSignatures `protobuf:"bytes,3,opt,name=token_transaction_signatures,proto3"`
}

type StartTokenTransactionResponse struct {
	FinalTokenTransaction *TokenTransaction `protobuf:"bytes,1,opt,name=final_token_transaction,proto3"`
	KeyshareInfo          *SigningKeyshare  `protobuf:"bytes,2,opt,name=keyshare_info,proto3"`
}

type OperatorSpecificTokenTransactionSignablePayload struct {
	FinalTokenTransactionHash []byte `protobuf:"bytes,1,opt,name=final_token_transaction_hash,proto3"`
	OperatorIdentityPublicKey []byte `protobuf:"bytes,2,opt,name=operator_identity_public_key,proto3"`
}

func (x *OperatorSpecificTokenTransactionSignablePayload) GetFinalTokenTransactionHash() []byte {
	if x != nil {
		return x.FinalTokenTransactionHash
	}
	return nil
}

func (x *OperatorSpecificTokenTransactionSignablePayload) GetOperatorIdentityPublicKey() []byte {
	if x != nil {
		return x.OperatorIdentityPublicKey
	}
	return nil
}

type OperatorSpecificTokenTransactionSignature struct {
	OwnerPublicKey []byte                                           `protobuf:"bytes,1,opt,name=owner_public_key,proto3"`
	OwnerSignature []byte                                           `protobuf:"bytes,2,opt,name=owner_signature,proto3"`
	Payload        *OperatorSpecificTokenTransactionSignablePayload `protobuf:"bytes,3,opt,name=payload,proto3"`
}

type SignTokenTransactionRequest struct {
	FinalTokenTransaction      *TokenTransaction                            `protobuf:"bytes,1,opt,name=final_token_transaction,proto3"`
	OperatorSpecificSignatures []*OperatorSpecificTokenTransactionSignature `protobuf:"bytes,2,rep,name=operator_specific_signatures,proto3"`
	IdentityPublicKey          []byte                                       `protobuf:"bytes,3,opt,name=identity_public_key,proto3"`
}

type KeyshareWithIndex struct {
	// Index is the position of the spent output in the transfer input.
	Index    uint32 `protobuf:"varint,1,opt,name=index,proto3"`
	Keyshare []byte `protobuf:"bytes,2,opt,name=keyshare,proto3"`
}

type SignTokenTransactionResponse struct {
	SparkOperatorSignature []byte               `protobuf:"bytes,1,opt,name=spark_operator_signature,proto3"`
	RevocationKeyshares    []*KeyshareWithIndex `protobuf:"bytes,2,rep,name=revocation_keyshares,proto3"`
}

type FinalizeTokenTransactionRequest struct {
	FinalTokenTransaction *TokenTransaction `protobuf:"bytes,1,opt,name=final_token_transaction,proto3"`
	RevocationSecrets     [][]byte          `protobuf:"bytes,2,rep,name=revocation_secrets,proto3"`
	IdentityPublicKey     []byte            `protobuf:"bytes,3,opt,name=identity_public_key,proto3"`
}

type FreezeTokensPayload struct {
	OwnerPublicKey            []byte `protobuf:"bytes,1,opt,name=owner_public_key,proto3"`
	TokenPublicKey            []byte `protobuf:"bytes,2,opt,name=token_public_key,proto3"`
	IssuerProvidedTimestamp   uint64 `protobuf:"varint,3,opt,name=issuer_provided_timestamp,proto3"`
	OperatorIdentityPublicKey []byte `protobuf:"bytes,4,opt,name=operator_identity_public_key,proto3"`
	ShouldUnfreeze            bool   `protobuf:"varint,5,opt,name=should_unfreeze,proto3"`
}

func (x *FreezeTokensPayload) GetOwnerPublicKey() []byte {
	if x != nil {
		return x.OwnerPublicKey
	}
	return nil
}

func (x *FreezeTokensPayload) GetTokenPublicKey() []byte {
	if x != nil {
		return x.TokenPublicKey
	}
	return nil
}

func (x *FreezeTokensPayload) GetIssuerProvidedTimestamp() uint64 {
	if x != nil {
		return x.IssuerProvidedTimestamp
	}
	return 0
}

func (x *FreezeTokensPayload) GetOperatorIdentityPublicKey() []byte {
	if x != nil {
		return x.OperatorIdentityPublicKey
	}
	return nil
}

func (x *FreezeTokensPayload) GetShouldUnfreeze() bool {
	if x != nil {
		return x.ShouldUnfreeze
	}
	return false
}

type FreezeTokensRequest struct {
	FreezeTokensPayload *FreezeTokensPayload `protobuf:"bytes,1,opt,name=freeze_tokens_payload,proto3"`
	IssuerSignature     []byte               `protobuf:"bytes,2,opt,name=issuer_signature,proto3"`
}

type FreezeTokensResponse struct {
	ImpactedOutputIds   []string `protobuf:"bytes,1,rep,name=impacted_output_ids,proto3"`
	ImpactedTokenAmount []byte   `protobuf:"bytes,2,opt,name=impacted_token_amount,proto3"`
}

type QueryTokenOutputsRequest struct {
	OwnerPublicKeys [][]byte `protobuf:"bytes,1,rep,name=owner_public_keys,proto3"`
	TokenPublicKeys [][]byte `protobuf:"bytes,2,rep,name=token_public_keys,proto3"`
	Network         Network  `protobuf:"varint,3,opt,name=network,proto3,enum=spark.Network"`
}

type OutputWithPreviousTransactionData struct {
	Output                  *TokenOutput `protobuf:"bytes,1,opt,name=output,proto3"`
	PreviousTransactionHash []byte       `protobuf:"bytes,2,opt,name=previous_transaction_hash,proto3"`
	PreviousTransactionVout uint32       `protobuf:"varint,3,opt,name=previous_transaction_vout,proto3"`
}

type QueryTokenOutputsResponse struct {
	OutputsWithPreviousTransactionData []*OutputWithPreviousTransactionData `protobuf:"bytes,1,rep,name=outputs_with_previous_transaction_data,proto3"`
}

type QueryTokenTransactionsRequest struct {
	OutputIds              []string `protobuf:"bytes,1,rep,name=output_ids,proto3"`
	OwnerPublicKeys        [][]byte `protobuf:"bytes,2,rep,name=owner_public_keys,proto3"`
	TokenPublicKeys        [][]byte `protobuf:"bytes,3,rep,name=token_public_keys,proto3"`
	TokenTransactionHashes [][]byte `protobuf:"bytes,4,rep,name=token_transaction_hashes,proto3"`
	Limit                  int64    `protobuf:"varint,5,opt,name=limit,proto3"`
	Offset                 int64    `protobuf:"varint,6,opt,name=offset,proto3"`
}

type TokenTransactionStatus int32

const (
	TokenTransactionStatusStarted   TokenTransactionStatus = 0
	TokenTransactionStatusSigned    TokenTransactionStatus = 1
	TokenTransactionStatusFinalized TokenTransactionStatus = 2
)

var tokenTransactionStatusNames = map[TokenTransactionStatus]string{
	TokenTransactionStatusStarted:   "TOKEN_TRANSACTION_STARTED",
	TokenTransactionStatusSigned:    "TOKEN_TRANSACTION_SIGNED",
	TokenTransactionStatusFinalized: "TOKEN_TRANSACTION_FINALIZED",
}

func (s TokenTransactionStatus) String() string {
	return enumString(tokenTransactionStatusNames, s)
}

type TokenTransactionWithStatus struct {
	TokenTransaction *TokenTransaction      `protobuf:"bytes,1,opt,name=token_transaction,proto3"`
	Status           TokenTransactionStatus `protobuf:"varint,2,opt,name=status,proto3,enum=spark.TokenTransactionStatus"`
}

type QueryTokenTransactionsResponse struct {
	TokenTransactionsWithStatus []*TokenTransactionWithStatus `protobuf:"bytes,1,rep,name=token_transactions_with_status,proto3"`
	Offset                      int64                         `protobuf:"varint,2,opt,name=offset,proto3"`
}
