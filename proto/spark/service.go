package spark

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "/spark.SparkService/"

// SparkServiceClient is the client API for the operator RPC surface.
type SparkServiceClient interface {
	GenerateDepositAddress(ctx context.Context, in *GenerateDepositAddressRequest, opts ...grpc.CallOption) (*GenerateDepositAddressResponse, error)
	StartTreeCreation(ctx context.Context, in *StartTreeCreationRequest, opts ...grpc.CallOption) (*StartTreeCreationResponse, error)
	CreateTree(ctx context.Context, in *CreateTreeRequest, opts ...grpc.CallOption) (*CreateTreeResponse, error)
	QueryNodes(ctx context.Context, in *QueryNodesRequest, opts ...grpc.CallOption) (*QueryNodesResponse, error)
	QueryUnusedDepositAddresses(ctx context.Context, in *QueryUnusedDepositAddressesRequest, opts ...grpc.CallOption) (*QueryUnusedDepositAddressesResponse, error)
	StartSendTransfer(ctx context.Context, in *StartTransferRequest, opts ...grpc.CallOption) (*StartTransferResponse, error)
	StartLeafSwap(ctx context.Context, in *StartTransferRequest, opts ...grpc.CallOption) (*StartTransferResponse, error)
	CounterLeafSwap(ctx context.Context, in *CounterLeafSwapRequest, opts ...grpc.CallOption) (*CounterLeafSwapResponse, error)
	CompleteSendTransfer(ctx context.Context, in *CompleteSendTransferRequest, opts ...grpc.CallOption) (*CompleteSendTransferResponse, error)
	CancelSendTransfer(ctx context.Context, in *CancelSendTransferRequest, opts ...grpc.CallOption) (*CancelSendTransferResponse, error)
	QueryPendingTransfers(ctx context.Context, in *TransferFilter, opts ...grpc.CallOption) (*QueryTransfersResponse, error)
	QueryAllTransfers(ctx context.Context, in *TransferFilter, opts ...grpc.CallOption) (*QueryTransfersResponse, error)
	ClaimTransferTweakKeys(ctx context.Context, in *ClaimTransferTweakKeysRequest, opts ...grpc.CallOption) (*Empty, error)
	ClaimTransferSignRefunds(ctx context.Context, in *ClaimTransferSignRefundsRequest, opts ...grpc.CallOption) (*ClaimTransferSignRefundsResponse, error)
	FinalizeNodeSignatures(ctx context.Context, in *FinalizeNodeSignaturesRequest, opts ...grpc.CallOption) (*FinalizeNodeSignaturesResponse, error)
	RefreshTimelock(ctx context.Context, in *RefreshTimelockRequest, opts ...grpc.CallOption) (*RefreshTimelockResponse, error)
	ExtendLeaf(ctx context.Context, in *ExtendLeafRequest, opts ...grpc.CallOption) (*ExtendLeafResponse, error)
	StartTokenTransaction(ctx context.Context, in *StartTokenTransactionRequest, opts ...grpc.CallOption) (*StartTokenTransactionResponse, error)
	SignTokenTransaction(ctx context.Context, in *SignTokenTransactionRequest, opts ...grpc.CallOption) (*SignTokenTransactionResponse, error)
	FinalizeTokenTransaction(ctx context.Context, in *FinalizeTokenTransactionRequest, opts ...grpc.CallOption) (*Empty, error)
	FreezeTokens(ctx context.Context, in *FreezeTokensRequest, opts ...grpc.CallOption) (*FreezeTokensResponse, error)
	QueryTokenOutputs(ctx context.Context, in *QueryTokenOutputsRequest, opts ...grpc.CallOption) (*QueryTokenOutputsResponse, error)
	QueryTokenTransactions(ctx context.Context, in *QueryTokenTransactionsRequest, opts ...grpc.CallOption) (*QueryTokenTransactionsResponse, error)
}

type sparkServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSparkServiceClient(cc grpc.ClientConnInterface) SparkServiceClient {
	return &sparkServiceClient{cc: cc}
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	callOpts := append([]grpc.CallOption{CallOption()}, opts...)
	if err := cc.Invoke(ctx, serviceName+method, in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sparkServiceClient) GenerateDepositAddress(ctx context.Context, in *GenerateDepositAddressRequest, opts ...grpc.CallOption) (*GenerateDepositAddressResponse, error) {
	return invoke[GenerateDepositAddressRequest, GenerateDepositAddressResponse](ctx, c.cc, "generate_deposit_address", in, opts)
}

func (c *sparkServiceClient) StartTreeCreation(ctx context.Context, in *StartTreeCreationRequest, opts ...grpc.CallOption) (*StartTreeCreationResponse, error) {
	return invoke[StartTreeCreationRequest, StartTreeCreationResponse](ctx, c.cc, "start_tree_creation", in, opts)
}

func (c *sparkServiceClient) CreateTree(ctx context.Context, in *CreateTreeRequest, opts ...grpc.CallOption) (*CreateTreeResponse, error) {
	return invoke[CreateTreeRequest, CreateTreeResponse](ctx, c.cc, "create_tree", in, opts)
}

func (c *sparkServiceClient) QueryNodes(ctx context.Context, in *QueryNodesRequest, opts ...grpc.CallOption) (*QueryNodesResponse, error) {
	return invoke[QueryNodesRequest, QueryNodesResponse](ctx, c.cc, "query_nodes", in, opts)
}

func (c *sparkServiceClient) QueryUnusedDepositAddresses(ctx context.Context, in *QueryUnusedDepositAddressesRequest, opts ...grpc.CallOption) (*QueryUnusedDepositAddressesResponse, error) {
	return invoke[QueryUnusedDepositAddressesRequest, QueryUnusedDepositAddressesResponse](ctx, c.cc, "query_unused_deposit_addresses", in, opts)
}

func (c *sparkServiceClient) StartSendTransfer(ctx context.Context, in *StartTransferRequest, opts ...grpc.CallOption) (*StartTransferResponse, error) {
	return invoke[StartTransferRequest, StartTransferResponse](ctx, c.cc, "start_send_transfer", in, opts)
}

func (c *sparkServiceClient) StartLeafSwap(ctx context.Context, in *StartTransferRequest, opts ...grpc.CallOption) (*StartTransferResponse, error) {
	return invoke[StartTransferRequest, StartTransferResponse](ctx, c.cc, "start_leaf_swap", in, opts)
}

func (c *sparkServiceClient) CounterLeafSwap(ctx context.Context, in *CounterLeafSwapRequest, opts ...grpc.CallOption) (*CounterLeafSwapResponse, error) {
	return invoke[CounterLeafSwapRequest, CounterLeafSwapResponse](ctx, c.cc, "counter_leaf_swap", in, opts)
}

func (c *sparkServiceClient) CompleteSendTransfer(ctx context.Context, in *CompleteSendTransferRequest, opts ...grpc.CallOption) (*CompleteSendTransferResponse, error) {
	return invoke[CompleteSendTransferRequest, CompleteSendTransferResponse](ctx, c.cc, "complete_send_transfer", in, opts)
}

func (c *sparkServiceClient) CancelSendTransfer(ctx context.Context, in *CancelSendTransferRequest, opts ...grpc.CallOption) (*CancelSendTransferResponse, error) {
	return invoke[CancelSendTransferRequest, CancelSendTransferResponse](ctx, c.cc, "cancel_send_transfer", in, opts)
}

func (c *sparkServiceClient) QueryPendingTransfers(ctx context.Context, in *TransferFilter, opts ...grpc.CallOption) (*QueryTransfersResponse, error) {
	return invoke[TransferFilter, QueryTransfersResponse](ctx, c.cc, "query_pending_transfers", in, opts)
}

func (c *sparkServiceClient) QueryAllTransfers(ctx context.Context, in *TransferFilter, opts ...grpc.CallOption) (*QueryTransfersResponse, error) {
	return invoke[TransferFilter, QueryTransfersResponse](ctx, c.cc, "query_all_transfers", in, opts)
}

func (c *sparkServiceClient) ClaimTransferTweakKeys(ctx context.Context, in *ClaimTransferTweakKeysRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[ClaimTransferTweakKeysRequest, Empty](ctx, c.cc, "claim_transfer_tweak_keys", in, opts)
}

func (c *sparkServiceClient) ClaimTransferSignRefunds(ctx context.Context, in *ClaimTransferSignRefundsRequest, opts ...grpc.CallOption) (*ClaimTransferSignRefundsResponse, error) {
	return invoke[ClaimTransferSignRefundsRequest, ClaimTransferSignRefundsResponse](ctx, c.cc, "claim_transfer_sign_refunds", in, opts)
}

func (c *sparkServiceClient) FinalizeNodeSignatures(ctx context.Context, in *FinalizeNodeSignaturesRequest, opts ...grpc.CallOption) (*FinalizeNodeSignaturesResponse, error) {
	return invoke[FinalizeNodeSignaturesRequest, FinalizeNodeSignaturesResponse](ctx, c.cc, "finalize_node_signatures", in, opts)
}

func (c *sparkServiceClient) RefreshTimelock(ctx context.Context, in *RefreshTimelockRequest, opts ...grpc.CallOption) (*RefreshTimelockResponse, error) {
	return invoke[RefreshTimelockRequest, RefreshTimelockResponse](ctx, c.cc, "refresh_timelock", in, opts)
}

func (c *sparkServiceClient) ExtendLeaf(ctx context.Context, in *ExtendLeafRequest, opts ...grpc.CallOption) (*ExtendLeafResponse, error) {
	return invoke[ExtendLeafRequest, ExtendLeafResponse](ctx, c.cc, "extend_leaf", in, opts)
}

func (c *sparkServiceClient) StartTokenTransaction(ctx context.Context, in *StartTokenTransactionRequest, opts ...grpc.CallOption) (*StartTokenTransactionResponse, error) {
	return invoke[StartTokenTransactionRequest, StartTokenTransactionResponse](ctx, c.cc, "start_token_transaction", in, opts)
}

func (c *sparkServiceClient) SignTokenTransaction(ctx context.Context, in *SignTokenTransactionRequest, opts ...grpc.CallOption) (*SignTokenTransactionResponse, error) {
	return invoke[SignTokenTransactionRequest, SignTokenTransactionResponse](ctx, c.cc, "sign_token_transaction", in, opts)
}

func (c *sparkServiceClient) FinalizeTokenTransaction(ctx context.Context, in *FinalizeTokenTransactionRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[FinalizeTokenTransactionRequest, Empty](ctx, c.cc, "finalize_token_transaction", in, opts)
}

func (c *sparkServiceClient) FreezeTokens(ctx context.Context, in *FreezeTokensRequest, opts ...grpc.CallOption) (*FreezeTokensResponse, error) {
	return invoke[FreezeTokensRequest, FreezeTokensResponse](ctx, c.cc, "freeze_tokens", in, opts)
}

func (c *sparkServiceClient) QueryTokenOutputs(ctx context.Context, in *QueryTokenOutputsRequest, opts ...grpc.CallOption) (*QueryTokenOutputsResponse, error) {
	return invoke[QueryTokenOutputsRequest, QueryTokenOutputsResponse](ctx, c.cc, "query_token_outputs", in, opts)
}

func (c *sparkServiceClient) QueryTokenTransactions(ctx context.Context, in *QueryTokenTransactionsRequest, opts ...grpc.CallOption) (*QueryTokenTransactionsResponse, error) {
	return invoke[QueryTokenTransactionsRequest, QueryTokenTransactionsResponse](ctx, c.cc, "query_token_transactions", in, opts)
}

// MethodName returns the full grpc method name for an RPC, as seen by interceptors.
func MethodName(rpc string) string {
	return serviceName + rpc
}
