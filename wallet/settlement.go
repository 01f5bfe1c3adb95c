package wallet

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/lightsparkdev/spark-wallet/common/keys"
)

// SwapLeaf is one side's leaf in a leaves swap: the refund the sender signed
// for it and that signature with the swap's adaptor secret subtracted.
type SwapLeaf struct {
	LeafID                       string
	RawUnsignedRefundTransaction []byte
	AdaptorAddedSignature        []byte
}

type LeavesSwapRequest struct {
	AdaptorPublicKey keys.Public
	TotalAmountSats  uint64
	// TargetAmountSats are the denominations the wallet wants back. Whatever
	// the targets leave of the total comes back as change.
	TargetAmountSats       []uint64
	UserLeaves             []SwapLeaf
	UserOutboundTransferID string
}

type LeavesSwapResponse struct {
	RequestID string
	// CounterTransferID is the service's transfer of SwapLeaves to the wallet.
	CounterTransferID string
	SwapLeaves        []SwapLeaf
}

// CoopExitQuote is the settlement service's on-chain exit for a set of leaves.
// ConnectorTx has one output per exiting leaf, followed by its change output.
type CoopExitQuote struct {
	ExitID      string
	ExitTxid    chainhash.Hash
	ConnectorTx *wire.MsgTx
}

type InvoicePayment struct {
	RequestID string
	Preimage  []byte
}

// SettlementService is the counterparty the wallet trades leaves with: it
// swaps denominations, takes leaves for on-chain exits and pays Lightning
// invoices in exchange for leaves.
type SettlementService interface {
	IdentityPublicKey() keys.Public

	RequestLeavesSwap(ctx context.Context, request *LeavesSwapRequest) (*LeavesSwapResponse, error)
	// CompleteLeavesSwap reveals the adaptor secret once the wallet's outbound
	// transfer has been key tweaked.
	CompleteLeavesSwap(ctx context.Context, adaptorSecret keys.Private, userOutboundTransferID string, requestID string) error

	RequestCoopExit(ctx context.Context, leafIDs []string, withdrawalAddress string) (*CoopExitQuote, error)
	CompleteCoopExit(ctx context.Context, userOutboundTransferID string, exitID string) error

	// PayInvoice pays invoice once it has received the leaves of userOutboundTransferID.
	PayInvoice(ctx context.Context, invoice string, amountSats uint64, userOutboundTransferID string) (*InvoicePayment, error)
}
