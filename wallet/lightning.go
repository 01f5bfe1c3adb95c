package wallet

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	decodepay "github.com/nbd-wtf/ln-decodepay"
	"go.uber.org/zap"

	"github.com/lightsparkdev/spark-wallet/common"
	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	"github.com/lightsparkdev/spark-wallet/common/logging"
)

// decodedInvoice is the part of a BOLT11 invoice the wallet acts on.
type decodedInvoice struct {
	amountSats  uint64
	paymentHash []byte
}

// decodeInvoice parses a BOLT11 invoice for network. Invoices without an
// amount are rejected; the amount is rounded up to whole sats.
func decodeInvoice(invoice string, network common.Network) (*decodedInvoice, error) {
	bolt11, err := decodepay.Decodepay(invoice)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("failed to decode invoice: %w", err))
	}
	if bolt11.MSatoshi <= 0 {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("invoice has no amount"))
	}
	if want := common.NetworkParams(network).Bech32HRPSegwit; bolt11.Currency != want {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("invoice is for %q, wallet is on %s", bolt11.Currency, network))
	}
	paymentHash, err := hex.DecodeString(bolt11.PaymentHash)
	if err != nil || len(paymentHash) != sha256.Size {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("invalid payment hash %q", bolt11.PaymentHash))
	}
	return &decodedInvoice{
		amountSats:  uint64((bolt11.MSatoshi + 999) / 1000),
		paymentHash: paymentHash,
	}, nil
}

// payInvoice sends the settlement service leaves worth the invoice amount and
// has it pay the invoice. The preimage it returns must match the invoice's
// payment hash. The caller holds the store guard.
func (w *Wallet) payInvoice(ctx context.Context, invoice string) (*InvoicePayment, error) {
	if w.settlement == nil {
		return nil, sparkerrors.ValidationInvalidState(fmt.Errorf("no settlement service configured"))
	}
	decoded, err := decodeInvoice(invoice, w.federation.Network)
	if err != nil {
		return nil, err
	}
	ctx, logger := logging.WithAttrs(ctx,
		zap.Uint64("amount_sats", decoded.amountSats),
		zap.String("payment_hash", hex.EncodeToString(decoded.paymentHash)),
	)

	leaves, err := w.selectLeavesWithSwap(ctx, decoded.amountSats)
	if err != nil {
		return nil, err
	}
	transfer, err := w.sendLeaves(ctx, leaves, w.settlement.IdentityPublicKey())
	if err != nil {
		return nil, err
	}
	payment, err := w.settlement.PayInvoice(ctx, invoice, decoded.amountSats, transfer.Id)
	if err != nil {
		return nil, fmt.Errorf("settlement service failed to pay invoice with transfer %s: %w", transfer.Id, err)
	}
	if hash := sha256.Sum256(payment.Preimage); !bytes.Equal(hash[:], decoded.paymentHash) {
		return nil, sparkerrors.ValidationHashMismatch(fmt.Errorf("preimage returned for transfer %s does not match the payment hash", transfer.Id))
	}
	logger.Info("paid invoice", zap.String("transfer_id", transfer.Id), zap.String("request_id", payment.RequestID))
	return payment, nil
}
