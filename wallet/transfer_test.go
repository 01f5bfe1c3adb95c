package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

// pendingTransferFor sends amount from a fresh wallet to receiver and returns
// the transfer as the receiver sees it.
func pendingTransferFor(t *testing.T, fed *fakeFederation, receiver *Wallet, amount uint64) *pb.Transfer {
	t.Helper()
	sender := newTestWallet(t, fed, nil)
	fundWallet(t, fed, sender, amount)
	sent, err := sender.Transfer(t.Context(), amount, receiver.IdentityPublicKey())
	require.NoError(t, err)

	pending, err := receiver.transfers.QueryPendingTransfer(t.Context(), sent.Id)
	require.NoError(t, err)
	return pending
}

func TestVerifyPendingTransfer(t *testing.T) {
	fed := newFakeFederation(t)
	bob := newTestWallet(t, fed, nil)

	tests := []struct {
		name     string
		tamper   func(*pb.TransferLeaf)
		wantKind sparkerrors.Kind
	}{
		{
			name:   "untouched",
			tamper: func(*pb.TransferLeaf) {},
		},
		{
			name: "signature",
			tamper: func(leaf *pb.TransferLeaf) {
				leaf.Signature[len(leaf.Signature)-1] ^= 0x01
			},
			wantKind: sparkerrors.KindAuthentication,
		},
		{
			name: "cipher",
			tamper: func(leaf *pb.TransferLeaf) {
				leaf.SecretCipher[len(leaf.SecretCipher)-1] ^= 0x01
			},
			wantKind: sparkerrors.KindAuthentication,
		},
		{
			name: "leaf id",
			tamper: func(leaf *pb.TransferLeaf) {
				leaf.Leaf.Id += "-other"
			},
			wantKind: sparkerrors.KindAuthentication,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transfer := pendingTransferFor(t, fed, bob, 250)
			require.Len(t, transfer.Leaves, 1)
			tt.tamper(transfer.Leaves[0])

			leafKeys, err := bob.transfers.VerifyPendingTransfer(t.Context(), transfer)
			if tt.wantKind == sparkerrors.KindUnknown {
				require.NoError(t, err)
				assert.Contains(t, leafKeys, transfer.Leaves[0].Leaf.Id)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, sparkerrors.KindOf(err))
			assert.Equal(t, sparkerrors.ReasonBadSignature, sparkerrors.ReasonOf(err))
			assert.Nil(t, leafKeys)
		})
	}
}

func TestClaimTransfer_RejectsTotalThatDoesNotMatchLeaves(t *testing.T) {
	fed := newFakeFederation(t)
	bob := newTestWallet(t, fed, nil)
	transfer := pendingTransferFor(t, fed, bob, 400)
	transfer.TotalValue = 4000

	_, err := bob.claimTransfer(t.Context(), transfer)
	require.Error(t, err)
	assert.Equal(t, sparkerrors.ReasonResponseMismatch, sparkerrors.ReasonOf(err))
	assert.Zero(t, fed.callCount("ClaimTransferTweakKeys"))
	assert.Zero(t, bob.Balance())
}

func TestTransfer_RejectsOverstatedStartResponse(t *testing.T) {
	fed := newFakeFederation(t)
	alice := newTestWallet(t, fed, nil)
	bob := newTestWallet(t, fed, nil)
	fundWallet(t, fed, alice, 500)
	fed.overstatedValue = 100

	_, err := alice.Transfer(t.Context(), 500, bob.IdentityPublicKey())
	require.Error(t, err)
	assert.Equal(t, sparkerrors.ReasonResponseMismatch, sparkerrors.ReasonOf(err))
	assert.Zero(t, fed.callCount("CompleteSendTransfer"))
	assert.Equal(t, uint64(500), alice.Balance())
}
