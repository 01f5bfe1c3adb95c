package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/lightsparkdev/spark-wallet/common"
	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	"github.com/lightsparkdev/spark-wallet/common/keys"
	"github.com/lightsparkdev/spark-wallet/common/logging"
	"github.com/lightsparkdev/spark-wallet/common/telemetry"
	"github.com/lightsparkdev/spark-wallet/common/uint128"
	"github.com/lightsparkdev/spark-wallet/leafstore"
	pbfrost "github.com/lightsparkdev/spark-wallet/proto/frost"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
	"github.com/lightsparkdev/spark-wallet/signer"
	"github.com/lightsparkdev/spark-wallet/so"
	"github.com/lightsparkdev/spark-wallet/so/middleware"
	"github.com/lightsparkdev/spark-wallet/wallet/task"
)

const (
	tracerName        = "github.com/lightsparkdev/spark-wallet/wallet"
	nodesPageSize     = 100
	defaultJobTimeout = 5 * time.Minute
)

// Wallet is the entry point for applications. It owns the leaf store and runs
// every protocol through the coordinators.
//
// Operations that read and then change the leaf set hold the store guard for
// their whole duration, including the network round trips, so they never
// select the same leaves twice. Local state only changes after the operators
// have accepted the change.
type Wallet struct {
	config       *Config
	federation   *Federation
	store        *leafstore.Store
	depositLocks *leafstore.KeyedLocks
	transfers    *TransferCoordinator
	tokens       *TokenTransactionCoordinator
	timelocks    *TimelockManager
	optimizer    *LeafOptimizer
	settlement   SettlementService
	metrics      *Metrics
	logger       *zap.Logger
	closers      []func(context.Context) error
}

// New builds a wallet on an existing federation. settlement and metrics may be nil.
func New(config *Config, federation *Federation, settlement SettlementService, metrics *Metrics) (*Wallet, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	serviceKey, err := config.ServiceProviderKey()
	if err != nil {
		return nil, err
	}
	if settlement != nil && !serviceKey.IsZero() && !settlement.IdentityPublicKey().Equals(serviceKey) {
		return nil, sparkerrors.ValidationKeyshareMismatch(fmt.Errorf("settlement service identity %s does not match the configured key %s", settlement.IdentityPublicKey(), serviceKey))
	}

	tokenOwner, err := config.tokenOwnerKey(federation.Signer)
	if err != nil {
		return nil, err
	}

	store := leafstore.New()
	w := &Wallet{
		config:       config,
		federation:   federation,
		store:        store,
		depositLocks: leafstore.NewKeyedLocks(),
		transfers:    NewTransferCoordinator(federation, store, config.TransferExpiry),
		tokens:       NewTokenTransactionCoordinator(federation, store, tokenOwner, config.UseTokenTransactionSchnorrSignatures, config.Client.Retry),
		timelocks:    NewTimelockManager(federation, store),
		settlement:   settlement,
		metrics:      metrics,
	}
	w.optimizer = NewLeafOptimizer(store, config.optimizerMultiplicity(), w.requestLeavesSwap)
	return w, nil
}

// Open connects to the operators listed in config.OperatorsFile and to the
// FROST signer, and derives the wallet's keys from seed. Metrics are
// registered with registerer. Close releases the connections.
func Open(ctx context.Context, config *Config, seed []byte, settlement SettlementService, registerer prometheus.Registerer) (*Wallet, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	network, err := config.BitcoinNetwork()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(config.LogLevel)
	if err != nil {
		return nil, err
	}
	registry, err := so.LoadRegistry(config.OperatorsFile)
	if err != nil {
		return nil, err
	}
	shutdownTelemetry, err := telemetry.Setup(registerer)
	if err != nil {
		return nil, err
	}

	stack, err := middleware.NewStack(logger, config.Client)
	if err != nil {
		return nil, errors.Join(err, shutdownTelemetry(ctx))
	}
	pool := so.NewConnectionPool(config.ConnectionIdleTimeout, so.WithInterceptors(func(operator *so.SigningOperator) ([]grpc.UnaryClientInterceptor, error) {
		return stack.Interceptors(operator.Identifier)
	}))
	frostConn, err := grpc.NewClient(config.FrostSignerAddress,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		pool.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to frost signer: %w", err), shutdownTelemetry(ctx))
	}
	localSigner, err := signer.NewLocalSigner(seed, config.Account, common.NetworkParams(network), pbfrost.NewFrostServiceClient(frostConn))
	if err != nil {
		pool.Close()
		return nil, errors.Join(err, frostConn.Close(), shutdownTelemetry(ctx))
	}

	w, err := New(config, &Federation{
		Registry: registry,
		Clients:  pool,
		Signer:   localSigner,
		Network:  network,
	}, settlement, NewMetrics(registerer))
	if err != nil {
		pool.Close()
		return nil, errors.Join(err, frostConn.Close(), shutdownTelemetry(ctx))
	}
	_, w.logger = logging.WithIdentityPubkey(logging.Inject(ctx, logger), localSigner.IdentityPublicKey())
	w.closers = []func(context.Context) error{
		func(context.Context) error { pool.Close(); return nil },
		func(context.Context) error { return frostConn.Close() },
		shutdownTelemetry,
	}
	w.logger.Info("opened wallet", zap.Stringer("network", network), zap.Int("operators", registry.Len()))
	return w, nil
}

// Close releases what Open acquired.
func (w *Wallet) Close(ctx context.Context) error {
	var errs []error
	for _, closer := range w.closers {
		errs = append(errs, closer(ctx))
	}
	w.closers = nil
	return errors.Join(errs...)
}

// begin starts a public operation. The returned func records its outcome and
// must be called with the operation's error.
func (w *Wallet) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	if w.logger != nil {
		ctx = logging.Inject(ctx, w.logger)
	}
	ctx, _ = logging.WithAttrs(ctx, zap.String("operation", operation))
	ctx, span := otel.Tracer(tracerName).Start(ctx, "wallet."+operation)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("error.kind", sparkerrors.KindOf(err).String()))
		}
		span.End()
		w.metrics.observe(operation, start, err)
		w.metrics.setLeaves(w.store.AvailableLeaves())
	}
}

func (w *Wallet) IdentityPublicKey() keys.Public {
	return w.federation.Signer.IdentityPublicKey()
}

// SparkAddress is the address other wallets send to.
func (w *Wallet) SparkAddress() (string, error) {
	return common.EncodeSparkAddress(w.IdentityPublicKey(), w.federation.Network)
}

// Leaves returns the available leaves.
func (w *Wallet) Leaves() []*pb.TreeNode {
	return w.store.AvailableLeaves()
}

// Balance is the value of the available leaves in sats.
func (w *Wallet) Balance() uint64 {
	return sumLeafValues(w.store.AvailableLeaves())
}

// SyncLeaves replaces the local leaf set with the available leaves the
// operators report for the identity key.
func (w *Wallet) SyncLeaves(ctx context.Context) (err error) {
	ctx, done := w.begin(ctx, "sync_leaves")
	defer func() { done(err) }()

	return w.store.WithLock(func() error {
		leaves, err := w.queryOwnedLeaves(ctx)
		if err != nil {
			return err
		}
		w.store.Reset(leaves)
		logging.GetLoggerFromContext(ctx).Info("synced leaves", zap.Int("leaves", len(leaves)))
		return nil
	})
}

func (w *Wallet) queryOwnedLeaves(ctx context.Context) ([]*pb.TreeNode, error) {
	client, err := w.federation.coordinator()
	if err != nil {
		return nil, err
	}
	var leaves []*pb.TreeNode
	var offset int64
	for {
		resp, err := client.QueryNodes(ctx, &pb.QueryNodesRequest{
			OwnerIdentityPublicKey: w.federation.identityPublicKey(),
			Network:                w.federation.protoNetwork(),
			Limit:                  nodesPageSize,
			Offset:                 offset,
		})
		if err != nil {
			return nil, w.federation.coordinatorError("query_nodes", err)
		}
		for _, node := range resp.Nodes {
			if node.Status == pb.TreeNodeStatusAvailable {
				leaves = append(leaves, node)
			}
		}
		if len(resp.Nodes) == 0 || resp.Offset <= offset {
			break
		}
		offset = resp.Offset
	}
	return leaves, nil
}

// Transfer sends amount sats to receiver, swapping leaves first when no set
// of leaves adds up to amount.
func (w *Wallet) Transfer(ctx context.Context, amount uint64, receiver keys.Public) (transfer *pb.Transfer, err error) {
	ctx, done := w.begin(ctx, "transfer")
	defer func() { done(err) }()
	if receiver.IsZero() {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("receiver is required"))
	}

	w.store.Lock()
	defer w.store.Unlock()
	leaves, err := w.selectLeavesWithSwap(ctx, amount)
	if err != nil {
		return nil, err
	}
	return w.sendLeaves(ctx, leaves, receiver)
}

// TransferToSparkAddress is Transfer to the identity key encoded in address.
func (w *Wallet) TransferToSparkAddress(ctx context.Context, amount uint64, address string) (*pb.Transfer, error) {
	decoded, err := common.DecodeSparkAddress(address)
	if err != nil {
		return nil, err
	}
	if decoded.Network != w.federation.Network {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("spark address is for %s, wallet is on %s", decoded.Network, w.federation.Network))
	}
	return w.Transfer(ctx, amount, decoded.IdentityPublicKey)
}

// sendLeaves transfers leaves to receiver. The caller holds the store guard.
func (w *Wallet) sendLeaves(ctx context.Context, leaves []*pb.TreeNode, receiver keys.Public) (*pb.Transfer, error) {
	leaves, err := w.timelocks.RefreshLeavesIfNeeded(ctx, leaves)
	if err != nil {
		return nil, err
	}
	tweaks, err := w.leafKeyTweaks(leaves)
	if err != nil {
		return nil, err
	}
	return w.transfers.SendTransfer(ctx, tweaks, receiver)
}

// leafKeyTweaks pairs each leaf's current signing key with a fresh key for
// the receiver.
func (w *Wallet) leafKeyTweaks(leaves []*pb.TreeNode) ([]LeafKeyTweak, error) {
	tweaks := make([]LeafKeyTweak, len(leaves))
	for i, leaf := range leaves {
		signingKey, err := leafSigningKey(w.store, w.federation.Signer, leaf.Id)
		if err != nil {
			return nil, fmt.Errorf("failed to get signing key for leaf %s: %w", leaf.Id, err)
		}
		newKey, err := w.federation.Signer.GenerateSigningKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		tweaks[i] = LeafKeyTweak{Leaf: leaf, SigningPrivKey: signingKey, NewSigningPrivKey: newKey}
	}
	return tweaks, nil
}

// ClaimAllTransfers claims every pending transfer sent to this wallet and
// returns the received leaves.
func (w *Wallet) ClaimAllTransfers(ctx context.Context) (leaves []*pb.TreeNode, err error) {
	ctx, done := w.begin(ctx, "claim_all_transfers")
	defer func() { done(err) }()

	w.store.Lock()
	defer w.store.Unlock()
	return w.claimAllTransfers(ctx)
}

func claimable(status pb.TransferStatus) bool {
	switch status {
	case pb.TransferStatusSenderKeyTweaked, pb.TransferStatusReceiverKeyTweaked, pb.TransferStatusReceiverRefundSigned:
		return true
	default:
		return false
	}
}

// claimAllTransfers skips expired transfers and stops at the first other
// failure, returning what was claimed so far. The caller holds the store guard.
func (w *Wallet) claimAllTransfers(ctx context.Context) ([]*pb.TreeNode, error) {
	pending, err := w.transfers.QueryPendingTransfers(ctx)
	if err != nil {
		return nil, err
	}
	logger := logging.GetLoggerFromContext(ctx)
	var claimed []*pb.TreeNode
	for _, transfer := range pending {
		if !claimable(transfer.Status) {
			continue
		}
		nodes, err := w.claimTransfer(ctx, transfer)
		if err != nil {
			if sparkerrors.ReasonOf(err) == sparkerrors.ReasonExpired {
				logger.Warn("skipping expired transfer", zap.String("transfer_id", transfer.Id), zap.Error(err))
				continue
			}
			return claimed, fmt.Errorf("failed to claim transfer %s: %w", transfer.Id, err)
		}
		claimed = append(claimed, nodes...)
	}
	return claimed, nil
}

// claimTransfer moves each received leaf to the key derived from its id, so
// a claim that is resumed after a failure tweaks to the same key.
func (w *Wallet) claimTransfer(ctx context.Context, transfer *pb.Transfer) ([]*pb.TreeNode, error) {
	leafKeys, err := w.transfers.VerifyPendingTransfer(ctx, transfer)
	if err != nil {
		return nil, err
	}
	tweaks := make([]LeafKeyTweak, 0, len(transfer.Leaves))
	for _, transferLeaf := range transfer.Leaves {
		leaf := transferLeaf.Leaf
		newKey, err := w.federation.Signer.LeafSigningKey(leaf.Id)
		if err != nil {
			return nil, fmt.Errorf("failed to derive signing key for leaf %s: %w", leaf.Id, err)
		}
		tweaks = append(tweaks, LeafKeyTweak{
			Leaf:              leaf,
			SigningPrivKey:    leafKeys[leaf.Id],
			NewSigningPrivKey: newKey,
		})
	}
	return w.transfers.ClaimTransfer(ctx, transfer, tweaks)
}

// CancelAllSenderInitiatedTransfers cancels the transfers this wallet started
// but never tweaked keys for. Their leaves stay with the wallet.
func (w *Wallet) CancelAllSenderInitiatedTransfers(ctx context.Context) (cancelled []*pb.Transfer, err error) {
	ctx, done := w.begin(ctx, "cancel_sender_initiated_transfers")
	defer func() { done(err) }()

	w.store.Lock()
	defer w.store.Unlock()
	pending, err := w.transfers.QueryPendingSenderTransfers(ctx)
	if err != nil {
		return nil, err
	}
	for _, transfer := range pending {
		if transfer.Status != pb.TransferStatusSenderInitiated {
			continue
		}
		result, err := w.transfers.CancelTransfer(ctx, transfer)
		if err != nil {
			return cancelled, fmt.Errorf("failed to cancel transfer %s: %w", transfer.Id, err)
		}
		cancelled = append(cancelled, result)
	}
	return cancelled, nil
}

// QueryAllTransfers pages through the wallet's transfer history.
func (w *Wallet) QueryAllTransfers(ctx context.Context, limit, offset int64) ([]*pb.Transfer, int64, error) {
	return w.transfers.QueryAllTransfers(ctx, limit, offset)
}

// RequestLeavesSwap swaps the smallest leaves covering targetAmount for a
// leaf of exactly targetAmount plus change.
func (w *Wallet) RequestLeavesSwap(ctx context.Context, targetAmount uint64) (leaves []*pb.TreeNode, err error) {
	ctx, done := w.begin(ctx, "request_leaves_swap")
	defer func() { done(err) }()
	if targetAmount == 0 {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("target amount must be positive"))
	}

	w.store.Lock()
	defer w.store.Unlock()
	toSwap, err := selectLeavesForSwap(w.store.AvailableLeaves(), targetAmount)
	if err != nil {
		return nil, err
	}
	return w.requestLeavesSwap(ctx, toSwap, []uint64{targetAmount})
}

// CoopExit withdraws amount sats to a bitcoin address through the settlement service.
func (w *Wallet) CoopExit(ctx context.Context, amount uint64, withdrawalAddress string) (result *CoopExitResult, err error) {
	ctx, done := w.begin(ctx, "coop_exit")
	defer func() { done(err) }()
	if err := w.validateBitcoinAddress(withdrawalAddress); err != nil {
		return nil, err
	}

	w.store.Lock()
	defer w.store.Unlock()
	leaves, err := w.selectLeavesWithSwap(ctx, amount)
	if err != nil {
		return nil, err
	}
	return w.coopExit(ctx, leaves, withdrawalAddress)
}

func (w *Wallet) validateBitcoinAddress(address string) error {
	params := common.NetworkParams(w.federation.Network)
	decoded, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return sparkerrors.ValidationMalformedField(fmt.Errorf("invalid withdrawal address %q: %w", address, err))
	}
	if !decoded.IsForNet(params) {
		return sparkerrors.ValidationMalformedField(fmt.Errorf("withdrawal address %q is not for %s", address, w.federation.Network))
	}
	return nil
}

// PayInvoice pays a BOLT11 invoice through the settlement service.
func (w *Wallet) PayInvoice(ctx context.Context, invoice string) (payment *InvoicePayment, err error) {
	ctx, done := w.begin(ctx, "pay_invoice")
	defer func() { done(err) }()

	w.store.Lock()
	defer w.store.Unlock()
	return w.payInvoice(ctx, invoice)
}

// GenerateDepositAddress asks the operators for a new deposit address. A
// static address is locked to the deposit key and may be reused; any other
// address is locked to the signing key of the leaf it will become.
func (w *Wallet) GenerateDepositAddress(ctx context.Context, static bool) (address *pb.Address, err error) {
	ctx, done := w.begin(ctx, "generate_deposit_address")
	defer func() { done(err) }()

	if static {
		depositKey, err := w.federation.Signer.DepositSigningKey()
		if err != nil {
			return nil, fmt.Errorf("failed to get deposit key: %w", err)
		}
		return w.generateDepositAddress(ctx, depositKey.Public(), nil, true)
	}
	leafID := uuid.NewString()
	leafKey, err := w.federation.Signer.LeafSigningKey(leafID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive signing key for leaf %s: %w", leafID, err)
	}
	return w.generateDepositAddress(ctx, leafKey.Public(), &leafID, false)
}

// QueryUnusedDepositAddresses lists the wallet's deposit addresses that have
// not been claimed.
func (w *Wallet) QueryUnusedDepositAddresses(ctx context.Context) (addresses []*pb.DepositAddressQueryResult, err error) {
	ctx, done := w.begin(ctx, "query_unused_deposit_addresses")
	defer func() { done(err) }()
	return w.queryUnusedDepositAddresses(ctx)
}

// ClaimDeposit turns output vout of a confirmed deposit transaction into a
// leaf. Claiming the same output again returns the existing leaf.
func (w *Wallet) ClaimDeposit(ctx context.Context, depositTx *wire.MsgTx, vout uint32) (leaf *pb.TreeNode, err error) {
	ctx, done := w.begin(ctx, "claim_deposit")
	defer func() { done(err) }()
	return w.claimDeposit(ctx, depositTx, vout)
}

// CreateTree splits an available leaf into children of the given values.
func (w *Wallet) CreateTree(ctx context.Context, leafID string, values []uint64) (children []*pb.TreeNode, err error) {
	ctx, done := w.begin(ctx, "create_tree")
	defer func() { done(err) }()

	w.store.Lock()
	defer w.store.Unlock()
	leaf, ok := w.store.Get(leafID)
	if !ok {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("leaf %s is not owned", leafID))
	}
	if leaf.Status != pb.TreeNodeStatusAvailable {
		return nil, sparkerrors.ValidationInvalidState(fmt.Errorf("leaf %s is %s", leafID, leaf.Status))
	}
	return w.splitLeaf(ctx, leaf, values)
}

// RefreshTimelocks refreshes or extends every available leaf whose refund
// timelock is close to expiry.
func (w *Wallet) RefreshTimelocks(ctx context.Context) (err error) {
	ctx, done := w.begin(ctx, "refresh_timelocks")
	defer func() { done(err) }()

	return w.store.WithLock(func() error {
		_, err := w.timelocks.RefreshLeavesIfNeeded(ctx, w.store.AvailableLeaves())
		return err
	})
}

// OptimizeLeaves consolidates the leaves if the wallet is fragmented. It
// reports whether a swap ran.
func (w *Wallet) OptimizeLeaves(ctx context.Context) (optimized bool, err error) {
	ctx, done := w.begin(ctx, "optimize_leaves")
	defer func() { done(err) }()
	return w.optimizer.Optimize(ctx)
}

// MintTokens issues the wallet's own token to recipients.
func (w *Wallet) MintTokens(ctx context.Context, recipients []TokenRecipient) (tx *pb.TokenTransaction, err error) {
	ctx, done := w.begin(ctx, "mint_tokens")
	defer func() { done(err) }()

	mint, err := w.tokens.NewMintTransaction(recipients)
	if err != nil {
		return nil, err
	}
	w.store.Lock()
	defer w.store.Unlock()
	return w.tokens.Broadcast(ctx, mint, IdentityKeyAuthorizer{Signer: w.federation.Signer}, nil)
}

// TransferTokens sends outputs of tokenPublicKey to recipients. Change goes
// back to the identity key.
func (w *Wallet) TransferTokens(ctx context.Context, tokenPublicKey keys.Public, recipients []TokenRecipient) (tx *pb.TokenTransaction, err error) {
	ctx, done := w.begin(ctx, "transfer_tokens")
	defer func() { done(err) }()
	if len(recipients) == 0 {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("transfer has no recipients"))
	}
	amounts := make([]uint128.Uint128, len(recipients))
	for i, recipient := range recipients {
		amounts[i] = recipient.Amount
	}
	amount, err := uint128.Sum(amounts...)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(err)
	}

	w.store.Lock()
	defer w.store.Unlock()
	selected, err := SelectTokenOutputs(w.store.TokenOutputs(tokenPublicKey), amount)
	if err != nil {
		return nil, err
	}
	commitments, err := RevocationCommitments(selected)
	if err != nil {
		return nil, err
	}
	transfer, err := w.tokens.NewTransferTransaction(selected, recipients, w.tokens.OwnerPublicKey())
	if err != nil {
		return nil, err
	}
	return w.tokens.Broadcast(ctx, transfer, w.tokens.SpendAuthorizer(len(selected)), commitments)
}

// TokenOwnerPublicKey is the key token senders pay the wallet to.
func (w *Wallet) TokenOwnerPublicKey() keys.Public {
	return w.tokens.OwnerPublicKey()
}

// QueryTokenTransactions pages through the token transactions matching request.
// It returns the page and the offset of the next one.
func (w *Wallet) QueryTokenTransactions(ctx context.Context, request *pb.QueryTokenTransactionsRequest) (txs []*pb.TokenTransactionWithStatus, next int64, err error) {
	ctx, done := w.begin(ctx, "query_token_transactions")
	defer func() { done(err) }()
	if request == nil {
		return nil, 0, sparkerrors.ValidationMissingField(fmt.Errorf("token transaction query is missing"))
	}
	return w.tokens.QueryTokenTransactions(ctx, request)
}

// FreezeTokens freezes the outputs of the wallet's own token held by owner.
func (w *Wallet) FreezeTokens(ctx context.Context, owner keys.Public) (resp *pb.FreezeTokensResponse, err error) {
	ctx, done := w.begin(ctx, "freeze_tokens")
	defer func() { done(err) }()
	return w.tokens.Freeze(ctx, owner, w.IdentityPublicKey(), false)
}

// UnfreezeTokens releases outputs frozen by FreezeTokens.
func (w *Wallet) UnfreezeTokens(ctx context.Context, owner keys.Public) (resp *pb.FreezeTokensResponse, err error) {
	ctx, done := w.begin(ctx, "unfreeze_tokens")
	defer func() { done(err) }()
	return w.tokens.Freeze(ctx, owner, w.IdentityPublicKey(), true)
}

// SyncTokenOutputs replaces the local token outputs with the operators' view.
func (w *Wallet) SyncTokenOutputs(ctx context.Context) (err error) {
	ctx, done := w.begin(ctx, "sync_token_outputs")
	defer func() { done(err) }()

	return w.store.WithLock(func() error {
		return w.tokens.SyncTokenOutputs(ctx)
	})
}

// TokenBalance returns the amount of tokenPublicKey held and the number of
// outputs holding it.
func (w *Wallet) TokenBalance(tokenPublicKey keys.Public) (uint128.Uint128, int, error) {
	return w.store.TokenBalance(tokenPublicKey)
}

// TokenBalanceEntry is one token in AllTokenBalances.
type TokenBalanceEntry struct {
	TokenPublicKey keys.Public
	Balance        uint128.Uint128
	Outputs        int
}

// AllTokenBalances returns the balance of every token held, keyed by the
// token public key in hex.
func (w *Wallet) AllTokenBalances() (map[string]TokenBalanceEntry, error) {
	balances := make(map[string]TokenBalanceEntry)
	for _, output := range w.store.TokenOutputs(keys.Public{}) {
		tokenPublicKey, err := keys.ParsePublicKey(output.Output.GetTokenPublicKey())
		if err != nil {
			return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("output %s has an invalid token public key: %w", leafstore.OutputKey(output), err))
		}
		amount, err := common.TokenOutputAmount(output.Output)
		if err != nil {
			return nil, err
		}
		key := tokenPublicKey.ToHex()
		entry, ok := balances[key]
		if !ok {
			entry = TokenBalanceEntry{TokenPublicKey: tokenPublicKey, Balance: uint128.New()}
		}
		if entry.Balance, err = entry.Balance.Add(amount); err != nil {
			return nil, err
		}
		entry.Outputs++
		balances[key] = entry
	}
	return balances, nil
}

// StartOptimizer schedules the background jobs: leaf optimization, timelock
// refresh and claiming incoming transfers. Shut the returned scheduler down to
// stop them.
func (w *Wallet) StartOptimizer(ctx context.Context, monitor *task.Monitor) (gocron.Scheduler, error) {
	logger := w.logger
	if logger == nil {
		logger = logging.GetLoggerFromContext(ctx)
	}
	scheduler, err := task.NewScheduler(ctx, logger, monitor)
	if err != nil {
		return nil, err
	}
	timeout := defaultJobTimeout
	for _, spec := range w.scheduledTasks(&timeout) {
		if spec.Disabled {
			continue
		}
		if _, err := spec.Schedule(scheduler); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to schedule %s: %w", spec.Name, err), scheduler.Shutdown())
		}
	}
	scheduler.Start()
	return scheduler, nil
}

func (w *Wallet) scheduledTasks(timeout *time.Duration) []task.ScheduledTaskSpec {
	return []task.ScheduledTaskSpec{
		{
			ExecutionInterval: w.config.Optimizer.Interval,
			BaseTaskSpec: task.BaseTaskSpec{
				Name:     "optimize_leaves",
				Timeout:  timeout,
				Disabled: !w.config.Optimizer.Enabled,
				Task: func(ctx context.Context) error {
					_, err := w.OptimizeLeaves(ctx)
					return err
				},
			},
		},
		{
			ExecutionInterval: w.config.TimelockRefreshInterval,
			BaseTaskSpec: task.BaseTaskSpec{
				Name:     "refresh_timelocks",
				Timeout:  timeout,
				Disabled: w.config.TimelockRefreshInterval <= 0,
				Task:     w.RefreshTimelocks,
			},
		},
		{
			ExecutionInterval: w.config.ClaimInterval,
			BaseTaskSpec: task.BaseTaskSpec{
				Name:     "claim_transfers",
				Timeout:  timeout,
				Disabled: w.config.ClaimInterval <= 0,
				Task: func(ctx context.Context) error {
					_, err := w.ClaimAllTransfers(ctx)
					return err
				},
			},
		},
	}
}
