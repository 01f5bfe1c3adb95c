package wallet

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	spark "github.com/lightsparkdev/spark-wallet"
	"github.com/lightsparkdev/spark-wallet/common"
	bitcointransaction "github.com/lightsparkdev/spark-wallet/common/bitcoin_transaction"
	"github.com/lightsparkdev/spark-wallet/common/keys"
	secretsharing "github.com/lightsparkdev/spark-wallet/common/secret_sharing"
	"github.com/lightsparkdev/spark-wallet/common/uint128"
	pbfrost "github.com/lightsparkdev/spark-wallet/proto/frost"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
	"github.com/lightsparkdev/spark-wallet/signer"
	"github.com/lightsparkdev/spark-wallet/so"
)

const (
	fakeOperatorCount = 3
	fakeThreshold     = 2
	fakeWithdrawBond  = uint64(10_000)
	fakeLocktime      = uint64(1_000)
)

// fakeAggregatorKey stands in for the FROST aggregate: every aggregated
// signature is a BIP-340 signature by this key.
var fakeAggregatorKey = keys.GeneratePrivateKey()

func curveOrder() *big.Int {
	return new(big.Int).Set(secp256k1.S256().N)
}

type fakeNode struct {
	node          *pb.TreeNode
	shares        map[string]*big.Int
	pendingNodeTx []byte
	pendingRefund []byte
	splitParent   string
}

type fakeAddress struct {
	result   *pb.DepositAddressQueryResult
	identity []byte
	static   bool
	shares   map[string]*big.Int
	used     bool
}

type fakeTransfer struct {
	transfer        *pb.Transfer
	senderTweaked   map[string]bool
	receiverTweaked map[string]bool
	finalized       map[string]bool
}

type fakeTokenOutput struct {
	data       *pb.OutputWithPreviousTransactionData
	revocation keys.Private
	shares     map[string]*big.Int
	spent      bool
}

type fakeTokenTransaction struct {
	final    *pb.TokenTransaction
	hash     []byte
	status   pb.TokenTransactionStatus
	outputs  []*fakeTokenOutput
	signedBy map[string]bool
}

type fakeFault struct {
	method   string
	operator string
	times    int
	err      error
}

// fakeFederation is an in-memory operator federation. Every operator shares
// its state, but key shares are tracked per operator so that tweaks which
// do not add up are caught.
type fakeFederation struct {
	mu           sync.Mutex
	registry     *so.Registry
	identityKeys map[string]keys.Private
	network      common.Network

	nodes          map[string]*fakeNode
	addresses      []*fakeAddress
	transfers      map[string]*fakeTransfer
	transferOrder  []string
	tokenOutputs   map[string]*fakeTokenOutput
	tokenOrder     []string
	tokenTxs       map[string]*fakeTokenTransaction
	tokenTxOrder   []string
	frozen         map[string]bool
	withheldShares map[string]bool
	// overstatedValue is added to the total of every transfer the federation starts.
	overstatedValue uint64

	faults []*fakeFault
	calls  map[string]int
}

func newFakeFederation(t testing.TB) *fakeFederation {
	t.Helper()
	f := &fakeFederation{
		identityKeys:   make(map[string]keys.Private),
		network:        common.Regtest,
		nodes:          make(map[string]*fakeNode),
		transfers:      make(map[string]*fakeTransfer),
		tokenOutputs:   make(map[string]*fakeTokenOutput),
		tokenTxs:       make(map[string]*fakeTokenTransaction),
		frozen:         make(map[string]bool),
		withheldShares: make(map[string]bool),
		calls:          make(map[string]int),
	}
	operators := make([]*so.SigningOperator, fakeOperatorCount)
	for i := range fakeOperatorCount {
		identityKey := keys.GeneratePrivateKey()
		identifier := so.IdentifierFromIndex(uint64(i))
		operators[i] = &so.SigningOperator{
			ID:                uint64(i),
			Identifier:        identifier,
			AddressRpc:        fmt.Sprintf("fake:%d", i),
			IdentityPublicKey: identityKey.Public(),
		}
		f.identityKeys[identifier] = identityKey
	}
	registry, err := so.NewRegistry(operators, operators[0].Identifier, fakeThreshold)
	require.NoError(t, err)
	f.registry = registry
	return f
}

// SparkClient implements so.ClientProvider.
func (f *fakeFederation) SparkClient(operator *so.SigningOperator) (pb.SparkServiceClient, error) {
	if _, ok := f.registry.Operator(operator.Identifier); !ok {
		return nil, fmt.Errorf("unknown operator %s", operator.Identifier)
	}
	return &fakeOperator{fed: f, identifier: operator.Identifier}, nil
}

// failNext makes the next times calls of method fail with err. An empty
// operator matches every operator; times < 0 fails forever.
func (f *fakeFederation) failNext(method, operator string, times int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, &fakeFault{method: method, operator: operator, times: times, err: err})
}

func (f *fakeFederation) withholdKeyshares(operator string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withheldShares[operator] = true
}

func (f *fakeFederation) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeFederation) enter(method, operator string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	for _, fault := range f.faults {
		if fault.method != method || (fault.operator != "" && fault.operator != operator) || fault.times == 0 {
			continue
		}
		if fault.times > 0 {
			fault.times--
		}
		return fault.err
	}
	return nil
}

func (f *fakeFederation) protoNetwork() pb.Network {
	network, _ := common.ProtoNetworkFromNetwork(f.network)
	return network
}

func (f *fakeFederation) identifiers() []string {
	operators := f.registry.Operators()
	ids := make([]string, len(operators))
	for i, operator := range operators {
		ids[i] = operator.Identifier
	}
	return ids
}

// split shamir-splits secret, one share per operator.
func (f *fakeFederation) split(secret *big.Int) map[string]*big.Int {
	shares, err := secretsharing.SplitSecretWithProofs(secret, curveOrder(), f.registry.Threshold(), f.registry.Len())
	if err != nil {
		panic(err)
	}
	out := make(map[string]*big.Int, len(shares))
	for _, operator := range f.registry.Operators() {
		for _, share := range shares {
			if share.Index.Cmp(operator.ShareIndex()) == 0 {
				out[operator.Identifier] = share.Share
			}
		}
	}
	return out
}

func (f *fakeFederation) recover(shares map[string]*big.Int) (*big.Int, error) {
	list := make([]*secretsharing.SecretShare, 0, len(shares))
	for identifier, share := range shares {
		operator, ok := f.registry.Operator(identifier)
		if !ok {
			return nil, fmt.Errorf("unknown operator %s", identifier)
		}
		list = append(list, &secretsharing.SecretShare{
			FieldModulus: curveOrder(),
			Threshold:    f.registry.Threshold(),
			Index:        operator.ShareIndex(),
			Share:        share,
		})
	}
	return secretsharing.RecoverSecret(list)
}

// checkSigningKey verifies that signingPublicKey plus the operators' key is
// the node's verifying key.
func (f *fakeFederation) checkSigningKey(n *fakeNode, signingPublicKey []byte) error {
	userKey, err := keys.ParsePublicKey(signingPublicKey)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid signing public key: %v", err)
	}
	secret, err := f.recover(n.shares)
	if err != nil {
		return status.Errorf(codes.Internal, "failed to recover key: %v", err)
	}
	operatorKey, err := keys.PrivateKeyFromBigInt(secret)
	if err != nil {
		return status.Errorf(codes.Internal, "invalid operator key: %v", err)
	}
	if !bytes.Equal(userKey.Add(operatorKey.Public()).Serialize(), n.node.VerifyingPublicKey) {
		return status.Errorf(codes.InvalidArgument, "signing key of node %s does not match its verifying key", n.node.Id)
	}
	return nil
}

// checkRefund verifies that rawRefund spends node output 0 one timelock
// interval below the node's current refund.
func checkRefund(node *pb.TreeNode, rawRefund []byte) error {
	refundTx, err := common.TxFromRawTxBytes(rawRefund)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid refund tx: %v", err)
	}
	nodeTx, err := common.TxFromRawTxBytes(node.NodeTx)
	if err != nil {
		return status.Errorf(codes.Internal, "invalid node tx: %v", err)
	}
	current, err := refundSequence(node)
	if err != nil {
		return status.Errorf(codes.Internal, "invalid current refund: %v", err)
	}
	want, err := spark.NextSequence(current)
	if err != nil {
		return status.Errorf(codes.FailedPrecondition, "node %s timelock is exhausted", node.Id)
	}
	if refundTx.TxIn[0].PreviousOutPoint != (wire.OutPoint{Hash: nodeTx.TxHash(), Index: 0}) {
		return status.Errorf(codes.InvalidArgument, "refund of node %s does not spend the node output", node.Id)
	}
	if refundTx.TxIn[0].Sequence != want {
		return status.Errorf(codes.InvalidArgument, "refund of node %s has sequence %d, want %d", node.Id, refundTx.TxIn[0].Sequence, want)
	}
	return nil
}

func (f *fakeFederation) signingResult() *pb.SigningResult {
	result := &pb.SigningResult{
		PublicKeys:              make(map[string][]byte),
		SigningNonceCommitments: make(map[string]*pb.SigningCommitment),
		SignatureShares:         make(map[string][]byte),
	}
	for _, operator := range f.registry.Operators() {
		result.PublicKeys[operator.Identifier] = operator.IdentityPublicKey.Serialize()
		result.SigningNonceCommitments[operator.Identifier] = &pb.SigningCommitment{
			Hiding:  keys.GeneratePrivateKey().Public().Serialize(),
			Binding: keys.GeneratePrivateKey().Public().Serialize(),
		}
		result.SignatureShares[operator.Identifier] = []byte("share-" + operator.Identifier)
	}
	return result
}

func cloneNode(node *pb.TreeNode) *pb.TreeNode {
	clone := *node
	return &clone
}

func cloneTransfer(transfer *pb.Transfer) *pb.Transfer {
	clone := *transfer
	clone.Leaves = make([]*pb.TransferLeaf, len(transfer.Leaves))
	for i, leaf := range transfer.Leaves {
		leafClone := *leaf
		leafClone.Leaf = cloneNode(leaf.Leaf)
		clone.Leaves[i] = &leafClone
	}
	return &clone
}

func randomOutPoint() wire.OutPoint {
	var hash chainhash.Hash
	_, _ = rand.Read(hash[:])
	return wire.OutPoint{Hash: hash}
}

// createLeafLocked adds an available root leaf whose refund pays userKey.
func (f *fakeFederation) createLeafLocked(owner keys.Public, id string, userKey keys.Public, value uint64, refundSequence uint32) (*fakeNode, error) {
	secret := keys.GeneratePrivateKey()
	verifyingKey := userKey.Add(secret.Public())
	script, err := common.P2TRScriptFromPubKey(verifyingKey)
	if err != nil {
		return nil, err
	}
	funding := randomOutPoint()
	nodeTx := bitcointransaction.CreateRootTx(&funding, wire.NewTxOut(int64(value), script))
	refundTx, err := bitcointransaction.CreateRefundTx(refundSequence, &wire.OutPoint{Hash: nodeTx.TxHash(), Index: 0}, int64(value), userKey)
	if err != nil {
		return nil, err
	}
	rawNodeTx, err := common.SerializeTx(nodeTx)
	if err != nil {
		return nil, err
	}
	rawRefundTx, err := common.SerializeTx(refundTx)
	if err != nil {
		return nil, err
	}
	n := &fakeNode{
		node: &pb.TreeNode{
			Id:                     id,
			TreeId:                 uuid.NewString(),
			Value:                  value,
			NodeTx:                 rawNodeTx,
			RefundTx:               rawRefundTx,
			VerifyingPublicKey:     verifyingKey.Serialize(),
			OwnerIdentityPublicKey: owner.Serialize(),
			Status:                 pb.TreeNodeStatusAvailable,
			Network:                f.protoNetwork(),
		},
		shares: f.split(secret.BigInt()),
	}
	f.nodes[id] = n
	return n, nil
}

// seedLeaf gives owner an available leaf signed by signingKey.
func (f *fakeFederation) seedLeaf(t testing.TB, owner keys.Public, id string, signingKey keys.Public, value uint64, refundSequence uint32) *pb.TreeNode {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.createLeafLocked(owner, id, signingKey, value, refundSequence)
	require.NoError(t, err)
	return cloneNode(n.node)
}

// seedChildLeaf gives owner a leaf under a split parent. The leaf's node tx
// spends the parent's output 0 with nodeSequence.
func (f *fakeFederation) seedChildLeaf(t testing.TB, owner keys.Public, id string, signingKey keys.Public, value uint64, nodeSequence, refundSequence uint32) *pb.TreeNode {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	parent, err := f.createLeafLocked(owner, uuid.NewString(), signingKey, value, refundSequence)
	require.NoError(t, err)
	parent.node.Status = pb.TreeNodeStatusSplitted

	child, err := f.createLeafLocked(owner, id, signingKey, value, refundSequence)
	require.NoError(t, err)
	parentTx, err := common.TxFromRawTxBytes(parent.node.NodeTx)
	require.NoError(t, err)
	childTx := bitcointransaction.CreateNodeTx(nodeSequence, &wire.OutPoint{Hash: parentTx.TxHash(), Index: 0}, parentTx.TxOut[0])
	refundTx, err := bitcointransaction.CreateRefundTx(refundSequence, &wire.OutPoint{Hash: childTx.TxHash(), Index: 0}, int64(value), signingKey)
	require.NoError(t, err)
	child.node.NodeTx, err = common.SerializeTx(childTx)
	require.NoError(t, err)
	child.node.RefundTx, err = common.SerializeTx(refundTx)
	require.NoError(t, err)
	child.node.ParentNodeId = &parent.node.Id
	child.node.TreeId = parent.node.TreeId
	return cloneNode(child.node)
}

func (f *fakeFederation) node(id string) *pb.TreeNode {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return nil
	}
	return cloneNode(n.node)
}

func (f *fakeFederation) transfer(id string) *pb.Transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transfers[id]
	if !ok {
		return nil
	}
	return cloneTransfer(t.transfer)
}

// settleTransferLocked hands a transfer's leaves to its receiver, as if the
// receiver had claimed it.
func (f *fakeFederation) settleTransferLocked(t *fakeTransfer) {
	t.transfer.Status = pb.TransferStatusCompleted
	for _, leaf := range t.transfer.Leaves {
		if n, ok := f.nodes[leaf.Leaf.Id]; ok {
			n.node.OwnerIdentityPublicKey = t.transfer.ReceiverIdentityPublicKey
			n.node.Status = pb.TreeNodeStatusAvailable
		}
	}
}

// validateShareTweak checks one operator's share of a key tweak and returns it.
func (f *fakeFederation) validateShareTweak(operator *so.SigningOperator, share *pb.SecretShare, pubkeyShares map[string][]byte) (*big.Int, error) {
	if share == nil {
		return nil, status.Error(codes.InvalidArgument, "missing secret share tweak")
	}
	value := new(big.Int).SetBytes(share.SecretShare)
	err := secretsharing.ValidateShare(&secretsharing.VerifiableSecretShare{
		SecretShare: secretsharing.SecretShare{
			FieldModulus: curveOrder(),
			Threshold:    f.registry.Threshold(),
			Index:        operator.ShareIndex(),
			Share:        value,
		},
		Proofs: share.Proofs,
	})
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid share tweak: %v", err)
	}
	sharePrivKey, err := keys.PrivateKeyFromBigInt(value)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid share tweak: %v", err)
	}
	if !bytes.Equal(pubkeyShares[operator.Identifier], sharePrivKey.Public().Serialize()) {
		return nil, status.Error(codes.InvalidArgument, "pubkey share tweak does not match the secret share")
	}
	return value, nil
}

func addShare(shares map[string]*big.Int, identifier string, tweak *big.Int) {
	sum := new(big.Int).Add(shares[identifier], tweak)
	shares[identifier] = sum.Mod(sum, curveOrder())
}

type fakeOperator struct {
	fed        *fakeFederation
	identifier string
}

func (o *fakeOperator) operator() *so.SigningOperator {
	operator, _ := o.fed.registry.Operator(o.identifier)
	return operator
}

func (o *fakeOperator) GenerateDepositAddress(_ context.Context, in *pb.GenerateDepositAddressRequest, _ ...grpc.CallOption) (*pb.GenerateDepositAddressResponse, error) {
	f := o.fed
	if err := f.enter("GenerateDepositAddress", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	userKey, err := keys.ParsePublicKey(in.SigningPublicKey)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid signing public key: %v", err)
	}
	static := in.IsStatic != nil && *in.IsStatic
	if static {
		for _, a := range f.addresses {
			if a.static && bytes.Equal(a.identity, in.IdentityPublicKey) && bytes.Equal(a.result.UserSigningPublicKey, in.SigningPublicKey) {
				return &pb.GenerateDepositAddressResponse{DepositAddress: f.depositAddressLocked(a)}, nil
			}
		}
	}
	secret := keys.GeneratePrivateKey()
	verifyingKey := userKey.Add(secret.Public())
	address, err := common.P2TRAddressFromPublicKey(verifyingKey, f.network)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	a := &fakeAddress{
		result: &pb.DepositAddressQueryResult{
			DepositAddress:       address,
			UserSigningPublicKey: in.SigningPublicKey,
			VerifyingPublicKey:   verifyingKey.Serialize(),
			LeafId:               in.LeafId,
		},
		identity: in.IdentityPublicKey,
		static:   static,
		shares:   f.split(secret.BigInt()),
	}
	f.addresses = append(f.addresses, a)
	return &pb.GenerateDepositAddressResponse{DepositAddress: f.depositAddressLocked(a)}, nil
}

func (f *fakeFederation) depositAddressLocked(a *fakeAddress) *pb.Address {
	hash := sha256.Sum256([]byte(a.result.DepositAddress))
	signatures := make(map[string][]byte, len(f.identityKeys))
	for identifier, key := range f.identityKeys {
		signatures[identifier] = key.SignECDSA(hash[:])
	}
	return &pb.Address{
		Address:      a.result.DepositAddress,
		VerifyingKey: a.result.VerifyingPublicKey,
		DepositAddressProof: &pb.DepositAddressProof{
			AddressSignatures:          signatures,
			ProofOfPossessionSignature: []byte("pop"),
		},
		IsStatic: a.static,
	}
}

func (o *fakeOperator) QueryUnusedDepositAddresses(_ context.Context, in *pb.QueryUnusedDepositAddressesRequest, _ ...grpc.CallOption) (*pb.QueryUnusedDepositAddressesResponse, error) {
	f := o.fed
	if err := f.enter("QueryUnusedDepositAddresses", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var matching []*pb.DepositAddressQueryResult
	for _, a := range f.addresses {
		if !a.used && bytes.Equal(a.identity, in.IdentityPublicKey) {
			result := *a.result
			matching = append(matching, &result)
		}
	}
	page, next := paginate(matching, in.Offset, in.Limit)
	return &pb.QueryUnusedDepositAddressesResponse{DepositAddresses: page, Offset: next}, nil
}

// paginate returns one page of items and the offset of the next page, -1
// after the last one.
func paginate[T any](items []T, offset, limit int64) ([]T, int64) {
	if offset < 0 || offset >= int64(len(items)) {
		return nil, -1
	}
	end := int64(len(items))
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	if end == int64(len(items)) {
		return items[offset:end], -1
	}
	return items[offset:end], end
}

func (o *fakeOperator) StartTreeCreation(_ context.Context, in *pb.StartTreeCreationRequest, _ ...grpc.CallOption) (*pb.StartTreeCreationResponse, error) {
	f := o.fed
	if err := f.enter("StartTreeCreation", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	depositTx, err := common.TxFromRawTxBytes(in.OnChainUtxo.GetRawTx())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid deposit tx: %v", err)
	}
	if int(in.OnChainUtxo.Vout) >= len(depositTx.TxOut) {
		return nil, status.Error(codes.InvalidArgument, "deposit output out of range")
	}
	depositOut := depositTx.TxOut[in.OnChainUtxo.Vout]
	address, err := common.P2TRAddressFromPkScript(depositOut.PkScript, f.network)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "deposit output is not taproot: %v", err)
	}
	var match *fakeAddress
	for _, a := range f.addresses {
		if a.result.DepositAddress == *address && !a.used && bytes.Equal(a.identity, in.IdentityPublicKey) {
			match = a
		}
	}
	if match == nil {
		return nil, status.Errorf(codes.NotFound, "no unused deposit address %s", *address)
	}
	if !bytes.Equal(in.RootTxSigningJob.GetSigningPublicKey(), match.result.UserSigningPublicKey) {
		return nil, status.Error(codes.InvalidArgument, "root signing key does not match the deposit address")
	}
	rootTx, err := common.TxFromRawTxBytes(in.RootTxSigningJob.RawTx)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid root tx: %v", err)
	}
	if rootTx.TxIn[0].PreviousOutPoint != (wire.OutPoint{Hash: depositTx.TxHash(), Index: in.OnChainUtxo.Vout}) {
		return nil, status.Error(codes.InvalidArgument, "root tx does not spend the deposit")
	}

	id := uuid.NewString()
	if match.result.LeafId != nil {
		id = *match.result.LeafId
	}
	if _, exists := f.nodes[id]; exists {
		return nil, status.Errorf(codes.AlreadyExists, "node %s already exists", id)
	}
	f.nodes[id] = &fakeNode{
		node: &pb.TreeNode{
			Id:                     id,
			TreeId:                 uuid.NewString(),
			Value:                  uint64(depositOut.Value),
			NodeTx:                 in.RootTxSigningJob.RawTx,
			RefundTx:               in.RefundTxSigningJob.GetRawTx(),
			Vout:                   in.OnChainUtxo.Vout,
			VerifyingPublicKey:     match.result.VerifyingPublicKey,
			OwnerIdentityPublicKey: in.IdentityPublicKey,
			SigningKeyshare:        &pb.SigningKeyshare{OwnerIdentifiers: f.identifiers(), Threshold: uint32(f.registry.Threshold())},
			Status:                 pb.TreeNodeStatusCreating,
			Network:                f.protoNetwork(),
		},
		shares: match.shares,
	}
	if !match.static {
		match.used = true
	}
	return &pb.StartTreeCreationResponse{
		TreeId: f.nodes[id].node.TreeId,
		RootNodeSignatureShares: &pb.NodeSignatureShares{
			NodeId:                id,
			NodeTxSigningResult:   f.signingResult(),
			RefundTxSigningResult: f.signingResult(),
			VerifyingKey:          match.result.VerifyingPublicKey,
		},
	}, nil
}

func (o *fakeOperator) CreateTree(_ context.Context, in *pb.CreateTreeRequest, _ ...grpc.CallOption) (*pb.CreateTreeResponse, error) {
	f := o.fed
	if err := f.enter("CreateTree", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	parent, ok := f.nodes[in.ParentNodeOutput.GetNodeId()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "node %s not found", in.ParentNodeOutput.GetNodeId())
	}
	if parent.node.Status != pb.TreeNodeStatusAvailable || !bytes.Equal(parent.node.OwnerIdentityPublicKey, in.UserIdentityPublicKey) {
		return nil, status.Errorf(codes.FailedPrecondition, "node %s cannot be split", parent.node.Id)
	}
	if err := f.checkSigningKey(parent, in.Node.NodeTxSigningJob.GetSigningPublicKey()); err != nil {
		return nil, err
	}
	parentTx, err := common.TxFromRawTxBytes(parent.node.NodeTx)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	splitTx, err := common.TxFromRawTxBytes(in.Node.NodeTxSigningJob.RawTx)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid split tx: %v", err)
	}
	if splitTx.TxIn[0].PreviousOutPoint != (wire.OutPoint{Hash: parentTx.TxHash(), Index: in.ParentNodeOutput.Vout}) {
		return nil, status.Error(codes.InvalidArgument, "split tx does not spend the parent output")
	}
	if len(splitTx.TxOut) < len(in.Node.Children) {
		return nil, status.Error(codes.InvalidArgument, "split tx has fewer outputs than children")
	}

	internal := &fakeNode{
		node: &pb.TreeNode{
			Id:                     uuid.NewString(),
			TreeId:                 parent.node.TreeId,
			Value:                  parent.node.Value,
			ParentNodeId:           &parent.node.Id,
			NodeTx:                 in.Node.NodeTxSigningJob.RawTx,
			VerifyingPublicKey:     parent.node.VerifyingPublicKey,
			OwnerIdentityPublicKey: parent.node.OwnerIdentityPublicKey,
			Status:                 pb.TreeNodeStatusSplitted,
			Network:                parent.node.Network,
		},
		shares:      parent.shares,
		splitParent: parent.node.Id,
	}
	response := &pb.CreationResponseNode{
		NodeId:              internal.node.Id,
		NodeTxSigningResult: f.signingResult(),
	}
	children := make([]*fakeNode, 0, len(in.Node.Children))
	for i, child := range in.Node.Children {
		var match *fakeAddress
		for _, a := range f.addresses {
			if !a.used && a.result.LeafId != nil && bytes.Equal(a.result.UserSigningPublicKey, child.NodeTxSigningJob.GetSigningPublicKey()) {
				match = a
			}
		}
		if match == nil {
			return nil, status.Errorf(codes.FailedPrecondition, "child %d has no reserved deposit address", i)
		}
		verifyingKey, err := keys.ParsePublicKey(match.result.VerifyingPublicKey)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		script, err := common.P2TRScriptFromPubKey(verifyingKey)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		if !bytes.Equal(splitTx.TxOut[i].PkScript, script) {
			return nil, status.Errorf(codes.InvalidArgument, "split output %d does not pay child %d", i, i)
		}
		children = append(children, &fakeNode{
			node: &pb.TreeNode{
				Id:                     *match.result.LeafId,
				TreeId:                 parent.node.TreeId,
				Value:                  uint64(splitTx.TxOut[i].Value),
				ParentNodeId:           &internal.node.Id,
				NodeTx:                 child.NodeTxSigningJob.RawTx,
				RefundTx:               child.RefundTxSigningJob.GetRawTx(),
				Vout:                   uint32(i),
				VerifyingPublicKey:     match.result.VerifyingPublicKey,
				OwnerIdentityPublicKey: parent.node.OwnerIdentityPublicKey,
				Status:                 pb.TreeNodeStatusCreating,
				Network:                parent.node.Network,
			},
			shares: match.shares,
		})
		match.used = true
		response.Children = append(response.Children, &pb.CreationResponseNode{
			NodeId:                *match.result.LeafId,
			NodeTxSigningResult:   f.signingResult(),
			RefundTxSigningResult: f.signingResult(),
		})
	}
	f.nodes[internal.node.Id] = internal
	for _, child := range children {
		f.nodes[child.node.Id] = child
	}
	return &pb.CreateTreeResponse{Node: response}, nil
}

func (o *fakeOperator) QueryNodes(_ context.Context, in *pb.QueryNodesRequest, _ ...grpc.CallOption) (*pb.QueryNodesResponse, error) {
	f := o.fed
	if err := f.enter("QueryNodes", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	nodes := make(map[string]*pb.TreeNode)
	if len(in.NodeIds) > 0 {
		for _, id := range in.NodeIds {
			if n, ok := f.nodes[id]; ok {
				nodes[id] = cloneNode(n.node)
			}
		}
		return &pb.QueryNodesResponse{Nodes: nodes}, nil
	}
	var ids []string
	for id, n := range f.nodes {
		if bytes.Equal(n.node.OwnerIdentityPublicKey, in.OwnerIdentityPublicKey) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	page, next := paginate(ids, in.Offset, in.Limit)
	for _, id := range page {
		nodes[id] = cloneNode(f.nodes[id].node)
	}
	if next < 0 {
		next = in.Offset
	}
	return &pb.QueryNodesResponse{Nodes: nodes, Offset: next}, nil
}

func (o *fakeOperator) StartSendTransfer(_ context.Context, in *pb.StartTransferRequest, _ ...grpc.CallOption) (*pb.StartTransferResponse, error) {
	if err := o.fed.enter("StartSendTransfer", o.identifier); err != nil {
		return nil, err
	}
	transfer, results, err := o.fed.startTransfer(in, pb.TransferTypeTransfer)
	if err != nil {
		return nil, err
	}
	return &pb.StartTransferResponse{Transfer: transfer, SigningResults: results}, nil
}

func (o *fakeOperator) StartLeafSwap(_ context.Context, in *pb.StartTransferRequest, _ ...grpc.CallOption) (*pb.StartTransferResponse, error) {
	if err := o.fed.enter("StartLeafSwap", o.identifier); err != nil {
		return nil, err
	}
	transfer, results, err := o.fed.startTransfer(in, pb.TransferTypeSwap)
	if err != nil {
		return nil, err
	}
	return &pb.StartTransferResponse{Transfer: transfer, SigningResults: results}, nil
}

func (o *fakeOperator) CounterLeafSwap(_ context.Context, in *pb.CounterLeafSwapRequest, _ ...grpc.CallOption) (*pb.CounterLeafSwapResponse, error) {
	if err := o.fed.enter("CounterLeafSwap", o.identifier); err != nil {
		return nil, err
	}
	if len(in.AdaptorPublicKey) == 0 {
		return nil, status.Error(codes.InvalidArgument, "missing adaptor public key")
	}
	transfer, results, err := o.fed.startTransfer(in.Transfer, pb.TransferTypeCounterSwap)
	if err != nil {
		return nil, err
	}
	return &pb.CounterLeafSwapResponse{Transfer: transfer, SigningResults: results}, nil
}

func (f *fakeFederation) startTransfer(in *pb.StartTransferRequest, transferType pb.TransferType) (*pb.Transfer, []*pb.LeafRefundTxSigningResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.transfers[in.TransferId]; exists {
		return nil, nil, status.Errorf(codes.AlreadyExists, "transfer %s already exists", in.TransferId)
	}
	if len(in.LeavesToSend) == 0 {
		return nil, nil, status.Error(codes.InvalidArgument, "no leaves to send")
	}
	transfer := &pb.Transfer{
		Id:                        in.TransferId,
		SenderIdentityPublicKey:   in.OwnerIdentityPublicKey,
		ReceiverIdentityPublicKey: in.ReceiverIdentityPublicKey,
		Status:                    pb.TransferStatusSenderInitiated,
		ExpiryTime:                in.ExpiryTime,
		Type:                      transferType,
	}
	results := make([]*pb.LeafRefundTxSigningResult, 0, len(in.LeavesToSend))
	for _, job := range in.LeavesToSend {
		n, ok := f.nodes[job.LeafId]
		if !ok {
			return nil, nil, status.Errorf(codes.NotFound, "leaf %s not found", job.LeafId)
		}
		if n.node.Status != pb.TreeNodeStatusAvailable || !bytes.Equal(n.node.OwnerIdentityPublicKey, in.OwnerIdentityPublicKey) {
			return nil, nil, status.Errorf(codes.FailedPrecondition, "leaf %s is not available to the sender", job.LeafId)
		}
		if err := f.checkSigningKey(n, job.RefundTxSigningJob.GetSigningPublicKey()); err != nil {
			return nil, nil, err
		}
		if err := checkRefund(n.node, job.RefundTxSigningJob.GetRawTx()); err != nil {
			return nil, nil, err
		}
		transfer.TotalValue += n.node.Value
		transfer.Leaves = append(transfer.Leaves, &pb.TransferLeaf{
			Leaf:                 cloneNode(n.node),
			IntermediateRefundTx: job.RefundTxSigningJob.RawTx,
		})
		results = append(results, &pb.LeafRefundTxSigningResult{
			LeafId:                job.LeafId,
			RefundTxSigningResult: f.signingResult(),
			VerifyingKey:          n.node.VerifyingPublicKey,
		})
	}
	transfer.TotalValue += f.overstatedValue
	for _, job := range in.LeavesToSend {
		f.nodes[job.LeafId].node.Status = pb.TreeNodeStatusTransferLocked
	}
	f.transfers[transfer.Id] = &fakeTransfer{
		transfer:        transfer,
		senderTweaked:   make(map[string]bool),
		receiverTweaked: make(map[string]bool),
		finalized:       make(map[string]bool),
	}
	f.transferOrder = append(f.transferOrder, transfer.Id)
	return cloneTransfer(transfer), results, nil
}

func (o *fakeOperator) CompleteSendTransfer(_ context.Context, in *pb.CompleteSendTransferRequest, _ ...grpc.CallOption) (*pb.CompleteSendTransferResponse, error) {
	f := o.fed
	if err := f.enter("CompleteSendTransfer", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.transfers[in.TransferId]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "transfer %s not found", in.TransferId)
	}
	if !bytes.Equal(t.transfer.SenderIdentityPublicKey, in.OwnerIdentityPublicKey) {
		return nil, status.Error(codes.PermissionDenied, "not the sender")
	}
	if !t.senderTweaked[o.identifier] {
		switch t.transfer.Status {
		case pb.TransferStatusSenderInitiated, pb.TransferStatusSenderKeyTweakPending:
		default:
			return nil, status.Errorf(codes.FailedPrecondition, "transfer %s is %s", t.transfer.Id, t.transfer.Status)
		}
		if err := f.applySenderTweaksLocked(o.operator(), t, in.LeavesToSend); err != nil {
			return nil, err
		}
	}
	response := cloneTransfer(t.transfer)
	response.Status = pb.TransferStatusSenderKeyTweaked
	return &pb.CompleteSendTransferResponse{Transfer: response}, nil
}

func (f *fakeFederation) applySenderTweaksLocked(operator *so.SigningOperator, t *fakeTransfer, tweaks []*pb.SendLeafKeyTweak) error {
	if len(tweaks) != len(t.transfer.Leaves) {
		return status.Errorf(codes.InvalidArgument, "expected %d leaf tweaks, got %d", len(t.transfer.Leaves), len(tweaks))
	}
	sender, err := keys.ParsePublicKey(t.transfer.SenderIdentityPublicKey)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	values := make(map[string]*big.Int, len(tweaks))
	for _, tweak := range tweaks {
		if _, ok := f.nodes[tweak.LeafId]; !ok || transferLeaf(t.transfer, tweak.LeafId) == nil {
			return status.Errorf(codes.InvalidArgument, "leaf %s is not part of transfer %s", tweak.LeafId, t.transfer.Id)
		}
		value, err := f.validateShareTweak(operator, tweak.SecretShareTweak, tweak.PubkeySharesTweak)
		if err != nil {
			return err
		}
		if err := sender.VerifyECDSA(tweak.Signature, transferLeafPayloadHash(tweak.LeafId, t.transfer.Id, tweak.SecretCipher)); err != nil {
			return status.Errorf(codes.PermissionDenied, "bad sender signature for leaf %s: %v", tweak.LeafId, err)
		}
		if len(tweak.RefundSignature) == 0 {
			return status.Errorf(codes.InvalidArgument, "missing refund signature for leaf %s", tweak.LeafId)
		}
		values[tweak.LeafId] = value
	}
	for _, tweak := range tweaks {
		addShare(f.nodes[tweak.LeafId].shares, operator.Identifier, values[tweak.LeafId])
		leaf := transferLeaf(t.transfer, tweak.LeafId)
		leaf.SecretCipher = tweak.SecretCipher
		leaf.Signature = tweak.Signature
	}
	t.senderTweaked[operator.Identifier] = true
	if len(t.senderTweaked) < f.registry.Len() {
		t.transfer.Status = pb.TransferStatusSenderKeyTweakPending
		return nil
	}
	t.transfer.Status = pb.TransferStatusSenderKeyTweaked
	for _, leaf := range t.transfer.Leaves {
		n := f.nodes[leaf.Leaf.Id]
		n.node.RefundTx = leaf.IntermediateRefundTx
		leaf.Leaf = cloneNode(n.node)
	}
	return nil
}

func transferLeaf(transfer *pb.Transfer, leafID string) *pb.TransferLeaf {
	for _, leaf := range transfer.Leaves {
		if leaf.Leaf.Id == leafID {
			return leaf
		}
	}
	return nil
}

func (o *fakeOperator) CancelSendTransfer(_ context.Context, in *pb.CancelSendTransferRequest, _ ...grpc.CallOption) (*pb.CancelSendTransferResponse, error) {
	f := o.fed
	if err := f.enter("CancelSendTransfer", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.transfers[in.TransferId]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "transfer %s not found", in.TransferId)
	}
	if !bytes.Equal(t.transfer.SenderIdentityPublicKey, in.SenderIdentityPublicKey) {
		return nil, status.Error(codes.PermissionDenied, "not the sender")
	}
	if t.transfer.Status != pb.TransferStatusSenderInitiated || len(t.senderTweaked) > 0 {
		return nil, status.Errorf(codes.FailedPrecondition, "transfer %s is %s", t.transfer.Id, t.transfer.Status)
	}
	t.transfer.Status = pb.TransferStatusReturned
	for _, leaf := range t.transfer.Leaves {
		f.nodes[leaf.Leaf.Id].node.Status = pb.TreeNodeStatusAvailable
	}
	return &pb.CancelSendTransferResponse{Transfer: cloneTransfer(t.transfer)}, nil
}

func (o *fakeOperator) QueryPendingTransfers(_ context.Context, in *pb.TransferFilter, _ ...grpc.CallOption) (*pb.QueryTransfersResponse, error) {
	f := o.fed
	if err := f.enter("QueryPendingTransfers", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var transfers []*pb.Transfer
	for _, id := range f.transferOrder {
		transfer := f.transfers[id].transfer
		if len(in.TransferIds) > 0 && !slices.Contains(in.TransferIds, id) {
			continue
		}
		switch {
		case len(in.ReceiverIdentityPublicKey) > 0:
			if bytes.Equal(transfer.ReceiverIdentityPublicKey, in.ReceiverIdentityPublicKey) && claimable(transfer.Status) {
				transfers = append(transfers, cloneTransfer(transfer))
			}
		case len(in.SenderIdentityPublicKey) > 0:
			if bytes.Equal(transfer.SenderIdentityPublicKey, in.SenderIdentityPublicKey) &&
				(transfer.Status == pb.TransferStatusSenderInitiated || transfer.Status == pb.TransferStatusSenderKeyTweakPending) {
				transfers = append(transfers, cloneTransfer(transfer))
			}
		}
	}
	return &pb.QueryTransfersResponse{Transfers: transfers}, nil
}

func (o *fakeOperator) QueryAllTransfers(_ context.Context, in *pb.TransferFilter, _ ...grpc.CallOption) (*pb.QueryTransfersResponse, error) {
	f := o.fed
	if err := f.enter("QueryAllTransfers", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var transfers []*pb.Transfer
	for _, id := range f.transferOrder {
		transfer := f.transfers[id].transfer
		if bytes.Equal(transfer.SenderIdentityPublicKey, in.ParticipantIdentityPublicKey) || bytes.Equal(transfer.ReceiverIdentityPublicKey, in.ParticipantIdentityPublicKey) {
			transfers = append(transfers, cloneTransfer(transfer))
		}
	}
	page, next := paginate(transfers, in.Offset, in.Limit)
	return &pb.QueryTransfersResponse{Transfers: page, Offset: next}, nil
}

func (o *fakeOperator) ClaimTransferTweakKeys(_ context.Context, in *pb.ClaimTransferTweakKeysRequest, _ ...grpc.CallOption) (*pb.Empty, error) {
	f := o.fed
	if err := f.enter("ClaimTransferTweakKeys", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.transfers[in.TransferId]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "transfer %s not found", in.TransferId)
	}
	if !bytes.Equal(t.transfer.ReceiverIdentityPublicKey, in.OwnerIdentityPublicKey) {
		return nil, status.Error(codes.PermissionDenied, "not the receiver")
	}
	if t.receiverTweaked[o.identifier] {
		return &pb.Empty{}, nil
	}
	if t.transfer.Status != pb.TransferStatusSenderKeyTweaked && t.transfer.Status != pb.TransferStatusReceiverKeyTweaked {
		return nil, status.Errorf(codes.FailedPrecondition, "transfer %s is %s", t.transfer.Id, t.transfer.Status)
	}
	if len(in.LeavesToReceive) != len(t.transfer.Leaves) {
		return nil, status.Errorf(codes.InvalidArgument, "expected %d leaf tweaks, got %d", len(t.transfer.Leaves), len(in.LeavesToReceive))
	}
	operator := o.operator()
	values := make(map[string]*big.Int, len(in.LeavesToReceive))
	for _, tweak := range in.LeavesToReceive {
		if transferLeaf(t.transfer, tweak.LeafId) == nil {
			return nil, status.Errorf(codes.InvalidArgument, "leaf %s is not part of transfer %s", tweak.LeafId, t.transfer.Id)
		}
		value, err := f.validateShareTweak(operator, tweak.SecretShareTweak, tweak.PubkeySharesTweak)
		if err != nil {
			return nil, err
		}
		values[tweak.LeafId] = value
	}
	for leafID, value := range values {
		addShare(f.nodes[leafID].shares, o.identifier, value)
	}
	t.receiverTweaked[o.identifier] = true
	if len(t.receiverTweaked) == f.registry.Len() {
		t.transfer.Status = pb.TransferStatusReceiverKeyTweaked
	}
	return &pb.Empty{}, nil
}

func (o *fakeOperator) ClaimTransferSignRefunds(_ context.Context, in *pb.ClaimTransferSignRefundsRequest, _ ...grpc.CallOption) (*pb.ClaimTransferSignRefundsResponse, error) {
	f := o.fed
	if err := f.enter("ClaimTransferSignRefunds", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.transfers[in.TransferId]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "transfer %s not found", in.TransferId)
	}
	if !bytes.Equal(t.transfer.ReceiverIdentityPublicKey, in.OwnerIdentityPublicKey) {
		return nil, status.Error(codes.PermissionDenied, "not the receiver")
	}
	if t.transfer.Status != pb.TransferStatusReceiverKeyTweaked && t.transfer.Status != pb.TransferStatusReceiverRefundSigned {
		return nil, status.Errorf(codes.FailedPrecondition, "transfer %s is %s", t.transfer.Id, t.transfer.Status)
	}
	results := make([]*pb.LeafRefundTxSigningResult, 0, len(in.SigningJobs))
	for _, job := range in.SigningJobs {
		n, ok := f.nodes[job.LeafId]
		if !ok || transferLeaf(t.transfer, job.LeafId) == nil {
			return nil, status.Errorf(codes.InvalidArgument, "leaf %s is not part of transfer %s", job.LeafId, t.transfer.Id)
		}
		if err := f.checkSigningKey(n, job.RefundTxSigningJob.GetSigningPublicKey()); err != nil {
			return nil, err
		}
		if err := checkRefund(n.node, job.RefundTxSigningJob.GetRawTx()); err != nil {
			return nil, err
		}
		n.pendingRefund = job.RefundTxSigningJob.RawTx
		results = append(results, &pb.LeafRefundTxSigningResult{
			LeafId:                job.LeafId,
			RefundTxSigningResult: f.signingResult(),
			VerifyingKey:          n.node.VerifyingPublicKey,
		})
	}
	t.transfer.Status = pb.TransferStatusReceiverRefundSigned
	return &pb.ClaimTransferSignRefundsResponse{SigningResults: results}, nil
}

func (o *fakeOperator) FinalizeNodeSignatures(_ context.Context, in *pb.FinalizeNodeSignaturesRequest, _ ...grpc.CallOption) (*pb.FinalizeNodeSignaturesResponse, error) {
	f := o.fed
	if err := f.enter("FinalizeNodeSignatures", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	nodes := make([]*pb.TreeNode, 0, len(in.NodeSignatures))
	for _, signatures := range in.NodeSignatures {
		n, ok := f.nodes[signatures.NodeId]
		if !ok {
			return nil, status.Errorf(codes.NotFound, "node %s not found", signatures.NodeId)
		}
		if len(signatures.NodeTxSignature) > 0 && n.pendingNodeTx != nil {
			n.node.NodeTx, n.pendingNodeTx = n.pendingNodeTx, nil
		}
		if len(signatures.RefundTxSignature) > 0 && n.pendingRefund != nil {
			n.node.RefundTx, n.pendingRefund = n.pendingRefund, nil
		}
		switch in.Intent {
		case pb.SignatureIntentCreation:
			if n.node.Status == pb.TreeNodeStatusCreating {
				n.node.Status = pb.TreeNodeStatusAvailable
			}
			if parent, ok := f.nodes[n.splitParent]; ok {
				parent.node.Status = pb.TreeNodeStatusSplitted
			}
		case pb.SignatureIntentTransfer:
			f.finalizeTransferLeafLocked(n)
		}
		nodes = append(nodes, cloneNode(n.node))
	}
	return &pb.FinalizeNodeSignaturesResponse{Nodes: nodes}, nil
}

func (f *fakeFederation) finalizeTransferLeafLocked(n *fakeNode) {
	for _, id := range f.transferOrder {
		t := f.transfers[id]
		if t.transfer.Status != pb.TransferStatusReceiverRefundSigned || transferLeaf(t.transfer, n.node.Id) == nil {
			continue
		}
		n.node.OwnerIdentityPublicKey = t.transfer.ReceiverIdentityPublicKey
		n.node.Status = pb.TreeNodeStatusAvailable
		t.finalized[n.node.Id] = true
		if len(t.finalized) == len(t.transfer.Leaves) {
			t.transfer.Status = pb.TransferStatusCompleted
		}
		return
	}
}

func (o *fakeOperator) RefreshTimelock(_ context.Context, in *pb.RefreshTimelockRequest, _ ...grpc.CallOption) (*pb.RefreshTimelockResponse, error) {
	f := o.fed
	if err := f.enter("RefreshTimelock", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[in.LeafId]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "leaf %s not found", in.LeafId)
	}
	if !bytes.Equal(n.node.OwnerIdentityPublicKey, in.OwnerIdentityPublicKey) {
		return nil, status.Error(codes.PermissionDenied, "not the owner")
	}
	for _, job := range in.SigningJobs {
		if err := f.checkSigningKey(n, job.GetSigningPublicKey()); err != nil {
			return nil, err
		}
	}
	switch len(in.SigningJobs) {
	case 0:
		return nil, status.Error(codes.InvalidArgument, "no signing jobs")
	case 1:
		if err := checkRefund(n.node, in.SigningJobs[0].RawTx); err != nil {
			return nil, err
		}
		n.pendingRefund = in.SigningJobs[0].RawTx
	default:
		n.pendingNodeTx = in.SigningJobs[len(in.SigningJobs)-2].RawTx
		n.pendingRefund = in.SigningJobs[len(in.SigningJobs)-1].RawTx
		refundTx, err := common.TxFromRawTxBytes(n.pendingRefund)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid refund tx: %v", err)
		}
		if refundTx.TxIn[0].Sequence != spark.InitialSequence() {
			return nil, status.Error(codes.InvalidArgument, "refreshed refund must start at the initial timelock")
		}
	}
	results := make([]*pb.RefreshTimelockSigningResult, len(in.SigningJobs))
	for i := range in.SigningJobs {
		results[i] = &pb.RefreshTimelockSigningResult{SigningResult: f.signingResult(), VerifyingKey: n.node.VerifyingPublicKey}
	}
	return &pb.RefreshTimelockResponse{SigningResults: results}, nil
}

func (o *fakeOperator) ExtendLeaf(_ context.Context, in *pb.ExtendLeafRequest, _ ...grpc.CallOption) (*pb.ExtendLeafResponse, error) {
	f := o.fed
	if err := f.enter("ExtendLeaf", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[in.LeafId]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "leaf %s not found", in.LeafId)
	}
	if !bytes.Equal(n.node.OwnerIdentityPublicKey, in.OwnerIdentityPublicKey) {
		return nil, status.Error(codes.PermissionDenied, "not the owner")
	}
	if err := f.checkSigningKey(n, in.NodeTxSigningJob.GetSigningPublicKey()); err != nil {
		return nil, err
	}
	oldNodeTx, err := common.TxFromRawTxBytes(n.node.NodeTx)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	newNodeTx, err := common.TxFromRawTxBytes(in.NodeTxSigningJob.RawTx)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid node tx: %v", err)
	}
	if newNodeTx.TxIn[0].PreviousOutPoint != (wire.OutPoint{Hash: oldNodeTx.TxHash(), Index: 0}) {
		return nil, status.Error(codes.InvalidArgument, "extended node does not spend the old node output")
	}
	n.pendingNodeTx = in.NodeTxSigningJob.RawTx
	n.pendingRefund = in.RefundTxSigningJob.GetRawTx()
	return &pb.ExtendLeafResponse{
		LeafId:                in.LeafId,
		NodeTxSigningResult:   &pb.ExtendLeafSigningResult{SigningResult: f.signingResult(), VerifyingKey: n.node.VerifyingPublicKey},
		RefundTxSigningResult: &pb.ExtendLeafSigningResult{SigningResult: f.signingResult(), VerifyingKey: n.node.VerifyingPublicKey},
	}, nil
}

func tokenOutputKey(hash []byte, vout uint32) string {
	return fmt.Sprintf("%x:%d", hash, vout)
}

func frozenKey(owner, token []byte) string {
	return hex.EncodeToString(owner) + ":" + hex.EncodeToString(token)
}

func (o *fakeOperator) StartTokenTransaction(_ context.Context, in *pb.StartTokenTransactionRequest, _ ...grpc.CallOption) (*pb.StartTokenTransactionResponse, error) {
	f := o.fed
	if err := f.enter("StartTokenTransaction", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	tx := in.PartialTokenTransaction
	if tx == nil || len(tx.TokenOutputs) == 0 {
		return nil, status.Error(codes.InvalidArgument, "token transaction has no outputs")
	}
	if len(tx.SparkOperatorIdentityPublicKeys) != f.registry.Len() {
		return nil, status.Error(codes.InvalidArgument, "token transaction must list every operator")
	}
	partialHash, err := common.HashTokenTransaction(tx, true)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to hash token transaction: %v", err)
	}
	var signatures [][]byte
	if in.TokenTransactionSignatures != nil {
		signatures = in.TokenTransactionSignatures.OwnerSignatures
	}
	owners, err := f.tokenInputOwnersLocked(tx)
	if err != nil {
		return nil, err
	}
	if len(signatures) != len(owners) {
		return nil, status.Errorf(codes.InvalidArgument, "expected %d owner signatures, got %d", len(owners), len(signatures))
	}
	for i, owner := range owners {
		if err := common.ValidateOwnershipSignature(signatures[i], partialHash, owner); err != nil {
			return nil, status.Errorf(codes.PermissionDenied, "invalid signature for input %d: %v", i, err)
		}
	}
	if mint := tx.GetMintInput(); mint != nil {
		for _, output := range tx.TokenOutputs {
			if !bytes.Equal(output.TokenPublicKey, mint.IssuerPublicKey) {
				return nil, status.Error(codes.InvalidArgument, "mint outputs must be of the issuer's token")
			}
		}
	} else if err := f.checkTransferBalanceLocked(tx); err != nil {
		return nil, err
	}

	final := &pb.TokenTransaction{
		TokenInputs:                     tx.TokenInputs,
		SparkOperatorIdentityPublicKeys: tx.SparkOperatorIdentityPublicKeys,
		Network:                         tx.Network,
	}
	pending := &fakeTokenTransaction{status: pb.TokenTransactionStatusStarted, signedBy: make(map[string]bool)}
	for _, output := range tx.TokenOutputs {
		id := uuid.NewString()
		revocation := keys.GeneratePrivateKey()
		bond, locktime := fakeWithdrawBond, fakeLocktime
		final.TokenOutputs = append(final.TokenOutputs, &pb.TokenOutput{
			Id:                            &id,
			OwnerPublicKey:                output.OwnerPublicKey,
			RevocationCommitment:          revocation.Public().Serialize(),
			WithdrawBondSats:              &bond,
			WithdrawRelativeBlockLocktime: &locktime,
			TokenPublicKey:                output.TokenPublicKey,
			TokenAmount:                   output.TokenAmount,
		})
		pending.outputs = append(pending.outputs, &fakeTokenOutput{revocation: revocation, shares: f.split(revocation.BigInt())})
	}
	finalHash, err := common.HashTokenTransaction(final, false)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	for i, output := range pending.outputs {
		clone := *final.TokenOutputs[i]
		output.data = &pb.OutputWithPreviousTransactionData{
			Output:                  &clone,
			PreviousTransactionHash: finalHash,
			PreviousTransactionVout: uint32(i),
		}
	}
	pending.final = final
	pending.hash = finalHash
	f.tokenTxs[hex.EncodeToString(finalHash)] = pending
	f.tokenTxOrder = append(f.tokenTxOrder, hex.EncodeToString(finalHash))
	return &pb.StartTokenTransactionResponse{
		FinalTokenTransaction: final,
		KeyshareInfo: &pb.SigningKeyshare{
			OwnerIdentifiers: f.identifiers(),
			Threshold:        uint32(f.registry.Threshold()),
		},
	}, nil
}

// tokenInputOwnersLocked returns the key that must authorize each input,
// rejecting spent or frozen outputs.
func (f *fakeFederation) tokenInputOwnersLocked(tx *pb.TokenTransaction) ([]keys.Public, error) {
	if mint := tx.GetMintInput(); mint != nil {
		issuer, err := keys.ParsePublicKey(mint.IssuerPublicKey)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid issuer public key: %v", err)
		}
		return []keys.Public{issuer}, nil
	}
	transfer := tx.GetTransferInput()
	if transfer == nil {
		return nil, status.Error(codes.InvalidArgument, "token transaction has no inputs")
	}
	owners := make([]keys.Public, len(transfer.OutputsToSpend))
	for i, spend := range transfer.OutputsToSpend {
		output, ok := f.tokenOutputs[tokenOutputKey(spend.PrevTokenTransactionHash, spend.PrevTokenTransactionVout)]
		if !ok {
			return nil, status.Errorf(codes.NotFound, "input %d spends an unknown output", i)
		}
		if output.spent {
			return nil, status.Errorf(codes.FailedPrecondition, "input %d is already spent", i)
		}
		if f.frozen[frozenKey(output.data.Output.OwnerPublicKey, output.data.Output.TokenPublicKey)] {
			return nil, status.Errorf(codes.FailedPrecondition, "input %d is frozen", i)
		}
		owner, err := keys.ParsePublicKey(output.data.Output.OwnerPublicKey)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		owners[i] = owner
	}
	return owners, nil
}

func (f *fakeFederation) checkTransferBalanceLocked(tx *pb.TokenTransaction) error {
	in := uint128.New()
	for _, spend := range tx.GetTransferInput().OutputsToSpend {
		amount, err := common.TokenOutputAmount(f.tokenOutputs[tokenOutputKey(spend.PrevTokenTransactionHash, spend.PrevTokenTransactionVout)].data.Output)
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		if in, err = in.Add(amount); err != nil {
			return status.Error(codes.InvalidArgument, err.Error())
		}
	}
	out := uint128.New()
	for _, output := range tx.TokenOutputs {
		amount, err := common.TokenOutputAmount(output)
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "invalid output amount: %v", err)
		}
		if out, err = out.Add(amount); err != nil {
			return status.Error(codes.InvalidArgument, err.Error())
		}
	}
	if in.Cmp(out) != 0 {
		return status.Errorf(codes.InvalidArgument, "inputs hold %s, outputs %s", in, out)
	}
	return nil
}

func (o *fakeOperator) SignTokenTransaction(_ context.Context, in *pb.SignTokenTransactionRequest, _ ...grpc.CallOption) (*pb.SignTokenTransactionResponse, error) {
	f := o.fed
	if err := f.enter("SignTokenTransaction", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	finalHash, err := common.HashTokenTransaction(in.FinalTokenTransaction, false)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to hash token transaction: %v", err)
	}
	pending, ok := f.tokenTxs[hex.EncodeToString(finalHash)]
	if !ok {
		return nil, status.Error(codes.NotFound, "token transaction was not started")
	}
	owners, err := f.tokenInputOwnersLocked(pending.final)
	if err != nil {
		return nil, err
	}
	operator := o.operator()
	if len(in.OperatorSpecificSignatures) != len(owners) {
		return nil, status.Errorf(codes.InvalidArgument, "expected %d operator specific signatures, got %d", len(owners), len(in.OperatorSpecificSignatures))
	}
	for i, signature := range in.OperatorSpecificSignatures {
		payload := signature.Payload
		if payload == nil || !bytes.Equal(payload.FinalTokenTransactionHash, finalHash) || !bytes.Equal(payload.OperatorIdentityPublicKey, operator.IdentityPublicKey.Serialize()) {
			return nil, status.Errorf(codes.InvalidArgument, "signature %d is not for this operator and transaction", i)
		}
		if !bytes.Equal(signature.OwnerPublicKey, owners[i].Serialize()) {
			return nil, status.Errorf(codes.PermissionDenied, "signature %d is not from the input owner", i)
		}
		payloadHash, err := common.HashOperatorSpecificTokenTransactionSignablePayload(payload)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		if err := common.ValidateOwnershipSignature(signature.OwnerSignature, payloadHash, owners[i]); err != nil {
			return nil, status.Errorf(codes.PermissionDenied, "invalid signature %d: %v", i, err)
		}
	}

	pending.signedBy[o.identifier] = true
	response := &pb.SignTokenTransactionResponse{
		SparkOperatorSignature: f.identityKeys[o.identifier].SignECDSA(finalHash),
	}
	if transfer := pending.final.GetTransferInput(); transfer != nil {
		if !f.withheldShares[o.identifier] {
			for i, spend := range transfer.OutputsToSpend {
				output := f.tokenOutputs[tokenOutputKey(spend.PrevTokenTransactionHash, spend.PrevTokenTransactionVout)]
				keyshare := make([]byte, 32)
				output.shares[o.identifier].FillBytes(keyshare)
				response.RevocationKeyshares = append(response.RevocationKeyshares, &pb.KeyshareWithIndex{Index: uint32(i), Keyshare: keyshare})
			}
		}
		if pending.status == pb.TokenTransactionStatusStarted && len(pending.signedBy) == f.registry.Len() {
			pending.status = pb.TokenTransactionStatusSigned
		}
	} else if pending.status == pb.TokenTransactionStatusStarted && len(pending.signedBy) == f.registry.Len() {
		f.commitTokenTransactionLocked(pending)
	}
	return response, nil
}

func (f *fakeFederation) commitTokenTransactionLocked(pending *fakeTokenTransaction) {
	if transfer := pending.final.GetTransferInput(); transfer != nil {
		for _, spend := range transfer.OutputsToSpend {
			f.tokenOutputs[tokenOutputKey(spend.PrevTokenTransactionHash, spend.PrevTokenTransactionVout)].spent = true
		}
	}
	for i, output := range pending.outputs {
		key := tokenOutputKey(pending.hash, uint32(i))
		f.tokenOutputs[key] = output
		f.tokenOrder = append(f.tokenOrder, key)
	}
	pending.status = pb.TokenTransactionStatusFinalized
}

func (o *fakeOperator) FinalizeTokenTransaction(_ context.Context, in *pb.FinalizeTokenTransactionRequest, _ ...grpc.CallOption) (*pb.Empty, error) {
	f := o.fed
	if err := f.enter("FinalizeTokenTransaction", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	finalHash, err := common.HashTokenTransaction(in.FinalTokenTransaction, false)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to hash token transaction: %v", err)
	}
	pending, ok := f.tokenTxs[hex.EncodeToString(finalHash)]
	if !ok {
		return nil, status.Error(codes.NotFound, "token transaction was not started")
	}
	transfer := pending.final.GetTransferInput()
	if transfer == nil {
		return nil, status.Error(codes.InvalidArgument, "only transfers are finalized")
	}
	if pending.status == pb.TokenTransactionStatusFinalized {
		return &pb.Empty{}, nil
	}
	if pending.status != pb.TokenTransactionStatusSigned {
		return nil, status.Error(codes.FailedPrecondition, "token transaction is not signed by every operator")
	}
	if len(in.RevocationSecrets) != len(transfer.OutputsToSpend) {
		return nil, status.Errorf(codes.InvalidArgument, "expected %d revocation secrets, got %d", len(transfer.OutputsToSpend), len(in.RevocationSecrets))
	}
	for i, spend := range transfer.OutputsToSpend {
		secret, err := keys.ParsePrivateKey(in.RevocationSecrets[i])
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid revocation secret %d: %v", i, err)
		}
		output := f.tokenOutputs[tokenOutputKey(spend.PrevTokenTransactionHash, spend.PrevTokenTransactionVout)]
		if !secret.Equals(output.revocation) {
			return nil, status.Errorf(codes.InvalidArgument, "revocation secret %d does not match", i)
		}
	}
	f.commitTokenTransactionLocked(pending)
	return &pb.Empty{}, nil
}

func (o *fakeOperator) FreezeTokens(_ context.Context, in *pb.FreezeTokensRequest, _ ...grpc.CallOption) (*pb.FreezeTokensResponse, error) {
	f := o.fed
	if err := f.enter("FreezeTokens", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	payload := in.FreezeTokensPayload
	if payload == nil {
		return nil, status.Error(codes.InvalidArgument, "missing payload")
	}
	if !bytes.Equal(payload.OperatorIdentityPublicKey, o.operator().IdentityPublicKey.Serialize()) {
		return nil, status.Error(codes.InvalidArgument, "payload is for another operator")
	}
	tokenPublicKey, err := keys.ParsePublicKey(payload.TokenPublicKey)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid token public key: %v", err)
	}
	payloadHash, err := common.HashFreezeTokensPayload(payload)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := common.ValidateOwnershipSignature(in.IssuerSignature, payloadHash, tokenPublicKey); err != nil {
		return nil, status.Errorf(codes.PermissionDenied, "invalid issuer signature: %v", err)
	}
	f.frozen[frozenKey(payload.OwnerPublicKey, payload.TokenPublicKey)] = !payload.ShouldUnfreeze

	response := &pb.FreezeTokensResponse{}
	impacted := uint128.New()
	for _, key := range f.tokenOrder {
		output := f.tokenOutputs[key]
		if output.spent || !bytes.Equal(output.data.Output.OwnerPublicKey, payload.OwnerPublicKey) || !bytes.Equal(output.data.Output.TokenPublicKey, payload.TokenPublicKey) {
			continue
		}
		amount, err := common.TokenOutputAmount(output.data.Output)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		if impacted, err = impacted.Add(amount); err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		response.ImpactedOutputIds = append(response.ImpactedOutputIds, output.data.Output.GetId())
	}
	response.ImpactedTokenAmount = impacted.Bytes()
	return response, nil
}

func matchesAny(value []byte, filter [][]byte) bool {
	if len(filter) == 0 {
		return true
	}
	return slices.ContainsFunc(filter, func(candidate []byte) bool { return bytes.Equal(candidate, value) })
}

func (o *fakeOperator) QueryTokenOutputs(_ context.Context, in *pb.QueryTokenOutputsRequest, _ ...grpc.CallOption) (*pb.QueryTokenOutputsResponse, error) {
	f := o.fed
	if err := f.enter("QueryTokenOutputs", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	response := &pb.QueryTokenOutputsResponse{}
	for _, key := range f.tokenOrder {
		output := f.tokenOutputs[key]
		if output.spent || !matchesAny(output.data.Output.OwnerPublicKey, in.OwnerPublicKeys) || !matchesAny(output.data.Output.TokenPublicKey, in.TokenPublicKeys) {
			continue
		}
		clone := *output.data
		outputClone := *output.data.Output
		clone.Output = &outputClone
		response.OutputsWithPreviousTransactionData = append(response.OutputsWithPreviousTransactionData, &clone)
	}
	return response, nil
}

func (o *fakeOperator) QueryTokenTransactions(_ context.Context, in *pb.QueryTokenTransactionsRequest, _ ...grpc.CallOption) (*pb.QueryTokenTransactionsResponse, error) {
	f := o.fed
	if err := f.enter("QueryTokenTransactions", o.identifier); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var matching []*pb.TokenTransactionWithStatus
	for _, key := range f.tokenTxOrder {
		pending := f.tokenTxs[key]
		if !matchesAny(pending.hash, in.TokenTransactionHashes) {
			continue
		}
		matching = append(matching, &pb.TokenTransactionWithStatus{TokenTransaction: pending.final, Status: pending.status})
	}
	page, next := paginate(matching, in.Offset, in.Limit)
	return &pb.QueryTokenTransactionsResponse{TokenTransactionsWithStatus: page, Offset: next}, nil
}

// fakeFrostClient returns a share for every job and aggregates to a valid
// BIP-340 signature by fakeAggregatorKey.
type fakeFrostClient struct{}

func (fakeFrostClient) SignFrost(_ context.Context, in *pbfrost.SignFrostRequest, _ ...grpc.CallOption) (*pbfrost.SignFrostResponse, error) {
	results := make(map[string]*pbfrost.SigningResult, len(in.SigningJobs))
	for _, job := range in.SigningJobs {
		results[job.JobId] = &pbfrost.SigningResult{SignatureShare: []byte("user-share-" + job.JobId)}
	}
	return &pbfrost.SignFrostResponse{Results: results}, nil
}

func (fakeFrostClient) AggregateFrost(_ context.Context, in *pbfrost.AggregateFrostRequest, _ ...grpc.CallOption) (*pbfrost.AggregateFrostResponse, error) {
	signature, err := schnorr.Sign(fakeAggregatorKey.ToBTCEC(), in.Message)
	if err != nil {
		return nil, err
	}
	return &pbfrost.AggregateFrostResponse{Signature: signature.Serialize()}, nil
}

type testWalletOption func(*Config)

// newTestWallet builds a wallet with a fresh seed against fed.
func newTestWallet(t testing.TB, fed *fakeFederation, settlement SettlementService, options ...testWalletOption) *Wallet {
	t.Helper()
	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err)
	localSigner, err := signer.NewLocalSigner(seed, 0, common.NetworkParams(fed.network), fakeFrostClient{})
	require.NoError(t, err)

	config := DefaultConfig()
	for _, option := range options {
		option(&config)
	}
	w, err := New(&config, &Federation{
		Registry: fed.registry,
		Clients:  fed,
		Signer:   localSigner,
		Network:  fed.network,
	}, settlement, nil)
	require.NoError(t, err)
	return w
}

// fundWallet seeds leaves of the given values for w and syncs them.
func fundWallet(t testing.TB, fed *fakeFederation, w *Wallet, values ...uint64) []*pb.TreeNode {
	t.Helper()
	leaves := make([]*pb.TreeNode, 0, len(values))
	for _, value := range values {
		id := uuid.NewString()
		key, err := w.federation.Signer.LeafSigningKey(id)
		require.NoError(t, err)
		initial, err := spark.NextSequence(spark.InitialSequence())
		require.NoError(t, err)
		leaves = append(leaves, fed.seedLeaf(t, w.IdentityPublicKey(), id, key.Public(), value, initial))
	}
	require.NoError(t, w.SyncLeaves(t.Context()))
	return leaves
}

func withTransferExpiry(expiry time.Duration) testWalletOption {
	return func(c *Config) { c.TransferExpiry = expiry }
}
