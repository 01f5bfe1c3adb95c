package spark

type TreeNodeStatus string

const (
	TreeNodeStatusAvailable      TreeNodeStatus = "AVAILABLE"
	TreeNodeStatusFrozen         TreeNodeStatus = "FROZEN"
	TreeNodeStatusSpent          TreeNodeStatus = "SPENT"
	TreeNodeStatusTransferLocked TreeNodeStatus = "TRANSFER_LOCKED"
	TreeNodeStatusSplitted       TreeNodeStatus = "SPLITTED"
	TreeNodeStatusCreating       TreeNodeStatus = "CREATING"
)

type TreeNode struct {
	Id                     string           `protobuf:"bytes,1,opt,name=id,proto3"`
	TreeId                 string           `protobuf:"bytes,2,opt,name=tree_id,proto3"`
	Value                  uint64           `protobuf:"varint,3,opt,name=value,proto3"`
	ParentNodeId           *string          `protobuf:"bytes,4,opt,name=parent_node_id,proto3"`
	NodeTx                 []byte           `protobuf:"bytes,5,opt,name=node_tx,proto3"`
	RefundTx               []byte           `protobuf:"bytes,6,opt,name=refund_tx,proto3"`
	Vout                   uint32           `protobuf:"varint,7,opt,name=vout,proto3"`
	VerifyingPublicKey     []byte           `protobuf:"bytes,8,opt,name=verifying_public_key,proto3"`
	OwnerIdentityPublicKey []byte           `protobuf:"bytes,9,opt,name=owner_identity_public_key,proto3"`
	SigningKeyshare        *SigningKeyshare `protobuf:"bytes,10,opt,name=signing_keyshare,proto3"`
	Status                 TreeNodeStatus   `protobuf:"bytes,11,opt,name=status,proto3"`
	Network                Network          `protobuf:"varint,12,opt,name=network,proto3,enum=spark.Network"`
}

func (x *TreeNode) GetId() string {
	if x != nil {
		return x.Id
	}
	return ""
}

func (x *TreeNode) GetValue() uint64 {
	if x != nil {
		return x.Value
	}
	return 0
}

func (x *TreeNode) GetParentNodeId() string {
	if x != nil && x.ParentNodeId != nil {
		return *x.ParentNodeId
	}
	return ""
}

func (x *TreeNode) GetSigningKeyshare() *SigningKeyshare {
	if x != nil {
		return x.SigningKeyshare
	}
	return nil
}

type UTXO struct {
	RawTx   []byte  `protobuf:"bytes,1,opt,name=raw_tx,proto3"`
	Vout    uint32  `protobuf:"varint,2,opt,name=vout,proto3"`
	Network Network `protobuf:"varint,3,opt,name=network,proto3,enum=spark.Network"`
	Txid    []byte  `protobuf:"bytes,4,opt,name=txid,proto3"`
}

func (x *UTXO) GetRawTx() []byte {
	if x != nil {
		return x.RawTx
	}
	return nil
}

type DepositAddressProof struct {
	AddressSignatures          map[string][]byte `protobuf:"bytes,1,rep,name=address_signatures,proto3" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
	ProofOfPossessionSignature []byte            `protobuf:"bytes,2,opt,name=proof_of_possession_signature,proto3"`
}

type Address struct {
	Address             string               `protobuf:"bytes,1,opt,name=address,proto3"`
	VerifyingKey        []byte               `protobuf:"bytes,2,opt,name=verifying_key,proto3"`
	DepositAddressProof *DepositAddressProof `protobuf:"bytes,3,opt,name=deposit_address_proof,proto3"`
	IsStatic            bool                 `protobuf:"varint,4,opt,name=is_static,proto3"`
}

type GenerateDepositAddressRequest struct {
	SigningPublicKey  []byte  `protobuf:"bytes,1,opt,name=signing_public_key,proto3"`
	IdentityPublicKey []byte  `protobuf:"bytes,2,opt,name=identity_public_key,proto3"`
	Network           Network `protobuf:"varint,3,opt,name=network,proto3,enum=spark.Network"`
	LeafId            *string `protobuf:"bytes,4,opt,name=leaf_id,proto3"`
	IsStatic          *bool   `protobuf:"varint,5,opt,name=is_static,proto3"`
}

type GenerateDepositAddressResponse struct {
	DepositAddress *Address `protobuf:"bytes,1,opt,name=deposit_address,proto3"`
}

type StartTreeCreationRequest struct {
	IdentityPublicKey  []byte      `protobuf:"bytes,1,opt,name=identity_public_key,proto3"`
	OnChainUtxo        *UTXO       `protobuf:"bytes,2,opt,name=on_chain_utxo,proto3"`
	RootTxSigningJob   *SigningJob `protobuf:"bytes,3,opt,name=root_tx_signing_job,proto3"`
	RefundTxSigningJob *SigningJob `protobuf:"bytes,4,opt,name=refund_tx_signing_job,proto3"`
}

type NodeSignatureShares struct {
	NodeId                string         `protobuf:"bytes,1,opt,name=node_id,proto3"`
	NodeTxSigningResult   *SigningResult `protobuf:"bytes,2,opt,name=node_tx_signing_result,proto3"`
	RefundTxSigningResult *SigningResult `protobuf:"bytes,3,opt,name=refund_tx_signing_result,proto3"`
	VerifyingKey          []byte         `protobuf:"bytes,4,opt,name=verifying_key,proto3"`
}

type StartTreeCreationResponse struct {
	TreeId                  string               `protobuf:"bytes,1,opt,name=tree_id,proto3"`
	RootNodeSignatureShares *NodeSignatureShares `protobuf:"bytes,2,opt,name=root_node_signature_shares,proto3"`
}

type NodeOutput struct {
	NodeId string `protobuf:"bytes,1,opt,name=node_id,proto3"`
	Vout   uint32 `protobuf:"varint,2,opt,name=vout,proto3"`
}

func (x *NodeOutput) GetNodeId() string {
	if x != nil {
		return x.NodeId
	}
	return ""
}

// CreationNode describes one node of a tree being split off a parent output.
// Leaves carry a refund signing job; internal nodes carry children.
type CreationNode struct {
	NodeTxSigningJob   *SigningJob     `protobuf:"bytes,1,opt,name=node_tx_signing_job,proto3"`
	RefundTxSigningJob *SigningJob     `protobuf:"bytes,2,opt,name=refund_tx_signing_job,proto3"`
	Children           []*CreationNode `protobuf:"bytes,3,rep,name=children,proto3"`
}

type CreateTreeRequest struct {
	ParentNodeOutput      *NodeOutput   `protobuf:"bytes,1,opt,name=parent_node_output,proto3"`
	OnChainUtxo           *UTXO         `protobuf:"bytes,2,opt,name=on_chain_utxo,proto3"`
	Node                  *CreationNode `protobuf:"bytes,3,opt,name=node,proto3"`
	UserIdentityPublicKey []byte        `protobuf:"bytes,4,opt,name=user_identity_public_key,proto3"`
}

type CreationResponseNode struct {
	NodeId                string                  `protobuf:"bytes,1,opt,name=node_id,proto3"`
	NodeTxSigningResult   *SigningResult          `protobuf:"bytes,2,opt,name=node_tx_signing_result,proto3"`
	RefundTxSigningResult *SigningResult          `protobuf:"bytes,3,opt,name=refund_tx_signing_result,proto3"`
	Children              []*CreationResponseNode `protobuf:"bytes,4,rep,name=children,proto3"`
}

type CreateTreeResponse struct {
	Node *CreationResponseNode `protobuf:"bytes,1,opt,name=node,proto3"`
}

type QueryNodesRequest struct {
	OwnerIdentityPublicKey []byte   `protobuf:"bytes,1,opt,name=owner_identity_public_key,proto3"`
	NodeIds                []string `protobuf:"bytes,2,rep,name=node_ids,proto3"`
	IncludeParents         bool     `protobuf:"varint,3,opt,name=include_parents,proto3"`
	Network                Network  `protobuf:"varint,4,opt,name=network,proto3,enum=spark.Network"`
	Limit                  int64    `protobuf:"varint,5,opt,name=limit,proto3"`
	Offset                 int64    `protobuf:"varint,6,opt,name=offset,proto3"`
}

type QueryNodesResponse struct {
	Nodes  map[string]*TreeNode `protobuf:"bytes,1,rep,name=nodes,proto3" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
	Offset int64                `protobuf:"varint,2,opt,name=offset,proto3"`
}

type QueryUnusedDepositAddressesRequest struct {
	IdentityPublicKey []byte  `protobuf:"bytes,1,opt,name=identity_public_key,proto3"`
	Network           Network `protobuf:"varint,2,opt,name=network,proto3,enum=spark.Network"`
	Limit             int64   `protobuf:"varint,3,opt,name=limit,proto3"`
	Offset            int64   `protobuf:"varint,4,opt,name=offset,proto3"`
}

type DepositAddressQueryResult struct {
	DepositAddress       string  `protobuf:"bytes,1,opt,name=deposit_address,proto3"`
	UserSigningPublicKey []byte  `protobuf:"bytes,2,opt,name=user_signing_public_key,proto3"`
	VerifyingPublicKey   []byte  `protobuf:"bytes,3,opt,name=verifying_public_key,proto3"`
	LeafId               *string `protobuf:"bytes,4,opt,name=leaf_id,proto3"`
}

type QueryUnusedDepositAddressesResponse struct {
	DepositAddresses []*DepositAddressQueryResult `protobuf:"bytes,1,rep,name=deposit_addresses,proto3"`
	// Offset is -1 once the last page has been returned.
	Offset int64 `protobuf:"varint,2,opt,name=offset,proto3"`
}

type FinalizeNodeSignaturesRequest struct {
	Intent         SignatureIntent   `protobuf:"varint,1,opt,name=intent,proto3,enum=spark.SignatureIntent"`
	NodeSignatures []*NodeSignatures `protobuf:"bytes,2,rep,name=node_signatures,proto3"`
}

type FinalizeNodeSignaturesResponse struct {
	Nodes []*TreeNode `protobuf:"bytes,1,rep,name=nodes,proto3"`
}

type RefreshTimelockRequest struct {
	LeafId                 string        `protobuf:"bytes,1,opt,name=leaf_id,proto3"`
	OwnerIdentityPublicKey []byte        `protobuf:"bytes,2,opt,name=owner_identity_public_key,proto3"`
	SigningJobs            []*SigningJob `protobuf:"bytes,3,rep,name=signing_jobs,proto3"`
}

type RefreshTimelockSigningResult struct {
	SigningResult *SigningResult `protobuf:"bytes,1,opt,name=signing_result,proto3"`
	VerifyingKey  []byte         `protobuf:"bytes,2,opt,name=verifying_key,proto3"`
}

type RefreshTimelockResponse struct {
	SigningResults []*RefreshTimelockSigningResult `protobuf:"bytes,1,rep,name=signing_results,proto3"`
}

type ExtendLeafRequest struct {
	LeafId                 string      `protobuf:"bytes,1,opt,name=leaf_id,proto3"`
	OwnerIdentityPublicKey []byte      `protobuf:"bytes,2,opt,name=owner_identity_public_key,proto3"`
	NodeTxSigningJob       *SigningJob `protobuf:"bytes,3,opt,name=node_tx_signing_job,proto3"`
	RefundTxSigningJob     *SigningJob `protobuf:"bytes,4,opt,name=refund_tx_signing_job,proto3"`
}

type ExtendLeafSigningResult struct {
	SigningResult *SigningResult `protobuf:"bytes,1,opt,name=signing_result,proto3"`
	VerifyingKey  []byte         `protobuf:"bytes,2,opt,name=verifying_key,proto3"`
}

type ExtendLeafResponse struct {
	LeafId                string                   `protobuf:"bytes,1,opt,name=leaf_id,proto3"`
	NodeTxSigningResult   *ExtendLeafSigningResult `protobuf:"bytes,2,opt,name=node_tx_signing_result,proto3"`
	RefundTxSigningResult *ExtendLeafSigningResult `protobuf:"bytes,3,opt,name=refund_tx_signing_result,proto3"`
}
