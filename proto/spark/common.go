package spark

import "fmt"

type Network int32

const (
	Network_UNSPECIFIED Network = 0
	Network_MAINNET     Network = 10
	Network_REGTEST     Network = 20
	Network_TESTNET     Network = 30
	Network_SIGNET      Network = 40
)

var networkNames = map[Network]string{
	Network_UNSPECIFIED: "UNSPECIFIED",
	Network_MAINNET:     "MAINNET",
	Network_REGTEST:     "REGTEST",
	Network_TESTNET:     "TESTNET",
	Network_SIGNET:      "SIGNET",
}

func (n Network) String() string {
	return enumString(networkNames, n)
}

func enumString[E ~int32](names map[E]string, e E) string {
	if name, ok := names[e]; ok {
		return name
	}
	return fmt.Sprintf("%T(%d)", e, int32(e))
}

// SignatureIntent tells the coordinator why node signatures are being finalized.
type SignatureIntent int32

const (
	SignatureIntentCreation  SignatureIntent = 0
	SignatureIntentTransfer  SignatureIntent = 1
	SignatureIntentAggregate SignatureIntent = 2
	SignatureIntentRefresh   SignatureIntent = 3
	SignatureIntentExtend    SignatureIntent = 4
)

var signatureIntentNames = map[SignatureIntent]string{
	SignatureIntentCreation:  "SIGNATURE_INTENT_CREATION",
	SignatureIntentTransfer:  "SIGNATURE_INTENT_TRANSFER",
	SignatureIntentAggregate: "SIGNATURE_INTENT_AGGREGATE",
	SignatureIntentRefresh:   "SIGNATURE_INTENT_REFRESH",
	SignatureIntentExtend:    "SIGNATURE_INTENT_EXTEND",
}

func (i SignatureIntent) String() string {
	return enumString(signatureIntentNames, i)
}

type Empty struct{}

type SigningKeyshare struct {
	OwnerIdentifiers []string `protobuf:"bytes,1,rep,name=owner_identifiers,proto3"`
	Threshold        uint32   `protobuf:"varint,2,opt,name=threshold,proto3"`
	PublicKey        []byte   `protobuf:"bytes,3,opt,name=public_key,proto3"`
}

func (x *SigningKeyshare) GetOwnerIdentifiers() []string {
	if x != nil {
		return x.OwnerIdentifiers
	}
	return nil
}

func (x *SigningKeyshare) GetThreshold() uint32 {
	if x != nil {
		return x.Threshold
	}
	return 0
}

type SigningCommitment struct {
	Hiding  []byte `protobuf:"bytes,1,opt,name=hiding,proto3"`
	Binding []byte `protobuf:"bytes,2,opt,name=binding,proto3"`
}

type SigningJob struct {
	SigningPublicKey       []byte             `protobuf:"bytes,1,opt,name=signing_public_key,proto3"`
	RawTx                  []byte             `protobuf:"bytes,2,opt,name=raw_tx,proto3"`
	SigningNonceCommitment *SigningCommitment `protobuf:"bytes,3,opt,name=signing_nonce_commitment,proto3"`
}

func (x *SigningJob) GetSigningPublicKey() []byte {
	if x != nil {
		return x.SigningPublicKey
	}
	return nil
}

func (x *SigningJob) GetRawTx() []byte {
	if x != nil {
		return x.RawTx
	}
	return nil
}

// SigningResult carries the operators' round-one commitments and signature
// shares for one transaction, keyed by operator identifier.
type SigningResult struct {
	PublicKeys              map[string][]byte             `protobuf:"bytes,1,rep,name=public_keys,proto3" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
	SigningNonceCommitments map[string]*SigningCommitment `protobuf:"bytes,2,rep,name=signing_nonce_commitments,proto3" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
	SignatureShares         map[string][]byte             `protobuf:"bytes,3,rep,name=signature_shares,proto3" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
	SigningKeyshare         *SigningKeyshare              `protobuf:"bytes,4,opt,name=signing_keyshare,proto3"`
}

func (x *SigningResult) GetSigningNonceCommitments() map[string]*SigningCommitment {
	if x != nil {
		return x.SigningNonceCommitments
	}
	return nil
}

func (x *SigningResult) GetSignatureShares() map[string][]byte {
	if x != nil {
		return x.SignatureShares
	}
	return nil
}

func (x *SigningResult) GetPublicKeys() map[string][]byte {
	if x != nil {
		return x.PublicKeys
	}
	return nil
}

type NodeSignatures struct {
	NodeId            string `protobuf:"bytes,1,opt,name=node_id,proto3"`
	NodeTxSignature   []byte `protobuf:"bytes,2,opt,name=node_tx_signature,proto3"`
	RefundTxSignature []byte `protobuf:"bytes,3,opt,name=refund_tx_signature,proto3"`
}

type SecretShare struct {
	SecretShare []byte   `protobuf:"bytes,1,opt,name=secret_share,proto3"`
	Proofs      [][]byte `protobuf:"bytes,2,rep,name=proofs,proto3"`
}

type SigningOperatorInfo struct {
	Index             uint64 `protobuf:"varint,1,opt,name=index,proto3"`
	Identifier        string `protobuf:"bytes,2,opt,name=identifier,proto3"`
	PublicKey         []byte `protobuf:"bytes,3,opt,name=public_key,proto3"`
	Address           string `protobuf:"bytes,4,opt,name=address,proto3"`
	IdentityPublicKey []byte `protobuf:"bytes,5,opt,name=identity_public_key,proto3"`
}
