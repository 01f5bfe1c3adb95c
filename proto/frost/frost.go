// Package frost holds the messages and client for the external FROST signer.
package frost

import (
	"context"

	"google.golang.org/grpc"

	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

type SigningRole int32

const (
	SigningRole_STATECHAIN SigningRole = 0
	SigningRole_USER       SigningRole = 1
)

type KeyPackage struct {
	Identifier   string            `protobuf:"bytes,1,opt,name=identifier,proto3"`
	SecretShare  []byte            `protobuf:"bytes,2,opt,name=secret_share,proto3"`
	PublicShares map[string][]byte `protobuf:"bytes,3,rep,name=public_shares,proto3" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
	PublicKey    []byte            `protobuf:"bytes,4,opt,name=public_key,proto3"`
	MinSigners   uint32            `protobuf:"varint,5,opt,name=min_signers,proto3"`
}

type SigningNonce struct {
	Hiding  []byte `protobuf:"bytes,1,opt,name=hiding,proto3"`
	Binding []byte `protobuf:"bytes,2,opt,name=binding,proto3"`
}

type FrostSigningJob struct {
	JobId            string                           `protobuf:"bytes,1,opt,name=job_id,proto3"`
	Message          []byte                           `protobuf:"bytes,2,opt,name=message,proto3"`
	KeyPackage       *KeyPackage                      `protobuf:"bytes,3,opt,name=key_package,proto3"`
	VerifyingKey     []byte                           `protobuf:"bytes,4,opt,name=verifying_key,proto3"`
	Nonce            *SigningNonce                    `protobuf:"bytes,5,opt,name=nonce,proto3"`
	Commitments      map[string]*pb.SigningCommitment `protobuf:"bytes,6,rep,name=commitments,proto3" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
	UserCommitments  *pb.SigningCommitment            `protobuf:"bytes,7,opt,name=user_commitments,proto3"`
	AdaptorPublicKey []byte                           `protobuf:"bytes,8,opt,name=adaptor_public_key,proto3"`
}

type SignFrostRequest struct {
	SigningJobs []*FrostSigningJob `protobuf:"bytes,1,rep,name=signing_jobs,proto3"`
	Role        SigningRole        `protobuf:"varint,2,opt,name=role,proto3,enum=frost.SigningRole"`
}

type SigningResult struct {
	SignatureShare []byte `protobuf:"bytes,1,opt,name=signature_share,proto3"`
}

type SignFrostResponse struct {
	Results map[string]*SigningResult `protobuf:"bytes,1,rep,name=results,proto3" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
}

type AggregateFrostRequest struct {
	Message            []byte                           `protobuf:"bytes,1,opt,name=message,proto3"`
	SignatureShares    map[string][]byte                `protobuf:"bytes,2,rep,name=signature_shares,proto3" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
	PublicShares       map[string][]byte                `protobuf:"bytes,3,rep,name=public_shares,proto3" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
	VerifyingKey       []byte                           `protobuf:"bytes,4,opt,name=verifying_key,proto3"`
	Commitments        map[string]*pb.SigningCommitment `protobuf:"bytes,5,rep,name=commitments,proto3" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
	UserCommitments    *pb.SigningCommitment            `protobuf:"bytes,6,opt,name=user_commitments,proto3"`
	UserPublicKey      []byte                           `protobuf:"bytes,7,opt,name=user_public_key,proto3"`
	UserSignatureShare []byte                           `protobuf:"bytes,8,opt,name=user_signature_share,proto3"`
	AdaptorPublicKey   []byte                           `protobuf:"bytes,9,opt,name=adaptor_public_key,proto3"`
}

type AggregateFrostResponse struct {
	Signature []byte `protobuf:"bytes,1,opt,name=signature,proto3"`
}

type FrostServiceClient interface {
	SignFrost(ctx context.Context, in *SignFrostRequest, opts ...grpc.CallOption) (*SignFrostResponse, error)
	AggregateFrost(ctx context.Context, in *AggregateFrostRequest, opts ...grpc.CallOption) (*AggregateFrostResponse, error)
}

type frostServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewFrostServiceClient(cc grpc.ClientConnInterface) FrostServiceClient {
	return &frostServiceClient{cc: cc}
}

func (c *frostServiceClient) SignFrost(ctx context.Context, in *SignFrostRequest, opts ...grpc.CallOption) (*SignFrostResponse, error) {
	out := new(SignFrostResponse)
	opts = append([]grpc.CallOption{pb.CallOption()}, opts...)
	if err := c.cc.Invoke(ctx, "/frost.FrostService/sign_frost", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *frostServiceClient) AggregateFrost(ctx context.Context, in *AggregateFrostRequest, opts ...grpc.CallOption) (*AggregateFrostResponse, error) {
	out := new(AggregateFrostResponse)
	opts = append([]grpc.CallOption{pb.CallOption()}, opts...)
	if err := c.cc.Invoke(ctx, "/frost.FrostService/aggregate_frost", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
