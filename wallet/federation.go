package wallet

import (
	"context"
	"fmt"

	"github.com/lightsparkdev/spark-wallet/common"
	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	"github.com/lightsparkdev/spark-wallet/common/logging"
	"github.com/lightsparkdev/spark-wallet/signer"
	"github.com/lightsparkdev/spark-wallet/so"
	"github.com/lightsparkdev/spark-wallet/so/fanout"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

// Federation is what every coordinator needs to run a protocol: the operator
// set, a way to reach each operator, the wallet's keys and the network.
type Federation struct {
	Registry *so.Registry
	Clients  so.ClientProvider
	Signer   signer.Signer
	Network  common.Network
}

func (f *Federation) protoNetwork() pb.Network {
	network, err := common.ProtoNetworkFromNetwork(f.Network)
	if err != nil {
		return pb.Network_UNSPECIFIED
	}
	return network
}

func (f *Federation) identityPublicKey() []byte {
	return f.Signer.IdentityPublicKey().Serialize()
}

// coordinator returns the client of the operator used for single-operator calls.
func (f *Federation) coordinator() (pb.SparkServiceClient, error) {
	operator := f.Registry.Coordinator()
	client, err := f.Clients.SparkClient(operator)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to coordinator %s: %w", operator.Identifier, err)
	}
	return client, nil
}

// coordinatorError classifies a failed single-operator call.
func (f *Federation) coordinatorError(op string, err error) error {
	return sparkerrors.Network(op, f.Registry.Coordinator().Identifier, err)
}

// executeAll runs call against every operator with that operator's client.
func executeAll[T any](ctx context.Context, f *Federation, op string, call func(ctx context.Context, operator *so.SigningOperator, client pb.SparkServiceClient) (T, error)) []fanout.Result[T] {
	return executeOn(ctx, f, op, f.Registry.Operators(), call)
}

func executeOn[T any](ctx context.Context, f *Federation, op string, operators []*so.SigningOperator, call func(ctx context.Context, operator *so.SigningOperator, client pb.SparkServiceClient) (T, error)) []fanout.Result[T] {
	return fanout.ExecuteAll(ctx, op, operators, func(ctx context.Context, operator *so.SigningOperator) (T, error) {
		ctx, _ = logging.WithOperator(ctx, operator.Identifier)
		client, err := f.Clients.SparkClient(operator)
		if err != nil {
			var zero T
			return zero, err
		}
		return call(ctx, operator, client)
	})
}

// queryNodesByID fetches nodes from the coordinator. Every id must be found.
func queryNodesByID(ctx context.Context, f *Federation, ids []string) (map[string]*pb.TreeNode, error) {
	client, err := f.coordinator()
	if err != nil {
		return nil, err
	}
	resp, err := client.QueryNodes(ctx, &pb.QueryNodesRequest{
		NodeIds: ids,
		Network: f.protoNetwork(),
	})
	if err != nil {
		return nil, f.coordinatorError("query_nodes", err)
	}
	for _, id := range ids {
		if _, ok := resp.Nodes[id]; !ok {
			return nil, sparkerrors.ValidationMissingField(fmt.Errorf("node %s not found", id))
		}
	}
	return resp.Nodes, nil
}
