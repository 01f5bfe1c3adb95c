package middleware

import (
	"context"
	"time"

	grpc_retry "github.com/grpc-ecosystem/go-grpc-middleware/retry"
	"google.golang.org/grpc"

	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

// RetryPolicy retries idempotent single-operator calls that fail with a transient code.
type RetryPolicy struct {
	// MaxAttempts counts the first call. Values below 2 disable retries.
	MaxAttempts uint `yaml:"max_attempts"`
	// RetryableMethods are full method names retried automatically.
	RetryableMethods []string `yaml:"retryable_methods"`
	// Backoff is the base delay, grown exponentially with jitter between attempts.
	Backoff time.Duration `yaml:"backoff"`
}

const defaultRetryBackoff = 100 * time.Millisecond

// DefaultRetryPolicy retries token transaction starts and read-only queries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		RetryableMethods: []string{
			pb.MethodName("start_token_transaction"),
			pb.MethodName("query_nodes"),
			pb.MethodName("query_pending_transfers"),
			pb.MethodName("query_all_transfers"),
			pb.MethodName("query_unused_deposit_addresses"),
			pb.MethodName("query_token_outputs"),
			pb.MethodName("query_token_transactions"),
		},
		Backoff: defaultRetryBackoff,
	}
}

// FinalizeRetryPolicy is used per operator when finalizing a token
// transaction, which operators accept more than once.
func FinalizeRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      5,
		RetryableMethods: []string{pb.MethodName("finalize_token_transaction")},
		Backoff:          250 * time.Millisecond,
	}
}

func (p RetryPolicy) retryOptions() []grpc_retry.CallOption {
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	return []grpc_retry.CallOption{
		grpc_retry.WithMax(p.MaxAttempts),
		grpc_retry.WithCodes(sparkerrors.RetryableCodes()...),
		grpc_retry.WithBackoff(grpc_retry.BackoffExponentialWithJitter(backoff, 0.1)),
	}
}

// CallOptions enables this policy for a single call, whatever its method.
func (p RetryPolicy) CallOptions() []grpc.CallOption {
	if p.MaxAttempts < 2 {
		return nil
	}
	retryOpts := p.retryOptions()
	opts := make([]grpc.CallOption, len(retryOpts))
	for i, opt := range retryOpts {
		opts[i] = opt
	}
	return opts
}

// UnaryClientInterceptor retries the policy's methods. Other methods are only
// retried when the caller passes CallOptions.
func (p RetryPolicy) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	retryable := make(map[string]bool, len(p.RetryableMethods))
	for _, method := range p.RetryableMethods {
		retryable[method] = true
	}
	retry := grpc_retry.UnaryClientInterceptor(grpc_retry.WithMax(0))
	methodOpts := p.CallOptions()

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if retryable[method] && len(methodOpts) > 0 {
			// Caller options come last so they can override the method default.
			opts = append(append([]grpc.CallOption{}, methodOpts...), opts...)
		}
		return retry(ctx, method, req, reply, cc, invoker, opts...)
	}
}
