package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

// failingInvoker fails with code for the first failures calls.
func failingInvoker(code codes.Code, failures int, calls *int) grpc.UnaryInvoker {
	return func(context.Context, string, any, any, *grpc.ClientConn, ...grpc.CallOption) error {
		*calls++
		if *calls <= failures {
			return status.Error(code, "transient")
		}
		return nil
	}
}

func TestRetryPolicy(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:      3,
		RetryableMethods: []string{pb.MethodName("query_nodes")},
		Backoff:          time.Millisecond,
	}
	interceptor := policy.UnaryClientInterceptor()

	tests := []struct {
		name      string
		method    string
		code      codes.Code
		failures  int
		opts      []grpc.CallOption
		wantCalls int
		wantCode  codes.Code
	}{
		{
			name:      "retryable method recovers",
			method:    pb.MethodName("query_nodes"),
			code:      codes.Unavailable,
			failures:  2,
			wantCalls: 3,
			wantCode:  codes.OK,
		},
		{
			name:      "retryable method gives up",
			method:    pb.MethodName("query_nodes"),
			code:      codes.Unavailable,
			failures:  5,
			wantCalls: 3,
			wantCode:  codes.Unavailable,
		},
		{
			name:      "non transient code is not retried",
			method:    pb.MethodName("query_nodes"),
			code:      codes.InvalidArgument,
			failures:  1,
			wantCalls: 1,
			wantCode:  codes.InvalidArgument,
		},
		{
			name:      "other methods are not retried",
			method:    pb.MethodName("complete_send_transfer"),
			code:      codes.Unavailable,
			failures:  1,
			wantCalls: 1,
			wantCode:  codes.Unavailable,
		},
		{
			name:      "call options enable retries",
			method:    pb.MethodName("finalize_token_transaction"),
			code:      codes.DeadlineExceeded,
			failures:  1,
			opts:      RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond}.CallOptions(),
			wantCalls: 2,
			wantCode:  codes.OK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := interceptor(t.Context(), tt.method, nil, nil, nil, failingInvoker(tt.code, tt.failures, &calls), tt.opts...)
			assert.Equal(t, tt.wantCode, status.Code(err))
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestRetryPolicy_CallOptionsDisabled(t *testing.T) {
	assert.Empty(t, RetryPolicy{MaxAttempts: 1}.CallOptions())
	assert.NotEmpty(t, DefaultRetryPolicy().CallOptions())
	assert.Contains(t, DefaultRetryPolicy().RetryableMethods, pb.MethodName("start_token_transaction"))
}

func TestTimeoutInterceptor(t *testing.T) {
	interceptor := TimeoutInterceptor(TimeoutConfig{
		Default: time.Hour,
		Methods: map[string]time.Duration{"/slow": 10 * time.Millisecond},
	})

	blocking := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		<-ctx.Done()
		return status.FromContextError(ctx.Err()).Err()
	}

	err := interceptor(t.Context(), "/slow", nil, nil, nil, blocking)
	require.Error(t, err)
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
	assert.Contains(t, err.Error(), "request timeout")

	var deadline time.Time
	capture := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		deadline, _ = ctx.Deadline()
		return nil
	}
	require.NoError(t, interceptor(t.Context(), "/fast", nil, nil, nil, capture))
	assert.WithinDuration(t, time.Now().Add(time.Hour), deadline, time.Minute)
}

func TestTimeoutInterceptor_CallerCancel(t *testing.T) {
	interceptor := TimeoutInterceptor(TimeoutConfig{Default: time.Hour})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := interceptor(ctx, "/m", nil, nil, nil, func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
}
