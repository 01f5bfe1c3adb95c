package middleware

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TimeoutConfig bounds how long a single call to an operator may take.
type TimeoutConfig struct {
	Default time.Duration `yaml:"default"`
	// Methods overrides Default per full method name.
	Methods map[string]time.Duration `yaml:"methods"`
}

func (c TimeoutConfig) forMethod(method string) time.Duration {
	if timeout, ok := c.Methods[method]; ok {
		return timeout
	}
	return c.Default
}

// TimeoutInterceptor creates a unary client interceptor that enforces a timeout on outgoing calls.
// A call whose context already has an earlier deadline keeps it.
func TimeoutInterceptor(config TimeoutConfig) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		timeout := config.forMethod(method)
		if timeout <= 0 {
			return invoker(ctx, method, req, reply, cc, opts...)
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := invoker(timeoutCtx, method, req, reply, cc, opts...)
		if err != nil && ctx.Err() == nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return status.Errorf(codes.DeadlineExceeded, "request timeout after %v", timeout)
		}
		return err
	}
}
