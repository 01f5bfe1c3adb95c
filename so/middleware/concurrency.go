package middleware

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"google.golang.org/grpc"

	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
)

// ResourceLimiter enforces a budget on in-flight calls.
type ResourceLimiter interface {
	// TryAcquireMethod takes a slot for method, failing if the limit is reached.
	TryAcquireMethod(string) error
	// ReleaseMethod returns a slot taken by TryAcquireMethod.
	ReleaseMethod(string)
}

type ConcurrencyConfig struct {
	// Global caps in-flight calls across all methods. Values <= 0 mean unlimited.
	Global int64 `yaml:"global"`
	// Methods caps in-flight calls per full method name.
	Methods map[string]int64 `yaml:"methods"`
}

type ConcurrencyGuard struct {
	config        ConcurrencyConfig
	globalCounter int64
	counterMap    map[string]int64
	mu            sync.Mutex
}

func NewConcurrencyGuard(config ConcurrencyConfig) ResourceLimiter {
	return &ConcurrencyGuard{
		config:     config,
		counterMap: make(map[string]int64),
	}
}

// TryAcquireMethod takes a slot for method and for the global limit, failing if either is full.
func (c *ConcurrencyGuard) TryAcquireMethod(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentCounter := c.counterMap[method]
	if methodLimit := c.config.Methods[method]; methodLimit > 0 && currentCounter >= methodLimit {
		return sparkerrors.ResourceExhaustedRateLimitExceeded(errors.New("concurrency limit exceeded"))
	}
	if c.config.Global > 0 && c.globalCounter >= c.config.Global {
		return sparkerrors.ResourceExhaustedRateLimitExceeded(errors.New("global concurrency limit exceeded"))
	}

	c.counterMap[method] = currentCounter + 1
	c.globalCounter++
	return nil
}

// ReleaseMethod frees a slot. Counters never go negative.
func (c *ConcurrencyGuard) ReleaseMethod(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counterMap[method] = max(c.counterMap[method]-1, 0)
	c.globalCounter = max(c.globalCounter-1, 0)
}

// NoopResourceLimiter allows unlimited concurrency.
type NoopResourceLimiter struct{}

func (n *NoopResourceLimiter) TryAcquireMethod(string) error {
	return nil
}

func (n *NoopResourceLimiter) ReleaseMethod(string) {
}

var methodConcurrencyGauge metric.Int64UpDownCounter

func init() {
	meter := otel.GetMeterProvider().Meter("spark.wallet.grpc")
	gauge, err := meter.Int64UpDownCounter(
		"rpc.client.active_requests_per_rpc",
		metric.WithDescription("Number of in-flight calls to signing operators"),
		metric.WithUnit("{count}"),
	)
	if err != nil {
		otel.Handle(err)
		gauge = noop.Int64UpDownCounter{}
	}
	methodConcurrencyGauge = gauge
}

// parseFullMethod splits "/pkg.Service/Method" into rpc attributes.
func parseFullMethod(fullMethod string) []attribute.KeyValue {
	service, method, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok {
		return []attribute.KeyValue{attribute.String("rpc.method", fullMethod)}
	}
	return []attribute.KeyValue{
		attribute.String("rpc.service", service),
		attribute.String("rpc.method", method),
	}
}

// ConcurrencyInterceptor limits the number of in-flight calls to one operator.
func ConcurrencyInterceptor(guard ResourceLimiter, operator string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if err := guard.TryAcquireMethod(method); err != nil {
			return err
		}
		defer guard.ReleaseMethod(method)

		otelAttrs := metric.WithAttributes(append(parseFullMethod(method), attribute.String("operator", operator))...)
		methodConcurrencyGauge.Add(ctx, 1, otelAttrs)
		defer methodConcurrencyGauge.Add(ctx, -1, otelAttrs)

		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
